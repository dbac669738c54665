// Package svm provides ClientSvmSigner implementations backed by a wallet
// provider or a local private key.
package svm

import (
	"context"
	"fmt"

	solana "github.com/gagliardetto/solana-go"

	x402svm "github.com/x402-foundation/paypanel/mechanisms/svm"
	"github.com/x402-foundation/paypanel/wallet"
)

// SignTransactionFunc signs tx in place
type SignTransactionFunc func(ctx context.Context, tx *solana.Transaction) error

// WalletSignFunc is the wallet-style callback: unsigned transaction in,
// signed transaction out
type WalletSignFunc func(ctx context.Context, tx *solana.Transaction) (*solana.Transaction, error)

// ClientSigner implements x402svm.ClientSvmSigner using a signing callback.
type ClientSigner struct {
	publicKey       solana.PublicKey
	signTransaction SignTransactionFunc
}

var _ x402svm.ClientSvmSigner = (*ClientSigner)(nil)

// NewClientSigner creates a client signer from a public key and signing callback.
func NewClientSigner(publicKey solana.PublicKey, signFunc SignTransactionFunc) (*ClientSigner, error) {
	if publicKey.IsZero() {
		return nil, fmt.Errorf("public key is required")
	}
	if signFunc == nil {
		return nil, fmt.Errorf("sign callback is required")
	}

	return &ClientSigner{
		publicKey:       publicKey,
		signTransaction: signFunc,
	}, nil
}

// NewClientSignerFromWallet adapts a wallet-style callback. Signatures of the
// returned transaction are copied into the transaction being built, so a
// wallet that rewrites the message is rejected.
func NewClientSignerFromWallet(publicKey solana.PublicKey, signFunc WalletSignFunc) (*ClientSigner, error) {
	if signFunc == nil {
		return nil, fmt.Errorf("sign callback is required")
	}

	return NewClientSigner(publicKey, func(ctx context.Context, tx *solana.Transaction) error {
		signed, err := signFunc(ctx, tx)
		if err != nil {
			return err
		}
		if signed == nil {
			return fmt.Errorf("wallet returned no transaction")
		}
		if signed != tx {
			want, err := tx.Message.MarshalBinary()
			if err != nil {
				return fmt.Errorf("failed to marshal message: %w", err)
			}
			got, err := signed.Message.MarshalBinary()
			if err != nil {
				return fmt.Errorf("failed to marshal signed message: %w", err)
			}
			if string(want) != string(got) {
				return fmt.Errorf("wallet modified the transaction message")
			}
			tx.Signatures = append([]solana.Signature(nil), signed.Signatures...)
		}
		return nil
	})
}

// NewClientSignerFromSession creates a signer for a connected wallet session
func NewClientSignerFromSession(session wallet.Session, provider wallet.Provider) (*ClientSigner, error) {
	if !session.Connected {
		return nil, fmt.Errorf("wallet session is not connected")
	}
	if provider == nil {
		return nil, fmt.Errorf("wallet provider is required")
	}
	return NewClientSignerFromWallet(session.PublicKey, provider.SignTransaction)
}

// NewClientSignerFromPrivateKey creates a client signer from a base58-encoded private key.
//
// Example:
//
//	signer, err := svm.NewClientSignerFromPrivateKey("5J7W...")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	scheme := exactclient.NewExactSvmScheme(signer, *usdc, rpc.New(rpc.DevNet_RPC))
func NewClientSignerFromPrivateKey(privateKeyBase58 string) (*ClientSigner, error) {
	privateKey, err := solana.PrivateKeyFromBase58(privateKeyBase58)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}

	return NewClientSigner(privateKey.PublicKey(), func(_ context.Context, tx *solana.Transaction) error {
		return x402svm.PartialSign(tx, privateKey)
	})
}

// Address returns the Solana public key of the signer.
func (s *ClientSigner) Address() solana.PublicKey {
	return s.publicKey
}

// SignTransaction partially signs a Solana transaction.
func (s *ClientSigner) SignTransaction(ctx context.Context, tx *solana.Transaction) error {
	return s.signTransaction(ctx, tx)
}
