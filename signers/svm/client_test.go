package svm

import (
	"context"
	"errors"
	"testing"

	solana "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	x402svm "github.com/x402-foundation/paypanel/mechanisms/svm"
	"github.com/x402-foundation/paypanel/wallet"
)

func unsignedTx(t *testing.T, feePayer, owner solana.PublicKey) *solana.Transaction {
	t.Helper()
	ix := system.NewTransferInstruction(5, owner, solana.NewWallet().PublicKey()).Build()
	tx, err := solana.NewTransaction([]solana.Instruction{ix}, solana.Hash{9}, solana.TransactionPayer(feePayer))
	require.NoError(t, err)
	return tx
}

func TestNewClientSignerValidation(t *testing.T) {
	_, err := NewClientSigner(solana.PublicKey{}, func(context.Context, *solana.Transaction) error { return nil })
	assert.Error(t, err)

	_, err = NewClientSigner(solana.NewWallet().PublicKey(), nil)
	assert.Error(t, err)

	_, err = NewClientSignerFromWallet(solana.NewWallet().PublicKey(), nil)
	assert.Error(t, err)
}

func TestNewClientSignerFromPrivateKey(t *testing.T) {
	owner := solana.NewWallet()
	signer, err := NewClientSignerFromPrivateKey(owner.PrivateKey.String())
	require.NoError(t, err)
	assert.Equal(t, owner.PublicKey(), signer.Address())

	tx := unsignedTx(t, solana.NewWallet().PublicKey(), owner.PublicKey())
	require.NoError(t, signer.SignTransaction(context.Background(), tx))
	assert.True(t, x402svm.HasValidSignature(tx, owner.PublicKey()))

	_, err = NewClientSignerFromPrivateKey("invalid")
	assert.Error(t, err)
}

func TestNewClientSignerFromWalletCopiesSignatures(t *testing.T) {
	owner := solana.NewWallet()

	// Wallets return a fresh transaction object
	signer, err := NewClientSignerFromWallet(owner.PublicKey(), func(_ context.Context, tx *solana.Transaction) (*solana.Transaction, error) {
		clone := *tx
		clone.Signatures = nil
		if err := x402svm.PartialSign(&clone, owner.PrivateKey); err != nil {
			return nil, err
		}
		return &clone, nil
	})
	require.NoError(t, err)

	tx := unsignedTx(t, solana.NewWallet().PublicKey(), owner.PublicKey())
	require.NoError(t, signer.SignTransaction(context.Background(), tx))
	assert.True(t, x402svm.HasValidSignature(tx, owner.PublicKey()))
}

func TestNewClientSignerFromWalletRejectsModifiedMessage(t *testing.T) {
	owner := solana.NewWallet()
	feePayer := solana.NewWallet().PublicKey()

	signer, err := NewClientSignerFromWallet(owner.PublicKey(), func(_ context.Context, tx *solana.Transaction) (*solana.Transaction, error) {
		return unsignedTx(t, feePayer, owner.PublicKey()), nil
	})
	require.NoError(t, err)

	err = signer.SignTransaction(context.Background(), unsignedTx(t, feePayer, owner.PublicKey()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "modified")
}

func TestNewClientSignerFromWalletPropagatesErrors(t *testing.T) {
	rejected := errors.New("user rejected the request")
	signer, err := NewClientSignerFromWallet(solana.NewWallet().PublicKey(), func(context.Context, *solana.Transaction) (*solana.Transaction, error) {
		return nil, rejected
	})
	require.NoError(t, err)

	err = signer.SignTransaction(context.Background(), &solana.Transaction{})
	assert.ErrorIs(t, err, rejected)
}

func TestNewClientSignerFromSession(t *testing.T) {
	owner := solana.NewWallet()
	provider, err := wallet.NewKeypairProvider(owner.PrivateKey)
	require.NoError(t, err)

	_, err = NewClientSignerFromSession(wallet.Session{}, provider)
	assert.Error(t, err, "disconnected session")

	session, err := wallet.Connect(context.Background(), provider)
	require.NoError(t, err)

	_, err = NewClientSignerFromSession(session, nil)
	assert.Error(t, err)

	signer, err := NewClientSignerFromSession(session, provider)
	require.NoError(t, err)
	assert.Equal(t, session.PublicKey, signer.Address())

	tx := unsignedTx(t, solana.NewWallet().PublicKey(), owner.PublicKey())
	require.NoError(t, signer.SignTransaction(context.Background(), tx))
	assert.True(t, x402svm.HasValidSignature(tx, owner.PublicKey()))
}
