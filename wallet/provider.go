// Package wallet connects to the payer's wallet and tracks the session.
package wallet

import (
	"context"

	solana "github.com/gagliardetto/solana-go"

	x402 "github.com/x402-foundation/paypanel"
)

// Provider is a wallet capable of holding a key and signing transactions.
// Implementations are injected by the caller; nothing is discovered globally.
type Provider interface {
	// Connect asks the wallet for access, possibly prompting the user
	Connect(ctx context.Context) error
	// PublicKey returns the connected key, or the zero key when there is none
	PublicKey() solana.PublicKey
	// SignTransaction returns tx signed by the wallet key
	SignTransaction(ctx context.Context, tx *solana.Transaction) (*solana.Transaction, error)
	// Disconnect releases the wallet
	Disconnect(ctx context.Context) error
}

// Session is the state of a successful connect
type Session struct {
	Address   string           `json:"address"`
	PublicKey solana.PublicKey `json:"-"`
	Connected bool             `json:"connected"`
}

// Connect requests a connection from p and returns the session.
//
//   - nil provider: x402.ErrWalletNotFound
//   - Connect fails: wallet_connection_failed wrapping the cause
//   - no public key after connect: x402.ErrWalletConnectionFailed
func Connect(ctx context.Context, p Provider) (Session, error) {
	if p == nil {
		return Session{}, x402.ErrWalletNotFound
	}

	if err := p.Connect(ctx); err != nil {
		return Session{}, x402.WrapPaymentError(
			x402.ErrCodeWalletConnectionFailed,
			x402.ErrWalletConnectionFailed.Message,
			err,
		)
	}

	pub := p.PublicKey()
	if pub.IsZero() {
		return Session{}, x402.ErrWalletConnectionFailed
	}

	return Session{
		Address:   pub.String(),
		PublicKey: pub,
		Connected: true,
	}, nil
}
