package wallet

import (
	"context"
	"fmt"
	"sync"

	solana "github.com/gagliardetto/solana-go"

	"github.com/x402-foundation/paypanel/mechanisms/svm"
)

// KeypairProvider is a Provider backed by a local ed25519 key
type KeypairProvider struct {
	mu        sync.RWMutex
	key       solana.PrivateKey
	connected bool
}

var _ Provider = (*KeypairProvider)(nil)

// NewKeypairProvider creates a provider for key
func NewKeypairProvider(key solana.PrivateKey) (*KeypairProvider, error) {
	if len(key) != 64 {
		return nil, fmt.Errorf("invalid private key length %d", len(key))
	}
	return &KeypairProvider{key: key}, nil
}

// NewKeypairProviderFromBase58 parses a base58 private key
func NewKeypairProviderFromBase58(privateKey string) (*KeypairProvider, error) {
	key, err := solana.PrivateKeyFromBase58(privateKey)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return NewKeypairProvider(key)
}

// Connect marks the provider connected
func (p *KeypairProvider) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	p.connected = true
	p.mu.Unlock()
	return nil
}

// PublicKey returns the key once connected
func (p *KeypairProvider) PublicKey() solana.PublicKey {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.connected {
		return solana.PublicKey{}
	}
	return p.key.PublicKey()
}

// SignTransaction signs tx in place and returns it
func (p *KeypairProvider) SignTransaction(ctx context.Context, tx *solana.Transaction) (*solana.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.RLock()
	connected := p.connected
	p.mu.RUnlock()
	if !connected {
		return nil, fmt.Errorf("wallet is not connected")
	}
	if err := svm.PartialSign(tx, p.key); err != nil {
		return nil, err
	}
	return tx, nil
}

// Disconnect forgets the connection
func (p *KeypairProvider) Disconnect(context.Context) error {
	p.mu.Lock()
	p.connected = false
	p.mu.Unlock()
	return nil
}
