package svm

import (
	"context"
	"fmt"

	solana "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// ClientSvmSigner signs payment transactions on behalf of the payer
type ClientSvmSigner interface {
	// Address returns the payer public key (the token account owner)
	Address() solana.PublicKey
	// SignTransaction adds the payer signature to tx in place
	SignTransaction(ctx context.Context, tx *solana.Transaction) error
}

// RPC is the part of *rpc.Client the payment builder needs
type RPC interface {
	GetAccountInfo(ctx context.Context, account solana.PublicKey) (*rpc.GetAccountInfoResult, error)
	GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error)
}

var _ RPC = (*rpc.Client)(nil)

// ExactSvmPayload is the scheme payload of an exact Solana payment
type ExactSvmPayload struct {
	Transaction string `json:"transaction"`
}

// ToMap converts the payload to the generic form carried by x402.PaymentPayload
func (p *ExactSvmPayload) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"transaction": p.Transaction,
	}
}

// PayloadFromMap extracts an ExactSvmPayload from a generic payload
func PayloadFromMap(data map[string]interface{}) (*ExactSvmPayload, error) {
	tx, ok := data["transaction"].(string)
	if !ok || tx == "" {
		return nil, fmt.Errorf("payload is missing the transaction field")
	}
	return &ExactSvmPayload{Transaction: tx}, nil
}

// FeePayerFromExtra reads requirements.extra.feePayer
func FeePayerFromExtra(extra map[string]interface{}) (solana.PublicKey, error) {
	addr, ok := extra["feePayer"].(string)
	if !ok || addr == "" {
		return solana.PublicKey{}, fmt.Errorf("feePayer is required in paymentRequirements.extra for Solana transactions")
	}
	feePayer, err := solana.PublicKeyFromBase58(addr)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("invalid feePayer address: %w", err)
	}
	return feePayer, nil
}
