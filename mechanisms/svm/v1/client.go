// Package v1 provides the V1 implementation of the SVM (Solana) mechanism for x402
package v1

import (
	"context"
	"fmt"

	x402 "github.com/x402-foundation/paypanel"
	svm "github.com/x402-foundation/paypanel/mechanisms/svm"
	exactclient "github.com/x402-foundation/paypanel/mechanisms/svm/exact/client"
)

// ExactSvmClientV1 implements the SchemeNetworkClient interface for SVM (Solana) exact payments (V1)
type ExactSvmClientV1 struct {
	signer svm.ClientSvmSigner
	token  svm.TokenInfo
	rpc    svm.RPC
}

// NewExactSvmClientV1 creates a new ExactSvmClientV1
func NewExactSvmClientV1(signer svm.ClientSvmSigner, token svm.TokenInfo, rpc svm.RPC) *ExactSvmClientV1 {
	return &ExactSvmClientV1{
		signer: signer,
		token:  token,
		rpc:    rpc,
	}
}

// Scheme returns the scheme identifier
func (c *ExactSvmClientV1) Scheme() string {
	return svm.SchemeExact
}

// CreatePaymentPayload creates a payment payload for the Exact scheme (V1).
// V1 requirements name the network by its simple name and carry the amount
// in maxAmountRequired.
func (c *ExactSvmClientV1) CreatePaymentPayload(ctx context.Context, version int, requirements x402.PaymentRequirements) (x402.PartialPaymentPayload, error) {
	if version != x402.ProtocolVersionV1 {
		return x402.PartialPaymentPayload{}, fmt.Errorf("v1 client cannot create version %d payloads", version)
	}

	config, err := svm.GetNetworkConfig(string(requirements.Network))
	if err != nil {
		return x402.PartialPaymentPayload{}, fmt.Errorf("unsupported network: %s", requirements.Network)
	}
	if config.CAIP2 != c.token.Network {
		return x402.PartialPaymentPayload{}, fmt.Errorf("requirements target %s, handler is configured for %s", config.V1Name, c.token.Network)
	}

	if requirements.MaxAmountRequired == "" {
		return x402.PartialPaymentPayload{}, fmt.Errorf("maxAmountRequired is required for v1 payments")
	}
	requirements.Amount = requirements.MaxAmountRequired

	encoded, err := exactclient.SignedTransfer(ctx, c.signer, c.token, c.rpc, requirements)
	if err != nil {
		return x402.PartialPaymentPayload{}, err
	}

	payload := &svm.ExactSvmPayload{Transaction: encoded}

	return x402.PartialPaymentPayload{
		X402Version: version,
		Payload:     payload.ToMap(),
	}, nil
}
