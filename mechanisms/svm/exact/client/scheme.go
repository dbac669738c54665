// Package client implements the v2 exact payment scheme for Solana clients.
package client

import (
	"context"
	"fmt"

	x402 "github.com/x402-foundation/paypanel"
	svm "github.com/x402-foundation/paypanel/mechanisms/svm"
)

// ExactSvmScheme implements x402.SchemeNetworkClient for exact SPL payments
// with a single wallet, token and rpc connection.
type ExactSvmScheme struct {
	signer svm.ClientSvmSigner
	token  svm.TokenInfo
	rpc    svm.RPC
}

// NewExactSvmScheme creates the payment handler for token, paying from signer
func NewExactSvmScheme(signer svm.ClientSvmSigner, token svm.TokenInfo, rpc svm.RPC) *ExactSvmScheme {
	return &ExactSvmScheme{
		signer: signer,
		token:  token,
		rpc:    rpc,
	}
}

// Scheme returns the scheme identifier
func (c *ExactSvmScheme) Scheme() string {
	return svm.SchemeExact
}

// Token returns the token the scheme pays with
func (c *ExactSvmScheme) Token() svm.TokenInfo {
	return c.token
}

// CreatePaymentPayload builds, signs and encodes the payment transaction
func (c *ExactSvmScheme) CreatePaymentPayload(ctx context.Context, version int, requirements x402.PaymentRequirements) (x402.PartialPaymentPayload, error) {
	if requirements.Scheme != svm.SchemeExact {
		return x402.PartialPaymentPayload{}, fmt.Errorf("unsupported scheme: %s", requirements.Scheme)
	}

	network, err := svm.NormalizeNetwork(string(requirements.Network))
	if err != nil {
		return x402.PartialPaymentPayload{}, err
	}
	if network != c.token.Network {
		return x402.PartialPaymentPayload{}, fmt.Errorf("requirements target %s, handler is configured for %s", network, c.token.Network)
	}

	encoded, err := SignedTransfer(ctx, c.signer, c.token, c.rpc, requirements)
	if err != nil {
		return x402.PartialPaymentPayload{}, err
	}

	payload := &svm.ExactSvmPayload{Transaction: encoded}

	return x402.PartialPaymentPayload{
		X402Version: version,
		Payload:     payload.ToMap(),
	}, nil
}

// SignedTransfer builds the transfer for requirements, has signer sign it and
// returns the base64 wire transaction
func SignedTransfer(ctx context.Context, signer svm.ClientSvmSigner, token svm.TokenInfo, rpc svm.RPC, requirements x402.PaymentRequirements) (string, error) {
	req, err := svm.TransferRequestFor(signer.Address(), token, requirements)
	if err != nil {
		return "", err
	}

	tx, err := svm.BuildTransferTransaction(ctx, rpc, req)
	if err != nil {
		return "", err
	}

	if err := signer.SignTransaction(ctx, tx); err != nil {
		return "", fmt.Errorf("failed to sign transaction: %w", err)
	}

	if !svm.HasValidSignature(tx, signer.Address()) {
		return "", fmt.Errorf("%s: wallet returned a transaction without a valid payer signature", svm.ErrMissingSignature)
	}

	encoded, err := svm.EncodeTransaction(tx)
	if err != nil {
		return "", fmt.Errorf("failed to encode transaction: %w", err)
	}
	return encoded, nil
}
