package x402

import (
	"context"
)

// SchemeNetworkClient is implemented by client-side payment mechanisms.
// A mechanism turns one set of payment requirements into a signed partial
// payload; the x402Client fills in the protocol envelope.
type SchemeNetworkClient interface {
	Scheme() string
	CreatePaymentPayload(ctx context.Context, version int, requirements PaymentRequirements) (PartialPaymentPayload, error)
}

// SchemeNetworkServer is implemented by server-side payment mechanisms.
// It prices resources, verifies payloads and settles them on chain.
type SchemeNetworkServer interface {
	Scheme() string
	ParsePrice(price Price, network Network) (AssetAmount, error)
	Verify(ctx context.Context, payload PaymentPayload, requirements PaymentRequirements) (*VerifyResponse, error)
	Settle(ctx context.Context, payload PaymentPayload, requirements PaymentRequirements) (*SettleResponse, error)
}

// RequirementsEnhancer is implemented by servers that add scheme data, such
// as a fee payer, to the requirements they advertise.
type RequirementsEnhancer interface {
	EnhancePaymentRequirements(requirements PaymentRequirements) PaymentRequirements
}
