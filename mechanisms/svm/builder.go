package svm

import (
	"fmt"

	x402 "github.com/x402-foundation/paypanel"
)

// SvmClientConfig holds configuration for creating an SVM x402 client
type SvmClientConfig struct {
	// Network the handler pays on (cluster name, v1 name or CAIP-2)
	Network string
	// Token the handler pays with; only requirements for this mint are selected
	Token TokenInfo
	// Scheme is the v2 exact client
	Scheme x402.SchemeNetworkClient
	// SchemeV1 is the v1 exact client (optional)
	SchemeV1 x402.SchemeNetworkClient
	// Custom payment requirements selector (optional)
	PaymentRequirementsSelector x402.PaymentRequirementsSelector
	// Policies to apply to the client (optional)
	Policies []x402.PaymentPolicy
}

// NewSvmClient creates an X402Client that pays on a single Solana network.
//
// Registers:
//   - V2: the network's CAIP-2 id with config.Scheme
//   - V1: the network's v1 name with config.SchemeV1, when set
//
// An asset policy restricting selection to config.Token runs before any
// caller supplied policy.
//
// Example:
//
//	usdc, _ := svm.LookupKnownSPLToken("devnet", "USDC")
//	client, err := svm.NewSvmClient(svm.SvmClientConfig{
//	    Network:  "devnet",
//	    Token:    *usdc,
//	    Scheme:   exactclient.NewExactSvmScheme(signer, *usdc, rpcClient),
//	    SchemeV1: svmv1.NewExactSvmClientV1(signer, *usdc, rpcClient),
//	})
func NewSvmClient(config SvmClientConfig) (*x402.X402Client, error) {
	if config.Scheme == nil {
		return nil, fmt.Errorf("an exact scheme client is required")
	}

	networkConfig, err := GetNetworkConfig(config.Network)
	if err != nil {
		return nil, err
	}

	if config.Token.Address == "" {
		return nil, fmt.Errorf("a token is required")
	}
	if config.Token.Network != networkConfig.CAIP2 {
		return nil, fmt.Errorf("token %s belongs to %s, not %s", config.Token.Symbol, config.Token.Network, networkConfig.CAIP2)
	}

	opts := []x402.ClientOption{
		x402.WithPolicy(x402.AssetPolicy(config.Token.Address)),
	}

	if config.PaymentRequirementsSelector != nil {
		opts = append(opts, x402.WithPaymentSelector(config.PaymentRequirementsSelector))
	}

	for _, policy := range config.Policies {
		opts = append(opts, x402.WithPolicy(policy))
	}

	client := x402.Newx402Client(opts...)
	client.RegisterScheme(x402.Network(networkConfig.CAIP2), config.Scheme)

	if config.SchemeV1 != nil {
		client.RegisterSchemeV1(x402.Network(networkConfig.V1Name), config.SchemeV1)
	}

	return client, nil
}
