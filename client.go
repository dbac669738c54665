package x402

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/shopspring/decimal"
)

// X402Client manages payment mechanisms and creates payment payloads
// This is used by applications that need to make payments (have wallets/signers)
type X402Client struct {
	mu sync.RWMutex

	// Nested map: version -> network -> scheme -> client implementation
	schemes map[int]map[Network]map[string]SchemeNetworkClient

	// Function to select payment requirements when multiple options exist
	requirementsSelector PaymentRequirementsSelector

	// Filters applied, in order, before selection
	policies []PaymentPolicy
}

// PaymentRequirementsSelector chooses which payment option to use
type PaymentRequirementsSelector func(version int, requirements []PaymentRequirements) PaymentRequirements

// PaymentPolicy narrows the requirements a client is willing to pay.
// Returning an empty slice means none of the options are acceptable.
type PaymentPolicy func(version int, requirements []PaymentRequirements) []PaymentRequirements

// ClientOption configures the client
type ClientOption func(*X402Client)

// WithPaymentSelector sets a custom payment requirements selector
func WithPaymentSelector(selector PaymentRequirementsSelector) ClientOption {
	return func(c *X402Client) {
		c.requirementsSelector = selector
	}
}

// WithScheme registers a payment mechanism at creation time
func WithScheme(version int, network Network, client SchemeNetworkClient) ClientOption {
	return func(c *X402Client) {
		c.registerScheme(version, network, client)
	}
}

// WithPolicy appends a payment policy
func WithPolicy(policy PaymentPolicy) ClientOption {
	return func(c *X402Client) {
		c.policies = append(c.policies, policy)
	}
}

// Newx402Client creates a new x402 client
func Newx402Client(opts ...ClientOption) *X402Client {
	c := &X402Client{
		schemes:              make(map[int]map[Network]map[string]SchemeNetworkClient),
		requirementsSelector: defaultPaymentSelector,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// defaultPaymentSelector chooses the first available payment option
func defaultPaymentSelector(version int, requirements []PaymentRequirements) PaymentRequirements {
	if len(requirements) == 0 {
		panic("no payment requirements available")
	}
	return requirements[0]
}

// AssetPolicy only accepts requirements paying in the given asset
func AssetPolicy(asset string) PaymentPolicy {
	return func(_ int, requirements []PaymentRequirements) []PaymentRequirements {
		var out []PaymentRequirements
		for _, req := range requirements {
			if req.Asset == asset {
				out = append(out, req)
			}
		}
		return out
	}
}

// MaxAmountPolicy drops requirements asking for more than max smallest units.
// Requirements with an unparseable amount are dropped as well.
func MaxAmountPolicy(max uint64) PaymentPolicy {
	limit := decimal.NewFromBigInt(new(big.Int).SetUint64(max), 0)
	return func(_ int, requirements []PaymentRequirements) []PaymentRequirements {
		var out []PaymentRequirements
		for _, req := range requirements {
			amount, err := decimal.NewFromString(req.RequiredAmount())
			if err != nil {
				continue
			}
			if amount.LessThanOrEqual(limit) {
				out = append(out, req)
			}
		}
		return out
	}
}

// RegisterScheme registers a payment mechanism for protocol v2
func (c *X402Client) RegisterScheme(network Network, client SchemeNetworkClient) *X402Client {
	return c.registerScheme(ProtocolVersion, network, client)
}

// RegisterSchemeV1 registers a payment mechanism for protocol v1
func (c *X402Client) RegisterSchemeV1(network Network, client SchemeNetworkClient) *X402Client {
	return c.registerScheme(ProtocolVersionV1, network, client)
}

func (c *X402Client) registerScheme(version int, network Network, client SchemeNetworkClient) *X402Client {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.schemes[version] == nil {
		c.schemes[version] = make(map[Network]map[string]SchemeNetworkClient)
	}
	if c.schemes[version][network] == nil {
		c.schemes[version][network] = make(map[string]SchemeNetworkClient)
	}

	c.schemes[version][network][client.Scheme()] = client

	return c
}

// SelectPaymentRequirements chooses which payment requirements to use
// This filters requirements to only those the client can fulfill
func (c *X402Client) SelectPaymentRequirements(version int, requirements []PaymentRequirements) (PaymentRequirements, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	versionSchemes, exists := c.schemes[version]
	if !exists {
		return PaymentRequirements{}, &PaymentError{
			Code:    ErrCodeUnsupportedScheme,
			Message: fmt.Sprintf("no schemes registered for x402 version %d", version),
		}
	}

	var supported []PaymentRequirements
	for _, req := range requirements {
		schemeMap := findSchemesByNetwork(versionSchemes, req.Network)
		if schemeMap != nil {
			if _, hasScheme := schemeMap[req.Scheme]; hasScheme {
				supported = append(supported, req)
			}
		}
	}

	for _, policy := range c.policies {
		supported = policy(version, supported)
	}

	if len(supported) == 0 {
		return PaymentRequirements{}, &PaymentError{
			Code:    ErrCodeUnsupportedScheme,
			Message: "no supported payment schemes available",
			Details: map[string]interface{}{
				"version":      version,
				"requirements": requirements,
			},
		}
	}

	return c.requirementsSelector(version, supported), nil
}

// CreatePaymentPayload creates a signed payment payload with accepted requirements
// For v2: includes accepted, resource, and extensions fields
// For v1: scheme and network are also set at the top level
func (c *X402Client) CreatePaymentPayload(ctx context.Context, version int, requirements PaymentRequirements, resource *ResourceInfo, extensions map[string]interface{}) (PaymentPayload, error) {
	if err := ValidatePaymentRequirements(requirements); err != nil {
		return PaymentPayload{}, fmt.Errorf("invalid payment requirements: %w", err)
	}

	c.mu.RLock()
	versionSchemes, exists := c.schemes[version]
	var client SchemeNetworkClient
	if exists {
		client = findByNetworkAndScheme(versionSchemes, requirements.Scheme, requirements.Network)
	}
	c.mu.RUnlock()

	if !exists {
		return PaymentPayload{}, fmt.Errorf("no schemes registered for x402 version %d", version)
	}
	if client == nil {
		return PaymentPayload{}, &PaymentError{
			Code:    ErrCodeUnsupportedScheme,
			Message: fmt.Sprintf("no client registered for scheme %s on network %s for version %d", requirements.Scheme, requirements.Network, version),
		}
	}

	// Mechanisms may block on a wallet prompt or RPC, so the lock is not held here
	partialPayload, err := client.CreatePaymentPayload(ctx, version, requirements)
	if err != nil {
		return PaymentPayload{}, fmt.Errorf("failed to create payment payload: %w", err)
	}

	fullPayload := PaymentPayload{
		X402Version: partialPayload.X402Version,
		Payload:     partialPayload.Payload,
		Accepted:    requirements,
	}

	if partialPayload.X402Version == ProtocolVersionV1 {
		fullPayload.Scheme = requirements.Scheme
		fullPayload.Network = string(requirements.Network)
	} else {
		fullPayload.Resource = resource
		fullPayload.Extensions = extensions
	}

	if err := ValidatePaymentPayload(fullPayload); err != nil {
		return PaymentPayload{}, fmt.Errorf("invalid payment payload created: %w", err)
	}

	return fullPayload, nil
}

// CanPay checks if the client can pay with any of the given requirements
func (c *X402Client) CanPay(version int, requirements []PaymentRequirements) bool {
	_, err := c.SelectPaymentRequirements(version, requirements)
	return err == nil
}

// CreatePaymentForRequired creates a payment for a PaymentRequired response
// This includes resource and extensions from the PaymentRequired response
func (c *X402Client) CreatePaymentForRequired(ctx context.Context, required PaymentRequired) (PaymentPayload, error) {
	selected, err := c.SelectPaymentRequirements(required.X402Version, required.Accepts)
	if err != nil {
		return PaymentPayload{}, err
	}

	return c.CreatePaymentPayload(ctx, required.X402Version, selected, required.Resource, required.Extensions)
}
