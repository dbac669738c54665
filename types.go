package x402

import (
	"encoding/json"
	"strings"
)

// Protocol versions understood by this module
const (
	ProtocolVersion   = 2
	ProtocolVersionV1 = 1
)

// Network represents a blockchain network identifier in CAIP-2 format
// Format: namespace:reference (e.g., "solana:5eykt4UsFv8P8NJdTREpY1vzqKqZKvdp")
// V1 payloads carry plain names such as "solana-devnet".
type Network string

// Match checks if this network matches a pattern (supports wildcards)
// e.g., "solana:abc" matches "solana:*" and "solana:*" matches "solana:abc"
func (n Network) Match(pattern Network) bool {
	if n == pattern {
		return true
	}

	nStr := string(n)
	patternStr := string(pattern)

	if strings.HasSuffix(patternStr, ":*") {
		prefix := strings.TrimSuffix(patternStr, "*")
		return strings.HasPrefix(nStr, prefix)
	}

	// Bidirectional matching
	if strings.HasSuffix(nStr, ":*") {
		prefix := strings.TrimSuffix(nStr, "*")
		return strings.HasPrefix(patternStr, prefix)
	}

	return false
}

// Price represents a price that can be specified in various formats
// ("$0.01", "0.01 USDC", 0.01, or a pre-parsed {"amount","asset"} map)
type Price interface{}

// AssetAmount represents an amount of a specific asset in its smallest unit
type AssetAmount struct {
	Asset  string                 `json:"asset"`
	Amount string                 `json:"amount"`
	Extra  map[string]interface{} `json:"extra,omitempty"`
}

// PaymentRequirements defines what payment is acceptable for a resource
type PaymentRequirements struct {
	Scheme            string                 `json:"scheme"`
	Network           Network                `json:"network"`
	Asset             string                 `json:"asset"`
	Amount            string                 `json:"amount,omitempty"`            // v2 field
	MaxAmountRequired string                 `json:"maxAmountRequired,omitempty"` // v1 compatibility field
	PayTo             string                 `json:"payTo"`
	MaxTimeoutSeconds int                    `json:"maxTimeoutSeconds"`
	Resource          string                 `json:"resource,omitempty"`    // v1 only
	Description       string                 `json:"description,omitempty"` // v1 only
	MimeType          string                 `json:"mimeType,omitempty"`    // v1 only
	Extra             map[string]interface{} `json:"extra,omitempty"`
}

// RequiredAmount returns the amount to pay, preferring the v2 field
func (r PaymentRequirements) RequiredAmount() string {
	if r.Amount != "" {
		return r.Amount
	}
	return r.MaxAmountRequired
}

// PartialPaymentPayload contains the minimal payment data from mechanism clients
// This is what SchemeNetworkClient.CreatePaymentPayload returns
type PartialPaymentPayload struct {
	X402Version int                    `json:"x402Version"`
	Payload     map[string]interface{} `json:"payload"`
}

// PaymentPayload contains the signed payment authorization from a client
type PaymentPayload struct {
	X402Version int                    `json:"x402Version"`
	Payload     map[string]interface{} `json:"payload"`
	Accepted    PaymentRequirements    `json:"accepted"`          // V2: scheme/network in accepted
	Scheme      string                 `json:"scheme,omitempty"`  // V1: scheme at top level
	Network     string                 `json:"network,omitempty"` // V1: network at top level
	Resource    *ResourceInfo          `json:"resource,omitempty"`
	Extensions  map[string]interface{} `json:"extensions,omitempty"`
}

// SchemeAndNetwork returns the scheme and network regardless of payload version
func (p PaymentPayload) SchemeAndNetwork() (string, Network) {
	if p.X402Version == ProtocolVersionV1 {
		return p.Scheme, Network(p.Network)
	}
	return p.Accepted.Scheme, p.Accepted.Network
}

// ResourceInfo describes the resource being accessed
type ResourceInfo struct {
	URL         string `json:"url"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
}

// PaymentRequired is the 402 response sent to clients
type PaymentRequired struct {
	X402Version int                    `json:"x402Version"`
	Error       string                 `json:"error,omitempty"`
	Resource    *ResourceInfo          `json:"resource,omitempty"`
	Accepts     []PaymentRequirements  `json:"accepts"`
	Extensions  map[string]interface{} `json:"extensions,omitempty"`
}

// VerifyResponse contains the verification result
type VerifyResponse struct {
	IsValid       bool   `json:"isValid"`
	InvalidReason string `json:"invalidReason,omitempty"`
	Payer         string `json:"payer,omitempty"`
}

// SettleResponse contains the settlement result
type SettleResponse struct {
	Success     bool    `json:"success"`
	ErrorReason string  `json:"errorReason,omitempty"`
	Payer       string  `json:"payer,omitempty"`
	Transaction string  `json:"transaction"`
	Network     Network `json:"network"`
}

// DeepEqual performs deep equality check on payment requirements
func DeepEqual(a, b interface{}) bool {
	// Normalize to JSON and compare
	aJSON, err := json.Marshal(a)
	if err != nil {
		return false
	}
	bJSON, err := json.Marshal(b)
	if err != nil {
		return false
	}

	var aNorm, bNorm interface{}
	if err := json.Unmarshal(aJSON, &aNorm); err != nil {
		return false
	}
	if err := json.Unmarshal(bJSON, &bNorm); err != nil {
		return false
	}

	aNormJSON, _ := json.Marshal(aNorm)
	bNormJSON, _ := json.Marshal(bNorm)

	return string(aNormJSON) == string(bNormJSON)
}
