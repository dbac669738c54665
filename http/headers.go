package http

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"

	x402 "github.com/x402-foundation/paypanel"
)

// Header names
const (
	HeaderPaymentRequired   = "PAYMENT-REQUIRED"
	HeaderPaymentSignature  = "PAYMENT-SIGNATURE"
	HeaderPaymentResponse   = "PAYMENT-RESPONSE"
	HeaderPaymentV1         = "X-PAYMENT"
	HeaderPaymentResponseV1 = "X-PAYMENT-RESPONSE"
)

// EncodePaymentHeader encodes payload and returns the header it belongs in
func EncodePaymentHeader(payload x402.PaymentPayload) (string, string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", "", fmt.Errorf("failed to marshal payment payload: %w", err)
	}
	encoded := base64.StdEncoding.EncodeToString(data)

	switch payload.X402Version {
	case x402.ProtocolVersion:
		return HeaderPaymentSignature, encoded, nil
	case x402.ProtocolVersionV1:
		return HeaderPaymentV1, encoded, nil
	default:
		return "", "", fmt.Errorf("unsupported x402 version: %d", payload.X402Version)
	}
}

// DecodePaymentHeader decodes a base64 PAYMENT-SIGNATURE or X-PAYMENT value
func DecodePaymentHeader(header string) (x402.PaymentPayload, error) {
	data, err := base64.StdEncoding.DecodeString(header)
	if err != nil {
		return x402.PaymentPayload{}, fmt.Errorf("invalid base64 encoding: %w", err)
	}

	var payload x402.PaymentPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return x402.PaymentPayload{}, fmt.Errorf("invalid payment payload JSON: %w", err)
	}

	return payload, nil
}

// PaymentFromRequest returns the payment attached to r, if any.
// The v2 header wins when both are present.
func PaymentFromRequest(r *http.Request) (x402.PaymentPayload, bool, error) {
	if header := r.Header.Get(HeaderPaymentSignature); header != "" {
		payload, err := DecodePaymentHeader(header)
		return payload, true, err
	}
	if header := r.Header.Get(HeaderPaymentV1); header != "" {
		payload, err := DecodePaymentHeader(header)
		if err == nil {
			payload.X402Version = x402.ProtocolVersionV1
		}
		return payload, true, err
	}
	return x402.PaymentPayload{}, false, nil
}

// EncodePaymentRequiredHeader encodes payment requirements as base64
func EncodePaymentRequiredHeader(required x402.PaymentRequired) (string, error) {
	data, err := json.Marshal(required)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payment required: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// decodePaymentRequiredHeader returns the decoded JSON of a PAYMENT-REQUIRED value
func decodePaymentRequiredHeader(header string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(header)
	if err != nil {
		return nil, fmt.Errorf("invalid base64 encoding: %w", err)
	}
	return data, nil
}

// EncodePaymentResponseHeader encodes a settlement response as base64
func EncodePaymentResponseHeader(response x402.SettleResponse) (string, error) {
	data, err := json.Marshal(response)
	if err != nil {
		return "", fmt.Errorf("failed to marshal settle response: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// decodePaymentResponseHeader decodes a base64 payment response header
func decodePaymentResponseHeader(header string) (x402.SettleResponse, error) {
	data, err := base64.StdEncoding.DecodeString(header)
	if err != nil {
		return x402.SettleResponse{}, fmt.Errorf("invalid base64 encoding: %w", err)
	}

	var response x402.SettleResponse
	if err := json.Unmarshal(data, &response); err != nil {
		return x402.SettleResponse{}, fmt.Errorf("invalid settle response JSON: %w", err)
	}

	return response, nil
}

// GetPaymentSettleResponse extracts the settlement from response headers.
// It returns false when the server sent none.
func GetPaymentSettleResponse(headers http.Header) (*x402.SettleResponse, bool, error) {
	header := headers.Get(HeaderPaymentResponse)
	if header == "" {
		header = headers.Get(HeaderPaymentResponseV1)
	}
	if header == "" {
		return nil, false, nil
	}

	response, err := decodePaymentResponseHeader(header)
	if err != nil {
		return nil, true, err
	}
	return &response, true, nil
}
