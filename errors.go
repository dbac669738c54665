package x402

import (
	"errors"
	"fmt"
)

// PaymentError represents a payment-specific error
type PaymentError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	Err     error                  `json:"-"`
}

func (e *PaymentError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause, if any
func (e *PaymentError) Unwrap() error {
	return e.Err
}

// Is reports whether target is a PaymentError with the same code
func (e *PaymentError) Is(target error) bool {
	t, ok := target.(*PaymentError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Common error codes
const (
	ErrCodeInvalidPayment     = "invalid_payment"
	ErrCodePaymentRequired    = "payment_required"
	ErrCodeInsufficientFunds  = "insufficient_funds"
	ErrCodeNetworkMismatch    = "network_mismatch"
	ErrCodeSchemeMismatch     = "scheme_mismatch"
	ErrCodeSignatureInvalid   = "signature_invalid"
	ErrCodePaymentExpired     = "payment_expired"
	ErrCodeSettlementFailed   = "settlement_failed"
	ErrCodeUnsupportedScheme  = "unsupported_scheme"
	ErrCodeUnsupportedNetwork = "unsupported_network"

	// Panel attempt failures
	ErrCodeWalletNotFound         = "wallet_not_found"
	ErrCodeWalletConnectionFailed = "wallet_connection_failed"
	ErrCodeUnknownToken           = "unknown_token"
	ErrCodePaymentHandler         = "payment_handler_error"
	ErrCodeNetwork                = "network_error"
)

// Sentinel values for errors.Is comparisons. Only the code is compared.
var (
	ErrWalletNotFound = &PaymentError{
		Code:    ErrCodeWalletNotFound,
		Message: "Phantom wallet not installed. Please install it from phantom.app",
	}
	ErrWalletConnectionFailed = &PaymentError{
		Code:    ErrCodeWalletConnectionFailed,
		Message: "Failed to connect to Phantom wallet",
	}
	ErrUnknownToken = &PaymentError{
		Code:    ErrCodeUnknownToken,
		Message: "unknown token",
	}
	ErrPaymentHandler = &PaymentError{
		Code:    ErrCodePaymentHandler,
		Message: "payment handler failed",
	}
	ErrNetwork = &PaymentError{
		Code:    ErrCodeNetwork,
		Message: "network request failed",
	}
)

// NewPaymentError creates a new payment error
func NewPaymentError(code, message string, details map[string]interface{}) *PaymentError {
	return &PaymentError{
		Code:    code,
		Message: message,
		Details: details,
	}
}

// WrapPaymentError creates a payment error carrying an underlying cause
func WrapPaymentError(code, message string, err error) *PaymentError {
	return &PaymentError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// ErrorCode returns the code of the first PaymentError in err's chain,
// or "" when there is none
func ErrorCode(err error) string {
	var paymentErr *PaymentError
	if errors.As(err, &paymentErr) {
		return paymentErr.Code
	}
	return ""
}

// DisplayMessage renders err for end users: the human message of the first
// PaymentError in the chain followed by its cause, without error codes.
func DisplayMessage(err error) string {
	if err == nil {
		return ""
	}
	var paymentErr *PaymentError
	if !errors.As(err, &paymentErr) {
		return err.Error()
	}
	if paymentErr.Err == nil {
		return paymentErr.Message
	}
	return paymentErr.Message + ": " + DisplayMessage(paymentErr.Err)
}
