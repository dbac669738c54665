// Package metrics records payment attempt and settlement counters.
package metrics

import "time"

type Recorder interface {
	IncCounter(name string, labels map[string]string)
	ObserveLatency(name string, duration time.Duration, labels map[string]string)
}

// Event names
const (
	EventAttempt      = "attempt"
	EventPaymentSent  = "payment_sent"
	EventVerified     = "payment_verified"
	EventRejected     = "payment_rejected"
	EventSettled      = "payment_settled"
	EventSettleFailed = "settlement_failed"
	EventReplayed     = "settlement_replayed"
)
