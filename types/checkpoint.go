package types

import "time"

// Checkpoint is a snapshot of in-flight request and payment state, written
// to durable storage so a restart can pick up where the process left off.
type Checkpoint struct {
	Timestamp       time.Time         `json:"timestamp"`
	PendingRequests []*StoredRequest  `json:"pending_requests"`
	PendingPayments []*PaymentRequest `json:"pending_payments"`
}
