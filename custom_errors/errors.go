package custom_errors

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned for an unknown order id, correlation id or job id.
	ErrNotFound = errors.New("not found")

	// ErrBusy is returned when a job invocation overlaps an in-flight run.
	ErrBusy = errors.New("already running")

	// ErrExpired marks a payment past its verification window.
	ErrExpired = errors.New("payment expired")

	// ErrVerificationFailed marks a negative on-chain verification result.
	ErrVerificationFailed = errors.New("verification failed")

	// ErrConditionNotMet is returned by conditional retries whose result
	// never satisfied the predicate within the attempt budget.
	ErrConditionNotMet = errors.New("condition not met")
)

// TransportError wraps a failure of an external capability (chain RPC,
// durable storage, social platform). It is distinct from a negative
// verification result.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error in %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func NewTransportError(op string, err error) *TransportError {
	return &TransportError{Op: op, Err: err}
}
