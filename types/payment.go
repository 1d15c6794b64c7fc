package types

import (
	"time"

	"github.com/minstrelbot/minstrel/internal/state"
	"github.com/shopspring/decimal"
)

// PaymentRequest tracks one payment through the verification state machine.
// OrderID is immutable once assigned; Status changes only through the
// ledger's transitions.
type PaymentRequest struct {
	OrderID              string              `json:"order_id"`
	UserID               string              `json:"user_id"`
	CorrelationID        string              `json:"correlation_id"`
	Amount               decimal.Decimal     `json:"amount"`
	DestinationAddresses map[string]string   `json:"destination_addresses"`
	Status               state.PaymentStatus `json:"status"`
	CreatedAt            time.Time           `json:"created_at"`
	VerificationAttempts int                 `json:"verification_attempts"`
	LastError            string              `json:"last_error,omitempty"`
	CompletedAt          *time.Time          `json:"completed_at,omitempty"`
}

func (p *PaymentRequest) IsPending() bool {
	return p.Status == state.StatusPending
}

// Clone returns a deep copy detached from the live instance. Callers must
// hold whatever lock guards p while cloning.
func (p *PaymentRequest) Clone() *PaymentRequest {
	c := *p
	if p.DestinationAddresses != nil {
		c.DestinationAddresses = make(map[string]string, len(p.DestinationAddresses))
		for chain, addr := range p.DestinationAddresses {
			c.DestinationAddresses[chain] = addr
		}
	}
	if p.CompletedAt != nil {
		t := *p.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}
