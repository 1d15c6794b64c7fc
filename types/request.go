package types

import "time"

// Mention is an inbound public post addressed to the bot.
type Mention struct {
	PostID    string
	UserID    string
	Username  string
	Text      string
	CreatedAt time.Time
}

// StoredRequest is the accepted request record, keyed by the id of the
// originating post. The payment is embedded at creation and updated in
// place as its status changes.
type StoredRequest struct {
	CorrelationID string          `json:"correlation_id"`
	UserID        string          `json:"user_id"`
	Prompt        string          `json:"prompt"`
	Payment       *PaymentRequest `json:"payment"`
	CreatedAt     time.Time       `json:"created_at"`
}
