package types

import "time"

type EventType string

const (
	EventPaymentCreated   EventType = "payment.created"
	EventPaymentCompleted EventType = "payment.completed"
	EventPaymentFailed    EventType = "payment.failed"
	EventPaymentRetried   EventType = "payment.retried"
	EventJobStarted       EventType = "job.started"
	EventJobCompleted     EventType = "job.completed"
	EventJobFailed        EventType = "job.failed"
)

// Event is published to the outbound broker (RabbitMQ/Kafka) when event
// publishing is enabled. Payload keys depend on the event type.
type Event struct {
	ID      string            `json:"id"`
	Type    EventType         `json:"type"`
	At      time.Time         `json:"at"`
	Payload map[string]string `json:"payload,omitempty"`
}
