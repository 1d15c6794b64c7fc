package broker

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/minstrelbot/minstrel/types"
)

// Publisher delivers lifecycle events to an external broker so other
// systems can observe payments and jobs without polling the admin API.
type Publisher interface {
	Publish(ctx context.Context, event types.Event) error
	Close() error
}

// NewEvent stamps a payload with an id and timestamp.
func NewEvent(eventType types.EventType, payload map[string]string) types.Event {
	return types.Event{
		ID:      uuid.NewString(),
		Type:    eventType,
		At:      time.Now(),
		Payload: payload,
	}
}

// Noop is the default publisher when no broker is configured.
type Noop struct{}

func (Noop) Publish(ctx context.Context, event types.Event) error { return nil }

func (Noop) Close() error { return nil }
