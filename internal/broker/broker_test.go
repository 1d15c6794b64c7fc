package broker

import (
	"context"
	"testing"

	"github.com/minstrelbot/minstrel/types"
	"github.com/stretchr/testify/assert"
)

func TestNewEvent(t *testing.T) {
	e := NewEvent(types.EventPaymentCreated, map[string]string{"order_id": "PAY-1"})

	assert.NotEmpty(t, e.ID)
	assert.Equal(t, types.EventPaymentCreated, e.Type)
	assert.False(t, e.At.IsZero())
	assert.Equal(t, "PAY-1", e.Payload["order_id"])

	other := NewEvent(types.EventPaymentCreated, nil)
	assert.NotEqual(t, e.ID, other.ID)
}

func TestNoopPublisher(t *testing.T) {
	var p Publisher = Noop{}
	assert.NoError(t, p.Publish(context.Background(), NewEvent(types.EventJobStarted, nil)))
	assert.NoError(t, p.Close())
}
