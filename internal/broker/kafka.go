package broker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/minstrelbot/minstrel/types"
	kgo "github.com/segmentio/kafka-go"
)

type KafkaPublisher struct {
	writer  *kgo.Writer
	timeout time.Duration
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	w := &kgo.Writer{
		Addr:         kgo.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kgo.LeastBytes{},
		RequiredAcks: kgo.RequireOne,
	}

	return &KafkaPublisher{
		writer:  w,
		timeout: 3 * time.Second,
	}
}

func (p *KafkaPublisher) Publish(ctx context.Context, event types.Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}

	// Bounded write so a down broker cannot stall the caller.
	cctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	return p.writer.WriteMessages(cctx, kgo.Message{
		Key:   []byte(event.Type),
		Value: body,
		Time:  event.At,
	})
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
