package sink

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/godamri/helix-audit/audit"
	"github.com/godamri/helix-audit/messaging"
)

// Publisher is the synchronous producer FranzSink writes through;
// *messaging.Producer satisfies it.
type Publisher interface {
	Publish(ctx context.Context, msg messaging.Message) error
	Ping(ctx context.Context) error
	Close() error
}

var _ Publisher = (*messaging.Producer)(nil)

// FranzSink publishes each event and waits for the broker acknowledgement,
// so a failed write surfaces as a sink error for that event.
type FranzSink struct {
	publisher Publisher
	topic     string
}

func NewFranzSink(p Publisher, topic string) *FranzSink {
	if topic == "" {
		topic = DefaultTopic
	}
	return &FranzSink{publisher: p, topic: topic}
}

func (s *FranzSink) Write(ctx context.Context, event audit.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("sink/franz: marshal failed: %w", err)
	}
	return s.publisher.Publish(ctx, messaging.Message{
		Topic: s.topic,
		Key:   partitionKey(event),
		Value: payload,
		Headers: map[string]string{
			"event_id": event.ID(),
			"outcome":  outcome(event),
		},
	})
}

func (s *FranzSink) Ping(ctx context.Context) error { return s.publisher.Ping(ctx) }
func (s *FranzSink) Close() error                   { return s.publisher.Close() }
