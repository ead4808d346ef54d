package sink

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/godamri/helix-audit/audit"
)

const DefaultStream = "audit:events"

// RedisSink appends events to a Redis stream. A positive maxLen trims the
// stream approximately on every append.
type RedisSink struct {
	client redis.UniversalClient
	stream string
	maxLen int64
}

func NewRedisSink(client redis.UniversalClient, stream string, maxLen int64) *RedisSink {
	if stream == "" {
		stream = DefaultStream
	}
	return &RedisSink{client: client, stream: stream, maxLen: maxLen}
}

func (s *RedisSink) Write(ctx context.Context, event audit.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("sink/redis: marshal failed: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: s.stream,
		Values: map[string]any{
			"event_id":  event.ID(),
			"operation": event.Operation().String(),
			"outcome":   outcome(event),
			"event":     payload,
		},
	}
	if s.maxLen > 0 {
		args.MaxLen = s.maxLen
		args.Approx = true
	}

	if err := s.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("sink/redis: xadd %s: %w", s.stream, err)
	}
	return nil
}

func (s *RedisSink) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisSink) Close() error {
	return s.client.Close()
}
