package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

type Config struct {
	Brokers      []string      `envconfig:"KAFKA_BROKERS" required:"true" yaml:"brokers" toml:"brokers"`
	ClientID     string        `envconfig:"KAFKA_CLIENT_ID" default:"helix-audit" yaml:"client_id" toml:"client_id"`
	RetryTimeout time.Duration `envconfig:"KAFKA_RETRY_TIMEOUT" default:"10s" yaml:"retry_timeout" toml:"retry_timeout"`
}

// Message is one record to publish. Headers are added after the trace
// propagation headers.
type Message struct {
	Topic   string
	Key     string
	Value   []byte
	Headers map[string]string
}

// Producer is a synchronous franz-go producer. Publish returns only after
// every in-sync replica has the record.
type Producer struct {
	client *kgo.Client
	logger *slog.Logger
}

func NewProducer(ctx context.Context, cfg Config, logger *slog.Logger) (*Producer, error) {
	if cfg.RetryTimeout <= 0 {
		cfg.RetryTimeout = 10 * time.Second
	}
	opts := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.RetryTimeout(cfg.RetryTimeout),
	}
	if cfg.ClientID != "" {
		opts = append(opts, kgo.ClientID(cfg.ClientID))
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("kafka: failed to create franz-go client: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx); err != nil {
		client.Close()
		return nil, fmt.Errorf("kafka: failed to ping brokers: %w", err)
	}

	return &Producer{
		client: client,
		logger: logger.With("component", "kafka_producer"),
	}, nil
}

// Publish sends msg and blocks until it is acknowledged.
func (p *Producer) Publish(ctx context.Context, msg Message) error {
	record := &kgo.Record{
		Topic: msg.Topic,
		Key:   []byte(msg.Key),
		Value: msg.Value,
	}
	record.Headers = headers(ctx, msg.Headers)

	res := p.client.ProduceSync(ctx, record)
	if err := res.FirstErr(); err != nil {
		p.logger.ErrorContext(ctx, "Failed to publish message",
			"topic", msg.Topic,
			"key", msg.Key,
			"error", err,
		)
		return fmt.Errorf("kafka: publish to %s failed: %w", msg.Topic, err)
	}

	r := res[0].Record
	p.logger.DebugContext(ctx, "Message published", "topic", r.Topic, "partition", r.Partition, "offset", r.Offset)
	return nil
}

func headers(ctx context.Context, extra map[string]string) []kgo.RecordHeader {
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)

	out := make([]kgo.RecordHeader, 0, len(carrier)+len(extra))
	for k, v := range carrier {
		out = append(out, kgo.RecordHeader{Key: k, Value: []byte(v)})
	}
	for k, v := range extra {
		out = append(out, kgo.RecordHeader{Key: k, Value: []byte(v)})
	}
	return out
}

func (p *Producer) Ping(ctx context.Context) error {
	return p.client.Ping(ctx)
}

// Close flushes buffered records and closes the client.
func (p *Producer) Close() error {
	p.logger.Info("Closing Kafka producer")
	p.client.Close()
	return nil
}
