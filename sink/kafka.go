package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/IBM/sarama"

	"github.com/godamri/helix-audit/audit"
)

const DefaultTopic = "system.audit.events"

// KafkaSink publishes events through a sarama AsyncProducer. Delivery
// failures arrive asynchronously and are reported on the diagnostic logger.
type KafkaSink struct {
	producer sarama.AsyncProducer
	client   sarama.Client // nil when the producer was supplied by the caller
	topic    string
	logger   *slog.Logger
	drained  chan struct{}
}

// NewKafkaSink takes ownership of producer. Its Errors channel must be
// enabled.
func NewKafkaSink(producer sarama.AsyncProducer, topic string, logger *slog.Logger) *KafkaSink {
	if topic == "" {
		topic = DefaultTopic
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &KafkaSink{
		producer: producer,
		topic:    topic,
		logger:   logger.With("component", "audit", "sink_type", "kafka"),
		drained:  make(chan struct{}),
	}
	go s.drainErrors()
	return s
}

// DialKafka connects to brokers and returns a KafkaSink owning the client.
func DialKafka(brokers []string, topic string, logger *slog.Logger) (*KafkaSink, error) {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = false
	config.Producer.Return.Errors = true
	config.Producer.RequiredAcks = sarama.WaitForLocal
	config.Producer.Flush.Frequency = 500 * time.Millisecond
	config.Producer.Flush.Messages = 100

	client, err := sarama.NewClient(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("sink/kafka: failed to connect to %v: %w", brokers, err)
	}
	producer, err := sarama.NewAsyncProducerFromClient(client)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("sink/kafka: failed to start producer: %w", err)
	}

	s := NewKafkaSink(producer, topic, logger)
	s.client = client
	return s, nil
}

func (s *KafkaSink) Write(ctx context.Context, event audit.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("sink/kafka: marshal failed: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: s.topic,
		Key:   sarama.StringEncoder(partitionKey(event)),
		Value: sarama.ByteEncoder(payload),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event_id"), Value: []byte(event.ID())},
			{Key: []byte("outcome"), Value: []byte(outcome(event))},
		},
		Metadata: event.ID(),
	}

	select {
	case s.producer.Input() <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *KafkaSink) drainErrors() {
	defer close(s.drained)
	for perr := range s.producer.Errors() {
		eventID, _ := perr.Msg.Metadata.(string)
		s.logger.Error("Failed to deliver audit event to kafka",
			"topic", s.topic,
			"event_id", eventID,
			"error", perr.Err,
		)
	}
}

// Ping refreshes topic metadata. Sinks built over a caller-supplied
// producer have no client to ping and always report healthy.
func (s *KafkaSink) Ping(context.Context) error {
	if s.client == nil {
		return nil
	}
	if err := s.client.RefreshMetadata(s.topic); err != nil {
		return fmt.Errorf("sink/kafka: %w", err)
	}
	return nil
}

// Close flushes buffered messages and closes the producer.
func (s *KafkaSink) Close() error {
	err := s.producer.Close()
	<-s.drained
	if s.client != nil {
		if cerr := s.client.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

// partitionKey keeps events for one target type on one partition.
func partitionKey(e audit.Event) string {
	if t := e.TargetType(); !t.IsZero() {
		return t.String()
	}
	return e.Operation().Name
}

func outcome(e audit.Event) string {
	if e.Succeeded() {
		return "success"
	}
	return "failure"
}
