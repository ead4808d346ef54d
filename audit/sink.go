package audit

//go:generate mockgen -source=sink.go -destination=mocks/sink_mock.go -package=mocks

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
)

// Sink defines where audit events go (Console, File, Kafka, Redis, SQL).
// Write must not retain ctx beyond the call.
type Sink interface {
	Write(ctx context.Context, event Event) error
	Close() error
}

// Pinger is implemented by sinks backed by a remote system.
type Pinger interface {
	Ping(ctx context.Context) error
}

// NoopSink is for dev/testing.
type NoopSink struct{}

func (NoopSink) Write(context.Context, Event) error { return nil }
func (NoopSink) Close() error                       { return nil }

// WriterSink writes one JSON object per line.
type WriterSink struct {
	mu      sync.Mutex
	writer  io.Writer
	encoder *json.Encoder
	closer  io.Closer
}

// NewWriterSink writes to w, or stdout when w is nil. w is not closed.
func NewWriterSink(w io.Writer) *WriterSink {
	if w == nil {
		w = os.Stdout
	}
	return &WriterSink{writer: w, encoder: json.NewEncoder(w)}
}

// NewFileSink appends to the file at path, creating it if needed.
func NewFileSink(path string) (*WriterSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
	if err != nil {
		return nil, fmt.Errorf("audit: open file sink %s: %w", path, err)
	}
	s := NewWriterSink(f)
	s.closer = f
	return s, nil
}

func (s *WriterSink) Write(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.encoder.Encode(event); err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	return nil
}

func (s *WriterSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f, ok := s.writer.(interface{ Sync() error }); ok && s.closer != nil {
		_ = f.Sync()
	}
	if s.closer != nil {
		err := s.closer.Close()
		s.closer = nil
		return err
	}
	return nil
}
