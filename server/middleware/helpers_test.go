package middleware

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/godamri/helix-audit/audit"
)

type memorySink struct {
	mu     sync.Mutex
	events []audit.Event
}

func (s *memorySink) Write(_ context.Context, e audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *memorySink) Close() error { return nil }

func (s *memorySink) Events() []audit.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]audit.Event(nil), s.events...)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newMemoryAuditor() (*audit.Auditor, *memorySink) {
	sink := &memorySink{}
	logger := quietLogger()
	d := audit.NewDispatcher(logger, audit.WithSink("memory", sink))
	return audit.NewAuditor(audit.NewBuilder(), d, logger), sink
}
