package audit

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

type Account interface {
	Withdraw(amount int) (bool, error)
	Balance() int
}

type CheckingAccount struct {
	mu      sync.Mutex
	balance int
}

type InsufficientFundsError struct {
	Requested int
	Available int
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: requested %d, available %d", e.Requested, e.Available)
}

func (a *CheckingAccount) Withdraw(amount int) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if amount > a.balance {
		return false, &InsufficientFundsError{Requested: amount, Available: a.balance}
	}
	a.balance -= amount
	return true, nil
}

func (a *CheckingAccount) Balance() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.balance
}

// Lender declares Withdraw with a different parameter type than CheckingAccount.
type Lender interface {
	Withdraw(amount int64) (bool, error)
}

type journal interface {
	record(entry string)
}

type Logbook interface {
	Append(format string, args ...any) int
}

// frozenAccount implements Account only through its pointer.
type frozenAccount struct{}

func (*frozenAccount) Withdraw(int) (bool, error) { return false, nil }
func (*frozenAccount) Balance() int               { return 0 }

type paperLog struct{}

func (paperLog) Append(format string, args ...any) int { return len(args) }

func withdrawAudited(ctx context.Context, a *Auditor, acct Account, amount int) (bool, error) {
	return Intercept(ctx, a, On[Account](acct, "Withdraw", amount), func(context.Context) (bool, error) {
		return acct.Withdraw(amount)
	})
}

type captureSink struct {
	mu     sync.Mutex
	events []Event
	closed bool
}

func (s *captureSink) Write(_ context.Context, e Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *captureSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *captureSink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

type errSink struct{}

var errSinkDown = errors.New("sink down")

func (errSink) Write(context.Context, Event) error { return errSinkDown }
func (errSink) Close() error                       { return nil }

type panicSink struct{}

func (panicSink) Write(context.Context, Event) error { panic("sink exploded") }
func (panicSink) Close() error                       { return nil }

// gateSink blocks every write until gate is closed and signals each start.
type gateSink struct {
	captureSink
	started chan struct{}
	gate    chan struct{}
}

func newGateSink() *gateSink {
	return &gateSink{
		started: make(chan struct{}, 64),
		gate:    make(chan struct{}),
	}
}

func (s *gateSink) Write(ctx context.Context, e Event) error {
	s.started <- struct{}{}
	<-s.gate
	return s.captureSink.Write(ctx, e)
}

// syncBuffer is a goroutine-safe bytes.Buffer for log capture.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newTestLogger() (*slog.Logger, *syncBuffer) {
	buf := &syncBuffer{}
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})), buf
}

func newTestAuditor(sinks ...Sink) (*Auditor, *syncBuffer) {
	logger, buf := newTestLogger()
	opts := make([]DispatcherOption, 0, len(sinks))
	for i, s := range sinks {
		opts = append(opts, WithSink(fmt.Sprintf("sink-%d", i), s))
	}
	return NewAuditor(NewBuilder(), NewDispatcher(logger, opts...), logger), buf
}
