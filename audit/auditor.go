package audit

import (
	"context"
	"log/slog"
	"time"
)

// Auditor is the capture-core handle: one Builder and one Dispatcher. Build it
// once at process start and pass it to every call site that audits; a nil
// *Auditor disables capture.
type Auditor struct {
	builder    *Builder
	dispatcher *Dispatcher
	logger     *slog.Logger
}

func NewAuditor(builder *Builder, dispatcher *Dispatcher, logger *slog.Logger) *Auditor {
	if builder == nil {
		builder = NewBuilder()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Auditor{
		builder:    builder,
		dispatcher: dispatcher,
		logger:     logger.With("component", "audit"),
	}
}

// Builder returns the event builder, or nil for a nil Auditor.
func (a *Auditor) Builder() *Builder {
	if a == nil {
		return nil
	}
	return a.builder
}

// Dispatcher returns the sink dispatcher, or nil for a nil Auditor.
func (a *Auditor) Dispatcher() *Dispatcher {
	if a == nil {
		return nil
	}
	return a.dispatcher
}

// Record builds an event for a call that has already completed and dispatches
// it. The only error it returns is a *ResolutionError.
func (a *Auditor) Record(ctx context.Context, call Call, result any, failure error, elapsed time.Duration) error {
	if a == nil {
		return nil
	}
	r, err := a.builder.resolve(call.Declared, call.Target)
	if err != nil {
		return err
	}
	a.emit(ctx, r, call.Args, result, failure, elapsed)
	return nil
}

func (a *Auditor) emit(ctx context.Context, r resolution, args []any, result any, failure error, elapsed time.Duration) {
	if ctx == nil {
		ctx = context.Background()
	}
	// The audited call is over; its cancellation must not cut dispatch short.
	ctx = context.WithoutCancel(ctx)
	event := a.builder.assemble(ctx, r, args, result, failure, elapsed)
	a.dispatcher.Dispatch(ctx, event)
}

// Close flushes and closes every sink.
func (a *Auditor) Close() error {
	if a == nil {
		return nil
	}
	a.logger.Info("Flushing audit sinks")
	return a.dispatcher.Close()
}

type auditorKey struct{}

// NewContext returns a copy of ctx carrying a.
func NewContext(ctx context.Context, a *Auditor) context.Context {
	return context.WithValue(ctx, auditorKey{}, a)
}

// FromContext returns the Auditor carried by ctx, or nil.
func FromContext(ctx context.Context) *Auditor {
	if ctx == nil {
		return nil
	}
	a, _ := ctx.Value(auditorKey{}).(*Auditor)
	return a
}
