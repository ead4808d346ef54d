package audit

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// Dispatcher forwards events to its sinks. The sink list is fixed at
// construction; sinks that are not queue-backed are serialized by a per-sink
// mutex, so Dispatch is safe for concurrent use.
//
// Sink failures never leave the Dispatcher: they are logged on the diagnostic
// logger and counted.
type Dispatcher struct {
	sinks   []*sinkHandle
	logger  *slog.Logger
	metrics *Metrics

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

type sinkHandle struct {
	name  string
	sink  Sink
	queue *AsyncWriter // non-nil when sink is queue-backed
	mu    sync.Mutex
}

type DispatcherOption func(*Dispatcher)

// WithSink adds a named sink. Names label logs and metrics.
func WithSink(name string, s Sink) DispatcherOption {
	return func(d *Dispatcher) {
		if s == nil {
			return
		}
		h := &sinkHandle{name: name, sink: s}
		if q, ok := s.(*AsyncWriter); ok {
			h.queue = q
		}
		d.sinks = append(d.sinks, h)
	}
}

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(m *Metrics) DispatcherOption {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

func NewDispatcher(logger *slog.Logger, opts ...DispatcherOption) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{logger: logger.With("component", "audit")}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch hands event to every sink. It never fails and never panics; ctx
// only bounds enqueue time for block-on-full queues.
func (d *Dispatcher) Dispatch(ctx context.Context, event Event) {
	if d == nil {
		return
	}
	if d.closed.Load() {
		d.logger.Warn("Audit event after shutdown dropped",
			"event_id", event.ID(),
			"operation", event.Operation().String(),
		)
		d.metrics.incDropped("dispatcher", "closed")
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	d.metrics.incDispatched()
	for _, h := range d.sinks {
		if h.queue != nil {
			h.queue.enqueue(ctx, event)
			continue
		}
		d.write(ctx, h, event)
	}
}

func (d *Dispatcher) write(ctx context.Context, h *sinkHandle, event Event) {
	start := time.Now()
	err := func() (err error) {
		defer func() {
			if rec := recover(); rec != nil {
				err = fmt.Errorf("sink panicked: %v", rec)
				d.logger.Error("Audit sink panic recovered",
					"sink", h.name,
					"stack", string(debug.Stack()),
				)
			}
		}()
		h.mu.Lock()
		defer h.mu.Unlock()
		return h.sink.Write(ctx, event)
	}()
	d.metrics.observeWrite(h.name, time.Since(start), err)
	if err != nil {
		reportSinkError(d.logger, &SinkError{Sink: h.name, EventID: event.ID(), Err: err}, event)
	}
}

func reportSinkError(logger *slog.Logger, err *SinkError, event Event) {
	logger.Error("Failed to write audit event",
		"sink", err.Sink,
		"event_id", err.EventID,
		"operation", event.Operation().String(),
		"error", err,
	)
}

// Health pings every sink that implements Pinger.
func (d *Dispatcher) Health(ctx context.Context) map[string]error {
	if d == nil {
		return nil
	}
	out := make(map[string]error, len(d.sinks))
	for _, h := range d.sinks {
		s := h.sink
		if h.queue != nil {
			s = h.queue.next
		}
		if p, ok := s.(Pinger); ok {
			out[h.name] = p.Ping(ctx)
		}
	}
	return out
}

// Close stops accepting events, flushes queue-backed sinks and closes every
// sink. It is safe to call more than once.
func (d *Dispatcher) Close() error {
	if d == nil {
		return nil
	}
	d.closeOnce.Do(func() {
		d.closed.Store(true)

		var g errgroup.Group
		for _, h := range d.sinks {
			g.Go(func() error {
				h.mu.Lock()
				defer h.mu.Unlock()
				if err := h.sink.Close(); err != nil {
					d.logger.Error("Failed to close audit sink", "sink", h.name, "error", err)
					return fmt.Errorf("audit: close sink %q: %w", h.name, err)
				}
				return nil
			})
		}
		d.closeErr = g.Wait()
	})
	return d.closeErr
}
