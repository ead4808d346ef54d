package audit

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

const (
	DefaultBufferSize     = 1024
	DefaultEnqueueTimeout = time.Second

	dropLogInterval = 5 * time.Second
)

type AsyncConfig struct {
	BufferSize int
	// Overflow is the full-queue policy. NewAsyncWriter treats an empty value
	// as OverflowDrop; configured sinks must name it explicitly.
	Overflow OverflowPolicy
	// EnqueueTimeout bounds OverflowBlock. Zero means DefaultEnqueueTimeout;
	// blocking is never unbounded.
	EnqueueTimeout time.Duration
}

type queuedEvent struct {
	ctx   context.Context
	event Event
}

// AsyncWriter puts a buffered queue and a single worker goroutine in front of
// a Sink. One worker keeps events in enqueue order.
type AsyncWriter struct {
	name   string
	next   Sink
	events chan queuedEvent
	wg     sync.WaitGroup
	logger *slog.Logger

	metrics *Metrics

	policy         OverflowPolicy
	enqueueTimeout time.Duration

	// mu guards closing events against concurrent sends.
	mu     sync.RWMutex
	closed bool

	dropCount   atomic.Uint64
	lastLogTime time.Time // zero until the first drop report
	dropMu      sync.Mutex
}

func NewAsyncWriter(name string, next Sink, cfg AsyncConfig, logger *slog.Logger, metrics *Metrics) *AsyncWriter {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultBufferSize
	}
	if cfg.Overflow == "" {
		cfg.Overflow = OverflowDrop
	}
	if cfg.EnqueueTimeout <= 0 {
		cfg.EnqueueTimeout = DefaultEnqueueTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	w := &AsyncWriter{
		name:           name,
		next:           next,
		events:         make(chan queuedEvent, cfg.BufferSize),
		logger:         logger.With("component", "audit", "sink", name),
		metrics:        metrics,
		policy:         cfg.Overflow,
		enqueueTimeout: cfg.EnqueueTimeout,
	}

	w.logger.Info("Audit sink queue started",
		"buffer_size", cfg.BufferSize,
		"overflow", string(cfg.Overflow),
		"enqueue_timeout", cfg.EnqueueTimeout,
	)

	w.wg.Add(1)
	go w.worker()

	return w
}

// Write enqueues event. Queue overflow is handled by the configured policy
// and is never reported as an error.
func (w *AsyncWriter) Write(ctx context.Context, event Event) error {
	w.enqueue(ctx, event)
	return nil
}

func (w *AsyncWriter) enqueue(ctx context.Context, event Event) {
	if ctx == nil {
		ctx = context.Background()
	}

	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.closed {
		w.handleDrop(event, "closed")
		return
	}

	item := queuedEvent{ctx: context.WithoutCancel(ctx), event: event}

	if w.policy == OverflowBlock {
		select {
		case w.events <- item:
			w.metrics.setQueueDepth(w.name, len(w.events))
			return
		default:
		}

		timer := time.NewTimer(w.enqueueTimeout)
		defer timer.Stop()
		select {
		case w.events <- item:
			w.metrics.setQueueDepth(w.name, len(w.events))
		case <-ctx.Done():
			w.handleDrop(event, "ctx_cancelled")
		case <-timer.C:
			w.handleDrop(event, "enqueue_timeout")
		}
		return
	}

	select {
	case w.events <- item:
		w.metrics.setQueueDepth(w.name, len(w.events))
	default:
		w.handleDrop(event, "buffer_full")
	}
}

func (w *AsyncWriter) handleDrop(event Event, reason string) {
	w.metrics.incDropped(w.name, reason)
	currentDrops := w.dropCount.Add(1)

	w.dropMu.Lock()
	defer w.dropMu.Unlock()

	if time.Since(w.lastLogTime) >= dropLogInterval {
		w.logger.Warn("Audit events dropped",
			"strategy", string(w.policy),
			"reason", reason,
			"dropped_since_last_report", currentDrops,
			"sample_operation", event.Operation().String(),
		)
		w.dropCount.Store(0)
		w.lastLogTime = time.Now()
	}
}

func (w *AsyncWriter) worker() {
	defer w.wg.Done()

	for item := range w.events {
		w.metrics.setQueueDepth(w.name, len(w.events))
		w.deliver(item)
	}
}

func (w *AsyncWriter) deliver(item queuedEvent) {
	start := time.Now()
	err := func() (err error) {
		defer func() {
			if rec := recover(); rec != nil {
				err = &PanicError{Value: rec}
			}
		}()
		return w.next.Write(item.ctx, item.event)
	}()
	w.metrics.observeWrite(w.name, time.Since(start), err)
	if err != nil {
		reportSinkError(w.logger, &SinkError{Sink: w.name, EventID: item.event.ID(), Err: err}, item.event)
	}
}

// Len reports the number of buffered events.
func (w *AsyncWriter) Len() int {
	return len(w.events)
}

// Close drains the queue into the underlying sink, then closes it.
func (w *AsyncWriter) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	close(w.events)
	w.mu.Unlock()

	w.wg.Wait()
	w.logger.Info("Audit sink queue drained")
	return w.next.Close()
}
