package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"
)

const DefaultShutdownTimeout = 10 * time.Second

type closer struct {
	name string
	fn   func(ctx context.Context) error
}

// Runner encapsulates the process lifecycle: it cancels on SIGTERM/SIGINT
// and runs the registered closers afterwards.
type Runner struct {
	Logger          *slog.Logger
	ShutdownTimeout time.Duration

	closers []closer
}

func NewRunner(logger *slog.Logger) *Runner {
	return &Runner{Logger: logger, ShutdownTimeout: DefaultShutdownTimeout}
}

// OnShutdown registers fn to run after the main function returns. Closers
// run in reverse registration order, sharing one shutdown deadline.
func (r *Runner) OnShutdown(name string, fn func(ctx context.Context) error) {
	r.closers = append(r.closers, closer{name: name, fn: fn})
}

// Run executes fn with a context that is cancelled on SIGTERM/SIGINT. fn
// should block until that context is done.
func (r *Runner) Run(fn func(ctx context.Context) error) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return r.run(ctx, fn)
}

func (r *Runner) run(ctx context.Context, fn func(ctx context.Context) error) error {
	r.Logger.Info("Service starting")

	runErr := fn(ctx)
	if runErr != nil {
		r.Logger.Error("Service stopped with error", "error", runErr)
	} else {
		r.Logger.Info("Shutdown signal received. Cleaning up")
	}

	timeout := r.ShutdownTimeout
	if timeout <= 0 {
		timeout = DefaultShutdownTimeout
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	closeErr := r.shutdown(shutdownCtx)
	r.Logger.Info("Service shutdown complete")
	return errors.Join(runErr, closeErr)
}

func (r *Runner) shutdown(ctx context.Context) error {
	var errs error
	for i := len(r.closers) - 1; i >= 0; i-- {
		c := r.closers[i]
		done := make(chan error, 1)
		go func() { done <- c.fn(ctx) }()

		select {
		case err := <-done:
			if err != nil {
				r.Logger.Error("Shutdown step failed", "step", c.name, "error", err)
				errs = errors.Join(errs, fmt.Errorf("%s: %w", c.name, err))
			}
		case <-ctx.Done():
			r.Logger.Error("Shutdown step timed out", "step", c.name)
			return errors.Join(errs, fmt.Errorf("%s: %w", c.name, ctx.Err()))
		}
	}
	return errs
}
