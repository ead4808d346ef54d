package sink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/godamri/helix-audit/audit"
	"github.com/godamri/helix-audit/cache"
	"github.com/godamri/helix-audit/database"
	"github.com/godamri/helix-audit/messaging"
)

// ErrOverflowRequired is returned for async sinks configured without an
// overflow policy.
var ErrOverflowRequired = errors.New("async sink needs an explicit overflow policy (block or drop)")

// Options carries the process-wide dependencies sinks are built with.
type Options struct {
	Logger      *slog.Logger
	Metrics     *audit.Metrics
	ServiceName string
}

// New opens the sink described by cfg. Sinks with Mode async are wrapped in
// an AsyncWriter.
func New(ctx context.Context, cfg audit.SinkConfig, opts Options) (audit.Sink, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.Mode == audit.ModeAsync && cfg.Overflow == "" {
		return nil, fmt.Errorf("sink %q: %w", cfg.Name, ErrOverflowRequired)
	}

	s, err := open(ctx, cfg, logger, opts.ServiceName)
	if err != nil {
		return nil, fmt.Errorf("sink %q: %w", cfg.Name, err)
	}

	if cfg.Mode == audit.ModeAsync {
		return audit.NewAsyncWriter(cfg.Name, s, audit.AsyncConfig{
			BufferSize:     cfg.BufferSize,
			Overflow:       cfg.Overflow,
			EnqueueTimeout: cfg.EnqueueTimeout,
		}, logger, opts.Metrics), nil
	}
	return s, nil
}

func open(ctx context.Context, cfg audit.SinkConfig, logger *slog.Logger, service string) (audit.Sink, error) {
	switch cfg.Type {
	case "console":
		return audit.NewWriterSink(nil), nil
	case "file":
		return audit.NewFileSink(cfg.Path)
	case "noop":
		return audit.NoopSink{}, nil
	case "kafka":
		return DialKafka(cfg.Brokers, cfg.Topic, logger)
	case "kafka_sync":
		p, err := messaging.NewProducer(ctx, messaging.Config{Brokers: cfg.Brokers, ClientID: service}, logger)
		if err != nil {
			return nil, err
		}
		return NewFranzSink(p, cfg.Topic), nil
	case "redis":
		rdb, err := cache.NewRedis(ctx, cache.Config{Addr: cfg.Addr})
		if err != nil {
			return nil, err
		}
		return NewRedisSink(rdb, cfg.Stream, cfg.MaxLen), nil
	case "postgres", "sqlite":
		driver := database.DriverPostgres
		if cfg.Type == "sqlite" {
			driver = database.DriverSQLite
		}
		db, err := database.Open(ctx, database.Config{
			Driver:       driver,
			DSN:          cfg.DSN,
			MaxOpenConns: 10,
			MaxIdleConns: 2,
		}, service)
		if err != nil {
			return nil, err
		}
		s, err := NewSQLSink(ctx, db, driver, cfg.Table)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown sink type %q", cfg.Type)
	}
}

// NewDispatcher opens every configured sink. If any sink fails to open, the
// ones already opened are closed and the error is returned.
func NewDispatcher(ctx context.Context, cfg audit.Config, opts Options) (*audit.Dispatcher, error) {
	dopts := []audit.DispatcherOption{audit.WithMetrics(opts.Metrics)}
	var opened []audit.Sink

	for _, sc := range cfg.Sinks {
		s, err := New(ctx, sc, opts)
		if err != nil {
			var cerr error
			for _, o := range opened {
				cerr = errors.Join(cerr, o.Close())
			}
			return nil, errors.Join(err, cerr)
		}
		opened = append(opened, s)
		dopts = append(dopts, audit.WithSink(sc.Name, s))
	}

	return audit.NewDispatcher(opts.Logger, dopts...), nil
}

// NewAuditor builds the capture core from cfg. It returns a nil Auditor,
// which audits nothing, when capture is disabled.
func NewAuditor(ctx context.Context, cfg audit.Config, opts Options) (*audit.Auditor, error) {
	if !cfg.Enabled {
		if opts.Logger != nil {
			opts.Logger.Warn("Audit capture disabled")
		}
		return nil, nil
	}

	d, err := NewDispatcher(ctx, cfg, opts)
	if err != nil {
		return nil, err
	}

	b := audit.NewBuilder(audit.WithCapture(cfg.CaptureArguments, cfg.CaptureResults))
	return audit.NewAuditor(b, d, opts.Logger), nil
}
