package cache

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "helix-audit/cache/redis"

type Config struct {
	Addr        string        `envconfig:"REDIS_ADDR" required:"true" yaml:"addr" toml:"addr"`
	Password    string        `envconfig:"REDIS_PASSWORD" default:"" yaml:"password" toml:"password"`
	DB          int           `envconfig:"REDIS_DB" default:"0" yaml:"db" toml:"db"`
	DialTimeout time.Duration `envconfig:"REDIS_DIAL_TIMEOUT" default:"3s" yaml:"dial_timeout" toml:"dial_timeout"`
}

// NewRedis initializes a traced Redis client and performs a fail-fast ping.
func NewRedis(ctx context.Context, cfg Config) (*redis.Client, error) {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 3 * time.Second
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: cfg.DialTimeout,
	})
	rdb.AddHook(newTracingHook())

	pingCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("cache: failed to connect to redis at %s: %w", cfg.Addr, err)
	}

	return rdb, nil
}

// tracingHook opens a client span per command, only when the caller is
// already inside a recording span.
type tracingHook struct {
	tracer trace.Tracer
}

func newTracingHook() *tracingHook {
	return &tracingHook{tracer: otel.Tracer(tracerName)}
}

func (h *tracingHook) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		return next(ctx, network, addr)
	}
}

func (h *tracingHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		if !trace.SpanFromContext(ctx).IsRecording() {
			return next(ctx, cmd)
		}

		ctx, span := h.start(ctx, "redis.command", cmd.Name())
		defer span.End()

		err := next(ctx, cmd)
		recordErr(span, err)
		return err
	}
}

func (h *tracingHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		if !trace.SpanFromContext(ctx).IsRecording() {
			return next(ctx, cmds)
		}

		ctx, span := h.start(ctx, "redis.pipeline", "pipeline",
			attribute.Int("db.redis.pipeline_length", len(cmds)),
		)
		defer span.End()

		err := next(ctx, cmds)
		recordErr(span, err)
		return err
	}
}

// Statements are not recorded: audit payloads travel through this client.
func (h *tracingHook) start(ctx context.Context, name, op string, extra ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs := append([]attribute.KeyValue{
		attribute.String("db.system", "redis"),
		attribute.String("db.operation", op),
	}, extra...)
	return h.tracer.Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
	)
}

func recordErr(span trace.Span, err error) {
	if err != nil && !errors.Is(err, redis.Nil) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}
