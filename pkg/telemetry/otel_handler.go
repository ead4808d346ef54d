package telemetry

import (
	"context"
	"errors"
	"log/slog"

	"github.com/godamri/helix-audit/pkg/contextx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// OTelHandler wraps a slog.Handler to stamp correlation IDs on every record
// and mirror WARN and ERROR records onto the active span.
type OTelHandler struct {
	slog.Handler
}

func NewOTelHandler(h slog.Handler) *OTelHandler {
	return &OTelHandler{Handler: h}
}

func (h *OTelHandler) Handle(ctx context.Context, r slog.Record) error {
	if ctx == nil {
		return h.Handler.Handle(ctx, r)
	}

	span := trace.SpanFromContext(ctx)
	sc := span.SpanContext()

	switch {
	case sc.HasTraceID():
		r.AddAttrs(slog.String("trace_id", sc.TraceID().String()))
		if sc.HasSpanID() {
			r.AddAttrs(slog.String("span_id", sc.SpanID().String()))
		}
	default:
		// No span: fall back to the correlation ID set by middleware.
		if id := contextx.GetTraceID(ctx); id != contextx.UntriagedTraceID {
			r.AddAttrs(slog.String("trace_id", id))
		}
	}
	if reqID := contextx.GetRequestID(ctx); reqID != "" {
		r.AddAttrs(slog.String("request_id", reqID))
	}

	if span.IsRecording() && r.Level >= slog.LevelWarn {
		enrichSpan(span, r)
	}

	return h.Handler.Handle(ctx, r)
}

// enrichSpan copies the record's attributes onto the span. ERROR marks the
// span failed; WARN adds an event.
func enrichSpan(span trace.Span, r slog.Record) {
	attrs := make([]attribute.KeyValue, 0, r.NumAttrs())

	var errFound error
	r.Attrs(func(a slog.Attr) bool {
		attrs = append(attrs, toAttribute(a))
		if a.Key == "error" && a.Value.Kind() == slog.KindAny {
			if e, ok := a.Value.Any().(error); ok {
				errFound = e
			}
		}
		return true
	})

	if r.Level >= slog.LevelError {
		if errFound == nil {
			errFound = errors.New(r.Message)
		}
		span.RecordError(errFound, trace.WithAttributes(attrs...))
		span.SetStatus(codes.Error, r.Message)
		return
	}

	span.AddEvent("log_warning", trace.WithAttributes(
		append(attrs, attribute.String("message", r.Message))...,
	))
}

func toAttribute(a slog.Attr) attribute.KeyValue {
	switch a.Value.Kind() {
	case slog.KindString:
		return attribute.String(a.Key, a.Value.String())
	case slog.KindInt64:
		return attribute.Int64(a.Key, a.Value.Int64())
	case slog.KindFloat64:
		return attribute.Float64(a.Key, a.Value.Float64())
	case slog.KindBool:
		return attribute.Bool(a.Key, a.Value.Bool())
	default:
		return attribute.String(a.Key, a.Value.String())
	}
}

func (h *OTelHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &OTelHandler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h *OTelHandler) WithGroup(name string) slog.Handler {
	return &OTelHandler{Handler: h.Handler.WithGroup(name)}
}
