package middleware

import (
	"context"
	"encoding/hex"
	"net/http"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	"github.com/godamri/helix-audit/pkg/contextx"
)

const (
	TraceHeader   = "X-Trace-Id"
	RequestHeader = "X-Request-Id"
)

// TraceIDMiddleware puts trace and request IDs on the context and echoes them
// in the response headers.
func TraceIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, traceID, reqID := withIDs(r.Context(), r.Header.Get(TraceHeader), r.Header.Get(RequestHeader))

		w.Header().Set(TraceHeader, traceID)
		w.Header().Set(RequestHeader, reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GRPCTraceInterceptor is TraceIDMiddleware for unary gRPC calls, reading the
// IDs from incoming metadata.
func GRPCTraceInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		md, _ := metadata.FromIncomingContext(ctx)
		ctx, traceID, reqID := withIDs(ctx, first(md, TraceHeader), first(md, RequestHeader))
		_ = grpc.SetHeader(ctx, metadata.Pairs(TraceHeader, traceID, RequestHeader, reqID))
		return handler(ctx, req)
	}
}

// withIDs resolves the trace and request IDs. An active OpenTelemetry span
// wins over the inbound trace ID; missing IDs are generated.
func withIDs(ctx context.Context, traceID, reqID string) (context.Context, string, string) {
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		traceID = sc.TraceID().String()
	}
	if traceID == "" {
		uid := uuid.New()
		traceID = hex.EncodeToString(uid[:])
	}
	if reqID == "" {
		reqID = uuid.NewString()
	}

	ctx = contextx.WithTraceID(ctx, traceID)
	ctx = contextx.WithRequestID(ctx, reqID)
	return ctx, traceID, reqID
}

func first(md metadata.MD, key string) string {
	if v := md.Get(key); len(v) > 0 {
		return v[0]
	}
	return ""
}
