package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/metadata"

	"github.com/godamri/helix-audit/pkg/contextx"
)

func TestTraceIDMiddleware_PropagatesInboundIDs(t *testing.T) {
	var gotTrace, gotReq string
	h := TraceIDMiddleware(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		gotTrace = contextx.GetTraceID(r.Context())
		gotReq = contextx.GetRequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodPost, "/accounts", nil)
	req.Header.Set(TraceHeader, "4bf92f3577b34da6a3ce929d0e0e4736")
	req.Header.Set(RequestHeader, "req-42")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", gotTrace)
	assert.Equal(t, "req-42", gotReq)
	assert.Equal(t, "req-42", rec.Header().Get(RequestHeader))
}

func TestTraceIDMiddleware_GeneratesMissingIDs(t *testing.T) {
	h := TraceIDMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))

	assert.Len(t, rec.Header().Get(TraceHeader), 32)
	assert.NotEmpty(t, rec.Header().Get(RequestHeader))
}

func TestGRPCTraceInterceptor_ReadsMetadata(t *testing.T) {
	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs(
		TraceHeader, "trace-from-peer",
	))

	var got context.Context
	_, err := GRPCTraceInterceptor()(ctx, nil, checkInfo, func(ctx context.Context, _ any) (any, error) {
		got = ctx
		return nil, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "trace-from-peer", contextx.GetTraceID(got))
	assert.NotEmpty(t, contextx.GetRequestID(got))
}
