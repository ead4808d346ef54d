// Package contextx carries the request-scoped identity and provenance that
// audit events are stamped with.
package contextx

import (
	"context"
)

type key int

const (
	principalKey key = iota // sub (who)
	sessionKey              // jti / sid
	traceKey
	requestKey
	sourceServiceKey
	entryPointKey
	reasonKey
	changeTicketKey
)

// Entry points recorded on audit events.
const (
	EntryHTTP = "http"
	EntryGRPC = "grpc"
	EntryJob  = "job"
)

// UntriagedTraceID marks work that arrived without a trace id.
const UntriagedTraceID = "untriaged"

// Provenance describes how and why a change reached the service. Empty
// fields are left unset on the context.
type Provenance struct {
	SourceService string
	EntryPoint    string
	Reason        string
	ChangeTicket  string
}

func WithProvenance(ctx context.Context, p Provenance) context.Context {
	ctx = with(ctx, sourceServiceKey, p.SourceService)
	ctx = with(ctx, entryPointKey, p.EntryPoint)
	ctx = with(ctx, reasonKey, p.Reason)
	return with(ctx, changeTicketKey, p.ChangeTicket)
}

func GetProvenance(ctx context.Context) Provenance {
	return Provenance{
		SourceService: GetSourceService(ctx),
		EntryPoint:    GetEntryPoint(ctx),
		Reason:        GetAuditReason(ctx),
		ChangeTicket:  GetChangeTicket(ctx),
	}
}

func GetTraceID(ctx context.Context) string { return lookup(ctx, traceKey, UntriagedTraceID) }
func WithTraceID(ctx context.Context, v string) context.Context {
	return with(ctx, traceKey, v)
}

func GetRequestID(ctx context.Context) string { return lookup(ctx, requestKey, "") }
func WithRequestID(ctx context.Context, v string) context.Context {
	return with(ctx, requestKey, v)
}

func GetAuthPrincipalID(ctx context.Context) string { return lookup(ctx, principalKey, "") }
func WithAuthPrincipalID(ctx context.Context, v string) context.Context {
	return with(ctx, principalKey, v)
}

func GetAuthSessionID(ctx context.Context) string { return lookup(ctx, sessionKey, "") }
func WithAuthSessionID(ctx context.Context, v string) context.Context {
	return with(ctx, sessionKey, v)
}

func GetSourceService(ctx context.Context) string { return lookup(ctx, sourceServiceKey, "") }
func GetEntryPoint(ctx context.Context) string    { return lookup(ctx, entryPointKey, "") }
func GetAuditReason(ctx context.Context) string   { return lookup(ctx, reasonKey, "") }
func GetChangeTicket(ctx context.Context) string  { return lookup(ctx, changeTicketKey, "") }

func WithEntryPoint(ctx context.Context, v string) context.Context {
	return with(ctx, entryPointKey, v)
}

func WithAuditReason(ctx context.Context, v string) context.Context {
	return with(ctx, reasonKey, v)
}

// with skips empty values so an outer value is never masked by "".
func with(ctx context.Context, k key, v string) context.Context {
	if v == "" {
		return ctx
	}
	return context.WithValue(ctx, k, v)
}

func lookup(ctx context.Context, k key, fallback string) string {
	if ctx == nil {
		return fallback
	}
	if v, ok := ctx.Value(k).(string); ok {
		return v
	}
	return fallback
}
