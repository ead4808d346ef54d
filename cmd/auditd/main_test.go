package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/godamri/helix-audit/audit"
	"github.com/godamri/helix-audit/pkg/contextx"
	"github.com/godamri/helix-audit/server/middleware"
)

type memorySink struct {
	mu     sync.Mutex
	events []audit.Event
}

func (s *memorySink) Write(_ context.Context, e audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *memorySink) Close() error { return nil }

func (s *memorySink) Events() []audit.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]audit.Event(nil), s.events...)
}

func newTestAuditor() (*audit.Auditor, *memorySink) {
	sink := &memorySink{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	d := audit.NewDispatcher(logger, audit.WithSink("memory", sink))
	return audit.NewAuditor(audit.NewBuilder(), d, logger), sink
}

func TestBank_OperationsAreAudited(t *testing.T) {
	a, sink := newTestAuditor()
	bank := NewBank(a)
	ctx := contextx.WithAuthPrincipalID(context.Background(), "teller-9")

	require.NoError(t, bank.Open(ctx, "alice", 100))
	bal, err := bank.Withdraw(ctx, "alice", 30)
	require.NoError(t, err)
	assert.Equal(t, int64(70), bal)

	_, err = bank.Withdraw(ctx, "alice", 500)
	require.ErrorIs(t, err, ErrInsufficientFunds)

	events := sink.Events()
	require.Len(t, events, 3)

	assert.Equal(t, "OpenAccount(string, int64)", events[0].Operation().String())
	assert.True(t, events[0].TargetType().IsZero())

	assert.Equal(t, "Withdraw(int64)", events[1].Operation().String())
	assert.Equal(t, "CheckingAccount", events[1].TargetType().Name)
	assert.Equal(t, reflect.TypeFor[CheckingAccount]().PkgPath(), events[1].TargetType().PkgPath)
	assert.Equal(t, "teller-9", events[1].ActorID())
	res, ok := events[1].Result()
	require.True(t, ok)
	assert.Equal(t, int64(70), res)

	failure, failed := events[2].Failure()
	require.True(t, failed)
	assert.ErrorIs(t, failure, ErrInsufficientFunds)
	assert.Equal(t, []any{int64(500)}, events[2].Arguments())
}

func TestBank_UnknownAccountIsNotAudited(t *testing.T) {
	a, sink := newTestAuditor()
	bank := NewBank(a)

	_, err := bank.Deposit(context.Background(), "ghost", 10)
	require.ErrorIs(t, err, ErrAccountNotFound)
	assert.Empty(t, sink.Events())
}

func TestBank_NilAuditor(t *testing.T) {
	bank := NewBank(nil)
	ctx := context.Background()

	require.NoError(t, bank.Open(ctx, "bob", 0))
	bal, err := bank.Deposit(ctx, "bob", 25)
	require.NoError(t, err)
	assert.Equal(t, int64(25), bal)
	assert.ErrorIs(t, bank.Open(ctx, "bob", 0), ErrAccountExists)
}

func newTestRouter(t *testing.T) (http.Handler, *memorySink) {
	t.Helper()
	a, sink := newTestAuditor()
	cfg := &Config{
		ServiceName: "auditd-test",
		Audit:       audit.Config{ExcludePaths: []string{"/metrics"}},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return newRouter(cfg, logger, prometheus.NewRegistry(), a, NewBank(a)), sink
}

func do(h http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRouter_WithdrawRecordsServiceAndHTTPEvents(t *testing.T) {
	h, sink := newTestRouter(t)
	hdr := map[string]string{ActorHeader: "user-1", ReasonHeader: "atm"}

	rec := do(h, http.MethodPost, "/accounts", `{"id":"alice","initial":50}`, hdr)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = do(h, http.MethodPost, "/accounts/alice/withdraw", `{"amount":80}`, hdr)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var body struct {
		Success bool `json:"success"`
		Error   struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.Success)
	assert.Equal(t, "BIZ_RULE_VIOLATION", body.Error.Code)

	events := sink.Events()
	require.Len(t, events, 4)

	// Open: service event then HTTP event.
	assert.Equal(t, "OpenAccount(string, int64)", events[0].Operation().String())
	assert.Equal(t, "POST /accounts()", events[1].Operation().String())

	svc, edge := events[2], events[3]
	assert.Equal(t, "Withdraw(int64)", svc.Operation().String())
	assert.Equal(t, "user-1", svc.ActorID())
	assert.Equal(t, "atm", svc.Metadata()["audit_reason"])
	assert.NotEmpty(t, svc.TraceID())

	assert.Equal(t, "POST /accounts/{id}/withdraw(string)", edge.Operation().String())
	assert.Equal(t, []any{"alice"}, edge.Arguments())
	failure, failed := edge.Failure()
	require.True(t, failed)
	var statusErr *middleware.HTTPStatusError
	require.True(t, errors.As(failure, &statusErr))
	assert.Equal(t, 422, statusErr.Status)
	assert.Equal(t, svc.TraceID(), edge.TraceID())
}

func TestRouter_ReadsAndProbesAreNotAudited(t *testing.T) {
	h, sink := newTestRouter(t)

	rec := do(h, http.MethodGet, "/accounts/nobody", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(h, http.MethodGet, "/ready", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"UP"}`, rec.Body.String())

	rec = do(h, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "http_requests_total")

	assert.Empty(t, sink.Events())
}

func TestRouter_ValidationFailureIsAuditedAtHTTPBoundary(t *testing.T) {
	h, sink := newTestRouter(t)

	rec := do(h, http.MethodPost, "/accounts", `{"id":"not valid!","initial":-1}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	events := sink.Events()
	require.Len(t, events, 1)
	assert.False(t, events[0].Succeeded())
	assert.Empty(t, events[0].ActorID())
}

func TestRouter_DuplicateAccountConflicts(t *testing.T) {
	h, _ := newTestRouter(t)

	rec := do(h, http.MethodPost, "/accounts", `{"id":"carol"}`, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = do(h, http.MethodPost, "/accounts", `{"id":"carol"}`, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}
