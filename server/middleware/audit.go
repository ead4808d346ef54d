package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/godamri/helix-audit/audit"
	"github.com/godamri/helix-audit/pkg/contextx"
)

// HTTPStatusError is the failure recorded for requests answered with a 4xx
// or 5xx status.
type HTTPStatusError struct {
	Status int
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("http %d %s", e.Status, http.StatusText(e.Status))
}

// HTTPAudit records one audit event per state-changing request. The
// operation is the method and chi route pattern, with URL parameter values
// as arguments; the result is the response status.
//
// GET, HEAD and OPTIONS requests and paths in excludePaths pass through
// unaudited. A panicking handler is recorded and the panic continues.
func HTTPAudit(a *audit.Auditor, excludePaths []string) func(http.Handler) http.Handler {
	excluded := make(map[string]struct{}, len(excludePaths))
	for _, p := range excludePaths {
		excluded[strings.TrimSuffix(p, "/")] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if a == nil || !audited(r, excluded) {
				next.ServeHTTP(w, r)
				return
			}

			r = r.WithContext(contextx.WithEntryPoint(r.Context(), contextx.EntryHTTP))
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			completed := false
			defer func() {
				if completed {
					return
				}
				rec := recover()
				failure := error(audit.ErrAborted)
				if rec != nil {
					failure = &audit.PanicError{Value: rec, Stack: debug.Stack()}
				}
				_ = a.Record(r.Context(), requestCall(r), nil, failure, time.Since(start))
				if rec != nil {
					panic(rec)
				}
			}()

			next.ServeHTTP(ww, r)
			completed = true

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			var failure error
			if status >= http.StatusBadRequest {
				failure = &HTTPStatusError{Status: status}
			}
			_ = a.Record(r.Context(), requestCall(r), status, failure, time.Since(start))
		})
	}
}

func audited(r *http.Request, excluded map[string]struct{}) bool {
	switch r.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return false
	}
	_, skip := excluded[strings.TrimSuffix(r.URL.Path, "/")]
	return !skip
}

// requestCall must run after routing so the pattern is known.
func requestCall(r *http.Request) audit.Call {
	pattern := routePattern(r)
	if pattern == "" {
		pattern = "unmatched_route"
	}

	var args []any
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		for _, v := range rctx.URLParams.Values {
			args = append(args, v)
		}
	}
	return audit.Func(r.Method+" "+pattern, args...)
}
