package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/godamri/helix-audit/http/response"
)

// PanicRecovery handles panics in HTTP handlers. It logs the stack trace and
// returns a 500 envelope; the process stays up.
func PanicRecovery(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					logger.ErrorContext(r.Context(), "HTTP PANIC RECOVERED",
						"error", fmt.Sprintf("%v", rec),
						"method", r.Method,
						"path", r.URL.Path,
						"stack", string(debug.Stack()),
					)
					// Do not leak the stack trace to the client.
					response.ErrorJSON(w, r, http.StatusInternalServerError, response.ErrSystem, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
