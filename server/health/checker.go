package health

import (
	"context"
	"encoding/json"
	"log/slog"
	"maps"
	"net/http"
	"slices"
	"time"

	"github.com/go-chi/chi/v5"
)

// SinkHealth reports per-sink reachability; *audit.Dispatcher satisfies it.
type SinkHealth interface {
	Health(ctx context.Context) map[string]error
}

// Checker handles the health check endpoints.
type Checker struct {
	sinks   SinkHealth
	logger  *slog.Logger
	timeout time.Duration
}

func NewChecker(sinks SinkHealth, logger *slog.Logger) *Checker {
	return &Checker{
		sinks:   sinks,
		logger:  logger,
		timeout: 500 * time.Millisecond,
	}
}

func (c *Checker) RegisterRoutes(r chi.Router) {
	r.Get("/health", c.HandleHealth) // Liveness
	r.Get("/ready", c.HandleReadiness)
}

// HandleHealth returns 200 while the process is running.
func (c *Checker) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

type readiness struct {
	Status string            `json:"status"`
	Sinks  map[string]string `json:"sinks,omitempty"`
}

// HandleReadiness pings every remote audit sink. A service that cannot
// deliver audit events is not ready for traffic.
func (c *Checker) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), c.timeout)
	defer cancel()

	body := readiness{Status: "UP", Sinks: map[string]string{}}
	statusCode := http.StatusOK

	if c.sinks != nil {
		results := c.sinks.Health(ctx)
		for _, name := range slices.Sorted(maps.Keys(results)) {
			if err := results[name]; err != nil {
				c.logger.ErrorContext(r.Context(), "Readiness check failed: audit sink unreachable", "sink", name, "error", err)
				body.Sinks[name] = "DOWN"
				body.Status = "DOWN"
				statusCode = http.StatusServiceUnavailable
				continue
			}
			body.Sinks[name] = "UP"
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		c.logger.Error("Failed to write health response", "error", err)
	}
}
