package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type HTTPMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func NewHTTPMetrics(reg prometheus.Registerer) *HTTPMetrics {
	f := promauto.With(reg)
	return &HTTPMetrics{
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests processed, labeled by status, method, and path.",
		}, []string{"status", "method", "path"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"status", "method", "path"}),
	}
}

// Middleware records RED metrics (Rate, Errors, Duration) for every request.
func (m *HTTPMetrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		code := ww.Status()
		if code == 0 {
			code = http.StatusOK
		}

		// Never use r.URL.Path as a label value.
		path := routePattern(r)
		if path == "" {
			path = "unmatched_route"
			if code == http.StatusNotFound {
				path = "not_found"
			}
		}

		status := strconv.Itoa(code)
		m.requests.WithLabelValues(status, r.Method, path).Inc()
		m.duration.WithLabelValues(status, r.Method, path).Observe(time.Since(start).Seconds())
	})
}
