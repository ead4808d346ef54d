package audit

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the audit pipeline. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	EventsDispatched prometheus.Counter
	SinkWrites       *prometheus.CounterVec
	SinkFailures     *prometheus.CounterVec
	EventsDropped    *prometheus.CounterVec
	QueueDepth       *prometheus.GaugeVec
	WriteDuration    *prometheus.HistogramVec
}

// NewMetrics registers the audit metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		EventsDispatched: f.NewCounter(prometheus.CounterOpts{
			Name: "helix_audit_events_dispatched_total",
			Help: "Total number of audit events handed to the dispatcher",
		}),
		SinkWrites: f.NewCounterVec(prometheus.CounterOpts{
			Name: "helix_audit_sink_writes_total",
			Help: "Total number of audit events successfully written, by sink",
		}, []string{"sink"}),
		SinkFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "helix_audit_sink_failures_total",
			Help: "Total number of failed audit sink writes, by sink",
		}, []string{"sink"}),
		EventsDropped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "helix_audit_events_dropped_total",
			Help: "Total number of audit events dropped before reaching a sink, by sink and reason",
		}, []string{"sink", "reason"}),
		QueueDepth: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "helix_audit_queue_depth",
			Help: "Current number of audit events buffered for an async sink",
		}, []string{"sink"}),
		WriteDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "helix_audit_sink_write_duration_seconds",
			Help:    "Time taken by a sink to write one audit event",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}, []string{"sink"}),
	}
}

func (m *Metrics) incDispatched() {
	if m != nil {
		m.EventsDispatched.Inc()
	}
}

func (m *Metrics) observeWrite(sink string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.WriteDuration.WithLabelValues(sink).Observe(d.Seconds())
	if err != nil {
		m.SinkFailures.WithLabelValues(sink).Inc()
		return
	}
	m.SinkWrites.WithLabelValues(sink).Inc()
}

func (m *Metrics) incDropped(sink, reason string) {
	if m != nil {
		m.EventsDropped.WithLabelValues(sink, reason).Inc()
	}
}

func (m *Metrics) setQueueDepth(sink string, n int) {
	if m != nil {
		m.QueueDepth.WithLabelValues(sink).Set(float64(n))
	}
}
