package resilience

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics records executor activity. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	attempts *prometheus.CounterVec
	retries  prometheus.Counter
	duration prometheus.Histogram
}

// NewMetrics creates the executor collectors and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		attempts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "agora_query_attempts_total",
			Help: "Remote query attempts by outcome (success, retriable, permanent).",
		}, []string{"outcome"}),
		retries: f.NewCounter(prometheus.CounterOpts{
			Name: "agora_query_retries_total",
			Help: "Backoff sleeps scheduled before a retry.",
		}),
		duration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "agora_query_duration_seconds",
			Help:    "Wall-clock time of a query including retries and backoff.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 14),
		}),
	}
}

func (m *Metrics) attempt(outcome string) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(outcome).Inc()
}

func (m *Metrics) retry() {
	if m == nil {
		return
	}
	m.retries.Inc()
}

func (m *Metrics) observe(seconds float64) {
	if m == nil {
		return
	}
	m.duration.Observe(seconds)
}
