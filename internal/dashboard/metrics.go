package dashboard

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the job collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	runs     *prometheus.CounterVec
	duration *prometheus.HistogramVec
	emits    *prometheus.CounterVec
}

// NewMetrics registers the job collectors on reg. A nil reg creates
// unregistered collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		runs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tileboard",
			Name:      "job_runs_total",
			Help:      "Widget job ticks by result (ok, error, panic).",
		}, []string{"dashboard", "widget_type", "result"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "tileboard",
			Name:      "job_duration_seconds",
			Help:      "Widget job tick duration.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"dashboard", "widget_type"}),
		emits: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tileboard",
			Name:      "emits_total",
			Help:      "Updates published to a dashboard room.",
		}, []string{"dashboard"}),
	}
}

func (m *Metrics) observeRun(dash, typ, result string, took time.Duration) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(dash, typ, result).Inc()
	m.duration.WithLabelValues(dash, typ).Observe(took.Seconds())
}

func (m *Metrics) emitted(dash string) {
	if m == nil {
		return
	}
	m.emits.WithLabelValues(dash).Inc()
}
