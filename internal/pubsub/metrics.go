package pubsub

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the broker's prometheus collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	connections *prometheus.GaugeVec
	dropped     *prometheus.CounterVec
	delivered   *prometheus.CounterVec
}

// NewMetrics registers the broker collectors on reg. A nil reg creates
// unregistered collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		connections: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "tileboard",
			Name:      "connections",
			Help:      "Open pub/sub connections per namespace.",
		}, []string{"namespace"}),
		dropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tileboard",
			Name:      "dropped_messages_total",
			Help:      "Messages dropped because a connection buffer was full.",
		}, []string{"namespace"}),
		delivered: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tileboard",
			Name:      "delivered_messages_total",
			Help:      "Messages queued to connection buffers.",
		}, []string{"namespace"}),
	}
}

func (m *Metrics) connected(ns string, delta float64) {
	if m == nil {
		return
	}
	m.connections.WithLabelValues(ns).Add(delta)
}

func (m *Metrics) drop(ns string) {
	if m == nil {
		return
	}
	m.dropped.WithLabelValues(ns).Inc()
}

func (m *Metrics) deliver(ns string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.delivered.WithLabelValues(ns).Add(float64(n))
}
