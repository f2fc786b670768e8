package messages

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the core's Prometheus collectors. A nil *Metrics records nothing.
type Metrics struct {
	sent       prometheus.Counter
	delivered  prometheus.Counter
	rejected   *prometheus.CounterVec
	drainBatch prometheus.Histogram
}

// NewMetrics creates the collectors and registers them on reg when reg is non-nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		sent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "messenger",
			Subsystem: "messages",
			Name:      "sent_total",
			Help:      "Messages accepted by ingress.",
		}),
		delivered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "messenger",
			Subsystem: "messages",
			Name:      "delivered_total",
			Help:      "Messages marked opened by a drain.",
		}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "messenger",
			Subsystem: "messages",
			Name:      "rejected_total",
			Help:      "Requests rejected by the core, by reason.",
		}, []string{"reason"}),
		drainBatch: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "messenger",
			Subsystem: "messages",
			Name:      "drain_batch_size",
			Help:      "Messages returned per non-empty drain.",
			Buckets:   []float64{1, 2, 5, 10, 25, 50, 100},
		}),
	}
	if reg != nil {
		reg.MustRegister(m.sent, m.delivered, m.rejected, m.drainBatch)
	}
	return m
}

func (m *Metrics) messageSent() {
	if m == nil {
		return
	}
	m.sent.Inc()
}

func (m *Metrics) drained(n int) {
	if m == nil || n == 0 {
		return
	}
	m.delivered.Add(float64(n))
	m.drainBatch.Observe(float64(n))
}

func (m *Metrics) reject(err error) {
	if m == nil || err == nil {
		return
	}
	var oe OpError
	reason := "other"
	if errors.As(err, &oe) {
		reason = oe.Kind.Error()
	}
	m.rejected.WithLabelValues(reason).Inc()
}
