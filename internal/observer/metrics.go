package observer

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the observer's Prometheus collectors. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	messages *prometheus.CounterVec
	devices  prometheus.Gauge
}

// NewMetrics creates the observer collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "observer",
			Name:      "messages_total",
			Help:      "Messages seen by the fleet observer, by category and result.",
		}, []string{"category", "result"}),
		devices: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "observer",
			Name:      "devices_known",
			Help:      "Devices currently in the observer registry.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.messages, m.devices)
	}
	return m
}

func (m *Metrics) incMessage(category, result string) {
	if m != nil {
		m.messages.WithLabelValues(category, result).Inc()
	}
}

func (m *Metrics) setDevices(n int) {
	if m != nil {
		m.devices.Set(float64(n))
	}
}
