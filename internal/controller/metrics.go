package controller

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the controller's Prometheus collectors. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	messages      *prometheus.CounterVec
	breaches      prometheus.Counter
	actions       *prometheus.CounterVec
	rearms        *prometheus.CounterVec
	pendingRearms prometheus.Gauge
}

// NewMetrics creates the controller collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "controller",
			Name:      "messages_total",
			Help:      "Inbound messages by category and result.",
		}, []string{"category", "result"}),
		breaches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "controller",
			Name:      "threshold_breaches_total",
			Help:      "Temperature samples above the controller limit.",
		}),
		actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "controller",
			Name:      "actions_published_total",
			Help:      "Actions published, by value and reason.",
		}, []string{"value", "reason"}),
		rearms: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "controller",
			Name:      "rearms_total",
			Help:      "Re-arm lifecycle events by outcome.",
		}, []string{"outcome"}),
		pendingRearms: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "controller",
			Name:      "rearms_pending",
			Help:      "Re-arms currently waiting for their timer.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.messages, m.breaches, m.actions, m.rearms, m.pendingRearms)
	}
	return m
}

func (m *Metrics) incMessage(category, result string) {
	if m != nil {
		m.messages.WithLabelValues(category, result).Inc()
	}
}

func (m *Metrics) incBreach() {
	if m != nil {
		m.breaches.Inc()
	}
}

func (m *Metrics) incAction(value, reason string) {
	if m != nil {
		m.actions.WithLabelValues(value, reason).Inc()
	}
}

func (m *Metrics) incRearm(outcome string) {
	if m != nil {
		m.rearms.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) setPending(n int) {
	if m != nil {
		m.pendingRearms.Set(float64(n))
	}
}
