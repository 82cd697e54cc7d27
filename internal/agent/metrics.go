package agent

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Action outcomes used as the "result" label.
const (
	resultApplied   = "applied"
	resultDuplicate = "duplicate"
	resultUnmanaged = "unmanaged"
	resultInvalid   = "invalid"
)

// Metrics holds the agent's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	published     *prometheus.CounterVec
	publishErrors prometheus.Counter
	ticksSkipped  prometheus.Counter
	actions       *prometheus.CounterVec
}

// NewMetrics creates the agent collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "smartobject",
			Name:      "messages_published_total",
			Help:      "Messages published by the smart object, by topic kind.",
		}, []string{"kind"}),
		publishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "smartobject",
			Name:      "publish_errors_total",
			Help:      "Publishes that failed and were dropped.",
		}),
		ticksSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "smartobject",
			Name:      "ticks_silenced_total",
			Help:      "Telemetry ticks skipped because the switch was OFF.",
		}),
		actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "smartobject",
			Name:      "actions_total",
			Help:      "Inbound actions by outcome.",
		}, []string{"result"}),
	}
	if reg != nil {
		reg.MustRegister(m.published, m.publishErrors, m.ticksSkipped, m.actions)
	}
	return m
}

func (m *Metrics) incPublished(kind string) {
	if m != nil {
		m.published.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) incPublishError() {
	if m != nil {
		m.publishErrors.Inc()
	}
}

func (m *Metrics) incSkipped() {
	if m != nil {
		m.ticksSkipped.Inc()
	}
}

func (m *Metrics) incAction(result string) {
	if m != nil {
		m.actions.WithLabelValues(result).Inc()
	}
}
