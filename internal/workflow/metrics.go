package workflow

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts conversation traffic. A nil *Metrics records nothing.
type Metrics struct {
	messages  *prometheus.CounterVec
	started   *prometheus.CounterVec
	completed *prometheus.CounterVec
	failures  *prometheus.CounterVec
	degraded  prometheus.Counter
	finalize  *prometheus.HistogramVec
}

// NewMetrics registers the workflow collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docbot",
			Name:      "messages_total",
			Help:      "Inbound messages by kind.",
		}, []string{"kind"}),
		started: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docbot",
			Name:      "workflows_started_total",
			Help:      "Conversations started by workflow type.",
		}, []string{"workflow"}),
		completed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docbot",
			Name:      "workflows_completed_total",
			Help:      "Finished conversations by workflow type and outcome.",
		}, []string{"workflow", "outcome"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docbot",
			Name:      "workflow_failures_total",
			Help:      "Workflow step failures by error kind.",
		}, []string{"workflow", "kind"}),
		degraded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "docbot",
			Name:      "state_store_degraded_total",
			Help:      "Times the state store fell back to memory.",
		}),
		finalize: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "docbot",
			Name:      "finalize_duration_seconds",
			Help:      "Time spent finalizing a workflow.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"workflow"}),
	}
	if reg != nil {
		reg.MustRegister(m.messages, m.started, m.completed, m.failures, m.degraded, m.finalize)
	}
	return m
}

func (m *Metrics) message(kind string) {
	if m != nil {
		m.messages.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) workflowStarted(kind Kind) {
	if m != nil {
		m.started.WithLabelValues(string(kind)).Inc()
	}
}

func (m *Metrics) workflowCompleted(kind Kind, outcome string, elapsed time.Duration) {
	if m != nil {
		m.completed.WithLabelValues(string(kind), outcome).Inc()
		m.finalize.WithLabelValues(string(kind)).Observe(elapsed.Seconds())
	}
}

func (m *Metrics) failure(kind Kind, errKind string) {
	if m != nil {
		m.failures.WithLabelValues(string(kind), errKind).Inc()
	}
}

func (m *Metrics) storeDegraded() {
	if m != nil {
		m.degraded.Inc()
	}
}
