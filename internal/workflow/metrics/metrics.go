package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for workflow transitions.
type Metrics struct {
	// Transitions by target status and outcome (applied, lost, failed)
	Transitions *prometheus.CounterVec

	TransitionLatency prometheus.Histogram

	// Submits blocked by field errors, by category
	ValidationBlocked *prometheus.CounterVec

	NotificationFailures *prometheus.CounterVec
}

// New registers workflow metrics with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Transitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "collecta_workflow_transitions_total",
			Help: "Group status transitions by target status and outcome",
		}, []string{"to", "outcome"}),

		TransitionLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "collecta_workflow_transition_duration_seconds",
			Help:    "Duration of a group transition including its audit write",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),

		ValidationBlocked: f.NewCounterVec(prometheus.CounterOpts{
			Name: "collecta_workflow_submit_blocked_total",
			Help: "Submits rejected because the group failed validation",
		}, []string{"category"}),

		NotificationFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "collecta_workflow_notification_failures_total",
			Help: "Approval and rejection notifications that could not be delivered",
		}, []string{"kind"}),
	}
}

func (m *Metrics) ObserveTransition(to, outcome string, start time.Time) {
	if m != nil {
		m.Transitions.WithLabelValues(to, outcome).Inc()
		m.TransitionLatency.Observe(time.Since(start).Seconds())
	}
}

func (m *Metrics) IncrementValidationBlocked(category string) {
	if m != nil {
		m.ValidationBlocked.WithLabelValues(category).Inc()
	}
}

func (m *Metrics) IncrementNotificationFailure(kind string) {
	if m != nil {
		m.NotificationFailures.WithLabelValues(kind).Inc()
	}
}
