package sweeper

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for sweep passes.
type Metrics struct {
	PassDuration   prometheus.Histogram
	ForceApprovals *prometheus.CounterVec
	Notifications  *prometheus.CounterVec
	CategoryErrors *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		PassDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "collecta_sweep_duration_seconds",
			Help:    "Duration of a full sweep pass",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		}),
		ForceApprovals: f.NewCounterVec(prometheus.CounterOpts{
			Name: "collecta_sweep_force_approvals_total",
			Help: "Pending groups approved by the sweeper after a deadline",
		}, []string{"category"}),
		Notifications: f.NewCounterVec(prometheus.CounterOpts{
			Name: "collecta_sweep_notifications_total",
			Help: "Deadline notifications by kind and outcome (sent, deduplicated, failed)",
		}, []string{"kind", "outcome"}),
		CategoryErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "collecta_sweep_category_errors_total",
			Help: "Categories whose sweep reported an error",
		}, []string{"category"}),
	}
}

func (m *Metrics) ObservePass(start time.Time, end time.Time) {
	if m != nil {
		m.PassDuration.Observe(end.Sub(start).Seconds())
	}
}

func (m *Metrics) AddForceApprovals(category string, n int) {
	if m != nil && n > 0 {
		m.ForceApprovals.WithLabelValues(category).Add(float64(n))
	}
}

func (m *Metrics) IncNotification(kind, outcome string) {
	if m != nil {
		m.Notifications.WithLabelValues(kind, outcome).Inc()
	}
}

func (m *Metrics) IncCategoryError(category string) {
	if m != nil {
		m.CategoryErrors.WithLabelValues(category).Inc()
	}
}
