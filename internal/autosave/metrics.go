package autosave

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks flush outcomes across all coordinators.
type Metrics struct {
	Flushes       *prometheus.CounterVec
	FlushDuration prometheus.Histogram
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Flushes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "collecta_autosave_flushes_total",
			Help: "Autosave flushes by outcome (persisted, skipped, failed)",
		}, []string{"outcome"}),
		FlushDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "collecta_autosave_flush_duration_seconds",
			Help:    "Duration of autosave flushes that reached the repository",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
	}
}

func (m *Metrics) ObserveFlush(outcome Outcome, d time.Duration) {
	if m == nil {
		return
	}
	m.Flushes.WithLabelValues(string(outcome)).Inc()
	if outcome != OutcomeSkipped {
		m.FlushDuration.Observe(d.Seconds())
	}
}
