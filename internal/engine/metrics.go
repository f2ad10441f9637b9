package engine

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus instruments for the evaluation engine.
type Metrics struct {
	CyclesTotal       prometheus.Counter
	CycleDuration     prometheus.Histogram
	MonitorsEvaluated prometheus.Counter
	ReadingsFetched   *prometheus.CounterVec // label: outcome={ok,degraded}
	TriggersFired     prometheus.Counter
	NotifyFailures    prometheus.Counter
	PersistFailures   prometheus.Counter
	EngineRunning     prometheus.Gauge
}

// NewMetrics creates and registers the engine metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

// NewMetricsWith creates and registers the engine metrics with the given
// registerer. Tests pass a private registry to avoid duplicate-registration
// panics.
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CyclesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rainwatch",
			Name:      "cycles_total",
			Help:      "Total evaluation cycles run.",
		}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "rainwatch",
			Name:      "cycle_duration_seconds",
			Help:      "Duration of a complete evaluation cycle.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60},
		}),
		MonitorsEvaluated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rainwatch",
			Name:      "monitors_evaluated_total",
			Help:      "Total monitors processed across all cycles.",
		}),
		ReadingsFetched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rainwatch",
			Name:      "readings_fetched_total",
			Help:      "Hourly rainfall readings fetched, by outcome.",
		}, []string{"outcome"}),
		TriggersFired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rainwatch",
			Name:      "triggers_fired_total",
			Help:      "Monitors whose rolling sum crossed the trigger threshold.",
		}),
		NotifyFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rainwatch",
			Name:      "notification_failures_total",
			Help:      "Trigger notifications that could not be delivered.",
		}),
		PersistFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rainwatch",
			Name:      "persist_failures_total",
			Help:      "Monitor updates that failed to persist during a cycle.",
		}),
		EngineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "rainwatch",
			Name:      "engine_running",
			Help:      "1 when the scheduled engine loop is active.",
		}),
	}

	reg.MustRegister(
		m.CyclesTotal,
		m.CycleDuration,
		m.MonitorsEvaluated,
		m.ReadingsFetched,
		m.TriggersFired,
		m.NotifyFailures,
		m.PersistFailures,
		m.EngineRunning,
	)
	return m
}
