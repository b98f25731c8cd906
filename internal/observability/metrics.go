package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Metrics holds the Prometheus instruments for the batch phases. Each
// Metrics owns its registry: phases are short-lived processes that push to
// a Pushgateway rather than serving a scrape endpoint, and a private
// registry also keeps repeated construction in tests from panicking.
type Metrics struct {
	PhaseRuns     *prometheus.CounterVec   // labels: phase, status
	PhaseDuration *prometheus.HistogramVec // labels: phase
	RowsProcessed *prometheus.CounterVec   // labels: phase
	InvalidRows   *prometheus.CounterVec   // labels: rule
	GatePassed    prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates and registers all pipeline metrics.
func NewMetrics() *Metrics {
	m := &Metrics{
		PhaseRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "weather_pipeline",
			Name:      "phase_runs_total",
			Help:      "Phase executions by phase and terminal status.",
		}, []string{"phase", "status"}),
		PhaseDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "weather_pipeline",
			Name:      "phase_duration_seconds",
			Help:      "Wall-clock duration of one phase execution.",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"phase"}),
		RowsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "weather_pipeline",
			Name:      "rows_processed_total",
			Help:      "Rows handled per phase, as reported to the ledger.",
		}, []string{"phase"}),
		InvalidRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "weather_pipeline",
			Name:      "invalid_rows_total",
			Help:      "Rows flagged by each data-quality rule.",
		}, []string{"rule"}),
		GatePassed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "weather_pipeline",
			Name:      "gate_passed",
			Help:      "1 when the most recent quality run passed, 0 otherwise.",
		}),
		registry: prometheus.NewRegistry(),
	}

	m.registry.MustRegister(
		m.PhaseRuns,
		m.PhaseDuration,
		m.RowsProcessed,
		m.InvalidRows,
		m.GatePassed,
	)

	return m
}

// Push sends the collected metrics to a Pushgateway, grouped by phase.
// No-op when url is empty.
func (m *Metrics) Push(url, phase string) error {
	if url == "" {
		return nil
	}
	return push.New(url, "weather_pipeline").
		Grouping("phase", phase).
		Gatherer(m.registry).
		Push()
}
