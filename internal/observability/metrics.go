// Package observability exposes Prometheus metrics for suitability runs.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the counters, gauges and histograms recorded per run.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	Runs          prometheus.Counter
	ParcelsScored prometheus.Counter
	Diagnostics   *prometheus.CounterVec // labels: kind={degenerate_input,missing_value,non_finite_value}
	ParcelsByTier *prometheus.GaugeVec   // labels: tier={Low,Medium,High}
	RunDuration   prometheus.Histogram
}

// NewMetrics creates the run metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Runs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "suitability",
			Name:      "runs_total",
			Help:      "Total completed scoring runs.",
		}),
		ParcelsScored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "suitability",
			Name:      "parcels_scored_total",
			Help:      "Total parcels that received a composite score.",
		}),
		Diagnostics: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "suitability",
			Name:      "diagnostics_total",
			Help:      "Non-fatal diagnostics emitted while scoring.",
		}, []string{"kind"}),
		ParcelsByTier: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "suitability",
			Name:      "parcels_by_tier",
			Help:      "Parcels per suitability tier in the latest run.",
		}, []string{"tier"}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "suitability",
			Name:      "run_duration_seconds",
			Help:      "Duration of a complete scoring run.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),
	}

	reg.MustRegister(
		m.Runs,
		m.ParcelsScored,
		m.Diagnostics,
		m.ParcelsByTier,
		m.RunDuration,
	)

	return m
}

// RecordDiagnostic counts one diagnostic of the given kind.
func (m *Metrics) RecordDiagnostic(kind string) {
	if m == nil {
		return
	}
	m.Diagnostics.WithLabelValues(kind).Inc()
}

// RecordRun records the outcome of a finished run.
func (m *Metrics) RecordRun(scored int, tiers map[string]int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.Runs.Inc()
	m.ParcelsScored.Add(float64(scored))
	m.ParcelsByTier.Reset()
	for tier, n := range tiers {
		m.ParcelsByTier.WithLabelValues(tier).Set(float64(n))
	}
	m.RunDuration.Observe(elapsed.Seconds())
}
