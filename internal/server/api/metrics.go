package api

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the compilation metrics served on /metrics.
type Metrics struct {
	compilationsTotal   *prometheus.CounterVec
	compilationDuration prometheus.Histogram
}

// NewMetrics creates the metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		compilationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "knit_blueprint_compilations_total",
				Help: "Total number of blueprint compilations by outcome and failing stage",
			},
			[]string{"outcome", "stage"},
		),
		compilationDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "knit_blueprint_compilation_duration_seconds",
				Help:    "Duration of blueprint compilations in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
	}
	reg.MustRegister(m.compilationsTotal, m.compilationDuration)
	return m
}

func (m *Metrics) observe(stage string, seconds float64) {
	outcome := "success"
	if stage != "" {
		outcome = "failure"
	}
	m.compilationsTotal.WithLabelValues(outcome, stage).Inc()
	m.compilationDuration.Observe(seconds)
}
