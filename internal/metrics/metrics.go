// Package metrics provides Prometheus metrics for the playable forge service.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	GenerationsTotal   *prometheus.CounterVec
	GenerationDuration *prometheus.HistogramVec
	BuildsTotal        *prometheus.CounterVec
	PlayableSizeBytes  prometheus.Histogram
	CreditsAvailable   prometheus.Gauge
	ErrorsTotal        *prometheus.CounterVec

	registry *prometheus.Registry
}

// New creates and registers all metrics.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		GenerationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "forge_generations_total",
				Help: "Total generation attempts by slot category and outcome.",
			},
			[]string{"category", "outcome"},
		),
		GenerationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "forge_generation_duration_seconds",
				Help:    "Generation duration from submit to terminal state.",
				Buckets: []float64{1, 2, 5, 10, 20, 30, 60, 120},
			},
			[]string{"category"},
		),
		BuildsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "forge_builds_total",
				Help: "Total playable builds by mechanic and status.",
			},
			[]string{"mechanic", "status"},
		),
		PlayableSizeBytes: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "forge_playable_size_bytes",
				Help:    "Byte size of assembled playables.",
				Buckets: prometheus.ExponentialBuckets(64*1024, 2, 8),
			},
		),
		CreditsAvailable: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "forge_credits_available",
				Help: "Workspace credit balance observed at the last check.",
			},
		),
		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "forge_errors_total",
				Help: "Total errors by module and type.",
			},
			[]string{"module", "type"},
		),
		registry: reg,
	}

	reg.MustRegister(m.GenerationsTotal)
	reg.MustRegister(m.GenerationDuration)
	reg.MustRegister(m.BuildsTotal)
	reg.MustRegister(m.PlayableSizeBytes)
	reg.MustRegister(m.CreditsAvailable)
	reg.MustRegister(m.ErrorsTotal)

	return m
}

// Handler returns an http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordGeneration increments the generation counter.
func (m *Metrics) RecordGeneration(category, outcome string) {
	m.GenerationsTotal.WithLabelValues(category, outcome).Inc()
}

// ObserveGeneration records a generation duration.
func (m *Metrics) ObserveGeneration(category string, seconds float64) {
	m.GenerationDuration.WithLabelValues(category).Observe(seconds)
}

// RecordBuild increments the build counter.
func (m *Metrics) RecordBuild(mechanic, status string) {
	m.BuildsTotal.WithLabelValues(mechanic, status).Inc()
}

// ObservePlayableSize records an assembled playable's size.
func (m *Metrics) ObservePlayableSize(bytes int) {
	m.PlayableSizeBytes.Observe(float64(bytes))
}

// SetCredits records the last observed credit balance.
func (m *Metrics) SetCredits(balance int) {
	m.CreditsAvailable.Set(float64(balance))
}

// RecordError increments the error counter.
func (m *Metrics) RecordError(module, errType string) {
	m.ErrorsTotal.WithLabelValues(module, errType).Inc()
}
