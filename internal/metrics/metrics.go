// Package metrics exposes Prometheus metrics for the service: request
// counters recorded as they happen, plus gauges collected from the
// database on scrape.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the instruments the rest of the service records into.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestDuration *prometheus.HistogramVec
	GenerationsStarted  prometheus.Counter
	GenerationsDone     *prometheus.CounterVec
	StageDuration       *prometheus.HistogramVec
	AITokens            *prometheus.CounterVec
	ExportsTotal        *prometheus.CounterVec
	ResearchTotal       prometheus.Counter
	ActiveWebsockets    prometheus.Gauge
}

// New creates the metrics set on a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "landppt_http_request_duration_seconds",
			Help:    "HTTP request latency by route and status code.",
			Buckets: []float64{0.005, 0.025, 0.1, 0.25, 1, 2.5, 10, 30},
		}, []string{"method", "route", "status"}),
		GenerationsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "landppt_generations_started_total",
			Help: "Generation pipeline runs started.",
		}),
		GenerationsDone: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "landppt_generations_finished_total",
			Help: "Generation pipeline runs finished by outcome.",
		}, []string{"outcome"}),
		StageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "landppt_stage_duration_seconds",
			Help:    "Pipeline stage duration in seconds.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"stage"}),
		AITokens: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "landppt_ai_tokens_total",
			Help: "AI tokens consumed by provider and direction.",
		}, []string{"provider", "direction"}),
		ExportsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "landppt_exports_total",
			Help: "Export artifacts produced by format.",
		}, []string{"format"}),
		ResearchTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "landppt_research_reports_total",
			Help: "Deep research reports generated.",
		}),
		ActiveWebsockets: factory.NewGauge(prometheus.GaugeOpts{
			Name: "landppt_websocket_connections",
			Help: "Currently connected progress websocket clients.",
		}),
	}
}

// Register adds an extra collector to the registry.
func (m *Metrics) Register(c prometheus.Collector) error {
	return m.registry.Register(c)
}

// Handler returns the scrape endpoint handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordAIUsage records prompt and completion token counts for a provider.
func (m *Metrics) RecordAIUsage(provider string, promptTokens, completionTokens int) {
	m.AITokens.WithLabelValues(provider, "prompt").Add(float64(promptTokens))
	m.AITokens.WithLabelValues(provider, "completion").Add(float64(completionTokens))
}
