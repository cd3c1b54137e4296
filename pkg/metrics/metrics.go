// Package metrics exposes the platform's Prometheus collectors.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by method, route and status code",
		},
		[]string{"method", "route", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	JobsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "discovery_jobs_active",
			Help: "Discovery jobs currently held in memory",
		},
	)

	DiscoveryRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "discovery_runs_total",
			Help: "Discovery runs by terminal status",
		},
		[]string{"status"},
	)

	LLMCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_calls_total",
			Help: "LLM generation calls by provider type and outcome",
		},
		[]string{"provider", "outcome"},
	)

	RateLimited = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "llm_rate_limited_total",
			Help: "Generation requests rejected by the hourly rate limiter",
		},
	)

	GraphProjections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "graph_projections_total",
			Help: "Schema graph projections by outcome",
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(RequestsTotal)
	prometheus.MustRegister(RequestDuration)
	prometheus.MustRegister(JobsActive)
	prometheus.MustRegister(DiscoveryRuns)
	prometheus.MustRegister(LLMCalls)
	prometheus.MustRegister(RateLimited)
	prometheus.MustRegister(GraphProjections)
}
