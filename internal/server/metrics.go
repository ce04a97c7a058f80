package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the chat API's Prometheus collectors.
type Metrics struct {
	Registry *prometheus.Registry

	RequestCount      *prometheus.CounterVec
	RequestDuration   *prometheus.HistogramVec
	CompletionLatency prometheus.Histogram
	SpeechLatency     prometheus.Histogram
	SpeechFailures    prometheus.Counter
	RateLimited       prometheus.Counter
}

// NewMetrics registers the collectors on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		RequestCount: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "posteravatar_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "posteravatar_request_duration_seconds",
				Help: "HTTP request duration in seconds",
			},
			[]string{"method", "route"},
		),
		CompletionLatency: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name: "posteravatar_completion_latency_seconds",
				Help: "Chat completion latency in seconds",
			},
		),
		SpeechLatency: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name: "posteravatar_speech_latency_seconds",
				Help: "Speech synthesis latency in seconds",
			},
		),
		SpeechFailures: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "posteravatar_speech_failures_total",
				Help: "Replies sent without audio because synthesis failed",
			},
		),
		RateLimited: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "posteravatar_rate_limited_total",
				Help: "Requests rejected by the per-client rate limit",
			},
		),
	}
}
