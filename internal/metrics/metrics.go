// Package metrics provides Prometheus instrumentation for kilobridge.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics.
var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kilobridge_http_requests_total",
		Help: "Total number of HTTP requests.",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "kilobridge_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})
)

// Agent bridge metrics.
var (
	BridgeInvocationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kilobridge_bridge_invocations_total",
		Help: "Total number of external agent invocations by outcome.",
	}, []string{"mode", "form", "outcome"})

	BridgeDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "kilobridge_bridge_duration_seconds",
		Help:    "External agent invocation duration in seconds.",
		Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	}, []string{"mode", "form"})

	ActiveAgents = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "kilobridge_active_agents",
		Help: "Number of currently running agent processes.",
	})
)

// Orchestration metrics.
var (
	FallbacksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kilobridge_fallbacks_total",
		Help: "Total number of requests answered by the direct provider path.",
	}, []string{"mode", "form"})

	StreamFramesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kilobridge_stream_frames_total",
		Help: "Total number of token frames written to streaming clients.",
	}, []string{"source"})
)

// Provider metrics.
var (
	ProviderRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kilobridge_provider_requests_total",
		Help: "Total number of model provider requests by outcome.",
	}, []string{"form", "outcome"})

	ProviderRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "kilobridge_provider_request_duration_seconds",
		Help:    "Model provider request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"form"})
)

// WebSocket metrics.
var (
	WSConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "kilobridge_ws_connections_active",
		Help: "Number of active WebSocket connections.",
	})

	WSMessagesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kilobridge_ws_messages_total",
		Help: "Total WebSocket messages sent.",
	})
)
