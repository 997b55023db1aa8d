// Package observability provides the Prometheus collectors for cadence and
// the HTTP middleware that records bridge request metrics.
package observability

import "github.com/prometheus/client_golang/prometheus"

// LLMBuckets spans 100ms to 120s, the range of streamed completions.
var LLMBuckets = []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120}

var (
	// RequestsTotal counts bridge HTTP requests by method, route, and status class.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cadence_http_requests_total",
			Help: "HTTP bridge requests",
		},
		[]string{"method", "route", "status"},
	)

	// RequestDuration records bridge request duration.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cadence_http_request_duration_seconds",
			Help:    "HTTP bridge request duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// EventSubscribers tracks open SSE event relay connections.
	EventSubscribers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "cadence_event_subscribers_active",
			Help: "Active event stream subscribers",
		},
	)

	// ProviderRequestsTotal counts streaming requests sent to the backend.
	// Status is "ok", "api_error", or "transport_error".
	ProviderRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cadence_provider_requests_total",
			Help: "Backend requests",
		},
		[]string{"model", "status"},
	)

	// ProviderLatency records time from request start to end of stream.
	ProviderLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cadence_provider_latency_seconds",
			Help:    "Backend stream duration",
			Buckets: LLMBuckets,
		},
		[]string{"model"},
	)

	// ExchangesActive is 1 while the engine is processing.
	ExchangesActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "cadence_exchanges_active",
			Help: "Exchanges in progress",
		},
	)

	// ExchangesTotal counts finished exchanges by outcome: "final",
	// "empty", "error", "round_limit", or "cancelled".
	ExchangesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cadence_exchanges_total",
			Help: "Finished exchanges",
		},
		[]string{"outcome"},
	)

	// RoundsTotal counts streaming rounds started.
	RoundsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cadence_rounds_total",
			Help: "Streaming rounds",
		},
	)

	// StreamEventsSkipped counts malformed stream events that were ignored.
	StreamEventsSkipped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cadence_stream_events_skipped_total",
			Help: "Malformed stream events skipped",
		},
	)

	// ToolExecutionsTotal counts tool executions by tool and status.
	ToolExecutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cadence_tool_executions_total",
			Help: "Tool executions",
		},
		[]string{"provider", "tool_name", "status"},
	)

	// ToolDuration records tool execution time.
	ToolDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cadence_tool_duration_seconds",
			Help:    "Tool execution duration",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
		},
		[]string{"provider", "tool_name"},
	)

	// AuthRejectedTotal counts bridge requests rejected by authentication.
	AuthRejectedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cadence_auth_rejected_total",
			Help: "Requests rejected by authentication",
		},
	)

	// RateLimitRejectedTotal counts requests rejected by the rate limiter, by service tier.
	RateLimitRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cadence_ratelimit_rejected_total",
			Help: "Requests rejected by rate limiting",
		},
		[]string{"tier"},
	)

	// ScopeRejectedTotal counts authenticated requests lacking a required scope.
	ScopeRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cadence_scope_rejected_total",
			Help: "Requests rejected for a missing scope",
		},
		[]string{"scope"},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		EventSubscribers,
		ProviderRequestsTotal,
		ProviderLatency,
		ExchangesActive,
		ExchangesTotal,
		RoundsTotal,
		StreamEventsSkipped,
		ToolExecutionsTotal,
		ToolDuration,
		AuthRejectedTotal,
		RateLimitRejectedTotal,
		ScopeRejectedTotal,
	)
}
