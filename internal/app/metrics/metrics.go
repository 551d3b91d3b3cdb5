// Package metrics exposes the application's Prometheus collectors.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "halogen",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "halogen",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "halogen",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	wsConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "halogen",
			Subsystem: "ws",
			Name:      "open_connections",
			Help:      "Currently open WebSocket connections.",
		},
	)

	rpcCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "halogen",
			Subsystem: "rpc",
			Name:      "calls_total",
			Help:      "Total number of RPC method calls.",
		},
		[]string{"method", "status"},
	)

	chatMessages = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "halogen",
			Subsystem: "chat",
			Name:      "messages_total",
			Help:      "Total number of chat messages posted.",
		},
	)

	pushDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "halogen",
			Subsystem: "push",
			Name:      "deliveries_total",
			Help:      "Push notification delivery attempts by channel and outcome.",
		},
		[]string{"channel", "outcome"},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		wsConnections,
		rpcCalls,
		chatMessages,
		pushDeliveries,
	)
}

// IncrementInFlight marks an HTTP request as started.
func IncrementInFlight() { httpInFlight.Inc() }

// DecrementInFlight marks an HTTP request as finished.
func DecrementInFlight() { httpInFlight.Dec() }

// RecordHTTPRequest records one handled HTTP request.
func RecordHTTPRequest(method, path, status string, duration time.Duration) {
	httpRequests.WithLabelValues(method, path, status).Inc()
	httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// WSConnectionOpened records a new WebSocket connection.
func WSConnectionOpened() { wsConnections.Inc() }

// WSConnectionClosed records a closed WebSocket connection.
func WSConnectionClosed() { wsConnections.Dec() }

// RecordRPCCall records one RPC dispatch.
func RecordRPCCall(method, status string) {
	rpcCalls.WithLabelValues(method, status).Inc()
}

// RecordChatMessage records one posted chat message.
func RecordChatMessage() { chatMessages.Inc() }

// RecordPushDelivery records a push delivery attempt.
func RecordPushDelivery(channel, outcome string) {
	pushDeliveries.WithLabelValues(channel, outcome).Inc()
}

// Handler serves the registry over HTTP.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
