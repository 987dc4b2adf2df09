package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dashboard_kel_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dashboard_kel_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Chat broker metrics
	SessionsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dashboard_kel_chat_sessions_created_total",
			Help: "Total citizen chat sessions opened",
		},
	)

	MessagesAppended = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dashboard_kel_chat_messages_total",
			Help: "Total chat messages appended",
		},
		[]string{"sender"}, // "citizen", "operator" or "system"
	)

	Claims = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dashboard_kel_chat_claims_total",
			Help: "Total session claim attempts",
		},
		[]string{"outcome"}, // "won", "repeat" or "lost"
	)

	Resolves = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dashboard_kel_chat_resolves_total",
			Help: "Total live sessions resolved back to bot mode",
		},
	)

	// Realtime metrics
	StreamClients = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dashboard_kel_stream_clients",
			Help: "Connected websocket clients",
		},
		[]string{"kind"}, // "registry" or "session"
	)

	// Auth metrics
	Logins = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dashboard_kel_logins_total",
			Help: "Total operator login attempts",
		},
		[]string{"result"}, // "ok" or "denied"
	)
)
