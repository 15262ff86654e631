// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livechat_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "livechat_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "route"},
	)

	// Messaging
	MessagesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livechat_messages_sent_total",
			Help: "Messages persisted",
		},
		[]string{"kind"}, // "chat" or "private"
	)

	WriteFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livechat_write_failures_total",
			Help: "Store writes that failed",
		},
		[]string{"operation"},
	)

	// Feeds
	FeedBatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livechat_feed_batches_total",
			Help: "Change batches applied to feeds",
		},
		[]string{"scope"},
	)

	FeedChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livechat_feed_changes_total",
			Help: "Changes applied to feeds",
		},
		[]string{"scope", "kind"},
	)

	StreamFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livechat_stream_failures_total",
			Help: "Subscriptions terminated by a stream error",
		},
		[]string{"scope"},
	)

	ActiveFeeds = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "livechat_active_feeds",
			Help: "Feeds currently subscribed",
		},
	)

	// Identity and progression
	IdentityLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "livechat_identity_lookups_total",
			Help: "Sender identity lookups by result",
		},
		[]string{"result"}, // "registered", "visitor", "unknown", "error"
	)

	ExperienceAwards = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "livechat_experience_awards_total",
			Help: "Experience awards persisted",
		},
	)

	LevelUps = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "livechat_level_ups_total",
			Help: "Level-ups caused by experience awards",
		},
	)

	// Transport
	WebSocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "livechat_websocket_connections",
			Help: "Open WebSocket connections",
		},
	)
)
