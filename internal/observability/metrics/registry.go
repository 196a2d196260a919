// Package metrics provides centralized Prometheus metrics for the pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Bus metrics track message flow between harbor and worker
var (
	// MessagesSentTotal counts outgoing messages by actor, mode and result.
	// mode is "tell" or "hope"; result is "ok", "dropped" or "error".
	MessagesSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bus_messages_sent_total",
			Help: "Total number of messages sent on the bus",
		},
		[]string{"actor", "mode", "result"},
	)

	// MessagesHandledTotal counts consumed messages by actor and result.
	// result is "ok", "error", "expired" or "invalid".
	MessagesHandledTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bus_messages_handled_total",
			Help: "Total number of messages handled by actors",
		},
		[]string{"actor", "result"},
	)

	// MessageHandleDuration measures handler execution time per actor
	MessageHandleDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bus_message_handle_duration_seconds",
			Help:    "Time taken to handle one message",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
		},
		[]string{"actor"},
	)

	// InboxDepth tracks queued messages per actor (in-memory bus only)
	InboxDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bus_inbox_depth",
			Help: "Number of messages queued per actor inbox",
		},
		[]string{"actor"},
	)
)

// Fetch metrics track outbound HTTP work done by workers
var (
	// FetchesTotal counts fetches by kind (feed, webpage, image) and
	// status class (2xx, 3xx, 4xx, 5xx, or the synthetic status name)
	FetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fetches_total",
			Help: "Total number of outbound fetches",
		},
		[]string{"kind", "status"},
	)

	// FetchDuration measures fetch time by kind
	FetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fetch_duration_seconds",
			Help:    "Time taken for one outbound fetch",
			Buckets: []float64{0.1, 0.2, 0.4, 0.8, 1.6, 3.2, 6.4, 12.8, 25.6},
		},
		[]string{"kind"},
	)

	// FetchSize measures fetched body size in bytes
	FetchSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "fetch_size_bytes",
			Help: "Fetched body size in bytes",
			Buckets: []float64{
				100, 200, 400, 800, 1600, 3200, 6400, 12800,
				25600, 51200, 102400, 204800, 409600, 819200,
				1638400, 3276800, 6553600, 10485760, // up to 10MB
			},
		},
		[]string{"kind"},
	)
)

// Harbor metrics track persisted pipeline state
var (
	// FeedsCheckedTotal counts feeds scheduled for sync by check_feed runs
	FeedsCheckedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "feeds_checked_total",
			Help: "Total number of feeds scheduled for sync",
		},
	)

	// StorysSavedTotal counts story bulk-save outcomes
	StorysSavedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storys_saved_total",
			Help: "Total number of storys processed by bulk save",
		},
		[]string{"result"}, // result: modified, unchanged, reallocated
	)

	// FeedCreationsCleanedTotal counts feed creations dropped or retried
	// by the janitor
	FeedCreationsCleanedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feed_creations_cleaned_total",
			Help: "Total number of feed creations deleted or retried",
		},
		[]string{"action"}, // action: deleted, retry_updating, retry_pending
	)

	// ImageProbesTotal counts image probe results
	ImageProbesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "image_probes_total",
			Help: "Total number of story image probes",
		},
		[]string{"result"}, // result: ok, deny, error
	)
)

// Database metrics track database performance
var (
	// DBQueryDuration measures database query duration
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 10),
		},
		[]string{"operation"},
	)

	// DBConnectionsActive tracks active database connections
	DBConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_active",
			Help: "Number of active database connections",
		},
	)

	// DBConnectionsIdle tracks idle database connections
	DBConnectionsIdle = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_idle",
			Help: "Number of idle database connections",
		},
	)
)
