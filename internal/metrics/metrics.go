package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oleg_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "oleg_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Business metrics
	UsersRegistered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "oleg_users_registered_total",
			Help: "Total users registered",
		},
	)

	MessagesPosted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oleg_messages_posted_total",
			Help: "Total messages posted",
		},
		[]string{"room_type"}, // "dm", "channel", "thread" or "legacy"
	)

	Commands = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oleg_commands_total",
			Help: "Push-channel commands handled",
		},
		[]string{"command", "result"},
	)

	OnlineUsers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "oleg_online_users",
			Help: "Users with at least one live connection",
		},
	)

	// Push channel metrics
	Connections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "oleg_ws_connections",
			Help: "Open push-channel connections",
		},
	)

	FramesDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "oleg_ws_frames_dropped_total",
			Help: "Outbound frames dropped because a client's buffer was full",
		},
	)

	// Cache metrics
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oleg_page_cache_lookups_total",
			Help: "Message page cache lookups",
		},
		[]string{"result"}, // "hit" or "miss"
	)

	// Rate limit metrics
	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oleg_rate_limit_hits_total",
			Help: "Total rate limit hits",
		},
		[]string{"endpoint"},
	)

	BlockedRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oleg_blocked_requests_total",
			Help: "Total blocked requests",
		},
		[]string{"reason"},
	)

	// Persistence metrics
	SnapshotWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oleg_snapshot_writes_total",
			Help: "Snapshot write attempts",
		},
		[]string{"result"},
	)

	SnapshotDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "oleg_snapshot_duration_seconds",
			Help:    "Time to capture and write a snapshot",
			Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5},
		},
	)

	MirrorErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oleg_mirror_errors_total",
			Help: "Failed writes to the relational mirror",
		},
		[]string{"operation"},
	)

	// Infrastructure metrics
	RedisLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "oleg_redis_latency_seconds",
			Help:    "Redis operation latency",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05},
		},
	)

	DatabaseLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "oleg_database_latency_seconds",
			Help:    "Relational mirror query latency",
			Buckets: []float64{.001, .005, .01, .025, .05, .1},
		},
		[]string{"driver"},
	)
)
