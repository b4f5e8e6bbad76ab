package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FeedEventsTotal tracks change events published per entity and operation
	FeedEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "explorer_feed_events_total",
			Help: "Total number of change events published on the bus",
		},
		[]string{"entity", "op"},
	)

	// FeedErrorsTotal tracks change feed failures per entity
	FeedErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "explorer_feed_errors_total",
			Help: "Total number of change feed fetch or open failures",
		},
		[]string{"entity", "kind"},
	)

	// FeedReconnectsTotal tracks successful feed reopen attempts
	FeedReconnectsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "explorer_feed_reconnects_total",
			Help: "Total number of change feed reconnects",
		},
		[]string{"entity"},
	)

	// FeedReaderState exposes the reader state as a one-hot gauge
	FeedReaderState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "explorer_feed_reader_state",
			Help: "Current change feed reader state (1 for the active state)",
		},
		[]string{"entity", "state"},
	)

	// FeedLastSequence tracks the last published change sequence per entity
	FeedLastSequence = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "explorer_feed_last_sequence",
			Help: "Sequence number of the last published change event",
		},
		[]string{"entity"},
	)

	// IntegrityErrorsTotal tracks records skipped as malformed
	IntegrityErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "explorer_integrity_errors_total",
			Help: "Total number of malformed records skipped",
		},
		[]string{"entity", "step"},
	)

	// RecentStoreSize tracks how many items each recent store holds
	RecentStoreSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "explorer_recent_store_size",
			Help: "Number of items retained by the recent-item store",
		},
		[]string{"entity"},
	)

	// BusHandlerErrorsTotal tracks subscriber failures caught by the bus
	BusHandlerErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "explorer_bus_handler_errors_total",
			Help: "Total number of bus handler errors and panics",
		},
		[]string{"entity", "kind"},
	)

	// GatewayConnections tracks open client connections
	GatewayConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "explorer_gateway_connections",
			Help: "Number of open gateway connections",
		},
	)

	// GatewayRequestsTotal tracks requests per event and outcome
	GatewayRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "explorer_gateway_requests_total",
			Help: "Total number of gateway requests",
		},
		[]string{"event", "outcome"},
	)

	// GatewayRequestLatency tracks handler latency
	GatewayRequestLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "explorer_gateway_request_latency_seconds",
			Help:    "Gateway request handling latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"event"},
	)

	// GatewayPushesTotal tracks room pushes delivered or dropped
	GatewayPushesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "explorer_gateway_pushes_total",
			Help: "Total number of room pushes",
		},
		[]string{"room", "result"},
	)

	// CacheLookupsTotal tracks cache-store lookups by kind and result
	CacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "explorer_cache_lookups_total",
			Help: "Total number of cache lookups",
		},
		[]string{"kind", "result"},
	)

	// EngineCallsTotal tracks execution engine calls
	EngineCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "explorer_engine_calls_total",
			Help: "Total number of execution engine calls",
		},
		[]string{"method", "result"},
	)

	// EngineLatency tracks execution engine call latency
	EngineLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "explorer_engine_latency_seconds",
			Help:    "Execution engine call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// DBConnectionPoolUsage tracks database connection pool usage percentage
	DBConnectionPoolUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "explorer_db_connection_pool_usage_percent",
			Help: "Percentage of database connection pool in use",
		},
	)
)
