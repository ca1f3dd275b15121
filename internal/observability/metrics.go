package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collectors register themselves on the default registry through promauto.
var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "turf_requests_total",
			Help: "Total number of requests",
		},
		[]string{"route", "code", "method"},
	)

	BookingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "turf_bookings_total",
			Help: "Booking mutations by outcome",
		},
		[]string{"outcome"},
	)

	SlotConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "turf_slot_conflicts_total",
			Help: "Booking attempts rejected because the slot was taken",
		},
	)

	ChatCommands = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "turf_chat_commands_total",
			Help: "Chat messages answered locally, by command",
		},
		[]string{"command"},
	)

	CompletionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "turf_completion_seconds",
			Help:    "Duration of completion service calls",
			Buckets: prometheus.DefBuckets,
		},
	)

	CompletionFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "turf_completion_failures_total",
			Help: "Completion service calls that failed",
		},
	)

	DBTxDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "turf_db_tx_seconds",
			Help:    "Duration of DB transactions",
			Buckets: prometheus.DefBuckets,
		},
	)

	OutboxLag = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "turf_outbox_lag_seconds",
			Help: "Lag of outbox publishing",
		},
	)

	RabbitPublishRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "turf_rabbit_publish_retries_total",
			Help: "Total rabbit publish retries",
		},
	)

	RateLimitExceeded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "turf_rate_limit_exceeded_total",
			Help: "Total rate limit exceeded",
		},
	)
)
