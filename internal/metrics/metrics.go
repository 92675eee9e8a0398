package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Batch metrics
	BatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "newsnotify_batches_total",
			Help: "Total number of publish batches received",
		},
		[]string{"status"},
	)

	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "newsnotify_messages_total",
			Help: "Total number of batch messages by outcome",
		},
		[]string{"outcome"},
	)

	// Decode metrics
	DecodeErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "newsnotify_decode_errors_total",
			Help: "Total number of payload decode failures",
		},
	)

	// Rate limiting metrics
	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "newsnotify_rate_limit_hits_total",
			Help: "Total number of rate limit rejections",
		},
		[]string{"window"},
	)

	// Enrichment metrics
	EnrichmentDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "newsnotify_enrichment_duration_seconds",
			Help:    "Duration of enrichment calls in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	EnrichmentErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "newsnotify_enrichment_errors_total",
			Help: "Total number of failed enrichment calls",
		},
	)

	// Store metrics
	StoreDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "newsnotify_store_duration_seconds",
			Help:    "Duration of persistence writes in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	StoreErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "newsnotify_store_errors_total",
			Help: "Total number of failed persistence writes",
		},
	)

	// Detached task metrics
	TasksQueued = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "newsnotify_tasks_queued",
			Help: "Current depth of the detached task queue",
		},
	)

	TasksDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "newsnotify_tasks_dropped_total",
			Help: "Total number of detached tasks dropped because the queue was full",
		},
	)

	// DLQ metrics
	DLQWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "newsnotify_dlq_writes_total",
			Help: "Total number of messages written to the dead letter queue",
		},
		[]string{"reason"},
	)
)
