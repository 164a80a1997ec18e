package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AuthAttempts records authentication attempts by result (success|failure).
	AuthAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "addressbook_auth_attempts_total",
			Help: "Total number of authentication attempts",
		},
		[]string{"result"},
	)

	// CacheLookups counts contact cache lookups by outcome (hit|miss|error).
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "addressbook_cache_lookups_total",
			Help: "Total number of contact cache lookups",
		},
		[]string{"outcome"},
	)

	// EventsPublished counts invalidation events handed to the broker by result (ok|dropped).
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "addressbook_invalidation_published_total",
			Help: "Total number of invalidation events published",
		},
		[]string{"result"},
	)

	// EventsProcessed counts invalidation events handled by the worker by result (ok|retried).
	EventsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "addressbook_invalidation_processed_total",
			Help: "Total number of invalidation events processed by the worker",
		},
		[]string{"result"},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "addressbook_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
