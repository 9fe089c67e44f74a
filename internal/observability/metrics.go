// Package observability provides Prometheus metrics for cache and provider
// activity.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Cache lookup results.
const (
	LookupHit     = "hit"
	LookupPartial = "partial"
	LookupMiss    = "miss"
)

//nolint:gochecknoglobals // Prometheus metrics must be global for registration
var (
	// ProviderRequestsTotal counts dataset queries sent to the provider
	ProviderRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "brisket_provider_requests_total",
			Help: "Total number of dataset queries sent to the data provider",
		},
		[]string{"dataset", "status"}, // status: success, error
	)

	// ProviderRequestDuration measures provider query duration in seconds
	ProviderRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "brisket_provider_request_duration_seconds",
			Help:    "Data provider query duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 0.1s to ~100s
		},
		[]string{"dataset"},
	)

	// CacheLookupsTotal counts reconciled reads by how much the cache covered
	CacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "brisket_cache_lookups_total",
			Help: "Total number of range lookups by cache coverage",
		},
		[]string{"dataset", "result"}, // result: hit, partial, miss
	)

	// SnapshotsWrittenTotal counts interval snapshots persisted to the cache
	SnapshotsWrittenTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "brisket_snapshots_written_total",
			Help: "Total number of interval snapshots written to the cache",
		},
		[]string{"dataset"},
	)

	// CacheCorruptEntriesTotal counts snapshots skipped while reading
	CacheCorruptEntriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "brisket_cache_corrupt_entries_total",
			Help: "Total number of unreadable cache entries skipped",
		},
		[]string{"dataset"},
	)

	// SyncRunsTotal counts scheduled cache warm-up runs
	SyncRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "brisket_sync_runs_total",
			Help: "Total number of cache sync runs",
		},
		[]string{"status"},
	)
)
