package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks lookups served from the store
	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "statscache_cache_hits_total",
			Help: "Total number of response cache hits",
		},
	)

	// CacheMisses tracks lookups that found nothing fresh
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "statscache_cache_misses_total",
			Help: "Total number of response cache misses",
		},
	)

	// CacheExpired tracks entries removed because their TTL elapsed
	CacheExpired = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "statscache_cache_expired_total",
			Help: "Total number of cache entries removed after expiry",
		},
	)

	// CacheEvictions tracks entries removed to honor the capacity bound
	CacheEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "statscache_cache_evictions_total",
			Help: "Total number of cache entries evicted for capacity",
		},
	)

	// CacheInvalidated tracks entries removed by invalidation patterns
	CacheInvalidated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "statscache_cache_invalidated_total",
			Help: "Total number of cache entries removed by invalidation",
		},
	)

	// CacheEntries tracks the number of stored entries
	CacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "statscache_cache_entries",
			Help: "Current number of cache entries",
		},
	)

	// CacheSize tracks stored body bytes
	CacheSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "statscache_cache_size_bytes",
			Help: "Current size of cached bodies in bytes",
		},
	)

	// CacheErrors tracks cache operation errors
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "statscache_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"operation"}, // "put", "invalidate"
	)
)
