// Package metrics exposes the Prometheus registry and scrape handler used by statscache.
// Metrics are defined next to the code that updates them (cache, middleware,
// invalidation, statswindow, upstream) and registered via promauto, so importing
// this package never creates import cycles.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the registerer all statscache metrics are registered with.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the gatherer served by Handler.
var Gatherer = prometheus.DefaultGatherer

// Handler returns the /metrics scrape handler.
func Handler() http.Handler {
	return promhttp.InstrumentMetricHandler(
		Registry,
		promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{}),
	)
}

// Metrics Documentation
//
// Cache Metrics (pkg/cache):
//   - statscache_cache_hits_total (Counter): Lookups that found a fresh entry
//   - statscache_cache_misses_total (Counter): Lookups that found nothing or a stale entry
//   - statscache_cache_expired_total (Counter): Entries dropped because their TTL passed
//   - statscache_cache_evictions_total (Counter): Entries dropped to stay within capacity
//   - statscache_cache_invalidated_total (Counter): Entries removed by invalidation patterns
//   - statscache_cache_entries (Gauge): Stored entries
//   - statscache_cache_size_bytes (Gauge): Stored body bytes
//   - statscache_cache_errors_total{operation} (Counter): Put/invalidate failures
//
// Response Metrics (pkg/middleware):
//   - statscache_responses_total{result} (Counter): hit, miss, not_modified, bypass, uncacheable
//   - statscache_chunk_errors_total (Counter): Chunk views that fell back to the full body
//
// Invalidation Metrics (pkg/invalidation):
//   - statscache_invalidation_events_total{resource_type} (Counter): Change events handled
//   - statscache_invalidation_reconnects_total (Counter): Change feed reconnect attempts
//   - statscache_invalidation_reconnect_backoff_seconds (Histogram): Wait before reconnecting
//   - statscache_invalidation_connected (Gauge): 1 while subscribed to the change feed
//   - statscache_invalidation_dropped_total (Counter): Malformed change messages
//
// Stats Window Metrics (pkg/statswindow):
//   - statscache_statswindow_decisions_total{outcome} (Counter): Submission checks by outcome
//
// Upstream Metrics (internal/upstream):
//   - statscache_upstream_requests_total{route, status} (Counter): Forwarded requests
//   - statscache_upstream_request_duration_seconds{route} (Histogram): Upstream latency
//   - statscache_upstream_errors_total{class} (Counter): Transport failures by class
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(statscache_responses_total{result=~"hit|not_modified"}[5m])) /
//   sum(rate(statscache_responses_total[5m]))
//
//   # Change feed down
//   statscache_invalidation_connected == 0
//
//   # P95 Upstream Latency
//   histogram_quantile(0.95, rate(statscache_upstream_request_duration_seconds_bucket[5m]))
//
//   # Rejected stats submissions
//   rate(statscache_statswindow_decisions_total{outcome="rejected"}[5m])
