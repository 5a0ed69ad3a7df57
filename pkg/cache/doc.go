// Package cache provides the in-process response cache for the league stats API.
//
// The store keeps serialized JSON bodies keyed by path, query and caller identity:
//
// - Deterministic ETag fingerprints (xxhash64 over the serialized body)
// - TTL expiry with lazy deletion on lookup and a periodic reaper
// - A capacity bound that evicts the oldest entries first
// - Exact, prefix and wildcard invalidation patterns
// - Prometheus metrics for observability
//
// # Basic Usage
//
//	store := cache.NewStore(cache.DefaultConfig(), logger)
//
//	key := cache.Key{
//		Path:  "/matches",
//		Query: url.Values{"leagueId": []string{"42"}},
//	}.String()
//
//	entry, err := store.Put(key, json.RawMessage(body), 30*time.Second)
//	if errors.Is(err, cache.ErrUnserializable) {
//		// serve the response uncached
//	}
//
//	if entry, ok := store.Get(key); ok {
//		// entry.Data, entry.ETag
//	}
//
// # Invalidation
//
//	store.Invalidate("/matches*")          // every view of the matches route family
//	store.Invalidate("/players@public")    // a single key
//	store.Invalidate("/leagues/*/table*")  // wildcard
//
// # Reaper
//
//	reaper := cache.NewReaper(store, 2*time.Minute, logger)
//	go reaper.Run(ctx) // returns after ctx is cancelled and the last sweep finished
//
// # Metrics
//
//   - statscache_cache_hits_total - Cache hits
//   - statscache_cache_misses_total - Cache misses
//   - statscache_cache_expired_total - Entries removed after expiry
//   - statscache_cache_evictions_total - Entries evicted for capacity
//   - statscache_cache_invalidated_total - Entries removed by invalidation
//   - statscache_cache_entries - Current entry count
//   - statscache_cache_size_bytes - Current cached body bytes
//   - statscache_cache_errors_total{operation} - Cache operation errors
package cache
