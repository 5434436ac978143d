// Package cache memoizes bugbug schedule results per push.
//
// A push is identified by its branch and revision. bugbug computes the
// schedules of a push once, so a stored result never goes stale; stores do
// not evict on their own.
//
// Two stores are provided:
//
//   - MemoryStore keeps results for the life of the process.
//   - RedisStore shares results between processes, optionally with a TTL.
//
// # Basic Usage
//
//	store := cache.NewMemoryStore()
//
//	key := cache.Key{Branch: "autoland", Revision: "abcdef123456"}
//	entry, err := store.Get(ctx, key)
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// Query bugbug, then:
//		_ = store.Set(ctx, key, cache.NewEntry(body))
//	}
//
// # Metrics
//
//   - bugbug_cache_hits_total{layer} - Cache hits
//   - bugbug_cache_misses_total{layer} - Cache misses
//   - bugbug_cache_entries{layer} - Entries written by this process
//   - bugbug_cache_errors_total{operation} - Store errors
package cache
