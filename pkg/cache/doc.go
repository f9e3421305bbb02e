// Package cache stores resolved per-tenant column configurations.
//
// Column sets are fetched once per tenant reference and then reused until they
// expire or the tenant's configuration is saved. Two layers are available:
//
//   - Session: in-process map.
//   - Manager: Redis-backed store shared by every instance.
//
// Tiered combines both in a read-through fashion (session first, then Redis),
// populating the session layer on a Redis hit. It gives entries in both layers
// the same TTL. DeleteTenant drops every entry of a tenant name, whichever
// tenant id it was resolved with.
//
// # Basic Usage
//
//	redisClient := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//
//	store := cache.NewTiered(cache.NewSession(), cache.NewManager(redisClient), 30*time.Minute)
//
//	key := cache.Key{Scope: "columns", TenantName: "acme"}
//	entry, err := store.Get(ctx, key)
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// fetch from the backend, then store.Set(ctx, key, cache.NewEntry(data))
//	}
//
//	// after saving the tenant's configuration
//	store.DeleteTenant(ctx, "columns", "acme")
//
// # Metrics
//
//   - opsgrid_column_cache_hits_total{layer} - hits by layer ("session", "redis")
//   - opsgrid_column_cache_misses_total - misses across all layers
//   - opsgrid_column_cache_size_bytes{layer} - bytes written per layer
//   - opsgrid_column_cache_errors_total{operation} - failed store operations
package cache
