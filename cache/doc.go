// Package cache provides the caching contracts used by the catalog services.
//
// # Overview
//
// The package exports:
//
//   - CacheService: read-through GetOrFetch plus Delete and DeleteByPrefix invalidation
//   - GetOrFetch: a type-safe generic wrapper over CacheService.GetOrFetch
//   - KeySerializer: builds stable cache keys from a method name and arguments
//   - Namespace: derives the per-entity key namespace from a model type
//   - NewCacheService: builds the configured backend (sturdyc in memory, or Redis)
//
// # Key Layout
//
// Keys are namespaced by entity kind so one shared cache can serve every service:
//
//	category_template::List::all
//	product_review_review_type_mapping::List::by_product_review::5
//
// Writes invalidate a whole kind with DeleteByPrefix(ctx, NamespacePrefix(ns)).
//
// # Basic Usage
//
//	svc, err := cache.NewCacheService(ctx, cache.DefaultConfig())
//	serializer := cache.NewDefaultKeySerializer()
//	key := serializer.SerializeKey("review_type::List", "all")
//
//	types, err := cache.GetOrFetch(ctx, svc, key, func(ctx context.Context) ([]*ReviewType, error) {
//		types, _, err := repo.List(ctx, repository.OrderBy("display_order", "id"))
//		return types, err
//	})
//
// # Backends
//
// The memory backend returns the same slice to every caller until the entry is
// invalidated, so cached values are read-only. The redis backend decodes a fresh copy on
// each hit using msgpack and the fetch function's declared result type.
//
// # Function Arguments
//
// The default serializer formats function values with %p. Those keys are stable only
// within one process; pass named arguments instead when the cache is shared.
package cache
