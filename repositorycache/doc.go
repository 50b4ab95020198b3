// Package repositorycache provides a caching decorator for the go-repository-bun
// Repository interface.
//
// # Overview
//
// CachedRepository wraps a base repository and serves named list queries from a
// cache.CacheService. Every successful write drops all cached entries of the
// entity's namespace, so a list read after a write always reflects it.
//
// # Basic Usage
//
//	base := repository.NewRepository[*catalog.ReviewType](db, catalog.Handlers[catalog.ReviewType]())
//	svc, _ := cache.NewCacheService(ctx, cache.DefaultConfig())
//
//	cached := repositorycache.New(base, svc, cache.NewDefaultKeySerializer())
//
//	types, err := cached.ListBy(ctx, repositorycache.Query{
//		Name:     "all",
//		Criteria: []repository.SelectCriteria{
//			repository.SelectPaginate(0, 0),
//			repository.OrderBy("display_order", "id"),
//		},
//	})
//
// # Keys
//
// A Query is keyed by its Name and Args, never by its Criteria:
//
//	review_type::List::all
//	product_review_review_type_mapping::List::by_product_review::5
//
// Criteria are closures and cannot be serialized reliably, which is also why List
// with raw criteria bypasses the cache.
//
// # Cached vs Pass-through Operations
//
//   - ListBy is cached.
//   - Get, GetByID, List, Count, Raw and their Tx variants go straight to the
//     base repository.
//   - Every write, including the Tx, Many and Upsert variants, goes to the base
//     repository and, on success, calls Invalidate. A failed write leaves the
//     cache untouched.
//
// # Invalidation
//
// Invalidate issues one DeleteByPrefix for "<namespace>::", honouring any prefix
// the KeySerializer adds. Parent-scoped lists such as the per product review
// mapping lists are dropped together with the "all" list. An invalidation failure
// is returned to the caller as a go-errors External error.
//
// Invalidate also bumps a per namespace generation shared by every
// CachedRepository in the process. A ListBy whose fetch overlapped an
// invalidation drops its key and reads again, so a list fetched before a write
// is never served after that write returns.
package repositorycache
