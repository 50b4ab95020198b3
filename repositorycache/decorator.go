package repositorycache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/goliatone/go-catalog-templates/cache"
	goerrors "github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// Interface assertion to ensure CachedRepository implements Repository[T]
var _ repository.Repository[any] = (*CachedRepository[any])(nil)

// Query names a cacheable list read. Name and Args form the cache key, so two
// queries with the same Name and Args must select the same rows.
type Query struct {
	Name     string
	Args     []any
	Criteria []repository.SelectCriteria
}

// tableNamer is implemented by the go-repository-bun repository.
type tableNamer interface {
	TableName() string
}

// generations counts invalidations per key prefix, shared by every
// CachedRepository in the process.
var generations sync.Map

func generationFor(prefix string) *atomic.Uint64 {
	g, _ := generations.LoadOrStore(prefix, new(atomic.Uint64))
	return g.(*atomic.Uint64)
}

// errStaleRead keeps a list fetched across an invalidation out of the cache.
var errStaleRead = errors.New("repositorycache: list read overlapped a write")

// CachedRepository decorates a base repository with read-through list caching
// and namespace-wide invalidation after every successful write.
type CachedRepository[T any] struct {
	base          repository.Repository[T]
	cache         cache.CacheService
	keySerializer cache.KeySerializer
	namespace     string
	prefix        string
	generation    *atomic.Uint64
	logger        *zap.Logger
}

// Option customises a CachedRepository.
type Option func(*options)

type options struct {
	namespace string
	logger    *zap.Logger
}

// WithNamespace overrides the key namespace derived from the model.
func WithNamespace(namespace string) Option {
	return func(o *options) {
		o.namespace = namespace
	}
}

// WithLogger sets the logger used for cache activity.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// New creates a new CachedRepository that wraps the base repository with caching.
// The namespace defaults to the base table name, then to cache.Namespace of T.
func New[T any](base repository.Repository[T], cacheService cache.CacheService, keySerializer cache.KeySerializer, opts ...Option) *CachedRepository[T] {
	o := options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}

	namespace := o.namespace
	if namespace == "" {
		if tn, ok := base.(tableNamer); ok {
			namespace = tn.TableName()
		}
	}
	if namespace == "" {
		var zero T
		namespace = cache.Namespace(zero)
	}

	prefix := cache.NamespacePrefix(keySerializer.SerializeKey(namespace))
	return &CachedRepository[T]{
		base:          base,
		cache:         cacheService,
		keySerializer: keySerializer,
		namespace:     namespace,
		prefix:        prefix,
		generation:    generationFor(prefix),
		logger:        o.logger.With(zap.String("namespace", namespace)),
	}
}

// Namespace reports the key namespace this repository caches under.
func (c *CachedRepository[T]) Namespace() string {
	return c.namespace
}

// Key returns the cache key a query is stored under.
func (c *CachedRepository[T]) Key(q Query) string {
	return c.keySerializer.SerializeKey(c.namespace+cache.KeySeparator+"List", append([]any{q.Name}, q.Args...)...)
}

// ListBy runs q through the cache. Results are shared with other callers
// of the same query and must not be mutated.
//
// A read that overlaps an invalidation is never left in the cache: its key is
// dropped and the rows are read again from the base repository.
func (c *CachedRepository[T]) ListBy(ctx context.Context, q Query) ([]T, error) {
	key := c.Key(q)
	generation := c.generation.Load()

	records, err := cache.GetOrFetch(ctx, c.cache, key, func(ctx context.Context) ([]T, error) {
		c.logger.Debug("cache miss", zap.String("key", key))
		records, err := c.list(ctx, q.Criteria)
		if err == nil && c.generation.Load() != generation {
			return nil, errStaleRead
		}
		return records, err
	})
	switch {
	case err == nil && c.generation.Load() == generation:
		return records, nil
	case err != nil && !errors.Is(err, errStaleRead):
		return nil, err
	}

	c.logger.Debug("list overlapped a write", zap.String("key", key))
	if err := c.cache.Delete(ctx, key); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryExternal, "drop "+key)
	}
	return c.list(ctx, q.Criteria)
}

func (c *CachedRepository[T]) list(ctx context.Context, criteria []repository.SelectCriteria) ([]T, error) {
	records, _, err := c.base.List(ctx, criteria...)
	return records, err
}

// Invalidate drops every cached entry in the namespace, including parent-scoped lists.
func (c *CachedRepository[T]) Invalidate(ctx context.Context) error {
	c.generation.Add(1)
	if err := c.cache.DeleteByPrefix(ctx, c.prefix); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryExternal, "invalidate "+c.namespace)
	}
	c.logger.Debug("cache invalidated", zap.String("prefix", c.prefix))
	return nil
}

// invalidateAfter runs Invalidate when a write succeeded.
func (c *CachedRepository[T]) invalidateAfter(ctx context.Context, err error) error {
	if err != nil {
		return err
	}
	return c.Invalidate(ctx)
}

// Get passes through to the base repository.
func (c *CachedRepository[T]) Get(ctx context.Context, criteria ...repository.SelectCriteria) (T, error) {
	return c.base.Get(ctx, criteria...)
}

// GetTx passes through to the base repository.
func (c *CachedRepository[T]) GetTx(ctx context.Context, tx bun.IDB, criteria ...repository.SelectCriteria) (T, error) {
	return c.base.GetTx(ctx, tx, criteria...)
}

// GetByID passes through to the base repository.
func (c *CachedRepository[T]) GetByID(ctx context.Context, id string, criteria ...repository.SelectCriteria) (T, error) {
	return c.base.GetByID(ctx, id, criteria...)
}

// GetByIDTx passes through to the base repository.
func (c *CachedRepository[T]) GetByIDTx(ctx context.Context, tx bun.IDB, id string, criteria ...repository.SelectCriteria) (T, error) {
	return c.base.GetByIDTx(ctx, tx, id, criteria...)
}

// List passes through uncached. Criteria are closures and cannot be keyed; use ListBy.
func (c *CachedRepository[T]) List(ctx context.Context, criteria ...repository.SelectCriteria) ([]T, int, error) {
	return c.base.List(ctx, criteria...)
}

// ListTx passes through uncached.
func (c *CachedRepository[T]) ListTx(ctx context.Context, tx bun.IDB, criteria ...repository.SelectCriteria) ([]T, int, error) {
	return c.base.ListTx(ctx, tx, criteria...)
}

// Count passes through uncached.
func (c *CachedRepository[T]) Count(ctx context.Context, criteria ...repository.SelectCriteria) (int, error) {
	return c.base.Count(ctx, criteria...)
}

// CountTx passes through uncached.
func (c *CachedRepository[T]) CountTx(ctx context.Context, tx bun.IDB, criteria ...repository.SelectCriteria) (int, error) {
	return c.base.CountTx(ctx, tx, criteria...)
}

// GetByIdentifier passes through to the base repository.
func (c *CachedRepository[T]) GetByIdentifier(ctx context.Context, identifier string, criteria ...repository.SelectCriteria) (T, error) {
	return c.base.GetByIdentifier(ctx, identifier, criteria...)
}

// GetByIdentifierTx passes through to the base repository.
func (c *CachedRepository[T]) GetByIdentifierTx(ctx context.Context, tx bun.IDB, identifier string, criteria ...repository.SelectCriteria) (T, error) {
	return c.base.GetByIdentifierTx(ctx, tx, identifier, criteria...)
}

// Raw executes a raw SQL query against the base repository.
func (c *CachedRepository[T]) Raw(ctx context.Context, sql string, args ...any) ([]T, error) {
	return c.base.Raw(ctx, sql, args...)
}

// RawTx executes a raw SQL query within a transaction.
func (c *CachedRepository[T]) RawTx(ctx context.Context, tx bun.IDB, sql string, args ...any) ([]T, error) {
	return c.base.RawTx(ctx, tx, sql, args...)
}

// Create inserts the record, then invalidates every cached list in the namespace.
func (c *CachedRepository[T]) Create(ctx context.Context, record T, criteria ...repository.InsertCriteria) (T, error) {
	result, err := c.base.Create(ctx, record, criteria...)
	return result, c.invalidateAfter(ctx, err)
}

// CreateTx inserts the record within a transaction, then invalidates the namespace.
func (c *CachedRepository[T]) CreateTx(ctx context.Context, tx bun.IDB, record T, criteria ...repository.InsertCriteria) (T, error) {
	result, err := c.base.CreateTx(ctx, tx, record, criteria...)
	return result, c.invalidateAfter(ctx, err)
}

// CreateMany inserts the records, then invalidates the namespace.
func (c *CachedRepository[T]) CreateMany(ctx context.Context, records []T, criteria ...repository.InsertCriteria) ([]T, error) {
	result, err := c.base.CreateMany(ctx, records, criteria...)
	return result, c.invalidateAfter(ctx, err)
}

// CreateManyTx inserts the records within a transaction, then invalidates the namespace.
func (c *CachedRepository[T]) CreateManyTx(ctx context.Context, tx bun.IDB, records []T, criteria ...repository.InsertCriteria) ([]T, error) {
	result, err := c.base.CreateManyTx(ctx, tx, records, criteria...)
	return result, c.invalidateAfter(ctx, err)
}

// GetOrCreate may insert, so it invalidates like Create.
func (c *CachedRepository[T]) GetOrCreate(ctx context.Context, record T) (T, error) {
	result, err := c.base.GetOrCreate(ctx, record)
	return result, c.invalidateAfter(ctx, err)
}

// GetOrCreateTx may insert, so it invalidates like Create.
func (c *CachedRepository[T]) GetOrCreateTx(ctx context.Context, tx bun.IDB, record T) (T, error) {
	result, err := c.base.GetOrCreateTx(ctx, tx, record)
	return result, c.invalidateAfter(ctx, err)
}

// Update writes the record, then invalidates every cached list in the namespace.
func (c *CachedRepository[T]) Update(ctx context.Context, record T, criteria ...repository.UpdateCriteria) (T, error) {
	result, err := c.base.Update(ctx, record, criteria...)
	return result, c.invalidateAfter(ctx, err)
}

// UpdateTx writes the record within a transaction, then invalidates the namespace.
func (c *CachedRepository[T]) UpdateTx(ctx context.Context, tx bun.IDB, record T, criteria ...repository.UpdateCriteria) (T, error) {
	result, err := c.base.UpdateTx(ctx, tx, record, criteria...)
	return result, c.invalidateAfter(ctx, err)
}

// UpdateMany writes the records, then invalidates the namespace.
func (c *CachedRepository[T]) UpdateMany(ctx context.Context, records []T, criteria ...repository.UpdateCriteria) ([]T, error) {
	result, err := c.base.UpdateMany(ctx, records, criteria...)
	return result, c.invalidateAfter(ctx, err)
}

// UpdateManyTx writes the records within a transaction, then invalidates the namespace.
func (c *CachedRepository[T]) UpdateManyTx(ctx context.Context, tx bun.IDB, records []T, criteria ...repository.UpdateCriteria) ([]T, error) {
	result, err := c.base.UpdateManyTx(ctx, tx, records, criteria...)
	return result, c.invalidateAfter(ctx, err)
}

// Upsert inserts or updates the record, then invalidates the namespace.
func (c *CachedRepository[T]) Upsert(ctx context.Context, record T, criteria ...repository.UpdateCriteria) (T, error) {
	result, err := c.base.Upsert(ctx, record, criteria...)
	return result, c.invalidateAfter(ctx, err)
}

// UpsertTx inserts or updates the record within a transaction, then invalidates the namespace.
func (c *CachedRepository[T]) UpsertTx(ctx context.Context, tx bun.IDB, record T, criteria ...repository.UpdateCriteria) (T, error) {
	result, err := c.base.UpsertTx(ctx, tx, record, criteria...)
	return result, c.invalidateAfter(ctx, err)
}

// UpsertMany inserts or updates the records, then invalidates the namespace.
func (c *CachedRepository[T]) UpsertMany(ctx context.Context, records []T, criteria ...repository.UpdateCriteria) ([]T, error) {
	result, err := c.base.UpsertMany(ctx, records, criteria...)
	return result, c.invalidateAfter(ctx, err)
}

// UpsertManyTx inserts or updates the records within a transaction, then invalidates the namespace.
func (c *CachedRepository[T]) UpsertManyTx(ctx context.Context, tx bun.IDB, records []T, criteria ...repository.UpdateCriteria) ([]T, error) {
	result, err := c.base.UpsertManyTx(ctx, tx, records, criteria...)
	return result, c.invalidateAfter(ctx, err)
}

// Delete removes the record, then invalidates every cached list in the namespace.
func (c *CachedRepository[T]) Delete(ctx context.Context, record T) error {
	return c.invalidateAfter(ctx, c.base.Delete(ctx, record))
}

// DeleteTx removes the record within a transaction, then invalidates the namespace.
func (c *CachedRepository[T]) DeleteTx(ctx context.Context, tx bun.IDB, record T) error {
	return c.invalidateAfter(ctx, c.base.DeleteTx(ctx, tx, record))
}

// DeleteMany removes the matching records, then invalidates the namespace.
func (c *CachedRepository[T]) DeleteMany(ctx context.Context, criteria ...repository.DeleteCriteria) error {
	return c.invalidateAfter(ctx, c.base.DeleteMany(ctx, criteria...))
}

// DeleteManyTx removes the matching records within a transaction, then invalidates the namespace.
func (c *CachedRepository[T]) DeleteManyTx(ctx context.Context, tx bun.IDB, criteria ...repository.DeleteCriteria) error {
	return c.invalidateAfter(ctx, c.base.DeleteManyTx(ctx, tx, criteria...))
}

// DeleteWhere removes the matching records, then invalidates the namespace.
func (c *CachedRepository[T]) DeleteWhere(ctx context.Context, criteria ...repository.DeleteCriteria) error {
	return c.invalidateAfter(ctx, c.base.DeleteWhere(ctx, criteria...))
}

// DeleteWhereTx removes the matching records within a transaction, then invalidates the namespace.
func (c *CachedRepository[T]) DeleteWhereTx(ctx context.Context, tx bun.IDB, criteria ...repository.DeleteCriteria) error {
	return c.invalidateAfter(ctx, c.base.DeleteWhereTx(ctx, tx, criteria...))
}

// ForceDelete removes the record bypassing soft delete, then invalidates the namespace.
func (c *CachedRepository[T]) ForceDelete(ctx context.Context, record T) error {
	return c.invalidateAfter(ctx, c.base.ForceDelete(ctx, record))
}

// ForceDeleteTx removes the record within a transaction bypassing soft delete, then invalidates the namespace.
func (c *CachedRepository[T]) ForceDeleteTx(ctx context.Context, tx bun.IDB, record T) error {
	return c.invalidateAfter(ctx, c.base.ForceDeleteTx(ctx, tx, record))
}

// Handlers returns the model handlers from the base repository
func (c *CachedRepository[T]) Handlers() repository.ModelHandlers[T] {
	return c.base.Handlers()
}
