// Package catalog implements the template and lookup services of the product catalog.
//
// Each service reads through a cached repository and, after every successful
// write, publishes one event describing the change. GetByID treats id 0 and
// missing rows as absent rather than as errors.
package catalog

import (
	"context"
	"reflect"
	"strconv"

	"github.com/goliatone/go-catalog-templates/events"
	"github.com/goliatone/go-catalog-templates/repositorycache"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// CachedRepository is the persistence collaborator of a service.
// *repositorycache.CachedRepository[*E] satisfies it.
type CachedRepository[E any] interface {
	GetByID(ctx context.Context, id string, criteria ...repository.SelectCriteria) (*E, error)
	ListBy(ctx context.Context, q repositorycache.Query) ([]*E, error)
	Create(ctx context.Context, record *E, criteria ...repository.InsertCriteria) (*E, error)
	Update(ctx context.Context, record *E, criteria ...repository.UpdateCriteria) (*E, error)
	Delete(ctx context.Context, record *E) error
	Namespace() string
}

// Option customises a service.
type Option func(*serviceOptions)

type serviceOptions struct {
	logger *zap.Logger
}

// WithLogger sets the service logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *serviceOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func buildOptions(opts []Option) serviceOptions {
	o := serviceOptions{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// unpaged lifts the repository's default page size; cached lists hold every row.
var unpaged = repository.SelectPaginate(0, 0)

// allQuery lists every row ordered by display order, ties broken by id.
var allQuery = repositorycache.Query{
	Name:     "all",
	Criteria: []repository.SelectCriteria{unpaged, repository.OrderBy("display_order", "id")},
}

// EntityService provides cached reads and evented writes for one entity kind.
type EntityService[E any] struct {
	repo      CachedRepository[E]
	publisher events.Publisher
	kind      string
	logger    *zap.Logger
}

// NewEntityService builds a service over repo. The repository namespace doubles
// as the entity type of published events.
func NewEntityService[E any](repo CachedRepository[E], publisher events.Publisher, opts ...Option) *EntityService[E] {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	o := buildOptions(opts)
	kind := repo.Namespace()

	return &EntityService[E]{
		repo:      repo,
		publisher: publisher,
		kind:      kind,
		logger:    o.logger.With(zap.String("entity", kind)),
	}
}

// Kind returns the entity kind served.
func (s *EntityService[E]) Kind() string {
	return s.kind
}

// GetByID returns the entity with id. The bool is false when id is 0 or no row
// matches; neither case is an error.
func (s *EntityService[E]) GetByID(ctx context.Context, id int64) (*E, bool, error) {
	if id == 0 {
		return nil, false, nil
	}

	entity, err := s.repo.GetByID(ctx, strconv.FormatInt(id, 10))
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return entity, true, nil
}

// GetAll returns every entity ordered by display order then id.
// The slice may be shared with other callers and must not be modified.
func (s *EntityService[E]) GetAll(ctx context.Context) ([]*E, error) {
	return s.repo.ListBy(ctx, allQuery)
}

// Insert persists entity, which receives its generated id, then publishes an inserted event.
func (s *EntityService[E]) Insert(ctx context.Context, entity *E) error {
	if entity == nil {
		return invalidArgument("insert", s.kind)
	}
	if _, err := s.repo.Create(ctx, entity); err != nil {
		return err
	}
	s.logger.Debug("entity inserted")
	return events.EntityInserted(ctx, s.publisher, s.kind, entity)
}

// Update replaces the stored row matching entity's id, then publishes an updated event.
// Every column is written, zero values included. A missing row is a NotFound error.
func (s *EntityService[E]) Update(ctx context.Context, entity *E) error {
	if entity == nil {
		return invalidArgument("update", s.kind)
	}
	if _, err := s.repo.Update(ctx, entity, writeZeroValues(entity)); err != nil {
		if repository.IsRecordNotFound(err) || repository.IsSQLExpectedCountViolation(err) {
			return rowNotFound("update", s.kind, err)
		}
		return err
	}
	s.logger.Debug("entity updated")
	return events.EntityUpdated(ctx, s.publisher, s.kind, entity)
}

// Delete removes the row matching entity's id, then publishes a deleted event.
// Deleting a row that does not exist is not an error.
func (s *EntityService[E]) Delete(ctx context.Context, entity *E) error {
	if entity == nil {
		return invalidArgument("delete", s.kind)
	}
	if err := s.repo.Delete(ctx, entity); err != nil {
		return err
	}
	s.logger.Debug("entity deleted")
	return events.EntityDeleted(ctx, s.publisher, s.kind, entity)
}

// writeZeroValues makes Update persist false, 0 and "" columns, which an
// OmitZero update would skip.
func writeZeroValues[E any](entity *E) repository.UpdateCriteria {
	return func(q *bun.UpdateQuery) *bun.UpdateQuery {
		strct := reflect.ValueOf(entity).Elem()
		for _, f := range q.DB().Table(strct.Type()).DataFields {
			if f.HasZeroValue(strct) {
				q = q.Value(f.Name, "?", f.Value(strct).Interface())
			}
		}
		return q
	}
}
