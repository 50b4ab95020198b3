package catalog

import (
	"github.com/goliatone/go-catalog-templates/cache"
	"github.com/goliatone/go-catalog-templates/events"
	"github.com/goliatone/go-catalog-templates/repositorycache"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// Service aliases for the four cached entity kinds.
type (
	CategoryTemplateService     = EntityService[CategoryTemplate]
	ManufacturerTemplateService = EntityService[ManufacturerTemplate]
	ProductTemplateService      = EntityService[ProductTemplate]
	ReviewTypeService           = EntityService[ReviewType]
)

// Dependencies are the collaborators shared by every catalog service.
type Dependencies struct {
	DB            *bun.DB
	Cache         cache.CacheService
	KeySerializer cache.KeySerializer
	Publisher     events.Publisher
	Logger        *zap.Logger
}

func (d Dependencies) logger() *zap.Logger {
	if d.Logger == nil {
		return zap.NewNop()
	}
	return d.Logger
}

func (d Dependencies) keySerializer() cache.KeySerializer {
	if d.KeySerializer == nil {
		return cache.NewDefaultKeySerializer()
	}
	return d.KeySerializer
}

// Handlers returns the go-repository-bun model handlers for E.
// Catalog keys are autoincrement integers assigned by the database, so the
// uuid id hooks are no-ops.
func Handlers[E any]() repository.ModelHandlers[*E] {
	return repository.ModelHandlers[*E]{
		NewRecord:     func() *E { return new(E) },
		GetID:         func(*E) uuid.UUID { return uuid.Nil },
		SetID:         func(*E, uuid.UUID) {},
		GetIdentifier: func() string { return "id" },
	}
}

// NewRepository returns the uncached go-repository-bun repository for E.
func NewRepository[E any](db *bun.DB) repository.Repository[*E] {
	return repository.NewRepository[*E](db, Handlers[E]())
}

// NewCachedRepository wires a bun repository for E behind the shared cache.
func NewCachedRepository[E any](deps Dependencies) *repositorycache.CachedRepository[*E] {
	return repositorycache.New[*E](
		NewRepository[E](deps.DB),
		deps.Cache,
		deps.keySerializer(),
		repositorycache.WithLogger(deps.logger().Named("repositorycache")),
	)
}

func newService[E any](deps Dependencies) *EntityService[E] {
	return NewEntityService[E](NewCachedRepository[E](deps), deps.Publisher, WithLogger(deps.logger().Named("catalog")))
}

// NewCategoryTemplateService builds the cached category template service.
func NewCategoryTemplateService(deps Dependencies) *CategoryTemplateService {
	return newService[CategoryTemplate](deps)
}

// NewManufacturerTemplateService builds the cached manufacturer template service.
func NewManufacturerTemplateService(deps Dependencies) *ManufacturerTemplateService {
	return newService[ManufacturerTemplate](deps)
}

// NewProductTemplateService builds the cached product template service.
func NewProductTemplateService(deps Dependencies) *ProductTemplateService {
	return newService[ProductTemplate](deps)
}

// NewReviewTypeService builds the cached review type service.
func NewReviewTypeService(deps Dependencies) *ReviewTypeService {
	return newService[ReviewType](deps)
}

// NewProductReviewMappingService builds the cached product review mapping service.
func NewProductReviewMappingService(deps Dependencies) *ReviewTypeMappingService {
	return NewReviewTypeMappingService(
		NewCachedRepository[ProductReviewReviewTypeMapping](deps),
		deps.Publisher,
		WithLogger(deps.logger().Named("catalog")),
	)
}
