package di

import (
	"context"
	"errors"
	"io"

	"github.com/go-redis/redis/v8"
	"github.com/goliatone/go-catalog-templates/cache"
	"github.com/goliatone/go-catalog-templates/catalog"
	"github.com/goliatone/go-catalog-templates/events"
	"github.com/goliatone/go-catalog-templates/internal/config"
	"github.com/goliatone/go-catalog-templates/internal/logging"
	"github.com/goliatone/go-catalog-templates/repository"
	"github.com/goliatone/go-catalog-templates/repositorycache"
	goerrors "github.com/goliatone/go-errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// Container wires the catalog services from a config.Config.
// It owns the database, cache and publisher connections and releases them on Close.
type Container struct {
	config        config.Config
	logger        *zap.Logger
	db            *bun.DB
	cacheService  cache.CacheService
	keySerializer cache.KeySerializer
	bus           *events.Bus
	publisher     events.Publisher
	closers       []func() error

	categoryTemplates     *catalog.CategoryTemplateService
	manufacturerTemplates *catalog.ManufacturerTemplateService
	productTemplates      *catalog.ProductTemplateService
	reviewTypes           *catalog.ReviewTypeService
	reviewTypeMappings    *catalog.ReviewTypeMappingService
}

// Option customises NewContainer.
type Option func(*options)

type options struct {
	logger     *zap.Logger
	registerer prometheus.Registerer
}

// WithLogger replaces the logger built from the log section.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithRegisterer registers cache metrics on reg instead of the default registerer.
// Metrics are only collected when cache.metrics is enabled.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) {
		o.registerer = reg
	}
}

// NewContainer opens every connection described by cfg and builds the services.
// Connections opened before a failure are closed again.
func NewContainer(ctx context.Context, cfg config.Config, opts ...Option) (*Container, error) {
	o := options{registerer: prometheus.DefaultRegisterer}
	for _, opt := range opts {
		opt(&o)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Container{config: cfg, logger: o.logger}
	if c.logger == nil {
		logger, err := logging.New(cfg.Log)
		if err != nil {
			return nil, err
		}
		c.logger = logger
	}

	if err := c.init(ctx, o); err != nil {
		c.Close()
		return nil, err
	}

	c.logger.Info("container ready",
		zap.String("database", cfg.Database.Driver),
		zap.String("cache", cfg.Cache.Backend),
		zap.String("events", cfg.Events.Backend),
	)
	return c, nil
}

// NewContainerWithDefaults builds a container over an in-memory sqlite database
// and the in-process cache.
func NewContainerWithDefaults(ctx context.Context, opts ...Option) (*Container, error) {
	return NewContainer(ctx, *config.Default(), opts...)
}

func (c *Container) init(ctx context.Context, o options) error {
	db, err := repository.Open(ctx, c.config.Database.Repository(), c.logger)
	if err != nil {
		return err
	}
	c.db = db
	c.closers = append(c.closers, db.Close)

	cacheOpts := []cache.Option{cache.WithLogger(c.logger.Named("cache"))}
	if c.config.Cache.Metrics {
		cacheOpts = append(cacheOpts, cache.WithMetrics(o.registerer))
	}
	c.cacheService, err = cache.NewCacheService(ctx, c.config.Cache.CacheService(), cacheOpts...)
	if err != nil {
		return err
	}
	if closer, ok := c.cacheService.(io.Closer); ok {
		c.closers = append(c.closers, closer.Close)
	}

	c.keySerializer = cache.NewDefaultKeySerializer()
	if c.config.Cache.KeyPrefix != "" {
		c.keySerializer = cache.NewPrefixedKeySerializer(c.config.Cache.KeyPrefix)
	}

	c.bus = events.NewBus(c.logger)
	if c.publisher, err = c.newPublisher(ctx); err != nil {
		return err
	}

	deps := c.Dependencies()
	c.categoryTemplates = catalog.NewCategoryTemplateService(deps)
	c.manufacturerTemplates = catalog.NewManufacturerTemplateService(deps)
	c.productTemplates = catalog.NewProductTemplateService(deps)
	c.reviewTypes = catalog.NewReviewTypeService(deps)
	c.reviewTypeMappings = catalog.NewProductReviewMappingService(deps)
	return nil
}

// newPublisher fans events out to the in-process bus and, when configured,
// to redis or kafka.
func (c *Container) newPublisher(ctx context.Context) (events.Publisher, error) {
	cfg := c.config.Events

	switch cfg.Backend {
	case config.EventsNone:
		return events.NopPublisher{}, nil
	case config.EventsRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     c.config.Cache.Redis.Addr,
			Password: c.config.Cache.Redis.Password,
			DB:       c.config.Cache.Redis.DB,
		})
		c.closers = append(c.closers, client.Close)
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryExternal, "ping redis event channel")
		}
		return events.Multi(c.bus, events.NewRedisPublisher(client, cfg.RedisChannel)), nil
	case config.EventsKafka:
		kafka, err := events.NewKafkaPublisher(cfg.Kafka(), c.logger.Named("kafka"))
		if err != nil {
			return nil, err
		}
		c.closers = append(c.closers, kafka.Close)
		return events.Multi(c.bus, kafka), nil
	default:
		return c.bus, nil
	}
}

// Migrate creates the catalog tables when they do not exist yet.
func (c *Container) Migrate(ctx context.Context) error {
	return repository.CreateTables(ctx, c.db, catalog.Models()...)
}

// Close releases connections in reverse order of creation.
func (c *Container) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}

// Dependencies returns the collaborators shared by the catalog services.
func (c *Container) Dependencies() catalog.Dependencies {
	return catalog.Dependencies{
		DB:            c.db,
		Cache:         c.cacheService,
		KeySerializer: c.keySerializer,
		Publisher:     c.publisher,
		Logger:        c.logger,
	}
}

// Config returns the configuration the container was built from.
func (c *Container) Config() config.Config { return c.config }

// Logger returns the root logger; components derive named children from it.
func (c *Container) Logger() *zap.Logger { return c.logger }

// DB returns the shared bun database handle.
func (c *Container) DB() *bun.DB { return c.db }

// CacheService returns the cache backing every cached repository.
func (c *Container) CacheService() cache.CacheService { return c.cacheService }

// KeySerializer returns the serializer used for cache keys, prefixed when cache.key_prefix is set.
func (c *Container) KeySerializer() cache.KeySerializer { return c.keySerializer }

// Bus receives every published event unless the events backend is none.
func (c *Container) Bus() *events.Bus { return c.bus }

// CategoryTemplates returns the category template service.
func (c *Container) CategoryTemplates() *catalog.CategoryTemplateService {
	return c.categoryTemplates
}

// ManufacturerTemplates returns the manufacturer template service.
func (c *Container) ManufacturerTemplates() *catalog.ManufacturerTemplateService {
	return c.manufacturerTemplates
}

// ProductTemplates returns the product template service.
func (c *Container) ProductTemplates() *catalog.ProductTemplateService {
	return c.productTemplates
}

// ReviewTypes returns the review type service.
func (c *Container) ReviewTypes() *catalog.ReviewTypeService {
	return c.reviewTypes
}

// ReviewTypeMappings returns the product review to review type mapping service.
func (c *Container) ReviewTypeMappings() *catalog.ReviewTypeMappingService {
	return c.reviewTypeMappings
}

// NewCachedRepository builds a cached repository for E sharing the container's
// database, cache and key serializer.
//
// Since Go methods cannot have type parameters, this is provided as a package-level function.
// Example: NewCachedRepository[catalog.ReviewType](container)
func NewCachedRepository[E any](c *Container) *repositorycache.CachedRepository[*E] {
	return catalog.NewCachedRepository[E](c.Dependencies())
}
