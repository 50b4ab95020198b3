// Package config loads the catalog application configuration.
//
// Values come, lowest precedence first, from built-in defaults, an optional
// config file (any format viper reads), an optional .env file and CATALOG_
// prefixed environment variables, e.g. CATALOG_CACHE_BACKEND=redis.
package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/goliatone/go-catalog-templates/cache"
	"github.com/goliatone/go-catalog-templates/events"
	"github.com/goliatone/go-catalog-templates/internal/logging"
	"github.com/goliatone/go-catalog-templates/repository"
	goerrors "github.com/goliatone/go-errors"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "CATALOG"

// Event publisher backends.
const (
	EventsBus   = "bus"
	EventsRedis = "redis"
	EventsKafka = "kafka"
	EventsNone  = "none"
)

type Config struct {
	Database DatabaseConfig `mapstructure:"database" json:"database"`
	Cache    CacheConfig    `mapstructure:"cache" json:"cache"`
	Events   EventsConfig   `mapstructure:"events" json:"events"`
	Log      logging.Config `mapstructure:"log" json:"log"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver" json:"driver"`
	DSN             string        `mapstructure:"dsn" json:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" json:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" json:"conn_max_lifetime"`
	LogQueries      bool          `mapstructure:"log_queries" json:"log_queries"`
}

type CacheConfig struct {
	Backend            string        `mapstructure:"backend" json:"backend"`
	Capacity           int           `mapstructure:"capacity" json:"capacity"`
	NumShards          int           `mapstructure:"num_shards" json:"num_shards"`
	TTL                time.Duration `mapstructure:"ttl" json:"ttl"`
	EvictionPercentage int           `mapstructure:"eviction_percentage" json:"eviction_percentage"`
	KeyPrefix          string        `mapstructure:"key_prefix" json:"key_prefix"`
	Metrics            bool          `mapstructure:"metrics" json:"metrics"`
	Redis              RedisConfig   `mapstructure:"redis" json:"redis"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr" json:"addr"`
	Password string `mapstructure:"password" json:"password"`
	DB       int    `mapstructure:"db" json:"db"`
	PoolSize int    `mapstructure:"pool_size" json:"pool_size"`
}

type EventsConfig struct {
	Backend      string   `mapstructure:"backend" json:"backend"`
	RedisChannel string   `mapstructure:"redis_channel" json:"redis_channel"`
	KafkaBrokers []string `mapstructure:"kafka_brokers" json:"kafka_brokers"`
	KafkaTopic   string   `mapstructure:"kafka_topic" json:"kafka_topic"`
}

// Load reads the configuration. configFile and envFile may be empty; a missing
// envFile is ignored, a missing configFile is not.
func Load(configFile, envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, goerrors.Wrap(err, goerrors.CategoryBadInput, "load env file "+envFile)
		}
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryBadInput, "read config "+configFile)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryBadInput, "unmarshal config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	cfg := &Config{}
	_ = v.Unmarshal(cfg)
	return cfg
}

func setDefaults(v *viper.Viper) {
	cacheDefaults := cache.DefaultConfig()

	v.SetDefault("database.driver", repository.DriverSQLite)
	v.SetDefault("database.dsn", "file::memory:")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 30*time.Minute)
	v.SetDefault("database.log_queries", false)

	v.SetDefault("cache.backend", cache.BackendMemory)
	v.SetDefault("cache.capacity", cacheDefaults.Capacity)
	v.SetDefault("cache.num_shards", cacheDefaults.NumShards)
	v.SetDefault("cache.ttl", cacheDefaults.TTL)
	v.SetDefault("cache.eviction_percentage", cacheDefaults.EvictionPercentage)
	v.SetDefault("cache.key_prefix", "")
	v.SetDefault("cache.metrics", false)
	v.SetDefault("cache.redis.addr", "localhost:6379")
	v.SetDefault("cache.redis.password", "")
	v.SetDefault("cache.redis.db", 0)
	v.SetDefault("cache.redis.pool_size", cacheDefaults.Redis.PoolSize)

	v.SetDefault("events.backend", EventsBus)
	v.SetDefault("events.redis_channel", "")
	v.SetDefault("events.kafka_brokers", []string{})
	v.SetDefault("events.kafka_topic", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
}

// Validate checks every section and reports all failures as one validation error.
func (c Config) Validate() error {
	err := validation.ValidateStruct(&c,
		validation.Field(&c.Database),
		validation.Field(&c.Cache),
		validation.Field(&c.Events),
		validation.Field(&c.Log, validation.By(validLogLevel)),
	)
	if err != nil {
		return goerrors.FromOzzoValidation(err, "invalid configuration")
	}
	return nil
}

func validLogLevel(value any) error {
	cfg, _ := value.(logging.Config)
	return validation.Validate(cfg.Level, validation.In("debug", "info", "warn", "error"))
}

func (d DatabaseConfig) Validate() error {
	return validation.ValidateStruct(&d,
		validation.Field(&d.Driver, validation.Required, validation.In(repository.DriverSQLite, repository.DriverPostgres)),
		validation.Field(&d.DSN, validation.Required),
		validation.Field(&d.MaxOpenConns, validation.Min(0)),
		validation.Field(&d.MaxIdleConns, validation.Min(0)),
	)
}

func (c CacheConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Backend, validation.Required, validation.In(cache.BackendMemory, cache.BackendRedis)),
		validation.Field(&c.Capacity, validation.Min(1)),
		validation.Field(&c.NumShards, validation.Min(1)),
		validation.Field(&c.TTL, validation.Min(time.Second)),
		validation.Field(&c.EvictionPercentage, validation.Min(1), validation.Max(100)),
		validation.Field(&c.Redis),
	)
}

func (r RedisConfig) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.PoolSize, validation.Min(0)),
		validation.Field(&r.DB, validation.Min(0)),
	)
}

func (e EventsConfig) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.Backend, validation.Required, validation.In(EventsBus, EventsRedis, EventsKafka, EventsNone)),
		validation.Field(&e.KafkaBrokers, validation.When(e.Backend == EventsKafka, validation.Required)),
	)
}

// Repository converts the database section for repository.Open.
func (d DatabaseConfig) Repository() repository.DatabaseConfig {
	return repository.DatabaseConfig{
		Driver:          d.Driver,
		DSN:             d.DSN,
		MaxOpenConns:    d.MaxOpenConns,
		MaxIdleConns:    d.MaxIdleConns,
		ConnMaxLifetime: d.ConnMaxLifetime,
		LogQueries:      d.LogQueries,
	}
}

// CacheService converts the cache section for cache.NewCacheService, keeping
// the default sturdyc refresh settings.
func (c CacheConfig) CacheService() cache.Config {
	cfg := cache.DefaultConfig()
	cfg.Backend = c.Backend
	cfg.Capacity = c.Capacity
	cfg.NumShards = c.NumShards
	cfg.TTL = c.TTL
	cfg.EvictionPercentage = c.EvictionPercentage
	cfg.Redis.Addr = c.Redis.Addr
	cfg.Redis.Password = c.Redis.Password
	cfg.Redis.DB = c.Redis.DB
	cfg.Redis.PoolSize = c.Redis.PoolSize
	return cfg
}

// Kafka converts the events section for events.NewKafkaPublisher.
func (e EventsConfig) Kafka() events.KafkaConfig {
	return events.KafkaConfig{
		Brokers: e.KafkaBrokers,
		Topic:   e.KafkaTopic,
	}
}
