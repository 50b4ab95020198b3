package cacheinfra

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	goerrors "github.com/goliatone/go-errors"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"
)

const scanBatchSize = 100

// redisService stores msgpack-encoded values in Redis so every process
// sharing the server observes the same entries and the same invalidations.
type redisService struct {
	client redis.UniversalClient
	ttl    time.Duration
	logger *zap.Logger
	owned  bool
}

// RedisOption customises a redis backed cache service.
type RedisOption func(*redisService)

// WithRedisLogger sets the logger used to report undecodable entries.
func WithRedisLogger(logger *zap.Logger) RedisOption {
	return func(s *redisService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewRedisService connects to the configured Redis server and verifies the connection.
func NewRedisService(ctx context.Context, cfg Config, opts ...RedisOption) (*redisService, error) {
	cfg.Backend = BackendRedis
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Redis.Addr,
		Password:    cfg.Redis.Password,
		DB:          cfg.Redis.DB,
		PoolSize:    cfg.Redis.PoolSize,
		DialTimeout: cfg.Redis.DialTimeout,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, goerrors.Wrap(err, goerrors.CategoryExternal, "cache: redis ping "+cfg.Redis.Addr)
	}

	s := NewRedisServiceFromClient(client, cfg.TTL, opts...)
	s.owned = true
	return s, nil
}

// Close releases the client when the service created it.
func (s *redisService) Close() error {
	if !s.owned {
		return nil
	}
	return s.client.Close()
}

// NewRedisServiceFromClient wraps an existing client, which the caller keeps ownership of.
func NewRedisServiceFromClient(client redis.UniversalClient, ttl time.Duration, opts ...RedisOption) *redisService {
	s := &redisService{
		client: client,
		ttl:    ttl,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetOrFetch decodes the stored entry into the fetch function's result type.
// On a miss, or when the stored bytes no longer decode, it fetches and stores a fresh value.
func (s *redisService) GetOrFetch(ctx context.Context, key string, fetchFn any) (any, error) {
	resultType, err := validateFetchFn(fetchFn)
	if err != nil {
		return nil, err
	}

	data, err := s.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		value, decodeErr := decodeAs(resultType, data)
		if decodeErr == nil {
			return value, nil
		}
		s.logger.Warn("discarding undecodable cache entry",
			zap.String("key", key),
			zap.Error(decodeErr),
		)
	case !errors.Is(err, redis.Nil):
		return nil, goerrors.Wrap(err, goerrors.CategoryExternal, fmt.Sprintf("cache: redis get %q", key))
	}

	result, err := callFetchFn(ctx, fetchFn)
	if err != nil {
		return nil, err
	}

	payload, err := msgpack.Marshal(result)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, fmt.Sprintf("cache: encode %q", key))
	}

	if err := s.client.Set(ctx, key, payload, s.ttl).Err(); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryExternal, fmt.Sprintf("cache: redis set %q", key))
	}

	return result, nil
}

// Delete removes a single key.
func (s *redisService) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryExternal, fmt.Sprintf("cache: redis del %q", key))
	}
	return nil
}

// DeleteByPrefix scans for keys starting with prefix and deletes them in batches.
func (s *redisService) DeleteByPrefix(ctx context.Context, prefix string) error {
	iter := s.client.Scan(ctx, 0, escapeGlob(prefix)+"*", scanBatchSize).Iterator()

	batch := make([]string, 0, scanBatchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := s.client.Del(ctx, batch...).Err(); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryExternal, fmt.Sprintf("cache: redis del prefix %q", prefix))
		}
		batch = batch[:0]
		return nil
	}

	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == scanBatchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := iter.Err(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryExternal, fmt.Sprintf("cache: redis scan prefix %q", prefix))
	}

	return flush()
}

func decodeAs(t reflect.Type, data []byte) (any, error) {
	ptr := reflect.New(t)
	if err := msgpack.Unmarshal(data, ptr.Interface()); err != nil {
		return nil, err
	}
	return ptr.Elem().Interface(), nil
}

var globEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)

func escapeGlob(s string) string {
	return globEscaper.Replace(s)
}
