package cacheinfra

import (
	"context"
	"errors"
	"io"
	"reflect"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// Service is the method set shared by every backend in this package.
type Service interface {
	GetOrFetch(ctx context.Context, key string, fetchFn any) (any, error)
	Delete(ctx context.Context, key string) error
	DeleteByPrefix(ctx context.Context, prefix string) error
}

// Cache request outcomes recorded by the instrumented service.
const (
	ResultHit   = "hit"
	ResultMiss  = "miss"
	ResultError = "error"
)

// Metrics holds the Prometheus collectors for cache activity.
type Metrics struct {
	Requests      *prometheus.CounterVec
	Invalidations *prometheus.CounterVec
}

// NewMetrics creates the cache collectors and registers them with reg.
// Collectors already registered under the same names are reused.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "catalog",
			Subsystem: "cache",
			Name:      "requests_total",
			Help:      "Cache read-through requests partitioned by outcome.",
		},
		[]string{"result"},
	)
	invalidations := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "catalog",
			Subsystem: "cache",
			Name:      "invalidations_total",
			Help:      "Cache invalidations partitioned by scope.",
		},
		[]string{"scope"},
	)

	var err error
	if requests, err = registerCounterVec(reg, requests); err != nil {
		return nil, err
	}
	if invalidations, err = registerCounterVec(reg, invalidations); err != nil {
		return nil, err
	}

	return &Metrics{Requests: requests, Invalidations: invalidations}, nil
}

func registerCounterVec(reg prometheus.Registerer, c *prometheus.CounterVec) (*prometheus.CounterVec, error) {
	if reg == nil {
		return c, nil
	}
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
		}
		return nil, err
	}
	return c, nil
}

type instrumentedService struct {
	next    Service
	metrics *Metrics
}

// NewInstrumentedService decorates next with hit/miss/error and invalidation counters.
func NewInstrumentedService(next Service, metrics *Metrics) *instrumentedService {
	return &instrumentedService{next: next, metrics: metrics}
}

// GetOrFetch records a miss when the backend had to call fetchFn.
// The wrapper keeps fetchFn's exact signature so typed backends still see the result type.
func (s *instrumentedService) GetOrFetch(ctx context.Context, key string, fetchFn any) (any, error) {
	if _, err := validateFetchFn(fetchFn); err != nil {
		s.metrics.Requests.WithLabelValues(ResultError).Inc()
		return nil, err
	}

	var missed atomic.Bool
	fnValue := reflect.ValueOf(fetchFn)
	wrapped := reflect.MakeFunc(fnValue.Type(), func(args []reflect.Value) []reflect.Value {
		missed.Store(true)
		return fnValue.Call(args)
	}).Interface()

	result, err := s.next.GetOrFetch(ctx, key, wrapped)
	switch {
	case err != nil:
		s.metrics.Requests.WithLabelValues(ResultError).Inc()
	case missed.Load():
		s.metrics.Requests.WithLabelValues(ResultMiss).Inc()
	default:
		s.metrics.Requests.WithLabelValues(ResultHit).Inc()
	}
	return result, err
}

func (s *instrumentedService) Delete(ctx context.Context, key string) error {
	s.metrics.Invalidations.WithLabelValues("key").Inc()
	return s.next.Delete(ctx, key)
}

func (s *instrumentedService) DeleteByPrefix(ctx context.Context, prefix string) error {
	s.metrics.Invalidations.WithLabelValues("prefix").Inc()
	return s.next.DeleteByPrefix(ctx, prefix)
}

func (s *instrumentedService) Close() error {
	if closer, ok := s.next.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
