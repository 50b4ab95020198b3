package di

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/goliatone/go-catalog-templates/cache"
	"github.com/goliatone/go-catalog-templates/catalog"
	"github.com/goliatone/go-catalog-templates/events"
	"github.com/goliatone/go-catalog-templates/internal/config"
)

// eventLog collects events delivered through the container bus
type eventLog struct {
	mu     sync.Mutex
	events []events.Event
}

func (l *eventLog) handle(ctx context.Context, e events.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
	return nil
}

func (l *eventLog) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.events)
}

func redisConfig(mr *miniredis.Miniredis) config.Config {
	cfg := *config.Default()
	cfg.Cache.Backend = cache.BackendRedis
	cfg.Cache.Redis.Addr = mr.Addr()
	cfg.Cache.KeyPrefix = "shop"
	cfg.Events.Backend = config.EventsRedis
	cfg.Events.RedisChannel = "catalog.events"
	return cfg
}

func TestIntegration_RedisCacheAndEvents(t *testing.T) {
	mr := miniredis.RunT(t)
	container := newTestContainer(t, redisConfig(mr))
	ctx := context.Background()

	busLog := &eventLog{}
	container.Bus().SubscribeEntity(catalog.KindCategoryTemplate, busLog.handle)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	sub := client.Subscribe(ctx, "catalog.events")
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	messages := sub.Channel()

	svc := container.CategoryTemplates()
	if err := svc.Insert(ctx, &catalog.CategoryTemplate{Name: "Grid", ViewPath: "CategoryTemplate.ProductsInGridOrLines", DisplayOrder: 1}); err != nil {
		t.Fatalf("Insert() failed: %v", err)
	}

	select {
	case msg := <-messages:
		var payload struct {
			Action     events.Action `json:"action"`
			EntityType string        `json:"entity_type"`
			Entity     struct {
				ID   int64  `json:"id"`
				Name string `json:"name"`
			} `json:"entity"`
		}
		if err := json.Unmarshal([]byte(msg.Payload), &payload); err != nil {
			t.Fatalf("invalid event payload: %v", err)
		}
		if payload.Action != events.ActionInserted || payload.EntityType != catalog.KindCategoryTemplate {
			t.Errorf("unexpected event %+v", payload)
		}
		if payload.Entity.ID != 1 || payload.Entity.Name != "Grid" {
			t.Errorf("expected the persisted entity in the payload, got %+v", payload.Entity)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the redis event")
	}

	if busLog.len() != 1 {
		t.Errorf("expected the bus to receive the event too, got %d", busLog.len())
	}

	if _, err := svc.GetAll(ctx); err != nil {
		t.Fatal(err)
	}
	const key = "shop::category_template::List::all"
	if !mr.Exists(key) {
		t.Fatalf("expected %s in redis, got keys %v", key, mr.Keys())
	}

	if err := svc.Delete(ctx, &catalog.CategoryTemplate{ID: 1}); err != nil {
		t.Fatal(err)
	}
	if mr.Exists(key) {
		t.Error("expected delete to invalidate the prefixed key")
	}
}

func TestIntegration_SharedRedisAcrossContainers(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := redisConfig(mr)
	cfg.Events.Backend = config.EventsNone

	writer := newTestContainer(t, cfg)
	reader := newTestContainer(t, cfg)
	ctx := context.Background()

	// each container has its own in-memory database; only the cache is shared
	if err := writer.ReviewTypes().Insert(ctx, &catalog.ReviewType{Name: "Quality"}); err != nil {
		t.Fatal(err)
	}
	written, err := writer.ReviewTypes().GetAll(ctx)
	if err != nil || len(written) != 1 {
		t.Fatalf("expected one review type, got %d (%v)", len(written), err)
	}

	read, err := reader.ReviewTypes().GetAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(read) != 1 || read[0].Name != "Quality" {
		t.Errorf("expected the reader to observe the shared cache entry, got %+v", read)
	}

	if err := writer.ReviewTypes().Insert(ctx, &catalog.ReviewType{Name: "Price"}); err != nil {
		t.Fatal(err)
	}
	read, err = reader.ReviewTypes().GetAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(read) != 0 {
		t.Errorf("expected the invalidation to reach the reader, got %+v", read)
	}
}

func TestIntegration_KafkaBackend(t *testing.T) {
	cfg := *config.Default()
	cfg.Events.Backend = config.EventsKafka
	cfg.Events.KafkaBrokers = []string{"127.0.0.1:9092"}

	container := newTestContainer(t, cfg)
	if container.Bus() == nil {
		t.Fatal("expected the bus to be wired alongside kafka")
	}

	cfg.Events.KafkaBrokers = nil
	if _, err := NewContainer(context.Background(), cfg); err == nil {
		t.Error("expected kafka without brokers to fail")
	}
}
