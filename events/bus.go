package events

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

// Handler receives events from a Bus.
type Handler func(ctx context.Context, event Event) error

type subscription struct {
	id         uint64
	entityType string
	handler    Handler
}

// Bus is an in-process publisher that calls subscribed handlers synchronously,
// in subscription order, before Publish returns.
type Bus struct {
	mu     sync.RWMutex
	nextID uint64
	subs   []subscription
	logger *zap.Logger
}

// NewBus creates an empty bus. A nil logger disables logging.
func NewBus(logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{logger: logger.Named("events")}
}

// Subscribe registers handler for every event and returns a function that removes it.
func (b *Bus) Subscribe(handler Handler) (unsubscribe func()) {
	return b.SubscribeEntity("", handler)
}

// SubscribeEntity registers handler for events of one entity type.
// An empty entityType matches every event.
func (b *Bus) SubscribeEntity(entityType string, handler Handler) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.subs = append(b.subs, subscription{id: id, entityType: entityType, handler: handler})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, s := range b.subs {
			if s.id == id {
				b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
				return
			}
		}
	}
}

// Publish delivers event to every matching handler. A failing handler does not
// stop delivery to the rest; all handler errors are joined and returned.
func (b *Bus) Publish(ctx context.Context, event Event) error {
	b.mu.RLock()
	subs := make([]subscription, len(b.subs))
	copy(subs, b.subs)
	b.mu.RUnlock()

	var errs []error
	delivered := 0
	for _, s := range subs {
		if s.entityType != "" && s.entityType != event.EntityType {
			continue
		}
		delivered++
		if err := s.handler(ctx, event); err != nil {
			b.logger.Warn("event handler failed",
				zap.String("topic", event.Topic()),
				zap.Stringer("event_id", event.ID),
				zap.Error(err),
			)
			errs = append(errs, err)
		}
	}

	b.logger.Debug("event published",
		zap.String("topic", event.Topic()),
		zap.Int("handlers", delivered),
	)
	return errors.Join(errs...)
}

// Multi publishes to each publisher in order and joins their errors.
func Multi(publishers ...Publisher) Publisher {
	return PublisherFunc(func(ctx context.Context, event Event) error {
		var errs []error
		for _, p := range publishers {
			if err := p.Publish(ctx, event); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	})
}
