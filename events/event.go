// Package events notifies interested parties after catalog entities change.
//
// Services publish one Event per successful write, after the row is persisted and
// the cache invalidated. Publishers deliver the event in-process (Bus), over Redis
// pub/sub or to Kafka; NopPublisher discards it.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Action identifies the kind of change an Event reports.
type Action string

const (
	ActionInserted Action = "inserted"
	ActionUpdated  Action = "updated"
	ActionDeleted  Action = "deleted"
)

// TopicPrefix is prepended to every event topic.
const TopicPrefix = "catalog"

// Event is the envelope delivered to subscribers. Entity holds the changed
// entity as it was passed to the write, after the repository filled in its id.
type Event struct {
	ID         uuid.UUID `json:"id"`
	Action     Action    `json:"action"`
	EntityType string    `json:"entity_type"`
	Entity     any       `json:"entity"`
	OccurredAt time.Time `json:"occurred_at"`
}

// NewEvent stamps a new event with a random id and the current UTC time.
func NewEvent(action Action, entityType string, entity any) Event {
	return Event{
		ID:         uuid.New(),
		Action:     action,
		EntityType: entityType,
		Entity:     entity,
		OccurredAt: time.Now().UTC(),
	}
}

// Topic returns catalog.<entity_type>.<action>, e.g. catalog.review_type.inserted.
func (e Event) Topic() string {
	return TopicPrefix + "." + e.EntityType + "." + string(e.Action)
}

// Publisher delivers events. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, event Event) error

func (f PublisherFunc) Publish(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// NopPublisher discards every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }

// EntityInserted publishes an inserted event for entity.
func EntityInserted(ctx context.Context, p Publisher, entityType string, entity any) error {
	return p.Publish(ctx, NewEvent(ActionInserted, entityType, entity))
}

// EntityUpdated publishes an updated event for entity.
func EntityUpdated(ctx context.Context, p Publisher, entityType string, entity any) error {
	return p.Publish(ctx, NewEvent(ActionUpdated, entityType, entity))
}

// EntityDeleted publishes a deleted event for entity.
func EntityDeleted(ctx context.Context, p Publisher, entityType string, entity any) error {
	return p.Publish(ctx, NewEvent(ActionDeleted, entityType, entity))
}
