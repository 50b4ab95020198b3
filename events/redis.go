package events

import (
	"context"
	"encoding/json"

	"github.com/go-redis/redis/v8"
	goerrors "github.com/goliatone/go-errors"
)

// RedisPublisher publishes JSON-encoded events over Redis pub/sub.
type RedisPublisher struct {
	client  redis.UniversalClient
	channel string
}

// NewRedisPublisher publishes on channel, or on each event's Topic when channel is empty.
// The caller keeps ownership of client.
func NewRedisPublisher(client redis.UniversalClient, channel string) *RedisPublisher {
	return &RedisPublisher{client: client, channel: channel}
}

func (p *RedisPublisher) Publish(ctx context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "encode event "+event.Topic())
	}

	if err := p.client.Publish(ctx, p.channelFor(event), data).Err(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryExternal, "redis publish "+event.Topic())
	}
	return nil
}

func (p *RedisPublisher) channelFor(event Event) string {
	if p.channel != "" {
		return p.channel
	}
	return event.Topic()
}
