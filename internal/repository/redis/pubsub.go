package redis

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// EventsPubSub fans committed events out over a Redis channel.
type EventsPubSub struct {
	rdb     *redis.Client
	channel string
}

func NewEventsPubSub(rdb *redis.Client) *EventsPubSub {
	return &EventsPubSub{
		rdb:     rdb,
		channel: ChannelEvents(),
	}
}

// Publish sends body on the events channel. Pub/sub has no routing, so the
// topic is carried inside body.
func (p *EventsPubSub) Publish(ctx context.Context, _ string, body []byte) error {
	return p.rdb.Publish(ctx, p.channel, body).Err()
}
