package events

import (
	"context"

	"github.com/redis/rueidis"
)

// RedisPublisher announces events on Redis pub/sub. The event name is the
// channel, which is what the client's redis push transport subscribes to.
type RedisPublisher struct {
	client rueidis.Client
	prefix string
}

func NewRedisPublisher(client rueidis.Client, channelPrefix string) *RedisPublisher {
	return &RedisPublisher{
		client: client,
		prefix: channelPrefix,
	}
}

func (r *RedisPublisher) Publish(ctx context.Context, event Event) error {
	payload := string(event.Payload)
	if payload == "" {
		payload = "{}"
	}
	cmd := r.client.B().Publish().Channel(r.prefix + event.Name).Message(payload).Build()
	return r.client.Do(ctx, cmd).Error()
}
