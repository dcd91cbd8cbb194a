package push

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/rueidis"

	config "taskboard.com/taskboard/internal/configs"
	"taskboard.com/taskboard/internal/logging"
)

// DefaultPattern matches every task event channel.
const DefaultPattern = "task:*"

// RedisTransport receives events over Redis pub/sub. Each event name is a
// channel and the message is the payload.
type RedisTransport struct {
	pattern string
	logger  logging.Logger
}

func NewRedisTransport(logger logging.Logger) *RedisTransport {
	return &RedisTransport{pattern: DefaultPattern, logger: logging.OrNop(logger)}
}

// Dial connects to the Redis server at endpoint and subscribes to the
// event pattern in the background.
func (t *RedisTransport) Dial(ctx context.Context, endpoint string, dispatch Dispatch) (Conn, error) {
	client, err := config.NewRedisClient(endpoint)
	if err != nil {
		return nil, err
	}
	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	c := &redisConn{client: client, cancel: cancel, done: make(chan struct{})}
	go c.run(runCtx, t, dispatch)
	return c, nil
}

type redisConn struct {
	client rueidis.Client
	cancel context.CancelFunc
	done   chan struct{}
}

func (c *redisConn) run(ctx context.Context, t *RedisTransport, dispatch Dispatch) {
	defer close(c.done)
	backoff := time.Duration(0)
	for resubscribe := false; ; resubscribe = true {
		if resubscribe {
			dispatch(EventReconnected, nil)
		}
		cmd := c.client.B().Psubscribe().Pattern(t.pattern).Build()
		err := c.client.Receive(ctx, cmd, func(msg rueidis.PubSubMessage) {
			dispatch(msg.Channel, []byte(msg.Message))
		})
		if ctx.Err() != nil {
			return
		}
		t.logger.Printf("push: redis subscription ended: %v", err)
		backoff = nextBackoff(backoff)
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
	}
}

func (c *redisConn) Close() error {
	c.cancel()
	<-c.done
	c.client.Close()
	return nil
}
