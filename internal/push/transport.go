package push

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"taskboard.com/taskboard/internal/logging"
)

// EventReconnected is dispatched by a connection after it comes back from a
// drop. Events sent while it was down are not replayed, so listeners should
// resynchronize.
const EventReconnected = "push:reconnected"

// Dispatch receives every event delivered by a connection.
type Dispatch func(event string, payload []byte)

// Conn is an established push connection. It keeps delivering events,
// reconnecting on its own, until Close.
type Conn interface {
	Close() error
}

// Transport opens push connections to an endpoint.
type Transport interface {
	Dial(ctx context.Context, endpoint string, dispatch Dispatch) (Conn, error)
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, endpoint string, dispatch Dispatch) (Conn, error)

func (f TransportFunc) Dial(ctx context.Context, endpoint string, dispatch Dispatch) (Conn, error) {
	return f(ctx, endpoint, dispatch)
}

// Reconnect backoff shared by the transports.
const (
	minBackoff = time.Second
	maxBackoff = 5 * time.Second
)

func nextBackoff(d time.Duration) time.Duration {
	if d < minBackoff {
		return minBackoff
	}
	d *= 2
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

// TransportFor picks the transport for an endpoint by scheme: redis:// and
// rediss:// use Redis pub/sub, anything else speaks Socket.IO.
func TransportFor(endpoint string, logger logging.Logger) (Transport, error) {
	u, err := url.Parse(strings.TrimSpace(endpoint))
	if err != nil {
		return nil, fmt.Errorf("parse push endpoint: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "redis", "rediss", "unix":
		return NewRedisTransport(logger), nil
	case "http", "https", "ws", "wss":
		return NewSocketIOTransport(logger), nil
	default:
		return nil, fmt.Errorf("unsupported push endpoint scheme %q", u.Scheme)
	}
}
