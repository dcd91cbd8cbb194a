package push

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"taskboard.com/taskboard/internal/logging"
)

// Engine.IO v4 packet types.
const (
	eioOpen    = '0'
	eioClose   = '1'
	eioPing    = '2'
	eioPong    = '3'
	eioMessage = '4'
)

// Socket.IO v4 packet types, carried inside Engine.IO messages.
const (
	sioConnect      = '0'
	sioDisconnect   = '1'
	sioEvent        = '2'
	sioConnectError = '4'
)

const defaultSocketPath = "/socket.io/"

// openPacket is the handshake the server sends first.
type openPacket struct {
	SID          string `json:"sid"`
	PingInterval int    `json:"pingInterval"`
	PingTimeout  int    `json:"pingTimeout"`
}

// SocketIOTransport speaks Socket.IO v4 over a websocket only; the polling
// transport is never used.
type SocketIOTransport struct {
	dialer *websocket.Dialer
	logger logging.Logger
}

func NewSocketIOTransport(logger logging.Logger) *SocketIOTransport {
	return &SocketIOTransport{
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		logger: logging.OrNop(logger),
	}
}

// Dial connects and completes the Socket.IO handshake before returning.
// Afterwards the connection reconnects by itself until closed.
func (t *SocketIOTransport) Dial(ctx context.Context, endpoint string, dispatch Dispatch) (Conn, error) {
	wsURL, err := SocketURL(endpoint)
	if err != nil {
		return nil, err
	}
	ws, open, err := t.handshake(ctx, wsURL)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	c := &socketConn{
		transport: t,
		url:       wsURL,
		dispatch:  dispatch,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	c.setSocket(ws)
	go c.run(runCtx, ws, open)
	return c, nil
}

func (t *SocketIOTransport) handshake(ctx context.Context, wsURL string) (*websocket.Conn, openPacket, error) {
	ws, _, err := t.dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, openPacket{}, fmt.Errorf("dial %s: %w", wsURL, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		ws.SetReadDeadline(deadline)
	} else {
		ws.SetReadDeadline(time.Now().Add(10 * time.Second))
	}

	open, err := readOpen(ws)
	if err != nil {
		ws.Close()
		return nil, openPacket{}, err
	}
	if err := ws.WriteMessage(websocket.TextMessage, []byte{eioMessage, sioConnect}); err != nil {
		ws.Close()
		return nil, openPacket{}, fmt.Errorf("socket.io connect: %w", err)
	}
	for {
		_, msg, err := ws.ReadMessage()
		if err != nil {
			ws.Close()
			return nil, openPacket{}, fmt.Errorf("socket.io connect: %w", err)
		}
		if len(msg) >= 2 && msg[0] == eioMessage {
			switch msg[1] {
			case sioConnect:
				ws.SetReadDeadline(time.Time{})
				return ws, open, nil
			case sioConnectError:
				ws.Close()
				return nil, openPacket{}, fmt.Errorf("socket.io connect rejected: %s", msg[2:])
			}
		}
		if len(msg) == 1 && msg[0] == eioPing {
			ws.WriteMessage(websocket.TextMessage, []byte{eioPong})
		}
	}
}

func readOpen(ws *websocket.Conn) (openPacket, error) {
	_, msg, err := ws.ReadMessage()
	if err != nil {
		return openPacket{}, fmt.Errorf("engine.io open: %w", err)
	}
	if len(msg) == 0 || msg[0] != eioOpen {
		return openPacket{}, fmt.Errorf("engine.io open: unexpected packet %q", msg)
	}
	var open openPacket
	if err := json.Unmarshal(msg[1:], &open); err != nil {
		return openPacket{}, fmt.Errorf("engine.io open: %w", err)
	}
	return open, nil
}

type socketConn struct {
	transport *SocketIOTransport
	url       string
	dispatch  Dispatch
	cancel    context.CancelFunc
	done      chan struct{}

	mu sync.Mutex
	ws *websocket.Conn
}

func (c *socketConn) setSocket(ws *websocket.Conn) {
	c.mu.Lock()
	c.ws = ws
	c.mu.Unlock()
}

// Close stops reconnecting and closes the socket.
func (c *socketConn) Close() error {
	c.cancel()
	c.mu.Lock()
	ws := c.ws
	c.mu.Unlock()
	var err error
	if ws != nil {
		ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		err = ws.Close()
	}
	<-c.done
	return err
}

func (c *socketConn) run(ctx context.Context, ws *websocket.Conn, open openPacket) {
	defer close(c.done)
	backoff := time.Duration(0)
	for {
		err := c.serve(ctx, ws, open)
		ws.Close()
		if ctx.Err() != nil {
			return
		}
		c.transport.logger.Printf("push: socket dropped: %v", err)

		for {
			backoff = nextBackoff(backoff)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			next, nextOpen, err := c.transport.handshake(ctx, c.url)
			if err != nil {
				c.transport.logger.Printf("push: reconnect failed: %v", err)
				continue
			}
			ws, open = next, nextOpen
			c.setSocket(ws)
			if ctx.Err() != nil {
				ws.Close()
				return
			}
			backoff = 0
			c.transport.logger.Printf("push: reconnected to %s", c.url)
			c.dispatch(EventReconnected, nil)
			break
		}
	}
}

// serve reads packets until the socket fails or the server disconnects.
func (c *socketConn) serve(ctx context.Context, ws *websocket.Conn, open openPacket) error {
	timeout := time.Duration(open.PingInterval+open.PingTimeout) * time.Millisecond
	for {
		if timeout > 0 {
			ws.SetReadDeadline(time.Now().Add(timeout))
		}
		_, msg, err := ws.ReadMessage()
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if len(msg) == 0 {
			continue
		}
		switch msg[0] {
		case eioPing:
			if err := ws.WriteMessage(websocket.TextMessage, []byte{eioPong}); err != nil {
				return err
			}
		case eioClose:
			return errors.New("server closed the session")
		case eioMessage:
			if len(msg) < 2 {
				continue
			}
			switch msg[1] {
			case sioEvent:
				event, payload, err := DecodeEvent(msg[2:])
				if err != nil {
					c.transport.logger.Printf("push: %v", err)
					continue
				}
				c.dispatch(event, payload)
			case sioDisconnect:
				return errors.New("server disconnected the namespace")
			}
		}
	}
}

// DecodeEvent parses the body of a Socket.IO EVENT packet, the part after
// the "42" prefix: an optional namespace, an optional ack id and a JSON
// array holding the event name and its first argument.
func DecodeEvent(body []byte) (string, []byte, error) {
	if len(body) > 0 && body[0] == '/' {
		comma := bytes.IndexByte(body, ',')
		if comma < 0 {
			return "", nil, fmt.Errorf("malformed event packet %q", body)
		}
		body = body[comma+1:]
	}
	start := bytes.IndexByte(body, '[')
	if start < 0 {
		return "", nil, fmt.Errorf("malformed event packet %q", body)
	}
	for _, b := range body[:start] {
		if b < '0' || b > '9' {
			return "", nil, fmt.Errorf("malformed event packet %q", body)
		}
	}

	var parts []json.RawMessage
	if err := json.Unmarshal(body[start:], &parts); err != nil {
		return "", nil, fmt.Errorf("decode event packet: %w", err)
	}
	if len(parts) == 0 {
		return "", nil, errors.New("event packet without a name")
	}
	var event string
	if err := json.Unmarshal(parts[0], &event); err != nil {
		return "", nil, fmt.Errorf("decode event name: %w", err)
	}
	var payload []byte
	if len(parts) > 1 {
		payload = parts[1]
	}
	return event, payload, nil
}

// EncodeEvent builds a complete "42[...]" frame.
func EncodeEvent(event string, payload any) ([]byte, error) {
	args := []any{event}
	if payload != nil {
		args = append(args, payload)
	}
	data, err := json.Marshal(args)
	if err != nil {
		return nil, err
	}
	return append([]byte{eioMessage, sioEvent}, data...), nil
}

// SocketURL turns a service URL into the websocket URL of its Socket.IO
// endpoint.
func SocketURL(endpoint string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(endpoint))
	if err != nil {
		return "", fmt.Errorf("parse socket url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported socket url scheme %q", u.Scheme)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = defaultSocketPath
	}
	q := u.Query()
	q.Set("EIO", "4")
	q.Set("transport", "websocket")
	u.RawQuery = q.Encode()
	return u.String(), nil
}
