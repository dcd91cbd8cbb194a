package push

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/google/uuid"

	apperrors "taskboard.com/taskboard/internal/errors"
	"taskboard.com/taskboard/internal/logging"
)

// ErrClosed is returned by EnsureConnected after Close.
var ErrClosed = errors.New("push: manager closed")

// Handler is invoked for each delivered event. Handlers run on the
// connection's dispatch goroutine and should not block.
type Handler func(payload []byte)

// SubscriptionID identifies one registered handler.
type SubscriptionID string

type subscription struct {
	id      SubscriptionID
	handler Handler
}

// Manager owns the single push connection of the process and the handlers
// bound to it.
type Manager struct {
	endpoint  string
	transport Transport
	logger    logging.Logger

	dialMu sync.Mutex
	conn   Conn
	closed bool

	mu       sync.RWMutex
	handlers map[string][]subscription
}

// Option configures a Manager.
type Option func(*Manager)

// WithTransport overrides the transport chosen from the endpoint scheme.
func WithTransport(t Transport) Option {
	return func(m *Manager) {
		m.transport = t
	}
}

// WithLogger logs connection and dispatch problems to l.
func WithLogger(l logging.Logger) Option {
	return func(m *Manager) {
		m.logger = logging.OrNop(l)
	}
}

// NewManager creates a manager for endpoint. Nothing is dialed until
// EnsureConnected.
func NewManager(endpoint string, opts ...Option) *Manager {
	m := &Manager{
		endpoint: endpoint,
		logger:   logging.Nop(),
		handlers: make(map[string][]subscription),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// EnsureConnected dials the endpoint on first use and returns immediately
// afterwards. Concurrent callers share a single dial. A failed dial is
// returned and retried by the next call.
func (m *Manager) EnsureConnected(ctx context.Context) error {
	m.dialMu.Lock()
	defer m.dialMu.Unlock()

	if m.closed {
		return ErrClosed
	}
	if m.conn != nil {
		return nil
	}
	if m.endpoint == "" {
		return apperrors.NewConfigurationError("socket_url")
	}

	transport := m.transport
	if transport == nil {
		t, err := TransportFor(m.endpoint, m.logger)
		if err != nil {
			return apperrors.NewConfigurationError("socket_url")
		}
		transport = t
	}

	conn, err := transport.Dial(ctx, m.endpoint, m.dispatch)
	if err != nil {
		return &apperrors.TransportError{Op: "connect push channel", Err: err}
	}
	m.conn = conn
	m.logger.Printf("push: connected to %s", m.endpoint)
	return nil
}

// Connected reports whether a connection has been established.
func (m *Manager) Connected() bool {
	m.dialMu.Lock()
	defer m.dialMu.Unlock()
	return m.conn != nil
}

// On adds a handler for event. Registering twice delivers twice.
func (m *Manager) On(event string, h Handler) SubscriptionID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.addLocked(event, h)
}

// Off removes every handler of event.
func (m *Manager) Off(event string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.handlers, event)
}

// Remove drops one handler by id.
func (m *Manager) Remove(id SubscriptionID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for event, subs := range m.handlers {
		for i, sub := range subs {
			if sub.id != id {
				continue
			}
			subs = append(subs[:i:i], subs[i+1:]...)
			if len(subs) == 0 {
				delete(m.handlers, event)
			} else {
				m.handlers[event] = subs
			}
			return
		}
	}
}

// Rebind replaces every handler of event with h. Binding through Rebind
// keeps repeated setup from stacking duplicate handlers.
func (m *Manager) Rebind(event string, h Handler) SubscriptionID {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.handlers, event)
	return m.addLocked(event, h)
}

// Subscribed returns the sorted names of events with at least one handler.
func (m *Manager) Subscribed() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	events := make([]string, 0, len(m.handlers))
	for event := range m.handlers {
		events = append(events, event)
	}
	sort.Strings(events)
	return events
}

// Close tears down the connection. The manager cannot be reused.
func (m *Manager) Close() error {
	m.dialMu.Lock()
	defer m.dialMu.Unlock()
	m.closed = true
	if m.conn == nil {
		return nil
	}
	err := m.conn.Close()
	m.conn = nil
	return err
}

func (m *Manager) addLocked(event string, h Handler) SubscriptionID {
	id := SubscriptionID(uuid.NewString())
	m.handlers[event] = append(m.handlers[event], subscription{id: id, handler: h})
	return id
}

func (m *Manager) dispatch(event string, payload []byte) {
	m.mu.RLock()
	subs := append([]subscription(nil), m.handlers[event]...)
	m.mu.RUnlock()

	if len(subs) == 0 {
		return
	}
	m.logger.Printf("push: %s -> %d handler(s)", event, len(subs))
	for _, sub := range subs {
		sub.handler(payload)
	}
}
