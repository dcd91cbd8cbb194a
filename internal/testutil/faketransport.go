package testutil

import (
	"context"
	"sync"

	"taskboard.com/taskboard/internal/push"
)

// FakeTransport is a push.Transport that delivers events on demand.
type FakeTransport struct {
	mu       sync.Mutex
	dispatch push.Dispatch

	// Error injection for testing
	DialErr error

	Dials  int
	Closes int
}

// Dial implements push.Transport.
func (f *FakeTransport) Dial(ctx context.Context, endpoint string, dispatch push.Dispatch) (push.Conn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Dials++
	if f.DialErr != nil {
		return nil, f.DialErr
	}
	f.dispatch = dispatch
	return fakeConn{f}, nil
}

// Emit delivers event as if the server had pushed it. It is a no-op before
// the first successful dial.
func (f *FakeTransport) Emit(event string, payload []byte) {
	f.mu.Lock()
	dispatch := f.dispatch
	f.mu.Unlock()
	if dispatch != nil {
		dispatch(event, payload)
	}
}

type fakeConn struct {
	t *FakeTransport
}

func (c fakeConn) Close() error {
	c.t.mu.Lock()
	defer c.t.mu.Unlock()
	c.t.Closes++
	c.t.dispatch = nil
	return nil
}
