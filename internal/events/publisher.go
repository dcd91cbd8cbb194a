package events

import (
	"context"
	"errors"
)

// Event is a task change announced to push subscribers.
type Event struct {
	Name    string
	Payload []byte
}

type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

var ErrPublisherClosed = errors.New("publisher closed")

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, event Event) error

func (f PublisherFunc) Publish(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// Recorder is an in-memory Publisher that keeps every event, for tests and
// for running without subscribers.
type Recorder struct {
	events chan Event
}

func NewRecorder(capacity int) *Recorder {
	return &Recorder{events: make(chan Event, capacity)}
}

func (r *Recorder) Publish(ctx context.Context, event Event) error {
	select {
	case r.events <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Events delivers published events in order.
func (r *Recorder) Events() <-chan Event {
	return r.events
}
