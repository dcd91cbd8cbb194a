package mutation

import (
	"context"
	"sync"

	model "taskboard.com/taskboard/pkg/models"
)

type Level int

const (
	LevelSuccess Level = iota
	LevelError
)

func (l Level) String() string {
	if l == LevelError {
		return "error"
	}
	return "success"
}

// Notification is a short message shown to the user after a mutation.
type Notification struct {
	Level   Level
	Message string
}

// Feedback receives the user-facing side effects of a mutation.
type Feedback interface {
	CloseDialog()
	Notify(Notification)
}

type feedbackKey struct{}

// ContextWithFeedback routes the effects of submits made with the returned
// context to fb instead of the orchestrator's own feedback. Callers running
// several mutations at once use it to keep each one's effects apart.
func ContextWithFeedback(ctx context.Context, fb Feedback) context.Context {
	return context.WithValue(ctx, feedbackKey{}, fb)
}

// Confirmer asks the user to confirm a destructive action. It blocks until
// the user answers.
type Confirmer interface {
	Confirm(ctx context.Context, task model.Task) (bool, error)
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(ctx context.Context, task model.Task) (bool, error)

func (f ConfirmFunc) Confirm(ctx context.Context, task model.Task) (bool, error) {
	return f(ctx, task)
}

// Confirmed answers yes without asking.
var Confirmed Confirmer = ConfirmFunc(func(context.Context, model.Task) (bool, error) { return true, nil })

// Effect is one recorded side effect. Exactly one of CloseDialog and
// Notification is meaningful.
type Effect struct {
	CloseDialog  bool
	Notification *Notification
}

// Recorder is a Feedback that keeps effects in order so they can be
// replayed later, for example on a UI event loop.
type Recorder struct {
	mu      sync.Mutex
	effects []Effect
}

func (r *Recorder) CloseDialog() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.effects = append(r.effects, Effect{CloseDialog: true})
}

func (r *Recorder) Notify(n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.effects = append(r.effects, Effect{Notification: &n})
}

// Effects returns the recorded effects in order.
func (r *Recorder) Effects() []Effect {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Effect(nil), r.effects...)
}

// Drain returns the recorded effects and forgets them.
func (r *Recorder) Drain() []Effect {
	r.mu.Lock()
	defer r.mu.Unlock()
	effects := r.effects
	r.effects = nil
	return effects
}

// Notifications returns only the recorded notifications.
func (r *Recorder) Notifications() []Notification {
	var out []Notification
	for _, e := range r.Effects() {
		if e.Notification != nil {
			out = append(out, *e.Notification)
		}
	}
	return out
}

type nopFeedback struct{}

func (nopFeedback) CloseDialog()        {}
func (nopFeedback) Notify(Notification) {}
