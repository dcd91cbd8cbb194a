package mutation

import (
	"context"
	"errors"
	"fmt"
	"sync"

	apperrors "taskboard.com/taskboard/internal/errors"
	"taskboard.com/taskboard/internal/gateway"
	"taskboard.com/taskboard/internal/logging"
	"taskboard.com/taskboard/internal/query"
	model "taskboard.com/taskboard/pkg/models"
)

// ErrMutationPending rejects a submit while a mutation of the same kind is
// still in flight.
var ErrMutationPending = errors.New("mutation already pending")

// Kind names the mutation a submit performs.
type Kind string

const (
	KindCreate Kind = "create"
	KindUpdate Kind = "update"
	KindDelete Kind = "delete"
)

func (k Kind) pastTense() string {
	return string(k) + "d"
}

// Phase is where the last mutation of a kind stands.
type Phase int

const (
	PhaseIdle Phase = iota
	PhasePending
	PhaseSucceeded
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhasePending:
		return "pending"
	case PhaseSucceeded:
		return "succeeded"
	case PhaseFailed:
		return "failed"
	}
	return "idle"
}

// Result is the terminal state of one submit. Declined is set when a
// delete was not confirmed and nothing was sent.
type Result struct {
	Kind     Kind
	Phase    Phase
	Task     model.Task
	Err      error
	Declined bool
}

// Invalidator marks cached queries stale.
type Invalidator interface {
	Invalidate(prefix query.Key) int
}

// Orchestrator runs create, update and delete against the gateway and keeps
// the cache, the dialog and the notifications consistent with the outcome.
// The cache is only ever invalidated; results are never written into it.
type Orchestrator struct {
	gateway  gateway.Gateway
	cache    Invalidator
	feedback Feedback
	logger   logging.Logger

	mu     sync.Mutex
	phases map[Kind]Phase
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger logs failed mutations to l.
func WithLogger(l logging.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logging.OrNop(l)
	}
}

// New returns an orchestrator that reports to feedback unless a submit
// carries its own through ContextWithFeedback. A nil feedback discards
// effects.
func New(gw gateway.Gateway, cache Invalidator, feedback Feedback, opts ...Option) *Orchestrator {
	if feedback == nil {
		feedback = nopFeedback{}
	}
	o := &Orchestrator{
		gateway:  gw,
		cache:    cache,
		feedback: feedback,
		logger:   logging.Nop(),
		phases:   make(map[Kind]Phase),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return o
}

// Phase reports the state of the last mutation of kind.
func (o *Orchestrator) Phase(kind Kind) Phase {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.phases[kind]
}

// SubmitCreate creates a task from the dialog form.
func (o *Orchestrator) SubmitCreate(ctx context.Context, in model.TaskInput) Result {
	if err := o.begin(KindCreate); err != nil {
		return Result{Kind: KindCreate, Phase: PhaseIdle, Err: err}
	}
	task, err := o.gateway.CreateTask(ctx, in)
	return o.finishDialog(ctx, KindCreate, task, err)
}

// SubmitUpdate saves the dialog form over an existing task.
func (o *Orchestrator) SubmitUpdate(ctx context.Context, id int64, in model.TaskInput) Result {
	if err := o.begin(KindUpdate); err != nil {
		return Result{Kind: KindUpdate, Phase: PhaseIdle, Err: err}
	}
	if id <= 0 {
		return o.finishDialog(ctx, KindUpdate, model.Task{}, apperrors.ErrTaskIDRequired)
	}
	task, err := o.gateway.UpdateTask(ctx, id, in)
	return o.finishDialog(ctx, KindUpdate, task, err)
}

// SubmitDelete asks confirmer first and deletes only on a yes. No dialog is
// involved, so only notifications are emitted.
func (o *Orchestrator) SubmitDelete(ctx context.Context, task model.Task, confirmer Confirmer) Result {
	if err := o.begin(KindDelete); err != nil {
		return Result{Kind: KindDelete, Phase: PhaseIdle, Task: task, Err: err}
	}
	if confirmer == nil {
		o.settle(KindDelete, PhaseIdle)
		return Result{Kind: KindDelete, Phase: PhaseIdle, Task: task, Declined: true}
	}
	ok, err := confirmer.Confirm(ctx, task)
	if err != nil || !ok {
		if err != nil {
			o.logger.Printf("mutation: delete confirmation for task %d failed: %v", task.ID, err)
		}
		o.settle(KindDelete, PhaseIdle)
		return Result{Kind: KindDelete, Phase: PhaseIdle, Task: task, Err: err, Declined: true}
	}

	if task.ID <= 0 {
		err = apperrors.ErrTaskIDRequired
	} else {
		err = o.gateway.DeleteTask(ctx, task.ID)
	}
	if err != nil {
		o.settle(KindDelete, PhaseFailed)
		o.logger.Printf("mutation: delete task %d failed: %v", task.ID, err)
		o.feedbackFor(ctx).Notify(failure(KindDelete, err))
		return Result{Kind: KindDelete, Phase: PhaseFailed, Task: task, Err: err}
	}

	o.settle(KindDelete, PhaseSucceeded)
	o.cache.Invalidate(query.TasksPrefix())
	o.feedbackFor(ctx).Notify(success(KindDelete))
	return Result{Kind: KindDelete, Phase: PhaseSucceeded, Task: task}
}

func (o *Orchestrator) begin(kind Kind) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.phases[kind] == PhasePending {
		return fmt.Errorf("%s task: %w", kind, ErrMutationPending)
	}
	o.phases[kind] = PhasePending
	return nil
}

func (o *Orchestrator) settle(kind Kind, phase Phase) {
	o.mu.Lock()
	o.phases[kind] = phase
	o.mu.Unlock()
}

// finishDialog applies the side effects of a create or update: success
// invalidates, closes the dialog and notifies; failure closes the dialog and
// notifies without touching the cache.
func (o *Orchestrator) finishDialog(ctx context.Context, kind Kind, task model.Task, err error) Result {
	feedback := o.feedbackFor(ctx)
	if err != nil {
		o.settle(kind, PhaseFailed)
		o.logger.Printf("mutation: %s task failed: %v", kind, err)
		feedback.CloseDialog()
		feedback.Notify(failure(kind, err))
		return Result{Kind: kind, Phase: PhaseFailed, Task: task, Err: err}
	}

	o.settle(kind, PhaseSucceeded)
	o.cache.Invalidate(query.TasksPrefix())
	feedback.CloseDialog()
	feedback.Notify(success(kind))
	return Result{Kind: kind, Phase: PhaseSucceeded, Task: task}
}

func (o *Orchestrator) feedbackFor(ctx context.Context) Feedback {
	if fb, ok := ctx.Value(feedbackKey{}).(Feedback); ok && fb != nil {
		return fb
	}
	return o.feedback
}

func success(kind Kind) Notification {
	return Notification{Level: LevelSuccess, Message: "Task " + kind.pastTense()}
}

func failure(kind Kind, err error) Notification {
	return Notification{
		Level:   LevelError,
		Message: fmt.Sprintf("Failed to %s task: %s", kind, apperrors.UserMessage(err)),
	}
}
