package services

import (
	"context"
	"fmt"
	"time"

	"taskboard.com/taskboard/internal/gateway"
	"taskboard.com/taskboard/internal/logging"
	"taskboard.com/taskboard/internal/push"
	"taskboard.com/taskboard/internal/query"
	"taskboard.com/taskboard/pkg/constants"
	model "taskboard.com/taskboard/pkg/models"
)

// Realtime is the part of the push manager the task service binds to.
type Realtime interface {
	EnsureConnected(ctx context.Context) error
	Rebind(event string, h push.Handler) push.SubscriptionID
}

// TaskService is what a presentation works with: cached task lists kept
// fresh by push events, the user list and the parent candidates.
type TaskService struct {
	gateway  gateway.Gateway
	realtime Realtime
	tasks    *query.Cache[model.TaskPage]
	users    *query.Cache[[]model.User]
	logger   logging.Logger
}

type TaskServiceOption func(*taskServiceOptions)

type taskServiceOptions struct {
	staleTime time.Duration
	logger    logging.Logger
}

// WithStaleTime sets how long a fetched task list counts as fresh.
func WithStaleTime(d time.Duration) TaskServiceOption {
	return func(o *taskServiceOptions) {
		o.staleTime = d
	}
}

func WithLogger(l logging.Logger) TaskServiceOption {
	return func(o *taskServiceOptions) {
		o.logger = logging.OrNop(l)
	}
}

// NewTaskService wires the caches to gw. realtime may be nil, in which case
// lists only refresh through staleness and explicit invalidation.
func NewTaskService(gw gateway.Gateway, realtime Realtime, opts ...TaskServiceOption) *TaskService {
	o := taskServiceOptions{staleTime: query.DefaultStaleTime, logger: logging.Nop()}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return &TaskService{
		gateway:  gw,
		realtime: realtime,
		tasks:    query.New[model.TaskPage](query.WithStaleTime(o.staleTime), query.WithLogger(o.logger)),
		users:    query.New[[]model.User](query.WithStaleTime(query.Forever), query.WithLogger(o.logger)),
		logger:   o.logger,
	}
}

// Observe follows the task list for filters.
func (s *TaskService) Observe(filters query.Filters) *query.Observer[model.TaskPage] {
	return s.tasks.Observe(query.TasksKey(filters), s.fetchTasks(filters))
}

// Tasks returns the task list for filters, from cache when fresh.
func (s *TaskService) Tasks(ctx context.Context, filters query.Filters) (model.TaskPage, error) {
	snap, err := s.tasks.Get(ctx, query.TasksKey(filters), s.fetchTasks(filters))
	if err != nil {
		s.logger.Printf("services: load tasks: %v", err)
		return snap.Data, fmt.Errorf("load tasks: %w", err)
	}
	return snap.Data, nil
}

// Users returns every user. The list is fetched once per process.
func (s *TaskService) Users(ctx context.Context) ([]model.User, error) {
	snap, err := s.users.Get(ctx, query.UsersKey(), s.gateway.ListUsers)
	if err != nil {
		s.logger.Printf("services: load users: %v", err)
		return snap.Data, fmt.Errorf("load users: %w", err)
	}
	return snap.Data, nil
}

// Parents returns the top-level tasks a new subtask can be attached to.
func (s *TaskService) Parents(ctx context.Context) ([]model.Task, error) {
	page, err := s.Tasks(ctx, query.ParentFilters())
	if err != nil {
		return nil, err
	}
	parents := make([]model.Task, 0, len(page.Data))
	for _, t := range page.Data {
		if t.IsTopLevel() {
			parents = append(parents, t)
		}
	}
	return parents, nil
}

// Invalidate marks cached task lists under prefix stale and refetches the
// observed ones.
func (s *TaskService) Invalidate(prefix query.Key) int {
	return s.tasks.Invalidate(prefix)
}

// Refresh invalidates every task list.
func (s *TaskService) Refresh() int {
	return s.Invalidate(query.TasksPrefix())
}

// BindRealtime connects the push channel and rebinds every task event to a
// task list invalidation. A reconnect also invalidates, since events sent
// while the channel was down are lost. Calling it again does not stack
// handlers.
func (s *TaskService) BindRealtime(ctx context.Context) error {
	if s.realtime == nil {
		return nil
	}
	if err := s.realtime.EnsureConnected(ctx); err != nil {
		s.logger.Printf("services: push channel unavailable: %v", err)
		return err
	}
	for _, event := range constants.TaskEvents {
		event := event
		s.realtime.Rebind(event, func([]byte) {
			s.logger.Printf("services: %s received, refreshing tasks", event)
			s.Refresh()
		})
	}
	s.realtime.Rebind(push.EventReconnected, func([]byte) {
		s.logger.Printf("services: push channel reconnected, refreshing tasks")
		s.Refresh()
	})
	return nil
}

// Close stops background refetches.
func (s *TaskService) Close() {
	s.tasks.Close()
	s.users.Close()
}

func (s *TaskService) fetchTasks(filters query.Filters) query.Fetcher[model.TaskPage] {
	q := filters.Encode()
	return func(ctx context.Context) (model.TaskPage, error) {
		return s.gateway.ListTasks(ctx, q)
	}
}
