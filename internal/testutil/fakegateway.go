// Package testutil provides testing utilities.
package testutil

import (
	"context"
	"net/url"
	"sort"
	"strconv"
	"sync"

	apperrors "taskboard.com/taskboard/internal/errors"
	"taskboard.com/taskboard/pkg/constants"
	model "taskboard.com/taskboard/pkg/models"
)

// FakeGateway is an in-memory implementation of gateway.Gateway for testing.
// It nests subtasks and computes progress the way the task service does.
type FakeGateway struct {
	mu     sync.Mutex
	nextID int64
	tasks  map[int64]model.Task
	users  []model.User

	// Error injection for testing
	ListTasksErr  error
	CreateTaskErr error
	UpdateTaskErr error
	DeleteTaskErr error
	ListUsersErr  error

	// ListGate, when set, blocks ListTasks until it is closed or receives.
	ListGate chan struct{}

	// Call counters
	ListCalls   int
	CreateCalls int
	UpdateCalls int
	DeleteCalls int
	UserCalls   int

	// Requests recorded in call order
	Queries []string
	Created []model.TaskInput
	Updated map[int64][]model.TaskInput
}

// NewFakeGateway creates an empty FakeGateway with two users.
func NewFakeGateway() *FakeGateway {
	return &FakeGateway{
		nextID:  1,
		tasks:   make(map[int64]model.Task),
		Updated: make(map[int64][]model.TaskInput),
		users: []model.User{
			{ID: 1, Firstname: "Ada", Lastname: "Lovelace"},
			{ID: 2, Firstname: "Alan", Lastname: "Turing"},
		},
	}
}

// AddTask stores a task directly and returns it with its assigned ID.
func (f *FakeGateway) AddTask(title string, status constants.TaskStatus, parentID *int64) model.Task {
	f.mu.Lock()
	defer f.mu.Unlock()
	task := model.Task{ID: f.nextID, Title: title, Status: status, ParentID: parentID}
	f.tasks[task.ID] = task
	f.nextID++
	return task
}

// Task returns the stored task with id.
func (f *FakeGateway) Task(id int64) (model.Task, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[id]
	return t, ok
}

// Len returns the number of stored tasks, subtasks included.
func (f *FakeGateway) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.tasks)
}

// Calls returns the call counters under the lock.
func (f *FakeGateway) Calls() (list, create, update, del int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ListCalls, f.CreateCalls, f.UpdateCalls, f.DeleteCalls
}

// ListTasks implements gateway.Gateway.
func (f *FakeGateway) ListTasks(ctx context.Context, query string) (model.TaskPage, error) {
	f.mu.Lock()
	f.ListCalls++
	f.Queries = append(f.Queries, query)
	gate := f.ListGate
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return model.TaskPage{}, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ListTasksErr != nil {
		return model.TaskPage{}, f.ListTasksErr
	}

	values, _ := url.ParseQuery(query)
	include := values.Get("include") == "subtasks"
	status := constants.TaskStatus(values.Get("status"))
	assignee, _ := strconv.ParseInt(values.Get("assignee"), 10, 64)

	var top []model.Task
	for _, t := range f.sortedLocked() {
		if t.ParentID != nil {
			continue
		}
		if status != "" && t.Status != status {
			continue
		}
		if assignee > 0 && (t.AssigneeID == nil || *t.AssigneeID != assignee) {
			continue
		}
		children := f.childrenLocked(t.ID)
		progress := model.ComputeProgress(t.Status, children)
		t.Progress = &progress
		if include {
			t.Children = children
		}
		t.User = f.userLocked(t.AssigneeID)
		top = append(top, t)
	}
	return model.TaskPage{Data: top}, nil
}

// CreateTask implements gateway.Gateway.
func (f *FakeGateway) CreateTask(ctx context.Context, in model.TaskInput) (model.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.CreateCalls++
	f.Created = append(f.Created, in)
	if f.CreateTaskErr != nil {
		return model.Task{}, f.CreateTaskErr
	}
	task := model.Task{ID: f.nextID, Status: constants.StatusToDo}
	applyInput(&task, in)
	f.tasks[task.ID] = task
	f.nextID++
	return task, nil
}

// UpdateTask implements gateway.Gateway.
func (f *FakeGateway) UpdateTask(ctx context.Context, id int64, in model.TaskInput) (model.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.UpdateCalls++
	f.Updated[id] = append(f.Updated[id], in)
	if f.UpdateTaskErr != nil {
		return model.Task{}, f.UpdateTaskErr
	}
	task, ok := f.tasks[id]
	if !ok {
		return model.Task{}, &apperrors.TransportError{Op: "update task", StatusCode: 404, Message: apperrors.ErrTaskNotFound.Message}
	}
	applyInput(&task, in)
	f.tasks[id] = task
	return task, nil
}

// DeleteTask implements gateway.Gateway. Subtasks go with their parent.
func (f *FakeGateway) DeleteTask(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.DeleteCalls++
	if f.DeleteTaskErr != nil {
		return f.DeleteTaskErr
	}
	if _, ok := f.tasks[id]; !ok {
		return &apperrors.TransportError{Op: "delete task", StatusCode: 404, Message: apperrors.ErrTaskNotFound.Message}
	}
	delete(f.tasks, id)
	for childID, t := range f.tasks {
		if t.ParentID != nil && *t.ParentID == id {
			delete(f.tasks, childID)
		}
	}
	return nil
}

// ListUsers implements gateway.Gateway.
func (f *FakeGateway) ListUsers(ctx context.Context) ([]model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.UserCalls++
	if f.ListUsersErr != nil {
		return nil, f.ListUsersErr
	}
	return append([]model.User(nil), f.users...), nil
}

func (f *FakeGateway) sortedLocked() []model.Task {
	out := make([]model.Task, 0, len(f.tasks))
	for _, t := range f.tasks {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (f *FakeGateway) childrenLocked(parentID int64) []model.Task {
	var children []model.Task
	for _, t := range f.sortedLocked() {
		if t.ParentID != nil && *t.ParentID == parentID {
			t.User = f.userLocked(t.AssigneeID)
			children = append(children, t)
		}
	}
	return children
}

func (f *FakeGateway) userLocked(id *int64) *model.User {
	if id == nil {
		return nil
	}
	for _, u := range f.users {
		if u.ID == *id {
			u := u
			return &u
		}
	}
	return nil
}

func applyInput(task *model.Task, in model.TaskInput) {
	if v, ok := in.Title.Get(); ok {
		task.Title = v
	}
	if in.Description.IsSet() {
		task.Description = in.Description.Ptr()
	}
	if v, ok := in.Status.Get(); ok {
		task.Status = v
	}
	if in.AssigneeID.IsSet() {
		task.AssigneeID = in.AssigneeID.Ptr()
	}
	if in.ParentID.IsSet() {
		task.ParentID = in.ParentID.Ptr()
	}
}
