package services

import (
	"context"
	"encoding/json"
	"errors"

	apperrors "taskboard.com/taskboard/internal/errors"
	"taskboard.com/taskboard/internal/events"
	repository "taskboard.com/taskboard/internal/repositories"
	"taskboard.com/taskboard/internal/validators"
	"taskboard.com/taskboard/pkg/constants"
	model "taskboard.com/taskboard/pkg/models"
)

// Backend is the task service behind the reference HTTP API. Every change is
// announced as a task event through the pool.
type Backend struct {
	tasks *repository.TaskRepository
	users *repository.UserRepository
	pool  *PoolService
}

func NewBackend(tasks *repository.TaskRepository, users *repository.UserRepository, pool *PoolService) *Backend {
	return &Backend{
		tasks: tasks,
		users: users,
		pool:  pool,
	}
}

// ListTasks returns one page of top-level tasks with their progress, and
// their subtasks nested when includeSubtasks is set.
func (b *Backend) ListTasks(ctx context.Context, opts repository.ListOptions, includeSubtasks bool) (model.TaskPage, error) {
	tasks, total, err := b.tasks.ListTopLevel(ctx, opts)
	if err != nil {
		return model.TaskPage{}, err
	}

	ids := make([]int64, len(tasks))
	for i, t := range tasks {
		ids[i] = t.ID
	}
	children, err := b.tasks.ListChildren(ctx, ids)
	if err != nil {
		return model.TaskPage{}, err
	}
	byParent := make(map[int64][]model.Task, len(tasks))
	for _, child := range children {
		child.Progress = progressOf(child.Status, nil)
		byParent[*child.ParentID] = append(byParent[*child.ParentID], child)
	}

	for i := range tasks {
		kids := byParent[tasks[i].ID]
		tasks[i].Progress = progressOf(tasks[i].Status, kids)
		if includeSubtasks {
			tasks[i].Children = kids
		}
	}

	if tasks == nil {
		tasks = []model.Task{}
	}
	return model.TaskPage{
		Data: tasks,
		Meta: &model.PageMeta{Page: opts.Page, Limit: opts.Limit, Total: total},
	}, nil
}

func (b *Backend) CreateTask(ctx context.Context, in model.TaskInput) (*model.Task, error) {
	in = validators.NormalizeTaskInput(in)
	if err := validators.ValidateCreateTask(in); err != nil {
		return nil, err
	}
	if err := b.checkReferences(ctx, 0, in); err != nil {
		return nil, err
	}

	title, _ := in.Title.Get()
	task := &model.Task{
		Title:       title,
		Description: in.Description.Ptr(),
		Status:      constants.StatusToDo,
		AssigneeID:  in.AssigneeID.Ptr(),
		ParentID:    in.ParentID.Ptr(),
	}
	if status, ok := in.Status.Get(); ok {
		task.Status = status
	}

	if err := b.tasks.CreateTask(ctx, task); err != nil {
		return nil, err
	}
	task.Progress = progressOf(task.Status, nil)

	b.announce(constants.EventTaskCreated, task)
	return task, nil
}

// UpdateTask applies the fields set in in. Fields left unset keep their value.
func (b *Backend) UpdateTask(ctx context.Context, id int64, in model.TaskInput) (*model.Task, error) {
	if id <= 0 {
		return nil, apperrors.ErrTaskIDRequired
	}
	in = validators.NormalizeTaskInput(in)
	if err := validators.ValidateUpdateTask(in); err != nil {
		return nil, err
	}
	if _, err := b.tasks.FindByID(ctx, id); err != nil {
		return nil, err
	}
	if err := b.checkReferences(ctx, id, in); err != nil {
		return nil, err
	}

	fields := map[string]interface{}{}
	if title, ok := in.Title.Get(); ok {
		fields["title"] = title
	}
	if in.Description.IsSet() {
		fields["description"] = in.Description.Ptr()
	}
	if status, ok := in.Status.Get(); ok {
		fields["status"] = status
	}
	if in.AssigneeID.IsSet() {
		fields["assignee_id"] = in.AssigneeID.Ptr()
	}
	if in.ParentID.IsSet() {
		fields["parent_id"] = in.ParentID.Ptr()
	}

	task, err := b.tasks.Update(ctx, id, fields)
	if err != nil {
		return nil, err
	}
	task.Progress = progressOf(task.Status, nil)

	b.announce(constants.EventTaskUpdated, task)
	return task, nil
}

// DeleteTask removes a task and its subtasks.
func (b *Backend) DeleteTask(ctx context.Context, id int64) error {
	if id <= 0 {
		return apperrors.ErrTaskIDRequired
	}
	if err := b.tasks.Delete(ctx, id); err != nil {
		return err
	}
	b.announce(constants.EventTaskDeleted, &model.Task{ID: id})
	return nil
}

func (b *Backend) ListUsers(ctx context.Context) ([]model.User, error) {
	users, err := b.users.List(ctx)
	if users == nil && err == nil {
		users = []model.User{}
	}
	return users, err
}

// checkReferences enforces the one level hierarchy and that referenced rows
// exist. id is zero for a task that does not exist yet.
func (b *Backend) checkReferences(ctx context.Context, id int64, in model.TaskInput) error {
	if assigneeID, ok := in.AssigneeID.Get(); ok {
		exists, err := b.users.Exists(ctx, assigneeID)
		if err != nil {
			return err
		}
		if !exists {
			return apperrors.ErrAssigneeNotFound
		}
	}

	parentID, ok := in.ParentID.Get()
	if !ok {
		return nil
	}
	if parentID == id {
		return apperrors.ErrNestedSubtask
	}
	parent, err := b.tasks.FindByID(ctx, parentID)
	if err != nil {
		if errors.Is(err, apperrors.ErrTaskNotFound) {
			return apperrors.ErrParentNotFound
		}
		return err
	}
	if !parent.IsTopLevel() {
		return apperrors.ErrNestedSubtask
	}
	if id > 0 {
		children, err := b.tasks.CountChildren(ctx, id)
		if err != nil {
			return err
		}
		if children > 0 {
			return apperrors.ErrNestedSubtask
		}
	}
	return nil
}

func (b *Backend) announce(name string, task *model.Task) {
	if b.pool == nil {
		return
	}
	payload, _ := json.Marshal(map[string]interface{}{"id": task.ID, "parentId": task.ParentID})
	b.pool.Enqueue(events.Event{Name: name, Payload: payload})
}

func progressOf(status constants.TaskStatus, children []model.Task) *model.Progress {
	p := model.ComputeProgress(status, children)
	return &p
}
