// Package gateway wraps the remote task/user service.
package gateway

import (
	"context"

	model "taskboard.com/taskboard/pkg/models"
)

// Gateway is the backend-agnostic view of the task service. Every method
// performs exactly one round trip and never retries.
type Gateway interface {
	// ListTasks fetches one page of tasks. query is a canonical query string
	// such as "include=subtasks&limit=100&page=1".
	ListTasks(ctx context.Context, query string) (model.TaskPage, error)

	CreateTask(ctx context.Context, in model.TaskInput) (model.Task, error)

	// UpdateTask sends only the fields set in in.
	UpdateTask(ctx context.Context, id int64, in model.TaskInput) (model.Task, error)

	// DeleteTask treats 204 No Content as success.
	DeleteTask(ctx context.Context, id int64) error

	ListUsers(ctx context.Context) ([]model.User, error)
}
