package constants

// Push channel event names emitted by the task service.
const (
	EventTaskCreated = "task:created"
	EventTaskUpdated = "task:updated"
	EventTaskDeleted = "task:deleted"
)

// TaskEvents are the events that invalidate cached task lists.
var TaskEvents = []string{EventTaskCreated, EventTaskUpdated, EventTaskDeleted}

// TasksNamespace is the cache namespace shared by every task-list query.
const TasksNamespace = "tasks"
