package errors

import "net/http"

var ErrTaskNotFound = &Exception{
	Message:    "task not found",
	StatusCode: http.StatusNotFound,
}

var ErrParentNotFound = &Exception{
	Message:    "parent task not found",
	StatusCode: http.StatusUnprocessableEntity,
}

var ErrNestedSubtask = &Exception{
	Message:    "subtasks cannot have subtasks",
	StatusCode: http.StatusUnprocessableEntity,
}

var ErrAssigneeNotFound = &Exception{
	Message:    "assignee not found",
	StatusCode: http.StatusUnprocessableEntity,
}
