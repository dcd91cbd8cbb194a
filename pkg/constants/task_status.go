package constants

type TaskStatus string

const (
	StatusToDo       TaskStatus = "TO_DO"
	StatusInProgress TaskStatus = "IN_PROGRESS"
	StatusCompleted  TaskStatus = "COMPLETED"
)

// TaskStatuses lists the statuses in the order they are offered to users.
var TaskStatuses = []TaskStatus{StatusToDo, StatusInProgress, StatusCompleted}

func (s TaskStatus) Valid() bool {
	switch s {
	case StatusToDo, StatusInProgress, StatusCompleted:
		return true
	}
	return false
}

// Next cycles through TaskStatuses, wrapping after the last one.
func (s TaskStatus) Next() TaskStatus {
	for i, status := range TaskStatuses {
		if status == s {
			return TaskStatuses[(i+1)%len(TaskStatuses)]
		}
	}
	return StatusToDo
}

func (s TaskStatus) String() string {
	return string(s)
}
