package model

import (
	"time"

	"taskboard.com/taskboard/pkg/constants"
)

type Task struct {
	ID           int64                `gorm:"primaryKey;autoIncrement" json:"id"`
	Title        string               `gorm:"not null" json:"title"`
	Description  *string              `json:"description"`
	Status       constants.TaskStatus `gorm:"type:varchar(20);not null;index" json:"status"`
	AssigneeID   *int64               `gorm:"index" json:"assigneeId"`
	User         *User                `gorm:"foreignKey:AssigneeID;constraint:OnDelete:SET NULL" json:"user,omitempty"`
	AssigneeName *string              `gorm:"-" json:"assigneeName,omitempty"`
	ParentID     *int64               `gorm:"index" json:"parentId"`
	Children     []Task               `gorm:"-" json:"children,omitempty"`
	Progress     *Progress            `gorm:"-" json:"progress,omitempty"`
	CreatedAt    time.Time            `json:"createdAt,omitzero"`
	UpdatedAt    time.Time            `json:"updatedAt,omitzero"`
}

// Progress summarizes how much of a task is done. For a top-level task with
// subtasks it counts completed children, otherwise it reflects the task itself.
type Progress struct {
	Completed int `json:"completed"`
	Total     int `json:"total"`
	Percent   int `json:"percent"`
}

// IsTopLevel reports whether the task has no parent.
func (t Task) IsTopLevel() bool {
	return t.ParentID == nil
}

// AssigneeLabel returns the display name of the assignee, or "-" when unassigned.
func (t Task) AssigneeLabel() string {
	if t.User != nil {
		return t.User.DisplayName()
	}
	if t.AssigneeName != nil && *t.AssigneeName != "" {
		return *t.AssigneeName
	}
	return "-"
}

// PercentDone returns the progress percentage, zero when the server sent none.
func (t Task) PercentDone() int {
	if t.Progress == nil {
		return 0
	}
	return t.Progress.Percent
}

// ComputeProgress derives a Progress from a task and its subtasks.
func ComputeProgress(status constants.TaskStatus, children []Task) Progress {
	if len(children) == 0 {
		if status == constants.StatusCompleted {
			return Progress{Completed: 1, Total: 1, Percent: 100}
		}
		return Progress{Completed: 0, Total: 1, Percent: 0}
	}
	completed := 0
	for _, child := range children {
		if child.Status == constants.StatusCompleted {
			completed++
		}
	}
	return Progress{
		Completed: completed,
		Total:     len(children),
		Percent:   (completed*100 + len(children)/2) / len(children),
	}
}

// TaskPage is the body returned by the task list endpoint.
type TaskPage struct {
	Data []Task    `json:"data"`
	Meta *PageMeta `json:"meta,omitempty"`
}

type PageMeta struct {
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
	Total int64 `json:"total"`
}
