package validators

import (
	"fmt"
	"strings"
	"unicode/utf8"

	apperrors "taskboard.com/taskboard/internal/errors"
	model "taskboard.com/taskboard/pkg/models"
)

// MinTitleLength is the minimum number of characters in a trimmed title.
const MinTitleLength = 3

func ValidateTitle(title string) error {
	trimmed := strings.TrimSpace(title)
	if trimmed == "" {
		return apperrors.NewValidationError("title", "title is required")
	}
	if utf8.RuneCountInString(trimmed) < MinTitleLength {
		return apperrors.NewValidationError("title", fmt.Sprintf("title must be at least %d characters", MinTitleLength))
	}
	return nil
}

// ValidateCreateTask checks a full payload. Title is mandatory.
func ValidateCreateTask(in model.TaskInput) error {
	title, ok := in.Title.Get()
	if !ok {
		return apperrors.NewValidationError("title", "title is required")
	}
	if err := ValidateTitle(title); err != nil {
		return err
	}
	return validateCommon(in)
}

// ValidateUpdateTask checks a partial payload. Only the fields present are
// validated, and at least one must be present.
func ValidateUpdateTask(in model.TaskInput) error {
	if in.Empty() {
		return apperrors.NewValidationError("task", "no fields to update")
	}
	if in.Title.IsSet() {
		title, ok := in.Title.Get()
		if !ok {
			return apperrors.NewValidationError("title", "title cannot be null")
		}
		if err := ValidateTitle(title); err != nil {
			return err
		}
	}
	return validateCommon(in)
}

func validateCommon(in model.TaskInput) error {
	if in.Status.IsSet() {
		status, ok := in.Status.Get()
		if !ok || !status.Valid() {
			return apperrors.NewValidationError("status", "status must be one of TO_DO, IN_PROGRESS, COMPLETED")
		}
	}
	if id, ok := in.AssigneeID.Get(); ok && id <= 0 {
		return apperrors.NewValidationError("assigneeId", "assigneeId must be positive")
	}
	if id, ok := in.ParentID.Get(); ok && id <= 0 {
		return apperrors.NewValidationError("parentId", "parentId must be positive")
	}
	return nil
}

// NormalizeTaskInput trims the title and turns a blank description into an
// explicit null, the way the task form submits them.
func NormalizeTaskInput(in model.TaskInput) model.TaskInput {
	if title, ok := in.Title.Get(); ok {
		in.Title = model.Set(strings.TrimSpace(title))
	}
	if desc, ok := in.Description.Get(); ok && strings.TrimSpace(desc) == "" {
		in.Description = model.Null[string]()
	}
	return in
}
