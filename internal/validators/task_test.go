package validators

import (
	"errors"
	"testing"

	apperrors "taskboard.com/taskboard/internal/errors"
	"taskboard.com/taskboard/pkg/constants"
	model "taskboard.com/taskboard/pkg/models"
)

func TestValidateTitle(t *testing.T) {
	tests := []struct {
		name    string
		title   string
		wantErr bool
	}{
		{"two characters", "ab", true},
		{"three characters", "abc", false},
		{"padded two characters", "  ab  ", true},
		{"padded three characters", "  abc ", false},
		{"blank", "   ", true},
		{"multibyte", "día", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTitle(tt.title)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateTitle(%q) error = %v, wantErr %v", tt.title, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, apperrors.ErrValidation) {
				t.Errorf("expected validation error, got %T", err)
			}
		})
	}
}

func TestValidateCreateTask_RequiresTitle(t *testing.T) {
	err := ValidateCreateTask(model.TaskInput{Status: model.Set(constants.StatusToDo)})
	var validationErr *apperrors.ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if validationErr.Field != "title" {
		t.Errorf("expected field title, got %s", validationErr.Field)
	}
}

func TestValidateCreateTask_RejectsUnknownStatus(t *testing.T) {
	in := model.TaskInput{
		Title:  model.Set("Draft spec"),
		Status: model.Set(constants.TaskStatus("DONE")),
	}
	if err := ValidateCreateTask(in); err == nil {
		t.Fatal("expected invalid status to be rejected")
	}
}

func TestValidateUpdateTask(t *testing.T) {
	if err := ValidateUpdateTask(model.TaskInput{}); err == nil {
		t.Error("expected empty update to be rejected")
	}
	if err := ValidateUpdateTask(model.TaskInput{Status: model.Set(constants.StatusCompleted)}); err != nil {
		t.Errorf("status-only update should pass, got %v", err)
	}
	if err := ValidateUpdateTask(model.TaskInput{Title: model.Null[string]()}); err == nil {
		t.Error("expected null title to be rejected")
	}
}

func TestNormalizeTaskInput(t *testing.T) {
	in := NormalizeTaskInput(model.TaskInput{
		Title:       model.Set("  Draft spec  "),
		Description: model.Set("   "),
	})
	if title, _ := in.Title.Get(); title != "Draft spec" {
		t.Errorf("expected trimmed title, got %q", title)
	}
	if !in.Description.IsNull() {
		t.Error("expected blank description to become null")
	}
}
