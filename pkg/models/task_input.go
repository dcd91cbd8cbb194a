package model

import (
	"bytes"
	"encoding/json"
	"fmt"

	"taskboard.com/taskboard/pkg/constants"
)

// Field is a tri-state value used by partial payloads: unset, explicit null,
// or a value. Unset fields are left out of the JSON body entirely.
type Field[T any] struct {
	set   bool
	value *T
}

func Set[T any](v T) Field[T] {
	return Field[T]{set: true, value: &v}
}

func Null[T any]() Field[T] {
	return Field[T]{set: true}
}

// FromPtr maps nil to an explicit null and anything else to a set value.
func FromPtr[T any](p *T) Field[T] {
	if p == nil {
		return Null[T]()
	}
	return Set(*p)
}

func (f Field[T]) IsSet() bool  { return f.set }
func (f Field[T]) IsNull() bool { return f.set && f.value == nil }

// Get returns the value and whether the field holds one.
func (f Field[T]) Get() (T, bool) {
	if f.value == nil {
		var zero T
		return zero, false
	}
	return *f.value, true
}

// Ptr returns a copy of the value, or nil when unset or null.
func (f Field[T]) Ptr() *T {
	if f.value == nil {
		return nil
	}
	v := *f.value
	return &v
}

// TaskInput is a partial task sent on create and update.
type TaskInput struct {
	Title       Field[string]
	Description Field[string]
	Status      Field[constants.TaskStatus]
	AssigneeID  Field[int64]
	ParentID    Field[int64]
}

// InputFromTask builds a full payload carrying every editable field of t.
func InputFromTask(t Task) TaskInput {
	return TaskInput{
		Title:       Set(t.Title),
		Description: FromPtr(t.Description),
		Status:      Set(t.Status),
		AssigneeID:  FromPtr(t.AssigneeID),
		ParentID:    FromPtr(t.ParentID),
	}
}

// Empty reports whether no field is set.
func (in TaskInput) Empty() bool {
	return !in.Title.IsSet() && !in.Description.IsSet() && !in.Status.IsSet() &&
		!in.AssigneeID.IsSet() && !in.ParentID.IsSet()
}

func (in TaskInput) MarshalJSON() ([]byte, error) {
	body := map[string]any{}
	putField(body, "title", in.Title)
	putField(body, "description", in.Description)
	putField(body, "status", in.Status)
	putField(body, "assigneeId", in.AssigneeID)
	putField(body, "parentId", in.ParentID)
	return json.Marshal(body)
}

func (in *TaskInput) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	var err error
	if in.Title, err = readField[string](raw, "title"); err != nil {
		return err
	}
	if in.Description, err = readField[string](raw, "description"); err != nil {
		return err
	}
	if in.Status, err = readField[constants.TaskStatus](raw, "status"); err != nil {
		return err
	}
	if in.AssigneeID, err = readField[int64](raw, "assigneeId"); err != nil {
		return err
	}
	if in.ParentID, err = readField[int64](raw, "parentId"); err != nil {
		return err
	}
	return nil
}

func putField[T any](body map[string]any, name string, f Field[T]) {
	if !f.set {
		return
	}
	if f.value == nil {
		body[name] = nil
		return
	}
	body[name] = *f.value
}

func readField[T any](raw map[string]json.RawMessage, name string) (Field[T], error) {
	msg, ok := raw[name]
	if !ok {
		return Field[T]{}, nil
	}
	if bytes.Equal(bytes.TrimSpace(msg), []byte("null")) {
		return Null[T](), nil
	}
	var v T
	if err := json.Unmarshal(msg, &v); err != nil {
		return Field[T]{}, fmt.Errorf("field %s: %w", name, err)
	}
	return Set(v), nil
}
