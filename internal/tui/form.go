package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"taskboard.com/taskboard/internal/validators"
	"taskboard.com/taskboard/pkg/constants"
	model "taskboard.com/taskboard/pkg/models"
)

type formMode int

const (
	modeCreate formMode = iota
	modeEdit
	modeSubtask
)

// pendingEdit is what the dialog was opened for: nothing (create), a full
// task (edit) or just a parent id (create subtask).
type pendingEdit struct {
	task     *model.Task
	parentID *int64
}

func (p pendingEdit) mode() formMode {
	switch {
	case p.task != nil:
		return modeEdit
	case p.parentID != nil:
		return modeSubtask
	}
	return modeCreate
}

type formField int

const (
	fieldTitle formField = iota
	fieldDescription
	fieldStatus
	fieldAssignee
	fieldParent
	fieldCount
)

type option struct {
	id    int64
	label string
}

// choice is a value picked from options with left and right. Zero means
// none. The value survives options arriving late.
type choice struct {
	none    string
	options []option
	value   int64
}

func (c *choice) move(delta int) {
	ids := make([]int64, 0, len(c.options)+1)
	ids = append(ids, 0)
	for _, o := range c.options {
		ids = append(ids, o.id)
	}
	current := 0
	for i, id := range ids {
		if id == c.value {
			current = i
			break
		}
	}
	next := (current + delta + len(ids)) % len(ids)
	c.value = ids[next]
}

func (c choice) label() string {
	if c.value == 0 {
		return c.none
	}
	for _, o := range c.options {
		if o.id == c.value {
			return o.label
		}
	}
	return fmt.Sprintf("#%d", c.value)
}

func (c choice) field() model.Field[int64] {
	if c.value == 0 {
		return model.Null[int64]()
	}
	return model.Set(c.value)
}

type taskForm struct {
	seq         int
	pending     pendingEdit
	title       textinput.Model
	description textinput.Model
	status      constants.TaskStatus
	assignee    choice
	parent      choice
	focus       formField
	err         string
	submitting  bool
}

func newTaskForm(pending pendingEdit, users []model.User, parents []model.Task) *taskForm {
	title := textinput.New()
	title.Placeholder = "at least 3 characters"
	title.CharLimit = 200
	title.Width = 40

	description := textinput.New()
	description.Placeholder = "optional"
	description.CharLimit = 1000
	description.Width = 40

	f := &taskForm{
		pending:     pending,
		title:       title,
		description: description,
		status:      constants.StatusToDo,
		assignee:    choice{none: "Unassigned"},
		parent:      choice{none: "No parent"},
	}

	if t := pending.task; t != nil {
		f.title.SetValue(t.Title)
		if t.Description != nil {
			f.description.SetValue(*t.Description)
		}
		if t.Status.Valid() {
			f.status = t.Status
		}
		if t.AssigneeID != nil {
			f.assignee.value = *t.AssigneeID
		}
		if t.ParentID != nil {
			f.parent.value = *t.ParentID
		}
	}
	if pending.parentID != nil {
		f.parent.value = *pending.parentID
	}

	f.setUsers(users)
	f.setParents(parents)
	f.title.Focus()
	return f
}

func (f *taskForm) setUsers(users []model.User) {
	f.assignee.options = f.assignee.options[:0]
	for _, u := range users {
		f.assignee.options = append(f.assignee.options, option{id: u.ID, label: u.DisplayName()})
	}
}

// setParents offers top-level tasks, never the task being edited.
func (f *taskForm) setParents(parents []model.Task) {
	f.parent.options = f.parent.options[:0]
	for _, p := range parents {
		if f.pending.task != nil && p.ID == f.pending.task.ID {
			continue
		}
		f.parent.options = append(f.parent.options, option{id: p.ID, label: p.Title})
	}
}

func (f *taskForm) setFocus(field formField) {
	f.focus = (field + fieldCount) % fieldCount
	f.title.Blur()
	f.description.Blur()
	switch f.focus {
	case fieldTitle:
		f.title.Focus()
	case fieldDescription:
		f.description.Focus()
	}
}

// update handles keys that edit the form. Submit and cancel are handled by
// the app.
func (f *taskForm) update(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "tab", "down":
		f.setFocus(f.focus + 1)
		return nil
	case "shift+tab", "up":
		f.setFocus(f.focus - 1)
		return nil
	case "left", "right":
		delta := 1
		if msg.String() == "left" {
			delta = -1
		}
		switch f.focus {
		case fieldStatus:
			f.status = cycleStatus(f.status, delta)
			return nil
		case fieldAssignee:
			f.assignee.move(delta)
			return nil
		case fieldParent:
			f.parent.move(delta)
			return nil
		}
	}

	var cmd tea.Cmd
	switch f.focus {
	case fieldTitle:
		f.title, cmd = f.title.Update(msg)
	case fieldDescription:
		f.description, cmd = f.description.Update(msg)
	}
	return cmd
}

// input builds the full payload the form submits, normalized and validated.
// A validation error is returned before anything is sent.
func (f *taskForm) input() (model.TaskInput, error) {
	in := validators.NormalizeTaskInput(model.TaskInput{
		Title:       model.Set(f.title.Value()),
		Description: model.Set(f.description.Value()),
		Status:      model.Set(f.status),
		AssigneeID:  f.assignee.field(),
		ParentID:    f.parent.field(),
	})
	if f.pending.mode() == modeEdit {
		return in, validators.ValidateUpdateTask(in)
	}
	return in, validators.ValidateCreateTask(in)
}

func (f *taskForm) heading() string {
	switch f.pending.mode() {
	case modeEdit:
		return "Edit task"
	case modeSubtask:
		return "Create subtask"
	}
	return "Create task"
}

func (f *taskForm) view() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(f.heading()))
	b.WriteString("\n\n")

	fields := []struct {
		field formField
		label string
		value string
	}{
		{fieldTitle, "Title", f.title.View()},
		{fieldDescription, "Description", f.description.View()},
		{fieldStatus, "Status", "‹ " + string(f.status) + " ›"},
		{fieldAssignee, "Assignee", "‹ " + f.assignee.label() + " ›"},
		{fieldParent, "Parent", "‹ " + f.parent.label() + " ›"},
	}
	for _, fl := range fields {
		label := labelStyle.Render(fl.label)
		if fl.field == f.focus {
			label = focusedLabelStyle.Render(fl.label)
		}
		b.WriteString(label + " " + fl.value + "\n")
	}

	b.WriteString("\n")
	switch {
	case f.submitting:
		b.WriteString(mutedStyle.Render("Saving..."))
	case f.err != "":
		b.WriteString(errorStyle.Render(f.err))
	default:
		b.WriteString(mutedStyle.Render("tab: next field • ←/→: change • enter: save • esc: cancel"))
	}
	return dialogStyle.Render(b.String())
}

func cycleStatus(s constants.TaskStatus, delta int) constants.TaskStatus {
	if delta > 0 {
		return s.Next()
	}
	for i, status := range constants.TaskStatuses {
		if status == s {
			n := len(constants.TaskStatuses)
			return constants.TaskStatuses[(i-1+n)%n]
		}
	}
	return constants.StatusToDo
}
