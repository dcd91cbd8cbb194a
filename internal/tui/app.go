// Package tui is the interactive task board. It renders the observed task
// list, and runs every mutation through the orchestrator on a command
// goroutine, replaying the recorded feedback on the update loop.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	apperrors "taskboard.com/taskboard/internal/errors"
	"taskboard.com/taskboard/internal/gateway"
	"taskboard.com/taskboard/internal/logging"
	"taskboard.com/taskboard/internal/mutation"
	"taskboard.com/taskboard/internal/query"
	"taskboard.com/taskboard/internal/services"
	model "taskboard.com/taskboard/pkg/models"
)

const (
	noticeTTL       = 4 * time.Second
	loadTimeout     = 15 * time.Second
	realtimeTimeout = 10 * time.Second
)

type tasksChangedMsg struct{}

type usersLoadedMsg struct {
	users []model.User
	err   error
}

type parentsLoadedMsg struct {
	parents []model.Task
	err     error
}

type realtimeMsg struct {
	err error
}

// mutationDoneMsg carries the effects of one submit. form is the sequence
// number of the dialog that submitted it, zero for deletes.
type mutationDoneMsg struct {
	result  mutation.Result
	effects []mutation.Effect
	form    int
}

type clearNoticeMsg struct {
	seq int
}

// AppOption customizes App construction.
type AppOption func(*App)

// WithFilters sets the task list the board observes.
func WithFilters(f query.Filters) AppOption {
	return func(a *App) {
		a.filters = f.Normalize()
	}
}

// WithLogger sends board and mutation logs to l.
func WithLogger(l logging.Logger) AppOption {
	return func(a *App) {
		a.logger = logging.OrNop(l)
	}
}

// App is the bubbletea model of the task board.
type App struct {
	service *services.TaskService
	orch    *mutation.Orchestrator
	logger  logging.Logger
	filters query.Filters

	observer *query.Observer[model.TaskPage]
	snapshot query.Snapshot[model.TaskPage]
	loadErr  error
	rows     []row
	cursor   int
	expanded map[int64]bool

	users   []model.User
	parents []model.Task
	live    bool

	form     *taskForm
	formSeq  int
	confirm  *model.Task
	deleting bool

	notice    *mutation.Notification
	noticeSeq int

	spinner spinner.Model
	bar     progress.Model
	width   int
	height  int
}

// NewApp observes the task list right away so the first fetch starts before
// the first frame.
func NewApp(gw gateway.Gateway, svc *services.TaskService, opts ...AppOption) *App {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = titleStyle

	a := &App{
		service:  svc,
		logger:   logging.Nop(),
		filters:  query.DefaultFilters(),
		expanded: make(map[int64]bool),
		spinner:  sp,
		bar:      newProgressBar(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	a.orch = mutation.New(gw, svc, nil, mutation.WithLogger(a.logger))
	a.observer = svc.Observe(a.filters)
	a.syncSnapshot()
	return a
}

// Close stops following the task list.
func (a *App) Close() {
	a.observer.Close()
}

func (a *App) Init() tea.Cmd {
	return tea.Batch(
		a.spinner.Tick,
		a.waitForChanges(),
		a.loadUsers(),
		a.bindRealtime(),
	)
}

func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		return a, nil

	case tasksChangedMsg:
		a.syncSnapshot()
		return a, a.waitForChanges()

	case usersLoadedMsg:
		if msg.err != nil {
			return a, a.setNotice(loadFailure("users", msg.err))
		}
		a.users = msg.users
		if a.form != nil {
			a.form.setUsers(a.users)
		}
		return a, nil

	case parentsLoadedMsg:
		if msg.err != nil {
			return a, a.setNotice(loadFailure("parent tasks", msg.err))
		}
		a.parents = msg.parents
		if a.form != nil {
			a.form.setParents(a.parents)
		}
		return a, nil

	case realtimeMsg:
		if msg.err != nil {
			a.live = false
			return a, a.setNotice(mutation.Notification{
				Level:   mutation.LevelError,
				Message: "Live updates unavailable: " + apperrors.UserMessage(msg.err),
			})
		}
		a.live = true
		return a, nil

	case mutationDoneMsg:
		return a, a.applyMutation(msg)

	case clearNoticeMsg:
		if msg.seq == a.noticeSeq {
			a.notice = nil
		}
		return a, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return a, tea.Quit
		}
		switch {
		case a.confirm != nil:
			return a, a.updateConfirm(msg)
		case a.form != nil:
			return a, a.updateForm(msg)
		}
		return a, a.updateBoard(msg)
	}

	return a, nil
}

func (a *App) updateBoard(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "q":
		return tea.Quit
	case "up", "k":
		if a.cursor > 0 {
			a.cursor--
		}
	case "down", "j":
		if a.cursor < len(a.rows)-1 {
			a.cursor++
		}
	case "enter", " ", "space":
		if r, ok := a.selected(); ok && !r.child && len(r.task.Children) > 0 {
			a.expanded[r.task.ID] = !a.expanded[r.task.ID]
			a.rebuildRows(r.task.ID)
		}
	case "r":
		a.service.Refresh()
		a.syncSnapshot()
	case "n":
		return a.openForm(pendingEdit{})
	case "e":
		if r, ok := a.selected(); ok {
			task := r.task
			return a.openForm(pendingEdit{task: &task})
		}
	case "s":
		if r, ok := a.selected(); ok && r.task.IsTopLevel() {
			id := r.task.ID
			return a.openForm(pendingEdit{parentID: &id})
		}
	case "d":
		if r, ok := a.selected(); ok && !a.deleting {
			task := r.task
			a.confirm = &task
		}
	}
	return nil
}

func (a *App) updateForm(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "esc":
		a.form = nil
		return nil
	case "enter":
		return a.submitForm()
	}
	if a.form.submitting {
		return nil
	}
	a.form.err = ""
	return a.form.update(msg)
}

func (a *App) updateConfirm(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "y", "Y":
		task := *a.confirm
		a.confirm = nil
		a.deleting = true
		return a.runMutation(0, func(ctx context.Context) mutation.Result {
			return a.orch.SubmitDelete(ctx, task, mutation.Confirmed)
		})
	case "n", "N", "esc", "q":
		a.confirm = nil
	}
	return nil
}

func (a *App) openForm(pending pendingEdit) tea.Cmd {
	a.formSeq++
	a.form = newTaskForm(pending, a.users, a.parents)
	a.form.seq = a.formSeq
	return tea.Batch(textinput.Blink, a.loadParents())
}

// submitForm validates locally first; an invalid form never reaches the
// network and stays open with the message.
func (a *App) submitForm() tea.Cmd {
	f := a.form
	if f.submitting {
		return nil
	}
	in, err := f.input()
	if err != nil {
		f.err = apperrors.UserMessage(err)
		return nil
	}
	f.submitting = true

	if f.pending.mode() == modeEdit {
		id := f.pending.task.ID
		return a.runMutation(f.seq, func(ctx context.Context) mutation.Result {
			return a.orch.SubmitUpdate(ctx, id, in)
		})
	}
	return a.runMutation(f.seq, func(ctx context.Context) mutation.Result {
		return a.orch.SubmitCreate(ctx, in)
	})
}

// runMutation runs the submit off the update loop with its own recorder.
// The dialog is not cancelled by closing it; the result always comes back.
func (a *App) runMutation(form int, submit func(ctx context.Context) mutation.Result) tea.Cmd {
	return func() tea.Msg {
		rec := &mutation.Recorder{}
		result := submit(mutation.ContextWithFeedback(context.Background(), rec))
		return mutationDoneMsg{result: result, effects: rec.Drain(), form: form}
	}
}

// submittedForm returns the open dialog if it is the one that sent msg.
func (a *App) submittedForm(msg mutationDoneMsg) *taskForm {
	if a.form == nil || msg.form == 0 || a.form.seq != msg.form {
		return nil
	}
	return a.form
}

func (a *App) applyMutation(msg mutationDoneMsg) tea.Cmd {
	var cmds []tea.Cmd
	for _, effect := range msg.effects {
		if effect.CloseDialog && a.submittedForm(msg) != nil {
			a.form = nil
		}
		if effect.Notification != nil {
			cmds = append(cmds, a.setNotice(*effect.Notification))
		}
	}

	res := msg.result
	if res.Kind == mutation.KindDelete {
		a.deleting = false
	}
	if errors.Is(res.Err, mutation.ErrMutationPending) {
		if f := a.submittedForm(msg); f != nil {
			f.submitting = false
			f.err = "A save is already in progress"
		}
		return tea.Batch(cmds...)
	}
	if f := a.submittedForm(msg); f != nil {
		f.submitting = false
	}

	a.syncSnapshot()
	return tea.Batch(cmds...)
}

func (a *App) setNotice(n mutation.Notification) tea.Cmd {
	if n.Level == mutation.LevelError {
		a.logger.Printf("tui: %s", n.Message)
	}
	a.noticeSeq++
	seq := a.noticeSeq
	a.notice = &n
	return tea.Tick(noticeTTL, func(time.Time) tea.Msg {
		return clearNoticeMsg{seq: seq}
	})
}

// syncSnapshot pulls the observer state into the model. A new load error is
// shown once; the last good rows stay visible.
func (a *App) syncSnapshot() {
	a.snapshot = a.observer.Snapshot()
	if err := a.snapshot.Err; err != nil && err != a.loadErr {
		a.notice = &mutation.Notification{
			Level:   mutation.LevelError,
			Message: "Failed to load tasks: " + apperrors.UserMessage(err),
		}
		a.logger.Printf("tui: load tasks: %v", err)
	}
	a.loadErr = a.snapshot.Err

	var keep int64
	if r, ok := a.selected(); ok {
		keep = r.task.ID
	}
	a.rebuildRows(keep)
}

// rebuildRows flattens the current page and keeps the cursor on keep when it
// is still visible.
func (a *App) rebuildRows(keep int64) {
	a.rows = buildRows(a.snapshot.Data.Data, a.expanded)
	for i, r := range a.rows {
		if r.task.ID == keep {
			a.cursor = i
			return
		}
	}
	if a.cursor >= len(a.rows) {
		a.cursor = len(a.rows) - 1
	}
	if a.cursor < 0 {
		a.cursor = 0
	}
}

func (a *App) selected() (row, bool) {
	if a.cursor < 0 || a.cursor >= len(a.rows) {
		return row{}, false
	}
	return a.rows[a.cursor], true
}

func (a *App) waitForChanges() tea.Cmd {
	changes := a.observer.Changes()
	return func() tea.Msg {
		if _, ok := <-changes; !ok {
			return nil
		}
		return tasksChangedMsg{}
	}
}

func (a *App) loadUsers() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), loadTimeout)
		defer cancel()
		users, err := a.service.Users(ctx)
		return usersLoadedMsg{users: users, err: err}
	}
}

func (a *App) loadParents() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), loadTimeout)
		defer cancel()
		parents, err := a.service.Parents(ctx)
		return parentsLoadedMsg{parents: parents, err: err}
	}
}

func (a *App) bindRealtime() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), realtimeTimeout)
		defer cancel()
		return realtimeMsg{err: a.service.BindRealtime(ctx)}
	}
}

func loadFailure(what string, err error) mutation.Notification {
	return mutation.Notification{
		Level:   mutation.LevelError,
		Message: fmt.Sprintf("Failed to load %s: %s", what, apperrors.UserMessage(err)),
	}
}

func (a *App) View() string {
	var content string
	switch {
	case a.confirm != nil:
		content = a.renderConfirm()
	case a.form != nil:
		content = a.form.view()
	default:
		content = a.renderBoard()
	}

	if a.width > 0 && (a.confirm != nil || a.form != nil) {
		content = lipgloss.Place(a.width, max(0, a.height-2), lipgloss.Center, lipgloss.Center, content)
	}
	return content + "\n" + a.renderNotice() + "\n" + a.renderHelp()
}

func (a *App) renderBoard() string {
	var b strings.Builder

	heading := titleStyle.Render("Tasks")
	if a.live {
		heading += " " + successStyle.Render("● live")
	}
	if a.snapshot.IsLoading {
		heading += " " + a.spinner.View()
	}
	b.WriteString(heading + "\n\n")

	if !a.snapshot.HasData {
		if a.snapshot.IsLoading || a.snapshot.Err == nil {
			b.WriteString(a.spinner.View() + " Loading tasks...\n")
		} else {
			b.WriteString(mutedStyle.Render("Tasks could not be loaded. Press r to retry.") + "\n")
		}
		return b.String()
	}

	if len(a.rows) == 0 {
		b.WriteString(mutedStyle.Render("No tasks yet. Press n to create one.") + "\n")
		return b.String()
	}

	b.WriteString(renderHeader() + "\n")
	for i, r := range a.rows {
		b.WriteString(renderRow(r, a.expanded[r.task.ID], i == a.cursor, a.bar) + "\n")
	}
	if meta := a.snapshot.Data.Meta; meta != nil && meta.Total > int64(len(a.snapshot.Data.Data)) {
		b.WriteString(mutedStyle.Render(fmt.Sprintf("showing %d of %d tasks", len(a.snapshot.Data.Data), meta.Total)) + "\n")
	}
	return b.String()
}

func (a *App) renderConfirm() string {
	body := titleStyle.Render("Are you sure?") + "\n\n" +
		fmt.Sprintf("Delete %q?", a.confirm.Title) + "\n"
	if len(a.confirm.Children) > 0 {
		body += fmt.Sprintf("Its %d subtasks are deleted too.\n", len(a.confirm.Children))
	}
	body += "This action cannot be undone!\n\n" +
		mutedStyle.Render("y: yes, delete it • n: cancel")
	return dangerDialogStyle.Render(body)
}

func (a *App) renderNotice() string {
	switch {
	case a.notice == nil:
		if a.deleting {
			return mutedStyle.Render("Deleting...")
		}
		return ""
	case a.notice.Level == mutation.LevelError:
		return errorStyle.Render("✗ " + a.notice.Message)
	}
	return successStyle.Render("✓ " + a.notice.Message)
}

func (a *App) renderHelp() string {
	if a.form != nil || a.confirm != nil {
		return ""
	}
	return mutedStyle.Render("n: new • e: edit • s: subtask • d: delete • enter: expand • r: refresh • q: quit")
}
