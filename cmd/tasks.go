package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	apperrors "taskboard.com/taskboard/internal/errors"
	"taskboard.com/taskboard/internal/mutation"
	"taskboard.com/taskboard/internal/query"
	"taskboard.com/taskboard/internal/validators"
	"taskboard.com/taskboard/pkg/constants"
	model "taskboard.com/taskboard/pkg/models"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient(false)
		if err != nil {
			return err
		}
		defer c.Close()

		filters, err := listFilters(cmd, c.cfg.PageLimit)
		if err != nil {
			return err
		}
		page, err := c.tasks.Tasks(cmd.Context(), filters)
		if err != nil {
			return err
		}

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return writeJSON(cmd.OutOrStdout(), page)
		}
		fmt.Fprintln(cmd.OutOrStdout(), renderTasks(page.Data))
		return nil
	},
}

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a task",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		in := taskInputFromFlags(cmd, true)
		if err := validators.ValidateCreateTask(in); err != nil {
			return err
		}

		c, err := newClient(false)
		if err != nil {
			return err
		}
		defer c.Close()

		res := c.orchestrator(cmd.OutOrStdout(), cmd.ErrOrStderr()).SubmitCreate(cmd.Context(), in)
		if res.Err != nil {
			return errReported
		}
		fmt.Fprintf(cmd.OutOrStdout(), "id: %d\n", res.Task.ID)
		return nil
	},
}

var updateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Update the fields of a task given as flags",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseTaskID(args[0])
		if err != nil {
			return err
		}
		in := taskInputFromFlags(cmd, false)
		if err := validators.ValidateUpdateTask(in); err != nil {
			return err
		}

		c, err := newClient(false)
		if err != nil {
			return err
		}
		defer c.Close()

		res := c.orchestrator(cmd.OutOrStdout(), cmd.ErrOrStderr()).SubmitUpdate(cmd.Context(), id, in)
		if res.Err != nil {
			return errReported
		}
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a task and its subtasks",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseTaskID(args[0])
		if err != nil {
			return err
		}

		c, err := newClient(false)
		if err != nil {
			return err
		}
		defer c.Close()

		task := findTask(cmd.Context(), c, id)

		var confirmer mutation.Confirmer = mutation.Confirmed
		if yes, _ := cmd.Flags().GetBool("yes"); !yes {
			confirmer = promptConfirmer(cmd.InOrStdin(), cmd.OutOrStdout())
		}

		res := c.orchestrator(cmd.OutOrStdout(), cmd.ErrOrStderr()).SubmitDelete(cmd.Context(), task, confirmer)
		switch {
		case res.Declined && res.Err != nil:
			return res.Err
		case res.Declined:
			fmt.Fprintln(cmd.OutOrStdout(), "Aborted.")
			return nil
		case res.Err != nil:
			return errReported
		}
		return nil
	},
}

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "List the users tasks can be assigned to",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient(false)
		if err != nil {
			return err
		}
		defer c.Close()

		users, err := c.tasks.Users(cmd.Context())
		if err != nil {
			return err
		}
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return writeJSON(cmd.OutOrStdout(), users)
		}

		t := table.New().
			Border(lipgloss.NormalBorder()).
			Headers("ID", "NAME")
		for _, u := range users {
			t.Row(strconv.FormatInt(u.ID, 10), u.DisplayName())
		}
		fmt.Fprintln(cmd.OutOrStdout(), t.Render())
		return nil
	},
}

func init() {
	addFilterFlags(listCmd)
	listCmd.Flags().Bool("json", false, "print the raw page as JSON")

	addTaskFlags(createCmd)
	addTaskFlags(updateCmd)
	_ = createCmd.MarkFlagRequired("title")

	deleteCmd.Flags().BoolP("yes", "y", false, "delete without asking")
	usersCmd.Flags().Bool("json", false, "print users as JSON")

	rootCmd.AddCommand(listCmd, createCmd, updateCmd, deleteCmd, usersCmd)
}

func addTaskFlags(cmd *cobra.Command) {
	cmd.Flags().String("title", "", "task title, at least 3 characters")
	cmd.Flags().String("description", "", "task description, empty clears it")
	cmd.Flags().String("status", "", "TO_DO, IN_PROGRESS or COMPLETED")
	cmd.Flags().Int64("assignee", 0, "assignee user id, 0 for none")
	cmd.Flags().Int64("parent", 0, "parent task id, 0 for a top-level task")
}

func addFilterFlags(cmd *cobra.Command) {
	cmd.Flags().String("status", "", "only tasks with this status")
	cmd.Flags().Int64("assignee", 0, "only tasks assigned to this user id")
	cmd.Flags().Int("page", query.DefaultPage, "page number")
	cmd.Flags().Int("limit", 0, "page size (defaults to page_limit)")
	cmd.Flags().Bool("no-subtasks", false, "do not include subtasks")
}

func listFilters(cmd *cobra.Command, pageLimit int) (query.Filters, error) {
	f := query.DefaultFilters()
	flags := cmd.Flags()

	noSubtasks, _ := flags.GetBool("no-subtasks")
	f.IncludeSubtasks = !noSubtasks
	f.Page, _ = flags.GetInt("page")
	f.Limit, _ = flags.GetInt("limit")
	if f.Limit == 0 {
		f.Limit = pageLimit
	}
	f.Assignee, _ = flags.GetInt64("assignee")

	if raw, _ := flags.GetString("status"); raw != "" {
		status := constants.TaskStatus(strings.ToUpper(raw))
		if !status.Valid() {
			return f, apperrors.NewValidationError("status", "status must be one of TO_DO, IN_PROGRESS, COMPLETED")
		}
		f.Status = status
	}
	return f.Normalize(), nil
}

// taskInputFromFlags sends every field on create and only the flags given
// on update.
func taskInputFromFlags(cmd *cobra.Command, full bool) model.TaskInput {
	flags := cmd.Flags()
	var in model.TaskInput

	if full || flags.Changed("title") {
		title, _ := flags.GetString("title")
		in.Title = model.Set(title)
	}
	if full || flags.Changed("description") {
		desc, _ := flags.GetString("description")
		in.Description = model.Set(desc)
	}
	if full || flags.Changed("status") {
		raw, _ := flags.GetString("status")
		status := constants.TaskStatus(strings.ToUpper(raw))
		if raw == "" && full {
			status = constants.StatusToDo
		}
		in.Status = model.Set(status)
	}
	if full || flags.Changed("assignee") {
		id, _ := flags.GetInt64("assignee")
		in.AssigneeID = optionalID(id)
	}
	if full || flags.Changed("parent") {
		id, _ := flags.GetInt64("parent")
		in.ParentID = optionalID(id)
	}
	return validators.NormalizeTaskInput(in)
}

func optionalID(id int64) model.Field[int64] {
	if id == 0 {
		return model.Null[int64]()
	}
	return model.Set(id)
}

func parseTaskID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, apperrors.ErrTaskIDRequired
	}
	return id, nil
}

// findTask looks the task up in the first page so the prompt can name it.
// A task that is not there is still deleted by id.
func findTask(ctx context.Context, c *client, id int64) model.Task {
	page, err := c.tasks.Tasks(ctx, query.ParentFilters())
	if err == nil {
		for _, t := range page.Data {
			if t.ID == id {
				return t
			}
			for _, child := range t.Children {
				if child.ID == id {
					return child
				}
			}
		}
	}
	return model.Task{ID: id, Title: fmt.Sprintf("task #%d", id)}
}

// promptConfirmer asks on the terminal. Anything but y or yes declines.
func promptConfirmer(in io.Reader, out io.Writer) mutation.Confirmer {
	return mutation.ConfirmFunc(func(ctx context.Context, task model.Task) (bool, error) {
		fmt.Fprintf(out, "Delete %q", task.Title)
		if n := len(task.Children); n > 0 {
			fmt.Fprintf(out, " and its %d subtasks", n)
		}
		fmt.Fprint(out, "? This action cannot be undone! [y/N] ")

		answer, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && err != io.EOF {
			return false, fmt.Errorf("read confirmation: %w", err)
		}
		switch strings.ToLower(strings.TrimSpace(answer)) {
		case "y", "yes":
			return true, nil
		}
		return false, nil
	})
}

func renderTasks(tasks []model.Task) string {
	if len(tasks) == 0 {
		return "No tasks."
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("ID", "TITLE", "STATUS", "ASSIGNEE", "PROGRESS")
	for _, task := range tasks {
		t.Row(taskCells(task, "")...)
		for _, child := range task.Children {
			t.Row(taskCells(child, "  └ ")...)
		}
	}
	return t.Render()
}

func taskCells(t model.Task, indent string) []string {
	return []string{
		strconv.FormatInt(t.ID, 10),
		indent + t.Title,
		string(t.Status),
		t.AssigneeLabel(),
		fmt.Sprintf("%d%%", t.PercentDone()),
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
