package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"

	model "taskboard.com/taskboard/pkg/models"
)

const (
	titleWidth    = 36
	statusWidth   = 12
	assigneeWidth = 20
	barWidth      = 16
)

// row is one visible line of the task table. Subtasks only appear while
// their parent is expanded.
type row struct {
	task  model.Task
	child bool
}

func buildRows(tasks []model.Task, expanded map[int64]bool) []row {
	rows := make([]row, 0, len(tasks))
	for _, t := range tasks {
		rows = append(rows, row{task: t})
		if !expanded[t.ID] {
			continue
		}
		for _, c := range t.Children {
			rows = append(rows, row{task: c, child: true})
		}
	}
	return rows
}

func newProgressBar() progress.Model {
	return progress.New(
		progress.WithDefaultGradient(),
		progress.WithWidth(barWidth),
		progress.WithoutPercentage(),
	)
}

func renderHeader() string {
	return headerStyle.Render(fmt.Sprintf("  %s %s %s %s",
		pad("TITLE", titleWidth),
		pad("STATUS", statusWidth),
		pad("ASSIGNEE", assigneeWidth),
		"PROGRESS",
	))
}

func renderRow(r row, expanded, selected bool, bar progress.Model) string {
	marker := " "
	if !r.child && len(r.task.Children) > 0 {
		marker = "▸"
		if expanded {
			marker = "▾"
		}
	}

	title := r.task.Title
	if r.child {
		title = "  └ " + title
	}

	percent := r.task.PercentDone()
	status := string(r.task.Status)
	statusCell := pad(status, statusWidth)
	if style, ok := statusStyles[status]; ok && !selected {
		statusCell = style.Render(statusCell)
	}

	line := fmt.Sprintf("%s %s %s %s %s %3d%%",
		marker,
		pad(title, titleWidth),
		statusCell,
		pad(r.task.AssigneeLabel(), assigneeWidth),
		bar.ViewAs(float64(percent)/100),
		percent,
	)

	switch {
	case selected:
		return selectedStyle.Render(line)
	case r.child:
		return subtaskStyle.Render(line)
	}
	return line
}

// pad truncates or right-pads s to exactly width cells.
func pad(s string, width int) string {
	if lipgloss.Width(s) > width {
		runes := []rune(s)
		for len(runes) > 0 && lipgloss.Width(string(runes))+1 > width {
			runes = runes[:len(runes)-1]
		}
		return string(runes) + "…"
	}
	return s + strings.Repeat(" ", width-lipgloss.Width(s))
}
