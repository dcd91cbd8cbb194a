package tui

import "github.com/charmbracelet/lipgloss"

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#00FFCC"))

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#AAAAAA"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(lipgloss.Color("#3A3A6A"))

	subtaskStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#BBBBBB"))

	mutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888"))

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#32CD32"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF5F5F"))

	labelStyle = lipgloss.NewStyle().
			Width(13).
			Foreground(lipgloss.Color("#AAAAAA"))

	focusedLabelStyle = labelStyle.
				Foreground(lipgloss.Color("#00FFCC")).
				Bold(true)

	dialogStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#00FFCC")).
			Padding(1, 2)

	dangerDialogStyle = dialogStyle.
				BorderForeground(lipgloss.Color("#FF5F5F"))

	statusStyles = map[string]lipgloss.Style{
		"TO_DO":       lipgloss.NewStyle().Foreground(lipgloss.Color("#AAAAAA")),
		"IN_PROGRESS": lipgloss.NewStyle().Foreground(lipgloss.Color("#FFD700")),
		"COMPLETED":   lipgloss.NewStyle().Foreground(lipgloss.Color("#32CD32")),
	}
)
