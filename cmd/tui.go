package cmd

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"taskboard.com/taskboard/internal/query"
	"taskboard.com/taskboard/internal/tui"
)

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Open the interactive task board",
	Long:  "Opens the task board. This is also what runs when no command is given.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTUI(cmd)
	},
}

func runTUI(cmd *cobra.Command) error {
	c, err := newClient(true)
	if err != nil {
		return err
	}
	defer c.Close()

	filters := query.DefaultFilters()
	filters.Limit = c.cfg.PageLimit
	app := tui.NewApp(c.gateway, c.tasks,
		tui.WithFilters(filters),
		tui.WithLogger(c.logger),
	)
	defer app.Close()

	p := tea.NewProgram(app,
		tea.WithAltScreen(),
		tea.WithContext(cmd.Context()),
	)
	_, err = p.Run()
	return err
}

func init() {
	rootCmd.AddCommand(tuiCmd)
}
