package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print the task list again after every change",
	Long:  "Connects the push channel and prints the task list each time another client creates, updates or deletes a task.",
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

		ctx := cmd.Context()
		if err := c.tasks.BindRealtime(ctx); err != nil {
			return err
		}

		observer := c.tasks.Observe(filters)
		defer observer.Close()

		out := cmd.OutOrStdout()
		var printed time.Time
		for {
			select {
			case <-ctx.Done():
				return nil
			case _, ok := <-observer.Changes():
				if !ok {
					return nil
				}
			}

			snap := observer.Snapshot()
			switch {
			case snap.IsLoading:
				continue
			case snap.Err != nil:
				fmt.Fprintf(cmd.ErrOrStderr(), "refresh failed: %v\n", snap.Err)
				continue
			case !snap.HasData || !snap.UpdatedAt.After(printed):
				continue
			}
			printed = snap.UpdatedAt
			fmt.Fprintf(out, "\n%s\n%s\n", snap.UpdatedAt.Format(time.TimeOnly), renderTasks(snap.Data.Data))
		}
	},
}

func init() {
	addFilterFlags(watchCmd)
	rootCmd.AddCommand(watchCmd)
}
