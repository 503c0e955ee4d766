// Package jobs implements the commands for inspecting and removing scheduled jobs.
package jobs

import (
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/jonesrussell/north-cloud/pricetracker/cmd/common"
	"github.com/jonesrussell/north-cloud/pricetracker/internal/scheduler"
	"github.com/jonesrussell/north-cloud/pricetracker/internal/tracking"
)

// Command returns the jobs command and its subcommands.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Manage scheduled tracking jobs",
	}

	cmd.AddCommand(newListCmd(), newRemoveCmd())
	return cmd
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List scheduled jobs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			deps, err := common.NewCommandDeps()
			if err != nil {
				return err
			}
			rt, err := common.NewRuntime(cmd.Context(), deps, common.RuntimeOptions{})
			if err != nil {
				return err
			}
			defer rt.Close()

			jobs, err := rt.Scheduler.Jobs(cmd.Context())
			if err != nil {
				return err
			}
			if len(jobs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No jobs scheduled")
				return nil
			}

			RenderTable(cmd.OutOrStdout(), jobs)
			return nil
		},
	}
}

func newRemoveCmd() *cobra.Command {
	var byProduct bool

	cmd := &cobra.Command{
		Use:   "remove ID",
		Short: "Remove a scheduled job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := common.NewCommandDeps()
			if err != nil {
				return err
			}
			rt, err := common.NewRuntime(cmd.Context(), deps, common.RuntimeOptions{})
			if err != nil {
				return err
			}
			defer rt.Close()

			var removed bool
			if byProduct {
				removed, err = tracking.Untrack(cmd.Context(), rt.Scheduler, args[0])
			} else {
				removed, err = rt.Scheduler.RemoveJob(cmd.Context(), args[0])
			}
			if err != nil {
				return err
			}

			if removed {
				fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", args[0])
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "no job %s\n", args[0])
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&byProduct, "product", false, "treat ID as a product id")
	return cmd
}

// RenderTable writes jobs as a table.
func RenderTable(w io.Writer, jobs []*scheduler.Job) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)

	t.AppendHeader(table.Row{"ID", "Target", "Trigger", "Next Fire", "State", "Arguments"})
	for _, job := range jobs {
		t.AppendRow(table.Row{
			job.ID,
			job.TargetRef,
			describeTrigger(job.Trigger),
			job.NextFireTime.Local().Format(time.DateTime),
			job.State,
			fmt.Sprint(job.Arguments),
		})
	}
	t.Render()
}

func describeTrigger(t scheduler.Trigger) string {
	switch tr := t.(type) {
	case scheduler.IntervalTrigger:
		return "every " + tr.Every.String()
	case *scheduler.CronTrigger:
		return fmt.Sprintf("cron %q %s", tr.Expression, tr.Location)
	case scheduler.DateTrigger:
		return "at " + tr.At.Format(time.RFC3339)
	default:
		return t.Kind()
	}
}
