package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/madcore/madcore/pkg/engine"
	"github.com/madcore/madcore/pkg/prompt"
	"github.com/madcore/madcore/pkg/stacks"
)

func newRunsCommand() *cobra.Command {
	var (
		limit  int
		offset int
	)

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Show the history of deployments and job runs",
		Example: `  # The twenty newest runs
  madcore runs

  # Older runs
  madcore runs --limit 50 --offset 20`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			runs, err := app.Store.ListRuns(cmd.Context(), limit, offset)
			if err != nil {
				return fmt.Errorf("failed to list runs: %w", err)
			}
			if jsonOutput {
				return printJSON(runs)
			}
			if len(runs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded.")
				return nil
			}

			rows := make([][]string, 0, len(runs))
			for _, r := range runs {
				rows = append(rows, runRow(r))
			}
			fmt.Fprintln(cmd.OutOrStdout(), prompt.Table(runHeaders, rows))
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "number of runs to show")
	cmd.Flags().IntVar(&offset, "offset", 0, "number of newest runs to skip")

	cmd.AddCommand(&cobra.Command{
		Use:   "show <id>",
		Short: "Show one recorded run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			run, err := app.Store.GetRun(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(run)
			}
			fmt.Fprintln(cmd.OutOrStdout(), prompt.Table(runHeaders, [][]string{runRow(run)}))
			return nil
		},
	})

	return cmd
}

var runHeaders = []string{"ID", "Kind", "Target", "Status", "Attempts", "Started", "Completed", "Error"}

func runRow(r *engine.RunRecord) []string {
	errMsg := ""
	if r.Error != nil {
		errMsg = *r.Error
	}
	return []string{
		r.ID,
		string(r.Kind),
		r.Target,
		string(r.Status),
		fmt.Sprint(r.Attempts),
		stacks.FormatTime(&r.StartedAt),
		stacks.FormatTime(r.CompletedAt),
		errMsg,
	}
}
