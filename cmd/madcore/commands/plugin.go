package commands

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/madcore/madcore/pkg/orchestrator"
	"github.com/madcore/madcore/pkg/params"
	"github.com/madcore/madcore/pkg/prompt"
	"github.com/madcore/madcore/pkg/telemetry"
)

func newPluginCommand() *cobra.Command {
	var (
		paramFlags  []string
		jobType     string
		resetParams bool
		skipConfirm bool
		maxRetries  int
		refresh     bool
	)

	cmd := &cobra.Command{
		Use:   "plugin <id> <job>",
		Short: "Run a plugin job on Jenkins",
		Long: `Run a job of a plugin from the plugin index on Jenkins.

Every plugin has the jobs deploy, delete and status; plugins may declare
more. Parameters are resolved from the plugin index, the values stored by
the last successful run, --param flags and, on a terminal, prompts.

A successful deploy stores its parameters for the next run. A successful
delete forgets every stored parameter of the plugin.`,
		Example: `  # Deploy spark, keeping the last used parameters without asking
  madcore plugin spark deploy --skip-confirm-default-params

  # Override a parameter
  madcore plugin spark deploy --param Workers=4

  # Start over from the index defaults
  madcore plugin spark deploy --reset-params`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			pluginID, job := args[0], args[1]

			values, err := parseParamFlags(paramFlags)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("max-retries") {
				maxRetries = app.Settings.Jenkins.MaxRetries
			}

			catalog, err := app.Catalog(ctx, refresh)
			if err != nil {
				return err
			}
			client, err := newAWSClient(ctx)
			if err != nil {
				return err
			}

			interactive := prompt.StdinIsTTY() && !jsonOutput
			printer := telemetry.NewPrinter(cmd.OutOrStdout())
			service, err := newJobService(ctx, catalog, client, newJobRunner(printer), interactive)
			if err != nil {
				return err
			}

			outcome, err := service.Run(ctx, orchestrator.JobRequest{
				Request: params.Request{
					PluginID:            pluginID,
					Job:                 job,
					JobType:             jobType,
					CLIValues:           values,
					ResetParams:         resetParams,
					SkipConfirmDefaults: skipConfirm,
					Interactive:         interactive,
				},
				MaxRetries: maxRetries,
			})
			if err != nil {
				return err
			}
			if jsonOutput {
				if err := printJSON(jobSummary(outcome)); err != nil {
					return err
				}
			}
			if !outcome.Success() {
				return fmt.Errorf("job %s failed", outcome.JobName)
			}
			log.Info().Str("job", outcome.JobName).Msg("Job finished successfully")
			return nil
		},
	}

	cmd.Flags().StringArrayVarP(&paramFlags, "param", "p", nil, "parameter value as NAME=VALUE (repeatable)")
	cmd.Flags().StringVar(&jobType, "job-type", "", "job list of the plugin index to use (default \"jobs\")")
	cmd.Flags().BoolVar(&resetParams, "reset-params", false, "ignore the parameters stored by the last run")
	cmd.Flags().BoolVar(&skipConfirm, "skip-confirm-default-params", false, "do not ask for parameters that already have a value")
	cmd.Flags().IntVar(&maxRetries, "max-retries", 0, "retries after a Jenkins client fault (default from settings)")
	cmd.Flags().BoolVar(&refresh, "refresh-index", false, "download the plugin index before running")

	cmd.AddCommand(newPluginListCommand())

	return cmd
}

func newPluginListCommand() *cobra.Command {
	var refresh bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the plugins of the plugin index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, err := app.Catalog(cmd.Context(), refresh)
			if err != nil {
				return err
			}

			type pluginRow struct {
				ID       string   `json:"id"`
				Type     string   `json:"type"`
				Jobs     []string `json:"jobs"`
				JobTypes []string `json:"job_types"`
			}
			var list []pluginRow
			for _, p := range catalog.Plugins() {
				jobs := append(append([]string(nil), params.DefaultJobs...), catalog.ExtraJobs(p.ID)...)
				list = append(list, pluginRow{
					ID:       p.ID,
					Type:     string(p.Type),
					Jobs:     jobs,
					JobTypes: catalog.JobTypes(p.ID),
				})
			}

			if jsonOutput {
				return printJSON(list)
			}
			rows := make([][]string, 0, len(list))
			for _, p := range list {
				rows = append(rows, []string{p.ID, p.Type, strings.Join(p.Jobs, ", "), strings.Join(p.JobTypes, ", ")})
			}
			fmt.Fprintln(cmd.OutOrStdout(), prompt.Table([]string{"Plugin", "Type", "Jobs", "Job Types"}, rows))
			return nil
		},
	}

	cmd.Flags().BoolVar(&refresh, "refresh-index", false, "download the plugin index first")

	return cmd
}

// parseParamFlags splits NAME=VALUE flags. The value may contain '='.
func parseParamFlags(flags []string) (map[string]string, error) {
	values := make(map[string]string, len(flags))
	for _, f := range flags {
		name, value, ok := strings.Cut(f, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid --param %q, want NAME=VALUE", f)
		}
		values[name] = value
	}
	return values, nil
}

type jobRunSummary struct {
	RunID       string            `json:"run_id,omitempty"`
	Job         string            `json:"job"`
	Success     bool              `json:"success"`
	Attempts    int               `json:"attempts"`
	BuildNumber int               `json:"build_number,omitempty"`
	Parameters  map[string]string `json:"parameters"`
	Warnings    []string          `json:"policy_warnings,omitempty"`
	Error       string            `json:"error,omitempty"`
}

func jobSummary(o *orchestrator.JobOutcome) jobRunSummary {
	s := jobRunSummary{
		RunID:      o.RunID,
		Job:        o.JobName,
		Success:    o.Success(),
		Parameters: params.ToMap(o.Params),
	}
	if o.Result != nil {
		s.Attempts = o.Result.Attempts
		s.BuildNumber = o.Result.BuildNumber
		if o.Result.Err != nil {
			s.Error = o.Result.Err.Error()
		}
	}
	if o.Policy != nil {
		for _, w := range o.Policy.Warnings {
			s.Warnings = append(s.Warnings, w.Message)
		}
	}
	return s
}
