package commands

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/madcore/madcore/pkg/orchestrator"
	"github.com/madcore/madcore/pkg/telemetry"
)

func newConfigureCommand() *cobra.Command {
	var maxRetries int

	cmd := &cobra.Command{
		Use:   "configure",
		Short: "Deploy madcore end to end",
		Long: `Run a full deployment:

  1. create the CloudFormation stacks that do not exist yet
  2. wait until Jenkins answers on https://jenkins.<sub_domain>.<domain>
  3. run the domain registration job, unless it has succeeded before
  4. run the self test job

The command exits with a non-zero status when the last phase that ran failed.`,
		Example: `  # Deploy with the settings in ~/.madcore/madcore.yaml
  madcore configure

  # Use another settings file and retry failing jobs five times
  madcore configure --config ./staging.yaml --max-retries 5`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s := app.Settings
			if err := s.ValidateForDeploy(); err != nil {
				return err
			}
			if !cmd.Flags().Changed("max-retries") {
				maxRetries = s.Jenkins.MaxRetries
			}

			log.Info().
				Str("domain", s.FullDomain()).
				Str("region", s.AWS.Region).
				Msg("Starting deployment")

			client, err := newAWSClient(ctx)
			if err != nil {
				return err
			}
			printer := telemetry.NewPrinter(cmd.OutOrStdout())
			runner := newJobRunner(printer)

			orch := orchestrator.New(orchestrator.Config{
				Stacks:          s.StackSpecs(),
				JenkinsProbe:    orchestrator.PingProbe(newJenkinsClient()),
				JenkinsTimeout:  s.Poll.JenkinsTimeout,
				JenkinsInterval: s.Poll.JenkinsInterval,
				FullDomain:      s.FullDomain(),
				Email:           s.User.Email,
				DomainTimeout:   s.Poll.DomainTimeout,
				DomainInterval:  s.Poll.DomainInterval,
				MaxRetries:      maxRetries,
			}, orchestrator.Deps{
				Stacks:       newProvisioner(client, printer),
				Runner:       runner,
				SelfTest:     orchestrator.NewJobSelfTest(runner, maxRetries),
				Registration: app,
				Runs:         app.Store,
			},
				orchestrator.WithPrinter(printer),
				orchestrator.WithTelemetry(app.Telemetry),
			)

			result := orch.Run(ctx)
			if jsonOutput {
				if err := printJSON(configureSummary(result)); err != nil {
					return err
				}
			}
			if !result.Success {
				return fmt.Errorf("deployment failed (run %s)", result.RunID)
			}
			log.Info().Str("run_id", result.RunID).Msg("Deployment finished")
			return nil
		},
	}

	cmd.Flags().IntVar(&maxRetries, "max-retries", 0, "retries of a Jenkins job after a client fault (default from settings)")

	return cmd
}

type phaseSummary struct {
	Name     string `json:"name"`
	Status   string `json:"status"`
	Duration string `json:"duration"`
	Error    string `json:"error,omitempty"`
}

type runSummary struct {
	RunID   string         `json:"run_id"`
	Success bool           `json:"success"`
	Phases  []phaseSummary `json:"phases"`
}

func configureSummary(r *orchestrator.Result) runSummary {
	out := runSummary{RunID: r.RunID, Success: r.Success}
	for _, p := range r.Phases {
		ps := phaseSummary{Name: p.Name, Status: p.Status, Duration: p.Duration.String()}
		if p.Err != nil {
			ps.Error = p.Err.Error()
		}
		out.Phases = append(out.Phases, ps)
	}
	return out
}
