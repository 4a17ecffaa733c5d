package commands

import (
	"context"
	"encoding/json"
	"os"

	"github.com/madcore/madcore/pkg/engine"
	"github.com/madcore/madcore/pkg/jenkins"
	"github.com/madcore/madcore/pkg/orchestrator"
	"github.com/madcore/madcore/pkg/params"
	"github.com/madcore/madcore/pkg/prompt"
	"github.com/madcore/madcore/pkg/providers/aws"
	"github.com/madcore/madcore/pkg/stacks"
	"github.com/madcore/madcore/pkg/telemetry"
)

func newAWSClient(ctx context.Context) (*aws.Client, error) {
	return aws.NewClient(ctx, app.Settings.AWS.Region, app.Logger())
}

func newJenkinsClient() *jenkins.Client {
	s := app.Settings
	return jenkins.NewClient(jenkins.ClientConfig{
		BaseURL:            s.JenkinsURL(),
		Username:           s.Jenkins.Username,
		APIToken:           s.Jenkins.Token,
		InsecureSkipVerify: s.Jenkins.InsecureSkipVerify,
	}, app.Logger())
}

// newJobRunner returns a runner that opens a fresh Jenkins connection per attempt.
func newJobRunner(printer *telemetry.Printer) *jenkins.Runner {
	tel := app.Telemetry
	factory := func() (engine.AutomationServer, error) {
		return newJenkinsClient(), nil
	}
	return jenkins.NewRunner(factory, jenkins.RunnerConfig{
		PollInterval: app.Settings.Poll.JobInterval,
		StartTimeout: app.Settings.Poll.JobStartTimeout,
	},
		jenkins.WithRunnerPrinter(printer),
		jenkins.WithRunnerLogger(tel.Logger),
		jenkins.WithRunnerTelemetry(tel.Metrics, tel.Events),
	)
}

func newProvisioner(client *aws.Client, printer *telemetry.Printer) *stacks.Provisioner {
	tracker := stacks.NewTracker(client,
		stacks.WithPrinter(printer),
		stacks.WithTrackerLogger(app.Logger()),
		stacks.WithMetrics(app.Telemetry.Metrics),
		stacks.WithMaxWait(app.Settings.Poll.StackTimeout),
	)
	return stacks.NewProvisioner(client, client, tracker,
		app.Settings.AWS.TemplateDir, app.Settings.Poll.StackInterval, app.Logger(),
		stacks.WithTerminateWait(app.Settings.Poll.InstanceTerminated))
}

func newResolver(catalog *params.Catalog, client *aws.Client, interactive bool) *params.Resolver {
	opts := []params.ResolverOption{
		params.WithLogger(app.Logger()),
		params.WithCoreParams(stacks.NewCoreParams(client, app.Settings.AWS.KeyName, app.Logger())),
	}
	if interactive {
		opts = append(opts, params.WithPrompter(prompt.NewTerminalPrompter(nil, nil)))
	}
	return params.NewResolver(catalog, app.Store, opts...)
}

func newJobService(ctx context.Context, catalog *params.Catalog, client *aws.Client, runner orchestrator.JobRunner, interactive bool) (*orchestrator.JobService, error) {
	eng, err := app.PolicyEngine(ctx)
	if err != nil {
		return nil, err
	}
	return orchestrator.NewJobService(catalog, newResolver(catalog, client, interactive), runner,
		orchestrator.WithJobPolicy(eng, app.Settings.Policy.InputConfig),
		orchestrator.WithRunRecorder(app.Store),
		orchestrator.WithJobTelemetry(app.Telemetry),
	), nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
