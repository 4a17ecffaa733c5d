package jenkins

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/madcore/madcore/pkg/engine"
	"github.com/madcore/madcore/pkg/prompt"
	"github.com/madcore/madcore/pkg/telemetry"
)

// Defaults for job runs.
const (
	DefaultMaxRetries   = 3
	DefaultPollInterval = time.Second
	DefaultStartTimeout = 10 * time.Minute
	jobInfoDepth        = 1
)

// ClientFactory returns a fresh server connection. It is called once per attempt.
type ClientFactory func() (engine.AutomationServer, error)

// RunnerConfig configures a Runner.
type RunnerConfig struct {
	// PollInterval is the delay between two job info or console fetches.
	PollInterval time.Duration

	// StartTimeout bounds the wait for a queued build to start. Exceeding it
	// fails the attempt.
	StartTimeout time.Duration
}

// RunResult reports one job run.
type RunResult struct {
	Success     bool
	Attempts    int
	BuildNumber int
	Attached    bool
	Err         error
}

// Runner submits a job, streams its console and reports the build result.
type Runner struct {
	newClient ClientFactory
	cfg       RunnerConfig
	sleeper   engine.Sleeper
	printer   *telemetry.Printer
	logger    *telemetry.Logger
	metrics   *telemetry.Metrics
	events    *telemetry.EventPublisher
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithRunnerSleeper replaces the wall-clock sleeper.
func WithRunnerSleeper(s engine.Sleeper) RunnerOption {
	return func(r *Runner) { r.sleeper = s }
}

// WithRunnerPrinter sets where parameters and console lines are printed.
func WithRunnerPrinter(p *telemetry.Printer) RunnerOption {
	return func(r *Runner) { r.printer = p }
}

// WithRunnerLogger sets the runner logger.
func WithRunnerLogger(l *telemetry.Logger) RunnerOption {
	return func(r *Runner) { r.logger = l }
}

// WithRunnerTelemetry records attempts and retries.
func WithRunnerTelemetry(m *telemetry.Metrics, e *telemetry.EventPublisher) RunnerOption {
	return func(r *Runner) {
		r.metrics = m
		r.events = e
	}
}

// NewRunner creates a runner.
func NewRunner(newClient ClientFactory, cfg RunnerConfig, opts ...RunnerOption) *Runner {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.StartTimeout <= 0 {
		cfg.StartTimeout = DefaultStartTimeout
	}
	r := &Runner{
		newClient: newClient,
		cfg:       cfg,
		sleeper:   engine.RealSleeper{},
		logger:    telemetry.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.printer == nil {
		r.printer = telemetry.NewPrinter(nil)
	}
	r.logger = r.logger.NewComponentLogger("jenkins-runner")
	return r
}

// Run runs job to completion and reports whether the build succeeded.
func (r *Runner) Run(ctx context.Context, job string, params []engine.BuildParameter, maxRetries int) bool {
	return r.Execute(ctx, job, params, maxRetries).Success
}

// Execute runs job, retrying the whole submit and stream cycle on any client
// fault up to maxRetries times. A build that finishes without SUCCESS is a
// failure, not a fault, and is not retried.
func (r *Runner) Execute(ctx context.Context, job string, params []engine.BuildParameter, maxRetries int) *RunResult {
	if maxRetries < 0 {
		maxRetries = 0
	}
	logger := r.logger.WithJob(job)
	op := telemetry.StartOperation(ctx, "job.run", telemetry.AttrJobName.String(job))
	ctx = op.Ctx

	if len(params) > 0 {
		logger.Info("job input parameters")
		r.printer.Println(prompt.ParameterTable(params))
	} else {
		logger.Debug("job has no input parameters")
	}

	result := &RunResult{}
	cursor := &consoleCursor{}

	for {
		result.Attempts++
		success, err := r.attempt(ctx, job, params, cursor, result)
		if err == nil {
			result.Success = success
			if success {
				r.metrics.RecordJobAttempt("succeeded")
				logger.Infof("job finished successfully (build #%d)", result.BuildNumber)
			} else {
				r.metrics.RecordJobAttempt("failed")
				logger.Errorf("job finished without success (build #%d)", result.BuildNumber)
			}
			break
		}

		r.metrics.RecordJobAttempt("fault")
		result.Err = err

		if ctx.Err() != nil {
			logger.WithError(err).Error("job run cancelled")
			break
		}
		if result.Attempts > maxRetries {
			result.Err = engine.NewTransientError(
				fmt.Sprintf("giving up after %d attempts", result.Attempts), err).
				WithCode(engine.ErrCodeRetriesExhausted).WithService(service).WithTarget(job)
			logger.WithError(err).Error("error while trying to run jenkins job")
			break
		}

		logger.WithError(err).Errorf("attempt failed, retry %d", result.Attempts)
		_ = r.events.PublishJobRetry(job, result.Attempts, err.Error())

		if err := r.sleeper.Sleep(ctx, r.cfg.PollInterval); err != nil {
			result.Err = err
			break
		}
	}

	status := "failed"
	if result.Success {
		status = "succeeded"
	}
	r.metrics.RecordJobCompleted(status, op.Timer.Duration())
	if result.Err != nil {
		op.End(result.Err)
	} else if !result.Success {
		op.End(fmt.Errorf("build #%d did not succeed", result.BuildNumber))
	} else {
		op.End(nil)
	}
	return result
}

// attempt runs one QUERY, WAIT, STREAM and COMPLETE cycle on a fresh client.
func (r *Runner) attempt(ctx context.Context, job string, params []engine.BuildParameter, cursor *consoleCursor, result *RunResult) (bool, error) {
	logger := r.logger.WithJob(job)

	client, err := r.newClient()
	if err != nil {
		return false, engine.NewTransientError("failed to connect", err).WithService(service).WithTarget(job)
	}

	info, err := client.GetJobInfo(ctx, job, jobInfoDepth)
	if err != nil {
		return false, err
	}

	number := info.NextBuildNumber
	result.Attached = false
	if len(info.Builds) > 0 && info.Builds[0].Building {
		number = info.Builds[0].Number
		result.Attached = true
		logger.Infof("job already running, attaching to build #%d", number)
	} else {
		if err := client.BuildJob(ctx, job, params); err != nil {
			return false, err
		}
		logger.Infof("build #%d queued", number)
	}
	result.BuildNumber = number
	cursor.reset(number)

	if err := r.waitForStart(ctx, client, job, number); err != nil {
		return false, err
	}
	if err := r.stream(ctx, client, job, number, cursor); err != nil {
		return false, err
	}

	info, err = client.GetJobInfo(ctx, job, jobInfoDepth)
	if err != nil {
		return false, err
	}
	return info.LastBuild != nil && info.LastBuild.Result.IsSuccess(), nil
}

// waitForStart polls until the build runs or has already finished.
func (r *Runner) waitForStart(ctx context.Context, client engine.AutomationServer, job string, number int) error {
	var waited time.Duration
	for {
		info, err := client.GetJobInfo(ctx, job, jobInfoDepth)
		if err != nil {
			return err
		}
		if b, ok := info.Build(number); ok && (b.Building || b.Result != "") {
			r.logger.WithJob(job).Debug("build left the queue")
			return nil
		}

		if waited >= r.cfg.StartTimeout {
			return engine.NewTransientError(
				fmt.Sprintf("build #%d did not start within %s", number, r.cfg.StartTimeout), nil).
				WithCode(engine.ErrCodeTimeout).WithService(service).WithTarget(job)
		}
		if err := r.sleeper.Sleep(ctx, r.cfg.PollInterval); err != nil {
			return err
		}
		waited += r.cfg.PollInterval
	}
}

// stream prints new console lines until there are none and the build stopped.
func (r *Runner) stream(ctx context.Context, client engine.AutomationServer, job string, number int, cursor *consoleCursor) error {
	for {
		text, err := client.GetBuildConsoleOutput(ctx, job, number)
		if err != nil {
			return err
		}
		lines := splitLines(text)
		fresh := cursor.diff(lines)

		info, err := client.GetJobInfo(ctx, job, jobInfoDepth)
		if err != nil {
			return err
		}
		if len(fresh) == 0 && !buildState(info, number).Building {
			return nil
		}

		cursor.advance(lines)
		for _, line := range fresh {
			r.printer.Println(strings.TrimSpace(line))
		}

		if err := r.sleeper.Sleep(ctx, r.cfg.PollInterval); err != nil {
			return err
		}
	}
}

// buildState returns the state of build number, falling back to the newest build.
func buildState(info *engine.JobInfo, number int) engine.BuildState {
	if b, ok := info.Build(number); ok {
		return b
	}
	if len(info.Builds) > 0 {
		return info.Builds[0]
	}
	return engine.BuildState{}
}

// consoleCursor remembers the console lines of the previous fetch. It
// survives retries while the build number stays the same.
type consoleCursor struct {
	build int
	seen  map[string]struct{}
}

func (c *consoleCursor) reset(build int) {
	if c.build == build && c.seen != nil {
		return
	}
	c.build = build
	c.seen = make(map[string]struct{})
}

// diff returns the lines absent from the previous fetch, in order.
func (c *consoleCursor) diff(lines []string) []string {
	var fresh []string
	for _, l := range lines {
		if _, ok := c.seen[l]; !ok {
			fresh = append(fresh, l)
		}
	}
	return fresh
}

func (c *consoleCursor) advance(lines []string) {
	seen := make(map[string]struct{}, len(lines))
	for _, l := range lines {
		seen[l] = struct{}{}
	}
	c.seen = seen
}

func splitLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.TrimSuffix(text, "\n")
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}
