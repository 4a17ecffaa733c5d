package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/madcore/madcore/pkg/engine"
	"github.com/madcore/madcore/pkg/jenkins"
	"github.com/madcore/madcore/pkg/prompt"
	"github.com/madcore/madcore/pkg/stacks"
	"github.com/madcore/madcore/pkg/telemetry"
)

// Deployment phases, in order.
const (
	PhaseCreateStacks  = "create stacks"
	PhaseWaitJenkins   = "wait until jenkins is up"
	PhaseRegistration  = "domain registration"
	PhaseSelfTest      = "run selftests"
	RegistrationJob    = "madcore.registration"
	phaseStatusSkipped = "skipped"
)

// StackCreator creates the deployment stacks.
type StackCreator interface {
	CreateStacks(ctx context.Context, specs []stacks.StackSpec) error
}

// JobRunner runs one automation job to completion.
type JobRunner interface {
	Execute(ctx context.Context, job string, params []engine.BuildParameter, maxRetries int) *jenkins.RunResult
}

// RegistrationStore remembers whether the domain registration succeeded.
type RegistrationStore interface {
	Registered(ctx context.Context) (bool, error)
	SetRegistered(ctx context.Context, ok bool) error
}

// Config holds the inputs of a deployment.
type Config struct {
	Stacks []stacks.StackSpec

	// JenkinsProbe answers once the automation server is reachable.
	JenkinsProbe    Probe
	JenkinsTimeout  time.Duration
	JenkinsInterval time.Duration

	// FullDomain and Email are sent to the registration job.
	FullDomain string
	Email      string

	// DomainTimeout and DomainInterval bound the certificate check after
	// registration. A zero timeout skips the check.
	DomainTimeout  time.Duration
	DomainInterval time.Duration

	MaxRetries int
}

// Deps are the collaborators of an Orchestrator.
type Deps struct {
	Stacks       StackCreator
	Runner       JobRunner
	SelfTest     SelfTester
	Registration RegistrationStore

	// Runs records the deployment run; optional.
	Runs engine.RunRecorder
}

// PhaseResult is the outcome of one phase.
type PhaseResult struct {
	Name     string
	Status   string
	Duration time.Duration
	Err      error
}

// Result is the outcome of a deployment. Success reflects the last phase
// that ran; earlier failures that do not stop the sequence are reported in
// Phases.
type Result struct {
	RunID   string
	Phases  []PhaseResult
	Success bool
}

// ExitCode is 0 on success and 1 otherwise.
func (r *Result) ExitCode() int {
	if r.Success {
		return 0
	}
	return 1
}

// Orchestrator sequences a full deployment.
type Orchestrator struct {
	cfg     Config
	deps    Deps
	waiter  *Waiter
	printer *telemetry.Printer
	logger  *telemetry.Logger
	metrics *telemetry.Metrics
	events  *telemetry.EventPublisher
	tracer  *telemetry.Tracer
	sleeper engine.Sleeper
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithSleeper replaces the wall-clock sleeper of the wait phases.
func WithSleeper(s engine.Sleeper) Option {
	return func(o *Orchestrator) { o.sleeper = s }
}

// WithPrinter sets where phase banners are printed.
func WithPrinter(p *telemetry.Printer) Option {
	return func(o *Orchestrator) { o.printer = p }
}

// WithTelemetry sets the logger, metrics, events and tracer.
func WithTelemetry(t *telemetry.Telemetry) Option {
	return func(o *Orchestrator) {
		o.logger = t.Logger
		o.metrics = t.Metrics
		o.events = t.Events
		o.tracer = t.Tracer
	}
}

// New creates an orchestrator.
func New(cfg Config, deps Deps, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cfg:    cfg,
		deps:   deps,
		logger: telemetry.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.printer == nil {
		o.printer = telemetry.NewPrinter(nil)
	}
	o.logger = o.logger.NewComponentLogger("orchestrator")
	o.waiter = NewWaiter(o.sleeper, o.logger)
	return o
}

// Run creates the stacks, waits for the automation server, registers the
// domain unless already registered and runs the self tests. It stops early
// when stack creation or the wait fails. A failed registration is recorded
// and the sequence continues.
func (o *Orchestrator) Run(ctx context.Context) *Result {
	start := time.Now()
	result := &Result{}
	kind := string(engine.RunKindConfigure)

	if o.deps.Runs != nil {
		rec, err := o.deps.Runs.StartRun(ctx, engine.RunKindConfigure, o.cfg.FullDomain)
		if err != nil {
			o.logger.WithError(err).Warn("failed to record run")
		} else {
			result.RunID = rec.ID
		}
	}
	logger := o.logger.WithRunID(result.RunID)
	o.metrics.RecordRunStarted(kind)
	_ = o.events.PublishRunStarted(result.RunID, kind, o.cfg.FullDomain)

	var lastErr error
	phases := []struct {
		name string
		fn   func(context.Context) (string, error)
		stop bool
	}{
		{PhaseCreateStacks, o.createStacks, true},
		{PhaseWaitJenkins, o.waitJenkins, true},
		{PhaseRegistration, o.register, false},
		{PhaseSelfTest, o.selfTest, true},
	}

	for _, p := range phases {
		pr := o.runPhase(ctx, result.RunID, p.name, p.fn)
		result.Phases = append(result.Phases, pr)
		lastErr = pr.Err
		if pr.Err != nil {
			logger.WithError(pr.Err).Errorf("phase %q failed", p.name)
			if p.stop {
				break
			}
		}
	}

	result.Success = lastErr == nil
	status := engine.RunStatusSucceeded
	if !result.Success {
		status = engine.RunStatusFailed
		_ = o.events.PublishRunFailed(result.RunID, o.cfg.FullDomain, lastErr.Error())
	} else {
		_ = o.events.PublishRunCompleted(result.RunID, o.cfg.FullDomain, time.Since(start))
	}
	o.metrics.RecordRunCompleted(kind, string(status), time.Since(start))

	if o.deps.Runs != nil && result.RunID != "" {
		if err := o.deps.Runs.FinishRun(ctx, result.RunID, status, len(result.Phases), lastErr); err != nil {
			logger.WithError(err).Warn("failed to record run result")
		}
	}
	return result
}

func (o *Orchestrator) runPhase(ctx context.Context, runID, name string, fn func(context.Context) (string, error)) PhaseResult {
	o.printer.Println(prompt.Banner(name))
	_ = o.events.PublishPhase(runID, name, "started")
	timer := telemetry.NewTimer()

	var span trace.Span
	if o.tracer != nil {
		ctx, span = o.tracer.StartPhaseSpan(ctx, name)
		defer span.End()
	}

	status, err := fn(ctx)
	switch {
	case err != nil:
		status = "failed"
	case status == "":
		status = "succeeded"
	}
	if span != nil {
		if err != nil {
			telemetry.RecordError(span, err)
		} else {
			telemetry.RecordSuccess(span)
		}
	}

	d := timer.Duration()
	o.metrics.RecordPhase(name, status, d)
	_ = o.events.PublishPhase(runID, name, status)
	o.printer.Println(prompt.Banner("done"))
	return PhaseResult{Name: name, Status: status, Duration: d, Err: err}
}

func (o *Orchestrator) createStacks(ctx context.Context) (string, error) {
	if err := o.deps.Stacks.CreateStacks(ctx, o.cfg.Stacks); err != nil {
		return "", fmt.Errorf("creating stacks: %w", err)
	}
	return "", nil
}

func (o *Orchestrator) waitJenkins(ctx context.Context) (string, error) {
	if !o.waiter.WaitUntil(ctx, o.cfg.JenkinsProbe, o.cfg.JenkinsTimeout, o.cfg.JenkinsInterval, "Waiting until Jenkins is up...") {
		return "", engine.NewTransientError(
			fmt.Sprintf("jenkins did not come up within %s", o.cfg.JenkinsTimeout), nil).
			WithCode(engine.ErrCodeTimeout).WithService("jenkins")
	}
	o.logger.Info("Jenkins is up, continue.")
	return "", nil
}

func (o *Orchestrator) register(ctx context.Context) (string, error) {
	registered, err := o.deps.Registration.Registered(ctx)
	if err != nil {
		return "", fmt.Errorf("reading registration state: %w", err)
	}
	if registered {
		o.logger.Info("Domain already registered.")
		return phaseStatusSkipped, nil
	}

	params := RegistrationParams(o.cfg.FullDomain, o.cfg.Email)
	res := o.deps.Runner.Execute(ctx, RegistrationJob, params, o.cfg.MaxRetries)
	if err := o.deps.Registration.SetRegistered(ctx, res.Success); err != nil {
		o.logger.WithError(err).Warn("failed to persist registration state")
	}
	if !res.Success {
		if res.Err != nil {
			return "", res.Err
		}
		return "", errors.New("registration job did not succeed")
	}
	o.logger.Infof("Successfully run job '%s'.", RegistrationJob)

	if o.cfg.DomainTimeout > 0 {
		if o.waiter.WaitUntilDomainEncrypted(ctx, o.cfg.FullDomain, o.cfg.DomainTimeout, o.cfg.DomainInterval) {
			o.logger.Infof("https://%s serves a valid certificate", o.cfg.FullDomain)
		} else {
			o.logger.Warnf("https://%s does not serve a valid certificate yet", o.cfg.FullDomain)
		}
	}
	return "", nil
}

func (o *Orchestrator) selfTest(ctx context.Context) (string, error) {
	return "", o.deps.SelfTest.SelfTest(ctx)
}

// Parameter names declared by the registration job. Jenkins matches them
// case-sensitively and they are sent as is, not upper-cased like plugin
// job parameters.
const (
	RegistrationHostnameParam = "Hostname"
	RegistrationEmailParam    = "Email"
)

// RegistrationParams are the build parameters of the registration job.
func RegistrationParams(fullDomain, email string) []engine.BuildParameter {
	return []engine.BuildParameter{
		{Name: RegistrationHostnameParam, Value: fullDomain},
		{Name: RegistrationEmailParam, Value: email},
	}
}
