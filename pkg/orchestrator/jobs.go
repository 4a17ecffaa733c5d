package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/madcore/madcore/pkg/engine"
	"github.com/madcore/madcore/pkg/jenkins"
	"github.com/madcore/madcore/pkg/params"
	"github.com/madcore/madcore/pkg/policy"
	"github.com/madcore/madcore/pkg/telemetry"
)

// JobPolicy admits or denies a job run.
type JobPolicy interface {
	CheckJob(ctx context.Context, input *policy.JobInput) (*policy.Result, error)
}

// JobRequest is one plugin job invocation.
type JobRequest struct {
	params.Request
	MaxRetries int
}

// JobOutcome reports a plugin job invocation.
type JobOutcome struct {
	RunID   string
	JobName string
	Params  []engine.JobParameter
	Policy  *policy.Result
	Result  *jenkins.RunResult
}

// Success reports whether the build finished with SUCCESS.
func (o *JobOutcome) Success() bool {
	return o != nil && o.Result != nil && o.Result.Success
}

// JobService resolves the parameters of a plugin job, checks it against the
// admission policies, runs it and persists the parameters that worked.
type JobService struct {
	catalog   *params.Catalog
	resolver  *params.Resolver
	runner    JobRunner
	policy    JobPolicy
	policyCfg policy.InputConfig
	runs      engine.RunRecorder
	logger    *telemetry.Logger
	metrics   *telemetry.Metrics
	events    *telemetry.EventPublisher
}

// JobServiceOption configures a JobService.
type JobServiceOption func(*JobService)

// WithJobPolicy sets the admission policy and the operator settings it reads.
func WithJobPolicy(p JobPolicy, cfg policy.InputConfig) JobServiceOption {
	return func(s *JobService) {
		s.policy = p
		s.policyCfg = cfg
	}
}

// WithRunRecorder records every job run.
func WithRunRecorder(r engine.RunRecorder) JobServiceOption {
	return func(s *JobService) { s.runs = r }
}

// WithJobTelemetry sets the logger, metrics and events.
func WithJobTelemetry(t *telemetry.Telemetry) JobServiceOption {
	return func(s *JobService) {
		s.logger = t.Logger
		s.metrics = t.Metrics
		s.events = t.Events
	}
}

// NewJobService creates a job service.
func NewJobService(catalog *params.Catalog, resolver *params.Resolver, runner JobRunner, opts ...JobServiceOption) *JobService {
	s := &JobService{
		catalog:  catalog,
		resolver: resolver,
		runner:   runner,
		logger:   telemetry.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.NewComponentLogger("jobs")
	return s
}

// Run executes one plugin job. The returned error covers resolution and
// policy failures only; a build that ran but did not succeed is reported
// through the outcome.
func (s *JobService) Run(ctx context.Context, req JobRequest) (*JobOutcome, error) {
	jobName := params.JenkinsJobName(req.PluginID, req.Job)
	logger := s.logger.WithPlugin(req.PluginID, req.Job)
	outcome := &JobOutcome{JobName: jobName}

	_, def, err := s.catalog.Job(req.PluginID, req.Job, req.JobType)
	if err != nil && !errors.Is(err, engine.ErrJobNotFound) {
		return outcome, err
	}

	list, err := s.resolver.Resolve(ctx, req.Request)
	if err != nil {
		return outcome, fmt.Errorf("resolving parameters of %s: %w", jobName, err)
	}
	outcome.Params = list

	if s.policy != nil {
		input := &policy.JobInput{
			Plugin:     req.PluginID,
			Job:        req.Job,
			JobType:    jobTypeOrDefault(req.JobType),
			JobName:    jobName,
			Private:    def != nil && def.Private,
			Parameters: params.ToMap(list),
			Config:     s.policyCfg,
		}
		res, err := s.policy.CheckJob(ctx, input)
		outcome.Policy = res
		if err != nil {
			if engine.CodeOf(err) == engine.ErrCodePolicyDenied {
				_ = s.events.PublishPolicyDenied(jobName, err.Error())
			}
			logger.WithError(err).Error("job denied")
			return outcome, err
		}
		for _, w := range res.Warnings {
			logger.Warnf("policy %s: %s", w.Policy, w.Message)
		}
	}

	if s.runs != nil {
		rec, err := s.runs.StartRun(ctx, engine.RunKindJob, jobName)
		if err != nil {
			logger.WithError(err).Warn("failed to record run")
		} else {
			outcome.RunID = rec.ID
		}
	}
	s.metrics.RecordRunStarted(string(engine.RunKindJob))
	_ = s.events.PublishRunStarted(outcome.RunID, string(engine.RunKindJob), jobName)
	timer := telemetry.NewTimer()

	outcome.Result = s.runner.Execute(ctx, jobName, params.ToJenkinsFormat(list), req.MaxRetries)

	status := engine.RunStatusFailed
	var runErr error
	if outcome.Success() {
		status = engine.RunStatusSucceeded
		s.persist(ctx, req, list, logger)
		_ = s.events.PublishRunCompleted(outcome.RunID, jobName, timer.Duration())
	} else {
		runErr = outcome.Result.Err
		if runErr == nil {
			runErr = fmt.Errorf("build #%d did not succeed", outcome.Result.BuildNumber)
		}
		_ = s.events.PublishRunFailed(outcome.RunID, jobName, runErr.Error())
	}
	s.metrics.RecordRunCompleted(string(engine.RunKindJob), string(status), timer.Duration())

	if s.runs != nil && outcome.RunID != "" {
		if err := s.runs.FinishRun(ctx, outcome.RunID, status, outcome.Result.Attempts, runErr); err != nil {
			logger.WithError(err).Warn("failed to record run result")
		}
	}
	return outcome, nil
}

// persist stores the parameters of a successful run. A successful delete
// forgets every stored parameter set of the plugin instead.
func (s *JobService) persist(ctx context.Context, req JobRequest, list []engine.JobParameter, logger *telemetry.Logger) {
	if req.Job == params.JobDelete {
		if err := s.resolver.Forget(ctx, req.PluginID); err != nil {
			logger.WithError(err).Warn("failed to forget plugin parameters")
		}
		return
	}
	if err := s.resolver.Save(ctx, req.Request, list); err != nil {
		logger.WithError(err).Warn("failed to save job parameters")
	}
}

func jobTypeOrDefault(jobType string) string {
	if jobType == "" {
		return engine.DefaultJobType
	}
	return jobType
}
