package orchestrator

import (
	"context"
	"fmt"

	"github.com/madcore/madcore/pkg/engine"
)

// SelfTestJob is the automation server job that checks a fresh deployment.
const SelfTestJob = "madcore.selftest"

// SelfTester verifies a deployment end to end.
type SelfTester interface {
	SelfTest(ctx context.Context) error
}

// JobSelfTest runs the self-test job on the automation server.
type JobSelfTest struct {
	runner     JobRunner
	job        string
	maxRetries int
}

// NewJobSelfTest creates a self test that runs SelfTestJob.
func NewJobSelfTest(runner JobRunner, maxRetries int) *JobSelfTest {
	return &JobSelfTest{runner: runner, job: SelfTestJob, maxRetries: maxRetries}
}

// SelfTest implements SelfTester.
func (s *JobSelfTest) SelfTest(ctx context.Context) error {
	res := s.runner.Execute(ctx, s.job, nil, s.maxRetries)
	if res.Success {
		return nil
	}
	if res.Err != nil {
		return res.Err
	}
	return engine.NewPermanentError(fmt.Sprintf("build #%d did not succeed", res.BuildNumber), nil).
		WithService("jenkins").WithTarget(s.job)
}
