package engine

import (
	"context"
	"time"
)

// StackAPI is the cloud orchestration service as consumed by the controller.
type StackAPI interface {
	// DescribeStack returns the stack or an error wrapping ErrStackNotFound.
	DescribeStack(ctx context.Context, name string) (*Stack, error)

	// DescribeStackEvents returns the stack's recent events in any order.
	DescribeStackEvents(ctx context.Context, name string) ([]StackEvent, error)
}

// StackProvisioner creates stacks and lists them.
type StackProvisioner interface {
	StackAPI

	// CreateStack starts a stack creation and returns the stack id.
	CreateStack(ctx context.Context, input CreateStackInput) (string, error)

	// ListStacks returns every stack visible to the account.
	ListStacks(ctx context.Context) ([]Stack, error)
}

// InstanceAPI looks up compute instances.
type InstanceAPI interface {
	// DescribeInstance returns the instance, or nil when it does not exist.
	DescribeInstance(ctx context.Context, id string) (*Instance, error)

	// WaitInstanceTerminated blocks until the instance is terminated or maxWait elapses.
	WaitInstanceTerminated(ctx context.Context, id string, maxWait time.Duration) error
}

// AutomationServer is the build-automation server API.
type AutomationServer interface {
	// GetJobInfo returns the job state with builds expanded to the given depth.
	GetJobInfo(ctx context.Context, name string, depth int) (*JobInfo, error)

	// BuildJob queues a build of the job with the given parameters.
	BuildJob(ctx context.Context, name string, params []BuildParameter) error

	// GetBuildConsoleOutput returns the full console text of a build.
	GetBuildConsoleOutput(ctx context.Context, name string, number int) (string, error)
}

// ParameterStore is section-scoped key/value persistence.
type ParameterStore interface {
	// Get returns one value or an error wrapping ErrKeyNotFound.
	Get(ctx context.Context, section, key string) (string, error)

	// GetSection returns every key of a section; a missing section is empty.
	GetSection(ctx context.Context, section string) (map[string]string, error)

	// SetMany upserts all keys of data into section.
	SetMany(ctx context.Context, section string, data map[string]string) error

	// DeleteKeys removes keys from section.
	DeleteKeys(ctx context.Context, section string, keys []string) error

	// DeleteSection removes a whole section.
	DeleteSection(ctx context.Context, section string) error
}

// RunRecorder persists controller run history.
type RunRecorder interface {
	StartRun(ctx context.Context, kind RunKind, target string) (*RunRecord, error)
	FinishRun(ctx context.Context, id string, status RunStatus, attempts int, runErr error) error
}

// Sleeper suspends the caller between polls. It returns early with ctx.Err()
// when the context is cancelled.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// RealSleeper sleeps on the wall clock.
type RealSleeper struct{}

// Sleep implements Sleeper.
func (RealSleeper) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Question is one value requested from the operator.
type Question struct {
	// Name is the key of the answer in the result map.
	Name string

	// Prompt is the text shown to the operator.
	Prompt string

	// Options restricts the answer to a single choice when non-empty.
	Options []string

	// Default is pre-filled and returned when the operator submits nothing.
	Default string

	// Parse converts and checks the raw answer. Invalid answers are asked again.
	Parse Validator
}

// Prompter asks the operator a list of questions and returns the parsed answers by name.
type Prompter interface {
	Ask(ctx context.Context, questions []Question) (map[string]interface{}, error)
}
