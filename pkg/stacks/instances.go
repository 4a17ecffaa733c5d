package stacks

import (
	"context"
	"errors"
	"time"

	"github.com/madcore/madcore/pkg/engine"
)

// DefaultTerminateWait bounds the wait for an instance that is shutting down.
const DefaultTerminateWait = 10 * time.Minute

// Instance states that mean the instance is gone or going.
const (
	InstanceStateTerminated   = "terminated"
	InstanceStateShuttingDown = "shutting-down"
)

// CoreInstance returns the core stack's instance, or nil when the core stack
// is missing or not CREATE_COMPLETE.
func CoreInstance(ctx context.Context, stacks engine.StackAPI, instances engine.InstanceAPI) (*engine.Instance, error) {
	stack, err := stacks.DescribeStack(ctx, StackCore)
	if err != nil {
		if errors.Is(err, engine.ErrStackNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if stack.Status != engine.StackStatusCreateComplete {
		return nil, nil
	}

	id, err := Output(stack, "MadCoreInstanceId")
	if err != nil {
		return nil, err
	}
	return instances.DescribeInstance(ctx, id)
}

// IsInstanceTerminated reports whether an instance no longer runs. A missing
// instance counts as terminated. An instance shutting down is waited for.
func IsInstanceTerminated(ctx context.Context, instances engine.InstanceAPI, id string, maxWait time.Duration) (bool, error) {
	inst, err := instances.DescribeInstance(ctx, id)
	if err != nil {
		return false, err
	}
	if inst == nil {
		return true, nil
	}

	switch inst.State {
	case InstanceStateTerminated:
		return true, nil
	case InstanceStateShuttingDown:
		if maxWait <= 0 {
			maxWait = DefaultTerminateWait
		}
		if err := instances.WaitInstanceTerminated(ctx, id, maxWait); err != nil {
			return false, err
		}
		return true, nil
	default:
		return false, nil
	}
}
