package engine

import (
	"fmt"
	"strings"
)

// StackOperation is the lifecycle operation being observed on a stack.
type StackOperation string

const (
	// StackOperationCreate tracks a stack creation.
	StackOperationCreate StackOperation = "create"

	// StackOperationUpdate tracks a stack update.
	StackOperationUpdate StackOperation = "update"

	// StackOperationDelete tracks a stack deletion.
	StackOperationDelete StackOperation = "delete"
)

// Validate checks if the stack operation is valid.
func (o StackOperation) Validate() error {
	switch o {
	case StackOperationCreate, StackOperationUpdate, StackOperationDelete:
		return nil
	default:
		return fmt.Errorf("invalid stack operation: %s", o)
	}
}

// TerminalStatuses returns the statuses that end tracking for this operation.
func (o StackOperation) TerminalStatuses() []StackStatus {
	op := strings.ToUpper(string(o))
	return []StackStatus{
		StackStatus(op + "_COMPLETE"),
		StackStatus(op + "_ROLLBACK_COMPLETE"),
		StackStatusRollbackComplete,
	}
}

// IsTerminal reports whether status ends tracking for this operation.
func (o StackOperation) IsTerminal(status StackStatus) bool {
	for _, s := range o.TerminalStatuses() {
		if s == status {
			return true
		}
	}
	return false
}

// StackStatus is a cloud-orchestration resource or stack status, e.g. CREATE_COMPLETE.
type StackStatus string

const (
	StackStatusCreateInProgress StackStatus = "CREATE_IN_PROGRESS"
	StackStatusCreateComplete   StackStatus = "CREATE_COMPLETE"
	StackStatusUpdateComplete   StackStatus = "UPDATE_COMPLETE"
	StackStatusDeleteComplete   StackStatus = "DELETE_COMPLETE"
	StackStatusRollbackComplete StackStatus = "ROLLBACK_COMPLETE"
)

// IsComplete reports whether the status is a successful *_COMPLETE state that is not a rollback.
func (s StackStatus) IsComplete() bool {
	return strings.HasSuffix(string(s), "_COMPLETE") && !strings.Contains(string(s), "ROLLBACK")
}

// IsFailed reports whether the status reports a failure or rollback.
func (s StackStatus) IsFailed() bool {
	return strings.HasSuffix(string(s), "_FAILED") || strings.Contains(string(s), "ROLLBACK")
}

// ResourceTypeStack is the resource type of the top-level stack in its own event stream.
const ResourceTypeStack = "AWS::CloudFormation::Stack"

// BuildResult is the result reported by the automation server for a finished build.
type BuildResult string

const (
	BuildResultSuccess  BuildResult = "SUCCESS"
	BuildResultFailure  BuildResult = "FAILURE"
	BuildResultUnstable BuildResult = "UNSTABLE"
	BuildResultAborted  BuildResult = "ABORTED"
	BuildResultNotBuilt BuildResult = "NOT_BUILT"
)

// IsSuccess returns true for SUCCESS.
func (r BuildResult) IsSuccess() bool {
	return r == BuildResultSuccess
}

// RunStatus is the status of a recorded controller run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
)

// IsTerminal returns true if the run status represents a final state.
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusSucceeded || s == RunStatusFailed
}

// RunKind distinguishes recorded runs.
type RunKind string

const (
	// RunKindConfigure is a full provisioning run.
	RunKindConfigure RunKind = "configure"

	// RunKindJob is a single automation job run.
	RunKindJob RunKind = "job"
)
