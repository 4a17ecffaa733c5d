package policy

import (
	"time"
)

// Severity represents the severity level of a policy violation.
type Severity string

const (
	// SeverityInfo is for informational messages.
	SeverityInfo Severity = "info"

	// SeverityWarning is for findings that are reported but do not block a run.
	SeverityWarning Severity = "warning"

	// SeverityError blocks the job run.
	SeverityError Severity = "error"
)

// Blocking reports whether a violation of this severity denies the run.
func (s Severity) Blocking() bool {
	return s == SeverityError
}

// Policy is a Rego module whose deny set is evaluated before a job runs.
type Policy struct {
	// Name is the unique name of the policy.
	Name string `json:"name"`

	// Description provides a human-readable description.
	Description string `json:"description"`

	// Rego contains the policy source. It must define a "deny" set.
	Rego string `json:"rego"`

	// Severity is the default severity for violations.
	Severity Severity `json:"severity"`

	// Enabled indicates if the policy is active.
	Enabled bool `json:"enabled"`
}

// Violation is one entry of a policy's deny set.
type Violation struct {
	Policy   string   `json:"policy"`
	Job      string   `json:"job"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
}

// Result is the outcome of evaluating every enabled policy against one job run.
type Result struct {
	Allowed           bool          `json:"allowed"`
	Violations        []Violation   `json:"violations,omitempty"`
	Warnings          []Violation   `json:"warnings,omitempty"`
	EvaluatedPolicies []string      `json:"evaluated_policies"`
	Duration          time.Duration `json:"duration"`
}

// Reasons returns the messages of the blocking violations.
func (r *Result) Reasons() []string {
	reasons := make([]string, 0, len(r.Violations))
	for _, v := range r.Violations {
		reasons = append(reasons, v.Message)
	}
	return reasons
}

// JobInput is the policy input for a job run.
type JobInput struct {
	Plugin     string            `json:"plugin"`
	Job        string            `json:"job"`
	JobType    string            `json:"job_type"`
	JobName    string            `json:"job_name"`
	Private    bool              `json:"private"`
	Parameters map[string]string `json:"parameters"`
	Config     InputConfig       `json:"config"`
}

// InputConfig carries operator settings the built-in policies read.
type InputConfig struct {
	// DeniedJobs are glob patterns matched against the automation server job name.
	DeniedJobs []string `json:"denied_jobs" yaml:"denied_jobs"`

	// AllowPrivate permits running jobs a plugin marks private.
	AllowPrivate bool `json:"allow_private" yaml:"allow_private"`
}
