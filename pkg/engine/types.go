package engine

import (
	"time"
)

// ParameterType is the declared type of a job parameter.
type ParameterType string

const (
	ParameterTypeString   ParameterType = "string"
	ParameterTypeText     ParameterType = "text"
	ParameterTypePassword ParameterType = "password"
	ParameterTypeInt      ParameterType = "int"
	ParameterTypeFloat    ParameterType = "float"
	ParameterTypeBool     ParameterType = "bool"
	ParameterTypeEmail    ParameterType = "email"
	ParameterTypeURL      ParameterType = "url"
	ParameterTypeDomain   ParameterType = "domain"
	ParameterTypeIP       ParameterType = "ip"
	ParameterTypeCIDR     ParameterType = "cidr"
)

// Validator parses raw user input for a parameter type and checks it.
// It returns the typed value to store on the parameter.
type Validator func(raw string) (interface{}, error)

// JobParameter is a single input of an automation job.
type JobParameter struct {
	// Name is unique within a job. It is upper-cased when sent to the automation server.
	Name string `json:"name" yaml:"name"`

	// Type selects the validator attached during resolution.
	Type ParameterType `json:"type" yaml:"type"`

	// Description is shown when prompting.
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// Value is the current value (string, bool, number or nil).
	Value interface{} `json:"value" yaml:"value"`

	// Allowed restricts the value to a fixed set when non-empty.
	Allowed []string `json:"allowed,omitempty" yaml:"allowed,omitempty"`

	// Validator is attached by the resolver; it is never serialized.
	Validator Validator `json:"-" yaml:"-"`
}

// Clone returns a copy that shares no slices with p.
func (p JobParameter) Clone() JobParameter {
	c := p
	if p.Allowed != nil {
		c.Allowed = append([]string(nil), p.Allowed...)
	}
	return c
}

// PluginType is the kind of product listed in the plugin index.
type PluginType string

const (
	PluginTypePlugin  PluginType = "plugin"
	PluginTypeCluster PluginType = "cluster"
)

// JobDefinition is a named job declared by a plugin.
type JobDefinition struct {
	Name       string         `json:"name"`
	Parameters []JobParameter `json:"parameters,omitempty"`
	Private    bool           `json:"private,omitempty"`
}

// PluginManifest is one product of the plugin index.
type PluginManifest struct {
	ID         string          `json:"id"`
	Type       PluginType      `json:"type"`
	Parameters []JobParameter  `json:"parameters,omitempty"`
	Jobs       []JobDefinition `json:"jobs,omitempty"`

	// Extra holds job lists keyed by job type other than "jobs".
	Extra map[string][]JobDefinition `json:"-"`
}

// JobsOfType returns the job list for jobType ("jobs" or an extra job list).
func (m *PluginManifest) JobsOfType(jobType string) []JobDefinition {
	if jobType == "" || jobType == DefaultJobType {
		return m.Jobs
	}
	return m.Extra[jobType]
}

// DefaultJobType is the manifest key holding a plugin's regular jobs.
const DefaultJobType = "jobs"

// Stack is the subset of a described stack the controller needs.
type Stack struct {
	Name            string            `json:"name"`
	ID              string            `json:"id,omitempty"`
	Status          StackStatus       `json:"status"`
	StatusReason    string            `json:"status_reason,omitempty"`
	Outputs         []KeyValue        `json:"outputs,omitempty"`
	Parameters      []KeyValue        `json:"parameters,omitempty"`
	CreationTime    time.Time         `json:"creation_time"`
	LastUpdatedTime *time.Time        `json:"last_updated_time,omitempty"`
	Tags            map[string]string `json:"tags,omitempty"`
}

// KeyValue is a stack output or parameter.
type KeyValue struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// StackEvent is one entry of a stack's event history.
type StackEvent struct {
	// ID is unique across the stack history and is the deduplication key.
	ID                string      `json:"id"`
	LogicalResourceID string      `json:"logical_resource_id,omitempty"`
	ResourceType      string      `json:"resource_type"`
	ResourceStatus    StackStatus `json:"resource_status"`
	StatusReason      string      `json:"status_reason,omitempty"`
	Timestamp         time.Time   `json:"timestamp"`
}

// CreateStackInput describes a stack to create.
type CreateStackInput struct {
	Name         string
	TemplateBody string
	Parameters   []KeyValue
	Tags         map[string]string
}

// Instance is the subset of a compute instance the controller reports.
type Instance struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	State     string `json:"state"`
	PublicIP  string `json:"public_ip,omitempty"`
	PrivateIP string `json:"private_ip,omitempty"`
	PublicDNS string `json:"public_dns,omitempty"`
}

// BuildState is one build as reported by the automation server.
type BuildState struct {
	Number   int         `json:"number"`
	Building bool        `json:"building"`
	Result   BuildResult `json:"result,omitempty"`
}

// JobInfo is the automation server's view of a job.
type JobInfo struct {
	Name            string       `json:"name"`
	Builds          []BuildState `json:"builds"`
	NextBuildNumber int          `json:"nextBuildNumber"`
	LastBuild       *BuildState  `json:"lastBuild"`
	InQueue         bool         `json:"inQueue"`
}

// Build returns the build with the given number, if the job info lists it.
func (j *JobInfo) Build(number int) (BuildState, bool) {
	for _, b := range j.Builds {
		if b.Number == number {
			return b, true
		}
	}
	return BuildState{}, false
}

// BuildParameter is a name/value pair sent with a build request.
type BuildParameter struct {
	Name  string
	Value string
}

// RunRecord is a persisted record of a controller run.
type RunRecord struct {
	ID          string     `json:"id"`
	Kind        RunKind    `json:"kind"`
	Target      string     `json:"target"`
	Status      RunStatus  `json:"status"`
	Attempts    int        `json:"attempts"`
	Error       *string    `json:"error,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}
