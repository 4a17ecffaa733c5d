package stacks

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/madcore/madcore/pkg/engine"
	"github.com/madcore/madcore/pkg/telemetry"
)

// StackSpec describes one stack of the deployment.
type StackSpec struct {
	Name       string            `yaml:"name" validate:"required"`
	Template   string            `yaml:"template" validate:"required"`
	Parameters map[string]string `yaml:"parameters,omitempty"`
	Tags       map[string]string `yaml:"tags,omitempty"`
}

// DefaultStackSpecs returns the stacks of a standard deployment, in creation order.
func DefaultStackSpecs(keyName string) []StackSpec {
	return []StackSpec{
		{Name: StackNetwork, Template: "network.json"},
		{Name: StackS3, Template: "s3.json"},
		{Name: StackCore, Template: "core.json", Parameters: map[string]string{"KeyName": keyName}},
	}
}

// Provisioner creates the deployment stacks and follows their creation.
type Provisioner struct {
	api         engine.StackProvisioner
	instances   engine.InstanceAPI
	tracker     *Tracker
	templateDir string
	interval    time.Duration
	// terminateWait bounds the wait for a shutting-down core instance.
	terminateWait time.Duration
	logger        *telemetry.Logger
}

// ProvisionerOption configures a Provisioner.
type ProvisionerOption func(*Provisioner)

// WithTerminateWait sets how long the core instance check waits for a
// shutting-down instance to terminate.
func WithTerminateWait(d time.Duration) ProvisionerOption {
	return func(p *Provisioner) {
		if d > 0 {
			p.terminateWait = d
		}
	}
}

// NewProvisioner creates a provisioner reading templates from templateDir.
// instances may be nil, which skips the core instance check.
func NewProvisioner(api engine.StackProvisioner, instances engine.InstanceAPI, tracker *Tracker, templateDir string, interval time.Duration, logger *telemetry.Logger, opts ...ProvisionerOption) *Provisioner {
	if logger == nil {
		logger = telemetry.NewNopLogger()
	}
	p := &Provisioner{
		api:           api,
		instances:     instances,
		tracker:       tracker,
		templateDir:   templateDir,
		interval:      interval,
		terminateWait: DefaultTerminateWait,
		logger:        logger.NewComponentLogger("provisioner"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// CreateStacks creates every stack that does not exist yet, in order, and
// waits for each creation to finish. Existing stacks are left alone.
func (p *Provisioner) CreateStacks(ctx context.Context, specs []StackSpec) error {
	for _, spec := range specs {
		op := telemetry.StartOperation(ctx, "stack.create",
			telemetry.AttrStackName.String(spec.Name),
			telemetry.AttrOperation.String(string(engine.StackOperationCreate)),
		)
		err := p.createStack(op.Ctx, spec)
		op.End(err)
		if err != nil {
			return err
		}
	}
	return nil
}

func (p *Provisioner) createStack(ctx context.Context, spec StackSpec) error {
	logger := p.logger.WithStack(spec.Name)

	existing, err := p.api.DescribeStack(ctx, spec.Name)
	switch {
	case err == nil:
		logger.Infof("stack already exists (%s), skipping", existing.Status)
		if spec.Name == StackCore {
			p.checkCoreInstance(ctx, existing)
		}
		return nil
	case !errors.Is(err, engine.ErrStackNotFound):
		return fmt.Errorf("failed to describe stack %s: %w", spec.Name, err)
	}

	body, err := os.ReadFile(filepath.Join(p.templateDir, spec.Template))
	if err != nil {
		return engine.NewPermanentError("failed to read stack template", err).
			WithCode(engine.ErrCodeValidation).WithTarget(spec.Name)
	}

	input := engine.CreateStackInput{
		Name:         spec.Name,
		TemplateBody: string(body),
		Parameters:   sortedKeyValues(spec.Parameters),
		Tags:         spec.Tags,
	}

	logger.Info("creating stack")
	if _, err := p.api.CreateStack(ctx, input); err != nil {
		return fmt.Errorf("failed to create stack %s: %w", spec.Name, err)
	}

	result, err := p.tracker.Track(ctx, spec.Name, engine.StackOperationCreate, p.interval)
	if err != nil {
		return err
	}
	if result.Stopped || !result.FinalStatus.IsComplete() {
		return engine.NewPermanentError(
			fmt.Sprintf("stack creation ended with status %q", result.FinalStatus), nil).
			WithService("cloudformation").WithTarget(spec.Name)
	}

	logger.Info("stack created")
	return nil
}

func (p *Provisioner) checkCoreInstance(ctx context.Context, stack *engine.Stack) {
	if p.instances == nil {
		return
	}
	id, err := Output(stack, "MadCoreInstanceId")
	if err != nil {
		return
	}
	terminated, err := IsInstanceTerminated(ctx, p.instances, id, p.terminateWait)
	if err != nil {
		p.logger.WithError(err).Warn("failed to check core instance")
		return
	}
	if terminated {
		p.logger.Warnf("core instance %s is terminated; delete the %s stack to recreate it", id, StackCore)
	}
}

func sortedKeyValues(m map[string]string) []engine.KeyValue {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]engine.KeyValue, 0, len(keys))
	for _, k := range keys {
		out = append(out, engine.KeyValue{Key: k, Value: m[k]})
	}
	return out
}
