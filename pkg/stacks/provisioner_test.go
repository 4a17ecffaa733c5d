package stacks

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/madcore/madcore/pkg/engine"
	"github.com/madcore/madcore/pkg/telemetry"
)

func writeTemplates(t *testing.T, names ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, n := range names {
		if err := os.WriteFile(filepath.Join(dir, n), []byte(`{"Resources":{}}`), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func newTestProvisioner(api *fakeStackAPI, instances engine.InstanceAPI, dir string) *Provisioner {
	tracker := NewTracker(api,
		WithPrinter(telemetry.NewPrinter(&bytes.Buffer{})),
		WithSleeper(&fakeSleeper{}),
	)
	return NewProvisioner(api, instances, tracker, dir, time.Second, nil)
}

func TestCreateStacksSkipsExisting(t *testing.T) {
	api := newFakeStackAPI()
	api.stacks[StackS3] = &engine.Stack{Name: StackS3, Status: engine.StackStatusCreateComplete}
	api.events[StackNetwork] = [][]engine.StackEvent{
		{},
		{event("N1", 1, stackType, engine.StackStatusCreateComplete)},
	}
	api.events[StackCore] = [][]engine.StackEvent{
		{},
		{event("C1", 1, stackType, engine.StackStatusCreateComplete)},
	}

	dir := writeTemplates(t, "network.json", "s3.json", "core.json")
	p := newTestProvisioner(api, nil, dir)
	ctx := telemetry.NewNop().WithContext(context.Background())

	if err := p.CreateStacks(ctx, DefaultStackSpecs("madcore-key")); err != nil {
		t.Fatalf("CreateStacks: %v", err)
	}

	if len(api.created) != 2 {
		t.Fatalf("created %d stacks, want 2", len(api.created))
	}
	if api.created[0].Name != StackNetwork || api.created[1].Name != StackCore {
		t.Errorf("creation order = %s, %s", api.created[0].Name, api.created[1].Name)
	}
	core := api.created[1]
	if len(core.Parameters) != 1 || core.Parameters[0] != (engine.KeyValue{Key: "KeyName", Value: "madcore-key"}) {
		t.Errorf("core parameters = %+v", core.Parameters)
	}
	if core.TemplateBody == "" {
		t.Error("template body not read")
	}
}

func TestCreateStacksFailsOnRollback(t *testing.T) {
	api := newFakeStackAPI()
	api.events[StackNetwork] = [][]engine.StackEvent{
		{},
		{event("N1", 1, stackType, engine.StackStatusRollbackComplete)},
	}

	p := newTestProvisioner(api, nil, writeTemplates(t, "network.json"))
	err := p.CreateStacks(context.Background(), []StackSpec{{Name: StackNetwork, Template: "network.json"}})
	if err == nil {
		t.Fatal("expected error for rolled back stack")
	}
}

func TestCreateStacksMissingTemplate(t *testing.T) {
	api := newFakeStackAPI()
	p := newTestProvisioner(api, nil, t.TempDir())

	err := p.CreateStacks(context.Background(), []StackSpec{{Name: StackNetwork, Template: "network.json"}})
	if !engine.IsPermanent(err) {
		t.Errorf("error = %v, want permanent", err)
	}
	if len(api.created) != 0 {
		t.Error("stack created without template")
	}
}

func TestCreateStacksDescribeError(t *testing.T) {
	api := newFakeStackAPI()
	api.describeErr = engine.NewThrottledError("rate exceeded", nil)

	p := newTestProvisioner(api, nil, t.TempDir())
	err := p.CreateStacks(context.Background(), []StackSpec{{Name: StackNetwork, Template: "network.json"}})
	if !engine.IsThrottled(err) {
		t.Errorf("error = %v, want throttled", err)
	}
}

func TestExistingCoreChecksInstance(t *testing.T) {
	api := newFakeStackAPI()
	api.stacks[StackCore] = &engine.Stack{
		Name:    StackCore,
		Status:  engine.StackStatusCreateComplete,
		Outputs: []engine.KeyValue{{Key: "MadCoreInstanceId", Value: "i-123"}},
	}
	instances := &fakeInstanceAPI{instances: map[string]*engine.Instance{
		"i-123": {ID: "i-123", State: InstanceStateShuttingDown},
	}}

	p := newTestProvisioner(api, instances, t.TempDir())
	if err := p.CreateStacks(context.Background(), []StackSpec{{Name: StackCore, Template: "core.json"}}); err != nil {
		t.Fatalf("CreateStacks: %v", err)
	}
	if len(instances.waited) != 1 {
		t.Errorf("waited for %v, want i-123", instances.waited)
	}
}

func TestExistingCoreUsesTerminateWait(t *testing.T) {
	api := newFakeStackAPI()
	api.stacks[StackCore] = &engine.Stack{
		Name:    StackCore,
		Status:  engine.StackStatusCreateComplete,
		Outputs: []engine.KeyValue{{Key: "MadCoreInstanceId", Value: "i-123"}},
	}
	instances := &fakeInstanceAPI{instances: map[string]*engine.Instance{
		"i-123": {ID: "i-123", State: InstanceStateShuttingDown},
	}}
	tracker := NewTracker(api, WithPrinter(telemetry.NewPrinter(&bytes.Buffer{})), WithSleeper(&fakeSleeper{}))

	tests := []struct {
		name string
		opts []ProvisionerOption
		want time.Duration
	}{
		{"default", nil, DefaultTerminateWait},
		{"configured", []ProvisionerOption{WithTerminateWait(90 * time.Second)}, 90 * time.Second},
		{"zero keeps default", []ProvisionerOption{WithTerminateWait(0)}, DefaultTerminateWait},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			instances.waits = nil
			p := NewProvisioner(api, instances, tracker, t.TempDir(), time.Second, nil, tt.opts...)
			if err := p.CreateStacks(context.Background(), []StackSpec{{Name: StackCore, Template: "core.json"}}); err != nil {
				t.Fatalf("CreateStacks: %v", err)
			}
			if len(instances.waits) != 1 || instances.waits[0] != tt.want {
				t.Errorf("waits = %v, want [%s]", instances.waits, tt.want)
			}
		})
	}
}

func TestIsInstanceTerminated(t *testing.T) {
	instances := &fakeInstanceAPI{instances: map[string]*engine.Instance{
		"i-run":  {ID: "i-run", State: "running"},
		"i-term": {ID: "i-term", State: InstanceStateTerminated},
	}}
	ctx := context.Background()

	tests := []struct {
		id   string
		want bool
	}{
		{"i-run", false},
		{"i-term", true},
		{"i-missing", true},
	}
	for _, tt := range tests {
		got, err := IsInstanceTerminated(ctx, instances, tt.id, 0)
		if err != nil {
			t.Fatalf("IsInstanceTerminated(%s): %v", tt.id, err)
		}
		if got != tt.want {
			t.Errorf("IsInstanceTerminated(%s) = %v, want %v", tt.id, got, tt.want)
		}
	}
}

func TestCoreInstance(t *testing.T) {
	api := newFakeStackAPI()
	instances := &fakeInstanceAPI{instances: map[string]*engine.Instance{
		"i-1": {ID: "i-1", State: "running", PublicIP: "1.2.3.4"},
	}}
	ctx := context.Background()

	inst, err := CoreInstance(ctx, api, instances)
	if err != nil || inst != nil {
		t.Fatalf("missing core stack: %v, %v", inst, err)
	}

	api.stacks[StackCore] = &engine.Stack{Name: StackCore, Status: engine.StackStatusCreateInProgress}
	if inst, _ := CoreInstance(ctx, api, instances); inst != nil {
		t.Error("instance returned for incomplete stack")
	}

	api.stacks[StackCore] = &engine.Stack{
		Name:    StackCore,
		Status:  engine.StackStatusCreateComplete,
		Outputs: []engine.KeyValue{{Key: "MadCoreInstanceId", Value: "i-1"}},
	}
	inst, err = CoreInstance(ctx, api, instances)
	if err != nil || inst == nil || inst.PublicIP != "1.2.3.4" {
		t.Errorf("CoreInstance() = %+v, %v", inst, err)
	}
}

func TestCoreParams(t *testing.T) {
	api := newFakeStackAPI()
	api.stacks[StackCore] = &engine.Stack{Name: StackCore, Outputs: []engine.KeyValue{
		{Key: "MadCorePublicIp", Value: "1.2.3.4"},
		{Key: "MadCoreInstanceId", Value: "i-1"},
	}}
	api.stacks[StackNetwork] = &engine.Stack{Name: StackNetwork, Outputs: []engine.KeyValue{
		{Key: "VpcId", Value: "vpc-9"},
	}}

	core := NewCoreParams(api, "key", nil)
	ctx := context.Background()
	got := core.CoreParams(ctx)

	want := map[string]string{
		"MADCORE_KEY_NAME":    "key",
		"MADCORE_PUBLIC_IP":   "1.2.3.4",
		"MADCORE_INSTANCE_ID": "i-1",
		"MADCORE_VPC_ID":      "vpc-9",
	}
	if len(got) != len(want) {
		t.Errorf("CoreParams() = %v, want %v", got, want)
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s = %q, want %q", k, got[k], v)
		}
	}

	// Cached: a later stack change is not observed.
	api.stacks[StackS3] = &engine.Stack{Name: StackS3, Outputs: []engine.KeyValue{{Key: "S3BucketName", Value: "b"}}}
	if _, ok := core.CoreParams(ctx)["MADCORE_S3_BUCKET"]; ok {
		t.Error("core params were reloaded")
	}
}

func TestCoreParamsKeyNameFromStack(t *testing.T) {
	api := newFakeStackAPI()
	api.stacks[StackCore] = &engine.Stack{
		Name:       StackCore,
		Parameters: []engine.KeyValue{{Key: "KeyName", Value: "deploy-key"}},
	}
	ctx := context.Background()

	if got := NewCoreParams(api, "", nil).CoreParams(ctx)["MADCORE_KEY_NAME"]; got != "deploy-key" {
		t.Errorf("MADCORE_KEY_NAME = %q, want the core stack parameter", got)
	}
	if got := NewCoreParams(api, "configured", nil).CoreParams(ctx)["MADCORE_KEY_NAME"]; got != "configured" {
		t.Errorf("MADCORE_KEY_NAME = %q, want the configured key", got)
	}
	if _, ok := NewCoreParams(newFakeStackAPI(), "", nil).CoreParams(ctx)["MADCORE_KEY_NAME"]; ok {
		t.Error("MADCORE_KEY_NAME set without a key or core stack")
	}
}

func TestOutputLookups(t *testing.T) {
	stack := &engine.Stack{
		Name:       StackCore,
		Outputs:    []engine.KeyValue{{Key: "MadCorePublicIp", Value: "1.2.3.4"}},
		Parameters: []engine.KeyValue{{Key: "KeyName", Value: "k"}},
	}

	if v, err := Output(stack, "MadCorePublicIp"); err != nil || v != "1.2.3.4" {
		t.Errorf("Output() = %q, %v", v, err)
	}
	if _, err := Output(stack, "Nope"); !errors.Is(err, engine.ErrOutputNotFound) || !engine.IsNotFound(err) {
		t.Errorf("Output(Nope) error = %v", err)
	}
	if _, err := Parameter(nil, "KeyName"); !errors.Is(err, engine.ErrParameterNotFound) {
		t.Errorf("Parameter(nil) error = %v", err)
	}
	if v, _ := Parameter(stack, "KeyName"); v != "k" {
		t.Errorf("Parameter() = %q", v)
	}
	if m := OutputsToMap(stack); m["MadCorePublicIp"] != "1.2.3.4" {
		t.Errorf("OutputsToMap() = %v", m)
	}
	if m := ParametersToMap(nil); len(m) != 0 {
		t.Errorf("ParametersToMap(nil) = %v", m)
	}
}
