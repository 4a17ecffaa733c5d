package stacks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/madcore/madcore/pkg/engine"
)

// fakeStackAPI replays one scripted event list per fetch. Once the script
// is exhausted the last list repeats.
type fakeStackAPI struct {
	stacks  map[string]*engine.Stack
	events  map[string][][]engine.StackEvent
	errs    map[string]map[int]error
	calls   map[string]int
	created []engine.CreateStackInput

	describeErr error
}

func newFakeStackAPI() *fakeStackAPI {
	return &fakeStackAPI{
		stacks: make(map[string]*engine.Stack),
		events: make(map[string][][]engine.StackEvent),
		errs:   make(map[string]map[int]error),
		calls:  make(map[string]int),
	}
}

func (f *fakeStackAPI) DescribeStack(_ context.Context, name string) (*engine.Stack, error) {
	if f.describeErr != nil {
		return nil, f.describeErr
	}
	s, ok := f.stacks[name]
	if !ok {
		return nil, fmt.Errorf("stack %s: %w", name, engine.ErrStackNotFound)
	}
	return s, nil
}

func (f *fakeStackAPI) DescribeStackEvents(_ context.Context, name string) ([]engine.StackEvent, error) {
	i := f.calls[name]
	f.calls[name]++
	if err, ok := f.errs[name][i]; ok {
		return nil, err
	}
	script := f.events[name]
	if len(script) == 0 {
		return nil, errors.New("no events scripted")
	}
	if i >= len(script) {
		i = len(script) - 1
	}
	return script[i], nil
}

func (f *fakeStackAPI) CreateStack(_ context.Context, input engine.CreateStackInput) (string, error) {
	f.created = append(f.created, input)
	return "arn:aws:cloudformation:stack/" + input.Name, nil
}

func (f *fakeStackAPI) ListStacks(context.Context) ([]engine.Stack, error) {
	var out []engine.Stack
	for _, s := range f.stacks {
		out = append(out, *s)
	}
	return out, nil
}

// fakeSleeper returns immediately and records requested durations.
type fakeSleeper struct {
	slept []time.Duration
	err   error
}

func (s *fakeSleeper) Sleep(_ context.Context, d time.Duration) error {
	if s.err != nil {
		return s.err
	}
	s.slept = append(s.slept, d)
	return nil
}

type fakeInstanceAPI struct {
	instances map[string]*engine.Instance
	waited    []string
	waits     []time.Duration
}

func (f *fakeInstanceAPI) DescribeInstance(_ context.Context, id string) (*engine.Instance, error) {
	return f.instances[id], nil
}

func (f *fakeInstanceAPI) WaitInstanceTerminated(_ context.Context, id string, maxWait time.Duration) error {
	f.waited = append(f.waited, id)
	f.waits = append(f.waits, maxWait)
	return nil
}

var t0 = time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

func event(id string, sec int, resourceType string, status engine.StackStatus) engine.StackEvent {
	return engine.StackEvent{
		ID:             id,
		ResourceType:   resourceType,
		ResourceStatus: status,
		Timestamp:      t0.Add(time.Duration(sec) * time.Second),
	}
}
