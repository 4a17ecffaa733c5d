package stacks

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/madcore/madcore/pkg/engine"
	"github.com/madcore/madcore/pkg/telemetry"
)

// DefaultPollInterval is the delay between two event fetches.
const DefaultPollInterval = 3 * time.Second

// TrackResult summarizes one tracking session.
type TrackResult struct {
	// FinalStatus is the terminal status of the stack, or empty when tracking stopped early.
	FinalStatus engine.StackStatus

	// Stopped is true when an event fetch failed, which happens once a deleted stack is gone.
	Stopped bool

	// Events are the events printed during the session, in print order.
	Events []engine.StackEvent

	// Polls is the number of fetches after the baseline.
	Polls int
}

// Tracker follows a stack's event stream until an operation completes.
type Tracker struct {
	api     engine.StackAPI
	printer *telemetry.Printer
	sleeper engine.Sleeper
	logger  *telemetry.Logger
	metrics *telemetry.Metrics
	maxWait time.Duration
}

// TrackerOption configures a Tracker.
type TrackerOption func(*Tracker)

// WithPrinter sets where events are printed.
func WithPrinter(p *telemetry.Printer) TrackerOption {
	return func(t *Tracker) { t.printer = p }
}

// WithSleeper replaces the wall-clock sleeper.
func WithSleeper(s engine.Sleeper) TrackerOption {
	return func(t *Tracker) { t.sleeper = s }
}

// WithTrackerLogger sets the tracker logger.
func WithTrackerLogger(l *telemetry.Logger) TrackerOption {
	return func(t *Tracker) { t.logger = l }
}

// WithMetrics records polls and events.
func WithMetrics(m *telemetry.Metrics) TrackerOption {
	return func(t *Tracker) { t.metrics = m }
}

// WithMaxWait bounds the total time spent sleeping between polls. Zero waits forever.
func WithMaxWait(d time.Duration) TrackerOption {
	return func(t *Tracker) { t.maxWait = d }
}

// NewTracker creates a tracker over the stack API.
func NewTracker(api engine.StackAPI, opts ...TrackerOption) *Tracker {
	t := &Tracker{
		api:     api,
		sleeper: engine.RealSleeper{},
		logger:  telemetry.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.printer == nil {
		t.printer = telemetry.NewPrinter(nil)
	}
	t.logger = t.logger.NewComponentLogger("stacks")
	return t
}

// Track prints the new events of stack in chronological order until the
// stack itself reaches a terminal status for op.
//
// The newest event visible when tracking starts is the baseline. Events
// already present are never printed, and the baseline never ends the session.
// A failed fetch after the baseline ends tracking without error.
func (t *Tracker) Track(ctx context.Context, stack string, op engine.StackOperation, interval time.Duration) (*TrackResult, error) {
	if err := op.Validate(); err != nil {
		return nil, engine.NewPermanentError("cannot track stack", err).
			WithCode(engine.ErrCodeValidation).WithTarget(stack)
	}
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	logger := t.logger.WithStack(stack).WithField("operation", string(op))

	events, err := t.api.DescribeStackEvents(ctx, stack)
	if err != nil {
		logger.WithError(err).Error("failed to read stack events")
		return nil, err
	}

	baseline := ""
	if newest, ok := newestEvent(events); ok {
		baseline = newest.ID
	}

	seen := make(map[string]struct{}, len(events))
	for _, e := range events {
		seen[e.ID] = struct{}{}
	}

	result := &TrackResult{}
	t.printer.Printf("%-45s %-23s %s", "Resource", "Status", "Details")

	var waited time.Duration
	for {
		if status, done := finished(events, baseline, op); done {
			result.FinalStatus = status
			logger.Debugf("stack reached %s", status)
			return result, nil
		}

		if t.maxWait > 0 && waited >= t.maxWait {
			return result, engine.NewPermanentError(
				fmt.Sprintf("stack did not finish %s within %s", op, t.maxWait), nil).
				WithCode(engine.ErrCodeTimeout).WithService("cloudformation").WithTarget(stack)
		}

		if err := t.sleeper.Sleep(ctx, interval); err != nil {
			return result, err
		}
		waited += interval

		events, err = t.api.DescribeStackEvents(ctx, stack)
		if err != nil {
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			logger.WithError(err).Debug("stack events unavailable, stopping")
			result.Stopped = true
			return result, nil
		}
		result.Polls++
		t.metrics.RecordStackPoll(string(op))

		for _, e := range sortedAscending(events) {
			if _, ok := seen[e.ID]; ok {
				continue
			}
			seen[e.ID] = struct{}{}
			t.printer.Printf("%-40s %-30s %s", e.ResourceType, e.ResourceStatus, e.StatusReason)
			t.metrics.RecordStackEvent(string(op), string(e.ResourceStatus))
			result.Events = append(result.Events, e)
		}
	}
}

// finished reports whether the newest event ends the session.
func finished(events []engine.StackEvent, baseline string, op engine.StackOperation) (engine.StackStatus, bool) {
	newest, ok := newestEvent(events)
	if !ok || newest.ID == baseline {
		return "", false
	}
	if newest.ResourceType != engine.ResourceTypeStack || !op.IsTerminal(newest.ResourceStatus) {
		return "", false
	}
	return newest.ResourceStatus, true
}

// newestEvent returns the event with the latest timestamp. Among equal
// timestamps the first in API order wins, as the API lists newest first.
func newestEvent(events []engine.StackEvent) (engine.StackEvent, bool) {
	if len(events) == 0 {
		return engine.StackEvent{}, false
	}
	newest := events[0]
	for _, e := range events[1:] {
		if e.Timestamp.After(newest.Timestamp) {
			newest = e
		}
	}
	return newest, true
}

func sortedAscending(events []engine.StackEvent) []engine.StackEvent {
	out := append([]engine.StackEvent(nil), events...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}
