package jenkins

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/madcore/madcore/pkg/engine"
	"github.com/madcore/madcore/pkg/telemetry"
)

// fakeServer answers each call from a function of the call index, counted
// across every client the factory hands out.
type fakeServer struct {
	infoFn    func(call int) (*engine.JobInfo, error)
	consoleFn func(call int) (string, error)

	infoCalls    int
	consoleCalls int
	built        [][]engine.BuildParameter
}

func (f *fakeServer) GetJobInfo(context.Context, string, int) (*engine.JobInfo, error) {
	i := f.infoCalls
	f.infoCalls++
	return f.infoFn(i)
}

func (f *fakeServer) BuildJob(_ context.Context, _ string, params []engine.BuildParameter) error {
	f.built = append(f.built, params)
	return nil
}

func (f *fakeServer) GetBuildConsoleOutput(context.Context, string, int) (string, error) {
	i := f.consoleCalls
	f.consoleCalls++
	return f.consoleFn(i)
}

type noSleep struct{ count int }

func (s *noSleep) Sleep(context.Context, time.Duration) error {
	s.count++
	return nil
}

func jobInfo(next int, builds ...engine.BuildState) *engine.JobInfo {
	info := &engine.JobInfo{Name: "job", NextBuildNumber: next, Builds: builds}
	if len(builds) > 0 {
		last := builds[0]
		info.LastBuild = &last
	}
	return info
}

func running(n int) engine.BuildState { return engine.BuildState{Number: n, Building: true} }

func finished(n int, r engine.BuildResult) engine.BuildState {
	return engine.BuildState{Number: n, Result: r}
}

func newTestRunner(factory ClientFactory, cfg RunnerConfig) (*Runner, *bytes.Buffer, *noSleep) {
	var buf bytes.Buffer
	sleeper := &noSleep{}
	r := NewRunner(factory, cfg,
		WithRunnerSleeper(sleeper),
		WithRunnerPrinter(telemetry.NewPrinter(&buf)),
	)
	return r, &buf, sleeper
}

func serverFactory(s *fakeServer) ClientFactory {
	return func() (engine.AutomationServer, error) { return s, nil }
}

func TestRunSubmitsAndStreams(t *testing.T) {
	srv := &fakeServer{
		infoFn: func(call int) (*engine.JobInfo, error) {
			switch {
			case call == 0:
				return jobInfo(5, finished(4, engine.BuildResultSuccess)), nil
			case call < 3:
				return jobInfo(6, running(5), finished(4, engine.BuildResultSuccess)), nil
			default:
				return jobInfo(6, finished(5, engine.BuildResultSuccess)), nil
			}
		},
		consoleFn: func(call int) (string, error) {
			if call == 0 {
				return "Started\nStep 1\n", nil
			}
			return "Started\nStep 1\nFinished: SUCCESS\n", nil
		},
	}

	runner, buf, _ := newTestRunner(serverFactory(srv), RunnerConfig{})
	params := []engine.BuildParameter{{Name: "REGION", Value: "us-east-1"}}
	result := runner.Execute(context.Background(), "madcore.plugin.spark.deploy", params, 3)

	if !result.Success || result.Attempts != 1 || result.Err != nil {
		t.Fatalf("result = %+v", result)
	}
	if result.BuildNumber != 5 || result.Attached {
		t.Errorf("build = %d attached = %v, want new build 5", result.BuildNumber, result.Attached)
	}
	if len(srv.built) != 1 || srv.built[0][0].Name != "REGION" {
		t.Errorf("built = %+v", srv.built)
	}

	out := buf.String()
	for _, line := range []string{"Started", "Step 1", "Finished: SUCCESS"} {
		if n := strings.Count(out, line); n != 1 {
			t.Errorf("line %q printed %d times:\n%s", line, n, out)
		}
	}
	if !strings.Contains(out, "us-east-1") {
		t.Errorf("parameter table not printed:\n%s", out)
	}
}

func TestRunAttachesToRunningBuild(t *testing.T) {
	srv := &fakeServer{
		infoFn: func(call int) (*engine.JobInfo, error) {
			if call < 2 {
				return jobInfo(8, running(7)), nil
			}
			return jobInfo(8, finished(7, engine.BuildResultSuccess)), nil
		},
		consoleFn: func(int) (string, error) { return "deploying\n", nil },
	}

	runner, _, _ := newTestRunner(serverFactory(srv), RunnerConfig{})
	result := runner.Execute(context.Background(), "deploy", nil, 3)

	if !result.Success || !result.Attached || result.BuildNumber != 7 {
		t.Errorf("result = %+v, want attached success on build 7", result)
	}
	if len(srv.built) != 0 {
		t.Errorf("duplicate build submitted: %+v", srv.built)
	}
}

func TestRunFailedBuildIsNotRetried(t *testing.T) {
	srv := &fakeServer{
		infoFn: func(call int) (*engine.JobInfo, error) {
			if call == 0 {
				return jobInfo(1), nil
			}
			return jobInfo(2, finished(1, engine.BuildResultFailure)), nil
		},
		consoleFn: func(int) (string, error) { return "boom\n", nil },
	}

	runner, _, _ := newTestRunner(serverFactory(srv), RunnerConfig{})
	result := runner.Execute(context.Background(), "deploy", nil, 3)

	if result.Success || result.Attempts != 1 || result.Err != nil {
		t.Errorf("result = %+v, want one failed attempt without fault", result)
	}
}

func TestRunGivesUpAfterMaxRetries(t *testing.T) {
	srv := &fakeServer{
		infoFn: func(int) (*engine.JobInfo, error) {
			return nil, engine.NewTransientError("connection reset", nil)
		},
	}
	factoryCalls := 0
	factory := func() (engine.AutomationServer, error) {
		factoryCalls++
		return srv, nil
	}

	runner, _, _ := newTestRunner(factory, RunnerConfig{})
	for _, maxRetries := range []int{0, 2} {
		factoryCalls = 0
		result := runner.Execute(context.Background(), "deploy", nil, maxRetries)

		if result.Success {
			t.Fatal("expected failure")
		}
		if result.Attempts != maxRetries+1 || factoryCalls != maxRetries+1 {
			t.Errorf("maxRetries=%d: attempts = %d, clients = %d", maxRetries, result.Attempts, factoryCalls)
		}
		if engine.CodeOf(result.Err) != engine.ErrCodeRetriesExhausted {
			t.Errorf("error = %v, want retries exhausted", result.Err)
		}
	}

	if runner.Run(context.Background(), "deploy", nil, 1) {
		t.Error("Run() = true, want false")
	}
}

func TestRunRecoversAfterFault(t *testing.T) {
	srv := &fakeServer{
		infoFn: func(call int) (*engine.JobInfo, error) {
			if call == 0 {
				return jobInfo(1), nil
			}
			return jobInfo(2, finished(1, engine.BuildResultSuccess)), nil
		},
		consoleFn: func(int) (string, error) { return "ok\n", nil },
	}
	calls := 0
	factory := func() (engine.AutomationServer, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("dial tcp: connection refused")
		}
		return srv, nil
	}

	runner, _, _ := newTestRunner(factory, RunnerConfig{})
	result := runner.Execute(context.Background(), "deploy", nil, 3)
	if !result.Success || result.Attempts != 2 {
		t.Errorf("result = %+v, want success on attempt 2", result)
	}
}

func TestRunKeepsConsoleCursorAcrossRetries(t *testing.T) {
	srv := &fakeServer{
		infoFn: func(call int) (*engine.JobInfo, error) {
			switch {
			case call == 0:
				return jobInfo(5, finished(4, engine.BuildResultSuccess)), nil
			case call < 5:
				return jobInfo(6, running(5)), nil
			default:
				return jobInfo(6, finished(5, engine.BuildResultSuccess)), nil
			}
		},
		consoleFn: func(call int) (string, error) {
			switch call {
			case 0:
				return "l1\nl2\n", nil
			case 1:
				return "", engine.NewTransientError("502 bad gateway", nil)
			default:
				return "l1\nl2\nl3\n", nil
			}
		},
	}

	runner, buf, _ := newTestRunner(serverFactory(srv), RunnerConfig{})
	result := runner.Execute(context.Background(), "deploy", nil, 3)

	if !result.Success || result.Attempts != 2 || !result.Attached {
		t.Fatalf("result = %+v", result)
	}
	for _, line := range []string{"l1", "l2", "l3"} {
		if n := strings.Count(buf.String(), line); n != 1 {
			t.Errorf("%s printed %d times:\n%s", line, n, buf.String())
		}
	}
}

func TestRunStartTimeout(t *testing.T) {
	srv := &fakeServer{
		infoFn: func(int) (*engine.JobInfo, error) {
			return jobInfo(5, finished(4, engine.BuildResultSuccess)), nil
		},
	}

	runner, _, sleeper := newTestRunner(serverFactory(srv), RunnerConfig{
		PollInterval: time.Second,
		StartTimeout: 3 * time.Second,
	})
	result := runner.Execute(context.Background(), "deploy", nil, 0)

	if result.Success || result.Attempts != 1 {
		t.Errorf("result = %+v", result)
	}
	if engine.CodeOf(result.Err) != engine.ErrCodeRetriesExhausted {
		t.Errorf("error = %v, want retries exhausted", result.Err)
	}
	if sleeper.count != 3 {
		t.Errorf("sleeps = %d, want 3", sleeper.count)
	}
}

func TestRunCancelledDoesNotRetry(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	srv := &fakeServer{
		infoFn: func(int) (*engine.JobInfo, error) {
			cancel()
			return nil, context.Canceled
		},
	}

	runner, _, _ := newTestRunner(serverFactory(srv), RunnerConfig{})
	result := runner.Execute(ctx, "deploy", nil, 5)
	if result.Attempts != 1 || !errors.Is(result.Err, context.Canceled) {
		t.Errorf("result = %+v, want one cancelled attempt", result)
	}
}

func TestSplitLines(t *testing.T) {
	if got := splitLines(""); got != nil {
		t.Errorf("splitLines(\"\") = %v", got)
	}
	if got := splitLines("a\r\nb\n"); len(got) != 2 || got[1] != "b" {
		t.Errorf("splitLines() = %q", got)
	}
}
