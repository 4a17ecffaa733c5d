package orchestrator

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/madcore/madcore/pkg/jenkins"
)

type countingSleeper struct {
	count int
	total time.Duration
	err   error
}

func (s *countingSleeper) Sleep(_ context.Context, d time.Duration) error {
	s.count++
	s.total += d
	return s.err
}

func TestWaitUntilTimesOut(t *testing.T) {
	sleeper := &countingSleeper{}
	w := NewWaiter(sleeper, nil)
	calls := 0
	probe := func(context.Context) error {
		calls++
		return errors.New("connection refused")
	}

	if w.WaitUntil(context.Background(), probe, 30*time.Second, 10*time.Second, "waiting") {
		t.Fatal("WaitUntil() = true for a probe that never succeeds")
	}
	// Elapsed reaches 10, 20 and 30 before the fourth failure pushes it past 30.
	if calls != 4 {
		t.Errorf("probe calls = %d, want 4", calls)
	}
	if sleeper.count != 3 || sleeper.total != 30*time.Second {
		t.Errorf("slept %d times for %s", sleeper.count, sleeper.total)
	}
}

func TestWaitUntilSucceedsAfterFailures(t *testing.T) {
	sleeper := &countingSleeper{}
	w := NewWaiter(sleeper, nil)
	calls := 0
	probe := func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("not yet")
		}
		return nil
	}

	if !w.WaitUntil(context.Background(), probe, time.Hour, time.Second, "") {
		t.Fatal("WaitUntil() = false")
	}
	if sleeper.count != 2 {
		t.Errorf("slept %d times, want 2", sleeper.count)
	}
}

func TestWaitUntilStopsOnSleepError(t *testing.T) {
	sleeper := &countingSleeper{err: context.Canceled}
	w := NewWaiter(sleeper, nil)
	probe := func(context.Context) error { return errors.New("down") }

	if w.WaitUntil(context.Background(), probe, time.Hour, time.Second, "") {
		t.Fatal("WaitUntil() = true after cancellation")
	}
	if sleeper.count != 1 {
		t.Errorf("slept %d times, want 1", sleeper.count)
	}
}

func TestURLProbe(t *testing.T) {
	status := http.StatusServiceUnavailable
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))
	defer srv.Close()

	probe := URLProbe(srv.Client(), srv.URL)
	if err := probe(context.Background()); err == nil {
		t.Error("probe() = nil for 503")
	}

	status = http.StatusNoContent
	if err := probe(context.Background()); err != nil {
		t.Errorf("probe() error = %v for 204", err)
	}

	status = http.StatusOK
	if err := probe(context.Background()); err != nil {
		t.Errorf("probe() error = %v for 200", err)
	}
}

func TestURLProbeSelfSignedCertificate(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	if err := URLProbe(NewHTTPClient(true, time.Second), srv.URL)(context.Background()); err == nil {
		t.Error("verifying client accepted a self-signed certificate")
	}
	if err := URLProbe(NewHTTPClient(false, time.Second), srv.URL)(context.Background()); err != nil {
		t.Errorf("non-verifying client error = %v", err)
	}
}

func TestPingProbeUsesJenkinsCredentials(t *testing.T) {
	up := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, token, ok := r.BasicAuth()
		switch {
		case r.URL.Path != "/api/json":
			w.WriteHeader(http.StatusNotFound)
		case !ok || user != "admin" || token != "secret":
			w.WriteHeader(http.StatusForbidden)
		case !up:
			w.WriteHeader(http.StatusServiceUnavailable)
		default:
			w.Header().Set("X-Jenkins", "2.440.1")
			_, _ = w.Write([]byte(`{}`))
		}
	}))
	defer srv.Close()

	client := jenkins.NewClient(jenkins.ClientConfig{BaseURL: srv.URL, Username: "admin", APIToken: "secret"}, nil)
	probe := PingProbe(client)
	if err := probe(context.Background()); err == nil {
		t.Error("probe() = nil while jenkins is starting")
	}

	up = true
	if err := probe(context.Background()); err != nil {
		t.Errorf("probe() error = %v once jenkins is up", err)
	}

	anonymous := PingProbe(jenkins.NewClient(jenkins.ClientConfig{BaseURL: srv.URL}, nil))
	if err := anonymous(context.Background()); err == nil {
		t.Error("probe() = nil without credentials")
	}
}
