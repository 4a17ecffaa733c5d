package orchestrator

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/madcore/madcore/pkg/engine"
	"github.com/madcore/madcore/pkg/telemetry"
)

// Probe reports whether a remote endpoint is up. Any error means "not yet".
type Probe func(ctx context.Context) error

// Waiter polls a probe until it succeeds or the time budget is spent.
type Waiter struct {
	sleeper engine.Sleeper
	logger  *telemetry.Logger
}

// NewWaiter creates a waiter. A nil sleeper sleeps on the wall clock.
func NewWaiter(sleeper engine.Sleeper, logger *telemetry.Logger) *Waiter {
	if sleeper == nil {
		sleeper = engine.RealSleeper{}
	}
	if logger == nil {
		logger = telemetry.NewNopLogger()
	}
	return &Waiter{sleeper: sleeper, logger: logger}
}

// WaitUntil calls probe until it succeeds. After each failure interval is
// added to the elapsed time; once elapsed exceeds maxTimeout the wait ends
// with false. Context cancellation also ends it with false.
func (w *Waiter) WaitUntil(ctx context.Context, probe Probe, maxTimeout, interval time.Duration, waitMsg string) bool {
	var elapsed time.Duration
	for {
		err := probe(ctx)
		if err == nil {
			return true
		}
		if waitMsg != "" {
			w.logger.WithError(err).Info(waitMsg)
		}

		elapsed += interval
		if elapsed > maxTimeout {
			return false
		}
		if err := w.sleeper.Sleep(ctx, interval); err != nil {
			return false
		}
	}
}

// URLProbe returns a probe that succeeds when a GET of url answers below 400.
func URLProbe(client *http.Client, url string) Probe {
	return func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, resp.Body)

		if resp.StatusCode >= 400 {
			return fmt.Errorf("%s answered %s", url, resp.Status)
		}
		return nil
	}
}

// Pinger answers an authenticated liveness check.
type Pinger interface {
	Ping(ctx context.Context) (string, error)
}

// PingProbe returns a probe that succeeds once p answers its liveness check.
func PingProbe(p Pinger) Probe {
	return func(ctx context.Context) error {
		_, err := p.Ping(ctx)
		return err
	}
}

// NewHTTPClient returns a client for probes. verify=false accepts any certificate.
func NewHTTPClient(verify bool, timeout time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if !verify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // endpoints start with self-signed certificates
	}
	return &http.Client{Timeout: timeout, Transport: transport}
}

// WaitUntilDomainEncrypted waits until https://<fullDomain> serves a
// certificate that verifies.
func (w *Waiter) WaitUntilDomainEncrypted(ctx context.Context, fullDomain string, maxTimeout, interval time.Duration) bool {
	client := NewHTTPClient(true, maxTimeout)
	return w.WaitUntil(ctx, URLProbe(client, "https://"+fullDomain), maxTimeout, interval, "")
}
