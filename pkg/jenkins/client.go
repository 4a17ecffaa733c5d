package jenkins

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/madcore/madcore/pkg/engine"
	"github.com/madcore/madcore/pkg/telemetry"
)

const service = "jenkins"

// ClientConfig configures access to a Jenkins server.
type ClientConfig struct {
	// BaseURL is the server root, e.g. https://jenkins.example.com.
	BaseURL string

	// Username and APIToken enable basic authentication when set.
	Username string
	APIToken string

	// InsecureSkipVerify disables TLS certificate checks.
	InsecureSkipVerify bool

	// Timeout bounds each HTTP request.
	Timeout time.Duration
}

// Client implements engine.AutomationServer on the Jenkins JSON API.
type Client struct {
	cfg    ClientConfig
	http   *http.Client
	logger *telemetry.Logger

	crumbMu      sync.Mutex
	crumbFetched bool
	crumb        *crumb
}

type crumb struct {
	Field string `json:"crumbRequestField"`
	Value string `json:"crumb"`
}

// NewClient creates a Jenkins client.
func NewClient(cfg ClientConfig, logger *telemetry.Logger) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = telemetry.NewNopLogger()
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // self-signed server certificates
	}

	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout, Transport: transport},
		logger: logger.NewComponentLogger("jenkins"),
	}
}

// GetJobInfo returns the job with builds expanded to depth.
func (c *Client) GetJobInfo(ctx context.Context, name string, depth int) (*engine.JobInfo, error) {
	var info engine.JobInfo
	err := c.call(ctx, "GetJobInfo", name, func(ctx context.Context) error {
		u := fmt.Sprintf("%s/%s/api/json?depth=%d", c.cfg.BaseURL, jobPath(name), depth)
		body, err := c.do(ctx, http.MethodGet, u, nil, name)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(body, &info); err != nil {
			return engine.NewTransientError("invalid job info response", err).WithService(service).WithTarget(name)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &info, nil
}

// BuildJob queues a build. Parameters are sent as form values.
func (c *Client) BuildJob(ctx context.Context, name string, params []engine.BuildParameter) error {
	return c.call(ctx, "BuildJob", name, func(ctx context.Context) error {
		endpoint := "build"
		form := url.Values{}
		if len(params) > 0 {
			endpoint = "buildWithParameters"
			for _, p := range params {
				form.Set(p.Name, p.Value)
			}
		}
		u := fmt.Sprintf("%s/%s/%s", c.cfg.BaseURL, jobPath(name), endpoint)
		_, err := c.do(ctx, http.MethodPost, u, form, name)
		return err
	})
}

// GetBuildConsoleOutput returns the full console text of a build.
func (c *Client) GetBuildConsoleOutput(ctx context.Context, name string, number int) (string, error) {
	var text string
	err := c.call(ctx, "GetBuildConsoleOutput", name, func(ctx context.Context) error {
		u := fmt.Sprintf("%s/%s/%d/consoleText", c.cfg.BaseURL, jobPath(name), number)
		body, err := c.do(ctx, http.MethodGet, u, nil, name)
		if err != nil {
			return err
		}
		text = string(body)
		return nil
	})
	return text, err
}

// Ping checks the server answers with its version header.
func (c *Client) Ping(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/api/json", nil)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", engine.NewTransientError("jenkins unreachable", err).WithService(service)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if err := statusError(resp, "ping"); err != nil {
		return "", err
	}
	return resp.Header.Get("X-Jenkins"), nil
}

func (c *Client) call(ctx context.Context, operation, target string, fn func(ctx context.Context) error) error {
	err := telemetry.RecordAPICall(ctx, service, operation, func(err error) string {
		return string(engine.ClassOf(err))
	}, fn)
	if err != nil {
		c.logger.WithJob(target).WithError(err).Debugf("%s failed", operation)
	}
	return err
}

func (c *Client) do(ctx context.Context, method, u string, form url.Values, target string) ([]byte, error) {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, engine.NewPermanentError("invalid request", err).WithService(service).WithTarget(target)
	}
	c.authorize(req)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	if method == http.MethodPost {
		cr, err := c.getCrumb(ctx)
		if err != nil {
			return nil, err
		}
		if cr != nil {
			req.Header.Set(cr.Field, cr.Value)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, engine.NewTransientError("request failed", err).WithService(service).WithTarget(target)
	}
	defer resp.Body.Close()

	if err := statusError(resp, target); err != nil {
		return nil, err
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, engine.NewTransientError("failed to read response", err).WithService(service).WithTarget(target)
	}
	return data, nil
}

func (c *Client) authorize(req *http.Request) {
	if c.cfg.Username != "" {
		req.SetBasicAuth(c.cfg.Username, c.cfg.APIToken)
	}
}

// getCrumb fetches the CSRF crumb once. Servers without CSRF protection have none.
// A failed fetch is retried on the next POST.
func (c *Client) getCrumb(ctx context.Context) (*crumb, error) {
	c.crumbMu.Lock()
	defer c.crumbMu.Unlock()

	if c.crumbFetched {
		return c.crumb, nil
	}

	body, err := c.do(ctx, http.MethodGet, c.cfg.BaseURL+"/crumbIssuer/api/json", nil, "crumbIssuer")
	if err != nil {
		if engine.CodeOf(err) != engine.ErrCodeNotFound {
			return nil, err
		}
		c.crumbFetched = true
		return nil, nil
	}

	var cr crumb
	if err := json.Unmarshal(body, &cr); err != nil {
		return nil, engine.NewTransientError("invalid crumb response", err).WithService(service)
	}
	if cr.Field != "" {
		c.crumb = &cr
	}
	c.crumbFetched = true
	return c.crumb, nil
}

// statusError classifies a non-2xx response.
func statusError(resp *http.Response, target string) error {
	if resp.StatusCode < 400 {
		return nil
	}
	msg := fmt.Sprintf("jenkins API error: %s", resp.Status)
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return engine.NewPermanentError(msg, nil).WithCode(engine.ErrCodeNotFound).WithService(service).WithTarget(target)
	case resp.StatusCode == http.StatusTooManyRequests:
		return engine.NewThrottledError(msg, nil).WithService(service).WithTarget(target)
	case resp.StatusCode >= 500:
		return engine.NewTransientError(msg, nil).WithCode(engine.ErrCodeUnavailable).WithService(service).WithTarget(target)
	default:
		return engine.NewPermanentError(msg, nil).WithService(service).WithTarget(target)
	}
}

// jobPath maps "folder/job" to "job/folder/job/job".
func jobPath(name string) string {
	parts := strings.Split(name, "/")
	for i, p := range parts {
		parts[i] = "job/" + url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}

var _ engine.AutomationServer = (*Client)(nil)
