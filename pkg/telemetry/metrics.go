package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics provides Prometheus metrics for the controller.
// Every Record method is safe to call on a disabled or nil *Metrics.
type Metrics struct {
	config MetricsConfig

	// Run metrics
	runsStarted   *prometheus.CounterVec
	runsCompleted *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec
	activeRuns    prometheus.Gauge

	// Phase metrics
	phaseDuration *prometheus.HistogramVec

	// Stack tracking metrics
	stackPolls  *prometheus.CounterVec
	stackEvents *prometheus.CounterVec

	// Job metrics
	jobAttempts *prometheus.CounterVec
	jobDuration *prometheus.HistogramVec

	// Remote API metrics
	apiCalls    *prometheus.CounterVec
	apiDuration *prometheus.HistogramVec
	apiErrors   *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		runsStarted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_started_total",
				Help:      "Total number of controller runs started",
			},
			[]string{"kind"},
		),
		runsCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_completed_total",
				Help:      "Total number of controller runs completed",
			},
			[]string{"kind", "status"},
		),
		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Duration of controller runs in seconds",
				Buckets:   buckets,
			},
			[]string{"kind", "status"},
		),
		activeRuns: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_runs",
				Help:      "Current number of active runs",
			},
		),

		phaseDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "phase_duration_seconds",
				Help:      "Duration of provisioning phases in seconds",
				Buckets:   buckets,
			},
			[]string{"phase", "status"},
		),

		stackPolls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stack_polls_total",
				Help:      "Total number of stack event polls",
			},
			[]string{"operation"},
		),
		stackEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stack_events_total",
				Help:      "Total number of stack events printed",
			},
			[]string{"operation", "resource_status"},
		),

		jobAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "job_attempts_total",
				Help:      "Total number of automation job attempts",
			},
			[]string{"outcome"},
		),
		jobDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "job_duration_seconds",
				Help:      "Duration of automation job runs in seconds",
				Buckets:   buckets,
			},
			[]string{"status"},
		),

		apiCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "api_calls_total",
				Help:      "Total number of remote API calls",
			},
			[]string{"service", "operation"},
		),
		apiDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "api_call_duration_seconds",
				Help:      "Duration of remote API calls in seconds",
				Buckets:   buckets,
			},
			[]string{"service", "operation"},
		),
		apiErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "api_errors_total",
				Help:      "Total number of remote API errors by class",
			},
			[]string{"service", "operation", "class"},
		),
	}

	registry.MustRegister(
		m.runsStarted,
		m.runsCompleted,
		m.runDuration,
		m.activeRuns,
		m.phaseDuration,
		m.stackPolls,
		m.stackEvents,
		m.jobAttempts,
		m.jobDuration,
		m.apiCalls,
		m.apiDuration,
		m.apiErrors,
	)

	return m, nil
}

// Run Metrics

// RecordRunStarted increments the counter for started runs.
func (m *Metrics) RecordRunStarted(kind string) {
	if m == nil || m.runsStarted == nil {
		return
	}
	m.runsStarted.WithLabelValues(kind).Inc()
	m.activeRuns.Inc()
}

// RecordRunCompleted records a completed run with its status and duration.
func (m *Metrics) RecordRunCompleted(kind, status string, duration time.Duration) {
	if m == nil || m.runsCompleted == nil {
		return
	}
	m.runsCompleted.WithLabelValues(kind, status).Inc()
	m.runDuration.WithLabelValues(kind, status).Observe(duration.Seconds())
	m.activeRuns.Dec()
}

// RecordPhase records the duration of one provisioning phase.
func (m *Metrics) RecordPhase(phase, status string, duration time.Duration) {
	if m == nil || m.phaseDuration == nil {
		return
	}
	m.phaseDuration.WithLabelValues(phase, status).Observe(duration.Seconds())
}

// Stack Metrics

// RecordStackPoll counts one event poll for a tracked stack operation.
func (m *Metrics) RecordStackPoll(operation string) {
	if m == nil || m.stackPolls == nil {
		return
	}
	m.stackPolls.WithLabelValues(operation).Inc()
}

// RecordStackEvent counts one printed stack event.
func (m *Metrics) RecordStackEvent(operation, resourceStatus string) {
	if m == nil || m.stackEvents == nil {
		return
	}
	m.stackEvents.WithLabelValues(operation, resourceStatus).Inc()
}

// Job Metrics

// RecordJobAttempt counts one job attempt with its outcome (succeeded, failed, fault).
func (m *Metrics) RecordJobAttempt(outcome string) {
	if m == nil || m.jobAttempts == nil {
		return
	}
	m.jobAttempts.WithLabelValues(outcome).Inc()
}

// RecordJobCompleted records the total duration of a job run.
func (m *Metrics) RecordJobCompleted(status string, duration time.Duration) {
	if m == nil || m.jobDuration == nil {
		return
	}
	m.jobDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// Remote API Metrics

// RecordAPICall records a remote API call with its duration.
func (m *Metrics) RecordAPICall(service, operation string, duration time.Duration) {
	if m == nil || m.apiCalls == nil {
		return
	}
	m.apiCalls.WithLabelValues(service, operation).Inc()
	m.apiDuration.WithLabelValues(service, operation).Observe(duration.Seconds())
}

// RecordAPIError records a failed remote API call by error class.
func (m *Metrics) RecordAPIError(service, operation, class string) {
	if m == nil || m.apiErrors == nil {
		return
	}
	m.apiErrors.WithLabelValues(service, operation, class).Inc()
}

// WriteTextfile writes all metrics to the configured textfile path.
// It is a no-op when metrics are disabled or no path is configured.
func (m *Metrics) WriteTextfile() error {
	if m == nil || m.registry == nil || m.config.TextfilePath == "" {
		return nil
	}
	return prometheus.WriteToTextfile(m.config.TextfilePath, m.registry)
}

// Timer provides a convenient way to time operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
