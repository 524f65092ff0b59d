// Package jobmetrics instruments background jobs with Prometheus collectors.
package jobmetrics

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the job collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	runs        *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	lastSuccess *prometheus.GaugeVec
	exported    *prometheus.CounterVec
	now         func() time.Time
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers the job collectors on registerer. A nil registerer
// shares one set registered on the Prometheus default registerer.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		defaultOnce.Do(func() {
			defaultMetrics = buildMetrics(prometheus.DefaultRegisterer)
		})
		return defaultMetrics
	}
	return buildMetrics(registerer)
}

// Tracker measures a single job run.
type Tracker struct {
	metrics *Metrics
	job     string
	start   time.Time
}

// Track starts timing a run of job.
func (m *Metrics) Track(job string) *Tracker {
	if m == nil {
		return &Tracker{job: job}
	}
	return &Tracker{metrics: m, job: job, start: m.now()}
}

// End records the outcome of the run and returns err unchanged. Skipped
// retries count as "skipped" so malformed payloads do not page anyone.
func (t *Tracker) End(err error) error {
	if t == nil || t.metrics == nil || t.job == "" {
		return err
	}
	m := t.metrics
	status := "success"
	switch {
	case err == nil:
		m.lastSuccess.WithLabelValues(t.job).Set(float64(m.now().Unix()))
	case errors.Is(err, asynq.SkipRetry):
		status = "skipped"
	default:
		status = "failure"
	}
	m.runs.WithLabelValues(t.job, status).Inc()
	m.duration.WithLabelValues(t.job).Observe(m.now().Sub(t.start).Seconds())
	return err
}

// Wrap instruments an asynq handler under the given job name.
func (m *Metrics) Wrap(job string, next asynq.HandlerFunc) asynq.HandlerFunc {
	return func(ctx context.Context, task *asynq.Task) error {
		return m.Track(job).End(next(ctx, task))
	}
}

// AddExportedRows counts security events written by an export job.
func (m *Metrics) AddExportedRows(job string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.exported.WithLabelValues(job).Add(float64(count))
}

func buildMetrics(registerer prometheus.Registerer) *Metrics {
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sabha",
		Name:      "jobs_total",
		Help:      "Job executions by job name and status.",
	}, []string{"job", "status"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "sabha",
		Name:      "job_duration_seconds",
		Help:      "Duration of background job executions.",
		Buckets:   []float64{0.05, 0.1, 0.5, 1, 5, 15, 60, 300},
	}, []string{"job"})
	lastSuccess := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "sabha",
		Name:      "job_last_success_timestamp_seconds",
		Help:      "Unix time of the last successful run per job.",
	}, []string{"job"})
	exported := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sabha",
		Name:      "audit_export_rows_total",
		Help:      "Security events written by export jobs.",
	}, []string{"job"})
	registerer.MustRegister(runs, duration, lastSuccess, exported)
	return &Metrics{
		runs:        runs,
		duration:    duration,
		lastSuccess: lastSuccess,
		exported:    exported,
		now:         time.Now,
	}
}
