package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Job outcomes recorded by the maintenance cycle.
const (
	JobSucceeded = "succeeded"
	JobFailed    = "failed"
	JobTimedOut  = "timed_out"
)

// Cycle results recorded by the maintenance cycle.
const (
	CycleRan       = "ran"
	CycleSkipped   = "skipped"
	CycleLockError = "lock_error"
)

// CronMetrics tracks the maintenance cycle run by the cron worker: loan
// overdue flags, settlement expiry, outbox retention and reconciliation.
type CronMetrics struct {
	duration    *prometheus.HistogramVec
	runs        *prometheus.CounterVec
	cycles      *prometheus.CounterVec
	lastSuccess *prometheus.GaugeVec
}

// NewCronMetrics registers the cron metrics on the provided registerer.
func NewCronMetrics(reg prometheus.Registerer) *CronMetrics {
	if reg == nil {
		return &CronMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cron_job_duration_seconds",
		Help:    "Time spent in each maintenance job.",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 15, 30, 60, 120},
	}, []string{"job"})
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cron_job_runs_total",
		Help: "Maintenance job executions, by job and outcome.",
	}, []string{"job", "outcome"})
	cycles := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cron_cycles_total",
		Help: "Maintenance cycles, by whether this worker held the lock.",
	}, []string{"result"})
	lastSuccess := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "cron_job_last_success_timestamp_seconds",
		Help: "Unix time of the last successful run of each job.",
	}, []string{"job"})
	reg.MustRegister(duration, runs, cycles, lastSuccess)
	return &CronMetrics{
		duration:    duration,
		runs:        runs,
		cycles:      cycles,
		lastSuccess: lastSuccess,
	}
}

// ObserveJob records one job execution that finished at finishedAt.
func (c *CronMetrics) ObserveJob(job, outcome string, duration time.Duration, finishedAt time.Time) {
	if c == nil || c.runs == nil {
		return
	}
	job = normalizeLabel(job)
	c.duration.WithLabelValues(job).Observe(duration.Seconds())
	c.runs.WithLabelValues(job, normalizeLabel(outcome)).Inc()
	if outcome == JobSucceeded {
		c.lastSuccess.WithLabelValues(job).Set(float64(finishedAt.Unix()))
	}
}

// IncCycle counts a cycle with the given result.
func (c *CronMetrics) IncCycle(result string) {
	if c == nil || c.cycles == nil {
		return
	}
	c.cycles.WithLabelValues(normalizeLabel(result)).Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
