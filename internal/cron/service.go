package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/cred30-backend/pkg/logger"
	"github.com/angelmondragon/cred30-backend/pkg/metrics"
)

const (
	defaultInterval   = 5 * time.Minute
	defaultJobTimeout = 2 * time.Minute
)

// ServiceParams configure the maintenance cycle.
type ServiceParams struct {
	Logger     *logger.Logger
	Registry   *Registry
	Lock       Lock
	Metrics    *metrics.CronMetrics
	Interval   time.Duration
	JobTimeout time.Duration
	Now        func() time.Time
}

// JobResult is the outcome of one job in a cycle.
type JobResult struct {
	Name     string
	Outcome  string
	Duration time.Duration
	Err      error
}

// CycleReport summarizes one maintenance cycle.
type CycleReport struct {
	Skipped bool
	Jobs    []JobResult
}

// Failed counts the jobs that did not succeed.
func (r CycleReport) Failed() int {
	failed := 0
	for _, job := range r.Jobs {
		if job.Outcome != metrics.JobSucceeded {
			failed++
		}
	}
	return failed
}

// Service runs the registered jobs under the cycle lock on a fixed cadence.
type Service struct {
	logg       *logger.Logger
	registry   *Registry
	lock       Lock
	metrics    *metrics.CronMetrics
	interval   time.Duration
	jobTimeout time.Duration
	now        func() time.Time
}

// NewService builds the maintenance cycle.
func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Lock == nil {
		return nil, fmt.Errorf("lock required")
	}
	registry := params.Registry
	if registry == nil {
		registry, _ = NewRegistry()
	}
	interval := params.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	jobTimeout := params.JobTimeout
	if jobTimeout <= 0 {
		jobTimeout = defaultJobTimeout
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Service{
		logg:       params.Logger,
		registry:   registry,
		lock:       params.Lock,
		metrics:    params.Metrics,
		interval:   interval,
		jobTimeout: jobTimeout,
		now:        now,
	}, nil
}

// Run executes a cycle immediately and then on every tick until ctx is canceled.
func (s *Service) Run(ctx context.Context) error {
	s.tick(ctx)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "cron.stopped")
			return ctx.Err()
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Service) tick(ctx context.Context) {
	report, err := s.RunOnce(ctx)
	if err != nil {
		s.logg.Error(ctx, "cron.cycle.error", err)
		return
	}
	if failed := report.Failed(); failed > 0 {
		s.logg.Warn(s.logg.WithField(ctx, "jobs_failed", failed), "cron.cycle.degraded")
	}
}

// RunOnce runs every job in registration order under the cycle lock. A failing
// job does not stop the cycle; losing the lock does.
func (s *Service) RunOnce(ctx context.Context) (CycleReport, error) {
	locked, err := s.lock.Acquire(ctx)
	if err != nil {
		s.metrics.IncCycle(metrics.CycleLockError)
		return CycleReport{}, err
	}
	if !locked {
		s.metrics.IncCycle(metrics.CycleSkipped)
		s.logg.Info(ctx, "cron.cycle.skipped")
		return CycleReport{Skipped: true}, nil
	}
	s.metrics.IncCycle(metrics.CycleRan)
	defer func() {
		if err := s.lock.Release(context.WithoutCancel(ctx)); err != nil {
			s.logg.Error(ctx, "cron.lock.release_failed", err)
		}
	}()

	jobs := s.registry.Jobs()
	s.logg.Info(s.logg.WithField(ctx, "jobs", len(jobs)), "cron.cycle.start")
	report := CycleReport{Jobs: make([]JobResult, 0, len(jobs))}
	for i, job := range jobs {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		if i > 0 {
			if err := s.lock.Refresh(ctx); err != nil {
				return report, fmt.Errorf("before %s: %w", job.Name(), err)
			}
		}
		report.Jobs = append(report.Jobs, s.runJob(ctx, job))
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"jobs":        len(report.Jobs),
		"jobs_failed": report.Failed(),
	}), "cron.cycle.done")
	return report, nil
}

func (s *Service) runJob(ctx context.Context, job Job) JobResult {
	jobCtx := s.logg.WithField(ctx, "job", job.Name())
	runCtx, cancel := context.WithTimeout(jobCtx, s.jobTimeout)
	defer cancel()

	start := s.now()
	err := job.Run(runCtx)
	finished := s.now()
	result := JobResult{Name: job.Name(), Duration: finished.Sub(start), Err: err}
	switch {
	case err == nil:
		result.Outcome = metrics.JobSucceeded
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(runCtx.Err(), context.DeadlineExceeded):
		result.Outcome = metrics.JobTimedOut
	default:
		result.Outcome = metrics.JobFailed
	}
	s.metrics.ObserveJob(result.Name, result.Outcome, result.Duration, finished)

	jobCtx = s.logg.WithFields(jobCtx, map[string]any{
		"outcome":     result.Outcome,
		"duration_ms": result.Duration.Milliseconds(),
	})
	if err != nil {
		s.logg.Error(jobCtx, "cron.job.failed", err)
		return result
	}
	s.logg.Info(jobCtx, "cron.job.done")
	return result
}
