package cron

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/cred30-backend/pkg/logger"
	"github.com/angelmondragon/cred30-backend/pkg/metrics"
)

type fakeLock struct {
	held       bool
	refreshes  int
	releases   int
	refreshErr error
}

func (f *fakeLock) Acquire(context.Context) (bool, error) {
	if f.held {
		return false, nil
	}
	f.held = true
	return true, nil
}

func (f *fakeLock) Refresh(context.Context) error {
	f.refreshes++
	return f.refreshErr
}

func (f *fakeLock) Release(context.Context) error {
	f.held = false
	f.releases++
	return nil
}

type testJob struct {
	name string
	err  error
	runs int
	wait bool
}

func (t *testJob) Name() string { return t.name }

func (t *testJob) Run(ctx context.Context) error {
	t.runs++
	if t.wait {
		<-ctx.Done()
		return ctx.Err()
	}
	return t.err
}

func newCycle(t *testing.T, lock Lock, jobs ...Job) *Service {
	t.Helper()
	registry, err := NewRegistry(jobs...)
	require.NoError(t, err)
	service, err := NewService(ServiceParams{
		Logger:     logger.New(logger.Options{ServiceName: "cron-test", Output: io.Discard}),
		Registry:   registry,
		Lock:       lock,
		JobTimeout: 20 * time.Millisecond,
	})
	require.NoError(t, err)
	return service
}

func TestRunOnceRunsEveryJobEvenOnFailure(t *testing.T) {
	lock := &fakeLock{}
	overdue := &testJob{name: "loan-overdue"}
	expiry := &testJob{name: "settlement-expiry", err: errors.New("gateway down")}
	reconcile := &testJob{name: "ledger-reconcile"}
	service := newCycle(t, lock, overdue, expiry, reconcile)

	report, err := service.RunOnce(context.Background())
	require.NoError(t, err)
	assert.False(t, report.Skipped)
	require.Len(t, report.Jobs, 3)
	assert.Equal(t, metrics.JobSucceeded, report.Jobs[0].Outcome)
	assert.Equal(t, metrics.JobFailed, report.Jobs[1].Outcome)
	assert.Equal(t, metrics.JobSucceeded, report.Jobs[2].Outcome)
	assert.Equal(t, 1, report.Failed())
	assert.Equal(t, 1, reconcile.runs)
	assert.Equal(t, 2, lock.refreshes)
	assert.Equal(t, 1, lock.releases)
	assert.False(t, lock.held)
}

func TestRunOnceSkipsWhenAnotherWorkerHoldsTheLock(t *testing.T) {
	lock := &fakeLock{held: true}
	job := &testJob{name: "loan-overdue"}
	service := newCycle(t, lock, job)

	report, err := service.RunOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Skipped)
	assert.Zero(t, job.runs)
	assert.Zero(t, lock.releases)
}

func TestRunOnceStopsWhenTheLockIsLost(t *testing.T) {
	lock := &fakeLock{refreshErr: ErrLockLost}
	first := &testJob{name: "loan-overdue"}
	second := &testJob{name: "ledger-reconcile"}
	service := newCycle(t, lock, first, second)

	report, err := service.RunOnce(context.Background())
	assert.ErrorIs(t, err, ErrLockLost)
	assert.Len(t, report.Jobs, 1)
	assert.Zero(t, second.runs)
	assert.Equal(t, 1, lock.releases)
}

func TestRunOnceTimesOutSlowJobs(t *testing.T) {
	lock := &fakeLock{}
	slow := &testJob{name: "outbox-retention", wait: true}
	next := &testJob{name: "ledger-reconcile"}
	service := newCycle(t, lock, slow, next)

	report, err := service.RunOnce(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Jobs, 2)
	assert.Equal(t, metrics.JobTimedOut, report.Jobs[0].Outcome)
	assert.Equal(t, 1, next.runs)
}
