package cron

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/cred30-backend/internal/ledger"
	"github.com/angelmondragon/cred30-backend/pkg/logger"
)

func quietLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "cron-test", Output: io.Discard})
}

type fakeFlagger struct {
	at  time.Time
	err error
}

func (f *fakeFlagger) FlagOverdue(_ context.Context, now time.Time) (int, error) {
	f.at = now
	return 2, f.err
}

func TestLoanOverdueJobUsesCurrentTime(t *testing.T) {
	flagger := &fakeFlagger{}
	job, err := NewLoanOverdueJob(LoanOverdueJobParams{Logger: quietLogger(), Loans: flagger})
	require.NoError(t, err)
	now := time.Date(2026, 5, 1, 3, 0, 0, 0, time.UTC)
	job.(*loanOverdueJob).now = func() time.Time { return now }

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, now, flagger.at)
	assert.Equal(t, "loan-overdue", job.Name())

	flagger.err = errors.New("db down")
	assert.Error(t, job.Run(context.Background()))

	_, err = NewLoanOverdueJob(LoanOverdueJobParams{Logger: quietLogger()})
	assert.Error(t, err)
}

type fakeExpirer struct {
	olderThan time.Duration
	err       error
}

func (f *fakeExpirer) ExpireStale(_ context.Context, olderThan time.Duration) (int, error) {
	f.olderThan = olderThan
	return 1, f.err
}

func TestSettlementExpiryJobDefaultsTTL(t *testing.T) {
	expirer := &fakeExpirer{}
	job, err := NewSettlementExpiryJob(SettlementExpiryJobParams{Logger: quietLogger(), Settlements: expirer})
	require.NoError(t, err)

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, defaultSettlementTTL, expirer.olderThan)

	job, err = NewSettlementExpiryJob(SettlementExpiryJobParams{Logger: quietLogger(), Settlements: expirer, TTL: time.Hour})
	require.NoError(t, err)
	expirer.err = errors.New("partial failure")
	assert.Error(t, job.Run(context.Background()))
	assert.Equal(t, time.Hour, expirer.olderThan)
}

type fakeReconciler struct {
	mismatches []ledger.Reconciliation
}

func (f *fakeReconciler) ReconcileAll(context.Context) ([]ledger.Reconciliation, error) {
	return f.mismatches, nil
}

func TestLedgerReconcileJobFailsOnDrift(t *testing.T) {
	rec := &fakeReconciler{}
	job, err := NewLedgerReconcileJob(LedgerReconcileJobParams{Logger: quietLogger(), Ledger: rec})
	require.NoError(t, err)
	require.NoError(t, job.Run(context.Background()))

	rec.mismatches = []ledger.Reconciliation{{
		MemberID:       uuid.New(),
		CachedBalance:  decimal.NewFromInt(10),
		JournalBalance: decimal.NewFromInt(9),
	}}
	assert.ErrorContains(t, job.Run(context.Background()), "1 accounts")
}
