package cron

import (
	"context"
	"fmt"

	"github.com/angelmondragon/cred30-backend/internal/ledger"
	"github.com/angelmondragon/cred30-backend/pkg/logger"
)

// LedgerReconcileJobParams configures the nightly drift check.
type LedgerReconcileJobParams struct {
	Logger *logger.Logger
	Ledger reconciler
}

type reconciler interface {
	ReconcileAll(ctx context.Context) ([]ledger.Reconciliation, error)
}

// NewLedgerReconcileJob compares every cached balance with its journal. It
// reports drift and never corrects it.
func NewLedgerReconcileJob(params LedgerReconcileJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	return &ledgerReconcileJob{logg: params.Logger, ledger: params.Ledger}, nil
}

type ledgerReconcileJob struct {
	logg   *logger.Logger
	ledger reconciler
}

func (j *ledgerReconcileJob) Name() string { return "ledger-reconcile" }

func (j *ledgerReconcileJob) Run(ctx context.Context) error {
	mismatches, err := j.ledger.ReconcileAll(ctx)
	if err != nil {
		return fmt.Errorf("reconcile ledger: %w", err)
	}
	for _, m := range mismatches {
		j.logg.Warn(j.logg.WithFields(ctx, map[string]any{
			"member_id":       m.MemberID.String(),
			"cached_balance":  m.CachedBalance.String(),
			"journal_balance": m.JournalBalance.String(),
		}), "ledger drift detected")
	}
	if len(mismatches) > 0 {
		return fmt.Errorf("ledger drift on %d accounts", len(mismatches))
	}
	j.logg.Info(ctx, "ledger reconciliation clean")
	return nil
}
