package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/cred30-backend/pkg/logger"
)

// LoanOverdueJobParams configures the overdue loan sweep.
type LoanOverdueJobParams struct {
	Logger *logger.Logger
	Loans  overdueFlagger
}

type overdueFlagger interface {
	FlagOverdue(ctx context.Context, now time.Time) (int, error)
}

// NewLoanOverdueJob flags loans past their due date so members get notified once.
func NewLoanOverdueJob(params LoanOverdueJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Loans == nil {
		return nil, fmt.Errorf("loan service required")
	}
	return &loanOverdueJob{
		logg:  params.Logger,
		loans: params.Loans,
		now:   time.Now,
	}, nil
}

type loanOverdueJob struct {
	logg  *logger.Logger
	loans overdueFlagger
	now   func() time.Time
}

func (j *loanOverdueJob) Name() string { return "loan-overdue" }

func (j *loanOverdueJob) Run(ctx context.Context) error {
	flagged, err := j.loans.FlagOverdue(ctx, j.now().UTC())
	if err != nil {
		return fmt.Errorf("flag overdue loans: %w", err)
	}
	j.logg.Info(j.logg.WithField(ctx, "loans_flagged", flagged), "overdue loan sweep complete")
	return nil
}
