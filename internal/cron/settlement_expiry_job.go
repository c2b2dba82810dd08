package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/cred30-backend/pkg/logger"
)

const defaultSettlementTTL = 72 * time.Hour

// SettlementExpiryJobParams configures the stale settlement sweep.
type SettlementExpiryJobParams struct {
	Logger      *logger.Logger
	Settlements staleSettlementExpirer
	TTL         time.Duration
}

type staleSettlementExpirer interface {
	ExpireStale(ctx context.Context, olderThan time.Duration) (int, error)
}

// NewSettlementExpiryJob fails gateway payments that were never confirmed.
func NewSettlementExpiryJob(params SettlementExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Settlements == nil {
		return nil, fmt.Errorf("settlement service required")
	}
	ttl := params.TTL
	if ttl <= 0 {
		ttl = defaultSettlementTTL
	}
	return &settlementExpiryJob{
		logg:        params.Logger,
		settlements: params.Settlements,
		ttl:         ttl,
	}, nil
}

type settlementExpiryJob struct {
	logg        *logger.Logger
	settlements staleSettlementExpirer
	ttl         time.Duration
}

func (j *settlementExpiryJob) Name() string { return "settlement-expiry" }

func (j *settlementExpiryJob) Run(ctx context.Context) error {
	expired, err := j.settlements.ExpireStale(ctx, j.ttl)
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"ttl":                 j.ttl.String(),
		"settlements_expired": expired,
	})
	if err != nil {
		return fmt.Errorf("expire settlements: %w", err)
	}
	j.logg.Info(logCtx, "settlement expiry complete")
	return nil
}
