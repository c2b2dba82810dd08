package quotas

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	pkgerrors "github.com/angelmondragon/cred30-backend/pkg/errors"
)

// Collateral reads active holdings without the rest of the quota service, so
// the credit engine can be built before the service that depends on it.
type Collateral struct {
	repo Repository
}

// NewCollateral returns a reader over the quota repository.
func NewCollateral(repo Repository) *Collateral {
	return &Collateral{repo: repo}
}

// ActiveSummary reads inside tx when one is given so callers see their own locks.
func (c *Collateral) ActiveSummary(ctx context.Context, tx *gorm.DB, memberID uuid.UUID) (Summary, error) {
	return summarize(ctx, c.repo.WithTx(tx), memberID)
}

func summarize(ctx context.Context, repo Repository, memberID uuid.UUID) (Summary, error) {
	rows, err := repo.ListActiveByMember(ctx, memberID)
	if err != nil {
		return Summary{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list active quotas")
	}
	summary := Summary{}
	for _, row := range rows {
		summary.Count++
		summary.Value = summary.Value.Add(row.CurrentValue)
	}
	return summary, nil
}
