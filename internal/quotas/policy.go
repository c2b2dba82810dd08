package quotas

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/cred30-backend/pkg/db/models"
	"github.com/angelmondragon/cred30-backend/pkg/money"
)

// Policy holds the early-redemption rule.
type Policy struct {
	PenaltyRate decimal.Decimal
	Window      time.Duration
}

// DefaultPolicy is 40% of purchase price when sold within 365 days.
func DefaultPolicy() Policy {
	return Policy{
		PenaltyRate: decimal.RequireFromString("0.40"),
		Window:      365 * 24 * time.Hour,
	}
}

// HeldLongEnough reports whether the quota is past the early-redemption window at now.
func HeldLongEnough(quota models.Quota, now time.Time, policy Policy) bool {
	return now.Sub(quota.PurchaseDate) >= policy.Window
}

// EarlyRedemptionPenalty is charged on the purchase price, not the current value.
func EarlyRedemptionPenalty(quota models.Quota, now time.Time, policy Policy) decimal.Decimal {
	if HeldLongEnough(quota, now, policy) {
		return decimal.Zero
	}
	return money.Round(quota.PurchasePrice.Mul(policy.PenaltyRate))
}

// RedemptionCredit is the amount returned to the member, never below zero.
func RedemptionCredit(quota models.Quota, now time.Time, policy Policy) decimal.Decimal {
	credit := quota.CurrentValue.Sub(EarlyRedemptionPenalty(quota, now, policy))
	return money.Max(money.Round(credit), decimal.Zero)
}
