package marketplace

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/cred30-backend/pkg/money"
)

// Policy holds the marketplace fee schedule.
type Policy struct {
	FeeRate       decimal.Decimal
	BoostFee      decimal.Decimal
	BoostDuration time.Duration
}

// DefaultPolicy keeps 5% of each sale and charges 5.00 for a seven day boost.
func DefaultPolicy() Policy {
	return Policy{
		FeeRate:       decimal.RequireFromString("0.05"),
		BoostFee:      decimal.RequireFromString("5.00"),
		BoostDuration: 7 * 24 * time.Hour,
	}
}

// Split divides a sale into the fee kept by the pool and the seller's share.
func (p Policy) Split(amount decimal.Decimal) (fee, sellerAmount decimal.Decimal) {
	fee = money.Round(amount.Mul(p.FeeRate))
	return fee, amount.Sub(fee)
}

// ExtendBoost stacks a new boost on top of one still running.
func (p Policy) ExtendBoost(current *time.Time, now time.Time) time.Time {
	start := now
	if current != nil && current.After(now) {
		start = *current
	}
	return start.Add(p.BoostDuration)
}
