package credit

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/cred30-backend/pkg/db/models"
	"github.com/angelmondragon/cred30-backend/pkg/enums"
	"github.com/angelmondragon/cred30-backend/pkg/money"
)

// CollateralPolicy maps the value of a member's active quotas to a credit limit.
type CollateralPolicy interface {
	TotalLimit(activeValue decimal.Decimal) decimal.Decimal
}

// RatioPolicy lends a fixed fraction of collateral value.
type RatioPolicy struct {
	Ratio decimal.Decimal
}

func (p RatioPolicy) TotalLimit(activeValue decimal.Decimal) decimal.Decimal {
	if !activeValue.IsPositive() || !p.Ratio.IsPositive() {
		return decimal.Zero
	}
	return money.Round(activeValue.Mul(p.Ratio))
}

// Policy holds the lending constants.
type Policy struct {
	InterestRate      decimal.Decimal
	MaxInstallments   int
	InstallmentPeriod time.Duration
	MinScore          int
	Collateral        CollateralPolicy
}

// DefaultPolicy is 20% interest, up to 12 monthly installments, lending 100% of collateral.
func DefaultPolicy() Policy {
	return Policy{
		InterestRate:      decimal.RequireFromString("0.20"),
		MaxInstallments:   12,
		InstallmentPeriod: 30 * 24 * time.Hour,
		Collateral:        RatioPolicy{Ratio: decimal.NewFromInt(1)},
	}
}

// LoanTerms is the repayment schedule fixed at loan creation.
type LoanTerms struct {
	TotalRepayment   decimal.Decimal
	InstallmentValue decimal.Decimal
	LastInstallment  decimal.Decimal
}

// Terms computes the repayment schedule. Installments are truncated to the cent
// and the last one absorbs the remainder, so it is never below InstallmentValue.
func Terms(principal, rate decimal.Decimal, installments int) LoanTerms {
	total := money.Round(principal.Mul(decimal.NewFromInt(1).Add(rate)))
	if installments < 1 {
		installments = 1
	}
	value := total.Div(decimal.NewFromInt(int64(installments))).Truncate(money.Places)
	return LoanTerms{
		TotalRepayment:   total,
		InstallmentValue: value,
		LastInstallment:  lastInstallment(total, value, installments),
	}
}

func lastInstallment(total, value decimal.Decimal, installments int) decimal.Decimal {
	if installments < 1 {
		return total
	}
	last := total.Sub(value.Mul(decimal.NewFromInt(int64(installments - 1))))
	if last.IsNegative() {
		return decimal.Zero
	}
	return last
}

// PaidInstallments counts whole installments covered by totalPaid, capped at the installment count.
func PaidInstallments(loan models.Loan, totalPaid decimal.Decimal) int {
	if !loan.InstallmentValue.IsPositive() {
		return 0
	}
	if totalPaid.Equal(loan.TotalRepayment) {
		return loan.Installments
	}
	count := int(totalPaid.Div(loan.InstallmentValue).Floor().IntPart())
	if count > loan.Installments {
		return loan.Installments
	}
	return count
}

// IsOverdue is derived, never stored: an approved loan past its due date with money still owed.
func IsOverdue(loan models.Loan, now time.Time) bool {
	return loan.Status == enums.LoanApproved &&
		loan.DueDate != nil &&
		now.After(*loan.DueDate) &&
		loan.Remaining().IsPositive()
}
