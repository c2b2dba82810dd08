// Package money holds the decimal rules shared by every ledger amount.
package money

import (
	"github.com/shopspring/decimal"

	pkgerrors "github.com/angelmondragon/cred30-backend/pkg/errors"
)

// Places is the number of fractional digits every stored amount carries.
const Places = 2

var Zero = decimal.Zero

// Round rounds half away from zero to Places.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(Places)
}

// ValidateAmount rejects zero, negative and sub-cent amounts.
func ValidateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return pkgerrors.New(pkgerrors.CodeInvalidAmount, "amount must be greater than zero").
			WithDetails(map[string]any{"amount": amount.String()})
	}
	if !amount.Equal(Round(amount)) {
		return pkgerrors.New(pkgerrors.CodeInvalidAmount, "amount must have at most 2 decimal places").
			WithDetails(map[string]any{"amount": amount.String()})
	}
	return nil
}

// Parse converts user input into a validated amount.
func Parse(raw string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeInvalidAmount, err, "amount is not a number").
			WithDetails(map[string]any{"amount": raw})
	}
	if err := ValidateAmount(amount); err != nil {
		return decimal.Zero, err
	}
	return amount, nil
}

// Max returns the larger of a and b.
func Max(a, b decimal.Decimal) decimal.Decimal {
	if a.GreaterThan(b) {
		return a
	}
	return b
}
