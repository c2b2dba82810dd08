package enums

import "fmt"

// SettlementStatus is the gateway confirmation state of an external payment.
type SettlementStatus string

const (
	SettlementPending SettlementStatus = "PENDING"
	SettlementSettled SettlementStatus = "SETTLED"
	SettlementFailed  SettlementStatus = "FAILED"
)

func (s SettlementStatus) IsValid() bool {
	switch s {
	case SettlementPending, SettlementSettled, SettlementFailed:
		return true
	}
	return false
}

func (s SettlementStatus) IsTerminal() bool {
	return s == SettlementSettled || s == SettlementFailed
}

// SettlementPurpose says what a confirmed settlement pays for.
type SettlementPurpose string

const (
	SettlementPurposeDeposit         SettlementPurpose = "DEPOSIT"
	SettlementPurposeLoanInstallment SettlementPurpose = "LOAN_INSTALLMENT"
	SettlementPurposeLoanPayoff      SettlementPurpose = "LOAN_PAYOFF"
)

func (p SettlementPurpose) IsValid() bool {
	switch p {
	case SettlementPurposeDeposit, SettlementPurposeLoanInstallment, SettlementPurposeLoanPayoff:
		return true
	}
	return false
}

// TransactionType returns the journal type of the pending member entry.
func (p SettlementPurpose) TransactionType() TransactionType {
	switch p {
	case SettlementPurposeLoanInstallment:
		return TransactionLoanInstallment
	case SettlementPurposeLoanPayoff:
		return TransactionLoanPayment
	default:
		return TransactionDeposit
	}
}

// Direction returns the balance direction of the pending member entry.
func (p SettlementPurpose) Direction() Direction {
	if p == SettlementPurposeDeposit {
		return DirectionCredit
	}
	return DirectionDebit
}

// GatewayOutcome is the result reported by the gateway callback.
type GatewayOutcome string

const (
	GatewayOutcomeSucceeded GatewayOutcome = "succeeded"
	GatewayOutcomeFailed    GatewayOutcome = "failed"
)

// ParseGatewayOutcome converts raw callback input into a GatewayOutcome.
func ParseGatewayOutcome(value string) (GatewayOutcome, error) {
	switch GatewayOutcome(value) {
	case GatewayOutcomeSucceeded, GatewayOutcomeFailed:
		return GatewayOutcome(value), nil
	}
	return "", fmt.Errorf("invalid gateway outcome %q", value)
}
