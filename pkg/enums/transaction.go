package enums

import "fmt"

// TransactionType enumerates journal entry kinds.
type TransactionType string

const (
	TransactionDeposit         TransactionType = "DEPOSIT"
	TransactionWithdrawal      TransactionType = "WITHDRAWAL"
	TransactionQuotaPurchase   TransactionType = "QUOTA_PURCHASE"
	TransactionQuotaSell       TransactionType = "QUOTA_SELL"
	TransactionLoanReceived    TransactionType = "LOAN_RECEIVED"
	TransactionLoanPayment     TransactionType = "LOAN_PAYMENT"
	TransactionLoanInstallment TransactionType = "LOAN_INSTALLMENT"
	TransactionDividend        TransactionType = "DIVIDEND"
	TransactionReferralBonus   TransactionType = "REFERRAL_BONUS"
	TransactionMarketPurchase  TransactionType = "MARKET_PURCHASE"
	TransactionEscrowRelease   TransactionType = "ESCROW_RELEASE"
	TransactionListingBoost    TransactionType = "LISTING_BOOST"
)

var validTransactionTypes = []TransactionType{
	TransactionDeposit,
	TransactionWithdrawal,
	TransactionQuotaPurchase,
	TransactionQuotaSell,
	TransactionLoanReceived,
	TransactionLoanPayment,
	TransactionLoanInstallment,
	TransactionDividend,
	TransactionReferralBonus,
	TransactionMarketPurchase,
	TransactionEscrowRelease,
	TransactionListingBoost,
}

func (t TransactionType) String() string {
	return string(t)
}

// IsValid reports whether the value is a known TransactionType.
func (t TransactionType) IsValid() bool {
	for _, candidate := range validTransactionTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseTransactionType converts raw input into a TransactionType.
func ParseTransactionType(value string) (TransactionType, error) {
	for _, candidate := range validTransactionTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid transaction type %q", value)
}

// TransactionStatus tracks whether a journal entry affects the balance.
type TransactionStatus string

const (
	TransactionPending  TransactionStatus = "PENDING"
	TransactionApproved TransactionStatus = "APPROVED"
	TransactionRejected TransactionStatus = "REJECTED"
)

var validTransactionStatuses = []TransactionStatus{
	TransactionPending,
	TransactionApproved,
	TransactionRejected,
}

func (s TransactionStatus) IsValid() bool {
	for _, candidate := range validTransactionStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the entry can no longer change.
func (s TransactionStatus) IsTerminal() bool {
	return s == TransactionApproved || s == TransactionRejected
}

// Direction is the sign of a journal entry relative to the member balance.
type Direction string

const (
	DirectionCredit Direction = "credit"
	DirectionDebit  Direction = "debit"
)

func (d Direction) IsValid() bool {
	return d == DirectionCredit || d == DirectionDebit
}

// ParseDirection converts raw input into a Direction.
func ParseDirection(value string) (Direction, error) {
	d := Direction(value)
	if !d.IsValid() {
		return "", fmt.Errorf("invalid direction %q", value)
	}
	return d, nil
}
