package enums

import "fmt"

// LoanStatus tracks the loan lifecycle.
type LoanStatus string

const (
	LoanPending  LoanStatus = "PENDING"
	LoanApproved LoanStatus = "APPROVED"
	LoanRejected LoanStatus = "REJECTED"
	LoanPaid     LoanStatus = "PAID"
)

var loanTransitions = map[LoanStatus][]LoanStatus{
	LoanPending:  {LoanApproved, LoanRejected},
	LoanApproved: {LoanPaid},
}

func (s LoanStatus) IsValid() bool {
	switch s {
	case LoanPending, LoanApproved, LoanRejected, LoanPaid:
		return true
	}
	return false
}

// IsTerminal reports whether the loan no longer counts as outstanding.
func (s LoanStatus) IsTerminal() bool {
	return s == LoanRejected || s == LoanPaid
}

func (s LoanStatus) CanTransitionTo(next LoanStatus) bool {
	for _, candidate := range loanTransitions[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

// OutstandingLoanStatuses lists the statuses that block borrowing and redemption.
func OutstandingLoanStatuses() []LoanStatus {
	return []LoanStatus{LoanPending, LoanApproved}
}

// ParseLoanStatus converts raw input into a LoanStatus.
func ParseLoanStatus(value string) (LoanStatus, error) {
	s := LoanStatus(value)
	if !s.IsValid() {
		return "", fmt.Errorf("invalid loan status %q", value)
	}
	return s, nil
}
