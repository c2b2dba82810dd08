package credit

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/cred30-backend/pkg/db/models"
	"github.com/angelmondragon/cred30-backend/pkg/enums"
)

// LoanDTO is the transport shape for a loan with its derived fields.
type LoanDTO struct {
	ID                    uuid.UUID        `json:"id"`
	MemberID              uuid.UUID        `json:"member_id"`
	Principal             decimal.Decimal  `json:"principal"`
	InterestRate          decimal.Decimal  `json:"interest_rate"`
	Installments          int              `json:"installments"`
	TotalRepayment        decimal.Decimal  `json:"total_repayment"`
	InstallmentValue      decimal.Decimal  `json:"installment_value"`
	LastInstallment       decimal.Decimal  `json:"last_installment"`
	Status                enums.LoanStatus `json:"status"`
	DueDate               *time.Time       `json:"due_date,omitempty"`
	TotalPaid             decimal.Decimal  `json:"total_paid"`
	PaidInstallmentsCount int              `json:"paid_installments_count"`
	Remaining             decimal.Decimal  `json:"remaining"`
	Overdue               bool             `json:"overdue"`
	ApprovedAt            *time.Time       `json:"approved_at,omitempty"`
	PaidAt                *time.Time       `json:"paid_at,omitempty"`
	CreatedAt             time.Time        `json:"created_at"`
}

// Limit is the answer to how much a member can still borrow.
type Limit struct {
	TotalLimit     decimal.Decimal `json:"total_limit"`
	ActiveDebt     decimal.Decimal `json:"active_debt"`
	RemainingLimit decimal.Decimal `json:"remaining_limit"`
	ActiveQuotas   int64           `json:"active_quotas"`
}

// RequestInput asks for a new loan.
type RequestInput struct {
	MemberID     uuid.UUID
	Principal    decimal.Decimal
	Installments int
}

// PaymentInput pays part of a loan. Amount is ignored by PayFull.
type PaymentInput struct {
	LoanID   uuid.UUID
	MemberID uuid.UUID
	Amount   decimal.Decimal
	Method   enums.PaymentMethod
}

// PendingSettlement describes an external payment awaiting the gateway.
type PendingSettlement struct {
	ID        uuid.UUID              `json:"id"`
	Reference string                 `json:"reference"`
	Status    enums.SettlementStatus `json:"status"`
	Method    enums.PaymentMethod    `json:"method"`
	Amount    decimal.Decimal        `json:"amount"`
}

// PaymentResult carries either the applied ledger entry or the pending settlement.
type PaymentResult struct {
	Loan          *LoanDTO           `json:"loan"`
	TransactionID *uuid.UUID         `json:"transaction_id,omitempty"`
	Settlement    *PendingSettlement `json:"settlement,omitempty"`
}

func toDTO(loan models.Loan, now time.Time) *LoanDTO {
	return &LoanDTO{
		ID:                    loan.ID,
		MemberID:              loan.MemberID,
		Principal:             loan.Principal,
		InterestRate:          loan.InterestRate,
		Installments:          loan.Installments,
		TotalRepayment:        loan.TotalRepayment,
		InstallmentValue:      loan.InstallmentValue,
		LastInstallment:       lastInstallment(loan.TotalRepayment, loan.InstallmentValue, loan.Installments),
		Status:                loan.Status,
		DueDate:               loan.DueDate,
		TotalPaid:             loan.TotalPaid,
		PaidInstallmentsCount: loan.PaidInstallmentsCount,
		Remaining:             loan.Remaining(),
		Overdue:               IsOverdue(loan, now),
		ApprovedAt:            loan.ApprovedAt,
		PaidAt:                loan.PaidAt,
		CreatedAt:             loan.CreatedAt,
	}
}

func toPendingSettlement(s *models.Settlement) *PendingSettlement {
	return &PendingSettlement{
		ID:        s.ID,
		Reference: s.Reference,
		Status:    s.Status,
		Method:    s.Method,
		Amount:    s.Amount,
	}
}
