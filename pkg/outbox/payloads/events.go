package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/cred30-backend/pkg/enums"
)

// MemberDepositedEvent reports money entering a member balance.
type MemberDepositedEvent struct {
	MemberID      uuid.UUID       `json:"member_id"`
	TransactionID uuid.UUID       `json:"transaction_id"`
	Amount        decimal.Decimal `json:"amount"`
	Reference     string          `json:"reference,omitempty"`
}

// WithdrawalRequestedEvent asks the payout collaborator to send money out.
type WithdrawalRequestedEvent struct {
	MemberID      uuid.UUID       `json:"member_id"`
	TransactionID uuid.UUID       `json:"transaction_id"`
	Amount        decimal.Decimal `json:"amount"`
}

type QuotasPurchasedEvent struct {
	MemberID  uuid.UUID       `json:"member_id"`
	QuotaIDs  []uuid.UUID     `json:"quota_ids"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Total     decimal.Decimal `json:"total"`
}

type QuotaRedeemedEvent struct {
	MemberID uuid.UUID       `json:"member_id"`
	QuotaID  uuid.UUID       `json:"quota_id"`
	Penalty  decimal.Decimal `json:"penalty"`
	Credited decimal.Decimal `json:"credited"`
}

type LoanDisbursedEvent struct {
	LoanID         uuid.UUID       `json:"loan_id"`
	MemberID       uuid.UUID       `json:"member_id"`
	Principal      decimal.Decimal `json:"principal"`
	TotalRepayment decimal.Decimal `json:"total_repayment"`
	Installments   int             `json:"installments"`
	DueDate        time.Time       `json:"due_date"`
}

type LoanPaymentRecordedEvent struct {
	LoanID                uuid.UUID        `json:"loan_id"`
	MemberID              uuid.UUID        `json:"member_id"`
	Amount                decimal.Decimal  `json:"amount"`
	TotalPaid             decimal.Decimal  `json:"total_paid"`
	PaidInstallmentsCount int              `json:"paid_installments_count"`
	Status                enums.LoanStatus `json:"status"`
}

type LoanOverdueEvent struct {
	LoanID    uuid.UUID       `json:"loan_id"`
	MemberID  uuid.UUID       `json:"member_id"`
	DueDate   time.Time       `json:"due_date"`
	Remaining decimal.Decimal `json:"remaining"`
}

type EscrowOrderEvent struct {
	OrderID       uuid.UUID                 `json:"order_id"`
	ListingID     uuid.UUID                 `json:"listing_id"`
	BuyerID       uuid.UUID                 `json:"buyer_id"`
	SellerID      uuid.UUID                 `json:"seller_id"`
	Amount        decimal.Decimal           `json:"amount"`
	SellerAmount  decimal.Decimal           `json:"seller_amount"`
	Status        enums.EscrowOrderStatus   `json:"status"`
	PaymentMethod enums.MarketPaymentMethod `json:"payment_method"`
	LoanID        *uuid.UUID                `json:"loan_id,omitempty"`
}

type ListingBoostedEvent struct {
	ListingID    uuid.UUID       `json:"listing_id"`
	SellerID     uuid.UUID       `json:"seller_id"`
	Fee          decimal.Decimal `json:"fee"`
	BoostedUntil time.Time       `json:"boosted_until"`
}

type ProposalClosedEvent struct {
	ProposalID uuid.UUID `json:"proposal_id"`
	YesVotes   int64     `json:"yes_votes"`
	NoVotes    int64     `json:"no_votes"`
}

// PaymentRequestedEvent is consumed by the gateway integration to start a charge.
type PaymentRequestedEvent struct {
	SettlementID uuid.UUID               `json:"settlement_id"`
	Reference    string                  `json:"reference"`
	MemberID     uuid.UUID               `json:"member_id"`
	LoanID       *uuid.UUID              `json:"loan_id,omitempty"`
	Purpose      enums.SettlementPurpose `json:"purpose"`
	Method       enums.PaymentMethod     `json:"method"`
	Amount       decimal.Decimal         `json:"amount"`
}

// PaymentStatusEvent reports a settlement reaching a terminal state.
type PaymentStatusEvent struct {
	SettlementID uuid.UUID              `json:"settlement_id"`
	Reference    string                 `json:"reference"`
	ExternalID   *string                `json:"external_id,omitempty"`
	MemberID     uuid.UUID              `json:"member_id"`
	Status       enums.SettlementStatus `json:"status"`
	Amount       decimal.Decimal        `json:"amount"`
	Applied      bool                   `json:"applied"`
	Reason       string                 `json:"reason,omitempty"`
}
