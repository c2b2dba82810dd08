package settlements

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/cred30-backend/pkg/db/models"
	"github.com/angelmondragon/cred30-backend/pkg/enums"
)

// Callback is the gateway's report on one settlement.
type Callback struct {
	Reference  string               `json:"reference" validate:"required"`
	ExternalID string               `json:"external_id" validate:"required"`
	Outcome    enums.GatewayOutcome `json:"outcome" validate:"required,oneof=succeeded failed"`
	Reason     string               `json:"reason"`
}

// DepositInput asks the gateway to collect money into a member balance.
type DepositInput struct {
	MemberID uuid.UUID
	Method   enums.PaymentMethod
	Amount   decimal.Decimal
}

type SettlementDTO struct {
	ID            uuid.UUID               `json:"id"`
	Reference     string                  `json:"reference"`
	ExternalID    *string                 `json:"external_id,omitempty"`
	LoanID        *uuid.UUID              `json:"loan_id,omitempty"`
	Purpose       enums.SettlementPurpose `json:"purpose"`
	Method        enums.PaymentMethod     `json:"method"`
	Amount        decimal.Decimal         `json:"amount"`
	Status        enums.SettlementStatus  `json:"status"`
	FailureReason *string                 `json:"failure_reason,omitempty"`
	SettledAt     *time.Time              `json:"settled_at,omitempty"`
	CreatedAt     time.Time               `json:"created_at"`
}

func toDTO(s models.Settlement) *SettlementDTO {
	return &SettlementDTO{
		ID:            s.ID,
		Reference:     s.Reference,
		ExternalID:    s.ExternalID,
		LoanID:        s.LoanID,
		Purpose:       s.Purpose,
		Method:        s.Method,
		Amount:        s.Amount,
		Status:        s.Status,
		FailureReason: s.FailureReason,
		SettledAt:     s.SettledAt,
		CreatedAt:     s.CreatedAt,
	}
}
