package members

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/cred30-backend/pkg/db/models"
)

// MemberDTO is the transport shape for a member account.
type MemberDTO struct {
	ID                uuid.UUID       `json:"id"`
	DisplayName       string          `json:"display_name"`
	Balance           decimal.Decimal `json:"balance"`
	Score             int             `json:"score"`
	SecurityLockUntil *time.Time      `json:"security_lock_until,omitempty"`
	ActiveQuotas      int64           `json:"active_quotas"`
	CreatedAt         time.Time       `json:"created_at"`
}

// RegisterInput carries the identity feed's view of a new member.
type RegisterInput struct {
	ID          uuid.UUID
	DisplayName string
	Score       int
}

// DepositInput records money that already arrived outside the ledger.
type DepositInput struct {
	MemberID  uuid.UUID
	Amount    decimal.Decimal
	Reference string
	ActorID   uuid.UUID
}

// WithdrawInput asks for money to leave a member balance.
type WithdrawInput struct {
	MemberID uuid.UUID
	Amount   decimal.Decimal
}

func toDTO(member *models.Member, activeQuotas int64) *MemberDTO {
	return &MemberDTO{
		ID:                member.ID,
		DisplayName:       member.DisplayName,
		Balance:           member.Balance,
		Score:             member.Score,
		SecurityLockUntil: member.SecurityLockUntil,
		ActiveQuotas:      activeQuotas,
		CreatedAt:         member.CreatedAt,
	}
}
