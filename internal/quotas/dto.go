package quotas

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/cred30-backend/pkg/db/models"
	"github.com/angelmondragon/cred30-backend/pkg/enums"
)

// QuotaDTO includes the redemption preview so clients never compute penalties themselves.
type QuotaDTO struct {
	ID               uuid.UUID         `json:"id"`
	PurchasePrice    decimal.Decimal   `json:"purchase_price"`
	CurrentValue     decimal.Decimal   `json:"current_value"`
	PurchaseDate     time.Time         `json:"purchase_date"`
	Status           enums.QuotaStatus `json:"status"`
	SoldAt           *time.Time        `json:"sold_at,omitempty"`
	RedemptionCredit decimal.Decimal   `json:"redemption_credit"`
	Penalty          decimal.Decimal   `json:"penalty"`
}

// Summary aggregates a member's ACTIVE quotas.
type Summary struct {
	Count int64           `json:"count"`
	Value decimal.Decimal `json:"value"`
}

// PurchaseInput buys Quantity quotas at UnitPrice each.
type PurchaseInput struct {
	MemberID  uuid.UUID
	Quantity  int
	UnitPrice decimal.Decimal
}

// PurchaseResult is the outcome of a purchase.
type PurchaseResult struct {
	Quotas        []QuotaDTO      `json:"quotas"`
	Total         decimal.Decimal `json:"total"`
	TransactionID uuid.UUID       `json:"transaction_id"`
}

// RedeemedQuota is one line of a redemption.
type RedeemedQuota struct {
	QuotaID  uuid.UUID       `json:"quota_id"`
	Penalty  decimal.Decimal `json:"penalty"`
	Credited decimal.Decimal `json:"credited"`
}

// RedeemResult totals a redemption of one or more quotas.
type RedeemResult struct {
	Items         []RedeemedQuota `json:"items"`
	TotalPenalty  decimal.Decimal `json:"total_penalty"`
	TotalCredited decimal.Decimal `json:"total_credited"`
}

func toDTO(quota models.Quota, now time.Time, policy Policy) QuotaDTO {
	dto := QuotaDTO{
		ID:            quota.ID,
		PurchasePrice: quota.PurchasePrice,
		CurrentValue:  quota.CurrentValue,
		PurchaseDate:  quota.PurchaseDate,
		Status:        quota.Status,
		SoldAt:        quota.SoldAt,
	}
	if quota.Status == enums.QuotaActive {
		dto.Penalty = EarlyRedemptionPenalty(quota, now, policy)
		dto.RedemptionCredit = RedemptionCredit(quota, now, policy)
	}
	return dto
}
