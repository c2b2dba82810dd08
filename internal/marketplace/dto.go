package marketplace

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/cred30-backend/pkg/db/models"
	"github.com/angelmondragon/cred30-backend/pkg/enums"
	"github.com/angelmondragon/cred30-backend/pkg/types"
)

// ListingDTO is the transport shape for a listing.
type ListingDTO struct {
	ID           uuid.UUID           `json:"id"`
	SellerID     uuid.UUID           `json:"seller_id"`
	Title        string              `json:"title"`
	Description  *string             `json:"description,omitempty"`
	Price        decimal.Decimal     `json:"price"`
	Status       enums.ListingStatus `json:"status"`
	Boosted      bool                `json:"boosted"`
	BoostedUntil *time.Time          `json:"boosted_until,omitempty"`
	CreatedAt    time.Time           `json:"created_at"`
}

// OrderDTO is the transport shape for an escrow order.
type OrderDTO struct {
	ID            uuid.UUID                 `json:"id"`
	ListingID     uuid.UUID                 `json:"listing_id"`
	BuyerID       uuid.UUID                 `json:"buyer_id"`
	SellerID      uuid.UUID                 `json:"seller_id"`
	Amount        decimal.Decimal           `json:"amount"`
	SellerAmount  decimal.Decimal           `json:"seller_amount"`
	FeeAmount     decimal.Decimal           `json:"fee_amount"`
	Status        enums.EscrowOrderStatus   `json:"status"`
	PaymentMethod enums.MarketPaymentMethod `json:"payment_method"`
	Installments  *int                      `json:"installments,omitempty"`
	LoanID        *uuid.UUID                `json:"loan_id,omitempty"`
	DeliveryInfo  *types.DeliveryInfo       `json:"delivery_info,omitempty"`
	CompletedAt   *time.Time                `json:"completed_at,omitempty"`
	CreatedAt     time.Time                 `json:"created_at"`
}

// CreateListingInput offers a new item for sale.
type CreateListingInput struct {
	SellerID    uuid.UUID
	Title       string
	Description *string
	Price       decimal.Decimal
}

// BuyInput buys a listing. Installments is only read by BuyOnCredit.
type BuyInput struct {
	ListingID    uuid.UUID
	BuyerID      uuid.UUID
	Installments int
	DeliveryInfo *types.DeliveryInfo
}

func toListingDTO(listing models.Listing, now time.Time) ListingDTO {
	return ListingDTO{
		ID:           listing.ID,
		SellerID:     listing.SellerID,
		Title:        listing.Title,
		Description:  listing.Description,
		Price:        listing.Price,
		Status:       listing.Status,
		Boosted:      listing.BoostedUntil != nil && listing.BoostedUntil.After(now),
		BoostedUntil: listing.BoostedUntil,
		CreatedAt:    listing.CreatedAt,
	}
}

func toOrderDTO(order models.EscrowOrder) *OrderDTO {
	return &OrderDTO{
		ID:            order.ID,
		ListingID:     order.ListingID,
		BuyerID:       order.BuyerID,
		SellerID:      order.SellerID,
		Amount:        order.Amount,
		SellerAmount:  order.SellerAmount,
		FeeAmount:     order.FeeAmount,
		Status:        order.Status,
		PaymentMethod: order.PaymentMethod,
		Installments:  order.Installments,
		LoanID:        order.LoanID,
		DeliveryInfo:  order.DeliveryInfo,
		CompletedAt:   order.CompletedAt,
		CreatedAt:     order.CreatedAt,
	}
}
