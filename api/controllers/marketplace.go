package controllers

import (
	"net/http"

	"github.com/angelmondragon/cred30-backend/api/responses"
	"github.com/angelmondragon/cred30-backend/api/validators"
	"github.com/angelmondragon/cred30-backend/internal/marketplace"
	"github.com/angelmondragon/cred30-backend/pkg/logger"
	"github.com/angelmondragon/cred30-backend/pkg/pagination"
	"github.com/angelmondragon/cred30-backend/pkg/types"
)

type createListingRequest struct {
	Title       string  `json:"title" validate:"required,min=3,max=120"`
	Description *string `json:"description" validate:"omitempty,max=2000"`
	Price       string  `json:"price" validate:"required"`
}

func ListingCreate(svc marketplace.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sellerID, err := memberIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload createListingRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		price, err := validators.ParseAmount(payload.Price)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var description *string
		if payload.Description != nil {
			trimmed := validators.SanitizeString(*payload.Description, 2000)
			if trimmed != "" {
				description = &trimmed
			}
		}
		listing, err := svc.CreateListing(r.Context(), marketplace.CreateListingInput{
			SellerID:    sellerID,
			Title:       validators.SanitizeString(payload.Title, 120),
			Description: description,
			Price:       price,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, listing)
	}
}

func ListingList(svc marketplace.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		listings, err := svc.ListListings(r.Context(), limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, listings)
	}
}

func ListingGet(svc marketplace.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		listingID, err := validators.ParseUUIDParam(r, "listingId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		listing, err := svc.GetListing(r.Context(), listingID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, listing)
	}
}

type buyRequest struct {
	DeliveryInfo *types.DeliveryInfo `json:"delivery_info" validate:"omitempty"`
}

type buyOnCreditRequest struct {
	Installments int                 `json:"installments" validate:"required,min=1"`
	DeliveryInfo *types.DeliveryInfo `json:"delivery_info" validate:"omitempty"`
}

// ListingBuy pays for a listing from the buyer's balance and holds it in escrow.
func ListingBuy(svc marketplace.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		buyerID, err := memberIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		listingID, err := validators.ParseUUIDParam(r, "listingId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload buyRequest
		if err := validators.DecodeOptionalJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := svc.Buy(r.Context(), marketplace.BuyInput{
			ListingID:    listingID,
			BuyerID:      buyerID,
			DeliveryInfo: payload.DeliveryInfo,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, order)
	}
}

// ListingBuyOnCredit finances a listing through a cooperative loan.
func ListingBuyOnCredit(svc marketplace.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		buyerID, err := memberIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		listingID, err := validators.ParseUUIDParam(r, "listingId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload buyOnCreditRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := svc.BuyOnCredit(r.Context(), marketplace.BuyInput{
			ListingID:    listingID,
			BuyerID:      buyerID,
			Installments: payload.Installments,
			DeliveryInfo: payload.DeliveryInfo,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, order)
	}
}

func ListingBoost(svc marketplace.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sellerID, err := memberIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		listingID, err := validators.ParseUUIDParam(r, "listingId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		listing, err := svc.BoostListing(r.Context(), listingID, sellerID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, listing)
	}
}

func OrderList(svc marketplace.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		memberID, err := memberIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orders, err := svc.ListOrders(r.Context(), memberID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, orders)
	}
}

func OrderGet(svc marketplace.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		memberID, err := memberIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := svc.GetOrder(r.Context(), memberID, orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}

// OrderConfirm releases escrow to the seller once the buyer has the goods.
func OrderConfirm(svc marketplace.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		buyerID, err := memberIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := svc.ConfirmReceipt(r.Context(), orderID, buyerID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}
