package controllers

import (
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/cred30-backend/api/responses"
	"github.com/angelmondragon/cred30-backend/api/validators"
	"github.com/angelmondragon/cred30-backend/internal/quotas"
	pkgerrors "github.com/angelmondragon/cred30-backend/pkg/errors"
	"github.com/angelmondragon/cred30-backend/pkg/logger"
)

func QuotaList(svc quotas.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		memberID, err := memberIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		items, err := svc.List(r.Context(), memberID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, items)
	}
}

type quotaPurchaseRequest struct {
	Quantity  int    `json:"quantity" validate:"required,min=1,max=1000"`
	UnitPrice string `json:"unit_price" validate:"required"`
}

// QuotaPurchase buys quotas from the caller's balance.
func QuotaPurchase(svc quotas.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		memberID, err := memberIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload quotaPurchaseRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		unitPrice, err := validators.ParseAmount(payload.UnitPrice)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.Purchase(r.Context(), quotas.PurchaseInput{
			MemberID:  memberID,
			Quantity:  payload.Quantity,
			UnitPrice: unitPrice,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

func QuotaRedeem(svc quotas.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		memberID, err := memberIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		quotaID, err := validators.ParseUUIDParam(r, "quotaId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.Redeem(r.Context(), memberID, quotaID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func QuotaRedeemAll(svc quotas.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		memberID, err := memberIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.RedeemAll(r.Context(), memberID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

type valuationRequest struct {
	CurrentValue string `json:"current_value" validate:"required"`
}

// AdminQuotaValuation records the external valuation feed for one quota.
func AdminQuotaValuation(svc quotas.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		quotaID, err := validators.ParseUUIDParam(r, "quotaId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload valuationRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		// zero is a legal valuation, so the amount parser does not apply
		value, err := decimal.NewFromString(strings.TrimSpace(payload.CurrentValue))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeInvalidAmount, err, "current_value is not a number"))
			return
		}
		quota, err := svc.ApplyValuation(r.Context(), quotaID, value)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, quota)
	}
}
