package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/cred30-backend/api/responses"
	"github.com/angelmondragon/cred30-backend/api/validators"
	"github.com/angelmondragon/cred30-backend/internal/ledger"
	"github.com/angelmondragon/cred30-backend/internal/members"
	"github.com/angelmondragon/cred30-backend/pkg/db/models"
	"github.com/angelmondragon/cred30-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/cred30-backend/pkg/errors"
	"github.com/angelmondragon/cred30-backend/pkg/logger"
	"github.com/angelmondragon/cred30-backend/pkg/pagination"
)

type transactionResponse struct {
	ID            uuid.UUID               `json:"id"`
	Type          enums.TransactionType   `json:"type"`
	Direction     enums.Direction         `json:"direction"`
	Amount        decimal.Decimal         `json:"amount"`
	Status        enums.TransactionStatus `json:"status"`
	BalanceBefore *decimal.Decimal        `json:"balance_before,omitempty"`
	BalanceAfter  *decimal.Decimal        `json:"balance_after,omitempty"`
	ReferenceType *string                 `json:"reference_type,omitempty"`
	ReferenceID   *uuid.UUID              `json:"reference_id,omitempty"`
	Description   *string                 `json:"description,omitempty"`
	RejectReason  *string                 `json:"reject_reason,omitempty"`
	CreatedAt     time.Time               `json:"created_at"`
	ResolvedAt    *time.Time              `json:"resolved_at,omitempty"`
}

func transactionResponseFromModel(m *models.Transaction) transactionResponse {
	return transactionResponse{
		ID:            m.ID,
		Type:          m.Type,
		Direction:     m.Direction,
		Amount:        m.Amount,
		Status:        m.Status,
		BalanceBefore: m.BalanceBefore,
		BalanceAfter:  m.BalanceAfter,
		ReferenceType: m.ReferenceType,
		ReferenceID:   m.ReferenceID,
		Description:   m.Description,
		RejectReason:  m.RejectReason,
		CreatedAt:     m.CreatedAt,
		ResolvedAt:    m.ResolvedAt,
	}
}

type historyResponse struct {
	Items      []transactionResponse `json:"items"`
	NextCursor string                `json:"next_cursor,omitempty"`
}

// MemberMe returns the caller's account with its cached balance.
func MemberMe(svc members.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		memberID, err := memberIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		member, err := svc.Get(r.Context(), memberID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, member)
	}
}

type withdrawRequest struct {
	Amount string `json:"amount" validate:"required"`
}

// MemberWithdraw moves money out of the caller's balance.
func MemberWithdraw(svc members.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		memberID, err := memberIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload withdrawRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		amount, err := validators.ParseAmount(payload.Amount)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		txn, err := svc.Withdraw(r.Context(), members.WithdrawInput{MemberID: memberID, Amount: amount})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, transactionResponseFromModel(txn))
	}
}

// MemberTransactions pages through the caller's journal, newest first.
func MemberTransactions(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		memberID, err := memberIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		page, err := svc.History(r.Context(), memberID, pagination.Params{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := historyResponse{Items: make([]transactionResponse, len(page.Items)), NextCursor: page.NextCursor}
		for i := range page.Items {
			out.Items[i] = transactionResponseFromModel(&page.Items[i])
		}
		responses.WriteSuccess(w, out)
	}
}

type registerMemberRequest struct {
	ID          string `json:"id" validate:"required,uuid"`
	DisplayName string `json:"display_name" validate:"required,max=120"`
	Score       int    `json:"score" validate:"min=0,max=1000"`
}

// AdminRegisterMember mirrors an identity created by the identity service.
func AdminRegisterMember(svc members.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload registerMemberRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		id, err := uuid.Parse(payload.ID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid id"))
			return
		}
		member, err := svc.Register(r.Context(), members.RegisterInput{
			ID:          id,
			DisplayName: validators.SanitizeString(payload.DisplayName, 120),
			Score:       payload.Score,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, member)
	}
}

type adminDepositRequest struct {
	Amount    string `json:"amount" validate:"required"`
	Reference string `json:"reference" validate:"required,max=120"`
}

// AdminMemberDeposit credits money that arrived outside the gateway flow.
func AdminMemberDeposit(svc members.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		adminID, err := memberIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		memberID, err := validators.ParseUUIDParam(r, "memberId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload adminDepositRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		amount, err := validators.ParseAmount(payload.Amount)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		txn, err := svc.Deposit(r.Context(), members.DepositInput{
			MemberID:  memberID,
			Amount:    amount,
			Reference: validators.SanitizeString(payload.Reference, 120),
			ActorID:   adminID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, transactionResponseFromModel(txn))
	}
}

type scoreRequest struct {
	Score *int `json:"score" validate:"required,min=0,max=1000"`
}

func AdminMemberScore(svc members.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		memberID, err := validators.ParseUUIDParam(r, "memberId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload scoreRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.UpdateScore(r.Context(), memberID, *payload.Score); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"member_id": memberID, "score": *payload.Score})
	}
}

type securityLockRequest struct {
	Until *time.Time `json:"until"`
}

// AdminSecurityLock blocks withdrawals until the given time; a null until clears it.
func AdminSecurityLock(svc members.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		memberID, err := validators.ParseUUIDParam(r, "memberId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload securityLockRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.SetSecurityLock(r.Context(), memberID, payload.Until); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"member_id": memberID, "security_lock_until": payload.Until})
	}
}
