package controllers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/angelmondragon/cred30-backend/api/responses"
	"github.com/angelmondragon/cred30-backend/api/validators"
	"github.com/angelmondragon/cred30-backend/internal/credit"
	"github.com/angelmondragon/cred30-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/cred30-backend/pkg/errors"
	"github.com/angelmondragon/cred30-backend/pkg/logger"
)

// LoanLimit reports how much more the caller may borrow.
func LoanLimit(svc credit.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		memberID, err := memberIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := svc.AvailableLimit(r.Context(), memberID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, limit)
	}
}

func LoanList(svc credit.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		memberID, err := memberIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		loans, err := svc.List(r.Context(), memberID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, loans)
	}
}

func LoanGet(svc credit.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		memberID, err := memberIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		loanID, err := validators.ParseUUIDParam(r, "loanId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		loan, err := svc.Get(r.Context(), memberID, loanID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, loan)
	}
}

type loanRequest struct {
	Amount       string `json:"amount" validate:"required"`
	Installments int    `json:"installments" validate:"required,min=1"`
}

// LoanRequest opens a collateralised loan for the caller.
func LoanRequest(svc credit.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		memberID, err := memberIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload loanRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		principal, err := validators.ParseAmount(payload.Amount)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		loan, err := svc.RequestLoan(r.Context(), credit.RequestInput{
			MemberID:     memberID,
			Principal:    principal,
			Installments: payload.Installments,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, loan)
	}
}

type loanPaymentRequest struct {
	Amount string `json:"amount"`
	Method string `json:"method" validate:"required,oneof=BALANCE PIX CARD"`
}

func (p loanPaymentRequest) toInput(r *http.Request, requireAmount bool) (credit.PaymentInput, error) {
	memberID, err := memberIDFromRequest(r)
	if err != nil {
		return credit.PaymentInput{}, err
	}
	loanID, err := validators.ParseUUIDParam(r, "loanId")
	if err != nil {
		return credit.PaymentInput{}, err
	}
	method, err := enums.ParsePaymentMethod(strings.TrimSpace(p.Method))
	if err != nil {
		return credit.PaymentInput{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment method")
	}
	input := credit.PaymentInput{LoanID: loanID, MemberID: memberID, Method: method}
	if requireAmount {
		amount, err := validators.ParseAmount(p.Amount)
		if err != nil {
			return credit.PaymentInput{}, err
		}
		input.Amount = amount
	}
	return input, nil
}

// LoanPayInstallment pays part of a loan. Gateway methods answer 202 with the
// pending settlement; the balance path answers 200 with the updated loan.
func LoanPayInstallment(svc credit.Service, logg *logger.Logger) http.HandlerFunc {
	return loanPayment(logg, true, svc.PayInstallment)
}

// LoanPayFull pays whatever remains on a loan.
func LoanPayFull(svc credit.Service, logg *logger.Logger) http.HandlerFunc {
	return loanPayment(logg, false, svc.PayFull)
}

func loanPayment(logg *logger.Logger, requireAmount bool, pay func(ctx context.Context, input credit.PaymentInput) (*credit.PaymentResult, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload loanPaymentRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input, err := payload.toInput(r, requireAmount)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := pay(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status := http.StatusOK
		if result.Settlement != nil {
			status = http.StatusAccepted
		}
		responses.WriteSuccessStatus(w, status, result)
	}
}

// AdminOverdueLoans lists approved loans past their due date.
func AdminOverdueLoans(svc credit.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		loans, err := svc.ListOverdue(r.Context(), time.Now().UTC())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, loans)
	}
}
