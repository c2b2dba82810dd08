package controllers

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/cred30-backend/api/responses"
	"github.com/angelmondragon/cred30-backend/api/validators"
	"github.com/angelmondragon/cred30-backend/internal/governance"
	"github.com/angelmondragon/cred30-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/cred30-backend/pkg/errors"
	"github.com/angelmondragon/cred30-backend/pkg/logger"
)

func ProposalList(svc governance.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := enums.ProposalStatus(strings.ToUpper(trimmedQuery(r, "status")))
		proposals, err := svc.ListProposals(r.Context(), status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, proposals)
	}
}

func ProposalGet(svc governance.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		proposalID, err := validators.ParseUUIDParam(r, "proposalId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		proposal, err := svc.GetProposal(r.Context(), proposalID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, proposal)
	}
}

type voteRequest struct {
	Choice string `json:"choice" validate:"required,oneof=YES NO"`
}

// ProposalVote casts the caller's quota-weighted vote.
func ProposalVote(svc governance.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		memberID, err := memberIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		proposalID, err := validators.ParseUUIDParam(r, "proposalId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload voteRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		choice, err := enums.ParseVoteChoice(payload.Choice)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid choice"))
			return
		}
		vote, err := svc.CastVote(r.Context(), governance.CastVoteInput{
			ProposalID: proposalID,
			MemberID:   memberID,
			Choice:     choice,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, vote)
	}
}

type createProposalRequest struct {
	Title       string `json:"title" validate:"required,min=3,max=200"`
	Description string `json:"description" validate:"max=5000"`
}

func AdminProposalCreate(svc governance.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		adminID, err := memberIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload createProposalRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		proposal, err := svc.CreateProposal(r.Context(), governance.CreateProposalInput{
			Title:       validators.SanitizeString(payload.Title, 200),
			Description: validators.SanitizeString(payload.Description, 5000),
			CreatedBy:   adminID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, proposal)
	}
}

func AdminProposalClose(svc governance.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		adminID, err := memberIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		proposalID, err := validators.ParseUUIDParam(r, "proposalId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		proposal, err := svc.CloseProposal(r.Context(), proposalID, adminID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, proposal)
	}
}
