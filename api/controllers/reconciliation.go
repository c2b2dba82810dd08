package controllers

import (
	"net/http"

	"github.com/angelmondragon/cred30-backend/api/responses"
	"github.com/angelmondragon/cred30-backend/api/validators"
	"github.com/angelmondragon/cred30-backend/internal/ledger"
	"github.com/angelmondragon/cred30-backend/pkg/logger"
)

type reconciliationReport struct {
	Consistent bool                    `json:"consistent"`
	Mismatches []ledger.Reconciliation `json:"mismatches"`
}

// AdminReconcileAll compares every cached balance with its journal.
func AdminReconcileAll(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mismatches, err := svc.ReconcileAll(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if mismatches == nil {
			mismatches = []ledger.Reconciliation{}
		}
		responses.WriteSuccess(w, reconciliationReport{Consistent: len(mismatches) == 0, Mismatches: mismatches})
	}
}

func AdminReconcileMember(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		memberID, err := validators.ParseUUIDParam(r, "memberId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.Reconcile(r.Context(), memberID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
