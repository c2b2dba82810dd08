package middleware

import (
	"net/http"

	"github.com/angelmondragon/cred30-backend/api/responses"
	"github.com/angelmondragon/cred30-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/cred30-backend/pkg/errors"
	"github.com/angelmondragon/cred30-backend/pkg/logger"
)

// RequireRole gates a route group on the token's role claim. A request with
// no role at all never passed Auth and gets 401, not 403.
func RequireRole(role enums.MemberRole, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := RoleFromContext(r.Context())
			switch {
			case got == "":
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required"))
				return
			case got != string(role):
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, string(role)+" role required").
					WithDetails(map[string]any{"required_role": string(role)}))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
