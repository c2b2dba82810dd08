package middleware

import (
	"fmt"
	"net/http"

	"github.com/angelmondragon/cred30-backend/api/responses"
	pkgerrors "github.com/angelmondragon/cred30-backend/pkg/errors"
	"github.com/angelmondragon/cred30-backend/pkg/logger"
)

// Recoverer turns a panic into a 500 envelope and logs the route, member and
// idempotency key of the failed request.
func Recoverer(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				err := fmt.Errorf("panic: %v", rec)
				ctx := r.Context()
				if logg != nil {
					fields := map[string]any{
						"panic":  rec,
						"method": r.Method,
						"route":  routePattern(r),
					}
					if key := r.Header.Get(idempotencyHeader); key != "" {
						fields["idempotency_key"] = key
					}
					if memberID := MemberIDFromContext(ctx); memberID != "" {
						fields["member_id"] = memberID
					}
					ctx = logg.WithFields(ctx, fields)
					logg.Error(ctx, "request.panic", err)
				}
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "unexpected failure"))
			}()
			next.ServeHTTP(w, r)
		})
	}
}
