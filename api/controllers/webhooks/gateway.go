package webhooks

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/angelmondragon/cred30-backend/api/responses"
	"github.com/angelmondragon/cred30-backend/internal/settlements"
	pkgerrors "github.com/angelmondragon/cred30-backend/pkg/errors"
	"github.com/angelmondragon/cred30-backend/pkg/logger"
)

type GatewayCallbackService interface {
	HandleCallback(ctx context.Context, callback settlements.Callback) error
}

type gatewayWebhookGuard interface {
	CheckAndMark(ctx context.Context, externalID string) (bool, error)
	Delete(ctx context.Context, externalID string) error
}

const maxCallbackBytes = 64 << 10

// GatewayWebhook settles pending gateway payments reported by the payment provider.
func GatewayWebhook(svc GatewayCallbackService, secret string, guard gatewayWebhookGuard, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "settlement service unavailable"))
			return
		}
		if guard == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "idempotency guard unavailable"))
			return
		}

		payload, err := io.ReadAll(io.LimitReader(r.Body, maxCallbackBytes))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		sigHeader := r.Header.Get(settlements.SignatureHeader)
		if sigHeader == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "gateway signature missing"))
			return
		}
		if !settlements.VerifySignature(secret, payload, sigHeader) {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid gateway signature"))
			return
		}

		var callback settlements.Callback
		if err := json.Unmarshal(payload, &callback); err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode callback"))
			return
		}

		externalID := strings.TrimSpace(callback.ExternalID)
		if externalID == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "external_id is required"))
			return
		}
		callback.ExternalID = externalID

		alreadyProcessed, err := guard.CheckAndMark(ctx, externalID)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
			return
		}
		if alreadyProcessed {
			responses.WriteSuccess(w, nil)
			return
		}

		if err := svc.HandleCallback(ctx, callback); err != nil {
			_ = guard.Delete(ctx, externalID)
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if logg != nil {
			logCtx := logg.WithFields(ctx, map[string]any{
				"reference":   callback.Reference,
				"external_id": externalID,
				"outcome":     string(callback.Outcome),
			})
			logg.Info(logCtx, "gateway.callback.processed")
		}
		responses.WriteSuccess(w, nil)
	}
}
