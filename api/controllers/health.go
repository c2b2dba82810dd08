package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/angelmondragon/cred30-backend/api/responses"
	"github.com/angelmondragon/cred30-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/cred30-backend/pkg/errors"
	"github.com/angelmondragon/cred30-backend/pkg/logger"
)

const envHeader = "X-Cred30-Env"

// HealthPinger is any dependency the readiness check pings.
type HealthPinger interface {
	Ping(ctx context.Context) error
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady pings every dependency and reports the ones that failed.
func HealthReady(cfg *config.Config, deps map[string]HealthPinger, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)

		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		failed := map[string]string{}
		for name, dep := range deps {
			if dep == nil {
				continue
			}
			if err := dep.Ping(ctx); err != nil {
				failed[name] = err.Error()
			}
		}
		if len(failed) > 0 {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeDependency, "dependencies unavailable").WithDetails(failed))
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "ready"})
	}
}
