package controllers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/cred30-backend/api/middleware"
	pkgerrors "github.com/angelmondragon/cred30-backend/pkg/errors"
)

func memberIDFromRequest(r *http.Request) (uuid.UUID, error) {
	raw := middleware.MemberIDFromContext(r.Context())
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "member context missing")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid member id")
	}
	return id, nil
}

func trimmedQuery(r *http.Request, key string) string {
	return strings.TrimSpace(r.URL.Query().Get(key))
}
