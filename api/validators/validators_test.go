package validators

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/cred30-backend/pkg/errors"
)

type sampleBody struct {
	Amount string `json:"amount" validate:"required"`
	Method string `json:"method" validate:"required,oneof=BALANCE PIX CARD"`
}

func TestDecodeJSONBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"amount":"10.00","method":"PIX"}`))
	var body sampleBody
	require.NoError(t, DecodeJSONBody(req, &body))
	assert.Equal(t, "PIX", body.Method)
}

func TestDecodeJSONBodyRejectsUnknownFields(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"amount":"10","method":"PIX","extra":1}`))
	var body sampleBody
	err := DecodeJSONBody(req, &body)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestDecodeJSONBodyReportsFieldErrors(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"method":"CASH"}`))
	var body sampleBody
	err := DecodeJSONBody(req, &body)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	details, ok := typed.Details().(map[string]string)
	require.True(t, ok)
	assert.Equal(t, "is required", details["amount"])
	assert.Equal(t, "must be one of [BALANCE PIX CARD]", details["method"])
}

func TestParseUUIDParam(t *testing.T) {
	id := uuid.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rc := chi.NewRouteContext()
	rc.URLParams.Add("loanId", id.String())
	rc.URLParams.Add("bad", "not-a-uuid")
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rc))

	got, err := ParseUUIDParam(req, "loanId")
	require.NoError(t, err)
	assert.Equal(t, id, got)

	_, err = ParseUUIDParam(req, "bad")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = ParseUUIDParam(req, "missing")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestParseAmount(t *testing.T) {
	amount, err := ParseAmount(" 12.50 ")
	require.NoError(t, err)
	assert.Equal(t, "12.5", amount.String())

	_, err = ParseAmount("0")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidAmount))

	_, err = ParseAmount("1.001")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidAmount))
}

func TestParseQueryInt(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?limit=500", nil)
	_, err := ParseQueryInt(req, "limit", 25, 1, 100)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	limit, err := ParseQueryInt(req, "limit", 25, 1, 100)
	require.NoError(t, err)
	assert.Equal(t, 25, limit)
}

func TestDecodeOptionalJSONBodyAcceptsEmpty(t *testing.T) {
	type optional struct {
		Note *string `json:"note" validate:"omitempty,max=5"`
	}
	req := httptest.NewRequest(http.MethodPost, "/", http.NoBody)
	var body optional
	require.NoError(t, DecodeOptionalJSONBody(req, &body))
	assert.Nil(t, body.Note)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"note":"too long"}`))
	err := DecodeOptionalJSONBody(req, &body)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}
