package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/cred30-backend/pkg/logger"
)

func bufferLogger(buf *bytes.Buffer) *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: buf})
}

func lastLogLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.NotEmpty(t, lines)
	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[len(lines)-1]), &entry))
	return entry
}

func TestLoggingTagsMoneyRoutes(t *testing.T) {
	var buf bytes.Buffer
	r := chi.NewRouter()
	r.Use(Logging(bufferLogger(&buf)))
	r.Post("/api/v1/loans", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"data":{}}`))
	})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/loans", nil)
	req.Header.Set(idempotencyHeader, "loan-1")
	r.ServeHTTP(httptest.NewRecorder(), req)

	entry := lastLogLine(t, &buf)
	assert.Equal(t, "request.complete", entry["message"])
	assert.Equal(t, "/api/v1/loans", entry["route"])
	assert.Equal(t, true, entry["money_route"])
	assert.Equal(t, "loan-1", entry["idempotency_key"])
	assert.EqualValues(t, http.StatusCreated, entry["status"])
	assert.EqualValues(t, len(`{"data":{}}`), entry["bytes"])
}

func TestLoggingWarnsOnFailures(t *testing.T) {
	var buf bytes.Buffer
	r := chi.NewRouter()
	r.Use(Logging(bufferLogger(&buf)))
	r.Get("/api/v1/loans/{loanId}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/loans/abc", nil))

	entry := lastLogLine(t, &buf)
	assert.Equal(t, "request.failed", entry["message"])
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "/api/v1/loans/{loanId}", entry["route"])
	assert.Equal(t, false, entry["money_route"])
}

func TestStatusRecorderDefaultsToOK(t *testing.T) {
	rec := &statusRecorder{ResponseWriter: httptest.NewRecorder()}
	_, err := rec.Write([]byte("ok"))
	require.NoError(t, err)
	rec.WriteHeader(http.StatusTeapot)
	assert.Equal(t, http.StatusOK, rec.status)
	assert.Equal(t, 2, rec.bytes)
}

func TestRecovererReturnsInternalError(t *testing.T) {
	var buf bytes.Buffer
	handler := Recoverer(bufferLogger(&buf))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/quotas", nil)
	req.Header.Set(idempotencyHeader, "quota-9")
	req = req.WithContext(WithMemberID(req.Context(), "member-1"))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	assert.Equal(t, http.StatusInternalServerError, resp.Code)
	assert.Contains(t, buf.String(), `"idempotency_key":"quota-9"`)
	assert.Contains(t, buf.String(), `"member_id":"member-1"`)
}

func TestRequestIDEchoesOrMints(t *testing.T) {
	handler := RequestID(nil)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(requestIDHeader, "gw-123")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	assert.Equal(t, "gw-123", resp.Header().Get(requestIDHeader))

	bad := httptest.NewRequest(http.MethodGet, "/", nil)
	bad.Header.Set(requestIDHeader, "has space")
	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, bad)
	assert.NotEqual(t, "has space", resp.Header().Get(requestIDHeader))
	assert.Len(t, resp.Header().Get(requestIDHeader), 36)
}
