package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/mmk-investigations/internal/testutil/investigationtest"
)

func TestHealthHandlerGET(t *testing.T) {
	rec := httptest.NewRecorder()
	healthHandler(nil)(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestHealthHandlerHEAD(t *testing.T) {
	rec := httptest.NewRecorder()
	healthHandler(nil)(rec, httptest.NewRequest(http.MethodHead, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Zero(t, rec.Body.Len(), "HEAD responses carry no body")
}

func TestHealthHandlerDegraded(t *testing.T) {
	checks := map[string]HealthCheck{
		"postgres": func(context.Context) error { return nil },
		"redis":    func(context.Context) error { return errors.New("connection refused") },
	}

	rec := httptest.NewRecorder()
	healthHandler(checks)(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "degraded", body.Status)
	assert.Equal(t, "ok", body.Checks["postgres"])
	assert.Equal(t, "connection refused", body.Checks["redis"])

	rec = httptest.NewRecorder()
	healthHandler(checks)(rec, httptest.NewRequest(http.MethodHead, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHealthRoute(t *testing.T) {
	ts := newTestServer(t, investigationtest.Options{}, func(s *RouterServices) {
		s.HealthChecks = map[string]HealthCheck{"store": func(context.Context) error { return nil }}
	})
	resp, body := doJSON(t, http.MethodGet, ts.URL+"/healthz", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok","checks":{"store":"ok"}}`, string(body))
}
