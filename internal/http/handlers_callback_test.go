package httpx

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/mmk-investigations/internal/domain/capability"
	"github.com/target/mmk-investigations/internal/domain/model"
	"github.com/target/mmk-investigations/internal/service"
	it "github.com/target/mmk-investigations/internal/testutil/investigationtest"
)

func decodeAck(t *testing.T, raw []byte) service.CallbackAck {
	t.Helper()
	var ack service.CallbackAck
	require.NoError(t, json.Unmarshal(raw, &ack), string(raw))
	return ack
}

func TestCallbackCompletesDeferredCapabilities(t *testing.T) {
	ts := newTestServer(t, it.Options{Executors: map[string]capability.Executor{
		it.TikTokCapability:   it.Defer(),
		it.SherlockCapability: it.Defer(),
	}})
	res := startInvestigation(t, ts, it.ProfileRequest("deferred"))
	id := res.Investigation.ID
	url := ts.URL + "/callback/" + id

	first := `{"capability":"tiktok-profile-analyzer","status":"success","data":{"followers":10},` +
		`"metrics":{"duration":1.5},"confidence_score":0.8}`
	resp, body := doJSON(t, http.MethodPost, url, first, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	ack := decodeAck(t, body)
	assert.True(t, ack.Accepted)
	assert.False(t, ack.Duplicate)
	assert.Equal(t, it.TikTokCapability, ack.Capability)

	// A conflicting second delivery for the same capability changes nothing.
	resp, body = doJSON(t, http.MethodPost, url, `{"capability":"tiktok-profile-analyzer","status":"failed","error":"late"}`, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.True(t, decodeAck(t, body).Duplicate)

	resp, body = doJSON(t, http.MethodPost, url, `{"capability":"not-planned","status":"success"}`, nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, service.ReasonCapabilityNotPlanned, decodeErrorBody(t, body).Reason)

	resp, body = doJSON(t, http.MethodPost, ts.URL+"/api/investigations/"+id+"/callback",
		`{"capability":"sherlock","status":"failed","metrics":{"duration":0.2,"error_message":"rate limited"}}`, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	inv := ts.WaitFinished(t, id)
	assert.Equal(t, model.InvestigationStatusCompleted, inv.Status)
	require.Len(t, inv.Executions, 2)

	tiktok := inv.Executions[0]
	assert.Equal(t, model.ExecutionStatusSuccess, tiktok.Status)
	assert.JSONEq(t, `{"followers":10}`, string(tiktok.Data))
	assert.Equal(t, int64(1500), tiktok.Metrics.DurationMs)
	require.NotNil(t, tiktok.Confidence)
	assert.InDelta(t, 0.8, *tiktok.Confidence, 1e-9)

	sherlock := inv.Executions[1]
	assert.Equal(t, model.ExecutionStatusFailed, sherlock.Status)
	require.NotNil(t, sherlock.Error)
	assert.Equal(t, "rate limited", *sherlock.Error)

	resp, body = doJSON(t, http.MethodPost, url, first, nil)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, service.ReasonInvestigationTerminal, decodeErrorBody(t, body).Reason)
}

func TestCallbackDeferredTimeout(t *testing.T) {
	descs := it.DefaultCapabilities(map[string]capability.Executor{it.TikTokCapability: it.Defer()})
	descs[0].Timeout = 100 * time.Millisecond
	ts := newTestServer(t, it.Options{Capabilities: descs})

	res := startInvestigation(t, ts, it.ProfileRequest("silent"))
	inv := ts.WaitFinished(t, res.Investigation.ID)

	assert.Equal(t, model.InvestigationStatusCompleted, inv.Status)
	rec := inv.Executions[0]
	assert.Equal(t, model.ExecutionStatusFailed, rec.Status)
	require.NotNil(t, rec.ErrorClass)
	assert.Equal(t, model.ErrorClassTimeout, *rec.ErrorClass)
}

func TestCallbackForInvestigationWithoutLocalRun(t *testing.T) {
	ts := newTestServer(t, it.Options{})
	ts.CreatePending(t, "remote-1", it.SherlockCapability)

	resp, body := doJSON(t, http.MethodPost, ts.URL+"/callback/remote-1",
		`{"capability":"sherlock","status":"success","data":{"accounts":["github"]}}`, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.False(t, decodeAck(t, body).Duplicate)

	rec, err := ts.Store.GetExecution(t.Context(), "remote-1", it.SherlockCapability)
	require.NoError(t, err)
	assert.Equal(t, model.ExecutionStatusSuccess, rec.Status)

	resp, body = doJSON(t, http.MethodPost, ts.URL+"/callback/remote-1",
		`{"capability":"sherlock","status":"success"}`, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, decodeAck(t, body).Duplicate)

	resp, _ = doJSON(t, http.MethodPost, ts.URL+"/callback/unknown", `{"capability":"sherlock","status":"success"}`, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCallbackRejectsInvalidPayloads(t *testing.T) {
	ts := newTestServer(t, it.Options{})
	ts.CreatePending(t, "remote-2", it.SherlockCapability)

	tests := []struct {
		name     string
		body     string
		wantCode string
	}{
		{name: "missing capability", body: `{"status":"success"}`, wantCode: "validation"},
		{name: "non terminal status", body: `{"capability":"sherlock","status":"running"}`, wantCode: "validation"},
		{name: "confidence out of range", body: `{"capability":"sherlock","status":"success","confidence_score":1.5}`, wantCode: "validation"},
		{name: "negative duration", body: `{"capability":"sherlock","status":"success","metrics":{"duration":-1}}`, wantCode: "validation"},
		{name: "unknown field", body: `{"capability":"sherlock","status":"success","extra":true}`, wantCode: "invalid_json"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := doJSON(t, http.MethodPost, ts.URL+"/callback/remote-2", tt.body, nil)
			require.Equal(t, http.StatusBadRequest, resp.StatusCode, string(body))
			assert.Equal(t, tt.wantCode, decodeErrorBody(t, body).Error)
		})
	}

	rec, err := ts.Store.GetExecution(t.Context(), "remote-2", it.SherlockCapability)
	require.NoError(t, err)
	assert.Equal(t, model.ExecutionStatusPending, rec.Status)
}

func TestCallbackRequiresBearerToken(t *testing.T) {
	ts := newTestServer(t, it.Options{}, func(s *RouterServices) { s.CallbackToken = "s3cret" })
	ts.CreatePending(t, "remote-3", it.SherlockCapability)
	payload := `{"capability":"sherlock","status":"success"}`

	resp, body := doJSON(t, http.MethodPost, ts.URL+"/callback/remote-3", payload, nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "authentication_required", decodeErrorBody(t, body).Error)

	resp, _ = doJSON(t, http.MethodPost, ts.URL+"/callback/remote-3", payload,
		map[string]string{"Authorization": "Bearer wrong"})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, body = doJSON(t, http.MethodPost, ts.URL+"/callback/remote-3", payload,
		map[string]string{"Authorization": "Bearer s3cret"})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	// Investigation endpoints are not behind the callback token.
	resp, _ = doJSON(t, http.MethodGet, ts.URL+"/api/investigations/remote-3", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
