package pagerduty

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/mmk-investigations/internal/observability/notify"
)

func TestNewClientValidation(t *testing.T) {
	_, err := NewClient(Config{})
	require.Error(t, err)
}

func TestBuildEventDefaults(t *testing.T) {
	client, err := NewClient(Config{RoutingKey: "key", Timeout: time.Second})
	require.NoError(t, err)

	event := client.buildEvent(notify.InvestigationFailurePayload{
		InvestigationID: "inv-123",
		Type:            "profile",
		Error:           "boom",
		ErrorClass:      "store_error",
		Metadata:        map[string]string{"error": "shadowed", "region": "us"},
	})

	assert.Equal(t, "investigation:inv-123", event["dedup_key"])
	assert.Equal(t, "trigger", event["event_action"])

	section, ok := event["payload"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, notify.SeverityCritical, section["severity"])
	assert.Equal(t, "investigator", section["source"])
	assert.Equal(t, "investigator", section["component"])
	assert.Contains(t, section["summary"], "inv-123")

	custom, ok := section["custom_details"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "boom", custom["error"], "metadata never overrides canonical fields")
	assert.Equal(t, "us", custom["region"])
	for _, key := range []string{"investigation_id", "type", "error_class", "planned"} {
		assert.Contains(t, custom, key)
	}
}

func TestSendInvestigationFailure(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	client, err := NewClient(Config{RoutingKey: "key", Endpoint: srv.URL})
	require.NoError(t, err)

	err = client.SendInvestigationFailure(t.Context(), notify.InvestigationFailurePayload{
		InvestigationID: "inv-9",
		Severity:        "WARNING",
	})
	require.NoError(t, err)
	assert.Equal(t, "key", got["routing_key"])
	assert.Equal(t, notify.SeverityWarning, got["payload"].(map[string]any)["severity"])
}

func TestSendInvestigationFailureError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "invalid routing key", http.StatusBadRequest)
	}))
	defer srv.Close()

	client, err := NewClient(Config{RoutingKey: "key", Endpoint: srv.URL})
	require.NoError(t, err)

	err = client.SendInvestigationFailure(t.Context(), notify.InvestigationFailurePayload{InvestigationID: "inv-10"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid routing key")
}
