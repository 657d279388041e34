package slack

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
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

func TestFormatMessageIncludesFields(t *testing.T) {
	client, err := NewClient(Config{
		WebhookURL: "https://hooks.slack.com/services/test",
		Channel:    "#osint",
		Username:   "bot",
		Timeout:    time.Second,
	})
	require.NoError(t, err)

	msg := client.formatMessage(notify.InvestigationFailurePayload{
		InvestigationID: "inv-123",
		Type:            "profile",
		Target:          "alice_99",
		Depth:           "deep",
		Error:           "all capabilities failed",
		ErrorClass:      "capability_error",
		Planned:         3,
		Failed:          3,
		Metadata:        map[string]string{"zeta": "z", "alpha": "a"},
	})

	assert.Equal(t, "bot", msg["username"])
	assert.Equal(t, "#osint", msg["channel"])

	text, ok := msg["text"].(string)
	require.True(t, ok)
	for _, want := range []string{
		"Investigation failed", "`inv-123`", "(profile)", "alice_99", "deep",
		"0 succeeded, 3 failed of 3", "capability_error", "all capabilities failed",
	} {
		assert.Contains(t, text, want)
	}
	assert.Less(t, strings.Index(text, "alpha"), strings.Index(text, "zeta"), "metadata keys are sorted")
}

func TestFormatMessageInvestigationLink(t *testing.T) {
	client, err := NewClient(Config{
		WebhookURL:             "https://hooks.slack.com/services/test",
		InvestigationURLPrefix: "https://osint.local/api/investigations",
	})
	require.NoError(t, err)

	text := client.formatMessage(notify.InvestigationFailurePayload{InvestigationID: "inv-1"})["text"].(string)
	assert.Contains(t, text, "<https://osint.local/api/investigations/inv-1|inv-1>")
}

func TestFormatMessageEscapesText(t *testing.T) {
	client, err := NewClient(Config{WebhookURL: "https://hooks.slack.com/services/test"})
	require.NoError(t, err)

	text := client.formatMessage(notify.InvestigationFailurePayload{
		InvestigationID: "inv-2",
		Target:          "<script>&",
	})["text"].(string)
	assert.Contains(t, text, "&lt;script&gt;&amp;")
}

func TestSendInvestigationFailureRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var body map[string]any
		if json.Unmarshal(raw, &body) != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if calls.Add(1) == 1 {
			http.Error(w, "try again", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client, err := NewClient(Config{WebhookURL: srv.URL, RetryLimit: 1})
	require.NoError(t, err)

	err = client.SendInvestigationFailure(t.Context(), notify.InvestigationFailurePayload{InvestigationID: "inv-3"})
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestSendInvestigationFailureReturnsLastError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	client, err := NewClient(Config{WebhookURL: srv.URL})
	require.NoError(t, err)

	err = client.SendInvestigationFailure(t.Context(), notify.InvestigationFailurePayload{InvestigationID: "inv-4"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}
