package service_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/mmk-investigations/internal/domain/capability"
	"github.com/target/mmk-investigations/internal/domain/model"
	apperrors "github.com/target/mmk-investigations/internal/errors"
	"github.com/target/mmk-investigations/internal/service"
	"github.com/target/mmk-investigations/internal/testutil/investigationtest"
)

func TestNewCallbackService_RequiresDependencies(t *testing.T) {
	_, err := service.NewCallbackService(service.CallbackServiceOptions{})
	require.Error(t, err)
}

func TestCallbackService_Validation(t *testing.T) {
	stack := investigationtest.New(t, investigationtest.Options{})
	stack.CreatePending(t, "inv-v", investigationtest.SherlockCapability)
	bad := -0.5

	tests := []struct {
		name    string
		payload model.CallbackPayload
	}{
		{name: "missing capability", payload: model.CallbackPayload{Status: model.ExecutionStatusSuccess}},
		{name: "blank capability", payload: model.CallbackPayload{Capability: "  ", Status: model.ExecutionStatusSuccess}},
		{name: "non-terminal status", payload: model.CallbackPayload{
			Capability: investigationtest.SherlockCapability,
			Status:     model.ExecutionStatusRunning,
		}},
		{name: "confidence out of range", payload: model.CallbackPayload{
			Capability: investigationtest.SherlockCapability,
			Status:     model.ExecutionStatusSuccess,
			Confidence: &bad,
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := stack.Callbacks.Ingest(t.Context(), "inv-v", tt.payload)
			require.Error(t, err)
			assert.True(t, apperrors.IsValidation(err))
		})
	}

	rec, err := stack.Store.GetExecution(t.Context(), "inv-v", investigationtest.SherlockCapability)
	require.NoError(t, err)
	assert.Equal(t, model.ExecutionStatusPending, rec.Status)
}

func TestCallbackService_WritesThroughWithoutLocalRun(t *testing.T) {
	stack := investigationtest.New(t, investigationtest.Options{})
	stack.CreatePending(t, "inv-w", investigationtest.SherlockCapability)
	confidence := 0.8

	payload := model.CallbackPayload{
		Capability: investigationtest.SherlockCapability,
		Status:     model.ExecutionStatusSuccess,
		Confidence: &confidence,
		Metrics:    &model.CallbackMetrics{Duration: 1.5},
		Data:       json.RawMessage(`{"accounts":["github"]}`),
	}
	ack, err := stack.Callbacks.Ingest(t.Context(), "inv-w", payload)
	require.NoError(t, err)
	assert.Equal(t, "inv-w", ack.InvestigationID)
	assert.True(t, ack.Accepted)
	assert.False(t, ack.Duplicate)

	rec, err := stack.Store.GetExecution(t.Context(), "inv-w", investigationtest.SherlockCapability)
	require.NoError(t, err)
	assert.Equal(t, model.ExecutionStatusSuccess, rec.Status)
	assert.Equal(t, int64(1500), rec.Metrics.DurationMs)
	require.NotNil(t, rec.Confidence)
	assert.InDelta(t, 0.8, *rec.Confidence, 1e-9)

	payload.Status = model.ExecutionStatusFailed
	payload.Error = "late failure"
	ack, err = stack.Callbacks.Ingest(t.Context(), "inv-w", payload)
	require.NoError(t, err)
	assert.True(t, ack.Accepted)
	assert.True(t, ack.Duplicate, "first write wins")

	rec, err = stack.Store.GetExecution(t.Context(), "inv-w", investigationtest.SherlockCapability)
	require.NoError(t, err)
	assert.Equal(t, model.ExecutionStatusSuccess, rec.Status)
}

func TestCallbackService_Errors(t *testing.T) {
	stack := investigationtest.New(t, investigationtest.Options{})
	stack.CreatePending(t, "inv-e", investigationtest.SherlockCapability)
	ok := model.CallbackPayload{Capability: investigationtest.SherlockCapability, Status: model.ExecutionStatusSuccess}

	_, err := stack.Callbacks.Ingest(t.Context(), "missing", ok)
	assert.True(t, apperrors.IsNotFound(err))

	unplanned := ok
	unplanned.Capability = "shodan"
	_, err = stack.Callbacks.Ingest(t.Context(), "inv-e", unplanned)
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
	assert.Equal(t, service.ReasonCapabilityNotPlanned, apperrors.GetReason(err))

	require.NoError(t, stack.Investigations.Cancel(t.Context(), "inv-e"))
	_, err = stack.Callbacks.Ingest(t.Context(), "inv-e", ok)
	require.Error(t, err)
	assert.True(t, apperrors.IsConflict(err))
	assert.Equal(t, service.ReasonInvestigationTerminal, apperrors.GetReason(err))
}

func TestCallbackService_UnplannedCapabilityOnLocalRun(t *testing.T) {
	stack := investigationtest.New(t, investigationtest.Options{
		Executors: map[string]capability.Executor{
			investigationtest.TikTokCapability: investigationtest.Defer(),
		},
	})
	res, err := stack.Investigations.Start(t.Context(), investigationtest.ProfileRequest("mia"))
	require.NoError(t, err)
	id := res.Investigation.ID

	_, err = stack.Callbacks.Ingest(t.Context(), id, model.CallbackPayload{
		Capability: investigationtest.GenericCapability,
		Status:     model.ExecutionStatusSuccess,
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
	assert.Equal(t, service.ReasonCapabilityNotPlanned, apperrors.GetReason(err))

	require.Eventually(t, func() bool {
		rec, getErr := stack.Store.GetExecution(t.Context(), id, investigationtest.TikTokCapability)
		return getErr == nil && rec.Status == model.ExecutionStatusRunning
	}, 2*time.Second, 10*time.Millisecond)

	ack, err := stack.Callbacks.Ingest(t.Context(), id, model.CallbackPayload{
		Capability: investigationtest.TikTokCapability,
		Status:     model.ExecutionStatusFailed,
		Error:      "rate limited",
	})
	require.NoError(t, err)
	assert.False(t, ack.Duplicate)

	inv := stack.WaitFinished(t, id)
	tiktok := record(t, inv, investigationtest.TikTokCapability)
	assert.Equal(t, model.ExecutionStatusFailed, tiktok.Status)
	require.NotNil(t, tiktok.Error)
	assert.Equal(t, "rate limited", *tiktok.Error)
}
