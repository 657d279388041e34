package report

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/mmk-investigations/internal/core"
	"github.com/target/mmk-investigations/internal/data/memstore"
	"github.com/target/mmk-investigations/internal/domain/model"
)

func TestGenerateReport(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := memstore.New(memstore.Options{})

	inv := &model.Investigation{
		ID:        "inv-1",
		Type:      model.RequestTypeProfile,
		Target:    model.Target{Username: "alice"},
		Platforms: []string{"tiktok"},
		Depth:     model.DepthMedium,
		Status:    model.InvestigationStatusPending,
		Executions: []model.ExecutionRecord{
			{ID: "e1", Capability: "tiktok-profile-analyzer", Category: "social"},
			{ID: "e2", Capability: "sherlock", Category: "username"},
		},
	}
	require.NoError(t, store.Create(ctx, inv))

	conf := 0.8
	_, err := store.UpdateExecution(ctx, core.UpdateExecutionParams{
		InvestigationID: "inv-1",
		Capability:      "tiktok-profile-analyzer",
		Status:          model.ExecutionStatusSuccess,
		Result: &model.CapabilityResult{
			Status:     model.ResultSuccess,
			Data:       json.RawMessage(`{"followers":12}`),
			Confidence: &conf,
			Metrics:    model.ExecutionMetrics{DurationMs: 1500},
		},
	})
	require.NoError(t, err)
	_, err = store.UpdateExecution(ctx, core.UpdateExecutionParams{
		InvestigationID: "inv-1",
		Capability:      "sherlock",
		Status:          model.ExecutionStatusFailed,
		Result:          &model.CapabilityResult{Status: model.ResultFailed, Error: "rate limited"},
	})
	require.NoError(t, err)

	g, err := NewGenerator(GeneratorOptions{Repo: store})
	require.NoError(t, err)

	out, err := g.GenerateReport(ctx, "inv-1")
	require.NoError(t, err)

	assert.Contains(t, out, "# Investigation inv-1")
	assert.Contains(t, out, "- **Platforms:** tiktok")
	assert.Contains(t, out, "| 2 | 1 | 1 | 0 |")
	assert.Contains(t, out, "## tiktok-profile-analyzer (social)")
	assert.Contains(t, out, "- **Duration:** 1.5s")
	assert.Contains(t, out, "- **Confidence:** 80%")
	assert.Contains(t, out, `"followers": 12`)
	assert.Contains(t, out, "- **Error:** rate limited")
}

func TestGenerateReportMissing(t *testing.T) {
	t.Parallel()
	g, err := NewGenerator(GeneratorOptions{Repo: memstore.New(memstore.Options{})})
	require.NoError(t, err)

	_, err = g.GenerateReport(context.Background(), "nope")
	require.ErrorIs(t, err, core.ErrInvestigationNotFound)
}

func TestNewGeneratorRequiresRepo(t *testing.T) {
	t.Parallel()
	_, err := NewGenerator(GeneratorOptions{})
	require.Error(t, err)
}

func TestFormatData(t *testing.T) {
	t.Parallel()
	assert.Empty(t, formatData(nil))
	assert.Empty(t, formatData(json.RawMessage("null")))
	assert.Equal(t, "not json", formatData(json.RawMessage("not json")))
	big := make([]byte, 0, maxDataBytes+10)
	big = append(big, '"')
	for len(big) < maxDataBytes+8 {
		big = append(big, 'a')
	}
	big = append(big, '"')
	assert.Len(t, formatData(big), maxDataBytes+len("\n..."))
}
