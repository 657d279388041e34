package data

import (
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/mmk-investigations/internal/core"
	"github.com/target/mmk-investigations/internal/domain/model"
	"github.com/target/mmk-investigations/internal/testutil"
)

func newPendingInvestigation(capabilities ...string) *model.Investigation {
	id := uuid.NewString()
	inv := &model.Investigation{
		ID:        id,
		Type:      model.RequestTypeProfile,
		Target:    model.Target{Username: "alice"},
		Platforms: []string{"tiktok"},
		Depth:     model.DepthMedium,
		Status:    model.InvestigationStatusPending,
	}
	for i, name := range capabilities {
		inv.Executions = append(inv.Executions, model.ExecutionRecord{
			ID:              uuid.NewString(),
			InvestigationID: id,
			Position:        i,
			Capability:      name,
			Category:        "username",
			Status:          model.ExecutionStatusPending,
		})
	}
	return inv
}

func TestInvestigationRepo_Lifecycle(t *testing.T) {
	testutil.WithAutoDB(t, func(db *sql.DB) {
		ctx := t.Context()
		clock := NewFixedTimeProvider(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
		repo := NewInvestigationRepo(db, RepoConfig{TimeProvider: clock})

		inv := newPendingInvestigation("tiktok-profile-analyzer", "sherlock")
		require.NoError(t, repo.Create(ctx, inv))

		got, err := repo.GetByID(ctx, inv.ID)
		require.NoError(t, err)
		assert.Equal(t, model.InvestigationStatusPending, got.Status)
		require.Len(t, got.Executions, 2)
		assert.Equal(t, "tiktok-profile-analyzer", got.Executions[0].Capability)
		assert.Equal(t, "alice", got.Target.Username)

		require.NoError(t, repo.MarkRunning(ctx, inv.ID))

		applied, err := repo.UpdateExecution(ctx, core.UpdateExecutionParams{
			InvestigationID: inv.ID,
			Capability:      "tiktok-profile-analyzer",
			Status:          model.ExecutionStatusRunning,
		})
		require.NoError(t, err)
		assert.True(t, applied)

		confidence := 0.9
		applied, err = repo.UpdateExecution(ctx, core.UpdateExecutionParams{
			InvestigationID: inv.ID,
			Capability:      "tiktok-profile-analyzer",
			Status:          model.ExecutionStatusSuccess,
			Result: &model.CapabilityResult{
				Status:     model.ResultSuccess,
				Data:       json.RawMessage(`{"followers":10}`),
				Confidence: &confidence,
				Metrics:    model.ExecutionMetrics{DurationMs: 1200},
			},
		})
		require.NoError(t, err)
		assert.True(t, applied)

		applied, err = repo.UpdateExecution(ctx, core.UpdateExecutionParams{
			InvestigationID: inv.ID,
			Capability:      "tiktok-profile-analyzer",
			Status:          model.ExecutionStatusFailed,
			Result:          &model.CapabilityResult{Status: model.ResultFailed, Error: "late"},
		})
		require.NoError(t, err)
		assert.False(t, applied, "terminal records never move")

		_, err = repo.UpdateExecution(ctx, core.UpdateExecutionParams{
			InvestigationID: inv.ID,
			Capability:      "shodan",
			Status:          model.ExecutionStatusSuccess,
		})
		require.ErrorIs(t, err, core.ErrExecutionNotFound)

		rec, err := repo.GetExecution(ctx, inv.ID, "tiktok-profile-analyzer")
		require.NoError(t, err)
		assert.Equal(t, model.ExecutionStatusSuccess, rec.Status)
		assert.Equal(t, int64(1200), rec.Metrics.DurationMs)
		assert.JSONEq(t, `{"followers":10}`, string(rec.Data))

		err = repo.Finalize(ctx, core.FinalizeParams{
			InvestigationID: inv.ID,
			Status:          model.InvestigationStatusCompleted,
		})
		require.ErrorIs(t, err, core.ErrInvalidTransition, "open records block completion")

		_, err = repo.UpdateExecution(ctx, core.UpdateExecutionParams{
			InvestigationID: inv.ID,
			Capability:      "sherlock",
			Status:          model.ExecutionStatusFailed,
			Result:          &model.CapabilityResult{Status: model.ResultFailed, Error: "boom", ErrorClass: model.ErrorClassCapability},
		})
		require.NoError(t, err)

		require.NoError(t, repo.SaveReport(ctx, inv.ID, "# report"))
		ref := "/api/investigations/" + inv.ID + "/report"
		require.NoError(t, repo.Finalize(ctx, core.FinalizeParams{
			InvestigationID: inv.ID,
			Status:          model.InvestigationStatusCompleted,
			Summary:         json.RawMessage(`{"planned":2,"succeeded":1,"failed":1,"skipped":0}`),
			ReportRef:       &ref,
		}))

		got, err = repo.GetByID(ctx, inv.ID)
		require.NoError(t, err)
		assert.Equal(t, model.InvestigationStatusCompleted, got.Status)
		require.NotNil(t, got.ReportRef)
		assert.Equal(t, ref, *got.ReportRef)
		require.NotNil(t, got.CompletedAt)

		body, err := repo.GetReport(ctx, inv.ID)
		require.NoError(t, err)
		assert.Equal(t, "# report", body)

		err = repo.Finalize(ctx, core.FinalizeParams{InvestigationID: inv.ID, Status: model.InvestigationStatusFailed})
		require.ErrorIs(t, err, core.ErrInvestigationTerminal)
		require.ErrorIs(t, repo.SaveReport(ctx, inv.ID, "again"), core.ErrInvestigationTerminal)
	})
}

func TestInvestigationRepo_FinalizeClosesOpenRecords(t *testing.T) {
	testutil.WithAutoDB(t, func(db *sql.DB) {
		ctx := t.Context()
		repo := NewInvestigationRepo(db, RepoConfig{})

		inv := newPendingInvestigation("a", "b")
		require.NoError(t, repo.Create(ctx, inv))
		require.NoError(t, repo.MarkRunning(ctx, inv.ID))
		_, err := repo.UpdateExecution(ctx, core.UpdateExecutionParams{
			InvestigationID: inv.ID, Capability: "a", Status: model.ExecutionStatusRunning,
		})
		require.NoError(t, err)

		require.NoError(t, repo.Finalize(ctx, core.FinalizeParams{
			InvestigationID: inv.ID,
			Status:          model.InvestigationStatusFailed,
			CloseReason:     "investigation canceled",
		}))

		got, err := repo.GetByID(ctx, inv.ID)
		require.NoError(t, err)
		assert.Equal(t, model.ExecutionStatusFailed, got.Executions[0].Status)
		require.NotNil(t, got.Executions[0].Error)
		assert.Equal(t, "investigation canceled", *got.Executions[0].Error)
		assert.Equal(t, model.ExecutionStatusSkipped, got.Executions[1].Status)

		_, err = repo.GetReport(ctx, inv.ID)
		require.ErrorIs(t, err, core.ErrReportNotFound)
	})
}

func TestInvestigationRepo_ConcurrentCallbacksFirstWriteWins(t *testing.T) {
	testutil.WithAutoDB(t, func(db *sql.DB) {
		ctx := t.Context()
		repo := NewInvestigationRepo(db, RepoConfig{})

		inv := newPendingInvestigation("sherlock")
		require.NoError(t, repo.Create(ctx, inv))
		require.NoError(t, repo.MarkRunning(ctx, inv.ID))

		results := make(chan bool, 4)
		write := func(status model.ExecutionStatus) func() error {
			return func() error {
				applied, err := repo.UpdateExecution(ctx, core.UpdateExecutionParams{
					InvestigationID: inv.ID,
					Capability:      "sherlock",
					Status:          status,
					Result:          &model.CapabilityResult{Status: model.ResultSuccess},
				})
				results <- applied
				return err
			}
		}

		testutil.RunConcurrently(t,
			write(model.ExecutionStatusSuccess),
			write(model.ExecutionStatusFailed),
			write(model.ExecutionStatusSuccess),
			write(model.ExecutionStatusFailed),
		)
		close(results)

		appliedCount := 0
		for applied := range results {
			if applied {
				appliedCount++
			}
		}
		assert.Equal(t, 1, appliedCount)
	})
}

func TestInvestigationRepo_ListAndFailStale(t *testing.T) {
	testutil.WithAutoDB(t, func(db *sql.DB) {
		ctx := t.Context()
		clock := NewFixedTimeProvider(time.Now().Add(-3 * time.Hour))
		repo := NewInvestigationRepo(db, RepoConfig{TimeProvider: clock})

		stale := newPendingInvestigation("sherlock")
		require.NoError(t, repo.Create(ctx, stale))
		require.NoError(t, repo.MarkRunning(ctx, stale.ID))

		clock.AddTime(3 * time.Hour)
		fresh := newPendingInvestigation("sherlock")
		require.NoError(t, repo.Create(ctx, fresh))

		all, err := repo.List(ctx, model.InvestigationListOptions{Limit: 10})
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Equal(t, fresh.ID, all[0].ID, "newest first")

		running := model.InvestigationStatusRunning
		onlyRunning, err := repo.List(ctx, model.InvestigationListOptions{Status: &running, Limit: 10})
		require.NoError(t, err)
		require.Len(t, onlyRunning, 1)
		assert.Equal(t, stale.ID, onlyRunning[0].ID)

		ids, err := repo.FailStale(ctx, core.FailStaleParams{MaxAge: time.Hour, BatchSize: 10, Reason: "abandoned"})
		require.NoError(t, err)
		if len(ids) == 0 {
			testutil.LogInvestigationStates(t, db, "after reap")
		}
		assert.Equal(t, []string{stale.ID}, ids)

		got, err := repo.GetByID(ctx, stale.ID)
		require.NoError(t, err)
		assert.Equal(t, model.InvestigationStatusFailed, got.Status)
		assert.Equal(t, model.ExecutionStatusSkipped, got.Executions[0].Status)

		got, err = repo.GetByID(ctx, fresh.ID)
		require.NoError(t, err)
		assert.Equal(t, model.InvestigationStatusPending, got.Status)
	})
}

func TestInvestigationRepo_NotFound(t *testing.T) {
	testutil.WithAutoDB(t, func(db *sql.DB) {
		repo := NewInvestigationRepo(db, RepoConfig{})

		_, err := repo.GetByID(t.Context(), uuid.NewString())
		require.ErrorIs(t, err, core.ErrInvestigationNotFound)
		require.ErrorIs(t, repo.MarkRunning(t.Context(), uuid.NewString()), core.ErrInvestigationNotFound)
	})
}
