package reaper

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/target/mmk-investigations/config"
	"github.com/target/mmk-investigations/internal/core"
	"github.com/target/mmk-investigations/internal/mocks"
	"github.com/target/mmk-investigations/internal/service"
)

func testConfig() config.ReaperConfig {
	return config.ReaperConfig{Interval: time.Minute, StaleAfter: 30 * time.Minute, BatchSize: 10}
}

func TestNewRunnerRequiresStore(t *testing.T) {
	_, err := NewRunner(RunnerOptions{Config: testConfig()})
	require.Error(t, err)
}

func TestNewRunnerRejectsBadConfig(t *testing.T) {
	ctrl := gomock.NewController(t)
	_, err := NewRunner(RunnerOptions{
		Repo:   mocks.NewMockInvestigationReaperRepository(ctrl),
		Config: config.ReaperConfig{Interval: time.Minute},
	})
	require.Error(t, err)
}

func TestRunnerRunOnceDrainsBatches(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockInvestigationReaperRepository(ctrl)

	want := core.FailStaleParams{MaxAge: 30 * time.Minute, BatchSize: 10, Reason: service.ReapReason}
	gomock.InOrder(
		repo.EXPECT().FailStale(gomock.Any(), want).Return(batchIDs("a", 10), nil),
		repo.EXPECT().FailStale(gomock.Any(), want).Return(batchIDs("b", 3), nil),
	)

	runner, err := NewRunner(RunnerOptions{Repo: repo, Config: testConfig()})
	require.NoError(t, err)

	ids, err := runner.RunOnce(t.Context())
	require.NoError(t, err)
	assert.Len(t, ids, 13)
	assert.Equal(t, "a-0", ids[0])
	assert.Equal(t, "b-2", ids[12])
}

func batchIDs(prefix string, n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = prefix + "-" + strconv.Itoa(i)
	}
	return ids
}

func TestRunnerRunOnceReportsStoreErrors(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockInvestigationReaperRepository(ctrl)
	repo.EXPECT().FailStale(gomock.Any(), gomock.Any()).Return(nil, errors.New("connection reset")).Times(1)

	runner, err := NewRunner(RunnerOptions{Repo: repo, Config: testConfig()})
	require.NoError(t, err)

	_, err = runner.RunOnce(t.Context())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestRunnerRunStopsOnCancel(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockInvestigationReaperRepository(ctrl)
	repo.EXPECT().FailStale(gomock.Any(), gomock.Any()).Return(nil, nil).AnyTimes()

	runner, err := NewRunner(RunnerOptions{Repo: repo, Config: testConfig()})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- runner.Run(ctx) }()
	cancel()

	select {
	case err = <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("runner did not stop after cancel")
	}
}
