package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/mmk-investigations/config"
	"github.com/target/mmk-investigations/internal/core"
)

// stubReaperRepo returns queued batches of ids, then nothing.
type stubReaperRepo struct {
	mu      sync.Mutex
	batches [][]string
	err     error
	calls   []core.FailStaleParams
}

func (m *stubReaperRepo) FailStale(_ context.Context, p core.FailStaleParams) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, p)
	if m.err != nil {
		return nil, m.err
	}
	if len(m.batches) == 0 {
		return nil, nil
	}
	batch := m.batches[0]
	m.batches = m.batches[1:]
	return batch, nil
}

// recordingAnnouncer captures announced ids.
type recordingAnnouncer struct {
	mu    sync.Mutex
	calls [][]string
}

func (a *recordingAnnouncer) AnnounceFinal(_ context.Context, ids ...string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, ids)
}

func (m *stubReaperRepo) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

type countingSink struct {
	mu     sync.Mutex
	counts map[string]int64
}

func (s *countingSink) Count(name string, value int64, _ map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.counts == nil {
		s.counts = map[string]int64{}
	}
	s.counts[name] += value
}
func (s *countingSink) Gauge(string, float64, map[string]string) {}
func (s *countingSink) Timing(string, time.Duration, map[string]string) {}

func reaperConfig() config.ReaperConfig {
	return config.ReaperConfig{
		Interval:   50 * time.Millisecond,
		StaleAfter: time.Hour,
		BatchSize:  2,
	}
}

func TestNewReaperService(t *testing.T) {
	t.Run("creates service with valid options", func(t *testing.T) {
		svc, err := NewReaperService(ReaperServiceOptions{
			Repo:   &stubReaperRepo{},
			Config: reaperConfig(),
			Logger: slog.Default(),
		})
		require.NoError(t, err)
		assert.NotNil(t, svc)
	})

	t.Run("returns error when repo is nil", func(t *testing.T) {
		_, err := NewReaperService(ReaperServiceOptions{Config: reaperConfig()})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "InvestigationReaperRepository is required")
	})

	t.Run("rejects non-positive stale after", func(t *testing.T) {
		cfg := reaperConfig()
		cfg.StaleAfter = 0
		_, err := NewReaperService(ReaperServiceOptions{Repo: &stubReaperRepo{}, Config: cfg})
		require.Error(t, err)
	})
}

func TestReaperService_RunOnce(t *testing.T) {
	t.Run("loops while batches are full", func(t *testing.T) {
		repo := &stubReaperRepo{batches: [][]string{{"a", "b"}, {"c", "d"}, {"e"}}}
		sink := &countingSink{}
		svc := MustNewReaperService(ReaperServiceOptions{Repo: repo, Config: reaperConfig(), Metrics: sink})

		ids, err := svc.RunOnce(context.Background())

		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b", "c", "d", "e"}, ids)
		assert.Equal(t, 3, repo.callCount())
		assert.Equal(t, time.Hour, repo.calls[0].MaxAge)
		assert.Equal(t, 2, repo.calls[0].BatchSize)
		assert.Equal(t, ReapReason, repo.calls[0].Reason)
		assert.Equal(t, int64(5), sink.counts["investigation.lifecycle"])
		assert.Equal(t, int64(1), sink.counts["reaper.cleanup"])
	})

	t.Run("nothing stale", func(t *testing.T) {
		repo := &stubReaperRepo{}
		svc := MustNewReaperService(ReaperServiceOptions{Repo: repo, Config: reaperConfig()})

		ids, err := svc.RunOnce(context.Background())

		require.NoError(t, err)
		assert.Empty(t, ids)
		assert.Equal(t, 1, repo.callCount())
	})

	t.Run("announces each batch", func(t *testing.T) {
		repo := &stubReaperRepo{batches: [][]string{{"a", "b"}, {"c"}}}
		announcer := &recordingAnnouncer{}
		svc := MustNewReaperService(ReaperServiceOptions{Repo: repo, Config: reaperConfig(), Announcer: announcer})

		_, err := svc.RunOnce(context.Background())

		require.NoError(t, err)
		assert.Equal(t, [][]string{{"a", "b"}, {"c"}}, announcer.calls)
	})

	t.Run("nothing announced when nothing is stale", func(t *testing.T) {
		announcer := &recordingAnnouncer{}
		svc := MustNewReaperService(ReaperServiceOptions{Repo: &stubReaperRepo{}, Config: reaperConfig(), Announcer: announcer})

		_, err := svc.RunOnce(context.Background())

		require.NoError(t, err)
		assert.Empty(t, announcer.calls)
	})

	t.Run("propagates store errors", func(t *testing.T) {
		repo := &stubReaperRepo{err: errors.New("connection refused")}
		svc := MustNewReaperService(ReaperServiceOptions{Repo: repo, Config: reaperConfig()})

		_, err := svc.RunOnce(context.Background())

		require.Error(t, err)
		assert.Contains(t, err.Error(), "connection refused")
	})
}

func TestReaperService_Run(t *testing.T) {
	t.Run("stops on context cancellation", func(t *testing.T) {
		repo := &stubReaperRepo{}
		svc := MustNewReaperService(ReaperServiceOptions{Repo: repo, Config: reaperConfig()})

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() {
			done <- svc.Run(ctx)
		}()

		require.Eventually(t, func() bool { return repo.callCount() >= 1 }, time.Second, 10*time.Millisecond)
		cancel()

		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(time.Second):
			t.Fatal("Run did not stop after context cancellation")
		}
	})

	t.Run("continues running despite errors", func(t *testing.T) {
		repo := &stubReaperRepo{err: errors.New("test error")}
		svc := MustNewReaperService(ReaperServiceOptions{Repo: repo, Config: reaperConfig()})

		ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
		defer cancel()

		err := svc.Run(ctx)

		require.ErrorIs(t, err, context.DeadlineExceeded)
		assert.GreaterOrEqual(t, repo.callCount(), 2)
	})
}
