package service

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/target/mmk-investigations/config"
	"github.com/target/mmk-investigations/internal/core"
	obserrors "github.com/target/mmk-investigations/internal/observability/errors"
	"github.com/target/mmk-investigations/internal/observability/metrics"
	"github.com/target/mmk-investigations/internal/observability/statsd"
)

// ReapReason is recorded on investigations failed by the reaper.
const ReapReason = "investigation abandoned: no progress recorded before the stale deadline"

// ReaperServiceOptions groups dependencies for ReaperService.
type ReaperServiceOptions struct {
	Repo      core.InvestigationReaperRepository // Required: reaper repository
	Config    config.ReaperConfig                // Required: reaper configuration
	Logger    *slog.Logger                       // Optional: structured logger
	Metrics   statsd.Sink                        // Optional: metrics sink (StatsD-compatible)
	Announcer Announcer                          // Optional: ends open progress streams of reaped investigations
}

// ReaperService fails investigations orphaned by a coordinator that stopped mid-run.
// Investigations are never deleted.
type ReaperService struct {
	repo      core.InvestigationReaperRepository
	config    config.ReaperConfig
	logger    *slog.Logger
	metrics   statsd.Sink
	announcer Announcer
}

// NewReaperService constructs a new ReaperService.
func NewReaperService(opts ReaperServiceOptions) (*ReaperService, error) {
	if opts.Repo == nil {
		return nil, errors.New("InvestigationReaperRepository is required")
	}
	if opts.Config.StaleAfter <= 0 {
		return nil, errors.New("reaper stale-after must be positive")
	}
	if opts.Config.BatchSize <= 0 {
		return nil, errors.New("reaper batch size must be positive")
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "reaper_service")
		logger.Debug("ReaperService initialized",
			"interval", opts.Config.Interval,
			"stale_after", opts.Config.StaleAfter,
			"batch_size", opts.Config.BatchSize,
		)
	}

	return &ReaperService{
		repo:      opts.Repo,
		config:    opts.Config,
		logger:    logger,
		metrics:   opts.Metrics,
		announcer: opts.Announcer,
	}, nil
}

// MustNewReaperService constructs a new ReaperService and panics on error.
func MustNewReaperService(opts ReaperServiceOptions) *ReaperService {
	svc, err := NewReaperService(opts)
	if err != nil {
		panic(fmt.Sprintf("failed to create ReaperService: %v", err))
	}
	return svc
}

// Run starts the reaper loop and runs until the context is cancelled.
// Returns nil on graceful shutdown (context.Canceled), error otherwise.
func (s *ReaperService) Run(ctx context.Context) error {
	if s.config.Interval <= 0 {
		return errors.New("reaper interval must be positive")
	}
	if s.logger != nil {
		s.logger.InfoContext(ctx, "starting reaper service", "interval", s.config.Interval)
	}

	// Jitter keeps replicas that start together from reaping in lockstep.
	s.waitWithJitter(ctx)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	if _, err := s.RunOnce(ctx); err != nil {
		s.logCleanupError(err, "initial reap")
	}

	for {
		select {
		case <-ctx.Done():
			if s.logger != nil {
				s.logger.InfoContext(ctx, "reaper service stopping", "reason", ctx.Err())
			}
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil {
				s.logCleanupError(err, "reap")
			}
		}
	}
}

// waitWithJitter adds a random delay up to 10% of the interval.
func (s *ReaperService) waitWithJitter(ctx context.Context) {
	maxJitter := int64(s.config.Interval / 10)
	if maxJitter <= 0 {
		return
	}

	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		if s.logger != nil {
			s.logger.WarnContext(ctx, "failed to generate jitter, skipping", "error", err)
		}
		return
	}

	jitterNanos := binary.BigEndian.Uint64(buf[:]) % uint64(maxJitter)
	jitter := time.Duration(int64(jitterNanos)) // #nosec G115 - bounded by maxJitter which is int64

	select {
	case <-time.After(jitter):
	case <-ctx.Done():
	}
}

// RunOnce fails every stale investigation, batch by batch, and returns the failed ids.
// Each batch is announced as soon as it is committed.
func (s *ReaperService) RunOnce(ctx context.Context) ([]string, error) {
	start := time.Now()
	var reaped []string
	var err error
	for {
		var batch []string
		batch, err = s.repo.FailStale(ctx, core.FailStaleParams{
			MaxAge:    s.config.StaleAfter,
			BatchSize: s.config.BatchSize,
			Reason:    ReapReason,
		})
		reaped = append(reaped, batch...)
		if len(batch) > 0 && s.announcer != nil {
			s.announcer.AnnounceFinal(context.WithoutCancel(ctx), batch...)
		}
		if err != nil || len(batch) < s.config.BatchSize {
			break
		}
		if ctx.Err() != nil {
			err = ctx.Err()
			break
		}
	}

	total := int64(len(reaped))
	if total > 0 && s.logger != nil {
		s.logger.InfoContext(ctx, "failed stale investigations",
			"count", total,
			"stale_after", s.config.StaleAfter,
		)
	}
	s.emitMetrics(total, err, time.Since(start))
	if err != nil {
		return reaped, fmt.Errorf("fail stale investigations: %w", err)
	}
	return reaped, nil
}

func (s *ReaperService) emitMetrics(count int64, err error, elapsed time.Duration) {
	if s.metrics == nil {
		return
	}

	metricErr := suppressContextCancellation(err)
	result := metrics.ResultSuccess
	switch {
	case metricErr != nil:
		result = metrics.ResultError
	case count == 0:
		result = metrics.ResultNoop
	}

	tags := map[string]string{"result": result}
	if metricErr != nil {
		if class := obserrors.Classify(metricErr); class != "" {
			tags["error_class"] = class
		}
	}

	s.metrics.Count("reaper.cleanup", 1, tags)
	if elapsed > 0 {
		s.metrics.Timing("reaper.cleanup_duration", elapsed, metrics.CloneTags(tags))
	}
	if count > 0 {
		metrics.EmitInvestigationLifecycle(s.metrics, metrics.InvestigationMetric{
			Transition: metrics.TransitionReaped,
			Count:      count,
		})
	}
	if metricErr == nil {
		s.metrics.Gauge("reaper.last_success_epoch", float64(time.Now().Unix()), nil)
	}
}

func (s *ReaperService) logCleanupError(err error, label string) {
	if err == nil || s.logger == nil {
		return
	}
	if isContextCancellation(err) {
		s.logger.Debug(label+" cancelled by context", "error", err)
		return
	}
	s.logger.Error(label+" failed", "error", err)
}

func isContextCancellation(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func suppressContextCancellation(err error) error {
	if isContextCancellation(err) {
		return nil
	}
	return err
}
