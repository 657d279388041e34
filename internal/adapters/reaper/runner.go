// Package reaper provides adapters for running the stale-investigation reaper.
package reaper

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/target/mmk-investigations/config"
	"github.com/target/mmk-investigations/internal/core"
	"github.com/target/mmk-investigations/internal/data"
	"github.com/target/mmk-investigations/internal/observability/statsd"
	"github.com/target/mmk-investigations/internal/service"
)

// Runner constructs the reaper service and runs its loop.
type Runner struct {
	reaper *service.ReaperService
	logger *slog.Logger
}

// RunnerOptions holds the dependencies for creating a Runner.
// Either DB or Repo must be set; Repo wins when both are.
type RunnerOptions struct {
	DB     *sql.DB
	Config config.ReaperConfig
	Logger *slog.Logger

	Repo      core.InvestigationReaperRepository
	Metrics   statsd.Sink
	Announcer service.Announcer
}

// NewRunner creates a new reaper runner with the given options.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if err := validateRunnerOptions(&opts); err != nil {
		return nil, err
	}

	repo := opts.Repo
	if repo == nil {
		repo = data.NewInvestigationRepo(opts.DB, data.RepoConfig{Logger: opts.Logger})
	}
	reaper, err := service.NewReaperService(service.ReaperServiceOptions{
		Repo:      repo,
		Config:    opts.Config,
		Logger:    opts.Logger,
		Metrics:   opts.Metrics,
		Announcer: opts.Announcer,
	})
	if err != nil {
		return nil, fmt.Errorf("wire reaper service: %w", err)
	}

	return &Runner{reaper: reaper, logger: opts.Logger}, nil
}

func validateRunnerOptions(opts *RunnerOptions) error {
	if opts.DB == nil && opts.Repo == nil {
		return errors.New("database connection or reaper repository is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return nil
}

// Run starts the reaper loop and runs until the context is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting reaper runner")
	return r.reaper.Run(ctx)
}

// RunOnce performs a single reap pass and returns the failed ids.
func (r *Runner) RunOnce(ctx context.Context) ([]string, error) {
	return r.reaper.RunOnce(ctx)
}
