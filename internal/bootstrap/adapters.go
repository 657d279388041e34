package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/target/mmk-investigations/config"
	"github.com/target/mmk-investigations/internal/adapters/reaper"
	"github.com/target/mmk-investigations/internal/core"
	"github.com/target/mmk-investigations/internal/observability/statsd"
	"github.com/target/mmk-investigations/internal/service"
)

// ReaperConfig contains configuration for the reaper background service.
type ReaperConfig struct {
	DB        *sql.DB
	Repo      core.InvestigationReaperRepository // Optional: wins over DB
	Logger    *slog.Logger
	Config    config.ReaperConfig
	Metrics   statsd.Sink
	Announcer service.Announcer // Optional: ends progress streams of reaped investigations
}

// RunReaper runs the stale-investigation reaper until ctx is done.
func RunReaper(ctx context.Context, cfg ReaperConfig) error {
	runner, err := reaper.NewRunner(reaper.RunnerOptions{
		DB:        cfg.DB,
		Repo:      cfg.Repo,
		Config:    cfg.Config,
		Logger:    cfg.Logger,
		Metrics:   cfg.Metrics,
		Announcer: cfg.Announcer,
	})
	if err != nil {
		return fmt.Errorf("create reaper runner: %w", err)
	}

	return runner.Run(ctx)
}
