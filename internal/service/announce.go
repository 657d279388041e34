package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/target/mmk-investigations/internal/core"
	"github.com/target/mmk-investigations/internal/domain/model"
	"github.com/target/mmk-investigations/internal/domain/progress"
)

// Announcer publishes the final state of investigations finished outside a coordinator run.
type Announcer interface {
	AnnounceFinal(ctx context.Context, ids ...string)
}

// FinalAnnouncerOptions groups dependencies for FinalAnnouncer.
type FinalAnnouncerOptions struct {
	Repo   core.InvestigationRepository // Required: job store
	Hub    *progress.Hub                // Optional: subscribers in this process
	Relay  core.ProgressRelay           // Optional: subscribers in other processes
	Logger *slog.Logger                 // Optional: structured logger
}

// FinalAnnouncer reads finished investigations back from the store and publishes their
// terminal event, so streams opened before the store write still end.
type FinalAnnouncer struct {
	repo   core.InvestigationRepository
	hub    *progress.Hub
	relay  core.ProgressRelay
	logger *slog.Logger
	now    func() time.Time
}

var _ Announcer = (*FinalAnnouncer)(nil)

// NewFinalAnnouncer constructs a FinalAnnouncer.
func NewFinalAnnouncer(opts FinalAnnouncerOptions) (*FinalAnnouncer, error) {
	if opts.Repo == nil {
		return nil, errors.New("InvestigationRepository is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &FinalAnnouncer{
		repo:   opts.Repo,
		hub:    opts.Hub,
		relay:  opts.Relay,
		logger: logger.With("component", "final_announcer"),
		now:    time.Now,
	}, nil
}

// AnnounceFinal publishes one terminal event per id. Ids that cannot be read or are not
// terminal are skipped.
func (a *FinalAnnouncer) AnnounceFinal(ctx context.Context, ids ...string) {
	for _, id := range ids {
		inv, err := a.repo.GetByID(ctx, id)
		if err != nil {
			a.logger.WarnContext(ctx, "cannot announce final state", "investigation_id", id, "error", err)
			continue
		}
		if !inv.Status.IsTerminal() {
			continue
		}
		ev := model.TerminalEventFor(inv, a.now().UTC())
		ev.Replay = false
		if a.hub != nil {
			a.hub.Publish(id, ev)
		}
		if a.relay != nil {
			a.relay.Publish(ctx, ev)
		}
	}
}
