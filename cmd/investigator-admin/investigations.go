package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/target/mmk-investigations/config"
	"github.com/target/mmk-investigations/internal/adapters/capabilityhttp"
	redisadapter "github.com/target/mmk-investigations/internal/adapters/redis"
	"github.com/target/mmk-investigations/internal/adapters/reaper"
	"github.com/target/mmk-investigations/internal/bootstrap"
	"github.com/target/mmk-investigations/internal/data"
	"github.com/target/mmk-investigations/internal/domain/capability"
	"github.com/target/mmk-investigations/internal/domain/model"
	"github.com/target/mmk-investigations/internal/service"
	"github.com/target/mmk-investigations/internal/util"
)

const defaultQueryTimeout = 30 * time.Second

type listInvestigationsOptions struct {
	Status string
	Limit  int
	Offset int
}

type showInvestigationOptions struct {
	ID      string
	RawJSON bool
	Report  bool
}

type reapOptions struct {
	StaleAfter time.Duration
	BatchSize  int
}

type watchOptions struct {
	ID      string
	Timeout time.Duration
}

func runListCapabilities(cmdCtx *commandContext, _ []string) error {
	registry, err := bootstrap.BuildRegistry(cmdCtx.Ctx, bootstrap.RegistryOptions{
		Capabilities: cmdCtx.Config.Capabilities,
		HTTP:         cmdCtx.Config.HTTP,
		Logger:       cmdCtx.Logger,
	})
	if err != nil {
		return err
	}
	return renderCapabilities(cmdCtx.Out, registry.List())
}

func renderCapabilities(w io.Writer, descs []capability.Descriptor) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if err := writef(tw, "NAME\tCATEGORY\tPRIORITY\tTIMEOUT\tMODE\tTAGS\n"); err != nil {
		return err
	}
	for _, d := range descs {
		mode := "local"
		if _, ok := d.Executor.(*capabilityhttp.Executor); ok {
			mode = "remote"
		}
		tags := make([]string, 0, len(d.Tags))
		for _, t := range d.Tags {
			tags = append(tags, string(t))
		}
		if err := writef(tw, "%s\t%s\t%d\t%s\t%s\t%s\n",
			d.Name, d.Category, d.Priority, d.Timeout, mode, strings.Join(tags, ","),
		); err != nil {
			return err
		}
	}
	return tw.Flush()
}

func runListInvestigations(cmdCtx *commandContext, args []string) error {
	opts, err := parseListInvestigationsFlags(args)
	if err != nil {
		return err
	}
	listOpts := model.InvestigationListOptions{Limit: opts.Limit, Offset: opts.Offset}
	if opts.Status != "" {
		status := model.InvestigationStatus(opts.Status)
		listOpts.Status = &status
	}

	return withStore(cmdCtx, func(ctx context.Context, repo *data.InvestigationRepo) error {
		invs, listErr := repo.List(ctx, listOpts)
		if listErr != nil {
			return fmt.Errorf("list investigations: %w", listErr)
		}
		return renderInvestigationTable(cmdCtx.Out, invs)
	})
}

func renderInvestigationTable(w io.Writer, invs []*model.Investigation) error {
	if len(invs) == 0 {
		return writeln(w, "(no investigations found)")
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if err := writef(tw, "ID\tTYPE\tTARGET\tDEPTH\tSTATUS\tCREATED\tCOMPLETED\n"); err != nil {
		return err
	}
	for _, inv := range invs {
		created := inv.CreatedAt
		if err := writef(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			inv.ID, inv.Type, inv.Target.Primary(), inv.Depth, inv.Status,
			util.FormatTime(&created), util.FormatTime(inv.CompletedAt),
		); err != nil {
			return err
		}
	}
	return tw.Flush()
}

func runShowInvestigation(cmdCtx *commandContext, args []string) error {
	opts, err := parseShowInvestigationFlags(args)
	if err != nil {
		return err
	}

	return withStore(cmdCtx, func(ctx context.Context, repo *data.InvestigationRepo) error {
		inv, getErr := repo.GetByID(ctx, opts.ID)
		if getErr != nil {
			return fmt.Errorf("get investigation %s: %w", opts.ID, getErr)
		}
		if opts.Report {
			body, reportErr := repo.GetReport(ctx, opts.ID)
			if reportErr != nil {
				return fmt.Errorf("get report %s: %w", opts.ID, reportErr)
			}
			return writeln(cmdCtx.Out, body)
		}
		if opts.RawJSON {
			enc := json.NewEncoder(cmdCtx.Out)
			enc.SetIndent("", "  ")
			return enc.Encode(inv)
		}
		return renderInvestigation(cmdCtx.Out, inv)
	})
}

func renderInvestigation(w io.Writer, inv *model.Investigation) error {
	header := []struct{ label, value string }{
		{"ID", inv.ID},
		{"Type", string(inv.Type)},
		{"Target", inv.Target.Primary()},
		{"Platforms", strings.Join(inv.Platforms, ", ")},
		{"Depth", string(inv.Depth)},
		{"Status", string(inv.Status)},
		{"Created", util.FormatTime(&inv.CreatedAt)},
		{"Completed", util.FormatTime(inv.CompletedAt)},
	}
	if inv.Query != "" {
		header = append(header, struct{ label, value string }{"Query", inv.Query})
	}
	if inv.ReportRef != nil {
		header = append(header, struct{ label, value string }{"Report", *inv.ReportRef})
	}
	for _, h := range header {
		if h.value == "" {
			continue
		}
		if err := writef(w, "%-10s %s\n", h.label+":", h.value); err != nil {
			return err
		}
	}
	if len(inv.Summary) > 0 {
		if err := writef(w, "%-10s %s\n", "Summary:", string(inv.Summary)); err != nil {
			return err
		}
	}
	if len(inv.Executions) == 0 {
		return nil
	}

	if err := writeln(w); err != nil {
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if err := writef(tw, "#\tCAPABILITY\tCATEGORY\tSTATUS\tDURATION\tCONFIDENCE\tERROR\n"); err != nil {
		return err
	}
	for _, rec := range inv.Executions {
		confidence := "—"
		if rec.Confidence != nil {
			confidence = fmt.Sprintf("%.2f", *rec.Confidence)
		}
		errText := ""
		if rec.Error != nil {
			errText = *rec.Error
			if rec.ErrorClass != nil {
				errText = *rec.ErrorClass + ": " + errText
			}
		}
		if err := writef(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			rec.Position, rec.Capability, rec.Category, rec.Status,
			util.FormatDurationMs(rec.Metrics.DurationMs), confidence, errText,
		); err != nil {
			return err
		}
	}
	return tw.Flush()
}

func runReap(cmdCtx *commandContext, args []string) error {
	opts, err := parseReapFlags(args, cmdCtx.Config.Reaper)
	if err != nil {
		return err
	}
	reaperCfg := config.ReaperConfig{
		Interval:   cmdCtx.Config.Reaper.Interval,
		StaleAfter: opts.StaleAfter,
		BatchSize:  opts.BatchSize,
	}
	reaperCfg.Sanitize()

	return withDatabase(cmdCtx, 2*time.Minute, func(ctx context.Context, db *sql.DB) error {
		repo := data.NewInvestigationRepo(db, data.RepoConfig{Logger: cmdCtx.Logger})
		runnerOpts := reaper.RunnerOptions{Repo: repo, Config: reaperCfg, Logger: cmdCtx.Logger}

		// Streams served by running replicas follow reaped investigations through the relay.
		if cmdCtx.Config.Progress.RelayEnabled {
			relay, closeRelay, relayErr := openRelay(ctx, cmdCtx)
			if relayErr != nil {
				return relayErr
			}
			defer closeRelay()
			announcer, annErr := service.NewFinalAnnouncer(service.FinalAnnouncerOptions{
				Repo:   repo,
				Relay:  relay,
				Logger: cmdCtx.Logger,
			})
			if annErr != nil {
				return annErr
			}
			runnerOpts.Announcer = announcer
		}

		runner, runnerErr := reaper.NewRunner(runnerOpts)
		if runnerErr != nil {
			return runnerErr
		}
		ids, reapErr := runner.RunOnce(ctx)
		if reapErr != nil {
			return reapErr
		}
		return renderReaped(cmdCtx.Out, ids, reaperCfg.StaleAfter)
	})
}

func renderReaped(w io.Writer, ids []string, staleAfter time.Duration) error {
	if err := writef(w, "Failed %d stale investigation(s) older than %s\n", len(ids), staleAfter); err != nil {
		return err
	}
	for _, id := range ids {
		if err := writeln(w, "  "+id); err != nil {
			return err
		}
	}
	return nil
}

// openRelay connects to Redis and starts a progress relay. The returned func flushes queued
// events and closes both.
func openRelay(ctx context.Context, cmdCtx *commandContext) (*redisadapter.ProgressRelay, func(), error) {
	client, err := bootstrap.ConnectRedis(bootstrap.DatabaseConfig{
		RedisConfig: cmdCtx.Config.Redis,
		Logger:      cmdCtx.Logger,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("connect redis: %w", err)
	}
	closeClient := func() {
		if cerr := client.Close(); cerr != nil {
			cmdCtx.Logger.Warn("redis close failed", "error", cerr)
		}
	}

	relay, err := redisadapter.NewProgressRelay(redisadapter.ProgressRelayOptions{
		Client:        client,
		ChannelPrefix: cmdCtx.Config.Progress.RelayChannelPrefix,
		Logger:        cmdCtx.Logger,
	})
	if err != nil {
		closeClient()
		return nil, nil, err
	}
	return relay, func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if cerr := relay.Close(closeCtx); cerr != nil {
			cmdCtx.Logger.Warn("relay close failed", "error", cerr)
		}
		closeClient()
	}, nil
}

func runWatchProgress(cmdCtx *commandContext, args []string) error {
	opts, err := parseWatchFlags(args)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmdCtx.Ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	relay, closeRelay, err := openRelay(ctx, cmdCtx)
	if err != nil {
		return err
	}
	defer closeRelay()

	events, release, err := relay.Subscribe(ctx, opts.ID)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", opts.ID, err)
	}
	defer release()

	cmdCtx.Logger.Info("watching investigation progress", "investigation_id", opts.ID, "channel", relay.Channel(opts.ID))
	return printEvents(ctx, cmdCtx.Out, events)
}

// printEvents writes one JSON line per event until a terminal event arrives.
func printEvents(ctx context.Context, w io.Writer, events <-chan model.ProgressEvent) error {
	enc := json.NewEncoder(w)
	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return errors.New("timed out waiting for a terminal event")
			}
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if err := enc.Encode(ev); err != nil {
				return fmt.Errorf("print event: %w", err)
			}
			if ev.Kind.IsTerminal() {
				return nil
			}
		}
	}
}

func withStore(cmdCtx *commandContext, f func(context.Context, *data.InvestigationRepo) error) error {
	if !cmdCtx.Config.UsesPostgres() {
		return errors.New("inspecting investigations requires STORE_DRIVER=postgres")
	}
	return withDatabase(cmdCtx, defaultQueryTimeout, func(ctx context.Context, db *sql.DB) error {
		return f(ctx, data.NewInvestigationRepo(db, data.RepoConfig{Logger: cmdCtx.Logger}))
	})
}

func parseListInvestigationsFlags(args []string) (listInvestigationsOptions, error) {
	fs := flag.NewFlagSet("list-investigations", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts listInvestigationsOptions
	fs.StringVar(&opts.Status, "status", "", "Filter by status (pending, running, completed, failed)")
	fs.IntVar(&opts.Limit, "limit", 20, "Maximum number of investigations to show")
	fs.IntVar(&opts.Offset, "offset", 0, "Number of investigations to skip")

	if err := fs.Parse(args); err != nil {
		return listInvestigationsOptions{}, err
	}
	opts.Status = strings.ToLower(strings.TrimSpace(opts.Status))
	if opts.Status != "" && !model.InvestigationStatus(opts.Status).Valid() {
		return listInvestigationsOptions{}, fmt.Errorf("invalid --status %q", opts.Status)
	}
	if opts.Limit <= 0 || opts.Limit > 1000 {
		return listInvestigationsOptions{}, errors.New("--limit must be between 1 and 1000")
	}
	if opts.Offset < 0 {
		return listInvestigationsOptions{}, errors.New("--offset must not be negative")
	}
	return opts, nil
}

func parseShowInvestigationFlags(args []string) (showInvestigationOptions, error) {
	fs := flag.NewFlagSet("show-investigation", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts showInvestigationOptions
	fs.StringVar(&opts.ID, "id", "", "Investigation id (required)")
	fs.BoolVar(&opts.RawJSON, "json", false, "Print the investigation as JSON")
	fs.BoolVar(&opts.Report, "report", false, "Print the stored report instead")

	if err := fs.Parse(args); err != nil {
		return showInvestigationOptions{}, err
	}
	opts.ID = strings.TrimSpace(opts.ID)
	if opts.ID == "" {
		return showInvestigationOptions{}, errors.New("--id is required")
	}
	return opts, nil
}

func parseReapFlags(args []string, defaults config.ReaperConfig) (reapOptions, error) {
	fs := flag.NewFlagSet("reap", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	opts := reapOptions{StaleAfter: defaults.StaleAfter, BatchSize: defaults.BatchSize}
	fs.DurationVar(&opts.StaleAfter, "stale-after", defaults.StaleAfter, "Fail running investigations idle for longer than this")
	fs.IntVar(&opts.BatchSize, "batch-size", defaults.BatchSize, "Investigations failed per statement")

	if err := fs.Parse(args); err != nil {
		return reapOptions{}, err
	}
	if opts.StaleAfter <= 0 {
		return reapOptions{}, errors.New("--stale-after must be greater than zero")
	}
	if opts.BatchSize <= 0 {
		return reapOptions{}, errors.New("--batch-size must be greater than zero")
	}
	return opts, nil
}

func parseWatchFlags(args []string) (watchOptions, error) {
	fs := flag.NewFlagSet("watch-progress", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	opts := watchOptions{Timeout: time.Hour}
	fs.StringVar(&opts.ID, "id", "", "Investigation id (required)")
	fs.DurationVar(&opts.Timeout, "timeout", time.Hour, "Stop watching after this long")

	if err := fs.Parse(args); err != nil {
		return watchOptions{}, err
	}
	opts.ID = strings.TrimSpace(opts.ID)
	if opts.ID == "" {
		return watchOptions{}, errors.New("--id is required")
	}
	if opts.Timeout <= 0 {
		return watchOptions{}, errors.New("--timeout must be greater than zero")
	}
	return opts, nil
}
