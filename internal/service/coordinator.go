package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/target/mmk-investigations/internal/core"
	"github.com/target/mmk-investigations/internal/domain/capability"
	"github.com/target/mmk-investigations/internal/domain/model"
	"github.com/target/mmk-investigations/internal/domain/progress"
	obserrors "github.com/target/mmk-investigations/internal/observability/errors"
	"github.com/target/mmk-investigations/internal/observability/metrics"
	"github.com/target/mmk-investigations/internal/observability/notify"
	"github.com/target/mmk-investigations/internal/observability/statsd"
)

// ErrRunNotActive is returned when this process is not driving the investigation.
var ErrRunNotActive = errors.New("investigation is not running in this process")

const (
	defaultMaxConcurrency       = 4
	defaultCancelGrace          = 10 * time.Second
	defaultCallbackPollInterval = 2 * time.Second
	defaultStoreTimeout         = 10 * time.Second
	defaultReportTimeout        = 30 * time.Second

	closeReasonCanceled = "investigation canceled"
	closeReasonFailed   = "investigation failed"
)

// CoordinatorConfig tunes plan execution.
type CoordinatorConfig struct {
	// MaxConcurrency bounds concurrent capability invocations within one investigation.
	MaxConcurrency int
	// CancelGrace is how long dispatched invocations may keep running after a cancel.
	CancelGrace time.Duration
	// FailWhenAllFailed fails the investigation when every planned capability failed.
	FailWhenAllFailed bool
	// CallbackPollInterval is how often a deferred capability's record is re-read from the
	// store, which picks up callbacks delivered to another process.
	CallbackPollInterval time.Duration
	StoreTimeout         time.Duration
	ReportTimeout        time.Duration
}

func (c CoordinatorConfig) withDefaults() CoordinatorConfig {
	if c.MaxConcurrency <= 0 {
		c.MaxConcurrency = defaultMaxConcurrency
	}
	if c.CancelGrace <= 0 {
		c.CancelGrace = defaultCancelGrace
	}
	if c.CallbackPollInterval <= 0 {
		c.CallbackPollInterval = defaultCallbackPollInterval
	}
	if c.StoreTimeout <= 0 {
		c.StoreTimeout = defaultStoreTimeout
	}
	if c.ReportTimeout <= 0 {
		c.ReportTimeout = defaultReportTimeout
	}
	return c
}

// CoordinatorDeps groups the collaborators the coordinator drives.
type CoordinatorDeps struct {
	Repo     core.InvestigationRepository // Required: job store
	Registry *capability.Registry         // Required: frozen capability registry
	Hub      *progress.Hub                // Required: live progress fan-out
	Reports  core.ReportGenerator         // Required: report collaborator
	Relay    core.ProgressRelay           // Optional: cross-process progress relay
	Notifier FailureNotifier              // Optional: alerting on failed investigations
}

// FailureNotifier receives investigations that ended in failure.
type FailureNotifier interface {
	NotifyInvestigationFailure(ctx context.Context, payload notify.InvestigationFailurePayload)
}

// CoordinatorOptions groups dependencies for Coordinator.
type CoordinatorOptions struct {
	Deps    CoordinatorDeps
	Config  CoordinatorConfig
	Logger  *slog.Logger // Optional: structured logger
	Metrics statsd.Sink  // Optional: metrics sink (StatsD-compatible)
}

// Coordinator drives investigations through their state machine. Each investigation runs on
// its own goroutine; capability invocations within it run concurrently up to MaxConcurrency.
// A single capability failing never fails the investigation; store faults, an internal panic,
// and (by policy) every capability failing do.
type Coordinator struct {
	repo     core.InvestigationRepository
	registry *capability.Registry
	hub      *progress.Hub
	reports  core.ReportGenerator
	relay    core.ProgressRelay
	notifier FailureNotifier
	cfg      CoordinatorConfig
	logger   *slog.Logger
	metrics  statsd.Sink
	now      func() time.Time

	mu       sync.Mutex
	runs     map[string]*run
	shutdown bool
	wg       sync.WaitGroup
}

// NewCoordinator constructs a Coordinator.
func NewCoordinator(opts CoordinatorOptions) (*Coordinator, error) {
	d := opts.Deps
	switch {
	case d.Repo == nil:
		return nil, errors.New("InvestigationRepository is required")
	case d.Registry == nil:
		return nil, errors.New("capability registry is required")
	case d.Hub == nil:
		return nil, errors.New("progress hub is required")
	case d.Reports == nil:
		return nil, errors.New("ReportGenerator is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		repo:     d.Repo,
		registry: d.Registry,
		hub:      d.Hub,
		reports:  d.Reports,
		relay:    d.Relay,
		notifier: d.Notifier,
		cfg:      opts.Config.withDefaults(),
		logger:   logger.With("component", "coordinator"),
		metrics:  opts.Metrics,
		now:      time.Now,
		runs:     make(map[string]*run),
	}, nil
}

// MustNewCoordinator constructs a Coordinator and panics on error.
func MustNewCoordinator(opts CoordinatorOptions) *Coordinator {
	c, err := NewCoordinator(opts)
	if err != nil {
		panic(fmt.Sprintf("failed to create Coordinator: %v", err))
	}
	return c
}

// run is the in-memory state of one investigation being driven by this process.
type run struct {
	id      string
	reqType model.RequestType
	target  string
	depth   model.Depth
	entries []model.PlanEntry
	started time.Time

	// mu makes each record write and its progress publish one step for observers.
	mu        sync.Mutex
	counted   map[string]bool
	succeeded int
	failed    int
	percent   int
	aborted   bool // the store reported the investigation terminal
	closed    bool // the terminal event was published

	waitMu  sync.Mutex
	waiters map[string]chan struct{}

	dispatchCtx  context.Context
	stopDispatch context.CancelFunc
	execCtx      context.Context
	abandon      context.CancelFunc
	canceled     atomic.Bool
	shuttingDown atomic.Bool
	cancelOnce   sync.Once
	done         chan struct{}
}

func (r *run) terminalCount() int {
	return len(r.counted)
}

func (r *run) entry(capabilityName string) (model.PlanEntry, bool) {
	for _, e := range r.entries {
		if e.Capability == capabilityName {
			return e, true
		}
	}
	return model.PlanEntry{}, false
}

func (r *run) waiter(capabilityName string) chan struct{} {
	r.waitMu.Lock()
	defer r.waitMu.Unlock()
	ch, ok := r.waiters[capabilityName]
	if !ok {
		ch = make(chan struct{}, 1)
		r.waiters[capabilityName] = ch
	}
	return ch
}

func (r *run) wake(capabilityName string) {
	select {
	case r.waiter(capabilityName) <- struct{}{}:
	default:
	}
}

// Launch moves a persisted pending investigation to running and starts executing its plan
// in the background. It returns once the investigation is running.
func (c *Coordinator) Launch(ctx context.Context, inv *model.Investigation, plan model.Plan) error {
	if inv == nil || inv.ID == "" {
		return errors.New("launch: investigation is required")
	}
	c.mu.Lock()
	if c.shutdown {
		c.mu.Unlock()
		return errors.New("launch: coordinator is shutting down")
	}
	if _, ok := c.runs[inv.ID]; ok {
		c.mu.Unlock()
		return fmt.Errorf("launch %s: already running", inv.ID)
	}
	c.mu.Unlock()

	if err := c.hub.Open(inv.ID); err != nil && !errors.Is(err, progress.ErrStreamExists) {
		return fmt.Errorf("launch %s: %w", inv.ID, err)
	}
	if err := c.repo.MarkRunning(ctx, inv.ID); err != nil {
		c.hub.Discard(inv.ID)
		return fmt.Errorf("launch %s: %w", inv.ID, err)
	}

	r := &run{
		id:      inv.ID,
		reqType: inv.Type,
		target:  inv.Target.Primary(),
		depth:   inv.Depth.OrDefault(),
		entries: append([]model.PlanEntry(nil), plan.Entries...),
		started: c.now(),
		counted: make(map[string]bool, len(plan.Entries)),
		waiters: make(map[string]chan struct{}),
		done:    make(chan struct{}),
	}
	r.execCtx, r.abandon = context.WithCancel(context.Background())
	r.dispatchCtx, r.stopDispatch = context.WithCancel(r.execCtx)

	c.mu.Lock()
	c.runs[r.id] = r
	c.wg.Add(1)
	c.mu.Unlock()

	c.logger.InfoContext(ctx, "investigation started",
		"investigation_id", r.id,
		"capabilities", len(r.entries),
		"depth", r.depth,
	)
	metrics.EmitInvestigationLifecycle(c.metrics, metrics.InvestigationMetric{
		Transition: metrics.TransitionStarted,
		Depth:      string(r.depth),
		Planned:    len(r.entries),
	})
	c.publish(r, model.ProgressEvent{Kind: model.ProgressRunning, Status: model.ExecutionStatusRunning})

	go c.execute(r)
	return nil
}

// Cancel stops dispatching new capabilities for a running investigation. Dispatched
// invocations get CancelGrace to finish before they are abandoned.
func (c *Coordinator) Cancel(ctx context.Context, investigationID string) error {
	r := c.lookup(investigationID)
	if r == nil {
		return ErrRunNotActive
	}
	c.cancelRun(r, c.cfg.CancelGrace)
	c.logger.InfoContext(ctx, "investigation cancel requested",
		"investigation_id", investigationID,
		"grace", c.cfg.CancelGrace,
	)
	return nil
}

func (c *Coordinator) cancelRun(r *run, grace time.Duration) {
	r.canceled.Store(true)
	r.cancelOnce.Do(func() {
		r.stopDispatch()
		if grace <= 0 {
			r.abandon()
			return
		}
		time.AfterFunc(grace, r.abandon)
	})
}

// Running reports whether this process is driving the investigation.
func (c *Coordinator) Running(investigationID string) bool {
	return c.lookup(investigationID) != nil
}

// Wait blocks until the investigation's run finishes or ctx is done. It returns
// immediately when the investigation is not running in this process.
func (c *Coordinator) Wait(ctx context.Context, investigationID string) error {
	r := c.lookup(investigationID)
	if r == nil {
		return nil
	}
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown cancels every run without grace and waits for them to record their final state.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	c.shutdown = true
	runs := make([]*run, 0, len(c.runs))
	for _, r := range c.runs {
		runs = append(runs, r)
	}
	c.mu.Unlock()

	for _, r := range runs {
		r.shuttingDown.Store(true)
		c.cancelRun(r, 0)
	}

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("coordinator shutdown: %w", ctx.Err())
	}
}

// DeliverCallback applies an out-of-band capability result to an investigation driven by
// this process. owned is false when no local run exists; the caller then writes the store
// directly and the owning process picks the record up by polling.
func (c *Coordinator) DeliverCallback(
	ctx context.Context,
	investigationID string,
	payload model.CallbackPayload,
) (applied, owned bool, err error) {
	r := c.lookup(investigationID)
	if r == nil {
		return false, false, nil
	}
	entry, ok := r.entry(payload.Capability)
	if !ok {
		return false, true, fmt.Errorf("callback %s/%s: %w", investigationID, payload.Capability, core.ErrExecutionNotFound)
	}
	res := payload.Result()
	applied, err = c.record(r, entry, res)
	if err != nil {
		return false, true, err
	}
	r.wake(entry.Capability)
	c.logger.DebugContext(ctx, "callback delivered",
		"investigation_id", investigationID,
		"capability", entry.Capability,
		"applied", applied,
	)
	return applied, true, nil
}

func (c *Coordinator) lookup(id string) *run {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.runs[id]
}

func (c *Coordinator) storeCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), c.cfg.StoreTimeout)
}

func (c *Coordinator) execute(r *run) {
	defer func() {
		r.abandon()
		c.mu.Lock()
		delete(c.runs, r.id)
		c.mu.Unlock()
		close(r.done)
		c.wg.Done()
	}()

	err := c.executePlan(r)
	c.finish(r, err)
}

// executePlan dispatches every plan entry and waits for all of them to reach a terminal
// record. The returned error is an infrastructure fault.
func (c *Coordinator) executePlan(r *run) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("coordinator panic: %v", rec)
		}
	}()

	g, gctx := errgroup.WithContext(r.execCtx)
	sem := make(chan struct{}, c.cfg.MaxConcurrency)
	var dispatchErr error

dispatch:
	for _, entry := range r.entries {
		select {
		case sem <- struct{}{}:
		case <-r.dispatchCtx.Done():
			break dispatch
		case <-gctx.Done():
			break dispatch
		}
		if r.dispatchCtx.Err() != nil || gctx.Err() != nil {
			<-sem
			break
		}

		start, startErr := c.markDispatched(r, entry)
		if startErr != nil {
			<-sem
			dispatchErr = startErr
			break
		}
		if !start {
			<-sem
			continue
		}

		g.Go(func() error {
			defer func() { <-sem }()
			return c.runEntry(gctx, r, entry)
		})
	}

	waitErr := g.Wait()
	if dispatchErr != nil {
		return dispatchErr
	}
	return waitErr
}

// markDispatched records the entry as running and announces it. It reports false when the
// record already reached a terminal status, e.g. an early callback.
func (c *Coordinator) markDispatched(r *run, entry model.PlanEntry) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.aborted {
		return false, core.ErrInvestigationTerminal
	}

	ctx, cancel := c.storeCtx()
	defer cancel()
	applied, err := c.repo.UpdateExecution(ctx, core.UpdateExecutionParams{
		InvestigationID: r.id,
		Capability:      entry.Capability,
		Status:          model.ExecutionStatusRunning,
	})
	if err != nil {
		if errors.Is(err, core.ErrInvestigationTerminal) {
			r.aborted = true
		}
		return false, fmt.Errorf("dispatch %s: %w", entry.Capability, err)
	}
	if !applied {
		return false, c.adoptLocked(ctx, r, entry)
	}
	c.publishLocked(r, model.ProgressEvent{
		Kind:       model.ProgressRunning,
		Capability: entry.Capability,
		Status:     model.ExecutionStatusRunning,
	})
	return true, nil
}

func (c *Coordinator) runEntry(ctx context.Context, r *run, entry model.PlanEntry) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("coordinator panic running %s: %v", entry.Capability, rec)
		}
	}()

	res, invokeErr := c.registry.Invoke(ctx, entry.Capability, model.CapabilityInput{
		InvestigationID: r.id,
		Capability:      entry.Capability,
		Depth:           r.depth,
		Params:          entry.Params,
	})
	if invokeErr != nil {
		res = model.CapabilityResult{
			Status:     model.ResultFailed,
			Error:      invokeErr.Error(),
			ErrorClass: model.ErrorClassCapability,
		}
	}
	if res.Status == model.ResultDeferred {
		return c.awaitCallback(ctx, r, entry)
	}
	_, err = c.record(r, entry, res)
	return err
}

// awaitCallback waits for a deferred capability's callback until its timeout. Callbacks
// delivered to this process wake the waiter; the store poll finds the rest.
func (c *Coordinator) awaitCallback(ctx context.Context, r *run, entry model.PlanEntry) error {
	wake := r.waiter(entry.Capability)
	timeout := time.NewTimer(entry.Timeout)
	defer timeout.Stop()
	ticker := time.NewTicker(c.cfg.CallbackPollInterval)
	defer ticker.Stop()

	for {
		if done, err := c.settled(r, entry); done || err != nil {
			return err
		}
		select {
		case <-wake:
		case <-ticker.C:
		case <-timeout.C:
			_, err := c.record(r, entry, model.CapabilityResult{
				Status:     model.ResultFailed,
				Error:      fmt.Sprintf("capability %s did not report back within %s", entry.Capability, entry.Timeout),
				ErrorClass: model.ErrorClassTimeout,
			})
			return err
		case <-ctx.Done():
			_, err := c.record(r, entry, model.CapabilityResult{
				Status:     model.ResultFailed,
				Error:      fmt.Sprintf("capability %s canceled while awaiting callback", entry.Capability),
				ErrorClass: model.ErrorClassCanceled,
			})
			return err
		}
	}
}

// settled reports whether the entry already has a counted terminal record, adopting one
// written by another process.
func (c *Coordinator) settled(r *run, entry model.PlanEntry) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.counted[entry.Capability] {
		return true, nil
	}
	if r.aborted {
		return true, core.ErrInvestigationTerminal
	}
	ctx, cancel := c.storeCtx()
	defer cancel()
	if err := c.adoptLocked(ctx, r, entry); err != nil {
		return false, err
	}
	return r.counted[entry.Capability], nil
}

// record writes a terminal result and publishes the matching event as one step.
// It reports false when another writer got there first.
func (c *Coordinator) record(r *run, entry model.PlanEntry, res model.CapabilityResult) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.aborted || r.closed {
		return false, fmt.Errorf("record %s: %w", entry.Capability, core.ErrInvestigationTerminal)
	}

	ctx, cancel := c.storeCtx()
	defer cancel()
	status := res.ExecutionStatus()
	applied, err := c.repo.UpdateExecution(ctx, core.UpdateExecutionParams{
		InvestigationID: r.id,
		Capability:      entry.Capability,
		Status:          status,
		Result:          &res,
	})
	if err != nil {
		if errors.Is(err, core.ErrInvestigationTerminal) {
			r.aborted = true
		}
		return false, fmt.Errorf("record %s: %w", entry.Capability, err)
	}
	if !applied {
		return false, c.adoptLocked(ctx, r, entry)
	}
	c.countLocked(r, entry, status, res)
	return true, nil
}

// adoptLocked counts a terminal record this process did not write.
func (c *Coordinator) adoptLocked(ctx context.Context, r *run, entry model.PlanEntry) error {
	if r.counted[entry.Capability] {
		return nil
	}
	rec, err := c.repo.GetExecution(ctx, r.id, entry.Capability)
	if err != nil {
		return fmt.Errorf("read %s: %w", entry.Capability, err)
	}
	if !rec.Status.IsTerminal() {
		return nil
	}
	res := model.CapabilityResult{
		Status:     model.ResultFailed,
		Data:       rec.Data,
		Confidence: rec.Confidence,
		Metrics:    rec.Metrics,
	}
	if rec.Status == model.ExecutionStatusSuccess {
		res.Status = model.ResultSuccess
	}
	if rec.Error != nil {
		res.Error = *rec.Error
	}
	if rec.ErrorClass != nil {
		res.ErrorClass = *rec.ErrorClass
	}
	c.countLocked(r, entry, rec.Status, res)
	return nil
}

func (c *Coordinator) countLocked(r *run, entry model.PlanEntry, status model.ExecutionStatus, res model.CapabilityResult) {
	if r.counted[entry.Capability] {
		return
	}
	r.counted[entry.Capability] = true
	switch status {
	case model.ExecutionStatusSuccess:
		r.succeeded++
	case model.ExecutionStatusFailed:
		r.failed++
	}

	if total := len(r.entries); total > 0 {
		if pct := min(r.terminalCount()*100/total, 99); pct > r.percent {
			r.percent = pct
		}
	}
	c.publishLocked(r, model.ProgressEvent{
		Kind:       model.ProgressCapabilityCompleted,
		Capability: entry.Capability,
		Status:     status,
		Data:       res.Data,
		Error:      res.Error,
	})

	metrics.EmitCapabilityResult(c.metrics, metrics.CapabilityMetric{
		Capability: entry.Capability,
		Category:   entry.Category,
		Status:     string(status),
		ErrorClass: res.ErrorClass,
		Duration:   time.Duration(res.Metrics.DurationMs) * time.Millisecond,
	})
	level := slog.LevelInfo
	if status != model.ExecutionStatusSuccess {
		level = slog.LevelWarn
	}
	c.logger.Log(context.Background(), level, "capability finished",
		"investigation_id", r.id,
		"capability", entry.Capability,
		"status", status,
		"error_class", res.ErrorClass,
		"duration_ms", res.Metrics.DurationMs,
	)
}

// finish moves the investigation to its terminal state and publishes the final event.
func (c *Coordinator) finish(r *run, runErr error) {
	r.mu.Lock()
	aborted := r.aborted
	allFailed := len(r.entries) > 0 && r.failed == len(r.entries)
	r.mu.Unlock()

	if aborted || errors.Is(runErr, core.ErrInvestigationTerminal) {
		c.finishAborted(r)
		return
	}

	switch {
	case r.shuttingDown.Load():
		c.fail(r, failure{message: "coordinator shutting down", class: model.ErrorClassAborted, canceled: true})
	case r.canceled.Load():
		c.fail(r, failure{message: "canceled", class: model.ErrorClassCanceled, canceled: true})
	case runErr != nil:
		c.fail(r, failure{message: runErr.Error(), class: obserrors.Classify(runErr), err: runErr})
	case c.cfg.FailWhenAllFailed && allFailed:
		c.fail(r, failure{message: "all capabilities failed", class: model.ErrorClassCapability})
	default:
		c.complete(r)
	}
}

type failure struct {
	message  string
	class    string
	canceled bool
	err      error
}

func (c *Coordinator) complete(r *run) {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.ReportTimeout)
	defer cancel()

	report, err := c.reports.GenerateReport(ctx, r.id)
	if err != nil {
		c.fail(r, failure{message: "report generation failed: " + err.Error(), class: obserrors.Classify(err), err: err})
		return
	}
	if err = c.repo.SaveReport(ctx, r.id, report); err != nil {
		if errors.Is(err, core.ErrInvestigationTerminal) {
			c.finishAborted(r)
			return
		}
		c.fail(r, failure{message: "save report: " + err.Error(), class: obserrors.Classify(err), err: err})
		return
	}

	ref := ReportRef(r.id)
	r.mu.Lock()
	err = c.finalizeLocked(r, core.FinalizeParams{
		Status:    model.InvestigationStatusCompleted,
		Summary:   c.summaryLocked(r, failure{}),
		ReportRef: &ref,
	})
	if err == nil {
		r.percent = 100
		c.publishLocked(r, model.ProgressEvent{
			Kind:      model.ProgressCompleted,
			Completed: true,
			ReportRef: ref,
		})
		r.closed = true
	}
	succeeded, failed := r.succeeded, r.failed
	r.mu.Unlock()

	switch {
	case errors.Is(err, core.ErrInvestigationTerminal):
		c.finishAborted(r)
	case err != nil:
		c.fail(r, failure{message: "finalize: " + err.Error(), class: obserrors.Classify(err), err: err})
	default:
		duration := c.now().Sub(r.started)
		c.logger.Info("investigation completed",
			"investigation_id", r.id,
			"succeeded", succeeded,
			"failed", failed,
			"duration", duration,
		)
		metrics.EmitInvestigationLifecycle(c.metrics, metrics.InvestigationMetric{
			Transition: metrics.TransitionCompleted,
			Depth:      string(r.depth),
			Duration:   duration,
		})
	}
}

func (c *Coordinator) finalizeLocked(r *run, p core.FinalizeParams) error {
	ctx, cancel := c.storeCtx()
	defer cancel()
	p.InvestigationID = r.id
	return c.repo.Finalize(ctx, p)
}

func (c *Coordinator) fail(r *run, f failure) {
	reason := closeReasonFailed
	if f.canceled {
		reason = closeReasonCanceled
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	err := c.finalizeLocked(r, core.FinalizeParams{
		Status:      model.InvestigationStatusFailed,
		Summary:     c.summaryLocked(r, f),
		CloseReason: reason,
	})
	if errors.Is(err, core.ErrInvestigationTerminal) {
		r.mu.Unlock()
		c.finishAborted(r)
		return
	}
	if err != nil {
		// The reaper fails the investigation once the store is reachable again.
		c.logger.Error("failed to record investigation failure",
			"investigation_id", r.id,
			"error", err,
		)
	}
	c.publishLocked(r, model.ProgressEvent{
		Kind:  model.ProgressFailed,
		Error: f.message,
	})
	r.closed = true
	succeeded, failedCount := r.succeeded, r.failed
	r.mu.Unlock()

	transition := metrics.TransitionFailed
	if f.canceled {
		transition = metrics.TransitionCanceled
	}
	duration := c.now().Sub(r.started)
	c.logger.Warn("investigation failed",
		"investigation_id", r.id,
		"error", f.message,
		"error_class", f.class,
		"duration", duration,
	)
	metricErr := f.err
	if metricErr == nil {
		metricErr = errors.New(f.message)
	}
	metrics.EmitInvestigationLifecycle(c.metrics, metrics.InvestigationMetric{
		Transition: transition,
		Depth:      string(r.depth),
		Duration:   duration,
		Err:        metricErr,
	})

	if c.notifier != nil && !f.canceled {
		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.ReportTimeout)
		defer cancel()
		c.notifier.NotifyInvestigationFailure(ctx, notify.InvestigationFailurePayload{
			InvestigationID: r.id,
			Type:            string(r.reqType),
			Target:          r.target,
			Depth:           string(r.depth),
			Error:           f.message,
			ErrorClass:      f.class,
			Planned:         len(r.entries),
			Succeeded:       succeeded,
			Failed:          failedCount,
			OccurredAt:      c.now(),
		})
	}
}

// finishAborted handles an investigation finalized outside this run, e.g. by the reaper or
// a cancel served by another process. The store is left untouched; subscribers receive the
// stored final state.
func (c *Coordinator) finishAborted(r *run) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	ctx, cancel := c.storeCtx()
	defer cancel()

	ev := model.ProgressEvent{Kind: model.ProgressFailed, Error: "investigation finalized elsewhere"}
	if inv, err := c.repo.GetByID(ctx, r.id); err == nil && inv.Status.IsTerminal() {
		ev = model.TerminalEventFor(inv, c.now())
		ev.Replay = false
		if ev.Percent < r.percent {
			ev.Percent = r.percent
		}
	}
	c.publishLocked(r, ev)
	r.closed = true
	c.logger.Warn("investigation finalized outside its run", "investigation_id", r.id)
}

func (c *Coordinator) summaryLocked(r *run, f failure) json.RawMessage {
	total := len(r.entries)
	s := model.InvestigationSummary{
		Planned:    total,
		Succeeded:  r.succeeded,
		Failed:     r.failed,
		Skipped:    total - r.terminalCount(),
		Error:      f.message,
		ErrorClass: f.class,
		Canceled:   f.canceled,
	}
	b, err := json.Marshal(s)
	if err != nil {
		return nil
	}
	return b
}

// publish sends an event outside any record write.
func (c *Coordinator) publish(r *run, ev model.ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c.publishLocked(r, ev)
}

func (c *Coordinator) publishLocked(r *run, ev model.ProgressEvent) {
	ev.InvestigationID = r.id
	if ev.Percent == 0 {
		ev.Percent = r.percent
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = c.now().UTC()
	}
	c.hub.Publish(r.id, ev)
	if c.relay != nil {
		c.relay.Publish(context.Background(), ev)
	}
}

// ReportRef is the reference persisted for a completed investigation's report.
func ReportRef(investigationID string) string {
	return "/api/investigations/" + investigationID + "/report"
}
