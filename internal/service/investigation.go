package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/target/mmk-investigations/internal/core"
	"github.com/target/mmk-investigations/internal/domain/model"
	"github.com/target/mmk-investigations/internal/domain/plan"
	"github.com/target/mmk-investigations/internal/domain/progress"
	apperrors "github.com/target/mmk-investigations/internal/errors"
)

// Machine-readable reasons attached to conflict and not-found errors.
const (
	ReasonStreamNotLive         = "stream_not_live"
	ReasonInvestigationTerminal = "investigation_terminal"
	ReasonCapabilityNotPlanned  = "capability_not_planned"
	ReasonReportNotAvailable    = "report_not_available"
	ReasonNotRetryable          = "not_retryable"
)

const (
	defaultListLimit             = 50
	maxListLimit                 = 1000
	startFailureFinalizeTimeout  = 5 * time.Second
	canceledInvestigationMessage = "canceled"
)

// InvestigationServiceOptions groups dependencies for InvestigationService.
type InvestigationServiceOptions struct {
	Repo        core.InvestigationRepository // Required: job store
	Builder     *plan.Builder                // Required: plan builder
	Coordinator *Coordinator                 // Required: execution coordinator
	Hub         *progress.Hub                // Required: live progress fan-out
	Parser      core.IntentParser            // Optional: free-form query support
	Relay       core.ProgressRelay           // Optional: cross-process progress relay
	Logger      *slog.Logger                 // Optional: structured logger
}

// InvestigationService is the entry point for starting, reading, streaming and canceling
// investigations.
type InvestigationService struct {
	repo        core.InvestigationRepository
	builder     *plan.Builder
	coordinator *Coordinator
	hub         *progress.Hub
	parser      core.IntentParser
	relay       core.ProgressRelay
	announcer   *FinalAnnouncer
	logger      *slog.Logger
	now         func() time.Time
}

// NewInvestigationService constructs an InvestigationService.
func NewInvestigationService(opts InvestigationServiceOptions) (*InvestigationService, error) {
	switch {
	case opts.Repo == nil:
		return nil, errors.New("InvestigationRepository is required")
	case opts.Builder == nil:
		return nil, errors.New("plan builder is required")
	case opts.Coordinator == nil:
		return nil, errors.New("coordinator is required")
	case opts.Hub == nil:
		return nil, errors.New("progress hub is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	announcer, err := NewFinalAnnouncer(FinalAnnouncerOptions{
		Repo:   opts.Repo,
		Hub:    opts.Hub,
		Relay:  opts.Relay,
		Logger: logger,
	})
	if err != nil {
		return nil, err
	}
	return &InvestigationService{
		repo:        opts.Repo,
		builder:     opts.Builder,
		coordinator: opts.Coordinator,
		hub:         opts.Hub,
		parser:      opts.Parser,
		relay:       opts.Relay,
		announcer:   announcer,
		logger:      logger.With("component", "investigation_service"),
		now:         time.Now,
	}, nil
}

// MustNewInvestigationService constructs an InvestigationService and panics on error.
func MustNewInvestigationService(opts InvestigationServiceOptions) *InvestigationService {
	s, err := NewInvestigationService(opts)
	if err != nil {
		panic(fmt.Sprintf("failed to create InvestigationService: %v", err))
	}
	return s
}

// StartResult is returned by Start.
type StartResult struct {
	Investigation *model.Investigation `json:"investigation"`
	Plan          model.PlanSummary    `json:"plan"`
	// RetryOf is the failed investigation this one retries.
	RetryOf string `json:"retry_of,omitempty"`
}

// Start validates the request, builds a plan, persists the investigation with one pending
// record per plan entry and hands it to the coordinator. Nothing is persisted when
// validation fails.
func (s *InvestigationService) Start(ctx context.Context, req model.StartInvestigationRequest) (*StartResult, error) {
	if err := req.Validate(); err != nil {
		return nil, apperrors.Validation(err.Error())
	}
	intent, err := s.resolveIntent(ctx, req)
	if err != nil {
		return nil, err
	}
	return s.launch(ctx, strings.TrimSpace(req.Query), intent)
}

// Retry starts a new investigation with the query and intent of a failed one. The failed
// investigation is left as it is; only failed investigations can be retried.
func (s *InvestigationService) Retry(ctx context.Context, id string) (*StartResult, error) {
	prev, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, storeError(err, id)
	}
	if prev.Status != model.InvestigationStatusFailed {
		return nil, apperrors.Conflictf("investigation %s is %s; only failed investigations can be retried",
			id, prev.Status).WithReason(ReasonNotRetryable)
	}
	res, err := s.launch(ctx, prev.Query, prev.Intent())
	if err != nil {
		return nil, err
	}
	res.RetryOf = id
	s.logger.InfoContext(ctx, "investigation retried", "investigation_id", res.Investigation.ID, "retry_of", id)
	return res, nil
}

// launch plans, persists and hands an investigation to the coordinator.
func (s *InvestigationService) launch(ctx context.Context, query string, intent model.Intent) (*StartResult, error) {
	p, err := s.builder.Build(intent)
	if err != nil {
		return nil, planError(err)
	}

	inv := newInvestigation(query, intent.Normalize(), p)
	if err = s.hub.Open(inv.ID); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "open progress stream")
	}
	if err = s.repo.Create(ctx, inv); err != nil {
		s.hub.Discard(inv.ID)
		return nil, storeError(err, inv.ID)
	}
	if err = s.coordinator.Launch(ctx, inv, p); err != nil {
		s.hub.Discard(inv.ID)
		s.abortStart(inv, err)
		return nil, apperrors.Wrap(err, apperrors.ErrCodeUnavailable, "failed to start investigation")
	}
	inv.Status = model.InvestigationStatusRunning

	s.logger.InfoContext(ctx, "investigation accepted",
		"investigation_id", inv.ID,
		"type", inv.Type,
		"depth", inv.Depth,
		"capabilities", len(p.Entries),
	)
	return &StartResult{Investigation: inv, Plan: p.Summary()}, nil
}

func (s *InvestigationService) resolveIntent(ctx context.Context, req model.StartInvestigationRequest) (model.Intent, error) {
	var in model.Intent
	if q := strings.TrimSpace(req.Query); q != "" {
		if s.parser == nil {
			return model.Intent{}, apperrors.ValidationField("query", "free-form queries are not supported; supply a target")
		}
		parsed, err := s.parser.ParseIntent(ctx, q)
		if err != nil {
			return model.Intent{}, apperrors.Wrap(err, apperrors.ErrCodeValidation, "could not interpret query")
		}
		in = parsed
	}

	// Explicit fields win over whatever the parser inferred.
	if req.Target != nil {
		if !req.Target.IsEmpty() {
			in.Target = *req.Target
		} else if req.Target.Notes != "" {
			in.Target.Notes = req.Target.Notes
		}
	}
	if req.Type != "" {
		in.Type = req.Type
	}
	if len(req.Platforms) > 0 {
		in.Platforms = req.Platforms
	}
	if req.Depth != "" {
		in.Depth = req.Depth
	}
	return in, nil
}

func planError(err error) error {
	switch {
	case errors.Is(err, model.ErrNoUsableTarget):
		return apperrors.ValidationField("target", "at least one target field is required")
	case errors.Is(err, plan.ErrNoFallback):
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "no capabilities available")
	default:
		return apperrors.Validation(err.Error())
	}
}

func newInvestigation(query string, in model.Intent, p model.Plan) *model.Investigation {
	inv := &model.Investigation{
		ID:         uuid.NewString(),
		Query:      query,
		Type:       in.Type,
		Target:     in.Target,
		Platforms:  in.Platforms,
		Depth:      in.Depth,
		Status:     model.InvestigationStatusPending,
		Executions: make([]model.ExecutionRecord, 0, len(p.Entries)),
	}
	for i, e := range p.Entries {
		inv.Executions = append(inv.Executions, model.ExecutionRecord{
			ID:              uuid.NewString(),
			InvestigationID: inv.ID,
			Position:        i,
			Capability:      e.Capability,
			Category:        e.Category,
			Status:          model.ExecutionStatusPending,
		})
	}
	return inv
}

// abortStart fails an investigation that was persisted but could not be launched, so it does
// not wait for the reaper.
func (s *InvestigationService) abortStart(inv *model.Investigation, cause error) {
	ctx, cancel := context.WithTimeout(context.Background(), startFailureFinalizeTimeout)
	defer cancel()
	summary := closedSummary(inv, model.InvestigationSummary{
		Error:      "failed to start: " + cause.Error(),
		ErrorClass: model.ErrorClassAborted,
	})
	err := s.repo.Finalize(ctx, core.FinalizeParams{
		InvestigationID: inv.ID,
		Status:          model.InvestigationStatusFailed,
		Summary:         summary,
		CloseReason:     closeReasonFailed,
	})
	if err != nil {
		s.logger.Error("failed to record start failure",
			"investigation_id", inv.ID,
			"error", err,
		)
	}
}

// Get returns the investigation with its execution records.
func (s *InvestigationService) Get(ctx context.Context, id string) (*model.Investigation, error) {
	inv, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, storeError(err, id)
	}
	return inv, nil
}

// List returns investigations newest first. Limit defaults to 50 and is capped at 1000.
func (s *InvestigationService) List(
	ctx context.Context,
	opts model.InvestigationListOptions,
) ([]*model.Investigation, error) {
	opts.Limit, opts.Offset = normalizePagination(opts.Limit, opts.Offset)
	out, err := s.repo.List(ctx, opts)
	if err != nil {
		return nil, storeError(err, "")
	}
	return out, nil
}

func normalizePagination(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// Report returns the stored report of a completed investigation.
func (s *InvestigationService) Report(ctx context.Context, id string) (string, error) {
	body, err := s.repo.GetReport(ctx, id)
	if err == nil {
		return body, nil
	}
	if !errors.Is(err, core.ErrReportNotFound) {
		return "", storeError(err, id)
	}
	if _, getErr := s.repo.GetByID(ctx, id); getErr != nil {
		return "", storeError(getErr, id)
	}
	return "", apperrors.NotFoundf("report for investigation %s is not available", id).
		WithReason(ReasonReportNotAvailable)
}

// Cancel stops an investigation. Runs owned by this process get the coordinator's grace
// period; investigations without a local run are failed directly in the store.
func (s *InvestigationService) Cancel(ctx context.Context, id string) error {
	err := s.coordinator.Cancel(ctx, id)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrRunNotActive) {
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "cancel investigation")
	}

	inv, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return storeError(err, id)
	}
	if inv.Status.IsTerminal() {
		return storeError(core.ErrInvestigationTerminal, id)
	}

	err = s.repo.Finalize(ctx, core.FinalizeParams{
		InvestigationID: id,
		Status:          model.InvestigationStatusFailed,
		Summary: closedSummary(inv, model.InvestigationSummary{
			Error:      canceledInvestigationMessage,
			ErrorClass: model.ErrorClassCanceled,
			Canceled:   true,
		}),
		CloseReason: closeReasonCanceled,
	})
	if err != nil {
		return storeError(err, id)
	}
	s.logger.InfoContext(ctx, "investigation canceled without a local run", "investigation_id", id)
	s.announcer.AnnounceFinal(ctx, id)
	return nil
}

// AnnounceFinal publishes the stored final state of investigations finished outside their
// run, such as by the reaper.
func (s *InvestigationService) AnnounceFinal(ctx context.Context, ids ...string) {
	s.announcer.AnnounceFinal(ctx, ids...)
}

// closedSummary computes the summary an investigation will have once its open records are
// closed: pending records become skipped and running ones failed.
func closedSummary(inv *model.Investigation, base model.InvestigationSummary) json.RawMessage {
	base.Planned = len(inv.Executions)
	base.Succeeded, base.Failed, base.Skipped = 0, 0, 0
	for _, rec := range inv.Executions {
		switch rec.Status {
		case model.ExecutionStatusSuccess:
			base.Succeeded++
		case model.ExecutionStatusFailed, model.ExecutionStatusRunning:
			base.Failed++
		default:
			base.Skipped++
		}
	}
	b, err := json.Marshal(base)
	if err != nil {
		return nil
	}
	return b
}

// ProgressStream is a finite sequence of progress events for one investigation. Events
// closes after the terminal event.
type ProgressStream struct {
	Events <-chan model.ProgressEvent
	// Live is false when the stream only replays the stored final state.
	Live bool

	release func()
	once    sync.Once
}

// Close releases the subscription. It is safe to call more than once.
func (s *ProgressStream) Close() {
	s.once.Do(func() {
		if s.release != nil {
			s.release()
		}
	})
}

func replayStream(inv *model.Investigation, now time.Time) *ProgressStream {
	ch := make(chan model.ProgressEvent, 1)
	ch <- model.TerminalEventFor(inv, now)
	close(ch)
	return &ProgressStream{Events: ch}
}

// Stream subscribes to an investigation's progress. A live local topic streams directly. An
// unknown id is not found, a finished investigation replays its final state once, and an
// investigation running elsewhere streams through the relay when one is configured or is
// reported as a stream_not_live conflict.
func (s *InvestigationService) Stream(ctx context.Context, id string) (*ProgressStream, error) {
	if sub, err := s.hub.Subscribe(id); err == nil {
		return &ProgressStream{Events: sub.Events(), Live: true, release: sub.Close}, nil
	}

	inv, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, storeError(err, id)
	}
	if inv.Status.IsTerminal() {
		return replayStream(inv, s.now().UTC()), nil
	}
	if s.relay == nil {
		return nil, apperrors.Conflictf("investigation %s has no live progress stream", id).
			WithReason(ReasonStreamNotLive)
	}

	events, release, err := s.relay.Subscribe(ctx, id)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeUnavailable, "progress relay unavailable")
	}
	// The investigation may have finished between the read and the subscribe.
	if latest, getErr := s.repo.GetByID(ctx, id); getErr == nil && latest.Status.IsTerminal() {
		release()
		return replayStream(latest, s.now().UTC()), nil
	}
	return &ProgressStream{Events: events, Live: true, release: release}, nil
}

// storeError translates repository errors into AppErrors.
func storeError(err error, id string) error {
	switch {
	case errors.Is(err, core.ErrInvestigationNotFound):
		return apperrors.NotFoundf("investigation %s not found", id)
	case errors.Is(err, core.ErrInvestigationTerminal):
		return apperrors.Conflictf("investigation %s already finished", id).WithReason(ReasonInvestigationTerminal)
	case errors.Is(err, core.ErrExecutionNotFound):
		return apperrors.NotFoundf("capability is not planned for investigation %s", id).
			WithReason(ReasonCapabilityNotPlanned)
	case errors.Is(err, core.ErrInvalidTransition):
		return apperrors.Wrapf(err, apperrors.ErrCodeConflict, "investigation %s cannot change state", id)
	}
	mapped := apperrors.MapDBError(err)
	if apperrors.GetCode(mapped) != "" {
		return mapped
	}
	return apperrors.Wrap(err, apperrors.ErrCodeUnavailable, "investigation store unavailable")
}
