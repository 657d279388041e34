// Package memstore provides an in-memory investigation store for tests and single-process runs.
package memstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/target/mmk-investigations/internal/core"
	"github.com/target/mmk-investigations/internal/data"
	"github.com/target/mmk-investigations/internal/domain/model"
)

// Options configures a Store.
type Options struct {
	TimeProvider data.TimeProvider
}

// Store keeps investigations in memory. Each investigation has its own lock, so writes for
// unrelated investigations never contend beyond the short map lookup.
type Store struct {
	tp data.TimeProvider

	mu      sync.RWMutex
	entries map[string]*entry
}

type entry struct {
	mu     sync.Mutex
	inv    model.Investigation
	report *string
}

// New creates an empty Store.
func New(opts Options) *Store {
	tp := opts.TimeProvider
	if tp == nil {
		tp = &data.RealTimeProvider{}
	}
	return &Store{tp: tp, entries: make(map[string]*entry)}
}

// Create persists a pending investigation and its pending execution records.
func (s *Store) Create(_ context.Context, inv *model.Investigation) error {
	if inv == nil || inv.ID == "" {
		return fmt.Errorf("create investigation: id is required")
	}
	if inv.Status != model.InvestigationStatusPending {
		return fmt.Errorf("create investigation %s: %w", inv.ID, core.ErrInvalidTransition)
	}
	seen := make(map[string]bool, len(inv.Executions))
	for _, rec := range inv.Executions {
		if seen[rec.Capability] {
			return fmt.Errorf("create investigation %s: duplicate capability %s", inv.ID, rec.Capability)
		}
		seen[rec.Capability] = true
	}

	now := s.tp.Now().UTC()
	stored := cloneInvestigation(inv)
	stored.CreatedAt, stored.UpdatedAt = now, now
	for i := range stored.Executions {
		stored.Executions[i].InvestigationID = inv.ID
		stored.Executions[i].Position = i
		stored.Executions[i].Status = model.ExecutionStatusPending
		stored.Executions[i].CreatedAt, stored.Executions[i].UpdatedAt = now, now
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[inv.ID]; ok {
		return fmt.Errorf("create investigation %s: already exists", inv.ID)
	}
	s.entries[inv.ID] = &entry{inv: *stored}

	inv.CreatedAt, inv.UpdatedAt = now, now
	for i := range inv.Executions {
		inv.Executions[i] = stored.Executions[i]
	}
	return nil
}

// GetByID returns a copy of the investigation with its execution records.
func (s *Store) GetByID(_ context.Context, id string) (*model.Investigation, error) {
	e, err := s.get(id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return cloneInvestigation(&e.inv), nil
}

// GetExecution returns a copy of one execution record.
func (s *Store) GetExecution(_ context.Context, investigationID, capability string) (*model.ExecutionRecord, error) {
	e, err := s.get(investigationID)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	idx := findExecution(&e.inv, capability)
	if idx < 0 {
		return nil, fmt.Errorf("get execution %s/%s: %w", investigationID, capability, core.ErrExecutionNotFound)
	}
	rec := cloneRecord(e.inv.Executions[idx])
	return &rec, nil
}

// List returns investigations newest first, without execution records.
func (s *Store) List(_ context.Context, opts model.InvestigationListOptions) ([]*model.Investigation, error) {
	s.mu.RLock()
	all := make([]*entry, 0, len(s.entries))
	for _, e := range s.entries {
		all = append(all, e)
	}
	s.mu.RUnlock()

	out := make([]*model.Investigation, 0, len(all))
	for _, e := range all {
		e.mu.Lock()
		if opts.Status == nil || e.inv.Status == *opts.Status {
			inv := cloneInvestigation(&e.inv)
			inv.Executions = nil
			out = append(out, inv)
		}
		e.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})

	if opts.Offset >= len(out) {
		return []*model.Investigation{}, nil
	}
	out = out[opts.Offset:]
	if opts.Limit > 0 && opts.Limit < len(out) {
		out = out[:opts.Limit]
	}
	return out, nil
}

// MarkRunning moves a pending investigation to running.
func (s *Store) MarkRunning(_ context.Context, id string) error {
	e, err := s.get(id)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := checkTransition(e.inv.Status, model.InvestigationStatusRunning); err != nil {
		return fmt.Errorf("mark investigation %s running: %w", id, err)
	}
	e.inv.Status = model.InvestigationStatusRunning
	e.inv.UpdatedAt = s.tp.Now().UTC()
	return nil
}

// UpdateExecution applies a monotonic status change to one record.
func (s *Store) UpdateExecution(_ context.Context, p core.UpdateExecutionParams) (bool, error) {
	if !p.Status.Valid() || p.Status == model.ExecutionStatusPending {
		return false, fmt.Errorf("update execution: invalid status %q", p.Status)
	}
	e, err := s.get(p.InvestigationID)
	if err != nil {
		return false, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.inv.Status.IsTerminal() {
		return false, fmt.Errorf("update execution %s/%s: %w", p.InvestigationID, p.Capability, core.ErrInvestigationTerminal)
	}
	idx := findExecution(&e.inv, p.Capability)
	if idx < 0 {
		return false, fmt.Errorf("update execution %s/%s: %w", p.InvestigationID, p.Capability, core.ErrExecutionNotFound)
	}
	rec := &e.inv.Executions[idx]
	if !rec.Status.CanTransitionTo(p.Status) {
		return false, nil
	}

	now := s.tp.Now().UTC()
	rec.Status = p.Status
	rec.UpdatedAt = now
	if p.Status.IsTerminal() {
		rec.FinishedAt = &now
		applyResult(rec, p.Result)
	}
	e.inv.UpdatedAt = now
	return true, nil
}

// Finalize closes open records and moves the investigation to a terminal status.
func (s *Store) Finalize(_ context.Context, p core.FinalizeParams) error {
	if !p.Status.IsTerminal() {
		return fmt.Errorf("finalize investigation %s: %w", p.InvestigationID, core.ErrInvalidTransition)
	}
	e, err := s.get(p.InvestigationID)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := checkTransition(e.inv.Status, p.Status); err != nil {
		return fmt.Errorf("finalize investigation %s: %w", p.InvestigationID, err)
	}
	if p.Status == model.InvestigationStatusCompleted && e.inv.TerminalCount() != len(e.inv.Executions) {
		return fmt.Errorf("finalize investigation %s: open execution records: %w",
			p.InvestigationID, core.ErrInvalidTransition)
	}

	now := s.tp.Now().UTC()
	closeOpen(e.inv.Executions, p.CloseReason, now)
	e.inv.Status = p.Status
	e.inv.Summary = append(json.RawMessage(nil), p.Summary...)
	if p.ReportRef != nil {
		ref := *p.ReportRef
		e.inv.ReportRef = &ref
	}
	e.inv.UpdatedAt = now
	e.inv.CompletedAt = &now
	return nil
}

// SaveReport stores the generated report text.
func (s *Store) SaveReport(_ context.Context, investigationID, body string) error {
	e, err := s.get(investigationID)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.inv.Status.IsTerminal() {
		return fmt.Errorf("save report %s: %w", investigationID, core.ErrInvestigationTerminal)
	}
	e.report = &body
	return nil
}

// GetReport returns the stored report text.
func (s *Store) GetReport(_ context.Context, investigationID string) (string, error) {
	e, err := s.get(investigationID)
	if err != nil {
		return "", err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.report == nil {
		return "", fmt.Errorf("get report %s: %w", investigationID, core.ErrReportNotFound)
	}
	return *e.report, nil
}

// FailStale fails non-terminal investigations that have not been updated within MaxAge and
// returns their ids, oldest first.
func (s *Store) FailStale(_ context.Context, p core.FailStaleParams) ([]string, error) {
	now := s.tp.Now().UTC()
	cutoff := now.Add(-p.MaxAge)

	s.mu.RLock()
	all := make([]*entry, 0, len(s.entries))
	for _, e := range s.entries {
		all = append(all, e)
	}
	s.mu.RUnlock()
	sort.Slice(all, func(i, j int) bool { return all[i].updatedAt().Before(all[j].updatedAt()) })

	summary, err := json.Marshal(model.InvestigationSummary{Error: p.Reason, ErrorClass: model.ErrorClassAborted})
	if err != nil {
		return nil, fmt.Errorf("marshal summary: %w", err)
	}

	var reaped []string
	for _, e := range all {
		if p.BatchSize > 0 && len(reaped) >= p.BatchSize {
			break
		}
		e.mu.Lock()
		if !e.inv.Status.IsTerminal() && e.inv.UpdatedAt.Before(cutoff) {
			closeOpen(e.inv.Executions, p.Reason, now)
			e.inv.Status = model.InvestigationStatusFailed
			e.inv.Summary = summary
			e.inv.UpdatedAt = now
			e.inv.CompletedAt = &now
			reaped = append(reaped, e.inv.ID)
		}
		e.mu.Unlock()
	}
	return reaped, nil
}

func (e *entry) updatedAt() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.inv.UpdatedAt
}

func (s *Store) get(id string) (*entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	if !ok {
		return nil, fmt.Errorf("investigation %s: %w", id, core.ErrInvestigationNotFound)
	}
	return e, nil
}

func checkTransition(from, to model.InvestigationStatus) error {
	if from.IsTerminal() {
		return core.ErrInvestigationTerminal
	}
	if !from.CanTransitionTo(to) {
		return core.ErrInvalidTransition
	}
	return nil
}

func closeOpen(recs []model.ExecutionRecord, reason string, now time.Time) {
	for i := range recs {
		rec := &recs[i]
		switch rec.Status {
		case model.ExecutionStatusPending:
			rec.Status = model.ExecutionStatusSkipped
		case model.ExecutionStatusRunning:
			rec.Status = model.ExecutionStatusFailed
			msg, class := reason, model.ErrorClassAborted
			rec.Error, rec.ErrorClass = &msg, &class
		default:
			continue
		}
		rec.UpdatedAt = now
		finished := now
		rec.FinishedAt = &finished
	}
}

func applyResult(rec *model.ExecutionRecord, res *model.CapabilityResult) {
	if res == nil {
		return
	}
	rec.Metrics = res.Metrics
	rec.Confidence = res.Confidence
	rec.Data = append(json.RawMessage(nil), res.Data...)
	if res.Error != "" {
		msg := res.Error
		rec.Error = &msg
	}
	if res.ErrorClass != "" {
		class := res.ErrorClass
		rec.ErrorClass = &class
	}
}

func findExecution(inv *model.Investigation, capability string) int {
	for i := range inv.Executions {
		if inv.Executions[i].Capability == capability {
			return i
		}
	}
	return -1
}

func cloneInvestigation(in *model.Investigation) *model.Investigation {
	out := *in
	out.Platforms = append([]string(nil), in.Platforms...)
	out.Summary = append(json.RawMessage(nil), in.Summary...)
	if in.ReportRef != nil {
		ref := *in.ReportRef
		out.ReportRef = &ref
	}
	if in.CompletedAt != nil {
		t := *in.CompletedAt
		out.CompletedAt = &t
	}
	out.Executions = make([]model.ExecutionRecord, len(in.Executions))
	for i, rec := range in.Executions {
		out.Executions[i] = cloneRecord(rec)
	}
	return &out
}

func cloneRecord(rec model.ExecutionRecord) model.ExecutionRecord {
	out := rec
	out.Data = append(json.RawMessage(nil), rec.Data...)
	if rec.Error != nil {
		v := *rec.Error
		out.Error = &v
	}
	if rec.ErrorClass != nil {
		v := *rec.ErrorClass
		out.ErrorClass = &v
	}
	if rec.Confidence != nil {
		v := *rec.Confidence
		out.Confidence = &v
	}
	if rec.FinishedAt != nil {
		v := *rec.FinishedAt
		out.FinishedAt = &v
	}
	return out
}

var (
	_ core.InvestigationRepository       = (*Store)(nil)
	_ core.InvestigationReaperRepository = (*Store)(nil)
)
