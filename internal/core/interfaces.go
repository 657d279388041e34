// Package core declares the ports between the investigation services and their adapters.
package core

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/target/mmk-investigations/internal/domain/model"
)

// This file contains repository and collaborator interfaces (ports in hexagonal architecture).
// Services depend on these interfaces; data and adapter packages implement them.

var (
	// ErrInvestigationNotFound is returned when no investigation exists for an id.
	ErrInvestigationNotFound = errors.New("investigation not found")
	// ErrExecutionNotFound is returned when the investigation has no record for a capability.
	ErrExecutionNotFound = errors.New("execution record not found")
	// ErrInvestigationTerminal is returned when mutating an investigation that already finished.
	ErrInvestigationTerminal = errors.New("investigation already finished")
	// ErrInvalidTransition is returned when a status change would move backwards.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrReportNotFound is returned when no report was stored for an investigation.
	ErrReportNotFound = errors.New("report not found")
)

// InvestigationRepository is the Job Store: durable investigations and their execution records.
// Implementations serialize writes per investigation and never mutate a terminal investigation.
type InvestigationRepository interface {
	// Create persists a pending investigation together with its pending execution records.
	Create(ctx context.Context, inv *model.Investigation) error
	// GetByID returns the investigation with execution records in plan order.
	GetByID(ctx context.Context, id string) (*model.Investigation, error)
	// GetExecution returns a single execution record.
	GetExecution(ctx context.Context, investigationID, capability string) (*model.ExecutionRecord, error)
	// List returns investigations newest first, without execution records.
	List(ctx context.Context, opts model.InvestigationListOptions) ([]*model.Investigation, error)
	// MarkRunning moves a pending investigation to running.
	MarkRunning(ctx context.Context, id string) error
	// UpdateExecution applies a monotonic status change to one record. It reports false when the
	// record already holds a status that cannot move to params.Status (first write wins).
	UpdateExecution(ctx context.Context, params UpdateExecutionParams) (bool, error)
	// Finalize closes open records and moves the investigation to a terminal status atomically.
	Finalize(ctx context.Context, params FinalizeParams) error
	// SaveReport stores the generated report text.
	SaveReport(ctx context.Context, investigationID, body string) error
	// GetReport returns the stored report text.
	GetReport(ctx context.Context, investigationID string) (string, error)
}

// UpdateExecutionParams groups parameters for InvestigationRepository.UpdateExecution.
type UpdateExecutionParams struct {
	InvestigationID string
	Capability      string
	Status          model.ExecutionStatus
	// Result carries data, metrics, confidence and error for terminal statuses.
	Result *model.CapabilityResult
}

// FinalizeParams groups parameters for InvestigationRepository.Finalize.
type FinalizeParams struct {
	InvestigationID string
	Status          model.InvestigationStatus
	Summary         json.RawMessage
	ReportRef       *string
	// CloseReason is recorded on running records that are closed as failed.
	// Pending records are closed as skipped. Completing with open records is rejected.
	CloseReason string
}

// InvestigationReaperRepository recovers investigations orphaned by a crashed coordinator.
type InvestigationReaperRepository interface {
	// FailStale fails one batch of stale investigations and returns their ids.
	FailStale(ctx context.Context, params FailStaleParams) ([]string, error)
}

// FailStaleParams groups parameters for InvestigationReaperRepository.FailStale.
type FailStaleParams struct {
	MaxAge    time.Duration
	BatchSize int
	Reason    string
}

// IntentParser turns a free-form query into a structured intent.
type IntentParser interface {
	ParseIntent(ctx context.Context, query string) (model.Intent, error)
}

// ReportGenerator produces the final report for a finished plan.
type ReportGenerator interface {
	GenerateReport(ctx context.Context, investigationID string) (string, error)
}

// ProgressRelay mirrors progress events between processes.
type ProgressRelay interface {
	// Publish forwards an event without blocking the caller.
	Publish(ctx context.Context, ev model.ProgressEvent)
	// Subscribe streams events published by any process for one investigation. The channel
	// closes after a terminal event or when ctx is done; the returned func releases resources.
	Subscribe(ctx context.Context, investigationID string) (<-chan model.ProgressEvent, func(), error)
}
