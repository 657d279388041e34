package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/target/mmk-investigations/internal/core"
	"github.com/target/mmk-investigations/internal/domain/model"
	apperrors "github.com/target/mmk-investigations/internal/errors"
)

// CallbackServiceOptions groups dependencies for CallbackService.
type CallbackServiceOptions struct {
	Repo        core.InvestigationRepository // Required: job store
	Coordinator *Coordinator                 // Required: execution coordinator
	Logger      *slog.Logger                 // Optional: structured logger
}

// CallbackService ingests results reported by out-of-process capability workers.
// Resolution is first-write-wins per (investigation, capability): a duplicate is
// acknowledged and changes nothing.
type CallbackService struct {
	repo        core.InvestigationRepository
	coordinator *Coordinator
	logger      *slog.Logger
}

// CallbackAck acknowledges a callback delivery.
type CallbackAck struct {
	InvestigationID string `json:"investigation_id"`
	Capability      string `json:"capability"`
	Accepted        bool   `json:"accepted"`
	Duplicate       bool   `json:"duplicate"`
}

// NewCallbackService constructs a CallbackService.
func NewCallbackService(opts CallbackServiceOptions) (*CallbackService, error) {
	if opts.Repo == nil {
		return nil, errors.New("InvestigationRepository is required")
	}
	if opts.Coordinator == nil {
		return nil, errors.New("coordinator is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &CallbackService{
		repo:        opts.Repo,
		coordinator: opts.Coordinator,
		logger:      logger.With("component", "callback_service"),
	}, nil
}

// MustNewCallbackService constructs a CallbackService and panics on error.
func MustNewCallbackService(opts CallbackServiceOptions) *CallbackService {
	s, err := NewCallbackService(opts)
	if err != nil {
		panic(fmt.Sprintf("failed to create CallbackService: %v", err))
	}
	return s
}

// Ingest records a callback. When this process drives the investigation the coordinator
// applies it and publishes progress; otherwise the record is written to the store and the
// owning process picks it up on its next poll.
func (s *CallbackService) Ingest(
	ctx context.Context,
	investigationID string,
	payload model.CallbackPayload,
) (*CallbackAck, error) {
	if err := payload.Validate(); err != nil {
		return nil, apperrors.Validation(err.Error())
	}

	applied, owned, err := s.coordinator.DeliverCallback(ctx, investigationID, payload)
	if err != nil {
		return nil, storeError(err, investigationID)
	}
	if !owned {
		applied, err = s.write(ctx, investigationID, payload)
		if err != nil {
			return nil, err
		}
	}

	ack := &CallbackAck{
		InvestigationID: investigationID,
		Capability:      payload.Capability,
		Accepted:        true,
		Duplicate:       !applied,
	}
	s.logger.InfoContext(ctx, "callback received",
		"investigation_id", investigationID,
		"capability", payload.Capability,
		"status", payload.Status,
		"duplicate", ack.Duplicate,
		"local", owned,
	)
	return ack, nil
}

func (s *CallbackService) write(ctx context.Context, investigationID string, payload model.CallbackPayload) (bool, error) {
	inv, err := s.repo.GetByID(ctx, investigationID)
	if err != nil {
		return false, storeError(err, investigationID)
	}
	if inv.Status.IsTerminal() {
		return false, storeError(core.ErrInvestigationTerminal, investigationID)
	}

	res := payload.Result()
	applied, err := s.repo.UpdateExecution(ctx, core.UpdateExecutionParams{
		InvestigationID: investigationID,
		Capability:      payload.Capability,
		Status:          res.ExecutionStatus(),
		Result:          &res,
	})
	if err != nil {
		return false, storeError(err, investigationID)
	}
	return applied, nil
}
