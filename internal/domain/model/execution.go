package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ExecutionStatus represents the state of one capability invocation within an investigation.
type ExecutionStatus string

const (
	// ExecutionStatusPending means the plan entry has not been dispatched.
	ExecutionStatusPending ExecutionStatus = "pending"
	// ExecutionStatusRunning means the capability was dispatched and has not reported.
	ExecutionStatusRunning ExecutionStatus = "running"
	// ExecutionStatusSuccess means the capability returned a result.
	ExecutionStatusSuccess ExecutionStatus = "success"
	// ExecutionStatusFailed means the capability errored, timed out, or was abandoned.
	ExecutionStatusFailed ExecutionStatus = "failed"
	// ExecutionStatusSkipped means the entry was never dispatched.
	ExecutionStatusSkipped ExecutionStatus = "skipped"
)

// Valid returns true if the status is one of the known values.
func (s ExecutionStatus) Valid() bool {
	switch s {
	case ExecutionStatusPending, ExecutionStatusRunning, ExecutionStatusSuccess,
		ExecutionStatusFailed, ExecutionStatusSkipped:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the record can no longer change.
func (s ExecutionStatus) IsTerminal() bool {
	return s == ExecutionStatusSuccess || s == ExecutionStatusFailed || s == ExecutionStatusSkipped
}

// CanTransitionTo enforces pending -> running -> terminal, with pending -> terminal allowed
// for skipped entries and for callbacks that arrive before dispatch is recorded.
func (s ExecutionStatus) CanTransitionTo(next ExecutionStatus) bool {
	switch s {
	case ExecutionStatusPending:
		return next == ExecutionStatusRunning || next.IsTerminal()
	case ExecutionStatusRunning:
		return next.IsTerminal()
	default:
		return false
	}
}

// Error classes recorded on failed execution records.
const (
	ErrorClassCapability = "capability_error"
	ErrorClassTimeout    = "timeout"
	ErrorClassCanceled   = "canceled"
	ErrorClassPanic      = "panic"
	ErrorClassAborted    = "aborted"
)

// ExecutionMetrics carries resource usage reported for an invocation.
type ExecutionMetrics struct {
	DurationMs int64    `json:"duration_ms"`
	CPUPercent *float64 `json:"cpu_percent,omitempty"`
	MemoryMB   *float64 `json:"memory_mb,omitempty"`
}

// ExecutionRecord is the durable outcome of one capability invocation.
type ExecutionRecord struct {
	ID              string           `json:"id"`
	InvestigationID string           `json:"investigation_id"`
	Position        int              `json:"position"`
	Capability      string           `json:"capability"`
	Category        string           `json:"category"`
	Status          ExecutionStatus  `json:"status"`
	Metrics         ExecutionMetrics `json:"metrics"`
	Confidence      *float64         `json:"confidence,omitempty"`
	Data            json.RawMessage  `json:"data,omitempty"`
	Error           *string          `json:"error,omitempty"`
	ErrorClass      *string          `json:"error_class,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
	FinishedAt      *time.Time       `json:"finished_at,omitempty"`
}

// CapabilityInput is what a capability receives for one invocation.
type CapabilityInput struct {
	InvestigationID string            `json:"investigation_id"`
	Capability      string            `json:"capability"`
	Depth           Depth             `json:"depth"`
	Params          map[string]string `json:"params"`
}

// ResultStatus is the outcome reported by a capability executor.
type ResultStatus string

const (
	// ResultSuccess carries data in the result.
	ResultSuccess ResultStatus = "success"
	// ResultFailed carries an error message in the result.
	ResultFailed ResultStatus = "failed"
	// ResultDeferred means the work continues out of process and will report via callback.
	ResultDeferred ResultStatus = "deferred"
)

// CapabilityResult is the structured outcome of a capability invocation.
// Faults raised by executors are converted into ResultFailed before leaving the registry.
type CapabilityResult struct {
	Status     ResultStatus     `json:"status"`
	Data       json.RawMessage  `json:"data,omitempty"`
	Confidence *float64         `json:"confidence,omitempty"`
	Metrics    ExecutionMetrics `json:"metrics"`
	Error      string           `json:"error,omitempty"`
	ErrorClass string           `json:"error_class,omitempty"`
}

// ExecutionStatus maps a finished result onto the record status.
func (r CapabilityResult) ExecutionStatus() ExecutionStatus {
	if r.Status == ResultSuccess {
		return ExecutionStatusSuccess
	}
	return ExecutionStatusFailed
}

// CallbackPayload is the body accepted by the callback ingress.
type CallbackPayload struct {
	Capability string           `json:"capability"`
	Category   string           `json:"category,omitempty"`
	Status     ExecutionStatus  `json:"status"`
	Metrics    *CallbackMetrics `json:"metrics,omitempty"`
	Confidence *float64         `json:"confidence_score,omitempty"`
	Data       json.RawMessage  `json:"data,omitempty"`
	Error      string           `json:"error,omitempty"`
}

// CallbackMetrics mirrors what out-of-process workers report.
type CallbackMetrics struct {
	Duration     float64  `json:"duration"` // seconds
	CPUPercent   *float64 `json:"cpu_percent,omitempty"`
	MemoryMB     *float64 `json:"memory_mb,omitempty"`
	ErrorMessage string   `json:"error_message,omitempty"`
}

// MaxCallbackDurationSeconds bounds a reported duration so it converts to milliseconds without overflow.
const MaxCallbackDurationSeconds = 24 * 60 * 60

// Validate checks the callback payload shape.
func (p *CallbackPayload) Validate() error {
	p.Capability = strings.TrimSpace(p.Capability)
	if p.Capability == "" {
		return errors.New("capability is required")
	}
	if p.Status != ExecutionStatusSuccess && p.Status != ExecutionStatusFailed {
		return fmt.Errorf("status must be %q or %q", ExecutionStatusSuccess, ExecutionStatusFailed)
	}
	if p.Confidence != nil && (*p.Confidence < 0 || *p.Confidence > 1) {
		return errors.New("confidence_score must be between 0 and 1")
	}
	if p.Metrics != nil && !(p.Metrics.Duration >= 0 && p.Metrics.Duration <= MaxCallbackDurationSeconds) {
		return fmt.Errorf("metrics.duration must be between 0 and %d seconds", MaxCallbackDurationSeconds)
	}
	return nil
}

// Result converts the payload into a CapabilityResult.
func (p *CallbackPayload) Result() CapabilityResult {
	res := CapabilityResult{
		Status:     ResultSuccess,
		Data:       p.Data,
		Confidence: p.Confidence,
	}
	if p.Metrics != nil {
		res.Metrics = ExecutionMetrics{
			DurationMs: int64(p.Metrics.Duration * 1000),
			CPUPercent: p.Metrics.CPUPercent,
			MemoryMB:   p.Metrics.MemoryMB,
		}
	}
	if p.Status == ExecutionStatusFailed {
		res.Status = ResultFailed
		res.ErrorClass = ErrorClassCapability
		res.Error = p.Error
		if res.Error == "" && p.Metrics != nil {
			res.Error = p.Metrics.ErrorMessage
		}
		if res.Error == "" {
			res.Error = "capability reported failure"
		}
	}
	return res
}
