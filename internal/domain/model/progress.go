package model

import (
	"encoding/json"
	"time"
)

// ProgressEventKind identifies the kind of a progress event.
type ProgressEventKind string

const (
	// ProgressRunning reports that the investigation or one of its capabilities started.
	ProgressRunning ProgressEventKind = "running"
	// ProgressCapabilityCompleted reports a terminal execution record.
	ProgressCapabilityCompleted ProgressEventKind = "capability_completed"
	// ProgressCompleted is the final event of a successful investigation.
	ProgressCompleted ProgressEventKind = "completed"
	// ProgressFailed is the final event of a failed investigation.
	ProgressFailed ProgressEventKind = "failed"
)

// IsTerminal reports whether the kind ends a subscription.
func (k ProgressEventKind) IsTerminal() bool {
	return k == ProgressCompleted || k == ProgressFailed
}

// ProgressEvent is an ephemeral notification; it is never persisted.
type ProgressEvent struct {
	InvestigationID string            `json:"investigation_id"`
	Kind            ProgressEventKind `json:"kind"`
	Capability      string            `json:"capability,omitempty"`
	Status          ExecutionStatus   `json:"status,omitempty"`
	Percent         int               `json:"percent"`
	Completed       bool              `json:"completed"`
	Data            json.RawMessage   `json:"data,omitempty"`
	Error           string            `json:"error,omitempty"`
	ReportRef       string            `json:"report_ref,omitempty"`
	Replay          bool              `json:"replay,omitempty"`
	Timestamp       time.Time         `json:"timestamp"`
}

// TerminalEventFor synthesizes the final event for an investigation that already finished.
func TerminalEventFor(inv *Investigation, now time.Time) ProgressEvent {
	ev := ProgressEvent{
		InvestigationID: inv.ID,
		Kind:            ProgressFailed,
		Replay:          true,
		Timestamp:       now,
	}
	if total := len(inv.Executions); total > 0 {
		ev.Percent = inv.TerminalCount() * 100 / total
	}
	if inv.Status == InvestigationStatusCompleted {
		ev.Kind = ProgressCompleted
		ev.Percent = 100
		ev.Completed = true
		if inv.ReportRef != nil {
			ev.ReportRef = *inv.ReportRef
		}
		return ev
	}
	var summary InvestigationSummary
	if len(inv.Summary) > 0 && json.Unmarshal(inv.Summary, &summary) == nil {
		ev.Error = summary.Error
	}
	return ev
}
