// Package model defines the core data types shared by the investigation orchestration engine.
package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// InvestigationStatus represents the lifecycle state of an investigation.
//
//nolint:recvcheck // UnmarshalText needs pointer receiver, Valid needs value receiver
type InvestigationStatus string

const (
	// InvestigationStatusPending indicates the investigation is persisted but not yet executing.
	InvestigationStatusPending InvestigationStatus = "pending"
	// InvestigationStatusRunning indicates the plan is being executed.
	InvestigationStatusRunning InvestigationStatus = "running"
	// InvestigationStatusCompleted indicates every planned capability finished and the report was stored.
	InvestigationStatusCompleted InvestigationStatus = "completed"
	// InvestigationStatusFailed indicates an infrastructure fault, cancellation, or policy failure.
	InvestigationStatusFailed InvestigationStatus = "failed"
)

// Valid returns true if the status is one of the known values.
func (s InvestigationStatus) Valid() bool {
	return s == InvestigationStatusPending || s == InvestigationStatusRunning ||
		s == InvestigationStatusCompleted || s == InvestigationStatusFailed
}

// IsTerminal reports whether no further transitions are allowed.
func (s InvestigationStatus) IsTerminal() bool {
	return s == InvestigationStatusCompleted || s == InvestigationStatusFailed
}

// CanTransitionTo reports whether moving from s to next respects pending -> running -> terminal.
// A pending investigation may fail directly (startup fault, reaper, cancellation before start).
func (s InvestigationStatus) CanTransitionTo(next InvestigationStatus) bool {
	switch s {
	case InvestigationStatusPending:
		return next == InvestigationStatusRunning || next == InvestigationStatusFailed
	case InvestigationStatusRunning:
		return next == InvestigationStatusCompleted || next == InvestigationStatusFailed
	default:
		return false
	}
}

// UnmarshalText implements encoding.TextUnmarshaler for query and env parsing.
func (s *InvestigationStatus) UnmarshalText(text []byte) error {
	v := InvestigationStatus(strings.ToLower(strings.TrimSpace(string(text))))
	if !v.Valid() {
		return fmt.Errorf("invalid investigation status: %q", string(text))
	}
	*s = v
	return nil
}

// Depth controls how exhaustive an investigation is.
//
//nolint:recvcheck // UnmarshalText needs pointer receiver, Valid needs value receiver
type Depth string

const (
	// DepthShallow runs only fast, low-cost capabilities.
	DepthShallow Depth = "shallow"
	// DepthMedium is the default depth.
	DepthMedium Depth = "medium"
	// DepthDeep additionally runs slow or noisy capabilities.
	DepthDeep Depth = "deep"
)

// Valid returns true if the depth is one of the known values.
func (d Depth) Valid() bool {
	return d == DepthShallow || d == DepthMedium || d == DepthDeep
}

// Rank orders depths so capabilities can declare a minimum depth.
func (d Depth) Rank() int {
	switch d {
	case DepthShallow:
		return 0
	case DepthDeep:
		return 2
	default:
		return 1
	}
}

// OrDefault returns d, or DepthMedium when d is empty.
func (d Depth) OrDefault() Depth {
	if d == "" {
		return DepthMedium
	}
	return d
}

// UnmarshalText accepts the canonical names plus the quick/standard aliases used by query parsing.
func (d *Depth) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	switch v {
	case "quick", "fast":
		v = string(DepthShallow)
	case "standard", "normal":
		v = string(DepthMedium)
	case "full", "thorough":
		v = string(DepthDeep)
	}
	parsed := Depth(v)
	if !parsed.Valid() {
		return fmt.Errorf("invalid depth: %q", string(text))
	}
	*d = parsed
	return nil
}

// Investigation is the persisted job tracked end-to-end by the orchestration engine.
type Investigation struct {
	ID          string              `json:"id"`
	Query       string              `json:"query,omitempty"`
	Type        RequestType         `json:"type"`
	Target      Target              `json:"target"`
	Platforms   []string            `json:"platforms,omitempty"`
	Depth       Depth               `json:"depth"`
	Status      InvestigationStatus `json:"status"`
	Summary     json.RawMessage     `json:"summary,omitempty"`
	ReportRef   *string             `json:"report_ref,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
	CompletedAt *time.Time          `json:"completed_at,omitempty"`
	Executions  []ExecutionRecord   `json:"executions"`
}

// Intent returns the structured intent the investigation was started with.
func (i *Investigation) Intent() Intent {
	return Intent{Type: i.Type, Target: i.Target, Platforms: i.Platforms, Depth: i.Depth}
}

// TerminalCount returns how many execution records reached a terminal status.
func (i *Investigation) TerminalCount() int {
	n := 0
	for _, rec := range i.Executions {
		if rec.Status.IsTerminal() {
			n++
		}
	}
	return n
}

// StartInvestigationRequest is the input accepted by the start operation.
// Either Query or a non-empty Target must be supplied.
type StartInvestigationRequest struct {
	Query     string      `json:"query,omitempty"`
	Type      RequestType `json:"type,omitempty"`
	Target    *Target     `json:"target,omitempty"`
	Platforms []string    `json:"platforms,omitempty"`
	Depth     Depth       `json:"depth,omitempty"`
}

// Validate performs shape checks that do not require the intent parser.
func (r *StartInvestigationRequest) Validate() error {
	hasTarget := r.Target != nil && !r.Target.IsEmpty()
	if strings.TrimSpace(r.Query) == "" && !hasTarget {
		return errors.New("either query or target is required")
	}
	if r.Depth != "" && !r.Depth.Valid() {
		return fmt.Errorf("invalid depth: %q", r.Depth)
	}
	if len(r.Query) > 2000 {
		return errors.New("query must be 2000 characters or fewer")
	}
	return nil
}

// InvestigationListOptions bounds a list query.
type InvestigationListOptions struct {
	Status *InvestigationStatus
	Limit  int
	Offset int
}

// InvestigationSummary is the structured payload stored in Investigation.Summary.
type InvestigationSummary struct {
	Planned    int    `json:"planned"`
	Succeeded  int    `json:"succeeded"`
	Failed     int    `json:"failed"`
	Skipped    int    `json:"skipped"`
	Error      string `json:"error,omitempty"`
	ErrorClass string `json:"error_class,omitempty"`
	Canceled   bool   `json:"canceled,omitempty"`
}
