package notify

import (
	"context"
	"time"
)

// Severity constants recognised by downstream sinks.
const (
	SeverityCritical = "critical"
	SeverityWarning  = "warning"
)

// InvestigationFailurePayload captures the data emitted when an investigation fails.
type InvestigationFailurePayload struct {
	InvestigationID string
	Type            string
	Target          string
	Depth           string
	Error           string
	ErrorClass      string
	Planned         int
	Succeeded       int
	Failed          int
	Severity        string
	OccurredAt      time.Time
	Metadata        map[string]string
}

// Sink describes a destination capable of consuming investigation failure notifications.
type Sink interface {
	SendInvestigationFailure(ctx context.Context, payload InvestigationFailurePayload) error
}

// SinkFunc adapts a function to the Sink interface (useful for tests).
type SinkFunc func(ctx context.Context, payload InvestigationFailurePayload) error

// SendInvestigationFailure implements the Sink interface.
func (f SinkFunc) SendInvestigationFailure(ctx context.Context, payload InvestigationFailurePayload) error {
	if f == nil {
		return nil
	}
	return f(ctx, payload)
}
