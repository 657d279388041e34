// Package failurenotifier fans investigation failures out to alerting sinks.
package failurenotifier

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/target/mmk-investigations/internal/domain/model"
	"github.com/target/mmk-investigations/internal/observability/notify"
)

const defaultDeliveryTimeout = 10 * time.Second

// SinkRegistration pairs a sink implementation with a human-readable name for logging.
type SinkRegistration struct {
	Name string
	Sink notify.Sink
}

// Options configures the failure notifier service.
type Options struct {
	Logger *slog.Logger
	Sinks  []SinkRegistration
	// SuppressClasses lists error classes that never alert. Defaults to canceled and aborted,
	// which are operator cancellations and shutdown or reaper cleanups.
	SuppressClasses []string
	// WarningClasses alert with warning severity; everything else is critical.
	// Defaults to capability_error and timeout, where a remote tool misbehaved.
	WarningClasses []string
	// DeliveryTimeout bounds one fan-out. It is detached from the caller's cancellation so a
	// failure recorded during shutdown still gets delivered.
	DeliveryTimeout time.Duration
}

// Service dispatches failure events to all registered sinks.
type Service struct {
	logger   *slog.Logger
	sinks    []SinkRegistration
	suppress map[string]bool
	warning  map[string]bool
	timeout  time.Duration
}

// NewService constructs a failure notifier.
func NewService(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var sinks []SinkRegistration
	for _, entry := range opts.Sinks {
		if entry.Sink == nil {
			continue
		}
		name := entry.Name
		if name == "" {
			name = "sink"
		}
		sinks = append(sinks, SinkRegistration{Name: name, Sink: entry.Sink})
	}

	suppress := opts.SuppressClasses
	if suppress == nil {
		suppress = []string{model.ErrorClassCanceled, model.ErrorClassAborted}
	}
	warning := opts.WarningClasses
	if warning == nil {
		warning = []string{model.ErrorClassCapability, model.ErrorClassTimeout}
	}
	timeout := opts.DeliveryTimeout
	if timeout <= 0 {
		timeout = defaultDeliveryTimeout
	}

	return &Service{
		logger:   logger.With("component", "failure_notifier"),
		sinks:    sinks,
		suppress: classSet(suppress),
		warning:  classSet(warning),
		timeout:  timeout,
	}
}

func classSet(classes []string) map[string]bool {
	out := make(map[string]bool, len(classes))
	for _, c := range classes {
		if c = strings.ToLower(strings.TrimSpace(c)); c != "" {
			out[c] = true
		}
	}
	return out
}

// Severity returns the alert severity for an error class.
func (s *Service) Severity(errorClass string) string {
	if s.warning[strings.ToLower(errorClass)] {
		return notify.SeverityWarning
	}
	return notify.SeverityCritical
}

// Suppressed reports whether failures of this class are never alerted on.
func (s *Service) Suppressed(errorClass string) bool {
	return s.suppress[strings.ToLower(errorClass)]
}

// NotifyInvestigationFailure fans the payload out to all sinks and waits for them.
func (s *Service) NotifyInvestigationFailure(ctx context.Context, payload notify.InvestigationFailurePayload) {
	if len(s.sinks) == 0 {
		return
	}
	if s.Suppressed(payload.ErrorClass) {
		s.logger.DebugContext(ctx, "notification suppressed",
			"investigation_id", payload.InvestigationID,
			"error_class", payload.ErrorClass,
		)
		return
	}

	if payload.Severity == "" {
		payload.Severity = s.Severity(payload.ErrorClass)
	}
	if payload.OccurredAt.IsZero() {
		payload.OccurredAt = time.Now().UTC()
	}

	deliverCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	var wg sync.WaitGroup
	for _, entry := range s.sinks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := entry.Sink.SendInvestigationFailure(deliverCtx, payload); err != nil {
				s.logger.ErrorContext(ctx, "failure notifier delivery error",
					"sink", entry.Name,
					"investigation_id", payload.InvestigationID,
					"error", err,
				)
			}
		}()
	}
	wg.Wait()
}

// Enabled reports whether the notifier has any active sinks.
func (s *Service) Enabled() bool {
	return len(s.sinks) > 0
}
