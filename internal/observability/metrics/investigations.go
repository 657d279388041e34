// Package metrics holds the metric helpers shared by the coordinator and the reaper.
package metrics

import (
	"time"

	obserrors "github.com/target/mmk-investigations/internal/observability/errors"
	"github.com/target/mmk-investigations/internal/observability/statsd"
)

// Result constants for metric tagging.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultNoop    = "noop"
)

// Lifecycle transitions tagged on investigation.lifecycle.
const (
	TransitionStarted   = "started"
	TransitionCompleted = "completed"
	TransitionFailed    = "failed"
	TransitionCanceled  = "canceled"
	TransitionReaped    = "reaped"
)

// InvestigationMetric captures one investigation lifecycle transition.
type InvestigationMetric struct {
	Transition string
	Depth      string
	Planned    int
	Duration   time.Duration
	Err        error
	// Count is the number of investigations making the transition; zero means one.
	Count int64
}

// EmitInvestigationLifecycle emits investigation.lifecycle and, when a duration is known,
// investigation.duration.
func EmitInvestigationLifecycle(sink statsd.Sink, in InvestigationMetric) {
	if sink == nil {
		return
	}
	tags := map[string]string{"transition": in.Transition}
	if in.Depth != "" {
		tags["depth"] = in.Depth
	}
	if in.Err != nil {
		tags["result"] = ResultError
		if class := obserrors.Classify(in.Err); class != "" {
			tags["error_class"] = class
		}
	} else {
		tags["result"] = ResultSuccess
	}

	n := in.Count
	if n <= 0 {
		n = 1
	}
	sink.Count("investigation.lifecycle", n, tags)
	if in.Planned > 0 && in.Transition == TransitionStarted {
		sink.Gauge("investigation.planned_capabilities", float64(in.Planned), CloneTags(tags))
	}
	if in.Duration > 0 {
		sink.Timing("investigation.duration", in.Duration, CloneTags(tags))
	}
}

// CapabilityMetric captures the outcome of one capability invocation.
type CapabilityMetric struct {
	Capability string
	Category   string
	Status     string
	ErrorClass string
	Duration   time.Duration
}

// EmitCapabilityResult emits capability.result and capability.duration.
func EmitCapabilityResult(sink statsd.Sink, in CapabilityMetric) {
	if sink == nil {
		return
	}
	tags := map[string]string{
		"capability": in.Capability,
		"category":   in.Category,
		"status":     in.Status,
	}
	if in.ErrorClass != "" {
		tags["error_class"] = in.ErrorClass
	}
	sink.Count("capability.result", 1, tags)
	if in.Duration > 0 {
		sink.Timing("capability.duration", in.Duration, CloneTags(tags))
	}
}

// CloneTags creates a shallow copy of a tag map.
func CloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
