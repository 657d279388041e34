package model

import "time"

// PlanEntry is one capability invocation planned for an investigation. It is never persisted;
// the matching ExecutionRecord is.
type PlanEntry struct {
	Capability string            `json:"capability"`
	Category   string            `json:"category"`
	Params     map[string]string `json:"params"`
	Priority   int               `json:"priority"`
	Timeout    time.Duration     `json:"-"`
}

// Plan is the ordered, deduplicated list of invocations derived from an intent.
type Plan struct {
	Entries       []PlanEntry
	EstimatedTime time.Duration
	Strategy      string
}

// Capabilities returns the capability names in plan order.
func (p Plan) Capabilities() []string {
	out := make([]string, 0, len(p.Entries))
	for _, e := range p.Entries {
		out = append(out, e.Capability)
	}
	return out
}

// PlanSummary is the caller-facing view of a plan.
type PlanSummary struct {
	Capabilities     []string `json:"capabilities"`
	EstimatedSeconds int      `json:"estimated_seconds"`
	Strategy         string   `json:"strategy"`
}

// Summary returns the caller-facing view of p.
func (p Plan) Summary() PlanSummary {
	return PlanSummary{
		Capabilities:     p.Capabilities(),
		EstimatedSeconds: int(p.EstimatedTime.Round(time.Second) / time.Second),
		Strategy:         p.Strategy,
	}
}
