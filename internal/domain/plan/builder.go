// Package plan turns a structured intent into an ordered list of capability invocations.
package plan

import (
	"errors"
	"fmt"
	"strings"

	"github.com/target/mmk-investigations/internal/domain/capability"
	"github.com/target/mmk-investigations/internal/domain/model"
)

// ErrNoFallback is returned by NewBuilder when the registry cannot guarantee a generic plan.
var ErrNoFallback = errors.New("registry has no generic capability accepting any target")

// Builder builds plans from a frozen capability registry. It holds no mutable state,
// so a given intent and registry snapshot always produce the same plan.
type Builder struct {
	registry *capability.Registry
}

// NewBuilder creates a Builder. The registry must contain at least one generic capability
// that accepts any target at every depth, which is what makes the fallback plan non-empty.
func NewBuilder(registry *capability.Registry) (*Builder, error) {
	if registry == nil {
		return nil, errors.New("capability registry is required")
	}
	for _, d := range registry.List() {
		if d.HasTag(capability.TagGeneric) && len(d.Accepts) == 0 &&
			(d.MinDepth == "" || d.MinDepth == model.DepthShallow) {
			return &Builder{registry: registry}, nil
		}
	}
	return nil, ErrNoFallback
}

// Build produces the plan for an intent. Intents without a usable target are rejected
// with model.ErrNoUsableTarget.
func (b *Builder) Build(intent model.Intent) (model.Plan, error) {
	in := intent.Normalize()
	if err := in.Validate(); err != nil {
		return model.Plan{}, err
	}

	var descs []capability.Descriptor
	if in.Type.Known() {
		descs = b.registry.ListForIntent(in)
	}
	fallback := len(descs) == 0
	if fallback {
		descs = b.registry.Generic(in)
	}
	if len(descs) == 0 {
		// Unreachable with a registry accepted by NewBuilder.
		return model.Plan{}, ErrNoFallback
	}

	p := model.Plan{Entries: make([]model.PlanEntry, 0, len(descs))}
	for i, d := range descs {
		p.Entries = append(p.Entries, model.PlanEntry{
			Capability: d.Name,
			Category:   d.Category,
			Params:     d.Params(in.Target),
			Priority:   i + 1,
			Timeout:    d.Timeout,
		})
		p.EstimatedTime += d.EstimatedDuration
	}
	p.Strategy = describe(in, descs, fallback)
	return p, nil
}

func describe(in model.Intent, descs []capability.Descriptor, fallback bool) string {
	subject := in.Target.Primary()
	if fallback {
		kind := string(in.Type)
		if kind == "" {
			kind = "unspecified"
		}
		return fmt.Sprintf("No dedicated capabilities for %s request on %q at %s depth; running generic plan: %s.",
			kind, subject, in.Depth, names(descs))
	}

	var specific, general []capability.Descriptor
	for _, d := range descs {
		if d.IsPlatformSpecific() {
			specific = append(specific, d)
		} else {
			general = append(general, d)
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s investigation of %q at %s depth", capitalize(string(in.Type)), subject, in.Depth)
	if len(specific) > 0 {
		fmt.Fprintf(&b, ": %d platform-specific (%s)", len(specific), names(specific))
		if len(general) > 0 {
			fmt.Fprintf(&b, " then %d general (%s)", len(general), names(general))
		}
	} else {
		fmt.Fprintf(&b, ": %d general (%s)", len(general), names(general))
	}
	b.WriteString(".")
	return b.String()
}

func names(descs []capability.Descriptor) string {
	out := make([]string, len(descs))
	for i, d := range descs {
		out[i] = d.Name
	}
	return strings.Join(out, ", ")
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
