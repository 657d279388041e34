// Package capability holds the catalog of analysis capabilities available to investigations.
//
// The registry is populated during bootstrap and frozen before the coordinator starts.
// Reads never take a lock: every mutation publishes a fresh immutable snapshot.
package capability

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/target/mmk-investigations/internal/domain/model"
)

var (
	// ErrNotFound is returned when no capability is registered under a name.
	ErrNotFound = errors.New("capability not found")
	// ErrDuplicate is returned when a name is registered twice.
	ErrDuplicate = errors.New("capability already registered")
	// ErrFrozen is returned when registering after Freeze.
	ErrFrozen = errors.New("capability registry is frozen")
)

// Tag describes what a capability serves: a request type, a platform, or the generic fallback.
type Tag string

// TagGeneric marks capabilities usable for any request type.
const TagGeneric Tag = "generic"

// TypeTag returns the tag for a request type.
func TypeTag(t model.RequestType) Tag { return Tag("type:" + string(t)) }

// PlatformTag returns the tag for a platform such as tiktok.
func PlatformTag(platform string) Tag {
	return Tag("platform:" + strings.ToLower(strings.TrimSpace(platform)))
}

// Executor runs one capability invocation.
type Executor interface {
	Execute(ctx context.Context, in model.CapabilityInput) (model.CapabilityResult, error)
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, in model.CapabilityInput) (model.CapabilityResult, error)

// Execute calls f.
func (f ExecutorFunc) Execute(ctx context.Context, in model.CapabilityInput) (model.CapabilityResult, error) {
	return f(ctx, in)
}

// Descriptor describes a registered capability.
type Descriptor struct {
	Name        string
	Category    string
	Description string
	Tags        []Tag
	// Accepts lists the target fields the capability consumes. Empty means any field.
	Accepts []model.TargetField
	// MinDepth excludes the capability from shallower investigations.
	MinDepth model.Depth
	// Priority orders capabilities within the same tier; lower runs first.
	Priority          int
	EstimatedDuration time.Duration
	// Timeout bounds a single invocation. Required.
	Timeout  time.Duration
	Executor Executor
}

// Validate checks that the descriptor can be registered.
func (d Descriptor) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return errors.New("capability name is required")
	}
	if d.Category == "" {
		return fmt.Errorf("capability %s: category is required", d.Name)
	}
	if len(d.Tags) == 0 {
		return fmt.Errorf("capability %s: at least one tag is required", d.Name)
	}
	if d.Timeout <= 0 {
		return fmt.Errorf("capability %s: timeout must be positive", d.Name)
	}
	if d.Executor == nil {
		return fmt.Errorf("capability %s: executor is required", d.Name)
	}
	if d.MinDepth != "" && !d.MinDepth.Valid() {
		return fmt.Errorf("capability %s: invalid min depth %q", d.Name, d.MinDepth)
	}
	return nil
}

// HasTag reports whether the descriptor carries tag t.
func (d Descriptor) HasTag(t Tag) bool {
	for _, tag := range d.Tags {
		if tag == t {
			return true
		}
	}
	return false
}

// IsPlatformSpecific reports whether the descriptor carries any platform tag.
func (d Descriptor) IsPlatformSpecific() bool {
	for _, tag := range d.Tags {
		if strings.HasPrefix(string(tag), "platform:") {
			return true
		}
	}
	return false
}

// Serves reports whether the descriptor can run for the intent's depth and target.
func (d Descriptor) Serves(in model.Intent) bool {
	if d.MinDepth != "" && in.Depth.OrDefault().Rank() < d.MinDepth.Rank() {
		return false
	}
	if len(d.Accepts) == 0 {
		return !in.Target.IsEmpty()
	}
	for _, f := range d.Accepts {
		if in.Target.Has(f) {
			return true
		}
	}
	return false
}

// Params builds the invocation parameters from the target fields the descriptor consumes.
func (d Descriptor) Params(t model.Target) map[string]string {
	params := make(map[string]string)
	if len(d.Accepts) == 0 {
		for f, v := range t.Fields() {
			params[string(f)] = v
		}
		return params
	}
	for _, f := range d.Accepts {
		if v := t.Get(f); v != "" {
			params[string(f)] = v
		}
	}
	return params
}

type snapshot struct {
	byName  map[string]Descriptor
	ordered []Descriptor
}

// Registry is the catalog of capabilities.
type Registry struct {
	mu     sync.Mutex // serializes Register; readers use snap
	snap   atomic.Pointer[snapshot]
	frozen atomic.Bool
}

// NewRegistry creates a registry holding the given descriptors.
func NewRegistry(descs ...Descriptor) (*Registry, error) {
	r := &Registry{}
	r.snap.Store(&snapshot{byName: map[string]Descriptor{}})
	for _, d := range descs {
		if err := r.Register(d); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a descriptor. It fails after Freeze, on duplicates, and on invalid descriptors.
func (r *Registry) Register(d Descriptor) error {
	if err := d.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen.Load() {
		return ErrFrozen
	}
	cur := r.snap.Load()
	if _, ok := cur.byName[d.Name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicate, d.Name)
	}

	next := &snapshot{
		byName:  make(map[string]Descriptor, len(cur.byName)+1),
		ordered: make([]Descriptor, 0, len(cur.ordered)+1),
	}
	for k, v := range cur.byName {
		next.byName[k] = v
	}
	next.byName[d.Name] = d
	next.ordered = append(next.ordered, cur.ordered...)
	next.ordered = append(next.ordered, d)
	sortDescriptors(next.ordered)
	r.snap.Store(next)
	return nil
}

// Freeze rejects further registrations.
func (r *Registry) Freeze() {
	r.frozen.Store(true)
}

// Lookup returns the descriptor registered under name.
func (r *Registry) Lookup(name string) (Descriptor, error) {
	d, ok := r.snap.Load().byName[name]
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return d, nil
}

// List returns all descriptors ordered by priority then name.
func (r *Registry) List() []Descriptor {
	return append([]Descriptor(nil), r.snap.Load().ordered...)
}

// Len returns the number of registered capabilities.
func (r *Registry) Len() int {
	return len(r.snap.Load().ordered)
}

// ListForIntent returns the capabilities matching an intent, most specific first:
// platform-tagged capabilities in the order the intent names its platforms, then
// capabilities tagged with the intent's request type. The result is deduplicated and
// deterministic for a given registry snapshot.
func (r *Registry) ListForIntent(in model.Intent) []Descriptor {
	in = in.Normalize()
	snap := r.snap.Load()
	seen := make(map[string]bool)
	var out []Descriptor

	for _, platform := range in.Platforms {
		tag := PlatformTag(platform)
		for _, d := range snap.ordered {
			if seen[d.Name] || !d.HasTag(tag) || !d.Serves(in) {
				continue
			}
			seen[d.Name] = true
			out = append(out, d)
		}
	}

	if in.Type != "" {
		tag := TypeTag(in.Type)
		for _, d := range snap.ordered {
			if seen[d.Name] || d.IsPlatformSpecific() || !d.HasTag(tag) || !d.Serves(in) {
				continue
			}
			seen[d.Name] = true
			out = append(out, d)
		}
	}
	return out
}

// Generic returns the generic capabilities able to serve the intent.
func (r *Registry) Generic(in model.Intent) []Descriptor {
	in = in.Normalize()
	var out []Descriptor
	for _, d := range r.snap.Load().ordered {
		if d.HasTag(TagGeneric) && d.Serves(in) {
			out = append(out, d)
		}
	}
	return out
}

func sortDescriptors(ds []Descriptor) {
	sort.SliceStable(ds, func(i, j int) bool {
		if ds[i].Priority != ds[j].Priority {
			return ds[i].Priority < ds[j].Priority
		}
		return ds[i].Name < ds[j].Name
	})
}
