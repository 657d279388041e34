package investigationtest

import (
	"context"
	"sync"

	"github.com/target/mmk-investigations/internal/core"
	"github.com/target/mmk-investigations/internal/domain/model"
)

const relayBuffer = 64

// MemoryRelay is an in-process core.ProgressRelay with Redis pub/sub semantics: no replay,
// and subscriptions end after a terminal event.
type MemoryRelay struct {
	mu        sync.Mutex
	subs      map[string]map[chan model.ProgressEvent]struct{}
	published []model.ProgressEvent
}

var _ core.ProgressRelay = (*MemoryRelay)(nil)

// NewMemoryRelay creates an empty relay.
func NewMemoryRelay() *MemoryRelay {
	return &MemoryRelay{subs: map[string]map[chan model.ProgressEvent]struct{}{}}
}

// Publish delivers ev to current subscribers of its investigation.
func (r *MemoryRelay) Publish(_ context.Context, ev model.ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.published = append(r.published, ev)
	for ch := range r.subs[ev.InvestigationID] {
		select {
		case ch <- ev:
		default:
		}
		if ev.Kind.IsTerminal() {
			close(ch)
		}
	}
	if ev.Kind.IsTerminal() {
		delete(r.subs, ev.InvestigationID)
	}
}

// Subscribe registers a subscriber for one investigation.
func (r *MemoryRelay) Subscribe(_ context.Context, investigationID string) (<-chan model.ProgressEvent, func(), error) {
	ch := make(chan model.ProgressEvent, relayBuffer)
	r.mu.Lock()
	if r.subs[investigationID] == nil {
		r.subs[investigationID] = map[chan model.ProgressEvent]struct{}{}
	}
	r.subs[investigationID][ch] = struct{}{}
	r.mu.Unlock()

	release := func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if _, ok := r.subs[investigationID][ch]; ok {
			delete(r.subs[investigationID], ch)
			close(ch)
		}
	}
	return ch, release, nil
}

// Published returns every event seen so far.
func (r *MemoryRelay) Published() []model.ProgressEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.ProgressEvent(nil), r.published...)
}
