// Package progress distributes live investigation progress to any number of subscribers.
package progress

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/target/mmk-investigations/internal/domain/model"
)

var (
	// ErrStreamNotActive is returned when subscribing to an investigation without a live topic.
	ErrStreamNotActive = errors.New("no live progress stream for investigation")
	// ErrStreamExists is returned when opening a topic twice.
	ErrStreamExists = errors.New("progress stream already open")
)

const defaultBuffer = 64

// HubOptions configures a Hub.
type HubOptions struct {
	// Buffer is the per-subscriber channel capacity. Events beyond it are dropped for that
	// subscriber only; the terminal event always gets through.
	Buffer int
	Logger *slog.Logger
}

// Hub owns one topic per live investigation. The topic map lock is held only for lookups;
// fan-out happens under the topic's own lock so unrelated investigations never contend.
type Hub struct {
	buffer int
	logger *slog.Logger

	mu     sync.RWMutex
	topics map[string]*topic
}

type topic struct {
	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	closed bool
}

// Subscription is a finite, non-restartable sequence of events for one investigation.
// Its channel closes right after the terminal event, or when the subscription is closed.
type Subscription struct {
	ch    chan model.ProgressEvent
	topic *topic
}

// Events returns the event channel.
func (s *Subscription) Events() <-chan model.ProgressEvent {
	return s.ch
}

// Close detaches the subscription. It is safe to call more than once and after the terminal event.
func (s *Subscription) Close() {
	t := s.topic
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.subs[s]; !ok {
		return
	}
	delete(t.subs, s)
	drainAndClose(s.ch)
}

// NewHub creates a Hub.
func NewHub(opts HubOptions) *Hub {
	buffer := opts.Buffer
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		buffer: buffer,
		logger: logger.With("component", "progress_hub"),
		topics: make(map[string]*topic),
	}
}

// Open creates the topic for an investigation. It must be called before the first publish.
func (h *Hub) Open(investigationID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.topics[investigationID]; ok {
		return ErrStreamExists
	}
	h.topics[investigationID] = &topic{subs: make(map[*Subscription]struct{})}
	return nil
}

// Active reports whether the investigation has a live topic.
func (h *Hub) Active(investigationID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.topics[investigationID]
	return ok
}

// Subscribe attaches to a live topic. Events published before the call are not replayed.
func (h *Hub) Subscribe(investigationID string) (*Subscription, error) {
	t := h.lookup(investigationID)
	if t == nil {
		return nil, ErrStreamNotActive
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, ErrStreamNotActive
	}
	sub := &Subscription{ch: make(chan model.ProgressEvent, h.buffer), topic: t}
	t.subs[sub] = struct{}{}
	return sub, nil
}

// Publish fans ev out to every current subscriber without blocking. A terminal event is
// delivered to every subscriber and tears the topic down. It reports whether a topic existed.
func (h *Hub) Publish(investigationID string, ev model.ProgressEvent) bool {
	t := h.lookup(investigationID)
	if t == nil {
		return false
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return false
	}
	terminal := ev.Kind.IsTerminal()
	for sub := range t.subs {
		if terminal {
			forceSend(sub.ch, ev)
			close(sub.ch)
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			h.logger.Debug("dropped progress event for slow subscriber",
				"investigation_id", investigationID,
				"kind", ev.Kind,
			)
		}
	}
	if terminal {
		t.closed = true
		t.subs = make(map[*Subscription]struct{})
	}
	t.mu.Unlock()

	if terminal {
		h.remove(investigationID, t)
	}
	return true
}

// Discard tears a topic down without a terminal event, closing subscriber channels.
// Used when an investigation fails to start after its topic was opened.
func (h *Hub) Discard(investigationID string) {
	t := h.lookup(investigationID)
	if t == nil {
		return
	}
	t.mu.Lock()
	for sub := range t.subs {
		drainAndClose(sub.ch)
	}
	t.subs = make(map[*Subscription]struct{})
	t.closed = true
	t.mu.Unlock()
	h.remove(investigationID, t)
}

// CloseAll discards every topic. Used at shutdown.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	ids := make([]string, 0, len(h.topics))
	for id := range h.topics {
		ids = append(ids, id)
	}
	h.mu.RUnlock()
	for _, id := range ids {
		h.Discard(id)
	}
}

func (h *Hub) lookup(investigationID string) *topic {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.topics[investigationID]
}

func (h *Hub) remove(investigationID string, t *topic) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if cur, ok := h.topics[investigationID]; ok && cur == t {
		delete(h.topics, investigationID)
	}
}

// forceSend delivers ev, evicting the oldest buffered event when the buffer is full.
// The caller holds the topic lock, so it is the only sender.
func forceSend(ch chan model.ProgressEvent, ev model.ProgressEvent) {
	for {
		select {
		case ch <- ev:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

// drainAndClose removes buffered events before closing so receivers observe the close immediately.
func drainAndClose(ch chan model.ProgressEvent) {
	for {
		select {
		case <-ch:
		default:
			close(ch)
			return
		}
	}
}
