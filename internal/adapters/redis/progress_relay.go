// Package redis provides Redis-backed adapters for the investigation service.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/target/mmk-investigations/internal/core"
	"github.com/target/mmk-investigations/internal/domain/model"
)

const (
	defaultChannelPrefix  = "investigations:progress:"
	defaultQueueSize      = 1024
	defaultPublishTimeout = 2 * time.Second
	subscriberBuffer      = 64
)

// ProgressRelayOptions configures a ProgressRelay.
type ProgressRelayOptions struct {
	Client         redis.UniversalClient // Required
	ChannelPrefix  string                // Optional: defaults to investigations:progress:
	QueueSize      int                   // Optional: pending publishes before events are dropped
	PublishTimeout time.Duration         // Optional: bound on a single PUBLISH
	Logger         *slog.Logger          // Optional
}

// ProgressRelay mirrors progress events over Redis pub/sub so any replica can serve a stream
// for an investigation driven by another replica. Publishes are queued and sent by a single
// goroutine, which keeps per-investigation order and never blocks the caller.
type ProgressRelay struct {
	client  redis.UniversalClient
	prefix  string
	timeout time.Duration
	logger  *slog.Logger

	queue     chan model.ProgressEvent
	done      chan struct{}
	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
}

var _ core.ProgressRelay = (*ProgressRelay)(nil)

// NewProgressRelay creates a relay and starts its publisher.
func NewProgressRelay(opts ProgressRelayOptions) (*ProgressRelay, error) {
	if opts.Client == nil {
		return nil, errors.New("redis client is required")
	}
	r := &ProgressRelay{
		client:  opts.Client,
		prefix:  opts.ChannelPrefix,
		timeout: opts.PublishTimeout,
		logger:  opts.Logger,
	}
	if r.prefix == "" {
		r.prefix = defaultChannelPrefix
	}
	if r.timeout <= 0 {
		r.timeout = defaultPublishTimeout
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	r.logger = r.logger.With("component", "progress_relay")
	size := opts.QueueSize
	if size <= 0 {
		size = defaultQueueSize
	}
	r.queue = make(chan model.ProgressEvent, size)
	r.done = make(chan struct{})
	go r.publishLoop()
	return r, nil
}

// Channel returns the pub/sub channel for an investigation.
func (r *ProgressRelay) Channel(investigationID string) string {
	return r.prefix + investigationID
}

// Publish queues ev for delivery. When the queue is full a non-terminal event is dropped; a
// terminal event waits up to the publish timeout for room, since remote streams only end on it.
func (r *ProgressRelay) Publish(ctx context.Context, ev model.ProgressEvent) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return
	}
	select {
	case r.queue <- ev:
		return
	default:
	}
	if ev.Kind.IsTerminal() {
		timer := time.NewTimer(r.timeout)
		defer timer.Stop()
		select {
		case r.queue <- ev:
			return
		case <-timer.C:
		}
	}
	r.logger.WarnContext(ctx, "progress relay queue full, dropping event",
		"investigation_id", ev.InvestigationID,
		"kind", ev.Kind,
	)
}

func (r *ProgressRelay) publishLoop() {
	defer close(r.done)
	for ev := range r.queue {
		r.send(ev)
	}
}

func (r *ProgressRelay) send(ev model.ProgressEvent) {
	b, err := json.Marshal(ev)
	if err != nil {
		r.logger.Error("marshal progress event", "investigation_id", ev.InvestigationID, "error", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	if err := r.client.Publish(ctx, r.Channel(ev.InvestigationID), b).Err(); err != nil {
		r.logger.Warn("publish progress event",
			"investigation_id", ev.InvestigationID,
			"kind", ev.Kind,
			"error", err,
		)
	}
}

// Subscribe streams events for one investigation. The channel closes after a terminal event,
// when ctx is done, or when release is called.
func (r *ProgressRelay) Subscribe(
	ctx context.Context,
	investigationID string,
) (<-chan model.ProgressEvent, func(), error) {
	subCtx, cancel := context.WithCancel(ctx)
	ps := r.client.Subscribe(subCtx, r.Channel(investigationID))
	if _, err := ps.Receive(subCtx); err != nil {
		cancel()
		_ = ps.Close()
		return nil, nil, fmt.Errorf("subscribe %s: %w", investigationID, err)
	}

	out := make(chan model.ProgressEvent, subscriberBuffer)
	var once sync.Once
	release := func() {
		once.Do(func() {
			cancel()
			_ = ps.Close()
		})
	}

	go func() {
		defer close(out)
		defer release()
		msgs := ps.Channel()
		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var ev model.ProgressEvent
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					r.logger.WarnContext(subCtx, "discarding malformed progress event",
						"investigation_id", investigationID,
						"error", err,
					)
					continue
				}
				select {
				case out <- ev:
				case <-subCtx.Done():
					return
				}
				if ev.Kind.IsTerminal() {
					return
				}
			}
		}
	}()
	return out, release, nil
}

// Close stops accepting events and flushes queued ones, waiting at most until ctx is done.
func (r *ProgressRelay) Close(ctx context.Context) error {
	r.closeOnce.Do(func() {
		r.mu.Lock()
		r.closed = true
		close(r.queue)
		r.mu.Unlock()
	})
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
