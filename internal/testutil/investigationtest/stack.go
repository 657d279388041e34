// Package investigationtest wires an in-memory investigation engine for service and HTTP tests.
package investigationtest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/target/mmk-investigations/internal/adapters/report"
	"github.com/target/mmk-investigations/internal/core"
	"github.com/target/mmk-investigations/internal/data"
	"github.com/target/mmk-investigations/internal/data/memstore"
	"github.com/target/mmk-investigations/internal/domain/capability"
	"github.com/target/mmk-investigations/internal/domain/model"
	"github.com/target/mmk-investigations/internal/domain/plan"
	"github.com/target/mmk-investigations/internal/domain/progress"
	"github.com/target/mmk-investigations/internal/observability/statsd"
	"github.com/target/mmk-investigations/internal/service"
)

// Capability names registered by DefaultCapabilities.
const (
	TikTokCapability   = "tiktok-profile-analyzer"
	SherlockCapability = "sherlock"
	GenericCapability  = "web-footprint"
)

// Options configures the stack. Zero values select in-memory defaults.
type Options struct {
	// Executors overrides the executor of a default capability by name.
	Executors map[string]capability.Executor
	// Capabilities replaces the default capability set entirely.
	Capabilities []capability.Descriptor
	Coordinator  service.CoordinatorConfig
	Parser       core.IntentParser
	Relay        core.ProgressRelay
	Reports      core.ReportGenerator
	Notifier     service.FailureNotifier
	Metrics      statsd.Sink
	// Clock drives store timestamps. Defaults to the system clock.
	Clock data.TimeProvider
}

// Stack is a fully wired engine backed by memstore.
type Stack struct {
	Store          *memstore.Store
	Registry       *capability.Registry
	Builder        *plan.Builder
	Hub            *progress.Hub
	Coordinator    *service.Coordinator
	Investigations *service.InvestigationService
	Callbacks      *service.CallbackService
	Logger         *slog.Logger
}

// DiscardLogger returns a logger that drops everything.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// DefaultCapabilities returns a platform-specific, a profile and a generic capability.
// Each succeeds immediately unless overridden in execs.
func DefaultCapabilities(execs map[string]capability.Executor) []capability.Descriptor {
	exec := func(name string) capability.Executor {
		if e, ok := execs[name]; ok {
			return e
		}
		return Succeed(`{"source":"` + name + `"}`)
	}
	return []capability.Descriptor{
		{
			Name:     TikTokCapability,
			Category: capability.CategorySocial,
			Tags:     []capability.Tag{capability.PlatformTag("tiktok")},
			Accepts:  []model.TargetField{model.TargetUsername},
			Priority: 1,
			Timeout:  2 * time.Second,
			Executor: exec(TikTokCapability),
		},
		{
			Name:     SherlockCapability,
			Category: capability.CategoryUsername,
			Tags:     []capability.Tag{capability.TypeTag(model.RequestTypeProfile)},
			Accepts:  []model.TargetField{model.TargetUsername},
			Priority: 2,
			Timeout:  2 * time.Second,
			Executor: exec(SherlockCapability),
		},
		{
			Name:     GenericCapability,
			Category: capability.CategoryGeneric,
			Tags:     []capability.Tag{capability.TagGeneric},
			Priority: 9,
			Timeout:  2 * time.Second,
			Executor: exec(GenericCapability),
		},
	}
}

// New builds a Stack. The coordinator is shut down when the test ends.
func New(t testing.TB, opts Options) *Stack {
	t.Helper()

	logger := DiscardLogger()
	descs := opts.Capabilities
	if descs == nil {
		descs = DefaultCapabilities(opts.Executors)
	}
	registry, err := capability.NewRegistry(descs...)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	registry.Freeze()

	builder, err := plan.NewBuilder(registry)
	if err != nil {
		t.Fatalf("plan builder: %v", err)
	}

	store := memstore.New(memstore.Options{TimeProvider: opts.Clock})
	hub := progress.NewHub(progress.HubOptions{Buffer: 64, Logger: logger})

	reports := opts.Reports
	if reports == nil {
		reports = report.MustNewGenerator(report.GeneratorOptions{Repo: store, Logger: logger})
	}

	cfg := opts.Coordinator
	if cfg.CancelGrace == 0 {
		cfg.CancelGrace = 50 * time.Millisecond
	}
	if cfg.CallbackPollInterval == 0 {
		cfg.CallbackPollInterval = 20 * time.Millisecond
	}

	coord := service.MustNewCoordinator(service.CoordinatorOptions{
		Deps: service.CoordinatorDeps{
			Repo:     store,
			Registry: registry,
			Hub:      hub,
			Reports:  reports,
			Relay:    opts.Relay,
			Notifier: opts.Notifier,
		},
		Config:  cfg,
		Logger:  logger,
		Metrics: opts.Metrics,
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := coord.Shutdown(ctx); shutdownErr != nil {
			t.Logf("coordinator shutdown: %v", shutdownErr)
		}
	})

	return &Stack{
		Store:    store,
		Registry: registry,
		Builder:  builder,
		Hub:      hub,
		Investigations: service.MustNewInvestigationService(service.InvestigationServiceOptions{
			Repo:        store,
			Builder:     builder,
			Coordinator: coord,
			Hub:         hub,
			Parser:      opts.Parser,
			Relay:       opts.Relay,
			Logger:      logger,
		}),
		Callbacks: service.MustNewCallbackService(service.CallbackServiceOptions{
			Repo:        store,
			Coordinator: coord,
			Logger:      logger,
		}),
		Coordinator: coord,
		Logger:      logger,
	}
}

// ProfileRequest starts a tiktok profile investigation for username.
func ProfileRequest(username string) model.StartInvestigationRequest {
	return model.StartInvestigationRequest{
		Type:      model.RequestTypeProfile,
		Target:    &model.Target{Username: username},
		Platforms: []string{"tiktok"},
	}
}

// WaitFinished blocks until the coordinator is no longer driving id and returns the stored state.
func (s *Stack) WaitFinished(t testing.TB, id string) *model.Investigation {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Coordinator.Wait(ctx, id); err != nil {
		t.Fatalf("wait for %s: %v", id, err)
	}
	inv, err := s.Store.GetByID(ctx, id)
	if err != nil {
		t.Fatalf("load %s: %v", id, err)
	}
	return inv
}

// CreatePending persists a pending investigation that no coordinator drives.
func (s *Stack) CreatePending(t testing.TB, id string, capabilities ...string) *model.Investigation {
	t.Helper()
	inv := &model.Investigation{
		ID:     id,
		Type:   model.RequestTypeProfile,
		Target: model.Target{Username: "orphan"},
		Depth:  model.DepthMedium,
		Status: model.InvestigationStatusPending,
	}
	for i, name := range capabilities {
		inv.Executions = append(inv.Executions, model.ExecutionRecord{
			ID:              id + "-" + name,
			InvestigationID: id,
			Position:        i,
			Capability:      name,
			Category:        capability.CategoryGeneric,
			Status:          model.ExecutionStatusPending,
		})
	}
	if err := s.Store.Create(context.Background(), inv); err != nil {
		t.Fatalf("create pending: %v", err)
	}
	return inv
}

// Collect drains events until the channel closes or the timeout passes.
func Collect(t testing.TB, events <-chan model.ProgressEvent, timeout time.Duration) []model.ProgressEvent {
	t.Helper()
	var out []model.ProgressEvent
	deadline := time.After(timeout)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-deadline:
			t.Fatalf("progress stream did not close within %s; got %d events", timeout, len(out))
			return out
		}
	}
}

// Succeed returns an executor that reports data immediately.
func Succeed(data string) capability.Executor {
	return capability.ExecutorFunc(func(context.Context, model.CapabilityInput) (model.CapabilityResult, error) {
		return model.CapabilityResult{Status: model.ResultSuccess, Data: json.RawMessage(data)}, nil
	})
}

// Fail returns an executor that errors with msg.
func Fail(msg string) capability.Executor {
	return capability.ExecutorFunc(func(context.Context, model.CapabilityInput) (model.CapabilityResult, error) {
		return model.CapabilityResult{}, errors.New(msg)
	})
}

// Defer returns an executor whose result arrives later through the callback ingress.
func Defer() capability.Executor {
	return capability.ExecutorFunc(func(context.Context, model.CapabilityInput) (model.CapabilityResult, error) {
		return model.CapabilityResult{Status: model.ResultDeferred}, nil
	})
}

// Block returns an executor that waits for release or its context. started receives
// the investigation id once the executor is running; it may be nil.
func Block(release <-chan struct{}, started chan<- string) capability.Executor {
	return capability.ExecutorFunc(func(ctx context.Context, in model.CapabilityInput) (model.CapabilityResult, error) {
		if started != nil {
			select {
			case started <- in.InvestigationID:
			default:
			}
		}
		select {
		case <-release:
			return model.CapabilityResult{Status: model.ResultSuccess, Data: json.RawMessage(`{"released":true}`)}, nil
		case <-ctx.Done():
			return model.CapabilityResult{}, ctx.Err()
		}
	})
}
