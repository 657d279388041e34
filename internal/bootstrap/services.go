package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/target/mmk-investigations/config"
	"github.com/target/mmk-investigations/internal/adapters/capabilityhttp"
	"github.com/target/mmk-investigations/internal/adapters/intent"
	"github.com/target/mmk-investigations/internal/adapters/localcap"
	redisadapter "github.com/target/mmk-investigations/internal/adapters/redis"
	"github.com/target/mmk-investigations/internal/adapters/report"
	"github.com/target/mmk-investigations/internal/core"
	"github.com/target/mmk-investigations/internal/data"
	"github.com/target/mmk-investigations/internal/data/memstore"
	"github.com/target/mmk-investigations/internal/domain/capability"
	"github.com/target/mmk-investigations/internal/domain/plan"
	"github.com/target/mmk-investigations/internal/domain/progress"
	httpx "github.com/target/mmk-investigations/internal/http"
	"github.com/target/mmk-investigations/internal/observability/notify/pagerduty"
	"github.com/target/mmk-investigations/internal/observability/notify/slack"
	"github.com/target/mmk-investigations/internal/observability/statsd"
	"github.com/target/mmk-investigations/internal/service"
	"github.com/target/mmk-investigations/internal/service/failurenotifier"
)

// localStubDelay is how long in-process capability stand-ins pretend to work.
const localStubDelay = 250 * time.Millisecond

// ServiceContainer holds all application services.
type ServiceContainer struct {
	Store          core.InvestigationRepository
	ReaperRepo     core.InvestigationReaperRepository
	Registry       *capability.Registry
	Builder        *plan.Builder
	Hub            *progress.Hub
	Relay          *redisadapter.ProgressRelay // nil unless the Redis relay is enabled
	Coordinator    *service.Coordinator
	Investigations *service.InvestigationService
	Callbacks      *service.CallbackService
	HealthChecks   map[string]httpx.HealthCheck
	Observability  ObservabilityContainer
}

// ObservabilityContainer groups shared observability dependencies.
type ObservabilityContainer struct {
	MetricsSink     *statsd.Client
	MetricsConfig   config.ObservabilityMetricsConfig
	FailureNotifier *failurenotifier.Service
	NotifierConfig  config.ObservabilityNotificationsConfig
}

// ServiceDeps groups dependencies for service initialization.
// DB is required when the store driver is postgres; RedisClient when the relay is enabled.
type ServiceDeps struct {
	Config      *config.AppConfig
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

// buildObservability configures metrics and notification adapters.
func buildObservability(logger *slog.Logger, cfg config.ObservabilityConfig, baseURL string) ObservabilityContainer {
	var metricsSink *statsd.Client
	if cfg.Metrics.IsEnabled() {
		client, err := statsd.NewClient(statsd.Config{
			Enabled: true,
			Address: cfg.Metrics.StatsdAddress,
			Prefix:  cfg.Metrics.Prefix,
			Logger:  logger,
		})
		if err != nil {
			logger.Error("failed to initialise statsd client", "error", err)
		} else {
			metricsSink = client
		}
	}

	return ObservabilityContainer{
		MetricsSink:     metricsSink,
		MetricsConfig:   cfg.Metrics,
		FailureNotifier: buildFailureNotifier(logger, cfg.Notifications, baseURL),
		NotifierConfig:  cfg.Notifications,
	}
}

func buildFailureNotifier(
	logger *slog.Logger,
	cfg config.ObservabilityNotificationsConfig,
	baseURL string,
) *failurenotifier.Service {
	opts := failurenotifier.Options{
		Logger:          logger,
		SuppressClasses: cfg.SuppressClasses,
		WarningClasses:  cfg.WarningClasses,
		DeliveryTimeout: cfg.Timeout * time.Duration(cfg.RetryLimit+2),
	}
	if !cfg.Enabled {
		return failurenotifier.NewService(opts)
	}

	sinks := make([]failurenotifier.SinkRegistration, 0, 2)

	if cfg.Slack.Enabled {
		client, err := slack.NewClient(slack.Config{
			WebhookURL:             cfg.Slack.WebhookURL,
			Channel:                cfg.Slack.Channel,
			Username:               cfg.Slack.Username,
			Timeout:                cfg.Timeout,
			RetryLimit:             cfg.RetryLimit,
			InvestigationURLPrefix: baseURL + "/api/investigations",
		})
		if err != nil {
			logger.Error("failed to initialise slack notifier", "error", err)
		} else {
			sinks = append(sinks, failurenotifier.SinkRegistration{Name: "slack", Sink: client})
		}
	}

	if cfg.PagerDuty.Enabled {
		client, err := pagerduty.NewClient(pagerduty.Config{
			RoutingKey: cfg.PagerDuty.RoutingKey,
			Source:     cfg.PagerDuty.Source,
			Component:  cfg.PagerDuty.Component,
			Timeout:    cfg.Timeout,
			RetryLimit: cfg.RetryLimit,
		})
		if err != nil {
			logger.Error("failed to initialise pagerduty notifier", "error", err)
		} else {
			sinks = append(sinks, failurenotifier.SinkRegistration{Name: "pagerduty", Sink: client})
		}
	}

	opts.Sinks = sinks
	return failurenotifier.NewService(opts)
}

// storeBundle is the job store plus its reaper view; both are the same adapter.
type storeBundle struct {
	repo   core.InvestigationRepository
	reaper core.InvestigationReaperRepository
	health httpx.HealthCheck
}

// buildStore selects the job store adapter; no business rules here.
func buildStore(cfg *config.AppConfig, db *sql.DB, logger *slog.Logger) (storeBundle, error) {
	if !cfg.UsesPostgres() {
		logger.Warn("using in-memory job store; investigations are lost on restart")
		s := memstore.New(memstore.Options{})
		return storeBundle{repo: s, reaper: s}, nil
	}
	if db == nil {
		return storeBundle{}, errors.New("postgres job store requires a database connection")
	}
	repo := data.NewInvestigationRepo(db, data.RepoConfig{Logger: logger})
	return storeBundle{repo: repo, reaper: repo, health: db.PingContext}, nil
}

// RegistryOptions groups inputs for BuildRegistry.
type RegistryOptions struct {
	Capabilities config.CapabilitiesConfig
	HTTP         config.HTTPConfig
	Logger       *slog.Logger
}

// BuildRegistry binds an executor and the configured timeout to every enabled catalog
// capability and returns the frozen registry. Capabilities with an endpoint call a remote
// worker; the rest run the in-process stand-in when local execution is enabled and are
// left out otherwise.
func BuildRegistry(ctx context.Context, opts RegistryOptions) (*capability.Registry, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	capCfg := opts.Capabilities

	catalog := capability.Catalog()
	var longest time.Duration
	for i := range catalog {
		if t, ok := capCfg.Timeouts[catalog[i].Name]; ok {
			catalog[i].Timeout = t
		}
		longest = max(longest, catalog[i].Timeout)
	}
	// The capability timeout is enforced through the invocation context; the client
	// timeout only backstops a worker that ignores cancellation.
	client := capabilityhttp.NewClient(ctx, capCfg.OAuth, longest+5*time.Second)

	registry, err := capability.NewRegistry()
	if err != nil {
		return nil, err
	}
	for _, d := range catalog {
		if capCfg.IsDisabled(d.Name) {
			logger.Info("capability disabled", "capability", d.Name)
			continue
		}
		mode := "remote"
		if endpoint, ok := capCfg.Endpoints[d.Name]; ok {
			exec, execErr := capabilityhttp.New(capabilityhttp.Config{
				Endpoint:       endpoint,
				CallbackURL:    opts.HTTP.CallbackURL,
				DataExpr:       capCfg.DataExpr,
				ConfidenceExpr: capCfg.ConfidenceExpr,
				Client:         client,
				Logger:         logger,
			})
			if execErr != nil {
				return nil, fmt.Errorf("capability %s: %w", d.Name, execErr)
			}
			d.Executor = exec
		} else if capCfg.Local {
			mode = "local"
			d.Executor = localcap.For(d, localStubDelay)
		} else {
			logger.Warn("capability has no endpoint and local execution is disabled", "capability", d.Name)
			continue
		}
		if err = registry.Register(d); err != nil {
			return nil, fmt.Errorf("register capability %s: %w", d.Name, err)
		}
		logger.Debug("capability registered", "capability", d.Name, "mode", mode, "timeout", d.Timeout)
	}
	registry.Freeze()

	if registry.Len() == 0 {
		return nil, errors.New("no capabilities registered")
	}
	return registry, nil
}

// NewServices wires the investigation engine from configuration and infrastructure.
func NewServices(ctx context.Context, deps *ServiceDeps) (ServiceContainer, error) {
	if deps == nil || deps.Config == nil {
		return ServiceContainer{}, errors.New("service deps with config are required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := deps.Config

	observability := buildObservability(logger, cfg.Observability, cfg.HTTP.BaseURL)

	store, err := buildStore(cfg, deps.DB, logger)
	if err != nil {
		return ServiceContainer{}, err
	}

	registry, err := BuildRegistry(ctx, RegistryOptions{
		Capabilities: cfg.Capabilities,
		HTTP:         cfg.HTTP,
		Logger:       logger,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("build capability registry: %w", err)
	}
	builder, err := plan.NewBuilder(registry)
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("build plan builder: %w", err)
	}

	hub := progress.NewHub(progress.HubOptions{Buffer: cfg.Progress.Buffer, Logger: logger})

	checks := map[string]httpx.HealthCheck{}
	if store.health != nil {
		checks["store"] = store.health
	}

	var (
		relay     *redisadapter.ProgressRelay
		relayPort core.ProgressRelay
	)
	if cfg.Progress.RelayEnabled {
		if deps.RedisClient == nil {
			return ServiceContainer{}, errors.New("progress relay requires a redis client")
		}
		relay, err = redisadapter.NewProgressRelay(redisadapter.ProgressRelayOptions{
			Client:        deps.RedisClient,
			ChannelPrefix: cfg.Progress.RelayChannelPrefix,
			Logger:        logger,
		})
		if err != nil {
			return ServiceContainer{}, fmt.Errorf("build progress relay: %w", err)
		}
		relayPort = relay
		rc := deps.RedisClient
		checks["redis"] = func(ctx context.Context) error { return rc.Ping(ctx).Err() }
	}

	coordinator, err := newCoordinator(coordinatorOptions{
		Store:    store.repo,
		Registry: registry,
		Hub:      hub,
		Relay:    relayPort,
		Config:   cfg.Coordinator,
		Notifier: observability.FailureNotifier,
		Metrics:  observability.MetricsSink,
		Logger:   logger,
	})
	if err != nil {
		return ServiceContainer{}, err
	}

	investigations, err := service.NewInvestigationService(service.InvestigationServiceOptions{
		Repo:        store.repo,
		Builder:     builder,
		Coordinator: coordinator,
		Hub:         hub,
		Parser:      intent.New(intent.Options{Logger: logger}),
		Relay:       relayPort,
		Logger:      logger,
	})
	if err != nil {
		return ServiceContainer{}, err
	}
	callbacks, err := service.NewCallbackService(service.CallbackServiceOptions{
		Repo:        store.repo,
		Coordinator: coordinator,
		Logger:      logger,
	})
	if err != nil {
		return ServiceContainer{}, err
	}

	return ServiceContainer{
		Store:          store.repo,
		ReaperRepo:     store.reaper,
		Registry:       registry,
		Builder:        builder,
		Hub:            hub,
		Relay:          relay,
		Coordinator:    coordinator,
		Investigations: investigations,
		Callbacks:      callbacks,
		HealthChecks:   checks,
		Observability:  observability,
	}, nil
}

// coordinatorOptions groups what the coordinator needs from bootstrap.
type coordinatorOptions struct {
	Store    core.InvestigationRepository
	Registry *capability.Registry
	Hub      *progress.Hub
	Relay    core.ProgressRelay
	Config   config.CoordinatorConfig
	Notifier *failurenotifier.Service
	Metrics  *statsd.Client
	Logger   *slog.Logger
}

func newCoordinator(opts coordinatorOptions) (*service.Coordinator, error) {
	reports, err := report.NewGenerator(report.GeneratorOptions{Repo: opts.Store, Logger: opts.Logger})
	if err != nil {
		return nil, fmt.Errorf("build report generator: %w", err)
	}

	deps := service.CoordinatorDeps{
		Repo:     opts.Store,
		Registry: opts.Registry,
		Hub:      opts.Hub,
		Reports:  reports,
		Relay:    opts.Relay,
	}
	// Interface fields stay nil unless the concrete value is usable.
	if opts.Notifier != nil && opts.Notifier.Enabled() {
		deps.Notifier = opts.Notifier
	}
	var sink statsd.Sink
	if opts.Metrics != nil {
		sink = opts.Metrics
	}

	return service.NewCoordinator(service.CoordinatorOptions{
		Deps: deps,
		Config: service.CoordinatorConfig{
			MaxConcurrency:       opts.Config.MaxConcurrency,
			CancelGrace:          opts.Config.CancelGrace,
			FailWhenAllFailed:    opts.Config.FailWhenAllFailed,
			CallbackPollInterval: opts.Config.CallbackPollInterval,
			StoreTimeout:         opts.Config.StoreTimeout,
			ReportTimeout:        opts.Config.ReportTimeout,
		},
		Logger:  opts.Logger,
		Metrics: sink,
	})
}

// ServiceOrchestrationConfig contains configuration for service orchestration.
type ServiceOrchestrationConfig struct {
	Config   *config.AppConfig
	Services ServiceContainer
	DB       *sql.DB
	Logger   *slog.Logger
}

const (
	// shutdownWaitTimeout is the maximum time to wait for services to stop gracefully.
	shutdownWaitTimeout = 15 * time.Second
)

// serviceStartupDeps groups dependencies for service startup.
type serviceStartupDeps struct {
	ctx             context.Context
	cfg             *ServiceOrchestrationConfig
	logger          *slog.Logger
	enabledServices map[config.ServiceMode]bool
	errCh           chan error
}

// backgroundService describes a startable background component.
type backgroundService struct {
	mode  config.ServiceMode
	name  string
	start func(context.Context) error
}

// backgroundServiceHandle tracks a running background service.
type backgroundServiceHandle struct {
	mode config.ServiceMode
	name string
	done <-chan struct{}
}

// startHTTPServerIfEnabled starts the HTTP server if enabled.
func startHTTPServerIfEnabled(deps *serviceStartupDeps) *http.Server {
	if deps == nil || deps.cfg == nil || !deps.enabledServices[config.ServiceModeHTTP] {
		return nil
	}
	return StartHTTPServer(&HTTPServerConfig{
		Config:   deps.cfg.Config,
		Services: deps.cfg.Services,
		Logger:   deps.logger,
	})
}

func launchBackground(ctx context.Context, deps *serviceStartupDeps, descriptor backgroundService) <-chan struct{} {
	if deps == nil || !deps.enabledServices[descriptor.mode] {
		return nil
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := descriptor.start(ctx); err != nil {
			errMsg := fmt.Errorf("%s failed: %w", descriptor.name, err)
			select {
			case deps.errCh <- errMsg:
			case <-ctx.Done():
			default:
				deps.logger.WarnContext(ctx, "dropping background service error",
					"service", descriptor.name,
					"error", errMsg,
				)
			}
		}
	}()

	deps.logger.InfoContext(ctx, "background service started", "service", descriptor.name, "mode", descriptor.mode)
	return done
}

func startBackgroundServices(deps *serviceStartupDeps, services []backgroundService) []backgroundServiceHandle {
	if deps == nil {
		return nil
	}
	handles := make([]backgroundServiceHandle, 0, len(services))

	for _, svc := range services {
		done := launchBackground(deps.ctx, deps, svc)
		if done == nil {
			continue
		}
		handles = append(handles, backgroundServiceHandle{mode: svc.mode, name: svc.name, done: done})
	}

	return handles
}

func newReaperBackgroundService(deps *serviceStartupDeps) backgroundService {
	return backgroundService{
		mode: config.ServiceModeReaper,
		name: "reaper",
		start: func(ctx context.Context) error {
			if deps == nil || deps.cfg == nil {
				return nil
			}
			var reaperCfg config.ReaperConfig
			if deps.cfg.Config != nil {
				reaperCfg = deps.cfg.Config.Reaper
			}
			var sink statsd.Sink
			if m := deps.cfg.Services.Observability.MetricsSink; m != nil {
				sink = m
			}
			var announcer service.Announcer
			if inv := deps.cfg.Services.Investigations; inv != nil {
				announcer = inv
			}
			return RunReaper(ctx, ReaperConfig{
				DB:        deps.cfg.DB,
				Repo:      deps.cfg.Services.ReaperRepo,
				Logger:    deps.logger,
				Config:    reaperCfg,
				Metrics:   sink,
				Announcer: announcer,
			})
		},
	}
}

func buildBackgroundServices(deps *serviceStartupDeps) []backgroundService {
	if deps == nil {
		return nil
	}
	return []backgroundService{
		newReaperBackgroundService(deps),
	}
}

// ServiceStartupResult holds the results of starting all services.
type ServiceStartupResult struct {
	HTTPServer *http.Server
	Background []backgroundServiceHandle
}

// startServices starts all enabled services and returns their completion channels.
func startServices(deps *serviceStartupDeps) ServiceStartupResult {
	return ServiceStartupResult{
		HTTPServer: startHTTPServerIfEnabled(deps),
		Background: startBackgroundServices(deps, buildBackgroundServices(deps)),
	}
}

// RunServicesWithShutdown starts all enabled services and manages their lifecycle.
// This function blocks until a shutdown signal is received or a service fails.
func RunServicesWithShutdown(cfg *ServiceOrchestrationConfig) error {
	if cfg == nil {
		return errors.New("service orchestration config is required")
	}
	if cfg.Config == nil {
		return errors.New("service orchestration config missing AppConfig")
	}
	serviceCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	enabledServices, err := cfg.Config.GetEnabledServices()
	if err != nil {
		return fmt.Errorf("determine enabled services: %w", err)
	}
	errCh := make(chan error, errorChannelBufferSize(enabledServices))

	result := startServices(&serviceStartupDeps{
		ctx:             serviceCtx,
		cfg:             cfg,
		logger:          logger,
		enabledServices: enabledServices,
		errCh:           errCh,
	})

	return waitForShutdown(shutdownConfig{
		ctx:             serviceCtx,
		cancel:          cancel,
		errCh:           errCh,
		httpServer:      result.HTTPServer,
		services:        cfg.Services,
		shutdownTimeout: cfg.Config.Coordinator.ShutdownTimeout,
		logger:          logger,
		backgrounds:     result.Background,
	})
}

func errorChannelCapacity(enabled map[config.ServiceMode]bool) int {
	count := 0
	for _, mode := range config.ValidServiceModes() {
		if enabled[mode] {
			count++
		}
	}
	return count
}

func errorChannelBufferSize(enabled map[config.ServiceMode]bool) int {
	return errorChannelCapacity(enabled) + 1
}

// shutdownConfig contains dependencies for graceful shutdown.
type shutdownConfig struct {
	ctx             context.Context
	cancel          context.CancelFunc
	errCh           <-chan error
	httpServer      *http.Server
	services        ServiceContainer
	shutdownTimeout time.Duration
	logger          *slog.Logger
	backgrounds     []backgroundServiceHandle
}

// waitForShutdown waits for shutdown signal or service error.
func waitForShutdown(cfg shutdownConfig) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case <-quit:
		cfg.logger.Info("shutting down services...")
		cfg.cancel()
		return gracefulStop(cfg)
	case err := <-cfg.errCh:
		cfg.logger.Error("service error", "error", err)
		cfg.cancel()
		if stopErr := gracefulStop(cfg); stopErr != nil {
			cfg.logger.Error("graceful stop failed", "error", stopErr)
		}
		return err
	}
}

// gracefulStop fails in-flight investigations, ends their streams and stops the HTTP
// server and background services.
func gracefulStop(cfg shutdownConfig) error {
	timeout := cfg.shutdownTimeout
	if timeout <= 0 {
		timeout = shutdownWaitTimeout
	}
	// cfg.ctx is already canceled at this point.
	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(cfg.ctx), timeout)
	defer cancel()

	var errs []error
	if c := cfg.services.Coordinator; c != nil {
		if err := c.Shutdown(stopCtx); err != nil {
			errs = append(errs, err)
		}
	}
	if cfg.services.Hub != nil {
		cfg.services.Hub.CloseAll()
	}
	if cfg.services.Relay != nil {
		if err := cfg.services.Relay.Close(stopCtx); err != nil {
			errs = append(errs, fmt.Errorf("close progress relay: %w", err))
		}
	}

	if cfg.httpServer != nil {
		if err := ShutdownHTTPServer(ShutdownConfig{
			Context: stopCtx,
			Server:  cfg.httpServer,
			Logger:  cfg.logger,
		}); err != nil {
			errs = append(errs, err)
		}
	}

	for _, svc := range cfg.backgrounds {
		waitForService(svc.done, svc.name, cfg.logger)
	}

	if m := cfg.services.Observability.MetricsSink; m != nil {
		if err := m.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close statsd client: %w", err))
		}
	}

	return errors.Join(errs...)
}

// waitForService waits for a service to finish with timeout.
func waitForService(done <-chan struct{}, name string, logger *slog.Logger) {
	if done == nil {
		return
	}
	select {
	case <-done:
		logger.Info(name + " stopped")
	case <-time.After(shutdownWaitTimeout):
		logger.Warn("timeout waiting for " + name + " to stop")
	}
}
