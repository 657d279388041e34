package bootstrap

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/target/mmk-investigations/config"
	httpx "github.com/target/mmk-investigations/internal/http"
)

// HTTPServerConfig contains configuration for HTTP server.
type HTTPServerConfig struct {
	Config   *config.AppConfig
	Services ServiceContainer
	Logger   *slog.Logger
}

// StartHTTPServer creates and starts the HTTP server.
// Returns the server instance for graceful shutdown.
func StartHTTPServer(cfg *HTTPServerConfig) *http.Server {
	if cfg == nil {
		return nil
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	appCfg := cfg.Config
	if appCfg == nil {
		appCfg = &config.AppConfig{}
	}

	handler := httpx.NewRouter(routerServices(appCfg, cfg.Services, logger))
	return startServer(logger, handler, appCfg.HTTP.Addr)
}

func routerServices(cfg *config.AppConfig, svcs ServiceContainer, logger *slog.Logger) httpx.RouterServices {
	return httpx.RouterServices{
		Investigations: svcs.Investigations,
		Callbacks:      svcs.Callbacks,
		Registry:       svcs.Registry,
		CallbackToken:  cfg.HTTP.CallbackToken,
		MaxBodyBytes:   cfg.HTTP.MaxBodyBytes,
		SSEHeartbeat:   cfg.HTTP.SSEHeartbeat,
		HealthChecks:   svcs.HealthChecks,
		Logger:         logger,
	}
}

func startServer(logger *slog.Logger, handler http.Handler, addr string) *http.Server {
	// Guard against empty addr to avoid listening on Go default
	if addr == "" {
		addr = ":8080"
	}

	// No WriteTimeout: progress streams stay open for the life of an investigation.
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		logger.Info("starting HTTP server", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server failed", "error", err)
		}
	}()

	return server
}

// ShutdownConfig contains dependencies for HTTP server shutdown.
type ShutdownConfig struct {
	Context context.Context
	Server  *http.Server
	Logger  *slog.Logger
}

// ShutdownHTTPServer gracefully shuts down the HTTP server. Connections still open when the
// deadline passes, typically relayed progress streams, are closed forcibly.
func ShutdownHTTPServer(cfg ShutdownConfig) error {
	if cfg.Server == nil {
		return nil
	}

	if cfg.Logger != nil {
		cfg.Logger.Info("shutting down HTTP server")
	}

	shutdownCtx, cancel := context.WithTimeout(cfg.Context, 10*time.Second)
	defer cancel()

	if err := cfg.Server.Shutdown(shutdownCtx); err != nil {
		if !errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		if cfg.Logger != nil {
			cfg.Logger.Warn("HTTP shutdown deadline reached, closing open connections")
		}
		if closeErr := cfg.Server.Close(); closeErr != nil {
			return errors.Join(err, closeErr)
		}
	}

	if cfg.Logger != nil {
		cfg.Logger.Info("HTTP server stopped")
	}

	return nil
}
