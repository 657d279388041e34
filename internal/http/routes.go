package httpx

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/target/mmk-investigations/internal/domain/capability"
	"github.com/target/mmk-investigations/internal/service"
)

// RouterServices holds all the services needed by the HTTP router.
type RouterServices struct {
	Investigations *service.InvestigationService
	Callbacks      *service.CallbackService
	Registry       *capability.Registry

	// CallbackToken, when set, is required as a bearer token on callback routes.
	CallbackToken string
	MaxBodyBytes  int64
	SSEHeartbeat  time.Duration
	HealthChecks  map[string]HealthCheck
	Logger        *slog.Logger // Optional
}

// NewRouter creates and configures the HTTP router.
func NewRouter(services RouterServices) http.Handler {
	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()

	inv := &InvestigationHandlers{Svc: services.Investigations, Registry: services.Registry}
	events := &EventHandlers{Svc: services.Investigations, Heartbeat: services.SSEHeartbeat, Logger: logger}
	callbacks := &CallbackHandlers{Svc: services.Callbacks}

	registerInvestigationRoutes(mux, inv, events, services.MaxBodyBytes)
	registerCallbackRoutes(mux, callbacks, services.CallbackToken, services.MaxBodyBytes)

	health := healthHandler(services.HealthChecks)
	mux.Handle("GET /healthz", health)
	mux.Handle("HEAD /healthz", health)

	return Chain(mux, Recover(logger), Logging(logger))
}

func registerInvestigationRoutes(mux *http.ServeMux, h *InvestigationHandlers, ev *EventHandlers, maxBody int64) {
	limit := LimitBody(maxBody)
	mux.Handle("POST /api/investigations", limit(http.HandlerFunc(h.Start)))
	mux.HandleFunc("GET /api/investigations", h.List)
	mux.HandleFunc("GET /api/investigations/{id}", h.Get)
	mux.HandleFunc("GET /api/investigations/{id}/events", ev.Stream)
	mux.HandleFunc("POST /api/investigations/{id}/cancel", h.Cancel)
	mux.HandleFunc("POST /api/investigations/{id}/retry", h.Retry)
	mux.HandleFunc("GET /api/investigations/{id}/report", h.Report)
	mux.HandleFunc("GET /api/capabilities", h.Capabilities)
}

func registerCallbackRoutes(mux *http.ServeMux, h *CallbackHandlers, token string, maxBody int64) {
	wrap := func(fn http.HandlerFunc) http.Handler {
		return Chain(fn, RequireBearer(token), LimitBody(maxBody))
	}
	mux.Handle("POST /callback/{id}", wrap(h.Receive))
	mux.Handle("POST /api/investigations/{id}/callback", wrap(h.Receive))
}
