package config

import (
	"strings"
	"time"
)

// HTTPConfig contains HTTP server configuration.
type HTTPConfig struct {
	// Addr is the address to bind the HTTP server to.
	Addr string `env:"HTTP_ADDR" envDefault:":8080"`

	// BaseURL is the externally reachable base URL (e.g., "https://investigator.example.com").
	// Remote capability workers receive callback URLs built from it.
	BaseURL string `env:"APP_BASE_URL" envDefault:"http://localhost:8080"`

	// CallbackToken, when set, must be presented as a bearer token on callback requests.
	CallbackToken string `env:"HTTP_CALLBACK_TOKEN" envDefault:""`

	// MaxBodyBytes bounds JSON request bodies.
	MaxBodyBytes int64 `env:"HTTP_MAX_BODY_BYTES" envDefault:"1048576"`

	// SSEHeartbeat is the interval between keep-alive comments on progress streams.
	SSEHeartbeat time.Duration `env:"HTTP_SSE_HEARTBEAT" envDefault:"15s"`
}

// Sanitize applies guardrails to HTTP configuration values.
func (h *HTTPConfig) Sanitize() {
	h.BaseURL = strings.TrimRight(strings.TrimSpace(h.BaseURL), "/")
	h.CallbackToken = strings.TrimSpace(h.CallbackToken)
	if h.MaxBodyBytes < 1024 {
		h.MaxBodyBytes = 1024
	}
	if h.SSEHeartbeat < time.Second {
		h.SSEHeartbeat = time.Second
	}
}

// CallbackURL returns the callback URL remote workers report to for one investigation.
func (h *HTTPConfig) CallbackURL(investigationID string) string {
	return h.BaseURL + "/callback/" + investigationID
}
