package config

import (
	"strings"
	"time"
)

// CoordinatorConfig tunes plan execution.
type CoordinatorConfig struct {
	// MaxConcurrency bounds concurrent capability invocations within one investigation.
	MaxConcurrency int `env:"COORDINATOR_MAX_CONCURRENCY" envDefault:"4"`

	// CancelGrace is how long dispatched capabilities may keep running after a cancel.
	CancelGrace time.Duration `env:"COORDINATOR_CANCEL_GRACE" envDefault:"10s"`

	// FailWhenAllFailed fails an investigation whose every capability failed.
	FailWhenAllFailed bool `env:"COORDINATOR_FAIL_WHEN_ALL_FAILED" envDefault:"true"`

	// CallbackPollInterval is how often deferred capabilities re-read their record.
	CallbackPollInterval time.Duration `env:"COORDINATOR_CALLBACK_POLL_INTERVAL" envDefault:"2s"`

	// StoreTimeout bounds a single job store call made by the coordinator.
	StoreTimeout time.Duration `env:"COORDINATOR_STORE_TIMEOUT" envDefault:"10s"`

	// ReportTimeout bounds report generation and storage.
	ReportTimeout time.Duration `env:"COORDINATOR_REPORT_TIMEOUT" envDefault:"30s"`

	// ShutdownTimeout bounds how long shutdown waits for runs to record their final state.
	ShutdownTimeout time.Duration `env:"COORDINATOR_SHUTDOWN_TIMEOUT" envDefault:"15s"`
}

// Sanitize applies guardrails to coordinator configuration values.
func (c *CoordinatorConfig) Sanitize() {
	if c.MaxConcurrency < 1 {
		c.MaxConcurrency = 1
	}
	if c.MaxConcurrency > 64 {
		c.MaxConcurrency = 64
	}
	if c.CancelGrace < 0 {
		c.CancelGrace = 0
	}
	if c.CallbackPollInterval < 100*time.Millisecond {
		c.CallbackPollInterval = 100 * time.Millisecond
	}
	if c.StoreTimeout < time.Second {
		c.StoreTimeout = time.Second
	}
	if c.ReportTimeout < time.Second {
		c.ReportTimeout = time.Second
	}
	if c.ShutdownTimeout < time.Second {
		c.ShutdownTimeout = time.Second
	}
}

// CapabilitiesConfig controls how catalog capabilities are executed.
type CapabilitiesConfig struct {
	// Timeouts overrides catalog timeouts per capability, e.g. "sherlock:45s,sublist3r:90s".
	Timeouts map[string]time.Duration `env:"CAPABILITY_TIMEOUTS"`

	// Endpoints maps capabilities to remote worker URLs, e.g. "sherlock:http://workers/sherlock".
	// Capabilities without an endpoint run the in-process stand-in when Local is enabled.
	Endpoints map[string]string `env:"CAPABILITY_ENDPOINTS"`

	// Local registers deterministic in-process stand-ins for capabilities without an endpoint.
	Local bool `env:"CAPABILITY_LOCAL_ENABLED" envDefault:"true"`

	// Disabled lists capabilities that are never registered.
	Disabled []string `env:"CAPABILITY_DISABLED"`

	// DataExpr and ConfidenceExpr are JMESPath expressions applied to remote worker responses.
	DataExpr       string `env:"CAPABILITY_DATA_EXPR"       envDefault:"data"`
	ConfidenceExpr string `env:"CAPABILITY_CONFIDENCE_EXPR" envDefault:"confidence_score"`

	// OAuth configures client-credentials tokens for remote workers. Disabled when TokenURL is empty.
	OAuth CapabilityOAuthConfig `envPrefix:"CAPABILITY_OAUTH_"`
}

// CapabilityOAuthConfig configures the OAuth2 client-credentials flow.
type CapabilityOAuthConfig struct {
	TokenURL     string   `env:"TOKEN_URL"`
	ClientID     string   `env:"CLIENT_ID"`
	ClientSecret string   `env:"CLIENT_SECRET"`
	Scopes       []string `env:"SCOPES"`
}

// Enabled reports whether remote calls should carry a bearer token.
func (c *CapabilityOAuthConfig) Enabled() bool {
	return c.TokenURL != "" && c.ClientID != ""
}

// Sanitize drops non-positive timeouts and blank endpoints.
func (c *CapabilitiesConfig) Sanitize() {
	for name, d := range c.Timeouts {
		if d <= 0 || strings.TrimSpace(name) == "" {
			delete(c.Timeouts, name)
		}
	}
	for name, url := range c.Endpoints {
		if strings.TrimSpace(url) == "" || strings.TrimSpace(name) == "" {
			delete(c.Endpoints, name)
			continue
		}
		c.Endpoints[name] = strings.TrimSpace(url)
	}
	disabled := c.Disabled[:0]
	for _, name := range c.Disabled {
		if name = strings.TrimSpace(name); name != "" {
			disabled = append(disabled, name)
		}
	}
	c.Disabled = disabled
	c.DataExpr = strings.TrimSpace(c.DataExpr)
	c.ConfidenceExpr = strings.TrimSpace(c.ConfidenceExpr)
	c.OAuth.TokenURL = strings.TrimSpace(c.OAuth.TokenURL)
	c.OAuth.ClientID = strings.TrimSpace(c.OAuth.ClientID)
}

// IsDisabled reports whether name is listed in Disabled.
func (c *CapabilitiesConfig) IsDisabled(name string) bool {
	for _, d := range c.Disabled {
		if d == name {
			return true
		}
	}
	return false
}

// ProgressConfig controls live progress delivery.
type ProgressConfig struct {
	// Buffer is the per-subscriber event buffer.
	Buffer int `env:"PROGRESS_BUFFER" envDefault:"64"`

	// RelayEnabled mirrors progress events through Redis so any replica can serve a stream.
	RelayEnabled bool `env:"PROGRESS_RELAY_ENABLED" envDefault:"false"`

	// RelayChannelPrefix namespaces relay channels.
	RelayChannelPrefix string `env:"PROGRESS_RELAY_CHANNEL_PREFIX" envDefault:"investigations:progress:"`
}

// Sanitize applies guardrails to progress configuration values.
func (p *ProgressConfig) Sanitize() {
	if p.Buffer < 1 {
		p.Buffer = 1
	}
	if p.Buffer > 4096 {
		p.Buffer = 4096
	}
	if strings.TrimSpace(p.RelayChannelPrefix) == "" {
		p.RelayChannelPrefix = "investigations:progress:"
	}
}
