package capabilityhttp

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/target/mmk-investigations/config"
)

// NewClient returns the HTTP client shared by remote executors. When OAuth is configured the
// client fetches and refreshes client-credentials tokens and sends them as bearer tokens.
func NewClient(ctx context.Context, cfg config.CapabilityOAuthConfig, timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	base := &http.Client{Timeout: timeout}
	if !cfg.Enabled() {
		return base
	}
	cc := clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
		Scopes:       cfg.Scopes,
	}
	client := cc.Client(context.WithValue(ctx, oauth2.HTTPClient, base))
	client.Timeout = timeout
	return client
}
