package slack

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/target/mmk-investigations/internal/observability/notify"
)

// Config captures the subset of Slack webhook behaviour we need.
type Config struct {
	WebhookURL string
	Channel    string
	Username   string
	Timeout    time.Duration
	RetryLimit int
	Client     *http.Client
	// InvestigationURLPrefix turns investigation ids into links, e.g. "https://osint.local/api/investigations".
	InvestigationURLPrefix string
}

// Client delivers investigation failure notifications to a Slack webhook.
type Client struct {
	webhookURL string
	channel    string
	username   string
	retryLimit int
	linkPrefix string
	client     *http.Client
}

// NewClient builds a Slack webhook client. Callers should pass a validated config.
func NewClient(cfg Config) (*Client, error) {
	webhookURL := strings.TrimSpace(cfg.WebhookURL)
	if webhookURL == "" {
		return nil, errors.New("slack webhook url is required")
	}

	return &Client{
		webhookURL: webhookURL,
		channel:    strings.TrimSpace(cfg.Channel),
		username:   notify.Or(strings.TrimSpace(cfg.Username), "investigator"),
		retryLimit: max(cfg.RetryLimit, 0),
		linkPrefix: strings.TrimSpace(cfg.InvestigationURLPrefix),
		client:     notify.HTTPClient(cfg.Client, cfg.Timeout),
	}, nil
}

// SendInvestigationFailure posts a formatted message to Slack.
func (c *Client) SendInvestigationFailure(ctx context.Context, payload notify.InvestigationFailurePayload) error {
	body, err := json.Marshal(c.formatMessage(payload))
	if err != nil {
		return fmt.Errorf("encode slack payload: %w", err)
	}
	return notify.Deliver(ctx, c.retryLimit, func(ctx context.Context) error {
		return notify.PostJSON(ctx, c.client, "slack webhook", c.webhookURL, body)
	})
}

func (c *Client) formatMessage(payload notify.InvestigationFailurePayload) map[string]any {
	timestamp := payload.OccurredAt
	if timestamp.IsZero() {
		timestamp = time.Now()
	}
	text := strings.Builder{}
	c.writeHeader(&text, payload)
	appendDetails(&text, payload)
	appendMetadata(&text, payload.Metadata)
	text.WriteString("• Timestamp: ")
	text.WriteString(timestamp.UTC().Format(time.RFC3339))

	msg := map[string]any{
		"text":     text.String(),
		"username": c.username,
	}
	if c.channel != "" {
		msg["channel"] = c.channel
	}
	return msg
}

func (c *Client) writeHeader(text *strings.Builder, payload notify.InvestigationFailurePayload) {
	text.WriteString("*Investigation failed*")
	if id := escapeSlackText(payload.InvestigationID); id != "" {
		text.WriteByte(' ')
		if link := c.buildLink(payload.InvestigationID); link != "" {
			text.WriteString("<" + link + "|" + id + ">")
		} else {
			text.WriteString("`" + id + "`")
		}
	}
	if payload.Type != "" {
		text.WriteString(" (")
		text.WriteString(payload.Type)
		text.WriteByte(')')
	}
	text.WriteByte('\n')
}

func appendDetails(text *strings.Builder, payload notify.InvestigationFailurePayload) {
	fields := []struct {
		label string
		value string
	}{
		{"Severity", notify.Or(payload.Severity, notify.SeverityCritical)},
		{"Target", escapeSlackText(payload.Target)},
		{"Depth", payload.Depth},
		{"Capabilities", capabilityCounts(payload)},
		{"Error class", payload.ErrorClass},
		{"Error", escapeSlackText(payload.Error)},
	}

	for _, field := range fields {
		appendField(text, field.label, field.value)
	}
}

func capabilityCounts(payload notify.InvestigationFailurePayload) string {
	if payload.Planned == 0 {
		return ""
	}
	return strconv.Itoa(payload.Succeeded) + " succeeded, " +
		strconv.Itoa(payload.Failed) + " failed of " +
		strconv.Itoa(payload.Planned)
}

func escapeSlackText(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	return strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
	).Replace(value)
}

func (c *Client) buildLink(investigationID string) string {
	if c.linkPrefix == "" {
		return ""
	}
	u, err := url.Parse(c.linkPrefix)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	link, err := url.JoinPath(u.String(), investigationID)
	if err != nil {
		return ""
	}
	return link
}

func appendField(text *strings.Builder, label, value string) {
	if strings.TrimSpace(value) == "" {
		return
	}
	text.WriteString("• ")
	text.WriteString(label)
	text.WriteString(": ")
	text.WriteString(value)
	text.WriteByte('\n')
}

func appendMetadata(text *strings.Builder, metadata map[string]string) {
	if len(metadata) == 0 {
		return
	}
	text.WriteString("• Metadata:\n")
	keys := make([]string, 0, len(metadata))
	for k := range metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		text.WriteString("    • ")
		text.WriteString(k)
		text.WriteString(": ")
		text.WriteString(metadata[k])
		text.WriteByte('\n')
	}
}
