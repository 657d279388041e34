package pagerduty

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/target/mmk-investigations/internal/observability/notify"
)

// APIEndpoint is the PagerDuty Events API v2 ingest URL.
const APIEndpoint = "https://events.pagerduty.com/v2/enqueue"

// Config captures runtime configuration for the PagerDuty sink.
type Config struct {
	RoutingKey string
	Source     string
	Component  string
	Timeout    time.Duration
	RetryLimit int
	Client     *http.Client
	Endpoint   string // defaults to APIEndpoint
}

// Client publishes events via PagerDuty's Events API v2.
type Client struct {
	routingKey string
	source     string
	component  string
	endpoint   string
	retryLimit int
	client     *http.Client
}

// NewClient constructs a PagerDuty events client from config. Callers must provide a routing key.
func NewClient(cfg Config) (*Client, error) {
	key := strings.TrimSpace(cfg.RoutingKey)
	if key == "" {
		return nil, errors.New("pagerduty routing key is required")
	}

	return &Client{
		routingKey: key,
		source:     notify.Or(strings.TrimSpace(cfg.Source), "investigator"),
		component:  notify.Or(strings.TrimSpace(cfg.Component), "investigator"),
		endpoint:   notify.Or(strings.TrimSpace(cfg.Endpoint), APIEndpoint),
		retryLimit: max(cfg.RetryLimit, 0),
		client:     notify.HTTPClient(cfg.Client, cfg.Timeout),
	}, nil
}

// SendInvestigationFailure submits a trigger event to PagerDuty.
func (c *Client) SendInvestigationFailure(ctx context.Context, payload notify.InvestigationFailurePayload) error {
	body, err := json.Marshal(c.buildEvent(payload))
	if err != nil {
		return fmt.Errorf("encode pagerduty payload: %w", err)
	}

	return notify.Deliver(ctx, c.retryLimit, func(ctx context.Context) error {
		return notify.PostJSON(ctx, c.client, "pagerduty api", c.endpoint, body)
	})
}

func (c *Client) buildEvent(payload notify.InvestigationFailurePayload) map[string]any {
	severity := notify.Or(strings.ToLower(payload.Severity), notify.SeverityCritical)

	occurredAt := payload.OccurredAt.UTC()
	if payload.OccurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	custom := map[string]any{
		"investigation_id": payload.InvestigationID,
		"type":             payload.Type,
		"target":           payload.Target,
		"depth":            payload.Depth,
		"planned":          payload.Planned,
		"succeeded":        payload.Succeeded,
		"failed":           payload.Failed,
		"error":            payload.Error,
		"error_class":      payload.ErrorClass,
	}
	for k, v := range payload.Metadata {
		if _, exists := custom[k]; !exists {
			custom[k] = v
		}
	}

	return map[string]any{
		"routing_key":  c.routingKey,
		"event_action": "trigger",
		"dedup_key":    "investigation:" + notify.Or(payload.InvestigationID, "unknown"),
		"payload": map[string]any{
			"summary": fmt.Sprintf(
				"Investigation %s (%s) failed: %s",
				notify.Or(payload.InvestigationID, "unknown"),
				notify.Or(payload.Type, "unknown"),
				notify.Or(payload.ErrorClass, "unknown"),
			),
			"severity":       severity,
			"source":         c.source,
			"component":      c.component,
			"timestamp":      occurredAt.Format(time.RFC3339),
			"custom_details": custom,
		},
	}
}
