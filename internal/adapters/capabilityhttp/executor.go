// Package capabilityhttp runs capabilities hosted by remote workers over HTTP.
//
// A worker answers either synchronously (2xx with a JSON result) or with 202 Accepted, in which
// case it reports the outcome later through the callback URL included in the request.
package capabilityhttp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	jmespath "github.com/jmespath-community/go-jmespath"

	"github.com/target/mmk-investigations/internal/domain/capability"
	"github.com/target/mmk-investigations/internal/domain/model"
)

const (
	defaultTimeout  = 30 * time.Second
	maxResponseBody = 4 << 20
	maxErrorSnippet = 512
)

// Request is the body posted to a worker.
type Request struct {
	InvestigationID string            `json:"investigation_id"`
	Capability      string            `json:"capability"`
	Depth           model.Depth       `json:"depth"`
	Params          map[string]string `json:"params"`
	CallbackURL     string            `json:"callback_url,omitempty"`
}

// Config configures an Executor.
type Config struct {
	Endpoint string

	// CallbackURL builds the URL a deferring worker reports back to.
	CallbackURL func(investigationID string) string

	// DataExpr and ConfidenceExpr are JMESPath expressions evaluated against a synchronous
	// response. An empty DataExpr keeps the whole body; an empty ConfidenceExpr skips confidence.
	DataExpr       string
	ConfidenceExpr string

	Client *http.Client
	Logger *slog.Logger
}

// Executor implements capability.Executor against a remote worker.
type Executor struct {
	endpoint       string
	callbackURL    func(string) string
	dataExpr       string
	confidenceExpr string
	client         *http.Client
	logger         *slog.Logger
}

var _ capability.Executor = (*Executor)(nil)

// New validates cfg and builds an Executor.
func New(cfg Config) (*Executor, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid endpoint scheme: %q", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return nil, errors.New("invalid endpoint: missing host")
	}

	e := &Executor{
		endpoint:       endpoint,
		callbackURL:    cfg.CallbackURL,
		dataExpr:       strings.TrimSpace(cfg.DataExpr),
		confidenceExpr: strings.TrimSpace(cfg.ConfidenceExpr),
		client:         cfg.Client,
	}
	if err = validateExpr(e.dataExpr); err != nil {
		return nil, fmt.Errorf("invalid data expression: %w", err)
	}
	if err = validateExpr(e.confidenceExpr); err != nil {
		return nil, fmt.Errorf("invalid confidence expression: %w", err)
	}
	if e.client == nil {
		e.client = &http.Client{Timeout: defaultTimeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	e.logger = logger.With("component", "capability_http", "endpoint", endpoint)
	return e, nil
}

func validateExpr(expr string) error {
	if expr == "" {
		return nil
	}
	_, err := jmespath.Compile(expr)
	return err
}

// Execute posts the invocation to the worker. Transport errors and non-2xx answers are
// returned as errors; the registry boundary turns them into failed records.
func (e *Executor) Execute(ctx context.Context, in model.CapabilityInput) (model.CapabilityResult, error) {
	body := Request{
		InvestigationID: in.InvestigationID,
		Capability:      in.Capability,
		Depth:           in.Depth,
		Params:          in.Params,
	}
	if e.callbackURL != nil {
		body.CallbackURL = e.callbackURL(in.InvestigationID)
	}
	b, err := json.Marshal(body)
	if err != nil {
		return model.CapabilityResult{}, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(b))
	if err != nil {
		return model.CapabilityResult{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := e.client.Do(req)
	if err != nil {
		return model.CapabilityResult{}, fmt.Errorf("call %s: %w", in.Capability, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return model.CapabilityResult{}, fmt.Errorf("read %s response: %w", in.Capability, err)
	}

	switch {
	case resp.StatusCode == http.StatusAccepted:
		e.logger.DebugContext(ctx, "capability deferred",
			"investigation_id", in.InvestigationID,
			"capability", in.Capability,
		)
		return model.CapabilityResult{Status: model.ResultDeferred}, nil
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return model.CapabilityResult{}, fmt.Errorf("%s returned %d: %s", in.Capability, resp.StatusCode, snippet(raw))
	}

	res, err := e.decode(raw)
	if err != nil {
		return model.CapabilityResult{}, fmt.Errorf("decode %s response: %w", in.Capability, err)
	}
	res.Metrics.DurationMs = time.Since(start).Milliseconds()
	return res, nil
}

func (e *Executor) decode(raw []byte) (model.CapabilityResult, error) {
	res := model.CapabilityResult{Status: model.ResultSuccess}
	if len(bytes.TrimSpace(raw)) == 0 {
		return res, nil
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return res, err
	}

	if e.dataExpr == "" {
		res.Data = json.RawMessage(raw)
	} else {
		v, err := jmespath.Search(e.dataExpr, doc)
		if err != nil {
			return res, fmt.Errorf("evaluate data expression: %w", err)
		}
		if v != nil {
			if res.Data, err = json.Marshal(v); err != nil {
				return res, fmt.Errorf("marshal data: %w", err)
			}
		}
	}

	if e.confidenceExpr != "" {
		v, err := jmespath.Search(e.confidenceExpr, doc)
		if err != nil {
			return res, fmt.Errorf("evaluate confidence expression: %w", err)
		}
		if f, ok := v.(float64); ok {
			res.Confidence = &f
		}
	}
	return res, nil
}

func snippet(raw []byte) string {
	s := strings.TrimSpace(string(raw))
	if len(s) > maxErrorSnippet {
		s = s[:maxErrorSnippet] + "..."
	}
	return s
}
