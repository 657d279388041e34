// Package report renders investigation reports from the persisted execution records.
package report

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"text/template"
	"time"

	"github.com/target/mmk-investigations/internal/core"
	"github.com/target/mmk-investigations/internal/domain/model"
)

const maxDataBytes = 4096

var funcs = template.FuncMap{
	"data":       formatData,
	"confidence": formatConfidence,
	"duration": func(ms int64) string {
		return (time.Duration(ms) * time.Millisecond).String()
	},
	"deref": func(s *string) string {
		if s == nil {
			return ""
		}
		return *s
	},
	"join": strings.Join,
	"ts":   func(t time.Time) string { return t.UTC().Format(time.RFC3339) },
}

var reportTmpl = template.Must(template.New("report").Funcs(funcs).Parse(`# Investigation {{.Inv.ID}}

- **Type:** {{.Inv.Type}}
- **Target:** {{.Inv.Target.Primary}}
- **Depth:** {{.Inv.Depth}}
{{- if .Inv.Platforms}}
- **Platforms:** {{join .Inv.Platforms ", "}}
{{- end}}
{{- if .Inv.Query}}
- **Query:** {{.Inv.Query}}
{{- end}}
- **Started:** {{ts .Inv.CreatedAt}}

## Summary

| Planned | Succeeded | Failed | Skipped |
|---|---|---|---|
| {{.Planned}} | {{.Succeeded}} | {{.Failed}} | {{.Skipped}} |
{{range .Inv.Executions}}
## {{.Capability}} ({{.Category}})

- **Status:** {{.Status}}
- **Duration:** {{duration .Metrics.DurationMs}}
{{- with confidence .Confidence}}
- **Confidence:** {{.}}
{{- end}}
{{- if .Error}}
- **Error:** {{deref .Error}}
{{- end}}
{{- with data .Data}}

` + "```json" + `
{{.}}
` + "```" + `
{{- end}}
{{end}}`))

// GeneratorOptions groups dependencies for Generator.
type GeneratorOptions struct {
	Repo   core.InvestigationRepository // Required: source of execution records
	Logger *slog.Logger                 // Optional
}

// Generator builds a markdown report from an investigation's execution records.
type Generator struct {
	repo   core.InvestigationRepository
	logger *slog.Logger
}

var _ core.ReportGenerator = (*Generator)(nil)

// NewGenerator constructs a Generator.
func NewGenerator(opts GeneratorOptions) (*Generator, error) {
	if opts.Repo == nil {
		return nil, errors.New("InvestigationRepository is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{repo: opts.Repo, logger: logger.With("component", "report_generator")}, nil
}

// MustNewGenerator constructs a Generator and panics on error.
func MustNewGenerator(opts GeneratorOptions) *Generator {
	g, err := NewGenerator(opts)
	if err != nil {
		panic(fmt.Sprintf("failed to create report Generator: %v", err))
	}
	return g
}

type view struct {
	Inv                                 *model.Investigation
	Planned, Succeeded, Failed, Skipped int
}

// GenerateReport renders the report for investigationID.
func (g *Generator) GenerateReport(ctx context.Context, investigationID string) (string, error) {
	inv, err := g.repo.GetByID(ctx, investigationID)
	if err != nil {
		return "", fmt.Errorf("load investigation %s: %w", investigationID, err)
	}

	v := view{Inv: inv, Planned: len(inv.Executions)}
	for _, rec := range inv.Executions {
		switch rec.Status {
		case model.ExecutionStatusSuccess:
			v.Succeeded++
		case model.ExecutionStatusFailed:
			v.Failed++
		case model.ExecutionStatusSkipped:
			v.Skipped++
		}
	}

	var buf bytes.Buffer
	if err := reportTmpl.Execute(&buf, v); err != nil {
		return "", fmt.Errorf("render report %s: %w", investigationID, err)
	}
	g.logger.DebugContext(ctx, "report generated", "investigation_id", investigationID, "bytes", buf.Len())
	return buf.String(), nil
}

func formatConfidence(c *float64) string {
	if c == nil {
		return ""
	}
	return fmt.Sprintf("%.0f%%", *c*100)
}

// formatData pretty-prints a result payload, truncated to keep reports readable.
func formatData(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		buf.Reset()
		buf.Write(raw)
	}
	if buf.Len() > maxDataBytes {
		return string(buf.Bytes()[:maxDataBytes]) + "\n..."
	}
	return buf.String()
}
