// Package httpx provides the HTTP API of the investigation service: job endpoints, the
// progress stream, the callback ingress and health checks.
package httpx

import (
	"errors"
	"net/http"
	"strings"

	"github.com/target/mmk-investigations/internal/domain/capability"
	"github.com/target/mmk-investigations/internal/domain/model"
	"github.com/target/mmk-investigations/internal/service"
)

// InvestigationHandlers serves the investigation endpoints.
type InvestigationHandlers struct {
	Svc      *service.InvestigationService
	Registry *capability.Registry
}

// Start handles POST /api/investigations.
func (h *InvestigationHandlers) Start(w http.ResponseWriter, r *http.Request) {
	var req model.StartInvestigationRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	res, err := h.Svc.Start(r.Context(), req)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	w.Header().Set("Location", "/api/investigations/"+res.Investigation.ID)
	WriteJSON(w, http.StatusAccepted, res)
}

// List handles GET /api/investigations.
func (h *InvestigationHandlers) List(w http.ResponseWriter, r *http.Request) {
	lq := parseListQuery(r)
	if lq.Err != nil {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "validation", Err: lq.Err, Field: lq.BadField})
		return
	}
	opts := lq.Opts

	items, err := h.Svc.List(r.Context(), opts)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	if items == nil {
		items = []*model.Investigation{}
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"investigations": items,
		"limit":          opts.Limit,
		"offset":         opts.Offset,
	})
}

// Get handles GET /api/investigations/{id}.
func (h *InvestigationHandlers) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	inv, err := h.Svc.Get(r.Context(), id)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, inv)
}

// Cancel handles POST /api/investigations/{id}/cancel.
func (h *InvestigationHandlers) Cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.Svc.Cancel(r.Context(), id); err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusAccepted, map[string]any{"investigation_id": id, "canceled": true})
}

// Retry handles POST /api/investigations/{id}/retry. A new investigation is started from the
// failed one's intent; the response matches Start's.
func (h *InvestigationHandlers) Retry(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	res, err := h.Svc.Retry(r.Context(), id)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	w.Header().Set("Location", "/api/investigations/"+res.Investigation.ID)
	WriteJSON(w, http.StatusAccepted, res)
}

// Report handles GET /api/investigations/{id}/report.
func (h *InvestigationHandlers) Report(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	body, err := h.Svc.Report(r.Context(), id)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}

type capabilityView struct {
	Name             string              `json:"name"`
	Category         string              `json:"category"`
	Description      string              `json:"description,omitempty"`
	Tags             []capability.Tag    `json:"tags"`
	Accepts          []model.TargetField `json:"accepts,omitempty"`
	MinDepth         model.Depth         `json:"min_depth,omitempty"`
	Priority         int                 `json:"priority"`
	EstimatedSeconds int                 `json:"estimated_seconds"`
	TimeoutSeconds   int                 `json:"timeout_seconds"`
}

// Capabilities handles GET /api/capabilities.
func (h *InvestigationHandlers) Capabilities(w http.ResponseWriter, _ *http.Request) {
	descs := h.Registry.List()
	out := make([]capabilityView, 0, len(descs))
	for _, d := range descs {
		out = append(out, capabilityView{
			Name:             d.Name,
			Category:         d.Category,
			Description:      d.Description,
			Tags:             d.Tags,
			Accepts:          d.Accepts,
			MinDepth:         d.MinDepth,
			Priority:         d.Priority,
			EstimatedSeconds: int(d.EstimatedDuration.Seconds()),
			TimeoutSeconds:   int(d.Timeout.Seconds()),
		})
	}
	WriteJSON(w, http.StatusOK, map[string]any{"capabilities": out})
}

func pathID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		WriteError(w, ErrorParams{
			Code:    http.StatusBadRequest,
			ErrCode: "invalid_path",
			Err:     errors.New("investigation id is required"),
		})
		return "", false
	}
	return id, true
}
