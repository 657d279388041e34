package httpx

import (
	"net/http"

	"github.com/target/mmk-investigations/internal/domain/model"
	"github.com/target/mmk-investigations/internal/service"
)

// CallbackHandlers serves the callback ingress used by out-of-process capability workers.
type CallbackHandlers struct {
	Svc *service.CallbackService
}

// Receive handles POST /callback/{id}. Duplicate deliveries are acknowledged with 200 and
// duplicate=true.
func (h *CallbackHandlers) Receive(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var payload model.CallbackPayload
	if !DecodeJSON(w, r, &payload) {
		return
	}

	ack, err := h.Svc.Ingest(r.Context(), id, payload)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, ack)
}
