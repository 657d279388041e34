package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/target/mmk-investigations/internal/domain/model"
	"github.com/target/mmk-investigations/internal/service"
)

const defaultHeartbeat = 15 * time.Second

// EventHandlers serves progress streams as server-sent events.
type EventHandlers struct {
	Svc       *service.InvestigationService
	Heartbeat time.Duration
	Logger    *slog.Logger
}

// Stream handles GET /api/investigations/{id}/events. Each progress event is sent as an SSE
// event named after its kind; the response ends after the terminal event. Errors detected
// before the stream starts are returned as regular JSON errors.
func (h *EventHandlers) Stream(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		WriteError(w, ErrorParams{
			Code:    http.StatusInternalServerError,
			ErrCode: "streaming_unsupported",
			Err:     errors.New("streaming not supported"),
		})
		return
	}

	stream, err := h.Svc.Stream(r.Context(), id)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	defer stream.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	heartbeat := h.Heartbeat
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeat
	}
	ticker := time.NewTicker(heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if _, err := io.WriteString(w, ": keepalive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case ev, open := <-stream.Events:
			if !open {
				return
			}
			if err := writeSSEEvent(w, ev); err != nil {
				h.logger().DebugContext(r.Context(), "progress stream write failed",
					"investigation_id", id,
					"error", err,
				)
				return
			}
			flusher.Flush()
			if ev.Kind.IsTerminal() {
				return
			}
		}
	}
}

func (h *EventHandlers) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

func writeSSEEvent(w io.Writer, ev model.ProgressEvent) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode progress event: %w", err)
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Kind, b)
	return err
}
