package handlers

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vidflow/vidflow/internal/sink"
	"github.com/vidflow/vidflow/internal/supervisor"
)

const mjpegBoundary = "vidflowframe"

// LiveHandler serves the low latency output as an MJPEG stream over HTTP.
type LiveHandler struct {
	broker *sink.FrameBroker
	sup    *supervisor.Supervisor
	logger *slog.Logger
}

// NewLiveHandler creates a live view handler.
func NewLiveHandler(broker *sink.FrameBroker, sup *supervisor.Supervisor, logger *slog.Logger) *LiveHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &LiveHandler{broker: broker, sup: sup, logger: logger}
}

// RegisterMJPEG registers the live endpoint on a chi router. This bypasses the
// OpenAPI layer because multipart frame streaming is not an OpenAPI response.
func (h *LiveHandler) RegisterMJPEG(router interface {
	Get(pattern string, handlerFn http.HandlerFunc)
}) {
	router.Get("/api/v1/streams/{id}/live", h.handleLive)
}

func (h *LiveHandler) handleLive(w http.ResponseWriter, r *http.Request) {
	streamID := chi.URLParam(r, "id")
	if h.sup != nil && !h.sup.Has(streamID) {
		http.Error(w, fmt.Sprintf("stream %s not found", streamID), http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary="+mjpegBoundary)
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	sub := h.broker.Subscribe(streamID)
	defer h.broker.Unsubscribe(streamID, sub.ID)

	rc := http.NewResponseController(w)
	ctx := r.Context()

	h.logger.Debug("live viewer connected", "stream_id", streamID, "viewer_id", sub.ID)

	for {
		select {
		case <-ctx.Done():
			return
		case payload, ok := <-sub.Frames:
			if !ok {
				return
			}
			_, err := fmt.Fprintf(w, "--%s\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", mjpegBoundary, len(payload))
			if err == nil {
				_, err = w.Write(payload)
			}
			if err == nil {
				_, err = fmt.Fprint(w, "\r\n")
			}
			if err != nil {
				h.logger.Debug("live viewer write failed", "stream_id", streamID, "error", err)
				return
			}
			if err := rc.Flush(); err != nil {
				h.logger.Debug("live viewer flush failed, client likely disconnected", "error", err)
				return
			}
		}
	}
}
