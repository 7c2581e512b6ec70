package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/reelforge/reelforge/internal/metrics"
	"github.com/reelforge/reelforge/internal/runstore"
	"github.com/reelforge/reelforge/pkg/types"
)

const heartbeatInterval = 15 * time.Second

// StreamEvents handles GET /api/v1/runs/{id}/events
// It streams run events over Server-Sent Events. Clients resume with the
// Last-Event-ID header; already-delivered events are replayed from the
// store before live events take over.
func (h *Handlers) StreamEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	runID := mux.Vars(r)["id"]
	startTime := time.Now()
	requestID := GetRequestID(ctx, r)

	meta, err := h.runs.GetRunMeta(ctx, runID)
	if err != nil {
		if errors.Is(err, runstore.ErrRunNotFound) {
			h.respondError(w, r, http.StatusNotFound, "run not found", err)
			return
		}
		h.respondError(w, r, http.StatusInternalServerError, "failed to get run", err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		h.respondError(w, r, http.StatusInternalServerError, "streaming not supported", nil)
		return
	}

	metrics.SSEClientsActive.Inc()
	defer metrics.SSEClientsActive.Dec()

	h.logger.Info("event stream opened",
		slog.String("run_id", runID),
		slog.String("request_id", requestID),
		slog.String("remote_addr", r.RemoteAddr),
	)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	flusher.Flush()

	// Replay history. Without Last-Event-ID this is the full buffer, so a
	// late subscriber still sees the whole run.
	lastEventID := r.Header.Get("Last-Event-ID")
	events, err := h.runs.GetEventsSince(ctx, runID, lastEventID)
	if err != nil {
		h.logger.Error("failed to replay events", "error", err, "run_id", runID)
	}
	for _, evt := range events {
		h.writeSSE(w, flusher, evt)
		if evt.Type == types.EventTypeStreamEnd {
			return
		}
	}

	// A finished run gets no more events; close after replay.
	if isFinal(meta.Status) {
		h.sendStreamEnd(ctx, w, flusher, runID)
		return
	}

	eventCh, cleanup, err := h.runs.Subscribe(ctx, runID)
	if err != nil {
		h.logger.Error("failed to subscribe to events", "error", err, "run_id", runID)
		return
	}
	defer cleanup()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("event stream closed",
				slog.String("run_id", runID),
				slog.String("request_id", requestID),
				slog.Duration("duration", time.Since(startTime)),
				slog.String("reason", "client_disconnect"),
			)
			return

		case evt, ok := <-eventCh:
			if !ok {
				// Subscription closed, typically on cancellation.
				h.sendStreamEnd(ctx, w, flusher, runID)
				h.logger.Info("event stream closed",
					slog.String("run_id", runID),
					slog.String("request_id", requestID),
					slog.Duration("duration", time.Since(startTime)),
					slog.String("reason", "run_finished"),
				)
				return
			}
			h.writeSSE(w, flusher, evt)
			if evt.Type == types.EventTypeStreamEnd {
				return
			}

		case <-heartbeat.C:
			h.writeComment(w, flusher, "heartbeat")
		}
	}
}

func isFinal(status types.RunStatus) bool {
	switch status {
	case types.RunStatusCompleted, types.RunStatusFailed, types.RunStatusCancelled:
		return true
	}
	return false
}

// writeSSE writes an event in SSE format and flushes.
func (h *Handlers) writeSSE(w http.ResponseWriter, flusher http.Flusher, evt *types.Event) {
	if evt == nil {
		return
	}
	if _, err := w.Write(evt.ToSSE()); err != nil {
		h.logger.Error("failed to write event", "error", err)
		return
	}
	flusher.Flush()
}

// writeComment writes an SSE comment (for heartbeats).
func (h *Handlers) writeComment(w http.ResponseWriter, flusher http.Flusher, comment string) {
	if _, err := w.Write([]byte(": " + comment + "\n\n")); err != nil {
		h.logger.Error("failed to write comment", "error", err)
		return
	}
	flusher.Flush()
}

// sendStreamEnd emits a terminal event carrying the run's final status.
func (h *Handlers) sendStreamEnd(ctx context.Context, w http.ResponseWriter, flusher http.Flusher, runID string) {
	meta, err := h.runs.GetRunMeta(ctx, runID)
	if err != nil {
		h.logger.Error("failed to get run meta for stream end", "error", err)
		return
	}

	data, _ := json.Marshal(types.RunStatusEvent{Status: meta.Status, Error: meta.Error})
	h.writeSSE(w, flusher, &types.Event{
		ID:        "final",
		RunID:     runID,
		Type:      types.EventTypeStreamEnd,
		Timestamp: time.Now().UTC(),
		Data:      data,
	})
}
