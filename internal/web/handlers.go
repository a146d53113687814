package web

import (
	"encoding/json"
	"io/fs"
	"net/http"
	"time"

	"github.com/cjeanneret/LapseGo/internal/logic/timelapse"
)

// HeartbeatInterval spaces the SSE keep-alive comments.
const HeartbeatInterval = 30 * time.Second

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	Broadcaster *StatusBroadcaster
	Tracker     *timelapse.Tracker
	Metrics     http.Handler
	staticFS    fs.FS
}

// NewHandlers creates handlers. A nil metrics handler makes /metrics answer
// 404.
func NewHandlers(broadcaster *StatusBroadcaster, tracker *timelapse.Tracker, metrics http.Handler, staticFS fs.FS) *Handlers {
	return &Handlers{
		Broadcaster: broadcaster,
		Tracker:     tracker,
		Metrics:     metrics,
		staticFS:    staticFS,
	}
}

// ServeIndex serves the status page (root path only).
func (h *Handlers) ServeIndex(w http.ResponseWriter, r *http.Request) {
	data, err := fs.ReadFile(h.staticFS, "index.html")
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(data)
}

// HandleStatus returns the current run status as JSON.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if h.Tracker == nil {
		http.Error(w, "no run in progress", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	json.NewEncoder(w).Encode(h.Tracker.Snapshot())
}

// HandleMetrics delegates to the Prometheus handler.
func (h *Handlers) HandleMetrics(w http.ResponseWriter, r *http.Request) {
	if h.Metrics == nil {
		http.NotFound(w, r)
		return
	}
	h.Metrics.ServeHTTP(w, r)
}

// HandleStatusStream handles GET /status/stream for SSE. A new client first
// gets the current status, then every status change and log line.
func (h *Handlers) HandleStatusStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // nginx

	ch, unsub := h.Broadcaster.Subscribe()
	defer unsub()

	w.Write([]byte(": connected\n\n"))
	if h.Tracker != nil {
		snap := h.Tracker.Snapshot()
		if data, err := json.Marshal(StatusEvent{
			Time:   time.Now().Format(time.RFC3339),
			Kind:   KindStatus,
			Status: &snap,
		}); err == nil {
			w.Write([]byte("data: " + string(data) + "\n\n"))
		}
	}
	flusher.Flush()

	ticker := time.NewTicker(HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			w.Write([]byte("data: " + msg + "\n\n"))
			flusher.Flush()

		case <-ticker.C:
			w.Write([]byte(": heartbeat\n\n"))
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}
