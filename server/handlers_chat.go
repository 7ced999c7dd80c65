package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

// HandleChatStart begins polling the connected stream's live chat. The poll
// loop is bound to the server lifetime, not to this request.
func (h *Handlers) HandleChatStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := h.ctrl.EnterChat(h.ctx); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "polling": true})
}

// HandleChatStop halts the poll loop.
func (h *Handlers) HandleChatStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	h.ctrl.LeaveChat()
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "polling": false})
}

// HandleChatMessages returns the retained chat log, oldest first.
func (h *Handlers) HandleChatMessages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	snap := h.ctrl.Poller.Snapshot()
	limit := parseIntQuery(r, "limit", len(snap))
	if limit > 0 && limit < len(snap) {
		snap = snap[len(snap)-limit:]
	}
	writeJSON(w, http.StatusOK, snap)
}

// HandleChatStream pushes chat messages over Server-Sent Events. The retained
// log is replayed first unless replay=0, then new messages follow as they
// arrive.
func (h *Handlers) HandleChatStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	// Subscribe before replay so nothing falls in the gap; the dedup below
	// drops messages seen in both.
	ch, cancel := h.ctrl.Poller.Subscribe()
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ctx := r.Context()
	enc := json.NewEncoder(w)
	replayed := make(map[string]struct{})

	writeEvent := func(v any) bool {
		if _, err := w.Write([]byte("data: ")); err != nil {
			slog.Warn("failed to write SSE data prefix", slog.Any("err", err))
			return false
		}
		_ = enc.Encode(v)
		if _, err := w.Write([]byte("\n")); err != nil {
			slog.Warn("failed to write SSE newline", slog.Any("err", err))
			return false
		}
		flusher.Flush()
		return true
	}

	if parseIntQuery(r, "replay", 1) != 0 {
		for _, m := range h.ctrl.Poller.Snapshot() {
			replayed[m.ID] = struct{}{}
			if !writeEvent(m) {
				return
			}
		}
	}

	heartbeat := time.NewTicker(25 * time.Second)
	defer heartbeat.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			// Comment frame keeps proxies from closing the stream
			if _, err := w.Write([]byte(": keepalive\n\n")); err != nil {
				return
			}
			flusher.Flush()
		case m := <-ch:
			if _, dup := replayed[m.ID]; dup {
				continue
			}
			if !writeEvent(m) {
				return
			}
		}
	}
}
