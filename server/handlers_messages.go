package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/onnwee/chat-console/messages"
)

// savedMessageView is a saved message joined with its current send state.
type savedMessageView struct {
	messages.SavedMessage
	Status messages.Status `json:"status"`
}

// HandleMessages lists saved messages (GET) or adds one (POST).
func (h *Handlers) HandleMessages(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		list, err := h.ctrl.Store.List(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		states := h.ctrl.Sender.Tracker.Snapshot()
		out := make([]savedMessageView, 0, len(list))
		for _, m := range list {
			v := savedMessageView{SavedMessage: m, Status: messages.Status{State: messages.StateIdle}}
			if st, ok := states[m.ID]; ok {
				v.Status = st
			}
			out = append(out, v)
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"messages":  out,
			"undoArmed": h.ctrl.Store.UndoArmed(),
			"quick":     h.ctrl.Sender.Tracker.Get(messages.QuickSlot),
		})
	case http.MethodPost:
		var body struct {
			Text string `json:"text"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "bad request body", http.StatusBadRequest)
			return
		}
		m, err := h.ctrl.Store.Add(r.Context(), body.Text)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, m)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// HandleMessagesDispatcher routes requests under /messages/{id}/* and the
// collection-level actions /messages/undo and /messages/unpinned.
func (h *Handlers) HandleMessagesDispatcher(w http.ResponseWriter, r *http.Request) {
	// crude routing
	path := strings.TrimPrefix(r.URL.Path, "/messages/")
	parts := strings.Split(path, "/")
	head := parts[0]
	tail := ""
	if len(parts) > 1 {
		tail = strings.Join(parts[1:], "/")
	}

	switch head {
	case "", "/":
		http.NotFound(w, r)
		return
	case "undo":
		h.handleMessageUndo(w, r)
		return
	case "unpinned":
		h.handleDeleteUnpinned(w, r)
		return
	case "states":
		h.handleMessageStates(w, r)
		return
	}

	id, err := strconv.ParseInt(head, 10, 64)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	switch tail {
	case "":
		h.handleMessageDetail(w, r, id)
	case "send":
		h.handleMessageSend(w, r, id)
	case "pin":
		h.handleMessagePin(w, r, id)
	case "main":
		h.handleMessageMain(w, r, id)
	case "move":
		h.handleMessageMove(w, r, id)
	default:
		http.NotFound(w, r)
	}
}

func (h *Handlers) handleMessageDetail(w http.ResponseWriter, r *http.Request, id int64) {
	switch r.Method {
	case http.MethodGet:
		m, err := h.ctrl.Store.Get(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, savedMessageView{SavedMessage: m, Status: h.ctrl.Sender.Tracker.Get(id)})
	case http.MethodPatch, http.MethodPut:
		var body struct {
			Text string `json:"text"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "bad request body", http.StatusBadRequest)
			return
		}
		if err := h.ctrl.Store.UpdateText(r.Context(), id, body.Text); err != nil {
			writeError(w, err)
			return
		}
		// Editing the text wipes any lingering SUCCESS/ERROR state.
		h.ctrl.Sender.Tracker.Clear(id)
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	case http.MethodDelete:
		if err := h.ctrl.Store.Delete(r.Context(), id); err != nil {
			writeError(w, err)
			return
		}
		h.ctrl.Sender.Tracker.Clear(id)
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "undoArmed": true})
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handlers) handleMessageSend(w http.ResponseWriter, r *http.Request, id int64) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := h.ctrl.SendSaved(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "state": h.ctrl.Sender.Tracker.Get(id)})
}

func (h *Handlers) handleMessagePin(w http.ResponseWriter, r *http.Request, id int64) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	pinned, err := h.ctrl.Store.TogglePin(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "pinned": pinned})
}

func (h *Handlers) handleMessageMain(w http.ResponseWriter, r *http.Request, id int64) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var body struct {
		Main bool `json:"main"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "bad request body", http.StatusBadRequest)
		return
	}
	if err := h.ctrl.Store.SetMain(r.Context(), id, body.Main); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "main": body.Main})
}

func (h *Handlers) handleMessageMove(w http.ResponseWriter, r *http.Request, id int64) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var body struct {
		Position  *int   `json:"position"`
		Direction string `json:"direction"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "bad request body", http.StatusBadRequest)
		return
	}
	var position int
	switch {
	case body.Direction == "up" || body.Direction == "down":
		m, err := h.ctrl.Store.Get(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		position = m.Position - 1
		if body.Direction == "down" {
			position = m.Position + 1
		}
	case body.Position != nil:
		position = *body.Position
	default:
		http.Error(w, "position or direction required", http.StatusBadRequest)
		return
	}
	if err := h.ctrl.Store.Move(r.Context(), id, position); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (h *Handlers) handleMessageStates(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"states": h.ctrl.Sender.Tracker.Snapshot(),
		"quick":  h.ctrl.Sender.Tracker.Get(messages.QuickSlot),
	})
}

func (h *Handlers) handleMessageUndo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	m, restored, err := h.ctrl.Store.Undo(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if !restored {
		// Expired or empty slot: not an error, just nothing to restore
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "restored": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "restored": true, "message": m})
}

func (h *Handlers) handleDeleteUnpinned(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete && r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	n, err := h.ctrl.Store.DeleteUnpinned(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "deleted": n})
}

// HandleQuickSend pushes ad-hoc text into the connected chat.
func (h *Handlers) HandleQuickSend(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var body struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "bad request body", http.StatusBadRequest)
		return
	}
	if err := h.ctrl.SendQuick(r.Context(), body.Text); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "state": h.ctrl.Sender.Tracker.Get(messages.QuickSlot)})
}
