package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/onnwee/chat-console/app"
	"github.com/onnwee/chat-console/messages"
	"github.com/onnwee/chat-console/youtubeapi"
)

// parseIntQuery extracts an int parameter from query string with a default value.
func parseIntQuery(r *http.Request, key string, def int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

// writeJSON encodes v with the JSON content type.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to encode JSON response", slog.Any("err", err))
	}
}

// writeError maps domain errors onto HTTP status codes and emits a JSON body.
func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusForError(err), map[string]string{"error": err.Error()})
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, app.ErrMissingClientID),
		errors.Is(err, app.ErrBadStreamURL),
		errors.Is(err, messages.ErrEmptyText):
		return http.StatusBadRequest
	case errors.Is(err, app.ErrNotAuthorized),
		errors.Is(err, youtubeapi.ErrMissingToken),
		errors.Is(err, youtubeapi.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, messages.ErrNotFound),
		errors.Is(err, youtubeapi.ErrVideoNotFound):
		return http.StatusNotFound
	case errors.Is(err, app.ErrNotConnected),
		errors.Is(err, youtubeapi.ErrNoLiveChat),
		errors.Is(err, messages.ErrUndeletable):
		return http.StatusConflict
	default:
		var apiErr *youtubeapi.APIError
		if errors.As(err, &apiErr) {
			// The provider rejected the call; relay its message upstream.
			return http.StatusBadGateway
		}
		return http.StatusInternalServerError
	}
}
