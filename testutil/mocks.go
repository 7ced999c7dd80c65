package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

// MockYouTubeServer creates a test server that mocks YouTube Data API responses
type MockYouTubeServer struct {
	*httptest.Server
	Handlers map[string]http.HandlerFunc
}

// NewMockYouTubeServer creates a new mock YouTube API server
func NewMockYouTubeServer(t *testing.T) *MockYouTubeServer {
	t.Helper()
	m := &MockYouTubeServer{
		Handlers: make(map[string]http.HandlerFunc),
	}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.URL.Path
		if handler, ok := m.Handlers[key]; ok {
			handler(w, r)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(m.Close)
	return m
}

// MockVideoResponse adds a handler for the /videos endpoint resolving a live
// video with the given chat id.
func (m *MockYouTubeServer) MockVideoResponse(videoID, liveChatID, title string) {
	m.Handlers["/videos"] = func(w http.ResponseWriter, r *http.Request) {
		response := map[string]interface{}{
			"items": []map[string]interface{}{
				{
					"id":      videoID,
					"snippet": map[string]string{"title": title},
					"liveStreamingDetails": map[string]string{
						"activeLiveChatId": liveChatID,
					},
				},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(response) //nolint:errcheck // test mock response
	}
}

// MockChatPage adds a handler for the /liveChat/messages endpoint serving one
// fixed page of messages.
func (m *MockYouTubeServer) MockChatPage(items []map[string]interface{}, nextPageToken string, pollingIntervalMillis int) {
	m.Handlers["/liveChat/messages"] = func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			// Echo the sent message back as a created resource
			var body struct {
				Snippet struct {
					TextDetails struct {
						MessageText string `json:"messageText"`
					} `json:"textMessageDetails"`
				} `json:"snippet"`
			}
			_ = json.NewDecoder(r.Body).Decode(&body)
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]interface{}{ //nolint:errcheck // test mock response
				"id": "sent-message",
				"snippet": map[string]interface{}{
					"textMessageDetails": map[string]string{"messageText": body.Snippet.TextDetails.MessageText},
				},
			})
			return
		}
		response := map[string]interface{}{
			"items":                 items,
			"nextPageToken":         nextPageToken,
			"pollingIntervalMillis": pollingIntervalMillis,
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(response) //nolint:errcheck // test mock response
	}
}

// MockAPIError makes the given endpoint fail with a structured API error body.
func (m *MockYouTubeServer) MockAPIError(path string, status int, reason, message string) {
	m.Handlers[path] = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{ //nolint:errcheck // test mock response
			"error": map[string]interface{}{
				"code":    status,
				"message": message,
				"errors":  []map[string]string{{"reason": reason}},
			},
		})
	}
}

// ChatItem builds one live chat message resource for MockChatPage.
func ChatItem(id, text, author string) map[string]interface{} {
	return map[string]interface{}{
		"id": id,
		"snippet": map[string]interface{}{
			"displayMessage":     text,
			"textMessageDetails": map[string]string{"messageText": text},
		},
		"authorDetails": map[string]interface{}{
			"displayName": author,
		},
	}
}
