package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/onnwee/chat-console/app"
	"github.com/onnwee/chat-console/config"
	"github.com/onnwee/chat-console/telemetry"
	"github.com/onnwee/chat-console/youtubeapi"
)

func newTestHandlers(t *testing.T, cfg *config.Config) *Handlers {
	t.Helper()
	telemetry.Init()
	ctrl := app.NewController(cfg, nil, youtubeapi.New())
	return NewHandlers(context.Background(), nil, ctrl)
}

func TestOAuthStartWithoutClientID(t *testing.T) {
	h := newTestHandlers(t, &config.Config{})
	req := httptest.NewRequest(http.MethodGet, "/auth/youtube/start", nil)
	rec := httptest.NewRecorder()
	h.HandleOAuthStart(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestOAuthStartRedirects(t *testing.T) {
	h := newTestHandlers(t, &config.Config{
		YTClientID:    "client-id",
		YTRedirectURI: "http://localhost:8080/auth/youtube/callback",
		YTScopes:      []string{"scope"},
	})
	req := httptest.NewRequest(http.MethodGet, "/auth/youtube/start", nil)
	rec := httptest.NewRecorder()
	h.HandleOAuthStart(rec, req)
	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", rec.Code)
	}
	loc := rec.Header().Get("Location")
	if !strings.Contains(loc, "client_id=client-id") || !strings.Contains(loc, "state=") {
		t.Fatalf("unexpected redirect: %s", loc)
	}
}

func TestOAuthCallbackRejectsUnknownState(t *testing.T) {
	h := newTestHandlers(t, &config.Config{})
	req := httptest.NewRequest(http.MethodGet, "/auth/youtube/callback?code=abc&state=bogus", nil)
	rec := httptest.NewRecorder()
	h.HandleOAuthCallback(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestOAuthCallbackSurfacesDenial(t *testing.T) {
	h := newTestHandlers(t, &config.Config{})
	req := httptest.NewRequest(http.MethodGet, "/auth/youtube/callback?error=access_denied", nil)
	rec := httptest.NewRecorder()
	h.HandleOAuthCallback(rec, req)
	if rec.Code != http.StatusBadRequest || !strings.Contains(rec.Body.String(), "access_denied") {
		t.Fatalf("status = %d body = %q", rec.Code, rec.Body.String())
	}
}

func TestOAuthStateConsumedOnce(t *testing.T) {
	h := newTestHandlers(t, &config.Config{})
	h.addOAuthState("st-1", time.Now().Add(time.Minute))
	if !h.consumeOAuthState("st-1") {
		t.Fatal("fresh state should validate")
	}
	if h.consumeOAuthState("st-1") {
		t.Fatal("state replay should fail")
	}
}

func TestOAuthStateExpiry(t *testing.T) {
	h := newTestHandlers(t, &config.Config{})
	h.addOAuthState("st-old", time.Now().Add(-time.Minute))
	if h.consumeOAuthState("st-old") {
		t.Fatal("expired state should fail")
	}
}

func TestTokenHandoffBadBody(t *testing.T) {
	h := newTestHandlers(t, &config.Config{})
	req := httptest.NewRequest(http.MethodPost, "/auth/youtube/token", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	h.HandleTokenHandoff(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestTokenHandoffMethodGuard(t *testing.T) {
	h := newTestHandlers(t, &config.Config{})
	req := httptest.NewRequest(http.MethodGet, "/auth/youtube/token", nil)
	rec := httptest.NewRecorder()
	h.HandleTokenHandoff(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rec.Code)
	}
}

func TestChatStartRequiresConnection(t *testing.T) {
	h := newTestHandlers(t, &config.Config{})
	req := httptest.NewRequest(http.MethodPost, "/chat/start", nil)
	rec := httptest.NewRecorder()
	h.HandleChatStart(rec, req)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
}

func TestChatStopWhenIdle(t *testing.T) {
	h := newTestHandlers(t, &config.Config{})
	req := httptest.NewRequest(http.MethodPost, "/chat/stop", nil)
	rec := httptest.NewRecorder()
	h.HandleChatStop(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestChatMessagesEmptyLog(t *testing.T) {
	h := newTestHandlers(t, &config.Config{})
	req := httptest.NewRequest(http.MethodGet, "/chat/messages", nil)
	rec := httptest.NewRecorder()
	h.HandleChatMessages(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var out []youtubeapi.ChatMessage
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("expected empty log, got %d", len(out))
	}
}

func TestQuickSendRequiresConnection(t *testing.T) {
	h := newTestHandlers(t, &config.Config{})
	req := httptest.NewRequest(http.MethodPost, "/send", strings.NewReader(`{"text":"hi"}`))
	rec := httptest.NewRecorder()
	h.HandleQuickSend(rec, req)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
}

func TestConnectRejectsBadURL(t *testing.T) {
	h := newTestHandlers(t, &config.Config{StreamURL: "???"})
	req := httptest.NewRequest(http.MethodPost, "/connect", nil)
	rec := httptest.NewRecorder()
	h.HandleConnect(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestConnectStrictRejectsLooseMatch(t *testing.T) {
	h := newTestHandlers(t, &config.Config{StreamURL: "watch abcdefghijk later"})
	req := httptest.NewRequest(http.MethodPost, "/connect?strict=1", nil)
	rec := httptest.NewRecorder()
	h.HandleConnect(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestMessagesDispatcherUnknownRoutes(t *testing.T) {
	h := newTestHandlers(t, &config.Config{})
	for _, path := range []string{"/messages/notanid", "/messages/5/unknown"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		h.HandleMessagesDispatcher(rec, req)
		if rec.Code != http.StatusNotFound {
			t.Errorf("%s status = %d, want 404", path, rec.Code)
		}
	}
}

func TestStatusForErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{app.ErrBadStreamURL, http.StatusBadRequest},
		{app.ErrMissingClientID, http.StatusBadRequest},
		{app.ErrNotAuthorized, http.StatusUnauthorized},
		{youtubeapi.ErrMissingToken, http.StatusUnauthorized},
		{youtubeapi.ErrVideoNotFound, http.StatusNotFound},
		{youtubeapi.ErrNoLiveChat, http.StatusConflict},
		{app.ErrNotConnected, http.StatusConflict},
		{&youtubeapi.APIError{Code: http.StatusForbidden, Message: "quotaExceeded"}, http.StatusBadGateway},
		{context.DeadlineExceeded, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := statusForError(tc.err); got != tc.want {
			t.Errorf("statusForError(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}
