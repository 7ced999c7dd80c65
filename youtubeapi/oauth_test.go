package youtubeapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/onnwee/chat-console/config"
)

func testOAuthConfig() *config.Config {
	return &config.Config{
		YTClientID:     "client-id",
		YTClientSecret: "client-secret",
		YTRedirectURI:  "http://localhost:8080/auth/youtube/callback",
		YTScopes:       []string{"https://www.googleapis.com/auth/youtube.force-ssl"},
	}
}

func withTokenEndpoint(t *testing.T, handler http.HandlerFunc) {
	t.Helper()
	srv := httptest.NewServer(handler)
	orig := TokenEndpoint
	TokenEndpoint = srv.URL
	t.Cleanup(func() {
		TokenEndpoint = orig
		srv.Close()
	})
}

func TestAuthCodeURL(t *testing.T) {
	u := AuthCodeURL(testOAuthConfig(), "state-abc")
	for _, want := range []string{
		"client_id=client-id",
		"state=state-abc",
		"access_type=offline",
		"prompt=consent",
		"response_type=code",
	} {
		if !strings.Contains(u, want) {
			t.Errorf("auth url missing %q: %s", want, u)
		}
	}
}

func TestExchangeAuthCode(t *testing.T) {
	withTokenEndpoint(t, func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if got := r.Form.Get("grant_type"); got != "authorization_code" {
			t.Errorf("grant_type = %q", got)
		}
		if got := r.Form.Get("code"); got != "code-123" {
			t.Errorf("code = %q", got)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "at-1",
			"refresh_token": "rt-1",
			"expires_in":    3600,
			"scope":         "https://www.googleapis.com/auth/youtube.force-ssl",
		})
	})

	pair, err := ExchangeAuthCode(context.Background(), testOAuthConfig(), "code-123")
	if err != nil {
		t.Fatalf("ExchangeAuthCode: %v", err)
	}
	if pair.AccessToken != "at-1" || pair.RefreshToken != "rt-1" {
		t.Fatalf("unexpected pair: %+v", pair)
	}
	if until := time.Until(pair.ExpiresAt); until < 59*time.Minute || until > 61*time.Minute {
		t.Fatalf("expiry not ~1h out: %v", until)
	}
}

func TestExchangeAuthCodeErrorDescription(t *testing.T) {
	withTokenEndpoint(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{
			"error":             "invalid_grant",
			"error_description": "Code was already redeemed.",
		})
	})

	_, err := ExchangeAuthCode(context.Background(), testOAuthConfig(), "stale")
	if err == nil || !strings.Contains(err.Error(), "Code was already redeemed.") {
		t.Fatalf("want provider description in error, got %v", err)
	}
}

func TestRefreshTokenCarriesRefreshForward(t *testing.T) {
	withTokenEndpoint(t, func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if got := r.Form.Get("grant_type"); got != "refresh_token" {
			t.Errorf("grant_type = %q", got)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "at-2",
			"expires_in":   1800,
		})
	})

	pair, err := RefreshToken(context.Background(), testOAuthConfig(), "rt-1")
	if err != nil {
		t.Fatalf("RefreshToken: %v", err)
	}
	if pair.RefreshToken != "rt-1" {
		t.Fatalf("refresh token not carried forward: %+v", pair)
	}
	if pair.AccessToken != "at-2" {
		t.Fatalf("unexpected access token: %+v", pair)
	}
}

func TestRefreshTokenRequiresToken(t *testing.T) {
	if _, err := RefreshToken(context.Background(), testOAuthConfig(), ""); err == nil {
		t.Fatal("want error for empty refresh token")
	}
}

func TestComputeExpiry(t *testing.T) {
	if until := time.Until(ComputeExpiry(0)); until < 59*time.Minute || until > 61*time.Minute {
		t.Fatalf("default expiry not ~1h: %v", until)
	}
	if until := time.Until(ComputeExpiry(120)); until < time.Minute || until > 3*time.Minute {
		t.Fatalf("120s expiry off: %v", until)
	}
}
