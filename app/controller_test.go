package app

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/onnwee/chat-console/config"
	"github.com/onnwee/chat-console/telemetry"
	"github.com/onnwee/chat-console/youtubeapi"
)

func newTestController(cfg *config.Config) *Controller {
	telemetry.Init()
	return NewController(cfg, nil, youtubeapi.New())
}

func TestConnectRejectsBadStreamURL(t *testing.T) {
	c := newTestController(&config.Config{StreamURL: "not a url at all"})
	if _, err := c.Connect(context.Background(), false); !errors.Is(err, ErrBadStreamURL) {
		t.Fatalf("want ErrBadStreamURL, got %v", err)
	}
}

func TestChatOperationsRequireConnection(t *testing.T) {
	c := newTestController(&config.Config{})
	if err := c.EnterChat(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("EnterChat: want ErrNotConnected, got %v", err)
	}
	if err := c.SendQuick(context.Background(), "hi"); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("SendQuick: want ErrNotConnected, got %v", err)
	}
	if err := c.SendSaved(context.Background(), 1); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("SendSaved: want ErrNotConnected, got %v", err)
	}
	// LeaveChat when idle is a no-op
	c.LeaveChat()
}

func TestOAuthReadyRequiresClientID(t *testing.T) {
	c := newTestController(&config.Config{})
	if err := c.OAuthReady(); !errors.Is(err, ErrMissingClientID) {
		t.Fatalf("want ErrMissingClientID, got %v", err)
	}
	if _, err := c.AuthCodeURL("state"); !errors.Is(err, ErrMissingClientID) {
		t.Fatalf("AuthCodeURL: want ErrMissingClientID, got %v", err)
	}
}

func TestAuthCodeURL(t *testing.T) {
	c := newTestController(&config.Config{
		YTClientID:    "client-id",
		YTRedirectURI: "http://localhost:8080/auth/youtube/callback",
		YTScopes:      []string{"scope-a"},
	})
	u, err := c.AuthCodeURL("state-1")
	if err != nil {
		t.Fatalf("AuthCodeURL: %v", err)
	}
	if !strings.Contains(u, "client_id=client-id") || !strings.Contains(u, "state=state-1") {
		t.Fatalf("unexpected url: %s", u)
	}
}

func TestSaveConfigRejectsUnknownFlow(t *testing.T) {
	c := newTestController(&config.Config{})
	if err := c.SaveConfig(context.Background(), AppConfig{Flow: "magic"}); err == nil {
		t.Fatal("want error for unknown flow")
	}
}

func TestAcceptTokenHandoffRejectsEmpty(t *testing.T) {
	c := newTestController(&config.Config{})
	if err := c.AcceptTokenHandoff(context.Background(), "", 3600); err == nil {
		t.Fatal("want error for empty token")
	}
}
