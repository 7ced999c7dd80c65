package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("YT_CLIENT_ID", "")
	t.Setenv("YT_SCOPES", "")
	t.Setenv("DB_DSN", "")
	t.Setenv("HTTP_ADDR", "")
	t.Setenv("CHAT_LOG_CAP", "")
	t.Setenv("CHAT_POLL_FLOOR", "")
	t.Setenv("CHAT_POLL_DEFAULT", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(cfg.YTScopes) != 1 || cfg.YTScopes[0] != "https://www.googleapis.com/auth/youtube.force-ssl" {
		t.Errorf("YTScopes = %v, want force-ssl default", cfg.YTScopes)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Errorf("HTTPAddr = %q, want :8080", cfg.HTTPAddr)
	}
	if cfg.ChatLogCap != 200 {
		t.Errorf("ChatLogCap = %d, want 200", cfg.ChatLogCap)
	}
	if cfg.ChatPollFloor != time.Second {
		t.Errorf("ChatPollFloor = %v, want 1s", cfg.ChatPollFloor)
	}
	if cfg.ChatPollDefault != 3*time.Second {
		t.Errorf("ChatPollDefault = %v, want 3s", cfg.ChatPollDefault)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("CHAT_LOG_CAP", "50")
	t.Setenv("CHAT_POLL_FLOOR", "2s")
	t.Setenv("CHAT_POLL_DEFAULT", "500ms")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ChatLogCap != 50 {
		t.Errorf("ChatLogCap = %d, want 50", cfg.ChatLogCap)
	}
	// default can never undercut the floor
	if cfg.ChatPollDefault != 2*time.Second {
		t.Errorf("ChatPollDefault = %v, want clamped to floor 2s", cfg.ChatPollDefault)
	}
}

func TestValidateOAuthReady(t *testing.T) {
	tests := []struct {
		name     string
		clientID string
		redirect string
		wantErr  bool
	}{
		{"both set", "id", "http://localhost/cb", false},
		{"missing client id", "", "http://localhost/cb", true},
		{"missing redirect", "id", "", true},
		{"both missing", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Config{YTClientID: tt.clientID, YTRedirectURI: tt.redirect}
			err := c.ValidateOAuthReady()
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateOAuthReady() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
