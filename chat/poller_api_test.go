package chat

import (
	"context"
	"testing"
	"time"

	"github.com/onnwee/chat-console/testutil"
	"github.com/onnwee/chat-console/youtubeapi"
)

func TestPollerAgainstMockAPI(t *testing.T) {
	m := testutil.NewMockYouTubeServer(t)
	m.MockChatPage([]map[string]interface{}{
		testutil.ChatItem("m1", "first", "viewer"),
		testutil.ChatItem("m2", "second", "mod"),
	}, "page-2", 10)

	client := &youtubeapi.Client{HTTPClient: m.Client(), BaseURL: m.URL}
	p := newTestPoller(client, 10)
	p.Start(context.Background(), "chat-1")
	defer p.Stop()

	deadline := time.After(2 * time.Second)
	for len(p.Snapshot()) < 2 {
		select {
		case <-deadline:
			t.Fatalf("messages never arrived, log = %v", p.Snapshot())
		case <-time.After(time.Millisecond):
		}
	}
	snap := p.Snapshot()
	if snap[0].ID != "m1" || snap[0].Text != "first" || snap[0].Author.DisplayName != "viewer" {
		t.Fatalf("unexpected first message: %+v", snap[0])
	}
	// Repeated pages of the same fixture must not duplicate entries
	time.Sleep(50 * time.Millisecond)
	if got := len(p.Snapshot()); got != 2 {
		t.Fatalf("log size = %d, want 2 after dedup", got)
	}
}

func TestPollerSurvivesAPIErrors(t *testing.T) {
	m := testutil.NewMockYouTubeServer(t)
	m.MockAPIError("/liveChat/messages", 403, "quotaExceeded", "Quota exceeded.")

	client := &youtubeapi.Client{HTTPClient: m.Client(), BaseURL: m.URL}
	p := newTestPoller(client, 10)
	p.Start(context.Background(), "chat-1")
	defer p.Stop()

	time.Sleep(50 * time.Millisecond)
	if !p.Running() {
		t.Fatal("poller must keep running through API errors")
	}
	if len(p.Snapshot()) != 0 {
		t.Fatal("no messages expected")
	}
}
