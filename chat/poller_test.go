package chat

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/onnwee/chat-console/telemetry"
	"github.com/onnwee/chat-console/youtubeapi"
)

type fakeLister struct {
	mu    sync.Mutex
	pages []youtubeapi.ListPage
	calls int
	errs  int
	fail  bool
}

func (f *fakeLister) ListMessages(ctx context.Context, token, liveChatID, pageToken string) (youtubeapi.ListPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.fail {
		f.errs++
		return youtubeapi.ListPage{}, errors.New("boom")
	}
	if len(f.pages) == 0 {
		return youtubeapi.ListPage{PollingIntervalMillis: 10}, nil
	}
	page := f.pages[0]
	f.pages = f.pages[1:]
	return page, nil
}

func (f *fakeLister) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func staticToken(tok string) TokenSource {
	return func(context.Context) (string, error) { return tok, nil }
}

func msg(id string) youtubeapi.ChatMessage {
	return youtubeapi.ChatMessage{ID: id, Text: "m-" + id}
}

func newTestPoller(api Lister, logCap int) *Poller {
	telemetry.Init()
	return NewPoller(api, staticToken("tok"), logCap, 5*time.Millisecond, 10*time.Millisecond)
}

func TestIngestDedupAndCap(t *testing.T) {
	p := newTestPoller(&fakeLister{}, 3)

	fresh := p.ingest(youtubeapi.ListPage{Items: []youtubeapi.ChatMessage{msg("a"), msg("b"), msg("a")}})
	if len(fresh) != 2 {
		t.Fatalf("fresh = %d, want 2 (duplicate dropped)", len(fresh))
	}

	fresh = p.ingest(youtubeapi.ListPage{Items: []youtubeapi.ChatMessage{msg("b"), msg("c"), msg("d")}})
	if len(fresh) != 2 {
		t.Fatalf("fresh = %d, want 2 (b already seen)", len(fresh))
	}

	snap := p.Snapshot()
	if len(snap) != 3 {
		t.Fatalf("log size = %d, want cap 3", len(snap))
	}
	// Oldest evicted first
	if snap[0].ID != "b" || snap[2].ID != "d" {
		t.Fatalf("unexpected order: %v %v %v", snap[0].ID, snap[1].ID, snap[2].ID)
	}
}

func TestIngestEvictedIDCanReappear(t *testing.T) {
	p := newTestPoller(&fakeLister{}, 2)
	p.ingest(youtubeapi.ListPage{Items: []youtubeapi.ChatMessage{msg("a"), msg("b"), msg("c")}})
	// "a" was evicted, so its id is forgotten and may be ingested again
	fresh := p.ingest(youtubeapi.ListPage{Items: []youtubeapi.ChatMessage{msg("a")}})
	if len(fresh) != 1 {
		t.Fatalf("evicted id should be accepted again, fresh = %d", len(fresh))
	}
}

func TestIngestTracksPageToken(t *testing.T) {
	p := newTestPoller(&fakeLister{}, 10)
	p.ingest(youtubeapi.ListPage{NextPageToken: "p2"})
	if p.pageToken != "p2" {
		t.Fatalf("pageToken = %q", p.pageToken)
	}
	// Missing token keeps the previous one
	p.ingest(youtubeapi.ListPage{})
	if p.pageToken != "p2" {
		t.Fatalf("pageToken lost: %q", p.pageToken)
	}
}

func TestClampInterval(t *testing.T) {
	floor := time.Second
	dflt := 3 * time.Second
	cases := []struct {
		millis int
		want   time.Duration
	}{
		{0, dflt},
		{-5, dflt},
		{500, floor},
		{1000, time.Second},
		{5000, 5 * time.Second},
	}
	for _, tc := range cases {
		if got := clampInterval(tc.millis, floor, dflt); got != tc.want {
			t.Errorf("clampInterval(%d) = %v, want %v", tc.millis, got, tc.want)
		}
	}
}

func TestStartStop(t *testing.T) {
	api := &fakeLister{}
	p := newTestPoller(api, 10)

	p.Start(context.Background(), "chat-1")
	if !p.Running() {
		t.Fatal("poller should report running after Start")
	}

	deadline := time.After(time.Second)
	for api.callCount() < 2 {
		select {
		case <-deadline:
			t.Fatal("poller never polled")
		case <-time.After(time.Millisecond):
		}
	}

	p.Stop()
	if p.Running() {
		t.Fatal("poller should report idle after Stop")
	}
	calls := api.callCount()
	time.Sleep(50 * time.Millisecond)
	if api.callCount() != calls {
		t.Fatal("poller kept polling after Stop returned")
	}

	// Stop when idle is a no-op
	p.Stop()
}

func TestStartReplacesPreviousLoopAndClearsLog(t *testing.T) {
	api := &fakeLister{pages: []youtubeapi.ListPage{
		{Items: []youtubeapi.ChatMessage{msg("old")}, PollingIntervalMillis: 10},
	}}
	p := newTestPoller(api, 10)

	p.Start(context.Background(), "chat-1")
	deadline := time.After(time.Second)
	for len(p.Snapshot()) == 0 {
		select {
		case <-deadline:
			t.Fatal("first chat message never arrived")
		case <-time.After(time.Millisecond):
		}
	}

	p.Start(context.Background(), "chat-2")
	defer p.Stop()
	for _, m := range p.Snapshot() {
		if m.ID == "old" {
			t.Fatal("log from previous chat survived restart")
		}
	}
	if !p.Running() {
		t.Fatal("poller should be running against the new chat")
	}
}

func TestPollErrorsAreLenient(t *testing.T) {
	api := &fakeLister{fail: true}
	p := newTestPoller(api, 10)

	p.Start(context.Background(), "chat-1")
	defer p.Stop()

	deadline := time.After(time.Second)
	for api.callCount() < 3 {
		select {
		case <-deadline:
			t.Fatalf("loop did not keep polling through errors, calls = %d", api.callCount())
		case <-time.After(time.Millisecond):
		}
	}
}

func TestSubscribeReceivesFreshMessages(t *testing.T) {
	p := newTestPoller(&fakeLister{}, 10)
	ch, cancel := p.Subscribe()
	defer cancel()

	fresh := p.ingest(youtubeapi.ListPage{Items: []youtubeapi.ChatMessage{msg("a")}})
	for _, m := range fresh {
		p.broadcast(m)
	}

	select {
	case got := <-ch:
		if got.ID != "a" {
			t.Fatalf("got %q", got.ID)
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber never received message")
	}
}

func TestSubscribeSlowListenerDoesNotBlock(t *testing.T) {
	p := newTestPoller(&fakeLister{}, 300)
	_, cancel := p.Subscribe()
	defer cancel()

	// Flood well past the subscriber buffer; broadcast must not stall.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 200; i++ {
			p.broadcast(msg(fmt.Sprintf("m%d", i)))
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("broadcast blocked on slow subscriber")
	}
}

func TestParentContextCancelClearsRunning(t *testing.T) {
	p := newTestPoller(&fakeLister{}, 10)
	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx, "chat-1")
	if !p.Running() {
		t.Fatal("poller should be running after Start")
	}

	cancel()
	deadline := time.Now().Add(time.Second)
	for p.Running() {
		if time.Now().After(deadline) {
			t.Fatal("running flag still set after parent context cancel")
		}
		time.Sleep(time.Millisecond)
	}
	// Stop after the loop already wound itself down must not hang.
	p.Stop()
}
