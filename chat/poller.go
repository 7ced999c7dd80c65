// Package chat maintains a bounded in-memory log of live chat messages by
// polling the YouTube live chat endpoint.
package chat

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/onnwee/chat-console/telemetry"
	"github.com/onnwee/chat-console/youtubeapi"
)

// Lister is the slice of the API client the poller needs.
type Lister interface {
	ListMessages(ctx context.Context, accessToken, liveChatID, pageToken string) (youtubeapi.ListPage, error)
}

// TokenSource yields the current access token for a poll or send.
type TokenSource func(ctx context.Context) (string, error)

// Poller polls one live chat and retains the most recent messages. At most
// one loop runs at a time; starting against a new chat replaces the old loop.
type Poller struct {
	api    Lister
	token  TokenSource
	logCap int
	floor  time.Duration
	dflt   time.Duration

	mu        sync.Mutex
	messages  []youtubeapi.ChatMessage
	seen      map[string]struct{}
	pageToken string
	interval  time.Duration
	running   bool
	cancel    context.CancelFunc
	done      chan struct{}
	subs      map[chan youtubeapi.ChatMessage]struct{}
}

// NewPoller builds a poller. logCap bounds the retained log; floor and dflt
// bound the poll cadence (the server's pacing hint is clamped to floor, and
// dflt applies when the server sends no hint).
func NewPoller(api Lister, token TokenSource, logCap int, floor, dflt time.Duration) *Poller {
	if logCap <= 0 {
		logCap = 200
	}
	if floor <= 0 {
		floor = time.Second
	}
	if dflt < floor {
		dflt = floor
	}
	return &Poller{
		api:    api,
		token:  token,
		logCap: logCap,
		floor:  floor,
		dflt:   dflt,
		seen:   make(map[string]struct{}),
		subs:   make(map[chan youtubeapi.ChatMessage]struct{}),
	}
}

// Start begins polling the given live chat. Any previous loop is stopped
// first and the log is cleared, since messages from the old chat are
// meaningless in the new one.
func (p *Poller) Start(ctx context.Context, liveChatID string) {
	p.Stop()

	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	p.mu.Lock()
	p.messages = nil
	p.seen = make(map[string]struct{})
	p.pageToken = ""
	p.interval = p.dflt
	p.running = true
	p.cancel = cancel
	p.done = done
	p.mu.Unlock()

	telemetry.SetPollerRunning(true)
	telemetry.SetChatLogSize(0)

	go p.loop(loopCtx, liveChatID, done)
}

// Stop halts the poll loop and waits for it to exit. Safe to call when idle.
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.running = false
	p.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	telemetry.SetPollerRunning(false)
}

// Running reports whether a poll loop is active.
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Snapshot returns a copy of the retained log, oldest first.
func (p *Poller) Snapshot() []youtubeapi.ChatMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]youtubeapi.ChatMessage, len(p.messages))
	copy(out, p.messages)
	return out
}

// Subscribe registers a listener for new messages. The returned cancel
// function must be called to release the subscription. Slow listeners drop
// messages rather than stalling the poll loop.
func (p *Poller) Subscribe() (<-chan youtubeapi.ChatMessage, func()) {
	ch := make(chan youtubeapi.ChatMessage, 64)
	p.mu.Lock()
	p.subs[ch] = struct{}{}
	p.mu.Unlock()
	return ch, func() {
		p.mu.Lock()
		delete(p.subs, ch)
		p.mu.Unlock()
	}
}

func (p *Poller) loop(ctx context.Context, liveChatID string, done chan struct{}) {
	defer close(done)
	log := slog.With(slog.String("component", "chat_poller"), slog.String("live_chat_id", liveChatID))
	log.Info("poll loop started")
	for {
		p.pollOnce(ctx, liveChatID, log)
		p.mu.Lock()
		wait := p.interval
		p.mu.Unlock()
		select {
		case <-ctx.Done():
			log.Info("poll loop stopped")
			p.clearRunning(done)
			return
		case <-time.After(wait):
		}
	}
}

// clearRunning resets the running state when the loop exits on its own, e.g.
// because the parent context was cancelled at shutdown. The done identity
// check keeps a dying loop from clobbering the state of a replacement loop
// that Start has already installed.
func (p *Poller) clearRunning(done chan struct{}) {
	p.mu.Lock()
	current := p.done == done
	if current {
		p.running = false
		p.cancel, p.done = nil, nil
	}
	p.mu.Unlock()
	if current {
		telemetry.SetPollerRunning(false)
	}
}

// pollOnce fetches one page and folds it into the log. Poll failures are
// logged and counted but never abort the loop; the next tick retries at the
// same cadence.
func (p *Poller) pollOnce(ctx context.Context, liveChatID string, log *slog.Logger) {
	tok, err := p.token(ctx)
	if err != nil {
		if ctx.Err() == nil {
			telemetry.PollsFailed.Inc()
			log.Warn("poll token lookup failed", slog.Any("err", err))
		}
		return
	}

	p.mu.Lock()
	pageToken := p.pageToken
	p.mu.Unlock()

	start := time.Now()
	page, err := p.api.ListMessages(ctx, tok, liveChatID, pageToken)
	if err != nil {
		if ctx.Err() == nil {
			telemetry.PollsFailed.Inc()
			log.Warn("poll failed", slog.Any("err", err))
		}
		return
	}
	telemetry.PollsSucceeded.Inc()
	if telemetry.PollDuration != nil {
		telemetry.PollDuration.Observe(time.Since(start).Seconds())
	}

	fresh := p.ingest(page)
	for _, msg := range fresh {
		p.broadcast(msg)
	}
}

// ingest applies paging state, dedup, and the FIFO cap, returning the
// messages that were actually new.
func (p *Poller) ingest(page youtubeapi.ListPage) []youtubeapi.ChatMessage {
	p.mu.Lock()
	defer p.mu.Unlock()

	if page.NextPageToken != "" {
		p.pageToken = page.NextPageToken
	}
	p.interval = clampInterval(page.PollingIntervalMillis, p.floor, p.dflt)

	var fresh []youtubeapi.ChatMessage
	for _, msg := range page.Items {
		if msg.ID == "" {
			continue
		}
		if _, dup := p.seen[msg.ID]; dup {
			continue
		}
		p.seen[msg.ID] = struct{}{}
		p.messages = append(p.messages, msg)
		fresh = append(fresh, msg)
	}
	for len(p.messages) > p.logCap {
		delete(p.seen, p.messages[0].ID)
		p.messages = p.messages[1:]
	}
	telemetry.SetChatLogSize(len(p.messages))
	return fresh
}

func (p *Poller) broadcast(msg youtubeapi.ChatMessage) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for ch := range p.subs {
		select {
		case ch <- msg:
		default:
		}
	}
}

func clampInterval(millis int, floor, dflt time.Duration) time.Duration {
	if millis <= 0 {
		return dflt
	}
	d := time.Duration(millis) * time.Millisecond
	if d < floor {
		return floor
	}
	return d
}
