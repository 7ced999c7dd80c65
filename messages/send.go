package messages

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/onnwee/chat-console/telemetry"
	"github.com/onnwee/chat-console/youtubeapi"
)

// Gateway is the slice of the API client the sender needs.
type Gateway interface {
	SendMessage(ctx context.Context, accessToken, liveChatID, text string) (youtubeapi.ChatMessage, error)
}

// TokenSource yields the current access token.
type TokenSource func(ctx context.Context) (string, error)

// Sender pushes messages into a live chat and tracks per-message send state.
// Failed sends are never retried automatically; the operator decides.
type Sender struct {
	api     Gateway
	token   TokenSource
	Tracker *StatusTracker
}

// NewSender wires a sender over the given gateway and token source.
func NewSender(api Gateway, token TokenSource) *Sender {
	return &Sender{api: api, token: token, Tracker: NewStatusTracker()}
}

// SendSaved sends a saved message's text, keyed by its id in the tracker.
func (s *Sender) SendSaved(ctx context.Context, liveChatID string, id int64, text string) error {
	return s.send(ctx, liveChatID, id, text)
}

// SendQuick sends ad-hoc text under the quick-send slot.
func (s *Sender) SendQuick(ctx context.Context, liveChatID, text string) error {
	return s.send(ctx, liveChatID, QuickSlot, text)
}

func (s *Sender) send(ctx context.Context, liveChatID string, key int64, text string) error {
	if strings.TrimSpace(text) == "" {
		s.Tracker.MarkError(key, ErrEmptyText.Error())
		return ErrEmptyText
	}
	s.Tracker.MarkSending(key)

	tok, err := s.token(ctx)
	if err != nil {
		s.fail(key, liveChatID, err)
		return err
	}

	start := time.Now()
	_, err = s.api.SendMessage(ctx, tok, liveChatID, text)
	if err != nil {
		s.fail(key, liveChatID, err)
		return err
	}
	telemetry.SendsSucceeded.Inc()
	if telemetry.SendDuration != nil {
		telemetry.SendDuration.Observe(time.Since(start).Seconds())
	}
	s.Tracker.MarkSuccess(key)
	return nil
}

func (s *Sender) fail(key int64, liveChatID string, err error) {
	telemetry.SendsFailed.Inc()
	s.Tracker.MarkError(key, err.Error())
	slog.Warn("send failed",
		slog.String("component", "sender"),
		slog.String("live_chat_id", liveChatID),
		slog.Any("err", err))
}
