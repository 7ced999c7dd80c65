// Package app holds the operator session: configuration, authorization,
// stream connection, and the chat/send pipelines behind the HTTP surface.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/onnwee/chat-console/chat"
	"github.com/onnwee/chat-console/config"
	"github.com/onnwee/chat-console/db"
	"github.com/onnwee/chat-console/messages"
	"github.com/onnwee/chat-console/youtubeapi"
)

const tokenProvider = "youtube"

// kv keys for operator-editable settings.
const (
	kvClientID     = "cfg:client_id"
	kvClientSecret = "cfg:client_secret"
	kvRedirectURI  = "cfg:redirect_uri"
	kvStreamURL    = "cfg:stream_url"
	kvAuthFlow     = "cfg:auth_flow"
)

// Auth flow selectors.
const (
	FlowCode  = "code"
	FlowToken = "token"
)

var (
	// ErrMissingClientID blocks authorization until a client id is configured.
	ErrMissingClientID = errors.New("app: client id not configured")
	// ErrNotAuthorized blocks API calls until the operator has authorized.
	ErrNotAuthorized = errors.New("app: not authorized")
	// ErrBadStreamURL means no video id could be derived from the stream URL.
	ErrBadStreamURL = errors.New("app: stream url does not contain a video id")
	// ErrNotConnected blocks chat operations until a stream is resolved.
	ErrNotConnected = errors.New("app: no stream connected")
)

// AppConfig is the operator-editable portion of the configuration.
type AppConfig struct {
	ClientID     string `json:"clientId"`
	ClientSecret string `json:"clientSecret,omitempty"`
	RedirectURI  string `json:"redirectUri"`
	StreamURL    string `json:"streamUrl"`
	Flow         string `json:"flow"`
}

// Status summarizes the session for the UI.
type Status struct {
	Authorized     bool                          `json:"authorized"`
	TokenExpiresAt *time.Time                    `json:"tokenExpiresAt,omitempty"`
	Connected      bool                          `json:"connected"`
	Polling        bool                          `json:"polling"`
	Stream         *youtubeapi.LiveStreamDetails `json:"stream,omitempty"`
}

// Controller owns the session state. All mutating entry points are safe for
// concurrent use by HTTP handlers.
type Controller struct {
	cfg *config.Config
	dbx *sql.DB
	api *youtubeapi.Client

	Poller *chat.Poller
	Store  *messages.Store
	Sender *messages.Sender

	mu     sync.Mutex
	stream *youtubeapi.LiveStreamDetails
}

// NewController assembles the session over a database handle and API client.
func NewController(cfg *config.Config, dbx *sql.DB, api *youtubeapi.Client) *Controller {
	c := &Controller{cfg: cfg, dbx: dbx, api: api}
	c.Poller = chat.NewPoller(api, chat.TokenSource(c.accessToken), cfg.ChatLogCap, cfg.ChatPollFloor, cfg.ChatPollDefault)
	c.Store = messages.NewStore(dbx)
	c.Sender = messages.NewSender(api, messages.TokenSource(c.accessToken))
	return c
}

// Hydrate merges persisted setting overrides into the live configuration.
// Runs at boot so settings saved through the API survive a restart instead
// of silently reverting to the env values.
func (c *Controller) Hydrate(ctx context.Context) error {
	keys := []string{kvClientID, kvClientSecret, kvRedirectURI, kvStreamURL}
	vals := make(map[string]string, len(keys))
	for _, key := range keys {
		v, err := db.KVGet(ctx, c.dbx, key)
		if err != nil {
			return fmt.Errorf("load setting %s: %w", key, err)
		}
		vals[key] = v
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if v := vals[kvClientID]; v != "" {
		c.cfg.YTClientID = v
	}
	if v := vals[kvClientSecret]; v != "" {
		c.cfg.YTClientSecret = v
	}
	if v := vals[kvRedirectURI]; v != "" {
		c.cfg.YTRedirectURI = v
	}
	if v := vals[kvStreamURL]; v != "" {
		c.cfg.StreamURL = v
	}
	return nil
}

// LoadConfig merges stored overrides over the environment defaults.
func (c *Controller) LoadConfig(ctx context.Context) (AppConfig, error) {
	if err := c.Hydrate(ctx); err != nil {
		return AppConfig{}, err
	}
	flow, err := db.KVGet(ctx, c.dbx, kvAuthFlow)
	if err != nil {
		return AppConfig{}, fmt.Errorf("load setting %s: %w", kvAuthFlow, err)
	}
	if flow == "" {
		flow = FlowCode
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	// Secret is write-only toward the UI
	return AppConfig{
		ClientID:    c.cfg.YTClientID,
		RedirectURI: c.cfg.YTRedirectURI,
		StreamURL:   c.cfg.StreamURL,
		Flow:        flow,
	}, nil
}

// SaveConfig persists operator settings and applies them to the live session.
func (c *Controller) SaveConfig(ctx context.Context, in AppConfig) error {
	if in.Flow != "" && in.Flow != FlowCode && in.Flow != FlowToken {
		return fmt.Errorf("app: unknown auth flow %q", in.Flow)
	}
	pairs := map[string]string{
		kvClientID:    in.ClientID,
		kvRedirectURI: in.RedirectURI,
		kvStreamURL:   in.StreamURL,
		kvAuthFlow:    in.Flow,
	}
	if in.ClientSecret != "" {
		pairs[kvClientSecret] = in.ClientSecret
	}
	for key, v := range pairs {
		// An emptied field falls back to the env default on the next load.
		if v == "" {
			if err := db.KVDelete(ctx, c.dbx, key); err != nil {
				return fmt.Errorf("clear setting %s: %w", key, err)
			}
			continue
		}
		if err := db.KVSet(ctx, c.dbx, key, v); err != nil {
			return fmt.Errorf("save setting %s: %w", key, err)
		}
	}
	c.mu.Lock()
	if in.ClientID != "" {
		c.cfg.YTClientID = in.ClientID
	}
	if in.ClientSecret != "" {
		c.cfg.YTClientSecret = in.ClientSecret
	}
	if in.RedirectURI != "" {
		c.cfg.YTRedirectURI = in.RedirectURI
	}
	urlChanged := in.StreamURL != c.cfg.StreamURL
	c.cfg.StreamURL = in.StreamURL
	c.mu.Unlock()
	if urlChanged {
		// Resolved details belong to the old URL.
		c.Disconnect()
	}
	return nil
}

// OAuthReady reports whether the authorization flow can start.
func (c *Controller) OAuthReady() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cfg.YTClientID == "" {
		return ErrMissingClientID
	}
	return nil
}

// AuthCodeURL builds the consent URL for the given CSRF state.
func (c *Controller) AuthCodeURL(state string) (string, error) {
	if err := c.OAuthReady(); err != nil {
		return "", err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return youtubeapi.AuthCodeURL(c.cfg, state), nil
}

// CompleteAuth finishes the code flow: exchanges the code and stores tokens.
func (c *Controller) CompleteAuth(ctx context.Context, code string) error {
	c.mu.Lock()
	cfg := *c.cfg
	c.mu.Unlock()
	pair, err := youtubeapi.ExchangeAuthCode(ctx, &cfg, code)
	if err != nil {
		return err
	}
	return db.UpsertOAuthToken(ctx, c.dbx, tokenProvider, pair.AccessToken, pair.RefreshToken, pair.ExpiresAt, pair.Scope)
}

// AcceptTokenHandoff stores tokens obtained out-of-band via the implicit
// flow. There is no refresh token in that flow; expiry ends the session.
func (c *Controller) AcceptTokenHandoff(ctx context.Context, accessToken string, expiresIn int) error {
	if accessToken == "" {
		return errors.New("app: empty access token")
	}
	expiry := youtubeapi.ComputeExpiry(expiresIn)
	return db.UpsertOAuthToken(ctx, c.dbx, tokenProvider, accessToken, "", expiry, "")
}

// Authorized reports whether an access token is stored and when it expires.
// The refresh token does not count: a logged-out session keeps it for
// re-authorization but is not authorized.
func (c *Controller) Authorized(ctx context.Context) (bool, time.Time, error) {
	access, _, expiry, _, err := db.GetOAuthToken(ctx, c.dbx, tokenProvider)
	if err != nil {
		return false, time.Time{}, err
	}
	if access == "" {
		return false, time.Time{}, nil
	}
	return true, expiry, nil
}

// Logout clears the access token and tears down the session. The refresh
// token survives so the operator can re-authorize without a fresh consent.
func (c *Controller) Logout(ctx context.Context) error {
	c.LeaveChat()
	c.Disconnect()
	return db.ClearAccessToken(ctx, c.dbx, tokenProvider)
}

// ForgetCredentials drops the whole stored token row, refresh token
// included. The next authorization starts from a fresh consent.
func (c *Controller) ForgetCredentials(ctx context.Context) error {
	c.LeaveChat()
	c.Disconnect()
	return db.DeleteOAuthToken(ctx, c.dbx, tokenProvider)
}

// Connect resolves the configured stream URL to a live chat. It does not
// start polling; EnterChat does that once the operator opens the chat view.
// With strict set, the resolver refuses inputs that only match the loose
// 11-character scan.
func (c *Controller) Connect(ctx context.Context, strict bool) (youtubeapi.LiveStreamDetails, error) {
	c.mu.Lock()
	streamURL := c.cfg.StreamURL
	c.mu.Unlock()

	extract := youtubeapi.ExtractVideoID
	if strict {
		extract = youtubeapi.ExtractVideoIDStrict
	}
	videoID, ok := extract(streamURL)
	if !ok {
		c.Disconnect()
		return youtubeapi.LiveStreamDetails{}, ErrBadStreamURL
	}
	tok, err := c.accessToken(ctx)
	if err != nil {
		c.Disconnect()
		return youtubeapi.LiveStreamDetails{}, err
	}
	details, err := c.api.ResolveLiveChat(ctx, tok, videoID)
	if err != nil {
		c.Disconnect()
		return youtubeapi.LiveStreamDetails{}, err
	}

	c.mu.Lock()
	c.stream = &details
	c.mu.Unlock()
	slog.Info("stream connected",
		slog.String("video_id", details.VideoID),
		slog.String("live_chat_id", details.LiveChatID))
	return details, nil
}

// Disconnect forgets the resolved stream and stops any polling.
func (c *Controller) Disconnect() {
	c.LeaveChat()
	c.mu.Lock()
	c.stream = nil
	c.mu.Unlock()
}

// EnterChat starts the poll loop against the connected stream's chat.
func (c *Controller) EnterChat(ctx context.Context) error {
	chatID, err := c.liveChatID()
	if err != nil {
		return err
	}
	c.Poller.Start(ctx, chatID)
	return nil
}

// LeaveChat stops the poll loop. Safe when no loop is running.
func (c *Controller) LeaveChat() {
	c.Poller.Stop()
}

// SendSaved sends a saved message into the connected chat.
func (c *Controller) SendSaved(ctx context.Context, id int64) error {
	chatID, err := c.liveChatID()
	if err != nil {
		return err
	}
	msg, err := c.Store.Get(ctx, id)
	if err != nil {
		return err
	}
	return c.Sender.SendSaved(ctx, chatID, msg.ID, msg.Text)
}

// SendQuick sends ad-hoc text into the connected chat.
func (c *Controller) SendQuick(ctx context.Context, text string) error {
	chatID, err := c.liveChatID()
	if err != nil {
		return err
	}
	return c.Sender.SendQuick(ctx, chatID, text)
}

// Status reports the session for the UI.
func (c *Controller) Status(ctx context.Context) (Status, error) {
	authorized, expiry, err := c.Authorized(ctx)
	if err != nil {
		return Status{}, err
	}
	c.mu.Lock()
	stream := c.stream
	c.mu.Unlock()
	st := Status{
		Authorized: authorized,
		Connected:  stream != nil,
		Polling:    c.Poller.Running(),
		Stream:     stream,
	}
	if authorized && !expiry.IsZero() {
		st.TokenExpiresAt = &expiry
	}
	return st, nil
}

func (c *Controller) liveChatID() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stream == nil {
		return "", ErrNotConnected
	}
	return c.stream.LiveChatID, nil
}

// accessToken returns a usable bearer token, refreshing lazily when the
// stored one is expired and a refresh token exists.
func (c *Controller) accessToken(ctx context.Context) (string, error) {
	access, refresh, expiry, _, err := db.GetOAuthToken(ctx, c.dbx, tokenProvider)
	if err != nil {
		return "", err
	}
	if access == "" {
		// Logged out or never authorized. A surviving refresh token alone
		// does not authorize calls; the operator must log back in.
		return "", ErrNotAuthorized
	}
	if time.Now().Before(expiry) {
		return access, nil
	}
	if refresh == "" {
		return "", ErrNotAuthorized
	}
	c.mu.Lock()
	cfg := *c.cfg
	c.mu.Unlock()
	pair, err := youtubeapi.RefreshToken(ctx, &cfg, refresh)
	if err != nil {
		return "", fmt.Errorf("refresh access token: %w", err)
	}
	if err := db.UpsertOAuthToken(ctx, c.dbx, tokenProvider, pair.AccessToken, pair.RefreshToken, pair.ExpiresAt, pair.Scope); err != nil {
		return "", err
	}
	return pair.AccessToken, nil
}
