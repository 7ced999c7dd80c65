// Package oauth keeps the stored YouTube credentials fresh in the background.
package oauth

import (
	"context"
	"database/sql"
	"log/slog"
	"math/rand"
	"time"

	"github.com/onnwee/chat-console/config"
	"github.com/onnwee/chat-console/db"
	"github.com/onnwee/chat-console/telemetry"
	"github.com/onnwee/chat-console/youtubeapi"
)

const provider = "youtube"

// Refresh window: tokens are renewed once they are within this margin of
// expiry, so API calls never race the deadline.
const expiryMargin = 10 * time.Minute

// StartRefresher runs a background loop that refreshes the stored token
// before it expires. The check interval is jittered so restarts of several
// instances do not hammer the token endpoint in lockstep. Returns immediately;
// the loop stops when ctx is cancelled.
func StartRefresher(ctx context.Context, dbx *sql.DB, cfg *config.Config, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	go func() {
		log := slog.With(slog.String("component", "oauth_refresher"))
		// Immediate first pass so a restart with a near-expired token
		// recovers without waiting a full interval.
		refreshIfNeeded(ctx, dbx, cfg, log)
		for {
			jitter := time.Duration(rand.Int63n(int64(interval / 5)))
			select {
			case <-ctx.Done():
				return
			case <-time.After(interval + jitter):
				refreshIfNeeded(ctx, dbx, cfg, log)
			}
		}
	}()
}

func refreshIfNeeded(ctx context.Context, dbx *sql.DB, cfg *config.Config, log *slog.Logger) {
	access, refresh, expiresAt, _, err := db.GetOAuthToken(ctx, dbx, provider)
	if err != nil {
		log.Error("load oauth token", slog.Any("err", err))
		return
	}
	if refresh == "" {
		// Implicit-flow handoffs have no refresh token; nothing to do
		// until the operator re-authorizes.
		return
	}
	if access == "" {
		// Logged out. The refresh token is kept for the next login, but
		// refreshing now would silently re-authorize the session.
		return
	}
	if time.Until(expiresAt) > expiryMargin {
		return
	}
	pair, err := youtubeapi.RefreshToken(ctx, cfg, refresh)
	if err != nil {
		log.Error("refresh oauth token", slog.Any("err", err))
		return
	}
	if err := db.UpsertOAuthToken(ctx, dbx, provider, pair.AccessToken, pair.RefreshToken, pair.ExpiresAt, pair.Scope); err != nil {
		log.Error("store refreshed token", slog.Any("err", err))
		return
	}
	telemetry.TokenRefreshes.Inc()
	log.Info("refreshed oauth token", slog.Time("expires_at", pair.ExpiresAt))
}
