// Package server exposes the HTTP API: auth, config, stream connection, chat
// polling, and the saved-message list used by the operator frontend. It
// includes permissive CORS for development and injects correlation IDs into
// request contexts for consistent logging.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/onnwee/chat-console/app"
	"github.com/onnwee/chat-console/telemetry"
)

// getSendEndpointPattern matches the endpoints that push messages into the
// live chat: /send and /messages/{id}/send. Those are the only routes worth
// rate limiting, since each call spends API quota.
var getSendEndpointPattern = sync.OnceValue(func() *regexp.Regexp {
	return regexp.MustCompile(`^(/send|/messages/[^/]+/send)$`)
})

// NewMux returns the HTTP handler with all routes.
// The provided context is used for rate limiter cleanup goroutines lifecycle.
func NewMux(ctx context.Context, db *sql.DB, ctrl *app.Controller) http.Handler {
	authCfg := loadAuthConfig()
	rateLimiterCfg := loadRateLimiterConfig()
	corsCfg := loadCORSConfig()

	rateLimiter := newIPRateLimiter(ctx, rateLimiterCfg)
	handlers := NewHandlers(ctx, db, ctrl)

	mux := http.NewServeMux()

	// Metrics endpoint
	mux.Handle("/metrics", promhttp.Handler())

	// OAuth endpoints
	mux.HandleFunc("/auth/youtube/start", handlers.HandleOAuthStart)
	mux.HandleFunc("/auth/youtube/callback", handlers.HandleOAuthCallback)
	mux.HandleFunc("/auth/youtube/token", handlers.HandleTokenHandoff)
	mux.HandleFunc("/auth/status", handlers.HandleAuthStatus)
	mux.HandleFunc("/auth/logout", handlers.HandleLogout)

	// Health and readiness endpoints
	mux.HandleFunc("/healthz", handlers.HandleHealthz)
	mux.HandleFunc("/readyz", handlers.HandleReadyz)

	// Config and status endpoints
	mux.HandleFunc("/config", handlers.HandleConfig)
	mux.HandleFunc("/status", handlers.HandleStatus)

	// Stream connection endpoints
	mux.HandleFunc("/connect", handlers.HandleConnect)
	mux.HandleFunc("/disconnect", handlers.HandleDisconnect)

	// Chat endpoints
	mux.HandleFunc("/chat/start", handlers.HandleChatStart)
	mux.HandleFunc("/chat/stop", handlers.HandleChatStop)
	mux.HandleFunc("/chat/messages", handlers.HandleChatMessages)
	mux.HandleFunc("/chat/stream", handlers.HandleChatStream)

	// Saved message endpoints
	mux.HandleFunc("/messages", handlers.HandleMessages)
	mux.HandleFunc("/messages/", handlers.HandleMessagesDispatcher)
	mux.HandleFunc("/send", handlers.HandleQuickSend)

	// Selective wrapper: operator auth covers everything except probes and
	// metrics; send endpoints additionally get rate limited.
	selectiveHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/healthz" || r.URL.Path == "/readyz" || r.URL.Path == "/metrics" {
			mux.ServeHTTP(w, r)
			return
		}
		if getSendEndpointPattern().MatchString(r.URL.Path) {
			operatorAuth(rateLimitMiddleware(mux, rateLimiter), authCfg).ServeHTTP(w, r)
			return
		}
		operatorAuth(mux, authCfg).ServeHTTP(w, r)
	})

	// Wrap with correlation ID injector and tracing middleware
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Reuse corr header if provided else generate
		corr := r.Header.Get("X-Correlation-ID")
		if corr == "" {
			corr = uuid.New().String()
		}
		ctx := telemetry.WithCorrelation(r.Context(), corr)
		w.Header().Set("X-Correlation-ID", corr)

		ctx, span := telemetry.StartSpan(ctx, "http-server", r.Method+" "+r.URL.Path,
			telemetry.HTTPMethodAttr(r.Method),
			telemetry.HTTPRouteAttr(r.URL.Path),
			telemetry.HTTPURLAttr(r.URL.String()),
		)
		defer span.End()

		telemetry.LoggerWithCorr(ctx).Debug("request start", slog.String("method", r.Method), slog.String("path", r.URL.Path), slog.String("component", "http"))

		// Capture status code via custom ResponseWriter
		wrappedWriter := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		selectiveHandler.ServeHTTP(wrappedWriter, r.WithContext(ctx))

		telemetry.SetSpanHTTPStatus(span, wrappedWriter.statusCode)
		if wrappedWriter.statusCode >= 400 {
			code, msg := telemetry.ErrorStatus(fmt.Sprintf("HTTP %d", wrappedWriter.statusCode))
			span.SetStatus(code, msg)
		}
	})
	return withCORSConfig(handler, corsCfg)
}

// statusRecorder wraps ResponseWriter to capture status code
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(statusCode int) {
	r.statusCode = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}

// Flush implements http.Flusher if the underlying ResponseWriter supports it
func (r *statusRecorder) Flush() {
	if flusher, ok := r.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// Start runs the HTTP server and shuts down gracefully on context cancellation.
func Start(ctx context.Context, db *sql.DB, ctrl *app.Controller, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      NewMux(ctx, db, ctrl),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 0, // SSE streams stay open indefinitely
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		// WithoutCancel inherits context values but lets shutdown complete
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("http server shutdown error", slog.Any("err", err))
		}
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("http server error", slog.Any("err", err))
		return err
	}
	return nil
}
