// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	PollsSucceeded prometheus.Counter
	PollsFailed    prometheus.Counter
	SendsSucceeded prometheus.Counter
	SendsFailed    prometheus.Counter
	TokenRefreshes prometheus.Counter

	// Histograms (seconds)
	PollDuration prometheus.Observer
	SendDuration prometheus.Observer

	// Gauges
	ChatLogSizeGauge   prometheus.Gauge
	PollerRunningGauge prometheus.Gauge // 1=polling,0=idle
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		PollsSucceeded = promauto.NewCounter(prometheus.CounterOpts{Name: "chat_polls_succeeded_total", Help: "Number of chat polls that succeeded"})
		PollsFailed = promauto.NewCounter(prometheus.CounterOpts{Name: "chat_polls_failed_total", Help: "Number of chat polls that failed"})
		SendsSucceeded = promauto.NewCounter(prometheus.CounterOpts{Name: "chat_sends_succeeded_total", Help: "Number of chat message sends that succeeded"})
		SendsFailed = promauto.NewCounter(prometheus.CounterOpts{Name: "chat_sends_failed_total", Help: "Number of chat message sends that failed"})
		TokenRefreshes = promauto.NewCounter(prometheus.CounterOpts{Name: "oauth_token_refreshes_total", Help: "Number of background OAuth token refreshes"})
		PollDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "chat_poll_duration_seconds", Help: "Chat poll duration seconds", Buckets: prometheus.DefBuckets})
		SendDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "chat_send_duration_seconds", Help: "Chat send duration seconds", Buckets: prometheus.DefBuckets})
		ChatLogSizeGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "chat_log_size", Help: "Messages currently retained in the chat log"})
		PollerRunningGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "chat_poller_running", Help: "Chat poller active=1 idle=0"})
	})
}

// SetChatLogSize records the current retained message count.
func SetChatLogSize(n int) {
	if ChatLogSizeGauge != nil {
		ChatLogSizeGauge.Set(float64(n))
	}
}

// SetPollerRunning sets the poller gauge to 1 if running else 0.
func SetPollerRunning(running bool) {
	if PollerRunningGauge != nil {
		if running {
			PollerRunningGauge.Set(1)
		} else {
			PollerRunningGauge.Set(0)
		}
	}
}

// TimeFunc measures the duration of fn and records in observer if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding the correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	if s, ok := ctx.Value(corrKey).(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
