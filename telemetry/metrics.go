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
	UpdatesReceived      prometheus.Counter
	UnauthorizedCommands prometheus.Counter
	UploadsStarted       prometheus.Counter
	UploadsSucceeded     prometheus.Counter
	UploadsFailed        prometheus.Counter
	DownloadsFailed      prometheus.Counter
	CredentialWrites     prometheus.Counter

	// Histograms (seconds)
	DownloadDuration prometheus.Observer
	UploadDuration   prometheus.Observer

	// Gauges
	PendingCaptureGauge prometheus.Gauge
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		UpdatesReceived = promauto.NewCounter(prometheus.CounterOpts{Name: "reel_updates_received_total", Help: "Number of Telegram updates received"})
		UnauthorizedCommands = promauto.NewCounter(prometheus.CounterOpts{Name: "reel_unauthorized_commands_total", Help: "Number of privileged commands refused for non-operator senders"})
		UploadsStarted = promauto.NewCounter(prometheus.CounterOpts{Name: "reel_uploads_started_total", Help: "Number of clip uploads started"})
		UploadsSucceeded = promauto.NewCounter(prometheus.CounterOpts{Name: "reel_uploads_succeeded_total", Help: "Number of clip uploads succeeded"})
		UploadsFailed = promauto.NewCounter(prometheus.CounterOpts{Name: "reel_uploads_failed_total", Help: "Number of clip uploads failed"})
		DownloadsFailed = promauto.NewCounter(prometheus.CounterOpts{Name: "reel_downloads_failed_total", Help: "Number of attachment downloads failed"})
		CredentialWrites = promauto.NewCounter(prometheus.CounterOpts{Name: "reel_credential_writes_total", Help: "Number of credential field writes"})
		DownloadDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "reel_download_duration_seconds", Help: "Attachment download duration seconds", Buckets: prometheus.DefBuckets})
		UploadDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "reel_upload_duration_seconds", Help: "Clip upload duration seconds", Buckets: prometheus.DefBuckets})
		PendingCaptureGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "reel_pending_captures", Help: "Number of operators with a credential capture pending"})
	})
}

// SetPendingCaptures records how many conversations currently await a value.
func SetPendingCaptures(n int) {
	if PendingCaptureGauge != nil {
		PendingCaptureGauge.Set(float64(n))
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

// GetCorrelation returns the correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	if s, ok := ctx.Value(corrKey).(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with a corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
