// Command reel-relay is the entrypoint for the Telegram-to-Instagram reels
// uploader bot. It:
//   - Loads configuration and initializes structured logging.
//   - Connects to Postgres and runs idempotent migrations.
//   - Starts the update dispatcher: the single authorized operator can reply
//     to a video with /upload to publish it as an Instagram clip, and rotate
//     the stored account credentials through /settings.
//   - Exposes a minimal HTTP server with /healthz, /readyz, /status, /metrics.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/onnwee/reel-relay/bot"
	"github.com/onnwee/reel-relay/config"
	"github.com/onnwee/reel-relay/db"
	"github.com/onnwee/reel-relay/instagram"
	"github.com/onnwee/reel-relay/reel"
	"github.com/onnwee/reel-relay/server"
	"github.com/onnwee/reel-relay/telegram"
	"github.com/onnwee/reel-relay/telemetry"
)

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load(".env")

	// Configure logging (level + format). Defaults: level=info, format=text.
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
		// keep default
	default:
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	var handler slog.Handler
	switch strings.ToLower(os.Getenv("LOG_FORMAT")) {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	default:
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))

	// Config
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("config invalid", slog.Any("err", err))
		os.Exit(1)
	}

	// Metrics / telemetry init
	telemetry.Init()

	// Initialize OpenTelemetry tracing (optional; requires OTEL_EXPORTER_OTLP_ENDPOINT)
	shutdown, err := telemetry.InitTracing("reel-relay", "1.0.0")
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdown()

	// DB
	database, err := db.Connect()
	if err != nil {
		slog.Error("failed to open db", slog.Any("err", err))
		os.Exit(1)
	}
	defer func() {
		if err := database.Close(); err != nil {
			slog.Error("failed to close database", slog.Any("err", err))
		}
	}()
	if err := database.Ping(); err != nil {
		slog.Error("database unreachable", slog.Any("err", err))
		os.Exit(1)
	}

	// Versioned migrations first; fall back to embedded SQL for deployments
	// without the migration files on disk.
	slog.Info("running database migrations", slog.String("component", "db_migrate"))
	if err := db.RunMigrations(database); err != nil {
		slog.Warn("versioned migrations failed, attempting fallback to embedded SQL",
			slog.Any("err", err), slog.String("component", "db_migrate"))
		if err := db.Migrate(context.Background(), database); err != nil {
			slog.Error("failed to migrate db (both versioned and embedded SQL failed)", slog.Any("err", err))
			os.Exit(1)
		}
	}

	// Root context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Wiring: Telegram client -> pipeline -> dispatcher.
	tg := &telegram.Client{BaseURL: cfg.TelegramAPIBase, Token: cfg.TelegramToken}
	creds := &db.CredentialStore{DB: database}
	sessions := reel.NewInstagramSessions(&instagram.Factory{
		Creds:   creds,
		BaseURL: cfg.InstagramAPIBase,
	})
	pipeline := &reel.Pipeline{
		Files:    tg,
		Sessions: sessions,
		DataDir:  cfg.DataDir,
	}
	b := bot.New(tg, creds, pipeline, cfg.BotOwnerID)
	b.DB = database

	// HTTP server (health/readiness/status/metrics)
	go func() {
		if err := server.Start(ctx, database, cfg.HTTPAddr); err != nil {
			slog.Error("http server exited with error", slog.Any("err", err))
		}
	}()

	slog.Info("bot is running", slog.Int64("owner_id", cfg.BotOwnerID))
	b.Run(ctx)
	slog.Info("shutting down")
}
