// Command api is the EarGuard engine API server.
//
// Usage:
//
//	earguard-api
//	API_PORT=8080 earguard-api

// @title EarGuard Engine API
// @version 1.0.0
// @description Headphone exposure dose engine serving today's noise dose, safe-time projections, predictive insights, listening-session state, and the threshold event log.
// @host localhost:8000
// @BasePath /api/v1
// @schemes http https
// @contact.name EarGuard
// @license.name MIT
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"

	"github.com/earguard/earguard/internal/api"
	"github.com/earguard/earguard/internal/cache"
	"github.com/earguard/earguard/internal/config"
	"github.com/earguard/earguard/internal/engine"
	"github.com/earguard/earguard/internal/enrich"
	"github.com/earguard/earguard/internal/ingest"
	"github.com/earguard/earguard/internal/listener"
	"github.com/earguard/earguard/internal/maintenance"
	"github.com/earguard/earguard/internal/notify"
	"github.com/earguard/earguard/internal/source"
	"github.com/earguard/earguard/internal/store"

	_ "github.com/earguard/earguard/docs" // swagger docs
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	// Load .env if present
	_ = godotenv.Load(".env")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	if cfg.Debug {
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
		slog.SetDefault(logger)
	}

	// Context with signal handling
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	// Open the store. Without a database everything runs in memory, which
	// is fine for demos but loses all history on restart.
	var st store.Store
	if cfg.DatabaseURL == "" {
		logger.Warn("DATABASE_URL not set, using in-memory store (state is lost on restart)")
		st = store.NewMemory()
	} else {
		logger.Info("Connecting to database...")
		pg, err := store.Open(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			logger.Error("Failed to connect to database", "error", err)
			os.Exit(1)
		}
		st = pg
		logger.Info("Database connected")
	}
	defer st.Close()

	// Runtime settings live in the store so collaborators can adjust them
	// without a redeploy.
	sets := config.LoadSettings(ctx, st, logger)

	// Webhook delivery for threshold events (optional)
	var sender notify.Sender
	if ws := notify.NewWebhookSender(cfg.WebhookURL, logger); ws != nil {
		sender = ws
		logger.Info("Webhook delivery enabled")
	} else {
		logger.Info("Webhook delivery disabled (no NOTIFY_WEBHOOK_URL)")
	}

	// Insight phrasing service (optional)
	enricher := enrich.New(cfg.EnrichURL, logger)
	if enricher.Enabled() {
		logger.Info("Insight enrichment enabled", "url", cfg.EnrichURL)
	}

	eng := engine.New(st, sets, cfg.Location, engine.Options{
		Sender:   sender,
		Enricher: enricher,
		Logger:   logger,
	})
	defer eng.Close()

	// Bridge sync (optional). Samples pulled from the bridge go through
	// the engine so they trigger the same fan-out as pushed batches.
	var syncer *ingest.Syncer
	if cfg.SourceURL != "" {
		src := source.NewClient(cfg.SourceURL, cfg.SourceToken, cfg.SourceRequestsPerMinute, logger)
		syncer = ingest.NewSyncer(src, eng, st, cfg.SyncWindowDays, logger)
		logger.Info("Bridge sync enabled", "window_days", cfg.SyncWindowDays)

		// Cold-start backfill so today has history behind it.
		go func() {
			if _, err := syncer.FullSync(ctx, 0); err != nil {
				logger.Warn("Startup sync failed", "error", err)
			}
		}()
	} else {
		logger.Info("Bridge sync disabled (no SOURCE_BRIDGE_URL)")
	}

	// Settings LISTEN/NOTIFY consumer, so CLI edits reach this process
	if cfg.DatabaseURL != "" {
		go listener.Start(ctx, cfg.DatabaseURL, func() {
			eng.ReloadSettings(ctx)
		}, logger)
	}

	// Start maintenance tickers (dose refresh, ledger prune, retention)
	go maintenance.Start(ctx, eng, st, maintenance.Config{
		RefreshInterval: cfg.RefreshInterval,
		CleanupInterval: cfg.CleanupInterval,
		RetentionDays:   cfg.RetentionDays,
	}, logger)

	// Initialize cache
	appCache := cache.New(cfg.CacheEnabled)
	logger.Info("Cache initialized", "enabled", cfg.CacheEnabled)

	// Create router
	router := api.NewRouter(eng, st, appCache, syncer, cfg)

	// Create HTTP server
	addr := fmt.Sprintf("%s:%d", cfg.APIHost, cfg.APIPort)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	go func() {
		logger.Info("Starting EarGuard engine API",
			"addr", addr,
			"environment", cfg.Environment,
			"docs", fmt.Sprintf("http://localhost:%d/docs/", cfg.APIPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt
	<-ctx.Done()
	logger.Info("Shutting down...")

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Shutdown error", "error", err)
	}
	logger.Info("Server stopped")
}
