// Package maintenance runs periodic background tasks as Go tickers.
// All scheduled work is driven from Go since the engine is already a
// persistent, long-running service (required for LISTEN/NOTIFY).
package maintenance

import (
	"context"
	"log/slog"
	"time"

	"github.com/earguard/earguard/internal/store"
)

// Engine is the subset of the dose engine maintenance drives.
type Engine interface {
	// RefreshToday recomputes today's dose and re-evaluates
	// notifications.
	RefreshToday(ctx context.Context) error

	// PruneLedger discards cooldown entries too old to suppress anything.
	PruneLedger(ctx context.Context) (int64, error)
}

// Config controls maintenance task intervals. Zero duration disables a task.
type Config struct {
	RefreshInterval time.Duration // periodic dose refresh
	CleanupInterval time.Duration // ledger pruning + sample retention
	RetentionDays   int           // raw sample retention; <= 0 keeps samples forever
}

// DefaultConfig returns sensible production defaults.
func DefaultConfig() Config {
	return Config{
		RefreshInterval: time.Minute,
		CleanupInterval: 30 * time.Minute,
		RetentionDays:   365,
	}
}

// Start launches all configured maintenance tickers. Blocks until ctx is
// cancelled. Intended to be called with `go`.
func Start(ctx context.Context, eng Engine, samples store.SampleStore, cfg Config, logger *slog.Logger) {
	logger.Info("Maintenance tickers started",
		"refresh", cfg.RefreshInterval,
		"cleanup", cfg.CleanupInterval,
		"retention_days", cfg.RetentionDays)

	tickers := make([]*time.Ticker, 0, 2)
	defer func() {
		for _, t := range tickers {
			t.Stop()
		}
	}()

	// Refresh: age the dose-rate figures and re-arm notifications whose
	// cooldowns have lapsed, even when no new samples arrive.
	if cfg.RefreshInterval > 0 {
		t := time.NewTicker(cfg.RefreshInterval)
		tickers = append(tickers, t)
		go runLoop(ctx, t.C, func() { refresh(ctx, eng) })
	}

	// Cleanup: prune the cooldown ledger and enforce sample retention.
	if cfg.CleanupInterval > 0 {
		t := time.NewTicker(cfg.CleanupInterval)
		tickers = append(tickers, t)
		go runLoop(ctx, t.C, func() { cleanup(ctx, eng, samples, cfg.RetentionDays, logger) })
	}

	<-ctx.Done()
	logger.Info("Maintenance tickers stopped")
}

func runLoop(ctx context.Context, ch <-chan time.Time, fn func()) {
	for {
		select {
		case <-ch:
			fn()
		case <-ctx.Done():
			return
		}
	}
}

// --------------------------------------------------------------------------
// Task implementations
// --------------------------------------------------------------------------

// refresh is best-effort: the engine already logs a failed recompute, and
// the next tick simply tries again.
func refresh(ctx context.Context, eng Engine) {
	_ = eng.RefreshToday(ctx)
}

// cleanup prunes the cooldown ledger and raw samples past retention. Day
// records survive sample pruning: the aggregates are the permanent
// history, the raw samples only their inputs.
func cleanup(ctx context.Context, eng Engine, samples store.SampleStore, retentionDays int, logger *slog.Logger) {
	n, err := eng.PruneLedger(ctx)
	if err != nil {
		logger.Warn("Cleanup: ledger prune failed", "error", err)
	} else if n > 0 {
		logger.Info("Cleanup: pruned cooldown ledger", "count", n)
	}

	if retentionDays <= 0 {
		return
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	n, err = samples.PruneSamplesBefore(ctx, cutoff)
	if err != nil {
		logger.Warn("Cleanup: sample retention prune failed", "error", err)
	} else if n > 0 {
		logger.Info("Cleanup: pruned raw samples", "count", n, "cutoff", cutoff)
	}
}
