// Package listener provides a Postgres LISTEN/NOTIFY consumer for settings
// changes. It holds a dedicated pgx connection (not from the pool) listening
// on the `engine_settings_changed` channel.
//
// The settings table trigger fires pg_notify on every insert or update, so
// an edit made by the CLI (or straight SQL) reaches a running engine without
// a restart.
package listener

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
)

const (
	channel          = "engine_settings_changed"
	reconnectBackoff = 5 * time.Second
	maxReconnect     = 30 * time.Second

	// debounce coalesces a burst of writes (one settings update touches
	// several keys) into a single reload.
	debounce = 250 * time.Millisecond
)

// Start opens a dedicated connection and listens on the settings channel,
// invoking onChange after each change burst. It reconnects automatically on
// connection loss. Blocks until ctx is cancelled. Intended to be called
// with `go`.
func Start(ctx context.Context, dbURL string, onChange func(), logger *slog.Logger) {
	backoff := reconnectBackoff

	for {
		err := listenLoop(ctx, dbURL, onChange, logger)
		if ctx.Err() != nil {
			logger.Info("Settings listener stopped (context cancelled)")
			return
		}

		logger.Error("Settings listener disconnected, reconnecting...",
			"error", err, "backoff", backoff)

		select {
		case <-time.After(backoff):
			backoff = min(backoff*2, maxReconnect)
		case <-ctx.Done():
			return
		}
	}
}

// listenLoop runs a single listen session. Returns when the connection drops
// or the context is cancelled.
func listenLoop(ctx context.Context, dbURL string, onChange func(), logger *slog.Logger) error {
	conn, err := pgx.Connect(ctx, dbURL)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer conn.Close(context.Background())

	if _, err := conn.Exec(ctx, "LISTEN "+channel); err != nil {
		return fmt.Errorf("LISTEN %s: %w", channel, err)
	}
	logger.Info("Settings listener connected", "channel", channel)

	var pending *time.Timer
	defer func() {
		if pending != nil {
			pending.Stop()
		}
	}()

	for {
		notification, err := conn.WaitForNotification(ctx)
		if err != nil {
			return fmt.Errorf("wait for notification: %w", err)
		}

		logger.Debug("Settings change notified", "key", notification.Payload)
		if pending == nil {
			pending = time.AfterFunc(debounce, onChange)
		} else {
			pending.Reset(debounce)
		}
	}
}
