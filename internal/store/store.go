// Package store persists the engine's durable state: raw samples, daily
// dose aggregates, the notification cooldown ledger, the threshold-event
// audit log, live-presence snapshots, engine settings, and sync
// watermarks.
//
// Components depend on the narrow per-concern interfaces below, never on a
// concrete implementation, so tests run against Memory while the service
// runs against Postgres. Writer discipline is ownership-based: ingestion is
// the only writer of samples and day records, the gate owns the cooldown
// ledger, the coordinator owns presence snapshots.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/earguard/earguard/internal/exposure"
)

// ErrNotFound is returned for lookups of rows that do not exist.
var ErrNotFound = errors.New("not found")

// SampleStore holds immutable exposure samples keyed by external ID.
type SampleStore interface {
	// InsertSample stores a sample unless its external ID was already
	// seen. Reports whether a row was actually inserted.
	InsertSample(ctx context.Context, s exposure.Sample) (bool, error)

	// SamplesBetween returns samples with start in [from, to), ordered by
	// start ascending.
	SamplesBetween(ctx context.Context, from, to time.Time) ([]exposure.Sample, error)

	// PruneSamplesBefore removes samples that started before cutoff and
	// returns how many were removed.
	PruneSamplesBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// DoseStore holds the per-day aggregates.
type DoseStore interface {
	UpsertDayRecord(ctx context.Context, rec exposure.DayRecord) error

	// DayRecord returns the aggregate for one day, or ErrNotFound.
	DayRecord(ctx context.Context, day exposure.DayKey) (exposure.DayRecord, error)

	// DayRecordsBetween returns records for days in [from, to] inclusive,
	// ordered by day ascending. Days without a record are absent.
	DayRecordsBetween(ctx context.Context, from, to exposure.DayKey) ([]exposure.DayRecord, error)
}

// CooldownStore is the persisted notification cooldown ledger.
type CooldownStore interface {
	// LastFired returns when the key last fired, or the zero time if it
	// never has.
	LastFired(ctx context.Context, key string) (time.Time, error)

	MarkFired(ctx context.Context, key string, at time.Time) error

	// PruneCooldownsBefore discards ledger entries older than cutoff and
	// returns how many were removed.
	PruneCooldownsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// EventStore is the append-only threshold-event audit log.
type EventStore interface {
	AppendEvent(ctx context.Context, ev exposure.ThresholdEvent) error
	RecentEvents(ctx context.Context, limit int) ([]exposure.ThresholdEvent, error)
}

// PresenceStore is the shared key-value handoff store that display
// collaborators (live presence, glance widget) read snapshots from.
type PresenceStore interface {
	PutSnapshot(ctx context.Context, key string, snap exposure.SessionSnapshot) error

	// Snapshot returns the stored snapshot for key, or ErrNotFound.
	Snapshot(ctx context.Context, key string) (exposure.SessionSnapshot, error)
}

// SettingsStore holds the collaborator-adjustable engine settings.
type SettingsStore interface {
	// Setting returns the raw value for key, or ErrNotFound.
	Setting(ctx context.Context, key string) (string, error)

	PutSetting(ctx context.Context, key, value string) error

	// Settings returns all stored settings.
	Settings(ctx context.Context) (map[string]string, error)
}

// WatermarkStore tracks the last successfully-synced instant per source.
type WatermarkStore interface {
	// Watermark returns the stored watermark, or the zero time if the
	// source has never synced.
	Watermark(ctx context.Context, source string) (time.Time, error)

	SetWatermark(ctx context.Context, source string, at time.Time) error
}

// Store is the full persistence surface the service wires together.
type Store interface {
	SampleStore
	DoseStore
	CooldownStore
	EventStore
	PresenceStore
	SettingsStore
	WatermarkStore

	// HealthCheck verifies the backing store is reachable.
	HealthCheck(ctx context.Context) error

	Close()
}
