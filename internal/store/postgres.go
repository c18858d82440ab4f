package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/earguard/earguard/internal/exposure"
)

const (
	poolMinConns       = 2
	poolMaxConns       = 8
	poolMaxConnLife    = 30 * time.Minute
	poolMaxConnIdle    = 5 * time.Minute
	migrateConnTimeout = 10 * time.Second
)

// Postgres is the pgx-backed Store used by the running service.
type Postgres struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// Open migrates the schema and creates a validated connection pool.
// Migration runs on a plain connection before the pool exists, because the
// pool prepares statements on every new connection and Postgres validates
// them against the schema.
func Open(ctx context.Context, databaseURL string, logger *slog.Logger) (*Postgres, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if err := migrate(ctx, databaseURL); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	poolCfg.MinConns = poolMinConns
	poolCfg.MaxConns = poolMaxConns
	poolCfg.MaxConnLifetime = poolMaxConnLife
	poolCfg.MaxConnIdleTime = poolMaxConnIdle

	// Register prepared statements on every new connection.
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return registerPreparedStatements(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	logger.Info("Postgres store ready")
	return &Postgres{pool: pool, logger: logger}, nil
}

// migrate creates the schema idempotently.
func migrate(ctx context.Context, databaseURL string) error {
	ctx, cancel := context.WithTimeout(ctx, migrateConnTimeout)
	defer cancel()

	conn, err := pgx.Connect(ctx, databaseURL)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer conn.Close(ctx)

	for _, stmt := range schema {
		if _, err := conn.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("exec %.40q: %w", stmt, err)
		}
	}
	return nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS exposure_samples (
		external_id   TEXT PRIMARY KEY,
		started_at    TIMESTAMPTZ NOT NULL,
		ended_at      TIMESTAMPTZ NOT NULL,
		level_db      DOUBLE PRECISION NOT NULL,
		source_device TEXT NOT NULL DEFAULT '',
		ingested_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_exposure_samples_started_at
		ON exposure_samples (started_at)`,
	`CREATE TABLE IF NOT EXISTS daily_dose (
		day                    DATE PRIMARY KEY,
		dose_percent           DOUBLE PRECISION NOT NULL,
		total_exposure_seconds DOUBLE PRECISION NOT NULL,
		average_level_db       DOUBLE PRECISION NOT NULL,
		peak_level_db          DOUBLE PRECISION NOT NULL,
		seconds_above_85       DOUBLE PRECISION NOT NULL,
		seconds_above_90       DOUBLE PRECISION NOT NULL,
		model                  TEXT NOT NULL,
		updated_at             TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS notify_cooldowns (
		threshold_key TEXT PRIMARY KEY,
		last_fired_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS threshold_events (
		id                 TEXT PRIMARY KEY,
		class              TEXT NOT NULL,
		threshold          INTEGER NOT NULL,
		dose_percent       DOUBLE PRECISION NOT NULL,
		suggested_level_db DOUBLE PRECISION,
		fired_at           TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_threshold_events_fired_at
		ON threshold_events (fired_at DESC)`,
	`CREATE TABLE IF NOT EXISTS presence_snapshots (
		key        TEXT PRIMARY KEY,
		payload    JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS engine_settings (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS sync_watermarks (
		source         TEXT PRIMARY KEY,
		synced_through TIMESTAMPTZ NOT NULL
	)`,
	// Settings writes notify listeners (the API process, external tools)
	// so a CLI edit reaches a running engine without a restart.
	`CREATE OR REPLACE FUNCTION notify_engine_settings() RETURNS trigger AS $$
	BEGIN
		PERFORM pg_notify('engine_settings_changed', NEW.key);
		RETURN NEW;
	END;
	$$ LANGUAGE plpgsql`,
	`CREATE OR REPLACE TRIGGER engine_settings_notify
		AFTER INSERT OR UPDATE ON engine_settings
		FOR EACH ROW EXECUTE FUNCTION notify_engine_settings()`,
}

// registerPreparedStatements registers every statement the engine uses.
// Prepared statements eliminate parse overhead on the hot ingest path.
func registerPreparedStatements(ctx context.Context, conn *pgx.Conn) error {
	stmts := map[string]string{
		"health_check": "SELECT 1",

		// Samples
		"insert_sample": `INSERT INTO exposure_samples
			(external_id, started_at, ended_at, level_db, source_device)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (external_id) DO NOTHING`,
		"samples_between": `SELECT external_id, started_at, ended_at, level_db, source_device
			FROM exposure_samples
			WHERE started_at >= $1 AND started_at < $2
			ORDER BY started_at`,
		"samples_prune": "DELETE FROM exposure_samples WHERE started_at < $1",

		// Daily dose
		"upsert_day": `INSERT INTO daily_dose
			(day, dose_percent, total_exposure_seconds, average_level_db,
			 peak_level_db, seconds_above_85, seconds_above_90, model, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (day) DO UPDATE SET
				dose_percent = EXCLUDED.dose_percent,
				total_exposure_seconds = EXCLUDED.total_exposure_seconds,
				average_level_db = EXCLUDED.average_level_db,
				peak_level_db = EXCLUDED.peak_level_db,
				seconds_above_85 = EXCLUDED.seconds_above_85,
				seconds_above_90 = EXCLUDED.seconds_above_90,
				model = EXCLUDED.model,
				updated_at = EXCLUDED.updated_at`,
		"get_day": `SELECT day, dose_percent, total_exposure_seconds, average_level_db,
			peak_level_db, seconds_above_85, seconds_above_90, model, updated_at
			FROM daily_dose WHERE day = $1`,
		"days_between": `SELECT day, dose_percent, total_exposure_seconds, average_level_db,
			peak_level_db, seconds_above_85, seconds_above_90, model, updated_at
			FROM daily_dose WHERE day >= $1 AND day <= $2 ORDER BY day`,

		// Cooldown ledger
		"cooldown_get": "SELECT last_fired_at FROM notify_cooldowns WHERE threshold_key = $1",
		"cooldown_mark": `INSERT INTO notify_cooldowns (threshold_key, last_fired_at)
			VALUES ($1, $2)
			ON CONFLICT (threshold_key) DO UPDATE SET last_fired_at = EXCLUDED.last_fired_at`,
		"cooldown_prune": "DELETE FROM notify_cooldowns WHERE last_fired_at < $1",

		// Event audit log
		"event_insert": `INSERT INTO threshold_events
			(id, class, threshold, dose_percent, suggested_level_db, fired_at)
			VALUES ($1, $2, $3, $4, $5, $6)`,
		"events_recent": `SELECT id, class, threshold, dose_percent, suggested_level_db, fired_at
			FROM threshold_events ORDER BY fired_at DESC LIMIT $1`,

		// Presence handoff
		"presence_put": `INSERT INTO presence_snapshots (key, payload, updated_at)
			VALUES ($1, $2, $3)
			ON CONFLICT (key) DO UPDATE SET
				payload = EXCLUDED.payload, updated_at = EXCLUDED.updated_at`,
		"presence_get": "SELECT payload FROM presence_snapshots WHERE key = $1",

		// Settings
		"setting_get": "SELECT value FROM engine_settings WHERE key = $1",
		"setting_put": `INSERT INTO engine_settings (key, value) VALUES ($1, $2)
			ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`,
		"settings_all": "SELECT key, value FROM engine_settings",

		// Sync watermarks
		"watermark_get": "SELECT synced_through FROM sync_watermarks WHERE source = $1",
		"watermark_put": `INSERT INTO sync_watermarks (source, synced_through)
			VALUES ($1, $2)
			ON CONFLICT (source) DO UPDATE SET synced_through = EXCLUDED.synced_through`,
	}

	for name, sql := range stmts {
		if _, err := conn.Prepare(ctx, name, sql); err != nil {
			return fmt.Errorf("prepare %q: %w", name, err)
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Samples
// ---------------------------------------------------------------------------

func (p *Postgres) InsertSample(ctx context.Context, s exposure.Sample) (bool, error) {
	tag, err := p.pool.Exec(ctx, "insert_sample",
		s.ExternalID, s.Start, s.End, s.LevelDB, s.SourceDevice)
	if err != nil {
		return false, fmt.Errorf("insert sample %s: %w", s.ExternalID, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (p *Postgres) SamplesBetween(ctx context.Context, from, to time.Time) ([]exposure.Sample, error) {
	rows, err := p.pool.Query(ctx, "samples_between", from, to)
	if err != nil {
		return nil, fmt.Errorf("query samples: %w", err)
	}
	defer rows.Close()

	var out []exposure.Sample
	for rows.Next() {
		var s exposure.Sample
		if err := rows.Scan(&s.ExternalID, &s.Start, &s.End, &s.LevelDB, &s.SourceDevice); err != nil {
			return nil, fmt.Errorf("scan sample: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (p *Postgres) PruneSamplesBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := p.pool.Exec(ctx, "samples_prune", cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune samples: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ---------------------------------------------------------------------------
// Daily dose
// ---------------------------------------------------------------------------

func (p *Postgres) UpsertDayRecord(ctx context.Context, rec exposure.DayRecord) error {
	_, err := p.pool.Exec(ctx, "upsert_day",
		rec.Day.Start(time.UTC), rec.DosePercent, rec.TotalExposureSeconds,
		rec.AverageLevelDB, rec.PeakLevelDB, rec.SecondsAbove85,
		rec.SecondsAbove90, rec.Model, rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert day %s: %w", rec.Day, err)
	}
	return nil
}

func (p *Postgres) DayRecord(ctx context.Context, day exposure.DayKey) (exposure.DayRecord, error) {
	rec, err := scanDayRecord(p.pool.QueryRow(ctx, "get_day", day.Start(time.UTC)))
	if errors.Is(err, pgx.ErrNoRows) {
		return exposure.DayRecord{}, ErrNotFound
	}
	if err != nil {
		return exposure.DayRecord{}, fmt.Errorf("get day %s: %w", day, err)
	}
	return rec, nil
}

func (p *Postgres) DayRecordsBetween(ctx context.Context, from, to exposure.DayKey) ([]exposure.DayRecord, error) {
	rows, err := p.pool.Query(ctx, "days_between", from.Start(time.UTC), to.Start(time.UTC))
	if err != nil {
		return nil, fmt.Errorf("query days: %w", err)
	}
	defer rows.Close()

	var out []exposure.DayRecord
	for rows.Next() {
		rec, err := scanDayRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan day: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func scanDayRecord(row pgx.Row) (exposure.DayRecord, error) {
	var rec exposure.DayRecord
	var day time.Time
	err := row.Scan(&day, &rec.DosePercent, &rec.TotalExposureSeconds,
		&rec.AverageLevelDB, &rec.PeakLevelDB, &rec.SecondsAbove85,
		&rec.SecondsAbove90, &rec.Model, &rec.UpdatedAt)
	if err != nil {
		return exposure.DayRecord{}, err
	}
	rec.Day = exposure.DayOf(day, time.UTC)
	return rec, nil
}

// ---------------------------------------------------------------------------
// Cooldown ledger
// ---------------------------------------------------------------------------

func (p *Postgres) LastFired(ctx context.Context, key string) (time.Time, error) {
	var at time.Time
	err := p.pool.QueryRow(ctx, "cooldown_get", key).Scan(&at)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("get cooldown %s: %w", key, err)
	}
	return at, nil
}

func (p *Postgres) MarkFired(ctx context.Context, key string, at time.Time) error {
	if _, err := p.pool.Exec(ctx, "cooldown_mark", key, at); err != nil {
		return fmt.Errorf("mark cooldown %s: %w", key, err)
	}
	return nil
}

func (p *Postgres) PruneCooldownsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := p.pool.Exec(ctx, "cooldown_prune", cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune cooldowns: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ---------------------------------------------------------------------------
// Event audit log
// ---------------------------------------------------------------------------

func (p *Postgres) AppendEvent(ctx context.Context, ev exposure.ThresholdEvent) error {
	_, err := p.pool.Exec(ctx, "event_insert",
		ev.ID, string(ev.Class), ev.Threshold, ev.DosePercent, ev.SuggestedLevelDB, ev.FiredAt)
	if err != nil {
		return fmt.Errorf("append event %s: %w", ev.ID, err)
	}
	return nil
}

func (p *Postgres) RecentEvents(ctx context.Context, limit int) ([]exposure.ThresholdEvent, error) {
	rows, err := p.pool.Query(ctx, "events_recent", limit)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []exposure.ThresholdEvent
	for rows.Next() {
		var ev exposure.ThresholdEvent
		var class string
		if err := rows.Scan(&ev.ID, &class, &ev.Threshold, &ev.DosePercent,
			&ev.SuggestedLevelDB, &ev.FiredAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Class = exposure.EventClass(class)
		out = append(out, ev)
	}
	return out, rows.Err()
}

// ---------------------------------------------------------------------------
// Presence handoff
// ---------------------------------------------------------------------------

func (p *Postgres) PutSnapshot(ctx context.Context, key string, snap exposure.SessionSnapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if _, err := p.pool.Exec(ctx, "presence_put", key, payload, snap.UpdatedAt); err != nil {
		return fmt.Errorf("put snapshot %s: %w", key, err)
	}
	return nil
}

func (p *Postgres) Snapshot(ctx context.Context, key string) (exposure.SessionSnapshot, error) {
	var payload []byte
	err := p.pool.QueryRow(ctx, "presence_get", key).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return exposure.SessionSnapshot{}, ErrNotFound
	}
	if err != nil {
		return exposure.SessionSnapshot{}, fmt.Errorf("get snapshot %s: %w", key, err)
	}
	var snap exposure.SessionSnapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		return exposure.SessionSnapshot{}, fmt.Errorf("decode snapshot %s: %w", key, err)
	}
	return snap, nil
}

// ---------------------------------------------------------------------------
// Settings
// ---------------------------------------------------------------------------

func (p *Postgres) Setting(ctx context.Context, key string) (string, error) {
	var v string
	err := p.pool.QueryRow(ctx, "setting_get", key).Scan(&v)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get setting %s: %w", key, err)
	}
	return v, nil
}

func (p *Postgres) PutSetting(ctx context.Context, key, value string) error {
	if _, err := p.pool.Exec(ctx, "setting_put", key, value); err != nil {
		return fmt.Errorf("put setting %s: %w", key, err)
	}
	return nil
}

func (p *Postgres) Settings(ctx context.Context) (map[string]string, error) {
	rows, err := p.pool.Query(ctx, "settings_all")
	if err != nil {
		return nil, fmt.Errorf("query settings: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scan setting: %w", err)
		}
		out[k] = v
	}
	return out, rows.Err()
}

// ---------------------------------------------------------------------------
// Sync watermarks
// ---------------------------------------------------------------------------

func (p *Postgres) Watermark(ctx context.Context, source string) (time.Time, error) {
	var at time.Time
	err := p.pool.QueryRow(ctx, "watermark_get", source).Scan(&at)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("get watermark %s: %w", source, err)
	}
	return at, nil
}

func (p *Postgres) SetWatermark(ctx context.Context, source string, at time.Time) error {
	if _, err := p.pool.Exec(ctx, "watermark_put", source, at); err != nil {
		return fmt.Errorf("set watermark %s: %w", source, err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Lifecycle
// ---------------------------------------------------------------------------

// HealthCheck runs a trivial query to verify the database is reachable.
func (p *Postgres) HealthCheck(ctx context.Context) error {
	var n int
	return p.pool.QueryRow(ctx, "health_check").Scan(&n)
}

func (p *Postgres) Close() {
	p.pool.Close()
}
