package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/earguard/earguard/internal/exposure"
)

var testBase = time.Date(2026, 8, 26, 8, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *Memory {
	t.Helper()
	m := NewMemory()
	t.Cleanup(m.Close)
	return m
}

func testSample(id string, offset, dur time.Duration, levelDB float64) exposure.Sample {
	start := testBase.Add(offset)
	return exposure.Sample{
		ExternalID: id,
		Start:      start,
		End:        start.Add(dur),
		LevelDB:    levelDB,
	}
}

// ============================================================
// Samples
// ============================================================

func TestInsertSampleDeduplicates(t *testing.T) {
	m := newTestStore(t)
	ctx := context.Background()
	s := testSample("s1", 0, time.Minute, 80)

	inserted, err := m.InsertSample(ctx, s)
	if err != nil || !inserted {
		t.Fatalf("first insert = %v, %v; want true, nil", inserted, err)
	}

	inserted, err = m.InsertSample(ctx, s)
	if err != nil {
		t.Fatalf("duplicate insert error: %v", err)
	}
	if inserted {
		t.Fatal("duplicate external_id was inserted")
	}
}

func TestSamplesBetweenOrdersAndBounds(t *testing.T) {
	m := newTestStore(t)
	ctx := context.Background()

	for _, s := range []exposure.Sample{
		testSample("c", 2*time.Hour, time.Minute, 70),
		testSample("a", 0, time.Minute, 70),
		testSample("b", time.Hour, time.Minute, 70),
		testSample("out", 26*time.Hour, time.Minute, 70),
	} {
		if _, err := m.InsertSample(ctx, s); err != nil {
			t.Fatal(err)
		}
	}

	got, err := m.SamplesBetween(ctx, testBase, testBase.Add(24*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d samples, want 3", len(got))
	}
	for i, want := range []string{"a", "b", "c"} {
		if got[i].ExternalID != want {
			t.Fatalf("position %d = %s, want %s", i, got[i].ExternalID, want)
		}
	}
}

func TestPruneSamplesBefore(t *testing.T) {
	m := newTestStore(t)
	ctx := context.Background()

	m.InsertSample(ctx, testSample("old", -48*time.Hour, time.Minute, 70))
	m.InsertSample(ctx, testSample("new", 0, time.Minute, 70))

	n, err := m.PruneSamplesBefore(ctx, testBase.Add(-24*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("pruned %d, want 1", n)
	}

	got, _ := m.SamplesBetween(ctx, testBase.Add(-72*time.Hour), testBase.Add(time.Hour))
	if len(got) != 1 || got[0].ExternalID != "new" {
		t.Fatalf("remaining samples = %v", got)
	}
}

// ============================================================
// Daily dose
// ============================================================

func TestDayRecordRoundTrip(t *testing.T) {
	m := newTestStore(t)
	ctx := context.Background()
	day := exposure.DayKey{Year: 2026, Month: 8, Day: 26}

	if _, err := m.DayRecord(ctx, day); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing day error = %v, want ErrNotFound", err)
	}

	rec := exposure.DayRecord{Day: day, DosePercent: 42.5, Model: "niosh", UpdatedAt: testBase}
	if err := m.UpsertDayRecord(ctx, rec); err != nil {
		t.Fatal(err)
	}

	got, err := m.DayRecord(ctx, day)
	if err != nil {
		t.Fatal(err)
	}
	if got.DosePercent != 42.5 {
		t.Fatalf("dose = %v, want 42.5", got.DosePercent)
	}

	// Upsert replaces.
	rec.DosePercent = 55
	if err := m.UpsertDayRecord(ctx, rec); err != nil {
		t.Fatal(err)
	}
	got, _ = m.DayRecord(ctx, day)
	if got.DosePercent != 55 {
		t.Fatalf("dose after upsert = %v, want 55", got.DosePercent)
	}
}

func TestDayRecordsBetweenInclusive(t *testing.T) {
	m := newTestStore(t)
	ctx := context.Background()

	for d := 20; d <= 28; d += 2 {
		day := exposure.DayKey{Year: 2026, Month: 8, Day: d}
		m.UpsertDayRecord(ctx, exposure.DayRecord{Day: day, DosePercent: float64(d)})
	}

	got, err := m.DayRecordsBetween(ctx,
		exposure.DayKey{Year: 2026, Month: 8, Day: 22},
		exposure.DayKey{Year: 2026, Month: 8, Day: 26})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d records, want 3", len(got))
	}
	for i, want := range []int{22, 24, 26} {
		if got[i].Day.Day != want {
			t.Fatalf("position %d day = %d, want %d", i, got[i].Day.Day, want)
		}
	}
}

// ============================================================
// Cooldown ledger
// ============================================================

func TestCooldownLedger(t *testing.T) {
	m := newTestStore(t)
	ctx := context.Background()

	at, err := m.LastFired(ctx, "80")
	if err != nil {
		t.Fatal(err)
	}
	if !at.IsZero() {
		t.Fatalf("unfired key last fired = %v, want zero", at)
	}

	if err := m.MarkFired(ctx, "80", testBase); err != nil {
		t.Fatal(err)
	}
	at, _ = m.LastFired(ctx, "80")
	if !at.Equal(testBase) {
		t.Fatalf("last fired = %v, want %v", at, testBase)
	}

	m.MarkFired(ctx, "stale", testBase.Add(-5*time.Hour))
	n, err := m.PruneCooldownsBefore(ctx, testBase.Add(-2*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("pruned %d, want 1", n)
	}
	at, _ = m.LastFired(ctx, "80")
	if at.IsZero() {
		t.Fatal("recent entry was pruned")
	}
}

// ============================================================
// Events, presence, settings, watermarks
// ============================================================

func TestRecentEventsNewestFirst(t *testing.T) {
	m := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		m.AppendEvent(ctx, exposure.ThresholdEvent{
			ID:      string(rune('a' + i)),
			Class:   exposure.EventThreshold,
			FiredAt: testBase.Add(time.Duration(i) * time.Minute),
		})
	}

	got, err := m.RecentEvents(ctx, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d events, want 3", len(got))
	}
	if got[0].ID != "e" || got[2].ID != "c" {
		t.Fatalf("events out of order: %v, %v", got[0].ID, got[2].ID)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	m := newTestStore(t)
	ctx := context.Background()

	if _, err := m.Snapshot(ctx, exposure.SnapshotKeyLiveSession); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing snapshot error = %v, want ErrNotFound", err)
	}

	snap := exposure.SessionSnapshot{
		DosePercent:      33,
		RemainingMinutes: 120,
		Status:           exposure.SessionListening,
		UpdatedAt:        testBase,
	}
	if err := m.PutSnapshot(ctx, exposure.SnapshotKeyLiveSession, snap); err != nil {
		t.Fatal(err)
	}

	got, err := m.Snapshot(ctx, exposure.SnapshotKeyLiveSession)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != exposure.SessionListening || got.RemainingMinutes != 120 {
		t.Fatalf("snapshot = %+v", got)
	}
}

func TestSettings(t *testing.T) {
	m := newTestStore(t)
	ctx := context.Background()

	if _, err := m.Setting(ctx, "exchange_model"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing setting error = %v, want ErrNotFound", err)
	}

	m.PutSetting(ctx, "exchange_model", "osha")
	m.PutSetting(ctx, "thresholds", "50,80,100")

	v, err := m.Setting(ctx, "exchange_model")
	if err != nil || v != "osha" {
		t.Fatalf("setting = %q, %v", v, err)
	}

	all, err := m.Settings(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Fatalf("got %d settings, want 2", len(all))
	}
}

func TestWatermark(t *testing.T) {
	m := newTestStore(t)
	ctx := context.Background()

	at, err := m.Watermark(ctx, "bridge")
	if err != nil {
		t.Fatal(err)
	}
	if !at.IsZero() {
		t.Fatalf("never-synced watermark = %v, want zero", at)
	}

	m.SetWatermark(ctx, "bridge", testBase)
	at, _ = m.Watermark(ctx, "bridge")
	if !at.Equal(testBase) {
		t.Fatalf("watermark = %v, want %v", at, testBase)
	}
}
