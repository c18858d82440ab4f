package ingest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/earguard/earguard/internal/exposure"
	"github.com/earguard/earguard/internal/store"
)

type fakeSource struct {
	samples    []exposure.Sample
	err        error
	sinceCalls []time.Time
	rangeCalls []time.Time // from values
}

func (f *fakeSource) FetchRange(ctx context.Context, from, to time.Time) ([]exposure.Sample, error) {
	f.rangeCalls = append(f.rangeCalls, from)
	return f.samples, f.err
}

func (f *fakeSource) FetchSince(ctx context.Context, since time.Time) ([]exposure.Sample, error) {
	f.sinceCalls = append(f.sinceCalls, since)
	if f.err != nil {
		return nil, f.err
	}
	var out []exposure.Sample
	for _, s := range f.samples {
		if s.End.After(since) {
			out = append(out, s)
		}
	}
	return out, nil
}

func newTestSyncer(t *testing.T, src *fakeSource) (*Syncer, *store.Memory) {
	t.Helper()
	svc, m := newTestService(t)
	sy := NewSyncer(src, svc, m, 14, discardLogger())
	sy.now = func() time.Time { return testNow }
	return sy, m
}

func TestFullSyncAdvancesWatermark(t *testing.T) {
	src := &fakeSource{samples: []exposure.Sample{
		sample("a", testNow.Add(-3*time.Hour), time.Hour, 75),
		sample("b", testNow.Add(-90*time.Minute), time.Hour, 75),
	}}
	sy, m := newTestSyncer(t, src)
	ctx := context.Background()

	result, err := sy.FullSync(ctx, 0)
	if err != nil {
		t.Fatalf("FullSync: %v", err)
	}
	if result.Inserted != 2 {
		t.Errorf("Inserted = %d, want 2", result.Inserted)
	}
	if len(src.rangeCalls) != 1 {
		t.Fatalf("rangeCalls = %d, want 1", len(src.rangeCalls))
	}
	wantFrom := testNow.AddDate(0, 0, -14)
	if !src.rangeCalls[0].Equal(wantFrom) {
		t.Errorf("range from = %v, want %v", src.rangeCalls[0], wantFrom)
	}

	wm, err := m.Watermark(ctx, "samples")
	if err != nil {
		t.Fatalf("Watermark: %v", err)
	}
	if !wm.Equal(src.samples[1].End) {
		t.Errorf("watermark = %v, want newest end %v", wm, src.samples[1].End)
	}
}

func TestFullSyncWindowOverride(t *testing.T) {
	src := &fakeSource{}
	sy, _ := newTestSyncer(t, src)

	if _, err := sy.FullSync(context.Background(), 3); err != nil {
		t.Fatalf("FullSync: %v", err)
	}
	wantFrom := testNow.AddDate(0, 0, -3)
	if len(src.rangeCalls) != 1 || !src.rangeCalls[0].Equal(wantFrom) {
		t.Errorf("range from = %v, want [%v]", src.rangeCalls, wantFrom)
	}
}

func TestIncrementalSyncFetchesPastWatermark(t *testing.T) {
	wm := testNow.Add(-time.Hour)
	src := &fakeSource{samples: []exposure.Sample{
		sample("old", testNow.Add(-5*time.Hour), time.Hour, 75),
		sample("new", testNow.Add(-30*time.Minute), 20*time.Minute, 75),
	}}
	sy, m := newTestSyncer(t, src)
	ctx := context.Background()

	if err := m.SetWatermark(ctx, "samples", wm); err != nil {
		t.Fatalf("SetWatermark: %v", err)
	}

	result, err := sy.IncrementalSync(ctx)
	if err != nil {
		t.Fatalf("IncrementalSync: %v", err)
	}
	if len(src.sinceCalls) != 1 || len(src.rangeCalls) != 0 {
		t.Fatalf("calls: since=%d range=%d, want incremental only", len(src.sinceCalls), len(src.rangeCalls))
	}
	if want := wm.Add(-syncOverlap); !src.sinceCalls[0].Equal(want) {
		t.Errorf("since = %v, want %v", src.sinceCalls[0], want)
	}
	if result.Inserted != 1 {
		t.Errorf("Inserted = %d, want only the new sample", result.Inserted)
	}

	got, err := m.Watermark(ctx, "samples")
	if err != nil {
		t.Fatalf("Watermark: %v", err)
	}
	if want := src.samples[1].End; !got.Equal(want) {
		t.Errorf("watermark = %v, want %v", got, want)
	}
}

func TestIncrementalSyncFirstRunFallsBack(t *testing.T) {
	src := &fakeSource{}
	sy, _ := newTestSyncer(t, src)

	if _, err := sy.IncrementalSync(context.Background()); err != nil {
		t.Fatalf("IncrementalSync: %v", err)
	}
	if len(src.rangeCalls) != 1 || len(src.sinceCalls) != 0 {
		t.Errorf("calls: since=%d range=%d, want full-sync fallback", len(src.sinceCalls), len(src.rangeCalls))
	}
}

func TestSyncFetchErrorLeavesWatermark(t *testing.T) {
	wm := testNow.Add(-time.Hour)
	src := &fakeSource{err: fmt.Errorf("bridge unreachable")}
	sy, m := newTestSyncer(t, src)
	ctx := context.Background()

	if err := m.SetWatermark(ctx, "samples", wm); err != nil {
		t.Fatalf("SetWatermark: %v", err)
	}
	if _, err := sy.IncrementalSync(ctx); err == nil {
		t.Fatal("IncrementalSync with failing source: want error")
	}

	got, err := m.Watermark(ctx, "samples")
	if err != nil {
		t.Fatalf("Watermark: %v", err)
	}
	if !got.Equal(wm) {
		t.Errorf("watermark moved to %v on failed sync, want %v", got, wm)
	}
}
