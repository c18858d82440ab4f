package maintenance

import (
	"context"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/earguard/earguard/internal/exposure"
	"github.com/earguard/earguard/internal/store"
)

type fakeEngine struct {
	refreshes atomic.Int64
	prunes    atomic.Int64
}

func (f *fakeEngine) RefreshToday(context.Context) error {
	f.refreshes.Add(1)
	return nil
}

func (f *fakeEngine) PruneLedger(context.Context) (int64, error) {
	f.prunes.Add(1)
	return 0, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discard{}, nil))
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

func TestStartRunsTickersUntilCancelled(t *testing.T) {
	eng := &fakeEngine{}
	st := store.NewMemory()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		Start(ctx, eng, st, Config{
			RefreshInterval: 5 * time.Millisecond,
			CleanupInterval: 5 * time.Millisecond,
			RetentionDays:   365,
		}, discardLogger())
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for eng.refreshes.Load() == 0 || eng.prunes.Load() == 0 {
		select {
		case <-deadline:
			t.Fatalf("tickers never fired: refreshes=%d prunes=%d",
				eng.refreshes.Load(), eng.prunes.Load())
		case <-time.After(time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Start did not return after cancel")
	}
}

func TestZeroIntervalDisablesTask(t *testing.T) {
	eng := &fakeEngine{}
	st := store.NewMemory()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		Start(ctx, eng, st, Config{
			RefreshInterval: 0,
			CleanupInterval: 5 * time.Millisecond,
		}, discardLogger())
		close(done)
	}()

	for eng.prunes.Load() == 0 {
		time.Sleep(time.Millisecond)
	}
	cancel()
	<-done

	if n := eng.refreshes.Load(); n != 0 {
		t.Errorf("refreshes = %d with zero interval, want 0", n)
	}
}

func TestCleanupEnforcesRetention(t *testing.T) {
	ctx := context.Background()
	eng := &fakeEngine{}
	st := store.NewMemory()

	old := time.Now().AddDate(0, 0, -400)
	recent := time.Now().Add(-time.Hour)
	for _, s := range []exposure.Sample{
		{ExternalID: "old", Start: old, End: old.Add(time.Minute), LevelDB: 80},
		{ExternalID: "recent", Start: recent, End: recent.Add(time.Minute), LevelDB: 80},
	} {
		if _, err := st.InsertSample(ctx, s); err != nil {
			t.Fatalf("InsertSample: %v", err)
		}
	}

	cleanup(ctx, eng, st, 365, discardLogger())

	kept, err := st.SamplesBetween(ctx, time.Now().AddDate(0, 0, -500), time.Now())
	if err != nil {
		t.Fatalf("SamplesBetween: %v", err)
	}
	if len(kept) != 1 || kept[0].ExternalID != "recent" {
		t.Fatalf("retention kept %d samples, want only the recent one", len(kept))
	}
	if eng.prunes.Load() != 1 {
		t.Errorf("ledger prune calls = %d, want 1", eng.prunes.Load())
	}
}

func TestCleanupSkipsRetentionWhenDisabled(t *testing.T) {
	ctx := context.Background()
	eng := &fakeEngine{}
	st := store.NewMemory()

	old := time.Now().AddDate(0, 0, -400)
	if _, err := st.InsertSample(ctx, exposure.Sample{
		ExternalID: "old", Start: old, End: old.Add(time.Minute), LevelDB: 80,
	}); err != nil {
		t.Fatalf("InsertSample: %v", err)
	}

	cleanup(ctx, eng, st, 0, discardLogger())

	kept, err := st.SamplesBetween(ctx, time.Now().AddDate(0, 0, -500), time.Now())
	if err != nil {
		t.Fatalf("SamplesBetween: %v", err)
	}
	if len(kept) != 1 {
		t.Fatalf("samples pruned with retention disabled: kept %d, want 1", len(kept))
	}
}
