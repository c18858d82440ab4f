package session

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/earguard/earguard/internal/exposure"
	"github.com/earguard/earguard/internal/store"
)

var testStart = time.Date(2026, 8, 26, 9, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --------------------------------------------------------------------------
// Fake clock
// --------------------------------------------------------------------------

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

func newFakeClock(start time.Time) *fakeClock { return &fakeClock{now: start} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, deadline: c.now.Add(d), f: f, active: true}
	c.timers = append(c.timers, t)
	return t
}

// Advance moves the clock and fires every due timer outside the lock, the
// way time.AfterFunc fires on its own goroutine.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []func()
	for _, t := range c.timers {
		if t.active && !t.deadline.After(c.now) {
			t.active = false
			due = append(due, t.f)
		}
	}
	c.mu.Unlock()

	for _, f := range due {
		f()
	}
}

type fakeTimer struct {
	clock    *fakeClock
	deadline time.Time
	f        func()
	active   bool
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	was := t.active
	t.active = false
	return was
}

func (t *fakeTimer) Reset(d time.Duration) bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	was := t.active
	t.deadline = t.clock.now.Add(d)
	t.active = true
	return was
}

// --------------------------------------------------------------------------
// Fake dose reader
// --------------------------------------------------------------------------

type fakeReader struct {
	mu   sync.Mutex
	dose float64
	err  error
}

func (r *fakeReader) TodayDose(ctx context.Context) (float64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dose, r.err
}

func (r *fakeReader) set(dose float64, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dose = dose
	r.err = err
}

// --------------------------------------------------------------------------
// Tests
// --------------------------------------------------------------------------

func newTestCoordinator(t *testing.T) (*Coordinator, *store.Memory, *fakeClock, *fakeReader) {
	t.Helper()
	m := store.NewMemory()
	t.Cleanup(m.Close)

	clock := newFakeClock(testStart)
	reader := &fakeReader{}
	c := NewCoordinator(reader, m, clock, discardLogger())
	t.Cleanup(c.Close)
	return c, m, clock, reader
}

func storedSnapshot(t *testing.T, m *store.Memory) exposure.SessionSnapshot {
	t.Helper()
	snap, err := m.Snapshot(context.Background(), exposure.SnapshotKeyLiveSession)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	return snap
}

func TestSampleStartsSession(t *testing.T) {
	c, m, clock, _ := newTestCoordinator(t)

	c.SampleArrived(context.Background(), 12.5, clock.Now())

	snap := storedSnapshot(t, m)
	if snap.Status != exposure.SessionListening {
		t.Errorf("Status = %v, want listening", snap.Status)
	}
	if snap.DosePercent != 12.5 {
		t.Errorf("DosePercent = %v, want 12.5", snap.DosePercent)
	}
	if snap.StartedAt == nil || !snap.StartedAt.Equal(testStart) {
		t.Errorf("StartedAt = %v, want %v", snap.StartedAt, testStart)
	}
	if snap.LastSampleAt == nil || !snap.LastSampleAt.Equal(testStart) {
		t.Errorf("LastSampleAt = %v, want %v", snap.LastSampleAt, testStart)
	}
	if snap.IsBreakTime {
		t.Error("IsBreakTime = true at 12.5%")
	}
}

func TestInactivityTimeoutEndsSession(t *testing.T) {
	c, m, clock, _ := newTestCoordinator(t)
	ctx := context.Background()

	c.SampleArrived(ctx, 10, clock.Now())
	if snap := storedSnapshot(t, m); snap.Status != exposure.SessionListening {
		t.Fatalf("Status = %v, want listening", snap.Status)
	}

	clock.Advance(5*time.Minute + time.Second)

	snap := storedSnapshot(t, m)
	if snap.Status != exposure.SessionEnded {
		t.Errorf("Status = %v, want ended after inactivity", snap.Status)
	}
	if snap.StartedAt == nil {
		t.Error("StartedAt cleared on end, want kept for display")
	}
}

func TestSampleResetsInactivityWindow(t *testing.T) {
	c, m, clock, _ := newTestCoordinator(t)
	ctx := context.Background()

	c.SampleArrived(ctx, 10, clock.Now())
	clock.Advance(3 * time.Minute)
	c.SampleArrived(ctx, 12, clock.Now())

	// Six minutes after the first sample, three after the second: the
	// window was pushed out, so the session survives.
	clock.Advance(3 * time.Minute)
	if snap := storedSnapshot(t, m); snap.Status != exposure.SessionListening {
		t.Fatalf("Status = %v, want still listening", snap.Status)
	}

	clock.Advance(2*time.Minute + time.Second)
	if snap := storedSnapshot(t, m); snap.Status != exposure.SessionEnded {
		t.Errorf("Status = %v, want ended", snap.Status)
	}
}

func TestStaleSampleDoesNotStartSession(t *testing.T) {
	c, m, clock, _ := newTestCoordinator(t)

	// A same-day backfill: the sample ended an hour before it arrived.
	c.SampleArrived(context.Background(), 35, clock.Now().Add(-time.Hour))

	snap := storedSnapshot(t, m)
	if snap.Status != exposure.SessionEnded {
		t.Errorf("Status = %v, want no session from a stale sample", snap.Status)
	}
	if snap.DosePercent != 35 {
		t.Errorf("DosePercent = %v, want dose still tracked", snap.DosePercent)
	}
	if snap.LastSampleAt == nil || !snap.LastSampleAt.Equal(testStart.Add(-time.Hour)) {
		t.Errorf("LastSampleAt = %v, want the backfilled time recorded", snap.LastSampleAt)
	}
}

func TestSampleAtWindowEdgeStartsSession(t *testing.T) {
	c, m, clock, _ := newTestCoordinator(t)

	// Exactly the inactivity window old still counts as live evidence.
	c.SampleArrived(context.Background(), 10, clock.Now().Add(-5*time.Minute))

	if snap := storedSnapshot(t, m); snap.Status != exposure.SessionListening {
		t.Errorf("Status = %v, want listening at the window edge", snap.Status)
	}
}

func TestDisconnectEndsSessionImmediately(t *testing.T) {
	c, m, clock, _ := newTestCoordinator(t)
	ctx := context.Background()

	c.SampleArrived(ctx, 10, clock.Now())
	c.SetConnected(ctx, false)

	if snap := storedSnapshot(t, m); snap.Status != exposure.SessionEnded {
		t.Errorf("Status = %v, want ended on disconnect", snap.Status)
	}
}

func TestSampleWhileDisconnectedDoesNotStart(t *testing.T) {
	c, m, clock, _ := newTestCoordinator(t)
	ctx := context.Background()

	c.SetConnected(ctx, false)
	c.SampleArrived(ctx, 10, clock.Now())

	snap := storedSnapshot(t, m)
	if snap.Status != exposure.SessionEnded {
		t.Errorf("Status = %v, want no session while disconnected", snap.Status)
	}
	if snap.DosePercent != 10 {
		t.Errorf("DosePercent = %v, want dose still tracked", snap.DosePercent)
	}
}

func TestReconnectAllowsNewSession(t *testing.T) {
	c, m, clock, _ := newTestCoordinator(t)
	ctx := context.Background()

	c.SetConnected(ctx, false)
	c.SampleArrived(ctx, 10, clock.Now())
	c.SetConnected(ctx, true)
	clock.Advance(time.Minute)
	c.SampleArrived(ctx, 11, clock.Now())

	snap := storedSnapshot(t, m)
	if snap.Status != exposure.SessionListening {
		t.Fatalf("Status = %v, want listening after reconnect", snap.Status)
	}
	if snap.StartedAt == nil || !snap.StartedAt.Equal(testStart.Add(time.Minute)) {
		t.Errorf("StartedAt = %v, want the post-reconnect sample", snap.StartedAt)
	}
}

func TestManualStartAndEnd(t *testing.T) {
	c, m, _, _ := newTestCoordinator(t)
	ctx := context.Background()

	snap := c.Start(ctx)
	if snap.Status != exposure.SessionListening || snap.StartedAt == nil {
		t.Fatalf("Start snapshot = %+v", snap)
	}
	if stored := storedSnapshot(t, m); stored.Status != exposure.SessionListening {
		t.Errorf("stored Status = %v, want listening", stored.Status)
	}

	snap = c.End(ctx)
	if snap.Status != exposure.SessionEnded {
		t.Fatalf("End snapshot = %+v", snap)
	}
	if stored := storedSnapshot(t, m); stored.Status != exposure.SessionEnded {
		t.Errorf("stored Status = %v, want ended", stored.Status)
	}
}

func TestManualSessionTimesOutWithoutSamples(t *testing.T) {
	c, m, clock, _ := newTestCoordinator(t)

	c.Start(context.Background())
	clock.Advance(5*time.Minute + time.Second)

	if snap := storedSnapshot(t, m); snap.Status != exposure.SessionEnded {
		t.Errorf("Status = %v, want manual session reaped by inactivity", snap.Status)
	}
}

func TestRefreshUpdatesDose(t *testing.T) {
	c, m, _, reader := newTestCoordinator(t)
	ctx := context.Background()

	reader.set(42, nil)
	if err := c.Refresh(ctx); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if snap := storedSnapshot(t, m); snap.DosePercent != 42 {
		t.Errorf("DosePercent = %v, want 42", snap.DosePercent)
	}

	// A failing read keeps the last known dose instead of zeroing it.
	reader.set(0, fmt.Errorf("store offline"))
	if err := c.Refresh(ctx); err == nil {
		t.Fatal("Refresh with failing reader: want error")
	}
	if snap := storedSnapshot(t, m); snap.DosePercent != 42 {
		t.Errorf("DosePercent = %v, want held at 42", snap.DosePercent)
	}
}

func TestBreakTimeAtLimit(t *testing.T) {
	c, m, clock, _ := newTestCoordinator(t)

	c.SampleArrived(context.Background(), 104, clock.Now())

	snap := storedSnapshot(t, m)
	if !snap.IsBreakTime {
		t.Error("IsBreakTime = false at 104%")
	}
	if snap.RemainingMinutes != 0 {
		t.Errorf("RemainingMinutes = %d, want 0 past the limit", snap.RemainingMinutes)
	}
}

func TestRemainingMinutesPositiveBelowLimit(t *testing.T) {
	c, m, clock, _ := newTestCoordinator(t)

	c.SampleArrived(context.Background(), 50, clock.Now())

	snap := storedSnapshot(t, m)
	if snap.RemainingMinutes <= 0 {
		t.Errorf("RemainingMinutes = %d, want positive at 50%%", snap.RemainingMinutes)
	}
}

func TestConfigureShortensInactivityWindow(t *testing.T) {
	c, m, clock, _ := newTestCoordinator(t)
	ctx := context.Background()

	c.SampleArrived(ctx, 10, clock.Now())
	c.Configure(time.Minute, 100, "niosh")

	clock.Advance(time.Minute + time.Second)
	if snap := storedSnapshot(t, m); snap.Status != exposure.SessionEnded {
		t.Errorf("Status = %v, want ended under shortened window", snap.Status)
	}
}
