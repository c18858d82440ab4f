package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/earguard/earguard/internal/dose"
	"github.com/earguard/earguard/internal/exposure"
	"github.com/earguard/earguard/internal/store"
)

// sessionReferenceLevelDB is the assumed level for the remaining-minutes
// figure in the snapshot: a typical earbud listening level, not the louder
// criterion level, so the countdown matches what most users experience.
const sessionReferenceLevelDB = 80.0

// persistTimeout bounds snapshot writes triggered from the timer goroutine,
// which has no caller context.
const persistTimeout = 5 * time.Second

// DoseReader supplies the current day's dose for refreshes.
type DoseReader interface {
	TodayDose(ctx context.Context) (float64, error)
}

// Coordinator is the live-session state machine. A sample arriving while
// the device is connected starts a session; the session ends on manual
// stop, on device disconnect, or after the inactivity timeout passes with
// no samples. Every change persists a snapshot for the API to serve.
//
// Connection state defaults to connected: bridges that never report
// connect events still get sessions, and an explicit disconnect still
// ends one immediately.
type Coordinator struct {
	reader   DoseReader
	presence store.PresenceStore
	clock    Clock
	logger   *slog.Logger

	mu           sync.Mutex
	status       exposure.SessionStatus
	connected    bool
	startedAt    *time.Time
	lastSampleAt *time.Time
	lastDose     float64
	inactivity   time.Duration
	limitPercent float64
	model        dose.Model
	timer        Timer

	// persisting/dirty coalesce concurrent snapshot writes: one writer
	// loops while others just flag that newer state exists.
	persisting bool
	dirty      bool
}

func NewCoordinator(reader DoseReader, presence store.PresenceStore, clock Clock, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		reader:       reader,
		presence:     presence,
		clock:        clock,
		logger:       logger,
		status:       exposure.SessionEnded,
		connected:    true,
		inactivity:   5 * time.Minute,
		limitPercent: 100,
		model:        dose.NIOSH,
	}
}

// Configure replaces the session tunables. An active session picks up the
// new inactivity window immediately.
func (c *Coordinator) Configure(inactivity time.Duration, limitPercent float64, m dose.Model) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inactivity = inactivity
	c.limitPercent = limitPercent
	c.model = m
	if c.status == exposure.SessionListening && c.timer != nil {
		c.timer.Reset(c.inactivity)
	}
}

// SampleArrived feeds listening evidence into the machine: it refreshes
// the dose shown in the snapshot, starts a session if the device is
// connected, none is running, and the sample ended within the inactivity
// window, and pushes the inactivity deadline out.
func (c *Coordinator) SampleArrived(ctx context.Context, dosePercent float64, at time.Time) {
	c.mu.Lock()
	c.lastDose = dosePercent
	sampleAt := at
	c.lastSampleAt = &sampleAt

	started := false
	if c.connected && c.status != exposure.SessionListening &&
		c.clock.Now().Sub(sampleAt) <= c.inactivity {
		// Only evidence inside the inactivity window opens a session. A
		// same-day backfill of samples that ended hours ago updates the
		// dose above without pretending someone is listening now.
		c.status = exposure.SessionListening
		c.startedAt = &sampleAt
		started = true
	}
	if c.status == exposure.SessionListening {
		c.armTimerLocked()
	}
	c.mu.Unlock()

	if started {
		c.logger.Info("Listening session started", "at", at, "dose_percent", dosePercent)
	}
	c.persist(ctx)
}

// SetConnected records a device connection change. Disconnecting ends an
// active session immediately instead of waiting out the inactivity window.
func (c *Coordinator) SetConnected(ctx context.Context, connected bool) {
	c.mu.Lock()
	changed := c.connected != connected
	c.connected = connected
	ended := false
	if !connected && c.status == exposure.SessionListening {
		c.endLocked("disconnect")
		ended = true
	}
	c.mu.Unlock()

	if changed {
		c.logger.Debug("Device connection changed", "connected", connected)
	}
	if ended {
		c.persist(ctx)
	}
}

// Start begins a session manually, regardless of connection state, and
// returns the resulting snapshot. A no-op if one is already running.
func (c *Coordinator) Start(ctx context.Context) exposure.SessionSnapshot {
	c.mu.Lock()
	if c.status != exposure.SessionListening {
		now := c.clock.Now()
		c.status = exposure.SessionListening
		c.startedAt = &now
		c.armTimerLocked()
		c.logger.Info("Listening session started", "at", now, "manual", true)
	}
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.persist(ctx)
	return snap
}

// End stops the session manually and returns the resulting snapshot.
func (c *Coordinator) End(ctx context.Context) exposure.SessionSnapshot {
	c.mu.Lock()
	if c.status == exposure.SessionListening {
		c.endLocked("manual")
	}
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.persist(ctx)
	return snap
}

// UpdateDose rewrites the snapshot with an already-computed dose. Unlike
// SampleArrived it carries no listening evidence, so it never starts a
// session or touches the inactivity deadline.
func (c *Coordinator) UpdateDose(ctx context.Context, dosePercent float64) {
	c.mu.Lock()
	c.lastDose = dosePercent
	c.mu.Unlock()

	c.persist(ctx)
}

// Refresh re-reads today's dose and rewrites the snapshot. When the read
// fails the last known dose is kept so the snapshot degrades instead of
// lying with a zero.
func (c *Coordinator) Refresh(ctx context.Context) error {
	dosePercent, err := c.reader.TodayDose(ctx)
	if err != nil {
		c.logger.Warn("Session refresh kept last dose", "error", err)
		c.persist(ctx)
		return err
	}

	c.mu.Lock()
	c.lastDose = dosePercent
	c.mu.Unlock()

	c.persist(ctx)
	return nil
}

// Close stops the inactivity timer. The coordinator must not be used
// afterwards.
func (c *Coordinator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

// --------------------------------------------------------------------------
// Internals
// --------------------------------------------------------------------------

func (c *Coordinator) armTimerLocked() {
	if c.timer == nil {
		c.timer = c.clock.AfterFunc(c.inactivity, c.onTimeout)
		return
	}
	c.timer.Reset(c.inactivity)
}

func (c *Coordinator) endLocked(reason string) {
	c.status = exposure.SessionEnded
	if c.timer != nil {
		c.timer.Stop()
	}
	c.logger.Info("Listening session ended", "reason", reason, "dose_percent", c.lastDose)
}

// onTimeout runs on the timer goroutine. A sample racing the timer wins:
// if anything arrived inside the window the deadline is pushed out instead
// of ending the session.
func (c *Coordinator) onTimeout() {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	c.mu.Lock()
	if c.status != exposure.SessionListening {
		c.mu.Unlock()
		return
	}
	if c.lastSampleAt != nil {
		if idle := c.clock.Now().Sub(*c.lastSampleAt); idle < c.inactivity {
			c.timer.Reset(c.inactivity - idle)
			c.mu.Unlock()
			return
		}
	}
	c.endLocked("inactivity")
	c.mu.Unlock()

	c.persist(ctx)
}

func (c *Coordinator) snapshotLocked() exposure.SessionSnapshot {
	remaining := dose.RemainingSafeTime(c.lastDose, sessionReferenceLevelDB, c.model)
	return exposure.SessionSnapshot{
		DosePercent:      c.lastDose,
		RemainingMinutes: int(remaining.Minutes()),
		Status:           c.status,
		IsBreakTime:      c.lastDose >= c.limitPercent,
		StartedAt:        c.startedAt,
		LastSampleAt:     c.lastSampleAt,
		UpdatedAt:        c.clock.Now(),
	}
}

// persist writes the current snapshot. Concurrent callers coalesce: the
// first becomes the writer and loops while the dirty flag indicates newer
// state arrived mid-write. Write failures are logged and dropped; the next
// event rewrites the snapshot anyway.
func (c *Coordinator) persist(ctx context.Context) {
	c.mu.Lock()
	if c.persisting {
		c.dirty = true
		c.mu.Unlock()
		return
	}
	c.persisting = true

	for {
		snap := c.snapshotLocked()
		c.mu.Unlock()

		if err := c.presence.PutSnapshot(ctx, exposure.SnapshotKeyLiveSession, snap); err != nil {
			c.logger.Warn("Failed to persist session snapshot", "error", err)
		}

		c.mu.Lock()
		if !c.dirty {
			break
		}
		c.dirty = false
	}
	c.persisting = false
	c.mu.Unlock()
}
