// Package engine wires the dose pipeline together. Every way samples reach
// the system (HTTP ingest, bridge sync, the periodic refresh) funnels into
// one fan-out, so the day record, the notification gate, and the live
// session snapshot always move in lockstep.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/earguard/earguard/internal/config"
	"github.com/earguard/earguard/internal/dose"
	"github.com/earguard/earguard/internal/enrich"
	"github.com/earguard/earguard/internal/exposure"
	"github.com/earguard/earguard/internal/ingest"
	"github.com/earguard/earguard/internal/notify"
	"github.com/earguard/earguard/internal/session"
	"github.com/earguard/earguard/internal/store"
)

const (
	// insightLookback bounds the samples query behind an insight. Wider
	// than the active-listening window so samples that started well
	// before it but ran into it are still seen.
	insightLookback = 2 * time.Hour

	// sampleSkew tolerates bridge clocks running slightly ahead.
	sampleSkew = time.Minute

	// historyDays is the trailing window for the typical burn rate.
	historyDays = 7
)

// Options carries the optional engine collaborators. Zero values disable
// the optional ones and default the rest.
type Options struct {
	Sender   notify.Sender  // threshold event delivery, nil drops events after auditing
	Enricher *enrich.Client // insight phrasing service, nil serves templates
	Clock    session.Clock  // nil means the system clock
	Logger   *slog.Logger
}

// Engine owns the ingest service, the notification gate, and the session
// coordinator, and is the only component allowed to call across them.
type Engine struct {
	st       store.Store
	ingestor *ingest.Service
	gate     *notify.Gate
	sessions *session.Coordinator
	sender   notify.Sender
	enricher *enrich.Client
	loc      *time.Location
	logger   *slog.Logger
	now      func() time.Time

	mu       sync.Mutex
	settings config.Settings

	// refreshing/dirty coalesce concurrent refreshes: one runner loops
	// while others just flag that newer state may exist.
	refreshMu  sync.Mutex
	refreshing bool
	dirty      bool
}

func New(st store.Store, sets config.Settings, loc *time.Location, opts Options) *Engine {
	if loc == nil {
		loc = time.UTC
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := opts.Clock
	if clock == nil {
		clock = session.SystemClock()
	}

	e := &Engine{
		st:       st,
		sender:   opts.Sender,
		enricher: opts.Enricher,
		loc:      loc,
		logger:   logger,
		now:      time.Now,
	}
	e.ingestor = ingest.New(st, st, e.Model, e.Now, loc, logger)
	e.gate = notify.NewGate(st, logger)
	e.sessions = session.NewCoordinator(e, st, clock, logger)
	e.applySettings(sets)
	return e
}

// Close releases the session coordinator's timer. The engine must not be
// used afterwards.
func (e *Engine) Close() {
	e.sessions.Close()
}

// ----------------------------------------------------------------------------
// Settings
// ----------------------------------------------------------------------------

// Settings returns the currently applied settings.
func (e *Engine) Settings() config.Settings {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.settings
}

// Model returns the exchange-rate model currently in effect.
func (e *Engine) Model() dose.Model {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.settings.Model
}

// Now returns the engine's notion of the current time. Handlers use it so
// their "today" agrees with the engine's.
func (e *Engine) Now() time.Time {
	return e.now()
}

// ReloadSettings re-reads settings from the store and reconfigures the
// gate and the coordinator. Called after a settings write and from the
// listener when another process changes them.
func (e *Engine) ReloadSettings(ctx context.Context) config.Settings {
	sets := config.LoadSettings(ctx, e.st, e.logger)
	e.applySettings(sets)
	e.logger.Info("Engine settings applied",
		"model", sets.Model,
		"thresholds", sets.Thresholds,
		"cooldown", sets.Cooldown,
		"inactivity_timeout", sets.InactivityTimeout,
		"daily_limit_percent", sets.DailyLimitPercent)
	return sets
}

func (e *Engine) applySettings(sets config.Settings) {
	e.mu.Lock()
	e.settings = sets
	e.mu.Unlock()

	e.gate.Configure(sets.Thresholds, sets.Cooldown, sets.DailyLimitPercent, sets.Model)
	e.sessions.Configure(sets.InactivityTimeout, sets.DailyLimitPercent, sets.Model)
}

// ----------------------------------------------------------------------------
// Ingest and refresh
// ----------------------------------------------------------------------------

// Ingest runs a batch through the ingest service and, when today's record
// changed, fans the new dose out to the gate and the session coordinator.
// Historical days are recomputed silently: a backfill never fires
// notifications or starts sessions.
func (e *Engine) Ingest(ctx context.Context, batch []exposure.Sample) (ingest.Result, error) {
	result, err := e.ingestor.Ingest(ctx, batch)
	if err != nil {
		return result, err
	}
	if rec, ok := result.Records[exposure.DayOf(e.now(), e.loc)]; ok {
		e.fanOut(ctx, rec, result.LatestSampleAt)
	}
	return result, nil
}

// RefreshToday recomputes today's aggregate and fans it out. Drives the
// periodic tick that ages dose-rate figures and re-arms notifications after
// cooldowns lapse. Concurrent calls coalesce into the running refresh.
func (e *Engine) RefreshToday(ctx context.Context) error {
	e.refreshMu.Lock()
	if e.refreshing {
		e.dirty = true
		e.refreshMu.Unlock()
		return nil
	}
	e.refreshing = true
	e.refreshMu.Unlock()

	var err error
	for {
		err = e.refreshOnce(ctx)

		e.refreshMu.Lock()
		if !e.dirty {
			e.refreshing = false
			e.refreshMu.Unlock()
			return err
		}
		e.dirty = false
		e.refreshMu.Unlock()
	}
}

func (e *Engine) refreshOnce(ctx context.Context) error {
	today := exposure.DayOf(e.now(), e.loc)
	rec, err := e.ingestor.RecomputeDay(ctx, today)
	if err != nil {
		e.logger.Warn("Dose refresh skipped", "day", today.String(), "error", err)
		return err
	}
	e.fanOut(ctx, rec, nil)
	return nil
}

// RecomputeWindow rebuilds the last n day aggregates, typically after a
// model change. Recomputes never notify; the session snapshot still picks
// up today's new dose.
func (e *Engine) RecomputeWindow(ctx context.Context, days, workers int) ingest.Result {
	keys := ingest.LastNDays(e.now(), days, e.loc)
	result := e.ingestor.RecomputeDays(ctx, keys, workers)
	if rec, ok := result.Records[exposure.DayOf(e.now(), e.loc)]; ok {
		e.sessions.UpdateDose(ctx, rec.DosePercent)
	}
	return result
}

// fanOut pushes a fresh today-record through the gate and into the session
// coordinator. sampleAt is the newest sample end when the trigger was an
// ingest, nil for sample-less refreshes. Gate and delivery failures are
// logged and dropped: the samples are already committed, and the next
// fan-out re-evaluates everything from stored state.
func (e *Engine) fanOut(ctx context.Context, rec exposure.DayRecord, sampleAt *time.Time) {
	currentLevel, active := e.recentLevel(ctx)

	ev, err := e.gate.CheckAndNotify(ctx, rec.DosePercent)
	if err != nil {
		e.logger.Warn("Threshold check failed", "error", err)
	}
	e.emit(ctx, ev)

	ev, err = e.gate.CheckActionable(ctx, rec.DosePercent)
	if err != nil {
		e.logger.Warn("Actionable check failed", "error", err)
	}
	e.emit(ctx, ev)

	if active {
		ev, err = e.gate.CheckVolumeAdvice(ctx, rec.DosePercent, currentLevel)
		if err != nil {
			e.logger.Warn("Volume advice check failed", "error", err)
		}
		e.emit(ctx, ev)
	}

	if sampleAt != nil {
		e.sessions.SampleArrived(ctx, rec.DosePercent, *sampleAt)
	} else {
		e.sessions.UpdateDose(ctx, rec.DosePercent)
	}
}

// emit audits a fired event and hands it to the sender. Both halves are
// best-effort: a failed append or delivery is logged, never propagated,
// and the cooldown ledger already recorded the firing.
func (e *Engine) emit(ctx context.Context, ev *exposure.ThresholdEvent) {
	if ev == nil {
		return
	}
	if err := e.st.AppendEvent(ctx, *ev); err != nil {
		e.logger.Warn("Failed to record threshold event", "event_id", ev.ID, "error", err)
	}
	if e.sender != nil {
		if err := e.sender.Send(ctx, *ev); err != nil {
			e.logger.Warn("Notification delivery failed", "event_id", ev.ID, "error", err)
		}
	}
}

// recentLevel reports the energy-mean level of the active-listening window
// and whether there is one. A failed samples read degrades to inactive.
func (e *Engine) recentLevel(ctx context.Context) (float64, bool) {
	now := e.now()
	recent, err := e.st.SamplesBetween(ctx, now.Add(-insightLookback), now.Add(sampleSkew))
	if err != nil {
		e.logger.Warn("Recent samples unavailable", "error", err)
		return 0, false
	}
	window := dose.RecentSamples(recent, now)
	if len(window) == 0 {
		return 0, false
	}
	return dose.EnergyMeanLevel(window), true
}

// ----------------------------------------------------------------------------
// Reads
// ----------------------------------------------------------------------------

// TodayDose returns today's accumulated dose. A day without a record is
// simply zero dose, not an error.
func (e *Engine) TodayDose(ctx context.Context) (float64, error) {
	rec, err := e.st.DayRecord(ctx, exposure.DayOf(e.now(), e.loc))
	if errors.Is(err, store.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return rec.DosePercent, nil
}

// TodayOverview returns today's record together with a freshly generated
// insight, enriched when a phrasing service is configured.
func (e *Engine) TodayOverview(ctx context.Context) (exposure.DayRecord, exposure.Insight, error) {
	today := exposure.DayOf(e.now(), e.loc)
	rec, err := e.st.DayRecord(ctx, today)
	switch {
	case errors.Is(err, store.ErrNotFound):
		rec = exposure.DayRecord{Day: today, Model: string(e.Model()), UpdatedAt: e.now()}
	case err != nil:
		return exposure.DayRecord{}, exposure.Insight{}, fmt.Errorf("load today's record: %w", err)
	}

	ins := e.buildInsight(ctx, rec)
	ins = e.enricher.Decorate(ctx, ins)
	return rec, ins, nil
}

// buildInsight assembles the inputs GenerateInsight needs: the recent
// samples and the trailing typical burn rate. Either input failing to load
// degrades the insight rather than erroring the read.
func (e *Engine) buildInsight(ctx context.Context, rec exposure.DayRecord) exposure.Insight {
	now := e.now()
	recent, err := e.st.SamplesBetween(ctx, now.Add(-insightLookback), now.Add(sampleSkew))
	if err != nil {
		e.logger.Warn("Recent samples unavailable for insight", "error", err)
		recent = nil
	}

	var typical *float64
	hist, err := e.st.DayRecordsBetween(ctx, rec.Day.AddDays(-historyDays), rec.Day.AddDays(-1))
	if err != nil {
		e.logger.Warn("Dose history unavailable for insight", "error", err)
	} else {
		typical = dose.TypicalBurnRate(hist)
	}

	return dose.GenerateInsight(rec.DosePercent, recent, typical, now, e.Model())
}

// ----------------------------------------------------------------------------
// Sessions and maintenance
// ----------------------------------------------------------------------------

// StartSession begins a listening session manually. The dose is refreshed
// first so the returned snapshot is current.
func (e *Engine) StartSession(ctx context.Context) exposure.SessionSnapshot {
	_ = e.sessions.Refresh(ctx)
	return e.sessions.Start(ctx)
}

// EndSession stops the listening session manually.
func (e *Engine) EndSession(ctx context.Context) exposure.SessionSnapshot {
	return e.sessions.End(ctx)
}

// SetDeviceConnected records a device connect or disconnect.
func (e *Engine) SetDeviceConnected(ctx context.Context, connected bool) {
	e.sessions.SetConnected(ctx, connected)
}

// PruneLedger discards cooldown entries too old to suppress anything.
func (e *Engine) PruneLedger(ctx context.Context) (int64, error) {
	return e.gate.PruneStale(ctx)
}
