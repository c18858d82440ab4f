// Package notify decides when a dose crossing becomes a notification and
// delivers it. Cooldowns persist in the store keyed by notification kind,
// so a restart cannot re-fire an alert inside its quiet window.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/earguard/earguard/internal/dose"
	"github.com/earguard/earguard/internal/exposure"
	"github.com/earguard/earguard/internal/store"
)

// Cooldown keys. Threshold crossings arm one key per threshold; the
// advisory checks each arm a single class-wide key.
const (
	keyActionable   = "actionable"
	keyVolumeAdvice = "volume_advice"
)

// Volume advice tuning. Advice only fires while the dose sits in the
// band where lowering the volume still changes the outcome, and only
// when the suggested level is a meaningful drop from the current one.
const (
	adviceMinDosePercent = 60.0
	adviceHorizon        = time.Hour
	adviceMinDropDB      = 3.0
)

// staleAfterFactor times the cooldown is how long a ledger entry may idle
// before PruneStale removes it.
const staleAfterFactor = 2

func thresholdKey(t int) string {
	return fmt.Sprintf("threshold_%d", t)
}

// Gate evaluates dose changes against the armed/cooling ledger. Safe for
// concurrent use; Configure swaps the tunables at runtime.
type Gate struct {
	cooldowns store.CooldownStore
	logger    *slog.Logger
	now       func() time.Time

	mu           sync.Mutex
	thresholds   []int // ascending
	cooldown     time.Duration
	limitPercent float64
	model        dose.Model
}

func NewGate(cooldowns store.CooldownStore, logger *slog.Logger) *Gate {
	return &Gate{
		cooldowns:    cooldowns,
		logger:       logger,
		now:          time.Now,
		thresholds:   []int{50, 80, 100},
		cooldown:     time.Hour,
		limitPercent: 100,
		model:        dose.NIOSH,
	}
}

// Configure replaces the gate tunables. Existing ledger entries keep their
// timestamps; only the window length changes.
func (g *Gate) Configure(thresholds []int, cooldown time.Duration, limitPercent float64, m dose.Model) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.thresholds = append([]int(nil), thresholds...)
	g.cooldown = cooldown
	g.limitPercent = limitPercent
	g.model = m
}

func (g *Gate) snapshot() ([]int, time.Duration, float64, dose.Model) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.thresholds, g.cooldown, g.limitPercent, g.model
}

// CheckAndNotify evaluates a dose value against the thresholds. Only the
// highest crossed threshold is considered: if it is armed the gate fires
// it, and if it is cooling the whole evaluation is suppressed rather than
// falling through to a lower, less urgent threshold.
func (g *Gate) CheckAndNotify(ctx context.Context, dosePercent float64) (*exposure.ThresholdEvent, error) {
	thresholds, cooldown, _, _ := g.snapshot()

	highest := 0
	for _, t := range thresholds {
		if dosePercent >= float64(t) && t > highest {
			highest = t
		}
	}
	if highest == 0 {
		return nil, nil
	}

	return g.fire(ctx, thresholdKey(highest), cooldown, exposure.ThresholdEvent{
		Class:       exposure.EventThreshold,
		Threshold:   highest,
		DosePercent: dosePercent,
	})
}

// CheckActionable fires the take-a-break notification once the dose
// reaches the daily limit.
func (g *Gate) CheckActionable(ctx context.Context, dosePercent float64) (*exposure.ThresholdEvent, error) {
	_, cooldown, limit, _ := g.snapshot()
	if dosePercent < limit {
		return nil, nil
	}

	return g.fire(ctx, keyActionable, cooldown, exposure.ThresholdEvent{
		Class:       exposure.EventActionable,
		Threshold:   int(limit),
		DosePercent: dosePercent,
	})
}

// CheckVolumeAdvice suggests a lower listening level while the user is
// actively listening in the band below the limit. The suggestion is the
// level that would spread the remaining budget over the advice horizon;
// drops too small to matter are skipped.
func (g *Gate) CheckVolumeAdvice(ctx context.Context, dosePercent, currentLevelDB float64) (*exposure.ThresholdEvent, error) {
	_, cooldown, limit, model := g.snapshot()

	if dosePercent < adviceMinDosePercent || dosePercent >= limit {
		return nil, nil
	}
	if currentLevelDB <= 0 {
		return nil, nil
	}

	safe := dose.SafeLevelForRemainingTime(dosePercent, adviceHorizon, model)
	if safe <= 0 || currentLevelDB-safe < adviceMinDropDB {
		return nil, nil
	}

	return g.fire(ctx, keyVolumeAdvice, cooldown, exposure.ThresholdEvent{
		Class:            exposure.EventVolumeAdvice,
		DosePercent:      dosePercent,
		SuggestedLevelDB: &safe,
	})
}

// fire consults the ledger for the key and, if armed, marks it and returns
// the completed event. Marking happens before the event is handed out so a
// delivery retry storm cannot double-fire.
func (g *Gate) fire(ctx context.Context, key string, cooldown time.Duration, event exposure.ThresholdEvent) (*exposure.ThresholdEvent, error) {
	now := g.now()

	last, err := g.cooldowns.LastFired(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("read cooldown %s: %w", key, err)
	}
	if !last.IsZero() && now.Sub(last) < cooldown {
		return nil, nil
	}

	if err := g.cooldowns.MarkFired(ctx, key, now); err != nil {
		return nil, fmt.Errorf("mark cooldown %s: %w", key, err)
	}

	event.ID = uuid.NewString()
	event.FiredAt = now
	g.logger.Info("Notification gate fired",
		"key", key, "class", event.Class, "dose_percent", event.DosePercent)
	return &event, nil
}

// PruneStale drops ledger entries idle for more than twice the cooldown.
func (g *Gate) PruneStale(ctx context.Context) (int64, error) {
	_, cooldown, _, _ := g.snapshot()
	cutoff := g.now().Add(-staleAfterFactor * cooldown)
	return g.cooldowns.PruneCooldownsBefore(ctx, cutoff)
}
