// Package dose implements the exchange-rate noise dose math: cumulative
// daily dose percent, remaining safe listening time, safe-level inversion,
// and the predictive insight derived from recent listening behavior.
//
// Everything here is pure: no stores, no clocks beyond explicit arguments,
// safe to call concurrently. Callers own persistence and scheduling.
package dose

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/earguard/earguard/internal/exposure"
)

// Criterion exposure: listening at 85 dB for 8 hours accumulates exactly
// 100% dose under every supported model.
const (
	CriterionLevelDB  = 85.0
	CriterionDuration = 8 * time.Hour
)

// remainingCap bounds RemainingSafeTime so quiet levels cannot overflow a
// time.Duration; a year is far beyond any display horizon.
const remainingCap = 365 * 24 * time.Hour

// ---------------------------------------------------------------------------
// Exchange-rate models
// ---------------------------------------------------------------------------

// Model selects the exchange rate: the dB increment that doubles the
// accumulated-energy rate. Configuration input, never inferred from data.
type Model string

const (
	// NIOSH is the NIOSH/WHO model: every 3 dB doubles the energy rate.
	NIOSH Model = "niosh"
	// OSHA is the more lenient occupational model: 5 dB per doubling.
	OSHA Model = "osha"
)

// ParseModel maps a configuration string to a Model. Case-insensitive.
func ParseModel(s string) (Model, error) {
	switch Model(strings.ToLower(strings.TrimSpace(s))) {
	case NIOSH:
		return NIOSH, nil
	case OSHA:
		return OSHA, nil
	default:
		return "", fmt.Errorf("unknown exchange-rate model %q", s)
	}
}

// ExchangeRateDB returns the model's dB-per-doubling. Unknown values fall
// back to the NIOSH rate so a bad setting degrades rather than halts.
func (m Model) ExchangeRateDB() float64 {
	if m == OSHA {
		return 5.0
	}
	return 3.0
}

// energyRatio is the accumulated-energy rate at levelDB relative to the
// criterion level: 2^((level-85)/exchangeRate).
func energyRatio(levelDB float64, m Model) float64 {
	return math.Exp2((levelDB - CriterionLevelDB) / m.ExchangeRateDB())
}

// ---------------------------------------------------------------------------
// Forward dose
// ---------------------------------------------------------------------------

// Percent computes the cumulative dose percent for a sample set. Each
// sample contributes duration * 2^((level-criterion)/exchangeRate),
// normalized against the criterion exposure (85 dB for 8 h = 100%).
//
// Samples are summed independently of order. Gaps between samples are not
// filled: only sampled duration counts, so sparse sampling under-counts
// exposure. That is a documented limitation of the measurement model, not
// something to interpolate away.
func Percent(samples []exposure.Sample, m Model) float64 {
	var weighted float64
	for _, s := range samples {
		d := s.Duration().Seconds()
		if d <= 0 {
			continue
		}
		weighted += d * energyRatio(s.LevelDB, m)
	}
	return 100 * weighted / CriterionDuration.Seconds()
}

// RemainingSafeTime inverts the dose formula: how much longer listening at
// a constant atLevelDB brings the dose from currentDosePercent to 100%.
// Returns zero, never negative, once the limit is reached.
func RemainingSafeTime(currentDosePercent, atLevelDB float64, m Model) time.Duration {
	if currentDosePercent >= 100 {
		return 0
	}
	remainingFraction := (100 - currentDosePercent) / 100
	seconds := remainingFraction * CriterionDuration.Seconds() / energyRatio(atLevelDB, m)
	if seconds >= remainingCap.Seconds() {
		return remainingCap
	}
	return time.Duration(seconds * float64(time.Second))
}

// SafeLevelForRemainingTime inverts on the other axis: the dB level that
// would consume exactly the remaining budget over the given additional
// listening time. Used for "lower volume by N dB" suggestions. Returns 0
// when there is no budget or no time to spread it over.
func SafeLevelForRemainingTime(currentDosePercent float64, remaining time.Duration, m Model) float64 {
	if remaining <= 0 || currentDosePercent >= 100 {
		return 0
	}
	budgetSeconds := (100 - currentDosePercent) / 100 * CriterionDuration.Seconds()
	level := CriterionLevelDB + m.ExchangeRateDB()*math.Log2(budgetSeconds/remaining.Seconds())
	if level < 0 {
		return 0
	}
	return level
}

// ---------------------------------------------------------------------------
// Daily aggregates
// ---------------------------------------------------------------------------

// EnergyMeanLevel is the duration-weighted energy mean of the sample
// levels, the LAeq-style average: two hours at 70 dB plus one minute at
// 100 dB averages near 70, not 85. Returns 0 for an empty set.
func EnergyMeanLevel(samples []exposure.Sample) float64 {
	var total, energySum float64
	for _, s := range samples {
		d := s.Duration().Seconds()
		if d <= 0 {
			continue
		}
		total += d
		energySum += d * math.Pow(10, s.LevelDB/10)
	}
	if total == 0 {
		return 0
	}
	return 10 * math.Log10(energySum/total)
}

// Summarize builds the full per-day aggregate from one day's sample set.
// Ingestion calls this on every recompute; it never patches a prior record.
func Summarize(day exposure.DayKey, samples []exposure.Sample, m Model, at time.Time) exposure.DayRecord {
	rec := exposure.DayRecord{
		Day:       day,
		Model:     string(m),
		UpdatedAt: at,
	}

	for _, s := range samples {
		d := s.Duration().Seconds()
		if d <= 0 {
			continue
		}
		rec.TotalExposureSeconds += d
		if s.LevelDB > rec.PeakLevelDB {
			rec.PeakLevelDB = s.LevelDB
		}
		if s.LevelDB >= 85 {
			rec.SecondsAbove85 += d
		}
		if s.LevelDB >= 90 {
			rec.SecondsAbove90 += d
		}
	}

	rec.DosePercent = Percent(samples, m)
	rec.AverageLevelDB = EnergyMeanLevel(samples)
	return rec
}
