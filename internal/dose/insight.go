package dose

import (
	"fmt"
	"math"
	"time"

	"github.com/earguard/earguard/internal/exposure"
)

const (
	// RecentWindow is how far back a sample may be and still count as
	// "actively listening".
	RecentWindow = 30 * time.Minute

	// burnEpsilon is the per-hour dose rate below which the burn rate is
	// treated as zero; no ETA is projected from it.
	burnEpsilon = 0.01
)

// Insight band boundaries in dose percent.
const (
	bandSafeBelow   = 60.0
	bandWarningFrom = 80.0
	bandDangerFrom  = 100.0
)

// GenerateInsight turns the current dose and recent listening behavior into
// a display-ready prediction.
//
// The instantaneous burn rate is the dose contributed by the recent window
// divided by the window's time span, expressed per hour. When there is no
// recent activity the typical rate (trailing 7-day average, see
// TypicalBurnRate) stands in for display, but no ETA is projected: ETA
// requires active listening and a meaningfully non-zero burn rate. The ETA
// itself is RemainingSafeTime evaluated at the constant level equivalent to
// the effective burn rate.
func GenerateInsight(currentDosePercent float64, recentSamples []exposure.Sample, typicalBurnRatePerHour *float64, now time.Time, m Model) exposure.Insight {
	window := RecentSamples(recentSamples, now)
	active := len(window) > 0

	var burn float64
	switch {
	case active:
		burn = instantaneousBurnRate(window, m)
	case typicalBurnRatePerHour != nil:
		burn = *typicalBurnRatePerHour
	}

	ins := exposure.Insight{
		Kind:                classify(currentDosePercent, burn, typicalBurnRatePerHour, active),
		DosePercent:         currentDosePercent,
		BurnRatePerHour:     burn,
		IsActivelyListening: active,
	}

	if active && burn > burnEpsilon && currentDosePercent < 100 {
		eta := RemainingSafeTime(currentDosePercent, equivalentConstantLevel(burn, m), m)
		if eta > 0 {
			limitAt := now.Add(eta)
			ins.ETAToLimit = &eta
			ins.EstimatedLimitTime = &limitAt
		}
	}

	ins.Message = message(ins.Kind, currentDosePercent, ins.ETAToLimit)
	return ins
}

// RecentSamples filters to the samples still inside the active-listening
// window ending at now.
func RecentSamples(samples []exposure.Sample, now time.Time) []exposure.Sample {
	cutoff := now.Add(-RecentWindow)
	var window []exposure.Sample
	for _, s := range samples {
		if s.End.After(cutoff) {
			window = append(window, s)
		}
	}
	return window
}

// instantaneousBurnRate is the window's dose over its time span, per hour.
// A degenerate span (all samples at one instant) falls back to the summed
// sample duration; if that is also zero the rate is zero.
func instantaneousBurnRate(window []exposure.Sample, m Model) float64 {
	windowDose := Percent(window, m)
	if windowDose <= 0 {
		return 0
	}

	minStart, maxEnd := window[0].Start, window[0].End
	var total time.Duration
	for _, s := range window {
		if s.Start.Before(minStart) {
			minStart = s.Start
		}
		if s.End.After(maxEnd) {
			maxEnd = s.End
		}
		total += s.Duration()
	}
	span := maxEnd.Sub(minStart)
	if span <= 0 {
		span = total
	}
	if span <= 0 {
		return 0
	}
	return windowDose * float64(time.Hour) / float64(span)
}

// equivalentConstantLevel is the dB level at which constant listening
// accumulates dose at ratePerHour. One hour at the criterion level is
// 12.5% dose, so the energy ratio is rate/12.5.
func equivalentConstantLevel(ratePerHour float64, m Model) float64 {
	criterionRatePerHour := 100 * time.Hour.Seconds() / CriterionDuration.Seconds()
	return CriterionLevelDB + m.ExchangeRateDB()*math.Log2(ratePerHour/criterionRatePerHour)
}

// classify picks the insight band. Inactivity overrides every dose band;
// within 60-80 a clearly easing burn rate reads as "recovering" rather
// than warning.
func classify(dosePercent, burn float64, typical *float64, active bool) exposure.InsightKind {
	switch {
	case !active:
		return exposure.InsightInactive
	case dosePercent >= bandDangerFrom:
		return exposure.InsightDanger
	case dosePercent >= bandWarningFrom:
		return exposure.InsightWarning
	case dosePercent >= bandSafeBelow:
		if improving(burn, typical) {
			return exposure.InsightRecovering
		}
		return exposure.InsightWarning
	default:
		return exposure.InsightSafe
	}
}

// improving reports whether the effective burn rate is clearly below the
// user's typical rate (or effectively zero).
func improving(burn float64, typical *float64) bool {
	if burn <= burnEpsilon {
		return true
	}
	return typical != nil && *typical > 0 && burn < *typical/2
}

func message(kind exposure.InsightKind, dosePercent float64, eta *time.Duration) string {
	switch kind {
	case exposure.InsightInactive:
		return "No recent listening activity."
	case exposure.InsightDanger:
		return fmt.Sprintf("Daily sound allowance exceeded (%.0f%%). Give your ears a break.", dosePercent)
	case exposure.InsightWarning:
		if eta != nil {
			return fmt.Sprintf("%.0f%% of today's sound allowance used. At this rate you reach the limit in %s.",
				dosePercent, formatETA(*eta))
		}
		return fmt.Sprintf("%.0f%% of today's sound allowance used.", dosePercent)
	case exposure.InsightRecovering:
		return fmt.Sprintf("Listening has eased off at %.0f%% of today's allowance.", dosePercent)
	default:
		return fmt.Sprintf("Listening level is safe. %.0f%% of today's allowance used.", dosePercent)
	}
}

func formatETA(d time.Duration) string {
	if d < time.Minute {
		return "under a minute"
	}
	d = d.Round(time.Minute)
	h := d / time.Hour
	min := (d % time.Hour) / time.Minute
	if h == 0 {
		return fmt.Sprintf("%dm", min)
	}
	return fmt.Sprintf("%dh%02dm", h, min)
}

// ---------------------------------------------------------------------------
// Historical burn rate
// ---------------------------------------------------------------------------

// TypicalBurnRate is the trailing historical average burn rate: total dose
// across the records divided by total listening hours. Nil when there is no
// listening history to average over.
func TypicalBurnRate(records []exposure.DayRecord) *float64 {
	var dose, seconds float64
	for _, r := range records {
		dose += r.DosePercent
		seconds += r.TotalExposureSeconds
	}
	if seconds <= 0 {
		return nil
	}
	rate := dose / (seconds / time.Hour.Seconds())
	return &rate
}
