// Package exposure defines the canonical data types the engine operates on.
// These structs are the contract between source adapters, the stores, and
// the dose/notification/session components: adapters normalize platform
// measurements into these, everything downstream consumes them.
//
// Adding a new measurement source means producing these types. The stores
// and the dose math never change.
package exposure

import (
	"fmt"
	"math"
	"time"
)

// ---------------------------------------------------------------------------
// Samples
// ---------------------------------------------------------------------------

// Sample is one immutable headphone loudness measurement interval.
// ExternalID is the source's globally unique identifier and is the sole
// deduplication key: a sample with an already-seen ExternalID is ignored.
type Sample struct {
	ExternalID   string    `json:"external_id"`
	Start        time.Time `json:"start"`
	End          time.Time `json:"end"`
	LevelDB      float64   `json:"level_db"`
	SourceDevice string    `json:"source_device,omitempty"`
}

// Duration is the sampled interval length.
func (s Sample) Duration() time.Duration {
	return s.End.Sub(s.Start)
}

// Validate reports why a sample is malformed, or nil. Rejections here are
// input errors: the batch they arrived in continues without them.
func (s Sample) Validate() error {
	if s.ExternalID == "" {
		return fmt.Errorf("sample missing external_id")
	}
	if s.Start.IsZero() || s.End.IsZero() {
		return fmt.Errorf("sample %s missing timestamps", s.ExternalID)
	}
	if s.End.Before(s.Start) {
		return fmt.Errorf("sample %s ends before it starts (%s < %s)",
			s.ExternalID, s.End.Format(time.RFC3339), s.Start.Format(time.RFC3339))
	}
	if math.IsNaN(s.LevelDB) || math.IsInf(s.LevelDB, 0) {
		return fmt.Errorf("sample %s has non-finite level", s.ExternalID)
	}
	if s.LevelDB < 0 || s.LevelDB > 140 {
		return fmt.Errorf("sample %s level %.1f dB outside 0-140", s.ExternalID, s.LevelDB)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Calendar days
// ---------------------------------------------------------------------------

// DayKey identifies one calendar day in the engine's configured time zone.
// Comparable, so usable as a map key.
type DayKey struct {
	Year  int        `json:"year"`
	Month time.Month `json:"month"`
	Day   int        `json:"day"`
}

// DayOf resolves the calendar day containing t in loc. Samples spanning
// midnight accrue to the day of their start instant.
func DayOf(t time.Time, loc *time.Location) DayKey {
	y, m, d := t.In(loc).Date()
	return DayKey{Year: y, Month: m, Day: d}
}

// Start returns midnight at the beginning of the day in loc.
func (k DayKey) Start(loc *time.Location) time.Time {
	return time.Date(k.Year, k.Month, k.Day, 0, 0, 0, 0, loc)
}

// Next returns the following calendar day.
func (k DayKey) Next() DayKey {
	return DayOf(k.Start(time.UTC).AddDate(0, 0, 1), time.UTC)
}

// AddDays returns the day n calendar days after k (n may be negative).
func (k DayKey) AddDays(n int) DayKey {
	return DayOf(k.Start(time.UTC).AddDate(0, 0, n), time.UTC)
}

// Before reports whether k is an earlier calendar day than other.
func (k DayKey) Before(other DayKey) bool {
	if k.Year != other.Year {
		return k.Year < other.Year
	}
	if k.Month != other.Month {
		return k.Month < other.Month
	}
	return k.Day < other.Day
}

// String formats the day as ISO 8601, e.g. "2026-08-26".
func (k DayKey) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", k.Year, int(k.Month), k.Day)
}

// ---------------------------------------------------------------------------
// Daily aggregates
// ---------------------------------------------------------------------------

// DayRecord is the mutable per-day aggregate, fully recomputed from the
// day's sample set on every ingest that touches the day and never patched
// incrementally, so re-processing the same samples cannot drift it.
// DosePercent may exceed 100 and is monotonically non-decreasing within a
// day, since samples are only ever added.
type DayRecord struct {
	Day                  DayKey    `json:"day"`
	DosePercent          float64   `json:"dose_percent"`
	TotalExposureSeconds float64   `json:"total_exposure_seconds"`
	AverageLevelDB       float64   `json:"average_level_db"`
	PeakLevelDB          float64   `json:"peak_level_db"`
	SecondsAbove85       float64   `json:"seconds_above_85"`
	SecondsAbove90       float64   `json:"seconds_above_90"`
	Model                string    `json:"model"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// ---------------------------------------------------------------------------
// Insights
// ---------------------------------------------------------------------------

// InsightKind classifies the current listening situation for display.
type InsightKind string

const (
	InsightSafe       InsightKind = "safe"
	InsightRecovering InsightKind = "recovering"
	InsightWarning    InsightKind = "warning"
	InsightDanger     InsightKind = "danger"
	InsightInactive   InsightKind = "inactive"
)

// Insight is a transient prediction recomputed on every dose update and
// never persisted. ETAToLimit and EstimatedLimitTime are nil when the user
// is not actively listening or the burn rate is effectively zero.
type Insight struct {
	Kind                InsightKind    `json:"kind"`
	Message             string         `json:"message"`
	DosePercent         float64        `json:"dose_percent"`
	ETAToLimit          *time.Duration `json:"eta_to_limit,omitempty"`
	EstimatedLimitTime  *time.Time     `json:"estimated_limit_time,omitempty"`
	BurnRatePerHour     float64        `json:"burn_rate_per_hour"`
	IsActivelyListening bool           `json:"is_actively_listening"`
}

// ---------------------------------------------------------------------------
// Threshold events
// ---------------------------------------------------------------------------

// EventClass separates independently rate-limited notification paths.
type EventClass string

const (
	EventThreshold    EventClass = "threshold"
	EventActionable   EventClass = "actionable"
	EventVolumeAdvice EventClass = "volume_advice"
)

// ThresholdEvent records that the gate decided a notification-worthy
// crossing happened. Formatting and delivering the platform notification is
// the delivery collaborator's job; the engine only keeps an audit copy.
type ThresholdEvent struct {
	ID               string     `json:"id"`
	Class            EventClass `json:"class"`
	Threshold        int        `json:"threshold"`
	DosePercent      float64    `json:"dose_percent"`
	SuggestedLevelDB *float64   `json:"suggested_level_db,omitempty"`
	FiredAt          time.Time  `json:"fired_at"`
}

// ---------------------------------------------------------------------------
// Live session snapshots
// ---------------------------------------------------------------------------

// SessionStatus is the live-presence display state.
type SessionStatus string

const (
	SessionListening SessionStatus = "listening"
	SessionEnded     SessionStatus = "ended"
)

// SessionSnapshot is what the coordinator hands to the live-presence and
// glance-widget collaborators through the key-value handoff store.
type SessionSnapshot struct {
	DosePercent      float64       `json:"dose_percent"`
	RemainingMinutes int           `json:"remaining_minutes"`
	Status           SessionStatus `json:"status"`
	IsBreakTime      bool          `json:"is_break_time"`
	StartedAt        *time.Time    `json:"started_at,omitempty"`
	LastSampleAt     *time.Time    `json:"last_sample_at,omitempty"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

// SnapshotKeyLiveSession is the handoff-store key the coordinator writes
// and display collaborators read.
const SnapshotKeyLiveSession = "live_session"
