// Package ingest validates raw loudness samples, persists them, and
// recomputes the per-day dose records the batch touches.
package ingest

import (
	"fmt"
	"sort"
	"time"

	"github.com/earguard/earguard/internal/exposure"
)

// Result tracks counts, errors, and recomputed days from one ingest pass.
type Result struct {
	Inserted   int
	Duplicates int
	Rejected   int
	Errors     []string

	// AffectedDays lists each calendar day whose aggregate was recomputed,
	// ascending. Records holds the recomputed rows keyed by day.
	AffectedDays []exposure.DayKey
	Records      map[exposure.DayKey]exposure.DayRecord

	// LatestSampleAt is the newest sample end among inserted samples that
	// fall on the current day. Session tracking uses it as evidence of live
	// listening; backfilled history leaves it nil.
	LatestSampleAt *time.Time
}

// Add merges another Result into this one.
func (r *Result) Add(other Result) {
	r.Inserted += other.Inserted
	r.Duplicates += other.Duplicates
	r.Rejected += other.Rejected
	r.Errors = append(r.Errors, other.Errors...)

	if r.Records == nil && len(other.Records) > 0 {
		r.Records = make(map[exposure.DayKey]exposure.DayRecord, len(other.Records))
	}
	for day, rec := range other.Records {
		r.Records[day] = rec
	}
	r.AffectedDays = mergeDays(r.AffectedDays, other.AffectedDays)

	if other.LatestSampleAt != nil {
		if r.LatestSampleAt == nil || other.LatestSampleAt.After(*r.LatestSampleAt) {
			r.LatestSampleAt = other.LatestSampleAt
		}
	}
}

// AddErrorf records a formatted error message.
func (r *Result) AddErrorf(format string, args ...interface{}) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

// Summary returns a human-readable summary of the ingest pass.
func (r *Result) Summary() string {
	return fmt.Sprintf(
		"inserted=%d duplicates=%d rejected=%d days=%d errors=%d",
		r.Inserted, r.Duplicates, r.Rejected,
		len(r.AffectedDays), len(r.Errors),
	)
}

// mergeDays unions two ascending day lists, keeping the result sorted and
// free of duplicates.
func mergeDays(a, b []exposure.DayKey) []exposure.DayKey {
	if len(b) == 0 {
		return a
	}
	seen := make(map[exposure.DayKey]bool, len(a)+len(b))
	out := make([]exposure.DayKey, 0, len(a)+len(b))
	for _, d := range a {
		if !seen[d] {
			seen[d] = true
			out = append(out, d)
		}
	}
	for _, d := range b {
		if !seen[d] {
			seen[d] = true
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}
