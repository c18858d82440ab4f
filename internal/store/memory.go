package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/earguard/earguard/internal/exposure"
)

// Memory is an in-process Store. It backs tests and runs of the service
// where no DATABASE_URL is configured; data does not survive the process.
type Memory struct {
	mu         sync.Mutex
	samples    map[string]exposure.Sample
	days       map[exposure.DayKey]exposure.DayRecord
	cooldowns  map[string]time.Time
	events     []exposure.ThresholdEvent
	presence   map[string]exposure.SessionSnapshot
	settings   map[string]string
	watermarks map[string]time.Time
}

// NewMemory creates an empty in-process store.
func NewMemory() *Memory {
	return &Memory{
		samples:    make(map[string]exposure.Sample),
		days:       make(map[exposure.DayKey]exposure.DayRecord),
		cooldowns:  make(map[string]time.Time),
		presence:   make(map[string]exposure.SessionSnapshot),
		settings:   make(map[string]string),
		watermarks: make(map[string]time.Time),
	}
}

// ---------------------------------------------------------------------------
// Samples
// ---------------------------------------------------------------------------

func (m *Memory) InsertSample(_ context.Context, s exposure.Sample) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, dup := m.samples[s.ExternalID]; dup {
		return false, nil
	}
	m.samples[s.ExternalID] = s
	return true, nil
}

func (m *Memory) SamplesBetween(_ context.Context, from, to time.Time) ([]exposure.Sample, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []exposure.Sample
	for _, s := range m.samples {
		if !s.Start.Before(from) && s.Start.Before(to) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

func (m *Memory) PruneSamplesBefore(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, s := range m.samples {
		if s.Start.Before(cutoff) {
			delete(m.samples, id)
			n++
		}
	}
	return n, nil
}

// ---------------------------------------------------------------------------
// Daily dose
// ---------------------------------------------------------------------------

func (m *Memory) UpsertDayRecord(_ context.Context, rec exposure.DayRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.days[rec.Day] = rec
	return nil
}

func (m *Memory) DayRecord(_ context.Context, day exposure.DayKey) (exposure.DayRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.days[day]
	if !ok {
		return exposure.DayRecord{}, ErrNotFound
	}
	return rec, nil
}

func (m *Memory) DayRecordsBetween(_ context.Context, from, to exposure.DayKey) ([]exposure.DayRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []exposure.DayRecord
	for day, rec := range m.days {
		if !day.Before(from) && !to.Before(day) {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Day.Before(out[j].Day) })
	return out, nil
}

// ---------------------------------------------------------------------------
// Cooldown ledger
// ---------------------------------------------------------------------------

func (m *Memory) LastFired(_ context.Context, key string) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cooldowns[key], nil
}

func (m *Memory) MarkFired(_ context.Context, key string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cooldowns[key] = at
	return nil
}

func (m *Memory) PruneCooldownsBefore(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for key, at := range m.cooldowns {
		if at.Before(cutoff) {
			delete(m.cooldowns, key)
			n++
		}
	}
	return n, nil
}

// ---------------------------------------------------------------------------
// Event audit log
// ---------------------------------------------------------------------------

func (m *Memory) AppendEvent(_ context.Context, ev exposure.ThresholdEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

func (m *Memory) RecentEvents(_ context.Context, limit int) ([]exposure.ThresholdEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]exposure.ThresholdEvent, len(m.events))
	copy(out, m.events)
	sort.Slice(out, func(i, j int) bool { return out[i].FiredAt.After(out[j].FiredAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Presence handoff
// ---------------------------------------------------------------------------

func (m *Memory) PutSnapshot(_ context.Context, key string, snap exposure.SessionSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.presence[key] = snap
	return nil
}

func (m *Memory) Snapshot(_ context.Context, key string) (exposure.SessionSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap, ok := m.presence[key]
	if !ok {
		return exposure.SessionSnapshot{}, ErrNotFound
	}
	return snap, nil
}

// ---------------------------------------------------------------------------
// Settings
// ---------------------------------------------------------------------------

func (m *Memory) Setting(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.settings[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (m *Memory) PutSetting(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings[key] = value
	return nil
}

func (m *Memory) Settings(_ context.Context) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]string, len(m.settings))
	for k, v := range m.settings {
		out[k] = v
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Sync watermarks
// ---------------------------------------------------------------------------

func (m *Memory) Watermark(_ context.Context, source string) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.watermarks[source], nil
}

func (m *Memory) SetWatermark(_ context.Context, source string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.watermarks[source] = at
	return nil
}

// ---------------------------------------------------------------------------
// Lifecycle
// ---------------------------------------------------------------------------

func (m *Memory) HealthCheck(context.Context) error { return nil }

func (m *Memory) Close() {}
