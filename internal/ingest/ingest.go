package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/earguard/earguard/internal/dose"
	"github.com/earguard/earguard/internal/exposure"
	"github.com/earguard/earguard/internal/store"
)

// Service owns the write path: validate, deduplicate, persist, recompute.
// The exchange model is read through a func so a runtime settings change
// applies to the next batch without rebuilding the service.
type Service struct {
	samples store.SampleStore
	days    store.DoseStore
	model   func() dose.Model
	loc     *time.Location
	logger  *slog.Logger
	now     func() time.Time
}

// New builds the service. now supplies the clock that decides which day
// counts as today; nil means the system clock. Callers embedding the
// service must pass their own clock so both agree on the date.
func New(samples store.SampleStore, days store.DoseStore, model func() dose.Model, now func() time.Time, loc *time.Location, logger *slog.Logger) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{
		samples: samples,
		days:    days,
		model:   model,
		loc:     loc,
		logger:  logger,
		now:     now,
	}
}

// Ingest validates and persists a batch, then recomputes every day the
// inserted samples touch. Invalid samples are rejected individually and
// never fail the batch; a store failure does, returning the partial Result
// alongside the error.
//
// Re-sending a batch is safe: duplicates are detected by external ID and
// the recompute always rebuilds a day from its full sample set, so counts
// never double.
func (s *Service) Ingest(ctx context.Context, batch []exposure.Sample) (Result, error) {
	result := Result{Records: make(map[exposure.DayKey]exposure.DayRecord)}
	today := exposure.DayOf(s.now(), s.loc)
	touched := make(map[exposure.DayKey]bool)

	for _, sample := range batch {
		if err := sample.Validate(); err != nil {
			result.Rejected++
			result.AddErrorf("sample %s: %v", sample.ExternalID, err)
			continue
		}

		inserted, err := s.samples.InsertSample(ctx, sample)
		if err != nil {
			result.AddErrorf("sample %s: %v", sample.ExternalID, err)
			return result, fmt.Errorf("insert sample %s: %w", sample.ExternalID, err)
		}
		if !inserted {
			result.Duplicates++
			continue
		}

		result.Inserted++
		day := exposure.DayOf(sample.Start, s.loc)
		touched[day] = true

		if day == today {
			end := sample.End
			if result.LatestSampleAt == nil || end.After(*result.LatestSampleAt) {
				result.LatestSampleAt = &end
			}
		}
	}

	for day := range touched {
		rec, err := s.RecomputeDay(ctx, day)
		if err != nil {
			result.AddErrorf("recompute %s: %v", day, err)
			return result, fmt.Errorf("recompute day %s: %w", day, err)
		}
		result.Records[day] = rec
		result.AffectedDays = append(result.AffectedDays, day)
	}
	sort.Slice(result.AffectedDays, func(i, j int) bool {
		return result.AffectedDays[i].Before(result.AffectedDays[j])
	})

	s.logger.Info("Ingested batch", "summary", result.Summary())
	return result, nil
}

// RecomputeDay rebuilds one day's aggregate from its full sample set and
// upserts the record. Days with no samples still get a zeroed record, so a
// prune or model change cannot leave a stale aggregate behind.
func (s *Service) RecomputeDay(ctx context.Context, day exposure.DayKey) (exposure.DayRecord, error) {
	from := day.Start(s.loc)
	to := day.Next().Start(s.loc)

	samples, err := s.samples.SamplesBetween(ctx, from, to)
	if err != nil {
		return exposure.DayRecord{}, fmt.Errorf("load samples for %s: %w", day, err)
	}

	rec := dose.Summarize(day, samples, s.model(), s.now())
	if err := s.days.UpsertDayRecord(ctx, rec); err != nil {
		return exposure.DayRecord{}, fmt.Errorf("upsert day record %s: %w", day, err)
	}
	return rec, nil
}
