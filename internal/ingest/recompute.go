package ingest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/earguard/earguard/internal/exposure"
)

// RecomputeDays rebuilds the aggregates for the given days using a worker
// pool. Used after an exchange-model change and by the CLI; each day is
// independent so the only shared state is the merged Result.
func (s *Service) RecomputeDays(ctx context.Context, days []exposure.DayKey, workers int) Result {
	start := time.Now()
	result := Result{Records: make(map[exposure.DayKey]exposure.DayRecord)}
	if len(days) == 0 {
		return result
	}

	if workers < 1 {
		workers = 1
	}
	if workers > len(days) {
		workers = len(days)
	}

	ch := make(chan exposure.DayKey, len(days))
	for _, day := range days {
		ch <- day
	}
	close(ch)

	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for day := range ch {
				rec, err := s.RecomputeDay(ctx, day)

				mu.Lock()
				if err != nil {
					result.AddErrorf("day %s: %v", day, err)
				} else {
					result.Records[day] = rec
					result.AffectedDays = append(result.AffectedDays, day)
				}
				mu.Unlock()
			}
		}()
	}

	wg.Wait()
	sort.Slice(result.AffectedDays, func(i, j int) bool {
		return result.AffectedDays[i].Before(result.AffectedDays[j])
	})

	s.logger.Info("Recompute complete",
		"days", len(days),
		"workers", workers,
		"errors", len(result.Errors),
		"duration", time.Since(start),
	)
	return result
}

// LastNDays returns the n most recent calendar days ending today, ascending.
func LastNDays(now time.Time, n int, loc *time.Location) []exposure.DayKey {
	if n < 1 {
		n = 1
	}
	days := make([]exposure.DayKey, n)
	day := exposure.DayOf(now, loc).AddDays(-(n - 1))
	for i := 0; i < n; i++ {
		days[i] = day
		day = day.Next()
	}
	return days
}
