package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/earguard/earguard/internal/exposure"
	"github.com/earguard/earguard/internal/store"
)

// watermarkKey names the sync high-water mark in the watermark store.
const watermarkKey = "samples"

// syncOverlap is re-fetched below the watermark on every incremental sync.
// The bridge can deliver samples slightly out of order; dedup absorbs the
// overlap.
const syncOverlap = 5 * time.Minute

// Source is a remote provider of loudness samples, typically the phone
// bridge relaying device measurements.
type Source interface {
	FetchRange(ctx context.Context, from, to time.Time) ([]exposure.Sample, error)
	FetchSince(ctx context.Context, since time.Time) ([]exposure.Sample, error)
}

// Ingestor accepts sample batches. Satisfied by *Service and by the
// engine wrapper that layers notification fan-out on top of it.
type Ingestor interface {
	Ingest(ctx context.Context, samples []exposure.Sample) (Result, error)
}

// Syncer pulls samples from a Source and feeds them through an Ingestor,
// tracking progress in a persisted watermark so incremental syncs only
// fetch what is new.
type Syncer struct {
	source Source
	sink   Ingestor
	marks  store.WatermarkStore
	window int // FullSync horizon in days
	logger *slog.Logger
	now    func() time.Time
}

func NewSyncer(source Source, sink Ingestor, marks store.WatermarkStore, windowDays int, logger *slog.Logger) *Syncer {
	if windowDays < 1 {
		windowDays = 1
	}
	return &Syncer{
		source: source,
		sink:   sink,
		marks:  marks,
		window: windowDays,
		logger: logger,
		now:    time.Now,
	}
}

// FullSync fetches the entire window and ingests it. Used on first run
// and to repair gaps; dedup makes re-fetching old samples cheap. A
// non-positive days falls back to the configured window.
func (s *Syncer) FullSync(ctx context.Context, days int) (Result, error) {
	if days < 1 {
		days = s.window
	}
	to := s.now()
	from := to.AddDate(0, 0, -days)

	s.logger.Info("Full sync starting", "from", from, "to", to)
	samples, err := s.source.FetchRange(ctx, from, to)
	if err != nil {
		return Result{}, fmt.Errorf("fetch sample range: %w", err)
	}
	return s.ingestAndAdvance(ctx, samples)
}

// IncrementalSync fetches everything past the stored watermark, minus a
// small overlap. Falls back to a full sync when no watermark exists yet.
func (s *Syncer) IncrementalSync(ctx context.Context) (Result, error) {
	wm, err := s.marks.Watermark(ctx, watermarkKey)
	if err != nil {
		return Result{}, fmt.Errorf("load sync watermark: %w", err)
	}
	if wm.IsZero() {
		s.logger.Info("No sync watermark, falling back to full sync")
		return s.FullSync(ctx, 0)
	}

	since := wm.Add(-syncOverlap)
	samples, err := s.source.FetchSince(ctx, since)
	if err != nil {
		return Result{}, fmt.Errorf("fetch samples since %s: %w", since.Format(time.RFC3339), err)
	}
	return s.ingestAndAdvance(ctx, samples)
}

// ingestAndAdvance runs the batch through the sink and, only after a
// successful ingest, moves the watermark to the newest sample end seen.
// A failed watermark write is logged and swallowed: the next sync simply
// re-fetches a little and dedup does the rest.
func (s *Syncer) ingestAndAdvance(ctx context.Context, samples []exposure.Sample) (Result, error) {
	result, err := s.sink.Ingest(ctx, samples)
	if err != nil {
		return result, err
	}

	var newest time.Time
	for _, sample := range samples {
		if sample.End.After(newest) {
			newest = sample.End
		}
	}
	if !newest.IsZero() {
		if err := s.marks.SetWatermark(ctx, watermarkKey, newest); err != nil {
			s.logger.Warn("Failed to advance sync watermark", "error", err)
		}
	}

	s.logger.Info("Sync complete", "fetched", len(samples), "summary", result.Summary())
	return result, nil
}
