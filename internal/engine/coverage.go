package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/quantpulse/price-engine/internal/cache"
	"github.com/quantpulse/price-engine/internal/models"
)

// CoverageTracker maintains the set of time ranges already ingested per
// (asset, interval). Reads are cache-first; merges for the same key are
// serialized through a per-key lock so two concurrent merges cannot produce
// overlapping rows.
type CoverageTracker struct {
	store  CoverageStore
	cache  *cache.Cache
	logger *logrus.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewCoverageTracker creates a tracker over the given store and cache.
func NewCoverageTracker(store CoverageStore, c *cache.Cache, logger *logrus.Logger) *CoverageTracker {
	return &CoverageTracker{
		store:  store,
		cache:  c,
		logger: logger,
		locks:  make(map[string]*sync.Mutex),
	}
}

func (t *CoverageTracker) keyLock(assetID int64, interval models.Interval) *sync.Mutex {
	key := fmt.Sprintf("%d:%d", assetID, interval)
	t.mu.Lock()
	defer t.mu.Unlock()
	if lock, ok := t.locks[key]; ok {
		return lock
	}
	lock := &sync.Mutex{}
	t.locks[key] = lock
	return lock
}

// GetRanges returns the sorted covered spans for (asset, interval),
// cache-first with fallback to the store.
func (t *CoverageTracker) GetRanges(ctx context.Context, assetID int64, interval models.Interval) ([]models.Span, error) {
	key := cache.CoverageKey(t.cache.Environment(), assetID, interval)

	var spans []models.Span
	err := t.cache.GetOrCompute(ctx, key, cache.TierMedium, &spans, func(ctx context.Context) (interface{}, error) {
		ranges, err := t.store.GetRanges(ctx, assetID, interval)
		if err != nil {
			return nil, fmt.Errorf("failed to load coverage ranges: %w", err)
		}
		loaded := make([]models.Span, 0, len(ranges))
		for _, r := range ranges {
			loaded = append(loaded, models.Span{Start: r.RangeStart, End: r.RangeEnd})
		}
		sort.Slice(loaded, func(i, j int) bool { return loaded[i].Start.Before(loaded[j].Start) })
		return loaded, nil
	})
	if err != nil {
		return nil, err
	}
	return spans, nil
}

// AddRange records [start, end] as ingested, merging with any stored range
// that overlaps or sits within one interval step. Re-adding an already
// covered range is a no-op.
func (t *CoverageTracker) AddRange(ctx context.Context, assetID int64, interval models.Interval, start, end time.Time) error {
	start = interval.Align(start)
	end = interval.Align(end)
	if end.Before(start) {
		return fmt.Errorf("%w: range end %s before start %s", ErrInvalidRange, end, start)
	}

	lock := t.keyLock(assetID, interval)
	lock.Lock()
	defer lock.Unlock()

	// Merge against the store, not the cache: the cache may lag.
	existing, err := t.store.GetRanges(ctx, assetID, interval)
	if err != nil {
		return fmt.Errorf("failed to load coverage ranges for merge: %w", err)
	}
	sort.Slice(existing, func(i, j int) bool { return existing[i].RangeStart.Before(existing[j].RangeStart) })

	step := interval.Duration()
	merged := models.Span{Start: start, End: end}
	var deleteIDs []int64
	covered := false

	for _, r := range existing {
		if !r.RangeStart.After(start) && !r.RangeEnd.Before(end) {
			covered = true
			break
		}
		// Overlapping or within one step on either side.
		if r.RangeStart.After(merged.End.Add(step)) || r.RangeEnd.Before(merged.Start.Add(-step)) {
			continue
		}
		if r.RangeStart.Before(merged.Start) {
			merged.Start = r.RangeStart
		}
		if r.RangeEnd.After(merged.End) {
			merged.End = r.RangeEnd
		}
		deleteIDs = append(deleteIDs, r.ID)
	}

	if covered {
		return nil
	}

	if err := t.store.ReplaceRanges(ctx, assetID, interval, deleteIDs, merged); err != nil {
		return fmt.Errorf("failed to persist merged coverage range: %w", err)
	}

	t.logger.WithFields(logrus.Fields{
		"asset_id":    assetID,
		"interval":    int(interval),
		"range_start": merged.Start,
		"range_end":   merged.End,
		"absorbed":    len(deleteIDs),
	}).Debug("Coverage range merged")

	if err := t.cache.InvalidateAsset(ctx, assetID); err != nil {
		t.logger.WithError(err).Warn("Failed to invalidate coverage cache")
	}
	return nil
}

// MissingSpan returns the sub-spans of [start, end] not yet covered, oldest
// first. Bounds are inclusive candle-open timestamps.
func (t *CoverageTracker) MissingSpan(ctx context.Context, assetID int64, interval models.Interval, start, end time.Time) ([]models.Span, error) {
	start = interval.Align(start)
	end = interval.Align(end)
	if end.Before(start) {
		return nil, fmt.Errorf("%w: span end %s before start %s", ErrInvalidRange, end, start)
	}

	covered, err := t.GetRanges(ctx, assetID, interval)
	if err != nil {
		return nil, err
	}

	step := interval.Duration()
	var gaps []models.Span
	cursor := start

	for _, span := range covered {
		if span.End.Before(cursor) || span.Start.After(end) {
			continue
		}
		if span.Start.After(cursor) {
			gapEnd := span.Start.Add(-step)
			if gapEnd.After(end) {
				gapEnd = end
			}
			gaps = append(gaps, models.Span{Start: cursor, End: gapEnd})
		}
		next := span.End.Add(step)
		if next.After(cursor) {
			cursor = next
		}
		if cursor.After(end) {
			return gaps, nil
		}
	}

	if !cursor.After(end) {
		gaps = append(gaps, models.Span{Start: cursor, End: end})
	}
	return gaps, nil
}
