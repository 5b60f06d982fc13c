package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/quantpulse/price-engine/internal/models"
	"github.com/quantpulse/price-engine/internal/provider"
)

// GapDetector computes the fillable holes in an asset's coverage. Segments
// come back oldest-first so backfill reaches deep history before recent data;
// the regular ingestion cadence picks up the recent end anyway.
type GapDetector struct {
	tracker  *CoverageTracker
	registry *provider.Registry
	logger   *logrus.Logger
	now      func() time.Time
}

// NewGapDetector creates a detector over the tracker and provider registry.
func NewGapDetector(tracker *CoverageTracker, registry *provider.Registry, logger *logrus.Logger) *GapDetector {
	return &GapDetector{
		tracker:  tracker,
		registry: registry,
		logger:   logger,
		now:      time.Now,
	}
}

// Detect returns the gap segments of [start, end] for the asset, oldest
// first. Segments older than the deepest history any registered source can
// supply for the asset's category are marked unfillable; they are reported
// but never retried.
func (d *GapDetector) Detect(ctx context.Context, asset models.Asset, interval models.Interval, start, end time.Time) ([]models.GapSegment, error) {
	if !interval.Valid() {
		return nil, fmt.Errorf("%w: unsupported interval %d", ErrInvalidRange, interval)
	}

	missing, err := d.tracker.MissingSpan(ctx, asset.ID, interval, start, end)
	if err != nil {
		return nil, err
	}

	floor := d.registry.EarliestAvailable(asset.Category, d.now())

	segments := make([]models.GapSegment, 0, len(missing))
	for _, span := range missing {
		segments = append(segments, d.split(asset, interval, span, floor)...)
	}

	d.logger.WithFields(logrus.Fields{
		"asset_id": asset.ID,
		"ticker":   asset.Ticker,
		"interval": int(interval),
		"segments": len(segments),
	}).Debug("Gap detection complete")

	return segments, nil
}

// split turns one missing span into gap segments, cutting it at the
// earliest-available floor when the span straddles it.
func (d *GapDetector) split(asset models.Asset, interval models.Interval, span models.Span, floor time.Time) []models.GapSegment {
	segment := func(start, end time.Time, fillable bool) models.GapSegment {
		return models.GapSegment{
			AssetID:  asset.ID,
			Interval: interval,
			GapStart: start,
			GapEnd:   end,
			Fillable: fillable,
		}
	}

	// No source serves this category at all: nothing is fillable.
	if floor.IsZero() {
		return []models.GapSegment{segment(span.Start, span.End, false)}
	}

	floor = interval.Align(floor)
	switch {
	case !span.End.Before(floor) && !span.Start.Before(floor):
		return []models.GapSegment{segment(span.Start, span.End, true)}
	case span.End.Before(floor):
		return []models.GapSegment{segment(span.Start, span.End, false)}
	default:
		// Straddles the floor: unfillable head, fillable tail.
		return []models.GapSegment{
			segment(span.Start, floor.Add(-interval.Duration()), false),
			segment(floor, span.End, true),
		}
	}
}
