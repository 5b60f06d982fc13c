package engine

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/quantpulse/price-engine/internal/models"
)

// WriterConfig holds the batching tunables: chunk size trades throughput
// against memory per round trip, parallelism bounds concurrent store writes.
type WriterConfig struct {
	ChunkSize      int `json:"chunk_size"`
	MaxParallelism int `json:"max_parallelism"`
}

// WriteResult reports what one batch write did. Skipped counts records whose
// key already existed; candle data is first-write-wins, so they are ignored
// rather than overwritten.
type WriteResult struct {
	Created int64 `json:"created"`
	Skipped int64 `json:"skipped"`
}

// TimeSeriesWriter batches normalized price records into the time-series
// store and extends coverage for the spans actually written.
type TimeSeriesWriter struct {
	store   TimeSeriesStore
	tracker *CoverageTracker
	config  WriterConfig
	logger  *logrus.Logger
}

// NewTimeSeriesWriter creates a writer over the store and coverage tracker.
func NewTimeSeriesWriter(store TimeSeriesStore, tracker *CoverageTracker, config WriterConfig, logger *logrus.Logger) *TimeSeriesWriter {
	if config.ChunkSize <= 0 {
		config.ChunkSize = 10000
	}
	if config.MaxParallelism <= 0 {
		config.MaxParallelism = 4
	}
	return &TimeSeriesWriter{
		store:   store,
		tracker: tracker,
		config:  config,
		logger:  logger,
	}
}

// WriteBatch performs a bulk idempotent upsert of records. Chunks are
// dispatched concurrently up to the configured parallelism; after the writes,
// coverage is extended only for the contiguous spans of chunks that
// succeeded. Writing the same batch twice creates nothing the second time.
func (w *TimeSeriesWriter) WriteBatch(ctx context.Context, records []models.PriceRecord) (WriteResult, error) {
	if len(records) == 0 {
		return WriteResult{}, nil
	}

	records = dedupe(records)

	chunks := make([][]models.PriceRecord, 0, len(records)/w.config.ChunkSize+1)
	for start := 0; start < len(records); start += w.config.ChunkSize {
		end := start + w.config.ChunkSize
		if end > len(records) {
			end = len(records)
		}
		chunks = append(chunks, records[start:end])
	}

	var created atomic.Int64
	chunkOK := make([]bool, len(chunks))

	// Plain group, no shared cancellation: one failed chunk must not abort
	// its siblings, only keep their span out of the coverage update.
	var g errgroup.Group
	g.SetLimit(w.config.MaxParallelism)

	for i, chunk := range chunks {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			n, err := w.store.InsertBatch(ctx, chunk)
			if err != nil {
				w.logger.WithFields(logrus.Fields{
					"chunk":   i,
					"records": len(chunk),
					"error":   err.Error(),
				}).Error("Chunk write failed")
				return fmt.Errorf("chunk %d write failed: %w", i, err)
			}
			created.Add(n)
			chunkOK[i] = true
			return nil
		})
	}
	writeErr := g.Wait()

	var written []models.PriceRecord
	for i, ok := range chunkOK {
		if ok {
			written = append(written, chunks[i]...)
		}
	}

	result := WriteResult{
		Created: created.Load(),
		Skipped: int64(len(written)) - created.Load(),
	}

	if err := w.extendCoverage(ctx, written); err != nil {
		if writeErr == nil {
			writeErr = err
		}
	}

	w.logger.WithFields(logrus.Fields{
		"records": len(records),
		"created": result.Created,
		"skipped": result.Skipped,
		"chunks":  len(chunks),
	}).Debug("Batch write complete")

	return result, writeErr
}

// extendCoverage adds coverage for each contiguous sub-range of the written
// records, split per (asset, interval) and wherever the batch has an internal
// hole wider than one interval step.
func (w *TimeSeriesWriter) extendCoverage(ctx context.Context, written []models.PriceRecord) error {
	type key struct {
		assetID  int64
		interval models.Interval
	}

	groups := make(map[key][]time.Time)
	for _, r := range written {
		k := key{assetID: r.AssetID, interval: r.Interval}
		groups[k] = append(groups[k], r.Timestamp)
	}

	var firstErr error
	for k, stamps := range groups {
		sort.Slice(stamps, func(i, j int) bool { return stamps[i].Before(stamps[j]) })

		step := k.interval.Duration()
		runStart := stamps[0]
		prev := stamps[0]
		for _, ts := range stamps[1:] {
			if ts.Sub(prev) > step {
				if err := w.tracker.AddRange(ctx, k.assetID, k.interval, runStart, prev); err != nil && firstErr == nil {
					firstErr = err
				}
				runStart = ts
			}
			prev = ts
		}
		if err := w.tracker.AddRange(ctx, k.assetID, k.interval, runStart, prev); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// dedupe drops in-batch duplicates of the (asset, interval, timestamp) key,
// keeping the first occurrence, and returns records sorted by key.
func dedupe(records []models.PriceRecord) []models.PriceRecord {
	type key struct {
		assetID  int64
		interval models.Interval
		ts       int64
	}

	seen := make(map[key]bool, len(records))
	out := make([]models.PriceRecord, 0, len(records))
	for _, r := range records {
		k := key{assetID: r.AssetID, interval: r.Interval, ts: r.Timestamp.UnixNano()}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, r)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].AssetID != out[j].AssetID {
			return out[i].AssetID < out[j].AssetID
		}
		if out[i].Interval != out[j].Interval {
			return out[i].Interval < out[j].Interval
		}
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}
