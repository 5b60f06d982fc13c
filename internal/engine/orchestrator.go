package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/quantpulse/price-engine/internal/models"
	"github.com/quantpulse/price-engine/internal/provider"
)

// OrchestratorConfig holds the run-level tunables.
type OrchestratorConfig struct {
	WorkerPoolSize int `json:"worker_pool_size"`
}

// Request describes one ingestion job: which assets, which interval, which
// date range. Either Tickers or Category selects the assets; MaxTier filters
// by importance when selecting by category (0 means no filter).
type Request struct {
	Tickers  []string
	Category models.AssetCategory
	MaxTier  int
	Interval models.Interval
	Start    time.Time
	End      time.Time
}

// Orchestrator drives one ingestion job: detect gaps, fetch each fillable
// segment, write the results, and record sync outcomes. Failures are
// isolated per segment; one bad segment or source never aborts the run.
type Orchestrator struct {
	assets AssetStore
	syncs  SyncStore
	gaps   *GapDetector
	router *Router
	writer *TimeSeriesWriter
	config OrchestratorConfig
	logger *logrus.Logger
	now    func() time.Time
}

// NewOrchestrator wires the orchestrator from its collaborators.
func NewOrchestrator(assets AssetStore, syncs SyncStore, gaps *GapDetector, router *Router, writer *TimeSeriesWriter, config OrchestratorConfig, logger *logrus.Logger) *Orchestrator {
	if config.WorkerPoolSize <= 0 {
		config.WorkerPoolSize = 8
	}
	return &Orchestrator{
		assets: assets,
		syncs:  syncs,
		gaps:   gaps,
		router: router,
		writer: writer,
		config: config,
		logger: logger,
		now:    time.Now,
	}
}

// Run executes the job and returns one finalized SyncRecord per asset.
// Fatal configuration problems (bad range, no sources for a category) abort
// before any work starts; everything else lands in the sync records.
func (o *Orchestrator) Run(ctx context.Context, req Request) ([]models.SyncRecord, error) {
	if !req.Interval.Valid() {
		return nil, fmt.Errorf("%w: unsupported interval %d", ErrInvalidRange, req.Interval)
	}
	if req.Start.IsZero() || req.End.IsZero() || req.End.Before(req.Start) {
		return nil, fmt.Errorf("%w: [%s, %s]", ErrInvalidRange, req.Start, req.End)
	}

	assets, err := o.resolveAssets(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(assets) == 0 {
		return nil, nil
	}

	for _, asset := range assets {
		if !o.router.HasSources(asset.Category) {
			return nil, fmt.Errorf("%w: %s", ErrNoSourcesForCategory, asset.Category)
		}
	}

	records := make([]models.SyncRecord, len(assets))

	// Assets are embarrassingly parallel; the pool bounds total concurrency
	// and the per-source limiter keeps any single provider within its burst.
	var g errgroup.Group
	g.SetLimit(o.config.WorkerPoolSize)
	for i, asset := range assets {
		g.Go(func() error {
			records[i] = o.syncAsset(ctx, asset, req.Interval, req.Start, req.End)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return records, err
	}
	return records, nil
}

// resolveAssets turns the request's selector into concrete asset rows.
// Unknown tickers are auto-discovered when the request names a category.
func (o *Orchestrator) resolveAssets(ctx context.Context, req Request) ([]models.Asset, error) {
	if len(req.Tickers) == 0 {
		if !req.Category.Valid() {
			return nil, fmt.Errorf("%w: request selects neither tickers nor a valid category", ErrInvalidRange)
		}
		assets, err := o.assets.List(ctx, req.Category, req.MaxTier)
		if err != nil {
			return nil, fmt.Errorf("failed to list assets: %w", err)
		}
		return assets, nil
	}

	assets := make([]models.Asset, 0, len(req.Tickers))
	for _, ticker := range req.Tickers {
		asset, err := o.assets.GetByTicker(ctx, ticker)
		if err != nil {
			return nil, fmt.Errorf("failed to look up asset %s: %w", ticker, err)
		}
		if asset == nil {
			if !req.Category.Valid() {
				return nil, fmt.Errorf("unknown ticker %s and no category to discover it under", ticker)
			}
			asset, err = o.assets.Upsert(ctx, models.Asset{
				Ticker:   ticker,
				Category: req.Category,
				Tier:     4, // discovered assets start at the lowest importance
				Active:   true,
			})
			if err != nil {
				return nil, fmt.Errorf("failed to auto-discover asset %s: %w", ticker, err)
			}
			o.logger.WithFields(logrus.Fields{
				"ticker":   ticker,
				"category": req.Category,
			}).Info("Auto-discovered new asset")
		}
		if asset.Active {
			assets = append(assets, *asset)
		}
	}
	return assets, nil
}

// syncAsset runs the PENDING → IN_PROGRESS → SUCCESS|FAILED state machine
// for one asset. The returned record is always finalized, even on
// cancellation with partial progress.
func (o *Orchestrator) syncAsset(ctx context.Context, asset models.Asset, interval models.Interval, start, end time.Time) models.SyncRecord {
	record := models.SyncRecord{
		ID:        uuid.NewString(),
		AssetID:   &asset.ID,
		SyncType:  models.SyncTypeBackfill,
		Status:    models.SyncPending,
		StartedAt: o.now(),
	}
	if err := o.syncs.Create(ctx, &record); err != nil {
		o.logger.WithError(err).WithField("ticker", asset.Ticker).Error("Failed to open sync record")
	}

	record.Status = models.SyncInProgress
	o.persist(ctx, &record)

	segments, err := o.gaps.Detect(ctx, asset, interval, start, end)
	if err != nil {
		record.SegmentErrors = append(record.SegmentErrors, models.SegmentError{
			GapStart: start,
			GapEnd:   end,
			Message:  fmt.Sprintf("gap detection failed: %v", err),
		})
		return o.finalize(ctx, &record)
	}

	for _, segment := range segments {
		if !segment.Fillable {
			o.logger.WithFields(logrus.Fields{
				"ticker":    asset.Ticker,
				"gap_start": segment.GapStart,
				"gap_end":   segment.GapEnd,
			}).Info("Skipping unfillable segment")
			continue
		}
		// Cooperative cancellation: in-flight work finishes or times out,
		// no new segments are dispatched.
		if ctx.Err() != nil {
			record.SegmentErrors = append(record.SegmentErrors, models.SegmentError{
				GapStart: segment.GapStart,
				GapEnd:   segment.GapEnd,
				Message:  "run canceled before segment started",
			})
			continue
		}
		o.fillSegment(ctx, asset, segment, &record)
	}

	return o.finalize(ctx, &record)
}

// fillSegment fetches and writes one gap segment, folding the outcome into
// the sync record.
func (o *Orchestrator) fillSegment(ctx context.Context, asset models.Asset, segment models.GapSegment, record *models.SyncRecord) {
	candles, source, err := o.router.Fetch(ctx, asset, segment.Interval, segment.GapStart, segment.GapEnd)
	if err != nil {
		record.SegmentErrors = append(record.SegmentErrors, models.SegmentError{
			GapStart: segment.GapStart,
			GapEnd:   segment.GapEnd,
			Message:  err.Error(),
		})
		return
	}

	records := normalizeCandles(asset, segment.Interval, source, candles)
	result, err := o.writer.WriteBatch(ctx, records)
	record.RecordsCreated += int(result.Created)
	record.RecordsUpdated += int(result.Skipped)
	record.Source = source
	if err != nil {
		record.SegmentErrors = append(record.SegmentErrors, models.SegmentError{
			GapStart: segment.GapStart,
			GapEnd:   segment.GapEnd,
			Message:  fmt.Sprintf("write failed: %v", err),
		})
	}
}

// finalize stamps the terminal status and persists the record. Finalization
// survives cancellation so a run is never left IN_PROGRESS.
func (o *Orchestrator) finalize(ctx context.Context, record *models.SyncRecord) models.SyncRecord {
	completed := o.now()
	record.CompletedAt = &completed

	if len(record.SegmentErrors) > 0 {
		record.Status = models.SyncFailed
		messages := make([]string, 0, len(record.SegmentErrors))
		for _, se := range record.SegmentErrors {
			messages = append(messages, se.Message)
		}
		record.ErrorSummary = strings.Join(messages, "; ")
	} else {
		record.Status = models.SyncSuccess
	}

	o.persist(context.WithoutCancel(ctx), record)
	return *record
}

func (o *Orchestrator) persist(ctx context.Context, record *models.SyncRecord) {
	if err := o.syncs.Update(ctx, record); err != nil {
		o.logger.WithError(err).WithField("sync_id", record.ID).Error("Failed to persist sync record")
	}
}

// normalizeCandles converts raw provider candles into storable price
// records, dropping any candle outside the requested span's alignment.
func normalizeCandles(asset models.Asset, interval models.Interval, source string, candles []provider.Candle) []models.PriceRecord {
	records := make([]models.PriceRecord, 0, len(candles))
	for _, c := range candles {
		quote := c.QuoteCurrency
		if quote == "" {
			quote = "USD"
		}
		records = append(records, models.PriceRecord{
			AssetID:       asset.ID,
			Interval:      interval,
			Timestamp:     interval.Align(c.Timestamp),
			Open:          c.Open,
			High:          c.High,
			Low:           c.Low,
			Close:         c.Close,
			Volume:        c.Volume,
			TradeCount:    c.TradeCount,
			Source:        source,
			QuoteCurrency: quote,
		})
	}
	return records
}
