package engine

import (
	"context"
	"time"

	"github.com/quantpulse/price-engine/internal/models"
)

// AssetStore is the engine's view of the external metadata store.
type AssetStore interface {
	GetByTicker(ctx context.Context, ticker string) (*models.Asset, error)
	List(ctx context.Context, category models.AssetCategory, maxTier int) ([]models.Asset, error)
	// Upsert creates the asset if the ticker is new and returns the stored
	// row either way. Idempotent on ticker.
	Upsert(ctx context.Context, asset models.Asset) (*models.Asset, error)
}

// CoverageStore persists the merged coverage ranges.
type CoverageStore interface {
	GetRanges(ctx context.Context, assetID int64, interval models.Interval) ([]models.CoverageRange, error)
	// ReplaceRanges atomically deletes the superseded rows and writes the
	// merged range.
	ReplaceRanges(ctx context.Context, assetID int64, interval models.Interval, deleteIDs []int64, merged models.Span) error
}

// TimeSeriesStore is the bulk idempotent write path into the candle store.
type TimeSeriesStore interface {
	// InsertBatch writes records with insert-or-ignore semantics keyed on
	// (asset, interval, timestamp) and returns how many rows were new.
	InsertBatch(ctx context.Context, records []models.PriceRecord) (int64, error)
	// QueryRange returns stored candles for coverage verification.
	QueryRange(ctx context.Context, assetID int64, interval models.Interval, start, end time.Time) ([]models.PriceRecord, error)
}

// SyncStore persists the audit trail of orchestrator runs.
type SyncStore interface {
	Create(ctx context.Context, record *models.SyncRecord) error
	Update(ctx context.Context, record *models.SyncRecord) error
}
