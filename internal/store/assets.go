package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/quantpulse/price-engine/internal/models"
)

// AssetStore handles database operations for asset metadata.
type AssetStore struct {
	pool Pool
}

// NewAssetStore creates a new asset store.
func NewAssetStore(pool Pool) *AssetStore {
	return &AssetStore{pool: pool}
}

// GetByTicker returns the asset for a ticker, or nil when unknown.
func (s *AssetStore) GetByTicker(ctx context.Context, ticker string) (*models.Asset, error) {
	query := `
		SELECT id, ticker, category, tier, active, created_at, updated_at
		FROM assets
		WHERE ticker = $1
	`

	var asset models.Asset
	err := s.pool.QueryRow(ctx, query, ticker).Scan(
		&asset.ID,
		&asset.Ticker,
		&asset.Category,
		&asset.Tier,
		&asset.Active,
		&asset.CreatedAt,
		&asset.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get asset %s: %w", ticker, err)
	}
	return &asset, nil
}

// List returns active assets in a category. maxTier filters by importance
// rank when positive; zero means no tier filter.
func (s *AssetStore) List(ctx context.Context, category models.AssetCategory, maxTier int) ([]models.Asset, error) {
	query := `
		SELECT id, ticker, category, tier, active, created_at, updated_at
		FROM assets
		WHERE category = $1 AND active = true AND ($2 = 0 OR tier <= $2)
		ORDER BY tier, ticker
	`

	rows, err := s.pool.Query(ctx, query, category, maxTier)
	if err != nil {
		return nil, fmt.Errorf("failed to list assets for %s: %w", category, err)
	}
	defer rows.Close()

	var assets []models.Asset
	for rows.Next() {
		var asset models.Asset
		if err := rows.Scan(
			&asset.ID,
			&asset.Ticker,
			&asset.Category,
			&asset.Tier,
			&asset.Active,
			&asset.CreatedAt,
			&asset.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan asset row: %w", err)
		}
		assets = append(assets, asset)
	}
	return assets, rows.Err()
}

// Upsert creates the asset if the ticker is new and returns the stored row
// either way. Idempotent on ticker: an existing row keeps its category, tier
// and active flag.
func (s *AssetStore) Upsert(ctx context.Context, asset models.Asset) (*models.Asset, error) {
	query := `
		INSERT INTO assets (ticker, category, tier, active)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (ticker) DO UPDATE SET updated_at = CURRENT_TIMESTAMP
		RETURNING id, ticker, category, tier, active, created_at, updated_at
	`

	var stored models.Asset
	err := s.pool.QueryRow(ctx, query, asset.Ticker, asset.Category, asset.Tier, asset.Active).Scan(
		&stored.ID,
		&stored.Ticker,
		&stored.Category,
		&stored.Tier,
		&stored.Active,
		&stored.CreatedAt,
		&stored.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert asset %s: %w", asset.Ticker, err)
	}
	return &stored, nil
}
