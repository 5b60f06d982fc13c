package store

import (
	"context"
	"fmt"

	"github.com/quantpulse/price-engine/internal/models"
)

// CoverageStore handles database operations for ingested coverage ranges.
type CoverageStore struct {
	pool Pool
}

// NewCoverageStore creates a new coverage store.
func NewCoverageStore(pool Pool) *CoverageStore {
	return &CoverageStore{pool: pool}
}

// GetRanges returns every stored range for (asset, interval), sorted by
// start time.
func (s *CoverageStore) GetRanges(ctx context.Context, assetID int64, interval models.Interval) ([]models.CoverageRange, error) {
	query := `
		SELECT id, asset_id, interval_minutes, range_start, range_end, updated_at
		FROM coverage_ranges
		WHERE asset_id = $1 AND interval_minutes = $2
		ORDER BY range_start
	`

	rows, err := s.pool.Query(ctx, query, assetID, int(interval))
	if err != nil {
		return nil, fmt.Errorf("failed to query coverage ranges: %w", err)
	}
	defer rows.Close()

	var ranges []models.CoverageRange
	for rows.Next() {
		var r models.CoverageRange
		var intervalMinutes int
		if err := rows.Scan(&r.ID, &r.AssetID, &intervalMinutes, &r.RangeStart, &r.RangeEnd, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan coverage row: %w", err)
		}
		r.Interval = models.Interval(intervalMinutes)
		ranges = append(ranges, r)
	}
	return ranges, rows.Err()
}

// ReplaceRanges deletes the superseded rows and inserts the merged range in
// one transaction, so concurrent readers never observe a missing span.
func (s *CoverageStore) ReplaceRanges(ctx context.Context, assetID int64, interval models.Interval, deleteIDs []int64, merged models.Span) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin coverage transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if len(deleteIDs) > 0 {
		if _, err := tx.Exec(ctx, `DELETE FROM coverage_ranges WHERE id = ANY($1)`, deleteIDs); err != nil {
			return fmt.Errorf("failed to delete superseded ranges: %w", err)
		}
	}

	insert := `
		INSERT INTO coverage_ranges (asset_id, interval_minutes, range_start, range_end)
		VALUES ($1, $2, $3, $4)
	`
	if _, err := tx.Exec(ctx, insert, assetID, int(interval), merged.Start, merged.End); err != nil {
		return fmt.Errorf("failed to insert merged range: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit coverage transaction: %w", err)
	}
	return nil
}
