package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/quantpulse/price-engine/internal/models"
)

// TimeSeriesStore handles the bulk candle write and read path.
type TimeSeriesStore struct {
	pool Pool
}

// NewTimeSeriesStore creates a new time-series store.
func NewTimeSeriesStore(pool Pool) *TimeSeriesStore {
	return &TimeSeriesStore{pool: pool}
}

// InsertBatch writes records in a single batched round trip with
// insert-or-ignore semantics on (asset_id, interval_minutes, timestamp).
// Returns how many rows were actually new; re-inserting the same candles is
// a no-op, never an error.
func (s *TimeSeriesStore) InsertBatch(ctx context.Context, records []models.PriceRecord) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}

	insert := `
		INSERT INTO price_records
			(asset_id, interval_minutes, timestamp, open, high, low, close, volume, trade_count, source, quote_currency)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (asset_id, interval_minutes, timestamp) DO NOTHING
	`

	batch := &pgx.Batch{}
	for _, r := range records {
		batch.Queue(insert,
			r.AssetID,
			int(r.Interval),
			r.Timestamp,
			r.Open,
			r.High,
			r.Low,
			r.Close,
			r.Volume,
			r.TradeCount,
			r.Source,
			r.QuoteCurrency,
		)
	}

	results := s.pool.SendBatch(ctx, batch)
	defer func() { _ = results.Close() }()

	var created int64
	for range records {
		tag, err := results.Exec()
		if err != nil {
			return created, fmt.Errorf("failed to insert price record: %w", err)
		}
		created += tag.RowsAffected()
	}
	return created, nil
}

// QueryRange returns stored candles for [start, end], oldest first. Used for
// coverage verification.
func (s *TimeSeriesStore) QueryRange(ctx context.Context, assetID int64, interval models.Interval, start, end time.Time) ([]models.PriceRecord, error) {
	query := `
		SELECT asset_id, interval_minutes, timestamp, open, high, low, close, volume, trade_count, source, quote_currency
		FROM price_records
		WHERE asset_id = $1 AND interval_minutes = $2 AND timestamp BETWEEN $3 AND $4
		ORDER BY timestamp
	`

	rows, err := s.pool.Query(ctx, query, assetID, int(interval), start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query price records: %w", err)
	}
	defer rows.Close()

	var records []models.PriceRecord
	for rows.Next() {
		var r models.PriceRecord
		var intervalMinutes int
		if err := rows.Scan(
			&r.AssetID,
			&intervalMinutes,
			&r.Timestamp,
			&r.Open,
			&r.High,
			&r.Low,
			&r.Close,
			&r.Volume,
			&r.TradeCount,
			&r.Source,
			&r.QuoteCurrency,
		); err != nil {
			return nil, fmt.Errorf("failed to scan price record: %w", err)
		}
		r.Interval = models.Interval(intervalMinutes)
		records = append(records, r)
	}
	return records, rows.Err()
}
