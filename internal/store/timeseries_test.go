package store

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantpulse/price-engine/internal/models"
)

func dailyRecord(assetID int64, ts time.Time) models.PriceRecord {
	return models.PriceRecord{
		AssetID:       assetID,
		Interval:      models.Interval1d,
		Timestamp:     ts,
		Open:          decimal.NewFromInt(100),
		High:          decimal.NewFromInt(110),
		Low:           decimal.NewFromInt(90),
		Close:         decimal.NewFromInt(105),
		Volume:        decimal.NewFromInt(1000),
		Source:        "testfeed",
		QuoteCurrency: "USD",
	}
}

func TestTimeSeriesStoreInsertBatchCountsNewRows(t *testing.T) {
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockPool.Close()

	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	// First row lands, second hits the conflict target and is ignored.
	batch := mockPool.ExpectBatch()
	batch.ExpectExec("INSERT INTO price_records").WillReturnResult(pgxmock.NewResult("INSERT", 1))
	batch.ExpectExec("INSERT INTO price_records").WillReturnResult(pgxmock.NewResult("INSERT", 0))

	store := NewTimeSeriesStore(mockPool)
	created, err := store.InsertBatch(context.Background(), []models.PriceRecord{
		dailyRecord(1, ts),
		dailyRecord(1, ts.Add(24*time.Hour)),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), created)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestTimeSeriesStoreInsertBatchEmpty(t *testing.T) {
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockPool.Close()

	store := NewTimeSeriesStore(mockPool)
	created, err := store.InsertBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), created)
}

func TestTimeSeriesStoreQueryRange(t *testing.T) {
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockPool.Close()

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)

	columns := []string{"asset_id", "interval_minutes", "timestamp", "open", "high", "low", "close", "volume", "trade_count", "source", "quote_currency"}
	mockPool.ExpectQuery("SELECT asset_id, interval_minutes, timestamp").
		WithArgs(int64(1), 1440, start, end).
		WillReturnRows(pgxmock.NewRows(columns).
			AddRow(int64(1), 1440, start, "100.5", "110.25", "95.75", "105", "12345.678", nil, "testfeed", "USD"))

	store := NewTimeSeriesStore(mockPool)
	records, err := store.QueryRange(context.Background(), 1, models.Interval1d, start, end)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, models.Interval1d, records[0].Interval)
	assert.Equal(t, "100.5", records[0].Open.String())
	assert.Nil(t, records[0].TradeCount)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}
