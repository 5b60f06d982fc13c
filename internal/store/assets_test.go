package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantpulse/price-engine/internal/models"
)

var assetColumns = []string{"id", "ticker", "category", "tier", "active", "created_at", "updated_at"}

func TestAssetStoreGetByTicker(t *testing.T) {
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockPool.Close()

	now := time.Now()
	mockPool.ExpectQuery("SELECT id, ticker, category, tier, active").
		WithArgs("BTC").
		WillReturnRows(pgxmock.NewRows(assetColumns).
			AddRow(int64(1), "BTC", models.CategoryCrypto, 1, true, now, now))

	store := NewAssetStore(mockPool)
	asset, err := store.GetByTicker(context.Background(), "BTC")
	require.NoError(t, err)
	require.NotNil(t, asset)
	assert.Equal(t, int64(1), asset.ID)
	assert.Equal(t, "BTC", asset.Ticker)
	assert.Equal(t, models.CategoryCrypto, asset.Category)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestAssetStoreGetByTickerUnknown(t *testing.T) {
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockPool.Close()

	mockPool.ExpectQuery("SELECT id, ticker, category, tier, active").
		WithArgs("NOPE").
		WillReturnError(pgx.ErrNoRows)

	store := NewAssetStore(mockPool)
	asset, err := store.GetByTicker(context.Background(), "NOPE")
	require.NoError(t, err)
	assert.Nil(t, asset)
}

func TestAssetStoreList(t *testing.T) {
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockPool.Close()

	now := time.Now()
	mockPool.ExpectQuery("SELECT id, ticker, category, tier, active").
		WithArgs(models.CategoryCrypto, 2).
		WillReturnRows(pgxmock.NewRows(assetColumns).
			AddRow(int64(1), "BTC", models.CategoryCrypto, 1, true, now, now).
			AddRow(int64(2), "ETH", models.CategoryCrypto, 2, true, now, now))

	store := NewAssetStore(mockPool)
	assets, err := store.List(context.Background(), models.CategoryCrypto, 2)
	require.NoError(t, err)
	require.Len(t, assets, 2)
	assert.Equal(t, "BTC", assets[0].Ticker)
	assert.Equal(t, "ETH", assets[1].Ticker)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestAssetStoreUpsert(t *testing.T) {
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockPool.Close()

	now := time.Now()
	mockPool.ExpectQuery("INSERT INTO assets").
		WithArgs("SOL", models.CategoryCrypto, 4, true).
		WillReturnRows(pgxmock.NewRows(assetColumns).
			AddRow(int64(9), "SOL", models.CategoryCrypto, 4, true, now, now))

	store := NewAssetStore(mockPool)
	stored, err := store.Upsert(context.Background(), models.Asset{
		Ticker:   "SOL",
		Category: models.CategoryCrypto,
		Tier:     4,
		Active:   true,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(9), stored.ID)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}
