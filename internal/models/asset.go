package models

import (
	"time"
)

// AssetCategory classifies what kind of instrument an asset is.
type AssetCategory string

const (
	CategoryStock     AssetCategory = "STOCK"
	CategoryCrypto    AssetCategory = "CRYPTO"
	CategoryCommodity AssetCategory = "COMMODITY"
	CategoryCurrency  AssetCategory = "CURRENCY"
)

// Valid reports whether the category is one of the known values.
func (c AssetCategory) Valid() bool {
	switch c {
	case CategoryStock, CategoryCrypto, CategoryCommodity, CategoryCurrency:
		return true
	}
	return false
}

// Asset represents an instrument tracked by the ingestion engine. Rows are
// owned by the external metadata store; the engine reads them and upserts new
// tickers discovered during ingestion.
type Asset struct {
	ID        int64         `json:"id" db:"id"`
	Ticker    string        `json:"ticker" db:"ticker"`
	Category  AssetCategory `json:"category" db:"category"`
	Tier      int           `json:"tier" db:"tier"` // importance rank 1 (highest) to 4
	Active    bool          `json:"active" db:"active"`
	CreatedAt time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt time.Time     `json:"updated_at" db:"updated_at"`
}
