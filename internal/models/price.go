package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Interval is a candle duration in minutes.
type Interval int

const (
	Interval1m  Interval = 1
	Interval5m  Interval = 5
	Interval15m Interval = 15
	Interval30m Interval = 30
	Interval1h  Interval = 60
	Interval4h  Interval = 240
	Interval1d  Interval = 1440
	Interval1w  Interval = 10080
	Interval15d Interval = 21600
)

var supportedIntervals = map[Interval]bool{
	Interval1m:  true,
	Interval5m:  true,
	Interval15m: true,
	Interval30m: true,
	Interval1h:  true,
	Interval4h:  true,
	Interval1d:  true,
	Interval1w:  true,
	Interval15d: true,
}

// Valid reports whether the interval is one of the supported candle durations.
func (i Interval) Valid() bool {
	return supportedIntervals[i]
}

// Duration returns the interval as a time.Duration.
func (i Interval) Duration() time.Duration {
	return time.Duration(i) * time.Minute
}

// Align truncates t down to the interval boundary in UTC.
func (i Interval) Align(t time.Time) time.Time {
	return t.UTC().Truncate(i.Duration())
}

// PriceRecord represents one OHLCV candle. (AssetID, Interval, Timestamp) is
// the natural key; ingesting the same candle twice must be a no-op.
type PriceRecord struct {
	AssetID       int64           `json:"asset_id" db:"asset_id"`
	Interval      Interval        `json:"interval" db:"interval"`
	Timestamp     time.Time       `json:"timestamp" db:"timestamp"` // candle open, UTC, interval-aligned
	Open          decimal.Decimal `json:"open" db:"open"`
	High          decimal.Decimal `json:"high" db:"high"`
	Low           decimal.Decimal `json:"low" db:"low"`
	Close         decimal.Decimal `json:"close" db:"close"`
	Volume        decimal.Decimal `json:"volume" db:"volume"`
	TradeCount    *int64          `json:"trade_count,omitempty" db:"trade_count"`
	Source        string          `json:"source" db:"source"`
	QuoteCurrency string          `json:"quote_currency" db:"quote_currency"`
}
