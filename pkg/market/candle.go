// Package market holds the exchange-agnostic domain types shared by the
// feed, storage, and indicator layers.
package market

import (
	"time"

	"github.com/shopspring/decimal"
)

// Candle is one OHLCV bar. Prices and volume are exact decimals so repeated
// aggregation never accumulates binary rounding drift. OpenTime is always
// UTC and aligned to the timeframe's period boundary.
type Candle struct {
	OpenTime time.Time
	Open     decimal.Decimal
	High     decimal.Decimal
	Low      decimal.Decimal
	Close    decimal.Decimal
	Volume   decimal.Decimal
}

// CandleEvent is a streaming update. Closed=false is the still-forming
// current bar and may arrive repeatedly with revised values; each bar closes
// exactly once with Closed=true.
type CandleEvent struct {
	Candle
	Closed bool
}
