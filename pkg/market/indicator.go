package market

import (
	"time"

	"github.com/shopspring/decimal"
)

// PrimaryValueKey is the well-known key every IndicatorResult carries.
const PrimaryValueKey = "value"

// IndicatorRequest identifies one indicator evaluation. Two requests with
// the same fields are the same request regardless of Params iteration order.
type IndicatorRequest struct {
	Name       string
	Symbol     string
	Timeframe  Timeframe
	CandleTime time.Time
	Params     map[string]decimal.Decimal
}

// IndicatorResult is the outcome of one evaluation. It is produced once and
// never mutated; concurrent readers share it safely.
type IndicatorResult struct {
	Name       string
	Symbol     string
	Timeframe  Timeframe
	CandleTime time.Time
	Values     map[string]decimal.Decimal
}

// Primary returns the result's primary value.
func (r IndicatorResult) Primary() decimal.Decimal {
	return r.Values[PrimaryValueKey]
}
