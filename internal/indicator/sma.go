package indicator

import (
	"github.com/shopspring/decimal"

	"candlesync/pkg/market"
)

// SMACalculator is the simple moving average of closing prices.
type SMACalculator struct{}

func (SMACalculator) Name() string { return "SMA" }

func (SMACalculator) WarmupCandleCount(req market.IndicatorRequest) (int, error) {
	return requiredPeriod(req)
}

func (c SMACalculator) Calculate(req market.IndicatorRequest, candles []market.Candle) (market.IndicatorResult, error) {
	period, err := requiredPeriod(req)
	if err != nil {
		return market.IndicatorResult{}, err
	}
	if len(candles) < period {
		return market.IndicatorResult{}, insufficientHistory(c.Name(), len(candles), period)
	}

	sum := decimal.Zero
	for _, candle := range candles[len(candles)-period:] {
		sum = sum.Add(candle.Close)
	}

	value := sum.Div(decimal.NewFromInt(int64(period))).Round(8)
	return newResult(req, map[string]decimal.Decimal{
		market.PrimaryValueKey: value,
	}), nil
}
