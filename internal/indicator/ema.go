package indicator

import (
	"github.com/shopspring/decimal"

	"candlesync/pkg/market"
)

// EMACalculator is the exponential moving average of closing prices, seeded
// with the SMA of the first period and converged over an extended warmup so
// the seed's influence decays.
type EMACalculator struct{}

func (EMACalculator) Name() string { return "EMA" }

func (EMACalculator) WarmupCandleCount(req market.IndicatorRequest) (int, error) {
	period, err := requiredPeriod(req)
	if err != nil {
		return 0, err
	}
	warmup := period * 5
	if warmup < period+1 {
		warmup = period + 1
	}
	return warmup, nil
}

func (c EMACalculator) Calculate(req market.IndicatorRequest, candles []market.Candle) (market.IndicatorResult, error) {
	period, err := requiredPeriod(req)
	if err != nil {
		return market.IndicatorResult{}, err
	}
	if len(candles) < period {
		return market.IndicatorResult{}, insufficientHistory(c.Name(), len(candles), period)
	}

	p := decimal.NewFromInt(int64(period))
	smoothing := decimal.NewFromInt(2).Div(p.Add(decimal.NewFromInt(1)))

	sum := decimal.Zero
	for _, candle := range candles[:period] {
		sum = sum.Add(candle.Close)
	}

	ema := sum.Div(p)
	for _, candle := range candles[period:] {
		ema = candle.Close.Sub(ema).Mul(smoothing).Add(ema)
	}

	return newResult(req, map[string]decimal.Decimal{
		market.PrimaryValueKey: ema.Round(8),
	}), nil
}
