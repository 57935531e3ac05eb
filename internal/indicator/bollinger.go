package indicator

import (
	"math"

	"github.com/shopspring/decimal"

	"candlesync/pkg/market"
)

var defaultBandMultiplier = decimal.NewFromInt(2)

// BollingerCalculator computes Bollinger Bands: an SMA basis with bands at
// "stddev" population standard deviations (default 2) around it.
type BollingerCalculator struct{}

func (BollingerCalculator) Name() string { return "BB" }

func (BollingerCalculator) WarmupCandleCount(req market.IndicatorRequest) (int, error) {
	return requiredPeriod(req)
}

func (c BollingerCalculator) Calculate(req market.IndicatorRequest, candles []market.Candle) (market.IndicatorResult, error) {
	period, err := requiredPeriod(req)
	if err != nil {
		return market.IndicatorResult{}, err
	}
	if len(candles) < period {
		return market.IndicatorResult{}, insufficientHistory(c.Name(), len(candles), period)
	}

	multiplier := optionalDecimal(req, "stddev", defaultBandMultiplier)
	p := decimal.NewFromInt(int64(period))
	window := candles[len(candles)-period:]

	sum := decimal.Zero
	for _, candle := range window {
		sum = sum.Add(candle.Close)
	}
	mean := sum.Div(p)

	varianceSum := decimal.Zero
	for _, candle := range window {
		diff := candle.Close.Sub(mean)
		varianceSum = varianceSum.Add(diff.Mul(diff))
	}
	variance, _ := varianceSum.Div(p).Float64()
	stdDev := decimal.NewFromFloat(math.Sqrt(variance))

	spread := multiplier.Mul(stdDev)
	basis := mean.Round(8)

	return newResult(req, map[string]decimal.Decimal{
		market.PrimaryValueKey: basis,
		"basis":                basis,
		"upper":                mean.Add(spread).Round(8),
		"lower":                mean.Sub(spread).Round(8),
		"stdDev":               stdDev.Round(8),
	}), nil
}
