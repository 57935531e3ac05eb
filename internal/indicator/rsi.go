package indicator

import (
	"github.com/shopspring/decimal"

	"candlesync/pkg/market"
)

var (
	hundred = decimal.NewFromInt(100)
	fifty   = decimal.NewFromInt(50)
)

// RSICalculator is Wilder's relative strength index. The first period deltas
// seed the averages; later deltas are smoothed recursively.
type RSICalculator struct{}

func (RSICalculator) Name() string { return "RSI" }

func (RSICalculator) WarmupCandleCount(req market.IndicatorRequest) (int, error) {
	period, err := requiredPeriod(req)
	if err != nil {
		return 0, err
	}
	return period + 1, nil
}

func (c RSICalculator) Calculate(req market.IndicatorRequest, candles []market.Candle) (market.IndicatorResult, error) {
	period, err := requiredPeriod(req)
	if err != nil {
		return market.IndicatorResult{}, err
	}
	if len(candles) < period+1 {
		return market.IndicatorResult{}, insufficientHistory(c.Name(), len(candles), period+1)
	}

	p := decimal.NewFromInt(int64(period))
	pMinusOne := p.Sub(decimal.NewFromInt(1))

	gainSum := decimal.Zero
	lossSum := decimal.Zero
	for i := 1; i <= period; i++ {
		delta := candles[i].Close.Sub(candles[i-1].Close)
		if delta.IsNegative() {
			lossSum = lossSum.Add(delta.Neg())
		} else {
			gainSum = gainSum.Add(delta)
		}
	}

	avgGain := gainSum.Div(p)
	avgLoss := lossSum.Div(p)

	for i := period + 1; i < len(candles); i++ {
		delta := candles[i].Close.Sub(candles[i-1].Close)
		gain, loss := decimal.Zero, decimal.Zero
		if delta.IsPositive() {
			gain = delta
		} else if delta.IsNegative() {
			loss = delta.Neg()
		}

		avgGain = avgGain.Mul(pMinusOne).Add(gain).Div(p)
		avgLoss = avgLoss.Mul(pMinusOne).Add(loss).Div(p)
	}

	var rsi decimal.Decimal
	switch {
	case avgLoss.IsZero() && avgGain.IsZero():
		rsi = fifty // flat market has no directional strength
	case avgLoss.IsZero():
		rsi = hundred
	default:
		rs := avgGain.Div(avgLoss)
		rsi = hundred.Sub(hundred.Div(decimal.NewFromInt(1).Add(rs)))
	}

	rsi = rsi.Round(2)
	if rsi.IsNegative() {
		rsi = decimal.Zero
	} else if rsi.GreaterThan(hundred) {
		rsi = hundred
	}

	return newResult(req, map[string]decimal.Decimal{
		market.PrimaryValueKey: rsi,
	}), nil
}
