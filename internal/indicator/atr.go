package indicator

import (
	"github.com/shopspring/decimal"

	"candlesync/pkg/market"
)

// ATRCalculator is Wilder's average true range, seeded with the simple
// average of the first period true ranges.
type ATRCalculator struct{}

func (ATRCalculator) Name() string { return "ATR" }

func (ATRCalculator) WarmupCandleCount(req market.IndicatorRequest) (int, error) {
	period, err := requiredPeriod(req)
	if err != nil {
		return 0, err
	}
	return period + 1, nil
}

func (c ATRCalculator) Calculate(req market.IndicatorRequest, candles []market.Candle) (market.IndicatorResult, error) {
	period, err := requiredPeriod(req)
	if err != nil {
		return market.IndicatorResult{}, err
	}
	if len(candles) < period+1 {
		return market.IndicatorResult{}, insufficientHistory(c.Name(), len(candles), period+1)
	}

	p := decimal.NewFromInt(int64(period))
	pMinusOne := p.Sub(decimal.NewFromInt(1))

	atr := decimal.Zero
	prevClose := candles[0].Close

	for i := 1; i < len(candles); i++ {
		tr := trueRange(candles[i], prevClose)
		if i <= period {
			atr = atr.Add(tr)
			if i == period {
				atr = atr.Div(p)
			}
		} else {
			atr = atr.Mul(pMinusOne).Add(tr).Div(p)
		}
		prevClose = candles[i].Close
	}

	return newResult(req, map[string]decimal.Decimal{
		market.PrimaryValueKey: atr.Round(8),
	}), nil
}
