package indicator

import (
	"github.com/shopspring/decimal"

	"candlesync/pkg/market"
)

// ADXCalculator is Wilder's average directional index. Directional movement
// and true range are smoothed into +DI/-DI, their divergence into a DX
// series, and the DX series into the ADX. The warmup needs two periods so
// at least one full period of DX values exists.
type ADXCalculator struct{}

func (ADXCalculator) Name() string { return "ADX" }

func (ADXCalculator) WarmupCandleCount(req market.IndicatorRequest) (int, error) {
	period, err := requiredPeriod(req)
	if err != nil {
		return 0, err
	}
	return period * 2, nil
}

func (c ADXCalculator) Calculate(req market.IndicatorRequest, candles []market.Candle) (market.IndicatorResult, error) {
	period, err := requiredPeriod(req)
	if err != nil {
		return market.IndicatorResult{}, err
	}
	if len(candles) < period*2 {
		return market.IndicatorResult{}, insufficientHistory(c.Name(), len(candles), period*2)
	}

	p := decimal.NewFromInt(int64(period))
	pMinusOne := p.Sub(decimal.NewFromInt(1))

	smoothedTR := decimal.Zero
	smoothedPlusDM := decimal.Zero
	smoothedMinusDM := decimal.Zero

	var latestPlusDI, latestMinusDI decimal.Decimal
	var dxSeries []decimal.Decimal

	for i := 1; i < len(candles); i++ {
		current, previous := candles[i], candles[i-1]

		upMove := current.High.Sub(previous.High)
		downMove := previous.Low.Sub(current.Low)

		plusDM, minusDM := decimal.Zero, decimal.Zero
		if upMove.GreaterThan(downMove) && upMove.IsPositive() {
			plusDM = upMove
		}
		if downMove.GreaterThan(upMove) && downMove.IsPositive() {
			minusDM = downMove
		}

		tr := trueRange(current, previous.Close)

		if i <= period {
			smoothedTR = smoothedTR.Add(tr)
			smoothedPlusDM = smoothedPlusDM.Add(plusDM)
			smoothedMinusDM = smoothedMinusDM.Add(minusDM)
			if i == period {
				smoothedTR = smoothedTR.Div(p)
				smoothedPlusDM = smoothedPlusDM.Div(p)
				smoothedMinusDM = smoothedMinusDM.Div(p)
			}
		} else {
			smoothedTR = smoothedTR.Mul(pMinusOne).Add(tr).Div(p)
			smoothedPlusDM = smoothedPlusDM.Mul(pMinusOne).Add(plusDM).Div(p)
			smoothedMinusDM = smoothedMinusDM.Mul(pMinusOne).Add(minusDM).Div(p)
		}

		if i >= period {
			plusDI, minusDI := decimal.Zero, decimal.Zero
			if smoothedTR.IsPositive() {
				plusDI = hundred.Mul(smoothedPlusDM.Div(smoothedTR))
				minusDI = hundred.Mul(smoothedMinusDM.Div(smoothedTR))
			}

			latestPlusDI = plusDI
			latestMinusDI = minusDI
			dxSeries = append(dxSeries, directionalIndex(plusDI, minusDI))
		}
	}

	if len(dxSeries) < period {
		return market.IndicatorResult{}, insufficientHistory(c.Name(), len(candles), period*2)
	}

	adx := decimal.Zero
	for _, dx := range dxSeries[:period] {
		adx = adx.Add(dx)
	}
	adx = adx.Div(p)
	for _, dx := range dxSeries[period:] {
		adx = adx.Mul(pMinusOne).Add(dx).Div(p)
	}

	return newResult(req, map[string]decimal.Decimal{
		market.PrimaryValueKey: adx.Round(2),
		"plusDI":               latestPlusDI.Round(2),
		"minusDI":              latestMinusDI.Round(2),
	}), nil
}

// directionalIndex is 100*|+DI - -DI| / (+DI + -DI), zero when both vanish.
func directionalIndex(plusDI, minusDI decimal.Decimal) decimal.Decimal {
	denominator := plusDI.Add(minusDI)
	if denominator.IsZero() {
		return decimal.Zero
	}
	return hundred.Mul(plusDI.Sub(minusDI).Abs()).Div(denominator)
}
