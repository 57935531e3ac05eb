package strategy

import (
	"context"

	"github.com/shopspring/decimal"

	"candlesync/pkg/market"
)

var minBandSpan = decimal.RequireFromString("0.0000001")

// BBReversalStrategy fades moves beyond the Bollinger Bands when RSI agrees
// and ADX shows no established trend. A trending market (ADX at or above
// the threshold) suppresses all signals.
type BBReversalStrategy struct{}

func (BBReversalStrategy) Name() string { return "bb-reversal" }

func (BBReversalStrategy) Version() int { return 1 }

func (s BBReversalStrategy) Evaluate(ctx context.Context, sctx Context) (Result, error) {
	if len(sctx.History) == 0 {
		return None(), nil
	}

	period := paramInt(sctx.Params, "period", 20)
	stdDev := param(sctx.Params, "stddev", decimal.NewFromInt(2))
	rsiPeriod := paramInt(sctx.Params, "rsi_period", 9)
	rsiBuy := param(sctx.Params, "rsi_buy", decimal.NewFromInt(25))
	rsiSell := param(sctx.Params, "rsi_sell", decimal.NewFromInt(75))
	adxPeriod := paramInt(sctx.Params, "adx_period", 14)
	adxThreshold := param(sctx.Params, "adx_threshold", decimal.NewFromInt(20))
	normalization := param(sctx.Params, "confidence_normalization", decimal.NewFromInt(20))

	bb, err := sctx.Indicators.Get(ctx, market.IndicatorRequest{
		Name:       "BB",
		Symbol:     sctx.Symbol,
		Timeframe:  sctx.Timeframe,
		CandleTime: sctx.CandleTime,
		Params:     map[string]decimal.Decimal{"period": period, "stddev": stdDev},
	})
	if err != nil {
		return None(), err
	}

	rsi, err := sctx.Indicators.Get(ctx, market.IndicatorRequest{
		Name:       "RSI",
		Symbol:     sctx.Symbol,
		Timeframe:  sctx.Timeframe,
		CandleTime: sctx.CandleTime,
		Params:     map[string]decimal.Decimal{"period": rsiPeriod},
	})
	if err != nil {
		return None(), err
	}

	adx, err := sctx.Indicators.Get(ctx, market.IndicatorRequest{
		Name:       "ADX",
		Symbol:     sctx.Symbol,
		Timeframe:  sctx.Timeframe,
		CandleTime: sctx.CandleTime,
		Params:     map[string]decimal.Decimal{"period": adxPeriod},
	})
	if err != nil {
		return None(), err
	}

	if adx.Primary().GreaterThanOrEqual(adxThreshold) {
		return None(), nil
	}

	basis := bb.Values["basis"]
	upper := bb.Values["upper"]
	lower := bb.Values["lower"]
	close := sctx.History[len(sctx.History)-1].Close
	rsiValue := rsi.Primary()

	if close.LessThanOrEqual(lower) && rsiValue.LessThanOrEqual(rsiBuy) {
		return Result{
			Action:     ActionBuy,
			Confidence: reversalConfidence(basis.Sub(lower), basis.Sub(close), rsiBuy.Sub(rsiValue), normalization),
			Reason:     "close below lower band without trend",
		}, nil
	}

	if close.GreaterThanOrEqual(upper) && rsiValue.GreaterThanOrEqual(rsiSell) {
		return Result{
			Action:     ActionSell,
			Confidence: reversalConfidence(upper.Sub(basis), close.Sub(basis), rsiValue.Sub(rsiSell), normalization),
			Reason:     "close above upper band without trend",
		}, nil
	}

	return None(), nil
}

// reversalConfidence averages how far the close sits into the band with how
// far RSI sits past its threshold.
func reversalConfidence(bandSpan, bandDepth, rsiDepth, normalization decimal.Decimal) decimal.Decimal {
	if bandSpan.LessThan(minBandSpan) {
		bandSpan = minBandSpan
	}
	bandComponent := clamp01(bandDepth.Div(bandSpan))
	rsiComponent := clamp01(rsiDepth.Div(normalization))
	return clamp01(bandComponent.Add(rsiComponent).Div(decimal.NewFromInt(2)))
}
