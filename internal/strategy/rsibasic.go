package strategy

import (
	"context"

	"github.com/shopspring/decimal"

	"candlesync/pkg/market"
)

// RSIBasicStrategy signals on RSI extremes, optionally filtered by an EMA
// trend: buys need the close at or above the EMA, sells at or below it.
// Setting trend_filter_ema to 0 disables the filter.
type RSIBasicStrategy struct{}

func (RSIBasicStrategy) Name() string { return "rsi-basic" }

func (RSIBasicStrategy) Version() int { return 1 }

func (s RSIBasicStrategy) Evaluate(ctx context.Context, sctx Context) (Result, error) {
	if len(sctx.History) == 0 {
		return None(), nil
	}

	period := paramInt(sctx.Params, "period", 9)
	buyLevel := param(sctx.Params, "buy_level", decimal.NewFromInt(25))
	sellLevel := param(sctx.Params, "sell_level", decimal.NewFromInt(75))
	trendEMA := paramInt(sctx.Params, "trend_filter_ema", 50)
	normalization := param(sctx.Params, "confidence_normalization", decimal.NewFromInt(20))

	rsi, err := sctx.Indicators.Get(ctx, market.IndicatorRequest{
		Name:       "RSI",
		Symbol:     sctx.Symbol,
		Timeframe:  sctx.Timeframe,
		CandleTime: sctx.CandleTime,
		Params:     map[string]decimal.Decimal{"period": period},
	})
	if err != nil {
		return None(), err
	}

	var ema *decimal.Decimal
	if trendEMA.IsPositive() {
		result, err := sctx.Indicators.Get(ctx, market.IndicatorRequest{
			Name:       "EMA",
			Symbol:     sctx.Symbol,
			Timeframe:  sctx.Timeframe,
			CandleTime: sctx.CandleTime,
			Params:     map[string]decimal.Decimal{"period": trendEMA},
		})
		if err != nil {
			return None(), err
		}
		v := result.Primary()
		ema = &v
	}

	close := sctx.History[len(sctx.History)-1].Close
	rsiValue := rsi.Primary()

	trendUp := ema == nil || close.GreaterThanOrEqual(*ema)
	trendDown := ema == nil || close.LessThanOrEqual(*ema)

	if rsiValue.LessThanOrEqual(buyLevel) && trendUp {
		return Result{
			Action:     ActionBuy,
			Confidence: clamp01(buyLevel.Sub(rsiValue).Div(normalization)),
			Reason:     "rsi oversold in uptrend",
		}, nil
	}

	if rsiValue.GreaterThanOrEqual(sellLevel) && trendDown {
		return Result{
			Action:     ActionSell,
			Confidence: clamp01(rsiValue.Sub(sellLevel).Div(normalization)),
			Reason:     "rsi overbought in downtrend",
		}, nil
	}

	return None(), nil
}
