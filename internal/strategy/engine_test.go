package strategy

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"candlesync/pkg/market"
)

// fakeIndicators serves canned values keyed by indicator name.
type fakeIndicators struct {
	values map[string]map[string]decimal.Decimal
}

func (f *fakeIndicators) Get(_ context.Context, req market.IndicatorRequest) (market.IndicatorResult, error) {
	values, ok := f.values[strings.ToUpper(req.Name)]
	if !ok {
		return market.IndicatorResult{}, fmt.Errorf("no canned value for %q", req.Name)
	}
	return market.IndicatorResult{
		Name:       req.Name,
		Symbol:     req.Symbol,
		Timeframe:  req.Timeframe,
		CandleTime: req.CandleTime,
		Values:     values,
	}, nil
}

func primaryOnly(value string) map[string]decimal.Decimal {
	return map[string]decimal.Decimal{
		market.PrimaryValueKey: decimal.RequireFromString(value),
	}
}

type staticHistory struct {
	candles []market.Candle
}

func (s staticHistory) GetHistory(context.Context, string, market.Timeframe, time.Time, int) ([]market.Candle, error) {
	return s.candles, nil
}

func historyClosingAt(close string) []market.Candle {
	return []market.Candle{{
		OpenTime: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		Close:    decimal.RequireFromString(close),
	}}
}

func strategyContext(close string, indicators IndicatorSource) Context {
	history := historyClosingAt(close)
	return Context{
		Symbol:     "BTCUSDT",
		Timeframe:  market.Timeframe1m,
		CandleTime: history[0].OpenTime,
		History:    history,
		Indicators: indicators,
	}
}

func TestRSIBasicStrategy_Signals(t *testing.T) {
	tests := []struct {
		name       string
		rsi        string
		ema        string
		close      string
		wantAction Action
	}{
		{"oversold in uptrend buys", "20", "95", "100", ActionBuy},
		{"oversold below trend filter stays flat", "20", "105", "100", ActionNone},
		{"overbought in downtrend sells", "80", "105", "100", ActionSell},
		{"overbought above trend filter stays flat", "80", "95", "100", ActionNone},
		{"neutral rsi stays flat", "50", "95", "100", ActionNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			indicators := &fakeIndicators{values: map[string]map[string]decimal.Decimal{
				"RSI": primaryOnly(tt.rsi),
				"EMA": primaryOnly(tt.ema),
			}}

			result, err := RSIBasicStrategy{}.Evaluate(context.Background(), strategyContext(tt.close, indicators))
			require.NoError(t, err)
			assert.Equal(t, tt.wantAction, result.Action)
		})
	}
}

func TestRSIBasicStrategy_Confidence(t *testing.T) {
	indicators := &fakeIndicators{values: map[string]map[string]decimal.Decimal{
		"RSI": primaryOnly("15"),
		"EMA": primaryOnly("95"),
	}}

	result, err := RSIBasicStrategy{}.Evaluate(context.Background(), strategyContext("100", indicators))
	require.NoError(t, err)
	require.Equal(t, ActionBuy, result.Action)

	// (25 - 15) / 20 = 0.5
	assert.True(t, result.Confidence.Equal(decimal.RequireFromString("0.5")),
		"confidence = %s", result.Confidence)
}

func bbValues(lower, basis, upper string) map[string]decimal.Decimal {
	return map[string]decimal.Decimal{
		market.PrimaryValueKey: decimal.RequireFromString(basis),
		"basis":                decimal.RequireFromString(basis),
		"upper":                decimal.RequireFromString(upper),
		"lower":                decimal.RequireFromString(lower),
	}
}

func TestBBReversalStrategy_Signals(t *testing.T) {
	tests := []struct {
		name       string
		close      string
		rsi        string
		adx        string
		wantAction Action
	}{
		{"close under lower band with oversold rsi buys", "94", "20", "15", ActionBuy},
		{"close over upper band with overbought rsi sells", "106", "80", "15", ActionSell},
		{"trending market suppresses the signal", "94", "20", "25", ActionNone},
		{"band touch without rsi agreement stays flat", "94", "50", "15", ActionNone},
		{"inside the bands stays flat", "100", "50", "15", ActionNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			indicators := &fakeIndicators{values: map[string]map[string]decimal.Decimal{
				"BB":  bbValues("95", "100", "105"),
				"RSI": primaryOnly(tt.rsi),
				"ADX": primaryOnly(tt.adx),
			}}

			result, err := BBReversalStrategy{}.Evaluate(context.Background(), strategyContext(tt.close, indicators))
			require.NoError(t, err)
			assert.Equal(t, tt.wantAction, result.Action)
		})
	}
}

func TestEngine_FailureIsolation(t *testing.T) {
	evaluated := make([]string, 0, 2)

	catalog := NewCatalog(nil, zap.NewNop())
	catalog.Register(stubStrategy{name: "broken", version: 1,
		eval: func(context.Context, Context) (Result, error) {
			evaluated = append(evaluated, "broken")
			return Result{}, errors.New("indicator unavailable")
		}})
	catalog.Register(stubStrategy{name: "working", version: 1,
		eval: func(context.Context, Context) (Result, error) {
			evaluated = append(evaluated, "working")
			return Result{Action: ActionBuy, Confidence: decimal.NewFromInt(1), Reason: "test"}, nil
		}})

	engine := NewEngine(catalog, staticHistory{candles: historyClosingAt("100")}, &fakeIndicators{}, nil, 50, zap.NewNop())
	engine.Evaluate(context.Background(), "BTCUSDT", market.Timeframe1m,
		time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))

	// List is sorted by name, so the failing strategy runs first and must
	// not stop the second.
	assert.Equal(t, []string{"broken", "working"}, evaluated)
}

func TestEngine_NoHistorySkipsEvaluation(t *testing.T) {
	ran := false
	catalog := NewCatalog(nil, zap.NewNop())
	catalog.Register(stubStrategy{name: "any", version: 1,
		eval: func(context.Context, Context) (Result, error) {
			ran = true
			return None(), nil
		}})

	engine := NewEngine(catalog, staticHistory{}, &fakeIndicators{}, nil, 50, zap.NewNop())
	engine.Evaluate(context.Background(), "BTCUSDT", market.Timeframe1m, time.Now())

	assert.False(t, ran, "strategies must not run without history")
}

func TestEngine_PassesConfiguredParams(t *testing.T) {
	var seen map[string]decimal.Decimal
	catalog := NewCatalog(nil, zap.NewNop())
	catalog.Register(stubStrategy{name: "Tuned", version: 1,
		eval: func(_ context.Context, sctx Context) (Result, error) {
			seen = sctx.Params
			return None(), nil
		}})

	params := NewStaticParams(map[string]map[string]float64{
		"tuned": {"buy_level": 40},
	})
	engine := NewEngine(catalog, staticHistory{candles: historyClosingAt("100")}, &fakeIndicators{}, params, 50, zap.NewNop())
	engine.Evaluate(context.Background(), "BTCUSDT", market.Timeframe1m,
		time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))

	require.NotNil(t, seen, "configured strategies must receive their parameters")
	assert.True(t, seen["buy_level"].Equal(decimal.NewFromInt(40)))
}

func TestRSIBasicStrategy_ConfiguredThresholdOverridesDefault(t *testing.T) {
	indicators := &fakeIndicators{values: map[string]map[string]decimal.Decimal{
		"RSI": primaryOnly("35"),
		"EMA": primaryOnly("95"),
	}}

	// RSI 35 is above the default buy level of 25.
	sctx := strategyContext("100", indicators)
	result, err := RSIBasicStrategy{}.Evaluate(context.Background(), sctx)
	require.NoError(t, err)
	require.Equal(t, ActionNone, result.Action)

	sctx.Params = NewStaticParams(map[string]map[string]float64{
		"rsi-basic": {"buy_level": 40},
	}).Params("rsi-basic")
	result, err = RSIBasicStrategy{}.Evaluate(context.Background(), sctx)
	require.NoError(t, err)
	assert.Equal(t, ActionBuy, result.Action)
}
