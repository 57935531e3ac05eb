package strategy

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"candlesync/pkg/market"
)

// Action is a strategy's trading signal.
type Action int

const (
	ActionNone Action = iota
	ActionBuy
	ActionSell
)

func (a Action) String() string {
	switch a {
	case ActionBuy:
		return "buy"
	case ActionSell:
		return "sell"
	default:
		return "none"
	}
}

// IndicatorSource evaluates indicator requests for strategies.
type IndicatorSource interface {
	Get(ctx context.Context, req market.IndicatorRequest) (market.IndicatorResult, error)
}

// Context carries everything one evaluation may consult. History is
// ascending and ends at the candle being evaluated.
type Context struct {
	Symbol     string
	Timeframe  market.Timeframe
	CandleTime time.Time
	History    []market.Candle
	Params     map[string]decimal.Decimal
	Indicators IndicatorSource
}

// Result is the outcome of one evaluation. Confidence is within [0,1] and
// meaningful only when Action is not ActionNone.
type Result struct {
	Action     Action
	Confidence decimal.Decimal
	Reason     string
}

// None is the no-signal result.
func None() Result {
	return Result{Action: ActionNone}
}

// Strategy evaluates one candle close into a trading signal.
type Strategy interface {
	Name() string
	Version() int
	Evaluate(ctx context.Context, sctx Context) (Result, error)
}

// param reads a strategy parameter with a fallback.
func param(params map[string]decimal.Decimal, name string, fallback decimal.Decimal) decimal.Decimal {
	if v, ok := params[name]; ok {
		return v
	}
	return fallback
}

func paramInt(params map[string]decimal.Decimal, name string, fallback int64) decimal.Decimal {
	return param(params, name, decimal.NewFromInt(fallback))
}

// clamp01 bounds v to [0,1].
func clamp01(v decimal.Decimal) decimal.Decimal {
	if v.IsNegative() {
		return decimal.Zero
	}
	one := decimal.NewFromInt(1)
	if v.GreaterThan(one) {
		return one
	}
	return v
}
