package strategy

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"candlesync/pkg/market"
)

const defaultContextBars = 50

// HistorySource serves the candle window handed to strategies.
type HistorySource interface {
	GetHistory(ctx context.Context, symbol string, tf market.Timeframe,
		upto time.Time, count int) ([]market.Candle, error)
}

// Engine runs every catalogued strategy against each candle close. No
// strategy failure stops the others; signals are logged, not acted on.
type Engine struct {
	catalog     *Catalog
	history     HistorySource
	indicators  IndicatorSource
	params      ParamSource // nil means defaults everywhere
	contextBars int
	logger      *zap.Logger
}

func NewEngine(catalog *Catalog, history HistorySource, indicators IndicatorSource,
	params ParamSource, contextBars int, logger *zap.Logger) *Engine {
	if contextBars < 1 {
		contextBars = defaultContextBars
	}
	return &Engine{
		catalog:     catalog,
		history:     history,
		indicators:  indicators,
		params:      params,
		contextBars: contextBars,
		logger:      logger,
	}
}

func (e *Engine) strategyParams(name string) map[string]decimal.Decimal {
	if e.params == nil {
		return nil
	}
	return e.params.Params(name)
}

// Evaluate runs all strategies for the candle closing at candleTime.
func (e *Engine) Evaluate(ctx context.Context, symbol string, tf market.Timeframe, candleTime time.Time) {
	strategies := e.catalog.List()
	if len(strategies) == 0 {
		return
	}

	history, err := e.history.GetHistory(ctx, symbol, tf, candleTime, e.contextBars)
	if err != nil {
		e.logger.Error("failed to load strategy history",
			zap.String("symbol", symbol),
			zap.String("timeframe", tf.String()),
			zap.Error(err))
		return
	}
	if len(history) == 0 {
		e.logger.Debug("no history for strategy evaluation",
			zap.String("symbol", symbol),
			zap.String("timeframe", tf.String()),
			zap.Time("candle_time", candleTime))
		return
	}

	for _, s := range strategies {
		if ctx.Err() != nil {
			return
		}

		result, err := s.Evaluate(ctx, Context{
			Symbol:     symbol,
			Timeframe:  tf,
			CandleTime: candleTime,
			History:    history,
			Params:     e.strategyParams(s.Name()),
			Indicators: e.indicators,
		})
		if err != nil {
			e.logger.Error("strategy evaluation failed",
				zap.String("strategy", s.Name()),
				zap.String("symbol", symbol),
				zap.String("timeframe", tf.String()),
				zap.Time("candle_time", candleTime),
				zap.Error(err))
			continue
		}

		if result.Action == ActionNone {
			continue
		}

		e.logger.Info("strategy signal",
			zap.String("strategy", s.Name()),
			zap.String("action", result.Action.String()),
			zap.String("confidence", result.Confidence.String()),
			zap.String("reason", result.Reason),
			zap.String("symbol", symbol),
			zap.String("timeframe", tf.String()),
			zap.Time("candle_time", candleTime))
	}
}
