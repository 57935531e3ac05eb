package indicator

import (
	"context"
	"time"

	"go.uber.org/zap"

	"candlesync/pkg/market"
)

// HistorySource serves closed candles for warmup windows: up to count
// candles with open time <= upto, ascending.
type HistorySource interface {
	GetHistory(ctx context.Context, symbol string, tf market.Timeframe,
		upto time.Time, count int) ([]market.Candle, error)
}

// Engine evaluates indicator requests: cache lookup, then warmup history
// fetch and calculation, then cache write-through.
type Engine struct {
	registry *Registry
	history  HistorySource
	cache    *Cache
	logger   *zap.Logger
}

func NewEngine(registry *Registry, history HistorySource, cache *Cache, logger *zap.Logger) *Engine {
	return &Engine{
		registry: registry,
		history:  history,
		cache:    cache,
		logger:   logger,
	}
}

func (e *Engine) Get(ctx context.Context, req market.IndicatorRequest) (market.IndicatorResult, error) {
	calculator, err := e.registry.Get(req.Name)
	if err != nil {
		return market.IndicatorResult{}, err
	}

	if result, ok := e.cache.Get(ctx, req); ok {
		return result, nil
	}

	warmup, err := calculator.WarmupCandleCount(req)
	if err != nil {
		return market.IndicatorResult{}, err
	}
	if warmup < 1 {
		warmup = 1
	}

	candles, err := e.history.GetHistory(ctx, req.Symbol, req.Timeframe, req.CandleTime, warmup)
	if err != nil {
		return market.IndicatorResult{}, err
	}
	if len(candles) < warmup {
		return market.IndicatorResult{}, insufficientHistory(calculator.Name(), len(candles), warmup)
	}

	result, err := calculator.Calculate(req, candles)
	if err != nil {
		return market.IndicatorResult{}, err
	}

	e.cache.Set(ctx, req, result)

	e.logger.Debug("calculated indicator",
		zap.String("name", req.Name),
		zap.String("symbol", req.Symbol),
		zap.String("timeframe", req.Timeframe.String()),
		zap.Time("candle_time", req.CandleTime))

	return result, nil
}

// Invalidate drops cached evaluations for a candle that was re-ingested.
func (e *Engine) Invalidate(ctx context.Context, symbol string, tf market.Timeframe, candleTime time.Time) {
	e.cache.Invalidate(ctx, symbol, tf, candleTime)
}
