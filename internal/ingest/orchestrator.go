package ingest

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"candlesync/pkg/market"
)

const defaultStreamCooldown = 3 * time.Second

// Feed provides historical and streaming market data.
type Feed interface {
	GetHistory(ctx context.Context, symbol string, tf market.Timeframe,
		from, to time.Time) ([]market.Candle, error)
	Stream(ctx context.Context, symbol string, tf market.Timeframe) <-chan market.CandleEvent
}

// Repository persists closed candles.
type Repository interface {
	Upsert(ctx context.Context, symbol string, tf market.Timeframe, candles []market.Candle) error
	GetLastOpenTime(ctx context.Context, symbol string, tf market.Timeframe) (time.Time, bool, error)
}

// Evaluator runs strategies after a candle close is persisted.
type Evaluator interface {
	Evaluate(ctx context.Context, symbol string, tf market.Timeframe, candleTime time.Time)
}

// Invalidator drops cached indicator results for a re-ingested candle.
type Invalidator interface {
	Invalidate(ctx context.Context, symbol string, tf market.Timeframe, candleTime time.Time)
}

// Options tunes the orchestrator.
type Options struct {
	// BackfillWindow bounds the initial fetch when nothing is stored yet.
	BackfillWindow time.Duration

	// MaxConcurrency caps simultaneous backfills across all pairs.
	MaxConcurrency int

	// StreamCooldown is the pause before re-subscribing after the stream
	// terminates. Defaults to 3s.
	StreamCooldown time.Duration
}

// Orchestrator runs one ingestion loop per (symbol, timeframe): a gap
// backfill over REST, then continuous stream consumption. Pairs are
// independent failure domains; one pair's errors never stop another.
type Orchestrator struct {
	feed       Feed
	repo       Repository
	strategies Evaluator
	indicators Invalidator
	live       *LiveBarCache
	opts       Options
	restGate   chan struct{}
	logger     *zap.Logger
}

func NewOrchestrator(feed Feed, repo Repository, strategies Evaluator, indicators Invalidator,
	live *LiveBarCache, opts Options, logger *zap.Logger) *Orchestrator {

	if opts.MaxConcurrency < 1 {
		opts.MaxConcurrency = 1
	}
	if opts.StreamCooldown <= 0 {
		opts.StreamCooldown = defaultStreamCooldown
	}
	return &Orchestrator{
		feed:       feed,
		repo:       repo,
		strategies: strategies,
		indicators: indicators,
		live:       live,
		opts:       opts,
		restGate:   make(chan struct{}, opts.MaxConcurrency),
		logger:     logger,
	}
}

// Run ingests every (symbol, timeframe) pair until ctx is cancelled.
func (o *Orchestrator) Run(ctx context.Context, symbols []string, timeframes []market.Timeframe) {
	var wg sync.WaitGroup
	for _, symbol := range symbols {
		for _, tf := range timeframes {
			wg.Add(1)
			go func(symbol string, tf market.Timeframe) {
				defer wg.Done()
				o.runPair(ctx, symbol, tf)
			}(symbol, tf)
		}
	}
	wg.Wait()
}

func (o *Orchestrator) runPair(ctx context.Context, symbol string, tf market.Timeframe) {
	log := o.logger.With(zap.String("symbol", symbol), zap.String("timeframe", tf.String()))

	// A failed backfill leaves a gap the next restart will close; streaming
	// still starts so live data is not lost on top of it.
	if err := o.backfill(ctx, symbol, tf); err != nil {
		if ctx.Err() != nil {
			return
		}
		log.Error("backfill failed", zap.Error(err))
	}

	for ctx.Err() == nil {
		events := o.feed.Stream(ctx, symbol, tf)
		for ev := range events {
			o.handleEvent(ctx, symbol, tf, ev)
		}
		if ctx.Err() != nil {
			return
		}

		log.Warn("candle stream terminated, re-subscribing",
			zap.Duration("cooldown", o.opts.StreamCooldown))
		select {
		case <-ctx.Done():
			return
		case <-time.After(o.opts.StreamCooldown):
		}
	}
}

// backfill fetches the closed candles between the last stored open time and
// now, gated so only MaxConcurrency pairs hit the REST API at once.
func (o *Orchestrator) backfill(ctx context.Context, symbol string, tf market.Timeframe) error {
	now := time.Now().UTC()

	from := now.Add(-o.opts.BackfillWindow)
	if last, ok, err := o.repo.GetLastOpenTime(ctx, symbol, tf); err != nil {
		return err
	} else if ok {
		from = last.Add(tf.Duration())
	}

	select {
	case o.restGate <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-o.restGate }()

	candles, err := o.feed.GetHistory(ctx, symbol, tf, from, now)
	if err != nil {
		return err
	}
	if len(candles) == 0 {
		return nil
	}

	if err := o.repo.Upsert(ctx, symbol, tf, candles); err != nil {
		return err
	}

	o.logger.Info("backfill complete",
		zap.String("symbol", symbol),
		zap.String("timeframe", tf.String()),
		zap.Int("count", len(candles)),
		zap.Time("from", from))
	return nil
}

// handleEvent persists closed bars before strategies see them; in-progress
// bars only update the live cache.
func (o *Orchestrator) handleEvent(ctx context.Context, symbol string, tf market.Timeframe, ev market.CandleEvent) {
	if !ev.Closed {
		o.live.Store(ctx, symbol, tf, ev.Candle)
		return
	}

	if err := o.repo.Upsert(ctx, symbol, tf, []market.Candle{ev.Candle}); err != nil {
		o.logger.Error("failed to persist closed candle",
			zap.String("symbol", symbol),
			zap.String("timeframe", tf.String()),
			zap.Time("open_time", ev.OpenTime),
			zap.Error(err))
		return
	}

	o.indicators.Invalidate(ctx, symbol, tf, ev.OpenTime)
	o.strategies.Evaluate(ctx, symbol, tf, ev.OpenTime)
}
