package bybit

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"candlesync/pkg/market"
)

// HistoryClient fetches one page of closed candles, ascending by open time.
type HistoryClient interface {
	GetKlines(ctx context.Context, symbol string, tf market.Timeframe,
		start, end time.Time, limit int) ([]market.Candle, error)
}

// Limiter gates outbound REST calls.
type Limiter interface {
	Acquire(ctx context.Context) error
}

// Streamer emits live candle events for one (symbol, timeframe).
type Streamer interface {
	Subscribe(ctx context.Context, symbol string, tf market.Timeframe) <-chan market.CandleEvent
}

// MarketDataFeed composes the REST history client with the rate limiter
// into a paginating, deduplicating history fetch, and passes the stream
// client's events through unmodified.
type MarketDataFeed struct {
	history  HistoryClient
	limiter  Limiter
	stream   Streamer
	pageSize int
	logger   *zap.Logger
}

func NewMarketDataFeed(history HistoryClient, limiter Limiter, stream Streamer,
	pageSize int, logger *zap.Logger) *MarketDataFeed {
	if pageSize < 1 {
		pageSize = 1
	} else if pageSize > 1000 {
		pageSize = 1000
	}
	return &MarketDataFeed{
		history:  history,
		limiter:  limiter,
		stream:   stream,
		pageSize: pageSize,
		logger:   logger,
	}
}

// GetHistory returns the closed candles in [fromUtc, toUtc) after timeframe
// alignment, deduplicated by open time and sorted ascending. Pages may
// overlap at boundaries; duplicates are collapsed silently.
func (f *MarketDataFeed) GetHistory(ctx context.Context, symbol string, tf market.Timeframe,
	fromUtc, toUtc time.Time) ([]market.Candle, error) {

	if !fromUtc.Before(toUtc) {
		return nil, nil
	}

	frame := tf.Duration()
	start := tf.Align(fromUtc)
	end := tf.Align(toUtc)
	if !start.Before(end) {
		end = start.Add(frame)
	}

	step := frame * time.Duration(f.pageSize)
	cursor := start
	seen := make(map[int64]struct{})
	var result []market.Candle

	for cursor.Before(end) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		pageEnd := cursor.Add(step)
		if pageEnd.After(end) {
			pageEnd = end
		}

		if err := f.limiter.Acquire(ctx); err != nil {
			return nil, err
		}

		candles, err := f.history.GetKlines(ctx, symbol, tf, cursor, pageEnd, f.pageSize)
		if err != nil {
			return nil, err
		}

		if len(candles) == 0 {
			// Empty page must not stall the loop.
			cursor = pageEnd
			continue
		}

		for _, candle := range candles {
			ts := candle.OpenTime
			if ts.Before(start) || !ts.Before(end) {
				continue
			}
			key := ts.UnixMilli()
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			result = append(result, candle)
		}

		// Advance to max(lastRow+frame, pageEnd): past the last returned
		// row (the endpoint's end bound is inclusive, so a row can sit
		// exactly on pageEnd), and never behind the page end.
		cursor = candles[len(candles)-1].OpenTime.Add(frame)
		if pageEnd.After(cursor) {
			cursor = pageEnd
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].OpenTime.Before(result[j].OpenTime)
	})

	f.logger.Info("fetched candle history",
		zap.String("symbol", symbol),
		zap.String("timeframe", tf.String()),
		zap.Int("count", len(result)),
		zap.Time("from", start),
		zap.Time("to", end))

	return result, nil
}

// Stream exposes the streaming client's events unmodified.
func (f *MarketDataFeed) Stream(ctx context.Context, symbol string, tf market.Timeframe) <-chan market.CandleEvent {
	return f.stream.Subscribe(ctx, symbol, tf)
}
