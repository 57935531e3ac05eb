package ingest

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"candlesync/pkg/market"
)

const liveBarTTL = 5 * time.Minute

// LiveBarCache publishes the current in-progress bar per (symbol,
// timeframe) to Redis so other consumers can read live prices without a
// stream subscription. In-progress bars are never persisted; the TTL lets
// stale entries vanish when a stream dies.
type LiveBarCache struct {
	rdb    *redis.Client // nil disables publishing
	prefix string
	logger *zap.Logger
}

type liveBar struct {
	OpenTime int64           `json:"openTime"`
	Open     decimal.Decimal `json:"open"`
	High     decimal.Decimal `json:"high"`
	Low      decimal.Decimal `json:"low"`
	Close    decimal.Decimal `json:"close"`
	Volume   decimal.Decimal `json:"volume"`
}

func NewLiveBarCache(rdb *redis.Client, prefix string, logger *zap.Logger) *LiveBarCache {
	return &LiveBarCache{rdb: rdb, prefix: prefix, logger: logger}
}

// Store overwrites the live bar for (symbol, timeframe).
func (c *LiveBarCache) Store(ctx context.Context, symbol string, tf market.Timeframe, candle market.Candle) {
	if c.rdb == nil {
		return
	}

	payload, err := json.Marshal(liveBar{
		OpenTime: candle.OpenTime.UnixMilli(),
		Open:     candle.Open,
		High:     candle.High,
		Low:      candle.Low,
		Close:    candle.Close,
		Volume:   candle.Volume,
	})
	if err != nil {
		c.logger.Warn("failed to encode live bar", zap.String("symbol", symbol), zap.Error(err))
		return
	}

	if err := c.rdb.Set(ctx, c.key(symbol, tf), payload, liveBarTTL).Err(); err != nil {
		c.logger.Warn("failed to publish live bar",
			zap.String("symbol", symbol),
			zap.String("timeframe", tf.String()),
			zap.Error(err))
	}
}

// Load reads the live bar back. ok is false when none is published.
func (c *LiveBarCache) Load(ctx context.Context, symbol string, tf market.Timeframe) (market.Candle, bool) {
	if c.rdb == nil {
		return market.Candle{}, false
	}

	payload, err := c.rdb.Get(ctx, c.key(symbol, tf)).Bytes()
	if err == redis.Nil {
		return market.Candle{}, false
	}
	if err != nil {
		c.logger.Warn("failed to read live bar", zap.String("symbol", symbol), zap.Error(err))
		return market.Candle{}, false
	}

	var bar liveBar
	if err := json.Unmarshal(payload, &bar); err != nil {
		c.logger.Warn("invalid live bar payload", zap.String("symbol", symbol), zap.Error(err))
		return market.Candle{}, false
	}

	return market.Candle{
		OpenTime: time.UnixMilli(bar.OpenTime).UTC(),
		Open:     bar.Open,
		High:     bar.High,
		Low:      bar.Low,
		Close:    bar.Close,
		Volume:   bar.Volume,
	}, true
}

func (c *LiveBarCache) key(symbol string, tf market.Timeframe) string {
	return c.prefix + ":realtime:" + symbol + ":" + tf.String()
}
