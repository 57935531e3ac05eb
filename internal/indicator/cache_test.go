package indicator

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"candlesync/config"
	"candlesync/pkg/market"
)

func testCacheConfig() config.CacheConfig {
	return config.CacheConfig{
		MemoryTTL:   time.Minute,
		RedisTTL:    time.Hour,
		KeyPrefix:   "ind",
		IndexPrefix: "ind:idx",
	}
}

func cacheRequest(name string, candleTime time.Time) market.IndicatorRequest {
	return market.IndicatorRequest{
		Name:       name,
		Symbol:     "BTCUSDT",
		Timeframe:  market.Timeframe1m,
		CandleTime: candleTime,
		Params: map[string]decimal.Decimal{
			"period": decimal.NewFromInt(14),
		},
	}
}

func cacheResult(req market.IndicatorRequest, value int64) market.IndicatorResult {
	return market.IndicatorResult{
		Name:       req.Name,
		Symbol:     req.Symbol,
		Timeframe:  req.Timeframe,
		CandleTime: req.CandleTime,
		Values: map[string]decimal.Decimal{
			market.PrimaryValueKey: decimal.NewFromInt(value),
		},
	}
}

func TestCache_MemoryTierWithoutRedis(t *testing.T) {
	cache := NewCache(nil, testCacheConfig(), zap.NewNop())
	ctx := context.Background()
	candleTime := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	req := cacheRequest("RSI", candleTime)
	_, ok := cache.Get(ctx, req)
	assert.False(t, ok, "cold cache must miss")

	cache.Set(ctx, req, cacheResult(req, 70))

	got, ok := cache.Get(ctx, req)
	require.True(t, ok)
	assert.True(t, got.Primary().Equal(decimal.NewFromInt(70)))
}

func TestCache_MemoryTTLExpiry(t *testing.T) {
	cfg := testCacheConfig()
	cfg.MemoryTTL = -time.Second // entries are born expired
	cache := NewCache(nil, cfg, zap.NewNop())
	ctx := context.Background()

	req := cacheRequest("RSI", time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	cache.Set(ctx, req, cacheResult(req, 70))

	_, ok := cache.Get(ctx, req)
	assert.False(t, ok, "expired entry must miss")
}

func TestCache_InvalidateIsExact(t *testing.T) {
	cache := NewCache(nil, testCacheConfig(), zap.NewNop())
	ctx := context.Background()
	first := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	second := first.Add(time.Minute)

	reqRSI := cacheRequest("RSI", first)
	reqSMA := cacheRequest("SMA", first)
	reqNext := cacheRequest("RSI", second)

	cache.Set(ctx, reqRSI, cacheResult(reqRSI, 1))
	cache.Set(ctx, reqSMA, cacheResult(reqSMA, 2))
	cache.Set(ctx, reqNext, cacheResult(reqNext, 3))

	cache.Invalidate(ctx, "BTCUSDT", market.Timeframe1m, first)

	_, ok := cache.Get(ctx, reqRSI)
	assert.False(t, ok, "invalidated candle's RSI must be gone")
	_, ok = cache.Get(ctx, reqSMA)
	assert.False(t, ok, "invalidated candle's SMA must be gone")
	_, ok = cache.Get(ctx, reqNext)
	assert.True(t, ok, "other candles must be untouched")
}

func TestCache_MemoryTierEvictsExpiredEntries(t *testing.T) {
	cfg := testCacheConfig()
	cfg.MemoryTTL = 5 * time.Millisecond
	cache := NewCache(nil, cfg, zap.NewNop())
	ctx := context.Background()

	// One entry per candle, written once and never read back, the way
	// post-close evaluation populates the cache.
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 200; i++ {
		req := cacheRequest("RSI", base.Add(time.Duration(i)*time.Minute))
		cache.Set(ctx, req, cacheResult(req, int64(i)))
	}

	time.Sleep(20 * time.Millisecond)

	// The next write sweeps everything whose TTL has lapsed.
	fresh := cacheRequest("RSI", base.Add(time.Hour))
	cache.Set(ctx, fresh, cacheResult(fresh, 1))

	cache.mu.Lock()
	entries := len(cache.memory)
	groups := len(cache.index)
	cache.mu.Unlock()

	assert.Equal(t, 1, entries, "expired entries must leave the memory tier")
	assert.Equal(t, 1, groups, "emptied index groups must be dropped")
}

func TestCache_ExpiredLookupDropsIndexGroup(t *testing.T) {
	cfg := testCacheConfig()
	cfg.MemoryTTL = -time.Second
	cache := NewCache(nil, cfg, zap.NewNop())
	ctx := context.Background()

	req := cacheRequest("RSI", time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	cache.Set(ctx, req, cacheResult(req, 70))

	_, ok := cache.Get(ctx, req)
	require.False(t, ok)

	cache.mu.Lock()
	entries := len(cache.memory)
	groups := len(cache.index)
	cache.mu.Unlock()

	assert.Zero(t, entries)
	assert.Zero(t, groups)
}

func TestCache_RedisWriteThrough(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	cache := NewCache(rdb, testCacheConfig(), zap.NewNop())
	ctx := context.Background()

	candleTime := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	req := cacheRequest("RSI", candleTime)
	result := cacheResult(req, 70)

	payload, err := json.Marshal(result.Values)
	require.NoError(t, err)

	redisKey := "ind:rsi:BTCUSDT:1m:1735689600:period=14"
	indexKey := "ind:idx:BTCUSDT:1m:1735689600"

	mock.ExpectSet(redisKey, payload, time.Hour).SetVal("OK")
	mock.ExpectSAdd(indexKey, redisKey).SetVal(1)
	mock.ExpectExpire(indexKey, time.Hour).SetVal(true)

	cache.Set(ctx, req, result)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCache_RedisHitPopulatesMemory(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	cache := NewCache(rdb, testCacheConfig(), zap.NewNop())
	ctx := context.Background()

	candleTime := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	req := cacheRequest("RSI", candleTime)

	payload, err := json.Marshal(map[string]decimal.Decimal{
		market.PrimaryValueKey: decimal.RequireFromString("70.46"),
	})
	require.NoError(t, err)

	redisKey := "ind:rsi:BTCUSDT:1m:1735689600:period=14"
	mock.ExpectGet(redisKey).SetVal(string(payload))

	got, ok := cache.Get(ctx, req)
	require.True(t, ok)
	assert.True(t, got.Primary().Equal(decimal.RequireFromString("70.46")))

	// Second lookup is served from memory; no further Redis expectation.
	_, ok = cache.Get(ctx, req)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCache_RedisFailureDegrades(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	cache := NewCache(rdb, testCacheConfig(), zap.NewNop())
	ctx := context.Background()

	req := cacheRequest("RSI", time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))

	mock.ExpectGet("ind:rsi:BTCUSDT:1m:1735689600:period=14").
		SetErr(errors.New("connection refused"))

	_, ok := cache.Get(ctx, req)
	assert.False(t, ok, "a Redis failure is a miss, not an error")
}
