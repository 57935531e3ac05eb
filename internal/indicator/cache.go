package indicator

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"candlesync/config"
	"candlesync/pkg/market"
)

// Cache is a two-tier indicator result cache: an in-process map backed by
// shared Redis. Redis being down or absent degrades reads and writes to the
// memory tier; it never fails an indicator request.
type Cache struct {
	rdb    *redis.Client // nil disables the Redis tier
	cfg    config.CacheConfig
	logger *zap.Logger

	mu        sync.Mutex
	memory    map[string]memoryEntry
	index     map[string]map[string]struct{} // base key -> full keys for invalidation
	nextSweep time.Time
}

type memoryEntry struct {
	result    market.IndicatorResult
	base      string
	expiresAt time.Time
}

func NewCache(rdb *redis.Client, cfg config.CacheConfig, logger *zap.Logger) *Cache {
	return &Cache{
		rdb:    rdb,
		cfg:    cfg,
		logger: logger,
		memory: make(map[string]memoryEntry),
		index:  make(map[string]map[string]struct{}),
	}
}

// Get looks the request up in memory first, then Redis. A Redis hit is
// pulled into the memory tier.
func (c *Cache) Get(ctx context.Context, req market.IndicatorRequest) (market.IndicatorResult, bool) {
	key := keyFrom(req)

	c.mu.Lock()
	entry, ok := c.memory[key.value]
	if ok && time.Now().Before(entry.expiresAt) {
		c.mu.Unlock()
		return entry.result, true
	}
	if ok {
		c.evictLocked(key.value, entry.base)
	}
	c.mu.Unlock()

	if c.rdb == nil {
		return market.IndicatorResult{}, false
	}

	payload, err := c.rdb.Get(ctx, c.redisKey(key.value)).Bytes()
	if err == redis.Nil {
		return market.IndicatorResult{}, false
	}
	if err != nil {
		c.logger.Warn("indicator cache read failed", zap.String("key", key.value), zap.Error(err))
		return market.IndicatorResult{}, false
	}

	var values map[string]decimal.Decimal
	if err := json.Unmarshal(payload, &values); err != nil {
		c.logger.Warn("invalid cached indicator payload", zap.String("key", key.value), zap.Error(err))
		return market.IndicatorResult{}, false
	}

	result := market.IndicatorResult{
		Name:       req.Name,
		Symbol:     req.Symbol,
		Timeframe:  req.Timeframe,
		CandleTime: req.CandleTime,
		Values:     values,
	}
	c.storeMemory(key, result)
	return result, true
}

// Set writes the result to both tiers and records it in the per-candle
// invalidation index.
func (c *Cache) Set(ctx context.Context, req market.IndicatorRequest, result market.IndicatorResult) {
	key := keyFrom(req)
	c.storeMemory(key, result)

	if c.rdb == nil {
		return
	}

	payload, err := json.Marshal(result.Values)
	if err != nil {
		c.logger.Warn("failed to encode indicator result", zap.String("key", key.value), zap.Error(err))
		return
	}

	redisKey := c.redisKey(key.value)
	indexKey := c.indexKey(key.base)

	pipe := c.rdb.Pipeline()
	pipe.Set(ctx, redisKey, payload, c.cfg.RedisTTL)
	pipe.SAdd(ctx, indexKey, redisKey)
	pipe.Expire(ctx, indexKey, c.cfg.RedisTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		c.logger.Warn("indicator cache write failed", zap.String("key", key.value), zap.Error(err))
	}
}

// Invalidate drops every cached evaluation for one candle from both tiers.
// Called when a stored candle is replaced by a re-ingest.
func (c *Cache) Invalidate(ctx context.Context, symbol string, tf market.Timeframe, candleTime time.Time) {
	base := baseKey(symbol, tf, candleTime)

	c.mu.Lock()
	for fullKey := range c.index[base] {
		delete(c.memory, fullKey)
	}
	delete(c.index, base)
	c.mu.Unlock()

	if c.rdb == nil {
		return
	}

	indexKey := c.indexKey(base)
	members, err := c.rdb.SMembers(ctx, indexKey).Result()
	if err != nil {
		c.logger.Warn("indicator cache invalidation failed", zap.String("base_key", base), zap.Error(err))
		return
	}

	keys := append(members, indexKey)
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		c.logger.Warn("indicator cache invalidation failed", zap.String("base_key", base), zap.Error(err))
	}
}

func (c *Cache) storeMemory(key cacheKey, result market.IndicatorResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if !now.Before(c.nextSweep) {
		c.sweepLocked(now)
		c.nextSweep = now.Add(c.cfg.MemoryTTL)
	}

	c.memory[key.value] = memoryEntry{
		result:    result,
		base:      key.base,
		expiresAt: now.Add(c.cfg.MemoryTTL),
	}
	group, ok := c.index[key.base]
	if !ok {
		group = make(map[string]struct{})
		c.index[key.base] = group
	}
	group[key.value] = struct{}{}
}

// sweepLocked evicts every entry past its TTL. The write path triggers it
// at most once per MemoryTTL, so entries written for candles that are never
// read again still leave the map instead of accumulating.
func (c *Cache) sweepLocked(now time.Time) {
	for fullKey, entry := range c.memory {
		if now.Before(entry.expiresAt) {
			continue
		}
		c.evictLocked(fullKey, entry.base)
	}
}

func (c *Cache) evictLocked(fullKey, base string) {
	delete(c.memory, fullKey)
	group := c.index[base]
	delete(group, fullKey)
	if len(group) == 0 {
		delete(c.index, base)
	}
}

func (c *Cache) redisKey(fullKey string) string {
	return c.cfg.KeyPrefix + ":" + fullKey
}

func (c *Cache) indexKey(base string) string {
	return c.cfg.IndexPrefix + ":" + base
}
