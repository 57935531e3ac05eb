package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"candlesync/config"
	"candlesync/internal/indicator"
	"candlesync/internal/ingest"
	"candlesync/internal/storage/postgres"
	"candlesync/internal/strategy"
	"candlesync/logger"
	"candlesync/pkg/bybit"
	"candlesync/pkg/market"
)

func main() {
	// viper config
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		panic(err.Error())
	}

	// zap logger
	log, err := logger.New(cfg.Log)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// PostgreSQL
	pgClient, err := postgres.InitializeAndMigrate(cfg.Postgres, cfg.Log.Environment, true)
	if err != nil {
		log.Fatal("failed to initialize postgres", zap.Error(err))
	}
	defer pgClient.Close()
	repo := postgres.NewCandleRepository(pgClient, log)

	// Redis is optional: without it the rate limiter paces locally and the
	// indicator cache runs memory-only.
	rdb := connectRedis(ctx, cfg.Redis, log)
	if rdb != nil {
		defer rdb.Close()
	}

	timeframes := make([]market.Timeframe, 0, len(cfg.Bybit.Timeframes))
	for _, label := range cfg.Bybit.Timeframes {
		tf, err := market.ParseTimeframe(label)
		if err != nil {
			log.Fatal("invalid timeframe", zap.String("timeframe", label), zap.Error(err))
		}
		timeframes = append(timeframes, tf)
	}

	// market data feed
	restClient := bybit.NewRESTClient(cfg.Bybit.BaseURL, cfg.Bybit.Category, cfg.Bybit.REST.Timeout, log)
	limiter := bybit.NewRateLimiter(rdb, cfg.Bybit.RateLimit.RequestsPerMinute, cfg.Bybit.RateLimit.KeyPrefix, log)
	streamClient := bybit.NewStreamClient(bybit.StreamConfig{
		URL:           cfg.Bybit.WSURL,
		ReconnectBase: cfg.Bybit.WS.ReconnectBase,
		ReconnectMax:  cfg.Bybit.WS.ReconnectMax,
		Heartbeat:     cfg.Bybit.WS.Heartbeat,
	}, log)
	feed := bybit.NewMarketDataFeed(restClient, limiter, streamClient, cfg.Bybit.REST.PageSize, log)

	// indicators
	indicatorCache := indicator.NewCache(rdb, cfg.Cache, log)
	indicatorEngine := indicator.NewEngine(indicator.DefaultRegistry(), repo, indicatorCache, log)

	// strategies
	catalog := strategy.NewCatalog(strategy.NewStaticLoader(strategy.BuiltinStrategies()...), log)
	if err := catalog.Reload(ctx); err != nil {
		log.Fatal("failed to load strategies", zap.Error(err))
	}
	strategyEngine := strategy.NewEngine(catalog, repo, indicatorEngine,
		strategy.NewStaticParams(cfg.Strategies), 0, log)

	// ingestion
	live := ingest.NewLiveBarCache(rdb, cfg.Cache.KeyPrefix, log)
	orchestrator := ingest.NewOrchestrator(feed, repo, strategyEngine, indicatorEngine, live, ingest.Options{
		BackfillWindow: cfg.Bybit.REST.BackfillWindow,
		MaxConcurrency: cfg.Bybit.REST.MaxConcurrency,
	}, log)

	log.Info("starting ingestion",
		zap.Strings("symbols", cfg.Bybit.Symbols),
		zap.Strings("timeframes", cfg.Bybit.Timeframes))

	orchestrator.Run(ctx, cfg.Bybit.Symbols, timeframes)

	log.Info("shutdown complete")
}

// connectRedis returns nil when Redis is unconfigured or unreachable.
func connectRedis(ctx context.Context, cfg config.RedisConfig, log *zap.Logger) *redis.Client {
	if cfg.Addr == "" {
		log.Warn("redis not configured, degrading to local rate limiting and memory-only caches")
		return nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		log.Warn("redis unreachable, degrading to local rate limiting and memory-only caches",
			zap.String("addr", cfg.Addr), zap.Error(err))
		rdb.Close()
		return nil
	}

	return rdb
}
