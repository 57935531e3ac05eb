package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"candlesync/pkg/market"
)

type Config struct {
	Bybit    BybitConfig    `mapstructure:"bybit"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Log      LogConfig      `mapstructure:"log"`
	Postgres PostgresConfig `mapstructure:"postgres"`

	// Strategies holds per-strategy parameter overrides, keyed by strategy
	// name then parameter name. Unlisted strategies run on their defaults.
	Strategies map[string]map[string]float64 `mapstructure:"strategies"`
}

type BybitConfig struct {
	BaseURL    string          `mapstructure:"base_url"`
	WSURL      string          `mapstructure:"ws_url"`
	Category   string          `mapstructure:"category"`
	Symbols    []string        `mapstructure:"symbols"`
	Timeframes []string        `mapstructure:"timeframes"`
	REST       RESTConfig      `mapstructure:"rest"`
	WS         WSConfig        `mapstructure:"ws"`
	RateLimit  RateLimitConfig `mapstructure:"rate_limit"`
}

type RESTConfig struct {
	Timeout        time.Duration `mapstructure:"timeout"`
	PageSize       int           `mapstructure:"page_size"`
	BackfillWindow time.Duration `mapstructure:"backfill_window"`
	MaxConcurrency int           `mapstructure:"max_concurrency"`
}

type WSConfig struct {
	ReconnectBase time.Duration `mapstructure:"reconnect_base"`
	ReconnectMax  time.Duration `mapstructure:"reconnect_max"`
	Heartbeat     time.Duration `mapstructure:"heartbeat"`
}

type RateLimitConfig struct {
	RequestsPerMinute int    `mapstructure:"requests_per_minute"`
	Burst             int    `mapstructure:"burst"`
	KeyPrefix         string `mapstructure:"key_prefix"`
}

type CacheConfig struct {
	MemoryTTL   time.Duration `mapstructure:"memory_ttl"`
	RedisTTL    time.Duration `mapstructure:"redis_ttl"`
	KeyPrefix   string        `mapstructure:"key_prefix"`
	IndexPrefix string        `mapstructure:"index_prefix"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// LogConfig defines the logger configuration options.
type LogConfig struct {
	Level       string `mapstructure:"level"`       // log level: "debug", "info", "warn", "error"
	Format      string `mapstructure:"format"`      // log format: "json" or "console"
	OutputFile  string `mapstructure:"output_file"` // file path to store logs (optional)
	Environment string `mapstructure:"environment"` // environment: "dev" or "prod"
}

// Load loads application configuration using Viper.
// It reads from config.yaml and overrides with environment variables.
func Load() *Config {
	v := viper.New()

	v.SetConfigName("config") // config.yaml
	v.SetConfigType("yaml")

	ex, _ := os.Executable()
	if strings.Contains(ex, "go-build") {
		pwd, _ := os.Getwd()
		v.AddConfigPath(filepath.Join(pwd, "../../config"))
	} else {
		v.AddConfigPath(filepath.Join(filepath.Dir(ex), "../config"))
	}

	// Support environment variables with dot notation (e.g., BYBIT_WS_URL)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		log.Fatalf("failed to read config: %v", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		log.Fatalf("failed to unmarshal config: %v", err)
	}

	applyDefaults(&cfg)
	return &cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Bybit.BaseURL == "" {
		cfg.Bybit.BaseURL = "https://api.bybit.com"
	}
	if cfg.Bybit.WSURL == "" {
		cfg.Bybit.WSURL = "wss://stream.bybit.com/v5/public/linear"
	}
	if cfg.Bybit.Category == "" {
		cfg.Bybit.Category = "linear"
	}
	if cfg.Bybit.REST.Timeout == 0 {
		cfg.Bybit.REST.Timeout = 10 * time.Second
	}
	if cfg.Bybit.REST.PageSize == 0 {
		cfg.Bybit.REST.PageSize = 1000
	}
	if cfg.Bybit.REST.BackfillWindow == 0 {
		cfg.Bybit.REST.BackfillWindow = 90 * 24 * time.Hour
	}
	if cfg.Bybit.REST.MaxConcurrency == 0 {
		cfg.Bybit.REST.MaxConcurrency = 2
	}
	if cfg.Bybit.WS.ReconnectBase == 0 {
		cfg.Bybit.WS.ReconnectBase = 500 * time.Millisecond
	}
	if cfg.Bybit.WS.ReconnectMax == 0 {
		cfg.Bybit.WS.ReconnectMax = 10 * time.Second
	}
	if cfg.Bybit.WS.Heartbeat == 0 {
		cfg.Bybit.WS.Heartbeat = 20 * time.Second
	}
	if cfg.Bybit.RateLimit.RequestsPerMinute == 0 {
		cfg.Bybit.RateLimit.RequestsPerMinute = 60
	}
	if cfg.Bybit.RateLimit.Burst == 0 {
		cfg.Bybit.RateLimit.Burst = 10
	}
	if cfg.Bybit.RateLimit.KeyPrefix == "" {
		cfg.Bybit.RateLimit.KeyPrefix = "bybit:rest:window"
	}
	if cfg.Cache.MemoryTTL == 0 {
		cfg.Cache.MemoryTTL = 30 * time.Second
	}
	if cfg.Cache.RedisTTL == 0 {
		cfg.Cache.RedisTTL = 10 * time.Minute
	}
	if cfg.Cache.KeyPrefix == "" {
		cfg.Cache.KeyPrefix = "ind"
	}
	if cfg.Cache.IndexPrefix == "" {
		cfg.Cache.IndexPrefix = "ind:idx"
	}
}

// Validate checks the configuration and reports every problem found.
// The process must refuse to start on a non-nil error rather than degrade.
func (cfg *Config) Validate() error {
	var problems []string

	if cfg.Bybit.BaseURL == "" {
		problems = append(problems, "bybit.base_url must be set")
	}
	if cfg.Bybit.WSURL == "" {
		problems = append(problems, "bybit.ws_url must be set")
	}
	if len(cfg.Bybit.Symbols) == 0 {
		problems = append(problems, "bybit.symbols must list at least one symbol")
	}
	if len(cfg.Bybit.Timeframes) == 0 {
		problems = append(problems, "bybit.timeframes must list at least one timeframe")
	}
	for _, label := range cfg.Bybit.Timeframes {
		if _, err := market.ParseTimeframe(label); err != nil {
			problems = append(problems, fmt.Sprintf("bybit.timeframes: unsupported timeframe %q", label))
		}
	}
	if cfg.Bybit.REST.PageSize < 1 || cfg.Bybit.REST.PageSize > 1000 {
		problems = append(problems, "bybit.rest.page_size must be between 1 and 1000 (Bybit limit)")
	}
	if cfg.Bybit.REST.Timeout <= 0 {
		problems = append(problems, "bybit.rest.timeout must be positive")
	}
	if cfg.Bybit.REST.BackfillWindow < 0 {
		problems = append(problems, "bybit.rest.backfill_window cannot be negative")
	}
	if cfg.Bybit.REST.MaxConcurrency < 1 {
		problems = append(problems, "bybit.rest.max_concurrency must be at least 1")
	}
	if cfg.Bybit.WS.ReconnectBase <= 0 {
		problems = append(problems, "bybit.ws.reconnect_base must be positive")
	}
	if cfg.Bybit.WS.ReconnectMax < cfg.Bybit.WS.ReconnectBase {
		problems = append(problems, "bybit.ws.reconnect_max must be >= bybit.ws.reconnect_base")
	}
	if cfg.Bybit.RateLimit.RequestsPerMinute <= 0 {
		problems = append(problems, "bybit.rate_limit.requests_per_minute must be positive")
	}
	if cfg.Bybit.RateLimit.Burst <= 0 {
		problems = append(problems, "bybit.rate_limit.burst must be positive")
	}
	if cfg.Cache.MemoryTTL <= 0 || cfg.Cache.RedisTTL <= 0 {
		problems = append(problems, "cache TTLs must be positive")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration:\n  %s", strings.Join(problems, "\n  "))
	}
	return nil
}
