// Package config loads the application configuration: built-in defaults,
// then an optional YAML file, then an optional .env file, then environment
// variables.
package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DateLayout is the layout of backtesting start/end dates.
const DateLayout = "2006-01-02"

// Config holds all application configuration.
type Config struct {
	Trading     TradingConfig      `yaml:"trading"`
	Strategy    StrategyConfig     `yaml:"strategy"`
	Backtesting BacktestingConfig  `yaml:"backtesting"`
	Live        LiveConfig         `yaml:"live"`
	Storage     StorageConfig      `yaml:"storage"`
	Server      ServerConfig       `yaml:"server"`
	Notify      NotificationConfig `yaml:"notification"`
	Logging     LoggingConfig      `yaml:"logging"`
}

// TradingConfig selects the instrument and wallet parameters.
type TradingConfig struct {
	Symbol         string  `yaml:"symbol"`
	Interval       string  `yaml:"interval"`
	Strategy       string  `yaml:"strategy"`
	InitialBalance float64 `yaml:"initial_balance"`
	FeeRate        float64 `yaml:"fee_rate"`
	LotSize        float64 `yaml:"lot_size"`
	Quantity       float64 `yaml:"quantity"` // > 0 selects the fixed-quantity policy
}

// StrategyConfig carries per-kind parameter overrides, keyed by kind id.
type StrategyConfig struct {
	Params map[string]map[string]float64 `yaml:"params"`
}

// BacktestingConfig configures replay runs.
type BacktestingConfig struct {
	StartDate         string `yaml:"start_date"`
	EndDate           string `yaml:"end_date"`
	ProcessingDelayMs int    `yaml:"processing_delay_ms"`
	// BaseInterval is the stored interval coarser intervals are resampled
	// from when not stored directly.
	BaseInterval string `yaml:"base_interval"`
}

// LiveConfig configures live runs.
type LiveConfig struct {
	FeedURL            string  `yaml:"feed_url"`
	FeedFormat         string  `yaml:"feed_format"` // "binance" or "json"
	QueueSize          int     `yaml:"queue_size"`
	ReconnectMinMs     int     `yaml:"reconnect_min_ms"`
	ReconnectMaxMs     int     `yaml:"reconnect_max_ms"`
	SlippageBps        int64   `yaml:"slippage_bps"`
	HeadroomBps        int64   `yaml:"headroom_bps"`
	OrdersPerSecond    float64 `yaml:"orders_per_second"`
	BreakerMaxFailures int     `yaml:"breaker_max_failures"`
	BreakerResetSec    int     `yaml:"breaker_reset_sec"`
}

// StorageConfig locates the persistence backends. Empty paths disable them.
type StorageConfig struct {
	SQLitePath    string `yaml:"sqlite_path"`
	JournalPath   string `yaml:"journal_path"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	StreamMaxLen  int64  `yaml:"stream_max_len"`
}

// ServerConfig holds listen addresses. Empty disables the server.
type ServerConfig struct {
	MetricsAddr string `yaml:"metrics_addr"`
	APIAddr     string `yaml:"api_addr"`
}

// NotificationConfig configures lifecycle alerts.
type NotificationConfig struct {
	WebhookURL string `yaml:"webhook_url"`
	// MinLevel is the lowest alert level sent to the webhook: INFO,
	// WARNING or CRITICAL. Empty sends every alert.
	MinLevel string `yaml:"min_level"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Trading: TradingConfig{
			Symbol:         "BTCUSDT",
			Interval:       "1m",
			Strategy:       "ma_rsi",
			InitialBalance: 1000.0,
			FeeRate:        0.001, // 0.1% trading fee
			LotSize:        0.00001,
		},
		Strategy: StrategyConfig{Params: map[string]map[string]float64{}},
		Backtesting: BacktestingConfig{
			StartDate:         "2023-01-01",
			EndDate:           "2023-01-31",
			ProcessingDelayMs: 0,
			BaseInterval:      "1m",
		},
		Live: LiveConfig{
			FeedURL:            "wss://stream.binance.com:9443/ws/btcusdt@kline_1m",
			FeedFormat:         "binance",
			QueueSize:          1024,
			ReconnectMinMs:     1000,
			ReconnectMaxMs:     30000,
			OrdersPerSecond:    5,
			BreakerMaxFailures: 5,
			BreakerResetSec:    30,
		},
		Storage: StorageConfig{
			SQLitePath:   "data/candles.db",
			JournalPath:  "data/journal.db",
			StreamMaxLen: 10000,
		},
		Server: ServerConfig{
			MetricsAddr: ":9090",
		},
		Logging: LoggingConfig{
			Level:  "INFO",
			Format: "json",
		},
	}
}

// Load builds the configuration. A missing file at path is not an error:
// defaults and environment still apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("config: parse %s: %w", path, err)
			}
			log.Printf("[config] loaded %s", path)
		case errors.Is(err, os.ErrNotExist):
			log.Printf("[config] %s not found, using defaults", path)
		default:
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	// Ignore error so the app still starts when .env is missing.
	_ = godotenv.Load()

	overrideWithEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Save writes cfg to path as YAML.
func Save(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	log.Printf("[config] saved %s", path)
	return nil
}

// Validate checks configuration validity.
func (c *Config) Validate() error {
	if c.Trading.Symbol == "" {
		return errors.New("trading.symbol is required")
	}
	if c.Trading.Strategy == "" {
		return errors.New("trading.strategy is required")
	}
	if c.Trading.InitialBalance <= 0 {
		return fmt.Errorf("trading.initial_balance must be positive, got %v", c.Trading.InitialBalance)
	}
	if c.Trading.FeeRate < 0 || c.Trading.FeeRate >= 1 {
		return fmt.Errorf("trading.fee_rate must be in [0, 1), got %v", c.Trading.FeeRate)
	}
	if c.Trading.Quantity < 0 {
		return fmt.Errorf("trading.quantity must not be negative, got %v", c.Trading.Quantity)
	}
	if c.Backtesting.ProcessingDelayMs < 0 {
		return errors.New("backtesting.processing_delay_ms must not be negative")
	}
	if _, _, err := c.BacktestRange(); err != nil {
		return err
	}
	if c.Live.QueueSize <= 0 {
		return errors.New("live.queue_size must be positive")
	}
	if f := strings.ToLower(c.Live.FeedFormat); f != "binance" && f != "json" {
		return fmt.Errorf("live.feed_format must be binance or json, got %q", c.Live.FeedFormat)
	}
	return nil
}

// BacktestRange returns [start, end) for replay. The end date is inclusive
// in the file, so the returned end is the following midnight UTC.
func (c *Config) BacktestRange() (time.Time, time.Time, error) {
	from, err := time.Parse(DateLayout, c.Backtesting.StartDate)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("backtesting.start_date: %w", err)
	}
	to, err := time.Parse(DateLayout, c.Backtesting.EndDate)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("backtesting.end_date: %w", err)
	}
	to = to.AddDate(0, 0, 1)
	if !from.Before(to) {
		return time.Time{}, time.Time{}, fmt.Errorf("backtesting range %s..%s is empty", c.Backtesting.StartDate, c.Backtesting.EndDate)
	}
	return from, to, nil
}

// ProcessingDelay returns the per-tick replay delay.
func (c *Config) ProcessingDelay() time.Duration {
	return time.Duration(c.Backtesting.ProcessingDelayMs) * time.Millisecond
}

// StrategyParams returns the overrides for kind (nil if none).
func (c *Config) StrategyParams(kind string) map[string]float64 {
	return c.Strategy.Params[kind]
}

func overrideWithEnv(c *Config) {
	c.Trading.Symbol = getEnv("DEFAULT_SYMBOL", c.Trading.Symbol)
	c.Trading.Interval = getEnv("DEFAULT_INTERVAL", c.Trading.Interval)
	c.Trading.Strategy = getEnv("STRATEGY", c.Trading.Strategy)
	c.Trading.InitialBalance = getEnvFloat("INITIAL_BALANCE", c.Trading.InitialBalance)
	c.Trading.FeeRate = getEnvFloat("FEE_RATE", c.Trading.FeeRate)

	c.Backtesting.ProcessingDelayMs = getEnvInt("PROCESSING_DELAY_MS", c.Backtesting.ProcessingDelayMs)
	c.Backtesting.BaseInterval = getEnv("BASE_INTERVAL", c.Backtesting.BaseInterval)

	c.Live.FeedURL = getEnv("FEED_URL", c.Live.FeedURL)
	c.Live.FeedFormat = getEnv("FEED_FORMAT", c.Live.FeedFormat)

	c.Storage.SQLitePath = getEnv("SQLITE_PATH", c.Storage.SQLitePath)
	c.Storage.JournalPath = getEnv("JOURNAL_PATH", c.Storage.JournalPath)
	c.Storage.RedisAddr = getEnv("REDIS_ADDR", c.Storage.RedisAddr)
	c.Storage.RedisPassword = getEnv("REDIS_PASSWORD", c.Storage.RedisPassword)

	c.Server.MetricsAddr = getEnv("METRICS_ADDR", c.Server.MetricsAddr)
	c.Server.APIAddr = getEnv("API_ADDR", c.Server.APIAddr)
	c.Notify.WebhookURL = getEnv("WEBHOOK_URL", c.Notify.WebhookURL)

	c.Logging.Level = getEnv("LOG_LEVEL", c.Logging.Level)
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("[config] invalid %s=%q, keeping %v", key, v, fallback)
		return fallback
	}
	return f
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("[config] invalid %s=%q, keeping %d", key, v, fallback)
		return fallback
	}
	return n
}
