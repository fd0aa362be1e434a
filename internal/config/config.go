// Package config loads engine configuration from a JSON file with
// environment-variable overrides layered on top.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config is the full engine configuration, populated by the CLI entrypoint
// from a config file plus environment overrides.
type Config struct {
	Brokerage BrokerageConfig `json:"brokerage"`
	Stream    StreamConfig    `json:"stream"`
	Trading   TradingConfig   `json:"trading"`
	Scanner   ScannerConfig   `json:"scanner"`
	Risk      RiskConfig      `json:"risk"`
	Postgres  PostgresConfig  `json:"postgres"`
	Redis     RedisConfig     `json:"redis"`
	HTTP      HTTPConfig      `json:"http"`
	Logging   LoggingConfig   `json:"logging"`
}

// BrokerageConfig holds REST credentials for the out-of-scope brokerage
// gateway (the core only needs the account identifier and base URL to
// construct the client).
type BrokerageConfig struct {
	AppKey    string `json:"app_key"`
	AppSecret string `json:"app_secret"`
	BaseURL   string `json:"base_url"`
	AccountNo string `json:"account_no"`
	MockMode  bool   `json:"mock_mode"`
}

// StreamConfig holds the realtime quote/execution stream connection
// parameters.
type StreamConfig struct {
	URL            string `json:"url"`
	HTSID          string `json:"hts_id"` // required to subscribe execution notices
	MaxSymbols     int    `json:"max_symbols"`
	MaxChannels    int    `json:"max_channels"`
	ReconnectLimit int    `json:"reconnect_limit"`
}

// TradingConfig holds session-window and order-cadence parameters.
type TradingConfig struct {
	DryRun               bool   `json:"dry_run"`
	SessionStart         string `json:"session_start"` // "09:00"
	SessionEnd           string `json:"session_end"`   // "15:20"
	MinOrderIntervalSec  int    `json:"min_order_interval_sec"`
	PendingTimeoutSec    int    `json:"pending_timeout_sec"`
	TickIntervalSec      int    `json:"tick_interval_sec"`
	MinProfitForTimeExit float64 `json:"min_profit_for_time_exit"`
}

// ScannerConfig holds the market-scan cadence and filters.
type ScannerConfig struct {
	Enabled          bool    `json:"enabled"`
	ScanIntervalSec  int     `json:"scan_interval_sec"`
	MaxScanStocks    int     `json:"max_scan_stocks"`
	MinRatePct       float64 `json:"min_rate_pct"`
	MinPrice         float64 `json:"min_price"`
	MaxPrice         float64 `json:"max_price"`
	MinVolume        float64 `json:"min_volume"`
	BatchSize        int     `json:"batch_size"`
}

// RiskConfig holds position caps and entry-confidence thresholds.
type RiskConfig struct {
	WatchCap            int     `json:"watch_cap"`
	PositionCap         int     `json:"position_cap"`
	MinInvestmentKRW    float64 `json:"min_investment_krw"`
	MaxSingleInvestRatio float64 `json:"max_single_invest_ratio"`
	MinPatternConfidence float64 `json:"min_pattern_confidence"`
	StrongBuyThreshold  float64 `json:"strong_buy_threshold"`
	BuyThreshold        float64 `json:"buy_threshold"`
	StrongSellThreshold float64 `json:"strong_sell_threshold"`
	SellThreshold       float64 `json:"sell_threshold"`
}

// PostgresConfig holds candidate/trade persistence connection settings.
type PostgresConfig struct {
	DSN          string `json:"dsn"`
	MaxConns     int    `json:"max_conns"`
}

// RedisConfig holds pattern-config cache and pending-order tracker
// connection settings.
type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	PoolSize int    `json:"pool_size"`
}

// HTTPConfig holds the optional operator status surface.
type HTTPConfig struct {
	Enabled        bool     `json:"enabled"`
	Addr           string   `json:"addr"`
	AllowedOrigins []string `json:"allowed_origins"`
}

// LoggingConfig holds the structured logger's output settings.
type LoggingConfig struct {
	Level       string `json:"level"`
	Output      string `json:"output"`
	JSONFormat  bool   `json:"json_format"`
	IncludeFile bool   `json:"include_file"`
}

// Load reads configPath (if non-empty and present) and then applies
// environment-variable overrides, which always take precedence. Missing
// config file is not an error — the engine starts from defaults plus env.
func Load(configPath string) (*Config, error) {
	cfg := defaults()

	if configPath != "" {
		if file, err := os.ReadFile(configPath); err == nil {
			if err := json.Unmarshal(file, cfg); err != nil {
				return nil, fmt.Errorf("config: parsing %s: %w", configPath, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("config: reading %s: %w", configPath, err)
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Stream: StreamConfig{MaxSymbols: 19, MaxChannels: 41, ReconnectLimit: 5},
		Trading: TradingConfig{
			SessionStart:         "09:00",
			SessionEnd:           "15:20",
			MinOrderIntervalSec:  300,
			PendingTimeoutSec:    600,
			TickIntervalSec:      45,
			MinProfitForTimeExit: 0.01,
		},
		Scanner: ScannerConfig{
			Enabled:         true,
			ScanIntervalSec: 60,
			MaxScanStocks:   50,
			MinRatePct:      0.01,
			MinPrice:        1000,
			MaxPrice:        500000,
			MinVolume:       10000,
			BatchSize:       5,
		},
		Risk: RiskConfig{
			WatchCap:             100,
			PositionCap:          15,
			MinInvestmentKRW:     100000,
			MaxSingleInvestRatio: 0.4,
			MinPatternConfidence: 0.55,
			StrongBuyThreshold:   85,
			BuyThreshold:         70,
			StrongSellThreshold:  80,
			SellThreshold:        60,
		},
		HTTP: HTTPConfig{
			AllowedOrigins: []string{"http://localhost:5173", "http://localhost:8090"},
		},
		Logging: LoggingConfig{Level: "INFO", Output: "stdout", JSONFormat: true},
	}
}

func applyEnvOverrides(cfg *Config) {
	cfg.Brokerage.AppKey = getEnvOrDefault("BROKER_APP_KEY", cfg.Brokerage.AppKey)
	cfg.Brokerage.AppSecret = getEnvOrDefault("BROKER_APP_SECRET", cfg.Brokerage.AppSecret)
	cfg.Brokerage.BaseURL = getEnvOrDefault("BROKER_BASE_URL", cfg.Brokerage.BaseURL)
	cfg.Brokerage.AccountNo = getEnvOrDefault("BROKER_ACCOUNT_NO", cfg.Brokerage.AccountNo)
	cfg.Brokerage.MockMode = getEnvOrDefault("BROKER_MOCK_MODE", boolStr(cfg.Brokerage.MockMode)) == "true"

	cfg.Stream.URL = getEnvOrDefault("STREAM_URL", cfg.Stream.URL)
	cfg.Stream.HTSID = getEnvOrDefault("STREAM_HTS_ID", cfg.Stream.HTSID)

	cfg.Trading.DryRun = getEnvOrDefault("TRADING_DRY_RUN", boolStr(cfg.Trading.DryRun)) == "true"

	cfg.Postgres.DSN = getEnvOrDefault("POSTGRES_DSN", cfg.Postgres.DSN)
	cfg.Postgres.MaxConns = getEnvIntOrDefault("POSTGRES_MAX_CONNS", cfg.Postgres.MaxConns)

	cfg.Redis.Enabled = getEnvOrDefault("REDIS_ENABLED", boolStr(cfg.Redis.Enabled)) == "true"
	cfg.Redis.Address = getEnvOrDefault("REDIS_ADDRESS", cfg.Redis.Address)
	cfg.Redis.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.PoolSize = getEnvIntOrDefault("REDIS_POOL_SIZE", cfg.Redis.PoolSize)

	cfg.HTTP.Enabled = getEnvOrDefault("HTTP_ENABLED", boolStr(cfg.HTTP.Enabled)) == "true"
	cfg.HTTP.Addr = getEnvOrDefault("HTTP_ADDR", cfg.HTTP.Addr)
	if origins := os.Getenv("HTTP_ALLOWED_ORIGINS"); origins != "" {
		cfg.HTTP.AllowedOrigins = strings.Split(origins, ",")
	}

	cfg.Logging.Level = getEnvOrDefault("LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Output = getEnvOrDefault("LOG_OUTPUT", cfg.Logging.Output)
}

func boolStr(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}
