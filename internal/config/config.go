// Package config defines the top-level configuration for the arbitrage
// scanner and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by ARBSCAN_* environment variables.
type Config struct {
	Polymarket PolymarketConfig `toml:"polymarket"`
	Kalshi     KalshiConfig     `toml:"kalshi"`
	Postgres   PostgresConfig   `toml:"postgres"`
	Redis      RedisConfig      `toml:"redis"`
	S3         S3Config         `toml:"s3"`
	Fees       FeesConfig       `toml:"fees"`
	Scanner    ScannerConfig    `toml:"scanner"`
	Collector  CollectorConfig  `toml:"collector"`
	Backtest   BacktestConfig   `toml:"backtest"`
	Archive    ArchiveConfig    `toml:"archive"`
	Server     ServerConfig     `toml:"server"`
	Notify     NotifyConfig     `toml:"notify"`
	Pairs      []PairConfig     `toml:"pairs"`
	Mode       string           `toml:"mode"`
	LogLevel   string           `toml:"log_level"`
}

// PolymarketConfig holds Polymarket API endpoints.
type PolymarketConfig struct {
	GammaHost string `toml:"gamma_host"`
	ClobHost  string `toml:"clob_host"`
	WsHost    string `toml:"ws_host"`
	UseWS     bool   `toml:"use_ws"`
}

// KalshiConfig holds Kalshi exchange API credentials. The RSA private key is
// read either from a plaintext PEM file or from an encrypted key file plus
// password.
type KalshiConfig struct {
	ApiKeyID          string `toml:"api_key_id"`
	BaseURL           string `toml:"base_url"`
	RsaPrivateKeyPath string `toml:"rsa_private_key_path"`
	EncryptedKeyPath  string `toml:"encrypted_key_path"`
	KeyPassword       string `toml:"key_password"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters. When Enabled is false the
// quote cache, signal bus and collection lock are skipped entirely.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for the archiver.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// FeeConfig describes one venue's trading fees.
type FeeConfig struct {
	FixedPerUnit  float64 `toml:"fixed_per_unit"`
	PercentOfCost float64 `toml:"percent_of_cost"`
	PercentProfit float64 `toml:"percent_profit"`
	MinimumFee    float64 `toml:"minimum_fee"`
}

// FeesConfig holds both venues' fee structures and the safety margin applied
// to raw profit.
type FeesConfig struct {
	Polymarket          FeeConfig `toml:"polymarket"`
	Kalshi              FeeConfig `toml:"kalshi"`
	SafetyMarginPercent float64   `toml:"safety_margin_percent"`
}

// ScannerConfig holds live scan loop parameters.
type ScannerConfig struct {
	Interval           duration `toml:"interval"`
	MinProfitPercent   float64  `toml:"min_profit_percent"`
	AvailableCapital   float64  `toml:"available_capital"`
	TTLSeconds         int      `toml:"ttl_seconds"`
	HoldingPeriod      duration `toml:"holding_period"`
	MaxConcurrentPairs int      `toml:"max_concurrent_pairs"`
}

// QueueConfig holds one venue's rate-limited request queue parameters.
type QueueConfig struct {
	MaxRequestsPerMinute int     `toml:"max_requests_per_minute"`
	MaxConcurrent        int     `toml:"max_concurrent"`
	MaxRetries           int     `toml:"max_retries"`
	BackoffMultiplier    float64 `toml:"backoff_multiplier"`
	RetryOnRateLimit     bool    `toml:"retry_on_rate_limit"`
}

// CollectorConfig holds historical collection parameters, including the
// per-venue queue limits.
type CollectorConfig struct {
	FidelityMinutes    int         `toml:"fidelity_minutes"`
	MinProfitThreshold float64     `toml:"min_profit_threshold"`
	LookbackDays       int         `toml:"lookback_days"`
	JobTTL             duration    `toml:"job_ttl"`
	Polymarket         QueueConfig `toml:"polymarket"`
	Kalshi             QueueConfig `toml:"kalshi"`
}

// BacktestConfig holds simulation parameters for backtest and optimize modes.
type BacktestConfig struct {
	InitialCapital             float64  `toml:"initial_capital"`
	MinProfitPercent           float64  `toml:"min_profit_percent"`
	MaxPositionSize            float64  `toml:"max_position_size"`
	MaxPositionPercent         float64  `toml:"max_position_percent"`
	Cooldown                   duration `toml:"cooldown"`
	HoldingPeriod              duration `toml:"holding_period"`
	RequireResolutionAlignment bool     `toml:"require_resolution_alignment"`
	MinResolutionScore         float64  `toml:"min_resolution_score"`
	Slippage                   string   `toml:"slippage"`
	// IncludeArchived folds opportunities restored from blob storage into
	// the replayed dataset. Requires s3 to be enabled.
	IncludeArchived bool `toml:"include_archived"`

	// Optimize-mode grid axes. Empty axes fall back to the base value above.
	GridMinProfitPercents   []float64 `toml:"grid_min_profit_percents"`
	GridMaxPositionPercents []float64 `toml:"grid_max_position_percents"`
	GridCooldowns           []string  `toml:"grid_cooldowns"`
	GridSlippages           []string  `toml:"grid_slippages"`
}

// ArchiveConfig holds cold-storage retention parameters.
type ArchiveConfig struct {
	RetentionDays int `toml:"retention_days"`
}

// ServerConfig holds the monitoring HTTP + WebSocket API parameters. The
// server only runs in scan mode.
type ServerConfig struct {
	Enabled            bool     `toml:"enabled"`
	Port               int      `toml:"port"`
	CORSOrigins        []string `toml:"cors_origins"`
	APIKey             string   `toml:"api_key"`
	RateLimitPerMinute int      `toml:"rate_limit_per_minute"`
}

// NotifyConfig holds operator alert channels. A channel with empty
// credentials is skipped. Events filters which event types are delivered;
// empty means all.
type NotifyConfig struct {
	TelegramBotToken  string   `toml:"telegram_bot_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// PairConfig declares one cross-venue market pair to watch. Pairs are
// produced by an external matcher and carried here as read-only input.
type PairConfig struct {
	ID              string  `toml:"id"`
	PolymarketID    string  `toml:"polymarket_id"`
	KalshiTicker    string  `toml:"kalshi_ticker"`
	Correlation     float64 `toml:"correlation"`
	ResolutionScore float64 `toml:"resolution_score"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Polymarket: PolymarketConfig{
			GammaHost: "https://gamma-api.polymarket.com",
			ClobHost:  "https://clob.polymarket.com",
			WsHost:    "wss://ws-subscriptions-clob.polymarket.com",
			UseWS:     false,
		},
		Kalshi: KalshiConfig{
			BaseURL: "https://api.elections.kalshi.com/trade-api/v2",
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "arbscan",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Enabled:    true,
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "arbscan-data",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Fees: FeesConfig{
			Polymarket: FeeConfig{},
			Kalshi: FeeConfig{
				PercentProfit: 0.07,
			},
			SafetyMarginPercent: 10,
		},
		Scanner: ScannerConfig{
			Interval:           duration{30 * time.Second},
			MinProfitPercent:   0.5,
			AvailableCapital:   10_000,
			TTLSeconds:         120,
			HoldingPeriod:      duration{7 * 24 * time.Hour},
			MaxConcurrentPairs: 4,
		},
		Collector: CollectorConfig{
			FidelityMinutes:    60,
			MinProfitThreshold: 0.5,
			LookbackDays:       30,
			JobTTL:             duration{24 * time.Hour},
			Polymarket: QueueConfig{
				MaxRequestsPerMinute: 60,
				MaxConcurrent:        2,
				MaxRetries:           3,
				BackoffMultiplier:    2.0,
				RetryOnRateLimit:     true,
			},
			Kalshi: QueueConfig{
				MaxRequestsPerMinute: 30,
				MaxConcurrent:        1,
				MaxRetries:           3,
				BackoffMultiplier:    2.0,
				RetryOnRateLimit:     true,
			},
		},
		Backtest: BacktestConfig{
			InitialCapital:             10_000,
			MinProfitPercent:           1.0,
			MaxPositionPercent:         0.25,
			Cooldown:                   duration{time.Hour},
			HoldingPeriod:              duration{24 * time.Hour},
			RequireResolutionAlignment: true,
			MinResolutionScore:         0.8,
			Slippage:                   "realistic",
		},
		Archive: ArchiveConfig{
			RetentionDays: 90,
		},
		Server: ServerConfig{
			Enabled:            false,
			Port:               8080,
			RateLimitPerMinute: 120,
		},
		Mode:     "scan",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"scan":     true,
	"collect":  true,
	"backtest": true,
	"optimize": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// validSlippages enumerates the accepted backtest slippage models.
var validSlippages = map[string]bool{
	"conservative": true,
	"realistic":    true,
	"optimistic":   true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: scan, collect, backtest, optimize)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Polymarket endpoints
	if c.Polymarket.GammaHost == "" {
		errs = append(errs, "polymarket: gamma_host must not be empty")
	}
	if c.Polymarket.ClobHost == "" {
		errs = append(errs, "polymarket: clob_host must not be empty")
	}
	if c.Polymarket.UseWS && c.Polymarket.WsHost == "" {
		errs = append(errs, "polymarket: ws_host is required when use_ws is set")
	}

	// Kalshi credentials. Scan and collect both hit the Kalshi API.
	if c.Mode == "scan" || c.Mode == "collect" {
		if c.Kalshi.BaseURL == "" {
			errs = append(errs, "kalshi: base_url must not be empty")
		}
		if c.Kalshi.ApiKeyID == "" {
			errs = append(errs, "kalshi: api_key_id is required for mode "+c.Mode)
		}
		if c.Kalshi.RsaPrivateKeyPath == "" && c.Kalshi.EncryptedKeyPath == "" {
			errs = append(errs, "kalshi: either rsa_private_key_path or encrypted_key_path must be set")
		}
		if c.Kalshi.EncryptedKeyPath != "" && c.Kalshi.KeyPassword == "" {
			errs = append(errs, "kalshi: key_password is required when encrypted_key_path is set")
		}
	}

	// Postgres
	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 {
		errs = append(errs, "postgres: pool_min_conns must be >= 0")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty when enabled")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when enabled")
		}
	}

	// Fees
	if c.Fees.SafetyMarginPercent < 0 || c.Fees.SafetyMarginPercent >= 100 {
		errs = append(errs, fmt.Sprintf("fees: safety_margin_percent must be in [0,100), got %g", c.Fees.SafetyMarginPercent))
	}

	// Scanner
	if c.Scanner.AvailableCapital <= 0 {
		errs = append(errs, "scanner: available_capital must be > 0")
	}
	if c.Scanner.TTLSeconds < 0 {
		errs = append(errs, "scanner: ttl_seconds must be >= 0")
	}

	// Collector
	if c.Collector.FidelityMinutes < 1 {
		errs = append(errs, "collector: fidelity_minutes must be >= 1")
	}
	if c.Collector.LookbackDays < 1 {
		errs = append(errs, "collector: lookback_days must be >= 1")
	}
	for venue, q := range map[string]QueueConfig{"polymarket": c.Collector.Polymarket, "kalshi": c.Collector.Kalshi} {
		if q.MaxRequestsPerMinute < 1 {
			errs = append(errs, fmt.Sprintf("collector.%s: max_requests_per_minute must be >= 1", venue))
		}
		if q.MaxConcurrent < 1 {
			errs = append(errs, fmt.Sprintf("collector.%s: max_concurrent must be >= 1", venue))
		}
	}

	// Backtest
	if c.Backtest.InitialCapital <= 0 {
		errs = append(errs, "backtest: initial_capital must be > 0")
	}
	if c.Backtest.MaxPositionPercent < 0 || c.Backtest.MaxPositionPercent > 1 {
		errs = append(errs, fmt.Sprintf("backtest: max_position_percent must be in [0,1], got %g", c.Backtest.MaxPositionPercent))
	}
	if c.Backtest.Slippage != "" && !validSlippages[c.Backtest.Slippage] {
		errs = append(errs, fmt.Sprintf("backtest: unknown slippage model %q (valid: conservative, realistic, optimistic)", c.Backtest.Slippage))
	}
	for _, s := range c.Backtest.GridSlippages {
		if !validSlippages[s] {
			errs = append(errs, fmt.Sprintf("backtest: unknown grid slippage model %q", s))
		}
	}
	for _, raw := range c.Backtest.GridCooldowns {
		if _, err := time.ParseDuration(raw); err != nil {
			errs = append(errs, fmt.Sprintf("backtest: bad grid cooldown %q: %v", raw, err))
		}
	}
	if c.Backtest.IncludeArchived && !c.S3.Enabled {
		errs = append(errs, "backtest: include_archived requires s3 to be enabled")
	}

	// Archive
	if c.Archive.RetentionDays < 1 {
		errs = append(errs, "archive: retention_days must be >= 1")
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimitPerMinute < 0 {
			errs = append(errs, "server: rate_limit_per_minute must be >= 0")
		}
	}

	// Notify
	if (c.Notify.TelegramBotToken == "") != (c.Notify.TelegramChatID == "") {
		errs = append(errs, "notify: telegram_bot_token and telegram_chat_id must be set together")
	}

	// Pairs
	seen := make(map[string]bool, len(c.Pairs))
	for i, p := range c.Pairs {
		if p.ID == "" {
			errs = append(errs, fmt.Sprintf("pairs[%d]: id must not be empty", i))
			continue
		}
		if seen[p.ID] {
			errs = append(errs, fmt.Sprintf("pairs[%d]: duplicate id %q", i, p.ID))
		}
		seen[p.ID] = true
		if p.PolymarketID == "" {
			errs = append(errs, fmt.Sprintf("pairs[%d]: polymarket_id must not be empty", i))
		}
		if p.KalshiTicker == "" {
			errs = append(errs, fmt.Sprintf("pairs[%d]: kalshi_ticker must not be empty", i))
		}
		if p.ResolutionScore < 0 || p.ResolutionScore > 1 {
			errs = append(errs, fmt.Sprintf("pairs[%d]: resolution_score must be in [0,1], got %g", i, p.ResolutionScore))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
