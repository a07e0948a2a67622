package config

import (
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies ARBSCAN_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known ARBSCAN_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Polymarket ──
	setStr(&cfg.Polymarket.GammaHost, "ARBSCAN_POLYMARKET_GAMMA_HOST")
	setStr(&cfg.Polymarket.ClobHost, "ARBSCAN_POLYMARKET_CLOB_HOST")
	setStr(&cfg.Polymarket.WsHost, "ARBSCAN_POLYMARKET_WS_HOST")
	setBool(&cfg.Polymarket.UseWS, "ARBSCAN_POLYMARKET_USE_WS")

	// ── Kalshi ──
	setStr(&cfg.Kalshi.ApiKeyID, "ARBSCAN_KALSHI_API_KEY_ID")
	setStr(&cfg.Kalshi.BaseURL, "ARBSCAN_KALSHI_BASE_URL")
	setStr(&cfg.Kalshi.RsaPrivateKeyPath, "ARBSCAN_KALSHI_RSA_PRIVATE_KEY_PATH")
	setStr(&cfg.Kalshi.EncryptedKeyPath, "ARBSCAN_KALSHI_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Kalshi.KeyPassword, "ARBSCAN_KALSHI_KEY_PASSWORD")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "ARBSCAN_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "ARBSCAN_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "ARBSCAN_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "ARBSCAN_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "ARBSCAN_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "ARBSCAN_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "ARBSCAN_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "ARBSCAN_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "ARBSCAN_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "ARBSCAN_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "ARBSCAN_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "ARBSCAN_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "ARBSCAN_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "ARBSCAN_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "ARBSCAN_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "ARBSCAN_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "ARBSCAN_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "ARBSCAN_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "ARBSCAN_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "ARBSCAN_S3_REGION")
	setStr(&cfg.S3.Bucket, "ARBSCAN_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "ARBSCAN_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "ARBSCAN_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "ARBSCAN_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "ARBSCAN_S3_FORCE_PATH_STYLE")

	// ── Fees ──
	setFloat64(&cfg.Fees.SafetyMarginPercent, "ARBSCAN_FEES_SAFETY_MARGIN_PERCENT")
	setFloat64(&cfg.Fees.Kalshi.PercentProfit, "ARBSCAN_FEES_KALSHI_PERCENT_PROFIT")
	setFloat64(&cfg.Fees.Polymarket.PercentOfCost, "ARBSCAN_FEES_POLYMARKET_PERCENT_OF_COST")

	// ── Scanner ──
	setDuration(&cfg.Scanner.Interval, "ARBSCAN_SCANNER_INTERVAL")
	setFloat64(&cfg.Scanner.MinProfitPercent, "ARBSCAN_SCANNER_MIN_PROFIT_PERCENT")
	setFloat64(&cfg.Scanner.AvailableCapital, "ARBSCAN_SCANNER_AVAILABLE_CAPITAL")
	setInt(&cfg.Scanner.TTLSeconds, "ARBSCAN_SCANNER_TTL_SECONDS")
	setDuration(&cfg.Scanner.HoldingPeriod, "ARBSCAN_SCANNER_HOLDING_PERIOD")
	setInt(&cfg.Scanner.MaxConcurrentPairs, "ARBSCAN_SCANNER_MAX_CONCURRENT_PAIRS")

	// ── Collector ──
	setInt(&cfg.Collector.FidelityMinutes, "ARBSCAN_COLLECTOR_FIDELITY_MINUTES")
	setFloat64(&cfg.Collector.MinProfitThreshold, "ARBSCAN_COLLECTOR_MIN_PROFIT_THRESHOLD")
	setInt(&cfg.Collector.LookbackDays, "ARBSCAN_COLLECTOR_LOOKBACK_DAYS")
	setDuration(&cfg.Collector.JobTTL, "ARBSCAN_COLLECTOR_JOB_TTL")
	setInt(&cfg.Collector.Polymarket.MaxRequestsPerMinute, "ARBSCAN_COLLECTOR_POLYMARKET_MAX_REQUESTS_PER_MINUTE")
	setInt(&cfg.Collector.Kalshi.MaxRequestsPerMinute, "ARBSCAN_COLLECTOR_KALSHI_MAX_REQUESTS_PER_MINUTE")

	// ── Backtest ──
	setFloat64(&cfg.Backtest.InitialCapital, "ARBSCAN_BACKTEST_INITIAL_CAPITAL")
	setFloat64(&cfg.Backtest.MinProfitPercent, "ARBSCAN_BACKTEST_MIN_PROFIT_PERCENT")
	setFloat64(&cfg.Backtest.MaxPositionSize, "ARBSCAN_BACKTEST_MAX_POSITION_SIZE")
	setFloat64(&cfg.Backtest.MaxPositionPercent, "ARBSCAN_BACKTEST_MAX_POSITION_PERCENT")
	setDuration(&cfg.Backtest.Cooldown, "ARBSCAN_BACKTEST_COOLDOWN")
	setDuration(&cfg.Backtest.HoldingPeriod, "ARBSCAN_BACKTEST_HOLDING_PERIOD")
	setBool(&cfg.Backtest.RequireResolutionAlignment, "ARBSCAN_BACKTEST_REQUIRE_RESOLUTION_ALIGNMENT")
	setFloat64(&cfg.Backtest.MinResolutionScore, "ARBSCAN_BACKTEST_MIN_RESOLUTION_SCORE")
	setStr(&cfg.Backtest.Slippage, "ARBSCAN_BACKTEST_SLIPPAGE")
	setBool(&cfg.Backtest.IncludeArchived, "ARBSCAN_BACKTEST_INCLUDE_ARCHIVED")

	// ── Archive ──
	setInt(&cfg.Archive.RetentionDays, "ARBSCAN_ARCHIVE_RETENTION_DAYS")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "ARBSCAN_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "ARBSCAN_SERVER_PORT")
	setStr(&cfg.Server.APIKey, "ARBSCAN_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimitPerMinute, "ARBSCAN_SERVER_RATE_LIMIT_PER_MINUTE")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramBotToken, "ARBSCAN_TELEGRAM_BOT_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "ARBSCAN_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "ARBSCAN_DISCORD_WEBHOOK_URL")

	// ── Top-level ──
	setStr(&cfg.Mode, "ARBSCAN_MODE")
	setStr(&cfg.LogLevel, "ARBSCAN_LOG_LEVEL")
}

// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}
