package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/alanyoungcy/arbscan/internal/blob/s3"
	"github.com/alanyoungcy/arbscan/internal/cache/redis"
	"github.com/alanyoungcy/arbscan/internal/config"
	"github.com/alanyoungcy/arbscan/internal/crypto"
	"github.com/alanyoungcy/arbscan/internal/domain"
	"github.com/alanyoungcy/arbscan/internal/notify"
	"github.com/alanyoungcy/arbscan/internal/platform/kalshi"
	"github.com/alanyoungcy/arbscan/internal/platform/polymarket"
	"github.com/alanyoungcy/arbscan/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency that the application
// modes need to operate. It is constructed by Wire and torn down by the
// returned cleanup function.
type Dependencies struct {
	// Stores
	Opportunities domain.OpportunityStore
	Snapshots     domain.SnapshotStore
	Backtests     domain.BacktestStore
	Positions     domain.PositionStore

	// Redis capabilities; nil when redis is disabled.
	Quotes  domain.QuoteCache
	Jobs    domain.JobCache
	Locks   domain.LockManager
	Bus     domain.SignalBus
	Limiter domain.RateLimiter

	// Operator alerts; nil when no channel is configured.
	Notifier *notify.Notifier

	// Blob storage; nil when s3 is disabled.
	BlobWriter domain.BlobWriter
	BlobReader domain.BlobReader
	Archiver   domain.Archiver

	// Venue clients; built only for modes that hit the venue APIs.
	Polymarket *polymarket.Client
	Kalshi     *kalshi.Client
	Gamma      *polymarket.GammaClient
}

// needsVenues returns true for modes that call the venue APIs. Backtest and
// optimize run entirely off stored snapshots.
func needsVenues(mode string) bool {
	switch mode {
	case "scan", "collect":
		return true
	default:
		return false
	}
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL (every mode persists or reads something) ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Postgres.DSN,
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		Database: cfg.Postgres.Database,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		SSLMode:  cfg.Postgres.SSLMode,
		MaxConns: cfg.Postgres.PoolMaxConns,
		MinConns: cfg.Postgres.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Postgres.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	oppStore := postgres.NewOpportunityStore(pool)
	snapStore := postgres.NewSnapshotStore(pool)
	deps.Opportunities = oppStore
	deps.Snapshots = snapStore
	deps.Backtests = postgres.NewBacktestStore(pool)
	deps.Positions = postgres.NewPositionStore(pool)

	// --- Redis ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.Quotes = redis.NewQuoteCache(redisClient)
		deps.Jobs = redis.NewJobCache(redisClient)
		deps.Locks = redis.NewLockManager(redisClient)
		deps.Bus = redis.NewSignalBus(redisClient)
		deps.Limiter = redis.NewRateLimiter(redisClient)
	} else {
		logger.InfoContext(ctx, "redis disabled; quote cache, job cache, locks and signal bus are off")
	}

	// --- S3 blob storage ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}

		deps.BlobWriter = s3blob.NewWriter(s3Client)
		deps.BlobReader = s3blob.NewReader(s3Client)
		deps.Archiver = s3blob.NewArchiver(deps.BlobWriter, oppStore, snapStore)
	}

	// --- Operator alerts ---
	var senders []notify.Sender
	if cfg.Notify.TelegramBotToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramBotToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	if len(senders) > 0 {
		deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)
	}

	// --- Venue clients ---
	if needsVenues(cfg.Mode) {
		deps.Gamma = polymarket.NewGammaClient(cfg.Polymarket.GammaHost)
		deps.Polymarket = polymarket.NewClient(cfg.Polymarket.GammaHost, cfg.Polymarket.ClobHost)

		kc := kalshi.NewClient(cfg.Kalshi.BaseURL, cfg.Kalshi.ApiKeyID)
		keyBytes, err := crypto.LoadKey(crypto.KeyConfig{
			KeyPath:          cfg.Kalshi.RsaPrivateKeyPath,
			EncryptedKeyPath: cfg.Kalshi.EncryptedKeyPath,
			KeyPassword:      cfg.Kalshi.KeyPassword,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: kalshi key: %w", err)
		}
		if err := kc.SetRSAPrivateKey(keyBytes); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: kalshi key: %w", err)
		}
		deps.Kalshi = kc
	}

	return deps, cleanup, nil
}
