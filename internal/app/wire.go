package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	s3blob "github.com/alanyoungcy/arenaledger/internal/blob/s3"
	"github.com/alanyoungcy/arenaledger/internal/cache/redis"
	"github.com/alanyoungcy/arenaledger/internal/config"
	"github.com/alanyoungcy/arenaledger/internal/domain"
	"github.com/alanyoungcy/arenaledger/internal/notify"
	"github.com/alanyoungcy/arenaledger/internal/server/handler"
	"github.com/alanyoungcy/arenaledger/internal/store/postgres"
)

// Dependencies bundles every infrastructure dependency that the application
// modes need. It is constructed by Wire and torn down by the returned cleanup
// function.
type Dependencies struct {
	// Journal
	Postgres *postgres.Client
	Store    *postgres.LedgerStore
	Audit    domain.AuditLog

	// Caches
	Redis            *redis.Client
	MarketCache      domain.MarketCache
	LeaderboardCache domain.LeaderboardCache
	RateLimiter      domain.RateLimiter
	LockManager      domain.LockManager
	Nonces           domain.NonceStore
	EventBus         domain.EventBus

	// Blob storage; nil when archiving is off.
	S3       *s3blob.Bucket
	Archiver *s3blob.Archiver

	// Notifications
	Notifier *notify.Notifier
}

// needsS3 reports whether the mode exports events to object storage.
func needsS3(cfg *config.Config) bool {
	return cfg.Archive.Enabled || strings.EqualFold(cfg.Mode, "archive")
}

// HealthChecks returns a probe per wired backend.
func (d *Dependencies) HealthChecks() map[string]handler.Check {
	checks := map[string]handler.Check{
		"postgres": func(ctx context.Context) error { return d.Postgres.Pool().Ping(ctx) },
		"redis":    d.Redis.Ping,
	}
	if d.S3 != nil {
		checks["s3"] = d.S3.Health
	}
	return checks
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL: the journal every mode reads ---
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
		applied, err := pgClient.RunMigrations(ctx)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
		if len(applied) > 0 {
			logger.InfoContext(ctx, "postgres migrations applied", slog.Any("files", applied))
		}
	}
	deps.Postgres = pgClient
	deps.Store = postgres.NewLedgerStore(pgClient.Pool())
	deps.Audit = postgres.NewAuditStore(pgClient.Pool())

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		URL:        cfg.Redis.URL,
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

	deps.Redis = redisClient
	deps.MarketCache = redis.NewMarketCache(redisClient, 0)
	deps.LeaderboardCache = redis.NewLeaderboardCache(redisClient)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)
	deps.LockManager = redis.NewLockManager(redisClient)
	deps.Nonces = redis.NewNonceStore(redisClient)
	deps.EventBus = redis.NewEventBus(redisClient)

	// --- S3 blob storage ---
	if needsS3(cfg) {
		bucket, err := s3blob.NewBucket(ctx, s3blob.BucketConfig{
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
		deps.S3 = bucket
		deps.Archiver = s3blob.NewArchiver(
			deps.Store,
			bucket,
			cfg.Archive.Prefix,
			cfg.Archive.BatchSize,
			logger,
		)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}
