// Package config defines the top-level configuration for the arena ledger
// daemon and client, and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by ARENA_* environment variables.
type Config struct {
	Ledger      LedgerConfig      `toml:"ledger"`
	Postgres    PostgresConfig    `toml:"postgres"`
	Redis       RedisConfig       `toml:"redis"`
	S3          S3Config          `toml:"s3"`
	Server      ServerConfig      `toml:"server"`
	Archive     ArchiveConfig     `toml:"archive"`
	Leaderboard LeaderboardConfig `toml:"leaderboard"`
	Notify      NotifyConfig      `toml:"notify"`
	Client      ClientConfig      `toml:"client"`
	Mode        string            `toml:"mode"`
	LogLevel    string            `toml:"log_level"`
}

// LedgerConfig holds settlement parameters and resolver identities.
type LedgerConfig struct {
	CreatorFeeBps   int      `toml:"creator_fee_bps"`
	PlatformFeeBps  int      `toml:"platform_fee_bps"`
	PlatformOwner   string   `toml:"platform_owner"`
	OracleAddresses []string `toml:"oracle_addresses"`
	MaxQuestionLen  int      `toml:"max_question_len"`
	MaxRulesLen     int      `toml:"max_rules_len"`
	MaxLabelLen     int      `toml:"max_label_len"`
	// SequencerLockTTL bounds how long a crashed daemon keeps other
	// instances from taking over the ledger.
	SequencerLockTTL duration `toml:"sequencer_lock_ttl"`
	// EventBuffer is the capacity of the post-commit fan-out queue.
	EventBuffer int `toml:"event_buffer"`
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

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	// URL (redis:// or rediss://) replaces Addr, Password, DB and TLSEnabled.
	URL        string `toml:"url"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	// APIKey guards the operator routes under /api/admin.
	APIKey string `toml:"api_key"`
	// SignatureMaxSkew is how far a signed request timestamp may drift from
	// the server clock.
	SignatureMaxSkew duration `toml:"signature_max_skew"`
	RateLimit        int      `toml:"rate_limit"`
	RateWindow       duration `toml:"rate_window"`
}

// ArchiveConfig controls the event export to object storage.
type ArchiveConfig struct {
	Enabled   bool   `toml:"enabled"`
	Cron      string `toml:"cron"`
	Prefix    string `toml:"prefix"`
	BatchSize int    `toml:"batch_size"`
}

// LeaderboardConfig controls the leaderboard rebuild.
type LeaderboardConfig struct {
	Enabled  bool     `toml:"enabled"`
	Cron     string   `toml:"cron"`
	CacheTTL duration `toml:"cache_ttl"`
	Limit    int      `toml:"limit"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
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

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// ClientConfig is read by arenactl.
type ClientConfig struct {
	ServerURL        string `toml:"server_url"`
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Ledger: LedgerConfig{
			CreatorFeeBps:    120,
			PlatformFeeBps:   80,
			OracleAddresses:  []string{},
			MaxQuestionLen:   500,
			MaxRulesLen:      5000,
			MaxLabelLen:      100,
			SequencerLockTTL: duration{30 * time.Second},
			EventBuffer:      1024,
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "arena",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "arena-ledger",
			ForcePathStyle: true,
		},
		Server: ServerConfig{
			Enabled:          true,
			Port:             8080,
			CORSOrigins:      []string{"http://localhost:3000", "http://localhost:5173"},
			SignatureMaxSkew: duration{5 * time.Minute},
			RateLimit:        30,
			RateWindow:       duration{time.Minute},
		},
		Archive: ArchiveConfig{
			Enabled:   true,
			Cron:      "0 * * * *",
			Prefix:    "events",
			BatchSize: 5000,
		},
		Leaderboard: LeaderboardConfig{
			Enabled:  true,
			Cron:     "*/10 * * * *",
			CacheTTL: duration{15 * time.Minute},
			Limit:    100,
		},
		Notify: NotifyConfig{
			Events: []string{"market_created", "market_resolved", "winnings_claimed", "error"},
		},
		Client: ClientConfig{
			ServerURL: "http://localhost:8080",
		},
		Mode:     "server",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"server":      true,
	"archive":     true,
	"leaderboard": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	// Mode
	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: server, archive, leaderboard)", c.Mode))
	}

	// LogLevel
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Ledger
	if c.Ledger.CreatorFeeBps < 0 || c.Ledger.PlatformFeeBps < 0 {
		errs = append(errs, "ledger: fee bps must be >= 0")
	}
	if c.Ledger.CreatorFeeBps+c.Ledger.PlatformFeeBps >= 10_000 {
		errs = append(errs, "ledger: creator_fee_bps + platform_fee_bps must be below 10000")
	}
	if c.Ledger.PlatformOwner != "" && !common.IsHexAddress(c.Ledger.PlatformOwner) {
		errs = append(errs, fmt.Sprintf("ledger: platform_owner %q is not an address", c.Ledger.PlatformOwner))
	}
	for _, a := range c.Ledger.OracleAddresses {
		if !common.IsHexAddress(a) {
			errs = append(errs, fmt.Sprintf("ledger: oracle address %q is not an address", a))
		}
	}
	if c.Ledger.MaxQuestionLen < 1 || c.Ledger.MaxRulesLen < 1 || c.Ledger.MaxLabelLen < 1 {
		errs = append(errs, "ledger: max_question_len, max_rules_len and max_label_len must be >= 1")
	}
	if c.Ledger.SequencerLockTTL.Duration < time.Second {
		errs = append(errs, "ledger: sequencer_lock_ttl must be >= 1s")
	}
	if c.Ledger.EventBuffer < 1 {
		errs = append(errs, "ledger: event_buffer must be >= 1")
	}

	// Postgres
	if c.Postgres.DSN == "" && c.Postgres.Host == "" {
		errs = append(errs, "postgres: dsn or host must be set")
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
	if c.Redis.Addr == "" && c.Redis.URL == "" {
		errs = append(errs, "redis: addr or url must be set")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// S3
	if c.Archive.Enabled || strings.EqualFold(c.Mode, "archive") {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
		if c.Archive.Cron == "" {
			errs = append(errs, "archive: cron must not be empty")
		}
		if c.Archive.BatchSize < 1 {
			errs = append(errs, "archive: batch_size must be >= 1")
		}
	}

	// Leaderboard
	if c.Leaderboard.Enabled || strings.EqualFold(c.Mode, "leaderboard") {
		if c.Leaderboard.Cron == "" {
			errs = append(errs, "leaderboard: cron must not be empty")
		}
		if c.Leaderboard.CacheTTL.Duration <= 0 {
			errs = append(errs, "leaderboard: cache_ttl must be > 0")
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.SignatureMaxSkew.Duration <= 0 {
			errs = append(errs, "server: signature_max_skew must be > 0")
		}
		if c.Server.RateLimit < 0 {
			errs = append(errs, "server: rate_limit must be >= 0")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
