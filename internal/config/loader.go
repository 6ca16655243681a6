package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load merges the TOML file at path over Defaults, loads .env if present and
// applies PARIMUTUEL_* overrides. An empty path skips the file. The result
// is not validated.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	_ = godotenv.Load()

	applyEnvOverrides(&cfg)
	return &cfg, nil
}

// applyEnvOverrides lets operators inject settings and secrets at deploy
// time without touching the TOML file. Unset or empty variables are ignored.
func applyEnvOverrides(cfg *Config) {
	// ── Solana ──
	setStr(&cfg.Solana.RPCURL, "PARIMUTUEL_SOLANA_RPC_URL")
	setStr(&cfg.Solana.ProgramID, "PARIMUTUEL_SOLANA_PROGRAM_ID")
	setStr(&cfg.Solana.Commitment, "PARIMUTUEL_SOLANA_COMMITMENT")
	setDuration(&cfg.Solana.RequestTimeout, "PARIMUTUEL_SOLANA_REQUEST_TIMEOUT")
	setInt(&cfg.Solana.MaxRetries, "PARIMUTUEL_SOLANA_MAX_RETRIES")
	setDuration(&cfg.Solana.RetryDelay, "PARIMUTUEL_SOLANA_RETRY_DELAY")

	// ── Poll ──
	setDuration(&cfg.Poll.Interval, "PARIMUTUEL_POLL_INTERVAL")
	setStringSlice(&cfg.Poll.Wallets, "PARIMUTUEL_POLL_WALLETS")
	setBool(&cfg.Poll.MarketsEnabled, "PARIMUTUEL_POLL_MARKETS_ENABLED")
	setInt(&cfg.Poll.Concurrency, "PARIMUTUEL_POLL_CONCURRENCY")
	setInt(&cfg.Poll.MaxWatchedWallets, "PARIMUTUEL_POLL_MAX_WATCHED_WALLETS")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "PARIMUTUEL_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // common PaaS alias
	setStr(&cfg.Postgres.DSN, "PARIMUTUEL_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "PARIMUTUEL_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "PARIMUTUEL_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "PARIMUTUEL_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "PARIMUTUEL_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "PARIMUTUEL_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "PARIMUTUEL_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "PARIMUTUEL_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "PARIMUTUEL_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "PARIMUTUEL_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "PARIMUTUEL_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "PARIMUTUEL_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "PARIMUTUEL_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "PARIMUTUEL_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "PARIMUTUEL_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "PARIMUTUEL_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "PARIMUTUEL_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.KeyPrefix, "PARIMUTUEL_REDIS_KEY_PREFIX")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "PARIMUTUEL_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "PARIMUTUEL_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "PARIMUTUEL_S3_REGION")
	setStr(&cfg.S3.Bucket, "PARIMUTUEL_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "PARIMUTUEL_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "PARIMUTUEL_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "PARIMUTUEL_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "PARIMUTUEL_S3_FORCE_PATH_STYLE")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "PARIMUTUEL_ARCHIVE_ENABLED")
	setDuration(&cfg.Archive.Interval, "PARIMUTUEL_ARCHIVE_INTERVAL")
	setStr(&cfg.Archive.Prefix, "PARIMUTUEL_ARCHIVE_PREFIX")
	setStr(&cfg.Archive.ReplayPath, "PARIMUTUEL_ARCHIVE_REPLAY_PATH")

	// ── Actions ──
	setDuration(&cfg.Actions.StatusClearDelay, "PARIMUTUEL_ACTIONS_STATUS_CLEAR_DELAY")
	setDuration(&cfg.Actions.PendingTimeout, "PARIMUTUEL_ACTIONS_PENDING_TIMEOUT")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "PARIMUTUEL_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "PARIMUTUEL_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "PARIMUTUEL_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "PARIMUTUEL_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "PARIMUTUEL_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "PARIMUTUEL_SERVER_RATE_WINDOW")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "PARIMUTUEL_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "PARIMUTUEL_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "PARIMUTUEL_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "PARIMUTUEL_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "PARIMUTUEL_MODE")
	setStr(&cfg.LogLevel, "PARIMUTUEL_LOG_LEVEL")
}

// Typed env helpers. Each mutates the target only when the variable is
// present, non-empty and parses.

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

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
