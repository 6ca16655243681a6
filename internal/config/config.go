// Package config defines the engine configuration and its validation.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/alanyoungcy/parimutuel/internal/domain"
)

// Config is the root configuration. Fields come from a TOML file and are
// then overridden by PARIMUTUEL_* environment variables.
type Config struct {
	Solana   SolanaConfig   `toml:"solana"`
	Poll     PollConfig     `toml:"poll"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Archive  ArchiveConfig  `toml:"archive"`
	Actions  ActionsConfig  `toml:"actions"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// SolanaConfig locates the RPC node and the market program.
type SolanaConfig struct {
	RPCURL         string   `toml:"rpc_url"`
	ProgramID      string   `toml:"program_id"`
	Commitment     string   `toml:"commitment"`
	RequestTimeout duration `toml:"request_timeout"`
	MaxRetries     int      `toml:"max_retries"`
	RetryDelay     duration `toml:"retry_delay"`
}

// PollConfig drives the refresh loop.
type PollConfig struct {
	Interval       duration `toml:"interval"`
	Wallets        []string `toml:"wallets"`
	MarketsEnabled bool     `toml:"markets_enabled"`
	Concurrency    int      `toml:"concurrency"`
	// MaxWatchedWallets caps wallets added by API queries; the least recently
	// queried one is dropped first. Configured wallets do not count. Zero
	// means no limit.
	MaxWatchedWallets int `toml:"max_watched_wallets"`
}

// PostgresConfig holds connection parameters for the history sinks.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
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

// RedisConfig holds connection parameters for the signal bus, locks and
// rate limiter.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
	KeyPrefix  string `toml:"key_prefix"`
}

// S3Config holds S3-compatible object storage parameters.
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

// ArchiveConfig controls raw account dumps. ReplayPath selects the dump
// served in replay mode; empty means the latest one.
type ArchiveConfig struct {
	Enabled    bool     `toml:"enabled"`
	Interval   duration `toml:"interval"`
	Prefix     string   `toml:"prefix"`
	ReplayPath string   `toml:"replay_path"`
}

// ActionsConfig controls the pending-action tracker.
type ActionsConfig struct {
	StatusClearDelay duration `toml:"status_clear_delay"`
	// PendingTimeout fails an action that is still submitting after it.
	// Zero disables expiry.
	PendingTimeout duration `toml:"pending_timeout"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
	RateLimit   int      `toml:"rate_limit"`
	RateWindow  duration `toml:"rate_window"`
}

// NotifyConfig holds notification channel credentials and the event types
// to forward.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration decodes TOML strings such as "3s" or "1h".
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config with the values used by config.example.toml.
func Defaults() Config {
	return Config{
		Solana: SolanaConfig{
			RPCURL:         "https://api.devnet.solana.com",
			Commitment:     "confirmed",
			RequestTimeout: duration{15 * time.Second},
			MaxRetries:     3,
			RetryDelay:     duration{500 * time.Millisecond},
		},
		Poll: PollConfig{
			Interval:       duration{3 * time.Second},
			MarketsEnabled:    true,
			Concurrency:       4,
			MaxWatchedWallets: 256,
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "parimutuel",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  1,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   10,
			MaxRetries: 3,
			KeyPrefix:  "parimutuel:",
		},
		S3: S3Config{
			Region:         "us-east-1",
			UseSSL:         true,
			ForcePathStyle: true,
		},
		Archive: ArchiveConfig{
			Interval: duration{time.Hour},
			Prefix:   "dumps",
		},
		Actions: ActionsConfig{
			StatusClearDelay: duration{3 * time.Second},
			PendingTimeout:   duration{2 * time.Minute},
		},
		Server: ServerConfig{
			Enabled:    true,
			Port:       8080,
			RateWindow: duration{time.Minute},
		},
		Notify: NotifyConfig{
			Events: []string{
				string(domain.EventMarketResolved),
				string(domain.EventPositionClaimable),
			},
		},
		Mode:     "watch",
		LogLevel: "info",
	}
}

var validModes = map[string]bool{
	"watch":    true,
	"snapshot": true,
	"replay":   true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validCommitments = map[string]bool{
	"processed": true,
	"confirmed": true,
	"finalized": true,
}

// ProgramID parses the configured market program address.
func (c *Config) ProgramID() (domain.Address, error) {
	return domain.ParseAddress(strings.TrimSpace(c.Solana.ProgramID))
}

// Wallets parses the configured wallets to poll.
func (c *Config) Wallets() ([]domain.Address, error) {
	out := make([]domain.Address, 0, len(c.Poll.Wallets))
	for _, w := range c.Poll.Wallets {
		a, err := domain.ParseAddress(strings.TrimSpace(w))
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

// Validate checks Config and returns one error listing every problem found.
func (c *Config) Validate() error {
	var errs []string
	mode := strings.ToLower(c.Mode)

	if !validModes[mode] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: watch, snapshot, replay)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Solana
	if _, err := c.ProgramID(); err != nil {
		errs = append(errs, "solana: program_id must be a base58 address")
	}
	if mode != "replay" && strings.TrimSpace(c.Solana.RPCURL) == "" {
		errs = append(errs, "solana: rpc_url must not be empty")
	}
	if c.Solana.Commitment != "" && !validCommitments[c.Solana.Commitment] {
		errs = append(errs, fmt.Sprintf("solana: unknown commitment %q (valid: processed, confirmed, finalized)", c.Solana.Commitment))
	}
	if c.Solana.RequestTimeout.Duration <= 0 {
		errs = append(errs, "solana: request_timeout must be > 0")
	}
	if c.Solana.MaxRetries < 0 {
		errs = append(errs, "solana: max_retries must be >= 0")
	}

	// Poll
	if c.Poll.Interval.Duration <= 0 {
		errs = append(errs, "poll: interval must be > 0")
	}
	if c.Poll.MaxWatchedWallets < 0 {
		errs = append(errs, "poll: max_watched_wallets must be >= 0")
	}
	if c.Poll.Concurrency < 1 {
		errs = append(errs, "poll: concurrency must be >= 1")
	}
	if _, err := c.Wallets(); err != nil {
		errs = append(errs, "poll: "+err.Error())
	}
	if mode == "snapshot" && len(c.Poll.Wallets) == 0 {
		errs = append(errs, "poll: snapshot mode needs at least one wallet")
	}

	// Postgres
	if c.Postgres.Enabled {
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
		if c.Postgres.PoolMinConns < 0 || c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must be between 0 and pool_max_conns")
		}
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// S3 and archive
	if c.S3.Enabled && c.S3.Bucket == "" {
		errs = append(errs, "s3: bucket must not be empty")
	}
	if c.Archive.Enabled {
		if !c.S3.Enabled {
			errs = append(errs, "archive: requires s3.enabled")
		}
		if c.Archive.Interval.Duration <= 0 {
			errs = append(errs, "archive: interval must be > 0")
		}
	}
	if mode == "replay" && !c.S3.Enabled {
		errs = append(errs, "replay mode requires s3.enabled")
	}

	// Actions
	if c.Actions.StatusClearDelay.Duration <= 0 {
		errs = append(errs, "actions: status_clear_delay must be > 0")
	}
	if c.Actions.PendingTimeout.Duration < 0 {
		errs = append(errs, "actions: pending_timeout must be >= 0")
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit < 0 {
			errs = append(errs, "server: rate_limit must be >= 0")
		}
		if c.Server.RateLimit > 0 && !c.Redis.Enabled {
			errs = append(errs, "server: rate_limit requires redis.enabled")
		}
	}

	// Notify
	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
