package config

import "strings"

// RedactedConfig returns a copy of cfg with secrets replaced by "***", safe
// to log or print.
func RedactedConfig(cfg *Config) Config {
	out := *cfg

	redact(&out.Postgres.DSN)
	redact(&out.Postgres.Password)
	redact(&out.Redis.Password)
	redact(&out.S3.AccessKey)
	redact(&out.S3.SecretKey)
	redact(&out.Server.APIKey)
	redact(&out.Notify.TelegramToken)
	redact(&out.Notify.DiscordWebhookURL)
	redactURLKey(&out.Solana.RPCURL)

	out.Poll.Wallets = append([]string(nil), cfg.Poll.Wallets...)
	out.Server.CORSOrigins = append([]string(nil), cfg.Server.CORSOrigins...)
	out.Notify.Events = append([]string(nil), cfg.Notify.Events...)
	return out
}

const redacted = "***"

func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}

// redactURLKey masks the query string of an RPC URL, where hosted
// providers put API keys.
func redactURLKey(s *string) {
	if base, _, ok := strings.Cut(*s, "?"); ok {
		*s = base + "?" + redacted
	}
}
