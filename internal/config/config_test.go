package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const programID = "11111111111111111111111111111111"

func writeTOML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestLoadMergesDefaults(t *testing.T) {
	path := writeTOML(t, `
mode = "watch"

[solana]
program_id = "`+programID+`"
request_timeout = "20s"

[poll]
interval = "5s"
wallets = ["`+programID+`"]
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Solana.RequestTimeout.Duration != 20*time.Second {
		t.Fatalf("request_timeout=%s want 20s", cfg.Solana.RequestTimeout.Duration)
	}
	if cfg.Poll.Interval.Duration != 5*time.Second {
		t.Fatalf("interval=%s want 5s", cfg.Poll.Interval.Duration)
	}
	if cfg.Actions.StatusClearDelay.Duration != 3*time.Second {
		t.Fatalf("status_clear_delay default=%s want 3s", cfg.Actions.StatusClearDelay.Duration)
	}
	if cfg.Actions.PendingTimeout.Duration != 2*time.Minute || cfg.Poll.MaxWatchedWallets != 256 {
		t.Fatalf("pending_timeout=%s max_watched_wallets=%d", cfg.Actions.PendingTimeout.Duration, cfg.Poll.MaxWatchedWallets)
	}
	if !cfg.Poll.MarketsEnabled || cfg.Solana.Commitment != "confirmed" {
		t.Fatalf("defaults lost: %+v", cfg.Poll)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	wallets, _ := cfg.Wallets()
	if len(wallets) != 1 {
		t.Fatalf("wallets=%d want 1", len(wallets))
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PARIMUTUEL_SOLANA_PROGRAM_ID", programID)
	t.Setenv("PARIMUTUEL_POLL_INTERVAL", "250ms")
	t.Setenv("PARIMUTUEL_POLL_WALLETS", " "+programID+" , ")
	t.Setenv("PARIMUTUEL_REDIS_ENABLED", "true")
	t.Setenv("PARIMUTUEL_SERVER_PORT", "not-a-number")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Solana.ProgramID != programID {
		t.Fatalf("program_id=%q", cfg.Solana.ProgramID)
	}
	if cfg.Poll.Interval.Duration != 250*time.Millisecond {
		t.Fatalf("interval=%s", cfg.Poll.Interval.Duration)
	}
	if len(cfg.Poll.Wallets) != 1 || cfg.Poll.Wallets[0] != programID {
		t.Fatalf("wallets=%q", cfg.Poll.Wallets)
	}
	if !cfg.Redis.Enabled {
		t.Fatal("redis not enabled")
	}
	if cfg.Server.Port != 8080 {
		t.Fatalf("unparsable override applied: port=%d", cfg.Server.Port)
	}
}

func TestValidateCollectsProblems(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "snapshot"
	cfg.LogLevel = "loud"
	cfg.Poll.Interval.Duration = 0
	cfg.Archive.Enabled = true
	cfg.Notify.TelegramToken = "t"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{
		"log_level",
		"program_id",
		"poll: interval",
		"snapshot mode needs at least one wallet",
		"archive: requires s3.enabled",
		"telegram_chat_id",
	} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error missing %q:\n%v", want, err)
		}
	}
}

func TestReplayNeedsS3(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "replay"
	cfg.Solana.ProgramID = programID
	cfg.Solana.RPCURL = ""
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "replay mode requires s3.enabled") {
		t.Fatalf("err=%v", err)
	}
	cfg.S3.Enabled, cfg.S3.Bucket = true, "dumps"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("replay without rpc_url should validate: %v", err)
	}
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Postgres.Password = "pw"
	cfg.Server.APIKey = "key"
	cfg.Solana.RPCURL = "https://rpc.example.com/?api-key=abc"
	cfg.Poll.Wallets = []string{"w"}

	out := RedactedConfig(&cfg)
	if out.Postgres.Password != redacted || out.Server.APIKey != redacted {
		t.Fatalf("secrets not redacted: %+v", out)
	}
	if out.Solana.RPCURL != "https://rpc.example.com/?***" {
		t.Fatalf("rpc_url=%q", out.Solana.RPCURL)
	}
	if out.Redis.Password != "" {
		t.Fatalf("empty secret became %q", out.Redis.Password)
	}
	out.Poll.Wallets[0] = "x"
	if cfg.Poll.Wallets[0] != "w" {
		t.Fatal("redacted copy shares wallets slice")
	}
	if cfg.Postgres.Password != "pw" {
		t.Fatal("original mutated")
	}
}
