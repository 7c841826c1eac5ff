package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kaelsz/Polymarket-Sniper/internal/domain"
)

func validConfig() Config {
	cfg := Defaults()
	cfg.Feeds.WebSocket = []WSFeedConfig{{Name: "lol", URL: "ws://localhost:9000/signals"}}
	return cfg
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	assert.True(t, cfg.Trading.DryRun)
	assert.Equal(t, 10, cfg.Risk.MaxOpenPositions)
	assert.Equal(t, 4, cfg.Risk.MaxPerGroup)
	assert.Equal(t, 200.0, cfg.Risk.MaxSessionLoss)
	assert.Equal(t, 500.0, cfg.Risk.MaxExposure)
	assert.Equal(t, 30*time.Second, cfg.Risk.Cooldown.Duration)
	assert.Equal(t, 300*time.Second, cfg.Risk.DedupWindow.Duration)
	assert.Equal(t, 0.02, cfg.Risk.FeeRate)
	assert.Equal(t, 0.85, cfg.Trading.MaxBuyPrice)
	assert.Equal(t, 3, cfg.Breaker.FailureThreshold)
	assert.Equal(t, 120*time.Second, cfg.Breaker.StaleTimeout.Duration)
	assert.Equal(t, 5.0, cfg.RateLimit.Rate)
	assert.Equal(t, 10, cfg.RateLimit.Burst)
	assert.Equal(t, "fixed", cfg.Sizing.Mode)
	assert.Equal(t, 4.0, cfg.Sizing.KellyScale)

	vc := validConfig()
	assert.NoError(t, vc.Validate())
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"min above max order", func(c *Config) { c.Sizing.MinOrder = 300 }, "sizing: min_order"},
		{"base outside bounds", func(c *Config) { c.Sizing.BaseSize = 5 }, "sizing: base_size"},
		{"price band inverted", func(c *Config) { c.Trading.MinBuyPrice = 0.9; c.Trading.MaxBuyPrice = 0.8 }, "trading: min_buy_price"},
		{"max price at one", func(c *Config) { c.Trading.MaxBuyPrice = 1 }, "trading: max_buy_price"},
		{"thresholds inverted", func(c *Config) { c.Trading.LossThreshold = 0.96 }, "loss_threshold"},
		{"fee rate", func(c *Config) { c.Risk.FeeRate = 1 }, "risk: fee_rate"},
		{"stop loss", func(c *Config) { c.Trading.StopLossFraction = -0.1 }, "stop_loss_fraction"},
		{"group above open", func(c *Config) { c.Risk.MaxPerGroup = 11 }, "risk: max_per_group"},
		{"min healthy above sources", func(c *Config) { c.Breaker.MinHealthySources = 2 }, "exceeds the number of configured sources"},
		{"no feeds in trade mode", func(c *Config) { c.Feeds.WebSocket = nil }, "at least one signal source"},
		{"rate", func(c *Config) { c.RateLimit.Rate = 0 }, "rate_limit: rate"},
		{"burst", func(c *Config) { c.RateLimit.Burst = 0 }, "rate_limit: burst"},
		{"sizing mode", func(c *Config) { c.Sizing.Mode = "martingale" }, "sizing: unknown mode"},
		{"state backend", func(c *Config) { c.State.Backend = "etcd" }, "state: unknown backend"},
		{"journal backend", func(c *Config) { c.Journal.Backend = "kafka" }, "journal: unknown backend"},
		{"mode", func(c *Config) { c.Mode = "backtest" }, "unknown mode"},
		{"live without wallet", func(c *Config) { c.Trading.DryRun = false }, "wallet:"},
		{"partial api creds", func(c *Config) { c.Polymarket.APIKey = "k" }, "must be set together"},
		{"bad ws url", func(c *Config) { c.Feeds.WebSocket[0].URL = "http://x" }, "ws:// or wss://"},
		{"duplicate source", func(c *Config) {
			c.Feeds.Redis = []RedisFeedConfig{{Name: "lol", Channel: "signals:lol"}}
		}, "duplicate source name"},
		{"s3 archive without bucket", func(c *Config) { c.Journal.S3Archive = true }, "s3: bucket"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
			assert.True(t, errors.Is(err, domain.ErrInvalidConfig))
		})
	}
}

func TestValidateCollectsAllProblems(t *testing.T) {
	cfg := validConfig()
	cfg.RateLimit.Rate = 0
	cfg.Risk.FeeRate = 2
	err := cfg.Validate()
	require.Error(t, err)

	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Len(t, ve.Problems, 2)
	assert.Contains(t, err.Error(), "config validation failed:\n  - ")
}

func TestMonitorModeNeedsNoFeeds(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "monitor"
	assert.NoError(t, cfg.Validate())
}

func TestLoadTOMLAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
mode = "trade"

[risk]
cooldown = "45s"
max_open_positions = 6
max_per_group = 2

[sizing]
mode = "kelly"

[[feeds.websocket]]
name = "cs2"
url = "wss://signals.example.com/cs2"
headers = { Authorization = "Bearer abc" }
`), 0o644))

	// Keep godotenv from picking up a stray .env in the package dir.
	t.Chdir(dir)
	t.Setenv("POLYSNIPER_RISK_MAX_EXPOSURE", "750")
	t.Setenv("POLYSNIPER_RISK_DEDUP_WINDOW", "60")
	t.Setenv("POLYSNIPER_NOTIFY_EVENTS", "trade_executed, halt,")
	t.Setenv("DRY_RUN", "false")
	t.Setenv("POLYSNIPER_TRADING_DRY_RUN", "true")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 45*time.Second, cfg.Risk.Cooldown.Duration)
	assert.Equal(t, 6, cfg.Risk.MaxOpenPositions)
	assert.Equal(t, 750.0, cfg.Risk.MaxExposure)
	assert.Equal(t, 60*time.Second, cfg.Risk.DedupWindow.Duration)
	assert.Equal(t, "kelly", cfg.Sizing.Mode)
	assert.Equal(t, []string{"trade_executed", "halt"}, cfg.Notify.Events)
	assert.True(t, cfg.Trading.DryRun, "POLYSNIPER_* wins over legacy names")
	require.Len(t, cfg.Feeds.WebSocket, 1)
	assert.Equal(t, "Bearer abc", cfg.Feeds.WebSocket[0].Headers["Authorization"])
	assert.Equal(t, 0.85, cfg.Trading.MaxBuyPrice, "defaults survive")
	assert.NoError(t, cfg.Validate())
}

func TestLoadBadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte("mode = "), 0o644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestRedactedConfig(t *testing.T) {
	cfg := validConfig()
	cfg.Wallet.PrivateKey = "0xdeadbeef"
	cfg.Polymarket.APISecret = "s3cr3t"
	cfg.Notify.TelegramToken = "123:abc"
	cfg.Postgres.DSN = "postgres://u:p@h/db"
	cfg.Feeds.WebSocket[0].Headers = map[string]string{"Authorization": "Bearer abc"}

	out := RedactedConfig(&cfg)
	assert.Equal(t, redacted, out.Wallet.PrivateKey)
	assert.Equal(t, redacted, out.Polymarket.APISecret)
	assert.Equal(t, redacted, out.Notify.TelegramToken)
	assert.Equal(t, redacted, out.Postgres.DSN)
	assert.Equal(t, redacted, out.Feeds.WebSocket[0].Headers["Authorization"])
	assert.Empty(t, out.Polymarket.APIKey, "empty values stay empty")

	assert.Equal(t, "0xdeadbeef", cfg.Wallet.PrivateKey)
	assert.Equal(t, "Bearer abc", cfg.Feeds.WebSocket[0].Headers["Authorization"], "original is untouched")
}
