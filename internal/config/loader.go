package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load merges the TOML file at path over Defaults, loads .env if present
// and applies environment overrides. An empty path skips the file. The
// result is not validated.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	applyEnvOverrides(&cfg)
	return &cfg, nil
}

// applyEnvOverrides applies the legacy variable names first so the
// POLYSNIPER_* names win when both are set.
func applyEnvOverrides(cfg *Config) {
	// legacy names
	setStr(&cfg.Wallet.PrivateKey, "POLY_PRIVATE_KEY")
	setStr(&cfg.Wallet.Funder, "POLYMARKET_ADDRESS")
	setStr(&cfg.Polymarket.ClobHost, "POLYMARKET_HOST")
	setStr(&cfg.Polymarket.APIKey, "POLY_API_KEY")
	setStr(&cfg.Polymarket.APISecret, "POLY_API_SECRET")
	setStr(&cfg.Polymarket.APIPassphrase, "POLY_API_PASSPHRASE")
	setStr(&cfg.Notify.TelegramToken, "TELEGRAM_BOT_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "TELEGRAM_CHAT_ID")
	setBool(&cfg.Trading.DryRun, "DRY_RUN")
	setFloat64(&cfg.Trading.MaxBuyPrice, "MAX_BUY_PRICE")
	setFloat64(&cfg.Sizing.BaseSize, "ORDER_SIZE_USDC")

	setStr(&cfg.Mode, "POLYSNIPER_MODE")
	setStr(&cfg.LogLevel, "POLYSNIPER_LOG_LEVEL")

	setStr(&cfg.Wallet.PrivateKey, "POLYSNIPER_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.EncryptedKeyPath, "POLYSNIPER_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "POLYSNIPER_WALLET_KEY_PASSWORD")
	setStr(&cfg.Wallet.Funder, "POLYSNIPER_WALLET_FUNDER")

	setStr(&cfg.Polymarket.ClobHost, "POLYSNIPER_POLYMARKET_CLOB_HOST")
	setInt(&cfg.Polymarket.ChainID, "POLYSNIPER_POLYMARKET_CHAIN_ID")
	setInt(&cfg.Polymarket.SignatureType, "POLYSNIPER_POLYMARKET_SIGNATURE_TYPE")
	setBool(&cfg.Polymarket.NegRisk, "POLYSNIPER_POLYMARKET_NEG_RISK")
	setStr(&cfg.Polymarket.APIKey, "POLYSNIPER_POLYMARKET_API_KEY")
	setStr(&cfg.Polymarket.APISecret, "POLYSNIPER_POLYMARKET_API_SECRET")
	setStr(&cfg.Polymarket.APIPassphrase, "POLYSNIPER_POLYMARKET_API_PASSPHRASE")

	setBool(&cfg.Trading.DryRun, "POLYSNIPER_TRADING_DRY_RUN")
	setFloat64(&cfg.Trading.MinBuyPrice, "POLYSNIPER_TRADING_MIN_BUY_PRICE")
	setFloat64(&cfg.Trading.MaxBuyPrice, "POLYSNIPER_TRADING_MAX_BUY_PRICE")
	setDuration(&cfg.Trading.OrderTimeout, "POLYSNIPER_TRADING_ORDER_TIMEOUT")
	setDuration(&cfg.Trading.MonitorInterval, "POLYSNIPER_TRADING_MONITOR_INTERVAL")
	setFloat64(&cfg.Trading.StopLossFraction, "POLYSNIPER_TRADING_STOP_LOSS_FRACTION")

	setInt(&cfg.Risk.MaxOpenPositions, "POLYSNIPER_RISK_MAX_OPEN_POSITIONS")
	setInt(&cfg.Risk.MaxPerGroup, "POLYSNIPER_RISK_MAX_PER_GROUP")
	setFloat64(&cfg.Risk.MaxExposure, "POLYSNIPER_RISK_MAX_EXPOSURE")
	setFloat64(&cfg.Risk.MaxSessionLoss, "POLYSNIPER_RISK_MAX_SESSION_LOSS")
	setDuration(&cfg.Risk.Cooldown, "POLYSNIPER_RISK_COOLDOWN")
	setDuration(&cfg.Risk.DedupWindow, "POLYSNIPER_RISK_DEDUP_WINDOW")
	setFloat64(&cfg.Risk.FeeRate, "POLYSNIPER_RISK_FEE_RATE")

	setStr(&cfg.Sizing.Mode, "POLYSNIPER_SIZING_MODE")
	setFloat64(&cfg.Sizing.BaseSize, "POLYSNIPER_SIZING_BASE_SIZE")
	setFloat64(&cfg.Sizing.MinOrder, "POLYSNIPER_SIZING_MIN_ORDER")
	setFloat64(&cfg.Sizing.MaxOrder, "POLYSNIPER_SIZING_MAX_ORDER")

	setInt(&cfg.Breaker.FailureThreshold, "POLYSNIPER_BREAKER_FAILURE_THRESHOLD")
	setInt(&cfg.Breaker.MinHealthySources, "POLYSNIPER_BREAKER_MIN_HEALTHY_SOURCES")
	setDuration(&cfg.Breaker.StaleTimeout, "POLYSNIPER_BREAKER_STALE_TIMEOUT")

	setFloat64(&cfg.RateLimit.Rate, "POLYSNIPER_RATE_LIMIT_RATE")
	setInt(&cfg.RateLimit.Burst, "POLYSNIPER_RATE_LIMIT_BURST")

	setStr(&cfg.State.Backend, "POLYSNIPER_STATE_BACKEND")
	setStr(&cfg.State.Path, "POLYSNIPER_STATE_PATH")
	setStr(&cfg.State.SQLitePath, "POLYSNIPER_STATE_SQLITE_PATH")
	setStr(&cfg.Journal.Backend, "POLYSNIPER_JOURNAL_BACKEND")
	setStr(&cfg.Journal.RedisStream, "POLYSNIPER_JOURNAL_REDIS_STREAM")
	setBool(&cfg.Journal.S3Archive, "POLYSNIPER_JOURNAL_S3_ARCHIVE")

	setStr(&cfg.Redis.Addr, "POLYSNIPER_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "POLYSNIPER_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "POLYSNIPER_REDIS_DB")
	setBool(&cfg.Redis.TLSEnabled, "POLYSNIPER_REDIS_TLS_ENABLED")

	setStr(&cfg.Postgres.DSN, "POLYSNIPER_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL")
	setStr(&cfg.Postgres.Host, "POLYSNIPER_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "POLYSNIPER_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "POLYSNIPER_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "POLYSNIPER_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "POLYSNIPER_POSTGRES_PASSWORD")

	setStr(&cfg.S3.Endpoint, "POLYSNIPER_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "POLYSNIPER_S3_REGION")
	setStr(&cfg.S3.Bucket, "POLYSNIPER_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "POLYSNIPER_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "POLYSNIPER_S3_SECRET_KEY")

	setStr(&cfg.Notify.TelegramToken, "POLYSNIPER_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "POLYSNIPER_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "POLYSNIPER_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "POLYSNIPER_NOTIFY_EVENTS")
}

// Each helper leaves dst untouched when the variable is unset, empty or
// unparsable.

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

// setDuration accepts "30s"-style strings or bare seconds.
func setDuration(dst *duration, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	if d, err := time.ParseDuration(v); err == nil {
		dst.Duration = d
		return
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		dst.Duration = time.Duration(secs * float64(time.Second))
	}
}

func setStringSlice(dst *[]string, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) > 0 {
		*dst = out
	}
}
