// Package config defines the sniper's configuration, its defaults and
// validation.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/Kaelsz/Polymarket-Sniper/internal/domain"
)

// Config is the root configuration. Fields come from a TOML file and are
// then overridden by POLYSNIPER_* environment variables.
type Config struct {
	Mode     string `toml:"mode"`
	LogLevel string `toml:"log_level"`

	Wallet     WalletConfig     `toml:"wallet"`
	Polymarket PolymarketConfig `toml:"polymarket"`
	Trading    TradingConfig    `toml:"trading"`
	Risk       RiskConfig       `toml:"risk"`
	Sizing     SizingConfig     `toml:"sizing"`
	Breaker    BreakerConfig    `toml:"breaker"`
	RateLimit  RateLimitConfig  `toml:"rate_limit"`
	State      StateConfig      `toml:"state"`
	Journal    JournalConfig    `toml:"journal"`
	Feeds      FeedsConfig      `toml:"feeds"`
	Redis      RedisConfig      `toml:"redis"`
	Postgres   PostgresConfig   `toml:"postgres"`
	S3         S3Config         `toml:"s3"`
	Notify     NotifyConfig     `toml:"notify"`
}

// WalletConfig holds the signing key. A raw key wins over an encrypted
// key file.
type WalletConfig struct {
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
	Funder           string `toml:"funder"` // proxy wallet holding the funds, if any
}

// PolymarketConfig holds CLOB endpoints and API credentials. Empty
// credentials are derived from the wallet at startup.
type PolymarketConfig struct {
	ClobHost       string   `toml:"clob_host"`
	ChainID        int      `toml:"chain_id"`
	SignatureType  int      `toml:"signature_type"`
	NegRisk        bool     `toml:"neg_risk"`
	OrderType      string   `toml:"order_type"`
	RequestTimeout duration `toml:"request_timeout"`
	APIKey         string   `toml:"api_key"`
	APISecret      string   `toml:"api_secret"`
	APIPassphrase  string   `toml:"api_passphrase"`
}

// HasAPICreds reports whether L2 API credentials were supplied.
func (p PolymarketConfig) HasAPICreds() bool {
	return p.APIKey != "" && p.APISecret != "" && p.APIPassphrase != ""
}

type TradingConfig struct {
	DryRun           bool     `toml:"dry_run"`
	MinBuyPrice      float64  `toml:"min_buy_price"`
	MaxBuyPrice      float64  `toml:"max_buy_price"`
	OrderTimeout     duration `toml:"order_timeout"`
	MonitorInterval  duration `toml:"monitor_interval"`
	StopLossFraction float64  `toml:"stop_loss_fraction"` // 0 disables
	WinThreshold     float64  `toml:"win_threshold"`
	LossThreshold    float64  `toml:"loss_threshold"`
	JournalSize      int      `toml:"journal_size"`
}

type RiskConfig struct {
	MaxOpenPositions int      `toml:"max_open_positions"`
	MaxPerGroup      int      `toml:"max_per_group"`
	MaxExposure      float64  `toml:"max_exposure"`
	MaxSessionLoss   float64  `toml:"max_session_loss"`
	Cooldown         duration `toml:"cooldown"`
	DedupWindow      duration `toml:"dedup_window"`
	FeeRate          float64  `toml:"fee_rate"`
}

type SizingConfig struct {
	Mode          string  `toml:"mode"` // fixed | confidence | kelly
	BaseSize      float64 `toml:"base_size"`
	MinOrder      float64 `toml:"min_order"`
	MaxOrder      float64 `toml:"max_order"`
	KellyFraction float64 `toml:"kelly_fraction"`
	KellyWinProb  float64 `toml:"kelly_win_prob"`
	KellyScale    float64 `toml:"kelly_scale"`
	ScoreWeight   float64 `toml:"score_weight"`
	EdgeWeight    float64 `toml:"edge_weight"`
}

type BreakerConfig struct {
	FailureThreshold  int      `toml:"failure_threshold"`
	RecoverySuccesses int      `toml:"recovery_successes"`
	MinHealthySources int      `toml:"min_healthy_sources"`
	StaleTimeout      duration `toml:"stale_timeout"`
	CheckInterval     duration `toml:"check_interval"`
}

type RateLimitConfig struct {
	Rate  float64 `toml:"rate"` // requests per second
	Burst int     `toml:"burst"`
}

// StateConfig selects where the ledger snapshot lives.
type StateConfig struct {
	Backend    string `toml:"backend"` // file | redis | postgres | sqlite | none
	Path       string `toml:"path"`
	SQLitePath string `toml:"sqlite_path"`
}

// JournalConfig selects the durable trade journal and optional sinks.
type JournalConfig struct {
	Backend         string   `toml:"backend"` // none | postgres | sqlite
	RedisStream     string   `toml:"redis_stream"`
	S3Archive       bool     `toml:"s3_archive"`
	ArchivePrefix   string   `toml:"archive_prefix"`
	ArchiveInterval duration `toml:"archive_interval"`
}

// FeedsConfig lists the signal sources. Each source name is registered
// with the circuit breaker.
type FeedsConfig struct {
	RetryChannel string            `toml:"retry_channel"`
	BackoffBase  duration          `toml:"backoff_base"`
	BackoffMax   duration          `toml:"backoff_max"`
	Redis        []RedisFeedConfig `toml:"redis"`
	WebSocket    []WSFeedConfig    `toml:"websocket"`
}

// SourceNames returns every configured source name in declaration order.
func (f FeedsConfig) SourceNames() []string {
	names := make([]string, 0, len(f.Redis)+len(f.WebSocket))
	for _, r := range f.Redis {
		names = append(names, r.Name)
	}
	for _, w := range f.WebSocket {
		names = append(names, w.Name)
	}
	return names
}

type RedisFeedConfig struct {
	Name      string   `toml:"name"`
	Channel   string   `toml:"channel"`
	Heartbeat duration `toml:"heartbeat"`
}

type WSFeedConfig struct {
	Name    string            `toml:"name"`
	URL     string            `toml:"url"`
	Headers map[string]string `toml:"headers"`
}

type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
	Prefix     string `toml:"prefix"`
}

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

type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
	QueueSize         int      `toml:"queue_size"`
}

// duration lets TOML carry "30s"-style strings.
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

// Defaults returns the built-in configuration: dry run, file state, no
// feeds and no notification channels.
func Defaults() Config {
	return Config{
		Mode:     "trade",
		LogLevel: "info",
		Polymarket: PolymarketConfig{
			ClobHost:       "https://clob.polymarket.com",
			ChainID:        137,
			SignatureType:  0,
			OrderType:      "FOK",
			RequestTimeout: duration{10 * time.Second},
		},
		Trading: TradingConfig{
			DryRun:          true,
			MinBuyPrice:     0,
			MaxBuyPrice:     0.85,
			OrderTimeout:    duration{15 * time.Second},
			MonitorInterval: duration{30 * time.Second},
			WinThreshold:    0.95,
			LossThreshold:   0.05,
			JournalSize:     1000,
		},
		Risk: RiskConfig{
			MaxOpenPositions: 10,
			MaxPerGroup:      4,
			MaxExposure:      500,
			MaxSessionLoss:   200,
			Cooldown:         duration{30 * time.Second},
			DedupWindow:      duration{300 * time.Second},
			FeeRate:          0.02,
		},
		Sizing: SizingConfig{
			Mode:          "fixed",
			BaseSize:      50,
			MinOrder:      10,
			MaxOrder:      200,
			KellyFraction: 0.25,
			KellyWinProb:  0.90,
			KellyScale:    4,
			ScoreWeight:   0.6,
			EdgeWeight:    0.4,
		},
		Breaker: BreakerConfig{
			FailureThreshold:  3,
			RecoverySuccesses: 1,
			MinHealthySources: 1,
			StaleTimeout:      duration{120 * time.Second},
			CheckInterval:     duration{10 * time.Second},
		},
		RateLimit: RateLimitConfig{Rate: 5, Burst: 10},
		State: StateConfig{
			Backend:    "file",
			Path:       "data/ledger.json",
			SQLitePath: "data/polysniper.db",
		},
		Journal: JournalConfig{
			Backend:         "none",
			ArchivePrefix:   "polysniper",
			ArchiveInterval: duration{5 * time.Minute},
		},
		Feeds: FeedsConfig{
			RetryChannel: "scanner:retry",
			BackoffBase:  duration{5 * time.Second},
			BackoffMax:   duration{120 * time.Second},
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   10,
			MaxRetries: 3,
			Prefix:     "polysniper",
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "polysniper",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  5,
			PoolMinConns:  1,
			RunMigrations: true,
		},
		S3: S3Config{
			Region:         "us-east-1",
			ForcePathStyle: true,
		},
		Notify: NotifyConfig{QueueSize: 256},
	}
}

var (
	validModes        = []string{"trade", "monitor"}
	validLogLevels    = []string{"debug", "info", "warn", "error"}
	validSizingModes  = []string{"fixed", "confidence", "kelly"}
	validStateStores  = []string{"file", "redis", "postgres", "sqlite", "none"}
	validJournalSinks = []string{"none", "postgres", "sqlite"}
)

func oneOf(v string, valid []string) bool {
	for _, s := range valid {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}

// ValidationError lists every problem found by Validate. It matches
// domain.ErrInvalidConfig under errors.Is.
type ValidationError struct {
	Problems []string
}

// Error lists every field that failed validation.
func (e *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(e.Problems, "\n  - ")
}

func (e *ValidationError) Unwrap() error { return domain.ErrInvalidConfig }

// Live reports whether orders are actually sent.
func (c *Config) Live() bool { return !c.Trading.DryRun }

// Validate checks the configuration and reports every problem at once.
func (c *Config) Validate() error {
	var errs []string
	add := func(format string, args ...any) { errs = append(errs, fmt.Sprintf(format, args...)) }

	if !oneOf(c.Mode, validModes) {
		add("unknown mode %q (valid: %s)", c.Mode, strings.Join(validModes, ", "))
	}
	if !oneOf(c.LogLevel, validLogLevels) {
		add("unknown log_level %q (valid: %s)", c.LogLevel, strings.Join(validLogLevels, ", "))
	}

	// Wallet is needed to sign anything, so only live trading requires it.
	if c.Live() {
		if c.Wallet.PrivateKey == "" && c.Wallet.EncryptedKeyPath == "" {
			add("wallet: private_key or encrypted_key_path must be set when trading.dry_run is false")
		}
		if c.Wallet.EncryptedKeyPath != "" && c.Wallet.KeyPassword == "" {
			add("wallet: key_password is required with encrypted_key_path")
		}
	}
	p := c.Polymarket
	if p.ClobHost == "" {
		add("polymarket: clob_host must not be empty")
	}
	if p.ChainID <= 0 {
		add("polymarket: chain_id must be positive")
	}
	if p.SignatureType < 0 || p.SignatureType > 2 {
		add("polymarket: signature_type must be 0 (EOA), 1 (proxy) or 2 (safe), got %d", p.SignatureType)
	}
	if set := btoi(p.APIKey != "") + btoi(p.APISecret != "") + btoi(p.APIPassphrase != ""); set != 0 && set != 3 {
		add("polymarket: api_key, api_secret and api_passphrase must be set together")
	}

	t := c.Trading
	if t.MaxBuyPrice <= 0 || t.MaxBuyPrice >= 1 {
		add("trading: max_buy_price must be in (0, 1), got %g", t.MaxBuyPrice)
	}
	if t.MinBuyPrice < 0 || t.MinBuyPrice >= t.MaxBuyPrice {
		add("trading: min_buy_price must be >= 0 and below max_buy_price")
	}
	if t.LossThreshold < 0 || t.WinThreshold > 1 || t.LossThreshold >= t.WinThreshold {
		add("trading: loss_threshold must be below win_threshold, both in [0, 1]")
	}
	if t.StopLossFraction < 0 || t.StopLossFraction >= 1 {
		add("trading: stop_loss_fraction must be in [0, 1)")
	}
	if t.OrderTimeout.Duration <= 0 {
		add("trading: order_timeout must be positive")
	}
	if t.MonitorInterval.Duration <= 0 {
		add("trading: monitor_interval must be positive")
	}

	r := c.Risk
	if r.MaxOpenPositions < 1 {
		add("risk: max_open_positions must be >= 1")
	}
	if r.MaxPerGroup < 1 || r.MaxPerGroup > r.MaxOpenPositions {
		add("risk: max_per_group must be between 1 and max_open_positions")
	}
	if r.MaxExposure <= 0 {
		add("risk: max_exposure must be > 0")
	}
	if r.MaxSessionLoss <= 0 {
		add("risk: max_session_loss must be > 0")
	}
	if r.FeeRate < 0 || r.FeeRate >= 1 {
		add("risk: fee_rate must be in [0, 1)")
	}
	if r.Cooldown.Duration < 0 || r.DedupWindow.Duration < 0 {
		add("risk: cooldown and dedup_window must not be negative")
	}

	s := c.Sizing
	if !oneOf(s.Mode, validSizingModes) {
		add("sizing: unknown mode %q (valid: %s)", s.Mode, strings.Join(validSizingModes, ", "))
	}
	if s.MinOrder <= 0 || s.MinOrder > s.MaxOrder {
		add("sizing: min_order must be > 0 and not above max_order")
	}
	if s.BaseSize < s.MinOrder || s.BaseSize > s.MaxOrder {
		add("sizing: base_size must be within [min_order, max_order]")
	}
	if strings.EqualFold(s.Mode, "kelly") {
		if s.KellyFraction <= 0 || s.KellyFraction > 1 {
			add("sizing: kelly_fraction must be in (0, 1]")
		}
		if s.KellyWinProb <= 0 || s.KellyWinProb >= 1 {
			add("sizing: kelly_win_prob must be in (0, 1)")
		}
		if s.KellyScale <= 0 {
			add("sizing: kelly_scale must be > 0")
		}
	}

	b := c.Breaker
	if b.FailureThreshold < 1 {
		add("breaker: failure_threshold must be >= 1")
	}
	if b.RecoverySuccesses < 1 {
		add("breaker: recovery_successes must be >= 1")
	}
	if b.MinHealthySources < 0 {
		add("breaker: min_healthy_sources must not be negative")
	}

	if c.RateLimit.Rate <= 0 {
		add("rate_limit: rate must be > 0")
	}
	if c.RateLimit.Burst < 1 {
		add("rate_limit: burst must be >= 1")
	}

	needRedis, needPostgres := false, false
	switch st := strings.ToLower(c.State.Backend); {
	case !oneOf(st, validStateStores):
		add("state: unknown backend %q (valid: %s)", c.State.Backend, strings.Join(validStateStores, ", "))
	case st == "file" && c.State.Path == "":
		add("state: path is required for the file backend")
	case st == "sqlite" && c.State.SQLitePath == "":
		add("state: sqlite_path is required for the sqlite backend")
	case st == "redis":
		needRedis = true
	case st == "postgres":
		needPostgres = true
	}
	switch j := strings.ToLower(c.Journal.Backend); {
	case !oneOf(j, validJournalSinks):
		add("journal: unknown backend %q (valid: %s)", c.Journal.Backend, strings.Join(validJournalSinks, ", "))
	case j == "postgres":
		needPostgres = true
	case j == "sqlite" && c.State.SQLitePath == "":
		add("journal: state.sqlite_path is required for the sqlite journal")
	}
	if c.Journal.RedisStream != "" {
		needRedis = true
	}
	if c.Journal.S3Archive {
		if c.S3.Bucket == "" || c.S3.Region == "" {
			add("s3: bucket and region are required when journal.s3_archive is set")
		}
	}

	seen := map[string]bool{}
	for _, name := range c.Feeds.SourceNames() {
		if name == "" {
			add("feeds: every source needs a name")
			continue
		}
		if seen[name] {
			add("feeds: duplicate source name %q", name)
		}
		seen[name] = true
	}
	for _, rf := range c.Feeds.Redis {
		if rf.Channel == "" {
			add("feeds: redis source %q needs a channel", rf.Name)
		}
	}
	for _, wf := range c.Feeds.WebSocket {
		if !strings.HasPrefix(wf.URL, "ws://") && !strings.HasPrefix(wf.URL, "wss://") {
			add("feeds: websocket source %q needs a ws:// or wss:// url", wf.Name)
		}
	}
	if len(c.Feeds.Redis) > 0 {
		needRedis = true
	}
	if strings.EqualFold(c.Mode, "trade") {
		n := len(c.Feeds.SourceNames())
		if n == 0 {
			add("feeds: trade mode needs at least one signal source")
		} else if b.MinHealthySources > n {
			add("breaker: min_healthy_sources (%d) exceeds the number of configured sources (%d)", b.MinHealthySources, n)
		}
	}
	if c.Feeds.BackoffBase.Duration <= 0 || c.Feeds.BackoffMax.Duration < c.Feeds.BackoffBase.Duration {
		add("feeds: backoff_base must be positive and not above backoff_max")
	}

	if needRedis {
		if c.Redis.Addr == "" {
			add("redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			add("redis: pool_size must be >= 1")
		}
	}
	if needPostgres {
		pg := c.Postgres
		if strings.TrimSpace(pg.DSN) == "" && (pg.Host == "" || pg.Database == "") {
			add("postgres: dsn or host and database must be set")
		}
		if pg.PoolMaxConns < 1 || pg.PoolMinConns < 0 || pg.PoolMinConns > pg.PoolMaxConns {
			add("postgres: pool sizes must satisfy 0 <= pool_min_conns <= pool_max_conns, pool_max_conns >= 1")
		}
	}

	if len(errs) > 0 {
		return &ValidationError{Problems: errs}
	}
	return nil
}

func btoi(b bool) int {
	if b {
		return 1
	}
	return 0
}
