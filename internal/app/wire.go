package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	s3blob "github.com/Kaelsz/Polymarket-Sniper/internal/blob/s3"
	"github.com/Kaelsz/Polymarket-Sniper/internal/cache/redis"
	"github.com/Kaelsz/Polymarket-Sniper/internal/config"
	"github.com/Kaelsz/Polymarket-Sniper/internal/crypto"
	"github.com/Kaelsz/Polymarket-Sniper/internal/domain"
	"github.com/Kaelsz/Polymarket-Sniper/internal/executor"
	"github.com/Kaelsz/Polymarket-Sniper/internal/notify"
	"github.com/Kaelsz/Polymarket-Sniper/internal/platform/polymarket"
	"github.com/Kaelsz/Polymarket-Sniper/internal/ratelimit"
	"github.com/Kaelsz/Polymarket-Sniper/internal/store/file"
	"github.com/Kaelsz/Polymarket-Sniper/internal/store/postgres"
	"github.com/Kaelsz/Polymarket-Sniper/internal/store/sqlite"
)

// Dependencies bundles the infrastructure the modes run on. It is built by
// Wire and torn down by the returned cleanup function.
type Dependencies struct {
	Limiter  *ratelimit.Bucket
	Exchange *polymarket.Client

	// State is nil when state.backend is "none".
	State domain.SnapshotStore
	Sinks []executor.TradeSink

	// Bus is nil unless some component needs Redis.
	Bus      *redis.SignalBus
	Archiver *s3blob.Archiver

	Notifier *notify.Notifier
	Alerter  *notify.Alerter
}

func needsPostgres(cfg *config.Config) bool {
	return strings.EqualFold(cfg.State.Backend, "postgres") || strings.EqualFold(cfg.Journal.Backend, "postgres")
}

func needsSQLite(cfg *config.Config) bool {
	return strings.EqualFold(cfg.State.Backend, "sqlite") || strings.EqualFold(cfg.Journal.Backend, "sqlite")
}

// needsRedis also covers the retry channel: retries are published whenever
// a Redis connection exists for another reason.
func needsRedis(cfg *config.Config) bool {
	if strings.EqualFold(cfg.State.Backend, "redis") || cfg.Journal.RedisStream != "" {
		return true
	}
	return strings.EqualFold(cfg.Mode, "trade") && len(cfg.Feeds.Redis) > 0
}

// Wire constructs the concrete dependencies for cfg and returns them with a
// cleanup function that releases them in reverse order.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, err
	}

	deps := &Dependencies{}
	deps.Limiter = ratelimit.New(cfg.RateLimit.Rate, cfg.RateLimit.Burst, logger)

	exchange, err := wireExchange(ctx, cfg, deps.Limiter, logger)
	if err != nil {
		return fail(err)
	}
	deps.Exchange = exchange

	// --- Postgres ---
	var pg *postgres.Client
	if needsPostgres(cfg) {
		pg, err = postgres.New(ctx, postgres.ClientConfig{
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
			return fail(fmt.Errorf("app: connect postgres: %w", err))
		}
		closers = append(closers, pg.Close)

		if cfg.Postgres.RunMigrations {
			if err := pg.RunMigrations(ctx); err != nil {
				return fail(fmt.Errorf("app: run migrations: %w", err))
			}
		}
		logger.InfoContext(ctx, "postgres connected")
	}

	// --- Redis ---
	var rc *redis.Client
	if needsRedis(cfg) {
		rc, err = redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
			Prefix:     cfg.Redis.Prefix,
		})
		if err != nil {
			return fail(fmt.Errorf("app: connect redis: %w", err))
		}
		closers = append(closers, func() { _ = rc.Close() })
		deps.Bus = redis.NewSignalBus(rc)
		logger.InfoContext(ctx, "redis connected", slog.String("addr", cfg.Redis.Addr))
	}

	// --- SQLite ---
	var lite *sqlite.Store
	if needsSQLite(cfg) {
		lite, err = sqlite.New(cfg.State.SQLitePath)
		if err != nil {
			return fail(fmt.Errorf("app: open sqlite: %w", err))
		}
		closers = append(closers, func() { _ = lite.Close() })
		logger.InfoContext(ctx, "sqlite opened", slog.String("path", cfg.State.SQLitePath))
	}

	switch strings.ToLower(cfg.State.Backend) {
	case "file":
		deps.State = file.NewSnapshotStore(cfg.State.Path)
	case "redis":
		deps.State = redis.NewSnapshotStore(rc)
	case "postgres":
		deps.State = postgres.NewSnapshotStore(pg.Pool())
	case "sqlite":
		deps.State = lite
	}

	switch strings.ToLower(cfg.Journal.Backend) {
	case "postgres":
		deps.Sinks = append(deps.Sinks, postgres.NewTradeStore(pg.Pool()))
	case "sqlite":
		deps.Sinks = append(deps.Sinks, lite)
	}
	if cfg.Journal.RedisStream != "" {
		deps.Sinks = append(deps.Sinks, redis.NewTradeStream(deps.Bus, cfg.Journal.RedisStream))
	}

	// --- S3 archive ---
	if cfg.Journal.S3Archive {
		s3c, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return fail(fmt.Errorf("app: connect s3: %w", err))
		}
		if err := s3c.Health(ctx); err != nil {
			logger.WarnContext(ctx, "s3 bucket not reachable, archive uploads will retry",
				slog.String("bucket", s3c.Bucket()),
				slog.String("error", err.Error()),
			)
		}
		deps.Archiver = s3blob.NewArchiver(s3blob.NewWriter(s3c), cfg.Journal.ArchivePrefix, cfg.Journal.ArchiveInterval.Duration, logger)
		deps.Sinks = append(deps.Sinks, deps.Archiver)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)
	deps.Alerter = notify.NewAlerter(deps.Notifier, cfg.Notify.QueueSize, logger)

	return deps, cleanup, nil
}

// wireExchange loads the wallet, builds the CLOB client and derives API
// credentials when trading live without them. A failed derivation is
// logged and leaves the client unable to post orders.
func wireExchange(ctx context.Context, cfg *config.Config, limiter *ratelimit.Bucket, logger *slog.Logger) (*polymarket.Client, error) {
	src := crypto.KeySource{
		RawPrivateKey:    cfg.Wallet.PrivateKey,
		EncryptedKeyPath: cfg.Wallet.EncryptedKeyPath,
		KeyPassword:      cfg.Wallet.KeyPassword,
	}

	var signer *crypto.Signer
	if src.Configured() {
		key, err := crypto.LoadKey(src)
		if err != nil {
			return nil, fmt.Errorf("app: load wallet key: %w", err)
		}
		exchange := crypto.CTFExchange
		if cfg.Polymarket.NegRisk {
			exchange = crypto.NegRiskExchange
		}
		signer, err = crypto.NewSigner(key, int64(cfg.Polymarket.ChainID), exchange)
		if err != nil {
			return nil, fmt.Errorf("app: create signer: %w", err)
		}
		logger.InfoContext(ctx, "wallet loaded", slog.String("address", signer.Address().Hex()))
	}

	creds := crypto.APICreds{
		Key:        cfg.Polymarket.APIKey,
		Secret:     cfg.Polymarket.APISecret,
		Passphrase: cfg.Polymarket.APIPassphrase,
	}
	client := polymarket.NewClient(polymarket.Config{
		BaseURL:       cfg.Polymarket.ClobHost,
		DryRun:        cfg.Trading.DryRun,
		Timeout:       cfg.Polymarket.RequestTimeout.Duration,
		SignatureType: cfg.Polymarket.SignatureType,
		Funder:        cfg.Wallet.Funder,
		OrderType:     cfg.Polymarket.OrderType,
	}, signer, creds, limiter, logger)

	if cfg.Live() && signer != nil && !creds.Valid() {
		if _, err := client.DeriveAPIKey(ctx); err != nil {
			logger.ErrorContext(ctx, "api key derivation failed", slog.String("error", err.Error()))
		}
	}
	if cfg.Live() && !client.CanTrade() {
		logger.WarnContext(ctx, "live trading without usable credentials, orders will be rejected")
	}
	return client, nil
}
