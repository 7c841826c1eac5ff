// Package app wires the sniper together: exchange client, risk ledger,
// sizer, execution engine, circuit breaker, signal feeds, persistence and
// notifications. It then runs the configured mode until the context is
// cancelled.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Kaelsz/Polymarket-Sniper/internal/config"
	"github.com/Kaelsz/Polymarket-Sniper/internal/domain"
	"github.com/Kaelsz/Polymarket-Sniper/internal/executor"
	"github.com/Kaelsz/Polymarket-Sniper/internal/notify"
	"github.com/Kaelsz/Polymarket-Sniper/internal/risk"
	"github.com/Kaelsz/Polymarket-Sniper/internal/sizing"
)

// App owns the configuration, the logger and the cleanup functions run in
// reverse order on shutdown.
type App struct {
	cfg     *config.Config
	base    *slog.Logger
	logger  *slog.Logger
	closers []func()
}

// New returns an App for cfg. Nothing is wired until Run.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		base:   logger,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run wires the dependencies, restores the saved ledger and blocks in the
// configured mode until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting application",
		slog.String("mode", a.cfg.Mode),
		slog.Bool("dry_run", a.cfg.Trading.DryRun),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.base)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	engine, err := a.buildEngine(deps)
	if err != nil {
		return err
	}
	a.restoreState(ctx, deps, engine.Ledger())
	a.announce(ctx, deps, engine)

	switch strings.ToLower(a.cfg.Mode) {
	case "trade":
		err = a.TradeMode(ctx, deps, engine)
	case "monitor":
		err = a.MonitorMode(ctx, deps, engine)
	default:
		return fmt.Errorf("app: unsupported mode %q", a.cfg.Mode)
	}

	a.farewell(deps, engine)
	return err
}

// Close tears down all resources in reverse registration order. Calling it
// again is a no-op.
func (a *App) Close() {
	a.logger.Info("shutting down application")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *App) buildEngine(deps *Dependencies) (*executor.Engine, error) {
	mode, err := sizing.ParseMode(a.cfg.Sizing.Mode)
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}

	ledger := risk.NewLedger(risk.Config{
		MaxOpenPositions: a.cfg.Risk.MaxOpenPositions,
		MaxPerGroup:      a.cfg.Risk.MaxPerGroup,
		MaxExposure:      a.cfg.Risk.MaxExposure,
		MaxSessionLoss:   a.cfg.Risk.MaxSessionLoss,
		Cooldown:         a.cfg.Risk.Cooldown.Duration,
		DedupWindow:      a.cfg.Risk.DedupWindow.Duration,
		FeeRate:          a.cfg.Risk.FeeRate,
	}, a.base)

	sizer := sizing.New(sizing.Config{
		Mode:          mode,
		BaseSize:      a.cfg.Sizing.BaseSize,
		MinOrder:      a.cfg.Sizing.MinOrder,
		MaxOrder:      a.cfg.Sizing.MaxOrder,
		KellyFraction: a.cfg.Sizing.KellyFraction,
		KellyWinProb:  a.cfg.Sizing.KellyWinProb,
		KellyScale:    a.cfg.Sizing.KellyScale,
		ScoreWeight:   a.cfg.Sizing.ScoreWeight,
		EdgeWeight:    a.cfg.Sizing.EdgeWeight,
	}, a.base)

	engine := executor.NewEngine(executor.Config{
		MinBuyPrice:     a.cfg.Trading.MinBuyPrice,
		MaxBuyPrice:     a.cfg.Trading.MaxBuyPrice,
		DryRun:          a.cfg.Trading.DryRun,
		OrderTimeout:    a.cfg.Trading.OrderTimeout.Duration,
		MonitorInterval: a.cfg.Trading.MonitorInterval.Duration,
		StopLoss:        a.cfg.Trading.StopLossFraction,
		WinThreshold:    a.cfg.Trading.WinThreshold,
		LossThreshold:   a.cfg.Trading.LossThreshold,
		JournalSize:     a.cfg.Trading.JournalSize,
	}, ledger, deps.Exchange, sizer, a.base)

	if deps.State != nil {
		engine.SetStore(deps.State)
	}
	engine.SetAlerter(deps.Alerter)
	for _, sink := range deps.Sinks {
		engine.AddSink(sink)
	}
	if deps.Bus != nil && a.cfg.Feeds.RetryChannel != "" {
		engine.SetRetryHook(a.retryHook(deps, a.cfg.Feeds.RetryChannel))
	}
	return engine, nil
}

// retryHook hands signals dropped during a halt back to the producer.
func (a *App) retryHook(deps *Dependencies, channel string) executor.RetryHook {
	return func(ctx context.Context, sig domain.Signal) {
		if err := deps.Bus.PublishRetry(ctx, channel, sig); err != nil {
			a.logger.WarnContext(ctx, "retry publish failed",
				slog.String("token_id", sig.TokenID),
				slog.String("error", err.Error()),
			)
		}
	}
}

// restoreState loads the saved ledger. A missing or unreadable snapshot
// starts an empty session.
func (a *App) restoreState(ctx context.Context, deps *Dependencies, ledger *risk.Ledger) {
	if deps.State == nil {
		a.logger.InfoContext(ctx, "state persistence disabled")
		return
	}

	snap, err := deps.State.Load(ctx)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		a.logger.InfoContext(ctx, "no saved state, starting fresh")
		return
	case err != nil:
		a.logger.WarnContext(ctx, "saved state unreadable, starting fresh", slog.String("error", err.Error()))
		return
	}

	if err := ledger.Restore(snap); err != nil {
		a.logger.WarnContext(ctx, "saved state rejected, starting fresh", slog.String("error", err.Error()))
	}
}

// announce logs the effective configuration and the wallet balance, then
// queues the startup alert.
func (a *App) announce(ctx context.Context, deps *Dependencies, engine *executor.Engine) {
	a.logger.InfoContext(ctx, "configuration", slog.Any("config", config.RedactedConfig(a.cfg)))

	if a.cfg.Live() {
		balance, err := deps.Exchange.Balance(ctx)
		if err != nil {
			a.logger.WarnContext(ctx, "balance check failed", slog.String("error", err.Error()))
		} else {
			a.logger.InfoContext(ctx, "wallet balance", slog.Float64("usdc", balance))
		}
	}

	trading := "LIVE"
	if engine.DryRun() {
		trading = "DRY RUN"
	}
	sources := strings.Join(a.cfg.Feeds.SourceNames(), ", ")
	if sources == "" {
		sources = "none"
	}
	status := engine.Ledger().Status()
	deps.Alerter.Alert(domain.EventLifecycle, "Bot Started", fmt.Sprintf(
		"Mode: %s (%s)\nSources: %s\nOpen positions: %d\nSession PnL: $%.2f",
		a.cfg.Mode, trading, sources, status.OpenPositions, status.SessionPnL,
	))
}

// farewell sends the shutdown summary directly: the alert queue has
// stopped by the time the mode returns.
func (a *App) farewell(deps *Dependencies, engine *executor.Engine) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	status := engine.Ledger().Status()
	stats := deps.Limiter.Stats()
	a.logger.InfoContext(ctx, "session summary",
		slog.Int("trades", engine.Journal().Total()),
		slog.Int("open_positions", status.OpenPositions),
		slog.Float64("session_pnl", status.SessionPnL),
		slog.Int64("api_calls", stats.TotalCalls),
		slog.Duration("api_avg_wait", stats.AvgWait),
		slog.Int64("alerts_dropped", deps.Alerter.Dropped()),
	)

	msg := fmt.Sprintf("Trades: %d\nOpen positions: %d\nSession PnL: $%.2f",
		engine.Journal().Total(), status.OpenPositions, status.SessionPnL)
	if err := deps.Notifier.Notify(ctx, domain.EventLifecycle, notify.TitlePrefix+"Bot Stopped", msg); err != nil {
		a.logger.WarnContext(ctx, "shutdown alert failed", slog.String("error", err.Error()))
	}
}
