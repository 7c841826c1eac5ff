package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"golang.org/x/sync/errgroup"

	"github.com/Kaelsz/Polymarket-Sniper/internal/breaker"
	"github.com/Kaelsz/Polymarket-Sniper/internal/domain"
	"github.com/Kaelsz/Polymarket-Sniper/internal/executor"
	"github.com/Kaelsz/Polymarket-Sniper/internal/feed"
	"github.com/Kaelsz/Polymarket-Sniper/internal/risk"
)

// TradeMode runs the full pipeline: every feed pushes into one intake, the
// engine consumes it, the breaker watches feed health and the position
// monitor runs inside the engine.
func (a *App) TradeMode(ctx context.Context, deps *Dependencies, engine *executor.Engine) error {
	sources := a.buildSources(deps)
	brk := a.buildBreaker(deps, engine.Ledger())
	for _, src := range sources {
		brk.Register(src.Name())
	}
	engine.SetBreaker(brk)

	intake := executor.NewIntake()
	health := &alertingHealth{Breaker: brk, alerter: deps.Alerter}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return deps.Alerter.Run(gctx) })
	if deps.Archiver != nil {
		g.Go(func() error { return deps.Archiver.Run(gctx) })
	}
	g.Go(func() error { return brk.Run(gctx) })

	for _, src := range sources {
		runner := feed.NewRunner(src, intake, health, a.base)
		runner.SetBackoff(a.cfg.Feeds.BackoffBase.Duration, a.cfg.Feeds.BackoffMax.Duration)
		g.Go(func() error { return runner.Run(gctx) })
	}

	g.Go(func() error {
		defer intake.Close()
		if err := engine.Run(gctx, intake); err != nil {
			return err
		}
		return gctx.Err()
	})

	a.logger.InfoContext(ctx, "trade mode started",
		slog.Int("sources", len(sources)),
		slog.Int("min_healthy", a.cfg.Breaker.MinHealthySources),
	)
	return g.Wait()
}

// MonitorMode accepts no signals. It watches the restored positions until
// they resolve and persists the ledger on the way out.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies, engine *executor.Engine) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return deps.Alerter.Run(gctx) })
	if deps.Archiver != nil {
		g.Go(func() error { return deps.Archiver.Run(gctx) })
	}

	g.Go(func() error {
		defer engine.Persist(gctx)

		if engine.Ledger().OpenCount() == 0 {
			a.logger.InfoContext(gctx, "no open positions to monitor")
		}
		engine.MonitorPositions(gctx)
		engine.RunMonitor(gctx)
		<-gctx.Done()
		return gctx.Err()
	})

	a.logger.InfoContext(ctx, "monitor mode started", slog.Int("positions", engine.Ledger().OpenCount()))
	return g.Wait()
}

// buildBreaker raises a ledger halt when too few feeds are healthy and
// lifts it when they recover. Halts from other causes are left alone.
func (a *App) buildBreaker(deps *Dependencies, ledger *risk.Ledger) *breaker.Breaker {
	var brk *breaker.Breaker
	onHalt := func() {
		ledger.Halt(risk.BreakerHaltReason)
		deps.Alerter.Alert(domain.EventBreaker, "CIRCUIT BREAKER OPEN",
			fmt.Sprintf("Trading halted: too few healthy sources.\n%s", brk.Summary()))
	}
	onResume := func() {
		if ledger.ResumeBreakerHalt() {
			deps.Alerter.Alert(domain.EventBreaker, "CIRCUIT BREAKER CLOSED",
				fmt.Sprintf("Trading resumed.\n%s", brk.Summary()))
		}
	}

	brk = breaker.New(breaker.Config{
		FailureThreshold: a.cfg.Breaker.FailureThreshold,
		RecoverySuccess:  a.cfg.Breaker.RecoverySuccesses,
		MinHealthy:       a.cfg.Breaker.MinHealthySources,
		StaleTimeout:     a.cfg.Breaker.StaleTimeout.Duration,
		CheckInterval:    a.cfg.Breaker.CheckInterval.Duration,
	}, onHalt, onResume, a.base)
	return brk
}

func (a *App) buildSources(deps *Dependencies) []feed.Source {
	var sources []feed.Source
	for _, rf := range a.cfg.Feeds.Redis {
		sources = append(sources, feed.NewBusSource(rf.Name, deps.Bus, rf.Channel, rf.Heartbeat.Duration, a.base))
	}
	for _, wf := range a.cfg.Feeds.WebSocket {
		header := http.Header{}
		for k, v := range wf.Headers {
			header.Set(k, v)
		}
		sources = append(sources, feed.NewWSSource(wf.Name, wf.URL, header, a.base))
	}
	return sources
}

// alertingHealth forwards feed health to the breaker and alerts the
// operator whenever a source drops.
type alertingHealth struct {
	*breaker.Breaker
	alerter domain.Alerter
}

func (h *alertingHealth) RecordFailure(name, reason string) {
	h.Breaker.RecordFailure(name, reason)
	h.alerter.Alert(domain.EventSourceDown, "Source Disconnected",
		fmt.Sprintf("Source: %s\nError: %s", name, reason))
}
