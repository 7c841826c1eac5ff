package executor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Kaelsz/Polymarket-Sniper/internal/domain"
)

// RunMonitor calls MonitorPositions every MonitorInterval until ctx is
// done. A zero interval disables the monitor.
func (e *Engine) RunMonitor(ctx context.Context) {
	if e.cfg.MonitorInterval <= 0 {
		return
	}
	log := e.logger.With(slog.String("loop", "monitor"))
	log.InfoContext(ctx, "position monitor started", slog.Duration("interval", e.cfg.MonitorInterval))

	ticker := time.NewTicker(e.cfg.MonitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info("position monitor stopped")
			return
		case <-ticker.C:
			e.MonitorPositions(ctx)
		}
	}
}

// MonitorPositions makes one pass over the open positions, closing those
// that resolved or crossed the stop-loss. It returns how many closed.
// Lookup errors leave the position open for the next pass.
func (e *Engine) MonitorPositions(ctx context.Context) int {
	positions := e.ledger.Positions()
	if len(positions) == 0 {
		return 0
	}

	closed := 0
	for _, pos := range positions {
		if ctx.Err() != nil {
			break
		}
		pnl, source, ok, err := e.checkPosition(ctx, pos)
		if err != nil {
			e.logger.DebugContext(ctx, "position check failed",
				slog.String("token_id", shortID(pos.TokenID)),
				slog.String("error", err.Error()),
			)
			continue
		}
		if !ok {
			continue
		}
		closed++
		e.alertClosed(ctx, pos, pnl, source)
	}

	if closed > 0 {
		e.persist(ctx)
	}
	return closed
}

// checkPosition tries the official resolution first, then the price
// thresholds, then the stop-loss.
func (e *Engine) checkPosition(ctx context.Context, pos domain.Position) (float64, domain.CloseSource, bool, error) {
	if pos.ConditionID != "" {
		res, resolved, err := e.exchange.Resolution(ctx, pos.ConditionID)
		if err != nil {
			return 0, "", false, fmt.Errorf("resolution: %w", err)
		}
		if resolved {
			exit := 0.0
			if res.Wins(pos.TokenID) {
				exit = 1.0
			}
			pnl, ok := e.closePosition(pos.TokenID, exit, true)
			return pnl, domain.CloseSourceAPI, ok, nil
		}
	}

	price, ok, err := e.exchange.BestAsk(ctx, pos.TokenID)
	if err != nil {
		return 0, "", false, fmt.Errorf("best ask: %w", err)
	}
	if !ok {
		return 0, "", false, nil
	}

	switch {
	case price >= e.cfg.WinThreshold:
		pnl, ok := e.closePosition(pos.TokenID, 1.0, true)
		return pnl, domain.CloseSourcePrice, ok, nil
	case price <= e.cfg.LossThreshold:
		pnl, ok := e.closePosition(pos.TokenID, 0.0, true)
		return pnl, domain.CloseSourcePrice, ok, nil
	case e.stopLossHit(pos, price):
		pnl, ok := e.stopLoss(ctx, pos, price)
		return pnl, domain.CloseSourceStopLoss, ok, nil
	}
	return 0, "", false, nil
}

func (e *Engine) stopLossHit(pos domain.Position, price float64) bool {
	if e.cfg.StopLoss <= 0 {
		return false
	}
	return price < pos.BuyPrice*(1-e.cfg.StopLoss)
}

// stopLoss sells the position at market and books the exit without fees.
// A failed sell leaves the position open.
func (e *Engine) stopLoss(ctx context.Context, pos domain.Position, price float64) (float64, bool) {
	shares := pos.Shares()
	sellCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.cfg.OrderTimeout)
	_, err := e.exchange.MarketSell(sellCtx, pos.TokenID, shares)
	cancel()
	if err != nil {
		e.logger.ErrorContext(ctx, "stop-loss sell failed",
			slog.String("group", pos.Group),
			slog.String("outcome", pos.Outcome),
			slog.String("error", err.Error()),
		)
		e.alerter.Alert(domain.EventOrderFailed, "Stop-loss sell failed",
			fmt.Sprintf("%s %s\nError: %v", pos.Group, pos.Outcome, err))
		return 0, false
	}
	return e.closePosition(pos.TokenID, price, false)
}

func (e *Engine) closePosition(tokenID string, exit float64, applyFees bool) (float64, bool) {
	e.tradeMu.Lock()
	defer e.tradeMu.Unlock()
	return e.ledger.ClosePositionWithPnL(tokenID, exit, applyFees)
}

func (e *Engine) alertClosed(ctx context.Context, pos domain.Position, pnl float64, source domain.CloseSource) {
	attrs := []any{
		slog.String("group", pos.Group),
		slog.String("outcome", pos.Outcome),
		slog.Float64("pnl", pnl),
		slog.String("source", string(source)),
	}

	if source == domain.CloseSourceStopLoss {
		e.logger.WarnContext(ctx, "stop-loss triggered", attrs...)
		e.alerter.Alert(domain.EventStopLoss, "STOP-LOSS triggered",
			fmt.Sprintf("%s %s\nBought@$%.3f\nPnL: $%+.2f", pos.Group, pos.Outcome, pos.BuyPrice, pnl))
		return
	}

	tag, exit := "WIN", "1.00"
	if pnl < 0 {
		tag, exit = "LOSS", "0.00"
		e.logger.WarnContext(ctx, "position resolved", append(attrs, slog.String("result", tag))...)
	} else {
		e.logger.InfoContext(ctx, "position resolved", append(attrs, slog.String("result", tag))...)
	}
	e.alerter.Alert(domain.EventPositionClosed, "Position resolved "+tag,
		fmt.Sprintf("%s %s\nBought@$%.3f -> $%s\nPnL: $%+.2f\nSource: %s", pos.Group, pos.Outcome, pos.BuyPrice, exit, pnl, source))
}
