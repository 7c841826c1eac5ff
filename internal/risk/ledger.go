// Package risk holds the session ledger: open positions, realized PnL and
// the layered pre-trade checks that gate every order.
package risk

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/Kaelsz/Polymarket-Sniper/internal/domain"
)

// BreakerHaltReason is the halt reason used when the circuit breaker stops
// trading. Restore drops any persisted halt whose reason mentions the
// breaker, since the breaker re-evaluates source health on boot.
const BreakerHaltReason = "circuit breaker triggered: too many source failures"

// Config holds the ledger limits.
type Config struct {
	MaxOpenPositions int
	MaxPerGroup      int
	MaxExposure      float64
	MaxSessionLoss   float64
	Cooldown         time.Duration
	DedupWindow      time.Duration
	FeeRate          float64 // fraction of positive gross PnL kept by the venue on resolution
}

// Status is a point-in-time view for logs and alerts.
type Status struct {
	OpenPositions int
	Exposure      float64
	SessionPnL    float64
	Halted        bool
	HaltReason    string
}

// Ledger is the authoritative record of open positions. All methods are
// safe for concurrent use, but the check-then-record sequence is only
// atomic when the caller serializes it (see executor.Engine).
type Ledger struct {
	cfg    Config
	logger *slog.Logger
	now    func() time.Time

	mu         sync.RWMutex
	positions  []domain.Position
	dedup      *window
	cooldowns  *window
	sessionPnL float64
	halted     bool
	haltReason string
}

// NewLedger creates an empty ledger.
func NewLedger(cfg Config, logger *slog.Logger) *Ledger {
	return &Ledger{
		cfg:       cfg,
		logger:    logger.With(slog.String("component", "ledger")),
		now:       time.Now,
		dedup:     newWindow(cfg.DedupWindow),
		cooldowns: newWindow(cfg.Cooldown),
	}
}

// DedupKey is the case-insensitive identity of a trade for the dedup window.
func DedupKey(tokenID, marketID, outcome string) string {
	return strings.ToLower(tokenID + "|" + marketID + "|" + outcome)
}

// PreTradeCheck runs every check in order and returns the first veto:
// halt, duplicate, cooldown, position limits, exposure, session loss.
func (l *Ledger) PreTradeCheck(tokenID, group, outcome, marketID string, amount, price float64) domain.RiskDecision {
	now := l.now()

	l.mu.RLock()
	decision := l.checkLocked(tokenID, group, outcome, marketID, amount, now)
	l.mu.RUnlock()

	if decision.Vetoed {
		l.logger.Warn("trade vetoed",
			slog.String("token_id", tokenID),
			slog.String("market", marketID),
			slog.String("group", group),
			slog.Float64("amount", amount),
			slog.Float64("price", price),
			slog.String("reason", decision.Reason),
		)
	}
	return decision
}

func (l *Ledger) checkLocked(tokenID, group, outcome, marketID string, amount float64, now time.Time) domain.RiskDecision {
	if l.halted {
		return domain.Veto("trading halted: " + l.haltReason)
	}

	// Duplicates.
	for _, p := range l.positions {
		if p.TokenID == tokenID {
			return domain.Veto("already holding position on token " + short(tokenID))
		}
	}
	if marketID != "" {
		for _, p := range l.positions {
			if p.ConditionID == marketID {
				return domain.Veto("already holding position on market " + short(marketID))
			}
		}
	}
	key := DedupKey(tokenID, marketID, outcome)
	if elapsed, ok := l.dedup.active(key, now); ok {
		return domain.Veto(fmt.Sprintf("duplicate trade blocked (%s, %.0fs ago)", key, elapsed.Seconds()))
	}

	// Cooldown.
	if marketID != "" {
		if elapsed, ok := l.cooldowns.active(marketID, now); ok {
			return domain.Veto(fmt.Sprintf("market cooldown active (%s, %.1fs < %s)", marketID, elapsed.Seconds(), l.cfg.Cooldown))
		}
	}

	// Position limits.
	if n := len(l.positions); n >= l.cfg.MaxOpenPositions {
		return domain.Veto(fmt.Sprintf("max open positions reached (%d/%d)", n, l.cfg.MaxOpenPositions))
	}
	inGroup := 0
	for _, p := range l.positions {
		if p.Group == group {
			inGroup++
		}
	}
	if inGroup >= l.cfg.MaxPerGroup {
		return domain.Veto(fmt.Sprintf("max positions for %s reached (%d/%d)", group, inGroup, l.cfg.MaxPerGroup))
	}

	if projected := l.exposureLocked() + amount; projected > l.cfg.MaxExposure {
		return domain.Veto(fmt.Sprintf("exposure cap exceeded ($%.2f > $%.2f)", projected, l.cfg.MaxExposure))
	}

	if l.sessionPnL <= -l.cfg.MaxSessionLoss {
		return domain.Veto(fmt.Sprintf("session loss limit (pnl $%.2f)", l.sessionPnL))
	}
	return domain.Clear()
}

// RecordTrade commits a confirmed position and stamps its dedup key and
// market cooldown. It must only be called after the order was placed.
func (l *Ledger) RecordTrade(pos domain.Position) {
	now := l.now()
	if pos.OpenedAt.IsZero() {
		pos.OpenedAt = now
	}

	l.mu.Lock()
	l.positions = append(l.positions, pos)
	l.dedup.stamp(DedupKey(pos.TokenID, pos.ConditionID, pos.Outcome), now)
	if pos.ConditionID != "" {
		l.cooldowns.stamp(pos.ConditionID, now)
	}
	l.dedup.prune(now)
	l.cooldowns.prune(now)
	open, exposure := len(l.positions), l.exposureLocked()
	l.mu.Unlock()

	l.logger.Info("position recorded",
		slog.String("group", pos.Group),
		slog.String("outcome", pos.Outcome),
		slog.Float64("amount", pos.Amount),
		slog.Float64("buy_price", pos.BuyPrice),
		slog.Int("open", open),
		slog.Float64("exposure", exposure),
	)
}

// ClosePositionWithPnL removes the position for tokenID and books its
// realized PnL at exitPrice. The fee applies only to a positive gross PnL
// and only when applyFees is set. ok is false when no such position is open.
func (l *Ledger) ClosePositionWithPnL(tokenID string, exitPrice float64, applyFees bool) (pnl float64, ok bool) {
	l.mu.Lock()
	idx := -1
	for i, p := range l.positions {
		if p.TokenID == tokenID {
			idx = i
			break
		}
	}
	if idx < 0 {
		l.mu.Unlock()
		return 0, false
	}
	pos := l.positions[idx]
	l.positions = append(l.positions[:idx:idx], l.positions[idx+1:]...)

	shares := pos.Shares()
	gross := shares*exitPrice - pos.Amount
	var fees float64
	if applyFees && gross > 0 && l.cfg.FeeRate > 0 {
		fees = gross * l.cfg.FeeRate
	}
	pnl = gross - fees
	l.mu.Unlock()

	l.logger.Info("position closed",
		slog.String("group", pos.Group),
		slog.String("outcome", pos.Outcome),
		slog.Float64("buy_price", pos.BuyPrice),
		slog.Float64("exit_price", exitPrice),
		slog.Float64("shares", shares),
		slog.Float64("gross", gross),
		slog.Float64("fees", fees),
		slog.Float64("net", pnl),
	)

	l.RecordPnL(pnl)
	return pnl, true
}

// RecordPnL adds delta to the session PnL and halts trading once the loss
// limit is reached.
func (l *Ledger) RecordPnL(delta float64) {
	l.mu.Lock()
	l.sessionPnL += delta
	total := l.sessionPnL
	hitLimit := total <= -l.cfg.MaxSessionLoss
	l.mu.Unlock()

	l.logger.Info("session pnl updated", slog.Float64("session_pnl", total), slog.Float64("delta", delta))
	if hitLimit {
		l.Halt(fmt.Sprintf("session loss limit hit: $%.2f", total))
	}
}

// Halt stops all trading. Halting an already halted ledger keeps the
// original reason.
func (l *Ledger) Halt(reason string) {
	l.mu.Lock()
	if l.halted {
		l.mu.Unlock()
		return
	}
	l.halted = true
	l.haltReason = reason
	l.mu.Unlock()

	l.logger.Error("trading halted", slog.String("reason", reason))
}

// Resume clears any halt.
func (l *Ledger) Resume() {
	l.mu.Lock()
	if !l.halted {
		l.mu.Unlock()
		return
	}
	was := l.haltReason
	l.halted = false
	l.haltReason = ""
	l.mu.Unlock()

	l.logger.Warn("trading resumed", slog.String("was", was))
}

// ResumeBreakerHalt clears the halt only if the circuit breaker raised it.
// It reports whether the ledger was resumed.
func (l *Ledger) ResumeBreakerHalt() bool {
	l.mu.RLock()
	breaker := l.halted && IsBreakerHalt(l.haltReason)
	l.mu.RUnlock()
	if !breaker {
		return false
	}
	l.Resume()
	return true
}

// IsBreakerHalt reports whether a halt reason originated from the circuit
// breaker.
func IsBreakerHalt(reason string) bool {
	return strings.Contains(strings.ToLower(reason), "circuit breaker")
}

// Halted reports whether new entries are blocked.
func (l *Ledger) Halted() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.halted
}

// HaltReason returns why the ledger halted, or "" when it is running.
func (l *Ledger) HaltReason() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.haltReason
}

// SessionPnL returns realised profit and loss for the session, net of fees.
func (l *Ledger) SessionPnL() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.sessionPnL
}

// Exposure is the collateral committed across all open positions.
func (l *Ledger) Exposure() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.exposureLocked()
}

// OpenCount returns the number of open positions.
func (l *Ledger) OpenCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.positions)
}

// Positions returns a copy of the open positions in commit order.
func (l *Ledger) Positions() []domain.Position {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]domain.Position, len(l.positions))
	copy(out, l.positions)
	return out
}

// Status returns the counters in one consistent read.
func (l *Ledger) Status() Status {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return Status{
		OpenPositions: len(l.positions),
		Exposure:      l.exposureLocked(),
		SessionPnL:    l.sessionPnL,
		Halted:        l.halted,
		HaltReason:    l.haltReason,
	}
}

func (l *Ledger) exposureLocked() float64 {
	var sum float64
	for _, p := range l.positions {
		sum += p.Amount
	}
	return sum
}

func short(id string) string {
	if len(id) > 16 {
		return id[:16]
	}
	return id
}
