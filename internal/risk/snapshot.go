package risk

import (
	"fmt"
	"log/slog"

	"github.com/Kaelsz/Polymarket-Sniper/internal/domain"
)

// Snapshot exports the whole ledger as one serializable bundle.
func (l *Ledger) Snapshot() domain.LedgerSnapshot {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	l.dedup.prune(now)
	l.cooldowns.prune(now)

	positions := make([]domain.Position, len(l.positions))
	copy(positions, l.positions)
	return domain.LedgerSnapshot{
		Version:    domain.SnapshotVersion,
		Timestamp:  now.UTC(),
		SessionPnL: l.sessionPnL,
		Halted:     l.halted,
		HaltReason: l.haltReason,
		Positions:  positions,
		DedupKeys:  l.dedup.export(),
		Cooldowns:  l.cooldowns.export(),
	}
}

// Restore replaces the ledger state with snap. A persisted halt raised by
// the circuit breaker is dropped; any other halt survives.
func (l *Ledger) Restore(snap domain.LedgerSnapshot) error {
	if snap.Version > domain.SnapshotVersion {
		return fmt.Errorf("risk: restore: snapshot version %d: %w", snap.Version, domain.ErrCorruptState)
	}
	for i, p := range snap.Positions {
		if p.TokenID == "" || p.BuyPrice <= 0 || p.Amount < 0 {
			return fmt.Errorf("risk: restore: position %d is invalid: %w", i, domain.ErrCorruptState)
		}
	}

	halted, reason := snap.Halted, snap.HaltReason
	droppedBreakerHalt := halted && IsBreakerHalt(reason)
	if droppedBreakerHalt {
		halted, reason = false, ""
	}

	positions := make([]domain.Position, len(snap.Positions))
	copy(positions, snap.Positions)

	l.mu.Lock()
	l.sessionPnL = snap.SessionPnL
	l.halted = halted
	l.haltReason = reason
	l.positions = positions
	l.dedup.replace(snap.DedupKeys)
	l.cooldowns.replace(snap.Cooldowns)
	l.mu.Unlock()

	if droppedBreakerHalt {
		l.logger.Info("ignoring persisted circuit breaker halt")
	}
	l.logger.Info("state restored",
		slog.Int("positions", len(positions)),
		slog.Float64("session_pnl", snap.SessionPnL),
		slog.Bool("halted", halted),
		slog.Time("saved_at", snap.Timestamp),
	)
	return nil
}
