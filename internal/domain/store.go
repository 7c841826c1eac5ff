package domain

import (
	"context"
	"time"
)

// SnapshotStore persists the ledger snapshot. Save must be atomic: a
// concurrent Load never observes a partial write. Load returns ErrNotFound
// when nothing has been saved yet.
type SnapshotStore interface {
	Save(ctx context.Context, snap LedgerSnapshot) error
	Load(ctx context.Context) (LedgerSnapshot, error)
}

// TradeJournal durably appends trade records.
type TradeJournal interface {
	Append(ctx context.Context, rec TradeRecord) error
	ListSince(ctx context.Context, since time.Time, limit int) ([]TradeRecord, error)
}

// Alerter delivers operator alerts. Alert must never block or fail the
// caller; delivery problems are logged by the implementation.
type Alerter interface {
	Alert(event, title, message string)
}

// Alert event types, used by the notifier's event filter.
const (
	EventTradeExecuted  = "trade_executed"
	EventOrderFailed    = "order_failed"
	EventPositionClosed = "position_closed"
	EventStopLoss       = "stop_loss"
	EventBreaker        = "circuit_breaker"
	EventHalt           = "halt"
	EventLifecycle      = "lifecycle"
	EventSourceDown     = "source_down"
)
