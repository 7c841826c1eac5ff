// Package sqlite keeps the ledger snapshot and trade journal in a single
// SQLite file, for deployments without PostgreSQL.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/Kaelsz/Polymarket-Sniper/internal/domain"
)

const snapshotRowID = 1

// Store implements domain.SnapshotStore and domain.TradeJournal.
type Store struct {
	db *sql.DB
}

// New opens (creating if needed) the database at path and migrates it.
func New(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("sqlite: create dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS ledger_snapshots (
  id INTEGER PRIMARY KEY,
  payload TEXT NOT NULL,
  saved_at_ms INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS trade_records (
  id TEXT PRIMARY KEY,
  signal_id TEXT NOT NULL,
  source TEXT NOT NULL,
  token_id TEXT NOT NULL,
  condition_id TEXT NOT NULL,
  grp TEXT NOT NULL,
  outcome TEXT NOT NULL,
  question TEXT NOT NULL,
  ask_price REAL NOT NULL,
  amount REAL NOT NULL,
  order_id TEXT NOT NULL,
  dry_run INTEGER NOT NULL,
  latency_ms REAL NOT NULL,
  open_positions INTEGER NOT NULL,
  exposure REAL NOT NULL,
  created_at_ms INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_trade_records_created ON trade_records(created_at_ms);
`)
	if err != nil {
		return fmt.Errorf("sqlite: migrate: %w", err)
	}
	return nil
}

// Save replaces the snapshot row in one statement.
func (s *Store) Save(ctx context.Context, snap domain.LedgerSnapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("sqlite: marshal snapshot: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO ledger_snapshots (id, payload, saved_at_ms) VALUES (?, ?, ?)
ON CONFLICT(id) DO UPDATE SET payload = excluded.payload, saved_at_ms = excluded.saved_at_ms`,
		snapshotRowID, string(payload), snap.Timestamp.UnixMilli())
	if err != nil {
		return fmt.Errorf("sqlite: save snapshot: %w", err)
	}
	return nil
}

// Load returns domain.ErrNotFound when nothing was saved and wraps
// domain.ErrCorruptState when the payload does not decode.
func (s *Store) Load(ctx context.Context) (domain.LedgerSnapshot, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM ledger_snapshots WHERE id = ?`, snapshotRowID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.LedgerSnapshot{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.LedgerSnapshot{}, fmt.Errorf("sqlite: load snapshot: %w", err)
	}

	var snap domain.LedgerSnapshot
	if err := json.Unmarshal([]byte(payload), &snap); err != nil {
		return domain.LedgerSnapshot{}, fmt.Errorf("sqlite: decode snapshot: %w: %v", domain.ErrCorruptState, err)
	}
	return snap, nil
}

// Append inserts rec. Re-appending the same id is a no-op.
func (s *Store) Append(ctx context.Context, rec domain.TradeRecord) error {
	_, err := s.db.ExecContext(ctx, `
INSERT OR IGNORE INTO trade_records (
  id, signal_id, source, token_id, condition_id, grp, outcome, question,
  ask_price, amount, order_id, dry_run, latency_ms, open_positions, exposure, created_at_ms
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.SignalID, rec.Source, rec.TokenID, rec.ConditionID, rec.Group, rec.Outcome, rec.Question,
		rec.AskPrice, rec.Amount, rec.OrderID, rec.DryRun, rec.LatencyMs, rec.OpenPositions, rec.Exposure,
		rec.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: append trade %s: %w", rec.ID, err)
	}
	return nil
}

// ListSince returns records created at or after since, oldest first.
func (s *Store) ListSince(ctx context.Context, since time.Time, limit int) ([]domain.TradeRecord, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, signal_id, source, token_id, condition_id, grp, outcome, question,
       ask_price, amount, order_id, dry_run, latency_ms, open_positions, exposure, created_at_ms
FROM trade_records WHERE created_at_ms >= ? ORDER BY created_at_ms ASC, id ASC LIMIT ?`,
		since.UnixMilli(), limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list trades: %w", err)
	}
	defer rows.Close()

	var out []domain.TradeRecord
	for rows.Next() {
		var (
			r         domain.TradeRecord
			createdMs int64
		)
		if err := rows.Scan(
			&r.ID, &r.SignalID, &r.Source, &r.TokenID, &r.ConditionID, &r.Group, &r.Outcome, &r.Question,
			&r.AskPrice, &r.Amount, &r.OrderID, &r.DryRun, &r.LatencyMs, &r.OpenPositions, &r.Exposure, &createdMs,
		); err != nil {
			return nil, fmt.Errorf("sqlite: scan trade: %w", err)
		}
		r.CreatedAt = time.UnixMilli(createdMs).UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

var (
	_ domain.SnapshotStore = (*Store)(nil)
	_ domain.TradeJournal  = (*Store)(nil)
)
