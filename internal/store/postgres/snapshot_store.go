package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Kaelsz/Polymarket-Sniper/internal/domain"
)

// snapshotRowID is the single row ledger_snapshots holds.
const snapshotRowID = 1

// SnapshotStore keeps the ledger snapshot in a single upserted row.
type SnapshotStore struct {
	pool *pgxpool.Pool
}

// NewSnapshotStore keeps the latest snapshot in ledger_snapshots.
func NewSnapshotStore(pool *pgxpool.Pool) *SnapshotStore {
	return &SnapshotStore{pool: pool}
}

// Save upserts the single snapshot row.
func (s *SnapshotStore) Save(ctx context.Context, snap domain.LedgerSnapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("postgres: marshal snapshot: %w", err)
	}
	const query = `
		INSERT INTO ledger_snapshots (id, payload, saved_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET payload = EXCLUDED.payload, saved_at = EXCLUDED.saved_at`
	if _, err := s.pool.Exec(ctx, query, snapshotRowID, payload, snap.Timestamp); err != nil {
		return fmt.Errorf("postgres: save snapshot: %w", err)
	}
	return nil
}

// Load returns domain.ErrNotFound when nothing was saved and wraps
// domain.ErrCorruptState when the payload does not decode.
func (s *SnapshotStore) Load(ctx context.Context) (domain.LedgerSnapshot, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx, `SELECT payload FROM ledger_snapshots WHERE id = $1`, snapshotRowID).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.LedgerSnapshot{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.LedgerSnapshot{}, fmt.Errorf("postgres: load snapshot: %w", err)
	}

	var snap domain.LedgerSnapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		return domain.LedgerSnapshot{}, fmt.Errorf("postgres: decode snapshot: %w: %v", domain.ErrCorruptState, err)
	}
	return snap, nil
}

var _ domain.SnapshotStore = (*SnapshotStore)(nil)
