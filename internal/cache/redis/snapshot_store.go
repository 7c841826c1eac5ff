package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/Kaelsz/Polymarket-Sniper/internal/domain"
)

// SnapshotStore keeps the ledger snapshot as one JSON string. SET is
// atomic, so a concurrent GET sees the old or the new snapshot.
type SnapshotStore struct {
	rdb *redis.Client
	key string
}

// NewSnapshotStore stores the ledger snapshot under a single key.
func NewSnapshotStore(c *Client) *SnapshotStore {
	return &SnapshotStore{rdb: c.Underlying(), key: c.Key("ledger", "snapshot")}
}

// Save overwrites the stored snapshot.
func (s *SnapshotStore) Save(ctx context.Context, snap domain.LedgerSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("redis: marshal snapshot: %w", err)
	}
	if err := s.rdb.Set(ctx, s.key, data, 0).Err(); err != nil {
		return fmt.Errorf("redis: save snapshot: %w", err)
	}
	return nil
}

// Load returns domain.ErrNotFound when nothing was saved and wraps
// domain.ErrCorruptState when the payload does not decode.
func (s *SnapshotStore) Load(ctx context.Context) (domain.LedgerSnapshot, error) {
	data, err := s.rdb.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.LedgerSnapshot{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.LedgerSnapshot{}, fmt.Errorf("redis: load snapshot: %w", err)
	}

	var snap domain.LedgerSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return domain.LedgerSnapshot{}, fmt.Errorf("redis: decode snapshot: %w: %v", domain.ErrCorruptState, err)
	}
	return snap, nil
}

var _ domain.SnapshotStore = (*SnapshotStore)(nil)
