package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kaelsz/Polymarket-Sniper/internal/domain"
)

func TestSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "ledger.json")
	s := NewSnapshotStore(path)
	ctx := context.Background()

	_, err := s.Load(ctx)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	at := time.Date(2026, 6, 1, 8, 30, 0, 0, time.UTC)
	snap := domain.LedgerSnapshot{
		Version:    domain.SnapshotVersion,
		Timestamp:  at,
		SessionPnL: 12.5,
		Positions:  []domain.Position{{TokenID: "T", ConditionID: "M", Amount: 20, BuyPrice: 0.4, OpenedAt: at}},
		DedupKeys:  map[string]time.Time{"t|m|x": at},
		Cooldowns:  map[string]time.Time{},
	}
	require.NoError(t, s.Save(ctx, snap))

	got, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, snap, got)

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err), "temporary file must not be left behind")
}

func TestSaveOverwrites(t *testing.T) {
	s := NewSnapshotStore(filepath.Join(t.TempDir(), "ledger.json"))
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, domain.LedgerSnapshot{Version: 1, SessionPnL: 1}))
	require.NoError(t, s.Save(ctx, domain.LedgerSnapshot{Version: 1, SessionPnL: 2}))

	got, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2.0, got.SessionPnL)
}

func TestLoadCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := NewSnapshotStore(path).Load(context.Background())
	assert.ErrorIs(t, err, domain.ErrCorruptState)
}
