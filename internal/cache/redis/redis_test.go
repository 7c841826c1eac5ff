package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kaelsz/Polymarket-Sniper/internal/domain"
)

func TestKeyAndPattern(t *testing.T) {
	c := newClient(nil, "")
	assert.Equal(t, "polysniper:ledger:snapshot", c.Key("ledger", "snapshot"))
	assert.Equal(t, "bot:x", newClient(nil, "bot").Key("x"))

	assert.True(t, hasPattern("signals:*"))
	assert.False(t, hasPattern("signals"))
}

// liveClient connects to POLYSNIPER_TEST_REDIS_ADDR or skips.
func liveClient(t *testing.T) *Client {
	t.Helper()
	addr := os.Getenv("POLYSNIPER_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("POLYSNIPER_TEST_REDIS_ADDR not set")
	}
	c, err := New(context.Background(), ClientConfig{Addr: addr, Prefix: "polysniper-test-" + time.Now().Format("150405.000")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestSnapshotStoreRoundTrip(t *testing.T) {
	c := liveClient(t)
	store := NewSnapshotStore(c)
	ctx := context.Background()
	t.Cleanup(func() { c.Underlying().Del(ctx, store.key) })

	_, err := store.Load(ctx)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	snap := domain.LedgerSnapshot{
		Version:    domain.SnapshotVersion,
		Timestamp:  time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		SessionPnL: -12.5,
		Positions:  []domain.Position{{TokenID: "T", ConditionID: "M", Amount: 50, BuyPrice: 0.5}},
		DedupKeys:  map[string]time.Time{"t|m|x": time.Date(2026, 1, 2, 3, 0, 0, 0, time.UTC)},
	}
	require.NoError(t, store.Save(ctx, snap))
	got, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, snap.Positions, got.Positions)
	assert.Equal(t, snap.SessionPnL, got.SessionPnL)

	require.NoError(t, c.Underlying().Set(ctx, store.key, "{broken", 0).Err())
	_, err = store.Load(ctx)
	assert.ErrorIs(t, err, domain.ErrCorruptState)
}

func TestSignalBusPubSubAndStream(t *testing.T) {
	c := liveClient(t)
	bus := NewSignalBus(c)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	channel := c.Key("retry")
	msgs, err := bus.Subscribe(ctx, channel)
	require.NoError(t, err)
	require.NoError(t, bus.PublishRetry(ctx, channel, domain.Signal{ID: "s1", TokenID: "T", ConditionID: "M"}))

	select {
	case payload := <-msgs:
		assert.JSONEq(t, `{"token_id":"T","condition_id":"M","signal_id":"s1"}`, string(payload))
	case <-time.After(2 * time.Second):
		t.Fatal("no retry message received")
	}

	stream := c.Key("fills")
	t.Cleanup(func() { c.Underlying().Del(context.Background(), stream) })
	require.NoError(t, NewTradeStream(bus, stream).Append(ctx, domain.TradeRecord{ID: "r1", TokenID: "T"}))
	entries, err := c.Underlying().XRange(ctx, stream, "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Values["payload"], `"id":"r1"`)

	assert.NoError(t, bus.Ping(ctx))
}
