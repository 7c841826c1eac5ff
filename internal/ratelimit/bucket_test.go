package ratelimit

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestAcquireWithinBurstDoesNotWait(t *testing.T) {
	b := New(5, 10, discardLogger())

	start := time.Now()
	for i := 0; i < 10; i++ {
		require.NoError(t, b.Acquire(context.Background()))
	}
	assert.Less(t, time.Since(start), 50*time.Millisecond)

	st := b.Stats()
	assert.Equal(t, int64(10), st.TotalCalls)
	assert.Equal(t, int64(0), st.TotalWaits)
	assert.Zero(t, st.AvgWait)
}

func waitFor(b *Bucket) time.Duration {
	_, wait := b.reserve()
	return wait
}

func TestReserveComputesDeficitWait(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	b := New(10, 2, discardLogger())
	b.now = func() time.Time { return now }

	assert.Zero(t, waitFor(b))
	assert.Zero(t, waitFor(b))
	assert.Equal(t, 100*time.Millisecond, waitFor(b))
	assert.Equal(t, 200*time.Millisecond, waitFor(b))

	st := b.Stats()
	assert.Equal(t, int64(4), st.TotalCalls)
	assert.Equal(t, int64(2), st.TotalWaits)
	assert.Equal(t, 300*time.Millisecond, st.TotalWaitTime)
	assert.Equal(t, 150*time.Millisecond, st.AvgWait)
}

func TestRefillIsCappedAtBurst(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	b := New(100, 3, discardLogger())
	b.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		assert.Zero(t, waitFor(b))
	}

	now = now.Add(time.Hour)
	for i := 0; i < 3; i++ {
		assert.Zero(t, waitFor(b))
	}
	assert.Greater(t, waitFor(b), time.Duration(0))
}

func TestCancelledReservationReturnsToken(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	b := New(10, 1, discardLogger())
	b.now = func() time.Time { return now }

	assert.Zero(t, waitFor(b))
	res, wait := b.reserve()
	require.Equal(t, 100*time.Millisecond, wait)

	res.CancelAt(now)
	assert.Equal(t, 100*time.Millisecond, waitFor(b), "cancelled token is not charged twice")
}

func TestAcquireBlocksUntilRefill(t *testing.T) {
	b := New(20, 1, discardLogger())
	require.NoError(t, b.Acquire(context.Background()))

	start := time.Now()
	require.NoError(t, b.Acquire(context.Background()))
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
	assert.Equal(t, int64(1), b.Stats().TotalWaits)
}

func TestAcquireConcurrentCallersAreSpaced(t *testing.T) {
	b := New(50, 1, discardLogger())

	var wg sync.WaitGroup
	start := time.Now()
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, b.Acquire(context.Background()))
		}()
	}
	wg.Wait()

	// One token up front, four more at 20ms spacing.
	assert.GreaterOrEqual(t, time.Since(start), 70*time.Millisecond)
	assert.Equal(t, int64(5), b.Stats().TotalCalls)
}

func TestAcquireHonoursContext(t *testing.T) {
	b := New(0.5, 1, discardLogger())
	require.NoError(t, b.Acquire(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := b.Acquire(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	st := b.Stats()
	assert.Equal(t, int64(1), st.TotalCalls)
	assert.Equal(t, int64(0), st.TotalWaits)
}

func TestZeroRateIsUnthrottled(t *testing.T) {
	b := New(0, 1, discardLogger())
	for i := 0; i < 100; i++ {
		require.NoError(t, b.Acquire(context.Background()))
	}
	assert.Equal(t, int64(100), b.Stats().TotalCalls)
}
