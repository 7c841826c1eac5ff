// Package ratelimit provides the token-bucket throttle shared by every
// outbound call to the exchange.
package ratelimit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Stats is a point-in-time view of limiter usage.
type Stats struct {
	TotalCalls    int64         `json:"total_calls"`
	TotalWaits    int64         `json:"total_waits"`
	TotalWaitTime time.Duration `json:"total_wait_time"`
	AvgWait       time.Duration `json:"avg_wait"`
}

// Bucket is a token bucket with capacity burst refilled at rate tokens per
// second, backed by rate.Limiter. Waiters reserve their token up front, so
// concurrent callers queue fairly and never hold a lock while sleeping.
type Bucket struct {
	rate    float64
	limiter *rate.Limiter
	logger  *slog.Logger
	now     func() time.Time

	mu        sync.Mutex
	calls     int64
	waits     int64
	waitTotal time.Duration
}

// New creates a full bucket. A non-positive rate disables throttling.
func New(r float64, burst int, logger *slog.Logger) *Bucket {
	if burst < 1 {
		burst = 1
	}
	limit := rate.Inf
	if r > 0 {
		limit = rate.Limit(r)
	}
	return &Bucket{
		rate:    r,
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger.With(slog.String("component", "ratelimit")),
		now:     time.Now,
	}
}

// Rate returns the refill rate in tokens per second.
func (b *Bucket) Rate() float64 { return b.rate }

// Burst returns the bucket capacity.
func (b *Bucket) Burst() int { return b.limiter.Burst() }

// Acquire consumes one token, sleeping until one is available. The only
// error it returns is the context's, when ctx ends before the token is due;
// the reserved token is handed back in that case.
func (b *Bucket) Acquire(ctx context.Context) error {
	res, wait := b.reserve()
	if wait <= 0 {
		return nil
	}

	b.logger.DebugContext(ctx, "waiting for token", slog.Duration("wait", wait))

	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		res.CancelAt(b.now())
		b.unrecord(wait)
		return ctx.Err()
	}
}

// reserve takes a token and returns how long the caller has to wait for it
// to become valid.
func (b *Bucket) reserve() (*rate.Reservation, time.Duration) {
	now := b.now()
	res := b.limiter.ReserveN(now, 1)
	wait := res.DelayFrom(now)

	b.mu.Lock()
	b.calls++
	if wait > 0 {
		b.waits++
		b.waitTotal += wait
	}
	b.mu.Unlock()
	return res, wait
}

func (b *Bucket) unrecord(wait time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.waitTotal -= wait
	b.waits--
	b.calls--
}

// Stats returns cumulative counters.
func (b *Bucket) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := Stats{
		TotalCalls:    b.calls,
		TotalWaits:    b.waits,
		TotalWaitTime: b.waitTotal,
	}
	if b.waits > 0 {
		s.AvgWait = b.waitTotal / time.Duration(b.waits)
	}
	return s
}
