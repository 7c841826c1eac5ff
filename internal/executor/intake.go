package executor

import (
	"context"
	"sync"

	"github.com/Kaelsz/Polymarket-Sniper/internal/domain"
)

// Intake is an unbounded FIFO of signals with many producers and a single
// consumer. Push never blocks.
type Intake struct {
	mu     sync.Mutex
	queue  []domain.Signal
	notify chan struct{}
	done   chan struct{}
	closed bool
}

// NewIntake returns an empty intake.
func NewIntake() *Intake {
	return &Intake{
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// Push enqueues sig. It returns false once the intake is closed.
func (q *Intake) Push(sig domain.Signal) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.queue = append(q.queue, sig)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return true
}

// Next blocks until a signal is available, the intake is closed and
// drained (domain.ErrSourceClosed), or ctx is done.
func (q *Intake) Next(ctx context.Context) (domain.Signal, error) {
	for {
		q.mu.Lock()
		if len(q.queue) > 0 {
			sig := q.queue[0]
			q.queue[0] = domain.Signal{}
			q.queue = q.queue[1:]
			q.mu.Unlock()
			return sig, nil
		}
		closed := q.closed
		q.mu.Unlock()
		if closed {
			return domain.Signal{}, domain.ErrSourceClosed
		}

		select {
		case <-ctx.Done():
			return domain.Signal{}, ctx.Err()
		case <-q.notify:
		case <-q.done:
		}
	}
}

// Close stops accepting signals. Queued signals can still be drained.
func (q *Intake) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.done)
	}
}

// Len returns the number of queued signals.
func (q *Intake) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.queue)
}
