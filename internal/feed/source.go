// Package feed connects external signal producers to the engine intake and
// reports their health to the circuit breaker.
package feed

import (
	"context"

	"github.com/Kaelsz/Polymarket-Sniper/internal/domain"
)

// Emitter is handed to a listening Source.
type Emitter interface {
	// Emit forwards a signal to the engine.
	Emit(sig domain.Signal)
	// Heartbeat marks the source alive without producing a signal.
	Heartbeat()
}

// Source is a signal producer. Listen blocks until the connection is lost
// (non-nil error) or ctx is done.
type Source interface {
	Name() string
	Connect(ctx context.Context) error
	Listen(ctx context.Context, emit Emitter) error
	Close() error
}

// Health receives per-source health events. *breaker.Breaker implements it.
type Health interface {
	RecordSuccess(name string)
	RecordFailure(name, reason string)
	RecordReconnect(name string)
	RecordHeartbeat(name string)
}

// Sink accepts signals. *executor.Intake implements it.
type Sink interface {
	Push(sig domain.Signal) bool
}
