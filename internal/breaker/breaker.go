// Package breaker tracks the health of every signal source and raises a
// global trading halt when too few of them are healthy.
//
// Each source moves between CLOSED (healthy), OPEN (failed or stale) and
// HALF_OPEN (recovering). The global state is a pure function of the health
// map: halted while the number of CLOSED sources is below MinHealthy.
// OnHalt and OnResume fire exactly once per delivered edge, serialized, so
// the last callback always matches the current global state.
package breaker

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Kaelsz/Polymarket-Sniper/internal/domain"
)

// Config holds breaker thresholds.
type Config struct {
	FailureThreshold int           // consecutive failures that open a CLOSED source
	RecoverySuccess  int           // successes a HALF_OPEN source needs before CLOSED
	MinHealthy       int           // CLOSED sources required to keep trading
	StaleTimeout     time.Duration // max silence before a CLOSED source is opened
	CheckInterval    time.Duration // how often Run calls CheckStale
}

// Breaker is safe for concurrent use.
type Breaker struct {
	cfg    Config
	logger *slog.Logger
	now    func() time.Time

	onHalt   func()
	onResume func()

	mu      sync.Mutex
	sources map[string]*domain.AdapterHealth
	halted  bool

	// notifyMu serializes callback delivery; delivered is the global state
	// the callbacks last reported and is guarded by notifyMu.
	notifyMu  sync.Mutex
	delivered bool
}

// New creates a Breaker. onHalt and onResume may be nil.
func New(cfg Config, onHalt, onResume func(), logger *slog.Logger) *Breaker {
	if cfg.FailureThreshold < 1 {
		cfg.FailureThreshold = 1
	}
	if cfg.RecoverySuccess < 1 {
		cfg.RecoverySuccess = 1
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = 10 * time.Second
	}
	return &Breaker{
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "breaker")),
		now:      time.Now,
		onHalt:   onHalt,
		onResume: onResume,
		sources:  make(map[string]*domain.AdapterHealth),
	}
}

// Register starts tracking a source as CLOSED. Registering an existing
// name resets its record.
func (b *Breaker) Register(name string) {
	now := b.now()

	b.mu.Lock()
	b.sources[name] = &domain.AdapterHealth{
		Name:        name,
		State:       domain.SourceClosed,
		LastSuccess: now,
		LastEvent:   now,
	}
	b.mu.Unlock()

	b.logger.Info("source registered", slog.String("source", name))
}

// RecordSuccess records a data event. An OPEN source moves to HALF_OPEN;
// a HALF_OPEN source closes once it has RecoverySuccess successes.
func (b *Breaker) RecordSuccess(name string) {
	now := b.now()

	b.mu.Lock()
	h, ok := b.sources[name]
	if !ok {
		b.mu.Unlock()
		return
	}
	h.LastSuccess = now
	h.LastEvent = now
	h.TotalEvents++

	changed := false
	if h.State == domain.SourceOpen {
		h.State = domain.SourceHalfOpen
		h.HalfOpenSuccesses = 0
		changed = true
		b.logger.Info("source recovering", slog.String("source", name), slog.String("transition", "OPEN->HALF_OPEN"))
	}
	if h.State == domain.SourceHalfOpen {
		h.HalfOpenSuccesses++
		if h.HalfOpenSuccesses >= b.cfg.RecoverySuccess {
			h.State = domain.SourceClosed
			h.ConsecutiveFailures = 0
			h.HalfOpenSuccesses = 0
			changed = true
			b.logger.Info("source recovered", slog.String("source", name), slog.String("transition", "HALF_OPEN->CLOSED"))
		}
	}

	var edge edge
	if changed {
		edge = b.evaluateLocked()
	}
	b.mu.Unlock()

	b.fire(edge)
}

// RecordFailure records a disconnect or error. A CLOSED source opens once
// its consecutive failures reach FailureThreshold.
func (b *Breaker) RecordFailure(name, reason string) {
	now := b.now()

	b.mu.Lock()
	h, ok := b.sources[name]
	if !ok {
		b.mu.Unlock()
		return
	}
	h.ConsecutiveFailures++
	h.TotalFailures++
	h.LastFailure = now
	h.LastError = reason

	b.logger.Warn("source failure",
		slog.String("source", name),
		slog.Int("consecutive", h.ConsecutiveFailures),
		slog.String("reason", reason),
	)

	var edge edge
	if h.State == domain.SourceClosed && h.ConsecutiveFailures >= b.cfg.FailureThreshold {
		h.State = domain.SourceOpen
		b.logger.Error("source opened",
			slog.String("source", name),
			slog.String("transition", "CLOSED->OPEN"),
			slog.Int("threshold", b.cfg.FailureThreshold),
		)
		edge = b.evaluateLocked()
	}
	b.mu.Unlock()

	b.fire(edge)
}

// RecordReconnect moves an OPEN source to HALF_OPEN without requiring a
// data event.
func (b *Breaker) RecordReconnect(name string) {
	now := b.now()

	b.mu.Lock()
	h, ok := b.sources[name]
	if ok && h.State == domain.SourceOpen {
		h.State = domain.SourceHalfOpen
		h.HalfOpenSuccesses = 0
		h.LastSuccess = now
		b.logger.Info("source reconnected", slog.String("source", name), slog.String("transition", "OPEN->HALF_OPEN"))
	}
	b.mu.Unlock()
}

// RecordHeartbeat refreshes the last-event time only, so polling sources
// that produce no signals are not reported stale.
func (b *Breaker) RecordHeartbeat(name string) {
	now := b.now()

	b.mu.Lock()
	if h, ok := b.sources[name]; ok {
		h.LastEvent = now
	}
	b.mu.Unlock()
}

// CheckStale opens every CLOSED source that has been silent for longer
// than StaleTimeout and returns their names. OPEN and HALF_OPEN sources
// are already known bad and are left alone.
func (b *Breaker) CheckStale() []string {
	if b.cfg.StaleTimeout <= 0 {
		return nil
	}
	now := b.now()

	b.mu.Lock()
	var stale []string
	for name, h := range b.sources {
		if h.State != domain.SourceClosed {
			continue
		}
		silent := now.Sub(h.LastEvent)
		if silent > b.cfg.StaleTimeout {
			h.State = domain.SourceOpen
			stale = append(stale, name)
			b.logger.Warn("source stale",
				slog.String("source", name),
				slog.String("transition", "CLOSED->OPEN"),
				slog.Duration("silent", silent),
			)
		}
	}
	var edge edge
	if len(stale) > 0 {
		edge = b.evaluateLocked()
	}
	b.mu.Unlock()

	b.fire(edge)
	sort.Strings(stale)
	return stale
}

// Run calls CheckStale every CheckInterval until ctx is cancelled.
func (b *Breaker) Run(ctx context.Context) error {
	b.logger.InfoContext(ctx, "breaker monitor started", slog.Duration("interval", b.cfg.CheckInterval))
	defer b.logger.Info("breaker monitor stopped")

	ticker := time.NewTicker(b.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			b.CheckStale()
		}
	}
}

// Halted reports whether the global halt is raised.
func (b *Breaker) Halted() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.halted
}

// HealthyCount returns the number of CLOSED sources.
func (b *Breaker) HealthyCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.healthyLocked()
}

// Health returns a copy of one source's record.
func (b *Breaker) Health(name string) (domain.AdapterHealth, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	h, ok := b.sources[name]
	if !ok {
		return domain.AdapterHealth{}, false
	}
	return *h, true
}

// States returns the state of every registered source.
func (b *Breaker) States() map[string]domain.SourceState {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string]domain.SourceState, len(b.sources))
	for name, h := range b.sources {
		out[name] = h.State
	}
	return out
}

// Summary renders a one-line-per-source status report.
func (b *Breaker) Summary() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	names := make([]string, 0, len(b.sources))
	for name := range b.sources {
		names = append(names, name)
	}
	sort.Strings(names)

	var sb strings.Builder
	fmt.Fprintf(&sb, "breaker halted=%t healthy=%d/%d", b.halted, b.healthyLocked(), len(b.sources))
	for _, name := range names {
		h := b.sources[name]
		fmt.Fprintf(&sb, "\n  %-12s state=%-9s failures=%d events=%d", name, h.State, h.ConsecutiveFailures, h.TotalEvents)
	}
	return sb.String()
}

type edge int

const (
	edgeNone edge = iota
	edgeHalt
	edgeResume
)

func (b *Breaker) healthyLocked() int {
	n := 0
	for _, h := range b.sources {
		if h.State == domain.SourceClosed {
			n++
		}
	}
	return n
}

// evaluateLocked recomputes the global state and reports an edge when it
// flips. Callers fire the edge after releasing the lock.
func (b *Breaker) evaluateLocked() edge {
	healthy := b.healthyLocked()
	switch {
	case !b.halted && healthy < b.cfg.MinHealthy:
		b.halted = true
		b.logger.Error("global halt",
			slog.Int("healthy", healthy),
			slog.Int("total", len(b.sources)),
			slog.Int("min_healthy", b.cfg.MinHealthy),
		)
		return edgeHalt
	case b.halted && healthy >= b.cfg.MinHealthy:
		b.halted = false
		b.logger.Warn("global resume",
			slog.Int("healthy", healthy),
			slog.Int("total", len(b.sources)),
		)
		return edgeResume
	}
	return edgeNone
}

// fire delivers pending edges after the state lock is released. Delivery
// follows the current global state rather than e, so an edge computed by a
// goroutine that lost the race is never reported after a newer one.
func (b *Breaker) fire(e edge) {
	if e == edgeNone {
		return
	}
	b.notifyMu.Lock()
	defer b.notifyMu.Unlock()

	for {
		b.mu.Lock()
		halted := b.halted
		b.mu.Unlock()
		if halted == b.delivered {
			return
		}
		b.delivered = halted

		if halted {
			if b.onHalt != nil {
				b.onHalt()
			}
		} else if b.onResume != nil {
			b.onResume()
		}
	}
}
