package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Kaelsz/Polymarket-Sniper/internal/domain"
)

// Bus is a pub/sub transport. *redis.SignalBus implements it.
type Bus interface {
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	Ping(ctx context.Context) error
}

// BusSource reads JSON-encoded signals from a pub/sub channel. External
// producers (match listeners, the market scanner) publish there.
type BusSource struct {
	name      string
	bus       Bus
	channel   string
	heartbeat time.Duration
	logger    *slog.Logger

	mu     sync.Mutex
	msgs   <-chan []byte
	cancel context.CancelFunc
}

// NewBusSource creates a source named name reading channel. When
// heartbeat is positive the transport is pinged on that interval and each
// successful ping counts as a heartbeat.
func NewBusSource(name string, bus Bus, channel string, heartbeat time.Duration, logger *slog.Logger) *BusSource {
	return &BusSource{
		name:      name,
		bus:       bus,
		channel:   channel,
		heartbeat: heartbeat,
		logger:    logger.With(slog.String("component", "bus_source"), slog.String("source", name)),
	}
}

func (s *BusSource) Name() string { return s.name }

// Connect subscribes to the channel, replacing any earlier subscription.
func (s *BusSource) Connect(ctx context.Context) error {
	subCtx, cancel := context.WithCancel(ctx)
	msgs, err := s.bus.Subscribe(subCtx, s.channel)
	if err != nil {
		cancel()
		return fmt.Errorf("feed: %s: subscribe: %w", s.name, err)
	}

	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.msgs, s.cancel = msgs, cancel
	s.mu.Unlock()
	return nil
}

// Listen emits decoded signals and pings the bus every heartbeat interval.
// Undecodable payloads are skipped.
func (s *BusSource) Listen(ctx context.Context, emit Emitter) error {
	s.mu.Lock()
	msgs := s.msgs
	s.mu.Unlock()
	if msgs == nil {
		return fmt.Errorf("feed: %s: not connected", s.name)
	}

	var tick <-chan time.Time
	if s.heartbeat > 0 {
		t := time.NewTicker(s.heartbeat)
		defer t.Stop()
		tick = t.C
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick:
			if err := s.bus.Ping(ctx); err != nil {
				return fmt.Errorf("feed: %s: ping: %w", s.name, err)
			}
			emit.Heartbeat()
		case data, ok := <-msgs:
			if !ok {
				return fmt.Errorf("feed: %s: subscription ended: %w", s.name, domain.ErrSourceClosed)
			}
			var sig domain.Signal
			if err := json.Unmarshal(data, &sig); err != nil {
				s.logger.Debug("undecodable signal", slog.String("error", err.Error()), slog.Int("payload_len", len(data)))
				continue
			}
			emit.Emit(sig)
		}
	}
}

// Close cancels the subscription.
func (s *BusSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.msgs = nil
	return nil
}
