package feed

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Kaelsz/Polymarket-Sniper/internal/domain"
)

const (
	defaultBaseDelay = 5 * time.Second
	defaultMaxDelay  = 120 * time.Second
)

// Runner keeps one Source connected. Every connect is reported as a
// reconnect, every emitted signal as a success, and every connect or
// listen error as a failure followed by exponential backoff.
type Runner struct {
	src    Source
	sink   Sink
	health Health
	logger *slog.Logger
	now    func() time.Time

	baseDelay time.Duration
	maxDelay  time.Duration
	sleep     func(ctx context.Context, d time.Duration) error
}

// NewRunner creates a Runner. health may be nil.
func NewRunner(src Source, sink Sink, health Health, logger *slog.Logger) *Runner {
	return &Runner{
		src:       src,
		sink:      sink,
		health:    health,
		logger:    logger.With(slog.String("component", "feed"), slog.String("source", src.Name())),
		now:       time.Now,
		baseDelay: defaultBaseDelay,
		maxDelay:  defaultMaxDelay,
		sleep:     sleepCtx,
	}
}

// SetBackoff overrides the reconnect delays.
func (r *Runner) SetBackoff(base, maxDelay time.Duration) {
	if base > 0 {
		r.baseDelay = base
	}
	if maxDelay >= r.baseDelay {
		r.maxDelay = maxDelay
	}
}

// Run loops until ctx is done, then closes the source.
func (r *Runner) Run(ctx context.Context) error {
	name := r.src.Name()
	defer func() {
		if err := r.src.Close(); err != nil {
			r.logger.Warn("source close failed", slog.String("error", err.Error()))
		}
		r.logger.Info("source stopped")
	}()

	delay := r.baseDelay
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		r.logger.InfoContext(ctx, "connecting")
		err := r.src.Connect(ctx)
		if err == nil {
			delay = r.baseDelay
			r.logger.InfoContext(ctx, "connected")
			if r.health != nil {
				r.health.RecordReconnect(name)
			}
			err = r.src.Listen(ctx, emitter{r})
			if err == nil && ctx.Err() == nil {
				err = fmt.Errorf("feed: %s: listen returned: %w", name, domain.ErrSourceClosed)
			}
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		r.logger.ErrorContext(ctx, "source error, reconnecting",
			slog.String("error", err.Error()),
			slog.Duration("delay", delay),
		)
		if r.health != nil {
			r.health.RecordFailure(name, err.Error())
		}
		if err := r.sleep(ctx, delay); err != nil {
			return err
		}
		delay = min(delay*2, r.maxDelay)
	}
}

type emitter struct{ r *Runner }

func (e emitter) Emit(sig domain.Signal) {
	r := e.r
	if sig.Source == "" {
		sig.Source = r.src.Name()
	}
	if sig.ID == "" {
		sig.ID = uuid.NewString()
	}
	if sig.CreatedAt.IsZero() {
		sig.CreatedAt = r.now().UTC()
	}
	if err := sig.Validate(); err != nil {
		r.logger.Warn("dropping signal", slog.String("error", err.Error()))
		return
	}

	r.logger.Info("signal",
		slog.String("signal_id", sig.ID),
		slog.String("group", sig.Group),
		slog.String("outcome", sig.Outcome),
	)
	if !r.sink.Push(sig) {
		r.logger.Warn("intake closed, signal dropped", slog.String("signal_id", sig.ID))
		return
	}
	if r.health != nil {
		r.health.RecordSuccess(r.src.Name())
	}
}

func (e emitter) Heartbeat() {
	if e.r.health != nil {
		e.r.health.RecordHeartbeat(e.r.src.Name())
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
