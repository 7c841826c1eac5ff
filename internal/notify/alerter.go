package notify

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/Kaelsz/Polymarket-Sniper/internal/domain"
)

// TitlePrefix is prepended to every alert title.
const TitlePrefix = "[PolySniper] "

type alert struct {
	event   string
	title   string
	message string
}

// Alerter implements domain.Alerter. Alert only enqueues; Run delivers.
// When the queue is full the alert is dropped and counted.
type Alerter struct {
	notifier *Notifier
	queue    chan alert
	logger   *slog.Logger
	dropped  atomic.Int64
	sent     atomic.Int64
}

// NewAlerter starts nothing; call Run to drain the queue into n.
func NewAlerter(n *Notifier, queueSize int, logger *slog.Logger) *Alerter {
	if queueSize <= 0 {
		queueSize = 256
	}
	return &Alerter{
		notifier: n,
		queue:    make(chan alert, queueSize),
		logger:   logger.With(slog.String("component", "alerter")),
	}
}

// Alert queues an alert without blocking. It is dropped when the queue is full.
func (a *Alerter) Alert(event, title, message string) {
	if !a.notifier.Enabled() || !a.notifier.Allows(event) {
		return
	}
	select {
	case a.queue <- alert{event: event, title: TitlePrefix + title, message: message}:
	default:
		a.dropped.Add(1)
		a.logger.Warn("alert dropped, queue full", slog.String("event", event), slog.String("title", title))
	}
}

// Dropped returns the number of alerts discarded because the queue was full.
func (a *Alerter) Dropped() int64 { return a.dropped.Load() }

// Run delivers queued alerts until ctx is cancelled, then drains what is
// left within a short grace period.
func (a *Alerter) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			a.drain(context.WithoutCancel(ctx))
			return ctx.Err()
		case al := <-a.queue:
			a.deliver(ctx, al)
		}
	}
}

func (a *Alerter) drain(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 2*sendTimeout)
	defer cancel()
	for {
		select {
		case al := <-a.queue:
			if ctx.Err() != nil {
				return
			}
			a.deliver(ctx, al)
		default:
			return
		}
	}
}

func (a *Alerter) deliver(ctx context.Context, al alert) {
	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	start := time.Now()
	if err := a.notifier.Notify(ctx, al.event, al.title, al.message); err != nil {
		a.logger.WarnContext(ctx, "alert delivery failed",
			slog.String("event", al.event),
			slog.String("error", err.Error()),
		)
		return
	}
	a.sent.Add(1)
	a.logger.DebugContext(ctx, "alert delivered",
		slog.String("event", al.event),
		slog.Duration("took", time.Since(start)),
	)
}

var _ domain.Alerter = (*Alerter)(nil)
