// Package executor runs the trade path: it consumes signals, serializes the
// check-place-record sequence, and monitors open positions to resolution.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Kaelsz/Polymarket-Sniper/internal/domain"
	"github.com/Kaelsz/Polymarket-Sniper/internal/risk"
	"github.com/Kaelsz/Polymarket-Sniper/internal/sizing"
)

// Config holds the trading parameters the engine applies.
type Config struct {
	MinBuyPrice     float64
	MaxBuyPrice     float64
	DryRun          bool
	OrderTimeout    time.Duration
	MonitorInterval time.Duration
	StopLoss        float64 // fraction below buy price that triggers a sell; 0 disables
	WinThreshold    float64
	LossThreshold   float64
	JournalSize     int // in-memory trade history; 0 uses the default
}

// HaltSource reports a global halt raised outside the ledger, typically
// the circuit breaker.
type HaltSource interface {
	Halted() bool
}

// TradeSink receives every trade record after the fill is committed.
type TradeSink interface {
	Append(ctx context.Context, rec domain.TradeRecord) error
}

// RetryHook is invoked for signals discarded because trading is halted so
// the producer can re-evaluate the token later.
type RetryHook func(ctx context.Context, sig domain.Signal)

// Outcome is the result of handling one signal.
type Outcome int

const (
	OutcomeTraded Outcome = iota
	OutcomeInvalid
	OutcomeHalted
	OutcomeNoBook
	OutcomeOutOfBand
	OutcomeVetoed
	OutcomeOrderFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeTraded:
		return "traded"
	case OutcomeInvalid:
		return "invalid"
	case OutcomeHalted:
		return "halted"
	case OutcomeNoBook:
		return "no_book"
	case OutcomeOutOfBand:
		return "out_of_band"
	case OutcomeVetoed:
		return "vetoed"
	case OutcomeOrderFailed:
		return "order_failed"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// Engine is the only component that mutates the ledger on the trade path.
type Engine struct {
	cfg      Config
	ledger   *risk.Ledger
	exchange domain.Exchange
	sizer    *sizing.Sizer
	logger   *slog.Logger
	now      func() time.Time

	breaker HaltSource
	store   domain.SnapshotStore
	alerter domain.Alerter
	journal *Journal
	sinks   []TradeSink
	retry   RetryHook

	// tradeMu serializes every ledger mutation: check -> place -> record
	// on the signal path and closes from the monitor.
	tradeMu sync.Mutex
	wg      sync.WaitGroup
}

// NewEngine creates an Engine. Optional collaborators are attached with the
// Set methods before Run.
func NewEngine(cfg Config, ledger *risk.Ledger, exchange domain.Exchange, sizer *sizing.Sizer, logger *slog.Logger) *Engine {
	if cfg.OrderTimeout <= 0 {
		cfg.OrderTimeout = 15 * time.Second
	}
	// An unset win threshold means the pair was left unset. An explicit zero
	// loss threshold is kept: it only closes positions quoted at zero.
	if cfg.WinThreshold <= 0 {
		cfg.WinThreshold = 0.95
		if cfg.LossThreshold <= 0 {
			cfg.LossThreshold = 0.05
		}
	}
	return &Engine{
		cfg:      cfg,
		ledger:   ledger,
		exchange: exchange,
		sizer:    sizer,
		logger:   logger.With(slog.String("component", "engine")),
		now:      time.Now,
		alerter:  nopAlerter{},
		journal:  NewJournal(cfg.JournalSize),
	}
}

// SetBreaker rejects entries while b is halted. Call it before Run.
func (e *Engine) SetBreaker(b HaltSource) { e.breaker = b }

// SetStore persists the ledger to s after each fill and close.
func (e *Engine) SetStore(s domain.SnapshotStore) { e.store = s }

// SetAlerter routes fill, close and halt alerts to a.
func (e *Engine) SetAlerter(a domain.Alerter) { e.alerter = a }

// SetRetryHook receives signals dropped while entries are halted.
func (e *Engine) SetRetryHook(h RetryHook) { e.retry = h }

// AddSink appends a trade sink. Sinks see every recorded trade in order.
func (e *Engine) AddSink(s TradeSink) { e.sinks = append(e.sinks, s) }

// Journal returns the in-memory trade history.
func (e *Engine) Journal() *Journal { return e.journal }

// Ledger returns the risk ledger the engine books against.
func (e *Engine) Ledger() *risk.Ledger { return e.ledger }

// Exchange returns the exchange the engine trades on.
func (e *Engine) Exchange() domain.Exchange { return e.exchange }

// DryRun reports whether orders are simulated.
func (e *Engine) DryRun() bool { return e.cfg.DryRun }

// Run consumes signals from intake until ctx is cancelled or the intake is
// closed, handling each signal on its own goroutine. The position monitor
// runs alongside when MonitorInterval is set. On return every handler has
// finished and the ledger has been persisted once.
func (e *Engine) Run(ctx context.Context, intake *Intake) error {
	e.logger.InfoContext(ctx, "engine started",
		slog.Bool("dry_run", e.cfg.DryRun),
		slog.String("sizing", string(e.sizer.Mode())),
		slog.Float64("max_buy_price", e.cfg.MaxBuyPrice),
	)

	monitorCtx, stopMonitor := context.WithCancel(ctx)
	monitorDone := make(chan struct{})
	go func() {
		defer close(monitorDone)
		e.RunMonitor(monitorCtx)
	}()

	var runErr error
	for {
		sig, err := intake.Next(ctx)
		if err != nil {
			if !errors.Is(err, domain.ErrSourceClosed) {
				runErr = err
			}
			break
		}
		e.wg.Add(1)
		go func(sig domain.Signal) {
			defer e.wg.Done()
			e.HandleSignal(ctx, sig)
		}(sig)
	}

	stopMonitor()
	<-monitorDone
	e.wg.Wait()
	e.persist(ctx)

	e.logger.Info("engine stopped", slog.Int("trades", e.journal.Total()))
	return runErr
}

// HandleSignal runs one signal through the trade path.
func (e *Engine) HandleSignal(ctx context.Context, sig domain.Signal) Outcome {
	start := e.now()
	log := e.logger.With(
		slog.String("signal_id", sig.ID),
		slog.String("source", sig.Source),
		slog.String("token_id", sig.TokenID),
	)

	if err := sig.Validate(); err != nil {
		log.WarnContext(ctx, "signal rejected", slog.String("error", err.Error()))
		return OutcomeInvalid
	}
	log.InfoContext(ctx, "signal received",
		slog.String("group", sig.Group),
		slog.String("outcome", sig.Outcome),
		slog.Float64("price", sig.Price),
	)

	if e.breaker != nil && e.breaker.Halted() {
		log.WarnContext(ctx, "blocked by circuit breaker")
		e.requeue(ctx, sig)
		return OutcomeHalted
	}
	if e.ledger.Halted() {
		log.WarnContext(ctx, "blocked by ledger halt", slog.String("reason", e.ledger.HaltReason()))
		e.requeue(ctx, sig)
		return OutcomeHalted
	}

	ask, ok, err := e.exchange.BestAsk(ctx, sig.TokenID)
	if err != nil {
		log.WarnContext(ctx, "order book fetch failed", slog.String("error", err.Error()))
		return OutcomeNoBook
	}
	if !ok {
		log.WarnContext(ctx, "empty order book")
		return OutcomeNoBook
	}
	if ask < e.cfg.MinBuyPrice || ask > e.cfg.MaxBuyPrice {
		log.InfoContext(ctx, "ask outside buy band",
			slog.Float64("ask", ask),
			slog.Float64("min", e.cfg.MinBuyPrice),
			slog.Float64("max", e.cfg.MaxBuyPrice),
		)
		return OutcomeOutOfBand
	}

	rec, outcome := e.trade(ctx, log, sig, ask)
	if outcome != OutcomeTraded {
		return outcome
	}

	e.persist(ctx)

	rec.LatencyMs = float64(e.now().Sub(start).Microseconds()) / 1000
	e.journal.Add(rec)
	for _, s := range e.sinks {
		if err := s.Append(context.WithoutCancel(ctx), rec); err != nil {
			log.ErrorContext(ctx, "trade sink append failed", slog.String("error", err.Error()))
		}
	}

	msg := fmt.Sprintf("Group: %s\nOutcome: %s\nMarket: %s\nAsk: $%.3f\nSize: $%.2f\nLatency: %.1fms\nPositions: %d | Exposure: $%.2f",
		sig.Group, sig.Outcome, sig.Question, ask, rec.Amount, rec.LatencyMs, rec.OpenPositions, rec.Exposure)
	log.InfoContext(ctx, "trade executed",
		slog.Bool("dry_run", e.cfg.DryRun),
		slog.Float64("ask", ask),
		slog.Float64("amount", rec.Amount),
		slog.Float64("latency_ms", rec.LatencyMs),
		slog.Int("open_positions", rec.OpenPositions),
		slog.Float64("exposure", rec.Exposure),
	)
	e.alerter.Alert(domain.EventTradeExecuted, fmt.Sprintf("[%s] Trade executed", e.modeLabel()), msg)
	return OutcomeTraded
}

// trade is the critical section. The order call runs on a context detached
// from ctx so shutdown cannot interrupt a placement between the exchange
// accepting it and the ledger recording it.
func (e *Engine) trade(ctx context.Context, log *slog.Logger, sig domain.Signal, ask float64) (domain.TradeRecord, Outcome) {
	e.tradeMu.Lock()
	defer e.tradeMu.Unlock()

	amount := e.sizer.Size(sizing.Input{
		Confidence:  sig.Confidence,
		AskPrice:    ask,
		MaxBuyPrice: e.cfg.MaxBuyPrice,
	})

	decision := e.ledger.PreTradeCheck(sig.TokenID, sig.Group, sig.Outcome, sig.MarketID(), amount, ask)
	if decision.Vetoed {
		return domain.TradeRecord{}, OutcomeVetoed
	}

	orderCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.cfg.OrderTimeout)
	receipt, err := e.exchange.MarketBuy(orderCtx, sig.TokenID, amount)
	cancel()
	if err != nil {
		log.ErrorContext(ctx, "order failed",
			slog.String("group", sig.Group),
			slog.String("outcome", sig.Outcome),
			slog.String("error", err.Error()),
		)
		e.alerter.Alert(domain.EventOrderFailed, "Order failed",
			fmt.Sprintf("Group: %s\nOutcome: %s\nToken: %s\nError: %v", sig.Group, sig.Outcome, shortID(sig.TokenID), err))
		return domain.TradeRecord{}, OutcomeOrderFailed
	}

	e.ledger.RecordTrade(domain.Position{
		TokenID:     sig.TokenID,
		ConditionID: sig.ConditionID,
		Group:       sig.Group,
		Outcome:     sig.Outcome,
		Question:    sig.Question,
		Amount:      amount,
		BuyPrice:    ask,
	})
	status := e.ledger.Status()

	rec := domain.TradeRecord{
		ID:            uuid.NewString(),
		SignalID:      sig.ID,
		Source:        sig.Source,
		TokenID:       sig.TokenID,
		ConditionID:   sig.ConditionID,
		Group:         sig.Group,
		Outcome:       sig.Outcome,
		Question:      sig.Question,
		AskPrice:      ask,
		Amount:        amount,
		DryRun:        e.cfg.DryRun,
		OpenPositions: status.OpenPositions,
		Exposure:      status.Exposure,
		CreatedAt:     e.now().UTC(),
	}
	if receipt != nil {
		rec.OrderID = receipt.OrderID
	}
	return rec, OutcomeTraded
}

func (e *Engine) requeue(ctx context.Context, sig domain.Signal) {
	if e.retry != nil {
		e.retry(ctx, sig)
	}
}

// Persist saves the ledger snapshot once. Failures are logged only: the
// orders behind the state have already executed.
func (e *Engine) Persist(ctx context.Context) {
	e.persist(ctx)
}

func (e *Engine) persist(ctx context.Context) {
	if e.store == nil {
		return
	}
	snap := e.ledger.Snapshot()
	if err := e.store.Save(context.WithoutCancel(ctx), snap); err != nil {
		e.logger.ErrorContext(ctx, "failed to save state", slog.String("error", err.Error()))
	}
}

func (e *Engine) modeLabel() string {
	if e.cfg.DryRun {
		return "DRY RUN"
	}
	return "LIVE"
}

func shortID(id string) string {
	if len(id) > 16 {
		return id[:16]
	}
	return id
}

type nopAlerter struct{}

func (nopAlerter) Alert(string, string, string) {}
