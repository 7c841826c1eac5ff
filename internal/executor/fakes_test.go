package executor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/Kaelsz/Polymarket-Sniper/internal/domain"
	"github.com/Kaelsz/Polymarket-Sniper/internal/risk"
	"github.com/Kaelsz/Polymarket-Sniper/internal/sizing"
)

var errBoom = errors.New("boom")

type fakeExchange struct {
	mu          sync.Mutex
	asks        map[string]float64
	askErr      error
	resolutions map[string]domain.MarketResolution
	resErr      error
	buyErr      error
	sellErr     error
	buyDelay    time.Duration

	askCalls  int
	buys      []string
	sells     map[string]float64
	resCalls  int
	buyCtxErr error
}

func newFakeExchange() *fakeExchange {
	return &fakeExchange{
		asks:        make(map[string]float64),
		resolutions: make(map[string]domain.MarketResolution),
		sells:       make(map[string]float64),
	}
}

func (f *fakeExchange) setAsk(token string, price float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.asks[token] = price
}

func (f *fakeExchange) BestAsk(_ context.Context, tokenID string) (float64, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.askCalls++
	if f.askErr != nil {
		return 0, false, f.askErr
	}
	p, ok := f.asks[tokenID]
	return p, ok, nil
}

func (f *fakeExchange) MarketBuy(ctx context.Context, tokenID string, amount float64) (*domain.OrderReceipt, error) {
	f.mu.Lock()
	delay, err := f.buyDelay, f.buyErr
	f.buys = append(f.buys, tokenID)
	f.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	f.mu.Lock()
	f.buyCtxErr = ctx.Err()
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return &domain.OrderReceipt{OrderID: "order-" + tokenID, TokenID: tokenID, Side: domain.OrderSideBuy, Amount: amount}, nil
}

func (f *fakeExchange) MarketSell(_ context.Context, tokenID string, shares float64) (*domain.OrderReceipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sellErr != nil {
		return nil, f.sellErr
	}
	f.sells[tokenID] = shares
	return &domain.OrderReceipt{OrderID: "sell-" + tokenID, TokenID: tokenID, Side: domain.OrderSideSell, Amount: shares}, nil
}

func (f *fakeExchange) Resolution(_ context.Context, conditionID string) (domain.MarketResolution, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resCalls++
	if f.resErr != nil {
		return domain.MarketResolution{}, false, f.resErr
	}
	r, ok := f.resolutions[conditionID]
	return r, ok, nil
}

func (f *fakeExchange) Balance(context.Context) (float64, error) { return 1000, nil }

func (f *fakeExchange) buyCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.buys)
}

func (f *fakeExchange) askCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.askCalls
}

type alert struct {
	event, title, message string
}

type fakeAlerter struct {
	mu     sync.Mutex
	alerts []alert
}

func (f *fakeAlerter) Alert(event, title, message string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alerts = append(f.alerts, alert{event, title, message})
}

func (f *fakeAlerter) events() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.alerts))
	for i, a := range f.alerts {
		out[i] = a.event
	}
	return out
}

func (f *fakeAlerter) last() alert {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.alerts) == 0 {
		return alert{}
	}
	return f.alerts[len(f.alerts)-1]
}

type memStore struct {
	mu    sync.Mutex
	snap  *domain.LedgerSnapshot
	saves int
	err   error
}

func (m *memStore) Save(_ context.Context, snap domain.LedgerSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	if m.err != nil {
		return m.err
	}
	m.snap = &snap
	return nil
}

func (m *memStore) Load(context.Context) (domain.LedgerSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.snap == nil {
		return domain.LedgerSnapshot{}, domain.ErrNotFound
	}
	return *m.snap, nil
}

func (m *memStore) saveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

type recordingSink struct {
	mu   sync.Mutex
	recs []domain.TradeRecord
}

func (r *recordingSink) Append(_ context.Context, rec domain.TradeRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recs = append(r.recs, rec)
	return nil
}

type haltFlag struct {
	mu     sync.Mutex
	halted bool
}

func (h *haltFlag) Halted() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.halted
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testLedgerConfig() risk.Config {
	return risk.Config{
		MaxOpenPositions: 10,
		MaxPerGroup:      4,
		MaxExposure:      500,
		MaxSessionLoss:   200,
		Cooldown:         30 * time.Second,
		DedupWindow:      300 * time.Second,
		FeeRate:          0.02,
	}
}

func testEngineConfig() Config {
	return Config{
		MaxBuyPrice:   0.85,
		DryRun:        true,
		OrderTimeout:  time.Second,
		StopLoss:      0.5,
		WinThreshold:  0.95,
		LossThreshold: 0.05,
	}
}

type harness struct {
	engine   *Engine
	ledger   *risk.Ledger
	exchange *fakeExchange
	alerter  *fakeAlerter
	store    *memStore
}

func newHarness(cfg Config, lcfg risk.Config) *harness {
	logger := discardLogger()
	ledger := risk.NewLedger(lcfg, logger)
	ex := newFakeExchange()
	sizer := sizing.New(sizing.Config{Mode: sizing.ModeFixed, BaseSize: 50, MinOrder: 10, MaxOrder: 200}, logger)
	e := NewEngine(cfg, ledger, ex, sizer, logger)
	al := &fakeAlerter{}
	st := &memStore{}
	e.SetAlerter(al)
	e.SetStore(st)
	return &harness{engine: e, ledger: ledger, exchange: ex, alerter: al, store: st}
}

func signal(token, market string) domain.Signal {
	return domain.Signal{
		ID:          "sig-" + token,
		Source:      "lol",
		TokenID:     token,
		ConditionID: market,
		Group:       "lol",
		Outcome:     "T1",
		Question:    "Will T1 win?",
		Confidence:  100,
	}
}
