package risk

import (
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kaelsz/Polymarket-Sniper/internal/domain"
)

func testConfig() Config {
	return Config{
		MaxOpenPositions: 10,
		MaxPerGroup:      4,
		MaxExposure:      500,
		MaxSessionLoss:   200,
		Cooldown:         30 * time.Second,
		DedupWindow:      300 * time.Second,
	}
}

func newTestLedger(cfg Config) (*Ledger, *time.Time) {
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l := NewLedger(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	l.now = func() time.Time { return clock }
	return l, &clock
}

func pos(token, market, group string, amount, price float64) domain.Position {
	return domain.Position{
		TokenID:     token,
		ConditionID: market,
		Group:       group,
		Outcome:     "team-" + token,
		Amount:      amount,
		BuyPrice:    price,
	}
}

func check(l *Ledger, p domain.Position) domain.RiskDecision {
	return l.PreTradeCheck(p.TokenID, p.Group, p.Outcome, p.ConditionID, p.Amount, p.BuyPrice)
}

func TestClosePositionWithPnL(t *testing.T) {
	tests := []struct {
		name      string
		feeRate   float64
		price     float64
		exit      float64
		applyFees bool
		want      float64
	}{
		{name: "win without fee", feeRate: 0, price: 0.50, exit: 1.0, applyFees: true, want: 50},
		{name: "win with fee", feeRate: 0.02, price: 0.50, exit: 1.0, applyFees: true, want: 49},
		{name: "loss ignores fee", feeRate: 0.02, price: 0.60, exit: 0.0, applyFees: true, want: -50},
		{name: "loss without fee", feeRate: 0, price: 0.60, exit: 0.0, applyFees: true, want: -50},
		{name: "profitable early exit has no fee", feeRate: 0.02, price: 0.50, exit: 0.75, applyFees: false, want: 25},
		{name: "stop-loss exit", feeRate: 0.02, price: 0.60, exit: 0.25, applyFees: false, want: 50/0.60*0.25 - 50},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.FeeRate = tt.feeRate
			l, _ := newTestLedger(cfg)
			l.RecordTrade(pos("T", "M", "lol", 50, tt.price))

			pnl, ok := l.ClosePositionWithPnL("T", tt.exit, tt.applyFees)
			require.True(t, ok)
			assert.InDelta(t, tt.want, pnl, 1e-9)
			assert.InDelta(t, tt.want, l.SessionPnL(), 1e-9)
			assert.Zero(t, l.OpenCount())
		})
	}
}

func TestCloseUnknownPositionIsNoop(t *testing.T) {
	l, _ := newTestLedger(testConfig())
	pnl, ok := l.ClosePositionWithPnL("missing", 1.0, true)
	assert.False(t, ok)
	assert.Zero(t, pnl)
	assert.Zero(t, l.SessionPnL())
}

func TestStopLossScenario(t *testing.T) {
	cfg := testConfig()
	cfg.FeeRate = 0.02
	l, _ := newTestLedger(cfg)
	l.RecordTrade(pos("T", "M", "cs2", 50, 0.60))

	pnl, ok := l.ClosePositionWithPnL("T", 0.25, false)
	require.True(t, ok)
	assert.InDelta(t, -29.17, pnl, 0.005)
}

func TestSessionLossHaltsAndStaysHalted(t *testing.T) {
	cfg := testConfig()
	cfg.MaxSessionLoss = 40
	l, _ := newTestLedger(cfg)
	l.RecordTrade(pos("T", "M", "lol", 50, 0.60))

	pnl, ok := l.ClosePositionWithPnL("T", 0.0, true)
	require.True(t, ok)
	assert.InDelta(t, -50, pnl, 1e-9)
	assert.True(t, l.Halted())
	assert.Contains(t, l.HaltReason(), "session loss limit hit")

	for i := 0; i < 5; i++ {
		d := check(l, pos(fmt.Sprintf("other-%d", i), fmt.Sprintf("mkt-%d", i), "dota2", 10, 0.5))
		assert.True(t, d.Vetoed)
		assert.Contains(t, d.Reason, "trading halted")
	}

	l.Resume()
	assert.False(t, l.Halted())
	d := check(l, pos("fresh", "fresh-mkt", "dota2", 10, 0.5))
	assert.True(t, d.Vetoed, "session loss check still vetoes after resume while pnl is below the limit")
	assert.Contains(t, d.Reason, "session loss limit")
}

func TestPnLAtExactLimitHalts(t *testing.T) {
	cfg := testConfig()
	cfg.MaxSessionLoss = 50
	l, _ := newTestLedger(cfg)
	l.RecordPnL(-50)
	assert.True(t, l.Halted())
}

func TestPreTradeCheckOrder(t *testing.T) {
	cfg := testConfig()
	cfg.MaxOpenPositions = 1
	l, _ := newTestLedger(cfg)
	l.RecordTrade(pos("T", "M", "lol", 50, 0.5))
	l.Halt("manual")

	// Halt beats duplicate.
	d := check(l, pos("T", "M", "lol", 50, 0.5))
	assert.Equal(t, "trading halted: manual", d.Reason)

	l.Resume()
	// Duplicate beats position limit.
	d = check(l, pos("T", "M", "lol", 50, 0.5))
	assert.Contains(t, d.Reason, "already holding position on token")

	d = check(l, pos("T2", "M", "lol", 50, 0.5))
	assert.Contains(t, d.Reason, "already holding position on market")

	// Cooldown beats position limit: the market was touched a moment ago.
	_, ok := l.ClosePositionWithPnL("T", 1.0, true)
	require.True(t, ok)
	d = check(l, pos("T3", "M", "lol", 50, 0.5))
	assert.Contains(t, d.Reason, "market cooldown active")
}

func TestDedupWindowOutlivesPosition(t *testing.T) {
	cfg := testConfig()
	cfg.Cooldown = time.Second
	l, clock := newTestLedger(cfg)
	p := pos("T", "M", "lol", 50, 0.5)
	l.RecordTrade(p)
	_, ok := l.ClosePositionWithPnL("T", 1.0, true)
	require.True(t, ok)

	*clock = clock.Add(10 * time.Second)
	d := check(l, p)
	assert.True(t, d.Vetoed)
	assert.Contains(t, d.Reason, "duplicate trade blocked")

	// Key is case-insensitive.
	upper := p
	upper.Outcome = "TEAM-T"
	assert.True(t, check(l, upper).Vetoed)

	*clock = clock.Add(300 * time.Second)
	assert.False(t, check(l, p).Vetoed)
}

func TestCooldownBlocksDifferentToken(t *testing.T) {
	l, clock := newTestLedger(testConfig())
	l.RecordTrade(pos("YES", "M", "lol", 50, 0.5))
	_, _ = l.ClosePositionWithPnL("YES", 0.0, true)

	*clock = clock.Add(10 * time.Second)
	d := check(l, pos("NO", "M", "lol", 50, 0.5))
	assert.Contains(t, d.Reason, "market cooldown active")

	*clock = clock.Add(25 * time.Second)
	assert.False(t, check(l, pos("NO", "M", "lol", 50, 0.5)).Vetoed)
}

func TestCooldownSkippedWithoutMarket(t *testing.T) {
	cfg := testConfig()
	cfg.DedupWindow = time.Second
	l, clock := newTestLedger(cfg)
	l.RecordTrade(pos("A", "", "lol", 10, 0.5))
	_, _ = l.ClosePositionWithPnL("A", 1.0, true)
	*clock = clock.Add(2 * time.Second)
	assert.False(t, check(l, pos("B", "", "lol", 10, 0.5)).Vetoed)
}

func TestPositionLimits(t *testing.T) {
	cfg := testConfig()
	cfg.MaxOpenPositions = 3
	cfg.MaxPerGroup = 2
	l, _ := newTestLedger(cfg)
	l.RecordTrade(pos("a", "m-a", "lol", 10, 0.5))
	l.RecordTrade(pos("b", "m-b", "lol", 10, 0.5))

	d := check(l, pos("c", "m-c", "lol", 10, 0.5))
	assert.Equal(t, "max positions for lol reached (2/2)", d.Reason)

	assert.False(t, check(l, pos("c", "m-c", "cs2", 10, 0.5)).Vetoed)
	l.RecordTrade(pos("c", "m-c", "cs2", 10, 0.5))

	d = check(l, pos("d", "m-d", "valorant", 10, 0.5))
	assert.Equal(t, "max open positions reached (3/3)", d.Reason)
}

func TestExposureCap(t *testing.T) {
	cfg := testConfig()
	cfg.MaxExposure = 100
	l, _ := newTestLedger(cfg)
	l.RecordTrade(pos("a", "m-a", "lol", 60, 0.5))

	assert.False(t, check(l, pos("b", "m-b", "cs2", 40, 0.5)).Vetoed, "projected exposure equal to the cap is allowed")
	d := check(l, pos("b", "m-b", "cs2", 40.01, 0.5))
	assert.Equal(t, "exposure cap exceeded ($100.01 > $100.00)", d.Reason)
	assert.InDelta(t, 60, l.Exposure(), 1e-9)
}

func TestExposureInvariantUnderCheckedCommits(t *testing.T) {
	cfg := testConfig()
	cfg.MaxExposure = 175
	cfg.MaxOpenPositions = 100
	cfg.MaxPerGroup = 100
	l, _ := newTestLedger(cfg)

	for i := 0; i < 20; i++ {
		p := pos(fmt.Sprintf("t%d", i), fmt.Sprintf("m%d", i), "g", 25, 0.5)
		if check(l, p).Allowed() {
			l.RecordTrade(p)
		}
		assert.LessOrEqual(t, l.Exposure(), cfg.MaxExposure)
	}
	assert.Equal(t, 7, l.OpenCount())
}

func TestHaltKeepsFirstReason(t *testing.T) {
	l, _ := newTestLedger(testConfig())
	l.Halt("first")
	l.Halt("second")
	assert.Equal(t, "first", l.HaltReason())
}

func TestResumeBreakerHaltOnlyClearsBreakerHalts(t *testing.T) {
	l, _ := newTestLedger(testConfig())

	l.Halt(BreakerHaltReason)
	assert.True(t, l.ResumeBreakerHalt())
	assert.False(t, l.Halted())

	l.Halt("session loss limit hit: $-250.00")
	assert.False(t, l.ResumeBreakerHalt())
	assert.True(t, l.Halted())
}

func TestStatus(t *testing.T) {
	l, _ := newTestLedger(testConfig())
	l.RecordTrade(pos("a", "m-a", "lol", 30, 0.5))
	l.RecordTrade(pos("b", "m-b", "lol", 20, 0.5))
	l.RecordPnL(-5)

	s := l.Status()
	assert.Equal(t, 2, s.OpenPositions)
	assert.InDelta(t, 50, s.Exposure, 1e-9)
	assert.InDelta(t, -5, s.SessionPnL, 1e-9)
	assert.False(t, s.Halted)

	positions := l.Positions()
	require.Len(t, positions, 2)
	assert.Equal(t, "a", positions[0].TokenID)
	positions[0].Amount = 1000
	assert.InDelta(t, 50, l.Exposure(), 1e-9, "Positions returns a copy")
}
