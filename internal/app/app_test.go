package app

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kaelsz/Polymarket-Sniper/internal/config"
	"github.com/Kaelsz/Polymarket-Sniper/internal/domain"
	"github.com/Kaelsz/Polymarket-Sniper/internal/feed"
	"github.com/Kaelsz/Polymarket-Sniper/internal/risk"
	"github.com/Kaelsz/Polymarket-Sniper/internal/store/file"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Defaults()
	cfg.State.Path = filepath.Join(t.TempDir(), "ledger.json")
	cfg.State.SQLitePath = filepath.Join(t.TempDir(), "polysniper.db")
	return &cfg
}

func wireTest(t *testing.T, cfg *config.Config) (*App, *Dependencies) {
	t.Helper()
	a := New(cfg, slog.New(slog.DiscardHandler))
	deps, cleanup, err := Wire(context.Background(), cfg, a.base)
	require.NoError(t, err)
	t.Cleanup(cleanup)
	return a, deps
}

type recordingAlerter struct {
	mu     sync.Mutex
	titles []string
	events []string
}

func (r *recordingAlerter) Alert(event, title, _ string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	r.titles = append(r.titles, title)
}

func TestWireDryRunDefaults(t *testing.T) {
	cfg := testConfig(t)
	_, deps := wireTest(t, cfg)

	assert.NotNil(t, deps.Exchange)
	assert.False(t, deps.Exchange.CanTrade())
	assert.IsType(t, &file.SnapshotStore{}, deps.State)
	assert.Nil(t, deps.Bus)
	assert.Nil(t, deps.Archiver)
	assert.Empty(t, deps.Sinks)
	assert.False(t, deps.Notifier.Enabled())
}

func TestWireStateNone(t *testing.T) {
	cfg := testConfig(t)
	cfg.State.Backend = "none"
	_, deps := wireTest(t, cfg)
	assert.Nil(t, deps.State)
}

func TestWireSQLiteSharesOneStore(t *testing.T) {
	cfg := testConfig(t)
	cfg.State.Backend = "sqlite"
	cfg.Journal.Backend = "sqlite"
	_, deps := wireTest(t, cfg)

	require.Len(t, deps.Sinks, 1)
	assert.Same(t, deps.State, deps.Sinks[0])
}

func TestWireRejectsBadWalletKey(t *testing.T) {
	cfg := testConfig(t)
	cfg.Wallet.PrivateKey = "not-hex"

	_, _, err := Wire(context.Background(), cfg, slog.New(slog.DiscardHandler))
	require.Error(t, err)
}

func TestNeedsRedis(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   bool
	}{
		{"defaults", func(*config.Config) {}, false},
		{"redis state", func(c *config.Config) { c.State.Backend = "redis" }, true},
		{"trade stream", func(c *config.Config) { c.Journal.RedisStream = "fills" }, true},
		{"redis feed in trade mode", func(c *config.Config) {
			c.Feeds.Redis = []config.RedisFeedConfig{{Name: "esports", Channel: "signals:esports"}}
		}, true},
		{"redis feed in monitor mode", func(c *config.Config) {
			c.Mode = "monitor"
			c.Feeds.Redis = []config.RedisFeedConfig{{Name: "esports", Channel: "signals:esports"}}
		}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Defaults()
			tt.mutate(&cfg)
			assert.Equal(t, tt.want, needsRedis(&cfg))
		})
	}
}

func TestBuildEngineRejectsUnknownSizingMode(t *testing.T) {
	cfg := testConfig(t)
	a, deps := wireTest(t, cfg)

	a.cfg.Sizing.Mode = "martingale"
	_, err := a.buildEngine(deps)
	require.Error(t, err)
}

func TestRestoreStateDropsBreakerHalt(t *testing.T) {
	cfg := testConfig(t)
	a, deps := wireTest(t, cfg)

	saved := domain.LedgerSnapshot{
		Version:    domain.SnapshotVersion,
		Timestamp:  time.Now().UTC(),
		SessionPnL: -12.5,
		Halted:     true,
		HaltReason: risk.BreakerHaltReason,
		Positions: []domain.Position{{
			TokenID:     "tok-1",
			ConditionID: "cond-1",
			Group:       "CS2",
			Outcome:     "Team A",
			Amount:      50,
			BuyPrice:    0.6,
			OpenedAt:    time.Now().UTC(),
		}},
	}
	require.NoError(t, deps.State.Save(context.Background(), saved))

	engine, err := a.buildEngine(deps)
	require.NoError(t, err)
	a.restoreState(context.Background(), deps, engine.Ledger())

	ledger := engine.Ledger()
	assert.Equal(t, 1, ledger.OpenCount())
	assert.InDelta(t, -12.5, ledger.SessionPnL(), 1e-9)
	assert.False(t, ledger.Halted())
}

func TestRestoreStateCorruptStartsEmpty(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.WriteFile(cfg.State.Path, []byte("{not json"), 0o600))
	a, deps := wireTest(t, cfg)

	engine, err := a.buildEngine(deps)
	require.NoError(t, err)
	a.restoreState(context.Background(), deps, engine.Ledger())

	assert.Equal(t, 0, engine.Ledger().OpenCount())
	assert.False(t, engine.Ledger().Halted())
}

func TestBreakerHaltsAndResumesLedger(t *testing.T) {
	cfg := testConfig(t)
	a, deps := wireTest(t, cfg)
	ledger := risk.NewLedger(risk.Config{MaxOpenPositions: 10, MaxPerGroup: 4}, a.base)

	brk := a.buildBreaker(deps, ledger)
	brk.Register("ws")

	for range cfg.Breaker.FailureThreshold {
		brk.RecordFailure("ws", "connection reset")
	}
	require.True(t, brk.Halted())
	assert.True(t, ledger.Halted())
	assert.Equal(t, risk.BreakerHaltReason, ledger.HaltReason())

	brk.RecordSuccess("ws")
	assert.False(t, brk.Halted())
	assert.False(t, ledger.Halted())
}

func TestBreakerResumeKeepsSessionLossHalt(t *testing.T) {
	cfg := testConfig(t)
	a, deps := wireTest(t, cfg)
	ledger := risk.NewLedger(risk.Config{MaxOpenPositions: 10, MaxPerGroup: 4}, a.base)
	ledger.Halt("max session loss reached")

	brk := a.buildBreaker(deps, ledger)
	brk.Register("ws")
	for range cfg.Breaker.FailureThreshold {
		brk.RecordFailure("ws", "timeout")
	}
	brk.RecordSuccess("ws")

	assert.False(t, brk.Halted())
	assert.True(t, ledger.Halted())
	assert.Equal(t, "max session loss reached", ledger.HaltReason())
}

func TestAlertingHealthAlertsOnFailure(t *testing.T) {
	cfg := testConfig(t)
	a, deps := wireTest(t, cfg)
	ledger := risk.NewLedger(risk.Config{MaxOpenPositions: 10, MaxPerGroup: 4}, a.base)
	brk := a.buildBreaker(deps, ledger)
	brk.Register("esports")

	alerts := &recordingAlerter{}
	var health feed.Health = &alertingHealth{Breaker: brk, alerter: alerts}
	health.RecordFailure("esports", "eof")
	health.RecordHeartbeat("esports")

	h, ok := brk.Health("esports")
	require.True(t, ok)
	assert.Equal(t, 1, h.ConsecutiveFailures)
	assert.Equal(t, []string{domain.EventSourceDown}, alerts.events)
	assert.Equal(t, []string{"Source Disconnected"}, alerts.titles)
}

func TestBuildSources(t *testing.T) {
	cfg := testConfig(t)
	cfg.Feeds.Redis = []config.RedisFeedConfig{{Name: "esports", Channel: "signals:esports"}}
	cfg.Feeds.WebSocket = []config.WSFeedConfig{{
		Name:    "scanner",
		URL:     "ws://127.0.0.1:9/signals",
		Headers: map[string]string{"Authorization": "Bearer x"},
	}}
	a := New(cfg, slog.New(slog.DiscardHandler))

	sources := a.buildSources(&Dependencies{})
	require.Len(t, sources, 2)
	assert.Equal(t, "esports", sources[0].Name())
	assert.Equal(t, "scanner", sources[1].Name())
}

func TestMonitorModeStopsOnCancel(t *testing.T) {
	cfg := testConfig(t)
	cfg.Mode = "monitor"
	a, deps := wireTest(t, cfg)
	engine, err := a.buildEngine(deps)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.MonitorMode(ctx, deps, engine) }()

	cancel()
	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("monitor mode did not stop")
	}

	_, err = deps.State.Load(context.Background())
	require.NoError(t, err, "ledger persisted on exit")
}
