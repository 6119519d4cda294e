package engine

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"straddle-runner/internal/broker"
	"straddle-runner/internal/models"
	"straddle-runner/pkg/utils"
)

// fakeMarket serves a settable spot and per-strike option quotes.
type fakeMarket struct {
	spot     float64
	spotErr  error
	quotes   map[string]float64 // "19750CE" -> LTP
	quoteErr error
}

func (f *fakeMarket) GetSpot(ctx context.Context) (float64, error) {
	if f.spotErr != nil {
		return 0, f.spotErr
	}
	return f.spot, nil
}

func (f *fakeMarket) GetOptionQuote(ctx context.Context, strike float64, optType models.OptionType, expiry time.Time) (*models.Quote, error) {
	if f.quoteErr != nil {
		return nil, f.quoteErr
	}
	key := quoteKey(strike, optType)
	ltp, ok := f.quotes[key]
	if !ok {
		return nil, errors.New("no quote for " + key)
	}
	return &models.Quote{Symbol: "NIFTY25SEP" + key, LTP: ltp, Timestamp: time.Now()}, nil
}

func quoteKey(strike float64, optType models.OptionType) string {
	return strconv.Itoa(int(strike)) + string(optType)
}

// fakeOrders records leg orders and can be told to fail.
type fakeOrders struct {
	placed   [][]broker.LegOrder
	closed   [][]broker.LegOrder
	attempts int
	failAll  bool
}

func (f *fakeOrders) Place(ctx context.Context, legs []broker.LegOrder) (*broker.Fill, error) {
	f.attempts++
	if f.failAll {
		return nil, errors.New("order rejected")
	}
	f.placed = append(f.placed, legs)
	return &broker.Fill{Status: "COMPLETE"}, nil
}

func (f *fakeOrders) Close(ctx context.Context, legs []broker.LegOrder) (*broker.Fill, error) {
	if f.failAll {
		return nil, errors.New("order rejected")
	}
	f.closed = append(f.closed, legs)
	return &broker.Fill{Status: "COMPLETE"}, nil
}

// fakeEvents keeps the three streams in memory.
type fakeEvents struct {
	spots    []models.SpotSample
	triggers []models.TriggerEvent
	trades   []models.TradeRecord
}

func (f *fakeEvents) AppendSpot(s models.SpotSample) error { f.spots = append(f.spots, s); return nil }

func (f *fakeEvents) AppendTrigger(e models.TriggerEvent) error {
	f.triggers = append(f.triggers, e)
	return nil
}

func (f *fakeEvents) AppendTrade(r models.TradeRecord) error { f.trades = append(f.trades, r); return nil }

func (f *fakeEvents) ReadTrades() ([]models.TradeRecord, error) { return f.trades, nil }

type fakeStatus struct {
	last models.StrategyStatus
	puts int
}

func (f *fakeStatus) PutStatus(ctx context.Context, s models.StrategyStatus) error {
	f.last = s
	f.puts++
	return nil
}

func testStrategy() models.StrategyConfig {
	return models.StrategyConfig{
		ID:                   "s1",
		Name:                 "nifty-straddle",
		EntryThreshold:       200,
		ExitProfit:           3000,
		ExitMove:             100,
		StrikeOffset:         50,
		InitialTriggerGap:    50,
		SubsequentTriggerGap: 50,
		Expiry:               time.Date(2026, 9, 24, 0, 0, 0, 0, time.UTC),
		CutoffTime:           "15:00",
		RearmPolicy:          models.RearmHold,
		Enabled:              true,
	}
}

// testHarness wires an engine against fakes with a controllable clock.
type testHarness struct {
	engine *Engine
	market *fakeMarket
	orders *fakeOrders
	events *fakeEvents
	status *fakeStatus
	now    time.Time
}

func newHarness(t *testing.T, sc models.StrategyConfig) *testHarness {
	t.Helper()

	h := &testHarness{
		market: &fakeMarket{quotes: map[string]float64{}},
		orders: &fakeOrders{},
		events: &fakeEvents{},
		status: &fakeStatus{},
		now:    time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC),
	}

	eng, err := New(Config{
		Strategy:     sc,
		Market:       h.market,
		Orders:       h.orders,
		Events:       h.events,
		Status:       h.status,
		Logger:       zerolog.Nop(),
		LotSize:      75,
		DataTimeout:  time.Second,
		OrderTimeout: time.Second,
		OrderRetry: utils.RetryConfig{
			MaxAttempts:   1,
			InitialDelay:  time.Millisecond,
			MaxDelay:      time.Millisecond,
			BackoffFactor: 1,
		},
		Clock: func() time.Time { return h.now },
	})
	if err != nil {
		t.Fatalf("engine construction failed: %v", err)
	}
	h.engine = eng
	return h
}

func (h *testHarness) setQuotes(level, ce, pe float64) {
	h.market.quotes[quoteKey(level+50, models.OptionCall)] = ce
	h.market.quotes[quoteKey(level-50, models.OptionPut)] = pe
}

func TestEngineEntryOnTrigger(t *testing.T) {
	h := newHarness(t, testStrategy())
	ctx := context.Background()

	h.market.spot = 19660
	if err := h.engine.Init(ctx); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	// Armed pair after activation: down 19650, up 19700.
	up, _, down, _ := h.engine.ladder.Armed()
	if up != 19700 || down != 19650 {
		t.Fatalf("armed pair = (%.0f, %.0f), want (19700, 19650)", up, down)
	}

	// Spot crosses the up level; legs priced above the entry threshold.
	h.market.spot = 19710
	h.setQuotes(19700, 120, 110)
	h.engine.Tick(ctx)

	if !h.engine.pos.IsOpen() {
		t.Fatal("expected an open position after trigger hit")
	}
	pos := h.engine.pos.Position()
	if pos.Level != 19700 {
		t.Fatalf("position level = %.0f, want 19700", pos.Level)
	}
	if pos.EntryCE != 120 || pos.EntryPE != 110 {
		t.Fatalf("entry premiums = (%.0f, %.0f), want (120, 110)", pos.EntryCE, pos.EntryPE)
	}

	if len(h.orders.placed) != 1 {
		t.Fatalf("expected 1 order placement, got %d", len(h.orders.placed))
	}
	for _, leg := range h.orders.placed[0] {
		if leg.Side != models.OrderSideSell {
			t.Fatalf("entry leg side = %s, want SELL", leg.Side)
		}
		if leg.Quantity != 75 {
			t.Fatalf("entry leg quantity = %d, want 75", leg.Quantity)
		}
	}

	if len(h.events.trades) != 1 || h.events.trades[0].Action != models.TradeEntry {
		t.Fatal("expected exactly one entry trade record")
	}
	if len(h.events.spots) != 1 {
		t.Fatalf("expected 1 spot sample, got %d", len(h.events.spots))
	}
	if !h.engine.ladder.IsConsumed(19700) {
		t.Fatal("consumed level must be marked used")
	}
}

func TestEngineNoEntryBelowThreshold(t *testing.T) {
	h := newHarness(t, testStrategy())
	ctx := context.Background()

	h.market.spot = 19660
	if err := h.engine.Init(ctx); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	h.market.spot = 19710
	h.setQuotes(19700, 90, 80) // sum 170 < 200
	h.engine.Tick(ctx)

	if h.engine.pos.IsOpen() {
		t.Fatal("no position should open below the entry threshold")
	}
	if len(h.orders.placed) != 0 {
		t.Fatal("no order should be placed below the entry threshold")
	}
	if h.engine.ladder.IsConsumed(19700) {
		t.Fatal("level must stay armed when entry is skipped")
	}

	// Premiums rise; the still-armed level enters on a later tick.
	h.setQuotes(19700, 120, 110)
	h.engine.Tick(ctx)
	if !h.engine.pos.IsOpen() {
		t.Fatal("expected entry once premiums reach the threshold")
	}
}

func TestEngineExitOnProfitTarget(t *testing.T) {
	h := newHarness(t, testStrategy())
	ctx := context.Background()

	h.market.spot = 19660
	if err := h.engine.Init(ctx); err != nil {
		t.Fatalf("init failed: %v", err)
	}
	h.market.spot = 19710
	h.setQuotes(19700, 120, 110)
	h.engine.Tick(ctx)
	if !h.engine.pos.IsOpen() {
		t.Fatal("setup: expected an open position")
	}

	// Premium decays: (230 - 185) * 75 = 3375 >= 3000.
	h.market.spot = 19705
	h.setQuotes(19700, 100, 85)
	h.engine.Tick(ctx)

	if h.engine.pos.IsOpen() {
		t.Fatal("position should be closed at the profit target")
	}
	if len(h.orders.closed) != 1 {
		t.Fatalf("expected 1 closing order, got %d", len(h.orders.closed))
	}
	for _, leg := range h.orders.closed[0] {
		if leg.Side != models.OrderSideBuy {
			t.Fatalf("exit leg side = %s, want BUY", leg.Side)
		}
	}

	exit := h.events.trades[len(h.events.trades)-1]
	if exit.Action != models.TradeExit || exit.Reason != models.ExitProfitTarget {
		t.Fatalf("exit record = (%s, %s), want (exit, profit_target)", exit.Action, exit.Reason)
	}
	if exit.PnL != 3375 {
		t.Fatalf("exit pnl = %.2f, want 3375", exit.PnL)
	}

	// Ladder re-anchors at the exit spot so the strategy stays eligible.
	_, hasUp, _, hasDown := h.engine.ladder.Armed()
	if !hasUp || !hasDown {
		t.Fatal("ladder must be re-armed after an exit")
	}
}

func TestEngineExitOnStopMove(t *testing.T) {
	h := newHarness(t, testStrategy())
	ctx := context.Background()

	h.market.spot = 19660
	if err := h.engine.Init(ctx); err != nil {
		t.Fatalf("init failed: %v", err)
	}
	h.market.spot = 19710
	h.setQuotes(19700, 120, 110)
	h.engine.Tick(ctx)

	// Spot runs 110 points against entry; premium expands so no profit exit.
	h.market.spot = 19820
	h.setQuotes(19700, 200, 40)
	h.engine.Tick(ctx)

	if h.engine.pos.IsOpen() {
		t.Fatal("position should be closed on adverse spot move")
	}
	exit := h.events.trades[len(h.events.trades)-1]
	if exit.Reason != models.ExitStopMove {
		t.Fatalf("exit reason = %s, want stop_move", exit.Reason)
	}
}

func TestEngineCutoffBlocksEntryAndClosesOpen(t *testing.T) {
	h := newHarness(t, testStrategy())
	ctx := context.Background()

	h.market.spot = 19660
	if err := h.engine.Init(ctx); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	// Flat past cutoff: triggers are not even evaluated.
	h.now = time.Date(2026, 8, 31, 15, 10, 0, 0, time.UTC)
	h.market.spot = 19710
	h.setQuotes(19700, 120, 110)
	h.engine.Tick(ctx)
	if h.engine.pos.IsOpen() || len(h.orders.placed) != 0 {
		t.Fatal("no entry may happen past the cutoff")
	}
	if h.engine.ladder.IsConsumed(19700) {
		t.Fatal("no level may be consumed past the cutoff")
	}

	// Open before cutoff, then cross it: position is force-closed.
	h2 := newHarness(t, testStrategy())
	h2.market.spot = 19660
	if err := h2.engine.Init(ctx); err != nil {
		t.Fatalf("init failed: %v", err)
	}
	h2.market.spot = 19710
	h2.setQuotes(19700, 120, 110)
	h2.engine.Tick(ctx)
	if !h2.engine.pos.IsOpen() {
		t.Fatal("setup: expected an open position")
	}

	h2.now = time.Date(2026, 8, 31, 15, 10, 0, 0, time.UTC)
	h2.market.spot = 19712
	h2.setQuotes(19700, 118, 108) // neither profit nor move exit applies
	h2.engine.Tick(ctx)

	if h2.engine.pos.IsOpen() {
		t.Fatal("open position must be closed at the cutoff")
	}
	exit := h2.events.trades[len(h2.events.trades)-1]
	if exit.Reason != models.ExitCutoffTime {
		t.Fatalf("exit reason = %s, want cutoff_time", exit.Reason)
	}
}

func TestEngineExitPriority(t *testing.T) {
	h := newHarness(t, testStrategy())
	ctx := context.Background()

	h.market.spot = 19660
	if err := h.engine.Init(ctx); err != nil {
		t.Fatalf("init failed: %v", err)
	}
	h.market.spot = 19710
	h.setQuotes(19700, 120, 110)
	h.engine.Tick(ctx)

	// Profit target, stop move, and cutoff all hold at once; profit wins.
	h.now = time.Date(2026, 8, 31, 15, 10, 0, 0, time.UTC)
	h.market.spot = 19850
	h.setQuotes(19700, 100, 85)
	h.engine.Tick(ctx)

	exit := h.events.trades[len(h.events.trades)-1]
	if exit.Reason != models.ExitProfitTarget {
		t.Fatalf("exit reason = %s, want profit_target", exit.Reason)
	}
}

func TestEngineOrderFailureLeavesStateUntouched(t *testing.T) {
	h := newHarness(t, testStrategy())
	ctx := context.Background()

	h.market.spot = 19660
	if err := h.engine.Init(ctx); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	h.orders.failAll = true
	h.market.spot = 19710
	h.setQuotes(19700, 120, 110)
	h.engine.Tick(ctx)

	if h.engine.pos.IsOpen() {
		t.Fatal("failed order must not open a position")
	}
	if h.engine.ladder.IsConsumed(19700) {
		t.Fatal("failed order must not consume the level")
	}
	if len(h.events.trades) != 0 {
		t.Fatal("failed order must not journal a trade")
	}
	if h.status.last.LastError == "" {
		t.Fatal("order failure must surface in the status snapshot")
	}

	// Broker recovers; the same armed level fires on the next tick.
	h.orders.failAll = false
	h.engine.Tick(ctx)
	if !h.engine.pos.IsOpen() {
		t.Fatal("expected entry once the broker recovers")
	}
}

func TestEngineRetriesArmedLevelWhileBrokerDown(t *testing.T) {
	sc := testStrategy()
	sc.RearmPolicy = "" // defaulted to hold by the engine

	h := newHarness(t, sc)
	ctx := context.Background()

	h.market.spot = 19660
	if err := h.engine.Init(ctx); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	// Spot sits beyond the armed level while the broker rejects everything.
	h.orders.failAll = true
	h.market.spot = 19710
	h.setQuotes(19700, 120, 110)
	for i := 0; i < 5; i++ {
		h.engine.Tick(ctx)
	}

	if h.orders.attempts != 5 {
		t.Fatalf("entry attempts = %d, want one per tick (5)", h.orders.attempts)
	}
	if h.engine.pos.IsOpen() {
		t.Fatal("no position may open while the broker is down")
	}
	if h.engine.ladder.IsConsumed(19700) {
		t.Fatal("the level must stay armed across failed attempts")
	}

	// Broker recovers with spot unchanged; the same level finally enters.
	h.orders.failAll = false
	h.engine.Tick(ctx)
	if !h.engine.pos.IsOpen() {
		t.Fatal("expected entry on the first tick after the broker recovered")
	}
	if h.engine.pos.Position().Level != 19700 {
		t.Fatalf("entry level = %.0f, want 19700", h.engine.pos.Position().Level)
	}
}

func TestEngineStatusKeepsLastGoodValuesOnDataFailure(t *testing.T) {
	h := newHarness(t, testStrategy())
	ctx := context.Background()

	h.market.spot = 19660
	if err := h.engine.Init(ctx); err != nil {
		t.Fatalf("init failed: %v", err)
	}
	h.market.spot = 19710
	h.setQuotes(19700, 120, 110)
	h.engine.Tick(ctx)
	if !h.engine.pos.IsOpen() {
		t.Fatal("setup: expected an open position")
	}

	// A marked tick establishes the last good snapshot values.
	h.market.spot = 19705
	h.setQuotes(19700, 110, 100)
	h.engine.Tick(ctx)
	if h.status.last.LastSpot != 19705 {
		t.Fatalf("snapshot spot = %.0f, want 19705", h.status.last.LastSpot)
	}
	wantPnL := (230.0 - 210.0) * 75
	if h.status.last.UnrealizedPnL != wantPnL {
		t.Fatalf("snapshot pnl = %.2f, want %.2f", h.status.last.UnrealizedPnL, wantPnL)
	}

	// Spot feed drops: the snapshot keeps the stale spot and P&L.
	h.market.spotErr = errors.New("exchange feed down")
	h.engine.Tick(ctx)
	if h.status.last.LastSpot != 19705 || h.status.last.UnrealizedPnL != wantPnL {
		t.Fatalf("snapshot after spot failure = (%.0f, %.2f), want last good (19705, %.2f)",
			h.status.last.LastSpot, h.status.last.UnrealizedPnL, wantPnL)
	}
	if h.status.last.LastError == "" {
		t.Fatal("spot failure must surface in the snapshot")
	}

	// Quotes drop with spot alive: the stale mark is preserved too.
	h.market.spotErr = nil
	h.market.quoteErr = errors.New("quote feed down")
	h.market.spot = 19708
	h.engine.Tick(ctx)
	if h.status.last.LastSpot != 19708 {
		t.Fatalf("snapshot spot = %.0f, want 19708", h.status.last.LastSpot)
	}
	if h.status.last.UnrealizedPnL != wantPnL {
		t.Fatalf("snapshot pnl after quote failure = %.2f, want stale %.2f",
			h.status.last.UnrealizedPnL, wantPnL)
	}
}

func TestEngineSpotFailureSkipsTick(t *testing.T) {
	h := newHarness(t, testStrategy())
	ctx := context.Background()

	h.market.spot = 19660
	if err := h.engine.Init(ctx); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	h.market.spotErr = errors.New("exchange feed down")
	h.engine.Tick(ctx)

	if len(h.events.spots) != 0 {
		t.Fatal("no spot sample may be journaled when the fetch fails")
	}
	if h.status.puts != 1 {
		t.Fatal("status snapshot must still be written on a skipped tick")
	}
	if h.status.last.LastError == "" {
		t.Fatal("skipped tick must surface the data error")
	}
}

func TestEngineRecoversOpenPosition(t *testing.T) {
	entryTime := time.Date(2026, 8, 31, 9, 45, 0, 0, time.UTC)

	// A previous run entered at 19700 and never exited.
	trades := []models.TradeRecord{
		models.TradeRecord{
			Timestamp: entryTime, Action: models.TradeEntry, Level: 19600, Spot: 19595,
			CEPrice: 130, PEPrice: 115, EntryTime: entryTime.Add(-time.Hour),
		},
		models.TradeRecord{
			Timestamp: entryTime, Action: models.TradeExit, Level: 19600, Spot: 19640,
			CEPrice: 110, PEPrice: 100, EntryTime: entryTime.Add(-time.Hour), Reason: models.ExitProfitTarget,
		},
		models.TradeRecord{
			Timestamp: entryTime, Action: models.TradeEntry, Level: 19700, Spot: 19705,
			CESymbol: "NIFTY25SEP19750CE", PESymbol: "NIFTY25SEP19650PE",
			CEPrice: 120, PEPrice: 110, EntryTime: entryTime,
		},
	}

	h := newHarness(t, testStrategy())
	h.events.trades = trades
	h.market.spot = 19710

	if err := h.engine.Init(context.Background()); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	if !h.engine.pos.IsOpen() {
		t.Fatal("expected the unmatched entry to be recovered")
	}
	pos := h.engine.pos.Position()
	if pos.Level != 19700 || pos.EntryCE != 120 || pos.EntryPE != 110 {
		t.Fatalf("recovered position = %+v, want level 19700 legs (120, 110)", pos)
	}
	if pos.EntryTime != entryTime {
		t.Fatal("recovered position must carry the original entry time")
	}
}

func TestEngineRejectsInvalidConfig(t *testing.T) {
	sc := testStrategy()
	sc.EntryThreshold = -5

	_, err := New(Config{
		Strategy: sc,
		Market:   &fakeMarket{},
		Orders:   &fakeOrders{},
		Events:   &fakeEvents{},
		Status:   &fakeStatus{},
		Logger:   zerolog.Nop(),
	})
	if err == nil {
		t.Fatal("expected construction to fail for invalid config")
	}
}
