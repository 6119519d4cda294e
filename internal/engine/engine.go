package engine

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"straddle-runner/internal/broker"
	apperrors "straddle-runner/internal/errors"
	"straddle-runner/internal/logging"
	"straddle-runner/internal/models"
	"straddle-runner/internal/notify"
	"straddle-runner/pkg/utils"
)

// EventLog is the append-only audit trail for one strategy. The engine is the
// only writer to its streams.
type EventLog interface {
	AppendSpot(sample models.SpotSample) error
	AppendTrigger(event models.TriggerEvent) error
	AppendTrade(record models.TradeRecord) error
	ReadTrades() ([]models.TradeRecord, error)
}

// StatusWriter persists the strategy heartbeat snapshot.
type StatusWriter interface {
	PutStatus(ctx context.Context, status models.StrategyStatus) error
}

// Config holds the dependencies and parameters of one strategy engine.
type Config struct {
	Strategy models.StrategyConfig
	Market   broker.MarketData
	Orders   broker.OrderSink
	Events   EventLog
	Status   StatusWriter
	Notify   notify.Notifier
	Logger   zerolog.Logger

	LotSize int
	Product models.ProductType

	DataTimeout  time.Duration
	OrderTimeout time.Duration
	OrderRetry   utils.RetryConfig

	// Clock is overridable for tests; defaults to time.Now.
	Clock func() time.Time
}

// Engine is one strategy's trigger/state machine. It owns its ladder and
// position exclusively; a single goroutine drives Tick.
type Engine struct {
	cfg    Config
	sc     models.StrategyConfig
	ladder *Ladder
	pos    *Tracker
	log    zerolog.Logger

	lastErr        string
	lastSpot       float64
	lastUnrealized float64
}

// New validates the strategy configuration and builds an engine. An invalid
// configuration is rejected here; the strategy never starts.
func New(cfg Config) (*Engine, error) {
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.LotSize <= 0 {
		cfg.LotSize = 75
	}
	if cfg.Product == "" {
		cfg.Product = models.ProductNRML
	}
	if cfg.DataTimeout <= 0 {
		cfg.DataTimeout = 5 * time.Second
	}
	if cfg.OrderTimeout <= 0 {
		cfg.OrderTimeout = 10 * time.Second
	}
	if cfg.OrderRetry.MaxAttempts == 0 {
		cfg.OrderRetry = utils.OrderRetryConfig()
	}
	if cfg.Notify == nil {
		cfg.Notify = notify.Nop{}
	}

	sc := cfg.Strategy
	if err := sc.Validate(cfg.Clock()); err != nil {
		return nil, apperrors.NewConfigError(sc.ID, "", err)
	}
	if sc.RearmPolicy == "" {
		sc.RearmPolicy = models.RearmHold
	}

	ladder, err := NewLadder(sc.InitialTriggerGap, sc.SubsequentTriggerGap, sc.RearmPolicy)
	if err != nil {
		return nil, apperrors.NewConfigError(sc.ID, "trigger_gap", err)
	}

	return &Engine{
		cfg:    cfg,
		sc:     sc,
		ladder: ladder,
		pos:    NewTracker(),
		log:    logging.WithStrategy(cfg.Logger, sc.ID),
	}, nil
}

// Init prepares the engine for its first tick: it recovers an open position
// from the trade stream if a previous run left one behind, and arms the
// ladder at the current spot.
func (e *Engine) Init(ctx context.Context) error {
	if err := e.recoverPosition(); err != nil {
		return apperrors.Wrap(err, "recovering open position")
	}

	spot, err := e.getSpot(ctx)
	if err != nil {
		return apperrors.Wrap(err, "fetching spot for ladder activation")
	}
	e.lastSpot = spot

	for _, ev := range e.ladder.Activate(spot) {
		if err := e.cfg.Events.AppendTrigger(ev); err != nil {
			return apperrors.Wrap(err, "journaling trigger event")
		}
	}

	e.log.Info().Float64("spot", spot).Bool("recovered", e.pos.IsOpen()).Msg("Engine initialized")
	return nil
}

// recoverPosition replays the trade stream and reopens the last entry that
// has no matching exit, so a restart does not orphan a live position.
func (e *Engine) recoverPosition() error {
	trades, err := e.cfg.Events.ReadTrades()
	if err != nil {
		return err
	}

	type key struct {
		level float64
		entry time.Time
	}
	exits := make(map[key]bool)
	for _, t := range trades {
		if t.Action == models.TradeExit {
			exits[key{t.Level, t.EntryTime}] = true
		}
	}

	for i := len(trades) - 1; i >= 0; i-- {
		t := trades[i]
		if t.Action != models.TradeEntry {
			continue
		}
		if exits[key{t.Level, t.EntryTime}] {
			continue
		}
		return e.pos.Open(models.Position{
			Level:     t.Level,
			EntrySpot: t.Spot,
			CESymbol:  t.CESymbol,
			PESymbol:  t.PESymbol,
			EntryCE:   t.CEPrice,
			EntryPE:   t.PEPrice,
			LotSize:   e.cfg.LotSize,
			EntryTime: t.EntryTime,
		})
	}
	return nil
}

// Tick runs one decision cycle. Transient data failures skip the tick without
// state change; order failures leave state untouched and are retried on a
// later tick. The status snapshot is written unconditionally at the end.
func (e *Engine) Tick(ctx context.Context) {
	now := e.cfg.Clock()

	spot, err := e.getSpot(ctx)
	if err != nil {
		// Transient: no sample, no state change, just a last-seen-error
		// note. The snapshot keeps the last good spot and P&L.
		e.lastErr = err.Error()
		e.log.Debug().Err(err).Msg("Spot fetch failed, skipping tick")
		e.putStatus(ctx)
		return
	}
	e.lastSpot = spot

	if err := e.cfg.Events.AppendSpot(models.SpotSample{Timestamp: now, Spot: spot}); err != nil {
		e.log.Error().Err(err).Msg("Failed to journal spot sample")
	}
	logging.LogTick(e.log, spot, e.pos.IsOpen())

	if e.pos.IsOpen() {
		e.tickOpen(ctx, now, spot)
	} else {
		e.lastUnrealized = 0
		e.tickFlat(ctx, now, spot)
	}

	e.putStatus(ctx)
}

// tickFlat evaluates the ladder and attempts an entry.
func (e *Engine) tickFlat(ctx context.Context, now time.Time, spot float64) {
	// Past the daily cutoff no new positions are opened.
	if e.sc.CutoffReached(now) {
		return
	}

	level, dir, hit := e.ladder.Evaluate(spot)
	if !hit {
		return
	}

	ceQuote, peQuote, err := e.getLegQuotes(ctx, level)
	if err != nil {
		e.lastErr = err.Error()
		e.log.Debug().Err(err).Float64("level", level).Msg("Leg quotes unavailable, level stays armed")
		return
	}

	premiumSum := ceQuote.LTP + peQuote.LTP
	if premiumSum < e.sc.EntryThreshold {
		e.log.Debug().
			Float64("level", level).
			Float64("premium_sum", premiumSum).
			Float64("threshold", e.sc.EntryThreshold).
			Msg("Premium below entry threshold")
		return
	}

	legs := []broker.LegOrder{
		{Symbol: ceQuote.Symbol, Side: models.OrderSideSell, Quantity: e.cfg.LotSize, Product: e.cfg.Product},
		{Symbol: peQuote.Symbol, Side: models.OrderSideSell, Quantity: e.cfg.LotSize, Product: e.cfg.Product},
	}
	if err := e.placeOrder(ctx, legs, false); err != nil {
		// Remain Flat; the armed level fires again on a later tick.
		e.lastErr = err.Error()
		logging.LogOrderFailure(e.log, "entry", []string{ceQuote.Symbol, peQuote.Symbol}, err)
		e.cfg.Notify.StrategyError(ctx, e.sc.ID, err)
		return
	}

	events, err := e.ladder.Consume(level)
	if err != nil {
		// Should be unreachable: Evaluate only returns armed, unconsumed levels.
		e.lastErr = err.Error()
		e.log.Error().Err(err).Float64("level", level).Msg("Ladder consume failed after fill")
		return
	}
	for _, ev := range events {
		if err := e.cfg.Events.AppendTrigger(ev); err != nil {
			e.log.Error().Err(err).Msg("Failed to journal trigger event")
		}
	}
	logging.LogTrigger(e.log, level, string(models.TriggerConsumed))

	pos := models.Position{
		Level:     level,
		EntrySpot: spot,
		CESymbol:  ceQuote.Symbol,
		PESymbol:  peQuote.Symbol,
		EntryCE:   ceQuote.LTP,
		EntryPE:   peQuote.LTP,
		LotSize:   e.cfg.LotSize,
		EntryTime: now,
	}
	if err := e.pos.Open(pos); err != nil {
		e.lastErr = apperrors.NewInvariantError(e.sc.ID, "at-most-one-open", err).Error()
		e.log.Error().Err(err).Msg("Position open rejected")
		return
	}

	record := models.TradeRecord{
		Timestamp: now,
		Action:    models.TradeEntry,
		Level:     level,
		Spot:      spot,
		CESymbol:  ceQuote.Symbol,
		PESymbol:  peQuote.Symbol,
		CEPrice:   ceQuote.LTP,
		PEPrice:   peQuote.LTP,
		EntryTime: now,
	}
	if err := e.cfg.Events.AppendTrade(record); err != nil {
		e.log.Error().Err(err).Msg("Failed to journal entry record")
	}
	if err := e.cfg.Notify.TradeOpened(ctx, e.sc.ID, record); err != nil {
		e.log.Debug().Err(err).Msg("Entry notification failed")
	}

	e.lastErr = ""
	e.log.Debug().
		Str("direction", string(dir)).
		Float64("ce", ceQuote.LTP).
		Float64("pe", peQuote.LTP).
		Msg("Straddle legs sold")
	logging.LogTrade(e.log, string(models.TradeEntry), level, spot, 0, "")
}

// tickOpen marks the position and evaluates exit conditions in fixed priority
// order: profit target, stop move, cutoff time. It keeps lastUnrealized
// current for the status snapshot; a stale mark is preserved when quotes are
// unavailable.
func (e *Engine) tickOpen(ctx context.Context, now time.Time, spot float64) {
	pos := e.pos.Position()

	ceQuote, peQuote, err := e.getLegQuotes(ctx, pos.Level)
	if err != nil {
		e.lastErr = err.Error()
		e.log.Debug().Err(err).Msg("Leg quotes unavailable, position unchanged")
		return
	}

	mark, err := e.pos.Mark(ceQuote.LTP, peQuote.LTP, spot)
	if err != nil {
		e.lastErr = err.Error()
		return
	}
	e.lastUnrealized = mark.UnrealizedPnL

	var reason models.ExitReason
	switch {
	case mark.UnrealizedPnL >= e.sc.ExitProfit:
		reason = models.ExitProfitTarget
	case mark.Move >= e.sc.ExitMove:
		reason = models.ExitStopMove
	case e.sc.CutoffReached(now):
		reason = models.ExitCutoffTime
	}
	if reason == "" {
		return
	}

	legs := []broker.LegOrder{
		{Symbol: pos.CESymbol, Side: models.OrderSideBuy, Quantity: e.cfg.LotSize, Product: e.cfg.Product},
		{Symbol: pos.PESymbol, Side: models.OrderSideBuy, Quantity: e.cfg.LotSize, Product: e.cfg.Product},
	}
	if err := e.placeOrder(ctx, legs, true); err != nil {
		// Stay Open; the exit re-evaluates next tick.
		e.lastErr = err.Error()
		logging.LogOrderFailure(e.log, "exit", []string{pos.CESymbol, pos.PESymbol}, err)
		e.cfg.Notify.StrategyError(ctx, e.sc.ID, err)
		return
	}

	record, err := e.pos.Close(now, reason, ceQuote.LTP, peQuote.LTP, spot)
	if err != nil {
		e.lastErr = apperrors.NewInvariantError(e.sc.ID, "close-while-open", err).Error()
		return
	}
	e.lastUnrealized = 0
	if err := e.cfg.Events.AppendTrade(record); err != nil {
		e.log.Error().Err(err).Msg("Failed to journal exit record")
	}
	if err := e.cfg.Notify.TradeClosed(ctx, e.sc.ID, record); err != nil {
		e.log.Debug().Err(err).Msg("Exit notification failed")
	}

	// Re-anchor eligibility at the exit spot.
	for _, ev := range e.ladder.Activate(spot) {
		if err := e.cfg.Events.AppendTrigger(ev); err != nil {
			e.log.Error().Err(err).Msg("Failed to journal trigger event")
		}
	}

	e.lastErr = ""
	logging.LogTrade(e.log, string(models.TradeExit), record.Level, spot, record.PnL, string(reason))
}

// getLegQuotes fetches current prices for the CE and PE legs around a trigger
// level: call at level + offset, put at level - offset.
func (e *Engine) getLegQuotes(ctx context.Context, level float64) (ce, pe *models.Quote, err error) {
	dctx, cancel := context.WithTimeout(ctx, e.cfg.DataTimeout)
	defer cancel()

	ce, err = e.cfg.Market.GetOptionQuote(dctx, level+e.sc.StrikeOffset, models.OptionCall, e.sc.Expiry)
	if err != nil {
		return nil, nil, err
	}
	pe, err = e.cfg.Market.GetOptionQuote(dctx, level-e.sc.StrikeOffset, models.OptionPut, e.sc.Expiry)
	if err != nil {
		return nil, nil, err
	}
	return ce, pe, nil
}

func (e *Engine) getSpot(ctx context.Context) (float64, error) {
	dctx, cancel := context.WithTimeout(ctx, e.cfg.DataTimeout)
	defer cancel()
	return e.cfg.Market.GetSpot(dctx)
}

// placeOrder calls the order sink with bounded retry. Retrying forever would
// pin the tick loop; the engine instead re-evaluates on its next tick.
func (e *Engine) placeOrder(ctx context.Context, legs []broker.LegOrder, closing bool) error {
	octx, cancel := context.WithTimeout(ctx, e.cfg.OrderTimeout)
	defer cancel()

	return utils.Retry(octx, e.cfg.OrderRetry, func() error {
		var err error
		if closing {
			_, err = e.cfg.Orders.Close(octx, legs)
		} else {
			_, err = e.cfg.Orders.Place(octx, legs)
		}
		return err
	})
}

// Status returns the current heartbeat snapshot.
func (e *Engine) Status() models.StrategyStatus {
	up, hasUp, down, hasDown := e.ladder.Armed()
	status := models.StrategyStatus{
		StrategyID: e.sc.ID,
		Running:    true,
		Position:   e.pos.Position(),
		LastError:  e.lastErr,
		UpdatedAt:  e.cfg.Clock(),
	}
	if hasUp {
		status.ArmedUp = up
	}
	if hasDown {
		status.ArmedDown = down
	}
	return status
}

func (e *Engine) putStatus(ctx context.Context) {
	status := e.Status()
	status.LastSpot = e.lastSpot
	status.UnrealizedPnL = e.lastUnrealized
	if err := e.cfg.Status.PutStatus(ctx, status); err != nil {
		e.log.Error().Err(err).Msg("Failed to persist status snapshot")
	}
}

// StrategyID returns the engine's strategy identifier.
func (e *Engine) StrategyID() string {
	return e.sc.ID
}
