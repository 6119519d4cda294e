package engine

import (
	"time"

	apperrors "straddle-runner/internal/errors"
	"straddle-runner/internal/models"
)

// Tracker holds the zero-or-one open position of a strategy and computes its
// live P&L. State machine: Flat -> Open -> Flat, nothing in between.
type Tracker struct {
	pos *models.Position
}

// NewTracker creates an empty (Flat) tracker.
func NewTracker() *Tracker {
	return &Tracker{}
}

// IsOpen reports whether a position is open.
func (t *Tracker) IsOpen() bool {
	return t.pos != nil
}

// Position returns a copy of the open position, or nil when Flat.
func (t *Tracker) Position() *models.Position {
	if t.pos == nil {
		return nil
	}
	p := *t.pos
	return &p
}

// Open records a new position. Opening while one is already open is an
// invariant violation and leaves the existing position untouched.
func (t *Tracker) Open(pos models.Position) error {
	if t.pos != nil {
		return apperrors.ErrPositionOpen
	}
	p := pos
	t.pos = &p
	return nil
}

// Mark holds the result of marking a position to market.
type Mark struct {
	CE            float64
	PE            float64
	UnrealizedPnL float64
	Move          float64 // absolute spot displacement since entry
}

// Mark recomputes unrealized P&L from current leg prices. The position is
// short both legs, so P&L is (entry premium - live premium) scaled by lot
// size; spot displacement is tracked separately as the stop criterion.
func (t *Tracker) Mark(ceLTP, peLTP, spot float64) (Mark, error) {
	if t.pos == nil {
		return Mark{}, apperrors.ErrNoPosition
	}

	pnl := (t.pos.PremiumSum() - (ceLTP + peLTP)) * float64(t.pos.LotSize)
	move := spot - t.pos.EntrySpot
	if move < 0 {
		move = -move
	}

	return Mark{
		CE:            ceLTP,
		PE:            peLTP,
		UnrealizedPnL: pnl,
		Move:          move,
	}, nil
}

// Close realizes the position into a TradeRecord and returns the tracker to
// Flat. Closing while Flat is an invariant violation.
func (t *Tracker) Close(now time.Time, reason models.ExitReason, ceLTP, peLTP, spot float64) (models.TradeRecord, error) {
	if t.pos == nil {
		return models.TradeRecord{}, apperrors.ErrNoPosition
	}

	mark, err := t.Mark(ceLTP, peLTP, spot)
	if err != nil {
		return models.TradeRecord{}, err
	}

	record := models.TradeRecord{
		Timestamp: now,
		Action:    models.TradeExit,
		Level:     t.pos.Level,
		Spot:      spot,
		CESymbol:  t.pos.CESymbol,
		PESymbol:  t.pos.PESymbol,
		CEPrice:   ceLTP,
		PEPrice:   peLTP,
		EntryTime: t.pos.EntryTime,
		PnL:       mark.UnrealizedPnL,
		Reason:    reason,
	}

	t.pos = nil
	return record, nil
}
