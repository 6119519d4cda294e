package models

import "time"

// SpotSample is one observation of the underlying index price. Appended every
// tick regardless of what else happened.
type SpotSample struct {
	Timestamp time.Time `json:"time"`
	Spot      float64   `json:"spot"`
}

// TriggerStatus describes a ladder state transition.
type TriggerStatus string

const (
	TriggerArmed    TriggerStatus = "armed"
	TriggerConsumed TriggerStatus = "consumed"
	TriggerExpired  TriggerStatus = "expired"
)

// TriggerDirection indicates which side of the anchor a level sits on.
type TriggerDirection string

const (
	DirectionUp   TriggerDirection = "up"
	DirectionDown TriggerDirection = "down"
)

// TriggerEvent is an append-only audit record of a ladder transition.
type TriggerEvent struct {
	Timestamp time.Time        `json:"time"`
	Level     float64          `json:"trigger"`
	Status    TriggerStatus    `json:"status"`
	Direction TriggerDirection `json:"direction,omitempty"`
}

// TradeAction distinguishes entry and exit records.
type TradeAction string

const (
	TradeEntry TradeAction = "entry"
	TradeExit  TradeAction = "exit"
)

// ExitReason records why a position was closed. Reasons are listed in the
// priority order the engine evaluates them.
type ExitReason string

const (
	ExitProfitTarget ExitReason = "profit_target"
	ExitStopMove     ExitReason = "stop_move"
	ExitCutoffTime   ExitReason = "cutoff_time"
	ExitManual       ExitReason = "manual"
)

// TradeRecord is an append-only record of one entry or exit action.
type TradeRecord struct {
	Timestamp time.Time   `json:"time"`
	Action    TradeAction `json:"action"`
	Level     float64     `json:"trigger"`
	Spot      float64     `json:"spot"`
	CESymbol  string      `json:"ce_symbol"`
	PESymbol  string      `json:"pe_symbol"`
	CEPrice   float64     `json:"ce"`
	PEPrice   float64     `json:"pe"`
	EntryTime time.Time   `json:"entry_time"`
	PnL       float64     `json:"pnl,omitempty"`
	Reason    ExitReason  `json:"reason,omitempty"`
}

// Position is the single open two-leg short position of a strategy. Both legs
// are one atomic unit; there is never a half-open position.
type Position struct {
	Level     float64   `json:"trigger"`
	EntrySpot float64   `json:"spot"`
	CESymbol  string    `json:"ce_symbol"`
	PESymbol  string    `json:"pe_symbol"`
	EntryCE   float64   `json:"ce"`
	EntryPE   float64   `json:"pe"`
	LotSize   int       `json:"lot_size"`
	EntryTime time.Time `json:"entry_time"`
}

// PremiumSum returns the combined entry premium of both legs.
func (p *Position) PremiumSum() float64 {
	return p.EntryCE + p.EntryPE
}
