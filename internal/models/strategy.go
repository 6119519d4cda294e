package models

import (
	"fmt"
	"time"
)

// RearmPolicy controls whether a freshly armed level may fire when spot is
// already sitting beyond it. A level that fired without being consumed stays
// eligible under either policy.
type RearmPolicy string

const (
	// RearmHold silences a level armed while spot was already past it; the
	// level fires only after spot retreats across it and crosses afresh.
	RearmHold RearmPolicy = "hold"
	// RearmImmediate fires whenever spot sits at or beyond an armed level,
	// regardless of how it got there.
	RearmImmediate RearmPolicy = "immediate"
)

// StrategyConfig holds the per-strategy trading parameters. It is immutable
// for the life of an engine run; edits take effect on the next start.
type StrategyConfig struct {
	ID                   string      `json:"id"`
	Name                 string      `json:"name"`
	EntryThreshold       float64     `json:"entry_threshold"`       // min CE+PE premium sum to enter
	ExitProfit           float64     `json:"exit_profit"`           // absolute currency profit target
	ExitMove             float64     `json:"exit_move"`             // adverse spot displacement stop
	StrikeOffset         float64     `json:"strike_offset"`         // distance of legs from trigger level
	InitialTriggerGap    float64     `json:"initial_trigger_gap"`   // gap for the first armed pair
	SubsequentTriggerGap float64     `json:"subsequent_trigger_gap"` // gap after each consumed level
	Expiry               time.Time   `json:"expiry_date"`
	CutoffTime           string      `json:"cutoff_time"` // "HH:MM" time of day, IST
	RearmPolicy          RearmPolicy `json:"rearm_policy"`
	Enabled              bool        `json:"enabled"`
	CreatedAt            time.Time   `json:"created_at"`
	UpdatedAt            time.Time   `json:"updated_at"`
}

// ParseCutoff parses the CutoffTime field into hour and minute.
func (c *StrategyConfig) ParseCutoff() (hour, minute int, err error) {
	t, err := time.Parse("15:04", c.CutoffTime)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid cutoff_time %q: %w", c.CutoffTime, err)
	}
	return t.Hour(), t.Minute(), nil
}

// CutoffReached reports whether the given wall-clock time is at or past the
// configured daily cutoff.
func (c *StrategyConfig) CutoffReached(now time.Time) bool {
	hour, minute, err := c.ParseCutoff()
	if err != nil {
		return false
	}
	cutoff := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	return !now.Before(cutoff)
}

// Validate checks the configuration against the trading day. A strategy with
// an invalid configuration must never start.
func (c *StrategyConfig) Validate(now time.Time) error {
	if c.ID == "" {
		return fmt.Errorf("strategy id is required")
	}
	if c.EntryThreshold <= 0 {
		return fmt.Errorf("entry_threshold must be positive, got %.2f", c.EntryThreshold)
	}
	if c.ExitProfit <= 0 {
		return fmt.Errorf("exit_profit must be positive, got %.2f", c.ExitProfit)
	}
	if c.ExitMove <= 0 {
		return fmt.Errorf("exit_move must be positive, got %.2f", c.ExitMove)
	}
	if c.StrikeOffset <= 0 {
		return fmt.Errorf("strike_offset must be positive, got %.2f", c.StrikeOffset)
	}
	if c.InitialTriggerGap <= 0 {
		return fmt.Errorf("initial_trigger_gap must be positive, got %.2f", c.InitialTriggerGap)
	}
	if c.SubsequentTriggerGap <= 0 {
		return fmt.Errorf("subsequent_trigger_gap must be positive, got %.2f", c.SubsequentTriggerGap)
	}
	tradingDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	if c.Expiry.Before(tradingDay) {
		return fmt.Errorf("expiry_date %s is in the past", c.Expiry.Format("2006-01-02"))
	}
	if _, _, err := c.ParseCutoff(); err != nil {
		return err
	}
	switch c.RearmPolicy {
	case RearmHold, RearmImmediate:
	case "":
		// Defaulted by the caller.
	default:
		return fmt.Errorf("unknown rearm_policy %q", c.RearmPolicy)
	}
	return nil
}

// StrategyStatus is the mutable heartbeat snapshot for a strategy. It is
// overwritten in place each tick; dashboards read it, nothing acts on it.
type StrategyStatus struct {
	StrategyID    string    `json:"strategy_id"`
	Running       bool      `json:"running"`
	Position      *Position `json:"position,omitempty"`
	ArmedUp       float64   `json:"armed_up,omitempty"`
	ArmedDown     float64   `json:"armed_down,omitempty"`
	LastSpot      float64   `json:"last_spot,omitempty"`
	UnrealizedPnL float64   `json:"unrealized_pnl"`
	LastError     string    `json:"last_error,omitempty"`
	UpdatedAt     time.Time `json:"updated_at"`
}
