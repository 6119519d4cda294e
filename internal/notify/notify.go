// Package notify pushes trade lifecycle events at the operator. The engine
// journals and logs everything regardless; notifications are the loud,
// human-facing layer on top.
package notify

import (
	"context"

	"straddle-runner/internal/models"
)

// Notifier receives trade lifecycle events. Implementations must not block
// the tick loop; failures are the implementation's problem to report.
type Notifier interface {
	// TradeOpened fires after an entry is filled and journaled.
	TradeOpened(ctx context.Context, strategyID string, record models.TradeRecord) error

	// TradeClosed fires after an exit is filled and journaled.
	TradeClosed(ctx context.Context, strategyID string, record models.TradeRecord) error

	// StrategyError fires when a strategy hits a non-transient problem, such
	// as a rejected order.
	StrategyError(ctx context.Context, strategyID string, err error) error
}

// Nop is a Notifier that discards everything.
type Nop struct{}

func (Nop) TradeOpened(ctx context.Context, strategyID string, record models.TradeRecord) error {
	return nil
}

func (Nop) TradeClosed(ctx context.Context, strategyID string, record models.TradeRecord) error {
	return nil
}

func (Nop) StrategyError(ctx context.Context, strategyID string, err error) error {
	return nil
}
