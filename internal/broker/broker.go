// Package broker provides market data and order sink contracts and their
// Zerodha Kite Connect implementation.
package broker

import (
	"context"
	"time"

	"straddle-runner/internal/models"
)

// MarketData supplies the live index spot price and option quotes on demand.
// Errors are transient by default: callers skip the tick and retry.
type MarketData interface {
	GetSpot(ctx context.Context) (float64, error)
	GetOptionQuote(ctx context.Context, strike float64, optType models.OptionType, expiry time.Time) (*models.Quote, error)
}

// OrderSink accepts multi-leg order placements. A call either fills all legs
// or reports failure; partial leg fills are not modeled.
type OrderSink interface {
	Place(ctx context.Context, legs []LegOrder) (*Fill, error)
	Close(ctx context.Context, legs []LegOrder) (*Fill, error)
}

// Broker combines market data and order placement.
type Broker interface {
	MarketData
	OrderSink
}

// LegOrder represents one leg of a multi-leg order.
type LegOrder struct {
	Symbol   string
	Side     models.OrderSide
	Quantity int
	Product  models.ProductType
}

// Fill represents the result of a multi-leg placement.
type Fill struct {
	OrderIDs []string
	Status   string
	Message  string
}
