package resilience

import (
	"context"
	"time"

	"straddle-runner/internal/broker"
	"straddle-runner/internal/models"
)

// GuardedBroker wraps a broker with a circuit breaker on the market data
// side. Order placement is deliberately NOT guarded: when a position needs
// closing, every attempt should reach the exchange.
type GuardedBroker struct {
	inner   broker.Broker
	breaker *CircuitBreaker
}

// NewGuardedBroker wraps a broker.
func NewGuardedBroker(inner broker.Broker, config CircuitBreakerConfig) *GuardedBroker {
	return &GuardedBroker{
		inner:   inner,
		breaker: NewCircuitBreaker("market-data", config),
	}
}

// GetSpot fetches the index spot through the breaker.
func (g *GuardedBroker) GetSpot(ctx context.Context) (float64, error) {
	var spot float64
	err := g.breaker.Execute(func() error {
		var err error
		spot, err = g.inner.GetSpot(ctx)
		return err
	})
	return spot, err
}

// GetOptionQuote fetches an option quote through the breaker.
func (g *GuardedBroker) GetOptionQuote(ctx context.Context, strike float64, optType models.OptionType, expiry time.Time) (*models.Quote, error) {
	var quote *models.Quote
	err := g.breaker.Execute(func() error {
		var err error
		quote, err = g.inner.GetOptionQuote(ctx, strike, optType, expiry)
		return err
	})
	return quote, err
}

// Place passes order placement straight through.
func (g *GuardedBroker) Place(ctx context.Context, legs []broker.LegOrder) (*broker.Fill, error) {
	return g.inner.Place(ctx, legs)
}

// Close passes closing orders straight through.
func (g *GuardedBroker) Close(ctx context.Context, legs []broker.LegOrder) (*broker.Fill, error) {
	return g.inner.Close(ctx, legs)
}

// FeedState returns the current state of the market data breaker.
func (g *GuardedBroker) FeedState() CircuitState {
	return g.breaker.State()
}

// FeedStats returns the market data breaker counters.
func (g *GuardedBroker) FeedStats() Stats {
	return g.breaker.GetStats()
}
