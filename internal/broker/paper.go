package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"straddle-runner/internal/models"
)

// PaperBroker implements Broker for paper trading. Market data flows through
// a real data source when one is configured; order placement is simulated and
// always fills.
type PaperBroker struct {
	data MarketData

	// Synthetic pricing state, used when no data source is configured.
	spot        float64
	basePremium float64

	orderCounter int
	mu           sync.Mutex
}

// PaperConfig holds configuration for the paper broker.
type PaperConfig struct {
	Data MarketData // optional; synthetic prices when nil
	Spot float64    // starting synthetic spot
}

// NewPaperBroker creates a new paper trading broker.
func NewPaperBroker(cfg PaperConfig) *PaperBroker {
	spot := cfg.Spot
	if spot == 0 {
		spot = 18000
	}
	return &PaperBroker{
		data:        cfg.Data,
		spot:        spot,
		basePremium: 150,
	}
}

// SetSpot overrides the synthetic spot price.
func (p *PaperBroker) SetSpot(spot float64) {
	p.mu.Lock()
	p.spot = spot
	p.mu.Unlock()
}

// GetSpot returns the live spot when a data source is configured, otherwise
// the synthetic spot.
func (p *PaperBroker) GetSpot(ctx context.Context) (float64, error) {
	if p.data != nil {
		return p.data.GetSpot(ctx)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.spot, nil
}

// GetOptionQuote returns the live quote when a data source is configured.
// Without one it prices the contract synthetically: a flat base premium plus
// intrinsic value, enough to exercise entry/exit paths deterministically.
func (p *PaperBroker) GetOptionQuote(ctx context.Context, strike float64, optType models.OptionType, expiry time.Time) (*models.Quote, error) {
	if p.data != nil {
		return p.data.GetOptionQuote(ctx, strike, optType, expiry)
	}

	p.mu.Lock()
	spot := p.spot
	p.mu.Unlock()

	var intrinsic float64
	switch optType {
	case models.OptionCall:
		intrinsic = spot - strike
	case models.OptionPut:
		intrinsic = strike - spot
	}
	if intrinsic < 0 {
		intrinsic = 0
	}

	return &models.Quote{
		Symbol:    fmt.Sprintf("PAPER%.0f%s", strike, optType),
		LTP:       p.basePremium + intrinsic,
		Timestamp: time.Now(),
	}, nil
}

// Place simulates order placement; every leg fills immediately.
func (p *PaperBroker) Place(ctx context.Context, legs []LegOrder) (*Fill, error) {
	return p.fill(legs)
}

// Close simulates closing orders; every leg fills immediately.
func (p *PaperBroker) Close(ctx context.Context, legs []LegOrder) (*Fill, error) {
	return p.fill(legs)
}

func (p *PaperBroker) fill(legs []LegOrder) (*Fill, error) {
	if len(legs) == 0 {
		return nil, fmt.Errorf("no legs to fill")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	fill := &Fill{Status: "FILLED", Message: "paper fill"}
	for range legs {
		p.orderCounter++
		fill.OrderIDs = append(fill.OrderIDs, fmt.Sprintf("PAPER_%d_%d", time.Now().Unix(), p.orderCounter))
	}

	return fill, nil
}
