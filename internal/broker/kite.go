package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	kiteconnect "github.com/zerodha/gokiteconnect/v4"

	apperrors "straddle-runner/internal/errors"
	"straddle-runner/internal/models"
	"straddle-runner/pkg/utils"
)

// KiteBroker implements Broker against the Zerodha Kite Connect API.
type KiteBroker struct {
	client      *kiteconnect.Client
	indexSymbol string
	optionName  string
	product     models.ProductType

	// NFO option instruments for optionName, keyed by strike/type/expiry date.
	instruments map[instrumentKey]models.Instrument
	loadedAt    time.Time
	mu          sync.RWMutex
}

type instrumentKey struct {
	strike  float64
	optType models.OptionType
	expiry  string // yyyy-mm-dd
}

// KiteConfig holds configuration for the Kite broker.
type KiteConfig struct {
	APIKey      string
	AccessToken string
	IndexSymbol string // e.g. "NSE:NIFTY 50"
	OptionName  string // e.g. "NIFTY"
	Product     models.ProductType
}

// NewKiteBroker creates a new Kite Connect broker. The access token is
// expected to be fresh for the trading day; token generation is an operator
// concern, not handled here.
func NewKiteBroker(cfg KiteConfig) *KiteBroker {
	client := kiteconnect.New(cfg.APIKey)
	if cfg.AccessToken != "" {
		client.SetAccessToken(cfg.AccessToken)
	}

	product := cfg.Product
	if product == "" {
		product = models.ProductNRML
	}

	return &KiteBroker{
		client:      client,
		indexSymbol: cfg.IndexSymbol,
		optionName:  cfg.OptionName,
		product:     product,
		instruments: make(map[instrumentKey]models.Instrument),
	}
}

// GetSpot fetches the last traded price of the underlying index.
func (k *KiteBroker) GetSpot(ctx context.Context) (float64, error) {
	ltp, err := k.client.GetLTP(k.indexSymbol)
	if err != nil {
		return 0, apperrors.NewDataError("kite", k.indexSymbol, "fetching spot", err)
	}

	q, ok := ltp[k.indexSymbol]
	if !ok {
		return 0, apperrors.NewDataError("kite", k.indexSymbol, "spot missing from response", nil)
	}

	return q.LastPrice, nil
}

// GetOptionQuote fetches the last traded price of the option contract at the
// given strike, type and expiry.
func (k *KiteBroker) GetOptionQuote(ctx context.Context, strike float64, optType models.OptionType, expiry time.Time) (*models.Quote, error) {
	inst, err := k.resolveInstrument(strike, optType, expiry)
	if err != nil {
		return nil, err
	}

	symbol := fmt.Sprintf("%s:%s", models.NFO, inst.Symbol)
	ltp, err := k.client.GetLTP(symbol)
	if err != nil {
		return nil, apperrors.NewDataError("kite", symbol, "fetching option LTP", err)
	}

	q, ok := ltp[symbol]
	if !ok {
		return nil, apperrors.NewDataError("kite", symbol, "quote missing from response", nil)
	}

	return &models.Quote{
		Symbol:    inst.Symbol,
		LTP:       q.LastPrice,
		Timestamp: time.Now(),
	}, nil
}

// Place places one market order per leg. If any leg fails the whole call
// reports failure; the caller stays in its current state and retries later.
func (k *KiteBroker) Place(ctx context.Context, legs []LegOrder) (*Fill, error) {
	return k.placeLegs(ctx, legs, "place")
}

// Close places closing market orders for the given legs.
func (k *KiteBroker) Close(ctx context.Context, legs []LegOrder) (*Fill, error) {
	return k.placeLegs(ctx, legs, "close")
}

func (k *KiteBroker) placeLegs(ctx context.Context, legs []LegOrder, action string) (*Fill, error) {
	if len(legs) == 0 {
		return nil, fmt.Errorf("no legs to %s", action)
	}

	fill := &Fill{Status: "FILLED"}
	for _, leg := range legs {
		product := leg.Product
		if product == "" {
			product = k.product
		}

		params := kiteconnect.OrderParams{
			Exchange:        string(models.NFO),
			Tradingsymbol:   leg.Symbol,
			TransactionType: string(leg.Side),
			OrderType:       "MARKET",
			Product:         string(product),
			Quantity:        leg.Quantity,
			Validity:        "DAY",
			Tag:             "straddle-runner",
		}

		resp, err := k.client.PlaceOrder(kiteconnect.VarietyRegular, params)
		if err != nil {
			symbols := make([]string, len(legs))
			for i, l := range legs {
				symbols[i] = l.Symbol
			}
			return nil, apperrors.NewOrderError("", action, symbols, err)
		}
		fill.OrderIDs = append(fill.OrderIDs, resp.OrderID)
	}

	return fill, nil
}

// LoadInstruments fetches and caches the NFO option instrument table for the
// configured option series. Called once at startup; the table is static for
// the trading day.
func (k *KiteBroker) LoadInstruments(ctx context.Context) error {
	// The dump is a few MB; transient fetch failures are worth retrying
	// before giving up on startup.
	instruments, err := utils.RetryWithResult(ctx, utils.DefaultRetryConfig(), func() (kiteconnect.Instruments, error) {
		return k.client.GetInstruments()
	})
	if err != nil {
		return apperrors.NewDataError("kite", k.optionName, "fetching instruments", err)
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	k.instruments = make(map[instrumentKey]models.Instrument)
	for _, inst := range instruments {
		if inst.Exchange != string(models.NFO) || inst.Name != k.optionName {
			continue
		}
		if inst.InstrumentType != string(models.OptionCall) && inst.InstrumentType != string(models.OptionPut) {
			continue
		}
		key := instrumentKey{
			strike:  inst.StrikePrice,
			optType: models.OptionType(inst.InstrumentType),
			expiry:  inst.Expiry.Time.Format("2006-01-02"),
		}
		k.instruments[key] = models.Instrument{
			Token:     uint32(inst.InstrumentToken),
			Symbol:    inst.Tradingsymbol,
			Name:      inst.Name,
			Exchange:  models.NFO,
			LotSize:   int(inst.LotSize),
			Expiry:    inst.Expiry.Time,
			Strike:    inst.StrikePrice,
			InstrType: inst.InstrumentType,
		}
	}
	k.loadedAt = time.Now()

	return nil
}

// ResolveSymbol returns the tradingsymbol for a strike/type/expiry triple.
func (k *KiteBroker) ResolveSymbol(strike float64, optType models.OptionType, expiry time.Time) (string, error) {
	inst, err := k.resolveInstrument(strike, optType, expiry)
	if err != nil {
		return "", err
	}
	return inst.Symbol, nil
}

func (k *KiteBroker) resolveInstrument(strike float64, optType models.OptionType, expiry time.Time) (models.Instrument, error) {
	k.mu.RLock()
	loaded := !k.loadedAt.IsZero()
	k.mu.RUnlock()

	if !loaded {
		if err := k.LoadInstruments(context.Background()); err != nil {
			return models.Instrument{}, err
		}
	}

	key := instrumentKey{
		strike:  strike,
		optType: optType,
		expiry:  expiry.Format("2006-01-02"),
	}

	k.mu.RLock()
	inst, ok := k.instruments[key]
	k.mu.RUnlock()

	if !ok {
		return models.Instrument{}, apperrors.Wrapf(apperrors.ErrSymbolNotFound,
			"%s %.0f %s %s", k.optionName, strike, optType, expiry.Format("2006-01-02"))
	}

	return inst, nil
}

// LotSize returns the lot size of the cached option series, or 0 when the
// instrument table has not been loaded.
func (k *KiteBroker) LotSize() int {
	k.mu.RLock()
	defer k.mu.RUnlock()
	for _, inst := range k.instruments {
		if inst.LotSize > 0 {
			return inst.LotSize
		}
	}
	return 0
}
