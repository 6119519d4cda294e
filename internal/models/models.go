// Package models provides domain models for the strategy runner.
package models

import "time"

// Exchange represents a stock exchange segment.
type Exchange string

const (
	NSE Exchange = "NSE"
	NFO Exchange = "NFO" // F&O
)

// OrderSide represents the side of an order.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// OptionType represents the option leg type.
type OptionType string

const (
	OptionCall OptionType = "CE"
	OptionPut  OptionType = "PE"
)

// ProductType represents the product type of an order.
type ProductType string

const (
	ProductMIS  ProductType = "MIS"  // Intraday
	ProductNRML ProductType = "NRML" // F&O Normal
)

// Quote represents a market quote for an instrument.
type Quote struct {
	Symbol    string
	LTP       float64
	Timestamp time.Time
}

// Instrument represents a tradeable instrument.
type Instrument struct {
	Token     uint32
	Symbol    string
	Name      string
	Exchange  Exchange
	LotSize   int
	Expiry    time.Time
	Strike    float64
	InstrType string // CE, PE, FUT, EQ
}
