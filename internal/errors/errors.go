// Package errors provides custom error types for domain-specific errors.
package errors

import (
	"errors"
	"fmt"
)

// Standard sentinel errors
var (
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrSessionExpired   = errors.New("session expired")
	ErrMarketData       = errors.New("market data unavailable")
	ErrOrderRejected    = errors.New("order rejected")
	ErrPositionOpen     = errors.New("position already open")
	ErrNoPosition       = errors.New("no open position")
	ErrLevelConsumed    = errors.New("trigger level already consumed")
	ErrSymbolNotFound   = errors.New("symbol not found")
	ErrStrategyNotFound = errors.New("strategy not found")
	ErrStrategyRunning  = errors.New("strategy is running")
	ErrConfigInvalid    = errors.New("invalid configuration")
	ErrDatabaseError    = errors.New("database error")
	ErrTimeout          = errors.New("operation timed out")
)

// ConfigError represents a strategy configuration error. Configuration errors
// are rejected at activation time; a strategy with one never starts.
type ConfigError struct {
	StrategyID string
	Field      string
	Err        error
}

func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("config error [%s] %s: %v", e.StrategyID, e.Field, e.Err)
	}
	return fmt.Sprintf("config error [%s]: %v", e.StrategyID, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// NewConfigError creates a new ConfigError.
func NewConfigError(strategyID, field string, err error) *ConfigError {
	return &ConfigError{
		StrategyID: strategyID,
		Field:      field,
		Err:        err,
	}
}

// OrderError represents an error from the order sink. The engine records it
// in the strategy status and retries on a later tick; it never assumes success.
type OrderError struct {
	StrategyID string
	Action     string // "place", "close"
	Symbols    []string
	Err        error
}

func (e *OrderError) Error() string {
	return fmt.Sprintf("order error [%s] %s %v: %v", e.StrategyID, e.Action, e.Symbols, e.Err)
}

func (e *OrderError) Unwrap() error {
	return e.Err
}

// NewOrderError creates a new OrderError.
func NewOrderError(strategyID, action string, symbols []string, err error) *OrderError {
	return &OrderError{
		StrategyID: strategyID,
		Action:     action,
		Symbols:    symbols,
		Err:        err,
	}
}

// InvariantError represents a programming-level fault, such as opening a
// position while one is already open. It fails loudly instead of corrupting
// engine state.
type InvariantError struct {
	StrategyID string
	Invariant  string
	Err        error
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("invariant violation [%s] %s: %v", e.StrategyID, e.Invariant, e.Err)
}

func (e *InvariantError) Unwrap() error {
	return e.Err
}

// NewInvariantError creates a new InvariantError.
func NewInvariantError(strategyID, invariant string, err error) *InvariantError {
	return &InvariantError{
		StrategyID: strategyID,
		Invariant:  invariant,
		Err:        err,
	}
}

// DataError represents a market data error. Data errors are transient by
// default: the engine skips the tick and retries on the next one.
type DataError struct {
	Source  string
	Symbol  string
	Message string
	Err     error
}

func (e *DataError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("data error [%s] %s: %s: %v", e.Source, e.Symbol, e.Message, e.Err)
	}
	return fmt.Sprintf("data error [%s] %s: %s", e.Source, e.Symbol, e.Message)
}

func (e *DataError) Unwrap() error {
	return e.Err
}

// NewDataError creates a new DataError.
func NewDataError(source, symbol, message string, err error) *DataError {
	return &DataError{
		Source:  source,
		Symbol:  symbol,
		Message: message,
		Err:     err,
	}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
