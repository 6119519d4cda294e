package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"straddle-runner/internal/models"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorBold   = "\033[1m"
)

// TerminalNotifier prints trade events to the terminal with a bell, so an
// operator watching the scheduler sees fills without digging through logs.
type TerminalNotifier struct {
	writer io.Writer
	color  bool
	bell   bool

	mu sync.Mutex
}

// TerminalConfig holds terminal notifier options.
type TerminalConfig struct {
	Writer io.Writer // defaults to stderr
	Bell   bool
}

// NewTerminalNotifier creates a terminal notifier.
func NewTerminalNotifier(cfg TerminalConfig) *TerminalNotifier {
	w := cfg.Writer
	color := false
	if w == nil {
		w = os.Stderr
		if info, err := os.Stderr.Stat(); err == nil {
			color = (info.Mode() & os.ModeCharDevice) != 0
		}
	}
	return &TerminalNotifier{writer: w, color: color, bell: cfg.Bell}
}

// TradeOpened prints the entry fill.
func (t *TerminalNotifier) TradeOpened(ctx context.Context, strategyID string, record models.TradeRecord) error {
	msg := fmt.Sprintf("[%s] ENTRY level %.2f  sold %s @ %.2f + %s @ %.2f (spot %.2f)",
		strategyID, record.Level,
		record.CESymbol, record.CEPrice,
		record.PESymbol, record.PEPrice,
		record.Spot)
	return t.emit(colorGreen, msg)
}

// TradeClosed prints the exit fill with its P&L.
func (t *TerminalNotifier) TradeClosed(ctx context.Context, strategyID string, record models.TradeRecord) error {
	color := colorGreen
	if record.PnL < 0 {
		color = colorRed
	}
	msg := fmt.Sprintf("[%s] EXIT  level %.2f  pnl %+.2f (%s, spot %.2f)",
		strategyID, record.Level, record.PnL, record.Reason, record.Spot)
	return t.emit(color, msg)
}

// StrategyError prints a strategy problem.
func (t *TerminalNotifier) StrategyError(ctx context.Context, strategyID string, err error) error {
	return t.emit(colorYellow, fmt.Sprintf("[%s] ERROR %v", strategyID, err))
}

func (t *TerminalNotifier) emit(color, msg string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.bell {
		msg = "\a" + msg
	}
	var err error
	if t.color {
		_, err = fmt.Fprintf(t.writer, "%s%s%s%s\n", colorBold, color, msg, colorReset)
	} else {
		_, err = fmt.Fprintln(t.writer, msg)
	}
	return err
}
