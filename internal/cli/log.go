package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	apperrors "straddle-runner/internal/errors"
	"straddle-runner/internal/journal"
)

func newLogCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Inspect and manage strategy event logs",
	}

	cmd.AddCommand(newLogTradesCmd(app))
	cmd.AddCommand(newLogTriggersCmd(app))
	cmd.AddCommand(newLogClearCmd(app))

	return cmd
}

func openJournal(app *App, id string) (*journal.Journal, error) {
	if app.Registry != nil {
		// Fail early on unknown ids instead of creating empty streams.
		if _, err := app.Registry.GetConfig(context.Background(), id); err != nil {
			return nil, err
		}
	}
	return journal.New(app.Config.Runner.DataDir, id)
}

func newLogTradesCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "trades <id>",
		Short: "Show the trade log of a strategy",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			jnl, err := openJournal(app, args[0])
			if err != nil {
				return err
			}
			defer jnl.Close()

			trades, err := jnl.ReadTrades()
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(trades)
			}
			if len(trades) == 0 {
				output.Dim("No trades recorded.")
				return nil
			}

			output.Printf("%-20s %-6s %9s %9s %9s %9s %10s %s\n",
				"TIME", "ACTION", "LEVEL", "SPOT", "CE", "PE", "PNL", "REASON")
			for _, t := range trades {
				pnl := ""
				if t.Action == "exit" {
					pnl = formatPnL(t.PnL)
				}
				output.Printf("%-20s %-6s %9.2f %9.2f %9.2f %9.2f %10s %s\n",
					t.Timestamp.Format("2006-01-02 15:04:05"), t.Action,
					t.Level, t.Spot, t.CEPrice, t.PEPrice, pnl, t.Reason)
			}
			return nil
		},
	}
}

func newLogTriggersCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "triggers <id>",
		Short: "Show the trigger event log of a strategy",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			jnl, err := openJournal(app, args[0])
			if err != nil {
				return err
			}
			defer jnl.Close()

			events, err := jnl.ReadTriggers()
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(events)
			}
			if len(events) == 0 {
				output.Dim("No trigger events recorded.")
				return nil
			}

			output.Printf("%-20s %9s %-9s %s\n", "TIME", "LEVEL", "STATUS", "DIRECTION")
			for _, e := range events {
				output.Printf("%-20s %9.2f %-9s %s\n",
					e.Timestamp.Format("2006-01-02 15:04:05"), e.Level, e.Status, e.Direction)
			}
			return nil
		},
	}
}

func newLogClearCmd(app *App) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "clear <id>",
		Short: "Clear the event streams of a strategy",
		Long:  "Truncate the spot, trigger and trade streams of a strategy. Refuses to run while the strategy still has a running heartbeat.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			id := args[0]

			if app.Registry != nil {
				if status, err := app.Registry.GetStatus(context.Background(), id); err == nil && status.Running {
					return apperrors.Wrapf(apperrors.ErrStrategyRunning, "strategy %s", id)
				}
			}
			if !yes {
				return fmt.Errorf("clearing discards the recovery log for %s, pass --yes to confirm", id)
			}

			jnl, err := openJournal(app, id)
			if err != nil {
				return err
			}
			defer jnl.Close()

			if err := jnl.Clear(); err != nil {
				return err
			}
			output.Success("Event streams for %s cleared.", id)
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "skip the confirmation")
	return cmd
}
