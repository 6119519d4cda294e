package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	apperrors "straddle-runner/internal/errors"
	"straddle-runner/internal/models"
)

func newStatusCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "status [id]",
		Short: "Show strategy status snapshots",
		Long:  "Show the latest heartbeat snapshot of one strategy, or of all strategies.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if app.Registry == nil {
				return apperrors.ErrDatabaseError
			}
			ctx := context.Background()

			if len(args) == 1 {
				status, err := app.Registry.GetStatus(ctx, args[0])
				if err != nil {
					return err
				}
				if output.IsJSON() {
					return output.JSON(status)
				}
				printStatus(output, *status)
				return nil
			}

			statuses, err := app.Registry.ListStatuses(ctx)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(statuses)
			}
			if len(statuses) == 0 {
				output.Dim("No status snapshots yet.")
				return nil
			}
			for i, status := range statuses {
				if i > 0 {
					output.Println()
				}
				printStatus(output, status)
			}
			return nil
		},
	}
}

func printStatus(output *Output, status models.StrategyStatus) {
	state := output.Red("stopped")
	if status.Running {
		state = output.Green("running")
	}
	output.Printf("%s  %s\n", output.BoldText(status.StrategyID), state)
	output.Printf("  last spot:    %.2f\n", status.LastSpot)

	if status.ArmedUp != 0 || status.ArmedDown != 0 {
		output.Printf("  armed:        up %.2f / down %.2f\n", status.ArmedUp, status.ArmedDown)
	}

	if pos := status.Position; pos != nil {
		output.Printf("  position:     level %.2f, entered %s\n",
			pos.Level, pos.EntryTime.Format("15:04:05"))
		output.Printf("  legs:         %s @ %.2f, %s @ %.2f\n",
			pos.CESymbol, pos.EntryCE, pos.PESymbol, pos.EntryPE)
		pnl := output.Green
		if status.UnrealizedPnL < 0 {
			pnl = output.Red
		}
		output.Printf("  unrealized:   %s\n", pnl(formatPnL(status.UnrealizedPnL)))
	} else {
		output.Printf("  position:     flat\n")
	}

	if status.LastError != "" {
		output.Printf("  last error:   %s\n", output.Yellow(status.LastError))
	}
	if !status.UpdatedAt.IsZero() {
		output.Printf("  updated:      %s (%s ago)\n",
			status.UpdatedAt.Format("15:04:05"),
			time.Since(status.UpdatedAt).Round(time.Second))
	}
}

func formatPnL(pnl float64) string {
	if pnl >= 0 {
		return fmt.Sprintf("+%.2f", pnl)
	}
	return fmt.Sprintf("%.2f", pnl)
}
