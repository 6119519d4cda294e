package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	apperrors "straddle-runner/internal/errors"
	"straddle-runner/internal/models"
)

func newStrategyCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "strategy",
		Short: "Manage strategy definitions",
		Long:  "Add, edit, list, enable and remove straddle strategies.",
	}

	cmd.AddCommand(newStrategyAddCmd(app))
	cmd.AddCommand(newStrategyListCmd(app))
	cmd.AddCommand(newStrategyEditCmd(app))
	cmd.AddCommand(newStrategyRemoveCmd(app))
	cmd.AddCommand(newStrategyEnableCmd(app, true))
	cmd.AddCommand(newStrategyEnableCmd(app, false))

	return cmd
}

// strategyFlags registers the tunable parameters shared by add and edit.
func strategyFlags(cmd *cobra.Command) {
	cmd.Flags().String("name", "", "display name")
	cmd.Flags().Float64("entry-threshold", 0, "minimum CE+PE premium sum to enter")
	cmd.Flags().Float64("exit-profit", 0, "profit target in currency")
	cmd.Flags().Float64("exit-move", 0, "adverse spot move stop in points")
	cmd.Flags().Float64("strike-offset", 0, "leg strike distance from the trigger level")
	cmd.Flags().Float64("initial-gap", 0, "trigger gap for the first armed pair")
	cmd.Flags().Float64("subsequent-gap", 0, "trigger gap after each consumed level")
	cmd.Flags().String("expiry", "", "option expiry date (YYYY-MM-DD)")
	cmd.Flags().String("cutoff", "15:00", "daily entry cutoff (HH:MM, IST)")
	cmd.Flags().String("rearm", string(models.RearmHold), "rearm policy: hold or immediate")
}

func applyStrategyFlags(cmd *cobra.Command, sc *models.StrategyConfig) error {
	flags := cmd.Flags()

	if flags.Changed("name") {
		sc.Name, _ = flags.GetString("name")
	}
	if flags.Changed("entry-threshold") {
		sc.EntryThreshold, _ = flags.GetFloat64("entry-threshold")
	}
	if flags.Changed("exit-profit") {
		sc.ExitProfit, _ = flags.GetFloat64("exit-profit")
	}
	if flags.Changed("exit-move") {
		sc.ExitMove, _ = flags.GetFloat64("exit-move")
	}
	if flags.Changed("strike-offset") {
		sc.StrikeOffset, _ = flags.GetFloat64("strike-offset")
	}
	if flags.Changed("initial-gap") {
		sc.InitialTriggerGap, _ = flags.GetFloat64("initial-gap")
	}
	if flags.Changed("subsequent-gap") {
		sc.SubsequentTriggerGap, _ = flags.GetFloat64("subsequent-gap")
	}
	if flags.Changed("expiry") {
		raw, _ := flags.GetString("expiry")
		expiry, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return fmt.Errorf("invalid expiry %q: %w", raw, err)
		}
		sc.Expiry = expiry
	}
	if flags.Changed("cutoff") {
		sc.CutoffTime, _ = flags.GetString("cutoff")
	}
	if flags.Changed("rearm") {
		raw, _ := flags.GetString("rearm")
		sc.RearmPolicy = models.RearmPolicy(raw)
	}
	return nil
}

func newStrategyAddCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add <id>",
		Short: "Add a new strategy",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if app.Registry == nil {
				return apperrors.ErrDatabaseError
			}

			sc := models.StrategyConfig{
				ID:          args[0],
				CutoffTime:  "15:00",
				RearmPolicy: models.RearmHold,
			}
			if err := applyStrategyFlags(cmd, &sc); err != nil {
				return err
			}
			if sc.Name == "" {
				sc.Name = sc.ID
			}
			if err := sc.Validate(time.Now()); err != nil {
				return apperrors.NewConfigError(sc.ID, "", err)
			}

			ctx := context.Background()
			if _, err := app.Registry.GetConfig(ctx, sc.ID); err == nil {
				return fmt.Errorf("strategy %s already exists, use 'strategy edit'", sc.ID)
			}
			if err := app.Registry.SaveConfig(ctx, sc); err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(sc)
			}
			output.Success("Strategy %s added (disabled). Enable it with 'strategy enable %s'.", sc.ID, sc.ID)
			return nil
		},
	}
	strategyFlags(cmd)
	return cmd
}

func newStrategyListCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all strategies",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if app.Registry == nil {
				return apperrors.ErrDatabaseError
			}

			configs, err := app.Registry.ListConfigs(context.Background())
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(configs)
			}
			if len(configs) == 0 {
				output.Dim("No strategies defined.")
				return nil
			}

			output.Printf("%-12s %-20s %8s %8s %8s %-12s %-8s %s\n",
				"ID", "NAME", "ENTRY", "PROFIT", "MOVE", "EXPIRY", "CUTOFF", "STATE")
			for _, sc := range configs {
				state := output.DimText("disabled")
				if sc.Enabled {
					state = output.Green("enabled")
				}
				output.Printf("%-12s %-20s %8.0f %8.0f %8.0f %-12s %-8s %s\n",
					sc.ID, sc.Name, sc.EntryThreshold, sc.ExitProfit, sc.ExitMove,
					sc.Expiry.Format("2006-01-02"), sc.CutoffTime, state)
			}
			return nil
		},
	}
}

func newStrategyEditCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Edit an existing strategy",
		Long:  "Update strategy parameters. Changes take effect the next time the strategy starts.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if app.Registry == nil {
				return apperrors.ErrDatabaseError
			}

			ctx := context.Background()
			sc, err := app.Registry.GetConfig(ctx, args[0])
			if err != nil {
				return err
			}
			if err := applyStrategyFlags(cmd, sc); err != nil {
				return err
			}
			if err := sc.Validate(time.Now()); err != nil {
				return apperrors.NewConfigError(sc.ID, "", err)
			}
			if err := app.Registry.SaveConfig(ctx, *sc); err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(sc)
			}
			output.Success("Strategy %s updated.", sc.ID)
			return nil
		},
	}
	strategyFlags(cmd)
	return cmd
}

func newStrategyRemoveCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>",
		Short: "Remove a strategy",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if app.Registry == nil {
				return apperrors.ErrDatabaseError
			}
			if err := app.Registry.DeleteConfig(context.Background(), args[0]); err != nil {
				return err
			}
			output.Success("Strategy %s removed.", args[0])
			return nil
		},
	}
}

func newStrategyEnableCmd(app *App, enable bool) *cobra.Command {
	use, short := "enable <id>", "Enable a strategy for the scheduler"
	if !enable {
		use, short = "disable <id>", "Disable a strategy"
	}
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if app.Registry == nil {
				return apperrors.ErrDatabaseError
			}
			if err := app.Registry.SetEnabled(context.Background(), args[0], enable); err != nil {
				return err
			}
			if enable {
				output.Success("Strategy %s enabled.", args[0])
			} else {
				output.Warning("Strategy %s disabled.", args[0])
			}
			return nil
		},
	}
}
