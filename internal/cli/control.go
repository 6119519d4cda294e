package cli

import (
	"context"

	"github.com/spf13/cobra"

	apperrors "straddle-runner/internal/errors"
)

// start and stop flip the enabled flag; a running supervisor picks the
// change up on its next reconcile pass.

func newStartCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "start <id>",
		Short: "Start a strategy",
		Long:  "Mark a strategy enabled so the running scheduler starts ticking it.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if app.Registry == nil {
				return apperrors.ErrDatabaseError
			}
			ctx := context.Background()
			if _, err := app.Registry.GetConfig(ctx, args[0]); err != nil {
				return err
			}
			if err := app.Registry.SetEnabled(ctx, args[0], true); err != nil {
				return err
			}
			output.Success("Strategy %s enabled; the scheduler will start it shortly.", args[0])
			return nil
		},
	}
}

func newStopCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "stop <id>",
		Short: "Stop a strategy",
		Long:  "Mark a strategy disabled so the running scheduler stops ticking it.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if app.Registry == nil {
				return apperrors.ErrDatabaseError
			}
			ctx := context.Background()
			if _, err := app.Registry.GetConfig(ctx, args[0]); err != nil {
				return err
			}
			if err := app.Registry.SetEnabled(ctx, args[0], false); err != nil {
				return err
			}
			output.Warning("Strategy %s disabled; the scheduler will stop it shortly.", args[0])
			return nil
		},
	}
}
