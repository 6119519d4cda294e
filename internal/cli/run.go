package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"straddle-runner/internal/broker"
	apperrors "straddle-runner/internal/errors"
	"straddle-runner/internal/models"
	"straddle-runner/internal/notify"
	"straddle-runner/internal/resilience"
	"straddle-runner/internal/runner"
	"straddle-runner/pkg/utils"
)

func newRunCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the strategy scheduler",
		Long: `Run the scheduler in the foreground.

Every enabled strategy gets its own tick loop; the supervisor picks up
registry changes (enable, disable, remove) while running. Stop with
Ctrl-C; open positions are left standing and recovered on the next run.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if app.Registry == nil {
				return apperrors.ErrDatabaseError
			}

			brk, err := buildBroker(app)
			if err != nil {
				return err
			}

			r := runner.New(runner.Config{
				Broker:            brk,
				Registry:          app.Registry,
				Notify:            notify.NewTerminalNotifier(notify.TerminalConfig{Bell: true}),
				DataDir:           app.Config.Runner.DataDir,
				TickInterval:      app.Config.Runner.TickInterval,
				SuperviseInterval: app.Config.Runner.SuperviseInterval,
				LotSize:           app.Config.Trading.LotSize,
				Product:           models.ProductType(app.Config.Trading.Product),
				DataTimeout:       app.Config.Runner.DataTimeout,
				OrderTimeout:      app.Config.Runner.OrderTimeout,
				Logger:            app.Logger,
			})

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			go func() {
				sig := <-sigCh
				app.Logger.Info().Str("signal", sig.String()).Msg("Shutting down")
				cancel()
			}()

			if !utils.IsMarketOpen(utils.NowIST()) {
				app.Logger.Warn().Msg("Market is closed; engines will tick but no fills are expected")
			}

			app.Logger.Info().
				Str("mode", app.Config.Trading.Mode).
				Str("index", app.Config.Trading.IndexSymbol).
				Msg("Scheduler started")

			r.Supervise(ctx)

			app.Logger.Info().Msg("Scheduler stopped")
			return nil
		},
	}
}

// buildBroker wires the live Kite broker or the paper broker depending on
// the configured trading mode. Paper mode with Kite credentials present
// still pulls real market data; only order placement is simulated.
func buildBroker(app *App) (broker.Broker, error) {
	creds := app.Config.Credentials.Kite
	haveCreds := creds.APIKey != "" && creds.AccessToken != ""

	if app.Config.IsPaperMode() {
		var data broker.MarketData
		if haveCreds {
			kb, err := buildKiteBroker(app)
			if err != nil {
				return nil, err
			}
			data = kb
			app.Logger.Info().Msg("Paper trading mode, live Kite data, simulated orders")
		} else {
			app.Logger.Info().Msg("Paper trading mode, synthetic data, simulated orders")
		}
		return resilience.NewGuardedBroker(broker.NewPaperBroker(broker.PaperConfig{
			Data: data,
			Spot: app.Config.Trading.PaperSpot,
		}), resilience.DefaultCircuitBreakerConfig()), nil
	}

	if !haveCreds {
		return nil, apperrors.Wrap(apperrors.ErrNotAuthenticated,
			"live mode needs kite api_key and access_token")
	}

	kb, err := buildKiteBroker(app)
	if err != nil {
		return nil, err
	}
	app.Logger.Info().Str("index", app.Config.Trading.IndexSymbol).Msg("Kite broker ready")
	return resilience.NewGuardedBroker(kb, resilience.DefaultCircuitBreakerConfig()), nil
}

func buildKiteBroker(app *App) (*broker.KiteBroker, error) {
	creds := app.Config.Credentials.Kite
	kb := broker.NewKiteBroker(broker.KiteConfig{
		APIKey:      creds.APIKey,
		AccessToken: creds.AccessToken,
		IndexSymbol: app.Config.Trading.IndexSymbol,
		OptionName:  app.Config.Trading.OptionName,
		Product:     models.ProductType(app.Config.Trading.Product),
	})

	// The instrument dump resolves strikes to tradeable symbols; quotes and
	// orders both depend on it.
	ctx, cancel := context.WithTimeout(context.Background(), app.Config.Runner.OrderTimeout*3)
	defer cancel()
	if err := kb.LoadInstruments(ctx); err != nil {
		return nil, apperrors.Wrap(err, "loading NFO instruments")
	}
	return kb, nil
}
