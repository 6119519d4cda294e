package cli

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"straddle-runner/internal/config"
	"straddle-runner/internal/logging"
	"straddle-runner/internal/registry"
)

// Version information
const (
	Version = "0.2.0"
)

// App holds the application dependencies.
type App struct {
	Config   *config.Config
	Logger   zerolog.Logger
	Registry registry.Registry
}

// NewRootCmd creates the root command for the CLI.
func NewRootCmd(cfg *config.Config, logger zerolog.Logger) *cobra.Command {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	reg, err := registry.NewSQLiteRegistry(cfg.Runner.DBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to open strategy registry, some commands may be unavailable")
	} else {
		app.Registry = reg
		logger.Debug().Str("path", cfg.Runner.DBPath).Msg("Strategy registry opened")
	}

	rootCmd := &cobra.Command{
		Use:   "straddle-runner",
		Short: "Index option straddle automation for Zerodha Kite",
		Long: `Straddle Runner automates short straddle strategies on index options.

Each strategy watches the index spot, sells a CE/PE pair when an armed
trigger level is crossed and the combined premium clears its threshold,
and exits on a profit target, an adverse spot move, or the daily cutoff.

Use 'straddle-runner strategy add' to define a strategy and
'straddle-runner run' to start the scheduler.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			debug, _ := cmd.Flags().GetBool("debug")
			if debug {
				logging.SetDebugLevel()
				app.Logger = app.Logger.Level(zerolog.DebugLevel)
			}
			return nil
		},
	}

	// Global flags
	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/straddle-runner)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(app))
	rootCmd.AddCommand(newStrategyCmd(app))
	rootCmd.AddCommand(newStartCmd(app))
	rootCmd.AddCommand(newStopCmd(app))
	rootCmd.AddCommand(newStatusCmd(app))
	rootCmd.AddCommand(newRunCmd(app))
	rootCmd.AddCommand(newLogCmd(app))

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{"version": Version})
			} else {
				output.Printf("Straddle Runner v%s\n", Version)
			}
		},
	}
}

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  "View and manage application configuration.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(app.Config)
			}
			output.Info("Trading")
			output.Printf("  mode:          %s\n", app.Config.Trading.Mode)
			output.Printf("  index:         %s\n", app.Config.Trading.IndexSymbol)
			output.Printf("  option name:   %s\n", app.Config.Trading.OptionName)
			output.Printf("  lot size:      %d\n", app.Config.Trading.LotSize)
			output.Printf("  product:       %s\n", app.Config.Trading.Product)
			output.Info("Runner")
			output.Printf("  data dir:      %s\n", app.Config.Runner.DataDir)
			output.Printf("  database:      %s\n", app.Config.Runner.DBPath)
			output.Printf("  tick:          %s\n", app.Config.Runner.TickInterval)
			output.Printf("  supervise:     %s\n", app.Config.Runner.SuperviseInterval)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration directory path",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{"path": config.DefaultConfigDir()})
			} else {
				output.Println(config.DefaultConfigDir())
			}
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration files",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.Config.Validate(); err != nil {
				return err
			}
			output.Success("Configuration is valid.")
			return nil
		},
	})

	return cmd
}
