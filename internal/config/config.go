// Package config provides configuration management for the strategy runner.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration. Per-strategy parameters live in
// the registry, not here; this file covers the process-wide settings.
type Config struct {
	Trading     TradingConfig `mapstructure:"trading"`
	Runner      RunnerConfig  `mapstructure:"runner"`
	Logging     LoggingConfig `mapstructure:"logging"`
	Credentials Credentials   `mapstructure:"-"` // Loaded separately
}

// TradingConfig holds market-related configuration.
type TradingConfig struct {
	Mode        string  `mapstructure:"mode"`         // "live", "paper"
	IndexSymbol string  `mapstructure:"index_symbol"` // e.g. "NSE:NIFTY 50"
	OptionName  string  `mapstructure:"option_name"`  // instrument name on NFO, e.g. "NIFTY"
	LotSize     int     `mapstructure:"lot_size"`
	Product     string  `mapstructure:"product"` // MIS, NRML
	PaperSpot   float64 `mapstructure:"paper_spot"` // starting spot for paper mode without a data feed
}

// RunnerConfig holds scheduler and persistence configuration.
type RunnerConfig struct {
	DataDir           string        `mapstructure:"data_dir"`
	DBPath            string        `mapstructure:"db_path"`
	TickInterval      time.Duration `mapstructure:"tick_interval"`
	SuperviseInterval time.Duration `mapstructure:"supervise_interval"`
	DataTimeout       time.Duration `mapstructure:"data_timeout"`
	OrderTimeout      time.Duration `mapstructure:"order_timeout"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Console    bool   `mapstructure:"console"`
	File       bool   `mapstructure:"file"`
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
}

// Credentials holds API credentials.
type Credentials struct {
	Kite KiteCredentials `mapstructure:"kite"`
}

// KiteCredentials holds Zerodha Kite Connect credentials. The access token is
// generated daily by the operator's token flow and handed in whole.
type KiteCredentials struct {
	APIKey      string `mapstructure:"api_key"`
	APISecret   string `mapstructure:"api_secret"`
	AccessToken string `mapstructure:"access_token"`
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/straddle-runner"
	}
	return filepath.Join(home, ".config", "straddle-runner")
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	cfg := &Config{}

	if err := loadConfigFile(configDir, cfg); err != nil {
		return nil, fmt.Errorf("loading config.toml: %w", err)
	}

	if err := loadCredentials(configDir, &cfg.Credentials); err != nil {
		return nil, fmt.Errorf("loading credentials.toml: %w", err)
	}

	applyDefaults(cfg, configDir)
	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func loadConfigFile(configDir string, target *Config) error {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	v.SetDefault("trading.mode", "paper")
	v.SetDefault("trading.index_symbol", "NSE:NIFTY 50")
	v.SetDefault("trading.option_name", "NIFTY")
	v.SetDefault("trading.lot_size", 75)
	v.SetDefault("trading.product", "NRML")
	v.SetDefault("runner.tick_interval", 2*time.Second)
	v.SetDefault("runner.supervise_interval", 5*time.Second)
	v.SetDefault("runner.data_timeout", 5*time.Second)
	v.SetDefault("runner.order_timeout", 10*time.Second)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.console", true)
	v.SetDefault("logging.file", true)
	v.SetDefault("logging.max_size", 100)
	v.SetDefault("logging.max_backups", 7)
	v.SetDefault("logging.max_age", 30)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			if err := createTemplateConfig(configDir); err != nil {
				return err
			}
			// Defaults carry the first run.
			return v.Unmarshal(target)
		}
		return err
	}

	return v.Unmarshal(target)
}

func loadCredentials(configDir string, creds *Credentials) error {
	v := viper.New()
	v.SetConfigName("credentials")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return createTemplateCredentials(configDir)
		}
		return err
	}

	return v.Unmarshal(creds)
}

func applyDefaults(cfg *Config, configDir string) {
	if cfg.Runner.DataDir == "" {
		cfg.Runner.DataDir = filepath.Join(configDir, "data")
	}
	if cfg.Runner.DBPath == "" {
		cfg.Runner.DBPath = filepath.Join(configDir, "runner.db")
	}
	if cfg.Logging.FilePath == "" {
		cfg.Logging.FilePath = filepath.Join(configDir, "logs", "runner.log")
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("KITE_API_KEY"); v != "" {
		cfg.Credentials.Kite.APIKey = v
	}
	if v := os.Getenv("KITE_API_SECRET"); v != "" {
		cfg.Credentials.Kite.APISecret = v
	}
	if v := os.Getenv("KITE_ACCESS_TOKEN"); v != "" {
		cfg.Credentials.Kite.AccessToken = v
	}
	if v := os.Getenv("TRADING_MODE"); v != "" {
		cfg.Trading.Mode = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Trading.Mode != "" && c.Trading.Mode != "live" && c.Trading.Mode != "paper" {
		return fmt.Errorf("invalid trading mode: %s (must be 'live' or 'paper')", c.Trading.Mode)
	}
	if c.Trading.LotSize <= 0 {
		return fmt.Errorf("lot_size must be positive, got %d", c.Trading.LotSize)
	}
	if c.Runner.TickInterval <= 0 {
		return fmt.Errorf("tick_interval must be positive, got %s", c.Runner.TickInterval)
	}
	if c.Runner.DataTimeout <= 0 || c.Runner.OrderTimeout <= 0 {
		return fmt.Errorf("data_timeout and order_timeout must be positive")
	}
	if c.Trading.Mode == "live" && c.Credentials.Kite.APIKey == "" {
		return fmt.Errorf("live mode requires kite credentials (see credentials.toml)")
	}
	return nil
}

// IsPaperMode returns true if paper trading mode is enabled.
func (c *Config) IsPaperMode() bool {
	return c.Trading.Mode == "paper"
}
