package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `# Straddle Runner Configuration

[trading]
# Trading mode: "live" or "paper"
mode = "paper"
# Underlying index quoted for spot samples
index_symbol = "NSE:NIFTY 50"
# Instrument name of the option series on NFO
option_name = "NIFTY"
# Contract lot size
lot_size = 75
# Product type for option legs: NRML, MIS
product = "NRML"

[runner]
# Tick cadence shared by all strategies
tick_interval = "2s"
# How often the supervisor reconciles enabled flags with running engines
supervise_interval = "5s"
# Timeout for a single market data call
data_timeout = "5s"
# Timeout for a single order placement call
order_timeout = "10s"
# Event stream directory (default: <config>/data)
data_dir = ""
# Registry database path (default: <config>/runner.db)
db_path = ""

[logging]
level = "info"
console = true
file = true
max_size = 100
max_backups = 7
max_age = 30
`

const credentialsTemplate = `# Straddle Runner Credentials
# WARNING: Keep this file secure! Do not commit to version control.
# The access token expires daily; refresh it with your Kite login flow
# or set KITE_ACCESS_TOKEN in the environment.

[kite]
api_key = ""
api_secret = ""
access_token = ""
`

func createTemplateConfig(configDir string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, "config.toml")
	if err := os.WriteFile(path, []byte(configTemplate), 0644); err != nil {
		return fmt.Errorf("writing config template: %w", err)
	}

	return nil
}

func createTemplateCredentials(configDir string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, "credentials.toml")
	// Use restricted permissions for credentials file
	if err := os.WriteFile(path, []byte(credentialsTemplate), 0600); err != nil {
		return fmt.Errorf("writing credentials template: %w", err)
	}

	return nil
}
