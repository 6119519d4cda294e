// Package registry provides persistence for strategy configurations and
// their heartbeat status snapshots.
package registry

import (
	"context"

	"straddle-runner/internal/models"
)

// Registry is the configuration and status store for strategies.
type Registry interface {
	// SaveConfig inserts or updates a strategy configuration.
	SaveConfig(ctx context.Context, cfg models.StrategyConfig) error

	// GetConfig returns one strategy configuration by id.
	GetConfig(ctx context.Context, id string) (*models.StrategyConfig, error)

	// ListConfigs returns all strategy configurations ordered by id.
	ListConfigs(ctx context.Context) ([]models.StrategyConfig, error)

	// DeleteConfig removes a strategy configuration and its status row.
	DeleteConfig(ctx context.Context, id string) error

	// SetEnabled flips the enabled flag of a strategy.
	SetEnabled(ctx context.Context, id string, enabled bool) error

	// PutStatus overwrites the status snapshot of a strategy.
	PutStatus(ctx context.Context, status models.StrategyStatus) error

	// GetStatus returns the latest status snapshot of a strategy.
	GetStatus(ctx context.Context, id string) (*models.StrategyStatus, error)

	// ListStatuses returns the latest snapshot of every strategy.
	ListStatuses(ctx context.Context) ([]models.StrategyStatus, error)

	// Close releases the underlying store.
	Close() error
}
