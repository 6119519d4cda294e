package registry

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	apperrors "straddle-runner/internal/errors"
	"straddle-runner/internal/models"
)

// SQLiteRegistry implements Registry on SQLite.
type SQLiteRegistry struct {
	db *sql.DB
}

// NewSQLiteRegistry opens (creating if needed) the registry database.
func NewSQLiteRegistry(dbPath string) (*SQLiteRegistry, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	r := &SQLiteRegistry{db: db}
	if err := r.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return r, nil
}

func (r *SQLiteRegistry) initSchema() error {
	schema := `
	-- Strategy configurations
	CREATE TABLE IF NOT EXISTS strategies (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		entry_threshold REAL NOT NULL,
		exit_profit REAL NOT NULL,
		exit_move REAL NOT NULL,
		strike_offset REAL NOT NULL,
		initial_trigger_gap REAL NOT NULL,
		subsequent_trigger_gap REAL NOT NULL,
		expiry_date DATETIME NOT NULL,
		cutoff_time TEXT NOT NULL,
		rearm_policy TEXT NOT NULL DEFAULT 'hold',
		enabled INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	-- Latest heartbeat snapshot, one row per strategy
	CREATE TABLE IF NOT EXISTS strategy_status (
		strategy_id TEXT PRIMARY KEY,
		running INTEGER NOT NULL DEFAULT 0,
		position TEXT,
		armed_up REAL,
		armed_down REAL,
		last_spot REAL,
		unrealized_pnl REAL,
		last_error TEXT,
		updated_at DATETIME NOT NULL
	);
	`

	_, err := r.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (r *SQLiteRegistry) Close() error {
	return r.db.Close()
}

// SaveConfig inserts or updates a strategy configuration.
func (r *SQLiteRegistry) SaveConfig(ctx context.Context, cfg models.StrategyConfig) error {
	query := `
	INSERT INTO strategies (id, name, entry_threshold, exit_profit, exit_move,
		strike_offset, initial_trigger_gap, subsequent_trigger_gap,
		expiry_date, cutoff_time, rearm_policy, enabled, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
	ON CONFLICT(id) DO UPDATE SET
		name = excluded.name,
		entry_threshold = excluded.entry_threshold,
		exit_profit = excluded.exit_profit,
		exit_move = excluded.exit_move,
		strike_offset = excluded.strike_offset,
		initial_trigger_gap = excluded.initial_trigger_gap,
		subsequent_trigger_gap = excluded.subsequent_trigger_gap,
		expiry_date = excluded.expiry_date,
		cutoff_time = excluded.cutoff_time,
		rearm_policy = excluded.rearm_policy,
		enabled = excluded.enabled,
		updated_at = CURRENT_TIMESTAMP
	`

	policy := cfg.RearmPolicy
	if policy == "" {
		policy = models.RearmHold
	}

	_, err := r.db.ExecContext(ctx, query,
		cfg.ID, cfg.Name, cfg.EntryThreshold, cfg.ExitProfit, cfg.ExitMove,
		cfg.StrikeOffset, cfg.InitialTriggerGap, cfg.SubsequentTriggerGap,
		cfg.Expiry, cfg.CutoffTime, string(policy), boolToInt(cfg.Enabled))
	if err != nil {
		return fmt.Errorf("failed to save strategy %s: %w", cfg.ID, err)
	}
	return nil
}

const configColumns = `id, name, entry_threshold, exit_profit, exit_move,
	strike_offset, initial_trigger_gap, subsequent_trigger_gap,
	expiry_date, cutoff_time, rearm_policy, enabled, created_at, updated_at`

// GetConfig returns one strategy configuration.
func (r *SQLiteRegistry) GetConfig(ctx context.Context, id string) (*models.StrategyConfig, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+configColumns+" FROM strategies WHERE id = ?", id)

	cfg, err := scanConfig(row)
	if err == sql.ErrNoRows {
		return nil, apperrors.Wrapf(apperrors.ErrStrategyNotFound, "strategy %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get strategy %s: %w", id, err)
	}
	return cfg, nil
}

// ListConfigs returns all strategy configurations.
func (r *SQLiteRegistry) ListConfigs(ctx context.Context) ([]models.StrategyConfig, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+configColumns+" FROM strategies ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to list strategies: %w", err)
	}
	defer rows.Close()

	var configs []models.StrategyConfig
	for rows.Next() {
		cfg, err := scanConfig(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan strategy: %w", err)
		}
		configs = append(configs, *cfg)
	}
	return configs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConfig(row rowScanner) (*models.StrategyConfig, error) {
	var cfg models.StrategyConfig
	var policy string
	var enabled int

	err := row.Scan(&cfg.ID, &cfg.Name, &cfg.EntryThreshold, &cfg.ExitProfit,
		&cfg.ExitMove, &cfg.StrikeOffset, &cfg.InitialTriggerGap,
		&cfg.SubsequentTriggerGap, &cfg.Expiry, &cfg.CutoffTime,
		&policy, &enabled, &cfg.CreatedAt, &cfg.UpdatedAt)
	if err != nil {
		return nil, err
	}
	cfg.RearmPolicy = models.RearmPolicy(policy)
	cfg.Enabled = enabled != 0
	return &cfg, nil
}

// DeleteConfig removes a strategy and its status row.
func (r *SQLiteRegistry) DeleteConfig(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM strategies WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete strategy %s: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return apperrors.Wrapf(apperrors.ErrStrategyNotFound, "strategy %s", id)
	}

	_, err = r.db.ExecContext(ctx, "DELETE FROM strategy_status WHERE strategy_id = ?", id)
	return err
}

// SetEnabled flips the enabled flag of a strategy.
func (r *SQLiteRegistry) SetEnabled(ctx context.Context, id string, enabled bool) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE strategies SET enabled = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?",
		boolToInt(enabled), id)
	if err != nil {
		return fmt.Errorf("failed to update strategy %s: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return apperrors.Wrapf(apperrors.ErrStrategyNotFound, "strategy %s", id)
	}
	return nil
}

// PutStatus overwrites the status snapshot of a strategy.
func (r *SQLiteRegistry) PutStatus(ctx context.Context, status models.StrategyStatus) error {
	var positionJSON any
	if status.Position != nil {
		data, err := json.Marshal(status.Position)
		if err != nil {
			return fmt.Errorf("failed to encode position: %w", err)
		}
		positionJSON = string(data)
	}

	query := `
	INSERT INTO strategy_status (strategy_id, running, position, armed_up,
		armed_down, last_spot, unrealized_pnl, last_error, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(strategy_id) DO UPDATE SET
		running = excluded.running,
		position = excluded.position,
		armed_up = excluded.armed_up,
		armed_down = excluded.armed_down,
		last_spot = excluded.last_spot,
		unrealized_pnl = excluded.unrealized_pnl,
		last_error = excluded.last_error,
		updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, query,
		status.StrategyID, boolToInt(status.Running), positionJSON,
		status.ArmedUp, status.ArmedDown, status.LastSpot,
		status.UnrealizedPnL, status.LastError, status.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save status for %s: %w", status.StrategyID, err)
	}
	return nil
}

// GetStatus returns the latest status snapshot of a strategy.
func (r *SQLiteRegistry) GetStatus(ctx context.Context, id string) (*models.StrategyStatus, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT strategy_id, running, position, armed_up, armed_down,
			last_spot, unrealized_pnl, last_error, updated_at
		FROM strategy_status WHERE strategy_id = ?`, id)

	status, err := scanStatus(row)
	if err == sql.ErrNoRows {
		return nil, apperrors.Wrapf(apperrors.ErrStrategyNotFound, "status for %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get status for %s: %w", id, err)
	}
	return status, nil
}

// ListStatuses returns the latest snapshot of every strategy.
func (r *SQLiteRegistry) ListStatuses(ctx context.Context) ([]models.StrategyStatus, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT strategy_id, running, position, armed_up, armed_down,
			last_spot, unrealized_pnl, last_error, updated_at
		FROM strategy_status ORDER BY strategy_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list statuses: %w", err)
	}
	defer rows.Close()

	var statuses []models.StrategyStatus
	for rows.Next() {
		status, err := scanStatus(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan status: %w", err)
		}
		statuses = append(statuses, *status)
	}
	return statuses, rows.Err()
}

func scanStatus(row rowScanner) (*models.StrategyStatus, error) {
	var status models.StrategyStatus
	var running int
	var positionJSON sql.NullString

	err := row.Scan(&status.StrategyID, &running, &positionJSON,
		&status.ArmedUp, &status.ArmedDown, &status.LastSpot,
		&status.UnrealizedPnL, &status.LastError, &status.UpdatedAt)
	if err != nil {
		return nil, err
	}
	status.Running = running != 0

	if positionJSON.Valid && positionJSON.String != "" {
		var pos models.Position
		if err := json.Unmarshal([]byte(positionJSON.String), &pos); err != nil {
			return nil, fmt.Errorf("failed to decode position: %w", err)
		}
		status.Position = &pos
	}
	return &status, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
