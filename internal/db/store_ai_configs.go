package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/landppt/landppt/internal/models"
)

const aiConfigColumns = `id, provider, model, base_url, encrypted_api_key, max_tokens, temperature, is_default, created_at, updated_at`

func scanAIConfig(row pgx.Row) (*models.AIConfig, error) {
	var c models.AIConfig
	err := row.Scan(
		&c.ID, &c.Provider, &c.Model, &c.BaseURL, &c.EncryptedAPIKey,
		&c.MaxTokens, &c.Temperature, &c.IsDefault, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

// CreateAIConfig inserts a provider configuration and assigns its ID.
func (db *DB) CreateAIConfig(ctx context.Context, cfg *models.AIConfig) error {
	now := time.Now()
	cfg.CreatedAt = now
	cfg.UpdatedAt = now
	err := db.Pool.QueryRow(ctx, `
		INSERT INTO ai_configs (provider, model, base_url, encrypted_api_key, max_tokens, temperature, is_default, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`, cfg.Provider, cfg.Model, cfg.BaseURL, cfg.EncryptedAPIKey,
		cfg.MaxTokens, cfg.Temperature, cfg.IsDefault, cfg.CreatedAt, cfg.UpdatedAt).Scan(&cfg.ID)
	if err != nil {
		return fmt.Errorf("create AI config: %w", err)
	}
	return nil
}

// GetAIConfigByID returns a provider configuration by ID.
func (db *DB) GetAIConfigByID(ctx context.Context, id int64) (*models.AIConfig, error) {
	c, err := scanAIConfig(db.Pool.QueryRow(ctx,
		`SELECT `+aiConfigColumns+` FROM ai_configs WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get AI config by ID: %w", err)
	}
	return c, nil
}

// GetDefaultAIConfig returns the configuration marked as default.
func (db *DB) GetDefaultAIConfig(ctx context.Context) (*models.AIConfig, error) {
	c, err := scanAIConfig(db.Pool.QueryRow(ctx,
		`SELECT `+aiConfigColumns+` FROM ai_configs WHERE is_default = true`))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get default AI config: %w", err)
	}
	return c, nil
}

// ListAIConfigs returns all provider configurations.
func (db *DB) ListAIConfigs(ctx context.Context) ([]*models.AIConfig, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT `+aiConfigColumns+` FROM ai_configs ORDER BY is_default DESC, provider, model`)
	if err != nil {
		return nil, fmt.Errorf("list AI configs: %w", err)
	}
	defer rows.Close()

	var configs []*models.AIConfig
	for rows.Next() {
		c, err := scanAIConfig(rows)
		if err != nil {
			return nil, fmt.Errorf("scan AI config: %w", err)
		}
		configs = append(configs, c)
	}
	return configs, rows.Err()
}

// UpdateAIConfig persists a provider configuration.
func (db *DB) UpdateAIConfig(ctx context.Context, cfg *models.AIConfig) error {
	cfg.UpdatedAt = time.Now()
	result, err := db.Pool.Exec(ctx, `
		UPDATE ai_configs
		SET provider = $2, model = $3, base_url = $4, encrypted_api_key = $5,
			max_tokens = $6, temperature = $7, updated_at = $8
		WHERE id = $1
	`, cfg.ID, cfg.Provider, cfg.Model, cfg.BaseURL, cfg.EncryptedAPIKey,
		cfg.MaxTokens, cfg.Temperature, cfg.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update AI config: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetDefaultAIConfig makes the given configuration the single default.
func (db *DB) SetDefaultAIConfig(ctx context.Context, id int64) error {
	return db.ExecTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`UPDATE ai_configs SET is_default = false WHERE is_default = true`); err != nil {
			return fmt.Errorf("clear default AI config: %w", err)
		}
		result, err := tx.Exec(ctx,
			`UPDATE ai_configs SET is_default = true, updated_at = NOW() WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("set default AI config: %w", err)
		}
		if result.RowsAffected() == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// DeleteAIConfig removes a provider configuration.
func (db *DB) DeleteAIConfig(ctx context.Context, id int64) error {
	result, err := db.Pool.Exec(ctx, `DELETE FROM ai_configs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete AI config: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
