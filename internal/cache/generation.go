package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/landppt/landppt/internal/models"
)

// Cache key prefixes and TTLs.
const (
	outlineKeyPrefix = "outline:"
	boardKeyPrefix   = "board:"
	scenariosKey     = "scenarios"

	// DefaultOutlineTTL is the TTL for cached outlines.
	DefaultOutlineTTL = time.Hour

	// BoardTTL is the TTL for generation board snapshots. Boards are
	// refreshed on every progress event, so a short TTL is enough.
	BoardTTL = 10 * time.Minute

	// ScenariosTTL is the TTL for the scenario catalog.
	ScenariosTTL = 12 * time.Hour
)

// GetOutline retrieves a cached outline for a project.
// Returns ErrCacheMiss if not found.
func (c *Cache) GetOutline(ctx context.Context, projectID uuid.UUID) (*models.Outline, error) {
	raw, err := c.client.Get(ctx, outlineKeyPrefix+projectID.String()).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("redis get outline failed: %w", err)
	}

	var outline models.Outline
	if err := json.Unmarshal(raw, &outline); err != nil {
		return nil, fmt.Errorf("decode cached outline: %w", err)
	}
	return &outline, nil
}

// SetOutline caches a project's outline.
func (c *Cache) SetOutline(ctx context.Context, projectID uuid.UUID, outline *models.Outline) error {
	raw, err := json.Marshal(outline)
	if err != nil {
		return fmt.Errorf("encode outline: %w", err)
	}
	if err := c.client.Set(ctx, outlineKeyPrefix+projectID.String(), raw, DefaultOutlineTTL).Err(); err != nil {
		return fmt.Errorf("failed to cache outline: %w", err)
	}
	return nil
}

// DeleteOutline removes a cached outline.
func (c *Cache) DeleteOutline(ctx context.Context, projectID uuid.UUID) error {
	if err := c.client.Del(ctx, outlineKeyPrefix+projectID.String()).Err(); err != nil {
		return fmt.Errorf("failed to delete cached outline: %w", err)
	}
	return nil
}

// GetBoard retrieves the latest generation board snapshot for a project.
// Returns ErrCacheMiss if not found.
func (c *Cache) GetBoard(ctx context.Context, projectID uuid.UUID) (*models.TodoBoard, error) {
	raw, err := c.client.Get(ctx, boardKeyPrefix+projectID.String()).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("redis get board failed: %w", err)
	}

	var board models.TodoBoard
	if err := json.Unmarshal(raw, &board); err != nil {
		return nil, fmt.Errorf("decode cached board: %w", err)
	}
	return &board, nil
}

// SetBoard caches a generation board snapshot. Clients that reconnect to
// the progress stream read this before live events arrive.
func (c *Cache) SetBoard(ctx context.Context, board *models.TodoBoard) error {
	raw, err := json.Marshal(board)
	if err != nil {
		return fmt.Errorf("encode board: %w", err)
	}
	if err := c.client.Set(ctx, boardKeyPrefix+board.ProjectID.String(), raw, BoardTTL).Err(); err != nil {
		return fmt.Errorf("failed to cache board: %w", err)
	}
	return nil
}

// GetScenarios retrieves the cached scenario catalog.
// Returns ErrCacheMiss if not found.
func (c *Cache) GetScenarios(ctx context.Context) ([]models.Scenario, error) {
	raw, err := c.client.Get(ctx, scenariosKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("redis get scenarios failed: %w", err)
	}

	var scenarios []models.Scenario
	if err := json.Unmarshal(raw, &scenarios); err != nil {
		return nil, fmt.Errorf("decode cached scenarios: %w", err)
	}
	return scenarios, nil
}

// SetScenarios caches the scenario catalog.
func (c *Cache) SetScenarios(ctx context.Context, scenarios []models.Scenario) error {
	raw, err := json.Marshal(scenarios)
	if err != nil {
		return fmt.Errorf("encode scenarios: %w", err)
	}
	if err := c.client.Set(ctx, scenariosKey, raw, ScenariosTTL).Err(); err != nil {
		return fmt.Errorf("failed to cache scenarios: %w", err)
	}
	return nil
}
