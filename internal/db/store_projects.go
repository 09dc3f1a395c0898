package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/landppt/landppt/internal/models"
)

const projectColumns = `id, owner_id, title, scenario, topic, requirements, language, status,
	outline, slides, confirmed_requirements, metadata, todo_board, version, versions, created_at, updated_at`

func scanProject(row pgx.Row) (*models.Project, error) {
	var p models.Project
	err := row.Scan(
		&p.ID, &p.OwnerID, &p.Title, &p.Scenario, &p.Topic, &p.Requirements, &p.Language, &p.Status,
		&p.Outline, &p.Slides, &p.ConfirmedRequirements, &p.Metadata, &p.TodoBoard,
		&p.Version, &p.Versions, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

// CreateProject inserts a new project. Structured fields (outline, slides,
// board, version history) are stored as JSONB.
func (db *DB) CreateProject(ctx context.Context, project *models.Project) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO projects (id, owner_id, title, scenario, topic, requirements, language, status,
			outline, slides, confirmed_requirements, metadata, todo_board, version, versions, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`, project.ID, project.OwnerID, project.Title, project.Scenario, project.Topic,
		project.Requirements, project.Language, project.Status,
		project.Outline, project.Slides, project.ConfirmedRequirements, project.Metadata,
		project.TodoBoard, project.Version, project.Versions, project.CreatedAt, project.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create project: %w", err)
	}
	return nil
}

// GetProjectByID returns a project by ID.
func (db *DB) GetProjectByID(ctx context.Context, id uuid.UUID) (*models.Project, error) {
	p, err := scanProject(db.Pool.QueryRow(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get project by ID: %w", err)
	}
	return p, nil
}

// ListProjectsByOwner returns a page of the owner's projects, newest first.
// An empty status matches every status.
func (db *DB) ListProjectsByOwner(ctx context.Context, ownerID uuid.UUID, status models.ProjectStatus, limit, offset int) ([]*models.Project, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	query := `SELECT ` + projectColumns + ` FROM projects WHERE owner_id = $1`
	args := []any{ownerID}
	if status != "" {
		query += ` AND status = $2`
		args = append(args, status)
	}
	query += fmt.Sprintf(` ORDER BY updated_at DESC LIMIT %d OFFSET %d`, limit, offset)

	rows, err := db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var projects []*models.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// CountProjectsByOwner returns the number of projects an owner has,
// optionally filtered by status.
func (db *DB) CountProjectsByOwner(ctx context.Context, ownerID uuid.UUID, status models.ProjectStatus) (int64, error) {
	query := `SELECT COUNT(*) FROM projects WHERE owner_id = $1`
	args := []any{ownerID}
	if status != "" {
		query += ` AND status = $2`
		args = append(args, status)
	}

	var count int64
	if err := db.Pool.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count projects: %w", err)
	}
	return count, nil
}

// UpdateProject persists the mutable fields of a project.
func (db *DB) UpdateProject(ctx context.Context, project *models.Project) error {
	project.UpdatedAt = time.Now()
	result, err := db.Pool.Exec(ctx, `
		UPDATE projects
		SET title = $2, status = $3, outline = $4, slides = $5, confirmed_requirements = $6,
			metadata = $7, todo_board = $8, version = $9, versions = $10, updated_at = $11
		WHERE id = $1
	`, project.ID, project.Title, project.Status, project.Outline, project.Slides,
		project.ConfirmedRequirements, project.Metadata, project.TodoBoard,
		project.Version, project.Versions, project.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update project: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteProject removes a project owned by the given user.
func (db *DB) DeleteProject(ctx context.Context, id, ownerID uuid.UUID) error {
	result, err := db.Pool.Exec(ctx,
		`DELETE FROM projects WHERE id = $1 AND owner_id = $2`, id, ownerID)
	if err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// TrimProjectVersions drops version history entries older than the cutoff
// for every project, keeping the most recent maxKeep entries regardless of
// age. Returns the number of projects rewritten.
func (db *DB) TrimProjectVersions(ctx context.Context, cutoff time.Time, maxKeep int) (int64, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE versions IS NOT NULL`)
	if err != nil {
		return 0, fmt.Errorf("list projects for version trim: %w", err)
	}
	defer rows.Close()

	var candidates []*models.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return 0, fmt.Errorf("scan project: %w", err)
		}
		candidates = append(candidates, p)
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}

	var trimmed int64
	for _, p := range candidates {
		kept := p.Versions[:0:0]
		for i, v := range p.Versions {
			if v.CreatedAt.After(cutoff) || len(p.Versions)-i <= maxKeep {
				kept = append(kept, v)
			}
		}
		if len(kept) == len(p.Versions) {
			continue
		}
		p.Versions = kept
		if err := db.UpdateProject(ctx, p); err != nil {
			return trimmed, fmt.Errorf("trim versions for project %s: %w", p.ID, err)
		}
		trimmed++
	}
	return trimmed, nil
}
