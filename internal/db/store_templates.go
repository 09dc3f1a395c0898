package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/landppt/landppt/internal/models"
)

const templateColumns = `id, template_name, description, html_template, preview_image,
	style_config, tags, is_default, is_active, usage_count, created_by, created_at, updated_at`

func scanTemplate(row pgx.Row) (*models.MasterTemplate, error) {
	var t models.MasterTemplate
	err := row.Scan(
		&t.ID, &t.Name, &t.Description, &t.HTMLTemplate, &t.PreviewImage,
		&t.StyleConfig, &t.Tags, &t.IsDefault, &t.IsActive, &t.UsageCount,
		&t.CreatedBy, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

// CreateMasterTemplate inserts a template and assigns its generated ID.
func (db *DB) CreateMasterTemplate(ctx context.Context, t *models.MasterTemplate) error {
	err := db.Pool.QueryRow(ctx, `
		INSERT INTO master_templates (template_name, description, html_template, preview_image,
			style_config, tags, is_default, is_active, usage_count, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id
	`, t.Name, t.Description, t.HTMLTemplate, t.PreviewImage, t.StyleConfig, t.Tags,
		t.IsDefault, t.IsActive, t.UsageCount, t.CreatedBy, t.CreatedAt, t.UpdatedAt).Scan(&t.ID)
	if err != nil {
		return fmt.Errorf("create master template: %w", err)
	}
	return nil
}

// GetMasterTemplateByID returns a template by ID.
func (db *DB) GetMasterTemplateByID(ctx context.Context, id int64) (*models.MasterTemplate, error) {
	t, err := scanTemplate(db.Pool.QueryRow(ctx,
		`SELECT `+templateColumns+` FROM master_templates WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get master template by ID: %w", err)
	}
	return t, nil
}

// GetDefaultMasterTemplate returns the active default template.
func (db *DB) GetDefaultMasterTemplate(ctx context.Context) (*models.MasterTemplate, error) {
	t, err := scanTemplate(db.Pool.QueryRow(ctx,
		`SELECT `+templateColumns+` FROM master_templates WHERE is_default = true AND is_active = true`))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get default master template: %w", err)
	}
	return t, nil
}

// ListMasterTemplates returns templates, optionally only active ones.
// The HTML body is omitted from listings to keep responses small.
func (db *DB) ListMasterTemplates(ctx context.Context, activeOnly bool) ([]*models.MasterTemplate, error) {
	query := `
		SELECT id, template_name, description, ''::text, preview_image,
			style_config, tags, is_default, is_active, usage_count, created_by, created_at, updated_at
		FROM master_templates`
	if activeOnly {
		query += ` WHERE is_active = true`
	}
	query += ` ORDER BY is_default DESC, usage_count DESC, template_name`

	rows, err := db.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list master templates: %w", err)
	}
	defer rows.Close()

	var templates []*models.MasterTemplate
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan master template: %w", err)
		}
		templates = append(templates, t)
	}
	return templates, rows.Err()
}

// UpdateMasterTemplate persists the mutable fields of a template.
func (db *DB) UpdateMasterTemplate(ctx context.Context, t *models.MasterTemplate) error {
	t.UpdatedAt = time.Now()
	result, err := db.Pool.Exec(ctx, `
		UPDATE master_templates
		SET template_name = $2, description = $3, html_template = $4, preview_image = $5,
			style_config = $6, tags = $7, is_active = $8, updated_at = $9
		WHERE id = $1
	`, t.ID, t.Name, t.Description, t.HTMLTemplate, t.PreviewImage,
		t.StyleConfig, t.Tags, t.IsActive, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update master template: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetDefaultMasterTemplate makes the given template the single default.
func (db *DB) SetDefaultMasterTemplate(ctx context.Context, id int64) error {
	return db.ExecTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`UPDATE master_templates SET is_default = false WHERE is_default = true`); err != nil {
			return fmt.Errorf("clear default template: %w", err)
		}
		result, err := tx.Exec(ctx,
			`UPDATE master_templates SET is_default = true, updated_at = NOW() WHERE id = $1 AND is_active = true`, id)
		if err != nil {
			return fmt.Errorf("set default template: %w", err)
		}
		if result.RowsAffected() == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// IncrementTemplateUsage bumps a template's usage counter.
func (db *DB) IncrementTemplateUsage(ctx context.Context, id int64) error {
	_, err := db.Pool.Exec(ctx,
		`UPDATE master_templates SET usage_count = usage_count + 1 WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("increment template usage: %w", err)
	}
	return nil
}

// DeleteMasterTemplate removes a template. The default template cannot be
// deleted.
func (db *DB) DeleteMasterTemplate(ctx context.Context, id int64) error {
	result, err := db.Pool.Exec(ctx,
		`DELETE FROM master_templates WHERE id = $1 AND is_default = false`, id)
	if err != nil {
		return fmt.Errorf("delete master template: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
