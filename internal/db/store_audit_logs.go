package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/landppt/landppt/internal/models"
)

// CreateAuditLog appends an audit trail entry.
func (db *DB) CreateAuditLog(ctx context.Context, entry *models.AuditLog) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO audit_logs (id, user_id, action, resource_type, resource_id, result, details, ip_address, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, entry.ID, entry.UserID, entry.Action, entry.ResourceType, entry.ResourceID,
		entry.Result, entry.Details, entry.IPAddress, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("create audit log: %w", err)
	}
	return nil
}

// ListAuditLogs returns recent audit entries, optionally filtered by user.
func (db *DB) ListAuditLogs(ctx context.Context, userID *uuid.UUID, limit int) ([]*models.AuditLog, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT id, user_id, action, resource_type, resource_id, result, details, ip_address, created_at
		FROM audit_logs`
	args := []any{}
	if userID != nil {
		query += ` WHERE user_id = $1`
		args = append(args, *userID)
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT %d`, limit)

	rows, err := db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list audit logs: %w", err)
	}
	defer rows.Close()

	var entries []*models.AuditLog
	for rows.Next() {
		var e models.AuditLog
		err := rows.Scan(
			&e.ID, &e.UserID, &e.Action, &e.ResourceType, &e.ResourceID,
			&e.Result, &e.Details, &e.IPAddress, &e.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan audit log: %w", err)
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// CleanupAuditLogs removes audit entries older than the cutoff.
func (db *DB) CleanupAuditLogs(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)
	result, err := db.Pool.Exec(ctx,
		`DELETE FROM audit_logs WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup audit logs: %w", err)
	}
	return result.RowsAffected(), nil
}
