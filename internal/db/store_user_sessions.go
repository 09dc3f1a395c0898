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

// CreateUserSession creates a new user session record.
func (db *DB) CreateUserSession(ctx context.Context, session *models.UserSession) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO user_sessions (id, user_id, session_token_hash, ip_address, user_agent, created_at, last_active_at, expires_at, revoked)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, session.ID, session.UserID, session.TokenHash, session.IPAddress, session.UserAgent,
		session.CreatedAt, session.LastActiveAt, session.ExpiresAt, session.Revoked)
	if err != nil {
		return fmt.Errorf("create user session: %w", err)
	}
	return nil
}

// GetUserSessionByTokenHash returns a non-revoked session by its token hash.
func (db *DB) GetUserSessionByTokenHash(ctx context.Context, tokenHash string) (*models.UserSession, error) {
	var session models.UserSession
	err := db.Pool.QueryRow(ctx, `
		SELECT id, user_id, session_token_hash, ip_address, user_agent, created_at, last_active_at, expires_at, revoked, revoked_at
		FROM user_sessions
		WHERE session_token_hash = $1 AND revoked = false
	`, tokenHash).Scan(
		&session.ID, &session.UserID, &session.TokenHash, &session.IPAddress, &session.UserAgent,
		&session.CreatedAt, &session.LastActiveAt, &session.ExpiresAt, &session.Revoked, &session.RevokedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get user session by token hash: %w", err)
	}
	return &session, nil
}

// ListActiveUserSessions returns non-revoked, non-expired sessions for a user.
func (db *DB) ListActiveUserSessions(ctx context.Context, userID uuid.UUID) ([]*models.UserSession, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT id, user_id, session_token_hash, ip_address, user_agent, created_at, last_active_at, expires_at, revoked, revoked_at
		FROM user_sessions
		WHERE user_id = $1
		  AND revoked = false
		  AND (expires_at IS NULL OR expires_at > NOW())
		ORDER BY last_active_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list active user sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*models.UserSession
	for rows.Next() {
		var session models.UserSession
		err := rows.Scan(
			&session.ID, &session.UserID, &session.TokenHash, &session.IPAddress, &session.UserAgent,
			&session.CreatedAt, &session.LastActiveAt, &session.ExpiresAt, &session.Revoked, &session.RevokedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan user session: %w", err)
		}
		sessions = append(sessions, &session)
	}
	return sessions, rows.Err()
}

// TouchUserSession updates last_active_at for a session.
func (db *DB) TouchUserSession(ctx context.Context, id uuid.UUID) error {
	result, err := db.Pool.Exec(ctx, `
		UPDATE user_sessions
		SET last_active_at = $2
		WHERE id = $1 AND revoked = false
	`, id, time.Now())
	if err != nil {
		return fmt.Errorf("touch user session: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// RevokeUserSession revokes a single session belonging to a user.
func (db *DB) RevokeUserSession(ctx context.Context, id, userID uuid.UUID) error {
	result, err := db.Pool.Exec(ctx, `
		UPDATE user_sessions
		SET revoked = true, revoked_at = $3
		WHERE id = $1 AND user_id = $2 AND revoked = false
	`, id, userID, time.Now())
	if err != nil {
		return fmt.Errorf("revoke user session: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// RevokeAllUserSessions revokes every session for a user, optionally
// keeping one (the caller's current session) alive.
func (db *DB) RevokeAllUserSessions(ctx context.Context, userID uuid.UUID, exceptSessionID *uuid.UUID) (int64, error) {
	now := time.Now()
	if exceptSessionID != nil {
		result, err := db.Pool.Exec(ctx, `
			UPDATE user_sessions
			SET revoked = true, revoked_at = $3
			WHERE user_id = $1 AND id != $2 AND revoked = false
		`, userID, *exceptSessionID, now)
		if err != nil {
			return 0, fmt.Errorf("revoke all user sessions: %w", err)
		}
		return result.RowsAffected(), nil
	}

	result, err := db.Pool.Exec(ctx, `
		UPDATE user_sessions
		SET revoked = true, revoked_at = $2
		WHERE user_id = $1 AND revoked = false
	`, userID, now)
	if err != nil {
		return 0, fmt.Errorf("revoke all user sessions: %w", err)
	}
	return result.RowsAffected(), nil
}

// CleanupExpiredSessions removes revoked or expired sessions older than
// the given duration.
func (db *DB) CleanupExpiredSessions(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)
	result, err := db.Pool.Exec(ctx, `
		DELETE FROM user_sessions
		WHERE (revoked = true AND revoked_at < $1)
		   OR (expires_at IS NOT NULL AND expires_at < $1)
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup expired sessions: %w", err)
	}
	return result.RowsAffected(), nil
}
