package models

import (
	"time"

	"github.com/google/uuid"
)

// UserSession is a server-side record of a browser session, used for
// session listing, revocation and idle cleanup.
type UserSession struct {
	ID           uuid.UUID  `json:"id"`
	UserID       uuid.UUID  `json:"user_id"`
	TokenHash    string     `json:"-"`
	IPAddress    string     `json:"ip_address,omitempty"`
	UserAgent    string     `json:"user_agent,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	LastActiveAt time.Time  `json:"last_active_at"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	Revoked      bool       `json:"revoked"`
	RevokedAt    *time.Time `json:"revoked_at,omitempty"`
}

// NewUserSession creates a new session record for a user.
func NewUserSession(userID uuid.UUID, tokenHash, ipAddress, userAgent string, expiresAt *time.Time) *UserSession {
	now := time.Now()
	return &UserSession{
		ID:           uuid.New(),
		UserID:       userID,
		TokenHash:    tokenHash,
		IPAddress:    ipAddress,
		UserAgent:    userAgent,
		CreatedAt:    now,
		LastActiveAt: now,
		ExpiresAt:    expiresAt,
	}
}

// IsExpired returns true if the session has an expiry in the past.
func (s *UserSession) IsExpired() bool {
	return s.ExpiresAt != nil && s.ExpiresAt.Before(time.Now())
}
