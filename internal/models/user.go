package models

import (
	"time"

	"github.com/google/uuid"
)

// UserRole defines the access level of a user.
type UserRole string

const (
	// UserRoleAdmin has full access including template and user management.
	UserRoleAdmin UserRole = "admin"
	// UserRoleUser has standard access to create and manage own projects.
	UserRoleUser UserRole = "user"
	// UserRoleViewer has read-only access.
	UserRoleViewer UserRole = "viewer"
)

// DefaultAdminUsername is the username seeded on first migration.
const DefaultAdminUsername = "admin"

// DefaultAdminPassword is the initial password for the seeded admin account.
// The account is created with MustChangePassword set.
const DefaultAdminPassword = "admin123"

// User represents an account that can log in with a password or via OIDC.
type User struct {
	ID                 uuid.UUID `json:"id"`
	Username           string    `json:"username"`
	Email              string    `json:"email,omitempty"`
	Name               string    `json:"name,omitempty"`
	PasswordHash       string    `json:"-"`
	OIDCSubject        string    `json:"oidc_subject,omitempty"`
	Role               UserRole  `json:"role"`
	MustChangePassword bool      `json:"must_change_password"`
	Active             bool      `json:"active"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// NewUser creates a new User with the given details.
func NewUser(username, email, name string, role UserRole) *User {
	now := time.Now()
	return &User{
		ID:        uuid.New(),
		Username:  username,
		Email:     email,
		Name:      name,
		Role:      role,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// IsAdmin returns true if the user has admin role.
func (u *User) IsAdmin() bool {
	return u.Role == UserRoleAdmin
}
