package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/landppt/landppt/internal/db"
	"github.com/landppt/landppt/internal/models"
)

// BootstrapStore is the subset of the database used during startup seeding.
type BootstrapStore interface {
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	CreateUser(ctx context.Context, user *models.User) error
	CountUsers(ctx context.Context) (int64, error)
}

// EnsureDefaultAdmin creates the default admin account when it does not
// exist yet. The account is seeded with the well-known initial password
// and must change it on first login.
func EnsureDefaultAdmin(ctx context.Context, store BootstrapStore, logger zerolog.Logger) error {
	log := logger.With().Str("component", "bootstrap").Logger()

	_, err := store.GetUserByUsername(ctx, models.DefaultAdminUsername)
	if err == nil {
		log.Debug().Msg("default admin account already exists")
		return nil
	}
	if !errors.Is(err, db.ErrNotFound) {
		return fmt.Errorf("look up default admin: %w", err)
	}

	hash, err := HashPassword(models.DefaultAdminPassword)
	if err != nil {
		return fmt.Errorf("hash default admin password: %w", err)
	}

	admin := models.NewUser(models.DefaultAdminUsername, "", "Administrator", models.UserRoleAdmin)
	admin.PasswordHash = hash
	admin.MustChangePassword = true

	if err := store.CreateUser(ctx, admin); err != nil {
		return fmt.Errorf("create default admin: %w", err)
	}

	log.Warn().
		Str("username", models.DefaultAdminUsername).
		Msg("default admin account created with initial password, change it on first login")
	return nil
}

// Authenticate checks a username/password pair against the store and
// returns the user on success.
func Authenticate(ctx context.Context, store BootstrapStore, username, password string) (*models.User, error) {
	user, err := store.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			// Burn a hash comparison so missing users take as long as
			// wrong passwords.
			VerifyPassword("$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy", password)
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("look up user: %w", err)
	}

	if !VerifyPassword(user.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	if !user.Active {
		return nil, ErrAccountDisabled
	}
	return user, nil
}
