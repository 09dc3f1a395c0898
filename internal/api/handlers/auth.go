// Package handlers implements the HTTP endpoints of the LandPPT API.
package handlers

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/landppt/landppt/internal/api/middleware"
	"github.com/landppt/landppt/internal/auth"
	"github.com/landppt/landppt/internal/db"
	"github.com/landppt/landppt/internal/models"
)

// AuthStore defines the persistence operations for authentication.
type AuthStore interface {
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	GetUserByOIDCSubject(ctx context.Context, subject string) (*models.User, error)
	CreateUser(ctx context.Context, user *models.User) error
	CountUsers(ctx context.Context) (int64, error)
	UpdateUser(ctx context.Context, user *models.User) error
	UpdateUserPassword(ctx context.Context, id uuid.UUID, passwordHash string) error
	CreateUserSession(ctx context.Context, session *models.UserSession) error
	ListActiveUserSessions(ctx context.Context, userID uuid.UUID) ([]*models.UserSession, error)
	RevokeUserSession(ctx context.Context, id, userID uuid.UUID) error
	RevokeAllUserSessions(ctx context.Context, userID uuid.UUID, exceptSessionID *uuid.UUID) (int64, error)
}

// AuthHandler handles login, logout, and account endpoints.
type AuthHandler struct {
	store    AuthStore
	sessions *auth.SessionStore
	oidc     *auth.OIDC
	logger   zerolog.Logger
}

// NewAuthHandler creates an AuthHandler. oidc may be nil when SSO is not
// configured.
func NewAuthHandler(store AuthStore, sessions *auth.SessionStore, oidc *auth.OIDC, logger zerolog.Logger) *AuthHandler {
	return &AuthHandler{
		store:    store,
		sessions: sessions,
		oidc:     oidc,
		logger:   logger.With().Str("component", "auth_handler").Logger(),
	}
}

// RegisterRoutes registers the public auth routes.
func (h *AuthHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/login", h.Login)
	r.POST("/logout", h.Logout)
	if h.oidc != nil {
		r.GET("/oidc/login", h.OIDCLogin)
		r.GET("/oidc/callback", h.OIDCCallback)
	}
}

// RegisterProtectedRoutes registers account routes that require a session.
func (h *AuthHandler) RegisterProtectedRoutes(r *gin.RouterGroup) {
	r.GET("/me", h.Me)
	r.POST("/change-password", h.ChangePassword)
	r.GET("/sessions", h.ListSessions)
	r.DELETE("/sessions/:id", h.RevokeSession)
	r.POST("/sessions/revoke-all", h.RevokeAllSessions)
}

// LoginRequest is the request body for password login.
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login authenticates with username and password.
// POST /auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username and password are required"})
		return
	}

	user, err := auth.Authenticate(c.Request.Context(), h.store, req.Username, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrAccountDisabled) {
			c.JSON(http.StatusForbidden, gin.H{"error": "account is disabled"})
			return
		}
		h.logger.Debug().Str("username", req.Username).Msg("login failed")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	record, err := h.createSessionRecord(c, user.ID)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to create session record")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}

	sessionUser := &auth.SessionUser{
		ID:              user.ID,
		Username:        user.Username,
		Role:            string(user.Role),
		AuthenticatedAt: time.Now(),
		SessionRecordID: record.ID,
	}
	if err := h.sessions.SetUser(c.Request, c.Writer, sessionUser); err != nil {
		h.logger.Error().Err(err).Msg("failed to set session")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}

	h.logger.Info().Str("user_id", user.ID.String()).Str("username", user.Username).Msg("user logged in")
	c.JSON(http.StatusOK, gin.H{
		"user":                 user,
		"must_change_password": user.MustChangePassword,
	})
}

// Logout clears the session.
// POST /auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	if sessionUser, err := h.sessions.GetUser(c.Request); err == nil {
		if sessionUser.SessionRecordID != uuid.Nil {
			if err := h.store.RevokeUserSession(c.Request.Context(), sessionUser.SessionRecordID, sessionUser.ID); err != nil {
				h.logger.Warn().Err(err).Msg("failed to revoke session record")
			}
		}
		h.logger.Info().Str("user_id", sessionUser.ID.String()).Msg("user logged out")
	}

	if err := h.sessions.ClearUser(c.Request, c.Writer); err != nil {
		h.logger.Warn().Err(err).Msg("failed to clear session")
	}
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

// Me returns the authenticated user's account.
// GET /api/v1/auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	sessionUser := middleware.RequireUser(c)
	if sessionUser == nil {
		return
	}

	user, err := h.store.GetUserByID(c.Request.Context(), sessionUser.ID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "account no longer exists"})
			return
		}
		h.logger.Error().Err(err).Msg("failed to load user")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load account"})
		return
	}

	c.JSON(http.StatusOK, user)
}

// ChangePasswordRequest is the request body for changing the password.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required"`
}

// ChangePassword updates the authenticated user's password and revokes all
// other sessions.
// POST /api/v1/auth/change-password
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	sessionUser := middleware.RequireUser(c)
	if sessionUser == nil {
		return
	}

	var req ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "current and new password are required"})
		return
	}

	user, err := h.store.GetUserByID(c.Request.Context(), sessionUser.ID)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to load user")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to change password"})
		return
	}

	if !auth.VerifyPassword(user.PasswordHash, req.CurrentPassword) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "current password is incorrect"})
		return
	}
	if req.NewPassword == req.CurrentPassword {
		c.JSON(http.StatusBadRequest, gin.H{"error": auth.ErrPasswordUnchanged.Error()})
		return
	}
	if err := auth.ValidatePassword(req.NewPassword); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	hash, err := auth.HashPassword(req.NewPassword)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to hash password")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to change password"})
		return
	}
	if err := h.store.UpdateUserPassword(c.Request.Context(), user.ID, hash); err != nil {
		h.logger.Error().Err(err).Msg("failed to update password")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to change password"})
		return
	}

	// Other sessions keep the old credentials alive, so drop them.
	var except *uuid.UUID
	if sessionUser.SessionRecordID != uuid.Nil {
		except = &sessionUser.SessionRecordID
	}
	if _, err := h.store.RevokeAllUserSessions(c.Request.Context(), user.ID, except); err != nil {
		h.logger.Warn().Err(err).Msg("failed to revoke other sessions")
	}

	h.logger.Info().Str("user_id", user.ID.String()).Msg("password changed")
	c.JSON(http.StatusOK, gin.H{"message": "password changed"})
}

// ListSessions returns the user's active sessions.
// GET /api/v1/auth/sessions
func (h *AuthHandler) ListSessions(c *gin.Context) {
	sessionUser := middleware.RequireUser(c)
	if sessionUser == nil {
		return
	}

	records, err := h.store.ListActiveUserSessions(c.Request.Context(), sessionUser.ID)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list sessions")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list sessions"})
		return
	}

	type sessionResponse struct {
		*models.UserSession
		Current bool `json:"current"`
	}
	out := make([]sessionResponse, 0, len(records))
	for _, record := range records {
		out = append(out, sessionResponse{
			UserSession: record,
			Current:     record.ID == sessionUser.SessionRecordID,
		})
	}
	c.JSON(http.StatusOK, gin.H{"sessions": out})
}

// RevokeSession revokes one of the user's sessions.
// DELETE /api/v1/auth/sessions/:id
func (h *AuthHandler) RevokeSession(c *gin.Context) {
	sessionUser := middleware.RequireUser(c)
	if sessionUser == nil {
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session id"})
		return
	}

	if err := h.store.RevokeUserSession(c.Request.Context(), id, sessionUser.ID); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		h.logger.Error().Err(err).Msg("failed to revoke session")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to revoke session"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "session revoked"})
}

// RevokeAllSessions revokes every session except the current one.
// POST /api/v1/auth/sessions/revoke-all
func (h *AuthHandler) RevokeAllSessions(c *gin.Context) {
	sessionUser := middleware.RequireUser(c)
	if sessionUser == nil {
		return
	}

	var except *uuid.UUID
	if sessionUser.SessionRecordID != uuid.Nil {
		except = &sessionUser.SessionRecordID
	}
	revoked, err := h.store.RevokeAllUserSessions(c.Request.Context(), sessionUser.ID, except)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to revoke sessions")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to revoke sessions"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"revoked": revoked})
}

// OIDCLogin redirects to the OIDC provider.
// GET /auth/oidc/login
func (h *AuthHandler) OIDCLogin(c *gin.Context) {
	state, err := auth.GenerateState()
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to generate state")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}
	if err := h.sessions.SetOIDCState(c.Request, c.Writer, state); err != nil {
		h.logger.Error().Err(err).Msg("failed to store state")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}
	c.Redirect(http.StatusFound, h.oidc.AuthorizationURL(state))
}

// OIDCCallback handles the provider redirect, provisioning an account on
// first login.
// GET /auth/oidc/callback
func (h *AuthHandler) OIDCCallback(c *gin.Context) {
	expectedState, err := h.sessions.GetOIDCState(c.Request, c.Writer)
	if err != nil || c.Query("state") != expectedState {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid state"})
		return
	}

	token, err := h.oidc.Exchange(c.Request.Context(), c.Query("code"))
	if err != nil {
		h.logger.Warn().Err(err).Msg("token exchange failed")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication failed"})
		return
	}

	claims, err := h.oidc.VerifyIDToken(c.Request.Context(), token)
	if err != nil {
		h.logger.Warn().Err(err).Msg("id token verification failed")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication failed"})
		return
	}

	user, err := h.store.GetUserByOIDCSubject(c.Request.Context(), claims.Subject)
	if errors.Is(err, db.ErrNotFound) {
		user = models.NewUser(claims.Email, claims.Email, claims.Name, models.UserRoleUser)
		user.OIDCSubject = claims.Subject
		if err := h.store.CreateUser(c.Request.Context(), user); err != nil {
			h.logger.Error().Err(err).Msg("failed to provision OIDC user")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
			return
		}
		h.logger.Info().Str("user_id", user.ID.String()).Msg("provisioned user from OIDC")
	} else if err != nil {
		h.logger.Error().Err(err).Msg("failed to load OIDC user")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}

	if !user.Active {
		c.JSON(http.StatusForbidden, gin.H{"error": "account is disabled"})
		return
	}

	record, err := h.createSessionRecord(c, user.ID)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to create session record")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}

	sessionUser := &auth.SessionUser{
		ID:              user.ID,
		Username:        user.Username,
		Role:            string(user.Role),
		AuthenticatedAt: time.Now(),
		SessionRecordID: record.ID,
	}
	if err := h.sessions.SetUser(c.Request, c.Writer, sessionUser); err != nil {
		h.logger.Error().Err(err).Msg("failed to set session")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}

	c.Redirect(http.StatusFound, "/")
}

// createSessionRecord persists a server-side session record for listing
// and revocation.
func (h *AuthHandler) createSessionRecord(c *gin.Context, userID uuid.UUID) (*models.UserSession, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return nil, err
	}
	sum := sha256.Sum256(raw)

	expires := time.Now().Add(24 * time.Hour)
	record := models.NewUserSession(userID, hex.EncodeToString(sum[:]), c.ClientIP(), c.Request.UserAgent(), &expires)
	if err := h.store.CreateUserSession(c.Request.Context(), record); err != nil {
		return nil, err
	}
	return record, nil
}
