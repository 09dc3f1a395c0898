package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/landppt/landppt/internal/api/middleware"
	"github.com/landppt/landppt/internal/auth"
	"github.com/landppt/landppt/internal/db"
	"github.com/landppt/landppt/internal/models"
)

// AdminStore defines the persistence operations for user and audit
// administration.
type AdminStore interface {
	ListUsers(ctx context.Context) ([]*models.User, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	CreateUser(ctx context.Context, user *models.User) error
	UpdateUser(ctx context.Context, user *models.User) error
	DeleteUser(ctx context.Context, id uuid.UUID) error
	RevokeAllUserSessions(ctx context.Context, userID uuid.UUID, exceptSessionID *uuid.UUID) (int64, error)
	ListAuditLogs(ctx context.Context, userID *uuid.UUID, limit int) ([]*models.AuditLog, error)
}

// AdminHandler handles user management and audit log endpoints. Register
// it behind a RequireAdmin group.
type AdminHandler struct {
	store  AdminStore
	logger zerolog.Logger
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(store AdminStore, logger zerolog.Logger) *AdminHandler {
	return &AdminHandler{
		store:  store,
		logger: logger.With().Str("component", "admin_handler").Logger(),
	}
}

// RegisterRoutes registers admin routes on the given router group.
func (h *AdminHandler) RegisterRoutes(r *gin.RouterGroup) {
	users := r.Group("/users")
	{
		users.GET("", h.ListUsers)
		users.POST("", h.CreateUser)
		users.PUT("/:id", h.UpdateUser)
		users.DELETE("/:id", h.DeleteUser)
	}
	r.GET("/audit-logs", h.ListAuditLogs)
}

// CreateUserRequest is the request body for creating a user.
type CreateUserRequest struct {
	Username string `json:"username" binding:"required"`
	Email    string `json:"email,omitempty"`
	Name     string `json:"name,omitempty"`
	Password string `json:"password" binding:"required"`
	Role     string `json:"role,omitempty"`
}

// UpdateUserRequest is the request body for updating a user. Only set
// fields are applied.
type UpdateUserRequest struct {
	Email  *string `json:"email,omitempty"`
	Name   *string `json:"name,omitempty"`
	Role   *string `json:"role,omitempty"`
	Active *bool   `json:"active,omitempty"`
}

func validRole(role string) bool {
	switch models.UserRole(role) {
	case models.UserRoleAdmin, models.UserRoleUser, models.UserRoleViewer:
		return true
	}
	return false
}

// ListUsers returns all accounts.
// GET /api/v1/users
func (h *AdminHandler) ListUsers(c *gin.Context) {
	users, err := h.store.ListUsers(c.Request.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list users")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list users"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users})
}

// CreateUser creates an account with a password.
// POST /api/v1/users
func (h *AdminHandler) CreateUser(c *gin.Context) {
	var req CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username and password are required"})
		return
	}

	role := req.Role
	if role == "" {
		role = string(models.UserRoleUser)
	}
	if !validRole(role) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid role"})
		return
	}
	if err := auth.ValidatePassword(req.Password); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to hash password")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create user"})
		return
	}

	user := models.NewUser(req.Username, req.Email, req.Name, models.UserRole(role))
	user.PasswordHash = hash
	user.MustChangePassword = true

	if err := h.store.CreateUser(c.Request.Context(), user); err != nil {
		if errors.Is(err, db.ErrDuplicate) {
			c.JSON(http.StatusConflict, gin.H{"error": "username already exists"})
			return
		}
		h.logger.Error().Err(err).Str("username", req.Username).Msg("failed to create user")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create user"})
		return
	}

	h.logger.Info().Str("user_id", user.ID.String()).Str("username", user.Username).Msg("user created")
	c.JSON(http.StatusCreated, user)
}

// UpdateUser changes an account's profile, role or active flag.
// Deactivating an account revokes its sessions.
// PUT /api/v1/users/:id
func (h *AdminHandler) UpdateUser(c *gin.Context) {
	actor := middleware.RequireUser(c)
	if actor == nil {
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}

	var req UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	user, err := h.store.GetUserByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		h.logger.Error().Err(err).Str("user_id", id.String()).Msg("failed to load user")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load user"})
		return
	}

	if req.Email != nil {
		user.Email = *req.Email
	}
	if req.Name != nil {
		user.Name = *req.Name
	}
	if req.Role != nil {
		if !validRole(*req.Role) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid role"})
			return
		}
		if user.ID == actor.ID && *req.Role != string(models.UserRoleAdmin) {
			c.JSON(http.StatusConflict, gin.H{"error": "cannot demote your own account"})
			return
		}
		user.Role = models.UserRole(*req.Role)
	}
	deactivated := false
	if req.Active != nil {
		if user.ID == actor.ID && !*req.Active {
			c.JSON(http.StatusConflict, gin.H{"error": "cannot deactivate your own account"})
			return
		}
		deactivated = user.Active && !*req.Active
		user.Active = *req.Active
	}

	if err := h.store.UpdateUser(c.Request.Context(), user); err != nil {
		h.logger.Error().Err(err).Str("user_id", id.String()).Msg("failed to update user")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update user"})
		return
	}

	if deactivated {
		if _, err := h.store.RevokeAllUserSessions(c.Request.Context(), user.ID, nil); err != nil {
			h.logger.Warn().Err(err).Str("user_id", id.String()).Msg("failed to revoke sessions of deactivated user")
		}
	}
	c.JSON(http.StatusOK, user)
}

// DeleteUser removes an account and cascades its projects and jobs.
// DELETE /api/v1/users/:id
func (h *AdminHandler) DeleteUser(c *gin.Context) {
	actor := middleware.RequireUser(c)
	if actor == nil {
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}
	if id == actor.ID {
		c.JSON(http.StatusConflict, gin.H{"error": "cannot delete your own account"})
		return
	}

	if err := h.store.DeleteUser(c.Request.Context(), id); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		h.logger.Error().Err(err).Str("user_id", id.String()).Msg("failed to delete user")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete user"})
		return
	}

	h.logger.Info().Str("user_id", id.String()).Msg("user deleted")
	c.JSON(http.StatusOK, gin.H{"message": "user deleted"})
}

// ListAuditLogs returns recent audit entries, optionally filtered by user.
// GET /api/v1/audit-logs?user_id=&limit=
func (h *AdminHandler) ListAuditLogs(c *gin.Context) {
	var userID *uuid.UUID
	if raw := c.Query("user_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user_id"})
			return
		}
		userID = &id
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

	entries, err := h.store.ListAuditLogs(c.Request.Context(), userID, limit)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list audit logs")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list audit logs"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}
