package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/landppt/landppt/internal/ai"
	"github.com/landppt/landppt/internal/crypto"
	"github.com/landppt/landppt/internal/db"
	"github.com/landppt/landppt/internal/models"
)

// AIConfigStore defines the persistence operations for provider configs.
type AIConfigStore interface {
	CreateAIConfig(ctx context.Context, cfg *models.AIConfig) error
	GetAIConfigByID(ctx context.Context, id int64) (*models.AIConfig, error)
	ListAIConfigs(ctx context.Context) ([]*models.AIConfig, error)
	UpdateAIConfig(ctx context.Context, cfg *models.AIConfig) error
	SetDefaultAIConfig(ctx context.Context, id int64) error
	DeleteAIConfig(ctx context.Context, id int64) error
}

// AIConfigsHandler manages stored AI provider configurations. All routes
// are admin only; register it behind a RequireAdmin group. Saved configs
// are loaded into the live registry immediately, so no restart is needed.
type AIConfigsHandler struct {
	store    AIConfigStore
	registry *ai.Registry
	keys     *crypto.KeyManager
	logger   zerolog.Logger
}

// NewAIConfigsHandler creates an AIConfigsHandler.
func NewAIConfigsHandler(store AIConfigStore, registry *ai.Registry, keys *crypto.KeyManager, logger zerolog.Logger) *AIConfigsHandler {
	return &AIConfigsHandler{
		store:    store,
		registry: registry,
		keys:     keys,
		logger:   logger.With().Str("component", "ai_configs_handler").Logger(),
	}
}

// RegisterRoutes registers AI config routes on the given router group.
func (h *AIConfigsHandler) RegisterRoutes(r *gin.RouterGroup) {
	configs := r.Group("/ai-configs")
	{
		configs.GET("", h.List)
		configs.GET("/:id", h.Get)
		configs.POST("", h.Create)
		configs.PUT("/:id", h.Update)
		configs.POST("/:id/default", h.SetDefault)
		configs.DELETE("/:id", h.Delete)
	}
}

// AIConfigRequest is the request body for creating or updating a config.
// The API key is accepted in plaintext and stored encrypted; it is never
// returned by any endpoint.
type AIConfigRequest struct {
	Provider    string  `json:"provider" binding:"required,oneof=openai gemini"`
	Model       string  `json:"model" binding:"required"`
	BaseURL     string  `json:"base_url,omitempty"`
	APIKey      string  `json:"api_key,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
	IsDefault   bool    `json:"is_default,omitempty"`
}

func parseConfigID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid config id"})
		return 0, false
	}
	return id, true
}

// List returns all provider configs along with the currently registered
// provider names.
// GET /api/v1/ai-configs
func (h *AIConfigsHandler) List(c *gin.Context) {
	configs, err := h.store.ListAIConfigs(c.Request.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list AI configs")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list AI configs"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"configs": configs,
		"active":  h.registry.Names(),
	})
}

// Get returns one provider config.
// GET /api/v1/ai-configs/:id
func (h *AIConfigsHandler) Get(c *gin.Context) {
	id, ok := parseConfigID(c)
	if !ok {
		return
	}

	cfg, err := h.store.GetAIConfigByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "AI config not found"})
			return
		}
		h.logger.Error().Err(err).Int64("config_id", id).Msg("failed to load AI config")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load AI config"})
		return
	}
	c.JSON(http.StatusOK, cfg)
}

// Create stores a provider config and registers the provider.
// POST /api/v1/ai-configs
func (h *AIConfigsHandler) Create(c *gin.Context) {
	var req AIConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "provider and model are required"})
		return
	}
	if req.APIKey == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "api_key is required"})
		return
	}

	encrypted, err := h.keys.Encrypt([]byte(req.APIKey))
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to encrypt API key")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store AI config"})
		return
	}

	now := time.Now()
	cfg := &models.AIConfig{
		Provider:        req.Provider,
		Model:           req.Model,
		BaseURL:         req.BaseURL,
		EncryptedAPIKey: encrypted,
		MaxTokens:       req.MaxTokens,
		Temperature:     req.Temperature,
		IsDefault:       req.IsDefault,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := h.store.CreateAIConfig(c.Request.Context(), cfg); err != nil {
		h.logger.Error().Err(err).Str("provider", req.Provider).Msg("failed to create AI config")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store AI config"})
		return
	}

	if err := h.registry.LoadStoredConfig(c.Request.Context(), cfg); err != nil {
		h.logger.Error().Err(err).Str("provider", cfg.Provider).Msg("config stored but provider failed to load")
		c.JSON(http.StatusCreated, gin.H{"config": cfg, "warning": "provider could not be activated"})
		return
	}

	h.logger.Info().Int64("config_id", cfg.ID).Str("provider", cfg.Provider).Msg("AI config created")
	c.JSON(http.StatusCreated, cfg)
}

// Update replaces a provider config. An empty api_key keeps the stored
// key.
// PUT /api/v1/ai-configs/:id
func (h *AIConfigsHandler) Update(c *gin.Context) {
	id, ok := parseConfigID(c)
	if !ok {
		return
	}

	var req AIConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "provider and model are required"})
		return
	}

	cfg, err := h.store.GetAIConfigByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "AI config not found"})
			return
		}
		h.logger.Error().Err(err).Int64("config_id", id).Msg("failed to load AI config")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load AI config"})
		return
	}

	cfg.Provider = req.Provider
	cfg.Model = req.Model
	cfg.BaseURL = req.BaseURL
	cfg.MaxTokens = req.MaxTokens
	cfg.Temperature = req.Temperature
	if req.APIKey != "" {
		encrypted, err := h.keys.Encrypt([]byte(req.APIKey))
		if err != nil {
			h.logger.Error().Err(err).Msg("failed to encrypt API key")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store AI config"})
			return
		}
		cfg.EncryptedAPIKey = encrypted
	}

	if err := h.store.UpdateAIConfig(c.Request.Context(), cfg); err != nil {
		h.logger.Error().Err(err).Int64("config_id", id).Msg("failed to update AI config")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store AI config"})
		return
	}

	if err := h.registry.LoadStoredConfig(c.Request.Context(), cfg); err != nil {
		h.logger.Error().Err(err).Str("provider", cfg.Provider).Msg("config stored but provider failed to load")
		c.JSON(http.StatusOK, gin.H{"config": cfg, "warning": "provider could not be activated"})
		return
	}
	c.JSON(http.StatusOK, cfg)
}

// SetDefault marks a config as the default provider.
// POST /api/v1/ai-configs/:id/default
func (h *AIConfigsHandler) SetDefault(c *gin.Context) {
	id, ok := parseConfigID(c)
	if !ok {
		return
	}

	if err := h.store.SetDefaultAIConfig(c.Request.Context(), id); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "AI config not found"})
			return
		}
		h.logger.Error().Err(err).Int64("config_id", id).Msg("failed to set default AI config")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to set default AI config"})
		return
	}

	// Re-register so the live registry tracks the new default.
	if cfg, err := h.store.GetAIConfigByID(c.Request.Context(), id); err == nil {
		if err := h.registry.LoadStoredConfig(c.Request.Context(), cfg); err != nil {
			h.logger.Warn().Err(err).Int64("config_id", id).Msg("failed to reload default provider")
		}
	}

	c.JSON(http.StatusOK, gin.H{"message": "default AI config updated"})
}

// Delete removes a stored config. The live registry keeps the provider
// until restart; deletion only affects what is loaded at boot.
// DELETE /api/v1/ai-configs/:id
func (h *AIConfigsHandler) Delete(c *gin.Context) {
	id, ok := parseConfigID(c)
	if !ok {
		return
	}

	if err := h.store.DeleteAIConfig(c.Request.Context(), id); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "AI config not found"})
			return
		}
		h.logger.Error().Err(err).Int64("config_id", id).Msg("failed to delete AI config")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete AI config"})
		return
	}

	h.logger.Info().Int64("config_id", id).Msg("AI config deleted")
	c.JSON(http.StatusOK, gin.H{"message": "AI config deleted"})
}
