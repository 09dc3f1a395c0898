package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/landppt/landppt/internal/cache"
	"github.com/landppt/landppt/internal/generator"
)

// ScenariosHandler serves the scenario catalog. The catalog is static per
// build, so cache misses are cheap; the cache mainly spares repeated
// serialization on busy instances.
type ScenariosHandler struct {
	cache  *cache.Cache
	logger zerolog.Logger
}

// NewScenariosHandler creates a ScenariosHandler. cache may be nil.
func NewScenariosHandler(c *cache.Cache, logger zerolog.Logger) *ScenariosHandler {
	return &ScenariosHandler{
		cache:  c,
		logger: logger.With().Str("component", "scenarios_handler").Logger(),
	}
}

// RegisterRoutes registers scenario routes on the given router group.
func (h *ScenariosHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/scenarios", h.List)
}

// List returns the available presentation scenarios.
// GET /api/v1/scenarios
func (h *ScenariosHandler) List(c *gin.Context) {
	ctx := c.Request.Context()

	if h.cache != nil {
		if scenarios, err := h.cache.GetScenarios(ctx); err == nil {
			c.JSON(http.StatusOK, gin.H{"scenarios": scenarios})
			return
		}
	}

	scenarios, err := generator.LoadScenarios()
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to load scenarios")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load scenarios"})
		return
	}

	if h.cache != nil {
		if err := h.cache.SetScenarios(ctx, scenarios); err != nil {
			h.logger.Warn().Err(err).Msg("failed to cache scenarios")
		}
	}
	c.JSON(http.StatusOK, gin.H{"scenarios": scenarios})
}
