package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/landppt/landppt/internal/diagnostics"
)

// HealthPinger checks the liveness of a backing service.
type HealthPinger interface {
	Ping(ctx context.Context) error
}

// SystemHandler serves health, version and diagnostics endpoints.
type SystemHandler struct {
	version     string
	commit      string
	buildDate   string
	database    HealthPinger
	cache       HealthPinger
	diagnostics *diagnostics.Runner
	startedAt   time.Time
	logger      zerolog.Logger
}

// NewSystemHandler creates a SystemHandler. cache and diagnostics may be
// nil.
func NewSystemHandler(version, commit, buildDate string, database, cache HealthPinger, runner *diagnostics.Runner, logger zerolog.Logger) *SystemHandler {
	return &SystemHandler{
		version:     version,
		commit:      commit,
		buildDate:   buildDate,
		database:    database,
		cache:       cache,
		diagnostics: runner,
		startedAt:   time.Now(),
		logger:      logger.With().Str("component", "system_handler").Logger(),
	}
}

// RegisterPublicRoutes registers unauthenticated routes on the engine.
func (h *SystemHandler) RegisterPublicRoutes(r *gin.Engine) {
	r.GET("/health", h.Health)
	r.GET("/health/db", h.HealthDB)
	r.GET("/version", h.Version)
}

// RegisterAdminRoutes registers admin-only routes on an authenticated
// group.
func (h *SystemHandler) RegisterAdminRoutes(r *gin.RouterGroup) {
	if h.diagnostics != nil {
		r.GET("/diagnostics", h.Diagnostics)
	}
}

// Health reports the status of the server and its backing services.
// GET /health
func (h *SystemHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	status := "ok"
	httpStatus := http.StatusOK
	services := gin.H{}

	if err := h.database.Ping(ctx); err != nil {
		h.logger.Error().Err(err).Msg("database health check failed")
		services["database"] = "down"
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	} else {
		services["database"] = "ok"
	}

	if h.cache != nil {
		if err := h.cache.Ping(ctx); err != nil {
			// The cache is optional; its loss degrades but does not fail
			// the instance.
			h.logger.Warn().Err(err).Msg("cache health check failed")
			services["cache"] = "down"
			if status == "ok" {
				status = "degraded"
			}
		} else {
			services["cache"] = "ok"
		}
	}

	c.JSON(httpStatus, gin.H{
		"status":   status,
		"version":  h.version,
		"uptime":   time.Since(h.startedAt).Round(time.Second).String(),
		"services": services,
	})
}

// HealthDB is a readiness probe for the database alone.
// GET /health/db
func (h *SystemHandler) HealthDB(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	if err := h.database.Ping(ctx); err != nil {
		h.logger.Error().Err(err).Msg("database health check failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "down"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Version reports build information.
// GET /version
func (h *SystemHandler) Version(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"version":    h.version,
		"commit":     h.commit,
		"build_date": h.buildDate,
	})
}

// Diagnostics runs the full diagnostic suite and reports the results.
// GET /api/v1/diagnostics
func (h *SystemHandler) Diagnostics(c *gin.Context) {
	result := h.diagnostics.Run(c.Request.Context())

	status := http.StatusOK
	if !result.Summary.AllPass {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, result)
}
