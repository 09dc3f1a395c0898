package handlers

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/landppt/landppt/internal/api/middleware"
	"github.com/landppt/landppt/internal/auth"
	"github.com/landppt/landppt/internal/export"
	"github.com/landppt/landppt/internal/models"
)

// ExportQueue enqueues background export jobs.
type ExportQueue interface {
	EnqueueExport(ctx context.Context, ownerID, projectID uuid.UUID, format string) (*models.Job, error)
}

// ExportHandler produces downloadable artifacts from completed projects.
// HTML downloads are served inline; PPTX conversion goes through the job
// queue since it calls an external converter.
type ExportHandler struct {
	projects    ProjectStore
	queue       ExportQueue
	pptxEnabled bool
	logger      zerolog.Logger
}

// NewExportHandler creates an ExportHandler.
func NewExportHandler(projects ProjectStore, queue ExportQueue, pptxEnabled bool, logger zerolog.Logger) *ExportHandler {
	return &ExportHandler{
		projects:    projects,
		queue:       queue,
		pptxEnabled: pptxEnabled,
		logger:      logger.With().Str("component", "export_handler").Logger(),
	}
}

// RegisterRoutes registers export routes on the given router group.
func (h *ExportHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/projects/:id/export", h.Start)
	r.GET("/projects/:id/export/html", h.DownloadHTML)
}

// ExportRequest is the request body for starting an export job.
type ExportRequest struct {
	Format string `json:"format" binding:"required,oneof=html pptx"`
}

func (h *ExportHandler) loadCompleted(c *gin.Context, user *auth.SessionUser) *models.Project {
	project := loadOwnedProject(c, h.projects, h.logger, user)
	if project == nil {
		return nil
	}
	if project.Status != models.ProjectStatusCompleted {
		c.JSON(http.StatusConflict, gin.H{"error": "project generation is not complete"})
		return nil
	}
	return project
}

// Start queues an export job for a completed project.
// POST /api/v1/projects/:id/export
func (h *ExportHandler) Start(c *gin.Context) {
	user := middleware.RequireUser(c)
	if user == nil {
		return
	}

	var req ExportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "format must be html or pptx"})
		return
	}
	if req.Format == "pptx" && !h.pptxEnabled {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "pptx export is not configured"})
		return
	}

	project := h.loadCompleted(c, user)
	if project == nil {
		return
	}

	job, err := h.queue.EnqueueExport(c.Request.Context(), project.OwnerID, project.ID, req.Format)
	if err != nil {
		h.logger.Error().Err(err).Str("project_id", project.ID.String()).Msg("failed to enqueue export")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to start export"})
		return
	}

	h.logger.Info().
		Str("project_id", project.ID.String()).
		Str("format", req.Format).
		Msg("export queued")
	c.JSON(http.StatusAccepted, gin.H{"job": job})
}

// DownloadHTML streams the combined HTML deck directly. Unlike PPTX this
// needs no external service, so it is served synchronously.
// GET /api/v1/projects/:id/export/html
func (h *ExportHandler) DownloadHTML(c *gin.Context) {
	user := middleware.RequireUser(c)
	if user == nil {
		return
	}
	project := h.loadCompleted(c, user)
	if project == nil {
		return
	}

	data, err := export.CombineHTML(project)
	if err != nil {
		h.logger.Error().Err(err).Str("project_id", project.ID.String()).Msg("failed to combine html")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to build export"})
		return
	}

	filename := fmt.Sprintf("%s_v%d.html", project.ID, project.Version)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "text/html; charset=utf-8", data)
}
