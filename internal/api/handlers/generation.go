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
	"github.com/landppt/landppt/internal/db"
	"github.com/landppt/landppt/internal/models"
)

// GenerationQueue enqueues background generation work.
type GenerationQueue interface {
	EnqueueGeneration(ctx context.Context, ownerID, projectID uuid.UUID, req *models.GenerationRequest, priority int) (*models.Job, error)
	EnqueueRetry(ctx context.Context, ownerID, projectID uuid.UUID, priority int) (*models.Job, error)
	Summary(ctx context.Context, ownerID uuid.UUID) (*models.JobQueueSummary, error)
}

// JobReader reads job records for status endpoints.
type JobReader interface {
	GetJobByID(ctx context.Context, id uuid.UUID) (*models.Job, error)
	ListJobsByOwner(ctx context.Context, ownerID uuid.UUID, limit int) ([]*models.Job, error)
}

// GenerationHandler starts and tracks generation runs.
type GenerationHandler struct {
	projects ProjectStore
	queue    GenerationQueue
	jobs     JobReader
	hub      *ProgressHub
	logger   zerolog.Logger
}

// NewGenerationHandler creates a GenerationHandler. hub may be nil when
// progress streaming is disabled.
func NewGenerationHandler(projects ProjectStore, queue GenerationQueue, jobs JobReader, hub *ProgressHub, logger zerolog.Logger) *GenerationHandler {
	return &GenerationHandler{
		projects: projects,
		queue:    queue,
		jobs:     jobs,
		hub:      hub,
		logger:   logger.With().Str("component", "generation_handler").Logger(),
	}
}

// RegisterRoutes registers generation routes on the given router group.
func (h *GenerationHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/projects/:id/generate", h.Start)
	r.POST("/projects/:id/retry", h.Retry)
	if h.hub != nil {
		r.GET("/projects/:id/progress", h.Progress)
	}

	jobs := r.Group("/jobs")
	{
		jobs.GET("", h.ListJobs)
		jobs.GET("/summary", h.QueueSummary)
		jobs.GET("/:id", h.GetJob)
	}
}

// Start queues the generation pipeline for a project.
// POST /api/v1/projects/:id/generate
func (h *GenerationHandler) Start(c *gin.Context) {
	user := middleware.RequireUser(c)
	if user == nil {
		return
	}
	project := loadOwnedProject(c, h.projects, h.logger, user)
	if project == nil {
		return
	}

	var req models.GenerationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		// The project already carries scenario and topic; accept an empty
		// body and fill the request from it.
		req = models.GenerationRequest{}
	}
	if req.Scenario == "" {
		req.Scenario = project.Scenario
	}
	if req.Topic == "" {
		req.Topic = project.Topic
	}
	if req.Requirements == "" {
		req.Requirements = project.Requirements
	}
	if req.Language == "" {
		req.Language = project.Language
	}
	req.Normalize()

	if req.PageCountMode == models.PageCountCustomRange && req.MinPages > req.MaxPages {
		c.JSON(http.StatusBadRequest, gin.H{"error": "min_pages must not exceed max_pages"})
		return
	}

	job, err := h.queue.EnqueueGeneration(c.Request.Context(), project.OwnerID, project.ID, &req, 0)
	if err != nil {
		h.logger.Error().Err(err).Str("project_id", project.ID.String()).Msg("failed to enqueue generation")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to start generation"})
		return
	}

	h.logger.Info().
		Str("project_id", project.ID.String()).
		Str("job_id", job.ID.String()).
		Msg("generation queued")
	c.JSON(http.StatusAccepted, gin.H{"job": job})
}

// Retry queues a resume of a failed generation run.
// POST /api/v1/projects/:id/retry
func (h *GenerationHandler) Retry(c *gin.Context) {
	user := middleware.RequireUser(c)
	if user == nil {
		return
	}
	project := loadOwnedProject(c, h.projects, h.logger, user)
	if project == nil {
		return
	}

	if project.TodoBoard == nil || project.TodoBoard.CurrentStage() == nil ||
		project.TodoBoard.CurrentStage().Status != models.StageStatusFailed {
		c.JSON(http.StatusConflict, gin.H{"error": "project has no failed stage to retry"})
		return
	}

	job, err := h.queue.EnqueueRetry(c.Request.Context(), project.OwnerID, project.ID, 0)
	if err != nil {
		h.logger.Error().Err(err).Str("project_id", project.ID.String()).Msg("failed to enqueue retry")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to retry generation"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"job": job})
}

// Progress upgrades to a websocket streaming generation progress.
// GET /api/v1/projects/:id/progress
func (h *GenerationHandler) Progress(c *gin.Context) {
	user := middleware.RequireUser(c)
	if user == nil {
		return
	}
	project := loadOwnedProject(c, h.projects, h.logger, user)
	if project == nil {
		return
	}
	h.hub.Serve(c, project)
}

// ListJobs returns the user's jobs, newest first.
// GET /api/v1/jobs?limit=
func (h *GenerationHandler) ListJobs(c *gin.Context) {
	user := middleware.RequireUser(c)
	if user == nil {
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	jobs, err := h.jobs.ListJobsByOwner(c.Request.Context(), user.ID, limit)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list jobs")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list jobs"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": jobs})
}

// QueueSummary returns per-status job counts for the user.
// GET /api/v1/jobs/summary
func (h *GenerationHandler) QueueSummary(c *gin.Context) {
	user := middleware.RequireUser(c)
	if user == nil {
		return
	}

	summary, err := h.queue.Summary(c.Request.Context(), user.ID)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to summarize jobs")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to summarize jobs"})
		return
	}
	c.JSON(http.StatusOK, summary)
}

// GetJob returns one job.
// GET /api/v1/jobs/:id
func (h *GenerationHandler) GetJob(c *gin.Context) {
	user := middleware.RequireUser(c)
	if user == nil {
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid job id"})
		return
	}

	job, err := h.jobs.GetJobByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
			return
		}
		h.logger.Error().Err(err).Str("job_id", id.String()).Msg("failed to load job")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load job"})
		return
	}
	if job.OwnerID != user.ID && user.Role != string(models.UserRoleAdmin) {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	c.JSON(http.StatusOK, job)
}
