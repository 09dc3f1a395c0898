package handlers

import (
	"context"
	"errors"
	"net/http"
	"os"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/landppt/landppt/internal/api/middleware"
	"github.com/landppt/landppt/internal/models"
	"github.com/landppt/landppt/internal/research"
)

// ResearchQueue enqueues background research runs.
type ResearchQueue interface {
	EnqueueResearch(ctx context.Context, ownerID uuid.UUID, topic, language string) (*models.Job, error)
}

// ResearchHandler manages deep research reports.
type ResearchHandler struct {
	queue   ResearchQueue
	writer  *research.ReportWriter
	catalog *research.Catalog
	logger  zerolog.Logger
}

// NewResearchHandler creates a ResearchHandler. catalog may be nil, which
// disables full-text search.
func NewResearchHandler(queue ResearchQueue, writer *research.ReportWriter, catalog *research.Catalog, logger zerolog.Logger) *ResearchHandler {
	return &ResearchHandler{
		queue:   queue,
		writer:  writer,
		catalog: catalog,
		logger:  logger.With().Str("component", "research_handler").Logger(),
	}
}

// RegisterRoutes registers research routes on the given router group.
func (h *ResearchHandler) RegisterRoutes(r *gin.RouterGroup) {
	res := r.Group("/research")
	{
		res.POST("", h.Start)
		res.GET("/reports", h.ListReports)
		res.GET("/reports/:filename", h.GetReport)
		res.DELETE("/reports/:filename", h.DeleteReport)
	}
}

// StartResearchRequest is the request body for starting a research run.
type StartResearchRequest struct {
	Topic    string `json:"topic" binding:"required"`
	Language string `json:"language,omitempty"`
}

// Start queues a deep research run.
// POST /api/v1/research
func (h *ResearchHandler) Start(c *gin.Context) {
	user := middleware.RequireUser(c)
	if user == nil {
		return
	}

	var req StartResearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "topic is required"})
		return
	}
	if req.Language == "" {
		req.Language = "zh"
	}

	job, err := h.queue.EnqueueResearch(c.Request.Context(), user.ID, req.Topic, req.Language)
	if err != nil {
		h.logger.Error().Err(err).Str("topic", req.Topic).Msg("failed to enqueue research")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to start research"})
		return
	}

	h.logger.Info().Str("job_id", job.ID.String()).Str("topic", req.Topic).Msg("research queued")
	c.JSON(http.StatusAccepted, gin.H{"job": job})
}

// ListReports returns saved reports. With ?q= and a catalog configured,
// results come from the full-text index instead of the directory listing.
// GET /api/v1/research/reports?q=&limit=
func (h *ResearchHandler) ListReports(c *gin.Context) {
	query := c.Query("q")

	if query != "" && h.catalog != nil {
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
		reports, err := h.catalog.Search(c.Request.Context(), query, limit)
		if err != nil {
			h.logger.Error().Err(err).Str("query", query).Msg("report search failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to search reports"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"reports": reports, "query": query})
		return
	}

	reports, err := h.writer.List()
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list reports")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list reports"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"reports": reports})
}

// GetReport returns a saved report as Markdown.
// GET /api/v1/research/reports/:filename
func (h *ResearchHandler) GetReport(c *gin.Context) {
	filename := c.Param("filename")

	data, err := h.writer.Read(filename)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			c.JSON(http.StatusNotFound, gin.H{"error": "report not found"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid report filename"})
		return
	}
	c.Data(http.StatusOK, "text/markdown; charset=utf-8", data)
}

// DeleteReport removes a saved report and its index entry.
// DELETE /api/v1/research/reports/:filename
func (h *ResearchHandler) DeleteReport(c *gin.Context) {
	filename := c.Param("filename")

	if err := h.writer.Delete(filename); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			c.JSON(http.StatusNotFound, gin.H{"error": "report not found"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid report filename"})
		return
	}

	if h.catalog != nil {
		if err := h.catalog.Remove(c.Request.Context(), filename); err != nil {
			h.logger.Warn().Err(err).Str("filename", filename).Msg("failed to remove report from catalog")
		}
	}
	c.JSON(http.StatusOK, gin.H{"message": "report deleted"})
}
