package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/landppt/landppt/internal/api/middleware"
	"github.com/landppt/landppt/internal/auth"
	"github.com/landppt/landppt/internal/db"
	"github.com/landppt/landppt/internal/models"
)

// ProjectStore defines the persistence operations for projects.
type ProjectStore interface {
	CreateProject(ctx context.Context, project *models.Project) error
	GetProjectByID(ctx context.Context, id uuid.UUID) (*models.Project, error)
	ListProjectsByOwner(ctx context.Context, ownerID uuid.UUID, status models.ProjectStatus, limit, offset int) ([]*models.Project, error)
	CountProjectsByOwner(ctx context.Context, ownerID uuid.UUID, status models.ProjectStatus) (int64, error)
	UpdateProject(ctx context.Context, project *models.Project) error
	DeleteProject(ctx context.Context, id, ownerID uuid.UUID) error
}

// ProjectsHandler handles project CRUD endpoints.
type ProjectsHandler struct {
	store  ProjectStore
	logger zerolog.Logger
}

// NewProjectsHandler creates a ProjectsHandler.
func NewProjectsHandler(store ProjectStore, logger zerolog.Logger) *ProjectsHandler {
	return &ProjectsHandler{
		store:  store,
		logger: logger.With().Str("component", "projects_handler").Logger(),
	}
}

// RegisterRoutes registers project routes on the given router group.
func (h *ProjectsHandler) RegisterRoutes(r *gin.RouterGroup) {
	projects := r.Group("/projects")
	{
		projects.GET("", h.List)
		projects.POST("", h.Create)
		projects.GET("/:id", h.Get)
		projects.PUT("/:id", h.Update)
		projects.DELETE("/:id", h.Delete)
		projects.POST("/:id/upload", h.Upload)
		projects.GET("/:id/board", h.Board)
		projects.GET("/:id/slides", h.Slides)
		projects.GET("/:id/versions", h.Versions)
	}
}

// CreateProjectRequest is the request body for creating a project.
type CreateProjectRequest struct {
	Title        string `json:"title"`
	Scenario     string `json:"scenario" binding:"required"`
	Topic        string `json:"topic" binding:"required"`
	Requirements string `json:"requirements,omitempty"`
	Language     string `json:"language,omitempty"`
}

// UpdateProjectRequest is the request body for updating a project. Only
// set fields are applied.
type UpdateProjectRequest struct {
	Title   string          `json:"title,omitempty"`
	Outline *models.Outline `json:"outline,omitempty"`
	// TemplateMode selects how slides pick a master template: "global"
	// pins TemplateID, "default" uses the default template, "free" renders
	// without one.
	TemplateMode string `json:"template_mode,omitempty"`
	TemplateID   *int64 `json:"template_id,omitempty"`
}

// loadOwnedProject loads the project named by the :id route parameter and
// enforces ownership. Admins can access any project; other users' projects
// are hidden behind a 404. Responds and returns nil when access is denied.
func loadOwnedProject(c *gin.Context, store ProjectStore, logger zerolog.Logger, user *auth.SessionUser) *models.Project {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid project id"})
		return nil
	}

	project, err := store.GetProjectByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "project not found"})
			return nil
		}
		logger.Error().Err(err).Str("project_id", id.String()).Msg("failed to load project")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load project"})
		return nil
	}

	if project.OwnerID != user.ID && user.Role != string(models.UserRoleAdmin) {
		c.JSON(http.StatusNotFound, gin.H{"error": "project not found"})
		return nil
	}
	return project
}

func (h *ProjectsHandler) loadOwned(c *gin.Context, user *auth.SessionUser) *models.Project {
	return loadOwnedProject(c, h.store, h.logger, user)
}

// List returns the user's projects, newest first.
// GET /api/v1/projects?status=&limit=&offset=
func (h *ProjectsHandler) List(c *gin.Context) {
	user := middleware.RequireUser(c)
	if user == nil {
		return
	}

	status := models.ProjectStatus(c.Query("status"))
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit < 1 || limit > 100 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 100"})
		return
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "offset must be non-negative"})
		return
	}

	projects, err := h.store.ListProjectsByOwner(c.Request.Context(), user.ID, status, limit, offset)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list projects")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list projects"})
		return
	}
	total, err := h.store.CountProjectsByOwner(c.Request.Context(), user.ID, status)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to count projects")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list projects"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"projects": projects,
		"total":    total,
		"limit":    limit,
		"offset":   offset,
	})
}

// Create creates a draft project. Generation is started separately.
// POST /api/v1/projects
func (h *ProjectsHandler) Create(c *gin.Context) {
	user := middleware.RequireUser(c)
	if user == nil {
		return
	}

	var req CreateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "scenario and topic are required"})
		return
	}

	title := req.Title
	if title == "" {
		title = req.Topic
	}
	lang := req.Language
	if lang == "" {
		lang = "zh"
	}

	project := models.NewProject(user.ID, title, req.Scenario, req.Topic, req.Requirements, lang)
	if err := h.store.CreateProject(c.Request.Context(), project); err != nil {
		h.logger.Error().Err(err).Msg("failed to create project")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create project"})
		return
	}

	h.logger.Info().
		Str("project_id", project.ID.String()).
		Str("scenario", project.Scenario).
		Msg("project created")
	c.JSON(http.StatusCreated, project)
}

// Get returns one project.
// GET /api/v1/projects/:id
func (h *ProjectsHandler) Get(c *gin.Context) {
	user := middleware.RequireUser(c)
	if user == nil {
		return
	}
	project := h.loadOwned(c, user)
	if project == nil {
		return
	}
	c.JSON(http.StatusOK, project)
}

// Update applies manual edits to a project. Editing the outline snapshots
// the previous version.
// PUT /api/v1/projects/:id
func (h *ProjectsHandler) Update(c *gin.Context) {
	user := middleware.RequireUser(c)
	if user == nil {
		return
	}
	project := h.loadOwned(c, user)
	if project == nil {
		return
	}

	var req UpdateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	if req.Title != "" {
		project.Title = req.Title
	}
	if req.Outline != nil {
		if len(req.Outline.Slides) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "outline must contain at least one slide"})
			return
		}
		if project.Outline != nil {
			project.SnapshotVersion()
		}
		project.Outline = req.Outline
	}

	mode := req.TemplateMode
	if mode == "" && req.TemplateID != nil {
		mode = "global"
	}
	switch mode {
	case "":
	case "global":
		if req.TemplateID == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "template_id is required for global mode"})
			return
		}
		project.SetMetadata("template_mode", "global")
		project.SetMetadata("selected_template_id", *req.TemplateID)
	case "default", "free":
		project.SetMetadata("template_mode", mode)
		project.ClearMetadata("selected_template_id")
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "template_mode must be global, default, or free"})
		return
	}

	if err := h.store.UpdateProject(c.Request.Context(), project); err != nil {
		h.logger.Error().Err(err).Str("project_id", project.ID.String()).Msg("failed to update project")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update project"})
		return
	}
	c.JSON(http.StatusOK, project)
}

// Delete removes a project.
// DELETE /api/v1/projects/:id
func (h *ProjectsHandler) Delete(c *gin.Context) {
	user := middleware.RequireUser(c)
	if user == nil {
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid project id"})
		return
	}

	if err := h.store.DeleteProject(c.Request.Context(), id, user.ID); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "project not found"})
			return
		}
		h.logger.Error().Err(err).Str("project_id", id.String()).Msg("failed to delete project")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete project"})
		return
	}

	h.logger.Info().Str("project_id", id.String()).Msg("project deleted")
	c.JSON(http.StatusOK, gin.H{"message": "project deleted"})
}

// maxUploadSize caps source document uploads at 1 MiB.
const maxUploadSize = 1 << 20

// Upload attaches a source document to the project. The file's text is
// appended to the requirements and feeds the next generation run.
// POST /api/v1/projects/:id/upload
func (h *ProjectsHandler) Upload(c *gin.Context) {
	user := middleware.RequireUser(c)
	if user == nil {
		return
	}
	project := h.loadOwned(c, user)
	if project == nil {
		return
	}

	header, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	switch strings.ToLower(filepath.Ext(header.Filename)) {
	case ".txt", ".md", ".markdown":
	default:
		c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": "only txt and markdown files are supported"})
		return
	}
	if header.Size > maxUploadSize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file exceeds the 1 MiB limit"})
		return
	}

	f, err := header.Open()
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to open upload")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read file"})
		return
	}
	defer f.Close()

	content, err := io.ReadAll(io.LimitReader(f, maxUploadSize))
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to read upload")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read file"})
		return
	}
	text := strings.TrimSpace(string(content))
	if text == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is empty"})
		return
	}

	if project.Requirements == "" {
		project.Requirements = text
	} else {
		project.Requirements += "\n\n" + text
	}
	project.SetMetadata("source_file", header.Filename)

	if err := h.store.UpdateProject(c.Request.Context(), project); err != nil {
		h.logger.Error().Err(err).Str("project_id", project.ID.String()).Msg("failed to save upload")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save file"})
		return
	}

	h.logger.Info().
		Str("project_id", project.ID.String()).
		Str("filename", header.Filename).
		Msg("source document uploaded")
	c.JSON(http.StatusOK, project)
}

// Board returns the project's generation progress board.
// GET /api/v1/projects/:id/board
func (h *ProjectsHandler) Board(c *gin.Context) {
	user := middleware.RequireUser(c)
	if user == nil {
		return
	}
	project := h.loadOwned(c, user)
	if project == nil {
		return
	}
	c.JSON(http.StatusOK, project.TodoBoard)
}

// Slides returns the project's rendered slides.
// GET /api/v1/projects/:id/slides
func (h *ProjectsHandler) Slides(c *gin.Context) {
	user := middleware.RequireUser(c)
	if user == nil {
		return
	}
	project := h.loadOwned(c, user)
	if project == nil {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"project_id": project.ID,
		"slides":     project.Slides,
	})
}

// Versions returns the project's version history.
// GET /api/v1/projects/:id/versions
func (h *ProjectsHandler) Versions(c *gin.Context) {
	user := middleware.RequireUser(c)
	if user == nil {
		return
	}
	project := h.loadOwned(c, user)
	if project == nil {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"project_id": project.ID,
		"version":    project.Version,
		"versions":   project.Versions,
	})
}
