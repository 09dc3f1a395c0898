package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/landppt/landppt/internal/api/middleware"
	"github.com/landppt/landppt/internal/db"
	"github.com/landppt/landppt/internal/models"
)

// TemplateStore defines the persistence operations for master templates.
type TemplateStore interface {
	CreateMasterTemplate(ctx context.Context, t *models.MasterTemplate) error
	GetMasterTemplateByID(ctx context.Context, id int64) (*models.MasterTemplate, error)
	ListMasterTemplates(ctx context.Context, activeOnly bool) ([]*models.MasterTemplate, error)
	UpdateMasterTemplate(ctx context.Context, t *models.MasterTemplate) error
	SetDefaultMasterTemplate(ctx context.Context, id int64) error
	DeleteMasterTemplate(ctx context.Context, id int64) error
}

// TemplatesHandler handles master template endpoints. Reads are open to
// any signed-in user; writes are admin only.
type TemplatesHandler struct {
	store  TemplateStore
	logger zerolog.Logger
}

// NewTemplatesHandler creates a TemplatesHandler.
func NewTemplatesHandler(store TemplateStore, logger zerolog.Logger) *TemplatesHandler {
	return &TemplatesHandler{
		store:  store,
		logger: logger.With().Str("component", "templates_handler").Logger(),
	}
}

// RegisterRoutes registers template routes on the given router group.
func (h *TemplatesHandler) RegisterRoutes(r *gin.RouterGroup) {
	templates := r.Group("/templates")
	{
		templates.GET("", h.List)
		templates.GET("/:id", h.Get)

		admin := templates.Group("", middleware.RequireAdmin(h.logger))
		{
			admin.POST("", h.Create)
			admin.PUT("/:id", h.Update)
			admin.POST("/:id/default", h.SetDefault)
			admin.DELETE("/:id", h.Delete)
		}
	}
}

// TemplateRequest is the request body for creating or updating a template.
type TemplateRequest struct {
	Name         string         `json:"template_name" binding:"required"`
	Description  string         `json:"description,omitempty"`
	HTMLTemplate string         `json:"html_template" binding:"required"`
	PreviewImage string         `json:"preview_image,omitempty"`
	StyleConfig  map[string]any `json:"style_config,omitempty"`
	Tags         []string       `json:"tags,omitempty"`
	IsActive     *bool          `json:"is_active,omitempty"`
}

func parseTemplateID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid template id"})
		return 0, false
	}
	return id, true
}

// List returns templates. Listing omits template HTML to keep responses
// small; fetch a single template for the full content.
// GET /api/v1/templates?all=
func (h *TemplatesHandler) List(c *gin.Context) {
	activeOnly := c.Query("all") != "true"

	templates, err := h.store.ListMasterTemplates(c.Request.Context(), activeOnly)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list templates")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list templates"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"templates": templates})
}

// Get returns one template including its HTML.
// GET /api/v1/templates/:id
func (h *TemplatesHandler) Get(c *gin.Context) {
	id, ok := parseTemplateID(c)
	if !ok {
		return
	}

	template, err := h.store.GetMasterTemplateByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "template not found"})
			return
		}
		h.logger.Error().Err(err).Int64("template_id", id).Msg("failed to load template")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load template"})
		return
	}
	c.JSON(http.StatusOK, template)
}

// Create adds a new master template.
// POST /api/v1/templates
func (h *TemplatesHandler) Create(c *gin.Context) {
	user := middleware.RequireUser(c)
	if user == nil {
		return
	}

	var req TemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "template_name and html_template are required"})
		return
	}

	template := models.NewMasterTemplate(req.Name, req.Description, req.HTMLTemplate, user.Username, req.Tags)
	template.PreviewImage = req.PreviewImage
	template.StyleConfig = req.StyleConfig
	if req.IsActive != nil {
		template.IsActive = *req.IsActive
	}

	if err := h.store.CreateMasterTemplate(c.Request.Context(), template); err != nil {
		h.logger.Error().Err(err).Str("name", req.Name).Msg("failed to create template")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create template"})
		return
	}

	h.logger.Info().Int64("template_id", template.ID).Str("name", template.Name).Msg("template created")
	c.JSON(http.StatusCreated, template)
}

// Update replaces a template's content and settings.
// PUT /api/v1/templates/:id
func (h *TemplatesHandler) Update(c *gin.Context) {
	id, ok := parseTemplateID(c)
	if !ok {
		return
	}

	var req TemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "template_name and html_template are required"})
		return
	}

	template, err := h.store.GetMasterTemplateByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "template not found"})
			return
		}
		h.logger.Error().Err(err).Int64("template_id", id).Msg("failed to load template")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load template"})
		return
	}

	template.Name = req.Name
	template.Description = req.Description
	template.HTMLTemplate = req.HTMLTemplate
	template.PreviewImage = req.PreviewImage
	template.StyleConfig = req.StyleConfig
	if req.Tags != nil {
		template.Tags = req.Tags
	}
	if req.IsActive != nil {
		template.IsActive = *req.IsActive
	}

	if err := h.store.UpdateMasterTemplate(c.Request.Context(), template); err != nil {
		h.logger.Error().Err(err).Int64("template_id", id).Msg("failed to update template")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update template"})
		return
	}
	c.JSON(http.StatusOK, template)
}

// SetDefault marks a template as the system default.
// POST /api/v1/templates/:id/default
func (h *TemplatesHandler) SetDefault(c *gin.Context) {
	id, ok := parseTemplateID(c)
	if !ok {
		return
	}

	if err := h.store.SetDefaultMasterTemplate(c.Request.Context(), id); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "template not found"})
			return
		}
		h.logger.Error().Err(err).Int64("template_id", id).Msg("failed to set default template")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to set default template"})
		return
	}

	h.logger.Info().Int64("template_id", id).Msg("default template changed")
	c.JSON(http.StatusOK, gin.H{"message": "default template updated"})
}

// Delete removes a template. The default template cannot be deleted.
// DELETE /api/v1/templates/:id
func (h *TemplatesHandler) Delete(c *gin.Context) {
	id, ok := parseTemplateID(c)
	if !ok {
		return
	}

	template, err := h.store.GetMasterTemplateByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "template not found"})
			return
		}
		h.logger.Error().Err(err).Int64("template_id", id).Msg("failed to load template")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load template"})
		return
	}
	if template.IsDefault {
		c.JSON(http.StatusConflict, gin.H{"error": "cannot delete the default template"})
		return
	}

	if err := h.store.DeleteMasterTemplate(c.Request.Context(), id); err != nil {
		h.logger.Error().Err(err).Int64("template_id", id).Msg("failed to delete template")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete template"})
		return
	}

	h.logger.Info().Int64("template_id", id).Msg("template deleted")
	c.JSON(http.StatusOK, gin.H{"message": "template deleted"})
}
