package jobs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/landppt/landppt/internal/export"
	"github.com/landppt/landppt/internal/models"
	"github.com/landppt/landppt/internal/research"
)

// GenerationRunner runs the slide generation pipeline for a project.
type GenerationRunner interface {
	Run(ctx context.Context, projectID uuid.UUID, req *models.GenerationRequest) error
	Retry(ctx context.Context, projectID uuid.UUID) error
}

// GenerationHandler executes generation jobs through the pipeline engine.
type GenerationHandler struct {
	engine GenerationRunner
}

// NewGenerationHandler creates a generation job handler.
func NewGenerationHandler(engine GenerationRunner) *GenerationHandler {
	return &GenerationHandler{engine: engine}
}

func (h *GenerationHandler) Handle(ctx context.Context, job *models.Job) (map[string]any, error) {
	if retry, _ := job.Payload["retry"].(bool); retry {
		if err := h.engine.Retry(ctx, job.ProjectID); err != nil {
			return nil, err
		}
		return map[string]any{"project_id": job.ProjectID.String(), "retry": true}, nil
	}

	var req models.GenerationRequest
	if err := fromPayload(job.Payload, &req); err != nil {
		return nil, err
	}
	if err := h.engine.Run(ctx, job.ProjectID, &req); err != nil {
		return nil, err
	}
	return map[string]any{"project_id": job.ProjectID.String()}, nil
}

// ProjectGetter loads projects for export jobs.
type ProjectGetter interface {
	GetProjectByID(ctx context.Context, id uuid.UUID) (*models.Project, error)
}

// Uploader stores export artifacts in object storage.
type Uploader interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) error
}

// ExportHandler produces HTML or PPTX artifacts for completed projects.
// Artifacts are always written to the local export directory; when an
// uploader is configured they are mirrored to object storage as well.
type ExportHandler struct {
	projects ProjectGetter
	pptx     *export.PPTXConverter
	uploader Uploader
	dir      string
	logger   zerolog.Logger
}

// NewExportHandler creates an export job handler. uploader may be nil.
func NewExportHandler(projects ProjectGetter, pptx *export.PPTXConverter, uploader Uploader, dir string, logger zerolog.Logger) (*ExportHandler, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create export directory: %w", err)
	}
	return &ExportHandler{
		projects: projects,
		pptx:     pptx,
		uploader: uploader,
		dir:      dir,
		logger:   logger.With().Str("component", "export_handler").Logger(),
	}, nil
}

func (h *ExportHandler) Handle(ctx context.Context, job *models.Job) (map[string]any, error) {
	format, _ := job.Payload["format"].(string)

	project, err := h.projects.GetProjectByID(ctx, job.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("load project: %w", err)
	}
	if project.Status != models.ProjectStatusCompleted {
		return nil, fmt.Errorf("project %s is not completed", project.ID)
	}

	var (
		data        []byte
		contentType string
	)
	switch format {
	case "html":
		data, err = export.CombineHTML(project)
		contentType = "text/html; charset=utf-8"
	case "pptx":
		data, err = h.pptx.Convert(ctx, project)
		contentType = "application/vnd.openxmlformats-officedocument.presentationml.presentation"
	default:
		return nil, fmt.Errorf("unsupported export format %q", format)
	}
	if err != nil {
		return nil, err
	}

	filename := fmt.Sprintf("%s_v%d.%s", project.ID, project.Version, format)
	path := filepath.Join(h.dir, filename)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, fmt.Errorf("write export file: %w", err)
	}

	result := map[string]any{
		"format":   format,
		"filename": filename,
		"bytes":    len(data),
	}

	if h.uploader != nil {
		key := export.ArtifactKey(project, format)
		if err := h.uploader.Upload(ctx, key, data, contentType); err != nil {
			return nil, fmt.Errorf("upload artifact: %w", err)
		}
		result["object_key"] = key
	}

	h.logger.Info().
		Str("project_id", project.ID.String()).
		Str("format", format).
		Int("bytes", len(data)).
		Msg("export produced")
	return result, nil
}

// ResearchHandler runs deep research jobs and saves the resulting reports.
type ResearchHandler struct {
	runner  *research.Runner
	writer  *research.ReportWriter
	catalog *research.Catalog
	logger  zerolog.Logger
}

// NewResearchHandler creates a research job handler. catalog may be nil.
func NewResearchHandler(runner *research.Runner, writer *research.ReportWriter, catalog *research.Catalog, logger zerolog.Logger) *ResearchHandler {
	return &ResearchHandler{
		runner:  runner,
		writer:  writer,
		catalog: catalog,
		logger:  logger.With().Str("component", "research_handler").Logger(),
	}
}

func (h *ResearchHandler) Handle(ctx context.Context, job *models.Job) (map[string]any, error) {
	topic, _ := job.Payload["topic"].(string)
	language, _ := job.Payload["language"].(string)
	if topic == "" {
		return nil, fmt.Errorf("research job has no topic")
	}

	report, err := h.runner.Run(ctx, topic, language)
	if err != nil {
		return nil, err
	}

	filename, err := h.writer.Save(report, "")
	if err != nil {
		return nil, fmt.Errorf("save research report: %w", err)
	}

	if h.catalog != nil {
		size := int64(len(h.writer.Markdown(report)))
		if err := h.catalog.Index(ctx, filename, report, size); err != nil {
			// The report itself is on disk, so a catalog failure is not fatal.
			h.logger.Warn().Err(err).Str("filename", filename).Msg("failed to index research report")
		}
	}

	h.logger.Info().
		Str("topic", topic).
		Str("filename", filename).
		Int("steps", len(report.Steps)).
		Msg("research report saved")
	return map[string]any{
		"filename": filename,
		"steps":    len(report.Steps),
	}, nil
}
