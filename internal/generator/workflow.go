package generator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/landppt/landppt/internal/models"
)

// ProjectStore is the project persistence needed by the engine.
type ProjectStore interface {
	GetProjectByID(ctx context.Context, id uuid.UUID) (*models.Project, error)
	UpdateProject(ctx context.Context, project *models.Project) error
}

// TemplateStore is the template persistence needed by the engine.
type TemplateStore interface {
	GetMasterTemplateByID(ctx context.Context, id int64) (*models.MasterTemplate, error)
	GetDefaultMasterTemplate(ctx context.Context) (*models.MasterTemplate, error)
	IncrementTemplateUsage(ctx context.Context, id int64) error
}

// BoardCache mirrors board state into a shared cache so reconnecting
// progress subscribers can catch up without a database read.
type BoardCache interface {
	SetBoard(ctx context.Context, board *models.TodoBoard) error
}

// OutlineCache holds generated outlines keyed by project, so resuming the
// outline stage can skip the provider call. Get returns an error on miss.
type OutlineCache interface {
	GetOutline(ctx context.Context, projectID uuid.UUID) (*models.Outline, error)
	SetOutline(ctx context.Context, projectID uuid.UUID, outline *models.Outline) error
	DeleteOutline(ctx context.Context, projectID uuid.UUID) error
}

// StageObserver receives the wall-clock duration of each completed stage.
type StageObserver func(stageID string, d time.Duration)

// Engine drives a project through its generation board, stage by stage.
type Engine struct {
	projects     ProjectStore
	templates    TemplateStore
	outlines     *OutlineGenerator
	renderer     *SlideRenderer
	publisher    Publisher
	boardCache   BoardCache
	outlineCache OutlineCache
	observeStage StageObserver
	logger       zerolog.Logger
}

// NewEngine creates a workflow engine. The publisher may be nil when no
// progress streaming is needed.
func NewEngine(projects ProjectStore, templates TemplateStore, outlines *OutlineGenerator, renderer *SlideRenderer, publisher Publisher, logger zerolog.Logger) *Engine {
	return &Engine{
		projects:  projects,
		templates: templates,
		outlines:  outlines,
		renderer:  renderer,
		publisher: publisher,
		logger:    logger.With().Str("component", "workflow").Logger(),
	}
}

func (e *Engine) publish(board *models.TodoBoard, message string) {
	if e.publisher == nil {
		return
	}
	e.publisher.Publish(eventFromBoard(board, message))
}

// WithBoardCache enables board mirroring. Returns the engine for chaining.
func (e *Engine) WithBoardCache(bc BoardCache) *Engine {
	e.boardCache = bc
	return e
}

// WithOutlineCache enables outline caching. Returns the engine for chaining.
func (e *Engine) WithOutlineCache(oc OutlineCache) *Engine {
	e.outlineCache = oc
	return e
}

// WithStageObserver reports stage durations to fn. Returns the engine for
// chaining.
func (e *Engine) WithStageObserver(fn StageObserver) *Engine {
	e.observeStage = fn
	return e
}

func (e *Engine) save(ctx context.Context, project *models.Project) error {
	if err := e.projects.UpdateProject(ctx, project); err != nil {
		return fmt.Errorf("persist project: %w", err)
	}
	if e.boardCache != nil && project.TodoBoard != nil {
		if err := e.boardCache.SetBoard(ctx, project.TodoBoard); err != nil {
			e.logger.Warn().Err(err).Str("project_id", project.ID.String()).Msg("failed to cache board")
		}
	}
	return nil
}

// fail marks the current stage failed, persists and reports the error.
func (e *Engine) fail(ctx context.Context, project *models.Project, stageErr error) error {
	board := project.TodoBoard
	board.FailStage(stageErr.Error())
	project.Status = models.ProjectStatusInProgress
	if saveErr := e.save(ctx, project); saveErr != nil {
		e.logger.Error().Err(saveErr).Str("project_id", project.ID.String()).Msg("failed to persist failed stage")
	}
	e.publish(board, stageErr.Error())
	return stageErr
}

// Run executes the full generation pipeline for a project. The request's
// provider preference is carried in req; an empty provider name uses the
// default. Run resumes from the board's current stage, so a retried
// project continues where it failed.
func (e *Engine) Run(ctx context.Context, projectID uuid.UUID, req *models.GenerationRequest) error {
	project, err := e.projects.GetProjectByID(ctx, projectID)
	if err != nil {
		return fmt.Errorf("load project: %w", err)
	}
	if project.TodoBoard == nil {
		project.TodoBoard = models.NewTodoBoard(project.ID, project.Title)
	}
	board := project.TodoBoard

	req.Normalize()
	project.Status = models.ProjectStatusInProgress

	for !board.Done() {
		if err := ctx.Err(); err != nil {
			return e.fail(ctx, project, fmt.Errorf("generation canceled: %w", err))
		}

		stage := board.CurrentStage()
		board.StartStage()
		if err := e.save(ctx, project); err != nil {
			return err
		}
		e.publish(board, "")

		stageStart := time.Now()
		var stageErr error
		switch stage.ID {
		case models.StageRequirements:
			stageErr = e.runRequirements(ctx, project, req)
		case models.StageOutline:
			stageErr = e.runOutline(ctx, project, req)
		case models.StageTemplate:
			stageErr = e.runTemplate(ctx, project)
		case models.StageSlides:
			stageErr = e.runSlides(ctx, project)
		default:
			stageErr = fmt.Errorf("unknown stage %q", stage.ID)
		}
		if stageErr != nil {
			return e.fail(ctx, project, stageErr)
		}
		if e.observeStage != nil {
			e.observeStage(stage.ID, time.Since(stageStart))
		}

		if err := e.save(ctx, project); err != nil {
			return err
		}
		e.publish(board, "")
	}

	project.Status = models.ProjectStatusCompleted
	if err := e.save(ctx, project); err != nil {
		return err
	}
	e.publish(board, "generation completed")

	e.logger.Info().
		Str("project_id", project.ID.String()).
		Int("slides", len(project.Slides)).
		Msg("generation pipeline completed")
	return nil
}

// Retry resets a failed stage back to pending so Run can resume it.
func (e *Engine) Retry(ctx context.Context, projectID uuid.UUID) error {
	project, err := e.projects.GetProjectByID(ctx, projectID)
	if err != nil {
		return fmt.Errorf("load project: %w", err)
	}
	if project.TodoBoard == nil || !project.TodoBoard.RetryStage() {
		return fmt.Errorf("project has no failed stage to retry")
	}
	if err := e.save(ctx, project); err != nil {
		return err
	}
	e.publish(project.TodoBoard, "stage queued for retry")
	return nil
}

func (e *Engine) runRequirements(_ context.Context, project *models.Project, req *models.GenerationRequest) error {
	confirmed := map[string]any{
		"scenario":        req.Scenario,
		"topic":           req.Topic,
		"language":        req.Language,
		"ppt_style":       req.Style,
		"page_count_mode": string(req.PageCountMode),
		"network_mode":    req.NetworkMode,
	}
	if req.Requirements != "" {
		confirmed["requirements"] = req.Requirements
	}
	if req.TargetAudience != "" {
		confirmed["target_audience"] = req.TargetAudience
	}
	switch req.PageCountMode {
	case models.PageCountCustomRange:
		confirmed["min_pages"] = req.MinPages
		confirmed["max_pages"] = req.MaxPages
	case models.PageCountFixed:
		confirmed["fixed_pages"] = req.FixedPages
	}

	project.ConfirmedRequirements = confirmed
	project.TodoBoard.CompleteStage(map[string]any{"confirmed": true})
	return nil
}

func (e *Engine) runOutline(ctx context.Context, project *models.Project, req *models.GenerationRequest) error {
	// Regenerating over an existing outline must reach the provider, so
	// the stale cache entry goes first.
	if project.Outline != nil && e.outlineCache != nil {
		if err := e.outlineCache.DeleteOutline(ctx, project.ID); err != nil {
			e.logger.Warn().Err(err).Str("project_id", project.ID.String()).Msg("failed to invalidate cached outline")
		}
	}

	if project.Outline == nil && e.outlineCache != nil {
		if cached, err := e.outlineCache.GetOutline(ctx, project.ID); err == nil && cached != nil {
			e.logger.Debug().Str("project_id", project.ID.String()).Msg("outline served from cache")
			project.Outline = cached
			project.TodoBoard.CompleteStage(map[string]any{
				"title":      cached.Title,
				"page_count": cached.PageCount(),
				"cached":     true,
			})
			return nil
		}
	}

	providerName := ""
	if v, ok := project.Metadata["provider"].(string); ok {
		providerName = v
	}

	outline, err := e.outlines.Generate(ctx, providerName, req)
	if err != nil {
		return fmt.Errorf("generate outline: %w", err)
	}

	if e.outlineCache != nil {
		if err := e.outlineCache.SetOutline(ctx, project.ID, outline); err != nil {
			e.logger.Warn().Err(err).Str("project_id", project.ID.String()).Msg("failed to cache outline")
		}
	}

	if project.Outline != nil {
		project.SnapshotVersion()
	}
	project.Outline = outline
	project.TodoBoard.CompleteStage(map[string]any{
		"title":      outline.Title,
		"page_count": outline.PageCount(),
	})
	return nil
}

// masterFor resolves the master template for a project. Free mode uses the
// built-in template without touching the store; otherwise the pinned
// template or the store default applies.
func (e *Engine) masterFor(ctx context.Context, project *models.Project) (*models.MasterTemplate, error) {
	if mode, _ := project.Metadata["template_mode"].(string); mode == "free" {
		return DefaultTemplate(), nil
	}
	if id, ok := project.SelectedTemplateID(); ok {
		master, err := e.templates.GetMasterTemplateByID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("load selected template %d: %w", id, err)
		}
		return master, nil
	}
	master, err := e.templates.GetDefaultMasterTemplate(ctx)
	if err != nil {
		return nil, fmt.Errorf("load default template: %w", err)
	}
	return master, nil
}

func (e *Engine) runTemplate(ctx context.Context, project *models.Project) error {
	master, err := e.masterFor(ctx, project)
	if err != nil {
		return err
	}

	if master.ID != 0 {
		if err := e.templates.IncrementTemplateUsage(ctx, master.ID); err != nil {
			e.logger.Warn().Err(err).Int64("template_id", master.ID).Msg("failed to bump template usage")
		}
		project.SetMetadata("selected_template_id", master.ID)
	}
	project.TodoBoard.CompleteStage(map[string]any{
		"template_id":   master.ID,
		"template_name": master.Name,
	})
	return nil
}

func (e *Engine) runSlides(ctx context.Context, project *models.Project) error {
	if project.Outline == nil {
		return fmt.Errorf("project has no outline")
	}

	master, err := e.masterFor(ctx, project)
	if err != nil {
		return err
	}

	board := project.TodoBoard
	slides, err := e.renderer.RenderAll(master, project.Outline, func(done, total int) {
		board.UpdateProgress(float64(done) / float64(total))
		e.publish(board, fmt.Sprintf("rendered slide %d of %d", done, total))
	})
	if err != nil {
		return fmt.Errorf("render slides: %w", err)
	}

	project.Slides = slides
	board.CompleteStage(map[string]any{"slide_count": len(slides)})
	return nil
}
