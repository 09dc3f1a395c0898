package models

import (
	"time"

	"github.com/google/uuid"
)

// StageStatus is the lifecycle state of a single board stage.
type StageStatus string

const (
	StageStatusPending   StageStatus = "pending"
	StageStatusRunning   StageStatus = "running"
	StageStatusCompleted StageStatus = "completed"
	StageStatusFailed    StageStatus = "failed"
)

// Well-known stage IDs of the generation pipeline, in fixed order.
const (
	StageRequirements  = "requirements_confirmation"
	StageOutline       = "outline_generation"
	StageTemplate      = "template_selection"
	StageSlides        = "slide_generation"
)

// TodoStage is one step of a project's generation pipeline.
type TodoStage struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Status      StageStatus    `json:"status"`
	Progress    float64        `json:"progress"`
	Subtasks    []string       `json:"subtasks,omitempty"`
	Result      map[string]any `json:"result,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// TodoBoard tracks the generation pipeline for one project.
// Stage order is fixed; OverallProgress is the mean of stage progress.
type TodoBoard struct {
	ProjectID         uuid.UUID   `json:"project_id"`
	Title             string      `json:"title"`
	Stages            []TodoStage `json:"stages"`
	CurrentStageIndex int         `json:"current_stage_index"`
	OverallProgress   float64     `json:"overall_progress"`
	CreatedAt         time.Time   `json:"created_at"`
	UpdatedAt         time.Time   `json:"updated_at"`
}

// NewTodoBoard creates a board with the standard four-stage pipeline.
func NewTodoBoard(projectID uuid.UUID, title string) *TodoBoard {
	now := time.Now()
	stages := []struct{ id, name, desc string }{
		{StageRequirements, "Confirm requirements", "Review and confirm the generation requirements"},
		{StageOutline, "Generate outline", "Produce the presentation outline"},
		{StageTemplate, "Select template", "Choose the master template for rendering"},
		{StageSlides, "Generate slides", "Render each slide to HTML"},
	}

	board := &TodoBoard{
		ProjectID: projectID,
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}
	for _, s := range stages {
		board.Stages = append(board.Stages, TodoStage{
			ID:          s.id,
			Name:        s.name,
			Description: s.desc,
			Status:      StageStatusPending,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
	}
	return board
}

// CurrentStage returns the stage at the current index, or nil when the
// board has run past its last stage.
func (b *TodoBoard) CurrentStage() *TodoStage {
	if b.CurrentStageIndex < 0 || b.CurrentStageIndex >= len(b.Stages) {
		return nil
	}
	return &b.Stages[b.CurrentStageIndex]
}

// StageByID returns the stage with the given ID, or nil.
func (b *TodoBoard) StageByID(id string) *TodoStage {
	for i := range b.Stages {
		if b.Stages[i].ID == id {
			return &b.Stages[i]
		}
	}
	return nil
}

// StartStage marks the current stage as running.
func (b *TodoBoard) StartStage() {
	stage := b.CurrentStage()
	if stage == nil {
		return
	}
	now := time.Now()
	stage.Status = StageStatusRunning
	stage.UpdatedAt = now
	b.UpdatedAt = now
}

// UpdateProgress sets the current stage's progress (clamped to [0,1])
// and recomputes the overall progress.
func (b *TodoBoard) UpdateProgress(progress float64) {
	stage := b.CurrentStage()
	if stage == nil {
		return
	}
	if progress < 0 {
		progress = 0
	}
	if progress > 1 {
		progress = 1
	}
	now := time.Now()
	stage.Progress = progress
	stage.UpdatedAt = now
	b.recompute(now)
}

// CompleteStage marks the current stage completed with the given result
// and advances to the next stage.
func (b *TodoBoard) CompleteStage(result map[string]any) {
	stage := b.CurrentStage()
	if stage == nil {
		return
	}
	now := time.Now()
	stage.Status = StageStatusCompleted
	stage.Progress = 1
	stage.Result = result
	stage.UpdatedAt = now
	b.CurrentStageIndex++
	b.recompute(now)
}

// FailStage marks the current stage as failed and halts the board.
func (b *TodoBoard) FailStage(reason string) {
	stage := b.CurrentStage()
	if stage == nil {
		return
	}
	now := time.Now()
	stage.Status = StageStatusFailed
	stage.Result = map[string]any{"error": reason}
	stage.UpdatedAt = now
	b.recompute(now)
}

// RetryStage resets a failed current stage back to pending.
func (b *TodoBoard) RetryStage() bool {
	stage := b.CurrentStage()
	if stage == nil || stage.Status != StageStatusFailed {
		return false
	}
	now := time.Now()
	stage.Status = StageStatusPending
	stage.Progress = 0
	stage.Result = nil
	stage.UpdatedAt = now
	b.recompute(now)
	return true
}

// Done returns true once every stage has completed.
func (b *TodoBoard) Done() bool {
	return b.CurrentStageIndex >= len(b.Stages)
}

// Failed returns true if the current stage has failed.
func (b *TodoBoard) Failed() bool {
	stage := b.CurrentStage()
	return stage != nil && stage.Status == StageStatusFailed
}

func (b *TodoBoard) recompute(now time.Time) {
	if len(b.Stages) == 0 {
		b.OverallProgress = 0
		return
	}
	var sum float64
	for i := range b.Stages {
		sum += b.Stages[i].Progress
	}
	b.OverallProgress = sum / float64(len(b.Stages))
	b.UpdatedAt = now
}
