package generator

import (
	"time"

	"github.com/google/uuid"

	"github.com/landppt/landppt/internal/models"
)

// ProgressEvent is one update emitted while a project is being generated.
// Events are pushed to websocket subscribers and cached for reconnects.
type ProgressEvent struct {
	ProjectID       uuid.UUID          `json:"project_id"`
	StageID         string             `json:"stage_id"`
	StageStatus     models.StageStatus `json:"stage_status"`
	StageProgress   float64            `json:"stage_progress"`
	OverallProgress float64            `json:"overall_progress"`
	Message         string             `json:"message,omitempty"`
	Timestamp       time.Time          `json:"timestamp"`
}

// Publisher receives progress events from the workflow engine.
type Publisher interface {
	Publish(event ProgressEvent)
}

// PublisherFunc adapts a function to the Publisher interface.
type PublisherFunc func(event ProgressEvent)

// Publish calls the wrapped function.
func (f PublisherFunc) Publish(event ProgressEvent) { f(event) }

func eventFromBoard(board *models.TodoBoard, message string) ProgressEvent {
	e := ProgressEvent{
		ProjectID:       board.ProjectID,
		OverallProgress: board.OverallProgress,
		Message:         message,
		Timestamp:       time.Now(),
	}
	if stage := board.CurrentStage(); stage != nil {
		e.StageID = stage.ID
		e.StageStatus = stage.Status
		e.StageProgress = stage.Progress
	} else if n := len(board.Stages); n > 0 {
		last := board.Stages[n-1]
		e.StageID = last.ID
		e.StageStatus = last.Status
		e.StageProgress = last.Progress
	}
	return e
}
