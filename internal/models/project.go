package models

import (
	"time"

	"github.com/google/uuid"
)

// ProjectStatus is the lifecycle state of a presentation project.
type ProjectStatus string

const (
	ProjectStatusDraft      ProjectStatus = "draft"
	ProjectStatusInProgress ProjectStatus = "in_progress"
	ProjectStatusCompleted  ProjectStatus = "completed"
	ProjectStatusArchived   ProjectStatus = "archived"
)

// SlideType classifies a slide within an outline.
type SlideType string

const (
	SlideTypeTitle      SlideType = "title"
	SlideTypeAgenda     SlideType = "agenda"
	SlideTypeSection    SlideType = "section"
	SlideTypeContent    SlideType = "content"
	SlideTypeList       SlideType = "list"
	SlideTypeChart      SlideType = "chart"
	SlideTypeImage      SlideType = "image"
	SlideTypeConclusion SlideType = "conclusion"
	SlideTypeThankYou   SlideType = "thankyou"
)

// SlideContent is a single typed slide within an outline.
type SlideContent struct {
	Type             SlideType      `json:"type"`
	Title            string         `json:"title"`
	Subtitle         string         `json:"subtitle,omitempty"`
	Content          string         `json:"content,omitempty"`
	BulletPoints     []string       `json:"bullet_points,omitempty"`
	ImageSuggestions []string       `json:"image_suggestions,omitempty"`
	ChartData        map[string]any `json:"chart_data,omitempty"`
	Layout           string         `json:"layout,omitempty"`
	Locked           bool           `json:"locked,omitempty"`
}

// Outline is the structured plan of a presentation.
type Outline struct {
	Title       string         `json:"title"`
	Slides      []SlideContent `json:"slides"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	ThemeConfig map[string]any `json:"theme_config,omitempty"`
}

// PageCount returns the number of planned slides.
func (o *Outline) PageCount() int {
	return len(o.Slides)
}

// RenderedSlide is one slide rendered to standalone HTML.
type RenderedSlide struct {
	Index int    `json:"index"`
	Title string `json:"title"`
	HTML  string `json:"html"`
}

// ProjectVersion is one entry in a project's version history.
type ProjectVersion struct {
	Version   int            `json:"version"`
	Outline   *Outline       `json:"outline,omitempty"`
	SlidesRef string         `json:"slides_ref,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Project is a presentation generation project.
type Project struct {
	ID                    uuid.UUID       `json:"id"`
	OwnerID               uuid.UUID       `json:"owner_id"`
	Title                 string          `json:"title"`
	Scenario              string          `json:"scenario"`
	Topic                 string          `json:"topic"`
	Requirements          string          `json:"requirements,omitempty"`
	Language              string          `json:"language"`
	Status                ProjectStatus   `json:"status"`
	Outline               *Outline        `json:"outline,omitempty"`
	Slides                []RenderedSlide `json:"slides,omitempty"`
	ConfirmedRequirements map[string]any  `json:"confirmed_requirements,omitempty"`
	Metadata              map[string]any  `json:"metadata,omitempty"`
	TodoBoard             *TodoBoard      `json:"todo_board,omitempty"`
	Version               int             `json:"version"`
	Versions              []ProjectVersion `json:"versions,omitempty"`
	CreatedAt             time.Time       `json:"created_at"`
	UpdatedAt             time.Time       `json:"updated_at"`
}

// NewProject creates a draft project and its generation board.
func NewProject(ownerID uuid.UUID, title, scenario, topic, requirements, lang string) *Project {
	now := time.Now()
	p := &Project{
		ID:           uuid.New(),
		OwnerID:      ownerID,
		Title:        title,
		Scenario:     scenario,
		Topic:        topic,
		Requirements: requirements,
		Language:     lang,
		Status:       ProjectStatusDraft,
		Version:      1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	p.TodoBoard = NewTodoBoard(p.ID, title)
	return p
}

// SnapshotVersion appends the current outline to the version history and
// bumps the version counter.
func (p *Project) SnapshotVersion() {
	p.Versions = append(p.Versions, ProjectVersion{
		Version:   p.Version,
		Outline:   p.Outline,
		Metadata:  p.Metadata,
		CreatedAt: time.Now(),
	})
	p.Version++
	p.UpdatedAt = time.Now()
}

// SetMetadata stores one metadata key, allocating the map on first use.
func (p *Project) SetMetadata(key string, value any) {
	if p.Metadata == nil {
		p.Metadata = map[string]any{}
	}
	p.Metadata[key] = value
	p.UpdatedAt = time.Now()
}

// ClearMetadata removes one metadata key.
func (p *Project) ClearMetadata(key string) {
	delete(p.Metadata, key)
}

// SelectedTemplateID returns the template chosen for this project, if any.
func (p *Project) SelectedTemplateID() (int64, bool) {
	if p.Metadata == nil {
		return 0, false
	}
	switch v := p.Metadata["selected_template_id"].(type) {
	case int64:
		return v, true
	case float64:
		return int64(v), true
	}
	return 0, false
}
