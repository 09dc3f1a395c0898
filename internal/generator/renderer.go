package generator

import (
	_ "embed"
	"fmt"
	"html/template"
	"strings"

	"github.com/rs/zerolog"

	"github.com/landppt/landppt/internal/models"
)

//go:embed default_template.html
var defaultTemplateHTML string

// DefaultTemplate returns the built-in master template, seeded into the
// database on first start.
func DefaultTemplate() *models.MasterTemplate {
	t := models.NewMasterTemplate(
		"Default",
		"Built-in clean template with a light theme",
		defaultTemplateHTML,
		"system",
		[]string{"built-in"},
	)
	t.IsDefault = true
	return t
}

// slideContext is the data passed to a master template for one slide.
type slideContext struct {
	Type         models.SlideType
	Title        string
	Subtitle     string
	Content      string
	BulletPoints []string
	PageNumber   int
	TotalPages   int
	DeckTitle    string
	StyleConfig  map[string]any
}

// SlideRenderer renders outline slides to standalone HTML using a master
// template.
type SlideRenderer struct {
	logger zerolog.Logger
}

// NewSlideRenderer creates a renderer.
func NewSlideRenderer(logger zerolog.Logger) *SlideRenderer {
	return &SlideRenderer{logger: logger.With().Str("component", "renderer").Logger()}
}

// RenderSlide renders a single outline slide with the master template.
func (r *SlideRenderer) RenderSlide(master *models.MasterTemplate, outline *models.Outline, index int) (*models.RenderedSlide, error) {
	if index < 0 || index >= len(outline.Slides) {
		return nil, fmt.Errorf("slide index %d out of range", index)
	}
	slide := outline.Slides[index]

	tmpl, err := template.New(master.Name).Parse(master.HTMLTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse master template %q: %w", master.Name, err)
	}

	ctx := slideContext{
		Type:         slide.Type,
		Title:        slide.Title,
		Subtitle:     slide.Subtitle,
		Content:      slide.Content,
		BulletPoints: slide.BulletPoints,
		PageNumber:   index + 1,
		TotalPages:   len(outline.Slides),
		DeckTitle:    outline.Title,
		StyleConfig:  master.StyleConfig,
	}

	var sb strings.Builder
	if err := tmpl.Execute(&sb, ctx); err != nil {
		return nil, fmt.Errorf("render slide %d: %w", index+1, err)
	}

	return &models.RenderedSlide{
		Index: index,
		Title: slide.Title,
		HTML:  sb.String(),
	}, nil
}

// RenderAll renders every slide of the outline. The optional onSlide
// callback is invoked after each slide, for progress reporting.
func (r *SlideRenderer) RenderAll(master *models.MasterTemplate, outline *models.Outline, onSlide func(done, total int)) ([]models.RenderedSlide, error) {
	total := len(outline.Slides)
	slides := make([]models.RenderedSlide, 0, total)
	for i := range outline.Slides {
		rendered, err := r.RenderSlide(master, outline, i)
		if err != nil {
			return nil, err
		}
		slides = append(slides, *rendered)
		if onSlide != nil {
			onSlide(i+1, total)
		}
	}
	r.logger.Debug().Int("slides", total).Str("template", master.Name).Msg("deck rendered")
	return slides, nil
}
