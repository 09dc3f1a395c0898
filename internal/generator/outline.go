package generator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/text/language"

	"github.com/landppt/landppt/internal/ai"
	"github.com/landppt/landppt/internal/models"
)

// OutlineGenerator produces structured outlines with an AI provider.
type OutlineGenerator struct {
	providers *ai.Registry
	logger    zerolog.Logger
}

// NewOutlineGenerator creates an outline generator.
func NewOutlineGenerator(providers *ai.Registry, logger zerolog.Logger) *OutlineGenerator {
	return &OutlineGenerator{
		providers: providers,
		logger:    logger.With().Str("component", "outline").Logger(),
	}
}

var chineseMatcher = language.NewMatcher([]language.Tag{
	language.English,
	language.Chinese,
	language.SimplifiedChinese,
	language.TraditionalChinese,
})

// isChinese reports whether the requested content language is a Chinese
// variant. Unknown tags fall back to English.
func isChinese(lang string) bool {
	tag, err := language.Parse(lang)
	if err != nil {
		return false
	}
	_, idx, _ := chineseMatcher.Match(tag)
	return idx >= 1
}

// pageCountInstruction renders the slide count constraint for the prompt.
func pageCountInstruction(req *models.GenerationRequest) string {
	switch req.PageCountMode {
	case models.PageCountFixed:
		return fmt.Sprintf("The presentation must have exactly %d slides.", req.FixedPages)
	case models.PageCountCustomRange:
		return fmt.Sprintf("The presentation must have between %d and %d slides.", req.MinPages, req.MaxPages)
	default:
		return "Choose a slide count that fits the topic, typically 8 to 15 slides."
	}
}

const outlineSchema = `{
  "title": "presentation title",
  "slides": [
    {
      "type": "title|agenda|section|content|list|chart|image|conclusion|thankyou",
      "title": "slide title",
      "subtitle": "optional subtitle",
      "content": "optional body text",
      "bullet_points": ["optional bullet points"],
      "image_suggestions": ["optional image descriptions"]
    }
  ],
  "metadata": {}
}`

func buildOutlinePrompt(req *models.GenerationRequest, scenario *models.Scenario) (system, user string) {
	var sb strings.Builder
	sb.WriteString("You are a professional presentation planner. ")
	sb.WriteString("Respond with a single JSON object matching this schema and nothing else:\n")
	sb.WriteString(outlineSchema)
	if isChinese(req.Language) {
		sb.WriteString("\nWrite all titles and content in Chinese.")
	} else {
		sb.WriteString("\nWrite all titles and content in English.")
	}
	system = sb.String()

	var ub strings.Builder
	fmt.Fprintf(&ub, "Topic: %s\n", req.Topic)
	fmt.Fprintf(&ub, "Scenario: %s (%s)\n", scenario.Name, scenario.Description)
	if req.TargetAudience != "" {
		fmt.Fprintf(&ub, "Target audience: %s\n", req.TargetAudience)
	}
	if req.Requirements != "" {
		fmt.Fprintf(&ub, "Additional requirements: %s\n", req.Requirements)
	}
	if req.UploadedContent != "" {
		fmt.Fprintf(&ub, "Source material:\n%s\n", req.UploadedContent)
	}
	if req.CustomStylePrompt != "" {
		fmt.Fprintf(&ub, "Style guidance: %s\n", req.CustomStylePrompt)
	}
	ub.WriteString(pageCountInstruction(req))
	ub.WriteString("\nStart with a title slide and end with a thankyou slide.")
	user = ub.String()
	return system, user
}

// Generate produces an outline for the request using the named provider
// (empty means the default).
func (g *OutlineGenerator) Generate(ctx context.Context, providerName string, req *models.GenerationRequest) (*models.Outline, error) {
	scenario, err := ScenarioByID(req.Scenario)
	if err != nil {
		return nil, err
	}

	provider, err := g.providers.Get(providerName)
	if err != nil {
		return nil, err
	}

	system, user := buildOutlinePrompt(req, scenario)
	resp, err := provider.ChatCompletion(ctx, []ai.Message{
		{Role: ai.RoleSystem, Content: system},
		{Role: ai.RoleUser, Content: user},
	}, ai.Options{JSONMode: true})
	if err != nil {
		return nil, fmt.Errorf("outline completion: %w", err)
	}

	outline, err := ParseOutline(resp.Content)
	if err != nil {
		return nil, err
	}
	if err := validateOutline(outline, req); err != nil {
		return nil, err
	}

	if outline.Metadata == nil {
		outline.Metadata = map[string]any{}
	}
	outline.Metadata["scenario"] = scenario.ID
	outline.Metadata["language"] = req.Language
	outline.Metadata["provider"] = provider.Name()

	g.logger.Info().
		Str("provider", provider.Name()).
		Str("scenario", scenario.ID).
		Int("slides", outline.PageCount()).
		Msg("outline generated")

	return outline, nil
}

// ParseOutline decodes an outline from model output, tolerating markdown
// code fences around the JSON.
func ParseOutline(raw string) (*models.Outline, error) {
	text := strings.TrimSpace(raw)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
		text = strings.TrimSpace(text)
	}

	var outline models.Outline
	if err := json.Unmarshal([]byte(text), &outline); err != nil {
		return nil, fmt.Errorf("parse outline JSON: %w", err)
	}
	if outline.Title == "" {
		return nil, fmt.Errorf("outline has no title")
	}
	if len(outline.Slides) == 0 {
		return nil, fmt.Errorf("outline has no slides")
	}
	return &outline, nil
}

func validateOutline(outline *models.Outline, req *models.GenerationRequest) error {
	n := outline.PageCount()
	switch req.PageCountMode {
	case models.PageCountFixed:
		// Allow one slide of slack; models routinely miss exact counts.
		if n < req.FixedPages-1 || n > req.FixedPages+1 {
			return fmt.Errorf("outline has %d slides, expected %d", n, req.FixedPages)
		}
	case models.PageCountCustomRange:
		if n < req.MinPages || n > req.MaxPages {
			return fmt.Errorf("outline has %d slides, expected %d..%d", n, req.MinPages, req.MaxPages)
		}
	}
	return nil
}
