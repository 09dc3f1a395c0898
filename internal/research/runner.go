package research

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/landppt/landppt/internal/ai"
	"github.com/landppt/landppt/internal/models"
)

// MaxResearchSteps caps how many research rounds a single run performs.
const MaxResearchSteps = 5

// Runner performs multi-step research on a topic using an AI provider.
type Runner struct {
	providers *ai.Registry
	logger    zerolog.Logger
}

// NewRunner creates a research runner.
func NewRunner(providers *ai.Registry, logger zerolog.Logger) *Runner {
	return &Runner{
		providers: providers,
		logger:    logger.With().Str("component", "research").Logger(),
	}
}

type planResponse struct {
	Steps []struct {
		Description string `json:"description"`
		Query       string `json:"query"`
	} `json:"steps"`
}

type summaryResponse struct {
	ExecutiveSummary string   `json:"executive_summary"`
	KeyFindings      []string `json:"key_findings"`
	Recommendations  []string `json:"recommendations"`
}

// Run executes a research task: plan the steps, analyze each one, then
// summarize. Individual step failures are recorded but do not abort the
// run.
func (r *Runner) Run(ctx context.Context, topic, lang string) (*models.ResearchReport, error) {
	provider, err := r.providers.Default()
	if err != nil {
		return nil, err
	}

	start := time.Now()
	report := &models.ResearchReport{
		Topic:     topic,
		Language:  lang,
		CreatedAt: start,
	}

	plan, err := r.plan(ctx, provider, topic)
	if err != nil {
		return nil, fmt.Errorf("plan research: %w", err)
	}

	for i, step := range plan.Steps {
		if i >= MaxResearchSteps {
			break
		}
		result := models.ResearchStep{
			StepNumber:  i + 1,
			Description: step.Description,
			Query:       step.Query,
		}

		analysis, err := r.analyze(ctx, provider, topic, step.Description, step.Query)
		if err != nil {
			r.logger.Warn().Err(err).Int("step", i+1).Msg("research step failed")
			result.Analysis = err.Error()
		} else {
			result.Analysis = analysis
			result.Completed = true
		}
		report.Steps = append(report.Steps, result)
	}

	if err := r.summarize(ctx, provider, report); err != nil {
		return nil, fmt.Errorf("summarize research: %w", err)
	}

	report.TotalDuration = time.Since(start)
	r.logger.Info().
		Str("topic", topic).
		Int("steps", len(report.Steps)).
		Dur("duration", report.TotalDuration).
		Msg("research run completed")
	return report, nil
}

func (r *Runner) plan(ctx context.Context, provider ai.Provider, topic string) (*planResponse, error) {
	prompt := fmt.Sprintf(`Plan a research task on the topic %q.
Respond with a JSON object: {"steps": [{"description": "...", "query": "..."}]}.
Produce 3 to %d focused steps.`, topic, MaxResearchSteps)

	resp, err := provider.TextCompletion(ctx, prompt, ai.Options{JSONMode: true})
	if err != nil {
		return nil, err
	}

	var plan planResponse
	if err := json.Unmarshal([]byte(stripFences(resp.Content)), &plan); err != nil {
		return nil, fmt.Errorf("parse research plan: %w", err)
	}
	if len(plan.Steps) == 0 {
		return nil, fmt.Errorf("research plan has no steps")
	}
	return &plan, nil
}

func (r *Runner) analyze(ctx context.Context, provider ai.Provider, topic, description, query string) (string, error) {
	prompt := fmt.Sprintf(`Research topic: %s
Current step: %s
Search focus: %s

Write a thorough analysis for this step in Markdown, starting with a "### " heading.`, topic, description, query)

	resp, err := provider.TextCompletion(ctx, prompt, ai.Options{})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

func (r *Runner) summarize(ctx context.Context, provider ai.Provider, report *models.ResearchReport) error {
	var analyses strings.Builder
	for _, step := range report.Steps {
		if step.Completed {
			analyses.WriteString(step.Analysis)
			analyses.WriteString("\n\n")
		}
	}

	prompt := fmt.Sprintf(`Summarize the following research on %q.
Respond with a JSON object: {"executive_summary": "...", "key_findings": ["..."], "recommendations": ["..."]}.

%s`, report.Topic, analyses.String())

	resp, err := provider.TextCompletion(ctx, prompt, ai.Options{JSONMode: true})
	if err != nil {
		return err
	}

	var summary summaryResponse
	if err := json.Unmarshal([]byte(stripFences(resp.Content)), &summary); err != nil {
		return fmt.Errorf("parse research summary: %w", err)
	}

	report.ExecutiveSummary = summary.ExecutiveSummary
	report.KeyFindings = summary.KeyFindings
	report.Recommendations = summary.Recommendations
	return nil
}

func stripFences(raw string) string {
	text := strings.TrimSpace(raw)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
		text = strings.TrimSpace(text)
	}
	return text
}
