package models

// Scenario is a canned generation preset shown on the project creation page.
type Scenario struct {
	ID             string         `json:"id" yaml:"id"`
	Name           string         `json:"name" yaml:"name"`
	Description    string         `json:"description" yaml:"description"`
	Icon           string         `json:"icon" yaml:"icon"`
	TemplateConfig map[string]any `json:"template_config" yaml:"template_config"`
}

// PageCountMode controls how many slides an outline targets.
type PageCountMode string

const (
	// PageCountAIDecide lets the model pick a slide count.
	PageCountAIDecide PageCountMode = "ai_decide"
	// PageCountCustomRange constrains the count to [MinPages, MaxPages].
	PageCountCustomRange PageCountMode = "custom_range"
	// PageCountFixed requests exactly FixedPages slides.
	PageCountFixed PageCountMode = "fixed"
)

// GenerationRequest captures everything needed to start generating a project.
type GenerationRequest struct {
	Scenario          string        `json:"scenario" binding:"required"`
	Topic             string        `json:"topic" binding:"required"`
	Requirements      string        `json:"requirements,omitempty"`
	Language          string        `json:"language,omitempty"`
	TargetAudience    string        `json:"target_audience,omitempty"`
	Style             string        `json:"ppt_style,omitempty"`
	CustomStylePrompt string        `json:"custom_style_prompt,omitempty"`
	UploadedContent   string        `json:"uploaded_content,omitempty"`
	NetworkMode       bool          `json:"network_mode,omitempty"`
	PageCountMode     PageCountMode `json:"page_count_mode,omitempty"`
	MinPages          int           `json:"min_pages,omitempty"`
	MaxPages          int           `json:"max_pages,omitempty"`
	FixedPages        int           `json:"fixed_pages,omitempty"`
}

// Normalize fills in the defaults the original request omitted.
func (r *GenerationRequest) Normalize() {
	if r.Language == "" {
		r.Language = "zh"
	}
	if r.Style == "" {
		r.Style = "general"
	}
	if r.PageCountMode == "" {
		r.PageCountMode = PageCountAIDecide
	}
	if r.PageCountMode == PageCountCustomRange {
		if r.MinPages <= 0 {
			r.MinPages = 8
		}
		if r.MaxPages < r.MinPages {
			r.MaxPages = 15
		}
	}
	if r.PageCountMode == PageCountFixed && r.FixedPages <= 0 {
		r.FixedPages = 10
	}
}
