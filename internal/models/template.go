package models

import "time"

// TemplateMode controls how a template is chosen during generation.
type TemplateMode string

const (
	// TemplateModeGlobal uses an explicitly selected master template.
	TemplateModeGlobal TemplateMode = "global"
	// TemplateModeDefault uses the system default template.
	TemplateModeDefault TemplateMode = "default"
	// TemplateModeFree lets the generator style slides freely.
	TemplateModeFree TemplateMode = "free"
)

// MasterTemplate is a reusable HTML master template for slide rendering.
type MasterTemplate struct {
	ID           int64          `json:"id"`
	Name         string         `json:"template_name"`
	Description  string         `json:"description"`
	HTMLTemplate string         `json:"html_template,omitempty"`
	PreviewImage string         `json:"preview_image,omitempty"`
	StyleConfig  map[string]any `json:"style_config,omitempty"`
	Tags         []string       `json:"tags"`
	IsDefault    bool           `json:"is_default"`
	IsActive     bool           `json:"is_active"`
	UsageCount   int64          `json:"usage_count"`
	CreatedBy    string         `json:"created_by"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// NewMasterTemplate creates an active template with the given content.
func NewMasterTemplate(name, description, htmlTemplate, createdBy string, tags []string) *MasterTemplate {
	now := time.Now()
	if tags == nil {
		tags = []string{}
	}
	return &MasterTemplate{
		Name:         name,
		Description:  description,
		HTMLTemplate: htmlTemplate,
		Tags:         tags,
		IsActive:     true,
		CreatedBy:    createdBy,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}
