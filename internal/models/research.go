package models

import "time"

// ResearchSource is one reference found during a research step.
type ResearchSource struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Content string `json:"content,omitempty"`
}

// ResearchStep is one query/analysis round of a deep research run.
type ResearchStep struct {
	StepNumber  int              `json:"step_number"`
	Description string           `json:"description"`
	Query       string           `json:"query"`
	Analysis    string           `json:"analysis"`
	Results     []ResearchSource `json:"results,omitempty"`
	Completed   bool             `json:"completed"`
}

// ResearchReport is the final artifact of a deep research run.
type ResearchReport struct {
	Topic            string         `json:"topic"`
	Language         string         `json:"language"`
	ExecutiveSummary string         `json:"executive_summary"`
	KeyFindings      []string       `json:"key_findings,omitempty"`
	Recommendations  []string       `json:"recommendations,omitempty"`
	Steps            []ResearchStep `json:"steps"`
	Sources          []string       `json:"sources,omitempty"`
	TotalDuration    time.Duration  `json:"total_duration"`
	CreatedAt        time.Time      `json:"created_at"`
}

// SavedReport describes a research report persisted on disk.
type SavedReport struct {
	Filename  string    `json:"filename"`
	Path      string    `json:"path"`
	Topic     string    `json:"topic"`
	SizeBytes int64     `json:"size"`
	CreatedAt time.Time `json:"created"`
}
