// Package research runs deep research tasks and turns the results into
// saved Markdown reports.
package research

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/landppt/landppt/internal/models"
)

var (
	invalidFilenameChars = regexp.MustCompile(`[<>:"/\\|?*]`)
	whitespaceRun        = regexp.MustCompile(`\s+`)
)

// SanitizeTopic turns a report topic into a safe filename fragment,
// capped at 50 characters.
func SanitizeTopic(topic string) string {
	s := invalidFilenameChars.ReplaceAllString(topic, "_")
	s = whitespaceRun.ReplaceAllString(strings.TrimSpace(s), "_")
	return truncateRunes(s, 50)
}

// truncateRunes caps s at n runes without splitting multi-byte characters.
func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}

// ReportWriter renders research reports to Markdown and manages the
// on-disk report directory.
type ReportWriter struct {
	dir    string
	logger zerolog.Logger
}

// NewReportWriter creates a writer rooted at dir, creating it if needed.
func NewReportWriter(dir string, logger zerolog.Logger) (*ReportWriter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create reports directory: %w", err)
	}
	return &ReportWriter{
		dir:    dir,
		logger: logger.With().Str("component", "research").Logger(),
	}, nil
}

// Markdown renders the report as a Markdown document.
func (w *ReportWriter) Markdown(report *models.ResearchReport) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s - Research Report\n\n---\n\n", report.Topic)

	b.WriteString("## Report Info\n\n")
	fmt.Fprintf(&b, "- **Topic**: %s\n", report.Topic)
	fmt.Fprintf(&b, "- **Language**: %s\n", report.Language)
	fmt.Fprintf(&b, "- **Generated**: %s\n", report.CreatedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "- **Duration**: %.2f seconds\n", report.TotalDuration.Seconds())
	fmt.Fprintf(&b, "- **Research steps**: %d\n", len(report.Steps))
	fmt.Fprintf(&b, "- **Sources**: %d\n\n", len(report.Sources))

	b.WriteString("## Executive Summary\n\n")
	b.WriteString(report.ExecutiveSummary)
	b.WriteString("\n\n")

	if len(report.KeyFindings) > 0 {
		b.WriteString("## Key Findings\n\n")
		for i, finding := range report.KeyFindings {
			fmt.Fprintf(&b, "%d. %s\n", i+1, finding)
		}
		b.WriteString("\n")
	}

	if len(report.Recommendations) > 0 {
		b.WriteString("## Recommendations\n\n")
		for i, rec := range report.Recommendations {
			fmt.Fprintf(&b, "%d. %s\n", i+1, rec)
		}
		b.WriteString("\n")
	}

	for _, step := range report.Steps {
		if !step.Completed {
			fmt.Fprintf(&b, "**Step %d failed**: %s\n\n", step.StepNumber, step.Analysis)
			continue
		}
		b.WriteString(step.Analysis)
		b.WriteString("\n\n")

		if len(step.Results) > 0 {
			b.WriteString("**Primary sources**:\n\n")
			max := len(step.Results)
			if max > 3 {
				max = 3
			}
			for i, result := range step.Results[:max] {
				fmt.Fprintf(&b, "%d. [%s](%s)\n", i+1, result.Title, result.URL)
				if result.Content != "" {
					preview := result.Content
					if utf8.RuneCountInString(preview) > 150 {
						preview = truncateRunes(preview, 150) + "..."
					}
					fmt.Fprintf(&b, "   > %s\n", preview)
				}
			}
			b.WriteString("\n")
		}
	}

	if len(report.Sources) > 0 {
		b.WriteString("## References\n\n")
		for i, source := range report.Sources {
			fmt.Fprintf(&b, "%d. %s\n", i+1, source)
		}
		b.WriteString("\n")
	}

	b.WriteString("---\n\n*Generated by the LandPPT deep research system*\n")
	return b.String()
}

// Filename returns the canonical filename for a report.
func Filename(report *models.ResearchReport) string {
	return fmt.Sprintf("research_%s_%s.md",
		SanitizeTopic(report.Topic),
		report.CreatedAt.Format("20060102_150405"))
}

// Save writes the report to disk and returns its filename, suitable for
// passing back to Read and Delete. An empty customFilename uses the
// canonical name.
func (w *ReportWriter) Save(report *models.ResearchReport, customFilename string) (string, error) {
	filename := customFilename
	if filename == "" {
		filename = Filename(report)
	} else if !strings.HasSuffix(filename, ".md") {
		filename += ".md"
	}
	// Reject names that escape the reports directory.
	if filepath.Base(filename) != filename {
		return "", fmt.Errorf("invalid report filename %q", filename)
	}

	path := filepath.Join(w.dir, filename)
	if err := os.WriteFile(path, []byte(w.Markdown(report)), 0o644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}

	w.logger.Info().Str("path", path).Msg("research report saved")
	return filename, nil
}

// List returns saved reports, newest first.
func (w *ReportWriter) List() ([]models.SavedReport, error) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return nil, fmt.Errorf("read reports directory: %w", err)
	}

	var reports []models.SavedReport
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		reports = append(reports, models.SavedReport{
			Filename:  entry.Name(),
			Path:      filepath.Join(w.dir, entry.Name()),
			SizeBytes: info.Size(),
			CreatedAt: info.ModTime(),
		})
	}

	sort.Slice(reports, func(i, j int) bool {
		return reports[i].CreatedAt.After(reports[j].CreatedAt)
	})
	return reports, nil
}

// Read returns the Markdown content of a saved report.
func (w *ReportWriter) Read(filename string) ([]byte, error) {
	if filepath.Base(filename) != filename || !strings.HasSuffix(filename, ".md") {
		return nil, fmt.Errorf("invalid report filename %q", filename)
	}
	data, err := os.ReadFile(filepath.Join(w.dir, filename))
	if err != nil {
		return nil, fmt.Errorf("read report: %w", err)
	}
	return data, nil
}

// Delete removes a saved report.
func (w *ReportWriter) Delete(filename string) error {
	if filepath.Base(filename) != filename || !strings.HasSuffix(filename, ".md") {
		return fmt.Errorf("invalid report filename %q", filename)
	}
	if err := os.Remove(filepath.Join(w.dir, filename)); err != nil {
		return fmt.Errorf("delete report: %w", err)
	}
	w.logger.Info().Str("filename", filename).Msg("research report deleted")
	return nil
}
