package research

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/landppt/landppt/internal/models"
)

func sampleReport() *models.ResearchReport {
	return &models.ResearchReport{
		Topic:            "Edge AI deployment",
		Language:         "en",
		ExecutiveSummary: "Edge AI is maturing fast.",
		KeyFindings:      []string{"Hardware is cheaper", "Models are smaller"},
		Recommendations:  []string{"Pilot on existing fleets"},
		Steps: []models.ResearchStep{
			{
				StepNumber:  1,
				Description: "Market overview",
				Query:       "edge AI market 2026",
				Analysis:    "### Market overview\nThe market grew.",
				Completed:   true,
				Results: []models.ResearchSource{
					{Title: "Report", URL: "https://example.com/r", Content: strings.Repeat("x", 200)},
				},
			},
			{StepNumber: 2, Description: "Failures", Query: "q", Analysis: "timeout"},
		},
		Sources:       []string{"https://example.com/r"},
		TotalDuration: 3 * time.Second,
		CreatedAt:     time.Date(2026, 2, 3, 10, 30, 0, 0, time.UTC),
	}
}

func TestSanitizeTopic(t *testing.T) {
	tests := []struct{ in, want string }{
		{"AI in Education", "AI_in_Education"},
		{`bad/name:with*chars?`, "bad_name_with_chars_"},
		{"  spaced   out  ", "spaced_out"},
	}
	for _, tt := range tests {
		if got := SanitizeTopic(tt.in); got != tt.want {
			t.Errorf("SanitizeTopic(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}

	long := strings.Repeat("a", 80)
	if got := SanitizeTopic(long); len(got) != 50 {
		t.Errorf("expected 50-char cap, got %d", len(got))
	}
}

func TestSanitizeTopicMultibyte(t *testing.T) {
	long := strings.Repeat("人工智能演示文稿", 10)
	got := SanitizeTopic(long)
	if !utf8.ValidString(got) {
		t.Fatalf("sanitized topic is not valid UTF-8: %q", got)
	}
	if n := utf8.RuneCountInString(got); n != 50 {
		t.Errorf("expected 50-rune cap, got %d runes", n)
	}

	short := "教育中的AI应用"
	if got := SanitizeTopic(short); got != short {
		t.Errorf("SanitizeTopic(%q) = %q, want unchanged", short, got)
	}
}

func TestMarkdownStructure(t *testing.T) {
	w, err := NewReportWriter(t.TempDir(), zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}

	md := w.Markdown(sampleReport())

	for _, want := range []string{
		"# Edge AI deployment - Research Report",
		"## Executive Summary",
		"## Key Findings",
		"1. Hardware is cheaper",
		"## Recommendations",
		"### Market overview",
		"**Primary sources**:",
		"[Report](https://example.com/r)",
		"**Step 2 failed**: timeout",
		"## References",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q", want)
		}
	}

	// Source previews are truncated.
	if strings.Contains(md, strings.Repeat("x", 151)) {
		t.Error("expected source content preview to be truncated at 150 chars")
	}
}

func TestSaveListReadDelete(t *testing.T) {
	w, err := NewReportWriter(t.TempDir(), zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	report := sampleReport()

	filename, err := w.Save(report, "")
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if filename != "research_Edge_AI_deployment_20260203_103000.md" {
		t.Errorf("unexpected filename %q", filename)
	}

	// The returned filename must feed straight back into Read.
	if _, err := w.Read(filename); err != nil {
		t.Fatalf("Read of saved filename failed: %v", err)
	}

	reports, err := w.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(reports) != 1 {
		t.Fatalf("expected 1 report, got %d", len(reports))
	}

	data, err := w.Read(reports[0].Filename)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if !strings.Contains(string(data), "# Edge AI deployment") {
		t.Error("read content does not match report")
	}

	if err := w.Delete(reports[0].Filename); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	reports, _ = w.List()
	if len(reports) != 0 {
		t.Error("expected report to be deleted")
	}
}

func TestListNewestFirst(t *testing.T) {
	w, err := NewReportWriter(t.TempDir(), zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}

	older := sampleReport()
	newer := sampleReport()
	newer.Topic = "Quantum networking"
	newer.CreatedAt = newer.CreatedAt.Add(2 * time.Hour)
	middle := sampleReport()
	middle.Topic = "Robotics"
	middle.CreatedAt = middle.CreatedAt.Add(time.Hour)

	for _, r := range []*models.ResearchReport{older, newer, middle} {
		name, err := w.Save(r, "")
		if err != nil {
			t.Fatalf("Save failed: %v", err)
		}
		// List orders by file mtime; pin it to the report timestamp.
		if err := os.Chtimes(filepath.Join(w.dir, name), r.CreatedAt, r.CreatedAt); err != nil {
			t.Fatal(err)
		}
	}

	reports, err := w.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(reports) != 3 {
		t.Fatalf("expected 3 reports, got %d", len(reports))
	}
	if !strings.Contains(reports[0].Filename, "Quantum_networking") ||
		!strings.Contains(reports[1].Filename, "Robotics") {
		t.Errorf("expected newest-first order, got %q, %q, %q",
			reports[0].Filename, reports[1].Filename, reports[2].Filename)
	}
}

func TestSaveRejectsPathTraversal(t *testing.T) {
	w, err := NewReportWriter(t.TempDir(), zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Save(sampleReport(), "../escape.md"); err == nil {
		t.Error("expected error for path traversal filename")
	}
	if _, err := w.Read("../../etc/passwd"); err == nil {
		t.Error("expected error for traversal read")
	}
	if err := w.Delete("not-markdown.txt"); err == nil {
		t.Error("expected error for non-markdown delete")
	}
}

func TestCatalogIndexAndSearch(t *testing.T) {
	catalog, err := NewCatalog(t.TempDir(), zerolog.Nop())
	if err != nil {
		t.Fatalf("NewCatalog failed: %v", err)
	}
	defer catalog.Close()

	ctx := context.Background()
	report := sampleReport()
	if err := catalog.Index(ctx, "a.md", report, 123); err != nil {
		t.Fatalf("Index failed: %v", err)
	}

	other := sampleReport()
	other.Topic = "Quantum networking"
	other.CreatedAt = other.CreatedAt.Add(time.Hour)
	if err := catalog.Index(ctx, "b.md", other, 456); err != nil {
		t.Fatalf("Index failed: %v", err)
	}

	results, err := catalog.Search(ctx, "", 10)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Filename != "b.md" {
		t.Errorf("expected newest first, got %q", results[0].Filename)
	}

	results, err = catalog.Search(ctx, "Edge", 10)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 1 || results[0].Topic != "Edge AI deployment" {
		t.Fatalf("unexpected search results: %+v", results)
	}

	// Re-indexing the same filename updates in place.
	report.Topic = "Edge AI deployment v2"
	if err := catalog.Index(ctx, "a.md", report, 999); err != nil {
		t.Fatalf("re-Index failed: %v", err)
	}
	results, _ = catalog.Search(ctx, "v2", 10)
	if len(results) != 1 || results[0].SizeBytes != 999 {
		t.Fatalf("expected updated row, got %+v", results)
	}

	if err := catalog.Remove(ctx, "a.md"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	results, _ = catalog.Search(ctx, "", 10)
	if len(results) != 1 {
		t.Errorf("expected 1 result after removal, got %d", len(results))
	}
}
