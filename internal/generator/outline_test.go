package generator

import (
	"strings"
	"testing"

	"github.com/landppt/landppt/internal/models"
)

func TestLoadScenarios(t *testing.T) {
	scenarios, err := LoadScenarios()
	if err != nil {
		t.Fatalf("LoadScenarios failed: %v", err)
	}
	if len(scenarios) == 0 {
		t.Fatal("expected scenarios in the catalog")
	}

	var ids []string
	for _, s := range scenarios {
		ids = append(ids, s.ID)
		if s.Name == "" || s.Description == "" {
			t.Errorf("scenario %q is missing name or description", s.ID)
		}
	}
	joined := strings.Join(ids, ",")
	for _, want := range []string{"general", "tourism", "education", "technology"} {
		if !strings.Contains(joined, want) {
			t.Errorf("expected scenario %q in catalog, got %v", want, ids)
		}
	}
}

func TestScenarioByID(t *testing.T) {
	s, err := ScenarioByID("general")
	if err != nil {
		t.Fatalf("ScenarioByID failed: %v", err)
	}
	if s.ID != "general" {
		t.Errorf("got %q", s.ID)
	}

	if _, err := ScenarioByID("nope"); err == nil {
		t.Error("expected error for unknown scenario")
	}
}

func TestParseOutline(t *testing.T) {
	raw := `{"title":"AI in Education","slides":[
		{"type":"title","title":"AI in Education"},
		{"type":"content","title":"Why now","content":"Models got cheap."},
		{"type":"thankyou","title":"Thanks"}
	]}`

	outline, err := ParseOutline(raw)
	if err != nil {
		t.Fatalf("ParseOutline failed: %v", err)
	}
	if outline.Title != "AI in Education" {
		t.Errorf("got title %q", outline.Title)
	}
	if outline.PageCount() != 3 {
		t.Errorf("got %d slides", outline.PageCount())
	}
	if outline.Slides[0].Type != models.SlideTypeTitle {
		t.Errorf("got first slide type %q", outline.Slides[0].Type)
	}
}

func TestParseOutlineWithCodeFence(t *testing.T) {
	raw := "```json\n{\"title\":\"T\",\"slides\":[{\"type\":\"title\",\"title\":\"T\"}]}\n```"
	outline, err := ParseOutline(raw)
	if err != nil {
		t.Fatalf("ParseOutline failed: %v", err)
	}
	if outline.Title != "T" {
		t.Errorf("got %q", outline.Title)
	}
}

func TestParseOutlineInvalid(t *testing.T) {
	cases := []string{
		"not json",
		`{"title":"","slides":[{"type":"title","title":"x"}]}`,
		`{"title":"x","slides":[]}`,
	}
	for _, raw := range cases {
		if _, err := ParseOutline(raw); err == nil {
			t.Errorf("expected error for %q", raw)
		}
	}
}

func TestValidateOutlinePageCounts(t *testing.T) {
	outline := &models.Outline{Title: "T"}
	for i := 0; i < 10; i++ {
		outline.Slides = append(outline.Slides, models.SlideContent{Type: models.SlideTypeContent, Title: "s"})
	}

	fixed := &models.GenerationRequest{PageCountMode: models.PageCountFixed, FixedPages: 10}
	if err := validateOutline(outline, fixed); err != nil {
		t.Errorf("exact fixed count must pass: %v", err)
	}

	fixed.FixedPages = 11
	if err := validateOutline(outline, fixed); err != nil {
		t.Errorf("off-by-one fixed count must pass: %v", err)
	}

	fixed.FixedPages = 15
	if err := validateOutline(outline, fixed); err == nil {
		t.Error("expected error for count far from fixed target")
	}

	ranged := &models.GenerationRequest{PageCountMode: models.PageCountCustomRange, MinPages: 12, MaxPages: 20}
	if err := validateOutline(outline, ranged); err == nil {
		t.Error("expected error for count below range")
	}
}

func TestIsChinese(t *testing.T) {
	if !isChinese("zh") {
		t.Error("zh must be detected as Chinese")
	}
	if !isChinese("zh-Hans") {
		t.Error("zh-Hans must be detected as Chinese")
	}
	if isChinese("en") {
		t.Error("en must not be detected as Chinese")
	}
	if isChinese("not-a-tag!") {
		t.Error("invalid tag must fall back to non-Chinese")
	}
}
