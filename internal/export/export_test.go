package export

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/landppt/landppt/internal/models"
)

func completedProject() *models.Project {
	p := models.NewProject(uuid.New(), "Quarterly Review", "business", "Q2 results", "", "en")
	p.Slides = []models.RenderedSlide{
		{Index: 0, Title: "Quarterly Review", HTML: "<html><body><h1>Quarterly Review</h1></body></html>"},
		{Index: 1, Title: "Numbers", HTML: "<html><body><p>Revenue up</p></body></html>"},
	}
	return p
}

func TestCombineHTML(t *testing.T) {
	p := completedProject()

	out, err := CombineHTML(p)
	if err != nil {
		t.Fatalf("CombineHTML failed: %v", err)
	}
	deck := string(out)

	if !strings.Contains(deck, "<title>Quarterly Review</title>") {
		t.Error("deck missing title")
	}
	if got := strings.Count(deck, "<iframe"); got != 2 {
		t.Errorf("expected 2 slide frames, got %d", got)
	}
	// Slide HTML must be attribute-escaped inside srcdoc.
	if strings.Contains(deck, `srcdoc="<html>`) {
		t.Error("slide HTML must be escaped inside srcdoc attribute")
	}
}

func TestCombineHTMLEmptyProject(t *testing.T) {
	p := models.NewProject(uuid.New(), "T", "general", "T", "", "en")
	if _, err := CombineHTML(p); err == nil {
		t.Fatal("expected error for project without slides")
	}
}

func TestArtifactKey(t *testing.T) {
	p := completedProject()
	p.Version = 3
	key := ArtifactKey(p, "html")
	if !strings.HasPrefix(key, "exports/"+p.ID.String()) || !strings.HasSuffix(key, "v3.html") {
		t.Errorf("unexpected key %q", key)
	}
}

func TestPPTXConverterDisabled(t *testing.T) {
	c, err := NewPPTXConverter(false, "", zerolog.Nop())
	if err != nil {
		t.Fatalf("NewPPTXConverter failed: %v", err)
	}
	if c.Enabled() {
		t.Error("converter must report disabled")
	}
	if _, err := c.Convert(context.Background(), completedProject()); !errors.Is(err, ErrPPTXDisabled) {
		t.Errorf("expected ErrPPTXDisabled, got %v", err)
	}
}

func TestPPTXConverterRequiresURL(t *testing.T) {
	if _, err := NewPPTXConverter(true, "", zerolog.Nop()); err == nil {
		t.Fatal("expected error when enabled without converter URL")
	}
}

func TestPPTXConvert(t *testing.T) {
	var got convertRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.presentationml.presentation")
		w.Write([]byte("PK\x03\x04fake-pptx"))
	}))
	defer server.Close()

	c, err := NewPPTXConverter(true, server.URL, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewPPTXConverter failed: %v", err)
	}

	data, err := c.Convert(context.Background(), completedProject())
	if err != nil {
		t.Fatalf("Convert failed: %v", err)
	}
	if !strings.HasPrefix(string(data), "PK") {
		t.Error("expected pptx bytes")
	}
	if got.Title != "Quarterly Review" || len(got.Slides) != 2 {
		t.Errorf("unexpected convert request: %+v", got)
	}
	if got.Width != 1280 || got.Height != 720 {
		t.Errorf("unexpected deck dimensions: %dx%d", got.Width, got.Height)
	}
}

func TestPPTXConvertError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "libreoffice crashed", http.StatusInternalServerError)
	}))
	defer server.Close()

	c, _ := NewPPTXConverter(true, server.URL, zerolog.Nop())
	if _, err := c.Convert(context.Background(), completedProject()); err == nil {
		t.Fatal("expected error for converter failure")
	}
}

func TestS3ConfigValidate(t *testing.T) {
	valid := S3Config{Bucket: "b", AccessKey: "a", SecretKey: "s"}
	if err := valid.Validate(); err != nil {
		t.Errorf("valid config rejected: %v", err)
	}

	for _, cfg := range []S3Config{
		{AccessKey: "a", SecretKey: "s"},
		{Bucket: "b", SecretKey: "s"},
		{Bucket: "b", AccessKey: "a"},
	} {
		if err := cfg.Validate(); err == nil {
			t.Errorf("expected error for config %+v", cfg)
		}
	}
}
