// Package export produces downloadable artifacts (HTML decks, PPTX files)
// from completed projects and optionally uploads them to object storage.
package export

import (
	"fmt"
	"html/template"
	"strings"

	"github.com/landppt/landppt/internal/models"
)

// deckTemplate wraps every rendered slide in an iframe so per-slide styles
// stay isolated. Arrow keys and the buttons page through the deck.
const deckTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
  body { margin: 0; background: #111; font-family: Arial, sans-serif; }
  .viewport { display: flex; justify-content: center; padding: 24px 0; }
  iframe { width: 1280px; height: 720px; border: 0; background: #fff; display: none; }
  iframe.active { display: block; }
  .nav { text-align: center; color: #ccc; padding-bottom: 24px; }
  .nav button { font-size: 16px; padding: 6px 18px; margin: 0 8px; }
</style>
</head>
<body>
<div class="viewport">
{{range $i, $s := .Slides}}  <iframe {{if eq $i 0}}class="active" {{end}}title="{{$s.Title}}" srcdoc="{{$s.HTML}}"></iframe>
{{end}}</div>
<div class="nav">
  <button onclick="step(-1)">&#8592;</button>
  <span id="counter">1 / {{len .Slides}}</span>
  <button onclick="step(1)">&#8594;</button>
</div>
<script>
  var frames = document.querySelectorAll('iframe');
  var current = 0;
  function step(d) {
    var next = current + d;
    if (next < 0 || next >= frames.length) return;
    frames[current].classList.remove('active');
    frames[next].classList.add('active');
    current = next;
    document.getElementById('counter').textContent = (current + 1) + ' / ' + frames.length;
  }
  document.addEventListener('keydown', function (e) {
    if (e.key === 'ArrowRight') step(1);
    if (e.key === 'ArrowLeft') step(-1);
  });
</script>
</body>
</html>
`

// CombineHTML assembles the project's rendered slides into a single
// self-contained HTML deck.
func CombineHTML(project *models.Project) ([]byte, error) {
	if len(project.Slides) == 0 {
		return nil, fmt.Errorf("project has no rendered slides")
	}

	tmpl, err := template.New("deck").Parse(deckTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse deck template: %w", err)
	}

	data := struct {
		Title  string
		Slides []models.RenderedSlide
	}{
		Title:  project.Title,
		Slides: project.Slides,
	}

	var sb strings.Builder
	if err := tmpl.Execute(&sb, data); err != nil {
		return nil, fmt.Errorf("render deck: %w", err)
	}
	return []byte(sb.String()), nil
}

// ArtifactKey returns the object storage key for a project's export.
func ArtifactKey(project *models.Project, format string) string {
	return fmt.Sprintf("exports/%s/v%d.%s", project.ID, project.Version, format)
}
