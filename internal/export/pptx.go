package export

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/landppt/landppt/internal/models"
)

// ErrPPTXDisabled is returned when PPTX export has not been enabled.
var ErrPPTXDisabled = errors.New("pptx export is not enabled")

// PPTXConverter renders decks to PPTX through an external converter
// service. The feature is off unless explicitly enabled with a converter
// endpoint.
type PPTXConverter struct {
	enabled    bool
	url        string
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewPPTXConverter creates a converter client. When enabled is false every
// Convert call fails with ErrPPTXDisabled.
func NewPPTXConverter(enabled bool, converterURL string, logger zerolog.Logger) (*PPTXConverter, error) {
	if enabled && converterURL == "" {
		return nil, fmt.Errorf("pptx export enabled but no converter URL configured")
	}
	return &PPTXConverter{
		enabled:    enabled,
		url:        converterURL,
		httpClient: &http.Client{Timeout: 5 * time.Minute},
		logger:     logger.With().Str("component", "pptx").Logger(),
	}, nil
}

// Enabled reports whether PPTX export is available.
func (c *PPTXConverter) Enabled() bool { return c.enabled }

type convertRequest struct {
	Title  string   `json:"title"`
	Width  int      `json:"width"`
	Height int      `json:"height"`
	Slides []string `json:"slides"`
}

// Convert sends the project's slides to the converter and returns the
// PPTX file bytes.
func (c *PPTXConverter) Convert(ctx context.Context, project *models.Project) ([]byte, error) {
	if !c.enabled {
		return nil, ErrPPTXDisabled
	}
	if len(project.Slides) == 0 {
		return nil, fmt.Errorf("project has no rendered slides")
	}

	req := convertRequest{
		Title:  project.Title,
		Width:  1280,
		Height: 720,
	}
	for _, slide := range project.Slides {
		req.Slides = append(req.Slides, slide.HTML)
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal convert request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create convert request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("call converter: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("converter returned status %d: %s", resp.StatusCode, msg)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read converter response: %w", err)
	}

	c.logger.Info().
		Str("project_id", project.ID.String()).
		Int("slides", len(project.Slides)).
		Int("bytes", len(data)).
		Dur("elapsed", time.Since(start)).
		Msg("pptx conversion finished")
	return data, nil
}
