package ai

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"google.golang.org/genai"
)

// GeminiConfig holds configuration for the Gemini provider.
type GeminiConfig struct {
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float64
}

// GeminiProvider implements Provider on top of the Google GenAI SDK.
type GeminiProvider struct {
	client *genai.Client
	cfg    GeminiConfig
	logger zerolog.Logger
}

// NewGeminiProvider creates a Gemini-backed provider.
func NewGeminiProvider(ctx context.Context, cfg GeminiConfig, logger zerolog.Logger) (*GeminiProvider, error) {
	if cfg.APIKey == "" {
		return nil, ErrNoAPIKey
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.0-flash"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return &GeminiProvider{
		client: client,
		cfg:    cfg,
		logger: logger.With().Str("component", "ai").Str("provider", "gemini").Logger(),
	}, nil
}

// Name returns the provider identifier.
func (p *GeminiProvider) Name() string { return "gemini" }

// buildRequest maps chat messages to GenAI contents. System messages
// become the system instruction; user and assistant turns map to
// user/model contents.
func (p *GeminiProvider) buildRequest(messages []Message, opts Options) (*genai.GenerateContentConfig, []*genai.Content) {
	config := &genai.GenerateContentConfig{}

	temperature := p.cfg.Temperature
	if opts.Temperature > 0 {
		temperature = opts.Temperature
	}
	if temperature > 0 {
		config.Temperature = genai.Ptr(float32(temperature))
	}

	maxTokens := p.cfg.MaxTokens
	if opts.MaxTokens > 0 {
		maxTokens = opts.MaxTokens
	}
	if maxTokens > 0 {
		config.MaxOutputTokens = int32(maxTokens)
	}
	if opts.JSONMode {
		config.ResponseMIMEType = "application/json"
	}

	var contents []*genai.Content
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			config.SystemInstruction = genai.NewContentFromText(m.Content, genai.RoleUser)
		case RoleAssistant:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}
	return config, contents
}

// ChatCompletion runs a multi-turn completion.
func (p *GeminiProvider) ChatCompletion(ctx context.Context, messages []Message, opts Options) (*Response, error) {
	config, contents := p.buildRequest(messages, opts)

	resp, err := p.client.Models.GenerateContent(ctx, p.cfg.Model, contents, config)
	if err != nil {
		return nil, fmt.Errorf("generate content: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return nil, ErrEmptyResponse
	}

	out := &Response{
		Content: text,
		Model:   p.cfg.Model,
	}
	if len(resp.Candidates) > 0 {
		out.FinishReason = string(resp.Candidates[0].FinishReason)
	}
	if resp.UsageMetadata != nil {
		out.Usage = Usage{
			PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      int(resp.UsageMetadata.TotalTokenCount),
		}
	}

	p.logger.Debug().
		Str("model", p.cfg.Model).
		Int("total_tokens", out.Usage.TotalTokens).
		Msg("chat completion finished")

	return out, nil
}

// TextCompletion runs a single-prompt completion.
func (p *GeminiProvider) TextCompletion(ctx context.Context, prompt string, opts Options) (*Response, error) {
	return p.ChatCompletion(ctx, []Message{{Role: RoleUser, Content: prompt}}, opts)
}

// StreamChatCompletion runs a completion through the GenAI streaming API
// and relays each partial response on the returned channel.
func (p *GeminiProvider) StreamChatCompletion(ctx context.Context, messages []Message, opts Options) (<-chan StreamChunk, error) {
	config, contents := p.buildRequest(messages, opts)

	ch := make(chan StreamChunk)
	go func() {
		defer close(ch)

		emit := func(chunk StreamChunk) bool {
			select {
			case ch <- chunk:
				return true
			case <-ctx.Done():
				return false
			}
		}

		for resp, err := range p.client.Models.GenerateContentStream(ctx, p.cfg.Model, contents, config) {
			if err != nil {
				emit(StreamChunk{Err: fmt.Errorf("generate content: %w", err)})
				return
			}
			chunk := StreamChunk{Delta: resp.Text()}
			if len(resp.Candidates) > 0 {
				chunk.FinishReason = string(resp.Candidates[0].FinishReason)
			}
			if !emit(chunk) {
				return
			}
		}
	}()
	return ch, nil
}
