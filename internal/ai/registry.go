package ai

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/landppt/landppt/internal/crypto"
	"github.com/landppt/landppt/internal/models"
)

// UsageObserver receives the token usage of every completion served
// through the registry.
type UsageObserver func(provider string, usage Usage)

// Registry holds the configured providers and tracks the default one.
type Registry struct {
	mu          sync.RWMutex
	providers   map[string]Provider
	defaultName string
	keys        *crypto.KeyManager
	observe     UsageObserver
	logger      zerolog.Logger
}

// NewRegistry creates an empty provider registry. The key manager is used
// to decrypt API keys of providers configured through the admin API.
func NewRegistry(keys *crypto.KeyManager, logger zerolog.Logger) *Registry {
	return &Registry{
		providers: make(map[string]Provider),
		keys:      keys,
		logger:    logger.With().Str("component", "ai").Logger(),
	}
}

// WithUsageObserver reports usage of completions served through the
// registry to fn. Returns the registry for chaining.
func (r *Registry) WithUsageObserver(fn UsageObserver) *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observe = fn
	return r
}

// Register adds a provider, optionally marking it as the default.
func (r *Registry) Register(p Provider, isDefault bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Name()] = p
	if isDefault || r.defaultName == "" {
		r.defaultName = p.Name()
	}
	r.logger.Info().Str("provider", p.Name()).Bool("default", r.defaultName == p.Name()).Msg("AI provider registered")
}

// Get returns the named provider, or the default when name is empty.
func (r *Registry) Get(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if name == "" {
		name = r.defaultName
	}
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}
	if r.observe != nil {
		return &observedProvider{Provider: p, observe: r.observe}, nil
	}
	return p, nil
}

// observedProvider reports usage after each completion. Streaming calls
// pass through untouched: stream chunks carry no usage data.
type observedProvider struct {
	Provider
	observe UsageObserver
}

func (o *observedProvider) ChatCompletion(ctx context.Context, messages []Message, opts Options) (*Response, error) {
	resp, err := o.Provider.ChatCompletion(ctx, messages, opts)
	if err == nil {
		o.observe(o.Name(), resp.Usage)
	}
	return resp, err
}

func (o *observedProvider) TextCompletion(ctx context.Context, prompt string, opts Options) (*Response, error) {
	resp, err := o.Provider.TextCompletion(ctx, prompt, opts)
	if err == nil {
		o.observe(o.Name(), resp.Usage)
	}
	return resp, err
}

// Default returns the default provider.
func (r *Registry) Default() (Provider, error) {
	return r.Get("")
}

// Names returns the registered provider names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	return names
}

// LoadStoredConfig builds and registers a provider from a stored
// configuration row, decrypting its API key.
func (r *Registry) LoadStoredConfig(ctx context.Context, cfg *models.AIConfig) error {
	var apiKey string
	if len(cfg.EncryptedAPIKey) > 0 {
		plain, err := r.keys.Decrypt(cfg.EncryptedAPIKey)
		if err != nil {
			return fmt.Errorf("decrypt API key for %s: %w", cfg.Provider, err)
		}
		apiKey = string(plain)
	}

	switch cfg.Provider {
	case "openai":
		r.Register(NewOpenAIProvider(OpenAIConfig{
			APIKey:      apiKey,
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			MaxTokens:   cfg.MaxTokens,
			Temperature: cfg.Temperature,
			Timeout:     2 * time.Minute,
		}, r.logger), cfg.IsDefault)
	case "gemini":
		p, err := NewGeminiProvider(ctx, GeminiConfig{
			APIKey:      apiKey,
			Model:       cfg.Model,
			MaxTokens:   cfg.MaxTokens,
			Temperature: cfg.Temperature,
		}, r.logger)
		if err != nil {
			return err
		}
		r.Register(p, cfg.IsDefault)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Provider)
	}
	return nil
}
