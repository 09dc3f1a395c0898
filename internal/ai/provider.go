// Package ai abstracts the chat-completion providers used for outline and
// slide generation.
package ai

import (
	"context"
	"errors"
)

// Role identifies who authored a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of a chat conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Usage reports token consumption for one completion.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is the result of a completion call.
type Response struct {
	Content      string `json:"content"`
	Model        string `json:"model"`
	FinishReason string `json:"finish_reason,omitempty"`
	Usage        Usage  `json:"usage"`
}

// Options tune a single completion call. Zero values fall back to the
// provider's configured defaults.
type Options struct {
	MaxTokens   int
	Temperature float64
	JSONMode    bool
}

// StreamChunk is one incremental piece of a streaming completion. A
// non-nil Err is the terminal event on the channel.
type StreamChunk struct {
	Delta        string
	FinishReason string
	Err          error
}

// Common provider errors.
var (
	ErrNoAPIKey        = errors.New("provider API key not configured")
	ErrEmptyResponse   = errors.New("provider returned an empty response")
	ErrUnknownProvider = errors.New("unknown AI provider")
)

// Provider is a chat-completion backend.
type Provider interface {
	// Name returns the provider identifier (for example "openai").
	Name() string
	// ChatCompletion runs a multi-turn completion.
	ChatCompletion(ctx context.Context, messages []Message, opts Options) (*Response, error)
	// TextCompletion runs a single-prompt completion.
	TextCompletion(ctx context.Context, prompt string, opts Options) (*Response, error)
	// StreamChatCompletion runs a multi-turn completion and delivers the
	// response incrementally. The channel is closed after the final chunk;
	// callers must drain it or cancel ctx.
	StreamChatCompletion(ctx context.Context, messages []Message, opts Options) (<-chan StreamChunk, error)
}
