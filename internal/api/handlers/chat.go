package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/landppt/landppt/internal/ai"
)

// ChatHandler exposes the configured AI providers behind an
// OpenAI-compatible chat completion endpoint, so existing OpenAI clients
// can point at this server.
type ChatHandler struct {
	registry *ai.Registry
	logger   zerolog.Logger
}

// NewChatHandler creates a ChatHandler.
func NewChatHandler(registry *ai.Registry, logger zerolog.Logger) *ChatHandler {
	return &ChatHandler{
		registry: registry,
		logger:   logger.With().Str("component", "chat_handler").Logger(),
	}
}

// RegisterRoutes registers the compatibility routes on the given group.
func (h *ChatHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/chat/completions", h.ChatCompletions)
	r.GET("/models", h.Models)
}

// ChatCompletionRequest mirrors the OpenAI chat completion request body.
type ChatCompletionRequest struct {
	Model       string       `json:"model"`
	Messages    []ai.Message `json:"messages" binding:"required,min=1"`
	MaxTokens   int          `json:"max_tokens,omitempty"`
	Temperature float64      `json:"temperature,omitempty"`
	Stream      bool         `json:"stream,omitempty"`
}

// ChatCompletions proxies a chat completion to the default provider.
// POST /v1/chat/completions
func (h *ChatHandler) ChatCompletions(c *gin.Context) {
	var req ChatCompletionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"message": "messages are required", "type": "invalid_request_error"}})
		return
	}
	provider, err := h.registry.Default()
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": gin.H{"message": "no AI provider configured", "type": "server_error"}})
		return
	}

	if req.Stream {
		h.streamCompletion(c, provider, &req)
		return
	}

	resp, err := provider.ChatCompletion(c.Request.Context(), req.Messages, ai.Options{
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	})
	if err != nil {
		h.logger.Error().Err(err).Str("provider", provider.Name()).Msg("chat completion failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": gin.H{"message": "completion failed", "type": "server_error"}})
		return
	}

	finish := resp.FinishReason
	if finish == "" {
		finish = "stop"
	}
	c.JSON(http.StatusOK, gin.H{
		"id":      "chatcmpl-" + uuid.NewString(),
		"object":  "chat.completion",
		"created": time.Now().Unix(),
		"model":   resp.Model,
		"choices": []gin.H{{
			"index":         0,
			"message":       gin.H{"role": "assistant", "content": resp.Content},
			"finish_reason": finish,
		}},
		"usage": resp.Usage,
	})
}

// streamCompletion relays provider deltas as OpenAI-style server-sent
// events, ending with a finish chunk and the [DONE] sentinel.
func (h *ChatHandler) streamCompletion(c *gin.Context, provider ai.Provider, req *ChatCompletionRequest) {
	stream, err := provider.StreamChatCompletion(c.Request.Context(), req.Messages, ai.Options{
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	})
	if err != nil {
		h.logger.Error().Err(err).Str("provider", provider.Name()).Msg("stream start failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": gin.H{"message": "completion failed", "type": "server_error"}})
		return
	}

	header := c.Writer.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	id := "chatcmpl-" + uuid.NewString()
	created := time.Now().Unix()
	model := req.Model
	if model == "" {
		model = provider.Name()
	}

	writeChunk := func(delta gin.H, finish any) {
		payload, err := json.Marshal(gin.H{
			"id":      id,
			"object":  "chat.completion.chunk",
			"created": created,
			"model":   model,
			"choices": []gin.H{{"index": 0, "delta": delta, "finish_reason": finish}},
		})
		if err != nil {
			return
		}
		fmt.Fprintf(c.Writer, "data: %s\n\n", payload)
		c.Writer.Flush()
	}

	writeChunk(gin.H{"role": "assistant"}, nil)

	finish := "stop"
	for chunk := range stream {
		if chunk.Err != nil {
			h.logger.Error().Err(chunk.Err).Str("provider", provider.Name()).Msg("stream aborted")
			break
		}
		if chunk.Delta != "" {
			writeChunk(gin.H{"content": chunk.Delta}, nil)
		}
		if chunk.FinishReason != "" {
			finish = chunk.FinishReason
		}
	}

	writeChunk(gin.H{}, finish)
	fmt.Fprint(c.Writer, "data: [DONE]\n\n")
	c.Writer.Flush()
}

// Models lists the registered providers in the OpenAI model-list shape.
// GET /v1/models
func (h *ChatHandler) Models(c *gin.Context) {
	names := h.registry.Names()
	data := make([]gin.H, 0, len(names))
	for _, name := range names {
		data = append(data, gin.H{
			"id":       name,
			"object":   "model",
			"owned_by": "landppt",
		})
	}
	c.JSON(http.StatusOK, gin.H{"object": "list", "data": data})
}
