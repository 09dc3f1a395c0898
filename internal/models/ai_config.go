package models

import "time"

// AIConfig holds the stored settings for one AI provider. The API key is
// encrypted at rest with the server master key.
type AIConfig struct {
	ID              int64     `json:"id"`
	Provider        string    `json:"provider"`
	Model           string    `json:"model"`
	BaseURL         string    `json:"base_url,omitempty"`
	EncryptedAPIKey []byte    `json:"-"`
	MaxTokens       int       `json:"max_tokens,omitempty"`
	Temperature     float64   `json:"temperature,omitempty"`
	IsDefault       bool      `json:"is_default"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}
