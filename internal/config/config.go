// Package config provides configuration management for the LandPPT server.
// Configuration is loaded from environment variables, optionally seeded
// from a local .env file.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// Environment represents the deployment environment.
type Environment string

const (
	// EnvDevelopment is the default local development environment.
	EnvDevelopment Environment = "development"
	// EnvStaging is the staging/pre-production environment.
	EnvStaging Environment = "staging"
	// EnvProduction is the production environment.
	EnvProduction Environment = "production"
)

// Config holds all server configuration.
type Config struct {
	Env        Environment `env:"ENV" envDefault:"development"`
	ListenAddr string      `env:"LISTEN_ADDR"`
	Port       int         `env:"PORT" envDefault:"8000"`

	// Database (PostgreSQL)
	DatabaseURL string `env:"DATABASE_URL,required"`

	// Cache (Redis), optional
	RedisURL string `env:"REDIS_URL"`

	// Session cookies
	SessionSecret      string `env:"SESSION_SECRET,required"`
	SessionMaxAge      int    `env:"SESSION_MAX_AGE" envDefault:"86400"`
	SessionIdleTimeout int    `env:"SESSION_IDLE_TIMEOUT" envDefault:"1800"`

	// Master key (hex, 32 bytes) for encrypting stored AI provider keys
	EncryptionKey string `env:"ENCRYPTION_KEY,required"`

	// AI provider defaults
	AIProvider    string  `env:"AI_PROVIDER" envDefault:"openai"`
	AIBaseURL     string  `env:"AI_BASE_URL" envDefault:"https://api.openai.com/v1"`
	AIAPIKey      string  `env:"AI_API_KEY"`
	AIModel       string  `env:"AI_MODEL" envDefault:"gpt-4o-mini"`
	AIMaxTokens   int     `env:"AI_MAX_TOKENS" envDefault:"4096"`
	AITemperature float64 `env:"AI_TEMPERATURE" envDefault:"0.7"`
	GeminiAPIKey  string  `env:"GOOGLE_API_KEY"`

	// PPTX export feature gate (the pptx extras group of the original
	// install becomes a runtime flag plus a converter endpoint)
	PPTXExportEnabled bool   `env:"PPTX_EXPORT_ENABLED" envDefault:"false"`
	PPTXConverterURL  string `env:"PPTX_CONVERTER_URL"`

	// Export artifact storage (S3-compatible), optional
	S3Endpoint  string `env:"S3_ENDPOINT"`
	S3Region    string `env:"S3_REGION" envDefault:"us-east-1"`
	S3Bucket    string `env:"S3_BUCKET"`
	S3AccessKey string `env:"S3_ACCESS_KEY"`
	S3SecretKey string `env:"S3_SECRET_KEY"`

	// Research reports
	ReportsDir string `env:"RESEARCH_REPORTS_DIR" envDefault:"research_reports"`

	// Export artifacts written to local disk before optional S3 upload
	ExportDir string `env:"EXPORT_DIR" envDefault:"exports"`

	// Web UI static assets
	WebDir string `env:"WEB_DIR" envDefault:"web/dist"`

	// HTTP hardening
	CORSOrigins        string `env:"CORS_ORIGINS"`
	RateLimitRequests  int64  `env:"RATE_LIMIT_REQUESTS" envDefault:"100"`
	RateLimitPeriod    string `env:"RATE_LIMIT_PERIOD" envDefault:"1m"`
	MaxRequestBodySize int64  `env:"MAX_REQUEST_BODY_SIZE" envDefault:"10485760"`

	// Server timeouts
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"30s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"120s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`

	// Retention cleanup
	RetentionDays int `env:"RETENTION_DAYS" envDefault:"90"`

	// OIDC SSO, optional
	OIDCIssuer       string `env:"OIDC_ISSUER"`
	OIDCClientID     string `env:"OIDC_CLIENT_ID"`
	OIDCClientSecret string `env:"OIDC_CLIENT_SECRET"`
	OIDCRedirectURL  string `env:"OIDC_REDIRECT_URL"`
}

// Load seeds the environment from an optional .env file, then parses the
// environment into a Config. Returns an error when required variables are
// missing.
func Load(dotenvPath string) (*Config, error) {
	if dotenvPath != "" {
		if err := LoadDotenv(dotenvPath); err != nil {
			return nil, fmt.Errorf("load %s: %w", dotenvPath, err)
		}
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	switch cfg.Env {
	case EnvDevelopment, EnvStaging, EnvProduction:
	default:
		cfg.Env = EnvDevelopment
	}

	return cfg, nil
}

// Addr returns the listen address, preferring LISTEN_ADDR over PORT.
func (c *Config) Addr() string {
	if c.ListenAddr != "" {
		return c.ListenAddr
	}
	return fmt.Sprintf(":%d", c.Port)
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.Env == EnvProduction
}

// AllowedOrigins parses the comma-separated CORS origins string.
func (c *Config) AllowedOrigins() []string {
	if c.CORSOrigins == "" {
		return nil
	}
	parts := strings.Split(c.CORSOrigins, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// S3Configured reports whether export artifact storage is configured.
func (c *Config) S3Configured() bool {
	return c.S3Bucket != ""
}

// OIDCConfigured reports whether OIDC SSO is configured.
func (c *Config) OIDCConfigured() bool {
	return c.OIDCIssuer != "" && c.OIDCClientID != ""
}
