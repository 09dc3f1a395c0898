// Package api provides the HTTP API for the LandPPT server.
package api

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/landppt/landppt/internal/ai"
	"github.com/landppt/landppt/internal/api/handlers"
	"github.com/landppt/landppt/internal/api/middleware"
	"github.com/landppt/landppt/internal/auth"
	"github.com/landppt/landppt/internal/cache"
	"github.com/landppt/landppt/internal/config"
	"github.com/landppt/landppt/internal/crypto"
	"github.com/landppt/landppt/internal/db"
	"github.com/landppt/landppt/internal/diagnostics"
	"github.com/landppt/landppt/internal/jobs"
	"github.com/landppt/landppt/internal/metrics"
	"github.com/landppt/landppt/internal/research"

	_ "github.com/landppt/landppt/docs/api"
)

// RouterConfig holds configuration for the API router.
type RouterConfig struct {
	Env            config.Environment
	AllowedOrigins []string
	// RateLimitRequests is the number of requests allowed per period.
	RateLimitRequests int64
	// RateLimitPeriod is the duration string for rate limiting (e.g. "1m", "1h").
	RateLimitPeriod string
	// MaxRequestBodySize caps request bodies in bytes. Zero disables the cap.
	MaxRequestBodySize int64
	// Version information for the version endpoint.
	Version   string
	Commit    string
	BuildDate string
	// PPTXEnabled gates the pptx export format.
	PPTXEnabled bool
	// WebDir is the directory holding the built web UI. Empty or missing
	// directories disable static serving.
	WebDir string
}

// DefaultRouterConfig returns a RouterConfig with development defaults.
func DefaultRouterConfig() RouterConfig {
	return RouterConfig{
		Env:               config.EnvDevelopment,
		AllowedOrigins:    []string{},
		RateLimitRequests: 100,
		RateLimitPeriod:   "1m",
		Version:           "dev",
		Commit:            "unknown",
		BuildDate:         "unknown",
	}
}

// Deps bundles the services the router wires into handlers. Optional
// fields may be nil; the corresponding routes are then not registered.
type Deps struct {
	Database      *db.DB
	Cache         *cache.Cache
	Sessions      *auth.SessionStore
	OIDC          *auth.OIDC
	KeyManager    *crypto.KeyManager
	Registry      *ai.Registry
	Queue         *jobs.Queue
	Hub           *handlers.ProgressHub
	ReportWriter  *research.ReportWriter
	ReportCatalog *research.Catalog
	Metrics       *metrics.Metrics
	Diagnostics   *diagnostics.Runner
}

// Router wraps a Gin engine with configured middleware and routes.
type Router struct {
	Engine *gin.Engine
	logger zerolog.Logger
}

// NewRouter creates a new Router with the given dependencies.
func NewRouter(cfg RouterConfig, deps Deps, logger zerolog.Logger) (*Router, error) {
	r := &Router{
		Engine: gin.New(),
		logger: logger.With().Str("component", "router").Logger(),
	}

	// Global middleware
	r.Engine.Use(gin.Recovery())
	r.Engine.Use(middleware.RequestLogger(logger))
	r.Engine.Use(middleware.CORS(cfg.AllowedOrigins, cfg.Env))
	r.Engine.Use(middleware.SecurityHeaders())
	if cfg.MaxRequestBodySize > 0 {
		r.Engine.Use(middleware.BodyLimit(cfg.MaxRequestBodySize))
	}
	if deps.Metrics != nil {
		r.Engine.Use(middleware.Metrics(deps.Metrics))
	}

	rateLimiter, err := middleware.NewRateLimiter(cfg.RateLimitRequests, cfg.RateLimitPeriod)
	if err != nil {
		return nil, err
	}
	r.Engine.Use(rateLimiter)

	// Health and version endpoints (no auth required)
	systemHandler := handlers.NewSystemHandler(cfg.Version, cfg.Commit, cfg.BuildDate,
		deps.Database, pinger(deps.Cache), deps.Diagnostics, logger)
	systemHandler.RegisterPublicRoutes(r.Engine)

	// Prometheus metrics endpoint (no auth required)
	if deps.Metrics != nil {
		r.Engine.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}

	// Swagger API documentation (no auth required)
	r.Engine.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler,
		ginSwagger.URL("/docs/doc.json"),
		ginSwagger.DefaultModelsExpandDepth(-1),
	))

	// OpenAI-compatible surface (auth required)
	v1 := r.Engine.Group("/v1")
	v1.Use(middleware.AuthMiddleware(deps.Sessions, logger))
	chatHandler := handlers.NewChatHandler(deps.Registry, logger)
	chatHandler.RegisterRoutes(v1)

	// Auth routes (no auth required)
	authHandler := handlers.NewAuthHandler(deps.Database, deps.Sessions, deps.OIDC, logger)
	authHandler.RegisterRoutes(r.Engine.Group("/auth"))

	// API v1 routes (auth required)
	apiV1 := r.Engine.Group("/api/v1")
	apiV1.Use(middleware.AuthMiddleware(deps.Sessions, logger))
	apiV1.Use(middleware.AuditMiddleware(deps.Database, logger))

	authHandler.RegisterProtectedRoutes(apiV1.Group("/auth"))

	projectsHandler := handlers.NewProjectsHandler(deps.Database, logger)
	projectsHandler.RegisterRoutes(apiV1)

	generationHandler := handlers.NewGenerationHandler(deps.Database, deps.Queue, deps.Database, deps.Hub, logger)
	generationHandler.RegisterRoutes(apiV1)

	exportHandler := handlers.NewExportHandler(deps.Database, deps.Queue, cfg.PPTXEnabled, logger)
	exportHandler.RegisterRoutes(apiV1)

	templatesHandler := handlers.NewTemplatesHandler(deps.Database, logger)
	templatesHandler.RegisterRoutes(apiV1)

	scenariosHandler := handlers.NewScenariosHandler(deps.Cache, logger)
	scenariosHandler.RegisterRoutes(apiV1)

	if deps.ReportWriter != nil {
		researchHandler := handlers.NewResearchHandler(deps.Queue, deps.ReportWriter, deps.ReportCatalog, logger)
		researchHandler.RegisterRoutes(apiV1)
	}

	// Admin-only routes
	adminGroup := apiV1.Group("", middleware.RequireAdmin(logger))

	adminHandler := handlers.NewAdminHandler(deps.Database, logger)
	adminHandler.RegisterRoutes(adminGroup)

	aiConfigsHandler := handlers.NewAIConfigsHandler(deps.Database, deps.Registry, deps.KeyManager, logger)
	aiConfigsHandler.RegisterRoutes(adminGroup)

	systemHandler.RegisterAdminRoutes(adminGroup)

	// Web UI. The SPA owns every route the API does not; unknown API paths
	// still return JSON.
	webServed := false
	if cfg.WebDir != "" {
		if _, err := os.Stat(cfg.WebDir); err == nil {
			r.Engine.Static("/assets", filepath.Join(cfg.WebDir, "assets"))
			r.Engine.StaticFile("/", filepath.Join(cfg.WebDir, "index.html"))
			r.Engine.NoRoute(func(c *gin.Context) {
				p := c.Request.URL.Path
				if strings.HasPrefix(p, "/api/") || strings.HasPrefix(p, "/auth/") || strings.HasPrefix(p, "/v1/") {
					c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
					return
				}
				c.File(filepath.Join(cfg.WebDir, "index.html"))
			})
			webServed = true
		} else {
			r.logger.Debug().Str("dir", cfg.WebDir).Msg("Web UI directory not found, static serving disabled")
		}
	}
	if !webServed {
		// Without a built UI the root still lands somewhere useful.
		r.Engine.GET("/", func(c *gin.Context) {
			c.Redirect(http.StatusFound, "/docs/index.html")
		})
	}
	r.Engine.GET("/web", func(c *gin.Context) {
		c.Redirect(http.StatusFound, "/")
	})

	r.logger.Info().Msg("API router initialized")
	return r, nil
}

// pinger converts a possibly nil *cache.Cache into a HealthPinger without
// producing a non-nil interface holding a nil pointer.
func pinger(c *cache.Cache) handlers.HealthPinger {
	if c == nil {
		return nil
	}
	return c
}
