// Package main is the entrypoint for the LandPPT server.
//
// @title           LandPPT API
// @version         1.0
// @description     AI-powered presentation generation platform. Turns documents and topics into complete HTML slide decks through configurable AI providers.
//
// @contact.name   LandPPT
// @contact.url    https://github.com/landppt/landppt
//
// @license.name  Apache 2.0
// @license.url   https://www.apache.org/licenses/LICENSE-2.0
//
// @host      localhost:8000
// @BasePath  /api/v1
//
// @securityDefinitions.apikey SessionAuth
// @in cookie
// @name landppt_session
// @description Session cookie authentication
//
// @tag.name Auth
// @tag.description Login, logout and session management
// @tag.name Projects
// @tag.description Presentation project management
// @tag.name Generation
// @tag.description Generation pipeline control and job tracking
// @tag.name Export
// @tag.description HTML and PPTX export
// @tag.name Templates
// @tag.description Master template management
// @tag.name Research
// @tag.description Deep research reports
// @tag.name AIConfigs
// @tag.description AI provider configuration
// @tag.name Users
// @tag.description User administration
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/landppt/landppt/internal/ai"
	"github.com/landppt/landppt/internal/api"
	"github.com/landppt/landppt/internal/api/handlers"
	"github.com/landppt/landppt/internal/auth"
	"github.com/landppt/landppt/internal/cache"
	"github.com/landppt/landppt/internal/config"
	"github.com/landppt/landppt/internal/crypto"
	"github.com/landppt/landppt/internal/db"
	"github.com/landppt/landppt/internal/diagnostics"
	"github.com/landppt/landppt/internal/export"
	"github.com/landppt/landppt/internal/generator"
	"github.com/landppt/landppt/internal/jobs"
	"github.com/landppt/landppt/internal/maintenance"
	"github.com/landppt/landppt/internal/metrics"
	"github.com/landppt/landppt/internal/models"
	"github.com/landppt/landppt/internal/research"
)

// Build-time variables set via ldflags.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "landppt",
		Short:        "LandPPT - AI presentation generation server",
		Long:         `LandPPT turns documents and topics into complete HTML slide decks using configurable AI providers.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		newVersionCmd(),
		newServeCmd(),
		newMigrateCmd(),
	)

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("LandPPT %s\n", Version)
			fmt.Printf("  Commit:     %s\n", Commit)
			fmt.Printf("  Built:      %s\n", BuildDate)
			fmt.Printf("  Go version: %s\n", runtime.Version())
			fmt.Printf("  OS/Arch:    %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
}

func newMigrateCmd() *cobra.Command {
	var envFile string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(envFile)
			if err != nil {
				return err
			}
			logger := newLogger(cfg)

			ctx := cmd.Context()
			database, err := db.New(ctx, db.DefaultConfig(cfg.DatabaseURL), logger)
			if err != nil {
				return fmt.Errorf("connect database: %w", err)
			}
			defer database.Close()

			if err := database.Migrate(ctx); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			version, err := database.CurrentVersion(ctx)
			if err != nil {
				return err
			}
			logger.Info().Int("schema_version", version).Msg("migrations applied")
			return nil
		},
	}
	cmd.Flags().StringVar(&envFile, "env-file", ".env", "path to .env file (empty to skip)")
	return cmd
}

func newServeCmd() *cobra.Command {
	var envFile string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the LandPPT server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(envFile)
			if err != nil {
				return err
			}
			return runServer(cfg)
		},
	}
	cmd.Flags().StringVar(&envFile, "env-file", ".env", "path to .env file (empty to skip)")
	return cmd
}

func newLogger(cfg *config.Config) zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Str("version", Version).Logger()
	if !cfg.IsProduction() {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	return logger
}

func runServer(cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := newLogger(cfg)
	logger.Info().
		Str("version", Version).
		Str("commit", Commit).
		Str("build_date", BuildDate).
		Str("env", string(cfg.Env)).
		Msg("starting LandPPT server")

	// Database
	database, err := db.New(ctx, db.DefaultConfig(cfg.DatabaseURL), logger)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer database.Close()

	if err := database.Migrate(ctx); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	// Seed the default admin account and built-in template on first start
	if err := auth.EnsureDefaultAdmin(ctx, database, logger); err != nil {
		return fmt.Errorf("ensure default admin: %w", err)
	}
	if _, err := database.GetDefaultMasterTemplate(ctx); err != nil {
		if err := database.CreateMasterTemplate(ctx, generator.DefaultTemplate()); err != nil {
			return fmt.Errorf("seed default template: %w", err)
		}
		logger.Info().Msg("seeded built-in default template")
	}

	// Cache (optional)
	var store *cache.Cache
	if cfg.RedisURL != "" {
		store, err = cache.New(ctx, cfg.RedisURL)
		if err != nil {
			logger.Warn().Err(err).Msg("redis unavailable, continuing without cache")
			store = nil
		}
	}

	// Crypto key manager for stored AI provider keys
	masterKey, err := crypto.MasterKeyFromHex(cfg.EncryptionKey)
	if err != nil {
		return fmt.Errorf("decode ENCRYPTION_KEY: %w", err)
	}
	keyManager, err := crypto.NewKeyManager(masterKey)
	if err != nil {
		return fmt.Errorf("initialize key manager: %w", err)
	}

	// Sessions
	sessionCfg := auth.DefaultSessionConfig([]byte(cfg.SessionSecret), cfg.IsProduction())
	sessionCfg.MaxAge = cfg.SessionMaxAge
	sessionCfg.IdleTimeout = time.Duration(cfg.SessionIdleTimeout) * time.Second
	sessions, err := auth.NewSessionStore(sessionCfg, logger)
	if err != nil {
		return fmt.Errorf("initialize session store: %w", err)
	}

	// OIDC SSO (optional)
	var oidcProvider *auth.OIDC
	if cfg.OIDCConfigured() {
		oidcProvider, err = auth.NewOIDC(ctx, auth.DefaultOIDCConfig(
			cfg.OIDCIssuer, cfg.OIDCClientID, cfg.OIDCClientSecret, cfg.OIDCRedirectURL,
		), logger)
		if err != nil {
			logger.Warn().Err(err).Msg("OIDC initialization failed, continuing with password login only")
			oidcProvider = nil
		}
	} else {
		logger.Info().Msg("OIDC not configured, password login only")
	}

	// AI providers: environment config first, stored configs on top
	registry := ai.NewRegistry(keyManager, logger)
	if cfg.AIAPIKey != "" {
		registry.Register(ai.NewOpenAIProvider(ai.OpenAIConfig{
			APIKey:      cfg.AIAPIKey,
			BaseURL:     cfg.AIBaseURL,
			Model:       cfg.AIModel,
			MaxTokens:   cfg.AIMaxTokens,
			Temperature: cfg.AITemperature,
			Timeout:     2 * time.Minute,
		}, logger), cfg.AIProvider == "openai")
	}
	if cfg.GeminiAPIKey != "" {
		gemini, err := ai.NewGeminiProvider(ctx, ai.GeminiConfig{
			APIKey:      cfg.GeminiAPIKey,
			MaxTokens:   cfg.AIMaxTokens,
			Temperature: cfg.AITemperature,
		}, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("gemini initialization failed")
		} else {
			registry.Register(gemini, cfg.AIProvider == "gemini")
		}
	}
	storedConfigs, err := database.ListAIConfigs(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to load stored AI configs")
	}
	for _, stored := range storedConfigs {
		if err := registry.LoadStoredConfig(ctx, stored); err != nil {
			logger.Warn().Err(err).Str("provider", stored.Provider).Msg("failed to load stored AI config")
		}
	}
	if len(registry.Names()) == 0 {
		logger.Warn().Msg("no AI providers configured, generation will fail until one is added")
	}

	// Metrics
	m := metrics.New()
	m.Register(metrics.NewDBCollector(database, logger))
	registry.WithUsageObserver(func(provider string, usage ai.Usage) {
		m.RecordAIUsage(provider, usage.PromptTokens, usage.CompletionTokens)
	})

	// Progress hub streams board updates over websockets
	hub := handlers.NewProgressHub(store, func(delta int) {
		m.ActiveWebsockets.Add(float64(delta))
	}, logger)

	// Generation engine
	engine := generator.NewEngine(
		database, database,
		generator.NewOutlineGenerator(registry, logger),
		generator.NewSlideRenderer(logger),
		hub,
		logger,
	)
	engine.WithStageObserver(func(stageID string, d time.Duration) {
		m.StageDuration.WithLabelValues(stageID).Observe(d.Seconds())
	})
	if store != nil {
		engine.WithBoardCache(store)
		engine.WithOutlineCache(store)
	}

	// Research
	reportWriter, err := research.NewReportWriter(cfg.ReportsDir, logger)
	if err != nil {
		return fmt.Errorf("initialize report writer: %w", err)
	}
	catalog, err := research.NewCatalog(cfg.ReportsDir, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("report catalog unavailable, search disabled")
		catalog = nil
	} else {
		defer catalog.Close()
	}
	researchRunner := research.NewRunner(registry, logger)

	// Export
	pptx, err := export.NewPPTXConverter(cfg.PPTXExportEnabled, cfg.PPTXConverterURL, logger)
	if err != nil {
		return fmt.Errorf("initialize pptx converter: %w", err)
	}
	var uploader jobs.Uploader
	if cfg.S3Configured() {
		artifacts, err := export.NewArtifactStore(ctx, export.S3Config{
			Endpoint:  cfg.S3Endpoint,
			Region:    cfg.S3Region,
			Bucket:    cfg.S3Bucket,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
		}, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("artifact storage unavailable, exports stay local")
		} else {
			uploader = artifacts
		}
	}

	// Job queue
	queue := jobs.NewQueue(database, jobs.DefaultQueueConfig(), logger)

	generationJobs := jobs.NewGenerationHandler(engine)
	queue.RegisterHandler(models.JobTypeGeneration, jobs.JobHandlerFunc(
		func(ctx context.Context, job *models.Job) (map[string]any, error) {
			m.GenerationsStarted.Inc()
			result, err := generationJobs.Handle(ctx, job)
			if err != nil {
				m.GenerationsDone.WithLabelValues("failure").Inc()
			} else {
				m.GenerationsDone.WithLabelValues("success").Inc()
			}
			return result, err
		}))

	exportJobs, err := jobs.NewExportHandler(database, pptx, uploader, cfg.ExportDir, logger)
	if err != nil {
		return fmt.Errorf("initialize export handler: %w", err)
	}
	queue.RegisterHandler(models.JobTypeExport, jobs.JobHandlerFunc(
		func(ctx context.Context, job *models.Job) (map[string]any, error) {
			result, err := exportJobs.Handle(ctx, job)
			if err == nil {
				if format, ok := result["format"].(string); ok {
					m.ExportsTotal.WithLabelValues(format).Inc()
				}
			}
			return result, err
		}))

	researchJobs := jobs.NewResearchHandler(researchRunner, reportWriter, catalog, logger)
	queue.RegisterHandler(models.JobTypeResearch, jobs.JobHandlerFunc(
		func(ctx context.Context, job *models.Job) (map[string]any, error) {
			result, err := researchJobs.Handle(ctx, job)
			if err == nil {
				m.ResearchTotal.Inc()
			}
			return result, err
		}))

	if err := queue.Start(ctx); err != nil {
		return fmt.Errorf("start job queue: %w", err)
	}
	defer queue.Stop()

	// Diagnostics
	runner := diagnostics.NewRunner(Version, cfg.ExportDir, database, diagPinger(store), registry.Names())

	// Router
	routerCfg := api.RouterConfig{
		Env:                cfg.Env,
		AllowedOrigins:     cfg.AllowedOrigins(),
		RateLimitRequests:  cfg.RateLimitRequests,
		RateLimitPeriod:    cfg.RateLimitPeriod,
		MaxRequestBodySize: cfg.MaxRequestBodySize,
		Version:            Version,
		Commit:             Commit,
		BuildDate:          BuildDate,
		PPTXEnabled:        cfg.PPTXExportEnabled,
		WebDir:             cfg.WebDir,
	}
	router, err := api.NewRouter(routerCfg, api.Deps{
		Database:      database,
		Cache:         store,
		Sessions:      sessions,
		OIDC:          oidcProvider,
		KeyManager:    keyManager,
		Registry:      registry,
		Queue:         queue,
		Hub:           hub,
		ReportWriter:  reportWriter,
		ReportCatalog: catalog,
		Metrics:       m,
		Diagnostics:   runner,
	}, logger)
	if err != nil {
		return fmt.Errorf("initialize router: %w", err)
	}

	// Retention cleanup
	retentionCfg := maintenance.DefaultRetentionConfig()
	retentionCfg.AuditLogRetention = time.Duration(cfg.RetentionDays) * 24 * time.Hour
	retention := maintenance.NewRetentionScheduler(database, retentionCfg, logger)
	if err := retention.Start(); err != nil {
		logger.Error().Err(err).Msg("failed to start retention scheduler")
	}
	defer retention.Stop()

	// HTTP server
	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router.Engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
	}

	go func() {
		logger.Info().Str("addr", cfg.Addr()).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info().Str("signal", sig.String()).Msg("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown error")
		return err
	}

	logger.Info().Msg("server stopped gracefully")
	return nil
}

// diagPinger converts a possibly nil cache into a diagnostics pinger
// without producing a non-nil interface holding a nil pointer.
func diagPinger(c *cache.Cache) diagnostics.Pinger {
	if c == nil {
		return nil
	}
	return c
}
