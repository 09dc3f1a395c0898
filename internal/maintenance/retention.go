// Package maintenance runs scheduled housekeeping: expired sessions,
// finished jobs, old audit entries, and stale project version snapshots.
package maintenance

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// RetentionStore defines the cleanup operations the scheduler runs.
type RetentionStore interface {
	CleanupExpiredSessions(ctx context.Context, olderThan time.Duration) (int64, error)
	CleanupFinishedJobs(ctx context.Context, olderThan time.Duration) (int64, error)
	CleanupAuditLogs(ctx context.Context, olderThan time.Duration) (int64, error)
	TrimProjectVersions(ctx context.Context, cutoff time.Time, maxKeep int) (int64, error)
}

// RetentionConfig controls how long each record class is kept.
type RetentionConfig struct {
	SessionRetention  time.Duration
	JobRetention      time.Duration
	AuditLogRetention time.Duration
	VersionRetention  time.Duration
	VersionsToKeep    int
}

// DefaultRetentionConfig returns the standard retention windows.
func DefaultRetentionConfig() RetentionConfig {
	return RetentionConfig{
		SessionRetention:  7 * 24 * time.Hour,
		JobRetention:      30 * 24 * time.Hour,
		AuditLogRetention: 90 * 24 * time.Hour,
		VersionRetention:  30 * 24 * time.Hour,
		VersionsToKeep:    5,
	}
}

// RetentionScheduler runs the daily cleanup.
type RetentionScheduler struct {
	store   RetentionStore
	config  RetentionConfig
	cron    *cron.Cron
	logger  zerolog.Logger
	mu      sync.Mutex
	running bool
}

// NewRetentionScheduler creates a retention cleanup scheduler.
func NewRetentionScheduler(store RetentionStore, config RetentionConfig, logger zerolog.Logger) *RetentionScheduler {
	return &RetentionScheduler{
		store:  store,
		config: config,
		cron:   cron.New(),
		logger: logger.With().Str("component", "retention").Logger(),
	}
}

// Start begins the daily cleanup schedule at 3:00 AM UTC.
func (s *RetentionScheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return errors.New("retention scheduler already running")
	}

	_, err := s.cron.AddFunc("0 3 * * *", s.runCleanup)
	if err != nil {
		return err
	}

	s.cron.Start()
	s.running = true

	s.logger.Info().Msg("retention scheduler started (daily at 03:00 UTC)")
	return nil
}

// Stop stops the retention scheduler gracefully.
func (s *RetentionScheduler) Stop() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		return ctx
	}

	s.running = false
	s.logger.Info().Msg("stopping retention scheduler")
	return s.cron.Stop()
}

// runCleanup executes every cleanup task. A failing task is logged and
// the rest still run.
func (s *RetentionScheduler) runCleanup() {
	ctx := context.Background()

	s.logger.Info().Msg("starting retention cleanup")

	tasks := []struct {
		name string
		run  func() (int64, error)
	}{
		{"expired_sessions", func() (int64, error) {
			return s.store.CleanupExpiredSessions(ctx, s.config.SessionRetention)
		}},
		{"finished_jobs", func() (int64, error) {
			return s.store.CleanupFinishedJobs(ctx, s.config.JobRetention)
		}},
		{"audit_logs", func() (int64, error) {
			return s.store.CleanupAuditLogs(ctx, s.config.AuditLogRetention)
		}},
		{"project_versions", func() (int64, error) {
			cutoff := time.Now().Add(-s.config.VersionRetention)
			return s.store.TrimProjectVersions(ctx, cutoff, s.config.VersionsToKeep)
		}},
	}

	for _, task := range tasks {
		deleted, err := task.run()
		if err != nil {
			s.logger.Error().Err(err).Str("task", task.name).Msg("retention task failed")
			continue
		}
		if deleted > 0 {
			s.logger.Info().Str("task", task.name).Int64("deleted_rows", deleted).Msg("retention task completed")
		}
	}
}

// RunNow triggers an immediate cleanup (useful for testing).
func (s *RetentionScheduler) RunNow() {
	s.runCleanup()
}
