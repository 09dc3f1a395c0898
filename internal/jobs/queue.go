// Package jobs runs background work (generation, export, research) through
// a persistent queue with retries and a dead letter state.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/landppt/landppt/internal/db"
	"github.com/landppt/landppt/internal/models"
)

// JobStore defines the persistence operations the queue relies on.
type JobStore interface {
	CreateJob(ctx context.Context, job *models.Job) error
	GetJobByID(ctx context.Context, id uuid.UUID) (*models.Job, error)
	ClaimNextJob(ctx context.Context) (*models.Job, error)
	UpdateJob(ctx context.Context, job *models.Job) error
	JobQueueSummaryByOwner(ctx context.Context, ownerID uuid.UUID) (*models.JobQueueSummary, error)
	RequeueStaleJobs(ctx context.Context, runningLongerThan time.Duration) (int64, error)
	CleanupFinishedJobs(ctx context.Context, olderThan time.Duration) (int64, error)
}

// JobHandler processes jobs of a specific type.
type JobHandler interface {
	// Handle processes the job and returns a result map or error.
	Handle(ctx context.Context, job *models.Job) (map[string]any, error)
}

// JobHandlerFunc adapts a function to the JobHandler interface.
type JobHandlerFunc func(ctx context.Context, job *models.Job) (map[string]any, error)

func (f JobHandlerFunc) Handle(ctx context.Context, job *models.Job) (map[string]any, error) {
	return f(ctx, job)
}

// QueueConfig holds configuration for the job queue.
type QueueConfig struct {
	// WorkerCount is the number of concurrent workers.
	WorkerCount int
	// PollInterval is how often each worker checks for claimable jobs.
	PollInterval time.Duration
	// StalePollInterval is how often orphaned running jobs are requeued.
	StalePollInterval time.Duration
	// StaleAfter is how long a job may run before it is considered orphaned.
	StaleAfter time.Duration
	// CleanupInterval is how often finished jobs are purged.
	CleanupInterval time.Duration
	// JobRetention is how long completed and dead letter jobs are kept.
	JobRetention time.Duration
	// MaxJobDuration is the per-job execution timeout.
	MaxJobDuration time.Duration
}

// DefaultQueueConfig returns a QueueConfig with sensible defaults.
func DefaultQueueConfig() QueueConfig {
	return QueueConfig{
		WorkerCount:       3,
		PollInterval:      2 * time.Second,
		StalePollInterval: 1 * time.Minute,
		StaleAfter:        30 * time.Minute,
		CleanupInterval:   1 * time.Hour,
		JobRetention:      30 * 24 * time.Hour,
		MaxJobDuration:    20 * time.Minute,
	}
}

// Queue claims and executes persisted jobs.
type Queue struct {
	store    JobStore
	config   QueueConfig
	handlers map[models.JobType]JobHandler
	logger   zerolog.Logger

	mu       sync.RWMutex
	running  bool
	stopCh   chan struct{}
	workerWg sync.WaitGroup
}

// NewQueue creates a job queue.
func NewQueue(store JobStore, config QueueConfig, logger zerolog.Logger) *Queue {
	return &Queue{
		store:    store,
		config:   config,
		handlers: make(map[models.JobType]JobHandler),
		logger:   logger.With().Str("component", "job_queue").Logger(),
		stopCh:   make(chan struct{}),
	}
}

// RegisterHandler registers a handler for a specific job type.
func (q *Queue) RegisterHandler(jobType models.JobType, handler JobHandler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[jobType] = handler
	q.logger.Info().Str("job_type", string(jobType)).Msg("registered job handler")
}

// Enqueue adds a new job to the queue.
func (q *Queue) Enqueue(ctx context.Context, job *models.Job) error {
	if err := q.store.CreateJob(ctx, job); err != nil {
		return fmt.Errorf("enqueue job: %w", err)
	}

	q.logger.Info().
		Str("job_id", job.ID.String()).
		Str("job_type", string(job.JobType)).
		Int("priority", job.Priority).
		Msg("job enqueued")
	return nil
}

// EnqueueGeneration creates and enqueues a generation job for a project.
func (q *Queue) EnqueueGeneration(ctx context.Context, ownerID, projectID uuid.UUID, req *models.GenerationRequest, priority int) (*models.Job, error) {
	payload, err := toPayload(req)
	if err != nil {
		return nil, err
	}
	job := models.NewJob(ownerID, projectID, models.JobTypeGeneration, priority, payload)
	if err := q.Enqueue(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

// EnqueueRetry enqueues a job that resumes a failed generation from its
// failed stage.
func (q *Queue) EnqueueRetry(ctx context.Context, ownerID, projectID uuid.UUID, priority int) (*models.Job, error) {
	job := models.NewJob(ownerID, projectID, models.JobTypeGeneration, priority, map[string]any{
		"retry": true,
	})
	if err := q.Enqueue(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

// EnqueueExport creates and enqueues an export job for a completed project.
func (q *Queue) EnqueueExport(ctx context.Context, ownerID, projectID uuid.UUID, format string) (*models.Job, error) {
	job := models.NewJob(ownerID, projectID, models.JobTypeExport, 0, map[string]any{
		"format": format,
	})
	if err := q.Enqueue(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

// EnqueueResearch creates and enqueues a deep research job. Research jobs
// are not bound to a project.
func (q *Queue) EnqueueResearch(ctx context.Context, ownerID uuid.UUID, topic, language string) (*models.Job, error) {
	job := models.NewJob(ownerID, uuid.Nil, models.JobTypeResearch, 0, map[string]any{
		"topic":    topic,
		"language": language,
	})
	if err := q.Enqueue(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

// Summary returns per-status job counts for one owner.
func (q *Queue) Summary(ctx context.Context, ownerID uuid.UUID) (*models.JobQueueSummary, error) {
	return q.store.JobQueueSummaryByOwner(ctx, ownerID)
}

// Start begins processing jobs.
func (q *Queue) Start(ctx context.Context) error {
	q.mu.Lock()
	if q.running {
		q.mu.Unlock()
		return fmt.Errorf("queue already running")
	}
	q.running = true
	q.stopCh = make(chan struct{})
	q.mu.Unlock()

	q.logger.Info().Int("workers", q.config.WorkerCount).Msg("starting job queue")

	for i := 0; i < q.config.WorkerCount; i++ {
		q.workerWg.Add(1)
		go q.worker(ctx, i)
	}

	q.workerWg.Add(1)
	go q.staleProcessor(ctx)

	q.workerWg.Add(1)
	go q.cleanupProcessor(ctx)

	return nil
}

// Stop gracefully stops the queue.
func (q *Queue) Stop() {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return
	}
	q.running = false
	close(q.stopCh)
	q.mu.Unlock()

	q.logger.Info().Msg("stopping job queue")
	q.workerWg.Wait()
	q.logger.Info().Msg("job queue stopped")
}

func (q *Queue) worker(ctx context.Context, workerID int) {
	defer q.workerWg.Done()

	logger := q.logger.With().Int("worker_id", workerID).Logger()
	logger.Debug().Msg("worker started")

	ticker := time.NewTicker(q.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Debug().Msg("worker stopping due to context cancellation")
			return
		case <-q.stopCh:
			logger.Debug().Msg("worker stopping due to stop signal")
			return
		case <-ticker.C:
			q.processNextJob(ctx, logger)
		}
	}
}

// processNextJob claims and runs one job. Claiming marks the job running,
// so crashes are recovered by the stale processor rather than lost.
func (q *Queue) processNextJob(ctx context.Context, logger zerolog.Logger) {
	job, err := q.store.ClaimNextJob(ctx)
	if err != nil {
		if !errors.Is(err, db.ErrNotFound) {
			logger.Error().Err(err).Msg("failed to claim next job")
		}
		return
	}

	logger = logger.With().
		Str("job_id", job.ID.String()).
		Str("job_type", string(job.JobType)).
		Logger()

	logger.Info().Msg("processing job")

	q.mu.RLock()
	handler, exists := q.handlers[job.JobType]
	q.mu.RUnlock()

	if !exists {
		logger.Error().Msg("no handler registered for job type")
		job.Fail("no handler registered for job type")
		if err := q.store.UpdateJob(ctx, job); err != nil {
			logger.Error().Err(err).Msg("failed to update job after handler error")
		}
		return
	}

	jobCtx, cancel := context.WithTimeout(ctx, q.config.MaxJobDuration)
	defer cancel()

	result, err := handler.Handle(jobCtx, job)
	if err != nil {
		shouldRetry := job.Fail(err.Error())
		if shouldRetry {
			logger.Warn().
				Err(err).
				Int("retry_count", job.RetryCount).
				Time("next_retry_at", *job.NextRetryAt).
				Msg("job failed, will retry")
		} else {
			logger.Error().
				Err(err).
				Int("retry_count", job.RetryCount).
				Msg("job failed, moved to dead letter queue")
		}
	} else {
		job.Complete(result)
		logger.Info().
			Dur("duration", job.Duration()).
			Msg("job completed successfully")
	}

	if err := q.store.UpdateJob(ctx, job); err != nil {
		logger.Error().Err(err).Msg("failed to update job after processing")
	}
}

// staleProcessor requeues running jobs whose worker died.
func (q *Queue) staleProcessor(ctx context.Context) {
	defer q.workerWg.Done()

	logger := q.logger.With().Str("processor", "stale").Logger()
	logger.Debug().Msg("stale processor started")

	ticker := time.NewTicker(q.config.StalePollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-q.stopCh:
			return
		case <-ticker.C:
			requeued, err := q.store.RequeueStaleJobs(ctx, q.config.StaleAfter)
			if err != nil {
				logger.Error().Err(err).Msg("failed to requeue stale jobs")
			} else if requeued > 0 {
				logger.Warn().Int64("requeued", requeued).Msg("requeued stale jobs")
			}
		}
	}
}

// cleanupProcessor periodically purges old finished jobs.
func (q *Queue) cleanupProcessor(ctx context.Context) {
	defer q.workerWg.Done()

	logger := q.logger.With().Str("processor", "cleanup").Logger()
	logger.Debug().Msg("cleanup processor started")

	ticker := time.NewTicker(q.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-q.stopCh:
			return
		case <-ticker.C:
			deleted, err := q.store.CleanupFinishedJobs(ctx, q.config.JobRetention)
			if err != nil {
				logger.Error().Err(err).Msg("failed to cleanup finished jobs")
			} else if deleted > 0 {
				logger.Info().Int64("deleted", deleted).Msg("cleaned up finished jobs")
			}
		}
	}
}

// toPayload converts a typed request into a job payload map.
func toPayload(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode job payload: %w", err)
	}
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("decode job payload: %w", err)
	}
	return payload, nil
}

// fromPayload converts a job payload map back into a typed request.
func fromPayload(payload map[string]any, v any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode job payload: %w", err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode job payload: %w", err)
	}
	return nil
}
