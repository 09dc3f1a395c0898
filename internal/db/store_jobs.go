package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/landppt/landppt/internal/models"
)

const jobColumns = `id, owner_id, project_id, job_type, status, priority, payload, result,
	error, retry_count, next_retry_at, created_at, started_at, finished_at`

func scanJob(row pgx.Row) (*models.Job, error) {
	var j models.Job
	err := row.Scan(
		&j.ID, &j.OwnerID, &j.ProjectID, &j.JobType, &j.Status, &j.Priority,
		&j.Payload, &j.Result, &j.Error, &j.RetryCount, &j.NextRetryAt,
		&j.CreatedAt, &j.StartedAt, &j.FinishedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &j, nil
}

// CreateJob enqueues a job.
func (db *DB) CreateJob(ctx context.Context, job *models.Job) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO jobs (id, owner_id, project_id, job_type, status, priority, payload, retry_count, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, job.ID, job.OwnerID, job.ProjectID, job.JobType, job.Status, job.Priority,
		job.Payload, job.RetryCount, job.CreatedAt)
	if err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

// GetJobByID returns a job by ID.
func (db *DB) GetJobByID(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	j, err := scanJob(db.Pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get job by ID: %w", err)
	}
	return j, nil
}

// ClaimNextJob atomically claims the highest-priority runnable job and marks
// it running. Failed jobs whose retry time has passed are runnable again.
// Returns ErrNotFound when the queue is empty.
func (db *DB) ClaimNextJob(ctx context.Context) (*models.Job, error) {
	j, err := scanJob(db.Pool.QueryRow(ctx, `
		UPDATE jobs
		SET status = 'running', started_at = NOW()
		WHERE id = (
			SELECT id FROM jobs
			WHERE status = 'pending'
			   OR (status = 'failed' AND next_retry_at IS NOT NULL AND next_retry_at <= NOW())
			ORDER BY priority DESC, created_at
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		RETURNING `+jobColumns))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("claim next job: %w", err)
	}
	return j, nil
}

// UpdateJob persists a job's lifecycle fields.
func (db *DB) UpdateJob(ctx context.Context, job *models.Job) error {
	result, err := db.Pool.Exec(ctx, `
		UPDATE jobs
		SET status = $2, result = $3, error = $4, retry_count = $5,
			next_retry_at = $6, started_at = $7, finished_at = $8
		WHERE id = $1
	`, job.ID, job.Status, job.Result, job.Error, job.RetryCount,
		job.NextRetryAt, job.StartedAt, job.FinishedAt)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListJobsByOwner returns the owner's jobs, newest first.
func (db *DB) ListJobsByOwner(ctx context.Context, ownerID uuid.UUID, limit int) ([]*models.Job, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Pool.Query(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE owner_id = $1 ORDER BY created_at DESC LIMIT $2`,
		ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// JobQueueSummaryByOwner aggregates per-status counts for one owner.
func (db *DB) JobQueueSummaryByOwner(ctx context.Context, ownerID uuid.UUID) (*models.JobQueueSummary, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT status, COUNT(*) FROM jobs WHERE owner_id = $1 GROUP BY status`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("job queue summary: %w", err)
	}
	defer rows.Close()

	summary := &models.JobQueueSummary{}
	for rows.Next() {
		var status models.JobStatus
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan job summary: %w", err)
		}
		switch status {
		case models.JobStatusPending:
			summary.Pending = count
		case models.JobStatusRunning:
			summary.Running = count
		case models.JobStatusCompleted:
			summary.Completed = count
		case models.JobStatusFailed:
			summary.Failed = count
		case models.JobStatusDeadLetter:
			summary.DeadLetter = count
		}
	}
	return summary, rows.Err()
}

// RequeueStaleJobs resets running jobs whose worker died. A job is stale
// when it started more than the given duration ago.
func (db *DB) RequeueStaleJobs(ctx context.Context, runningLongerThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-runningLongerThan)
	result, err := db.Pool.Exec(ctx, `
		UPDATE jobs
		SET status = 'pending', started_at = NULL
		WHERE status = 'running' AND started_at < $1
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("requeue stale jobs: %w", err)
	}
	return result.RowsAffected(), nil
}

// CleanupFinishedJobs removes completed and dead-lettered jobs older than
// the cutoff.
func (db *DB) CleanupFinishedJobs(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)
	result, err := db.Pool.Exec(ctx, `
		DELETE FROM jobs
		WHERE status IN ('completed', 'dead_letter') AND finished_at < $1
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup finished jobs: %w", err)
	}
	return result.RowsAffected(), nil
}
