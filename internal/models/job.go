package models

import (
	"time"

	"github.com/google/uuid"
)

// JobType identifies what a background job does.
type JobType string

const (
	// JobTypeGeneration runs the full generation pipeline for a project.
	JobTypeGeneration JobType = "generation"
	// JobTypeExport produces an export artifact for a completed project.
	JobTypeExport JobType = "export"
	// JobTypeResearch runs a deep research task for a topic.
	JobTypeResearch JobType = "research"
)

// JobStatus is the lifecycle state of a background job.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusRunning    JobStatus = "running"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusDeadLetter JobStatus = "dead_letter"
)

// MaxJobRetries is the number of attempts before a job is dead-lettered.
const MaxJobRetries = 3

// Job is a queued background operation owned by a user.
type Job struct {
	ID          uuid.UUID      `json:"id"`
	OwnerID     uuid.UUID      `json:"owner_id"`
	ProjectID   uuid.UUID      `json:"project_id"`
	JobType     JobType        `json:"job_type"`
	Status      JobStatus      `json:"status"`
	Priority    int            `json:"priority"`
	Payload     map[string]any `json:"payload,omitempty"`
	Result      map[string]any `json:"result,omitempty"`
	Error       string         `json:"error,omitempty"`
	RetryCount  int            `json:"retry_count"`
	NextRetryAt *time.Time     `json:"next_retry_at,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	StartedAt   *time.Time     `json:"started_at,omitempty"`
	FinishedAt  *time.Time     `json:"finished_at,omitempty"`
}

// NewJob creates a pending job for a project.
func NewJob(ownerID, projectID uuid.UUID, jobType JobType, priority int, payload map[string]any) *Job {
	return &Job{
		ID:        uuid.New(),
		OwnerID:   ownerID,
		ProjectID: projectID,
		JobType:   jobType,
		Status:    JobStatusPending,
		Priority:  priority,
		Payload:   payload,
		CreatedAt: time.Now(),
	}
}

// Start marks the job as running.
func (j *Job) Start() {
	now := time.Now()
	j.Status = JobStatusRunning
	j.StartedAt = &now
}

// Complete marks the job as completed with the given result.
func (j *Job) Complete(result map[string]any) {
	now := time.Now()
	j.Status = JobStatusCompleted
	j.Result = result
	j.FinishedAt = &now
}

// Fail records a failure. When retries remain, the job is scheduled for
// retry with exponential backoff and true is returned; otherwise it moves
// to the dead letter state.
func (j *Job) Fail(errMsg string) bool {
	now := time.Now()
	j.Error = errMsg
	j.FinishedAt = &now
	j.RetryCount++

	if j.RetryCount >= MaxJobRetries {
		j.Status = JobStatusDeadLetter
		j.NextRetryAt = nil
		return false
	}

	backoff := time.Duration(1<<uint(j.RetryCount)) * time.Minute
	next := now.Add(backoff)
	j.Status = JobStatusFailed
	j.NextRetryAt = &next
	return true
}

// Duration returns how long the job ran, or zero when not finished.
func (j *Job) Duration() time.Duration {
	if j.StartedAt == nil || j.FinishedAt == nil {
		return 0
	}
	return j.FinishedAt.Sub(*j.StartedAt)
}

// JobQueueSummary aggregates per-status job counts for one owner.
type JobQueueSummary struct {
	Pending    int64 `json:"pending"`
	Running    int64 `json:"running"`
	Completed  int64 `json:"completed"`
	Failed     int64 `json:"failed"`
	DeadLetter int64 `json:"dead_letter"`
}
