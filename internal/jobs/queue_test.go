package jobs

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/landppt/landppt/internal/ai"
	"github.com/landppt/landppt/internal/db"
	"github.com/landppt/landppt/internal/export"
	"github.com/landppt/landppt/internal/models"
	"github.com/landppt/landppt/internal/research"
)

type mockJobStore struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]*models.Job
}

func newMockJobStore() *mockJobStore {
	return &mockJobStore{jobs: make(map[uuid.UUID]*models.Job)}
}

func (s *mockJobStore) CreateJob(_ context.Context, job *models.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *job
	s.jobs[job.ID] = &copied
	return nil
}

func (s *mockJobStore) GetJobByID(_ context.Context, id uuid.UUID) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	copied := *job
	return &copied, nil
}

func (s *mockJobStore) ClaimNextJob(_ context.Context) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var candidates []*models.Job
	now := time.Now()
	for _, job := range s.jobs {
		if job.Status == models.JobStatusPending {
			candidates = append(candidates, job)
		}
		if job.Status == models.JobStatusFailed && job.NextRetryAt != nil && !job.NextRetryAt.After(now) {
			candidates = append(candidates, job)
		}
	}
	if len(candidates) == 0 {
		return nil, db.ErrNotFound
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Priority != candidates[j].Priority {
			return candidates[i].Priority > candidates[j].Priority
		}
		return candidates[i].CreatedAt.Before(candidates[j].CreatedAt)
	})

	job := candidates[0]
	job.Status = models.JobStatusRunning
	started := now
	job.StartedAt = &started
	copied := *job
	return &copied, nil
}

func (s *mockJobStore) UpdateJob(_ context.Context, job *models.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.ID]; !ok {
		return db.ErrNotFound
	}
	copied := *job
	s.jobs[job.ID] = &copied
	return nil
}

func (s *mockJobStore) JobQueueSummaryByOwner(_ context.Context, ownerID uuid.UUID) (*models.JobQueueSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	summary := &models.JobQueueSummary{}
	for _, job := range s.jobs {
		if job.OwnerID != ownerID {
			continue
		}
		switch job.Status {
		case models.JobStatusPending:
			summary.Pending++
		case models.JobStatusRunning:
			summary.Running++
		case models.JobStatusCompleted:
			summary.Completed++
		case models.JobStatusFailed:
			summary.Failed++
		case models.JobStatusDeadLetter:
			summary.DeadLetter++
		}
	}
	return summary, nil
}

func (s *mockJobStore) RequeueStaleJobs(_ context.Context, runningLongerThan time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := time.Now().Add(-runningLongerThan)
	var requeued int64
	for _, job := range s.jobs {
		if job.Status == models.JobStatusRunning && job.StartedAt != nil && job.StartedAt.Before(cutoff) {
			job.Status = models.JobStatusPending
			job.StartedAt = nil
			requeued++
		}
	}
	return requeued, nil
}

func (s *mockJobStore) CleanupFinishedJobs(_ context.Context, olderThan time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := time.Now().Add(-olderThan)
	var deleted int64
	for id, job := range s.jobs {
		if (job.Status == models.JobStatusCompleted || job.Status == models.JobStatusDeadLetter) &&
			job.FinishedAt != nil && job.FinishedAt.Before(cutoff) {
			delete(s.jobs, id)
			deleted++
		}
	}
	return deleted, nil
}

func testQueueConfig() QueueConfig {
	cfg := DefaultQueueConfig()
	cfg.WorkerCount = 1
	cfg.PollInterval = 10 * time.Millisecond
	cfg.StalePollInterval = time.Hour
	cfg.CleanupInterval = time.Hour
	return cfg
}

func waitForStatus(t *testing.T, store *mockJobStore, id uuid.UUID, want models.JobStatus) *models.Job {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		job, err := store.GetJobByID(context.Background(), id)
		if err != nil {
			t.Fatalf("GetJobByID failed: %v", err)
		}
		if job.Status == want {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	job, _ := store.GetJobByID(context.Background(), id)
	t.Fatalf("job never reached status %s, stuck at %s", want, job.Status)
	return nil
}

func waitForRetryCount(t *testing.T, store *mockJobStore, id uuid.UUID, want int) *models.Job {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		job, err := store.GetJobByID(context.Background(), id)
		if err != nil {
			t.Fatalf("GetJobByID failed: %v", err)
		}
		if job.RetryCount >= want && job.Status != models.JobStatusRunning {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	job, _ := store.GetJobByID(context.Background(), id)
	t.Fatalf("job never reached retry count %d, at %d (%s)", want, job.RetryCount, job.Status)
	return nil
}

func TestQueueProcessesJob(t *testing.T) {
	store := newMockJobStore()
	queue := NewQueue(store, testQueueConfig(), zerolog.Nop())

	var handled []uuid.UUID
	var mu sync.Mutex
	queue.RegisterHandler(models.JobTypeGeneration, JobHandlerFunc(func(_ context.Context, job *models.Job) (map[string]any, error) {
		mu.Lock()
		handled = append(handled, job.ID)
		mu.Unlock()
		return map[string]any{"ok": true}, nil
	}))

	ctx := context.Background()
	req := &models.GenerationRequest{Scenario: "general", Topic: "AI in education"}
	job, err := queue.EnqueueGeneration(ctx, uuid.New(), uuid.New(), req, 5)
	if err != nil {
		t.Fatalf("EnqueueGeneration failed: %v", err)
	}

	if err := queue.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer queue.Stop()

	done := waitForStatus(t, store, job.ID, models.JobStatusCompleted)
	if done.Result["ok"] != true {
		t.Errorf("result not recorded: %+v", done.Result)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(handled) != 1 || handled[0] != job.ID {
		t.Errorf("handler saw jobs %v", handled)
	}
}

func TestQueueRetriesThenDeadLetters(t *testing.T) {
	store := newMockJobStore()
	queue := NewQueue(store, testQueueConfig(), zerolog.Nop())

	queue.RegisterHandler(models.JobTypeExport, JobHandlerFunc(func(context.Context, *models.Job) (map[string]any, error) {
		return nil, fmt.Errorf("converter unavailable")
	}))

	ctx := context.Background()
	job, err := queue.EnqueueExport(ctx, uuid.New(), uuid.New(), "pptx")
	if err != nil {
		t.Fatalf("EnqueueExport failed: %v", err)
	}

	if err := queue.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer queue.Stop()

	failed := waitForRetryCount(t, store, job.ID, 1)
	if failed.Status != models.JobStatusFailed {
		t.Errorf("got status %s", failed.Status)
	}
	if failed.NextRetryAt == nil {
		t.Fatal("retry not scheduled")
	}

	// Force each scheduled retry due immediately, one at a time. The
	// retry count only moves once the previous attempt has been persisted,
	// so waiting on it keeps this in step with the worker.
	for want := 2; want <= models.MaxJobRetries; want++ {
		store.mu.Lock()
		past := time.Now().Add(-time.Minute)
		store.jobs[job.ID].NextRetryAt = &past
		store.mu.Unlock()
		waitForRetryCount(t, store, job.ID, want)
	}

	dead := waitForStatus(t, store, job.ID, models.JobStatusDeadLetter)
	if dead.RetryCount != models.MaxJobRetries {
		t.Errorf("got retry count %d", dead.RetryCount)
	}
	if dead.Error != "converter unavailable" {
		t.Errorf("got error %q", dead.Error)
	}
}

func TestQueueNoHandlerFailsJob(t *testing.T) {
	store := newMockJobStore()
	queue := NewQueue(store, testQueueConfig(), zerolog.Nop())

	ctx := context.Background()
	job, err := queue.EnqueueResearch(ctx, uuid.New(), "Edge AI", "en")
	if err != nil {
		t.Fatalf("EnqueueResearch failed: %v", err)
	}

	if err := queue.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer queue.Stop()

	failed := waitForStatus(t, store, job.ID, models.JobStatusFailed)
	if !strings.Contains(failed.Error, "no handler") {
		t.Errorf("got error %q", failed.Error)
	}
}

func TestQueueStartTwice(t *testing.T) {
	queue := NewQueue(newMockJobStore(), testQueueConfig(), zerolog.Nop())
	ctx := context.Background()
	if err := queue.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer queue.Stop()
	if err := queue.Start(ctx); err == nil {
		t.Fatal("expected error starting a running queue")
	}
}

func TestPayloadRoundTrip(t *testing.T) {
	req := &models.GenerationRequest{
		Scenario:      "business",
		Topic:         "Q2 results",
		Language:      "en",
		PageCountMode: models.PageCountFixed,
		FixedPages:    8,
	}
	payload, err := toPayload(req)
	if err != nil {
		t.Fatalf("toPayload failed: %v", err)
	}

	var decoded models.GenerationRequest
	if err := fromPayload(payload, &decoded); err != nil {
		t.Fatalf("fromPayload failed: %v", err)
	}
	if decoded.Topic != req.Topic || decoded.FixedPages != 8 || decoded.PageCountMode != models.PageCountFixed {
		t.Errorf("round trip mismatch: %+v", decoded)
	}
}

type mockProjectGetter struct {
	project *models.Project
}

func (m *mockProjectGetter) GetProjectByID(_ context.Context, id uuid.UUID) (*models.Project, error) {
	if m.project == nil || m.project.ID != id {
		return nil, db.ErrNotFound
	}
	return m.project, nil
}

type recordingUploader struct {
	key  string
	data []byte
}

func (u *recordingUploader) Upload(_ context.Context, key string, data []byte, _ string) error {
	u.key = key
	u.data = data
	return nil
}

func TestExportHandlerHTML(t *testing.T) {
	project := models.NewProject(uuid.New(), "Deck", "general", "Deck", "", "en")
	project.Slides = []models.RenderedSlide{{Index: 0, Title: "Deck", HTML: "<html><body>hi</body></html>"}}
	project.Status = models.ProjectStatusCompleted

	pptx, _ := export.NewPPTXConverter(false, "", zerolog.Nop())
	uploader := &recordingUploader{}
	handler, err := NewExportHandler(&mockProjectGetter{project: project}, pptx, uploader, t.TempDir(), zerolog.Nop())
	if err != nil {
		t.Fatalf("NewExportHandler failed: %v", err)
	}

	job := models.NewJob(uuid.New(), project.ID, models.JobTypeExport, 0, map[string]any{"format": "html"})
	result, err := handler.Handle(context.Background(), job)
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}

	if result["format"] != "html" {
		t.Errorf("unexpected result: %+v", result)
	}
	if uploader.key == "" || len(uploader.data) == 0 {
		t.Error("artifact not uploaded")
	}
	if !strings.HasPrefix(uploader.key, "exports/") {
		t.Errorf("unexpected object key %q", uploader.key)
	}
}

type researchScriptProvider struct{}

func (researchScriptProvider) Name() string { return "scripted" }

func (p researchScriptProvider) ChatCompletion(_ context.Context, messages []ai.Message, _ ai.Options) (*ai.Response, error) {
	prompt := messages[len(messages)-1].Content
	switch {
	case strings.Contains(prompt, "Plan a research task"):
		return &ai.Response{Content: `{"steps":[{"description":"Overview","query":"edge AI overview"}]}`}, nil
	case strings.Contains(prompt, "Summarize the following research"):
		return &ai.Response{Content: `{"executive_summary":"Summary.","key_findings":["f1"],"recommendations":["r1"]}`}, nil
	default:
		return &ai.Response{Content: "### Overview\nFindings."}, nil
	}
}

func (p researchScriptProvider) TextCompletion(ctx context.Context, prompt string, opts ai.Options) (*ai.Response, error) {
	return p.ChatCompletion(ctx, []ai.Message{{Role: ai.RoleUser, Content: prompt}}, opts)
}

func (p researchScriptProvider) StreamChatCompletion(ctx context.Context, messages []ai.Message, opts ai.Options) (<-chan ai.StreamChunk, error) {
	resp, err := p.ChatCompletion(ctx, messages, opts)
	if err != nil {
		return nil, err
	}
	ch := make(chan ai.StreamChunk, 1)
	ch <- ai.StreamChunk{Delta: resp.Content, FinishReason: "stop"}
	close(ch)
	return ch, nil
}

func TestResearchHandlerSavesReadableReport(t *testing.T) {
	registry := ai.NewRegistry(nil, zerolog.Nop())
	registry.Register(researchScriptProvider{}, true)

	writer, err := research.NewReportWriter(t.TempDir(), zerolog.Nop())
	if err != nil {
		t.Fatalf("NewReportWriter failed: %v", err)
	}
	catalog, err := research.NewCatalog(t.TempDir(), zerolog.Nop())
	if err != nil {
		t.Fatalf("NewCatalog failed: %v", err)
	}
	defer catalog.Close()

	handler := NewResearchHandler(research.NewRunner(registry, zerolog.Nop()), writer, catalog, zerolog.Nop())

	ctx := context.Background()
	job := models.NewJob(uuid.New(), uuid.Nil, models.JobTypeResearch, 0,
		map[string]any{"topic": "Edge AI", "language": "en"})
	result, err := handler.Handle(ctx, job)
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}

	filename, _ := result["filename"].(string)
	if filename == "" {
		t.Fatalf("no filename in result: %+v", result)
	}

	// The recorded filename must feed straight back into the writer and
	// match the catalog row.
	data, err := writer.Read(filename)
	if err != nil {
		t.Fatalf("Read of job-produced report failed: %v", err)
	}
	if !strings.Contains(string(data), "# Edge AI - Research Report") {
		t.Error("report content missing topic heading")
	}

	rows, err := catalog.Search(ctx, "", 10)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(rows) != 1 || rows[0].Filename != filename {
		t.Fatalf("catalog row does not match saved filename: %+v", rows)
	}

	if err := writer.Delete(filename); err != nil {
		t.Errorf("Delete of job-produced report failed: %v", err)
	}
}

func TestExportHandlerRejectsIncompleteProject(t *testing.T) {
	project := models.NewProject(uuid.New(), "Deck", "general", "Deck", "", "en")

	pptx, _ := export.NewPPTXConverter(false, "", zerolog.Nop())
	handler, err := NewExportHandler(&mockProjectGetter{project: project}, pptx, nil, t.TempDir(), zerolog.Nop())
	if err != nil {
		t.Fatalf("NewExportHandler failed: %v", err)
	}

	job := models.NewJob(uuid.New(), project.ID, models.JobTypeExport, 0, map[string]any{"format": "html"})
	if _, err := handler.Handle(context.Background(), job); err == nil {
		t.Fatal("expected error for incomplete project")
	}
}

func TestExportHandlerPPTXDisabled(t *testing.T) {
	project := models.NewProject(uuid.New(), "Deck", "general", "Deck", "", "en")
	project.Slides = []models.RenderedSlide{{Index: 0, Title: "Deck", HTML: "<html></html>"}}
	project.Status = models.ProjectStatusCompleted

	pptx, _ := export.NewPPTXConverter(false, "", zerolog.Nop())
	handler, err := NewExportHandler(&mockProjectGetter{project: project}, pptx, nil, t.TempDir(), zerolog.Nop())
	if err != nil {
		t.Fatalf("NewExportHandler failed: %v", err)
	}

	job := models.NewJob(uuid.New(), project.ID, models.JobTypeExport, 0, map[string]any{"format": "pptx"})
	if _, err := handler.Handle(context.Background(), job); !errors.Is(err, export.ErrPPTXDisabled) {
		t.Errorf("expected ErrPPTXDisabled, got %v", err)
	}
}
