package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/landppt/landppt/internal/api/middleware"
	"github.com/landppt/landppt/internal/auth"
	"github.com/landppt/landppt/internal/db"
	"github.com/landppt/landppt/internal/models"
)

type mockGenerationQueue struct {
	generations []*models.GenerationRequest
	retries     []uuid.UUID
	enqueueErr  error
	summary     *models.JobQueueSummary
}

func (m *mockGenerationQueue) EnqueueGeneration(_ context.Context, ownerID, projectID uuid.UUID, req *models.GenerationRequest, priority int) (*models.Job, error) {
	if m.enqueueErr != nil {
		return nil, m.enqueueErr
	}
	m.generations = append(m.generations, req)
	return models.NewJob(ownerID, projectID, models.JobTypeGeneration, priority, nil), nil
}

func (m *mockGenerationQueue) EnqueueRetry(_ context.Context, ownerID, projectID uuid.UUID, priority int) (*models.Job, error) {
	if m.enqueueErr != nil {
		return nil, m.enqueueErr
	}
	m.retries = append(m.retries, projectID)
	return models.NewJob(ownerID, projectID, models.JobTypeGeneration, priority, map[string]any{"retry": true}), nil
}

func (m *mockGenerationQueue) Summary(_ context.Context, _ uuid.UUID) (*models.JobQueueSummary, error) {
	return m.summary, nil
}

type mockJobReader struct {
	jobs map[uuid.UUID]*models.Job
}

func (m *mockJobReader) GetJobByID(_ context.Context, id uuid.UUID) (*models.Job, error) {
	if j, ok := m.jobs[id]; ok {
		return j, nil
	}
	return nil, db.ErrNotFound
}

func (m *mockJobReader) ListJobsByOwner(_ context.Context, ownerID uuid.UUID, _ int) ([]*models.Job, error) {
	var out []*models.Job
	for _, j := range m.jobs {
		if j.OwnerID == ownerID {
			out = append(out, j)
		}
	}
	return out, nil
}

func setupGenerationTestRouter(projects ProjectStore, queue GenerationQueue, reader JobReader, user *auth.SessionUser) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		if user != nil {
			c.Set(string(middleware.UserContextKey), user)
		}
		c.Next()
	})
	handler := NewGenerationHandler(projects, queue, reader, nil, zerolog.Nop())
	handler.RegisterRoutes(r.Group("/api/v1"))
	return r
}

func TestStartGeneration(t *testing.T) {
	user := &auth.SessionUser{ID: uuid.New(), Role: string(models.UserRoleUser)}
	project := models.NewProject(user.ID, "Deck", "academic", "Graph Theory", "", "en")

	t.Run("fills request from project", func(t *testing.T) {
		queue := &mockGenerationQueue{}
		r := setupGenerationTestRouter(newMockProjectStore(project), queue, &mockJobReader{}, user)

		w := httptest.NewRecorder()
		req, _ := http.NewRequest("POST", "/api/v1/projects/"+project.ID.String()+"/generate", bytes.NewReader([]byte(`{}`)))
		req.Header.Set("Content-Type", "application/json")
		r.ServeHTTP(w, req)

		if w.Code != http.StatusAccepted {
			t.Fatalf("expected status 202, got %d: %s", w.Code, w.Body.String())
		}
		if len(queue.generations) != 1 {
			t.Fatalf("expected 1 enqueued generation, got %d", len(queue.generations))
		}
		got := queue.generations[0]
		if got.Scenario != "academic" || got.Topic != "Graph Theory" || got.Language != "en" {
			t.Errorf("expected request filled from project, got %+v", got)
		}
	})

	t.Run("rejects inverted page range", func(t *testing.T) {
		queue := &mockGenerationQueue{}
		r := setupGenerationTestRouter(newMockProjectStore(project), queue, &mockJobReader{}, user)

		body, _ := json.Marshal(models.GenerationRequest{
			Scenario:      "academic",
			Topic:         "Graph Theory",
			PageCountMode: models.PageCountCustomRange,
			MinPages:      20,
			MaxPages:      5,
		})
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("POST", "/api/v1/projects/"+project.ID.String()+"/generate", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		r.ServeHTTP(w, req)

		if w.Code != http.StatusBadRequest {
			t.Fatalf("expected status 400, got %d", w.Code)
		}
		if len(queue.generations) != 0 {
			t.Error("expected nothing enqueued")
		}
	})

	t.Run("other user gets 404", func(t *testing.T) {
		other := &auth.SessionUser{ID: uuid.New(), Role: string(models.UserRoleUser)}
		r := setupGenerationTestRouter(newMockProjectStore(project), &mockGenerationQueue{}, &mockJobReader{}, other)

		w := httptest.NewRecorder()
		req, _ := http.NewRequest("POST", "/api/v1/projects/"+project.ID.String()+"/generate", nil)
		r.ServeHTTP(w, req)

		if w.Code != http.StatusNotFound {
			t.Fatalf("expected status 404, got %d", w.Code)
		}
	})
}

func TestRetryGeneration(t *testing.T) {
	user := &auth.SessionUser{ID: uuid.New(), Role: string(models.UserRoleUser)}

	t.Run("requires failed stage", func(t *testing.T) {
		project := models.NewProject(user.ID, "Deck", "general", "Topic", "", "en")
		queue := &mockGenerationQueue{}
		r := setupGenerationTestRouter(newMockProjectStore(project), queue, &mockJobReader{}, user)

		w := httptest.NewRecorder()
		req, _ := http.NewRequest("POST", "/api/v1/projects/"+project.ID.String()+"/retry", nil)
		r.ServeHTTP(w, req)

		if w.Code != http.StatusConflict {
			t.Fatalf("expected status 409, got %d", w.Code)
		}
	})

	t.Run("enqueues retry for failed stage", func(t *testing.T) {
		project := models.NewProject(user.ID, "Deck", "general", "Topic", "", "en")
		project.TodoBoard.StartStage()
		project.TodoBoard.FailStage("provider timeout")

		queue := &mockGenerationQueue{}
		r := setupGenerationTestRouter(newMockProjectStore(project), queue, &mockJobReader{}, user)

		w := httptest.NewRecorder()
		req, _ := http.NewRequest("POST", "/api/v1/projects/"+project.ID.String()+"/retry", nil)
		r.ServeHTTP(w, req)

		if w.Code != http.StatusAccepted {
			t.Fatalf("expected status 202, got %d: %s", w.Code, w.Body.String())
		}
		if len(queue.retries) != 1 || queue.retries[0] != project.ID {
			t.Errorf("expected retry enqueued for project %s", project.ID)
		}
	})
}

func TestGetJobOwnership(t *testing.T) {
	owner := &auth.SessionUser{ID: uuid.New(), Role: string(models.UserRoleUser)}
	other := &auth.SessionUser{ID: uuid.New(), Role: string(models.UserRoleUser)}

	job := models.NewJob(owner.ID, uuid.New(), models.JobTypeGeneration, 0, nil)
	reader := &mockJobReader{jobs: map[uuid.UUID]*models.Job{job.ID: job}}

	t.Run("owner can read", func(t *testing.T) {
		r := setupGenerationTestRouter(newMockProjectStore(), &mockGenerationQueue{}, reader, owner)
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/api/v1/jobs/"+job.ID.String(), nil)
		r.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", w.Code)
		}
	})

	t.Run("other user gets 404", func(t *testing.T) {
		r := setupGenerationTestRouter(newMockProjectStore(), &mockGenerationQueue{}, reader, other)
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/api/v1/jobs/"+job.ID.String(), nil)
		r.ServeHTTP(w, req)

		if w.Code != http.StatusNotFound {
			t.Fatalf("expected status 404, got %d", w.Code)
		}
	})
}

func TestQueueSummaryEndpoint(t *testing.T) {
	user := &auth.SessionUser{ID: uuid.New(), Role: string(models.UserRoleUser)}
	queue := &mockGenerationQueue{summary: &models.JobQueueSummary{Pending: 2, Running: 1}}
	r := setupGenerationTestRouter(newMockProjectStore(), queue, &mockJobReader{}, user)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/api/v1/jobs/summary", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	var summary models.JobQueueSummary
	if err := json.Unmarshal(w.Body.Bytes(), &summary); err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}
	if summary.Pending != 2 || summary.Running != 1 {
		t.Errorf("unexpected summary %+v", summary)
	}
}
