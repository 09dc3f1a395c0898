package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/landppt/landppt/internal/api/middleware"
	"github.com/landppt/landppt/internal/auth"
	"github.com/landppt/landppt/internal/db"
	"github.com/landppt/landppt/internal/models"
)

type mockProjectStore struct {
	projects  map[uuid.UUID]*models.Project
	createErr error
	updateErr error
}

func newMockProjectStore(projects ...*models.Project) *mockProjectStore {
	m := &mockProjectStore{projects: make(map[uuid.UUID]*models.Project)}
	for _, p := range projects {
		m.projects[p.ID] = p
	}
	return m
}

func (m *mockProjectStore) CreateProject(_ context.Context, project *models.Project) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.projects[project.ID] = project
	return nil
}

func (m *mockProjectStore) GetProjectByID(_ context.Context, id uuid.UUID) (*models.Project, error) {
	if p, ok := m.projects[id]; ok {
		return p, nil
	}
	return nil, db.ErrNotFound
}

func (m *mockProjectStore) ListProjectsByOwner(_ context.Context, ownerID uuid.UUID, status models.ProjectStatus, _, _ int) ([]*models.Project, error) {
	var out []*models.Project
	for _, p := range m.projects {
		if p.OwnerID != ownerID {
			continue
		}
		if status != "" && p.Status != status {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (m *mockProjectStore) CountProjectsByOwner(ctx context.Context, ownerID uuid.UUID, status models.ProjectStatus) (int64, error) {
	projects, _ := m.ListProjectsByOwner(ctx, ownerID, status, 0, 0)
	return int64(len(projects)), nil
}

func (m *mockProjectStore) UpdateProject(_ context.Context, project *models.Project) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	m.projects[project.ID] = project
	return nil
}

func (m *mockProjectStore) DeleteProject(_ context.Context, id, ownerID uuid.UUID) error {
	p, ok := m.projects[id]
	if !ok || p.OwnerID != ownerID {
		return db.ErrNotFound
	}
	delete(m.projects, id)
	return nil
}

func setupProjectsTestRouter(store ProjectStore, user *auth.SessionUser) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		if user != nil {
			c.Set(string(middleware.UserContextKey), user)
		}
		c.Next()
	})
	handler := NewProjectsHandler(store, zerolog.Nop())
	handler.RegisterRoutes(r.Group("/api/v1"))
	return r
}

func TestCreateProject(t *testing.T) {
	user := &auth.SessionUser{ID: uuid.New(), Username: "alice", Role: string(models.UserRoleUser)}

	t.Run("success", func(t *testing.T) {
		store := newMockProjectStore()
		r := setupProjectsTestRouter(store, user)

		body, _ := json.Marshal(CreateProjectRequest{Scenario: "general", Topic: "Cloud Migration"})
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("POST", "/api/v1/projects", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		r.ServeHTTP(w, req)

		if w.Code != http.StatusCreated {
			t.Fatalf("expected status 201, got %d: %s", w.Code, w.Body.String())
		}

		var project models.Project
		if err := json.Unmarshal(w.Body.Bytes(), &project); err != nil {
			t.Fatalf("failed to unmarshal: %v", err)
		}
		if project.Title != "Cloud Migration" {
			t.Errorf("expected title defaulted to topic, got %q", project.Title)
		}
		if project.Language != "zh" {
			t.Errorf("expected default language zh, got %q", project.Language)
		}
		if project.OwnerID != user.ID {
			t.Errorf("expected owner %s, got %s", user.ID, project.OwnerID)
		}
	})

	t.Run("missing topic", func(t *testing.T) {
		r := setupProjectsTestRouter(newMockProjectStore(), user)

		w := httptest.NewRecorder()
		req, _ := http.NewRequest("POST", "/api/v1/projects", bytes.NewReader([]byte(`{"scenario":"general"}`)))
		req.Header.Set("Content-Type", "application/json")
		r.ServeHTTP(w, req)

		if w.Code != http.StatusBadRequest {
			t.Fatalf("expected status 400, got %d", w.Code)
		}
	})

	t.Run("unauthenticated", func(t *testing.T) {
		r := setupProjectsTestRouter(newMockProjectStore(), nil)

		w := httptest.NewRecorder()
		req, _ := http.NewRequest("POST", "/api/v1/projects", bytes.NewReader([]byte(`{"scenario":"general","topic":"x"}`)))
		req.Header.Set("Content-Type", "application/json")
		r.ServeHTTP(w, req)

		if w.Code != http.StatusUnauthorized {
			t.Fatalf("expected status 401, got %d", w.Code)
		}
	})
}

func TestListProjectsPagination(t *testing.T) {
	user := &auth.SessionUser{ID: uuid.New(), Role: string(models.UserRoleUser)}
	project := models.NewProject(user.ID, "Deck", "general", "Topic", "", "en")
	r := setupProjectsTestRouter(newMockProjectStore(project), user)

	t.Run("defaults apply", func(t *testing.T) {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/api/v1/projects", nil)
		r.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
		}
		var resp struct {
			Limit  int `json:"limit"`
			Offset int `json:"offset"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to unmarshal: %v", err)
		}
		if resp.Limit != 20 || resp.Offset != 0 {
			t.Errorf("expected limit 20 offset 0, got %d/%d", resp.Limit, resp.Offset)
		}
	})

	for _, query := range []string{
		"offset=-1", "limit=-5", "limit=0", "limit=101", "limit=abc", "offset=abc",
	} {
		t.Run("rejects "+query, func(t *testing.T) {
			w := httptest.NewRecorder()
			req, _ := http.NewRequest("GET", "/api/v1/projects?"+query, nil)
			r.ServeHTTP(w, req)

			if w.Code != http.StatusBadRequest {
				t.Fatalf("expected status 400 for %q, got %d", query, w.Code)
			}
		})
	}
}

func TestGetProjectOwnership(t *testing.T) {
	owner := &auth.SessionUser{ID: uuid.New(), Role: string(models.UserRoleUser)}
	other := &auth.SessionUser{ID: uuid.New(), Role: string(models.UserRoleUser)}
	admin := &auth.SessionUser{ID: uuid.New(), Role: string(models.UserRoleAdmin)}

	project := models.NewProject(owner.ID, "Deck", "general", "Topic", "", "en")
	store := newMockProjectStore(project)

	t.Run("owner can read", func(t *testing.T) {
		r := setupProjectsTestRouter(store, owner)
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/api/v1/projects/"+project.ID.String(), nil)
		r.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", w.Code)
		}
	})

	t.Run("other user gets 404", func(t *testing.T) {
		r := setupProjectsTestRouter(store, other)
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/api/v1/projects/"+project.ID.String(), nil)
		r.ServeHTTP(w, req)

		if w.Code != http.StatusNotFound {
			t.Fatalf("expected status 404, got %d", w.Code)
		}
	})

	t.Run("admin can read any", func(t *testing.T) {
		r := setupProjectsTestRouter(store, admin)
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/api/v1/projects/"+project.ID.String(), nil)
		r.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", w.Code)
		}
	})

	t.Run("invalid id", func(t *testing.T) {
		r := setupProjectsTestRouter(store, owner)
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/api/v1/projects/not-a-uuid", nil)
		r.ServeHTTP(w, req)

		if w.Code != http.StatusBadRequest {
			t.Fatalf("expected status 400, got %d", w.Code)
		}
	})
}

func TestUpdateProjectSnapshotsOutline(t *testing.T) {
	user := &auth.SessionUser{ID: uuid.New(), Role: string(models.UserRoleUser)}
	project := models.NewProject(user.ID, "Deck", "general", "Topic", "", "en")
	project.Outline = &models.Outline{
		Title:  "Old",
		Slides: []models.SlideContent{{Title: "one"}},
	}
	store := newMockProjectStore(project)
	r := setupProjectsTestRouter(store, user)

	body, _ := json.Marshal(UpdateProjectRequest{
		Outline: &models.Outline{Title: "New", Slides: []models.SlideContent{{Title: "two"}}},
	})
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("PUT", "/api/v1/projects/"+project.ID.String(), bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	updated := store.projects[project.ID]
	if updated.Outline.Title != "New" {
		t.Errorf("expected outline replaced, got %q", updated.Outline.Title)
	}
	if len(updated.Versions) != 1 {
		t.Fatalf("expected 1 snapshot version, got %d", len(updated.Versions))
	}
	if updated.Versions[0].Outline.Title != "Old" {
		t.Errorf("expected snapshot of previous outline, got %q", updated.Versions[0].Outline.Title)
	}
}

func TestUpdateProjectRejectsEmptyOutline(t *testing.T) {
	user := &auth.SessionUser{ID: uuid.New(), Role: string(models.UserRoleUser)}
	project := models.NewProject(user.ID, "Deck", "general", "Topic", "", "en")
	store := newMockProjectStore(project)
	r := setupProjectsTestRouter(store, user)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("PUT", "/api/v1/projects/"+project.ID.String(),
		bytes.NewReader([]byte(`{"outline":{"title":"x","slides":[]}}`)))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", w.Code)
	}
}

func TestDeleteProject(t *testing.T) {
	user := &auth.SessionUser{ID: uuid.New(), Role: string(models.UserRoleUser)}
	project := models.NewProject(user.ID, "Deck", "general", "Topic", "", "en")
	store := newMockProjectStore(project)
	r := setupProjectsTestRouter(store, user)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("DELETE", "/api/v1/projects/"+project.ID.String(), nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	if _, ok := store.projects[project.ID]; ok {
		t.Error("expected project removed from store")
	}

	// Deleting again reports not found
	w = httptest.NewRecorder()
	req, _ = http.NewRequest("DELETE", "/api/v1/projects/"+project.ID.String(), nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", w.Code)
	}
}

func TestSelectTemplate(t *testing.T) {
	user := &auth.SessionUser{ID: uuid.New(), Role: string(models.UserRoleUser)}

	t.Run("global mode pins template", func(t *testing.T) {
		project := models.NewProject(user.ID, "Deck", "general", "Topic", "", "en")
		r := setupProjectsTestRouter(newMockProjectStore(project), user)

		w := httptest.NewRecorder()
		req, _ := http.NewRequest("PUT", "/api/v1/projects/"+project.ID.String(),
			bytes.NewReader([]byte(`{"template_mode":"global","template_id":3}`)))
		req.Header.Set("Content-Type", "application/json")
		r.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
		}
		id, ok := project.SelectedTemplateID()
		if !ok || id != 3 {
			t.Errorf("expected selected template 3, got %d (%v)", id, ok)
		}
	})

	t.Run("free mode clears selection", func(t *testing.T) {
		project := models.NewProject(user.ID, "Deck", "general", "Topic", "", "en")
		project.SetMetadata("selected_template_id", int64(3))
		r := setupProjectsTestRouter(newMockProjectStore(project), user)

		w := httptest.NewRecorder()
		req, _ := http.NewRequest("PUT", "/api/v1/projects/"+project.ID.String(),
			bytes.NewReader([]byte(`{"template_mode":"free"}`)))
		req.Header.Set("Content-Type", "application/json")
		r.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", w.Code)
		}
		if _, ok := project.SelectedTemplateID(); ok {
			t.Error("expected selection cleared in free mode")
		}
		if project.Metadata["template_mode"] != "free" {
			t.Errorf("expected free mode recorded, got %v", project.Metadata["template_mode"])
		}
	})

	t.Run("unknown mode rejected", func(t *testing.T) {
		project := models.NewProject(user.ID, "Deck", "general", "Topic", "", "en")
		r := setupProjectsTestRouter(newMockProjectStore(project), user)

		w := httptest.NewRecorder()
		req, _ := http.NewRequest("PUT", "/api/v1/projects/"+project.ID.String(),
			bytes.NewReader([]byte(`{"template_mode":"fancy"}`)))
		req.Header.Set("Content-Type", "application/json")
		r.ServeHTTP(w, req)

		if w.Code != http.StatusBadRequest {
			t.Fatalf("expected status 400, got %d", w.Code)
		}
	})
}

func uploadRequest(t *testing.T, url, filename, content string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("CreateFormFile failed: %v", err)
	}
	if _, err := part.Write([]byte(content)); err != nil {
		t.Fatalf("write part failed: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close writer failed: %v", err)
	}
	req, _ := http.NewRequest("POST", url, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestUploadSourceDocument(t *testing.T) {
	user := &auth.SessionUser{ID: uuid.New(), Role: string(models.UserRoleUser)}

	t.Run("markdown appended to requirements", func(t *testing.T) {
		project := models.NewProject(user.ID, "Deck", "general", "Topic", "Keep it short.", "en")
		r := setupProjectsTestRouter(newMockProjectStore(project), user)

		w := httptest.NewRecorder()
		req := uploadRequest(t, "/api/v1/projects/"+project.ID.String()+"/upload", "notes.md", "# Background\nGraphs everywhere.")
		r.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
		}
		if !strings.Contains(project.Requirements, "Keep it short.") ||
			!strings.Contains(project.Requirements, "Graphs everywhere.") {
			t.Errorf("expected requirements to keep both texts, got %q", project.Requirements)
		}
		if project.Metadata["source_file"] != "notes.md" {
			t.Errorf("expected source_file recorded, got %v", project.Metadata["source_file"])
		}
	})

	t.Run("unsupported extension rejected", func(t *testing.T) {
		project := models.NewProject(user.ID, "Deck", "general", "Topic", "", "en")
		r := setupProjectsTestRouter(newMockProjectStore(project), user)

		w := httptest.NewRecorder()
		req := uploadRequest(t, "/api/v1/projects/"+project.ID.String()+"/upload", "deck.pptx", "binary")
		r.ServeHTTP(w, req)

		if w.Code != http.StatusUnsupportedMediaType {
			t.Fatalf("expected status 415, got %d", w.Code)
		}
	})

	t.Run("empty file rejected", func(t *testing.T) {
		project := models.NewProject(user.ID, "Deck", "general", "Topic", "", "en")
		r := setupProjectsTestRouter(newMockProjectStore(project), user)

		w := httptest.NewRecorder()
		req := uploadRequest(t, "/api/v1/projects/"+project.ID.String()+"/upload", "notes.txt", "   \n")
		r.ServeHTTP(w, req)

		if w.Code != http.StatusBadRequest {
			t.Fatalf("expected status 400, got %d", w.Code)
		}
	})
}
