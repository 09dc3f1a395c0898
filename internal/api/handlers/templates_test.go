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

type mockTemplateStore struct {
	templates map[int64]*models.MasterTemplate
	nextID    int64
}

func newMockTemplateStore(templates ...*models.MasterTemplate) *mockTemplateStore {
	m := &mockTemplateStore{templates: make(map[int64]*models.MasterTemplate), nextID: 1}
	for _, t := range templates {
		if t.ID == 0 {
			t.ID = m.nextID
		}
		if t.ID >= m.nextID {
			m.nextID = t.ID + 1
		}
		m.templates[t.ID] = t
	}
	return m
}

func (m *mockTemplateStore) CreateMasterTemplate(_ context.Context, t *models.MasterTemplate) error {
	t.ID = m.nextID
	m.nextID++
	m.templates[t.ID] = t
	return nil
}

func (m *mockTemplateStore) GetMasterTemplateByID(_ context.Context, id int64) (*models.MasterTemplate, error) {
	if t, ok := m.templates[id]; ok {
		return t, nil
	}
	return nil, db.ErrNotFound
}

func (m *mockTemplateStore) ListMasterTemplates(_ context.Context, activeOnly bool) ([]*models.MasterTemplate, error) {
	var out []*models.MasterTemplate
	for _, t := range m.templates {
		if activeOnly && !t.IsActive {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func (m *mockTemplateStore) UpdateMasterTemplate(_ context.Context, t *models.MasterTemplate) error {
	if _, ok := m.templates[t.ID]; !ok {
		return db.ErrNotFound
	}
	m.templates[t.ID] = t
	return nil
}

func (m *mockTemplateStore) SetDefaultMasterTemplate(_ context.Context, id int64) error {
	if _, ok := m.templates[id]; !ok {
		return db.ErrNotFound
	}
	for _, t := range m.templates {
		t.IsDefault = t.ID == id
	}
	return nil
}

func (m *mockTemplateStore) DeleteMasterTemplate(_ context.Context, id int64) error {
	if _, ok := m.templates[id]; !ok {
		return db.ErrNotFound
	}
	delete(m.templates, id)
	return nil
}

func setupTemplatesTestRouter(store TemplateStore, user *auth.SessionUser) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		if user != nil {
			c.Set(string(middleware.UserContextKey), user)
		}
		c.Next()
	})
	handler := NewTemplatesHandler(store, zerolog.Nop())
	handler.RegisterRoutes(r.Group("/api/v1"))
	return r
}

func TestListTemplatesFiltersInactive(t *testing.T) {
	active := models.NewMasterTemplate("Active", "", "<html/>", "system", nil)
	inactive := models.NewMasterTemplate("Old", "", "<html/>", "system", nil)
	inactive.IsActive = false
	store := newMockTemplateStore(active, inactive)
	user := &auth.SessionUser{ID: uuid.New(), Role: string(models.UserRoleUser)}
	r := setupTemplatesTestRouter(store, user)

	t.Run("default hides inactive", func(t *testing.T) {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/api/v1/templates", nil)
		r.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", w.Code)
		}
		var resp struct {
			Templates []models.MasterTemplate `json:"templates"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to unmarshal: %v", err)
		}
		if len(resp.Templates) != 1 || resp.Templates[0].Name != "Active" {
			t.Errorf("expected only active template, got %+v", resp.Templates)
		}
	})

	t.Run("all=true shows everything", func(t *testing.T) {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/api/v1/templates?all=true", nil)
		r.ServeHTTP(w, req)

		var resp struct {
			Templates []models.MasterTemplate `json:"templates"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to unmarshal: %v", err)
		}
		if len(resp.Templates) != 2 {
			t.Errorf("expected 2 templates, got %d", len(resp.Templates))
		}
	})
}

func TestCreateTemplateRequiresAdmin(t *testing.T) {
	store := newMockTemplateStore()
	body, _ := json.Marshal(TemplateRequest{Name: "Modern", HTMLTemplate: "<html/>"})

	t.Run("admin can create", func(t *testing.T) {
		admin := &auth.SessionUser{ID: uuid.New(), Username: "root", Role: string(models.UserRoleAdmin)}
		r := setupTemplatesTestRouter(store, admin)

		w := httptest.NewRecorder()
		req, _ := http.NewRequest("POST", "/api/v1/templates", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		r.ServeHTTP(w, req)

		if w.Code != http.StatusCreated {
			t.Fatalf("expected status 201, got %d: %s", w.Code, w.Body.String())
		}
		var created models.MasterTemplate
		if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
			t.Fatalf("failed to unmarshal: %v", err)
		}
		if created.CreatedBy != "root" {
			t.Errorf("expected created_by root, got %q", created.CreatedBy)
		}
	})

	t.Run("regular user gets 403", func(t *testing.T) {
		user := &auth.SessionUser{ID: uuid.New(), Role: string(models.UserRoleUser)}
		r := setupTemplatesTestRouter(store, user)

		w := httptest.NewRecorder()
		req, _ := http.NewRequest("POST", "/api/v1/templates", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		r.ServeHTTP(w, req)

		if w.Code != http.StatusForbidden {
			t.Fatalf("expected status 403, got %d", w.Code)
		}
	})
}

func TestDeleteTemplateProtectsDefault(t *testing.T) {
	def := models.NewMasterTemplate("Default", "", "<html/>", "system", nil)
	def.IsDefault = true
	other := models.NewMasterTemplate("Other", "", "<html/>", "system", nil)
	store := newMockTemplateStore(def, other)
	admin := &auth.SessionUser{ID: uuid.New(), Role: string(models.UserRoleAdmin)}
	r := setupTemplatesTestRouter(store, admin)

	t.Run("default is protected", func(t *testing.T) {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("DELETE", "/api/v1/templates/1", nil)
		r.ServeHTTP(w, req)

		if w.Code != http.StatusConflict {
			t.Fatalf("expected status 409, got %d", w.Code)
		}
	})

	t.Run("non-default can be deleted", func(t *testing.T) {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("DELETE", "/api/v1/templates/2", nil)
		r.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", w.Code)
		}
		if _, ok := store.templates[2]; ok {
			t.Error("expected template removed")
		}
	})
}
