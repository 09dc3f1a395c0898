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

type mockAdminStore struct {
	users        map[uuid.UUID]*models.User
	auditEntries []*models.AuditLog
	revoked      []uuid.UUID
}

func newMockAdminStore(users ...*models.User) *mockAdminStore {
	m := &mockAdminStore{users: make(map[uuid.UUID]*models.User)}
	for _, u := range users {
		m.users[u.ID] = u
	}
	return m
}

func (m *mockAdminStore) ListUsers(_ context.Context) ([]*models.User, error) {
	var out []*models.User
	for _, u := range m.users {
		out = append(out, u)
	}
	return out, nil
}

func (m *mockAdminStore) GetUserByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	if u, ok := m.users[id]; ok {
		return u, nil
	}
	return nil, db.ErrNotFound
}

func (m *mockAdminStore) CreateUser(_ context.Context, user *models.User) error {
	for _, u := range m.users {
		if u.Username == user.Username {
			return db.ErrDuplicate
		}
	}
	m.users[user.ID] = user
	return nil
}

func (m *mockAdminStore) UpdateUser(_ context.Context, user *models.User) error {
	m.users[user.ID] = user
	return nil
}

func (m *mockAdminStore) DeleteUser(_ context.Context, id uuid.UUID) error {
	if _, ok := m.users[id]; !ok {
		return db.ErrNotFound
	}
	delete(m.users, id)
	return nil
}

func (m *mockAdminStore) RevokeAllUserSessions(_ context.Context, userID uuid.UUID, _ *uuid.UUID) (int64, error) {
	m.revoked = append(m.revoked, userID)
	return 1, nil
}

func (m *mockAdminStore) ListAuditLogs(_ context.Context, userID *uuid.UUID, _ int) ([]*models.AuditLog, error) {
	if userID == nil {
		return m.auditEntries, nil
	}
	var out []*models.AuditLog
	for _, e := range m.auditEntries {
		if e.UserID != nil && *e.UserID == *userID {
			out = append(out, e)
		}
	}
	return out, nil
}

func setupAdminTestRouter(store AdminStore, user *auth.SessionUser) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		if user != nil {
			c.Set(string(middleware.UserContextKey), user)
		}
		c.Next()
	})
	handler := NewAdminHandler(store, zerolog.Nop())
	handler.RegisterRoutes(r.Group("/api/v1"))
	return r
}

func TestCreateUserEndpoint(t *testing.T) {
	admin := &auth.SessionUser{ID: uuid.New(), Role: string(models.UserRoleAdmin)}

	t.Run("success", func(t *testing.T) {
		store := newMockAdminStore()
		r := setupAdminTestRouter(store, admin)

		body, _ := json.Marshal(CreateUserRequest{Username: "bob", Password: "s3cret-pass"})
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("POST", "/api/v1/users", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		r.ServeHTTP(w, req)

		if w.Code != http.StatusCreated {
			t.Fatalf("expected status 201, got %d: %s", w.Code, w.Body.String())
		}
		var created models.User
		if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
			t.Fatalf("failed to unmarshal: %v", err)
		}
		if created.Role != models.UserRoleUser {
			t.Errorf("expected default role user, got %q", created.Role)
		}
		if !created.MustChangePassword {
			t.Error("expected new user to require password change")
		}
	})

	t.Run("duplicate username", func(t *testing.T) {
		existing := models.NewUser("bob", "", "", models.UserRoleUser)
		store := newMockAdminStore(existing)
		r := setupAdminTestRouter(store, admin)

		body, _ := json.Marshal(CreateUserRequest{Username: "bob", Password: "s3cret-pass"})
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("POST", "/api/v1/users", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		r.ServeHTTP(w, req)

		if w.Code != http.StatusConflict {
			t.Fatalf("expected status 409, got %d", w.Code)
		}
	})

	t.Run("weak password", func(t *testing.T) {
		r := setupAdminTestRouter(newMockAdminStore(), admin)

		body, _ := json.Marshal(CreateUserRequest{Username: "bob", Password: "short"})
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("POST", "/api/v1/users", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		r.ServeHTTP(w, req)

		if w.Code != http.StatusBadRequest {
			t.Fatalf("expected status 400, got %d", w.Code)
		}
	})
}

func TestUpdateUserGuards(t *testing.T) {
	adminUser := models.NewUser("root", "", "", models.UserRoleAdmin)
	admin := &auth.SessionUser{ID: adminUser.ID, Role: string(models.UserRoleAdmin)}
	target := models.NewUser("bob", "", "", models.UserRoleUser)

	t.Run("cannot demote self", func(t *testing.T) {
		store := newMockAdminStore(adminUser, target)
		r := setupAdminTestRouter(store, admin)

		w := httptest.NewRecorder()
		req, _ := http.NewRequest("PUT", "/api/v1/users/"+adminUser.ID.String(),
			bytes.NewReader([]byte(`{"role":"user"}`)))
		req.Header.Set("Content-Type", "application/json")
		r.ServeHTTP(w, req)

		if w.Code != http.StatusConflict {
			t.Fatalf("expected status 409, got %d", w.Code)
		}
	})

	t.Run("deactivation revokes sessions", func(t *testing.T) {
		store := newMockAdminStore(adminUser, target)
		r := setupAdminTestRouter(store, admin)

		w := httptest.NewRecorder()
		req, _ := http.NewRequest("PUT", "/api/v1/users/"+target.ID.String(),
			bytes.NewReader([]byte(`{"active":false}`)))
		req.Header.Set("Content-Type", "application/json")
		r.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
		}
		if len(store.revoked) != 1 || store.revoked[0] != target.ID {
			t.Errorf("expected sessions revoked for %s, got %v", target.ID, store.revoked)
		}
	})

	t.Run("cannot delete self", func(t *testing.T) {
		store := newMockAdminStore(adminUser)
		r := setupAdminTestRouter(store, admin)

		w := httptest.NewRecorder()
		req, _ := http.NewRequest("DELETE", "/api/v1/users/"+adminUser.ID.String(), nil)
		r.ServeHTTP(w, req)

		if w.Code != http.StatusConflict {
			t.Fatalf("expected status 409, got %d", w.Code)
		}
	})
}

func TestListAuditLogsFilter(t *testing.T) {
	admin := &auth.SessionUser{ID: uuid.New(), Role: string(models.UserRoleAdmin)}
	actorID := uuid.New()
	entry := models.NewAuditLog("create", "project", "success").WithUser(actorID)
	other := models.NewAuditLog("delete", "template", "success")
	store := newMockAdminStore()
	store.auditEntries = []*models.AuditLog{entry, other}
	r := setupAdminTestRouter(store, admin)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/api/v1/audit-logs?user_id="+actorID.String(), nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	var resp struct {
		Entries []models.AuditLog `json:"entries"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}
	if len(resp.Entries) != 1 || resp.Entries[0].Action != "create" {
		t.Errorf("expected filtered entries, got %+v", resp.Entries)
	}
}
