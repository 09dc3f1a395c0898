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

type mockAuthStore struct {
	users     map[uuid.UUID]*models.User
	sessions  []*models.UserSession
	passwords map[uuid.UUID]string
	revoked   int
}

func newMockAuthStore(users ...*models.User) *mockAuthStore {
	m := &mockAuthStore{
		users:     make(map[uuid.UUID]*models.User),
		passwords: make(map[uuid.UUID]string),
	}
	for _, u := range users {
		m.users[u.ID] = u
	}
	return m
}

func (m *mockAuthStore) GetUserByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	if u, ok := m.users[id]; ok {
		return u, nil
	}
	return nil, db.ErrNotFound
}

func (m *mockAuthStore) GetUserByUsername(_ context.Context, username string) (*models.User, error) {
	for _, u := range m.users {
		if u.Username == username {
			return u, nil
		}
	}
	return nil, db.ErrNotFound
}

func (m *mockAuthStore) GetUserByOIDCSubject(_ context.Context, subject string) (*models.User, error) {
	for _, u := range m.users {
		if u.OIDCSubject == subject {
			return u, nil
		}
	}
	return nil, db.ErrNotFound
}

func (m *mockAuthStore) CreateUser(_ context.Context, user *models.User) error {
	m.users[user.ID] = user
	return nil
}

func (m *mockAuthStore) CountUsers(_ context.Context) (int64, error) {
	return int64(len(m.users)), nil
}

func (m *mockAuthStore) UpdateUser(_ context.Context, user *models.User) error {
	m.users[user.ID] = user
	return nil
}

func (m *mockAuthStore) UpdateUserPassword(_ context.Context, id uuid.UUID, hash string) error {
	m.passwords[id] = hash
	return nil
}

func (m *mockAuthStore) CreateUserSession(_ context.Context, session *models.UserSession) error {
	m.sessions = append(m.sessions, session)
	return nil
}

func (m *mockAuthStore) ListActiveUserSessions(_ context.Context, _ uuid.UUID) ([]*models.UserSession, error) {
	return m.sessions, nil
}

func (m *mockAuthStore) RevokeUserSession(_ context.Context, _, _ uuid.UUID) error {
	m.revoked++
	return nil
}

func (m *mockAuthStore) RevokeAllUserSessions(_ context.Context, _ uuid.UUID, _ *uuid.UUID) (int64, error) {
	m.revoked++
	return 1, nil
}

func newTestSessionStore(t *testing.T) *auth.SessionStore {
	t.Helper()
	cfg := auth.DefaultSessionConfig(bytes.Repeat([]byte("k"), 32), false)
	sessions, err := auth.NewSessionStore(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewSessionStore failed: %v", err)
	}
	return sessions
}

func setupAuthTestRouter(t *testing.T, store AuthStore, user *auth.SessionUser) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handler := NewAuthHandler(store, newTestSessionStore(t), nil, zerolog.Nop())
	handler.RegisterRoutes(r.Group("/auth"))

	protected := r.Group("/api/v1/auth")
	protected.Use(func(c *gin.Context) {
		if user != nil {
			c.Set(string(middleware.UserContextKey), user)
		}
		c.Next()
	})
	handler.RegisterProtectedRoutes(protected)
	return r
}

func passwordUser(t *testing.T, username, password string) *models.User {
	t.Helper()
	u := models.NewUser(username, "", "", models.UserRoleUser)
	hash, err := auth.HashPassword(password)
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}
	u.PasswordHash = hash
	return u
}

func TestLogin(t *testing.T) {
	t.Run("valid credentials", func(t *testing.T) {
		store := newMockAuthStore(passwordUser(t, "alice", "s3cret-pass"))
		r := setupAuthTestRouter(t, store, nil)

		body, _ := json.Marshal(LoginRequest{Username: "alice", Password: "s3cret-pass"})
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("POST", "/auth/login", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		r.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
		}
		if len(w.Result().Cookies()) == 0 {
			t.Error("expected a session cookie to be set")
		}
		if len(store.sessions) != 1 {
			t.Errorf("expected 1 session record, got %d", len(store.sessions))
		}
	})

	t.Run("wrong password", func(t *testing.T) {
		store := newMockAuthStore(passwordUser(t, "alice", "s3cret-pass"))
		r := setupAuthTestRouter(t, store, nil)

		body, _ := json.Marshal(LoginRequest{Username: "alice", Password: "wrong-pass1"})
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("POST", "/auth/login", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		r.ServeHTTP(w, req)

		if w.Code != http.StatusUnauthorized {
			t.Fatalf("expected status 401, got %d", w.Code)
		}
	})

	t.Run("disabled account", func(t *testing.T) {
		u := passwordUser(t, "alice", "s3cret-pass")
		u.Active = false
		r := setupAuthTestRouter(t, newMockAuthStore(u), nil)

		body, _ := json.Marshal(LoginRequest{Username: "alice", Password: "s3cret-pass"})
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("POST", "/auth/login", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		r.ServeHTTP(w, req)

		if w.Code != http.StatusForbidden {
			t.Fatalf("expected status 403, got %d", w.Code)
		}
	})
}

func TestChangePassword(t *testing.T) {
	user := passwordUser(t, "alice", "s3cret-pass")
	sessionUser := &auth.SessionUser{ID: user.ID, Username: "alice", Role: string(user.Role)}

	t.Run("success revokes other sessions", func(t *testing.T) {
		store := newMockAuthStore(user)
		r := setupAuthTestRouter(t, store, sessionUser)

		body, _ := json.Marshal(ChangePasswordRequest{CurrentPassword: "s3cret-pass", NewPassword: "brand-new-pw1"})
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("POST", "/api/v1/auth/change-password", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		r.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
		}
		hash, ok := store.passwords[user.ID]
		if !ok {
			t.Fatal("expected password to be updated")
		}
		if !auth.VerifyPassword(hash, "brand-new-pw1") {
			t.Error("stored hash does not match the new password")
		}
		if store.revoked == 0 {
			t.Error("expected other sessions to be revoked")
		}
	})

	t.Run("wrong current password", func(t *testing.T) {
		store := newMockAuthStore(user)
		r := setupAuthTestRouter(t, store, sessionUser)

		body, _ := json.Marshal(ChangePasswordRequest{CurrentPassword: "wrong-pass1", NewPassword: "brand-new-pw1"})
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("POST", "/api/v1/auth/change-password", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		r.ServeHTTP(w, req)

		if w.Code != http.StatusUnauthorized {
			t.Fatalf("expected status 401, got %d", w.Code)
		}
	})

	t.Run("reused password rejected", func(t *testing.T) {
		store := newMockAuthStore(user)
		r := setupAuthTestRouter(t, store, sessionUser)

		body, _ := json.Marshal(ChangePasswordRequest{CurrentPassword: "s3cret-pass", NewPassword: "s3cret-pass"})
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("POST", "/api/v1/auth/change-password", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		r.ServeHTTP(w, req)

		if w.Code != http.StatusBadRequest {
			t.Fatalf("expected status 400, got %d", w.Code)
		}
	})
}
