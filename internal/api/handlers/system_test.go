package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

type mockPinger struct {
	err error
}

func (m *mockPinger) Ping(context.Context) error { return m.err }

func setupSystemTestRouter(database, cache HealthPinger) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handler := NewSystemHandler("1.2.3", "abc123", "2026-01-01", database, cache, nil, zerolog.Nop())
	handler.RegisterPublicRoutes(r)
	return r
}

func TestHealthEndpoint(t *testing.T) {
	t.Run("all services up", func(t *testing.T) {
		r := setupSystemTestRouter(&mockPinger{}, &mockPinger{})
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/health", nil)
		r.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", w.Code)
		}
		var resp map[string]any
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to unmarshal: %v", err)
		}
		if resp["status"] != "ok" {
			t.Errorf("expected status ok, got %v", resp["status"])
		}
	})

	t.Run("database down", func(t *testing.T) {
		r := setupSystemTestRouter(&mockPinger{err: errors.New("connection refused")}, nil)
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/health", nil)
		r.ServeHTTP(w, req)

		if w.Code != http.StatusServiceUnavailable {
			t.Fatalf("expected status 503, got %d", w.Code)
		}
	})

	t.Run("cache down degrades without failing", func(t *testing.T) {
		r := setupSystemTestRouter(&mockPinger{}, &mockPinger{err: errors.New("redis down")})
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/health", nil)
		r.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", w.Code)
		}
		var resp map[string]any
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to unmarshal: %v", err)
		}
		if resp["status"] != "degraded" {
			t.Errorf("expected status degraded, got %v", resp["status"])
		}
	})
}

func TestVersionEndpoint(t *testing.T) {
	r := setupSystemTestRouter(&mockPinger{}, nil)
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/version", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	var resp map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}
	if resp["version"] != "1.2.3" || resp["commit"] != "abc123" {
		t.Errorf("unexpected version info %v", resp)
	}
}
