package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/landppt/landppt/internal/models"
)

// AuditStore defines the interface for audit log persistence operations.
type AuditStore interface {
	CreateAuditLog(ctx context.Context, entry *models.AuditLog) error
}

// AuditMiddleware returns a Gin middleware that records mutating API calls.
// Reads are not audited.
func AuditMiddleware(store AuditStore, logger zerolog.Logger) gin.HandlerFunc {
	log := logger.With().Str("component", "audit_middleware").Logger()

	return func(c *gin.Context) {
		// Skip audit log endpoints to avoid recursion
		if strings.HasPrefix(c.Request.URL.Path, "/api/v1/audit-logs") {
			c.Next()
			return
		}

		user := GetUser(c)

		c.Next()

		// Only audit authenticated mutating requests
		if user == nil {
			return
		}
		action := mapMethodToAction(c.Request.Method)
		if action == "" {
			return
		}

		resourceType, resourceID := parseResourceFromPath(c.Request.URL.Path)
		if resourceType == "" {
			return
		}

		result := models.AuditResultSuccess
		if c.Writer.Status() >= 400 {
			result = models.AuditResultFailure
		}

		entry := models.NewAuditLog(action, resourceType, result).
			WithUser(user.ID).
			WithIP(c.ClientIP())
		if resourceID != "" {
			entry.WithResource(resourceID)
		}

		// Save asynchronously to not block the response
		go func(ctx context.Context, entry *models.AuditLog) {
			if err := store.CreateAuditLog(ctx, entry); err != nil {
				log.Error().Err(err).
					Str("action", string(entry.Action)).
					Str("resource_type", entry.ResourceType).
					Msg("failed to create audit log")
			}
		}(context.Background(), entry)
	}
}

// mapMethodToAction maps HTTP methods to audit actions. Reads return "".
func mapMethodToAction(method string) models.AuditAction {
	switch method {
	case http.MethodPost:
		return models.AuditActionCreate
	case http.MethodPut, http.MethodPatch:
		return models.AuditActionUpdate
	case http.MethodDelete:
		return models.AuditActionDelete
	default:
		return ""
	}
}

// parseResourceFromPath extracts the resource type and ID from the API path.
func parseResourceFromPath(path string) (string, string) {
	path = strings.TrimPrefix(path, "/api/v1/")
	path = strings.TrimPrefix(path, "/")

	parts := strings.Split(path, "/")
	if len(parts) == 0 || parts[0] == "" {
		return "", ""
	}

	resourceType := parts[0]
	var resourceID string
	if len(parts) >= 2 {
		resourceID = parts[1]
	}

	switch resourceType {
	case "projects":
		return "project", resourceID
	case "templates":
		return "template", resourceID
	case "jobs":
		return "job", resourceID
	case "research":
		return "research_report", resourceID
	case "ai-configs":
		return "ai_config", resourceID
	case "users":
		return "user", resourceID
	case "auth":
		return "session", ""
	default:
		return resourceType, resourceID
	}
}
