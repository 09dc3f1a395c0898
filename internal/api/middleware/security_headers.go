package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
)

// cspAPI is a strict Content-Security-Policy for API routes that return JSON.
const cspAPI = "default-src 'none'; frame-ancestors 'none'"

// cspFrontend is the Content-Security-Policy for routes that serve HTML:
// the web UI, Swagger docs, and slide previews. Slides are self-contained
// HTML documents with inline styles, so 'unsafe-inline' stays for now.
const cspFrontend = "default-src 'self'; script-src 'self' 'unsafe-inline'; style-src 'self' 'unsafe-inline'; img-src 'self' data: https:; font-src 'self' data:; frame-ancestors 'self'"

// SecurityHeaders returns a middleware that sets security-related HTTP response headers.
func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Frame-Options", "SAMEORIGIN")
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Header("Permissions-Policy", "geolocation=(), microphone=(), camera=()")

		// HSTS - only when serving TLS
		if c.Request.TLS != nil {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		if isAPIRoute(c.Request.URL.Path) {
			c.Header("Content-Security-Policy", cspAPI)
		} else {
			c.Header("Content-Security-Policy", cspFrontend)
		}

		c.Next()
	}
}

// isAPIRoute returns true for paths that only serve JSON responses.
func isAPIRoute(path string) bool {
	return strings.HasPrefix(path, "/api/v1/") ||
		strings.HasPrefix(path, "/auth/")
}
