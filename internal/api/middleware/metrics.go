package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/landppt/landppt/internal/metrics"
)

// Metrics returns a middleware that records request latency per route.
func Metrics(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			// Unmatched routes share one label to keep cardinality bounded.
			route = "unmatched"
		}

		m.HTTPRequestDuration.
			WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}
