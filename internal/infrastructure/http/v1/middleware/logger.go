package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"audience/pkg/logger"
)

// Logger middleware logs HTTP requests with timing and status.
// Probe and scrape paths are logged at debug level.
func Logger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		fields := []any{
			"method", c.Request.Method,
			"path", path,
			"query", query,
			"status", c.Writer.Status(),
			"latency_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
			"user_agent", c.Request.UserAgent(),
		}
		if errs := c.Errors.String(); errs != "" {
			fields = append(fields, "error", errs)
		}

		l := log.WithContext(c.Request.Context())
		if strings.HasPrefix(path, "/health") || path == "/metrics" {
			l.Debugw("http request", fields...)
			return
		}
		l.Infow("http request", fields...)
	}
}
