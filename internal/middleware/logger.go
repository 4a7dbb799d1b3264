package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"schoolcomms/pkg/logger"
)

// RequestLogger logs each HTTP request with latency and status through
// the shared structured logger. Health checks are skipped.
func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	skip := map[string]struct{}{
		"/health":      {},
		"/favicon.ico": {},
	}

	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if _, ok := skip[path]; ok {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()
		latency := time.Since(start)

		status := c.Writer.Status()
		tenant := c.GetString(string(TenantIDKey))

		entry := log
		if tenant != "" {
			entry = log.WithField("tenant_id", tenant)
		}

		switch {
		case status >= 500:
			entry.Error("%s %s -> %d (%s) %s", c.Request.Method, path, status, latency, c.Errors.String())
		case status >= 400:
			entry.Warn("%s %s -> %d (%s)", c.Request.Method, path, status, latency)
		default:
			entry.Info("%s %s -> %d (%s)", c.Request.Method, path, status, latency)
		}
	}
}
