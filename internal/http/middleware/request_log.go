package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/groundwork-backend/internal/platform/ctxutil"
	"github.com/yungbote/groundwork-backend/internal/platform/logger"
)

// RequestLogger writes one line per request after the handler chain finishes. 5xx log at
// error, 4xx at warn.
func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if log == nil {
			return
		}

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		status := c.Writer.Status()
		fields := append([]any{
			"method", c.Request.Method,
			"route", route,
			"status", status,
			"duration_ms", time.Since(start).Milliseconds(),
		}, ctxutil.LogFields(c.Request.Context())...)
		if len(c.Errors) > 0 {
			fields = append(fields, "errors", c.Errors.String())
		}

		logAt := log.Info
		switch {
		case status >= 500:
			logAt = log.Error
		case status >= 400:
			logAt = log.Warn
		}
		logAt("http request", fields...)
	}
}
