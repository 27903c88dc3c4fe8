package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/health-records/pkg/logger"
)

// Logger logs one line per request. Bodies are never logged; they carry
// patient data.
func Logger(log *logger.Logger) gin.HandlerFunc {
	zl := log.With("http").Zerolog()

	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		status := c.Writer.Status()
		event := zl.Info()
		msg := "Request processed"
		switch {
		case status >= 500:
			event = zl.Error()
			msg = "Server error"
		case status >= 400:
			event = zl.Warn()
			msg = "Client error"
		}

		if len(c.Errors) > 0 {
			event = event.Str("errors", c.Errors.String())
		}

		event.
			Str("request_id", c.GetString(ContextRequestID)).
			Str("method", c.Request.Method).
			Str("path", path).
			Str("route", c.FullPath()).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Str("user_agent", c.Request.UserAgent()).
			Msg(msg)
	}
}
