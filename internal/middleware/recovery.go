package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/health-records/pkg/httputil"
	"github.com/jwalitptl/health-records/pkg/logger"
)

// Recovery turns a panic into a 500 and logs the stack.
func Recovery(log *logger.Logger) gin.HandlerFunc {
	log = log.With("recovery")

	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				log.Error(fmt.Errorf("panic: %v", rec), "Request panic recovered",
					"stack", string(debug.Stack()),
					"method", c.Request.Method,
					"path", c.Request.URL.Path,
					"client_ip", c.ClientIP(),
					"request_id", c.GetString(ContextRequestID),
				)
				httputil.RespondWithMessage(c, http.StatusInternalServerError, "internal server error")
			}
		}()
		c.Next()
	}
}
