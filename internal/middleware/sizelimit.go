package middleware

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/health-records/pkg/httputil"
)

type SizeLimitConfig struct {
	MaxBodySize int64
	// SkipRoutes are route patterns exempt from the limit, e.g. uploads that
	// enforce their own.
	SkipRoutes []string
}

func DefaultSizeLimitConfig() SizeLimitConfig {
	return SizeLimitConfig{
		MaxBodySize: 1 << 20, // 1MB
	}
}

// SizeLimit rejects oversized bodies up front and caps the reader for
// chunked requests that do not declare a length.
func SizeLimit(config SizeLimitConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		route := c.FullPath()
		for _, skip := range config.SkipRoutes {
			if route == skip {
				c.Next()
				return
			}
		}

		if c.Request.ContentLength > config.MaxBodySize {
			httputil.RespondWithMessage(c, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("request body exceeds %d bytes", config.MaxBodySize))
			return
		}
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, config.MaxBodySize)
		}

		c.Next()
	}
}
