package api

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// maxBodyBytes bounds request bodies, mirroring the teacher's server-wide
// BodyLimit (pkg/api/server.go's middleware.BodyLimit(2MB)); this core's
// payloads (page-state patches, chat messages) are smaller, so the limit
// is tighter.
const maxBodyBytes = 256 * 1024

// corsConfig builds the gin-contrib/cors middleware, the sibling package
// of gin-contrib/sse used for the SSE stream (§6, §9 EXTERNAL
// INTERFACES / AMBIENT STACK).
func corsConfig(origins []string) gin.HandlerFunc {
	cfg := cors.DefaultConfig()
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	cfg.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	cfg.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "X-User-Id"}
	cfg.MaxAge = 12 * time.Hour
	return cors.New(cfg)
}

// securityHeaders sets the same standard response headers as the
// teacher's securityHeaders middleware (pkg/api/middleware.go),
// translated from an echo.MiddlewareFunc to a gin.HandlerFunc.
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		h.Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")
		c.Next()
	}
}

func bodyLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes)
		c.Next()
	}
}
