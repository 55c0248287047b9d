package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jochuuuu/reldb/internal/ratelimit"
)

// RequestIDHeader is the response header carrying each request's
// correlation id.
const RequestIDHeader = "X-Request-Id"

// RequestIDMiddleware mints a uuid per request (or reuses one supplied by
// the caller) so REST responses and daemon logs can be correlated; record
// ids inside the engine stay the spec's int32 slot indices and never touch
// this value.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.New().String()
		}
		c.Set("request_id", id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

// =============================================================================
// RATE LIMIT MIDDLEWARE
// =============================================================================

// RateLimitMiddleware returns middleware that rate-limits requests per
// remote address using the provided limiter.
func RateLimitMiddleware(limiter *ratelimit.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil {
			c.Next()
			return
		}

		result := limiter.Allow(c.ClientIP())
		if !result.Allowed {
			c.Header("Retry-After", "1")
			TooManyRequestsError(c, "rate limit exceeded, retry shortly")
			c.Abort()
			return
		}

		c.Next()
	}
}

// =============================================================================
// BODY SIZE MIDDLEWARE
// =============================================================================

// MaxBodySizeMiddleware returns middleware that limits request body size.
func MaxBodySizeMiddleware(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Body != nil && c.Request.ContentLength > maxBytes {
			PayloadTooLargeError(c, fmt.Sprintf("request body too large, maximum %d bytes", maxBytes))
			c.Abort()
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// DefaultBodyLimit is the maximum accepted size, in bytes, of a SQL batch
// request body.
const DefaultBodyLimit = 1 * 1024 * 1024 // 1MB
