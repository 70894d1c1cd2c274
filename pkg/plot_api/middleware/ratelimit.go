package middleware

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gplot-io/gplot/pkg/security"
	"github.com/teris-io/shortid"
)

const ctxKeyRequestID = "gplot_request_id"

// RequestID assigns every request a short correlation id, echoed in the
// response and attached to rate-limit audit events.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = shortid.MustGenerate()
		}
		c.Set(ctxKeyRequestID, id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

// RequestIDFrom returns the correlation id assigned by RequestID.
func RequestIDFrom(c *gin.Context) string {
	return c.GetString(ctxKeyRequestID)
}

// RateLimit checks the caller against the limiter before the handler
// runs. The client identity is the authenticated group when present so a
// tenant shares one budget across addresses; anonymous callers are keyed
// by client IP. Rejections carry a Retry-After header.
func RateLimit(limiter *security.RateLimiter, auditor *security.Auditor) gin.HandlerFunc {
	return func(c *gin.Context) {
		clientID := GroupFrom(c)
		if clientID == "" {
			clientID = c.ClientIP()
		}
		endpoint := c.FullPath()

		err := limiter.CheckLimit(clientID, endpoint, 1)
		if err == nil {
			c.Next()
			return
		}

		var rle *security.RateLimitError
		if errors.As(err, &rle) {
			auditor.LogRateLimit(clientID, endpoint, rle.Limit, rle.Window)
			c.Header("Retry-After", fmt.Sprintf("%.0f", rle.RetryAfter+0.5))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"title":      "Too Many Requests",
				"status":     http.StatusTooManyRequests,
				"retryAfter": rle.RetryAfter,
				"requestId":  RequestIDFrom(c),
			})
			return
		}

		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"title":  "Internal Server Error",
			"status": http.StatusInternalServerError,
		})
	}
}
