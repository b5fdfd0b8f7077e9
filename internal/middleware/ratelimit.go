package middleware

import (
	"fmt"
	"log"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tb-api-sdk/gateway/internal/apierr"
	"github.com/tb-api-sdk/gateway/internal/ratelimit"
)

// Paths that must stay reachable for probes even when a client is
// throttled.
var rateLimitExempt = map[string]bool{
	"/":              true,
	"/api/v1/health": true,
}

// RateLimit runs the admission check before any business logic. The
// limiter owns all window state; this layer only translates its decision
// into headers and the normalized 429 body.
func RateLimit(limiter ratelimit.Limiter, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if rateLimitExempt[c.Request.URL.Path] {
			c.Next()
			return
		}

		identity := ClientIdentity(c)

		decision, err := limiter.Admit(c.Request.Context(), identity)
		if err != nil {
			// A broken limiter backend must not take the gateway down
			// with it; admit and flag the check failure.
			log.Printf("[%s] rate limit check failed: %v", c.GetString("request_id"), err)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", fmt.Sprintf("%d", decision.Limit))
		c.Header("X-RateLimit-Remaining", fmt.Sprintf("%d", decision.Remaining))
		c.Header("X-RateLimit-Reset", fmt.Sprintf("%d", decision.ResetAt.Unix()))

		if !decision.Allowed {
			retryAfter := int(decision.RetryAfter.Seconds())
			if retryAfter < 0 {
				retryAfter = 0
			}

			c.Header("Retry-After", fmt.Sprintf("%d", retryAfter))

			e := apierr.RateLimited(decision.Limit, window, decision.RetryAfter)
			c.JSON(e.Status, e)
			c.Abort()
			return
		}

		c.Next()
	}
}
