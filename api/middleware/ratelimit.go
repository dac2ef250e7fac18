package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/newsingest/config"
	"github.com/use-agent/newsingest/models"
	"github.com/use-agent/newsingest/ratelimit"
)

// idleTTL is how long a client's bucket survives without requests.
const idleTTL = time.Hour

// RateLimit returns per-client-IP token-bucket rate limiting middleware.
// Buckets live in a ratelimit.Registry so idle clients are evicted.
func RateLimit(cfg config.RateLimitConfig) gin.HandlerFunc {
	limit := ratelimit.Limit{RequestsPerSecond: cfg.RequestsPerSecond, Burst: cfg.Burst}
	reg := ratelimit.NewRegistry(limit)
	reg.StartEviction(5*time.Minute, idleTTL)

	return func(c *gin.Context) {
		if !reg.For(c.ClientIP(), limit).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"success": false,
				"error": models.ErrorDetail{
					Code:    models.ErrCodeRateLimited,
					Message: "rate limit exceeded, please slow down",
				},
			})
			return
		}
		c.Next()
	}
}
