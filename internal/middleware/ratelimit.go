package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"schoolcomms/pkg/response"
)

// RateLimiter limits each caller to requestsPerMinute. Callers are
// keyed by authenticated tenant when available, client IP otherwise.
// Idle limiters fall out of the cache after an hour.
func RateLimiter(requestsPerMinute int) gin.HandlerFunc {
	if requestsPerMinute <= 0 {
		return func(c *gin.Context) { c.Next() }
	}

	limiters := cache.New(time.Hour, 10*time.Minute)

	return func(c *gin.Context) {
		key := c.GetString(string(TenantIDKey))
		if key == "" {
			key = c.ClientIP()
		}

		var limiter *rate.Limiter
		if v, ok := limiters.Get(key); ok {
			limiter = v.(*rate.Limiter)
		} else {
			limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(requestsPerMinute)), requestsPerMinute)
			limiters.SetDefault(key, limiter)
		}

		if !limiter.Allow() {
			response.TooManyRequests(c, "Rate limit exceeded")
			c.Abort()
			return
		}

		c.Next()
	}
}
