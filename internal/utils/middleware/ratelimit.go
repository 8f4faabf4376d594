package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/floralens/server/internal/port/outbound"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	// RateLimitRemaining is the header for remaining requests.
	RateLimitRemaining = "X-RateLimit-Remaining"
	// RateLimitLimit is the header for the limit.
	RateLimitLimit = "X-RateLimit-Limit"
	// RateLimitReset is the header for reset time.
	RateLimitReset = "X-RateLimit-Reset"
	// RetryAfter is the header for retry time.
	RetryAfter = "Retry-After"
)

// RateLimitConfig holds rate limit configuration.
type RateLimitConfig struct {
	// Limit is the maximum number of requests.
	Limit int
	// Window is the time window.
	Window time.Duration
	// KeyFunc generates the rate limit key from request.
	// Default uses client IP.
	KeyFunc func(*gin.Context) string
}

// RateLimit returns a middleware that limits requests using the given limiter.
func RateLimit(limiter outbound.RateLimiterPort, cfg RateLimitConfig) gin.HandlerFunc {
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = func(c *gin.Context) string {
			return "ip:" + c.ClientIP()
		}
	}

	return func(c *gin.Context) {
		// Skip if limiter is nil
		if limiter == nil {
			c.Next()
			return
		}

		key := cfg.KeyFunc(c)
		ctx := c.Request.Context()

		// Check rate limit. On limiter error the request is allowed; the
		// limiter store being down must not take the API down with it.
		allowed, err := limiter.Allow(ctx, key, cfg.Limit, cfg.Window)
		if err != nil {
			c.Next()
			return
		}

		// Get remaining count
		remaining, _ := limiter.GetRemaining(ctx, key, cfg.Limit, cfg.Window)

		// Set headers
		c.Header(RateLimitLimit, strconv.Itoa(cfg.Limit))
		c.Header(RateLimitRemaining, strconv.Itoa(remaining))
		c.Header(RateLimitReset, strconv.FormatInt(time.Now().Add(cfg.Window).Unix(), 10))

		if !allowed {
			c.Header(RetryAfter, strconv.Itoa(int(cfg.Window.Seconds())))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": gin.H{
					"code":    "RATE_LIMITED",
					"message": "Too many requests, please try again later",
				},
			})
			return
		}

		c.Next()
	}
}

// RateLimitByUser returns a rate limiter that limits by user ID.
// Falls back to IP if user is not authenticated.
func RateLimitByUser(limiter outbound.RateLimiterPort, limit int, window time.Duration) gin.HandlerFunc {
	return RateLimit(limiter, RateLimitConfig{
		Limit:  limit,
		Window: window,
		KeyFunc: func(c *gin.Context) string {
			if userID := GetUserID(c); userID != uuid.Nil {
				return "user:" + userID.String()
			}
			return "ip:" + c.ClientIP()
		},
	})
}
