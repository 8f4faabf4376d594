package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

type fakeLimiter struct {
	mu    sync.Mutex
	seen  map[string]int
	limit int
	err   error
}

func newFakeLimiter(limit int) *fakeLimiter {
	return &fakeLimiter{seen: make(map[string]int), limit: limit}
}

func (f *fakeLimiter) Allow(_ context.Context, key string, limit int, _ time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	f.seen[key]++
	return f.seen[key] <= limit, nil
}

func (f *fakeLimiter) GetRemaining(_ context.Context, key string, limit int, _ time.Duration) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	remaining := limit - f.seen[key]
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

func rateLimitRouter(mw gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/ping", mw, func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return router
}

func TestRateLimit(t *testing.T) {
	t.Run("Allows under limit with headers", func(t *testing.T) {
		limiter := newFakeLimiter(2)
		router := rateLimitRouter(RateLimit(limiter, RateLimitConfig{Limit: 2, Window: time.Minute}))

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))

		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, "2", rec.Header().Get(RateLimitLimit))
		assert.Equal(t, "1", rec.Header().Get(RateLimitRemaining))
	})

	t.Run("Rejects over limit with Retry-After", func(t *testing.T) {
		limiter := newFakeLimiter(1)
		router := rateLimitRouter(RateLimit(limiter, RateLimitConfig{Limit: 1, Window: time.Minute}))

		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ping", nil))

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))

		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.Equal(t, "60", rec.Header().Get(RetryAfter))
		assert.Contains(t, rec.Body.String(), "RATE_LIMITED")
	})

	t.Run("Limiter outage lets requests through", func(t *testing.T) {
		limiter := newFakeLimiter(1)
		limiter.err = errors.New("connection refused")
		router := rateLimitRouter(RateLimit(limiter, RateLimitConfig{Limit: 1, Window: time.Minute}))

		for i := 0; i < 3; i++ {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))
			assert.Equal(t, http.StatusNoContent, rec.Code)
		}
	})

	t.Run("Nil limiter is a no-op", func(t *testing.T) {
		router := rateLimitRouter(RateLimit(nil, RateLimitConfig{Limit: 1, Window: time.Minute}))

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})
}

func TestRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	var seen string
	router.GET("/ping", RequestID(), func(c *gin.Context) {
		seen = GetRequestID(c)
		c.Status(http.StatusNoContent)
	})

	t.Run("Generates when absent", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))

		assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))
		assert.Equal(t, rec.Header().Get(RequestIDHeader), seen)
	})

	t.Run("Propagates caller-supplied ID", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.Header.Set(RequestIDHeader, "caller-id-123")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, "caller-id-123", rec.Header().Get(RequestIDHeader))
		assert.Equal(t, "caller-id-123", seen)
	})
}
