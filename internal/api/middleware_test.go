package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiterWindow(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	rl := NewRateLimiter()
	rl.now = func() time.Time { return now }

	ok, v := rl.Allow("a", 2, time.Minute)
	assert.True(t, ok)
	assert.Equal(t, 1, v.Remaining)

	ok, v = rl.Allow("a", 2, time.Minute)
	assert.True(t, ok)
	assert.Equal(t, 0, v.Remaining)

	ok, _ = rl.Allow("a", 2, time.Minute)
	assert.False(t, ok)

	// 其他客户端不受影响
	ok, _ = rl.Allow("b", 2, time.Minute)
	assert.True(t, ok)

	now = now.Add(2 * time.Minute)
	ok, v = rl.Allow("a", 2, time.Minute)
	assert.True(t, ok)
	assert.Equal(t, 1, v.Remaining)
}

func TestRateLimiterCleanup(t *testing.T) {
	now := time.Now()
	rl := NewRateLimiter()
	rl.now = func() time.Time { return now }

	rl.Allow("a", 5, time.Minute)
	rl.Allow("b", 5, time.Hour)
	assert.Equal(t, 0, rl.Cleanup())

	now = now.Add(2 * time.Minute)
	assert.Equal(t, 1, rl.Cleanup())
	assert.Len(t, rl.visitors, 1)
}

func TestRateLimitMiddlewareDisabled(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RateLimitMiddleware(NewRateLimiter(), 0, time.Minute, func(*gin.Context) string { return "x" }))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		require.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, w.Header().Get("X-RateLimit-Limit"))
	}
}

func TestCORSPreflight(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CORSMiddleware())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodOptions, "/", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), SessionHeader)
}
