package httpmiddleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestKeyLimiter(t *testing.T) {
	gin.SetMode(gin.TestMode)
	limiter := NewKeyLimiter(60, 2)

	r := gin.New()
	r.Use(limiter.GinMiddleware(func(c *gin.Context) string { return c.GetHeader("X-Terminal") }))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	do := func(terminal string) int {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Terminal", terminal)
		r.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, do("gate-1"))
	assert.Equal(t, http.StatusOK, do("gate-1"))
	assert.Equal(t, http.StatusTooManyRequests, do("gate-1"))
	assert.Equal(t, http.StatusOK, do("gate-2"), "keys have separate buckets")
}

func TestKeyLimiter_SameBucket(t *testing.T) {
	l := NewKeyLimiter(10, 0)
	assert.Same(t, l.Limiter("a"), l.Limiter("a"))
	assert.NotSame(t, l.Limiter("a"), l.Limiter("b"))
}

func TestKeyLimiter_Disabled(t *testing.T) {
	l := NewKeyLimiter(0, 0)
	for i := 0; i < 100; i++ {
		assert.True(t, l.Limiter("a").Allow())
	}
}
