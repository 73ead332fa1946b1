package httpmiddleware

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// KeyLimiter keeps one token bucket per client key.
type KeyLimiter struct {
	mu       sync.RWMutex
	limiters map[string]*rate.Limiter
	r        rate.Limit
	b        int
}

// NewKeyLimiter allows perMinute requests per key with bursts of burst.
// A non-positive perMinute disables limiting.
func NewKeyLimiter(perMinute, burst int) *KeyLimiter {
	limit := rate.Limit(float64(perMinute) / 60)
	if perMinute <= 0 {
		limit = rate.Inf
	}
	if burst <= 0 {
		burst = max(perMinute, 1)
	}
	return &KeyLimiter{
		limiters: make(map[string]*rate.Limiter),
		r:        limit,
		b:        burst,
	}
}

// Limiter returns the bucket for key, creating it on first use.
func (l *KeyLimiter) Limiter(key string) *rate.Limiter {
	l.mu.RLock()
	lim, ok := l.limiters[key]
	l.mu.RUnlock()
	if ok {
		return lim
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if lim, ok := l.limiters[key]; ok {
		return lim
	}
	lim = rate.NewLimiter(l.r, l.b)
	l.limiters[key] = lim
	return lim
}

// KeyFunc picks the rate limit key for a request.
type KeyFunc func(c *gin.Context) string

// ClientIP keys requests by client address.
func ClientIP(c *gin.Context) string {
	if ip := c.ClientIP(); ip != "" {
		return ip
	}
	return "unknown"
}

// GinMiddleware returns a handler enforcing per-key limits.
func (l *KeyLimiter) GinMiddleware(key KeyFunc) gin.HandlerFunc {
	if key == nil {
		key = ClientIP
	}
	return func(c *gin.Context) {
		if !l.Limiter(key(c)).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit"})
			return
		}
		c.Next()
	}
}
