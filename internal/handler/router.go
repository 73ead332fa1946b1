package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"campusgate/internal/auth"
	"campusgate/internal/httpmiddleware"
)

// RouterOptions configures NewRouter.
type RouterOptions struct {
	RateLimitPerMin int
	// Metrics serves /metrics when set.
	Metrics http.Handler
}

// NewRouter creates and configures the gin router for the gate API.
func NewRouter(h *Handler, opts RouterOptions) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(corsMiddleware())
	r.Use(securityHeaders())

	if opts.Metrics != nil {
		r.GET("/metrics", gin.WrapH(opts.Metrics))
	}
	r.GET("/healthz", h.Healthz)

	limiter := httpmiddleware.NewKeyLimiter(opts.RateLimitPerMin, 0)
	v1 := r.Group("/v1")
	v1.POST("/terminals/register", limiter.GinMiddleware(httpmiddleware.ClientIP), h.RegisterTerminal)
	v1.POST("/terminals/refresh", limiter.GinMiddleware(httpmiddleware.ClientIP), h.RefreshTerminal)

	authed := v1.Group("", auth.TerminalAuth(h.tokens.SigningKey, h.tokens.Issuer), limiter.GinMiddleware(terminalKey))
	{
		authed.POST("/scans", h.PostScan)
		authed.POST("/scans/capture", h.PostCapture)
		authed.GET("/access-logs", h.ListAccessLogs)
		authed.GET("/attendance", h.ListAttendance)
		authed.GET("/attendance/summary", h.GetSummary)
		authed.POST("/directory/refresh", h.RefreshDirectory)
	}
	return r
}

// terminalKey rate limits authenticated calls per terminal rather than per address.
func terminalKey(c *gin.Context) string {
	if claims, ok := auth.ClaimsFrom(c); ok && claims.Subject != "" {
		return "terminal:" + claims.Subject
	}
	return httpmiddleware.ClientIP(c)
}

// CORS middleware for browser-based terminals
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// Security headers middleware
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		c.Next()
	}
}
