package handler

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"campusgate/internal/attendance"
	"campusgate/internal/auth"
)

// RegisterTerminal handles POST /v1/terminals/register.
func (h *Handler) RegisterTerminal(c *gin.Context) {
	var req struct {
		TerminalID string `json:"terminal_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.attendance.RegisterTerminal(c.Request.Context(), req.TerminalID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.issueTokens(c, req.TerminalID, http.StatusCreated)
}

// RefreshTerminal handles POST /v1/terminals/refresh. Each refresh token
// can be exchanged once for a new pair.
func (h *Handler) RefreshTerminal(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	claims, err := auth.Parse(req.RefreshToken, h.tokens.SigningKey, h.tokens.Issuer)
	if err != nil || !claims.IsRefresh() || claims.Role != auth.RoleTerminal {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid refresh token"})
		return
	}

	err = h.attendance.ConsumeRefreshToken(c.Request.Context(), claims.Subject, req.RefreshToken)
	switch {
	case errors.Is(err, attendance.ErrRefreshRejected):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "refresh token already used or revoked"})
		return
	case err != nil:
		log.Printf("refresh for terminal %s failed: %v", claims.Subject, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token refresh failed"})
		return
	}
	h.issueTokens(c, claims.Subject, http.StatusOK)
}

func (h *Handler) issueTokens(c *gin.Context, terminalID string, status int) {
	tokens, err := auth.Issue(terminalID, auth.RoleTerminal, h.tokens.Issuer, h.tokens.SigningKey, h.tokens.AccessTTL, h.tokens.RefreshTTL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
		return
	}
	if err := h.attendance.SaveRefreshToken(c.Request.Context(), terminalID, tokens.RefreshToken, tokens.RefreshExp); err != nil {
		log.Printf("save refresh token for terminal %s: %v", terminalID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token store failed"})
		return
	}

	c.JSON(status, gin.H{
		"access_token":  tokens.AccessToken,
		"refresh_token": tokens.RefreshToken,
		"expires_at":    tokens.AccessExp.Unix(),
	})
}

// RefreshDirectory handles POST /v1/directory/refresh.
func (h *Handler) RefreshDirectory(c *gin.Context) {
	if h.directory != nil {
		h.directory.Invalidate()
	}
	c.Status(http.StatusNoContent)
}

// Healthz reports dependency health.
func (h *Handler) Healthz(c *gin.Context) {
	status := http.StatusOK
	body := gin.H{"status": "ok"}
	for name, check := range h.checks {
		ok := check(c.Request.Context())
		body[name] = ok
		if !ok {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
		}
	}
	c.JSON(status, body)
}
