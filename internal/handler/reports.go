package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"campusgate/internal/attendance"
)

func queryInt(c *gin.Context, key string, fallback int) int {
	if v := c.Query(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return fallback
}

// ListAccessLogs handles GET /v1/access-logs.
func (h *Handler) ListAccessLogs(c *gin.Context) {
	f := attendance.LogFilter{
		PersonID: c.Query("person_id"),
		Day:      c.Query("date"),
		Status:   attendance.Result(c.Query("status")),
		Search:   c.Query("q"),
		Limit:    queryInt(c, "limit", 50),
		Offset:   queryInt(c, "offset", 0),
	}
	if !attendance.ValidDay(f.Day) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
		return
	}
	if f.Status != "" && f.Status != attendance.Granted && f.Status != attendance.Denied {
		c.JSON(http.StatusBadRequest, gin.H{"error": "status must be granted or denied"})
		return
	}

	entries, err := h.attendance.AccessLog(c.Request.Context(), f)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if entries == nil {
		entries = []attendance.AccessLogEntry{}
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

// ListAttendance handles GET /v1/attendance.
func (h *Handler) ListAttendance(c *gin.Context) {
	day := c.Query("date")
	if !attendance.ValidDay(day) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
		return
	}
	records, err := h.attendance.Records(c.Request.Context(), day)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if records == nil {
		records = []attendance.Record{}
	}
	c.JSON(http.StatusOK, gin.H{"records": records})
}

// GetSummary handles GET /v1/attendance/summary.
func (h *Handler) GetSummary(c *gin.Context) {
	day := c.Query("date")
	if !attendance.ValidDay(day) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
		return
	}
	s, err := h.attendance.Summary(c.Request.Context(), day)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, s)
}
