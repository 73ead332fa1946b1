package handler

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"campusgate/internal/attendance"
	"campusgate/internal/auth"
	"campusgate/internal/directory"
	"campusgate/internal/gate"
	"campusgate/internal/queue"
)

type scanRequest struct {
	Descriptor []float32  `json:"descriptor" binding:"required"`
	CapturedAt *time.Time `json:"captured_at"`
}

// PostScan handles POST /v1/scans: a descriptor from a terminal, answered
// with the gate decision.
func (h *Handler) PostScan(c *gin.Context) {
	var req scanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	claims, _ := auth.ClaimsFrom(c)

	scan := gate.Scan{TerminalID: claims.Subject, Descriptor: directory.Vector(req.Descriptor)}
	if req.CapturedAt != nil {
		scan.At = *req.CapturedAt
	}

	decision, err := h.gate.Decide(c.Request.Context(), scan)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, decision)
	case errors.Is(err, directory.ErrInvalidDescriptor):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, attendance.ErrPersistence):
		c.JSON(http.StatusInternalServerError, gin.H{"error": "decision could not be recorded, scan again"})
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "scan abandoned"})
	default:
		log.Printf("scan from %s failed: %v", scan.TerminalID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "scan failed"})
	}
}

// PostCapture handles POST /v1/scans/capture: the image is queued for the
// worker, which extracts the descriptor and decides asynchronously.
func (h *Handler) PostCapture(c *gin.Context) {
	if h.scans == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "capture queue not configured"})
		return
	}
	var req struct {
		ImageURL   string     `json:"image_url" binding:"required"`
		CapturedAt *time.Time `json:"captured_at"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	claims, _ := auth.ClaimsFrom(c)

	job := queue.ScanJob{
		ID:         uuid.NewString(),
		TerminalID: claims.Subject,
		ImageURL:   req.ImageURL,
		CapturedAt: time.Now().UTC(),
	}
	if req.CapturedAt != nil {
		job.CapturedAt = *req.CapturedAt
	}
	msg, err := queue.NewMessage(queue.TypeScan, job)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "encode job failed"})
		return
	}
	if err := h.scans.Publish(c.Request.Context(), msg); err != nil {
		log.Printf("queue publish failed: %v", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "capture queue unavailable"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"job_id": job.ID, "captured_at": job.CapturedAt})
}
