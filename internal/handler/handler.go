package handler

import (
	"context"
	"time"

	"campusgate/internal/attendance"
	"campusgate/internal/gate"
	"campusgate/internal/queue"
)

// Decider runs a scan through the gate pipeline.
type Decider interface {
	Decide(ctx context.Context, scan gate.Scan) (gate.Decision, error)
}

// Invalidator drops a cached directory snapshot.
type Invalidator interface {
	Invalidate()
}

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) bool

// TokenSettings configures terminal token issuing.
type TokenSettings struct {
	Issuer     string
	SigningKey string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// Handler holds shared dependencies for API handlers.
type Handler struct {
	gate       Decider
	attendance *attendance.Service
	scans      queue.Queue
	directory  Invalidator
	tokens     TokenSettings
	checks     map[string]HealthCheck
}

// New creates the API handler. scans and directory may be nil.
func New(d Decider, att *attendance.Service, scans queue.Queue, directory Invalidator, tokens TokenSettings, checks map[string]HealthCheck) *Handler {
	return &Handler{
		gate:       d,
		attendance: att,
		scans:      scans,
		directory:  directory,
		tokens:     tokens,
		checks:     checks,
	}
}
