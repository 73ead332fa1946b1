package pass

import (
	"context"
	"fmt"
	"time"
)

// Type is the kind of leave requested.
type Type string

const (
	TypeOuting    Type = "outing"
	TypeHomeVisit Type = "homevisit"
)

// Status is a pass request's position in the HOD then warden workflow.
type Status string

const (
	StatusPending        Status = "pending"
	StatusHODApproved    Status = "hod_approved"
	StatusWardenApproved Status = "warden_approved"
	StatusApproved       Status = "approved"
	StatusRejected       Status = "rejected"
)

// AllowsExit reports whether a request in this status lets the student leave.
func (s Status) AllowsExit() bool {
	return s == StatusWardenApproved || s == StatusApproved
}

// Request is a hosteller's application for leave.
type Request struct {
	ID          string    `json:"id"`
	Username    string    `json:"username"`
	Type        Type      `json:"type"`
	Status      Status    `json:"status"`
	Date        string    `json:"date"`
	ArrivalTime string    `json:"arrival_time"`
	Reason      string    `json:"reason"`
	CreatedAt   time.Time `json:"created_at"`
}

// Store lists the pass requests filed by a user.
type Store interface {
	ListByUsername(ctx context.Context, username string) ([]Request, error)
}

// Checker decides whether a hosteller may exit.
type Checker struct {
	store Store
}

// NewChecker creates a checker over store.
func NewChecker(store Store) *Checker {
	return &Checker{store: store}
}

// Latest returns the most recently created request, keeping the earlier
// listed one when two share a timestamp.
func Latest(reqs []Request) *Request {
	var latest *Request
	for i := range reqs {
		if latest == nil || reqs[i].CreatedAt.After(latest.CreatedAt) {
			latest = &reqs[i]
		}
	}
	return latest
}

// IsExitApproved looks only at the latest request. It returns that request,
// or nil when the person never filed one.
func (c *Checker) IsExitApproved(ctx context.Context, personID string) (bool, *Request, error) {
	reqs, err := c.store.ListByUsername(ctx, personID)
	if err != nil {
		return false, nil, fmt.Errorf("list pass requests: %w", err)
	}
	latest := Latest(reqs)
	if latest == nil {
		return false, nil, nil
	}
	return latest.Status.AllowsExit(), latest, nil
}
