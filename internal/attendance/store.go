package attendance

import (
	"context"
	"errors"
	"time"

	"campusgate/internal/directory"
)

// Transition is a single atomic write: the day's record (granted scans only)
// together with the audit entry describing the decision.
type Transition struct {
	// Record is nil for denials, which only append to the log.
	Record *Record
	// ExpectedVersion is the version the record had when it was read.
	ExpectedVersion int64
	Entry           AccessLogEntry
}

// LogFilter narrows access log listings.
type LogFilter struct {
	PersonID string
	Day      string
	Status   Result
	// Search matches person id, name or department, case-insensitively.
	Search string
	Limit  int
	Offset int
}

// Store persists attendance records and the access log.
type Store interface {
	Today(ctx context.Context, personID string, role directory.Role, day string) (*Record, error)
	Apply(ctx context.Context, t Transition) error
	ListAccessLog(ctx context.Context, f LogFilter) ([]AccessLogEntry, error)
	ListRecords(ctx context.Context, day string) ([]Record, error)
	Summary(ctx context.Context, day string) (Summary, error)
}

// ErrRefreshRejected is returned for a refresh token that is unknown,
// already used, expired or issued to another terminal.
var ErrRefreshRejected = errors.New("refresh token rejected")

// TerminalStore keeps gate terminal registrations and their refresh tokens.
type TerminalStore interface {
	UpsertTerminal(ctx context.Context, terminalID string) error
	SaveRefreshToken(ctx context.Context, terminalID, token string, expiresAt time.Time) error
	// ConsumeRefreshToken revokes a live token so it can be used once.
	ConsumeRefreshToken(ctx context.Context, terminalID, token string, now time.Time) error
}

func normalizeFilter(f LogFilter) LogFilter {
	if f.Limit <= 0 || f.Limit > 500 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}
