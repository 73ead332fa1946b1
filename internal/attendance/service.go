package attendance

import (
	"context"
	"time"
)

// Service serves attendance reads and terminal registration to the API.
type Service struct {
	store     Store
	terminals TerminalStore
	loc       *time.Location
}

// NewService creates a service. Days default to today in loc.
func NewService(store Store, terminals TerminalStore, loc *time.Location) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{store: store, terminals: terminals, loc: loc}
}

// RegisterTerminal validates and persists terminal metadata.
func (s *Service) RegisterTerminal(ctx context.Context, terminalID string) error {
	if terminalID == "" {
		return errEmptyTerminal
	}
	return s.terminals.UpsertTerminal(ctx, terminalID)
}

// SaveRefreshToken stores a refresh token issued to a terminal.
func (s *Service) SaveRefreshToken(ctx context.Context, terminalID, token string, expiresAt time.Time) error {
	return s.terminals.SaveRefreshToken(ctx, terminalID, token, expiresAt)
}

// ConsumeRefreshToken spends a refresh token; it returns ErrRefreshRejected
// when the token cannot be used.
func (s *Service) ConsumeRefreshToken(ctx context.Context, terminalID, token string) error {
	return s.terminals.ConsumeRefreshToken(ctx, terminalID, token, time.Now())
}

func (s *Service) day(day string) string {
	if day == "" {
		return DayOf(time.Now(), s.loc)
	}
	return day
}

// AccessLog lists audit entries.
func (s *Service) AccessLog(ctx context.Context, f LogFilter) ([]AccessLogEntry, error) {
	return s.store.ListAccessLog(ctx, f)
}

// Records lists the attendance records of a day, today when day is empty.
func (s *Service) Records(ctx context.Context, day string) ([]Record, error) {
	return s.store.ListRecords(ctx, s.day(day))
}

// Summary aggregates a day, today when day is empty.
func (s *Service) Summary(ctx context.Context, day string) (Summary, error) {
	return s.store.Summary(ctx, s.day(day))
}

// ValidDay reports whether day is empty or a calendar date.
func ValidDay(day string) bool {
	if day == "" {
		return true
	}
	_, err := time.Parse(DayLayout, day)
	return err == nil
}
