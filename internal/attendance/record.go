package attendance

import (
	"errors"
	"time"

	"campusgate/internal/directory"
)

var (
	// ErrPersistence wraps any storage failure while recording a gate decision.
	ErrPersistence = errors.New("attendance persistence failed")
	// ErrConflict means another gate changed the day's record first.
	ErrConflict = errors.New("attendance record changed concurrently")
)

// DayLayout is the calendar-day key format.
const DayLayout = "2006-01-02"

// Direction is the way a person passes the gate.
type Direction string

const (
	In  Direction = "in"
	Out Direction = "out"
)

// Status is the presence state after the last transition of the day.
type Status string

const (
	StatusIn  Status = "IN"
	StatusOut Status = "OUT"
)

// Result is the outcome recorded in the access log.
type Result string

const (
	Granted Result = "granted"
	Denied  Result = "denied"
)

// Record is a person's attendance for one calendar day.
type Record struct {
	PersonID string         `json:"person_id"`
	Role     directory.Role `json:"role"`
	Day      string         `json:"date"`
	InAt     *time.Time     `json:"in_time,omitempty"`
	OutAt    *time.Time     `json:"out_time,omitempty"`
	Status   Status         `json:"status"`
	// Version is 0 for a record that has not been stored yet.
	Version int64 `json:"-"`
}

// Latest returns the most recent leg timestamp, or the zero time.
func (r *Record) Latest() time.Time {
	var t time.Time
	if r == nil {
		return t
	}
	if r.InAt != nil {
		t = *r.InAt
	}
	if r.OutAt != nil && r.OutAt.After(t) {
		t = *r.OutAt
	}
	return t
}

// AccessLogEntry is one immutable row of the audit trail.
type AccessLogEntry struct {
	ID            string         `json:"id"`
	PersonID      string         `json:"person_id"`
	Role          directory.Role `json:"role"`
	Name          string         `json:"name"`
	Department    string         `json:"department"`
	TerminalID    string         `json:"terminal_id"`
	Direction     Direction      `json:"direction"`
	Day           string         `json:"date"`
	Timestamp     time.Time      `json:"timestamp"`
	Status        Result         `json:"status"`
	Reason        string         `json:"reason"`
	PassRequestID string         `json:"pass_request_id,omitempty"`
	Distance      float64        `json:"distance"`
	Confidence    float64        `json:"confidence"`
}

// Summary aggregates one day of the access log.
type Summary struct {
	Day     string `json:"date"`
	Entries int    `json:"entries"`
	Denied  int    `json:"denied"`
	Inside  int    `json:"inside"`
}

// DayOf returns the calendar day of t in loc.
func DayOf(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(DayLayout)
}
