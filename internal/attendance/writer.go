package attendance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"campusgate/internal/directory"
)

var errEmptyTerminal = errors.New("terminal id required")

// Outcome is a decision about a matched identity, ready to be journaled.
type Outcome struct {
	Identity   directory.Identity
	TerminalID string
	Direction  Direction
	Granted    bool
	Reason     string
	At         time.Time
	// Record is the next state of the day's record; ignored for denials.
	Record *Record
	// ExpectedVersion is the version of the record the decision was based on.
	ExpectedVersion int64
	PassRequestID   string
	Distance        float64
	Confidence      float64
}

// Writer turns outcomes into atomic store transitions.
type Writer struct {
	store Store
	loc   *time.Location
}

// NewWriter creates a writer. Days are computed in loc.
func NewWriter(store Store, loc *time.Location) *Writer {
	if loc == nil {
		loc = time.UTC
	}
	return &Writer{store: store, loc: loc}
}

// Record stores the outcome. Granted outcomes update the day's record and
// append to the log; denials only append. Errors are ErrConflict when the
// record moved underneath, ErrPersistence otherwise.
func (w *Writer) Record(ctx context.Context, o Outcome) (AccessLogEntry, error) {
	if o.At.IsZero() {
		o.At = time.Now()
	}
	entry := AccessLogEntry{
		ID:            uuid.NewString(),
		PersonID:      o.Identity.ID,
		Role:          o.Identity.Role,
		Name:          o.Identity.Name,
		Department:    o.Identity.Department,
		TerminalID:    o.TerminalID,
		Direction:     o.Direction,
		Day:           DayOf(o.At, w.loc),
		Timestamp:     o.At.UTC(),
		Status:        Denied,
		Reason:        o.Reason,
		PassRequestID: o.PassRequestID,
		Distance:      o.Distance,
		Confidence:    o.Confidence,
	}

	t := Transition{Entry: entry}
	if o.Granted {
		if o.Record == nil {
			return AccessLogEntry{}, fmt.Errorf("%w: granted outcome without record", ErrPersistence)
		}
		entry.Status = Granted
		t.Entry = entry
		t.Record = o.Record
		t.ExpectedVersion = o.ExpectedVersion
	}

	if err := w.store.Apply(ctx, t); err != nil {
		if errors.Is(err, ErrConflict) {
			return AccessLogEntry{}, err
		}
		return AccessLogEntry{}, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return entry, nil
}
