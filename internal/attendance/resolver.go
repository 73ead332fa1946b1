package attendance

import (
	"time"

	"campusgate/internal/directory"
)

// FirstLeg is the direction that opens a day for the given mode.
func FirstLeg(mode directory.Mode) Direction {
	if mode == directory.ModeHosteller {
		return Out
	}
	return In
}

func opposite(d Direction) Direction {
	if d == In {
		return Out
	}
	return In
}

func leg(rec *Record, d Direction) *time.Time {
	if d == In {
		return rec.InAt
	}
	return rec.OutAt
}

// Resolve computes the next direction for an identity and the record that a
// granted scan at the given time would leave behind. current may be nil when
// nothing is stored for the day. The returned record keeps current's version.
//
//	no record        -> first leg
//	first leg only   -> second leg
//	both legs set    -> first leg again, second leg cleared
func Resolve(id directory.Identity, current *Record, day string, at time.Time) (Direction, Record) {
	first := FirstLeg(id.EffectiveMode())

	next := Record{PersonID: id.ID, Role: id.Role, Day: day}
	if current != nil {
		next = *current
	}

	dir := first
	if current != nil && leg(current, first) != nil && leg(current, opposite(first)) == nil {
		dir = opposite(first)
	}

	ts := at
	if dir == first {
		// new cycle: second leg is cleared
		if first == In {
			next.InAt, next.OutAt = &ts, nil
		} else {
			next.OutAt, next.InAt = &ts, nil
		}
	} else if dir == In {
		next.InAt = &ts
	} else {
		next.OutAt = &ts
	}

	next.Status = StatusIn
	if dir == Out {
		next.Status = StatusOut
	}
	return dir, next
}
