package attendance

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campusgate/internal/directory"
)

// apply mimics a successful write so the next scan sees the stored record.
func apply(rec Record) *Record {
	rec.Version++
	return &rec
}

func TestResolve_Cycles(t *testing.T) {
	base := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	const day = "2026-03-02"

	testCases := []struct {
		name     string
		identity directory.Identity
		want     []Direction
	}{
		{
			name:     "staff alternates in out in",
			identity: directory.Identity{ID: "S001", Role: directory.RoleStaff, Mode: directory.ModeStaff},
			want:     []Direction{In, Out, In, Out},
		},
		{
			name:     "staff with blank mode behaves as staff",
			identity: directory.Identity{ID: "S002", Role: directory.RoleStaff},
			want:     []Direction{In, Out, In},
		},
		{
			name:     "day scholar starts with in",
			identity: directory.Identity{ID: "STU010", Role: directory.RoleStudent, Mode: directory.ModeDayScholar},
			want:     []Direction{In, Out, In},
		},
		{
			name:     "student with blank mode is a day scholar",
			identity: directory.Identity{ID: "STU011", Role: directory.RoleStudent},
			want:     []Direction{In, Out},
		},
		{
			name:     "hosteller starts with out",
			identity: directory.Identity{ID: "STU001", Role: directory.RoleStudent, Mode: directory.ModeHosteller},
			want:     []Direction{Out, In, Out},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var current *Record
			for i, want := range tc.want {
				at := base.Add(time.Duration(i) * time.Hour)
				dir, next := Resolve(tc.identity, current, day, at)
				require.Equal(t, want, dir, "scan %d", i)

				assert.Equal(t, tc.identity.ID, next.PersonID)
				assert.Equal(t, day, next.Day)
				if dir == In {
					assert.Equal(t, StatusIn, next.Status)
					require.NotNil(t, next.InAt)
					assert.Equal(t, at, *next.InAt)
				} else {
					assert.Equal(t, StatusOut, next.Status)
					require.NotNil(t, next.OutAt)
					assert.Equal(t, at, *next.OutAt)
				}
				current = apply(next)
			}
		})
	}
}

func TestResolve_StaffFields(t *testing.T) {
	staff := directory.Identity{ID: "S001", Role: directory.RoleStaff, Mode: directory.ModeStaff}
	t1 := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	t2 := t1.Add(8 * time.Hour)
	t3 := t2.Add(time.Hour)

	_, first := Resolve(staff, nil, "2026-03-02", t1)
	assert.Nil(t, first.OutAt)
	assert.Zero(t, first.Version)

	_, second := Resolve(staff, apply(first), "2026-03-02", t2)
	assert.Equal(t, t1, *second.InAt)
	assert.Equal(t, t2, *second.OutAt)
	assert.EqualValues(t, 1, second.Version)

	dir, third := Resolve(staff, apply(second), "2026-03-02", t3)
	assert.Equal(t, In, dir)
	assert.Equal(t, t3, *third.InAt)
	assert.Nil(t, third.OutAt, "a new cycle clears the out leg")
}

func TestResolve_DoesNotMutateCurrent(t *testing.T) {
	h := directory.Identity{ID: "STU001", Role: directory.RoleStudent, Mode: directory.ModeHosteller}
	out := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	current := &Record{PersonID: "STU001", Role: directory.RoleStudent, Day: "2026-03-02", OutAt: &out, Status: StatusOut, Version: 1}

	dir, next := Resolve(h, current, "2026-03-02", out.Add(time.Hour))
	assert.Equal(t, In, dir)
	assert.Nil(t, current.InAt)
	assert.NotNil(t, next.InAt)
}

func TestDayOf(t *testing.T) {
	loc := time.FixedZone("IST", 5*3600+1800)
	at := time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)
	assert.Equal(t, "2026-03-01", DayOf(at, nil))
	assert.Equal(t, "2026-03-02", DayOf(at, loc))
}
