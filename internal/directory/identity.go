package directory

import "time"

// Role is the partition an identity is enrolled in.
type Role string

const (
	RoleStudent Role = "student"
	RoleStaff   Role = "staff"
)

// Mode selects the in/out policy applied to an identity.
type Mode string

const (
	ModeHosteller  Mode = "Hosteller"
	ModeDayScholar Mode = "DayScholar"
	ModeStaff      Mode = "Staff"
)

// Vector is a face descriptor produced by the extraction service.
type Vector []float32

// Identity represents an enrolled staff member or student.
type Identity struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Department string `json:"department"`
	Role       Role   `json:"role"`
	Mode       Mode   `json:"mode"`
	Descriptor Vector `json:"-"`
}

// EffectiveMode returns the policy mode, filling in the default for the role
// when enrollment left it blank.
func (i Identity) EffectiveMode() Mode {
	if i.Mode != "" {
		return i.Mode
	}
	if i.Role == RoleStaff {
		return ModeStaff
	}
	return ModeDayScholar
}

// Snapshot is a read-only view of the directory taken at LoadedAt.
type Snapshot struct {
	Identities []Identity
	LoadedAt   time.Time
}

// NewSnapshot wraps identities in a snapshot.
func NewSnapshot(identities []Identity, loadedAt time.Time) *Snapshot {
	return &Snapshot{Identities: identities, LoadedAt: loadedAt}
}

// Len returns the number of identities, matchable or not.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Identities)
}

// partition is a contiguous group of directory positions sharing role and department.
type partition struct {
	key     string
	indexes []int
}

// partitions groups identities by role and department, keeping directory order
// inside each group and ordering groups by first appearance.
func (s *Snapshot) partitions() []partition {
	if s == nil {
		return nil
	}
	byKey := make(map[string]int)
	var out []partition
	for i, id := range s.Identities {
		key := string(id.Role) + "/" + id.Department
		pos, ok := byKey[key]
		if !ok {
			pos = len(out)
			byKey[key] = pos
			out = append(out, partition{key: key})
		}
		out[pos].indexes = append(out[pos].indexes, i)
	}
	return out
}
