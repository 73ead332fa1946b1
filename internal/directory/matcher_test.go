package directory

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func vec(dim int, fill float32) Vector {
	v := make(Vector, dim)
	for i := range v {
		v[i] = fill
	}
	return v
}

func offset(v Vector, idx int, delta float32) Vector {
	out := make(Vector, len(v))
	copy(out, v)
	out[idx] += delta
	return out
}

func randomVector(r *rand.Rand, dim int) Vector {
	v := make(Vector, dim)
	for i := range v {
		v[i] = float32(r.NormFloat64() * 0.05)
	}
	return v
}

func TestMatcher_Match(t *testing.T) {
	base := vec(8, 0.1)
	snap := NewSnapshot([]Identity{
		{ID: "S001", Role: RoleStaff, Department: "CSE", Descriptor: base},
		{ID: "STU002", Role: RoleStudent, Department: "ECE", Descriptor: offset(base, 0, 1.0)},
		{ID: "NODESC", Role: RoleStudent, Department: "ECE"},
	}, time.Now())

	testCases := []struct {
		name      string
		query     Vector
		threshold float64
		wantID    string
		wantFound bool
	}{
		{name: "exact descriptor matches", query: base, threshold: 0.6, wantID: "S001", wantFound: true},
		{name: "distance 0.55 under 0.6 matches", query: offset(offset(base, 0, 1.0), 3, 0.55), threshold: 0.6, wantID: "STU002", wantFound: true},
		{name: "distance 0.65 over 0.6 is unknown", query: offset(offset(base, 0, 1.0), 3, 0.65), threshold: 0.6, wantFound: false},
		{name: "distance equal to threshold is unknown", query: offset(base, 1, 0.5), threshold: 0.5, wantFound: false},
		{name: "far query is unknown", query: vec(8, 5), threshold: 0.6, wantFound: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			m := NewMatcher(8, tc.threshold, 1)
			got, found, err := m.Match(context.Background(), tc.query, snap)
			require.NoError(t, err)
			assert.Equal(t, tc.wantFound, found)
			if tc.wantFound {
				assert.Equal(t, tc.wantID, got.Identity.ID)
				assert.Less(t, got.Distance, tc.threshold)
			}
		})
	}
}

func TestMatcher_InvalidDescriptor(t *testing.T) {
	m := NewMatcher(4, 0.6, 1)
	snap := NewSnapshot([]Identity{{ID: "A", Descriptor: vec(4, 0)}}, time.Now())

	nan := float32(math.NaN())
	for _, q := range []Vector{nil, vec(3, 0), vec(5, 0), {0, 0, nan, 0}} {
		_, _, err := m.Match(context.Background(), q, snap)
		assert.True(t, errors.Is(err, ErrInvalidDescriptor), "query %v", q)
	}
}

func TestMatcher_TieKeepsFirstEncountered(t *testing.T) {
	base := vec(4, 0)
	snap := NewSnapshot([]Identity{
		{ID: "first", Role: RoleStaff, Department: "A", Descriptor: offset(base, 0, 0.2)},
		{ID: "second", Role: RoleStudent, Department: "B", Descriptor: offset(base, 0, -0.2)},
	}, time.Now())

	for _, workers := range []int{1, 4} {
		m := NewMatcher(4, 0.5, workers)
		m.ParallelMin = 0
		got, found, err := m.Match(context.Background(), base, snap)
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, "first", got.Identity.ID, "workers=%d", workers)
	}
}

func TestMatcher_EmptySnapshot(t *testing.T) {
	m := NewMatcher(4, 0.5, 1)
	_, found, err := m.Match(context.Background(), vec(4, 0), NewSnapshot(nil, time.Now()))
	require.NoError(t, err)
	assert.False(t, found)
}

// Properties: nothing under the threshold means no match, and a match is never
// beaten by a strictly closer identity.
func TestMatcher_Properties(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	const dim = 16

	for round := 0; round < 50; round++ {
		identities := make([]Identity, 0, 300)
		for i := 0; i < 300; i++ {
			identities = append(identities, Identity{
				ID:         fmt.Sprintf("id-%d", i),
				Role:       RoleStudent,
				Department: fmt.Sprintf("dept-%d", i%7),
				Descriptor: randomVector(r, dim),
			})
		}
		snap := NewSnapshot(identities, time.Now())
		query := randomVector(r, dim)
		threshold := 0.1 + r.Float64()*0.2

		seq := NewMatcher(dim, threshold, 1)
		par := NewMatcher(dim, threshold, 4)
		par.ParallelMin = 0

		got, found, err := seq.Match(context.Background(), query, snap)
		require.NoError(t, err)
		pgot, pfound, err := par.Match(context.Background(), query, snap)
		require.NoError(t, err)

		assert.Equal(t, found, pfound)
		assert.Equal(t, got.Position, pgot.Position)

		anyUnder := false
		for _, id := range identities {
			d := EuclideanDistance(query, id.Descriptor)
			if d < threshold {
				anyUnder = true
			}
			if found {
				assert.GreaterOrEqual(t, d, got.Distance)
			}
		}
		assert.Equal(t, anyUnder, found)
	}
}

func TestConfidence(t *testing.T) {
	assert.Equal(t, 100.0, Confidence(0))
	assert.Equal(t, 55.0, Confidence(0.45))
	assert.Equal(t, 0.0, Confidence(1.5))
}
