package directory

import (
	"context"
	"errors"
	"fmt"
	"math"

	"golang.org/x/sync/errgroup"
)

// ErrInvalidDescriptor is returned when a query descriptor is malformed.
var ErrInvalidDescriptor = errors.New("invalid descriptor")

// DefaultDimension is the descriptor length produced by the extraction service.
const DefaultDimension = 128

// Match is the nearest identity found under the threshold.
type Match struct {
	Identity Identity
	Distance float64
	// Position is the identity's index in the snapshot.
	Position int
}

// Matcher runs nearest-neighbour search over a snapshot.
type Matcher struct {
	Dimension int
	Threshold float64
	// Workers bounds concurrent partition scans. Values <= 1 scan sequentially.
	Workers int
	// ParallelMin is the snapshot size below which the scan stays sequential.
	ParallelMin int
}

// NewMatcher creates a matcher with the given dimension and threshold.
func NewMatcher(dimension int, threshold float64, workers int) *Matcher {
	if dimension <= 0 {
		dimension = DefaultDimension
	}
	return &Matcher{
		Dimension:   dimension,
		Threshold:   threshold,
		Workers:     workers,
		ParallelMin: 256,
	}
}

// Validate checks that a query can be compared against the directory.
func (m *Matcher) Validate(query Vector) error {
	if len(query) != m.Dimension {
		return fmt.Errorf("%w: got %d values, want %d", ErrInvalidDescriptor, len(query), m.Dimension)
	}
	for i, v := range query {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("%w: value %d is not finite", ErrInvalidDescriptor, i)
		}
	}
	return nil
}

// Match returns the closest identity whose distance is strictly below the
// threshold. On exact ties the identity that comes first in the snapshot wins.
func (m *Matcher) Match(ctx context.Context, query Vector, snap *Snapshot) (Match, bool, error) {
	if err := m.Validate(query); err != nil {
		return Match{}, false, err
	}
	if snap.Len() == 0 {
		return Match{}, false, nil
	}

	var (
		best candidate
		err  error
	)
	if m.Workers > 1 && snap.Len() >= m.ParallelMin {
		best, err = m.scanPartitions(ctx, query, snap)
		if err != nil {
			return Match{}, false, err
		}
	} else {
		best = m.scan(query, snap, nil)
	}

	if best.pos < 0 {
		return Match{}, false, nil
	}
	return Match{
		Identity: snap.Identities[best.pos],
		Distance: best.distance,
		Position: best.pos,
	}, true, nil
}

type candidate struct {
	pos      int
	distance float64
}

// scan walks the given positions (all of them when indexes is nil) keeping the
// running minimum.
func (m *Matcher) scan(query Vector, snap *Snapshot, indexes []int) candidate {
	best := candidate{pos: -1, distance: math.Inf(1)}
	visit := func(i int) {
		desc := snap.Identities[i].Descriptor
		if len(desc) != len(query) {
			return
		}
		d := EuclideanDistance(query, desc)
		if d < best.distance && d < m.Threshold {
			best = candidate{pos: i, distance: d}
		}
	}
	if indexes == nil {
		for i := range snap.Identities {
			visit(i)
		}
		return best
	}
	for _, i := range indexes {
		visit(i)
	}
	return best
}

func (m *Matcher) scanPartitions(ctx context.Context, query Vector, snap *Snapshot) (candidate, error) {
	parts := snap.partitions()
	results := make([]candidate, len(parts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.Workers)
	for i, p := range parts {
		i, p := i, p
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = m.scan(query, snap, p.indexes)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return candidate{}, err
	}

	best := candidate{pos: -1, distance: math.Inf(1)}
	for _, c := range results {
		if c.pos < 0 {
			continue
		}
		if c.distance < best.distance || (c.distance == best.distance && c.pos < best.pos) {
			best = c
		}
	}
	return best, nil
}

// EuclideanDistance returns the L2 distance between two vectors of equal length.
func EuclideanDistance(a, b Vector) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

// Confidence maps a match distance to a 0-100 score for display in audit views.
func Confidence(distance float64) float64 {
	c := (1 - distance) * 100
	if c < 0 {
		return 0
	}
	if c > 100 {
		return 100
	}
	return math.Round(c*10) / 10
}
