// Package locate finds procedurally placed veins around a position.
//
// Cells are visited in square rings of increasing Chebyshev radius. Because
// distance is Euclidean on the x/z plane, a hit in ring r is not necessarily
// the nearest; Locate keeps scanning until no farther ring can beat the best
// hit, so it returns the true nearest vein within the searched square.
package locate

import (
	"errors"
	"fmt"

	"veinlocate.ai/internal/sim/catalogs"
	"veinlocate.ai/internal/sim/grid"
	"veinlocate.ai/internal/sim/mathx"
	"veinlocate.ai/internal/sim/terrain/gen"
)

var ErrRadiusOutOfBounds = errors.New("radius out of bounds")

// Placer is the read-only generator view the locator queries. Placements must
// lie inside the cell they are returned for.
type Placer interface {
	CellSize() int
	PlacementAt(c grid.Cell) (gen.Placement, bool)
}

// Predicate selects eligible veins. A nil Predicate matches every vein.
type Predicate func(catalogs.VeinDef) bool

// MatchID selects a single vein id; an empty id matches everything.
func MatchID(id string) Predicate {
	if id == "" {
		return nil
	}
	return func(d catalogs.VeinDef) bool { return d.ID == id }
}

type Match struct {
	Cell     grid.Cell
	Pos      grid.BlockPos
	Vein     catalogs.VeinDef
	Distance float64 // horizontal, to the query origin
}

func ValidateRadius(radius, max int) error {
	if radius < 0 || radius > max {
		return fmt.Errorf("%w: %d not in [0, %d]", ErrRadiusOutOfBounds, radius, max)
	}
	return nil
}

// Locate returns the vein nearest to origin within radius cells. Equal
// distances keep the first one discovered. radius must already be validated.
func Locate(origin grid.Vec3, p Placer, radius int, pred Predicate) (Match, bool) {
	size := p.CellSize()
	var (
		best  Match
		found bool
	)
	grid.WalkRings(grid.CellOf(origin, size), radius, func(r int, c grid.Cell) bool {
		// Every cell in ring r is at least (r-1)*size away from origin.
		if found && float64((r-1)*size) > best.Distance {
			return false
		}
		m, ok := matchAt(origin, p, c, pred)
		if ok && (!found || m.Distance < best.Distance) {
			best, found = m, true
		}
		return true
	})
	return best, found
}

// All returns every eligible vein within radius cells whose position is at
// most radius*cellSize from origin, in ring discovery order.
func All(origin grid.Vec3, p Placer, radius int, pred Predicate) []Match {
	size := p.CellSize()
	limit := float64(radius * size)
	var out []Match
	grid.WalkRings(grid.CellOf(origin, size), radius, func(_ int, c grid.Cell) bool {
		if m, ok := matchAt(origin, p, c, pred); ok && m.Distance <= limit {
			out = append(out, m)
		}
		return true
	})
	return out
}

func matchAt(origin grid.Vec3, p Placer, c grid.Cell, pred Predicate) (Match, bool) {
	pl, ok := p.PlacementAt(c)
	if !ok {
		return Match{}, false
	}
	if pred != nil && !pred(pl.Vein) {
		return Match{}, false
	}
	return Match{
		Cell:     c,
		Pos:      pl.Pos,
		Vein:     pl.Vein,
		Distance: mathx.HorizontalDist(origin.X, origin.Z, float64(pl.Pos.X), float64(pl.Pos.Z)),
	}, true
}
