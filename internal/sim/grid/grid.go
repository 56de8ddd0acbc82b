// Package grid holds the coarse cell coordinates veins are placed on and the
// square-ring traversal used to search them.
package grid

import (
	"errors"
	"fmt"
	"math"

	"veinlocate.ai/internal/sim/mathx"
)

// DefaultCellSize matches a 16x16 chunk column.
const DefaultCellSize = 16

// Vec3 is a continuous world position.
type Vec3 struct {
	X, Y, Z float64
}

// BlockPos is an integer world position.
type BlockPos struct {
	X, Y, Z int
}

func (p BlockPos) String() string { return fmt.Sprintf("%d %d %d", p.X, p.Y, p.Z) }

// Vec returns the block position as a continuous position.
func (p BlockPos) Vec() Vec3 { return Vec3{X: float64(p.X), Y: float64(p.Y), Z: float64(p.Z)} }

// MaxCoord bounds every axis of a query origin, in blocks. It matches the
// vanilla world border and keeps Block and cell math in int range.
const MaxCoord = 30_000_000

var ErrBadCoord = errors.New("coordinate out of range")

// CheckAxis rejects NaN, infinities and magnitudes beyond MaxCoord.
func CheckAxis(name string, f float64) error {
	if math.IsNaN(f) || math.IsInf(f, 0) || math.Abs(f) > MaxCoord {
		return fmt.Errorf("%w: %s=%v (|%s| must be <= %d)", ErrBadCoord, name, f, name, MaxCoord)
	}
	return nil
}

// Check applies CheckAxis to every axis.
func (v Vec3) Check() error {
	if err := CheckAxis("x", v.X); err != nil {
		return err
	}
	if err := CheckAxis("y", v.Y); err != nil {
		return err
	}
	return CheckAxis("z", v.Z)
}

// Block floors every axis. v must pass Check.
func (v Vec3) Block() BlockPos {
	return BlockPos{
		X: int(math.Floor(v.X)),
		Y: int(math.Floor(v.Y)),
		Z: int(math.Floor(v.Z)),
	}
}

// Cell identifies one placement cell (a chunk column for size 16).
type Cell struct {
	X int `json:"x"`
	Z int `json:"z"`
}

func (c Cell) String() string { return fmt.Sprintf("(%d,%d)", c.X, c.Z) }

// Offset is a cell delta relative to a ring center.
type Offset struct {
	DX, DZ int
}

func (c Cell) Add(o Offset) Cell { return Cell{X: c.X + o.DX, Z: c.Z + o.DZ} }

// MinBlock returns the lowest x/z block coordinate covered by the cell.
func (c Cell) MinBlock(size int) (x, z int) { return c.X * size, c.Z * size }

// Contains reports whether block coordinates x/z fall inside the cell.
func (c Cell) Contains(size, x, z int) bool {
	return mathx.FloorDiv(x, size) == c.X && mathx.FloorDiv(z, size) == c.Z
}

// CellOf quantizes a continuous position: floor(axis / size).
func CellOf(v Vec3, size int) Cell {
	return BlockCell(v.Block(), size)
}

// BlockCell quantizes an integer block position.
func BlockCell(p BlockPos, size int) Cell {
	if size <= 0 {
		size = DefaultCellSize
	}
	return Cell{X: mathx.FloorDiv(p.X, size), Z: mathx.FloorDiv(p.Z, size)}
}
