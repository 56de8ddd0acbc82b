package gen

import (
	"veinlocate.ai/internal/sim/catalogs"
	"veinlocate.ai/internal/sim/grid"
	"veinlocate.ai/internal/sim/mathx"
)

const (
	saltVein  = 501
	saltPick  = 502
	saltBiome = 0
)

func BiomeFrom(noise uint64) string {
	switch noise % 3 {
	case 0:
		return catalogs.BiomePlains
	case 1:
		return catalogs.BiomeForest
	default:
		return catalogs.BiomeDesert
	}
}

func BiomeAt(seed int64, x, z, regionSize int) string {
	if regionSize <= 0 {
		regionSize = 1
	}
	rx := mathx.FloorDiv(x, regionSize)
	rz := mathx.FloorDiv(z, regionSize)
	return BiomeFrom(mathx.Hash2(seed+saltBiome, rx, rz))
}

func ClampPermille(v int) int {
	if v < 0 {
		return 0
	}
	if v > 1000 {
		return 1000
	}
	return v
}

// Placement is the vein a cell would hold.
type Placement struct {
	Pos  grid.BlockPos
	Vein catalogs.VeinDef
}

// Generator answers what vein, if any, each cell holds. It never writes; a
// single value is safe for concurrent use once built.
type Generator struct {
	Seed             int64
	Size             int
	VeinProbPermille int
	BiomeRegionSize  int
	Veins            *catalogs.Veins
}

func (g *Generator) CellSize() int {
	if g.Size <= 0 {
		return grid.DefaultCellSize
	}
	return g.Size
}

// PlacementAt places at most one vein per cell. Presence, column and height
// come from one hash of the cell; the descriptor comes from a weighted pick
// over the defs allowed in the column's biome.
func (g *Generator) PlacementAt(c grid.Cell) (Placement, bool) {
	if g == nil || g.Veins == nil || len(g.Veins.Defs) == 0 {
		return Placement{}, false
	}
	h := mathx.Hash2(g.Seed+saltVein, c.X, c.Z)
	if h%1000 >= uint64(ClampPermille(g.VeinProbPermille)) {
		return Placement{}, false
	}

	size := g.CellSize()
	minX, minZ := c.MinBlock(size)
	x := minX + int((h>>10)%uint64(size))
	z := minZ + int((h>>20)%uint64(size))
	biome := BiomeAt(g.Seed, x, z, g.BiomeRegionSize)

	// Weights are capped at catalogs.MaxWeight; summing in uint64 keeps the
	// total exact for any catalog that fits in memory.
	var total uint64
	for _, d := range g.Veins.Defs {
		if d.AllowsBiome(biome) && d.Weight > 0 {
			total += uint64(d.Weight)
		}
	}
	if total == 0 {
		return Placement{}, false
	}
	roll := mathx.Hash2(g.Seed+saltPick, c.X, c.Z) % total
	for _, d := range g.Veins.Defs {
		if !d.AllowsBiome(biome) || d.Weight <= 0 {
			continue
		}
		w := uint64(d.Weight)
		if roll < w {
			span := uint64(d.MaxY - d.MinY + 1)
			y := d.MinY + int((h>>40)%span)
			return Placement{Pos: grid.BlockPos{X: x, Y: y, Z: z}, Vein: d}, true
		}
		roll -= w
	}
	return Placement{}, false
}
