package grid

// Ring returns the offsets at Chebyshev distance r from the center, in a fixed
// order: dx ascending, then dz ascending. Ring 0 is the center alone; ring r>0
// holds only boundary cells (8r of them).
func Ring(r int) []Offset {
	if r < 0 {
		return nil
	}
	if r == 0 {
		return []Offset{{0, 0}}
	}
	out := make([]Offset, 0, 8*r)
	for dx := -r; dx <= r; dx++ {
		if dx == -r || dx == r {
			for dz := -r; dz <= r; dz++ {
				out = append(out, Offset{DX: dx, DZ: dz})
			}
			continue
		}
		out = append(out, Offset{DX: dx, DZ: -r}, Offset{DX: dx, DZ: r})
	}
	return out
}

// WalkRings visits every cell within Chebyshev radius maxR of center, ring by
// ring. fn receives the ring index and the cell; returning false stops the walk.
func WalkRings(center Cell, maxR int, fn func(r int, c Cell) bool) {
	for r := 0; r <= maxR; r++ {
		for _, o := range Ring(r) {
			if !fn(r, center.Add(o)) {
				return
			}
		}
	}
}
