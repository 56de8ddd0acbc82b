package mathx

import "math"

func FloorDiv(a, b int) int {
	// b > 0
	q := a / b
	r := a % b
	if r < 0 {
		q--
	}
	return q
}

func Mod(a, b int) int {
	// b > 0
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}

func AbsInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// Chebyshev returns max(|dx|, |dz|).
func Chebyshev(dx, dz int) int {
	ax, az := AbsInt(dx), AbsInt(dz)
	if ax > az {
		return ax
	}
	return az
}

// HorizontalDist is the Euclidean distance on the x/z plane.
func HorizontalDist(ax, az, bx, bz float64) float64 {
	dx := ax - bx
	dz := az - bz
	return math.Sqrt(dx*dx + dz*dz)
}

func mix64(z uint64) uint64 {
	z += 0x9e3779b97f4a7c15
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

// Hash2 is stable across platforms and releases; placement depends on it.
func Hash2(seed int64, x, z int) uint64 {
	ux := uint64(uint32(int32(x)))
	uz := uint64(uint32(int32(z)))
	v := uint64(seed) ^ (ux * 0x9e3779b97f4a7c15) ^ (uz * 0xbf58476d1ce4e5b9)
	return mix64(v)
}
