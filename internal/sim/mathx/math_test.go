package mathx

import (
	"math"
	"testing"
)

func TestFloorDivAndMod(t *testing.T) {
	cases := []struct{ a, b, q, m int }{
		{0, 16, 0, 0},
		{15, 16, 0, 15},
		{16, 16, 1, 0},
		{-1, 16, -1, 15},
		{-16, 16, -1, 0},
		{-17, 16, -2, 15},
	}
	for _, c := range cases {
		if got := FloorDiv(c.a, c.b); got != c.q {
			t.Fatalf("FloorDiv(%d,%d)=%d want %d", c.a, c.b, got, c.q)
		}
		if got := Mod(c.a, c.b); got != c.m {
			t.Fatalf("Mod(%d,%d)=%d want %d", c.a, c.b, got, c.m)
		}
	}
}

func TestChebyshev(t *testing.T) {
	if got := Chebyshev(-3, 2); got != 3 {
		t.Fatalf("Chebyshev(-3,2)=%d want 3", got)
	}
	if got := Chebyshev(1, -4); got != 4 {
		t.Fatalf("Chebyshev(1,-4)=%d want 4", got)
	}
}

func TestHorizontalDist(t *testing.T) {
	if got := HorizontalDist(0, 0, 3, 4); math.Abs(got-5) > 1e-9 {
		t.Fatalf("dist=%v want 5", got)
	}
}

func TestHash2Stable(t *testing.T) {
	a := Hash2(42, 3, -7)
	b := Hash2(42, 3, -7)
	if a != b {
		t.Fatalf("hash not stable: %d vs %d", a, b)
	}
	if Hash2(42, 3, -7) == Hash2(43, 3, -7) {
		t.Fatalf("seed should change hash")
	}
	if Hash2(42, 3, -7) == Hash2(42, -7, 3) {
		t.Fatalf("axes should not commute")
	}
}
