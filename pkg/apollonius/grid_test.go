package apollonius

import (
	"math"
	"testing"
)

// TestGridPoints verifies the lattice size, both edges, and the
// row-major walk order the rest of the pipeline relies on for
// reproducible circle lists.
func TestGridPoints(t *testing.T) {
	pts := GridSpec{Span: 5, Density: 3}.Points()
	want := []Point{
		{-5, -5}, {0, -5}, {5, -5},
		{-5, 0}, {0, 0}, {5, 0},
		{-5, 5}, {0, 5}, {5, 5},
	}
	if len(pts) != len(want) {
		t.Fatalf("got %d points, want %d", len(pts), len(want))
	}
	for i := range want {
		if math.Abs(pts[i].X-want[i].X) > 1e-12 || math.Abs(pts[i].Y-want[i].Y) > 1e-12 {
			t.Errorf("point %d = %+v, want %+v", i, pts[i], want[i])
		}
	}
}

// TestGridPointsDensity checks the count for a denser lattice and that
// the edges stay inclusive.
func TestGridPointsDensity(t *testing.T) {
	pts := GridSpec{Span: 5, Density: 7}.Points()
	if len(pts) != 49 {
		t.Fatalf("density 7: got %d points, want 49", len(pts))
	}
	first, last := pts[0], pts[len(pts)-1]
	if first.X != -5 || first.Y != -5 || last.X != 5 || last.Y != 5 {
		t.Errorf("lattice corners %+v .. %+v, want (-5,-5) .. (5,5)", first, last)
	}
}

// TestGenerateSkipsAnchor plants the anchor exactly on a lattice point
// and confirms that generator never contributes a circle.
func TestGenerateSkipsAnchor(t *testing.T) {
	a := Point{0, 0}
	spec := GridSpec{Span: 5, Density: 3}
	circles := Generate(a, spec, FixedRatio(0.5))
	if len(circles) != 8 {
		t.Fatalf("got %d circles, want 8 (9 lattice points minus the anchor)", len(circles))
	}
}

// TestGenerateDeterministic runs the same generation twice and expects
// identical circle lists in identical order.
func TestGenerateDeterministic(t *testing.T) {
	a := Point{0.5, 0.25}
	spec := GridSpec{Span: 5, Density: 5}
	first := Generate(a, spec, FixedRatio(0.4))
	second := Generate(a, spec, FixedRatio(0.4))
	if len(first) != len(second) {
		t.Fatalf("lengths differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("circle %d differs: %+v vs %+v", i, first[i], second[i])
		}
	}
}

// TestGenerateKOne uses a fixed ratio of exactly 1: every pair is
// degenerate and the result must be empty, not an error.
func TestGenerateKOne(t *testing.T) {
	circles := Generate(Point{0.5, 0.5}, GridSpec{Span: 5, Density: 5}, FixedRatio(1))
	if len(circles) != 0 {
		t.Fatalf("k=1 produced %d circles, want 0", len(circles))
	}
}
