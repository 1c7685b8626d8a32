package apollonius

import (
	"math"
	"testing"
)

// TestComplexityRatioAdmission walks the admission rule: a generator
// is in while its complexity is positive and at most the anchor's,
// with k the quotient of the two.
func TestComplexityRatioAdmission(t *testing.T) {
	a := Point{0.5, 0.25} // complexity LCM(2,4) = 4
	tests := []struct {
		name  string
		g     Point
		k     float64
		admit bool
	}{
		{"integer generator", Point{1, 2}, 0.25, true},
		{"halves", Point{1.5, -0.5}, 0.5, true},
		{"thirds", Point{1.0 / 3.0, 1}, 0.75, true},
		{"equal complexity", Point{0.25, 0.5}, 1, true},
		{"too complex", Point{0.1, 0.01}, 0, false},
	}
	rule := ComplexityRatio{}
	for _, tc := range tests {
		k, ok := rule.Ratio(a, tc.g)
		if ok != tc.admit {
			t.Errorf("%s: admitted=%v, want %v", tc.name, ok, tc.admit)
			continue
		}
		if ok && math.Abs(k-tc.k) > 1e-12 {
			t.Errorf("%s: k = %v, want %v", tc.name, k, tc.k)
		}
	}
}

// TestComplexityRatioEqualFallsToBuilder pins the intended handling of
// equal complexities: the rule passes k=1 through and the builder is
// the one to reject the degenerate locus.
func TestComplexityRatioEqualFallsToBuilder(t *testing.T) {
	a := Point{0.5, 0.5}
	g := Point{1.5, -0.5} // same complexity 2
	k, ok := ComplexityRatio{}.Ratio(a, g)
	if !ok || k != 1 {
		t.Fatalf("Ratio = %v, %v; want 1, true", k, ok)
	}
	if _, ok := Build(a, g, k); ok {
		t.Fatal("builder accepted the k=1 locus")
	}
}

// TestGenerateLCMMode runs a whole derived-ratio generation with an
// anchor of complexity 1: only equally simple generators qualify and
// all of those land on k=1, so the circle list must come out empty.
func TestGenerateLCMMode(t *testing.T) {
	circles := Generate(Point{1, 2}, GridSpec{Span: 5, Density: 3}, ComplexityRatio{})
	if len(circles) != 0 {
		t.Fatalf("integer anchor admitted %d circles, want 0", len(circles))
	}
}

// TestGenerateLCMModeAdmits uses a half-integer anchor so integer
// lattice points derive k=1/2 and survive the builder.
func TestGenerateLCMModeAdmits(t *testing.T) {
	circles := Generate(Point{0.5, 0.5}, GridSpec{Span: 5, Density: 3}, ComplexityRatio{})
	if len(circles) != 9 {
		t.Fatalf("got %d circles, want 9 (every integer lattice point at k=1/2)", len(circles))
	}
	for i, c := range circles {
		if c.R <= 0 {
			t.Errorf("circle %d has radius %v", i, c.R)
		}
	}
}
