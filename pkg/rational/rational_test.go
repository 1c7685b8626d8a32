package rational

import (
	"math"
	"testing"
)

// TestApproxFractionExact verifies that decimals short enough to fit
// the denominator bound come back as their exact reduced fractions,
// not as nearby approximations.
func TestApproxFractionExact(t *testing.T) {
	tests := []struct {
		x        float64
		num, den int64
	}{
		{0, 0, 1},
		{0.5, 1, 2},
		{-0.5, -1, 2},
		{0.25, 1, 4},
		{2, 2, 1},
		{-3, -3, 1},
		{0.75, 3, 4},
		{1.5, 3, 2},
		{0.125, 1, 8},
	}
	for _, tc := range tests {
		num, den, ok := ApproxFraction(tc.x, MaxDenominator)
		if !ok || num != tc.num || den != tc.den {
			t.Errorf("ApproxFraction(%v) = %d/%d ok=%v, want %d/%d", tc.x, num, den, ok, tc.num, tc.den)
		}
	}
}

// TestApproxFractionBounded checks the classic continued-fraction
// answers: the best bounded-denominator neighbours of pi and of
// repeating decimals that float64 cannot store exactly.
func TestApproxFractionBounded(t *testing.T) {
	tests := []struct {
		x        float64
		maxDen   int64
		num, den int64
	}{
		{math.Pi, 100, 311, 99},
		{math.Pi, 10000, 355, 113},
		{1.0 / 3.0, 10000, 1, 3},
		{2.0 / 3.0, 10000, 2, 3},
		{0.1, 10000, 1, 10},
		{-1.0 / 7.0, 10000, -1, 7},
	}
	for _, tc := range tests {
		num, den, ok := ApproxFraction(tc.x, tc.maxDen)
		if !ok || num != tc.num || den != tc.den {
			t.Errorf("ApproxFraction(%v, %d) = %d/%d ok=%v, want %d/%d", tc.x, tc.maxDen, num, den, ok, tc.num, tc.den)
		}
	}
}

// TestApproxFractionRejects ensures non-finite input never produces a
// fraction. A tiny subnormal is not an error: below the bound's
// resolution the honest answer is zero.
func TestApproxFractionRejects(t *testing.T) {
	if _, _, ok := ApproxFraction(math.NaN(), MaxDenominator); ok {
		t.Error("ApproxFraction(NaN) reported ok")
	}
	if _, _, ok := ApproxFraction(math.Inf(1), MaxDenominator); ok {
		t.Error("ApproxFraction(+Inf) reported ok")
	}
	if _, _, ok := ApproxFraction(1, 0); ok {
		t.Error("ApproxFraction with maxDen 0 reported ok")
	}
	num, den, ok := ApproxFraction(1e-300, MaxDenominator)
	if !ok || num != 0 || den != 1 {
		t.Errorf("ApproxFraction(1e-300) = %d/%d ok=%v, want 0/1", num, den, ok)
	}
}

// TestGCDLCM covers the exact arithmetic the complexity ranking
// stands on, including the overflow report.
func TestGCDLCM(t *testing.T) {
	if g := GCD(12, 18); g != 6 {
		t.Errorf("GCD(12,18) = %d, want 6", g)
	}
	if g := GCD(-4, 6); g != 2 {
		t.Errorf("GCD(-4,6) = %d, want 2", g)
	}
	if g := GCD(0, 0); g != 0 {
		t.Errorf("GCD(0,0) = %d, want 0", g)
	}
	if l, ok := LCM(4, 6); !ok || l != 12 {
		t.Errorf("LCM(4,6) = %d ok=%v, want 12", l, ok)
	}
	if l, ok := LCM(1, 1); !ok || l != 1 {
		t.Errorf("LCM(1,1) = %d ok=%v, want 1", l, ok)
	}
	if _, ok := LCM(math.MaxInt64, math.MaxInt64-1); ok {
		t.Error("LCM overflow reported ok")
	}
	if _, ok := LCM(0, 5); ok {
		t.Error("LCM(0,5) reported ok")
	}
}

// TestComplexity pins the values the derived-ratio mode depends on:
// integers rank 1, screen decimals recover their denominators, and
// the two coordinates combine through the LCM symmetrically.
func TestComplexity(t *testing.T) {
	tests := []struct {
		x, y float64
		want int64
	}{
		{0, 0, 1},
		{1, 2, 1},
		{0.5, 0.25, 4},
		{0.25, 0.5, 4},
		{1.0 / 3.0, 0.5, 6},
		{0.2, 0.3, 10},
		{-2.5, 1.5, 2},
	}
	for _, tc := range tests {
		if got := Complexity(tc.x, tc.y); got != tc.want {
			t.Errorf("Complexity(%v, %v) = %d, want %d", tc.x, tc.y, got, tc.want)
		}
	}
	if got := Complexity(math.NaN(), 1); got != 0 {
		t.Errorf("Complexity(NaN, 1) = %d, want 0", got)
	}
	if got := Complexity(1, math.Inf(-1)); got != 0 {
		t.Errorf("Complexity(1, -Inf) = %d, want 0", got)
	}
}

// TestListReducedFractions mirrors the original table: denominators
// up to 4, magnitudes up to 10, reduced forms only, sorted and
// deduplicated.
func TestListReducedFractions(t *testing.T) {
	got := ListReducedFractions([]int64{1, 2, 3, 4}, 10)
	// 20 integers, 10 halves, ~13 thirds... counting exactly:
	// d=1: 20, d=2: 20, d=3: 40, d=4: 40.
	want := 20 + 20 + 40 + 40
	if len(got) != want {
		t.Fatalf("len = %d, want %d", len(got), want)
	}
	for i := 1; i < len(got); i++ {
		if got[i-1] >= got[i] {
			t.Fatalf("not strictly ascending at %d: %v >= %v", i, got[i-1], got[i])
		}
	}
	for _, v := range got {
		if v == 0 {
			t.Fatal("zero slipped into the table")
		}
		if math.Abs(v) > 10 {
			t.Fatalf("magnitude above bound: %v", v)
		}
	}
	// Duplicate denominators must not duplicate values.
	again := ListReducedFractions([]int64{2, 2}, 1)
	if len(again) != 2 {
		t.Fatalf("dedup failed: %v", again)
	}
}
