package raster

import (
	"context"
	"math"
	"testing"

	"apollonius-overlap-map/pkg/apollonius"
)

// TestComputeBounds covers the union of circle boxes plus the anchor
// margin, and the fixed fallback square when no circle survived.
func TestComputeBounds(t *testing.T) {
	a := apollonius.Point{X: 0, Y: 0}
	circles := []apollonius.Circle{
		{X: 2, Y: 0, R: 1},
		{X: -1, Y: 3, R: 2},
	}
	b := ComputeBounds(a, circles)
	want := Bounds{MinX: -3, MaxX: 3, MinY: -1, MaxY: 5}
	if b != want {
		t.Fatalf("bounds = %+v, want %+v", b, want)
	}

	empty := ComputeBounds(apollonius.Point{X: 1, Y: -2}, nil)
	wantEmpty := Bounds{MinX: -4, MaxX: 6, MinY: -7, MaxY: 3}
	if empty != wantEmpty {
		t.Fatalf("fallback bounds = %+v, want %+v", empty, wantEmpty)
	}
}

// TestComputeBoundsAnchorMargin places the anchor outside the circle
// union so the unit margin has to widen the window.
func TestComputeBoundsAnchorMargin(t *testing.T) {
	a := apollonius.Point{X: 10, Y: 0}
	b := ComputeBounds(a, []apollonius.Circle{{X: 0, Y: 0, R: 1}})
	if b.MaxX != 11 {
		t.Fatalf("MaxX = %v, want 11 (anchor plus margin)", b.MaxX)
	}
	if b.MinX != -1 {
		t.Fatalf("MinX = %v, want -1 (circle edge)", b.MinX)
	}
}

// TestMeshAxes checks inclusive endpoints and even spacing.
func TestMeshAxes(t *testing.T) {
	xs, ys := MeshAxes(Bounds{MinX: -2, MaxX: 2, MinY: 0, MaxY: 1}, 5)
	if len(xs) != 5 || len(ys) != 5 {
		t.Fatalf("axis lengths %d, %d; want 5, 5", len(xs), len(ys))
	}
	if xs[0] != -2 || xs[4] != 2 || ys[0] != 0 || ys[4] != 1 {
		t.Fatalf("axes not inclusive: xs=%v ys=%v", xs, ys)
	}
	if math.Abs(xs[1]-(-1)) > 1e-12 {
		t.Fatalf("uneven spacing: xs[1] = %v, want -1", xs[1])
	}
}

// TestFractionConvergence rasterizes one circle of radius r over the
// [-2r, 2r] window. The true overlap share is pi/16; the sampling
// error must shrink as the mesh refines from 50 through 200.
func TestFractionConvergence(t *testing.T) {
	const r = 1.0
	circles := []apollonius.Circle{{X: 0, Y: 0, R: r}}
	b := Bounds{MinX: -2 * r, MaxX: 2 * r, MinY: -2 * r, MaxY: 2 * r}
	exact := math.Pi / 16

	var prevErr float64
	for i, n := range []int{50, 100, 200} {
		frac := Rasterize(b, n, circles).Fraction()
		err := math.Abs(frac - exact)
		if err > 0.01 {
			t.Fatalf("n=%d: fraction %v is %v away from pi/16", n, frac, err)
		}
		if i > 0 && err >= prevErr {
			t.Errorf("n=%d: error %v did not shrink from %v", n, err, prevErr)
		}
		prevErr = err
	}
}

// TestRasterizeBoundaryInclusive constructs a node landing exactly on
// the circle boundary and expects closed-disk classification.
func TestRasterizeBoundaryInclusive(t *testing.T) {
	// A 3-node axis over [-1, 1] samples exactly -1, 0, 1. With a unit
	// circle at the origin the four edge midpoints sit at distance
	// exactly r and must count as inside.
	circles := []apollonius.Circle{{X: 0, Y: 0, R: 1}}
	m := Rasterize(Bounds{MinX: -1, MaxX: 1, MinY: -1, MaxY: 1}, 3, circles)
	// Row-major cells over ys {-1,0,1} x xs {-1,0,1}.
	want := []bool{
		false, true, false,
		true, true, true,
		false, true, false,
	}
	for i, w := range want {
		if m.Cells[i] != w {
			t.Fatalf("cell %d = %v, want %v (full mask %v)", i, m.Cells[i], w, m.Cells)
		}
	}
}

// TestRasterizeZeroCircles checks the documented empty-conjunction
// contract: no circles means every node passes, and nothing faults.
func TestRasterizeZeroCircles(t *testing.T) {
	m := Rasterize(Bounds{MinX: 0, MaxX: 1, MinY: 0, MaxY: 1}, 50, nil)
	if len(m.Cells) != 2500 {
		t.Fatalf("mask size %d, want 2500", len(m.Cells))
	}
	for i, in := range m.Cells {
		if !in {
			t.Fatalf("cell %d false; the empty AND must be all-true", i)
		}
	}
	if f := m.Fraction(); f != 1 {
		t.Fatalf("fraction = %v, want 1", f)
	}
}

// TestRasterizeIdempotent requires bit-identical masks and fractions
// across repeated runs with identical inputs.
func TestRasterizeIdempotent(t *testing.T) {
	circles := []apollonius.Circle{
		{X: 0.3, Y: -0.2, R: 1.7},
		{X: -0.5, Y: 0.9, R: 2.2},
	}
	b := Bounds{MinX: -3, MaxX: 3, MinY: -3, MaxY: 3}
	first := Rasterize(b, 120, circles)
	second := Rasterize(b, 120, circles)
	if len(first.Cells) != len(second.Cells) {
		t.Fatalf("mask sizes differ: %d vs %d", len(first.Cells), len(second.Cells))
	}
	for i := range first.Cells {
		if first.Cells[i] != second.Cells[i] {
			t.Fatalf("cell %d differs between runs", i)
		}
	}
	if first.Fraction() != second.Fraction() {
		t.Fatal("fractions differ between runs")
	}
}

// TestRasterizeRowsMatchesRasterize streams the same scene and glues
// the rows back together; the result must equal the one-shot mask.
func TestRasterizeRowsMatchesRasterize(t *testing.T) {
	circles := []apollonius.Circle{{X: 0, Y: 0, R: 2}, {X: 1, Y: 0, R: 2}}
	b := Bounds{MinX: -3, MaxX: 3, MinY: -3, MaxY: 3}
	whole := Rasterize(b, 60, circles)

	var streamed []bool
	next := 0
	for row := range RasterizeRows(context.Background(), b, 60, circles) {
		if row.Index != next {
			t.Fatalf("row %d arrived out of order (want %d)", row.Index, next)
		}
		next++
		streamed = append(streamed, row.Cells...)
	}
	if len(streamed) != len(whole.Cells) {
		t.Fatalf("streamed %d cells, one-shot %d", len(streamed), len(whole.Cells))
	}
	for i := range streamed {
		if streamed[i] != whole.Cells[i] {
			t.Fatalf("cell %d differs between streamed and one-shot masks", i)
		}
	}
}

// TestRasterizeRowsCancel stops consuming mid-stream and relies on
// context cancellation to end the producer without a deadlock.
func TestRasterizeRowsCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	rows := RasterizeRows(ctx, Bounds{MinX: -5, MaxX: 5, MinY: -5, MaxY: 5}, 200, []apollonius.Circle{{R: 1}})
	<-rows
	cancel()
	for range rows {
		// Drain whatever was in flight; the channel must close.
	}
}

// TestMaskFloats verifies the 0/1 cast used by the contour painter.
func TestMaskFloats(t *testing.T) {
	m := Mask{N: 2, Cells: []bool{true, false, false, true}}
	want := []float64{1, 0, 0, 1}
	for i, f := range m.Floats() {
		if f != want[i] {
			t.Fatalf("float cell %d = %v, want %v", i, f, want[i])
		}
	}
	if f := m.Fraction(); f != 0.5 {
		t.Fatalf("fraction = %v, want 0.5", f)
	}
}
