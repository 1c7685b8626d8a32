// Package raster discretizes a family of circles onto a square mesh
// and computes the region lying inside every circle at once.
//
// The mask is the product of a tolerance-free closed-disk test per
// node per circle, so identical inputs always produce a bit-identical
// mask. The accuracy knob is the mesh resolution alone.
package raster

import (
	"context"

	"gonum.org/v1/gonum/floats"

	"apollonius-overlap-map/pkg/apollonius"
)

// fallbackHalfWidth frames the view when no circle survived: a square
// of this half-width centered on the anchor.
const fallbackHalfWidth = 5.0

// anchorMargin is the padding kept visible around the anchor point on
// every side of the computed bounds.
const anchorMargin = 1.0

// Bounds is an axis-aligned window on the plane.
type Bounds struct {
	MinX float64 `json:"minX"`
	MaxX float64 `json:"maxX"`
	MinY float64 `json:"minY"`
	MaxY float64 `json:"maxY"`
}

// ComputeBounds unions the bounding squares of all circles, then
// widens the window so the anchor keeps a unit margin on each side.
// With no circles the window degenerates to the fixed fallback square
// around the anchor, a defined state rather than an error.
func ComputeBounds(a apollonius.Point, circles []apollonius.Circle) Bounds {
	if len(circles) == 0 {
		return Bounds{
			MinX: a.X - fallbackHalfWidth, MaxX: a.X + fallbackHalfWidth,
			MinY: a.Y - fallbackHalfWidth, MaxY: a.Y + fallbackHalfWidth,
		}
	}

	b := Bounds{
		MinX: circles[0].X - circles[0].R, MaxX: circles[0].X + circles[0].R,
		MinY: circles[0].Y - circles[0].R, MaxY: circles[0].Y + circles[0].R,
	}
	for _, c := range circles[1:] {
		b.MinX = min(b.MinX, c.X-c.R)
		b.MaxX = max(b.MaxX, c.X+c.R)
		b.MinY = min(b.MinY, c.Y-c.R)
		b.MaxY = max(b.MaxY, c.Y+c.R)
	}
	b.MinX = min(b.MinX, a.X-anchorMargin)
	b.MaxX = max(b.MaxX, a.X+anchorMargin)
	b.MinY = min(b.MinY, a.Y-anchorMargin)
	b.MaxY = max(b.MaxY, a.Y+anchorMargin)
	return b
}

// MeshAxes samples both axes of the window with n points, inclusive
// of both edges.
func MeshAxes(b Bounds, n int) (xs, ys []float64) {
	if n < 2 {
		n = 2
	}
	xs = floats.Span(make([]float64, n), b.MinX, b.MaxX)
	ys = floats.Span(make([]float64, n), b.MinY, b.MaxY)
	return xs, ys
}

// Mask is the n-by-n intersection field, row-major with the y axis as
// the slow index. A cell is true when its node lies inside every
// circle of the input set.
//
// With zero circles the conjunction is empty and every cell is true.
// Callers that want "no region" for an empty set check the circle
// count before asking for statistics.
type Mask struct {
	N     int    `json:"n"`
	Cells []bool `json:"cells"`
}

// Row is one rasterized mesh line, emitted in order by RasterizeRows.
type Row struct {
	Index int    `json:"index"`
	Cells []bool `json:"cells"`
}

// Rasterize classifies every node of the n-by-n mesh over b. It is
// the one-shot form of RasterizeRows and shares its classifier, so
// the streamed and the buffered answers can never drift apart.
func Rasterize(b Bounds, n int, circles []apollonius.Circle) Mask {
	xs, ys := MeshAxes(b, n)
	m := Mask{N: len(xs), Cells: make([]bool, 0, len(xs)*len(ys))}
	for _, y := range ys {
		m.Cells = append(m.Cells, classifyRow(xs, y, circles)...)
	}
	return m
}

// RasterizeRows streams the mask one mesh line at a time so a caller
// can forward partial progress to a client. Rows arrive in index
// order; the channel closes after the last row or when ctx ends.
func RasterizeRows(ctx context.Context, b Bounds, n int, circles []apollonius.Circle) <-chan Row {
	xs, ys := MeshAxes(b, n)
	out := make(chan Row)
	go func() {
		defer close(out)
		for i, y := range ys {
			select {
			case out <- Row{Index: i, Cells: classifyRow(xs, y, circles)}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// classifyRow runs the closed-disk test for one horizontal mesh line.
// The boundary belongs to the disk: a node at distance exactly r is
// inside, which keeps exact-radius constructions stable in tests.
func classifyRow(xs []float64, y float64, circles []apollonius.Circle) []bool {
	row := make([]bool, len(xs))
	for i, x := range xs {
		inside := true
		for _, c := range circles {
			dx := x - c.X
			dy := y - c.Y
			if dx*dx+dy*dy > c.R*c.R {
				inside = false
				break
			}
		}
		row[i] = inside
	}
	return row
}

// Floats returns the mask as 0/1 values, the form contour painters
// and the JSON API consume.
func (m Mask) Floats() []float64 {
	out := make([]float64, len(m.Cells))
	for i, in := range m.Cells {
		if in {
			out[i] = 1
		}
	}
	return out
}

// Fraction is the share of mesh nodes inside the intersection: an
// estimate of the region's area relative to the window, not an area
// in world units.
func (m Mask) Fraction() float64 {
	if len(m.Cells) == 0 {
		return 0
	}
	return floats.Sum(m.Floats()) / float64(len(m.Cells))
}
