package apollonius

import "gonum.org/v1/gonum/floats"

// GridSpec describes the square lattice of generator points: Span is
// the half-width of the square centered on the origin, Density the
// number of points per axis including both edges.
type GridSpec struct {
	Span    float64 `json:"span"`
	Density int     `json:"density"`
}

// Points returns the lattice in row-major order: the y axis walks
// bottom to top, x left to right inside each row. The order carries
// no meaning downstream but it is fixed, so two runs over the same
// spec always enumerate generators identically.
func (s GridSpec) Points() []Point {
	n := s.Density
	if n < 2 {
		n = 2
	}
	axis := floats.Span(make([]float64, n), -s.Span, s.Span)

	pts := make([]Point, 0, n*n)
	for _, y := range axis {
		for _, x := range axis {
			pts = append(pts, Point{X: x, Y: y})
		}
	}
	return pts
}
