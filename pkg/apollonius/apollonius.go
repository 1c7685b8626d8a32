// Package apollonius derives circles of Apollonius: for two anchor
// points and a ratio k, the locus of points whose distances to the
// anchors stay in the ratio k is a circle (as long as k is not 1 and
// the anchors do not coincide).
//
// Everything in this package is a pure function over value types.
// Degenerate inputs never panic and never produce a "best effort"
// circle; they simply report that no circle exists and leave the
// decision to the caller.
package apollonius

import "math"

// Tolerance is the shared geometric epsilon. Distances and ratio
// offsets below it are treated as zero, which turns the three
// degenerate cases (coincident anchors, k=1, vanishing denominator)
// into clean "no circle" answers instead of float blow-ups.
const Tolerance = 1e-6

// Point is a location on the plane.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Circle is a center plus radius. A Circle value only ever comes out
// of Build, so its radius is always positive.
type Circle struct {
	X float64 `json:"cx"`
	Y float64 `json:"cy"`
	R float64 `json:"r"`
}

// Coincident reports whether q sits on top of p within Tolerance on
// both axes. The grid walk uses it to drop the generator that equals
// the anchor before any circle math runs.
func (p Point) Coincident(q Point) bool {
	return math.Abs(p.X-q.X) < Tolerance && math.Abs(p.Y-q.Y) < Tolerance
}

// Build computes the Apollonius circle for anchors p1, p2 and ratio k:
// the set of points P with dist(P, p1) = k * dist(P, p2).
//
// ok is false for the three degeneracies: coincident anchors, k within
// Tolerance of 1 (the locus is the perpendicular bisector, a line),
// and a denominator 1-k^2 within Tolerance of zero. The last check
// looks redundant next to the k=1 guard but keeps the division safe
// on its own terms, so reordering the guards can never reintroduce
// the blow-up.
func Build(p1, p2 Point, k float64) (Circle, bool) {
	d := math.Hypot(p2.X-p1.X, p2.Y-p1.Y)
	if d < Tolerance {
		return Circle{}, false
	}
	if math.Abs(k-1) < Tolerance {
		return Circle{}, false
	}
	k2 := k * k
	denom := 1 - k2
	if math.Abs(denom) < Tolerance {
		return Circle{}, false
	}

	c := Circle{
		X: (p1.X - k2*p2.X) / denom,
		Y: (p1.Y - k2*p2.Y) / denom,
		R: math.Abs(k * d / denom),
	}
	return c, true
}
