package apollonius

import "apollonius-overlap-map/pkg/rational"

// RatioRule decides the ratio k for one (anchor, generator) pair, or
// declines the pair entirely. The two implementations below are the
// two scene modes; keeping them behind one interface lets the grid
// walk and the web layer stay identical for both.
type RatioRule interface {
	Ratio(a, g Point) (k float64, ok bool)
}

// FixedRatio applies the same k to every generator. The slider mode.
type FixedRatio float64

func (f FixedRatio) Ratio(a, g Point) (float64, bool) {
	return float64(f), true
}

// ComplexityRatio derives k from the rational complexity of the two
// points: k = complexity(g) / complexity(a). A generator is admitted
// only while its complexity is positive and does not exceed the
// anchor's, so a "simple" anchor sees few circles and messier anchors
// progressively admit more of the grid.
//
// Equal complexities yield k = 1 exactly. That is passed through on
// purpose: Build rejects k=1 as degenerate, and routing the rejection
// there keeps both modes subject to one set of geometric guards.
type ComplexityRatio struct{}

func (ComplexityRatio) Ratio(a, g Point) (float64, bool) {
	lcmA := rational.Complexity(a.X, a.Y)
	lcmG := rational.Complexity(g.X, g.Y)
	if lcmG == 0 || lcmG > lcmA {
		return 0, false
	}
	return float64(lcmG) / float64(lcmA), true
}
