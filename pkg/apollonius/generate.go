package apollonius

// Generate walks the grid and collects the Apollonius circle of every
// (a, g) pair the rule admits. Skips are silent: a generator sitting
// on the anchor, a declined ratio, or a degenerate circle all just
// shrink the result. An empty slice is a valid outcome the caller can
// present as "nothing to intersect".
func Generate(a Point, spec GridSpec, rule RatioRule) []Circle {
	var circles []Circle
	for _, g := range spec.Points() {
		if a.Coincident(g) {
			continue
		}
		k, ok := rule.Ratio(a, g)
		if !ok {
			continue
		}
		c, ok := Build(a, g, k)
		if !ok {
			continue
		}
		circles = append(circles, c)
	}
	return circles
}
