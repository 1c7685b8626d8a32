// Package scene ties the geometry pipeline together into the one
// unit the web layer, the store and the renderers all speak: a set of
// input parameters in, a fully computed result out. Every call
// recomputes from scratch; there is no state between invocations, so
// a share link replayed years later paints the same picture.
package scene

import (
	"fmt"
	"time"

	"apollonius-overlap-map/pkg/apollonius"
	"apollonius-overlap-map/pkg/raster"
)

// Parameter limits. The UI sliders mirror these; the server clamps
// again so hand-written URLs cannot request an unbounded mesh.
const (
	GridSpan      = 5.0
	MinDensity    = 3
	MaxDensity    = 100
	MinResolution = 50
	MaxResolution = 200
	MinK          = 0.1
	MaxK          = 10
)

// Scene modes. ModeFixed applies one slider ratio to all generators,
// ModeLCM derives a per-generator ratio from rational complexity.
const (
	ModeFixed = "fixed"
	ModeLCM   = "lcm"
)

// Params is everything a scene depends on. The zero value is not
// useful; start from Defaults or a parsed request and Clamp it.
type Params struct {
	Ax         float64 `json:"ax"`
	Ay         float64 `json:"ay"`
	Mode       string  `json:"mode"`
	K          float64 `json:"k"`
	Density    int     `json:"density"`
	Resolution int     `json:"resolution"`
}

// Defaults returns the scene first-time visitors see.
func Defaults() Params {
	return Params{Ax: 0.5, Ay: 0.5, Mode: ModeFixed, K: 0.5, Density: 7, Resolution: 100}
}

// Clamp forces every field into its documented range and normalizes
// the mode string. Out-of-range requests degrade to the nearest valid
// scene instead of failing, the same way the sliders would stop at
// their ends.
func (p Params) Clamp() Params {
	if p.Mode != ModeLCM {
		p.Mode = ModeFixed
	}
	p.Ax = clampFloat(p.Ax, -GridSpan, GridSpan)
	p.Ay = clampFloat(p.Ay, -GridSpan, GridSpan)
	p.K = clampFloat(p.K, MinK, MaxK)
	p.Density = clampInt(p.Density, MinDensity, MaxDensity)
	p.Resolution = clampInt(p.Resolution, MinResolution, MaxResolution)
	return p
}

// Key renders clamped parameters as one canonical string. The field
// order is fixed and floats print with %g, so the key doubles as a
// response-cache key and as the store's dedup column: two requests
// describe the same scene exactly when their keys are equal.
func (p Params) Key() string {
	p = p.Clamp()
	if p.Mode == ModeLCM {
		// k is irrelevant in the derived mode; pin it so slider
		// leftovers do not split identical scenes.
		return fmt.Sprintf("a=%g,%g mode=%s d=%d r=%d", p.Ax, p.Ay, p.Mode, p.Density, p.Resolution)
	}
	return fmt.Sprintf("a=%g,%g mode=%s k=%g d=%d r=%d", p.Ax, p.Ay, p.Mode, p.K, p.Density, p.Resolution)
}

// Rule picks the ratio strategy for the mode.
func (p Params) Rule() apollonius.RatioRule {
	if p.Mode == ModeLCM {
		return apollonius.ComplexityRatio{}
	}
	return apollonius.FixedRatio(p.K)
}

// Anchor returns point A.
func (p Params) Anchor() apollonius.Point {
	return apollonius.Point{X: p.Ax, Y: p.Ay}
}

// Grid returns the generator lattice spec for these parameters.
func (p Params) Grid() apollonius.GridSpec {
	return apollonius.GridSpec{Span: GridSpan, Density: p.Density}
}

// Result is a fully computed scene. Mask is row-major over Ys then
// Xs, the exact layout raster.Mask uses.
type Result struct {
	Params          Params              `json:"params"`
	Circles         []apollonius.Circle `json:"circles"`
	Bounds          raster.Bounds       `json:"bounds"`
	Xs              []float64           `json:"xs"`
	Ys              []float64           `json:"ys"`
	Mask            []bool              `json:"mask"`
	CircleCount     int                 `json:"circleCount"`
	OverlapFraction float64             `json:"overlapFraction"`
	NoCircles       bool                `json:"noCircles"`
	ElapsedMS       int64               `json:"elapsedMs"`
}

// Compute runs the whole pipeline: clamp, generate circles, frame the
// window, rasterize, measure. The error return is always nil today;
// it stays in the signature because store-backed call sites treat
// Compute like any other fallible step.
//
// With zero circles the raw mask would be all-true (an empty AND), so
// the result reports NoCircles with a zero fraction and an all-false
// mask instead: the page shows a notice, not a fully painted window.
func Compute(p Params) (*Result, error) {
	start := time.Now()
	p = p.Clamp()

	circles := apollonius.Generate(p.Anchor(), p.Grid(), p.Rule())
	bounds := raster.ComputeBounds(p.Anchor(), circles)

	res := &Result{
		Params:      p,
		Circles:     circles,
		Bounds:      bounds,
		CircleCount: len(circles),
	}

	if len(circles) == 0 {
		res.NoCircles = true
		res.Xs, res.Ys = raster.MeshAxes(bounds, p.Resolution)
		res.Mask = make([]bool, len(res.Xs)*len(res.Ys))
		res.ElapsedMS = time.Since(start).Milliseconds()
		return res, nil
	}

	mask := raster.Rasterize(bounds, p.Resolution, circles)
	res.Xs, res.Ys = raster.MeshAxes(bounds, p.Resolution)
	res.Mask = mask.Cells
	res.OverlapFraction = mask.Fraction()
	res.ElapsedMS = time.Since(start).Milliseconds()
	return res, nil
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
