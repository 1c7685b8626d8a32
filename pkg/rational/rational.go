// Package rational turns floating point coordinates back into small
// fractions. The scene code uses it to rank points by how "simple"
// they are: the least common multiple of the two coordinate
// denominators is the complexity of a point, and ratios of
// complexities drive the derived-ratio scene mode.
//
// Everything here is exact int64 arithmetic. We prefer reporting
// overflow over returning a plausible but wrong number, so the zero
// complexity is a sentinel callers test for, never a real result.
package rational

import (
	"math"
	"sort"
)

// MaxDenominator bounds every approximation made for complexity
// ranking. 10000 keeps denominators human sized while still
// recovering screen-precision decimals exactly.
const MaxDenominator = 10000

// GCD returns the greatest common divisor of |a| and |b|.
// GCD(0, 0) is 0 so that LCM can detect the degenerate pair.
func GCD(a, b int64) int64 {
	if a < 0 {
		a = -a
	}
	if b < 0 {
		b = -b
	}
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

// LCM returns the least common multiple of a and b. The boolean is
// false when the product leaves int64, or when either argument is
// zero or negative. We divide before multiplying so the only overflow
// left to catch is the real one.
func LCM(a, b int64) (int64, bool) {
	if a <= 0 || b <= 0 {
		return 0, false
	}
	g := GCD(a, b)
	q := a / g
	if q > math.MaxInt64/b {
		return 0, false
	}
	return q * b, true
}

// ApproxFraction finds the best rational approximation num/den of x
// with 1 <= den <= maxDen, walking the continued-fraction convergents
// and then checking the final semiconvergent, the same procedure
// Python's Fraction.limit_denominator performs. The result is always
// in lowest terms. ok is false for NaN, infinities, maxDen < 1, and
// values whose exact binary fraction does not fit int64.
func ApproxFraction(x float64, maxDen int64) (num, den int64, ok bool) {
	if maxDen < 1 || math.IsNaN(x) || math.IsInf(x, 0) {
		return 0, 0, false
	}
	if x == 0 {
		return 0, 1, true
	}
	neg := math.Signbit(x)
	n, d, ok := exactFraction(math.Abs(x))
	if !ok {
		// Subnormal-small magnitudes have no int64 binary form, but
		// everything below 1/(2*maxDen) rounds to zero anyway.
		if math.Abs(x) <= 1/(2*float64(maxDen)) {
			return 0, 1, true
		}
		return 0, 0, false
	}
	if d <= maxDen {
		if neg {
			n = -n
		}
		return n, d, true
	}

	// Convergent recurrence. p1/q1 chases x from alternating sides;
	// the loop stops one step before the denominator bound breaks.
	var p0, q0, p1, q1 int64 = 0, 1, 1, 0
	for {
		a := n / d
		q2 := q0 + a*q1
		if q2 > maxDen {
			break
		}
		p0, q0, p1, q1 = p1, q1, p0+a*p1, q2
		n, d = d, n-a*d
	}

	// The best approximation is either the last convergent or the
	// deepest semiconvergent that still respects the bound.
	k := (maxDen - q0) / q1
	sp, sq := p0+k*p1, q0+k*q1
	target := math.Abs(x)
	if math.Abs(float64(p1)/float64(q1)-target) <= math.Abs(float64(sp)/float64(sq)-target) {
		sp, sq = p1, q1
	}
	if neg {
		sp = -sp
	}
	return sp, sq, true
}

// exactFraction decomposes a positive finite float into its exact
// n/2^e form reduced to lowest terms. ok is false when either side
// would not fit int64.
func exactFraction(x float64) (n, d int64, ok bool) {
	frac, exp := math.Frexp(x)
	// frac is in [0.5, 1); scaling by 2^53 makes it a 53-bit integer.
	m := int64(frac * (1 << 53))
	e := exp - 53
	for m%2 == 0 {
		m >>= 1
		e++
	}
	switch {
	case e >= 0:
		if e > 62 || m > math.MaxInt64>>uint(e) {
			return 0, 0, false
		}
		return m << uint(e), 1, true
	case e >= -62:
		return m, int64(1) << uint(-e), true
	default:
		return 0, 0, false
	}
}

// Complexity measures a point by the least common multiple of the
// denominators of its two coordinates, both approximated with
// MaxDenominator. Zero means the point has no usable complexity:
// a coordinate was not finite or the LCM left int64. Callers treat
// zero as "skip this point", so no valid point may ever map to it;
// valid denominators are at least 1 and so is every valid LCM.
func Complexity(x, y float64) int64 {
	_, dx, ok := ApproxFraction(x, MaxDenominator)
	if !ok {
		return 0
	}
	_, dy, ok := ApproxFraction(y, MaxDenominator)
	if !ok {
		return 0
	}
	l, ok := LCM(dx, dy)
	if !ok {
		return 0
	}
	return l
}

// ListReducedFractions enumerates every reduced fraction n/d whose
// denominator is in denominators and whose magnitude is positive and
// at most bound, returned as ascending float64 values without
// duplicates. It is a table helper for picking "nice" slider values
// and is not part of the scene pipeline.
func ListReducedFractions(denominators []int64, bound float64) []float64 {
	seen := make(map[float64]bool)
	var out []float64
	for _, d := range denominators {
		if d < 1 {
			continue
		}
		limit := int64(math.Floor(bound * float64(d)))
		for n := -limit; n <= limit; n++ {
			if n == 0 || GCD(n, d) != 1 {
				continue
			}
			v := float64(n) / float64(d)
			if seen[v] {
				continue
			}
			seen[v] = true
			out = append(out, v)
		}
	}
	sort.Float64s(out)
	return out
}
