package monitor

import "math"

// Interpolation describes the (q, alpha, beta) blend of spec.md §4.3.1: how
// to combine the pivot with an adjacent heap root to report a quantile that
// falls between two live samples rather than snapping to one of them.
//
// Q is the target quantile in [0, 1]; Alpha and Beta are the plotting-position
// constants (e.g. 1/1 for the "type 7" blend some statistics packages
// default to). A zero-value Interpolation is not usable directly — construct
// one with NoInterpolation (report the pivot as-is) or a literal with a
// non-NaN Q.
type Interpolation struct {
	Q, Alpha, Beta float64
}

// NoInterpolation returns the sentinel descriptor meaning "report the pivot
// value directly, with no blending."
func NoInterpolation() Interpolation {
	return Interpolation{Q: math.NaN()}
}

func (ip Interpolation) none() bool { return math.IsNaN(ip.Q) }

func inUnitInterval(x float64) bool { return x >= 0 && x <= 1 }

// Validate reports whether ip is either the no-interpolation sentinel or has
// all three parameters within [0, 1].
func (ip Interpolation) Validate() bool {
	if ip.none() {
		return true
	}
	return inUnitInterval(ip.Q) && inUnitInterval(ip.Alpha) && inUnitInterval(ip.Beta)
}

// target computes the fractional rank spec.md §4.3.1 interpolates around for
// a window of the given size.
func (ip Interpolation) target(window uint) float64 {
	return float64(window)*ip.Q + ip.Alpha + ip.Q*(1-ip.Alpha-ip.Beta)
}

// PortionFor returns the portion (k) a caller should construct a monitor
// with so that, for a window of the given size, this interpolation's target
// index falls in {k, k-1} as spec.md §4.3.1 requires. The monitor itself
// never calls this — portion and interpolation are independent
// StageDescriptor fields the caller must keep consistent; an inconsistent
// pair is a legal but never-interpolating construction (Monitor.report
// returns NaN for every update in that case, which is spec.md's documented
// behavior for a miscalibrated idx, not a construction error).
func (ip Interpolation) PortionFor(window uint) uint {
	idx := int(math.Floor(ip.target(window))) - 1
	if idx < 0 {
		idx = 0
	}
	return uint(idx)
}
