// Package cascade implements a single stage of a filter pipeline: a rolling
// quantile monitor wrapped with an optional high-pass differencing ring and
// a subsample clock, per spec.md §4.4.
package cascade

import (
	"errors"
	"math"

	"github.com/streamquantile/rollingquantiles/internal/monitor"
)

// Mode selects whether a Cascade reports the monitor's quantile directly or
// the residual between a raw sample and it.
type Mode int

const (
	// LowPass emits the monitor's quantile estimate directly.
	LowPass Mode = iota
	// HighPass emits the middle raw sample of the live window minus the
	// monitor's quantile estimate.
	HighPass
)

// ErrInvalidSubsampleRate reports a subsample rate below 1.
var ErrInvalidSubsampleRate = errors.New("cascade: subsample rate must be at least 1")

// Descriptor configures one cascade stage.
type Descriptor struct {
	Window, Portion, SubsampleRate uint
	Mode                           Mode
	Interpolation                  monitor.Interpolation
}

// Validate checks a Descriptor without allocating anything.
func Validate(d Descriptor) error {
	if d.SubsampleRate == 0 {
		return ErrInvalidSubsampleRate
	}
	return monitor.Validate(d.Window, d.Portion, d.Interpolation)
}

// highPassRing is a fixed-size ring of raw samples used to read back the
// value at the middle of the live window, age-wise.
type highPassRing struct {
	entries []float64
	head    int
	full    bool
}

func newHighPassRing(size uint) *highPassRing {
	return &highPassRing{entries: make([]float64, size)}
}

func (r *highPassRing) add(v float64) {
	if r.head == len(r.entries) {
		r.full = true
		r.head = 0
	}
	r.entries[r.head] = v
	r.head++
}

// middle returns the sample at the center of the live window, age-wise.
// While the ring has not yet filled, this indexes into however much has
// been written so far (entries[head/2]); the lag this produces during
// warm-up is asymmetric relative to the steady state and is an explicit,
// documented property of this rule rather than an oversight (see
// DESIGN.md's "High-pass middle index during warm-up" entry).
func (r *highPassRing) middle() float64 {
	if !r.full {
		if r.head == 0 {
			return math.NaN()
		}
		return r.entries[r.head/2]
	}
	half := len(r.entries)/2 + len(r.entries)%2
	index := r.head - half
	if index < 0 {
		index += len(r.entries)
	}
	return r.entries[index]
}

// raw returns a copy of the live samples in the ring, oldest first.
func (r *highPassRing) raw() []float64 {
	out := make([]float64, 0, len(r.entries))
	if r.full {
		out = append(out, r.entries[r.head:]...)
	}
	out = append(out, r.entries[:r.head]...)
	return out
}

// Cascade is one stage of a filter pipeline.
type Cascade struct {
	mon           *monitor.Monitor
	mode          Mode
	subsampleRate uint
	clock         uint
	ring          *highPassRing
}

// New constructs a Cascade from a validated Descriptor.
func New(d Descriptor) (*Cascade, error) {
	if err := Validate(d); err != nil {
		return nil, err
	}
	mon, err := monitor.New(d.Window, d.Portion, d.Interpolation)
	if err != nil {
		return nil, err
	}
	c := &Cascade{mon: mon, mode: d.Mode, subsampleRate: d.SubsampleRate}
	if d.Mode == HighPass {
		c.ring = newHighPassRing(d.Window)
	}
	return c, nil
}

// Step feeds one sample through this stage's monitor and, in high-pass
// mode, its raw ring. It returns the value to trickle to the next stage and
// whether this stage's subsample clock fired this step; if it did not, the
// pipeline must stop here and emit NaN without touching later stages.
func (c *Cascade) Step(x float64) (trickle float64, fired bool) {
	q := c.mon.Update(x)
	if c.ring != nil {
		c.ring.add(x)
		trickle = c.ring.middle() - q
	} else {
		trickle = q
	}

	c.clock++
	if c.clock < c.subsampleRate {
		return trickle, false
	}
	c.clock = 0
	return trickle, true
}

// Window returns this stage's configured window size.
func (c *Cascade) Window() uint { return c.mon.Window() }

// SubsampleRate returns this stage's configured subsample rate.
func (c *Cascade) SubsampleRate() uint { return c.subsampleRate }

// Verify reports whether this stage's monitor invariants currently hold.
func (c *Cascade) Verify() bool { return c.mon.Verify() }

// Raw returns a copy of the stage's live raw-sample ring (high-pass mode
// only; nil in low-pass mode), for diagnostics.
func (c *Cascade) Raw() []float64 {
	if c.ring == nil {
		return nil
	}
	return c.ring.raw()
}
