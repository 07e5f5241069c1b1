// Package monitor implements the rolling quantile monitor of spec.md §4.3:
// two complementary heaps partitioned around a pivot sample, sharing one
// age-ordered queue that expires the oldest live sample every update
// regardless of its value.
package monitor

import (
	"errors"
	"math"

	"github.com/streamquantile/rollingquantiles/internal/agequeue"
	"github.com/streamquantile/rollingquantiles/internal/quantileheap"
)

// Owner ids the two heaps and the pivot slot stamp into queue cells they
// register, so Update can tell which one an expired cell belonged to.
const (
	leftOwner = iota
	rightOwner
	pivotOwner
)

var (
	// ErrInvalidWindow reports a window of zero.
	ErrInvalidWindow = errors.New("monitor: window must be at least 1")
	// ErrInvalidPortion reports a portion that is not strictly less than
	// the window (portion selects the 0-based rank the pivot tracks).
	ErrInvalidPortion = errors.New("monitor: portion must be less than window")
	// ErrInvalidInterpolation reports an Interpolation whose q/alpha/beta
	// fall outside [0, 1].
	ErrInvalidInterpolation = errors.New("monitor: interpolation parameters must be in [0, 1]")
)

// Validate checks a (window, portion, interpolation) triple without
// allocating anything, so a caller composing several monitors (a Pipeline)
// can reject the whole construction before any of them exist.
func Validate(window, portion uint, interp Interpolation) error {
	if window == 0 {
		return ErrInvalidWindow
	}
	if portion >= window {
		return ErrInvalidPortion
	}
	if !interp.Validate() {
		return ErrInvalidInterpolation
	}
	return nil
}

// Monitor tracks the exact sample at rank `portion` (0-based) over the last
// `window` updates, optionally interpolated towards an adjacent rank.
type Monitor struct {
	window  uint
	portion uint
	interp  Interpolation

	queue *agequeue.AgeQueue
	left  *quantileheap.Heap // values <= pivot, max-heap
	right *quantileheap.Heap // values >= pivot, min-heap

	pivotValue float64
	pivotCell  int

	count uint
}

// New constructs a Monitor tracking rank `portion` over a window of the
// given size, optionally interpolated per interp.
func New(window, portion uint, interp Interpolation) (*Monitor, error) {
	if err := Validate(window, portion, interp); err != nil {
		return nil, err
	}
	queue := agequeue.New(window)
	return &Monitor{
		window:     window,
		portion:    portion,
		interp:     interp,
		queue:      queue,
		left:       quantileheap.New(quantileheap.Max, portion+1, leftOwner, queue),
		right:      quantileheap.New(quantileheap.Min, window-portion, rightOwner, queue),
		pivotValue: math.NaN(),
		pivotCell:  -1,
	}, nil
}

// Window returns the configured window size.
func (m *Monitor) Window() uint { return m.window }

// Portion returns the configured rank.
func (m *Monitor) Portion() uint { return m.portion }

// Count returns the number of updates counted so far, including samples that
// have since expired and NaNs that arrive while the monitor holds a pivot. A
// NaN that arrives while there is no pivot (before the first non-NaN sample,
// or after the window has emptied) is not counted.
func (m *Monitor) Count() uint { return m.count }

// Value returns the current pivot value (NaN before the first non-NaN
// sample has been observed).
func (m *Monitor) Value() float64 { return m.pivotValue }

// Update advances the window by one sample and returns the monitor's
// current quantile report. NaN is a legal input meaning "no sample this
// step": the window still advances, but neither heap grows.
func (m *Monitor) Update(x float64) float64 {
	m.queue.Advance()

	if math.IsNaN(m.pivotValue) {
		return m.bootstrap(x)
	}

	if loc, ok := m.queue.ExtractAtCursor(); ok {
		if !m.expire(loc, x) {
			return m.Update(x)
		}
	}

	if !math.IsNaN(x) {
		m.insert(x)
	}

	m.count++
	m.rebalance()
	return m.report()
}

// bootstrap handles the very first non-NaN sample, which becomes the pivot
// directly with no heap activity.
func (m *Monitor) bootstrap(x float64) float64 {
	if math.IsNaN(x) {
		return math.NaN()
	}
	m.pivotValue = x
	m.pivotCell = m.queue.Register(agequeue.Location{Owner: pivotOwner})
	m.count++
	return m.report()
}

// expire retires the sample named by loc, which just aged out of the
// window. It returns false if retiring it emptied the window entirely,
// signalling the caller to reset to the bootstrap state and retry this same
// input from scratch.
func (m *Monitor) expire(loc agequeue.Location, x float64) bool {
	switch loc.Owner {
	case leftOwner:
		m.left.RemoveAt(loc.Index)
	case rightOwner:
		m.right.RemoveAt(loc.Index)
	case pivotOwner:
		switch {
		case m.right.Len() > 0:
			v, cell := m.right.PopFront()
			m.setPivot(v, cell)
		case m.left.Len() > 0:
			v, cell := m.left.PopFront()
			m.setPivot(v, cell)
		default:
			m.pivotValue = math.NaN()
			m.pivotCell = -1
			return false
		}
	}
	return true
}

// insert routes a new sample to whichever side of the pivot it belongs on.
func (m *Monitor) insert(x float64) {
	h := m.left
	if x > m.pivotValue {
		h = m.right
	}
	idx := h.Push(x)
	cell := m.queue.Register(agequeue.Location{Owner: h.Owner(), Index: idx})
	h.SetCell(idx, cell)
}

// setPivot installs a value extracted from a heap as the new pivot,
// transferring ownership of its queue cell.
func (m *Monitor) setPivot(value float64, cell int) {
	m.pivotValue = value
	m.pivotCell = cell
	m.queue.Repoint(cell, pivotOwner, 0)
}

// rebalance restores the invariant that the left heap holds exactly
// floor(portion * total / window) of the live samples, moving the pivot to
// whichever side is overdue one element at a time.
func (m *Monitor) rebalance() {
	for {
		total := uint(m.left.Len() + m.right.Len() + 1)
		target := m.portion * total / m.window
		if uint(m.left.Len()) == target {
			return
		}
		var overdue, other *quantileheap.Heap
		if uint(m.left.Len()) < target {
			overdue, other = m.right, m.left
		} else {
			overdue, other = m.left, m.right
		}
		v, cell := overdue.PopFront()
		other.PushWithCell(m.pivotValue, m.pivotCell)
		m.setPivot(v, cell)
	}
}

// report computes the quantile value to hand back after this update.
func (m *Monitor) report() float64 {
	if m.interp.none() {
		return m.pivotValue
	}
	target := m.interp.target(m.window)
	idx := int(math.Floor(target)) - 1
	gamma := target - math.Floor(target)
	switch {
	case idx == int(m.portion):
		if v, ok := m.right.Peek(); ok {
			return (1-gamma)*m.pivotValue + gamma*v
		}
		return m.pivotValue
	case idx == int(m.portion)-1:
		if v, ok := m.left.Peek(); ok {
			return (1-gamma)*v + gamma*m.pivotValue
		}
		return m.pivotValue
	default:
		return math.NaN()
	}
}

// Verify reports whether the heap-order invariant and the pivot-ordering
// invariant (every left value <= pivot <= every right value) currently
// hold. Intended as a non-panicking diagnostic, not a hot-path check.
func (m *Monitor) Verify() bool {
	if !m.left.Verify() || !m.right.Verify() {
		return false
	}
	if lv, ok := m.left.Peek(); ok && lv > m.pivotValue {
		return false
	}
	if rv, ok := m.right.Peek(); ok && rv < m.pivotValue {
		return false
	}
	return true
}
