// Package quantileheap implements the fixed-capacity indexed binary heap
// used on each side of a rolling quantile monitor's pivot: a max-heap of
// samples at or below the pivot, and a min-heap of samples at or above it.
//
// Every slot carries a stable back-reference into a shared agequeue.AgeQueue
// cell. Every swap this heap performs exchanges both the value and the
// back-reference together and repoints the affected queue cells, so the
// queue is never left pointing at a stale position mid-shuffle. This is the
// structure spec.md calls out as the engine's hard part; container/heap does
// not fit because it has no notion of O(1) arbitrary-position removal with
// back-reference maintenance.
package quantileheap

import (
	"math"

	"github.com/streamquantile/rollingquantiles/internal/agequeue"
)

// Mode selects which side of the pivot a Heap holds.
type Mode int

const (
	// Max orders the heap so the largest value is always at the root
	// (used for the side at or below the pivot).
	Max Mode = iota
	// Min orders the heap so the smallest value is always at the root
	// (used for the side at or above the pivot).
	Min
)

type slot struct {
	value float64
	cell  int // index into the shared AgeQueue, or -1 if not yet registered
}

// Heap is a fixed-capacity array-backed binary heap over float64 values,
// each carrying a stable AgeQueue cell reference.
type Heap struct {
	mode  Mode
	owner int
	slots []slot
	n     int
	queue *agequeue.AgeQueue
}

// New allocates a Heap with the given fixed capacity. owner is the small
// integer this heap stamps into queue cells it registers, so a monitor can
// tell which heap an expired cell belonged to.
func New(mode Mode, capacity uint, owner int, queue *agequeue.AgeQueue) *Heap {
	return &Heap{
		mode:  mode,
		owner: owner,
		slots: make([]slot, capacity),
		queue: queue,
	}
}

// Len returns the number of live elements.
func (h *Heap) Len() int { return h.n }

// Cap returns the heap's fixed capacity.
func (h *Heap) Cap() int { return len(h.slots) }

// Owner returns the owner id this heap stamps into queue cells.
func (h *Heap) Owner() int { return h.owner }

// dominates reports whether a is allowed to sit above b in heap order.
func (h *Heap) dominates(a, b float64) bool {
	if h.mode == Max {
		return a >= b
	}
	return a <= b
}

func (h *Heap) swap(i, j int) {
	h.slots[i], h.slots[j] = h.slots[j], h.slots[i]
	if h.slots[i].cell >= 0 {
		h.queue.Repoint(h.slots[i].cell, h.owner, i)
	}
	if h.slots[j].cell >= 0 {
		h.queue.Repoint(h.slots[j].cell, h.owner, j)
	}
}

func (h *Heap) siftUp(i int) int {
	for i > 0 {
		parent := (i - 1) / 2
		if h.dominates(h.slots[parent].value, h.slots[i].value) {
			break
		}
		h.swap(parent, i)
		i = parent
	}
	return i
}

// siftDown restores heap order below i and reports whether anything moved.
func (h *Heap) siftDown(i int) bool {
	moved := false
	for {
		left, right := 2*i+1, 2*i+2
		best := i
		if left < h.n && !h.dominates(h.slots[best].value, h.slots[left].value) {
			best = left
		}
		if right < h.n && !h.dominates(h.slots[best].value, h.slots[right].value) {
			best = right
		}
		if best == i {
			return moved
		}
		h.swap(i, best)
		i = best
		moved = true
	}
}

// push places value at the next free slot with the given queue cell (-1 if
// none yet) and restores heap order, returning the value's final index.
func (h *Heap) push(value float64, cell int) int {
	if h.n == len(h.slots) {
		panic("quantileheap: push on a full heap")
	}
	idx := h.n
	h.slots[idx] = slot{value: value, cell: cell}
	if cell >= 0 {
		h.queue.Repoint(cell, h.owner, idx)
	}
	h.n++
	return h.siftUp(idx)
}

// Push inserts a brand-new value with no existing queue registration. The
// caller registers the returned index with the shared queue and calls
// SetCell with the resulting cell index.
func (h *Heap) Push(value float64) int { return h.push(value, -1) }

// PushWithCell inserts a value that already owns a queue cell (used when the
// pivot is transplanted into a heap during rebalancing); the cell is
// repointed to this heap and the new slot index.
func (h *Heap) PushWithCell(value float64, cell int) int { return h.push(value, cell) }

// SetCell records the queue cell backing an already-placed slot.
func (h *Heap) SetCell(index, cell int) { h.slots[index].cell = cell }

// Peek returns the root value without removing it.
func (h *Heap) Peek() (float64, bool) {
	if h.n == 0 {
		return 0, false
	}
	return h.slots[0].value, true
}

// PopFront removes and returns the root's value and queue cell, restoring
// heap order among the remaining elements. Returns (NaN, -1) if empty.
func (h *Heap) PopFront() (value float64, cell int) {
	if h.n == 0 {
		return math.NaN(), -1
	}
	value, cell = h.slots[0].value, h.slots[0].cell
	last := h.n - 1
	if last != 0 {
		h.slots[0] = h.slots[last]
		if h.slots[0].cell >= 0 {
			h.queue.Repoint(h.slots[0].cell, h.owner, 0)
		}
	}
	h.slots[last] = slot{cell: -1}
	h.n--
	h.siftDown(0)
	return value, cell
}

// RemoveAt removes the element at an arbitrary live index (used when that
// element's queue cell has just expired), restoring heap order by trying to
// sift the displaced last element down, then up, whichever direction
// applies — the standard technique for deleting an arbitrary heap element.
func (h *Heap) RemoveAt(index int) {
	last := h.n - 1
	if index != last {
		h.slots[index] = h.slots[last]
		if h.slots[index].cell >= 0 {
			h.queue.Repoint(h.slots[index].cell, h.owner, index)
		}
	}
	h.slots[last] = slot{cell: -1}
	h.n--
	if index < h.n {
		if !h.siftDown(index) {
			h.siftUp(index)
		}
	}
}

// Owns reports whether index currently names a live slot.
func (h *Heap) Owns(index int) bool { return index >= 0 && index < h.n }

// ValueAt returns the value at a live index.
func (h *Heap) ValueAt(index int) float64 { return h.slots[index].value }

// Verify reports whether the heap-order invariant holds for every live
// element. Intended for tests and the public Pipeline.Verify diagnostic.
func (h *Heap) Verify() bool {
	for i := 0; i < h.n; i++ {
		if l := 2*i + 1; l < h.n && !h.dominates(h.slots[i].value, h.slots[l].value) {
			return false
		}
		if r := 2*i + 2; r < h.n && !h.dominates(h.slots[i].value, h.slots[r].value) {
			return false
		}
	}
	return true
}
