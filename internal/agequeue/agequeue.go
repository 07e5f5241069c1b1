// Package agequeue implements the age-ordered ring of live sample locations
// shared by a rolling quantile monitor's two heaps and its pivot slot.
//
// The original C implementation couples a ring buffer to its heaps through
// raw pointers (struct heap_element **loc_in_buffer) that every heap swap
// must keep pointed at the right slot. This package replaces that with
// stable integer handles: each ring cell names an (owner, index) pair, and a
// heap rewrites a cell's index — never a pointer — whenever it moves the
// value that cell refers to. See DESIGN.md for why.
package agequeue

import "github.com/bits-and-blooms/bitset"

// Location identifies where a live sample currently lives outside the queue:
// which owner holds it (a small integer a monitor assigns to its left heap,
// right heap, or pivot slot) and, for heap owners, the slot index within that
// owner's own storage. The pivot owner ignores Index.
type Location struct {
	Owner int
	Index int
}

// AgeQueue is a fixed-capacity ring of Location handles, ordered by arrival.
// It holds no opinion about what a Location means; it only tracks which cell
// the cursor currently names and lets owners rewrite a cell's Index when
// their own storage reshuffles the slot that cell points at.
type AgeQueue struct {
	cells    []Location
	cursor   int
	occupied *bitset.BitSet
	size     int
}

// New allocates an AgeQueue with the given fixed capacity (the monitor's
// window size).
func New(capacity uint) *AgeQueue {
	return &AgeQueue{
		cells:    make([]Location, capacity),
		occupied: bitset.New(capacity),
	}
}

// Cap returns the queue's fixed capacity.
func (q *AgeQueue) Cap() int { return len(q.cells) }

// LiveCount returns the number of cells currently occupied.
func (q *AgeQueue) LiveCount() int { return q.size }

// Advance moves the cursor to the next cell, wrapping around the ring. A
// monitor calls this exactly once per update, before inspecting the cell the
// new cursor position names.
func (q *AgeQueue) Advance() {
	q.cursor++
	if q.cursor == len(q.cells) {
		q.cursor = 0
	}
}

// ExtractAtCursor clears and returns the handle stored at the current cursor
// position, or ok=false if that cell was already empty (the window has not
// yet filled to this position).
func (q *AgeQueue) ExtractAtCursor() (loc Location, ok bool) {
	if !q.occupied.Test(uint(q.cursor)) {
		return Location{}, false
	}
	loc = q.cells[q.cursor]
	q.occupied.Clear(uint(q.cursor))
	q.size--
	return loc, true
}

// Register stores loc at the current cursor cell, which must be empty, and
// returns the cell index as a stable handle the caller stashes alongside its
// own slot so it can later be repointed.
func (q *AgeQueue) Register(loc Location) int {
	q.cells[q.cursor] = loc
	q.occupied.Set(uint(q.cursor))
	q.size++
	return q.cursor
}

// Repoint rewrites the Location stored at a previously issued cell index,
// used whenever an owner moves the slot that cell refers to (a heap swap, a
// value handed off between a heap and the pivot). A negative cellIndex is a
// no-op, matching the "value never registered" case (e.g. a NaN pivot).
func (q *AgeQueue) Repoint(cellIndex int, owner, index int) {
	if cellIndex < 0 {
		return
	}
	q.cells[cellIndex] = Location{Owner: owner, Index: index}
}

// At reports the location currently stored at a cell index and whether the
// cell is occupied. Used by tests asserting the queue-to-heap invariant.
func (q *AgeQueue) At(cellIndex int) (Location, bool) {
	return q.cells[cellIndex], q.occupied.Test(uint(cellIndex))
}
