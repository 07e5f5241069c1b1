package agequeue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAgeQueue_RegisterAndExtract(t *testing.T) {
	q := New(3)
	require.Equal(t, 3, q.Cap())
	require.Equal(t, 0, q.LiveCount())

	q.Advance()
	cell := q.Register(Location{Owner: 1, Index: 7})
	assert.Equal(t, 1, q.LiveCount())

	loc, ok := q.At(cell)
	require.True(t, ok)
	assert.Equal(t, Location{Owner: 1, Index: 7}, loc)

	// Wrapping around the ring returns to the same cell.
	q.Advance()
	q.Advance()
	_, ok = q.ExtractAtCursor()
	assert.False(t, ok, "cell has not been registered yet")

	q.Advance() // wraps back to the first cell
	loc, ok = q.ExtractAtCursor()
	require.True(t, ok)
	assert.Equal(t, Location{Owner: 1, Index: 7}, loc)
	assert.Equal(t, 0, q.LiveCount())
}

func TestAgeQueue_Repoint(t *testing.T) {
	q := New(2)
	q.Advance()
	cell := q.Register(Location{Owner: 0, Index: 0})

	q.Repoint(cell, 0, 5)
	loc, ok := q.At(cell)
	require.True(t, ok)
	assert.Equal(t, Location{Owner: 0, Index: 5}, loc)

	// Moving ownership entirely, as happens when a heap hands a value to
	// the pivot slot.
	q.Repoint(cell, 2, 0)
	loc, _ = q.At(cell)
	assert.Equal(t, Location{Owner: 2, Index: 0}, loc)
}

func TestAgeQueue_RepointNegativeIsNoop(t *testing.T) {
	q := New(1)
	assert.NotPanics(t, func() { q.Repoint(-1, 0, 0) })
}
