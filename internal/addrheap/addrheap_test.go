package addrheap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeapPopsLargestFirst(t *testing.T) {
	h := New()
	h.Insert(10, 0x100)
	h.Insert(50, 0x200)
	h.Insert(30, 0x300)

	c, ok := h.Pop()
	require.True(t, ok)
	assert.Equal(t, uint64(50), c.Size)

	c, ok = h.Pop()
	require.True(t, ok)
	assert.Equal(t, uint64(30), c.Size)

	c, ok = h.Pop()
	require.True(t, ok)
	assert.Equal(t, uint64(10), c.Size)

	_, ok = h.Pop()
	assert.False(t, ok)
}

func TestHeapBreaksSizeTiesByAddress(t *testing.T) {
	h := New()
	h.Insert(20, 0x500)
	h.Insert(20, 0x100)

	c, ok := h.Pop()
	require.True(t, ok)
	assert.Equal(t, uint64(0x100), uint64(c.Addr), "equal-size chunks break ties by ascending address")
}

func TestHeapDropsZeroSizeChunks(t *testing.T) {
	h := New()
	h.Insert(0, 0x100)
	assert.Equal(t, 0, h.Len())
	_, ok := h.Peek()
	assert.False(t, ok)
}

func TestRemainingDrainsLargestFirst(t *testing.T) {
	h := New()
	h.Insert(5, 0x10)
	h.Insert(40, 0x20)
	h.Insert(15, 0x30)

	got := h.Remaining()
	require.Len(t, got, 3)
	assert.Equal(t, uint64(40), got[0].Size)
	assert.Equal(t, uint64(15), got[1].Size)
	assert.Equal(t, uint64(5), got[2].Size)
	assert.Equal(t, 0, h.Len())
}
