package addrheap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coldforge/redirector/address"
)

func TestAllocateReusesExactFitSlack(t *testing.T) {
	h := New()
	h.Insert(16, 0x900)
	a := NewAllocator(0x1000, h)

	base, reused, err := a.Allocate(16)
	require.NoError(t, err)
	assert.Equal(t, address.ConcreteAddress(0x900), base)
	assert.Equal(t, uint64(16), reused)
	assert.Equal(t, address.ConcreteAddress(0x1000), a.Cursor(), "cursor must not advance when slack is reused")
}

func TestAllocatePushesBackRemainder(t *testing.T) {
	h := New()
	h.Insert(40, 0x900)
	a := NewAllocator(0x1000, h)

	base, reused, err := a.Allocate(16)
	require.NoError(t, err)
	assert.Equal(t, address.ConcreteAddress(0x900), base)
	assert.Equal(t, uint64(16), reused)

	require.Equal(t, 1, h.Len())
	chunk, ok := h.Peek()
	require.True(t, ok)
	assert.Equal(t, uint64(24), chunk.Size)
	assert.Equal(t, address.ConcreteAddress(0x910), chunk.Addr)
}

func TestAllocateFallsBackToFreshRegionWhenSlackTooSmall(t *testing.T) {
	h := New()
	h.Insert(4, 0x900)
	a := NewAllocator(0x1000, h)

	base, reused, err := a.Allocate(16)
	require.NoError(t, err)
	assert.Equal(t, address.ConcreteAddress(0x1000), base)
	assert.Equal(t, uint64(0), reused)
	assert.Equal(t, address.ConcreteAddress(0x1010), a.Cursor())

	// The unused slack chunk is untouched and still available.
	require.Equal(t, 1, h.Len())
}

func TestAllocateAdvancesCursorAcrossCalls(t *testing.T) {
	a := NewAllocator(0x2000, New())

	b1, _, err := a.Allocate(8)
	require.NoError(t, err)
	b2, _, err := a.Allocate(8)
	require.NoError(t, err)

	assert.Equal(t, address.ConcreteAddress(0x2000), b1)
	assert.Equal(t, address.ConcreteAddress(0x2008), b2)
}
