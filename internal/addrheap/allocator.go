package addrheap

import "github.com/coldforge/redirector/address"

// Allocator implements the allocation algorithm of spec.md §4.4: peek the
// largest slack chunk; if it exists and is big enough, pop it and place
// the group there (pushing back any leftover), otherwise place the group
// in the fresh region and advance the cursor. The cursor never advances
// when slack is reused.
type Allocator struct {
	cursor address.ConcreteAddress
	heap   *AddressHeap
}

// NewAllocator builds an allocator starting its fresh region at start and
// drawing slack from heap (which the caller owns and may inspect
// afterwards via heap.Remaining).
func NewAllocator(start address.ConcreteAddress, heap *AddressHeap) *Allocator {
	return &Allocator{cursor: start, heap: heap}
}

// Allocate reserves size contiguous bytes for one group, returning its
// base address and how many of those bytes (0 or size) were reused from
// heap slack rather than the fresh region.
func (a *Allocator) Allocate(size uint64) (base address.ConcreteAddress, reusedBytes uint64, err error) {
	if chunk, ok := a.heap.Peek(); ok && chunk.Size >= size {
		a.heap.Pop()
		if chunk.Size > size {
			rest, err := chunk.Addr.Add(int64(size))
			if err != nil {
				return 0, 0, err
			}
			a.heap.Insert(chunk.Size-size, rest)
		}
		return chunk.Addr, size, nil
	}

	base = a.cursor
	next, err := a.cursor.Add(int64(size))
	if err != nil {
		return 0, 0, err
	}
	a.cursor = next
	return base, 0, nil
}

// Cursor returns the current fresh-region watermark.
func (a *Allocator) Cursor() address.ConcreteAddress { return a.cursor }
