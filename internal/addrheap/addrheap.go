// Package addrheap implements the address heap and allocator of spec.md
// §4.4: a max-priority queue of slack chunks recovered from modified
// original blocks, plus the allocation algorithm that prefers reusing
// slack over advancing a fresh cursor.
package addrheap

import (
	"container/heap"

	"github.com/coldforge/redirector/address"
)

// Chunk is one contiguous region of reusable slack.
type Chunk struct {
	Size uint64
	Addr address.ConcreteAddress
}

// innerHeap is a max-heap by Size; ties break by ascending address so that
// iteration order is deterministic regardless of insertion order (spec.md
// §3: "ties may be broken arbitrarily but deterministically").
type innerHeap []Chunk

func (h innerHeap) Len() int { return len(h) }
func (h innerHeap) Less(i, j int) bool {
	if h[i].Size != h[j].Size {
		return h[i].Size > h[j].Size
	}
	return h[i].Addr.Less(h[j].Addr)
}
func (h innerHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *innerHeap) Push(x any)   { *h = append(*h, x.(Chunk)) }
func (h *innerHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// AddressHeap is the max-priority queue of spec.md §3/§4.4.
type AddressHeap struct {
	h innerHeap
}

// New returns an empty AddressHeap.
func New() *AddressHeap {
	return &AddressHeap{}
}

// Insert adds a chunk. Zero-size chunks are silently dropped (a zero-size
// chunk contributes nothing and must never be re-observed by Peek/Pop:
// spec.md §9's open question about not re-inserting a zero-size remainder
// applies uniformly to every insertion path, not only allocation
// remainders).
func (a *AddressHeap) Insert(size uint64, addr address.ConcreteAddress) {
	if size == 0 {
		return
	}
	heap.Push(&a.h, Chunk{Size: size, Addr: addr})
}

// Len reports how many chunks remain.
func (a *AddressHeap) Len() int { return a.h.Len() }

// Peek returns the largest chunk without removing it.
func (a *AddressHeap) Peek() (Chunk, bool) {
	if len(a.h) == 0 {
		return Chunk{}, false
	}
	return a.h[0], true
}

// Pop removes and returns the largest chunk.
func (a *AddressHeap) Pop() (Chunk, bool) {
	if len(a.h) == 0 {
		return Chunk{}, false
	}
	return heap.Pop(&a.h).(Chunk), true
}

// Remaining returns every chunk still in the heap, largest first,
// draining the heap. Used once allocation is complete to materialize
// padding over whatever slack nothing was placed into.
func (a *AddressHeap) Remaining() []Chunk {
	out := make([]Chunk, 0, a.h.Len())
	for a.h.Len() > 0 {
		c, _ := a.Pop()
		out = append(out, c)
	}
	return out
}
