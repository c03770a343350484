// Package address implements the two address kinds the redirector engine
// threads through every pass: ConcreteAddress, a real machine address with
// checked offset arithmetic, and SymbolicAddress, an opaque identifier for
// "the final address of some block that has not yet been placed".
package address

import (
	"fmt"
	"sync/atomic"

	"github.com/coldforge/redirector/rerr"
)

// ConcreteAddress is an absolute code address. It supports equality, total
// ordering, and checked offset arithmetic; out-of-range deltas are a fatal
// error rather than a silent wraparound.
type ConcreteAddress uint64

// Add returns addr+delta. It fails if the result would wrap around the
// uint64 address space.
func (addr ConcreteAddress) Add(delta int64) (ConcreteAddress, error) {
	if delta >= 0 {
		d := uint64(delta)
		if d > ^uint64(0)-uint64(addr) {
			return 0, rerr.NewOffsetOverflow(addr, delta)
		}
		return addr + ConcreteAddress(d), nil
	}
	d := uint64(-delta)
	if d > uint64(addr) {
		return 0, rerr.NewOffsetOverflow(addr, delta)
	}
	return addr - ConcreteAddress(d), nil
}

// MustAdd is Add, panicking on overflow. Reserved for call sites that have
// already proven the delta fits (e.g. prefix sums over sizes that were
// themselves validated).
func (addr ConcreteAddress) MustAdd(delta int64) ConcreteAddress {
	out, err := addr.Add(delta)
	if err != nil {
		panic(err)
	}
	return out
}

// Sub returns addr-other as a signed delta.
func (addr ConcreteAddress) Sub(other ConcreteAddress) int64 {
	return int64(addr) - int64(other)
}

// Compare returns -1, 0, or 1 as addr is less than, equal to, or greater
// than other.
func (addr ConcreteAddress) Compare(other ConcreteAddress) int {
	switch {
	case addr < other:
		return -1
	case addr > other:
		return 1
	default:
		return 0
	}
}

func (addr ConcreteAddress) Less(other ConcreteAddress) bool { return addr < other }

func (addr ConcreteAddress) String() string { return fmt.Sprintf("0x%x", uint64(addr)) }

// SymbolicAddress opaquely names "the final address of some block that has
// not yet been placed". It supports equality only: no arithmetic, no
// ordering. Values are minted by an Allocator and never reused.
type SymbolicAddress uint64

func (s SymbolicAddress) String() string { return fmt.Sprintf("sym#%d", uint64(s)) }

// Allocator mints monotonically increasing SymbolicAddress values. The zero
// value is ready to use; it is not safe for concurrent use, matching the
// rest of this engine's single-threaded, cooperative execution model.
type Allocator struct {
	next uint64
}

// Next returns a SymbolicAddress never previously returned by this
// allocator.
func (a *Allocator) Next() SymbolicAddress {
	id := atomic.AddUint64(&a.next, 1)
	return SymbolicAddress(id - 1)
}

// SymbolicInfo pairs a block's eventual symbolic address with the concrete
// address it originated from, so later passes can report source provenance
// without a second lookup.
type SymbolicInfo struct {
	Symbolic SymbolicAddress
	Original ConcreteAddress
}

func (s SymbolicInfo) String() string {
	return fmt.Sprintf("%s(from %s)", s.Symbolic, s.Original)
}
