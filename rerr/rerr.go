// Package rerr defines the sentinel error values the redirector engine can
// return, plus helpers that wrap them with call-site context. Callers
// inspect the kind of failure with errors.Is, not by parsing messages.
package rerr

import (
	"errors"
	"fmt"
)

var (
	// ErrOverlappingBlocks means a decoded instruction straddled the
	// discovery-reported end of its block.
	ErrOverlappingBlocks = errors.New("overlapping blocks")

	// ErrNoByteRegionAtAddress means discovery pointed at memory the
	// rewriter context's memory reader cannot resolve.
	ErrNoByteRegionAtAddress = errors.New("no byte region at address")

	// ErrMissingSuccessor means the fallthrough reifier found no
	// program-order successor for a block that needs one.
	ErrMissingSuccessor = errors.New("missing program-order successor")

	// ErrUnassignedSymbolicBlock means the allocator finished without
	// assigning every symbolic block an address: an allocator invariant
	// violation.
	ErrUnassignedSymbolicBlock = errors.New("unassigned symbolic block")

	// ErrMemory wraps an error a live memory reader returned while the
	// redirector confirmed the bytes of an original block it was about to
	// overwrite were actually mapped.
	ErrMemory = errors.New("memory error")

	// ErrRelocationOutOfRange is specific to isa/amd64: a relative
	// displacement did not fit the instruction's encoded operand width.
	// Not part of spec.md's core taxonomy; an ISA-provider-level addition.
	ErrRelocationOutOfRange = errors.New("relocation out of range")

	// ErrOffsetOverflow means ConcreteAddress arithmetic would wrap.
	ErrOffsetOverflow = errors.New("address offset overflow")
)

// NewOverlappingBlocks reports a decoded instruction at insnAddr that
// extends past the block's recorded end (nextAddr..stopAddr is the gap).
func NewOverlappingBlocks(insnAddr, nextAddr, stopAddr fmt.Stringer) error {
	return fmt.Errorf("%w: instruction at %s extends to %s, past block end %s",
		ErrOverlappingBlocks, insnAddr, nextAddr, stopAddr)
}

// NewNoByteRegionAtAddress reports an unmapped address.
func NewNoByteRegionAtAddress(addr fmt.Stringer) error {
	return fmt.Errorf("%w: %s", ErrNoByteRegionAtAddress, addr)
}

// NewMissingSuccessor reports a block with no program-order successor.
func NewMissingSuccessor(addr fmt.Stringer) error {
	return fmt.Errorf("%w: block at %s", ErrMissingSuccessor, addr)
}

// NewUnassignedSymbolicBlock reports a symbolic block the allocator never
// produced an assignment for.
func NewUnassignedSymbolicBlock(addr fmt.Stringer) error {
	return fmt.Errorf("%w: block originally at %s", ErrUnassignedSymbolicBlock, addr)
}

// NewMemory wraps an underlying memory-reader error as it propagates out
// of the redirector.
func NewMemory(underlying error) error {
	return fmt.Errorf("%w: %v", ErrMemory, underlying)
}

// NewRelocationOutOfRange reports a displacement that overflowed the
// instruction's encoded width.
func NewRelocationOutOfRange(delta int64, width int) error {
	return fmt.Errorf("%w: delta %d does not fit in %d-bit operand", ErrRelocationOutOfRange, delta, width*8)
}

// NewOffsetOverflow reports address arithmetic that would silently wrap.
func NewOffsetOverflow(base fmt.Stringer, delta int64) error {
	return fmt.Errorf("%w: %s %+d", ErrOffsetOverflow, base, delta)
}
