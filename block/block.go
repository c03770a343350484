// Package block implements the basic-block and layout-pair types threaded
// through every pass of the redirector engine (spec.md §3): concrete
// blocks produced by discovery, symbolic blocks produced by a client
// rewrite, and the address-assigned blocks the allocator derives from
// them.
package block

import (
	"fmt"

	"github.com/coldforge/redirector/address"
)

// Sizer computes the encoded size of one instruction. Callers pass the
// isa.Provider method appropriate to the instruction kind (InstructionSize
// or TaggedInstructionSize).
type Sizer[I any] func(I) (uint64, error)

// BasicBlock is an ordered, non-empty sequence of instructions plus a
// starting address of type A. It never holds zero instructions once
// constructed: New rejects an empty slice.
type BasicBlock[A any, I any] struct {
	start        A
	instructions []I
}

// New constructs a BasicBlock. It returns an error if insns is empty,
// matching spec.md §3's "never empty after construction" invariant.
func New[A any, I any](start A, insns []I) (BasicBlock[A, I], error) {
	if len(insns) == 0 {
		return BasicBlock[A, I]{}, fmt.Errorf("block at %v: cannot construct an empty basic block", start)
	}
	out := make([]I, len(insns))
	copy(out, insns)
	return BasicBlock[A, I]{start: start, instructions: out}, nil
}

func (b BasicBlock[A, I]) Start() A { return b.start }

// Instructions returns the block's instructions. The returned slice must
// not be mutated by the caller; Append returns a new block instead.
func (b BasicBlock[A, I]) Instructions() []I { return b.instructions }

func (b BasicBlock[A, I]) Len() int { return len(b.instructions) }

func (b BasicBlock[A, I]) Last() I { return b.instructions[len(b.instructions)-1] }

// Size sums the per-instruction sizes reported by size.
func (b BasicBlock[A, I]) Size(size Sizer[I]) (uint64, error) {
	var total uint64
	for _, insn := range b.instructions {
		n, err := size(insn)
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}

// Append returns a new block with extra appended after the existing
// instructions. Used by the fallthrough reifier, which must never mutate
// the block it was handed (symbolic blocks are otherwise immutable once
// produced by the client rewrite).
func (b BasicBlock[A, I]) Append(extra ...I) BasicBlock[A, I] {
	out := make([]I, 0, len(b.instructions)+len(extra))
	out = append(out, b.instructions...)
	out = append(out, extra...)
	return BasicBlock[A, I]{start: b.start, instructions: out}
}

// ConcreteBlock is a basic block whose address is a real machine address
// and whose instructions carry no symbolic annotations.
type ConcreteBlock[I any] = BasicBlock[address.ConcreteAddress, I]

// SymbolicBlock is a basic block addressed by SymbolicInfo, whose
// instructions may be tagged with symbolic jump targets.
type SymbolicBlock[T any] = BasicBlock[address.SymbolicInfo, T]

// AddressAssignedBlock pairs a SymbolicBlock with the concrete address the
// allocator assigned it.
type AddressAssignedBlock[T any] struct {
	Block    SymbolicBlock[T]
	Assigned address.ConcreteAddress
}

// Status marks whether a LayoutPair's rewritten block differs from the
// original.
type Status int

const (
	Unmodified Status = iota
	Modified
)

func (s Status) String() string {
	if s == Modified {
		return "Modified"
	}
	return "Unmodified"
}

// LayoutPair is the fundamental unit the engine processes: an original
// concrete block and its (possibly rewritten) counterpart of type B, which
// varies as the pair moves through the pipeline (SymbolicBlock ->
// AddressAssignedBlock -> ConcreteBlock).
type LayoutPair[I any, B any] struct {
	Original ConcreteBlock[I]
	New      B
	Status   Status
}

// SymbolicPair is the pipeline's input shape: a concrete original paired
// with a symbolic rewritten block.
type SymbolicPair[I any, T any] = LayoutPair[I, SymbolicBlock[T]]

// AddressAssignedPair is produced once every symbolic block has a concrete
// address.
type AddressAssignedPair[I any, T any] = LayoutPair[I, AddressAssignedBlock[T]]

// ConcretePair is the redirector's output shape: both sides are concrete.
type ConcretePair[I any] = LayoutPair[I, ConcreteBlock[I]]

// InjectedBlock is a client-supplied byte blob placed by the allocator and
// given a symbolic address for later reference.
type InjectedBlock struct {
	Symbolic address.SymbolicAddress
	Assigned address.ConcreteAddress
	Bytes    []byte
}

// Layout is the redirector engine's final output.
type Layout[I any, T any] struct {
	ProgramBlockLayout  []AddressAssignedPair[I, T]
	LayoutPaddingBlocks []ConcreteBlock[I]
	InjectedBlockLayout []InjectedBlock
}
