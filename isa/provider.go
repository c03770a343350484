// Package isa defines the narrow contract the redirector engine requires of
// an architecture-specific instruction provider (spec.md §4.1). The core
// engine never decodes or encodes instructions itself; it only calls into
// a Provider. See package isa/amd64 for a concrete, wired implementation.
package isa

import (
	"fmt"

	"github.com/coldforge/redirector/address"
)

// Conditionality distinguishes a conditional control transfer from an
// unconditional one. Calls are always treated as conditional for
// block-ending purposes (spec.md §4.1): a call falls through to the
// instruction after it, so it needs the same fallthrough treatment a
// conditional branch does.
type Conditionality int

const (
	Conditional Conditionality = iota
	Unconditional
)

func (c Conditionality) IsUnconditional() bool { return c == Unconditional }

// JumpKind enumerates the variant spec.md §4.1 asks jumpType to return.
type JumpKind int

const (
	NoJump JumpKind = iota
	RelativeJump
	AbsoluteJump
	IndirectJump
	DirectCall
	IndirectCall
	Return
)

func (k JumpKind) String() string {
	switch k {
	case NoJump:
		return "NoJump"
	case RelativeJump:
		return "RelativeJump"
	case AbsoluteJump:
		return "AbsoluteJump"
	case IndirectJump:
		return "IndirectJump"
	case DirectCall:
		return "DirectCall"
	case IndirectCall:
		return "IndirectCall"
	case Return:
		return "Return"
	default:
		return fmt.Sprintf("JumpKind(%d)", int(k))
	}
}

// NeedsFallthrough reports whether a block ending in an instruction of this
// kind/conditionality needs an explicit jump appended before relocation
// (spec.md §4.2): everything except an unconditional Return, IndirectJump,
// AbsoluteJump, or RelativeJump.
func (k JumpKind) NeedsFallthrough(cond Conditionality) bool {
	if cond == Conditional {
		return true
	}
	switch k {
	case Return, IndirectJump, AbsoluteJump, RelativeJump:
		return false
	default:
		return true
	}
}

// JumpType describes the control-transfer behavior of one instruction, as
// decoded from a concrete (untagged) instruction at a known address.
// Target/Offset/HasTarget are populated only for RelativeJump, AbsoluteJump,
// and DirectCall; the other kinds carry no statically-decodable target.
type JumpType struct {
	Kind      JumpKind
	Cond      Conditionality
	Target    address.ConcreteAddress
	Offset    int64
	HasTarget bool
}

func (j JumpType) IsUnconditional() bool { return j.Cond.IsUnconditional() }

// TaggedJumpType is the tagged-instruction analogue: the symbolic target
// (if any) lives on the instruction itself (Instruction.SymbolicTarget),
// not here.
type TaggedJumpType struct {
	Kind JumpKind
	Cond Conditionality
}

func (j TaggedJumpType) IsUnconditional() bool { return j.Cond.IsUnconditional() }

// Instruction is the minimal capability an untagged (concrete) instruction
// must provide.
type Instruction interface {
	fmt.Stringer
}

// TaggedInstruction is the minimal capability a tagged (symbolic)
// instruction must provide: its encoded form plus, when it names a jump
// target, the SymbolicAddress of that target.
type TaggedInstruction interface {
	fmt.Stringer
	// SymbolicTarget returns the instruction's jump target and true, or
	// the zero value and false if this instruction carries no target
	// annotation.
	SymbolicTarget() (address.SymbolicAddress, bool)
}

// MemoryReader gives an ISA provider read access to the bytes of the
// original image, needed to decode jumpType and to size/validate
// instructions that were not produced by this engine.
type MemoryReader interface {
	Bytes(addr address.ConcreteAddress, n uint64) ([]byte, error)
}

// SymbolResolver maps a SymbolicAddress minted earlier in the pipeline (by
// a block or an injected code blob) to the concrete address the layout
// driver assigned it. Concretize consults it to turn a tagged
// instruction's symbolic target into a real displacement.
type SymbolResolver func(address.SymbolicAddress) (address.ConcreteAddress, bool)

// Provider is the narrow facade the redirector engine consumes from an
// architecture-specific collaborator (spec.md §4.1). I is the concrete
// (untagged) instruction type; T is the symbolic (tagged) instruction type.
//
// Invariant promised to the core: for any tagged instruction produced by
// MakeSymbolicJump/MakeSymbolicCall, the size returned by
// TaggedInstructionSize is stable from the moment it is created until
// Concretize is called on it.
type Provider[I Instruction, T TaggedInstruction] interface {
	// InstructionSize returns the encoded byte size of an untagged
	// instruction.
	InstructionSize(i I) (uint64, error)
	// TaggedInstructionSize returns the encoded byte size a tagged
	// instruction will have once concretized. Must not change between
	// creation and Concretize.
	TaggedInstructionSize(t T) (uint64, error)

	// JumpType decodes the control-transfer behavior of an untagged
	// instruction sitting at addrOfInsn within memory.
	JumpType(i I, memory MemoryReader, addrOfInsn address.ConcreteAddress) (JumpType, error)
	// TaggedJumpType returns the control-transfer kind/conditionality of
	// a tagged instruction (its target, if any, is on the instruction
	// itself via SymbolicTarget).
	TaggedJumpType(t T) (TaggedJumpType, error)

	// MakeRelativeJumpTo builds the instruction sequence for a direct
	// relative jump from fromAddr to toAddr. May fail; never silently
	// truncates. The caller must check the resulting byte size against
	// available slack.
	MakeRelativeJumpTo(fromAddr, toAddr address.ConcreteAddress) ([]I, error)

	// ModifyJumpTarget retargets an existing jump without changing its
	// encoded size. ok is false if retargeting to toAddr is impossible
	// (e.g. the new displacement does not fit the original encoding).
	ModifyJumpTarget(i I, fromAddr, toAddr address.ConcreteAddress) (out I, ok bool)

	// MakePadding produces exactly nBytes of instructions whose semantics
	// are a trap or no-op; never executed on any control-flow path in a
	// well-formed output.
	MakePadding(nBytes uint64) ([]I, error)

	// MakeSymbolicJump builds an unconditional jump to target, tagged
	// with target, to be concretized once target has a real address.
	MakeSymbolicJump(target address.SymbolicAddress) ([]T, error)
	// MakeSymbolicCall builds a call instruction tagged with target.
	MakeSymbolicCall(target address.SymbolicAddress) (T, error)

	// Concretize emits the final untagged bytes for a tagged instruction
	// once every tagged target has been bound to a concrete address.
	// resolve looks up the concrete address assigned to any symbolic
	// target the instruction carries. blockAddr is the address of the
	// block the instruction belongs to; insnAddr is this instruction's
	// own address within the final layout. Must produce an instruction of
	// exactly the size TaggedInstructionSize previously reported.
	Concretize(memory MemoryReader, resolve SymbolResolver, blockAddr address.ConcreteAddress, insnAddr address.ConcreteAddress, t T) (I, error)
}
