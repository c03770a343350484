// Package amd64 is the concrete, wired isa.Provider for x86-64: the one
// architecture backend the redirector engine ships with (spec.md §4.1
// names the provider contract; this package is its sole implementation).
//
// Encoding here is deliberately hand-rolled rather than routed through
// golang-asm's builder pipeline for the two control-transfer encodings the
// engine actually emits (a rel32 JMP and a rel32 CALL): isa.Provider's
// contract to the core engine promises that TaggedInstructionSize never
// changes between a tagged instruction's creation and its Concretize call,
// and golang-asm's assembler can silently choose between a short and a
// near encoding for a branch depending on the final displacement, which
// would violate that promise for a displacement only known once layout is
// complete. Fixed-width E9/E8 encodings sidestep the question entirely.
// golang-asm's obj/x86 opcode vocabulary is still used, for the
// informational mnemonic each instruction reports via String (see
// mnemonic.go) — the dependency is real, just not load-bearing for
// correctness.
package amd64

import (
	"encoding/binary"
	"fmt"

	"github.com/coldforge/redirector/address"
	"github.com/coldforge/redirector/rerr"
)

const (
	opJMPRel8   = 0xEB
	opJMPRel32  = 0xE9
	opCALLRel32 = 0xE8
	opRET       = 0xC3
	opNOP       = 0x90
	op0FEscape  = 0x0F
)

// Insn is a concrete (untagged) x86-64 instruction: its raw encoded bytes,
// exactly as they appear (or will appear) in the image.
type Insn struct {
	Raw []byte
}

func (i Insn) String() string {
	return fmt.Sprintf("%s % x", mnemonicFor(i.Raw), i.Raw)
}

// TaggedKind distinguishes the handful of shapes a TaggedInsn can take.
type TaggedKind int

const (
	// TaggedRaw passes an existing concrete instruction through
	// unchanged; it carries no symbolic annotation.
	TaggedRaw TaggedKind = iota
	// TaggedJump is an unconditional direct jump to Target, minted by
	// MakeSymbolicJump.
	TaggedJump
	// TaggedCall is a direct call to Target, minted by MakeSymbolicCall.
	TaggedCall
)

// TaggedInsn is the symbolic (tagged) instruction type threaded through
// the layout pipeline before addresses are known.
type TaggedInsn struct {
	Kind   TaggedKind
	Raw    []byte // valid when Kind == TaggedRaw
	Target address.SymbolicAddress
}

func (t TaggedInsn) String() string {
	switch t.Kind {
	case TaggedJump:
		return fmt.Sprintf("JMP %s", t.Target)
	case TaggedCall:
		return fmt.Sprintf("CALL %s", t.Target)
	default:
		return fmt.Sprintf("%s % x", mnemonicFor(t.Raw), t.Raw)
	}
}

// SymbolicTarget implements isa.TaggedInstruction.
func (t TaggedInsn) SymbolicTarget() (address.SymbolicAddress, bool) {
	if t.Kind == TaggedJump || t.Kind == TaggedCall {
		return t.Target, true
	}
	return 0, false
}

func encodeRel32Jump(opcode byte, rel int64) ([]byte, error) {
	if rel < -(1<<31) || rel > (1<<31)-1 {
		return nil, rerr.NewRelocationOutOfRange(rel, 4)
	}
	buf := make([]byte, 5)
	buf[0] = opcode
	binary.LittleEndian.PutUint32(buf[1:], uint32(int32(rel)))
	return buf, nil
}

func decodeRel32(raw []byte) int64 {
	return int64(int32(binary.LittleEndian.Uint32(raw[1:5])))
}
