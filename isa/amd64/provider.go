package amd64

import (
	"github.com/coldforge/redirector/address"
	"github.com/coldforge/redirector/isa"
	"github.com/coldforge/redirector/rerr"
)

// Provider is the x86-64 isa.Provider. The zero value is ready to use.
type Provider struct{}

var _ isa.Provider[Insn, TaggedInsn] = Provider{}

func (Provider) InstructionSize(i Insn) (uint64, error) {
	return uint64(len(i.Raw)), nil
}

func (Provider) TaggedInstructionSize(t TaggedInsn) (uint64, error) {
	switch t.Kind {
	case TaggedJump, TaggedCall:
		return 5, nil
	default:
		return uint64(len(t.Raw)), nil
	}
}

func (Provider) JumpType(i Insn, memory isa.MemoryReader, addrOfInsn address.ConcreteAddress) (isa.JumpType, error) {
	raw := i.Raw
	if len(raw) == 0 {
		return isa.JumpType{Kind: isa.NoJump, Cond: isa.Unconditional}, nil
	}

	switch raw[0] {
	case opRET:
		return isa.JumpType{Kind: isa.Return, Cond: isa.Unconditional}, nil

	case opJMPRel8:
		if len(raw) < 2 {
			return isa.JumpType{}, rerr.NewNoByteRegionAtAddress(addrOfInsn)
		}
		rel := int64(int8(raw[1]))
		target := addrOfInsn.MustAdd(2 + rel)
		return isa.JumpType{Kind: isa.RelativeJump, Cond: isa.Unconditional, Target: target, Offset: rel, HasTarget: true}, nil

	case opJMPRel32:
		if len(raw) < 5 {
			return isa.JumpType{}, rerr.NewNoByteRegionAtAddress(addrOfInsn)
		}
		rel := decodeRel32(raw)
		target := addrOfInsn.MustAdd(5 + rel)
		return isa.JumpType{Kind: isa.RelativeJump, Cond: isa.Unconditional, Target: target, Offset: rel, HasTarget: true}, nil

	case opCALLRel32:
		if len(raw) < 5 {
			return isa.JumpType{}, rerr.NewNoByteRegionAtAddress(addrOfInsn)
		}
		rel := decodeRel32(raw)
		target := addrOfInsn.MustAdd(5 + rel)
		return isa.JumpType{Kind: isa.DirectCall, Cond: isa.Conditional, Target: target, Offset: rel, HasTarget: true}, nil

	case op0FEscape:
		if len(raw) >= 6 && raw[1] >= 0x80 && raw[1] <= 0x8F {
			rel := int64(int32(
				uint32(raw[2]) | uint32(raw[3])<<8 | uint32(raw[4])<<16 | uint32(raw[5])<<24,
			))
			target := addrOfInsn.MustAdd(6 + rel)
			return isa.JumpType{Kind: isa.RelativeJump, Cond: isa.Conditional, Target: target, Offset: rel, HasTarget: true}, nil
		}
		return isa.JumpType{Kind: isa.NoJump, Cond: isa.Unconditional}, nil

	case 0xFF:
		if len(raw) < 2 {
			return isa.JumpType{}, rerr.NewNoByteRegionAtAddress(addrOfInsn)
		}
		reg := (raw[1] >> 3) & 0x7
		switch reg {
		case 2:
			return isa.JumpType{Kind: isa.IndirectCall, Cond: isa.Conditional}, nil
		case 4:
			return isa.JumpType{Kind: isa.IndirectJump, Cond: isa.Unconditional}, nil
		default:
			return isa.JumpType{Kind: isa.NoJump, Cond: isa.Unconditional}, nil
		}

	default:
		if raw[0] >= 0x70 && raw[0] <= 0x7F {
			if len(raw) < 2 {
				return isa.JumpType{}, rerr.NewNoByteRegionAtAddress(addrOfInsn)
			}
			rel := int64(int8(raw[1]))
			target := addrOfInsn.MustAdd(2 + rel)
			return isa.JumpType{Kind: isa.RelativeJump, Cond: isa.Conditional, Target: target, Offset: rel, HasTarget: true}, nil
		}
		return isa.JumpType{Kind: isa.NoJump, Cond: isa.Unconditional}, nil
	}
}

func (Provider) TaggedJumpType(t TaggedInsn) (isa.TaggedJumpType, error) {
	switch t.Kind {
	case TaggedJump:
		return isa.TaggedJumpType{Kind: isa.RelativeJump, Cond: isa.Unconditional}, nil
	case TaggedCall:
		return isa.TaggedJumpType{Kind: isa.DirectCall, Cond: isa.Conditional}, nil
	default:
		return isa.TaggedJumpType{Kind: isa.NoJump, Cond: isa.Unconditional}, nil
	}
}

func (Provider) MakeRelativeJumpTo(fromAddr, toAddr address.ConcreteAddress) ([]Insn, error) {
	rel := toAddr.Sub(fromAddr) - 5
	raw, err := encodeRel32Jump(opJMPRel32, rel)
	if err != nil {
		return nil, err
	}
	return []Insn{{Raw: raw}}, nil
}

func (Provider) ModifyJumpTarget(i Insn, fromAddr, toAddr address.ConcreteAddress) (Insn, bool) {
	raw := i.Raw
	switch {
	case len(raw) == 5 && raw[0] == opJMPRel32:
		rel := toAddr.Sub(fromAddr) - 5
		out, err := encodeRel32Jump(opJMPRel32, rel)
		if err != nil {
			return i, false
		}
		return Insn{Raw: out}, true

	case len(raw) == 5 && raw[0] == opCALLRel32:
		rel := toAddr.Sub(fromAddr) - 5
		out, err := encodeRel32Jump(opCALLRel32, rel)
		if err != nil {
			return i, false
		}
		return Insn{Raw: out}, true

	case len(raw) == 2 && raw[0] == opJMPRel8:
		rel := toAddr.Sub(fromAddr) - 2
		if rel < -128 || rel > 127 {
			return i, false
		}
		return Insn{Raw: []byte{opJMPRel8, byte(int8(rel))}}, true

	default:
		return i, false
	}
}

func (Provider) MakePadding(nBytes uint64) ([]Insn, error) {
	out := make([]Insn, nBytes)
	for i := range out {
		out[i] = Insn{Raw: []byte{opNOP}}
	}
	return out, nil
}

func (Provider) MakeSymbolicJump(target address.SymbolicAddress) ([]TaggedInsn, error) {
	return []TaggedInsn{{Kind: TaggedJump, Target: target}}, nil
}

func (Provider) MakeSymbolicCall(target address.SymbolicAddress) (TaggedInsn, error) {
	return TaggedInsn{Kind: TaggedCall, Target: target}, nil
}

func (Provider) Concretize(memory isa.MemoryReader, resolve isa.SymbolResolver, blockAddr, insnAddr address.ConcreteAddress, t TaggedInsn) (Insn, error) {
	switch t.Kind {
	case TaggedRaw:
		return Insn{Raw: t.Raw}, nil

	case TaggedJump, TaggedCall:
		target, ok := resolve(t.Target)
		if !ok {
			return Insn{}, rerr.NewUnassignedSymbolicBlock(insnAddr)
		}
		opcode := byte(opJMPRel32)
		if t.Kind == TaggedCall {
			opcode = opCALLRel32
		}
		rel := target.Sub(insnAddr) - 5
		raw, err := encodeRel32Jump(opcode, rel)
		if err != nil {
			return Insn{}, err
		}
		return Insn{Raw: raw}, nil

	default:
		return Insn{}, rerr.NewUnassignedSymbolicBlock(insnAddr)
	}
}
