package amd64

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coldforge/redirector/address"
	"github.com/coldforge/redirector/isa"
)

func TestInstructionSize(t *testing.T) {
	p := Provider{}
	n, err := p.InstructionSize(Insn{Raw: []byte{0x90}})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), n)

	n, err = p.InstructionSize(Insn{Raw: []byte{0xE9, 0, 0, 0, 0}})
	require.NoError(t, err)
	assert.Equal(t, uint64(5), n)
}

func TestTaggedInstructionSizeIsStableBeforeConcretize(t *testing.T) {
	p := Provider{}
	jumps, err := p.MakeSymbolicJump(address.SymbolicAddress(7))
	require.NoError(t, err)
	require.Len(t, jumps, 1)

	n, err := p.TaggedInstructionSize(jumps[0])
	require.NoError(t, err)
	assert.Equal(t, uint64(5), n)

	concrete, err := p.Concretize(nil, func(address.SymbolicAddress) (address.ConcreteAddress, bool) {
		return 0x5000, true
	}, 0x1000, 0x1000, jumps[0])
	require.NoError(t, err)

	n2, err := p.InstructionSize(concrete)
	require.NoError(t, err)
	assert.Equal(t, n, n2, "encoded size must match what TaggedInstructionSize promised before Concretize")
}

func TestJumpTypeDecodesRelativeJump(t *testing.T) {
	p := Provider{}
	insn := Insn{Raw: []byte{0xE9, 0x05, 0x00, 0x00, 0x00}} // jmp +5
	jt, err := p.JumpType(insn, nil, 0x1000)
	require.NoError(t, err)
	assert.Equal(t, isa.RelativeJump, jt.Kind)
	assert.True(t, jt.IsUnconditional())
	assert.True(t, jt.HasTarget)
	assert.Equal(t, address.ConcreteAddress(0x100A), jt.Target)
}

func TestJumpTypeDecodesConditionalJcc(t *testing.T) {
	p := Provider{}
	insn := Insn{Raw: []byte{0x74, 0x02}} // JE +2
	jt, err := p.JumpType(insn, nil, 0x2000)
	require.NoError(t, err)
	assert.Equal(t, isa.RelativeJump, jt.Kind)
	assert.False(t, jt.IsUnconditional())
	assert.Equal(t, address.ConcreteAddress(0x2004), jt.Target)
}

func TestJumpTypeDecodesReturnAndIndirect(t *testing.T) {
	p := Provider{}

	ret, err := p.JumpType(Insn{Raw: []byte{0xC3}}, nil, 0x100)
	require.NoError(t, err)
	assert.Equal(t, isa.Return, ret.Kind)

	indirectJmp, err := p.JumpType(Insn{Raw: []byte{0xFF, 0x20}}, nil, 0x100) // jmp [rax], reg=4
	require.NoError(t, err)
	assert.Equal(t, isa.IndirectJump, indirectJmp.Kind)

	indirectCall, err := p.JumpType(Insn{Raw: []byte{0xFF, 0x10}}, nil, 0x100) // call [rax], reg=2
	require.NoError(t, err)
	assert.Equal(t, isa.IndirectCall, indirectCall.Kind)
}

func TestMakeRelativeJumpToRoundTrips(t *testing.T) {
	p := Provider{}
	insns, err := p.MakeRelativeJumpTo(0x1000, 0x2000)
	require.NoError(t, err)
	require.Len(t, insns, 1)

	jt, err := p.JumpType(insns[0], nil, 0x1000)
	require.NoError(t, err)
	assert.Equal(t, address.ConcreteAddress(0x2000), jt.Target)
}

func TestModifyJumpTargetRetargetsInPlaceSize(t *testing.T) {
	p := Provider{}
	insns, err := p.MakeRelativeJumpTo(0x1000, 0x2000)
	require.NoError(t, err)
	orig := insns[0]

	retargeted, ok := p.ModifyJumpTarget(orig, 0x1000, 0x3000)
	require.True(t, ok)
	assert.Equal(t, len(orig.Raw), len(retargeted.Raw))

	jt, err := p.JumpType(retargeted, nil, 0x1000)
	require.NoError(t, err)
	assert.Equal(t, address.ConcreteAddress(0x3000), jt.Target)
}

func TestMakePaddingFillsExactByteCount(t *testing.T) {
	p := Provider{}
	insns, err := p.MakePadding(4)
	require.NoError(t, err)

	var total uint64
	for _, insn := range insns {
		n, err := p.InstructionSize(insn)
		require.NoError(t, err)
		total += n
	}
	assert.Equal(t, uint64(4), total)
}

func TestConcretizeFailsOnUnresolvedSymbol(t *testing.T) {
	p := Provider{}
	jump, err := p.MakeSymbolicJump(address.SymbolicAddress(42))
	require.NoError(t, err)

	_, err = p.Concretize(nil, func(address.SymbolicAddress) (address.ConcreteAddress, bool) {
		return 0, false
	}, 0x1000, 0x1000, jump[0])
	assert.Error(t, err)
}
