package layout_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coldforge/redirector/address"
	"github.com/coldforge/redirector/block"
	"github.com/coldforge/redirector/internal/layout"
	"github.com/coldforge/redirector/internal/rwctx"
	amd64 "github.com/coldforge/redirector/isa/amd64"
)

func newCtx() *rwctx.Context[amd64.Insn, amd64.TaggedInsn] {
	return rwctx.New[amd64.Insn, amd64.TaggedInsn](amd64.Provider{}, nil, nil)
}

// modifiedPair builds an n-NOP original block paired with a symbolic
// block ending in an unconditional jump (so the fallthrough reifier
// leaves it alone), of the given instruction count.
func modifiedPair(t *testing.T, orig address.ConcreteAddress, sym address.SymbolicAddress, origLen, newLen int, target address.SymbolicAddress) block.SymbolicPair[amd64.Insn, amd64.TaggedInsn] {
	t.Helper()
	origInsns := make([]amd64.Insn, origLen)
	for i := range origInsns {
		origInsns[i] = amd64.Insn{Raw: []byte{0x90}}
	}
	origBlock, err := block.New(orig, origInsns)
	require.NoError(t, err)

	newInsns := make([]amd64.TaggedInsn, 0, newLen+1)
	for i := 0; i < newLen; i++ {
		newInsns = append(newInsns, amd64.TaggedInsn{Kind: amd64.TaggedRaw, Raw: []byte{0x90}})
	}
	newInsns = append(newInsns, amd64.TaggedInsn{Kind: amd64.TaggedJump, Target: target})

	newBlock, err := block.New(address.SymbolicInfo{Symbolic: sym, Original: orig}, newInsns)
	require.NoError(t, err)

	return block.SymbolicPair[amd64.Insn, amd64.TaggedInsn]{Original: origBlock, New: newBlock, Status: block.Modified}
}

func TestRunAssignsAddressesAndProducesPadding(t *testing.T) {
	ctx := newCtx()

	pairs := []block.SymbolicPair[amd64.Insn, amd64.TaggedInsn]{
		modifiedPair(t, 0x1000, 1, 20, 2, address.SymbolicAddress(1)), // 20-byte original, 7-byte new (2 raw NOPs + 5-byte jump)
	}

	strat := layout.Strategy{Order: layout.CompactSorted, Loop: layout.IgnoreLoops}
	lay, err := layout.Run(ctx, address.ConcreteAddress(0x8000), strat, pairs, nil, nil, nil)
	require.NoError(t, err)

	require.Len(t, lay.ProgramBlockLayout, 1)
	assigned := lay.ProgramBlockLayout[0]
	assert.Equal(t, block.Modified, assigned.Status)
	assert.NotEqual(t, address.ConcreteAddress(0x1000), assigned.New.Assigned, "a modified pair must be relocated")

	// Original is 20 1-byte NOPs; the redirection jump will eventually be
	// 5 bytes, leaving 15 bytes of slack that CompactSorted should reuse
	// for the new block rather than advance the fresh-region cursor.
	assert.Equal(t, address.ConcreteAddress(0x1005), assigned.New.Assigned, "compact layout must reuse the recovered slack")

	// The 7-byte block leaves 8 of the 15 slack bytes, at 0x100C, as padding.
	require.Len(t, lay.LayoutPaddingBlocks, 1)
	assert.Equal(t, address.ConcreteAddress(0x100C), lay.LayoutPaddingBlocks[0].Start())
}

func TestRunParallelStrategyNeverReusesSlack(t *testing.T) {
	ctx := newCtx()

	pairs := []block.SymbolicPair[amd64.Insn, amd64.TaggedInsn]{
		modifiedPair(t, 0x1000, 1, 20, 2, address.SymbolicAddress(1)),
	}

	strat := layout.Strategy{Order: layout.Parallel, Loop: layout.IgnoreLoops}
	lay, err := layout.Run(ctx, address.ConcreteAddress(0x8000), strat, pairs, nil, nil, nil)
	require.NoError(t, err)

	assigned := lay.ProgramBlockLayout[0]
	assert.Equal(t, address.ConcreteAddress(0x8000), assigned.New.Assigned, "Parallel must place new blocks in the fresh region, never reusing slack")

	require.Len(t, lay.LayoutPaddingBlocks, 1)
	assert.Equal(t, address.ConcreteAddress(0x1005), lay.LayoutPaddingBlocks[0].Start(), "all recovered slack must become padding under Parallel")
}

func TestRunLeavesUnmodifiedPairsAtTheirOriginalAddress(t *testing.T) {
	ctx := newCtx()

	origInsns := []amd64.Insn{{Raw: []byte{0x90}}}
	origBlock, err := block.New(address.ConcreteAddress(0x3000), origInsns)
	require.NoError(t, err)
	newBlock, err := block.New(address.SymbolicInfo{Symbolic: 9, Original: 0x3000}, []amd64.TaggedInsn{{Kind: amd64.TaggedRaw, Raw: []byte{0x90}}})
	require.NoError(t, err)

	pairs := []block.SymbolicPair[amd64.Insn, amd64.TaggedInsn]{
		{Original: origBlock, New: newBlock, Status: block.Unmodified},
	}

	strat := layout.Strategy{Order: layout.CompactSorted, Loop: layout.IgnoreLoops}
	lay, err := layout.Run(ctx, address.ConcreteAddress(0x8000), strat, pairs, nil, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, address.ConcreteAddress(0x3000), lay.ProgramBlockLayout[0].New.Assigned)
}

func TestRunPlacesInjectedCode(t *testing.T) {
	ctx := newCtx()
	strat := layout.Strategy{Order: layout.CompactSorted, Loop: layout.IgnoreLoops}

	lay, err := layout.Run(ctx, address.ConcreteAddress(0x8000), strat, nil, []layout.InjectedInput{{Bytes: []byte{1, 2, 3, 4}}}, nil, nil)
	require.NoError(t, err)

	require.Len(t, lay.InjectedBlockLayout, 1)
	assert.Equal(t, address.ConcreteAddress(0x8000), lay.InjectedBlockLayout[0].Assigned)
	assert.Equal(t, []byte{1, 2, 3, 4}, lay.InjectedBlockLayout[0].Bytes)
}

func TestRunRefusesIncompleteFunctionBlocks(t *testing.T) {
	ctx := newCtx()
	pairs := []block.SymbolicPair[amd64.Insn, amd64.TaggedInsn]{
		modifiedPair(t, 0x1000, 1, 20, 2, address.SymbolicAddress(1)),
	}

	discovery := incompleteAt(0x1000)
	strat := layout.Strategy{Order: layout.CompactSorted, Loop: layout.IgnoreLoops}
	lay, err := layout.Run(ctx, address.ConcreteAddress(0x8000), strat, pairs, nil, discovery, nil)
	require.NoError(t, err)

	assert.Equal(t, block.Unmodified, lay.ProgramBlockLayout[0].Status)
	assert.Equal(t, address.ConcreteAddress(0x1000), lay.ProgramBlockLayout[0].New.Assigned, "a refused block must not move")
	assert.Equal(t, 1, ctx.IncompleteBlockCount())
}

type incompleteAt address.ConcreteAddress

func (d incompleteAt) IsIncompleteFunction(addr address.ConcreteAddress) bool {
	return addr == address.ConcreteAddress(d)
}
