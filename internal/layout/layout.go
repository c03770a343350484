// Package layout implements the layout driver of spec.md §4.5: it threads
// the fallthrough reifier, the loop clusterer, and the address heap
// allocator together into the one pass that turns a client's symbolic
// rewrite into a fully address-assigned Layout.
package layout

import (
	"fmt"
	"sort"

	"github.com/coldforge/redirector/address"
	"github.com/coldforge/redirector/block"
	"github.com/coldforge/redirector/internal/addrheap"
	"github.com/coldforge/redirector/internal/fallthru"
	"github.com/coldforge/redirector/internal/loopcluster"
	"github.com/coldforge/redirector/internal/rwctx"
	"github.com/coldforge/redirector/isa"
)

// Order selects how the layout driver places relocated groups, per spec.md
// §4.4/§4.5's three named strategies.
type Order int

const (
	// Parallel ignores slack entirely: every group and every injected
	// blob lands in the fresh region, and all recovered slack is filled
	// with padding.
	Parallel Order = iota
	// CompactSorted places groups largest-first, maximizing slack reuse.
	CompactSorted
	// CompactRandom places groups in a seeded, deterministic shuffle.
	CompactRandom
)

// LoopPolicy selects whether loop-equivalence classes are kept contiguous.
type LoopPolicy int

const (
	IgnoreLoops LoopPolicy = iota
	KeepLoopBlocksTogether
)

// Strategy is the resolved, already-pattern-matched set of knobs the layout
// driver needs. The public API exposes a richer, client-facing type and
// resolves it to a Strategy once at the top of the call, per spec.md §9's
// guidance to pattern-match a strategy a single time.
type Strategy struct {
	Order Order
	Loop  LoopPolicy
	// Seed parameterizes CompactRandom's shuffle. Ignored otherwise.
	Seed []uint32
}

// Discovery reports whether a block belongs to a function discovery could
// not fully resolve; such blocks are refused rather than relocated
// (spec.md §1 non-goals, §8 scenario S6).
type Discovery interface {
	IsIncompleteFunction(addr address.ConcreteAddress) bool
}

// CFGSet supplies both a function's symbolic CFG and the full set of
// function entries to run the loop clusterer over. Only consulted when
// Strategy.Loop is KeepLoopBlocksTogether.
type CFGSet interface {
	loopcluster.CFGProvider
	Entries() []address.ConcreteAddress
}

// InjectedInput is one client-supplied byte blob to be placed into the
// output and given a symbolic address (spec.md glossary, "injected code").
type InjectedInput struct {
	Bytes []byte
}

// Run executes the full layout pipeline and returns the assigned Layout.
func Run[I isa.Instruction, T isa.TaggedInstruction](
	ctx *rwctx.Context[I, T],
	startAddr address.ConcreteAddress,
	strat Strategy,
	pairs []block.SymbolicPair[I, T],
	injected []InjectedInput,
	discovery Discovery,
	cfgs CFGSet,
) (*block.Layout[I, T], error) {
	allInOrder := make([]block.SymbolicBlock[T], len(pairs))
	for i, p := range pairs {
		allInOrder[i] = p.New
	}

	working := make([]block.SymbolicPair[I, T], len(pairs))
	copy(working, pairs)

	if discovery != nil {
		for i, p := range working {
			if p.Status == block.Modified && discovery.IsIncompleteFunction(p.Original.Start()) {
				ctx.Tell(rwctx.IncompleteFunctionRefused{OrigAddr: p.Original.Start()})
				ctx.IncrIncompleteBlock()
				working[i].Status = block.Unmodified
			}
		}
	}

	reified, err := fallthru.Reify(ctx.ISA, working, allInOrder)
	if err != nil {
		return nil, ctx.Fail(err)
	}

	mustRelocate, groups, err := resolveGroups(ctx, strat, cfgs, reified)
	if err != nil {
		return nil, err
	}

	augmented := make([]block.SymbolicPair[I, T], len(reified))
	copy(augmented, reified)
	for i, must := range mustRelocate {
		if must {
			augmented[i].Status = block.Modified
		}
	}

	slackHeap, slackEntries, err := buildSlack(ctx, augmented, mustRelocate)
	if err != nil {
		return nil, ctx.Fail(err)
	}

	if err := orderGroups(ctx, strat, augmented, groups); err != nil {
		return nil, ctx.Fail(err)
	}

	allocHeap := addrheap.New()
	if strat.Order != Parallel {
		for _, c := range slackEntries {
			allocHeap.Insert(c.Size, c.Addr)
		}
	}
	alloc := addrheap.NewAllocator(startAddr, allocHeap)

	addrByIndex := make(map[int]address.ConcreteAddress, len(augmented))
	for _, g := range groups {
		size, err := groupSize(ctx, augmented, g)
		if err != nil {
			return nil, ctx.Fail(err)
		}
		base, reused, err := alloc.Allocate(size)
		if err != nil {
			return nil, ctx.Fail(err)
		}
		ctx.AddReusedBytes(reused)

		offset := uint64(0)
		for _, idx := range g.Indices {
			addrByIndex[idx] = base.MustAdd(int64(offset))
			sz, err := augmented[idx].New.Size(ctx.ISA.TaggedInstructionSize)
			if err != nil {
				return nil, ctx.Fail(err)
			}
			offset += sz
		}
	}

	injectedOut := make([]block.InjectedBlock, len(injected))
	for i, blob := range injected {
		sym := ctx.Symbols.Next()
		base, reused, err := alloc.Allocate(uint64(len(blob.Bytes)))
		if err != nil {
			return nil, ctx.Fail(err)
		}
		ctx.AddReusedBytes(reused)
		injectedOut[i] = block.InjectedBlock{Symbolic: sym, Assigned: base, Bytes: blob.Bytes}
	}

	var paddingSource []addrheap.Chunk
	if strat.Order == Parallel {
		paddingSource = slackHeap.Remaining()
	} else {
		paddingSource = allocHeap.Remaining()
	}

	paddingBlocks := make([]block.ConcreteBlock[I], 0, len(paddingSource))
	for _, chunk := range paddingSource {
		insns, err := ctx.ISA.MakePadding(chunk.Size)
		if err != nil {
			return nil, ctx.Fail(err)
		}
		blk, err := block.New(chunk.Addr, insns)
		if err != nil {
			return nil, ctx.Fail(err)
		}
		paddingBlocks = append(paddingBlocks, blk)
	}

	out := make([]block.AddressAssignedPair[I, T], len(augmented))
	for i, p := range augmented {
		addr := p.Original.Start()
		if mustRelocate[i] {
			addr = addrByIndex[i]
		}
		out[i] = block.AddressAssignedPair[I, T]{
			Original: p.Original,
			New:      block.AddressAssignedBlock[T]{Block: p.New, Assigned: addr},
			Status:   p.Status,
		}
	}

	return &block.Layout[I, T]{
		ProgramBlockLayout:  out,
		LayoutPaddingBlocks: paddingBlocks,
		InjectedBlockLayout: injectedOut,
	}, nil
}

// resolveGroups computes the must-relocate set and placement groups,
// either via the loop clusterer (KeepLoopBlocksTogether) or via one
// singleton group per modified pair (IgnoreLoops).
func resolveGroups[I isa.Instruction, T isa.TaggedInstruction](
	ctx *rwctx.Context[I, T],
	strat Strategy,
	cfgs CFGSet,
	pairs []block.SymbolicPair[I, T],
) ([]bool, []loopcluster.Group, error) {
	if strat.Loop == KeepLoopBlocksTogether {
		if cfgs == nil {
			return nil, nil, ctx.Fail(fmt.Errorf("layout: KeepLoopBlocksTogether strategy requires a non-nil CFG set"))
		}
		memo := loopcluster.NewMemoizing(cfgs)
		classes, err := loopcluster.EquivalenceClasses(memo, cfgs.Entries())
		if err != nil {
			return nil, nil, ctx.Fail(err)
		}
		mustRelocate, groups := loopcluster.AugmentAndGroup(pairs, classes)
		return mustRelocate, groups, nil
	}

	mustRelocate := make([]bool, len(pairs))
	var groups []loopcluster.Group
	for i, p := range pairs {
		if p.Status == block.Modified {
			mustRelocate[i] = true
			groups = append(groups, loopcluster.Group{Indices: []int{i}})
		}
	}
	return mustRelocate, groups, nil
}

// buildSlack computes the recoverable slack chunk for every relocated pair:
// the gap between the original block's size and the redirection jump that
// will eventually overwrite it. Blocks too small to hold a jump contribute
// zero slack; whether they end up actually redirected is decided later by
// the redirector, not here.
func buildSlack[I isa.Instruction, T isa.TaggedInstruction](
	ctx *rwctx.Context[I, T],
	pairs []block.SymbolicPair[I, T],
	mustRelocate []bool,
) (*addrheap.AddressHeap, []addrheap.Chunk, error) {
	h := addrheap.New()
	var entries []addrheap.Chunk
	for i, must := range mustRelocate {
		if !must {
			continue
		}
		p := pairs[i]
		origAddr := p.Original.Start()
		origSize, err := p.Original.Size(ctx.ISA.InstructionSize)
		if err != nil {
			return nil, nil, err
		}
		jumpInsns, err := ctx.ISA.MakeRelativeJumpTo(origAddr, origAddr)
		if err != nil {
			return nil, nil, err
		}
		var jumpSize uint64
		for _, insn := range jumpInsns {
			n, err := ctx.ISA.InstructionSize(insn)
			if err != nil {
				return nil, nil, err
			}
			jumpSize += n
		}
		if origSize <= jumpSize {
			continue
		}
		slack := origSize - jumpSize
		slackAddr := origAddr.MustAdd(int64(jumpSize))
		h.Insert(slack, slackAddr)
		entries = append(entries, addrheap.Chunk{Size: slack, Addr: slackAddr})
	}
	return h, entries, nil
}

// groupSize sums the encoded size of every block in a group.
func groupSize[I isa.Instruction, T isa.TaggedInstruction](
	ctx *rwctx.Context[I, T],
	pairs []block.SymbolicPair[I, T],
	g loopcluster.Group,
) (uint64, error) {
	var total uint64
	for _, idx := range g.Indices {
		n, err := pairs[idx].New.Size(ctx.ISA.TaggedInstructionSize)
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}

// orderGroups reorders groups in place according to the strategy: a no-op
// for Parallel (placement order is irrelevant since nothing reuses slack),
// descending-size for CompactSorted, and a deterministic shuffle for
// CompactRandom.
func orderGroups[I isa.Instruction, T isa.TaggedInstruction](
	ctx *rwctx.Context[I, T],
	strat Strategy,
	pairs []block.SymbolicPair[I, T],
	groups []loopcluster.Group,
) error {
	switch strat.Order {
	case CompactSorted:
		type weighted struct {
			group  loopcluster.Group
			weight uint64
		}
		ws := make([]weighted, len(groups))
		for i := range groups {
			size, err := groupSize(ctx, pairs, groups[i])
			if err != nil {
				return err
			}
			ws[i] = weighted{group: groups[i], weight: size}
		}
		sort.SliceStable(ws, func(i, j int) bool { return ws[i].weight > ws[j].weight })
		for i, w := range ws {
			groups[i] = w.group
		}
	case CompactRandom:
		fisherYates(groups, strat.Seed)
	}
	return nil
}
