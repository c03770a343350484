// Package redirector implements a binary-rewriting redirection engine
// (spec.md §1): given a client's symbolic rewrite of a set of basic
// blocks, it lays the rewritten blocks out in a compact or parallel
// address region and overwrites each relocated original with a jump to
// its new home.
//
// The three passes — fallthrough reification, loop clustering, and
// address allocation — live in internal packages and are never exposed
// directly; CompactLayout is the one public entry point, matching
// spec.md §6's external interface.
package redirector

import (
	"github.com/coldforge/redirector/address"
	"github.com/coldforge/redirector/block"
	"github.com/coldforge/redirector/internal/layout"
	"github.com/coldforge/redirector/internal/loopcluster"
	"github.com/coldforge/redirector/internal/redirect"
	"github.com/coldforge/redirector/internal/rwctx"
	"github.com/coldforge/redirector/isa"
	"github.com/coldforge/redirector/rerr"
)

// LoopPolicy selects whether loop-equivalence classes are kept physically
// contiguous (spec.md §4.3).
type LoopPolicy int

const (
	IgnoreLoops LoopPolicy = iota
	KeepLoopBlocksTogether
)

func (p LoopPolicy) resolve() layout.LoopPolicy {
	if p == KeepLoopBlocksTogether {
		return layout.KeepLoopBlocksTogether
	}
	return layout.IgnoreLoops
}

// LayoutStrategy selects how CompactLayout places relocated blocks
// (spec.md §4.4/§4.5): Parallel ignores slack and fills it all with
// padding; the two Compact variants reuse slack, ordering the groups to
// be placed either by descending size or by a seeded shuffle.
type LayoutStrategy struct {
	resolved layout.Strategy
}

// NewParallelStrategy builds the Parallel strategy.
func NewParallelStrategy(loop LoopPolicy) LayoutStrategy {
	return LayoutStrategy{resolved: layout.Strategy{Order: layout.Parallel, Loop: loop.resolve()}}
}

// NewCompactSortedStrategy builds the Compact(SortedOrder) strategy.
func NewCompactSortedStrategy(loop LoopPolicy) LayoutStrategy {
	return LayoutStrategy{resolved: layout.Strategy{Order: layout.CompactSorted, Loop: loop.resolve()}}
}

// NewCompactRandomStrategy builds the Compact(RandomOrder(seed)) strategy.
// The same seed always produces the same placement order (spec.md §8
// invariant 8).
func NewCompactRandomStrategy(seed []uint32, loop LoopPolicy) LayoutStrategy {
	return LayoutStrategy{resolved: layout.Strategy{Order: layout.CompactRandom, Loop: loop.resolve(), Seed: seed}}
}

// Discovery reports whether a block belongs to a function the client's
// discovery pass could not fully resolve; such blocks are refused rather
// than relocated (spec.md §1 non-goals, §8 scenario S6).
type Discovery interface {
	IsIncompleteFunction(addr address.ConcreteAddress) bool
}

// CFGs supplies a per-function symbolic control-flow graph plus the set
// of function entries to run the loop clusterer over. Only consulted
// when a LayoutStrategy's LoopPolicy is KeepLoopBlocksTogether.
type CFGs interface {
	CFG(entry address.ConcreteAddress) (*loopcluster.SymbolicCFG, error)
	Entries() []address.ConcreteAddress
}

// InjectedBlob is a client-supplied byte blob placed into the output and
// given a symbolic address for later reference (spec.md glossary).
type InjectedBlob struct {
	Bytes []byte
}

// Engine bundles the architecture-specific collaborators CompactLayout
// needs (spec.md §4.7's read-only environment): the ISA provider, a
// reader over the original image's bytes, and a static table resolving
// any symbolic address the client already knows the concrete home of.
//
// Symbols mints the SymbolicAddress values CompactLayout assigns to
// injected code blobs. It is optional: a nil Symbols gets CompactLayout
// its own fresh allocator starting at 0. But the client's own blocks
// (the SymbolicInfo.Symbolic field on each pair's New block) are minted
// by the client, outside this package entirely — if the client's own
// minting also starts at 0, the two id spaces can collide, and whichever
// one buildResolver's merge inserts last silently wins. A client that
// wants injected code safely addressable alongside its own blocks must
// set Symbols to the same *address.Allocator it used to mint its block
// symbols, so both draw from one shared, non-overlapping sequence.
type Engine[I isa.Instruction, T isa.TaggedInstruction] struct {
	ISA       isa.Provider[I, T]
	Memory    isa.MemoryReader
	SymbolMap map[address.SymbolicAddress]address.ConcreteAddress
	Symbols   *address.Allocator
}

// Result is CompactLayout's output: the final concrete program, the
// padding blocks filling unused slack, the placed injected code, the
// public original->redirected translation table, and every diagnostic
// and counter accumulated along the way (spec.md §4.7, §7).
type Result[I isa.Instruction] struct {
	Program  []block.ConcretePair[I]
	Padding  []block.ConcreteBlock[I]
	Injected []block.InjectedBlock
	Mapping  []rwctx.BlockMapping

	Diagnostics []rwctx.Diagnostic

	SmallBlockCount        int
	IncompleteBlockCount   int
	UnrelocatableTermCount int
	ReusedByteCount        uint64
}

// CompactLayout runs the full pipeline: fallthrough reification, optional
// loop clustering, address allocation, and redirection (spec.md §4, §6).
// pairs must be given in the client's program order: the same order the
// fallthrough reifier treats as "the next instruction in program order"
// for any block that needs one synthesized. If a fatal error stops the
// pipeline, the error is returned together with a Result holding only the
// diagnostics logged before the failure.
func (e Engine[I, T]) CompactLayout(
	startAddr address.ConcreteAddress,
	strategy LayoutStrategy,
	pairs []block.SymbolicPair[I, T],
	injectedCode []InjectedBlob,
	discovery Discovery,
	cfgs CFGs,
) (*Result[I], error) {
	ctx := rwctx.New(e.ISA, e.Memory, e.SymbolMap)
	if e.Symbols != nil {
		ctx.Symbols = e.Symbols
	}

	injected := make([]layout.InjectedInput, len(injectedCode))
	for i, blob := range injectedCode {
		injected[i] = layout.InjectedInput{Bytes: blob.Bytes}
	}

	lay, err := layout.Run(ctx, startAddr, strategy.resolved, pairs, injected, discovery, cfgs)
	if err != nil {
		return &Result[I]{Diagnostics: ctx.Diagnostics()}, err
	}

	program, err := redirect.Run(ctx, lay.ProgramBlockLayout, lay.InjectedBlockLayout)
	if err != nil {
		return &Result[I]{Diagnostics: ctx.Diagnostics()}, err
	}

	return &Result[I]{
		Program:                program,
		Padding:                lay.LayoutPaddingBlocks,
		Injected:               lay.InjectedBlockLayout,
		Mapping:                ctx.BlockMapping(),
		Diagnostics:            ctx.Diagnostics(),
		SmallBlockCount:        ctx.SmallBlockCount(),
		IncompleteBlockCount:   ctx.IncompleteBlockCount(),
		UnrelocatableTermCount: ctx.UnrelocatableTermCount(),
		ReusedByteCount:        ctx.ReusedByteCount(),
	}, nil
}

// Validate checks the one structural invariant CompactLayout's output
// must hold regardless of strategy: no two concrete byte ranges it
// placed — unmodified originals, the redirection jump at the start of each
// rewritten original, relocated blocks, padding, and injected code —
// overlap. Slack coverage is not checked. It is not called automatically;
// callers that want the extra assurance invoke it themselves, typically in
// tests.
func (r *Result[I]) Validate(sizeOf block.Sizer[I]) error {
	type span struct {
		start, end address.ConcreteAddress
	}
	var spans []span

	add := func(start address.ConcreteAddress, n uint64) error {
		if n == 0 {
			return nil
		}
		end := start.MustAdd(int64(n))
		for _, s := range spans {
			if start < s.end && s.start < end {
				return rerr.NewOverlappingBlocks(start, end, s.end)
			}
		}
		spans = append(spans, span{start: start, end: end})
		return nil
	}

	for _, p := range r.Program {
		origSize, err := p.Original.Size(sizeOf)
		if err != nil {
			return err
		}
		if p.Status == block.Modified {
			// Only the leading instruction (the redirection jump) of a
			// rewritten original is counted: the rest of its footprint is
			// slack that relocated blocks and padding may occupy.
			origSize, err = sizeOf(p.Original.Instructions()[0])
			if err != nil {
				return err
			}
		}
		if err := add(p.Original.Start(), origSize); err != nil {
			return err
		}
		if p.Status == block.Modified {
			newSize, err := p.New.Size(sizeOf)
			if err != nil {
				return err
			}
			if err := add(p.New.Start(), newSize); err != nil {
				return err
			}
		}
	}

	for _, pad := range r.Padding {
		n, err := pad.Size(sizeOf)
		if err != nil {
			return err
		}
		if err := add(pad.Start(), n); err != nil {
			return err
		}
	}

	for _, inj := range r.Injected {
		if err := add(inj.Assigned, uint64(len(inj.Bytes))); err != nil {
			return err
		}
	}

	return nil
}
