// Package redirect implements the redirector of spec.md §4.6: the final
// pass that overwrites every relocated original block with a jump to its
// new location, padding whatever bytes the jump doesn't consume.
package redirect

import (
	"github.com/coldforge/redirector/address"
	"github.com/coldforge/redirector/block"
	"github.com/coldforge/redirector/internal/rwctx"
	"github.com/coldforge/redirector/isa"
	"github.com/coldforge/redirector/rerr"
)

// Run converts a Layout's address-assigned pairs into concrete pairs,
// writing a redirection jump over every original block that was relocated
// and had room for one. A block marked Modified by the layout driver but
// too small to hold the jump is demoted back to Unmodified: its original
// bytes are kept, unchanged, at their original address, and the demotion
// is recorded as a diagnostic plus a counter increment rather than an
// error (spec.md §7). injected supplies the address-assigned injected
// code blobs from the same Layout, needed only to extend the symbol
// resolver Concretize uses to bind symbolic jump targets that point into
// injected code.
func Run[I isa.Instruction, T isa.TaggedInstruction](
	ctx *rwctx.Context[I, T],
	pairs []block.AddressAssignedPair[I, T],
	injected []block.InjectedBlock,
) ([]block.ConcretePair[I], error) {
	resolve := buildResolver(ctx, pairs, injected)
	out := make([]block.ConcretePair[I], len(pairs))

	for i, p := range pairs {
		if p.Status != block.Modified {
			out[i] = block.LayoutPair[I, block.ConcreteBlock[I]]{
				Original: p.Original,
				New:      p.Original,
				Status:   block.Unmodified,
			}
			continue
		}

		concrete, err := redirectOne(ctx, p, resolve)
		if err != nil {
			return nil, ctx.Fail(err)
		}
		out[i] = concrete
	}

	return out, nil
}

// buildResolver merges the layout's own symbolic->concrete assignments
// (blocks and injected code) with whatever static SymbolMap the caller
// supplied up front (spec.md §4.7).
func buildResolver[I isa.Instruction, T isa.TaggedInstruction](
	ctx *rwctx.Context[I, T],
	pairs []block.AddressAssignedPair[I, T],
	injected []block.InjectedBlock,
) isa.SymbolResolver {
	table := make(map[address.SymbolicAddress]address.ConcreteAddress, len(pairs)+len(injected))
	for sym, addr := range ctx.SymbolMap {
		table[sym] = addr
	}
	for _, p := range pairs {
		table[p.New.Block.Start().Symbolic] = p.New.Assigned
	}
	for _, blob := range injected {
		table[blob.Symbolic] = blob.Assigned
	}
	return func(sym address.SymbolicAddress) (address.ConcreteAddress, bool) {
		addr, ok := table[sym]
		return addr, ok
	}
}

func redirectOne[I isa.Instruction, T isa.TaggedInstruction](
	ctx *rwctx.Context[I, T],
	p block.AddressAssignedPair[I, T],
	resolve isa.SymbolResolver,
) (block.ConcretePair[I], error) {
	origAddr := p.Original.Start()
	newAddr := p.New.Assigned

	jumpInsns, err := ctx.ISA.MakeRelativeJumpTo(origAddr, newAddr)
	if err != nil {
		return block.ConcretePair[I]{}, err
	}

	origSize, err := p.Original.Size(ctx.ISA.InstructionSize)
	if err != nil {
		return block.ConcretePair[I]{}, err
	}

	// Confirm the bytes we're about to overwrite are actually live in the
	// image before committing to a redirection. A nil Memory (as in tests
	// that never construct a live image) skips this check entirely.
	if ctx.Memory != nil {
		if _, err := ctx.Memory.Bytes(origAddr, origSize); err != nil {
			return block.ConcretePair[I]{}, rerr.NewMemory(err)
		}
	}

	var jumpSize uint64
	for _, insn := range jumpInsns {
		n, err := ctx.ISA.InstructionSize(insn)
		if err != nil {
			return block.ConcretePair[I]{}, err
		}
		jumpSize += n
	}

	if jumpSize > origSize {
		ctx.Tell(rwctx.BlockTooSmallForRedirection{
			OrigSize:    origSize,
			JumpSize:    jumpSize,
			OrigAddr:    origAddr,
			Description: "relative jump to relocated block",
		})
		ctx.IncrSmallBlock()
		return block.LayoutPair[I, block.ConcreteBlock[I]]{
			Original: p.Original,
			New:      p.Original,
			Status:   block.Unmodified,
		}, nil
	}

	if err := tellUnrelocatableTerm(ctx, p); err != nil {
		return block.ConcretePair[I]{}, err
	}

	padInsns, err := ctx.ISA.MakePadding(origSize - jumpSize)
	if err != nil {
		return block.ConcretePair[I]{}, err
	}

	rewritten := append(append([]I{}, jumpInsns...), padInsns...)
	origRewritten, err := block.New(origAddr, rewritten)
	if err != nil {
		return block.ConcretePair[I]{}, err
	}

	newBlock, err := concretize(ctx, p.New, resolve)
	if err != nil {
		return block.ConcretePair[I]{}, err
	}

	ctx.RecordMapping(origAddr, newAddr)

	return block.LayoutPair[I, block.ConcreteBlock[I]]{
		Original: origRewritten,
		New:      newBlock,
		Status:   block.Modified,
	}, nil
}

// tellUnrelocatableTerm records an informational counter for a modified
// block whose original terminal instruction was an indirect control
// transfer: no downstream consumer walking BlockMapping can statically
// retarget through it, since redirection always works by prepending a
// trampoline jump rather than patching the terminal instruction itself.
func tellUnrelocatableTerm[I isa.Instruction, T isa.TaggedInstruction](
	ctx *rwctx.Context[I, T],
	p block.AddressAssignedPair[I, T],
) error {
	last := p.Original.Last()
	jt, err := ctx.ISA.JumpType(last, ctx.Memory, lastInsnAddr(ctx, p.Original))
	if err != nil {
		return err
	}
	if jt.Kind == isa.IndirectJump || jt.Kind == isa.IndirectCall {
		ctx.IncrUnrelocatableTerm()
	}
	return nil
}

// lastInsnAddr computes the address of a concrete block's final
// instruction by summing the sizes of everything before it.
func lastInsnAddr[I isa.Instruction, T isa.TaggedInstruction](ctx *rwctx.Context[I, T], b block.ConcreteBlock[I]) address.ConcreteAddress {
	insns := b.Instructions()
	addr := b.Start()
	for _, insn := range insns[:len(insns)-1] {
		n, err := ctx.ISA.InstructionSize(insn)
		if err != nil {
			return addr
		}
		addr = addr.MustAdd(int64(n))
	}
	return addr
}

// concretize walks a symbolic block's instructions, resolving every
// symbolic target to the concrete address it was assigned, and emits the
// final untagged block.
func concretize[I isa.Instruction, T isa.TaggedInstruction](
	ctx *rwctx.Context[I, T],
	ab block.AddressAssignedBlock[T],
	resolve isa.SymbolResolver,
) (block.ConcreteBlock[I], error) {
	insns := ab.Block.Instructions()
	out := make([]I, 0, len(insns))
	addr := ab.Assigned
	for _, t := range insns {
		concrete, err := ctx.ISA.Concretize(ctx.Memory, resolve, ab.Assigned, addr, t)
		if err != nil {
			return block.ConcreteBlock[I]{}, err
		}
		out = append(out, concrete)
		n, err := ctx.ISA.InstructionSize(concrete)
		if err != nil {
			return block.ConcreteBlock[I]{}, err
		}
		addr = addr.MustAdd(int64(n))
	}
	return block.New(ab.Assigned, out)
}
