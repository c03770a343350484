// Package fallthru implements the fallthrough reifier (spec.md §4.2): it
// rewrites every modified symbolic block so it ends in an explicit,
// unconditional control transfer, because the allocator is about to place
// blocks at addresses that bear no relation to their original layout and
// "falls through to the next address" can no longer mean anything once
// that happens.
package fallthru

import (
	"github.com/coldforge/redirector/address"
	"github.com/coldforge/redirector/block"
	"github.com/coldforge/redirector/isa"
	"github.com/coldforge/redirector/rerr"
)

// Reify transforms pairs so every modified block ends in an unconditional
// control transfer. allInOrder is the full ordered list of all new
// symbolic blocks (modified and unmodified), used only to build the
// program-order successor index: spec.md §9 requires the client's
// iteration order to be treated as program order, so callers must pass the
// same stable order their rewrite pass produced.
func Reify[I isa.Instruction, T isa.TaggedInstruction](
	provider isa.Provider[I, T],
	pairs []block.SymbolicPair[I, T],
	allInOrder []block.SymbolicBlock[T],
) ([]block.SymbolicPair[I, T], error) {
	successor := buildSuccessorIndex(allInOrder)

	out := make([]block.SymbolicPair[I, T], len(pairs))
	for i, pair := range pairs {
		if pair.Status != block.Modified {
			out[i] = pair
			continue
		}

		last := pair.New.Last()
		jt, err := provider.TaggedJumpType(last)
		if err != nil {
			return nil, err
		}

		if !jt.Kind.NeedsFallthrough(jt.Cond) {
			out[i] = pair
			continue
		}

		succ, ok := successor[pair.New.Start().Symbolic]
		if !ok {
			return nil, rerr.NewMissingSuccessor(pair.New.Start().Original)
		}

		extra, err := provider.MakeSymbolicJump(succ)
		if err != nil {
			return nil, err
		}

		newPair := pair
		newPair.New = pair.New.Append(extra...)
		out[i] = newPair
	}
	return out, nil
}

// buildSuccessorIndex maps each symbolic block's address to the address of
// its program-order successor: the immediately next element of allInOrder.
func buildSuccessorIndex[T isa.TaggedInstruction](allInOrder []block.SymbolicBlock[T]) map[address.SymbolicAddress]address.SymbolicAddress {
	idx := make(map[address.SymbolicAddress]address.SymbolicAddress, len(allInOrder))
	for i := 0; i < len(allInOrder)-1; i++ {
		idx[allInOrder[i].Start().Symbolic] = allInOrder[i+1].Start().Symbolic
	}
	return idx
}
