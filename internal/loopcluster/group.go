package loopcluster

import (
	"sort"

	"github.com/coldforge/redirector/address"
	"github.com/coldforge/redirector/block"
	"github.com/coldforge/redirector/isa"
)

// Group is a set of pair indices (into the pairs slice passed to
// AugmentAndGroup) that must be placed contiguously by the allocator.
type Group struct {
	Indices []int
}

// AugmentAndGroup implements the rest of spec.md §4.3: the modified-block
// set is augmented so that any block sharing a loop-equivalence-class
// representative with a Modified block is itself pulled into the
// must-relocate set, even if it was individually Unmodified; relocated
// blocks are then partitioned by representative and, within each group,
// sorted by original concrete address.
//
// mustRelocate[i] reports whether pairs[i] needs a fresh address.
// Pairs with mustRelocate[i] == false keep their original address and are
// absent from groups.
func AugmentAndGroup[I isa.Instruction, T isa.TaggedInstruction](
	pairs []block.SymbolicPair[I, T],
	classes map[address.ConcreteAddress]address.ConcreteAddress,
) (mustRelocate []bool, groups []Group) {
	mustRelocate = make([]bool, len(pairs))

	hotClasses := make(map[address.ConcreteAddress]bool)
	for _, p := range pairs {
		if p.Status == block.Modified {
			if rep, ok := classes[p.New.Start().Original]; ok {
				hotClasses[rep] = true
			}
		}
	}

	byClass := make(map[address.ConcreteAddress][]int)
	for i, p := range pairs {
		rep, inClass := classes[p.New.Start().Original]
		switch {
		case p.Status == block.Modified && !inClass:
			mustRelocate[i] = true
			groups = append(groups, Group{Indices: []int{i}})
		case inClass && hotClasses[rep]:
			mustRelocate[i] = true
			byClass[rep] = append(byClass[rep], i)
		}
	}

	// Deterministic order: iterate classes by ascending representative
	// address.
	var reps []address.ConcreteAddress
	for rep := range byClass {
		reps = append(reps, rep)
	}
	sort.Slice(reps, func(i, j int) bool { return reps[i].Less(reps[j]) })

	for _, rep := range reps {
		idxs := byClass[rep]
		sort.Slice(idxs, func(a, b int) bool {
			return pairs[idxs[a]].New.Start().Original.Less(pairs[idxs[b]].New.Start().Original)
		})
		groups = append(groups, Group{Indices: idxs})
	}

	return mustRelocate, groups
}
