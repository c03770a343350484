// Package loopcluster implements the KeepLoopBlocksTogether policy
// (spec.md §4.3): blocks belonging to the same loop are grouped into an
// equivalence class via a weak topological ordering of a symbolic CFG
// hint, so the layout driver can keep them physically adjacent.
package loopcluster

import (
	"sort"

	"github.com/coldforge/redirector/address"
)

// SymbolicCFG is the lazily-materialized hint the loop clusterer consumes:
// the node set and successor edges of one function's control-flow graph,
// addressed by the original (pre-rewrite) concrete address of each block.
type SymbolicCFG struct {
	Nodes []address.ConcreteAddress
	Edges map[address.ConcreteAddress][]address.ConcreteAddress
}

// CFGProvider materializes a function's SymbolicCFG on demand. spec.md §5
// treats this as an opaque, potentially blocking external call that must be
// made at most once per entry per run; Memoizing wraps a CFGProvider to
// guarantee that.
type CFGProvider interface {
	CFG(entry address.ConcreteAddress) (*SymbolicCFG, error)
}

// CFGProviderFunc adapts a function to CFGProvider.
type CFGProviderFunc func(address.ConcreteAddress) (*SymbolicCFG, error)

func (f CFGProviderFunc) CFG(entry address.ConcreteAddress) (*SymbolicCFG, error) { return f(entry) }

// Memoizing wraps a CFGProvider so CFG is invoked at most once per entry
// address, caching the result (and the error) for subsequent calls.
type Memoizing struct {
	inner   CFGProvider
	results map[address.ConcreteAddress]memoEntry
}

type memoEntry struct {
	cfg *SymbolicCFG
	err error
}

func NewMemoizing(inner CFGProvider) *Memoizing {
	return &Memoizing{inner: inner, results: make(map[address.ConcreteAddress]memoEntry)}
}

func (m *Memoizing) CFG(entry address.ConcreteAddress) (*SymbolicCFG, error) {
	if r, ok := m.results[entry]; ok {
		return r.cfg, r.err
	}
	cfg, err := m.inner.CFG(entry)
	m.results[entry] = memoEntry{cfg: cfg, err: err}
	return cfg, err
}

// EquivalenceClasses computes, for every function entry in entries (in the
// given order, for determinism), the loop-equivalence class representative
// of every block address reachable in that function's CFG. Blocks not
// mentioned by any CFG are simply absent from the result (their own
// address is their class, conceptually).
func EquivalenceClasses(provider CFGProvider, entries []address.ConcreteAddress) (map[address.ConcreteAddress]address.ConcreteAddress, error) {
	uf := newUnionFind()

	for _, entry := range entries {
		cfg, err := provider.CFG(entry)
		if err != nil {
			return nil, err
		}
		if cfg == nil {
			continue
		}
		for _, n := range cfg.Nodes {
			uf.ensure(n)
		}
		for _, comp := range nonTrivialComponents(cfg) {
			head := comp[0]
			for _, n := range comp[1:] {
				uf.union(head, n)
			}
		}
	}

	return uf.freeze(), nil
}

// nonTrivialComponents returns the strongly connected components of cfg
// that represent a loop: components with more than one node, or a single
// node with a self-edge. Each returned component is sorted by address for
// a deterministic head choice (the lowest address becomes the union head;
// spec.md §4.3 only requires a deterministic tie-break, not a specific
// one).
func nonTrivialComponents(cfg *SymbolicCFG) [][]address.ConcreteAddress {
	sccs := tarjanSCC(cfg)
	var out [][]address.ConcreteAddress
	for _, comp := range sccs {
		if len(comp) > 1 || hasSelfEdge(cfg, comp[0]) {
			sorted := append([]address.ConcreteAddress(nil), comp...)
			sort.Slice(sorted, func(i, j int) bool { return sorted[i].Less(sorted[j]) })
			out = append(out, sorted)
		}
	}
	return out
}

func hasSelfEdge(cfg *SymbolicCFG, n address.ConcreteAddress) bool {
	for _, succ := range cfg.Edges[n] {
		if succ == n {
			return true
		}
	}
	return false
}

// tarjanSCC computes strongly connected components, iterating cfg.Nodes in
// order for determinism.
func tarjanSCC(cfg *SymbolicCFG) [][]address.ConcreteAddress {
	type state struct {
		index, lowlink int
		onStack        bool
	}

	index := 0
	states := make(map[address.ConcreteAddress]*state)
	var stack []address.ConcreteAddress
	var sccs [][]address.ConcreteAddress

	var strongconnect func(v address.ConcreteAddress)
	strongconnect = func(v address.ConcreteAddress) {
		st := &state{index: index, lowlink: index, onStack: true}
		states[v] = st
		index++
		stack = append(stack, v)

		for _, w := range cfg.Edges[v] {
			if ws, ok := states[w]; !ok {
				strongconnect(w)
				if states[w].lowlink < st.lowlink {
					st.lowlink = states[w].lowlink
				}
			} else if ws.onStack {
				if ws.index < st.lowlink {
					st.lowlink = ws.index
				}
			}
		}

		if st.lowlink == st.index {
			var comp []address.ConcreteAddress
			for {
				n := len(stack) - 1
				w := stack[n]
				stack = stack[:n]
				states[w].onStack = false
				comp = append(comp, w)
				if w == v {
					break
				}
			}
			sccs = append(sccs, comp)
		}
	}

	for _, n := range cfg.Nodes {
		if _, ok := states[n]; !ok {
			strongconnect(n)
		}
	}
	return sccs
}
