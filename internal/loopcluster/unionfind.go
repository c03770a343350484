package loopcluster

import "github.com/coldforge/redirector/address"

// unionFind is a path-compressing, union-by-rank disjoint-set keyed by
// ConcreteAddress (spec.md §9). It is transient to a single run: nothing
// here needs to survive past one loop-clustering pass.
type unionFind struct {
	parent map[address.ConcreteAddress]address.ConcreteAddress
	rank   map[address.ConcreteAddress]int
}

func newUnionFind() *unionFind {
	return &unionFind{
		parent: make(map[address.ConcreteAddress]address.ConcreteAddress),
		rank:   make(map[address.ConcreteAddress]int),
	}
}

// ensure registers addr as its own class if not already present.
func (u *unionFind) ensure(addr address.ConcreteAddress) {
	if _, ok := u.parent[addr]; !ok {
		u.parent[addr] = addr
		u.rank[addr] = 0
	}
}

func (u *unionFind) find(addr address.ConcreteAddress) address.ConcreteAddress {
	u.ensure(addr)
	root := addr
	for u.parent[root] != root {
		root = u.parent[root]
	}
	// Path compression.
	for u.parent[addr] != root {
		next := u.parent[addr]
		u.parent[addr] = root
		addr = next
	}
	return root
}

func (u *unionFind) union(a, b address.ConcreteAddress) {
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return
	}
	switch {
	case u.rank[ra] < u.rank[rb]:
		ra, rb = rb, ra
	case u.rank[ra] == u.rank[rb]:
		u.rank[ra]++
	}
	u.parent[rb] = ra
}

// freeze returns addr -> class representative for every address the
// union-find has seen.
func (u *unionFind) freeze() map[address.ConcreteAddress]address.ConcreteAddress {
	out := make(map[address.ConcreteAddress]address.ConcreteAddress, len(u.parent))
	for addr := range u.parent {
		out[addr] = u.find(addr)
	}
	return out
}
