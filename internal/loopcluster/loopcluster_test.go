package loopcluster

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coldforge/redirector/address"
)

func TestEquivalenceClassesGroupsATwoNodeLoop(t *testing.T) {
	entry := address.ConcreteAddress(0x100)
	a := address.ConcreteAddress(0x100)
	b := address.ConcreteAddress(0x110)
	c := address.ConcreteAddress(0x120) // not part of the loop

	cfg := &SymbolicCFG{
		Nodes: []address.ConcreteAddress{a, b, c},
		Edges: map[address.ConcreteAddress][]address.ConcreteAddress{
			a: {b},
			b: {a, c},
		},
	}

	provider := CFGProviderFunc(func(address.ConcreteAddress) (*SymbolicCFG, error) { return cfg, nil })

	classes, err := EquivalenceClasses(provider, []address.ConcreteAddress{entry})
	require.NoError(t, err)

	repA, okA := classes[a]
	repB, okB := classes[b]
	require.True(t, okA)
	require.True(t, okB)
	assert.Equal(t, repA, repB, "a and b form a two-node loop and must share a representative")

	repC, okC := classes[c]
	require.True(t, okC, "every reachable node gets a class, even one that is its own singleton member")
	assert.Equal(t, c, repC, "c is not part of any cycle and is its own representative")
}

func TestEquivalenceClassesGroupsASelfLoop(t *testing.T) {
	entry := address.ConcreteAddress(0x200)
	a := address.ConcreteAddress(0x200)

	cfg := &SymbolicCFG{
		Nodes: []address.ConcreteAddress{a},
		Edges: map[address.ConcreteAddress][]address.ConcreteAddress{
			a: {a},
		},
	}
	provider := CFGProviderFunc(func(address.ConcreteAddress) (*SymbolicCFG, error) { return cfg, nil })

	classes, err := EquivalenceClasses(provider, []address.ConcreteAddress{entry})
	require.NoError(t, err)

	_, ok := classes[a]
	assert.True(t, ok, "a single node with a self-edge is a trivial loop and must get a class")
}

func TestMemoizingCallsProviderOncePerEntry(t *testing.T) {
	calls := 0
	cfg := &SymbolicCFG{Nodes: []address.ConcreteAddress{0x1}}
	inner := CFGProviderFunc(func(address.ConcreteAddress) (*SymbolicCFG, error) {
		calls++
		return cfg, nil
	})

	m := NewMemoizing(inner)
	_, err := m.CFG(0x1)
	require.NoError(t, err)
	_, err = m.CFG(0x1)
	require.NoError(t, err)

	assert.Equal(t, 1, calls)
}
