package layout

// splitmix64 is a fast, fixed, fully specified PRNG: the algorithm itself
// (not just the API) must never change across Go versions, because
// spec.md §8 invariant 8 demands byte-identical output for the same seed
// forever. math/rand's generator algorithm is not covered by the Go 1
// compatibility promise the same way its API is, so this module avoids it
// here (see DESIGN.md).
type splitmix64 struct {
	state uint64
}

// seedFrom folds a seed vector of 32-bit words into the 64-bit internal
// state.
func seedFrom(seed []uint32) *splitmix64 {
	var s uint64
	for i, w := range seed {
		s ^= uint64(w) << (uint(i%2) * 32)
		s = s*6364136223846793005 + 1442695040888963407
	}
	if len(seed) == 0 {
		s = 0x9E3779B97F4A7C15
	}
	return &splitmix64{state: s}
}

func (g *splitmix64) next() uint64 {
	g.state += 0x9E3779B97F4A7C15
	z := g.state
	z = (z ^ (z >> 30)) * 0xBF58476D1CE4E5B9
	z = (z ^ (z >> 27)) * 0x94D049BB133111EB
	return z ^ (z >> 31)
}

// intn returns a value in [0, n) for n > 0.
func (g *splitmix64) intn(n int) int {
	return int(g.next() % uint64(n))
}

// fisherYates shuffles xs in place deterministically from seed.
func fisherYates[E any](xs []E, seed []uint32) {
	g := seedFrom(seed)
	for i := len(xs) - 1; i > 0; i-- {
		j := g.intn(i + 1)
		xs[i], xs[j] = xs[j], xs[i]
	}
}
