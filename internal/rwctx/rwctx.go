// Package rwctx implements the rewriter context (spec.md §4.7): a
// read-only environment shared by every pass, plus the mutable counters
// and ordered diagnostic log that accumulate as the pipeline runs. It is
// the monadic reader+state+writer+error stack spec.md §9 describes,
// expressed as a single mutable-by-reference Go struct.
package rwctx

import (
	"fmt"

	"github.com/coldforge/redirector/address"
	"github.com/coldforge/redirector/isa"
	"github.com/coldforge/redirector/rerr"
)

// Diagnostic is one entry in the context's ordered log.
type Diagnostic interface {
	fmt.Stringer
}

// BlockTooSmallForRedirection is the one non-fatal diagnostic kind
// spec.md §7 defines: the original block did not have room for a
// redirection jump, so it was left unmodified.
type BlockTooSmallForRedirection struct {
	OrigSize    uint64
	JumpSize    uint64
	OrigAddr    address.ConcreteAddress
	Description string
}

func (d BlockTooSmallForRedirection) String() string {
	return fmt.Sprintf("block too small for redirection at %s: have %d bytes, need %d (%s)",
		d.OrigAddr, d.OrigSize, d.JumpSize, d.Description)
}

// IncompleteFunctionRefused records a modified block that was refused
// because it belongs to a function discovery could not fully resolve.
type IncompleteFunctionRefused struct {
	OrigAddr address.ConcreteAddress
}

func (d IncompleteFunctionRefused) String() string {
	return fmt.Sprintf("refused to rewrite block at %s: belongs to an incomplete function", d.OrigAddr)
}

// FlatMemory is a trivial isa.MemoryReader backed by one contiguous byte
// slice starting at Base. It stands in for a real loaded-image reader in
// tests, the same way the teacher codebase hands its own tests a
// synthetic stand-in for any resource that would otherwise be the OS or
// hardware (c.f. a mmap-backed executable buffer it never exercises in
// unit tests).
type FlatMemory struct {
	Base address.ConcreteAddress
	Data []byte
}

// Bytes implements isa.MemoryReader.
func (m FlatMemory) Bytes(addr address.ConcreteAddress, n uint64) ([]byte, error) {
	start := addr.Sub(m.Base)
	if start < 0 || uint64(start)+n > uint64(len(m.Data)) {
		return nil, rerr.NewNoByteRegionAtAddress(addr)
	}
	return m.Data[start : uint64(start)+n], nil
}

var _ isa.MemoryReader = FlatMemory{}

// Context is the shared environment plus mutable run state described by
// spec.md §4.7. It is not safe for concurrent use: the engine is
// single-threaded and cooperative (spec.md §5).
type Context[I isa.Instruction, T isa.TaggedInstruction] struct {
	// Read-only environment.
	ISA       isa.Provider[I, T]
	Memory    isa.MemoryReader
	SymbolMap map[address.SymbolicAddress]address.ConcreteAddress

	// Symbols mints SymbolicAddress values for injected code. It defaults
	// to a fresh allocator starting at 0; a caller whose own block symbols
	// are minted from a different allocator starting at 0 must overwrite
	// this field with that same allocator before running the pipeline, or
	// the two spaces can collide (see Engine.Symbols in the root package).
	Symbols *address.Allocator

	diagnostics []Diagnostic

	smallBlockCount        int
	incompleteBlockCount   int
	unrelocatableTermCount int
	reusedByteCount        uint64
	blockMapping           []BlockMapping

	failed    bool
	failedErr error
}

// BlockMapping records the public translation table entry from an
// original block address to its redirected counterpart.
type BlockMapping struct {
	Original   address.ConcreteAddress
	Redirected address.ConcreteAddress
}

// New builds a Context. memory and symbolMap may be nil; a nil symbolMap
// is treated as empty.
func New[I isa.Instruction, T isa.TaggedInstruction](p isa.Provider[I, T], memory isa.MemoryReader, symbolMap map[address.SymbolicAddress]address.ConcreteAddress) *Context[I, T] {
	return &Context[I, T]{ISA: p, Memory: memory, SymbolMap: symbolMap, Symbols: new(address.Allocator)}
}

// Tell appends a diagnostic to the ordered log. Order matches the order
// passes emit them (spec.md §5).
func (c *Context[I, T]) Tell(d Diagnostic) {
	c.diagnostics = append(c.diagnostics, d)
}

// Diagnostics returns the accumulated log in emission order. The returned
// slice must not be mutated.
func (c *Context[I, T]) Diagnostics() []Diagnostic { return c.diagnostics }

// Fail records a fatal error. Previously accumulated diagnostics are
// preserved; the caller is expected to stop the pipeline immediately
// after calling Fail and return the error along with c.Diagnostics().
func (c *Context[I, T]) Fail(err error) error {
	if !c.failed {
		c.failed = true
		c.failedErr = err
	}
	return err
}

func (c *Context[I, T]) Failed() bool { return c.failed }
func (c *Context[I, T]) Err() error   { return c.failedErr }

// IncrSmallBlock increments the small-block counter: a modified pair whose
// original was too small to hold a redirection jump.
func (c *Context[I, T]) IncrSmallBlock() { c.smallBlockCount++ }

// IncrIncompleteBlock increments the count of blocks refused because they
// belong to an incomplete function.
func (c *Context[I, T]) IncrIncompleteBlock() { c.incompleteBlockCount++ }

// IncrUnrelocatableTerm increments the count of modified blocks whose
// original terminal instruction was an indirect jump or call: a
// downstream consumer walking BlockMapping cannot statically retarget
// through such an exit point, only a fresh trampoline jump redirects it.
// Purely informational; never blocks redirection.
func (c *Context[I, T]) IncrUnrelocatableTerm() { c.unrelocatableTermCount++ }

// AddReusedBytes adds n bytes to the reused-byte counter: bytes consumed
// from the address heap by placed blocks (spec.md §8 invariant 9).
func (c *Context[I, T]) AddReusedBytes(n uint64) { c.reusedByteCount += n }

// RecordMapping appends to the public original->redirected translation
// table, in the order redirection happens (spec.md §5: deterministic
// order).
func (c *Context[I, T]) RecordMapping(original, redirected address.ConcreteAddress) {
	c.blockMapping = append(c.blockMapping, BlockMapping{Original: original, Redirected: redirected})
}

func (c *Context[I, T]) SmallBlockCount() int        { return c.smallBlockCount }
func (c *Context[I, T]) IncompleteBlockCount() int   { return c.incompleteBlockCount }
func (c *Context[I, T]) UnrelocatableTermCount() int { return c.unrelocatableTermCount }
func (c *Context[I, T]) ReusedByteCount() uint64     { return c.reusedByteCount }
func (c *Context[I, T]) BlockMapping() []BlockMapping { return c.blockMapping }
