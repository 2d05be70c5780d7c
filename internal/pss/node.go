// Package pss builds the Pointer State Subgraph: a directed graph of
// pointer-relevant events lowered from an ir.Module. Every node and edge
// is reachable from the module's functions; there is no garbage
// collection of the graph itself, only the arena-style ownership a
// Builder hands out via newNode.
package pss

// Kind enumerates the role a Node plays in the graph. A Node is one
// struct with a Kind field and every variant's fields inlined into it,
// not an interface hierarchy: every consumer (the printer, the
// invariant checker, a future solver) dispatches on Kind rather than on
// a Go type switch over concrete node types.
type Kind uint8

const (
	ALLOC Kind = iota
	DYN_ALLOC
	LOAD
	STORE
	GEP
	CAST
	PHI
	CALL
	CALL_FUNCPTR
	CALL_RETURN
	RETURN
	ENTRY
	NOOP
	CONSTANT
	FUNCTION
	MEMCPY
	NULLPTR

	// kindUnknownMemory backs the UnknownMemory sentinel. It is not part
	// of the public taxonomy above: nothing ever dispatches on it, it is
	// only ever compared for pointer identity as a Pointer target.
	kindUnknownMemory
)

func (k Kind) String() string {
	switch k {
	case ALLOC:
		return "ALLOC"
	case DYN_ALLOC:
		return "DYN_ALLOC"
	case LOAD:
		return "LOAD"
	case STORE:
		return "STORE"
	case GEP:
		return "GEP"
	case CAST:
		return "CAST"
	case PHI:
		return "PHI"
	case CALL:
		return "CALL"
	case CALL_FUNCPTR:
		return "CALL_FUNCPTR"
	case CALL_RETURN:
		return "CALL_RETURN"
	case RETURN:
		return "RETURN"
	case ENTRY:
		return "ENTRY"
	case NOOP:
		return "NOOP"
	case CONSTANT:
		return "CONSTANT"
	case FUNCTION:
		return "FUNCTION"
	case MEMCPY:
		return "MEMCPY"
	case NULLPTR:
		return "NULLPTR"
	case kindUnknownMemory:
		return "UNKNOWN_MEMORY"
	default:
		return "?"
	}
}

// UnknownOffset marks a Pointer whose byte offset within its target
// could not be resolved to a constant (a non-constant GEP index, an
// overflowing accumulation, or a deliberately unmodeled operation).
const UnknownOffset int64 = -1

// Pointer is one element of a points-to set: a target node plus the
// byte offset into that target's storage, or UnknownOffset when the
// offset could not be resolved.
type Pointer struct {
	Target *Node
	Offset int64
}

// Node is the single tagged-variant type for every kind of PSS vertex.
// Fields irrelevant to a given Kind are simply left zero; see the
// per-Kind comments below for which fields that Kind actually uses.
type Node struct {
	ID   int
	Kind Kind
	Name string // best-effort label: IR value/function/global name, for printing

	// Operands: the node's data-flow inputs, in a fixed, kind-dependent
	// order (e.g. for STORE: [0]=pointer, [1]=value; for GEP: [0]=base).
	Operands []*Node

	// Successors: control-flow edges out of this node. ENTRY, CALL,
	// CALL_FUNCPTR, RETURN, NOOP, and block-final nodes use this;
	// expression-only nodes (ALLOC, LOAD, CAST, GEP, CONSTANT) normally
	// have none of their own and instead chain through the node that
	// follows them in program order, which Successors records too.
	Successors []*Node

	// Paired links a CALL/CALL_FUNCPTR node to its matching CALL_RETURN
	// node, and vice versa (see interproc.go for how the pair is wired).
	Paired *Node

	// chainEntry overrides which node a predecessor in program order
	// should link to, for a lowering that produces more than one node in
	// sequence: a direct/indirect call's CALL(_FUNCPTR)/CALL_RETURN pair,
	// or va_start's ALLOC+STORE+STORE chain. n itself is still the node
	// later instructions chain from and the one memoized as the
	// instruction's value. nil means n is its own entry.
	chainEntry *Node

	// PointsTo is the statically known points-to set for nodes that
	// produce a pointer value outright rather than needing a solver
	// (ALLOC, DYN_ALLOC, CONSTANT, NULLPTR, FUNCTION). It starts nil for
	// nodes whose points-to set is derived from their operands; Build's
	// fixpoint pass (propagate.go) fills those in.
	PointsTo []Pointer

	// ALLOC / DYN_ALLOC
	AllocSize       uint64 // resolved constant size, 0 if unknown/dynamic
	IsHeap          bool   // true for DYN_ALLOC (malloc/calloc), false for stack Alloca
	ZeroInitialized bool   // calloc, or a global initialized to null/zeroinitializer

	// GEP
	GEPOffset int64 // UnknownOffset if not resolvable to a constant

	// MEMCPY
	CopySize uint64 // 0 if size is not a known constant

	// CALL / CALL_FUNCPTR
	CalleeName string // best-effort label of the callee for diagnostics
}

func newNode(id int, kind Kind, name string) *Node {
	return &Node{ID: id, Kind: kind, Name: name}
}

func (n *Node) String() string {
	if n == nil {
		return "<nil-node>"
	}
	if n.Name != "" {
		return n.Kind.String() + "(" + n.Name + ")"
	}
	return n.Kind.String()
}

// addSuccessor links n -> to, skipping duplicate edges so repeatedly
// wiring the same control-flow edge (e.g. from a block revisited via two
// predecessors) doesn't inflate the Successors list.
func (n *Node) addSuccessor(to *Node) {
	for _, s := range n.Successors {
		if s == to {
			return
		}
	}
	n.Successors = append(n.Successors, to)
}

func (n *Node) addOperand(op *Node) {
	n.Operands = append(n.Operands, op)
}

func (n *Node) addPointsTo(p Pointer) {
	for _, existing := range n.PointsTo {
		if existing == p {
			return
		}
	}
	n.PointsTo = append(n.PointsTo, p)
}
