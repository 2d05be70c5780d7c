package pss

// NullNode and UnknownMemoryNode are process-wide sentinel nodes: every
// Builder shares the same two instances rather than allocating its own,
// so that a Pointer{Target: NullNode} created by one build is
// reference-equal to one created by another. Init must be called before
// the first Build and Teardown after the last graph referencing them is
// discarded. pss.Build calls Init itself; it never calls Teardown, since
// the Result it returns still references the sentinels.
var (
	NullNode          *Node
	UnknownMemoryNode *Node
)

// Init allocates the sentinel nodes if they don't already exist. It is
// idempotent: calling it while the sentinels are already live is a
// no-op, matching a long-running process that builds many subgraphs
// back to back without tearing down in between.
func Init() {
	if NullNode == nil {
		NullNode = newNode(-1, NULLPTR, "null")
		NullNode.PointsTo = []Pointer{{Target: NullNode, Offset: 0}}
	}
	if UnknownMemoryNode == nil {
		UnknownMemoryNode = newNode(-2, kindUnknownMemory, "unknown-memory")
		UnknownMemoryNode.PointsTo = []Pointer{{Target: UnknownMemoryNode, Offset: UnknownOffset}}
	}
}

// Teardown releases the sentinel nodes. Call it once no live Subgraph
// still references them; any Pointer still pointing at them becomes a
// dangling reference, same as any other use-after-free of the graph.
func Teardown() {
	NullNode = nil
	UnknownMemoryNode = nil
}

// NullPointer is the points-to-null value every NULLPTR constant and
// null-valued PHI input resolves to.
func NullPointer() Pointer {
	Init()
	return Pointer{Target: NullNode, Offset: 0}
}

// UnknownPointer is the conservative "could point anywhere" value used
// whenever the builder can't resolve a pointer's provenance (e.g. an
// inttoptr of a constant integer).
func UnknownPointer() Pointer {
	Init()
	return Pointer{Target: UnknownMemoryNode, Offset: UnknownOffset}
}
