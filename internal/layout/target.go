// Package layout implements the DataLayout oracle that the pointer state
// subgraph builder queries for target-dependent facts: pointer width per
// address space, object size, and constant GEP offset accumulation. It is
// the concrete counterpart of ir.DataLayout.
package layout

// Target describes the pointer properties of the ABI the module was
// compiled for.
//
// Only x86_64-linux-gnu is implemented. AltPtrSize, when non-zero,
// answers PointerBits for address space 1, used by tests to model a
// target with a non-default pointer width in a non-generic address
// space.
type Target struct {
	Triple     string
	PtrSize    uint64 // bytes, address space 0
	PtrAlign   uint64
	AltPtrSize uint64
}

func X86_64LinuxGNU() Target {
	return Target{Triple: "x86_64-linux-gnu", PtrSize: 8, PtrAlign: 8}
}
