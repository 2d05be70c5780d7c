package ir

// DataLayout is the external oracle the builder consults for anything
// target-dependent: how wide a pointer is in a given address space, how
// many bytes an object of a type occupies, and whether a chain of GEP
// indices resolves to a single constant byte offset. internal/layout
// provides the concrete implementation; tests can substitute a fake.
type DataLayout interface {
	PointerBits(addrSpace uint32) uint32
	AllocSize(t *Type) (uint64, error)
	// AccumulateConstantOffset resolves a GEP index chain rooted at baseTy
	// to a single byte offset. ok is false when any index is dynamic or
	// the computation overflows; callers fall back to UNKNOWN_OFFSET.
	AccumulateConstantOffset(baseTy *Type, indices []GEPIndex) (offset uint64, ok bool)
}
