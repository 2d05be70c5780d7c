package layout

import (
	"pssbuild/internal/ir"
)

// Engine is a concrete ir.DataLayout for a single Target. It memoizes
// size/align queries per type and detects self-referential aggregate
// types (a struct containing itself with no pointer indirection) the
// same way the teacher's recursive type-size computation does: push the
// type onto a stack before descending, and fail the query if it is seen
// again before being popped.
type Engine struct {
	Target Target
	cache  *cache
}

func New(target Target) *Engine {
	return &Engine{Target: target, cache: newCache()}
}

type sizeState struct {
	stack []*ir.Type
	index map[*ir.Type]int
}

func newSizeState() *sizeState {
	return &sizeState{index: make(map[*ir.Type]int, 32)}
}

// PointerBits implements ir.DataLayout.
func (e *Engine) PointerBits(addrSpace uint32) uint32 {
	if addrSpace == 1 && e.Target.AltPtrSize != 0 {
		return uint32(e.Target.AltPtrSize) * 8
	}
	size := e.Target.PtrSize
	if size == 0 {
		size = 8
	}
	return uint32(size) * 8
}

// AllocSize implements ir.DataLayout.
func (e *Engine) AllocSize(t *ir.Type) (uint64, error) {
	size, _, err := e.sizeAlignOf(t, newSizeState())
	if err != nil {
		return 0, err
	}
	return size, nil
}

func (e *Engine) sizeAlignOf(t *ir.Type, state *sizeState) (size, align uint64, err *LayoutError) {
	if t == nil {
		return 0, 1, nil
	}
	if e.cache == nil {
		e.cache = newCache()
	}
	if cached, ok := e.cache.get(t); ok {
		if cached.Err != nil {
			return 0, 0, cached.Err
		}
		return cached.Size, cached.Align, nil
	}

	if _, seen := state.index[t]; seen {
		layoutErr := &LayoutError{Kind: LayoutErrRecursiveUnsized, Type: t}
		e.cache.put(t, cacheEntry{Err: layoutErr})
		return 0, 0, layoutErr
	}

	state.index[t] = len(state.stack)
	state.stack = append(state.stack, t)
	size, align, err = e.computeSizeAlign(t, state)
	state.stack = state.stack[:len(state.stack)-1]
	delete(state.index, t)

	if err != nil {
		e.cache.put(t, cacheEntry{Err: err})
		return 0, 0, err
	}
	e.cache.put(t, cacheEntry{Size: size, Align: align})
	return size, align, nil
}

func (e *Engine) computeSizeAlign(t *ir.Type, state *sizeState) (uint64, uint64, *LayoutError) {
	switch t.Kind {
	case ir.TypeVoid:
		return 0, 1, nil

	case ir.TypeOpaque:
		align := t.OpaqueAlign
		if align == 0 {
			align = 1
		}
		return t.OpaqueSize, align, nil

	case ir.TypePointer:
		size := e.Target.PtrSize
		if t.AddrSpace == 1 && e.Target.AltPtrSize != 0 {
			size = e.Target.AltPtrSize
		}
		if size == 0 {
			size = 8
		}
		return size, size, nil

	case ir.TypeArray:
		elemSize, elemAlign, err := e.sizeAlignOf(t.ArrayElem, state)
		if err != nil {
			return 0, 0, err
		}
		if elemAlign == 0 {
			elemAlign = 1
		}
		stride := roundUp(elemSize, elemAlign)
		total := stride * t.ArrayLen
		if stride != 0 && total/stride != t.ArrayLen {
			return 0, 0, &LayoutError{Kind: LayoutErrOverflow, Type: t}
		}
		return total, elemAlign, nil

	case ir.TypeStruct:
		return e.structSizeAlign(t, state)

	case ir.TypeFunc:
		// A bare function type has no storage of its own; only pointers
		// to functions are ever allocated, loaded, or stored.
		return 0, 1, nil

	default:
		return 0, 1, nil
	}
}

func (e *Engine) structSizeAlign(t *ir.Type, state *sizeState) (uint64, uint64, *LayoutError) {
	if len(t.Fields) == 0 {
		return 0, 1, nil
	}
	var size, align uint64 = 0, 1
	for _, field := range t.Fields {
		fSize, fAlign, err := e.sizeAlignOf(field, state)
		if err != nil {
			return 0, 0, err
		}
		if t.Packed {
			fAlign = 1
		} else if fAlign == 0 {
			fAlign = 1
		}
		size = roundUp(size, fAlign)
		size += fSize
		if fAlign > align {
			align = fAlign
		}
	}
	if !t.Packed {
		size = roundUp(size, align)
	}
	return size, align, nil
}

func roundUp(n, align uint64) uint64 {
	if align <= 1 {
		return n
	}
	if r := n % align; r != 0 {
		return n + (align - r)
	}
	return n
}

// fieldOffset returns the byte offset of a struct's Nth field, computed
// the same way structSizeAlign lays fields out.
func (e *Engine) fieldOffset(t *ir.Type, index int) (uint64, bool) {
	if t.Kind != ir.TypeStruct || index < 0 || index >= len(t.Fields) {
		return 0, false
	}
	var size uint64
	for i, field := range t.Fields {
		fSize, fAlign, err := e.sizeAlignOf(field, newSizeState())
		if err != nil {
			return 0, false
		}
		if t.Packed {
			fAlign = 1
		} else if fAlign == 0 {
			fAlign = 1
		}
		size = roundUp(size, fAlign)
		if i == index {
			return size, true
		}
		size += fSize
	}
	return 0, false
}
