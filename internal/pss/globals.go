package pss

import (
	"pssbuild/internal/diag"
	"pssbuild/internal/ir"
)

// buildGlobalInitializer walks g's initializer and wires it onto n, the
// global's own ALLOC node, returning the last node appended to n's local
// chain (n itself if the initializer contributed no nodes at all). The
// caller chains that tail into the next global in module order.
//
//   - null/zeroinitializer sets n.ZeroInitialized and contributes nothing
//     further.
//   - A bare pointer-typed value (function, global address, constant
//     expression) is STOREd directly through n at offset 0.
//   - An aggregate is walked element by element, accumulating a byte
//     offset via the element type's alloc_size; each pointer-typed element
//     gets a CONSTANT(base=n, offset)+STORE pair. Integer elements are
//     ignored; anything else is a warning, not a fatal error.
func (b *Builder) buildGlobalInitializer(n *Node, g *ir.Global) *Node {
	init := g.Initializer
	if init == nil {
		return n
	}
	if init.IsZero {
		n.ZeroInitialized = true
		return n
	}
	if init.Value != nil {
		return b.storeGlobalValue(n, n, init.Value, 0)
	}
	tail := n
	var cursor uint64
	for i, elem := range init.Elements {
		elemTy := elementType(g.PointeeType, i)
		tail = b.walkGlobalInitializer(n, tail, elem, elemTy, cursor)
		cursor += elementAdvance(b, elemTy)
	}
	return tail
}

// walkGlobalInitializer is buildGlobalInitializer's recursive step for an
// initializer nested inside an outer aggregate. base is the byte offset
// of init's own first byte within the global's storage.
func (b *Builder) walkGlobalInitializer(n, tail *Node, init *ir.AggregateInit, ty *ir.Type, base uint64) *Node {
	if init == nil || init.IsZero {
		return tail
	}
	if init.Value != nil {
		return b.storeGlobalValue(n, tail, init.Value, base)
	}
	cursor := base
	for i, elem := range init.Elements {
		elemTy := elementType(ty, i)
		tail = b.walkGlobalInitializer(n, tail, elem, elemTy, cursor)
		cursor += elementAdvance(b, elemTy)
	}
	return tail
}

// storeGlobalValue emits a STORE of val through n at offset, appended
// after tail, when val is itself pointer-typed. An integer constant is
// silently ignored (it carries no pointer); anything else is unexpected
// and gets a warning, not a fatal error, since the global still has a
// well-formed ALLOC node to fall back on.
func (b *Builder) storeGlobalValue(n, tail *Node, val ir.Value, offset uint64) *Node {
	switch {
	case isPointerLikeValue(val):
		valNode := b.getOperand(nil, val)
		ptrNode := n
		if offset != 0 {
			ptrNode = b.newNode(CONSTANT, "")
			ptrNode.addPointsTo(Pointer{Target: n, Offset: int64(offset)})
		}
		store := b.newNode(STORE, "")
		store.addOperand(ptrNode)
		store.addOperand(valNode)
		tail.addSuccessor(store)
		return store

	case isIntegerConstant(val):
		return tail

	default:
		b.diags.Warnf(diag.Location{}, diag.CodeUnsupportedGlobalInit, "global %q initializer element at offset %d is neither a pointer nor an integer constant; skipping", n.Name, offset)
		return tail
	}
}

func isPointerLikeValue(v ir.Value) bool {
	switch val := v.(type) {
	case *ir.Global:
		return true
	case *ir.Function:
		return true
	case *ir.Param:
		return val.Type != nil && val.Type.Kind == ir.TypePointer
	case *ir.Const:
		switch val.Kind {
		case ir.ConstNullPtr, ir.ConstFunction, ir.ConstBitCast, ir.ConstGEP, ir.ConstIntToPtr:
			return true
		default:
			return false
		}
	default:
		t := v.ValueType()
		return t != nil && t.Kind == ir.TypePointer
	}
}

func isIntegerConstant(v ir.Value) bool {
	c, ok := v.(*ir.Const)
	return ok && c.Kind == ir.ConstInt
}

// elementType returns the type of the i'th element of an aggregate typed
// ty (struct field i, or the shared array element type), or nil when ty
// doesn't carry enough shape information to know.
func elementType(ty *ir.Type, i int) *ir.Type {
	if ty == nil {
		return nil
	}
	switch ty.Kind {
	case ir.TypeArray:
		return ty.ArrayElem
	case ir.TypeStruct:
		if i < 0 || i >= len(ty.Fields) {
			return nil
		}
		return ty.Fields[i]
	default:
		return nil
	}
}

// elementAdvance is how far the running offset cursor moves past one
// element of the given type: its alloc_size, or 0 when the type (or its
// size) is unknown, in which case every subsequent sibling's offset in
// this aggregate degrades along with it.
func elementAdvance(b *Builder, ty *ir.Type) uint64 {
	if ty == nil {
		return 0
	}
	size, err := b.layout.AllocSize(ty)
	if err != nil {
		return 0
	}
	return size
}
