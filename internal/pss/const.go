package pss

import (
	"pssbuild/internal/diag"
	"pssbuild/internal/ir"
)

// lowerConst builds the Node for a module-scoped constant. Constants
// never reference per-function values, so unlike lowerInstr this never
// needs a Subgraph's local symtab; Builder.getOperand still threads one
// through for symmetry with the *ir.Instr/*ir.Param cases.
//
// Every constant expression (bitcast/ptrtoint/inttoptr/gep over a Const)
// folds to a CONSTANT node carrying its (target, offset) immediately,
// rather than the CAST/GEP kinds the corresponding instructions use:
// constant expressions are resolved once, at lowering time, never
// deferred to the fixpoint pass in propagate.go.
func (b *Builder) lowerConst(sg *Subgraph, c *ir.Const) *Node {
	switch c.Kind {
	case ir.ConstNullPtr:
		return NullNode

	case ir.ConstFunction:
		return b.getFunctionNode(c.Fn)

	case ir.ConstInt:
		return b.newNode(CONSTANT, "")

	case ir.ConstUndef:
		return b.newNode(CONSTANT, "undef")

	case ir.ConstBitCast:
		return b.lowerConstFold(sg, "bitcast", c.Inner, 0)

	case ir.ConstPtrToInt:
		return b.lowerConstFold(sg, "ptrtoint", c.Inner, 0)

	case ir.ConstIntToPtr:
		// Unconditionally unknown, independent of the inner integer's
		// value: the null-vs-nonzero distinction only applies to the
		// instruction-level inttoptr (instr.go), not the constant
		// expression form.
		n := b.newNode(CONSTANT, "inttoptr")
		n.addPointsTo(UnknownPointer())
		return n

	case ir.ConstGEP:
		n := b.newNode(CONSTANT, "gep")
		offset, resolved := b.layout.AccumulateConstantOffset(c.GEPBaseTy, c.GEPIndices)
		if !resolved {
			base := b.getConstNode(sg, c.GEPBase)
			p, ok := b.resolveSinglePointer(base)
			if !ok {
				n.addPointsTo(UnknownPointer())
				return n
			}
			n.addPointsTo(Pointer{Target: p.Target, Offset: UnknownOffset})
			return n
		}
		return b.lowerConstFold(sg, "gep", c.GEPBase, int64(offset))

	default:
		b.diags.Errorf(diag.Location{}, diag.CodeUnsupportedConstantExpr, "unsupported constant expression kind %d", c.Kind)
		return b.newNode(CONSTANT, "")
	}
}

// lowerConstFold resolves inner to its single pointer target and returns
// a CONSTANT node at (target, offset+extraOffset). Used by bitcast and
// ptrtoint (extraOffset 0, the pointer value is carried through
// unchanged) and by a constant gep with a resolved index chain
// (extraOffset the accumulated byte offset).
func (b *Builder) lowerConstFold(sg *Subgraph, name string, inner *ir.Const, extraOffset int64) *Node {
	n := b.newNode(CONSTANT, name)
	if inner == nil {
		n.addPointsTo(UnknownPointer())
		return n
	}
	innerNode := b.getConstNode(sg, inner)
	p, ok := b.resolveSinglePointer(innerNode)
	if !ok {
		n.addPointsTo(UnknownPointer())
		return n
	}
	if p.Offset == UnknownOffset || extraOffset == UnknownOffset {
		n.addPointsTo(Pointer{Target: p.Target, Offset: UnknownOffset})
		return n
	}
	n.addPointsTo(Pointer{Target: p.Target, Offset: p.Offset + extraOffset})
	return n
}

// resolveSinglePointer requires n's points-to set to have exactly one
// element, the fatal condition spec section 7 calls "a constant operand
// whose decoded pointer set does not have cardinality 1". It's a fatal
// error rather than a warning because a constant expression's pointer is
// resolved once, eagerly, with no later fixpoint pass to fall back on.
func (b *Builder) resolveSinglePointer(n *Node) (Pointer, bool) {
	if len(n.PointsTo) != 1 {
		b.diags.Errorf(diag.Location{}, diag.CodeNonUnitPointerConstant, "constant operand %s resolves to %d pointer targets, expected exactly 1", n, len(n.PointsTo))
		return Pointer{}, false
	}
	return n.PointsTo[0], true
}
