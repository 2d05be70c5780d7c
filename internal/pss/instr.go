package pss

import (
	"pssbuild/internal/diag"
	"pssbuild/internal/ir"
)

// lowerInstr creates (memoizing into sg.syms) the Node for one
// instruction, dispatching on its Opcode. It returns nil for an OpCall
// the relevance filter (lowerCall) dropped; every other opcode always
// contributes a node, Store included, so the per-block chain stays easy
// to reason about.
func (b *Builder) lowerInstr(sg *Subgraph, instr *ir.Instr) *Node {
	if n, ok := sg.syms.local[instr]; ok {
		return n
	}
	at := diag.Location{Function: sg.Func.Name}

	var n *Node
	switch instr.Opcode {
	case ir.OpAlloca:
		n = b.lowerAlloca(sg, instr)
	case ir.OpStore:
		n = b.lowerStore(sg, instr)
	case ir.OpLoad:
		n = b.lowerLoad(sg, instr)
	case ir.OpGetElementPtr:
		n = b.lowerGEP(sg, instr, at)
	case ir.OpBitCast:
		n = b.lowerBitCast(sg, instr)
	case ir.OpPtrToInt:
		n = b.lowerPtrToInt(sg, instr)
	case ir.OpIntToPtr:
		n = b.lowerIntToPtr(sg, instr, at)
	case ir.OpSelect:
		n = b.lowerSelect(sg, instr)
	case ir.OpPhi:
		n = b.lowerPhi(sg, instr)
	case ir.OpCall:
		n = b.lowerCall(sg, instr, at)
	case ir.OpRet:
		n = b.lowerRet(sg, instr)
	case ir.OpIntrinsic:
		n = b.lowerStandaloneIntrinsic(sg, instr, at)
	default:
		b.diags.Errorf(at, diag.CodeUnsupportedOpcode, "unsupported opcode %d", instr.Opcode)
		n = b.newNode(NOOP, "unsupported")
	}
	sg.syms.local[instr] = n
	return n
}

func (b *Builder) lowerAlloca(sg *Subgraph, instr *ir.Instr) *Node {
	n := b.newNode(ALLOC, "")
	size, err := b.layout.AllocSize(instr.AllocType)
	if err == nil {
		n.AllocSize = size
	}
	if instr.ArraySize != nil {
		// A dynamically-sized stack allocation: its total size isn't a
		// fixed constant, but it's still stack storage, not heap.
		n.AllocSize = 0
	}
	n.addPointsTo(Pointer{Target: n, Offset: 0})
	return n
}

func (b *Builder) lowerStore(sg *Subgraph, instr *ir.Instr) *Node {
	n := b.newNode(STORE, "")
	ptrNode := b.getOperand(sg, instr.StorePtr)
	valNode := b.getOperand(sg, instr.StoreValue)
	n.addOperand(ptrNode)
	n.addOperand(valNode)
	return n
}

func (b *Builder) lowerLoad(sg *Subgraph, instr *ir.Instr) *Node {
	n := b.newNode(LOAD, "")
	ptrNode := b.getOperand(sg, instr.LoadPtr)
	n.addOperand(ptrNode)
	// The load's own points-to set isn't known until the store/load
	// propagation pass (propagate.go) runs over the whole graph: it
	// depends on every STORE that may have written through an alias of
	// ptrNode, which may not have been lowered yet.
	return n
}

func (b *Builder) lowerGEP(sg *Subgraph, instr *ir.Instr, at diag.Location) *Node {
	n := b.newNode(GEP, "")
	base := b.getOperand(sg, instr.GEPBase)
	n.addOperand(base)

	offset, ok := b.layout.AccumulateConstantOffset(instr.GEPBaseTy, instr.GEPIndices)
	if !ok {
		n.GEPOffset = UnknownOffset
		b.diags.Warnf(at, diag.CodeUnknownOffset, "getelementptr index chain does not resolve to a constant offset")
	} else {
		n.GEPOffset = int64(offset)
	}
	// PointsTo is filled in by propagate.go: it shifts base's points-to
	// set by n.GEPOffset once base's own set has stabilized.
	return n
}

func (b *Builder) lowerBitCast(sg *Subgraph, instr *ir.Instr) *Node {
	n := b.newNode(CAST, "bitcast")
	opNode := b.getOperand(sg, instr.CastOperand)
	n.addOperand(opNode)
	return n
}

func (b *Builder) lowerPtrToInt(sg *Subgraph, instr *ir.Instr) *Node {
	n := b.newNode(CAST, "ptrtoint")
	opNode := b.getOperand(sg, instr.CastOperand)
	n.addOperand(opNode)
	// The result is an integer now; its points-to set is empty rather
	// than carried forward, same as the distilled spec requires.
	return n
}

func (b *Builder) lowerIntToPtr(sg *Subgraph, instr *ir.Instr, at diag.Location) *Node {
	n := b.newNode(CAST, "inttoptr")

	if _, ok := instr.CastOperand.(*ir.Const); ok {
		// A constant operand is folded to an unknown pointer with no
		// operand link at all; whatever integer it names, there is no
		// pointer-relevant value to track it back to.
		b.diags.Warnf(at, diag.CodeConstantIntToPtr, "inttoptr of a constant integer is not soundly modeled")
		n.addPointsTo(UnknownPointer())
		return n
	}

	opNode := b.getOperand(sg, instr.CastOperand)
	n.addOperand(opNode)
	// PointsTo is filled in by propagate.go once opNode's own set has
	// stabilized, same as bitcast.
	return n
}

func (b *Builder) lowerSelect(sg *Subgraph, instr *ir.Instr) *Node {
	n := b.newNode(PHI, "select")
	n.addOperand(b.getOperand(sg, instr.SelectTrue))
	n.addOperand(b.getOperand(sg, instr.SelectFalse))
	return n
}

func (b *Builder) lowerPhi(sg *Subgraph, instr *ir.Instr) *Node {
	n := b.newNode(PHI, "")
	sg.phiPending = append(sg.phiPending, pendingPhi{node: n, instr: instr})
	return n
}

func (b *Builder) lowerRet(sg *Subgraph, instr *ir.Instr) *Node {
	n := b.newNode(RETURN, "")
	if instr.RetValue != nil {
		v := b.getOperand(sg, instr.RetValue)
		n.addOperand(v)
		// The function's join node aggregates every returned value, the
		// same way a Phi aggregates its incoming values; propagate.go
		// treats NOOP-with-operands the same as PHI.
		sg.Join.addOperand(v)
	}
	return n
}

func (b *Builder) lowerStandaloneIntrinsic(sg *Subgraph, instr *ir.Instr, at diag.Location) *Node {
	switch instr.Intrinsic {
	case ir.IntrinsicMemcpy, ir.IntrinsicMemmove:
		return b.lowerMemcpy(sg, instr)
	case ir.IntrinsicMemset:
		return b.lowerMemset(sg, instr)
	case ir.IntrinsicVaStart:
		return b.lowerVaStart(sg, instr, at)
	case ir.IntrinsicStackSave, ir.IntrinsicStackRestore:
		b.diags.Warnf(at, diag.CodeStackSaveRestore, "stacksave/stackrestore are not precisely modeled")
		return b.newNode(NOOP, "stacksave")
	default:
		return b.newNode(NOOP, "intrinsic")
	}
}

// lowerVaStart builds va_start's ALLOC+STORE+STORE chain: a fresh area
// standing in for the callee's vararg buffer, a STORE making the va_list
// operand point at that area, and a STORE making the area's contents the
// merge of every variadic argument passed by any call site (the
// function's VariadicPHI). Individual argument positions within the
// vararg list aren't tracked, per the conservative variadic-forwarding
// treatment the Non-goals call for.
func (b *Builder) lowerVaStart(sg *Subgraph, instr *ir.Instr, at diag.Location) *Node {
	b.diags.Warnf(at, diag.CodeVariadicForwarding, "va_start merges every variadic argument into one points-to set; argument positions are not tracked")

	area := b.newNode(ALLOC, "va_area")
	area.addPointsTo(Pointer{Target: area, Offset: 0})

	apNode := UnknownMemoryNode
	if len(instr.Args) >= 1 {
		apNode = b.getOperand(sg, instr.Args[0])
	}
	storeAp := b.newNode(STORE, "va_start")
	storeAp.addOperand(apNode)
	storeAp.addOperand(area)
	area.addSuccessor(storeAp)

	storeArgs := b.newNode(STORE, "va_start")
	storeArgs.addOperand(area)
	storeArgs.addOperand(b.variadicPHIFor(sg))
	storeAp.addSuccessor(storeArgs)
	storeArgs.chainEntry = area

	return storeArgs
}
