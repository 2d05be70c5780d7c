package pss

import (
	"pssbuild/internal/diag"
	"pssbuild/internal/ir"
)

// lowerCall lowers a Call instruction, dispatching to the heap-allocation
// and relevant-intrinsic handlers (malloc/calloc/realloc/free/memcpy/
// memmove/memset) when Intrinsic names one of them, to a standalone
// CALL_FUNCPTR wiring for an indirect call (always relevant: the callee
// isn't known statically), or to a direct CALL/CALL_RETURN pair for a
// defined callee. A direct call to an external declaration is filtered
// on its result type: relevant only if it returns a pointer, in
// which case it lowers to a single self-paired CALL pointing at
// PointerUnknown; otherwise it contributes nothing and lowerCall returns
// nil. It is the single entry point inter-procedural construction goes
// through, matching the spec's requirement that a callee's Subgraph
// record be registered before the builder descends into that callee's
// body: the recursion-safety lives entirely in subgraphFor, which
// lowerCall always calls rather than re-implementing the recursion
// check itself.
func (b *Builder) lowerCall(sg *Subgraph, instr *ir.Instr, at diag.Location) *Node {
	switch instr.Intrinsic {
	case ir.IntrinsicMalloc:
		return b.lowerMalloc(sg, instr, at)
	case ir.IntrinsicCalloc:
		return b.lowerCalloc(sg, instr, at)
	case ir.IntrinsicRealloc:
		return b.lowerRealloc(sg, instr, at)
	case ir.IntrinsicFree:
		return b.lowerFree(sg, instr)
	case ir.IntrinsicMemcpy, ir.IntrinsicMemmove:
		return b.lowerMemcpy(sg, instr)
	case ir.IntrinsicMemset:
		return b.lowerMemset(sg, instr)
	}

	if instr.IsIndirectCall() {
		return b.lowerIndirectCall(sg, instr, at)
	}

	callee := instr.DirectCallee()
	if !callee.IsDeclaration {
		return b.lowerDirectCall(sg, callee, instr)
	}
	if isPointerType(instr.Type) {
		return b.lowerExternalPointerCall(callee, at)
	}
	// Debug-info intrinsics, and any other call to an external function
	// that neither allocates, returns a pointer, nor is a relevant
	// intrinsic: silently omitted, per the call relevance filter.
	return nil
}

func (b *Builder) lowerDirectCall(sg *Subgraph, callee *ir.Function, instr *ir.Instr) *Node {
	callNode := b.newNode(CALL, "")
	callNode.CalleeName = callee.Name
	retNode := b.newNode(CALL_RETURN, callee.Name)
	callNode.Paired = retNode
	retNode.Paired = callNode
	retNode.chainEntry = callNode

	calleeSg := b.subgraphFor(callee)
	b.wireCallArgs(sg, calleeSg, instr)

	callNode.addSuccessor(calleeSg.Entry)
	calleeSg.Join.addSuccessor(retNode)
	retNode.addOperand(calleeSg.Join)
	return retNode
}

// lowerExternalPointerCall lowers a call to an external, pointer-typed
// function with nothing else known about it: a single CALL node, paired
// with itself rather than with a separate CALL_RETURN, pointing straight
// at PointerUnknown. No arguments are wired in: there is no callee
// Subgraph to wire them into.
func (b *Builder) lowerExternalPointerCall(callee *ir.Function, at diag.Location) *Node {
	b.diags.Warnf(at, diag.CodeExternalFunction, "call to external function %q: return value treated as unknown", callee.Name)
	n := b.newNode(CALL, callee.Name)
	n.CalleeName = callee.Name
	n.Paired = n
	n.addPointsTo(UnknownPointer())
	return n
}

// wireCallArgs appends instr's call-site arguments to calleeSg's
// parameter PHIs, walking calleeSg.Func's parameter list and instr.Args
// in lock-step, then forwards any pointer-typed variadic arguments to
// calleeSg.VariadicPHI. Arguments are resolved against callerSg, the
// Subgraph of the function instr itself lives in.
func (b *Builder) wireCallArgs(callerSg, calleeSg *Subgraph, instr *ir.Instr) {
	for i, p := range calleeSg.Func.Params {
		phi, ok := calleeSg.paramPHIs[p]
		if !ok || i >= len(instr.Args) {
			continue
		}
		phi.addOperand(b.getOperand(callerSg, instr.Args[i]))
	}
	if calleeSg.Func.Variadic {
		vphi := b.variadicPHIFor(calleeSg)
		for _, arg := range instr.VariadicArgs {
			if !isPointerType(arg.ValueType()) {
				continue
			}
			vphi.addOperand(b.getOperand(callerSg, arg))
		}
	}
}

func (b *Builder) lowerIndirectCall(sg *Subgraph, instr *ir.Instr, at diag.Location) *Node {
	calleeVal := b.getOperand(sg, instr.Callee)
	callNode := b.newNode(CALL_FUNCPTR, "")
	retNode := b.newNode(CALL_RETURN, "")
	callNode.Paired = retNode
	retNode.Paired = callNode
	retNode.chainEntry = callNode
	callNode.addOperand(calleeVal)

	resolved := 0
	for _, p := range calleeVal.PointsTo {
		if p.Target == nil || p.Target.Kind != FUNCTION {
			continue
		}
		callee := b.functionByNode(p.Target)
		if callee == nil {
			continue
		}
		resolved++
		if callee.IsDeclaration {
			callNode.addSuccessor(retNode)
			retNode.addOperand(UnknownMemoryNode)
			continue
		}
		calleeSg := b.subgraphFor(callee)
		b.wireCallArgs(sg, calleeSg, instr)
		callNode.addSuccessor(calleeSg.Entry)
		calleeSg.Join.addSuccessor(retNode)
		retNode.addOperand(calleeSg.Join)
	}
	if resolved == 0 {
		b.diags.Warnf(at, diag.CodeIndirectCall, "indirect call target could not be resolved to any function")
		callNode.addSuccessor(retNode)
		retNode.addOperand(UnknownMemoryNode)
	}
	return retNode
}

func (b *Builder) functionByNode(n *Node) *ir.Function {
	for f, fn := range b.funcNodes {
		if fn == n {
			return f
		}
	}
	return nil
}

func constIntValue(v ir.Value) (uint64, bool) {
	c, ok := v.(*ir.Const)
	if !ok || c.Kind != ir.ConstInt {
		return 0, false
	}
	return c.IntValue, true
}

func (b *Builder) lowerMalloc(sg *Subgraph, instr *ir.Instr, at diag.Location) *Node {
	n := b.newNode(DYN_ALLOC, "malloc")
	n.IsHeap = true
	if len(instr.Args) >= 1 {
		if size, ok := constIntValue(instr.Args[0]); ok {
			n.AllocSize = size
		} else {
			b.diags.Warnf(at, diag.CodeUnknownOffset, "malloc size is not a constant; allocation size left unresolved")
		}
	}
	n.addPointsTo(Pointer{Target: n, Offset: 0})
	return n
}

func (b *Builder) lowerCalloc(sg *Subgraph, instr *ir.Instr, at diag.Location) *Node {
	n := b.newNode(DYN_ALLOC, "calloc")
	n.IsHeap = true
	n.ZeroInitialized = true
	if len(instr.Args) >= 2 {
		count, countOK := constIntValue(instr.Args[0])
		size, sizeOK := constIntValue(instr.Args[1])
		if countOK && sizeOK {
			total := count * size
			if size == 0 || total/size == count {
				n.AllocSize = total
			} else {
				b.diags.Warnf(at, diag.CodeUnknownOffset, "calloc(%d, %d) overflows; allocation size left unresolved", count, size)
			}
		} else {
			b.diags.Warnf(at, diag.CodeUnknownOffset, "calloc size is not a constant product; allocation size left unresolved")
		}
	}
	n.addPointsTo(Pointer{Target: n, Offset: 0})
	return n
}

func (b *Builder) lowerRealloc(sg *Subgraph, instr *ir.Instr, at diag.Location) *Node {
	b.diags.Errorf(at, diag.CodeReallocNotSupported, "realloc is not a supported allocation primitive")
	return b.newNode(NOOP, "realloc")
}

func (b *Builder) lowerFree(sg *Subgraph, instr *ir.Instr) *Node {
	n := b.newNode(NOOP, "free")
	if len(instr.Args) >= 1 {
		n.addOperand(b.getOperand(sg, instr.Args[0]))
	}
	return n
}

func (b *Builder) lowerMemcpy(sg *Subgraph, instr *ir.Instr) *Node {
	n := b.newNode(MEMCPY, "")
	if len(instr.Args) >= 1 {
		n.addOperand(b.getOperand(sg, instr.Args[0])) // dest
	}
	if len(instr.Args) >= 2 {
		n.addOperand(b.getOperand(sg, instr.Args[1])) // src
	}
	if len(instr.Args) >= 3 {
		if size, ok := constIntValue(instr.Args[2]); ok {
			n.CopySize = size
		}
	}
	return n
}

// lowerMemset is a NOOP carrying the destination operand: memset fills
// memory with a byte value, never a pointer, so nothing here ever feeds
// a PointsTo set.
func (b *Builder) lowerMemset(sg *Subgraph, instr *ir.Instr) *Node {
	n := b.newNode(NOOP, "memset")
	if len(instr.Args) >= 1 {
		n.addOperand(b.getOperand(sg, instr.Args[0]))
	}
	return n
}
