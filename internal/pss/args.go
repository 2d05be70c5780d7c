package pss

import "pssbuild/internal/ir"

// isPointerType reports whether t is a pointer type. nil (a void
// result type) is never a pointer.
func isPointerType(t *ir.Type) bool {
	return t != nil && t.Kind == ir.TypePointer
}

// buildArgs creates sg's parameter PHI chain: one PHI per pointer-typed
// parameter of sg.Func, in parameter order, with a trailing PHI for
// variadic arguments when sg.Func is variadic. Each call site later
// appends its arguments to this chain in lock-step with the parameter
// list (interproc.go's wireCallArgs); buildArgs itself only allocates
// the nodes, leaving every PHI's Operands empty until a call site or
// va_start contributes one.
func (b *Builder) buildArgs(sg *Subgraph) {
	f := sg.Func
	sg.paramPHIs = make(map[*ir.Param]*Node, len(f.Params))

	var prev *Node
	for _, p := range f.Params {
		if !isPointerType(p.Type) {
			continue
		}
		phi := b.newNode(PHI, f.Name+"."+p.Name)
		sg.paramPHIs[p] = phi
		if prev == nil {
			sg.ArgsFirst = phi
		} else {
			prev.addSuccessor(phi)
		}
		prev = phi
	}

	if f.Variadic {
		sg.VariadicPHI = b.newNode(PHI, f.Name+".variadic")
		if prev == nil {
			sg.ArgsFirst = sg.VariadicPHI
		} else {
			prev.addSuccessor(sg.VariadicPHI)
		}
		prev = sg.VariadicPHI
	}

	sg.ArgsLast = prev
}
