package pss

import (
	"pssbuild/internal/diag"
	"pssbuild/internal/ir"
)

// Subgraph is the per-function slice of the overall graph: its entry
// point, the chain of parameter PHI nodes every call site feeds
// arguments into, the RETURN nodes collected while lowering its body,
// and the join node every RETURN feeds so a caller has one place to
// read the callee's merged return value from.
type Subgraph struct {
	Func    *ir.Function
	Entry   *Node
	Join    *Node // NOOP; every RETURN's operand[0] feeds here as a points-to source
	Returns []*Node

	// ArgsFirst/ArgsLast are the head and tail of the parameter PHI
	// chain built by buildArgs: one PHI per pointer-typed parameter, in
	// parameter order, with VariadicPHI appended as the final link when
	// Func is variadic. Both are nil when Func has no pointer-typed
	// parameter and is not variadic. Entry's sole successor is ArgsFirst
	// whenever it is non-nil; ArgsLast's successors are the body's entry
	// node(s), as resolved by elideTargets (blocks.go).
	ArgsFirst *Node
	ArgsLast  *Node

	// paramPHIs maps each pointer-typed parameter to its PHI in the
	// ArgsFirst..ArgsLast chain, looked up by getOperand (symtab.go)
	// whenever the parameter is referenced as a value.
	paramPHIs map[*ir.Param]*Node

	// VariadicPHI is the merge point for every variadic argument passed
	// by any call site to Func, consulted by va_start (instr.go). Built
	// by buildArgs alongside the parameter PHIs; nil when Func is not
	// variadic.
	VariadicPHI *Node

	syms       *symtab
	blockSpans map[*ir.Block]*blockSpan
	instrOwner map[*ir.Instr]*ir.Block
	phiPending []pendingPhi
	built      bool
}

// variadicPHIFor returns sg's VariadicPHI node. buildArgs already
// created it for any variadic function with a body (the only kind
// va_start can appear in); the lazy fallback here only guards a
// malformed fixture that reaches va_start without Func.Variadic set.
func (b *Builder) variadicPHIFor(sg *Subgraph) *Node {
	if sg.VariadicPHI == nil {
		sg.VariadicPHI = b.newNode(PHI, sg.Func.Name+".variadic")
	}
	return sg.VariadicPHI
}

type blockSpan struct {
	First *Node // first node lowered in this block; nil when it lowered none (elideTargets then looks past it)
	Last  *Node // last node lowered in this block (predecessor hook for the next block)
}

type pendingPhi struct {
	node  *Node
	instr *ir.Instr
}

// Result is the output of a successful Build: one Subgraph per function
// with a body (plus an empty one for any external declaration referenced
// as a function value), a Node per global, and every diagnostic recorded along
// the way (warnings survive a successful build; only errors fail it).
type Result struct {
	Subgraphs map[string]*Subgraph
	Globals   map[string]*Node
	Diags     *diag.Bag
}

// Builder lowers an ir.Module into a Result. A Builder is single-use:
// construct one with New, call Build once, and discard it.
type Builder struct {
	layout ir.DataLayout
	diags  *diag.Bag
	Trace  bool

	nextID      int
	allNodes    []*Node
	subgraphs   map[*ir.Function]*Subgraph
	funcNodes   map[*ir.Function]*Node
	globalNodes map[*ir.Global]*Node
	globalTails map[*ir.Global]*Node // getGlobalNode(g)'s chain tail, for chaining into the next global
	constNodes  map[*ir.Const]*Node
}

func New(layout ir.DataLayout) *Builder {
	return NewWithCapacity(layout, 4096)
}

// NewWithCapacity is New with an explicit cap on how many diagnostics
// the Builder's Bag will hold, for a caller (the CLI's
// --max-diagnostics flag) that wants a smaller or larger bound than the
// default.
func NewWithCapacity(layout ir.DataLayout, maxDiagnostics int) *Builder {
	Init()
	return &Builder{
		layout:      layout,
		diags:       diag.NewBag(maxDiagnostics),
		subgraphs:   make(map[*ir.Function]*Subgraph),
		funcNodes:   make(map[*ir.Function]*Node),
		globalNodes: make(map[*ir.Global]*Node),
		globalTails: make(map[*ir.Global]*Node),
		constNodes:  make(map[*ir.Const]*Node),
	}
}

func (b *Builder) newNode(kind Kind, name string) *Node {
	b.nextID++
	n := newNode(b.nextID, kind, name)
	b.allNodes = append(b.allNodes, n)
	if b.Trace {
		b.diags.Infof(diag.Location{}, diag.CodeTraceNodeCreated, "created %s", n)
	}
	return n
}

// Build lowers every global and every function with a body in module,
// starting from "main" as the spec requires a named entry point to
// exist. Functions unreachable from main are still lowered (a caller
// inspecting the whole module's pointer behavior, not just main's,
// is a legitimate use), but Build fails fast if main itself is absent.
func Build(module *ir.Module) (*Result, error) {
	return BuildWithCapacity(module, 4096)
}

// BuildWithCapacity is Build with an explicit diagnostic capacity; see
// NewWithCapacity.
func BuildWithCapacity(module *ir.Module, maxDiagnostics int) (*Result, error) {
	b := NewWithCapacity(module.Layout, maxDiagnostics)
	return b.build(module)
}

func (b *Builder) build(module *ir.Module) (*Result, error) {
	mainFunc := module.FunctionByName("main")
	if mainFunc == nil {
		b.diags.Errorf(diag.Location{}, diag.CodeNoMainFunction, "module has no \"main\" function")
		return nil, &BuildError{Bag: b.diags}
	}

	// Globals are chained together in module order: each one's own
	// initializer chain tail becomes the predecessor of the next
	// global's ALLOC node. The final tail becomes the unique predecessor
	// of main's Subgraph root once main has been built.
	globals := make(map[string]*Node, len(module.Globals))
	var globalChainTail *Node
	for _, g := range module.Globals {
		n := b.getGlobalNode(g)
		globals[g.Name] = n
		if globalChainTail != nil {
			globalChainTail.addSuccessor(n)
		}
		globalChainTail = b.globalTails[g]
	}

	recursive := detectRecursion(module)
	for _, name := range sortedFunctionNames(recursive) {
		b.diags.Infof(diag.Location{Function: name}, diag.CodeRecursiveFunction, "function %q is recursive; its join node is a fixpoint over an unbounded call count", name)
	}

	for _, f := range module.Functions {
		if f.IsDeclaration {
			continue
		}
		b.subgraphFor(f)
	}

	if globalChainTail != nil {
		globalChainTail.addSuccessor(b.subgraphFor(mainFunc).Entry)
	}

	result := &Result{
		Subgraphs: make(map[string]*Subgraph, len(b.subgraphs)),
		Globals:   globals,
		Diags:     b.diags,
	}
	for f, sg := range b.subgraphs {
		result.Subgraphs[f.Name] = sg
	}

	b.propagate()
	b.diags.Sort()
	if b.diags.HasErrors() {
		return result, &BuildError{Bag: b.diags}
	}
	return result, nil
}

// subgraphFor returns the Subgraph for f, building its body the first
// time it's requested. The Subgraph record (with its ENTRY node already
// allocated) is inserted into b.subgraphs before the body is lowered,
// so a recursive call reached while lowering f's own body finds the
// same, already-registered Subgraph instead of recursing into build
// again.
func (b *Builder) subgraphFor(f *ir.Function) *Subgraph {
	if sg, ok := b.subgraphs[f]; ok {
		return sg
	}
	sg := &Subgraph{
		Func:       f,
		Entry:      b.newNode(ENTRY, f.Name),
		Join:       b.newNode(NOOP, f.Name+".join"),
		syms:       newSymtab(),
		blockSpans: make(map[*ir.Block]*blockSpan),
		instrOwner: make(map[*ir.Instr]*ir.Block),
	}
	b.subgraphs[f] = sg

	if f.IsDeclaration || f.Entry == nil {
		// No body to lower, and so no call site ever wires an argument
		// into it: wire ENTRY straight to the join so calls to an
		// external function still get a well-formed, if empty,
		// call/return shape.
		sg.Entry.addSuccessor(sg.Join)
		sg.built = true
		return sg
	}

	b.buildArgs(sg)

	for _, blk := range f.Blocks {
		for _, instr := range blk.Instrs {
			sg.instrOwner[instr] = blk
		}
	}
	b.buildFunctionBody(sg)
	sg.built = true
	return sg
}
