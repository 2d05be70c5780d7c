package pss

import (
	"testing"

	"pssbuild/internal/ir"
	"pssbuild/internal/layout"
)

func testLayout() ir.DataLayout {
	return layout.New(layout.X86_64LinuxGNU())
}

func constInt(t *ir.Type, v uint64) *ir.Const {
	return &ir.Const{Kind: ir.ConstInt, Type: t, IntValue: v}
}

func i64Type() *ir.Type { return ir.OpaqueType(8, 8) }
func i8Type() *ir.Type  { return ir.OpaqueType(1, 1) }

// singleBlockFunction wires one entry block with the given instructions
// in order (the last is assumed to be a Ret) into a *ir.Function with no
// other control flow.
func singleBlockFunction(name string, instrs []*ir.Instr) *ir.Function {
	blk := &ir.Block{ID: 0, Label: "entry", Instrs: instrs}
	return &ir.Function{Name: name, Blocks: []*ir.Block{blk}, Entry: blk}
}

func mustBuild(t *testing.T, module *ir.Module) *Result {
	t.Helper()
	res, err := Build(module)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	return res
}

func pointsToIncludes(pts []Pointer, target *Node) bool {
	for _, p := range pts {
		if p.Target == target {
			return true
		}
	}
	return false
}

// TestBuild_HeapAllocStoreLoad covers a stack slot that holds a heap
// pointer: malloc, store into the slot, load back out. The load should
// resolve to the malloc node through the store/load propagation pass.
func TestBuild_HeapAllocStoreLoad(t *testing.T) {
	ptrI8 := ir.PointerType(i8Type(), 0)
	ptrPtrI8 := ir.PointerType(ptrI8, 0)

	slot := &ir.Instr{Opcode: ir.OpAlloca, Type: ptrPtrI8, AllocType: ptrI8}
	heap := &ir.Instr{
		Opcode:    ir.OpCall,
		Type:      ptrI8,
		Intrinsic: ir.IntrinsicMalloc,
		Args:      []ir.Value{constInt(i64Type(), 8)},
	}
	store := &ir.Instr{Opcode: ir.OpStore, StorePtr: slot, StoreValue: heap}
	load := &ir.Instr{Opcode: ir.OpLoad, Type: ptrI8, LoadPtr: slot}
	ret := &ir.Instr{Opcode: ir.OpRet, RetValue: load}

	main := singleBlockFunction("main", []*ir.Instr{slot, heap, store, load, ret})
	module := &ir.Module{Functions: []*ir.Function{main}, Layout: testLayout()}

	res := mustBuild(t, module)
	sg := res.Subgraphs["main"]
	loadNode := sg.syms.local[load]
	heapNode := sg.syms.local[heap]

	if heapNode.Kind != DYN_ALLOC || !heapNode.IsHeap {
		t.Fatalf("expected malloc to lower to a heap DYN_ALLOC, got %s (IsHeap=%v)", heapNode.Kind, heapNode.IsHeap)
	}
	if heapNode.AllocSize != 8 {
		t.Fatalf("expected malloc size 8, got %d", heapNode.AllocSize)
	}
	if !pointsToIncludes(loadNode.PointsTo, heapNode) {
		t.Fatalf("load's points-to set %v does not include the malloc node %s", loadNode.PointsTo, heapNode)
	}

	if errs := CheckWellFormed(res); len(errs) != 0 {
		t.Fatalf("well-formedness violations: %v", errs)
	}
}

// TestBuild_CallocSizeProduct covers a calloc call whose count and
// element size are both constant: the allocation size should be their
// product, with no unresolved-offset warning.
func TestBuild_CallocSizeProduct(t *testing.T) {
	ptrI8 := ir.PointerType(i8Type(), 0)
	heap := &ir.Instr{
		Opcode:    ir.OpCall,
		Type:      ptrI8,
		Intrinsic: ir.IntrinsicCalloc,
		Args:      []ir.Value{constInt(i64Type(), 4), constInt(i64Type(), 16)},
	}
	ret := &ir.Instr{Opcode: ir.OpRet, RetValue: heap}
	main := singleBlockFunction("main", []*ir.Instr{heap, ret})
	module := &ir.Module{Functions: []*ir.Function{main}, Layout: testLayout()}

	res := mustBuild(t, module)
	heapNode := res.Subgraphs["main"].syms.local[heap]
	if heapNode.AllocSize != 64 {
		t.Fatalf("expected calloc(4, 16) to resolve to size 64, got %d", heapNode.AllocSize)
	}
	for _, d := range res.Diags.Items() {
		if d.Code == "unknown-offset" {
			t.Fatalf("unexpected unresolved-size warning for a constant calloc: %v", d)
		}
	}
}

// TestBuild_CallocOverflow covers a calloc whose count*size overflows
// uint64: the size must be left unresolved (0) with a warning, not wrap
// around to a small bogus size.
func TestBuild_CallocOverflow(t *testing.T) {
	ptrI8 := ir.PointerType(i8Type(), 0)
	const huge = uint64(1) << 40
	heap := &ir.Instr{
		Opcode:    ir.OpCall,
		Type:      ptrI8,
		Intrinsic: ir.IntrinsicCalloc,
		Args:      []ir.Value{constInt(i64Type(), huge), constInt(i64Type(), huge)},
	}
	ret := &ir.Instr{Opcode: ir.OpRet, RetValue: heap}
	main := singleBlockFunction("main", []*ir.Instr{heap, ret})
	module := &ir.Module{Functions: []*ir.Function{main}, Layout: testLayout()}

	res := mustBuild(t, module)
	heapNode := res.Subgraphs["main"].syms.local[heap]
	if heapNode.AllocSize != 0 {
		t.Fatalf("expected an overflowing calloc to leave size unresolved, got %d", heapNode.AllocSize)
	}
}

// TestBuild_SelectMergesPointers covers a Select between two distinct
// allocations: the result's points-to set should be the union of both
// branches, not just one of them.
func TestBuild_SelectMergesPointers(t *testing.T) {
	i8 := i8Type()
	a := &ir.Instr{Opcode: ir.OpAlloca, Type: ir.PointerType(i8, 0), AllocType: i8}
	bAlloc := &ir.Instr{Opcode: ir.OpAlloca, Type: ir.PointerType(i8, 0), AllocType: i8}
	sel := &ir.Instr{Opcode: ir.OpSelect, Type: ir.PointerType(i8, 0), SelectTrue: a, SelectFalse: bAlloc}
	ret := &ir.Instr{Opcode: ir.OpRet, RetValue: sel}

	main := singleBlockFunction("main", []*ir.Instr{a, bAlloc, sel, ret})
	module := &ir.Module{Functions: []*ir.Function{main}, Layout: testLayout()}

	res := mustBuild(t, module)
	sg := res.Subgraphs["main"]
	selNode := sg.syms.local[sel]
	aNode := sg.syms.local[a]
	bNode := sg.syms.local[bAlloc]

	if !pointsToIncludes(selNode.PointsTo, aNode) || !pointsToIncludes(selNode.PointsTo, bNode) {
		t.Fatalf("select's points-to set %v should include both branches %s and %s", selNode.PointsTo, aNode, bNode)
	}
}

// TestBuild_RecursiveFunction covers f(p){ return f(p); }: a
// self-recursive function with a pointer parameter. Build must
// terminate (the recursion-safe Subgraph registry is the mechanism
// under test), the function should be reported via
// CodeRecursiveFunction, and its single parameter PHI must end up with
// exactly two operands: the outer caller's argument and the recursive
// call's own self-reference.
func TestBuild_RecursiveFunction(t *testing.T) {
	i8 := i8Type()
	ptrI8 := ir.PointerType(i8, 0)

	param := &ir.Param{Name: "p", Type: ptrI8, Index: 0}
	recurse := &ir.Function{Name: "recurse", Params: []*ir.Param{param}, ResultType: ptrI8}
	call := &ir.Instr{Opcode: ir.OpCall, Type: ptrI8, Callee: recurse, Args: []ir.Value{param}}
	ret := &ir.Instr{Opcode: ir.OpRet, RetValue: call}
	blk := &ir.Block{ID: 0, Label: "entry", Instrs: []*ir.Instr{call, ret}}
	recurse.Blocks = []*ir.Block{blk}
	recurse.Entry = blk

	arg := &ir.Instr{Opcode: ir.OpAlloca, Type: ptrI8, AllocType: i8}
	mainCall := &ir.Instr{Opcode: ir.OpCall, Type: ptrI8, Callee: recurse, Args: []ir.Value{arg}}
	mainRet := &ir.Instr{Opcode: ir.OpRet, RetValue: mainCall}
	main := singleBlockFunction("main", []*ir.Instr{arg, mainCall, mainRet})

	module := &ir.Module{Functions: []*ir.Function{main, recurse}, Layout: testLayout()}
	res := mustBuild(t, module)

	found := false
	for _, d := range res.Diags.Items() {
		if d.Code == "recursive-function" && d.At.Function == "recurse" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a recursive-function diagnostic for %q, diagnostics: %v", "recurse", res.Diags.Items())
	}
	if errs := CheckWellFormed(res); len(errs) != 0 {
		t.Fatalf("well-formedness violations: %v", errs)
	}

	recurseSg := res.Subgraphs["recurse"]
	phi := recurseSg.paramPHIs[param]
	if phi == nil {
		t.Fatalf("expected recurse's pointer parameter to have a PHI node")
	}
	if len(phi.Operands) != 2 {
		t.Fatalf("expected recurse's parameter PHI to have exactly 2 operands, got %d: %v", len(phi.Operands), phi.Operands)
	}
	selfRef := false
	for _, op := range phi.Operands {
		if op == phi {
			selfRef = true
		}
	}
	if !selfRef {
		t.Fatalf("expected recurse's parameter PHI to include itself as an operand (the recursive call), got %v", phi.Operands)
	}
	argNode := res.Subgraphs["main"].syms.local[arg]
	fromCaller := false
	for _, op := range phi.Operands {
		if op == argNode {
			fromCaller = true
		}
	}
	if !fromCaller {
		t.Fatalf("expected recurse's parameter PHI to include main's call-site argument, got %v", phi.Operands)
	}

	retNode := recurseSg.syms.local[call]
	callNode := retNode.Paired
	if callNode == nil || callNode.Kind != CALL {
		t.Fatalf("expected the inner call to lower to a CALL/CALL_RETURN pair, got %v", retNode)
	}
	if len(callNode.Successors) != 1 || callNode.Successors[0] != recurseSg.Entry {
		t.Fatalf("expected the inner call's unique successor to be recurse's own root, got %v", callNode.Successors)
	}
}

// TestBuild_GlobalPointerInitializer covers a global whose initializer
// is another global's address: loading through the first global should
// resolve to the second.
func TestBuild_GlobalPointerInitializer(t *testing.T) {
	i64 := i64Type()
	target := &ir.Global{Name: "target", PointeeType: i64}
	holder := &ir.Global{
		Name:        "holder",
		PointeeType: ir.PointerType(i64, 0),
		Initializer: &ir.AggregateInit{Value: target},
	}

	load := &ir.Instr{Opcode: ir.OpLoad, Type: ir.PointerType(i64, 0), LoadPtr: holder}
	ret := &ir.Instr{Opcode: ir.OpRet, RetValue: load}
	main := singleBlockFunction("main", []*ir.Instr{load, ret})

	module := &ir.Module{
		Globals:   []*ir.Global{target, holder},
		Functions: []*ir.Function{main},
		Layout:    testLayout(),
	}
	res := mustBuild(t, module)

	loadNode := res.Subgraphs["main"].syms.local[load]
	targetNode := res.Globals["target"]
	if !pointsToIncludes(loadNode.PointsTo, targetNode) {
		t.Fatalf("loading through %q should resolve to %q, got %v", "holder", "target", loadNode.PointsTo)
	}
}

// TestBuild_VariadicCallWithVaStart covers a variadic call's forwarded
// pointer argument and a va_start intrinsic inside the callee's own
// body: the call-site argument should reach the callee's VariadicPHI as
// a direct operand, and va_start's ALLOC+STORE+STORE chain should be
// wired the way lowerVaStart describes — the va_list slot is STOREd to
// point at a fresh area node, and that area STOREs the VariadicPHI as
// its contents.
func TestBuild_VariadicCallWithVaStart(t *testing.T) {
	i8 := i8Type()
	ptrI8 := ir.PointerType(i8, 0)

	vaListSlot := &ir.Instr{Opcode: ir.OpAlloca, Type: ptrI8, AllocType: i8}
	vaStart := &ir.Instr{Opcode: ir.OpIntrinsic, Intrinsic: ir.IntrinsicVaStart, Type: nil, Args: []ir.Value{vaListSlot}}
	logfRet := &ir.Instr{Opcode: ir.OpRet}
	logfBlk := &ir.Block{ID: 0, Label: "entry", Instrs: []*ir.Instr{vaListSlot, vaStart, logfRet}}
	logf := &ir.Function{Name: "logf", Variadic: true, Blocks: []*ir.Block{logfBlk}, Entry: logfBlk}

	s := &ir.Instr{Opcode: ir.OpAlloca, Type: ptrI8, AllocType: i8}
	call := &ir.Instr{
		Opcode:       ir.OpCall,
		Callee:       logf,
		VariadicArgs: []ir.Value{s},
	}
	ret := &ir.Instr{Opcode: ir.OpRet}

	main := singleBlockFunction("main", []*ir.Instr{s, call, ret})
	module := &ir.Module{Functions: []*ir.Function{main, logf}, Layout: testLayout()}

	res := mustBuild(t, module)
	if errs := CheckWellFormed(res); len(errs) != 0 {
		t.Fatalf("well-formedness violations: %v", errs)
	}

	logfSg := res.Subgraphs["logf"]
	storeArgs := logfSg.syms.local[vaStart]
	if storeArgs.Kind != STORE || len(storeArgs.Operands) != 2 {
		t.Fatalf("expected va_start to lower to a 2-operand STORE, got %s with %d operands", storeArgs.Kind, len(storeArgs.Operands))
	}
	area := storeArgs.Operands[0]
	variadicPHI := storeArgs.Operands[1]
	if area.Kind != ALLOC {
		t.Fatalf("expected va_start's first STORE operand to be the vararg area ALLOC, got %s", area.Kind)
	}
	if variadicPHI.Kind != PHI || variadicPHI != logfSg.VariadicPHI {
		t.Fatalf("expected va_start's second STORE operand to be logf's VariadicPHI, got %s", variadicPHI)
	}

	slotNode := logfSg.syms.local[vaListSlot]
	if len(area.Successors) != 1 || area.Successors[0].Kind != STORE {
		t.Fatalf("expected the area node to lead into a STORE of the va_list pointer, got successors %v", area.Successors)
	}
	storeAp := area.Successors[0]
	if len(storeAp.Operands) != 2 || storeAp.Operands[0] != slotNode || storeAp.Operands[1] != area {
		t.Fatalf("expected the va_list STORE to write area into the alloca slot, got operands %v", storeAp.Operands)
	}

	found := false
	for _, suc := range storeAp.Successors {
		if suc == storeArgs {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected the va_list STORE to chain into the VariadicPHI STORE, successors %v", storeAp.Successors)
	}

	sNode := res.Subgraphs["main"].syms.local[s]
	if len(variadicPHI.Operands) != 1 || variadicPHI.Operands[0] != sNode {
		t.Fatalf("expected logf's VariadicPHI to receive the call site's forwarded argument directly, got %v", variadicPHI.Operands)
	}
	if !pointsToIncludes(variadicPHI.PointsTo, sNode) {
		t.Fatalf("expected logf's VariadicPHI to resolve to the forwarded alloca %s, got %v", sNode, variadicPHI.PointsTo)
	}

	sawForwarding := false
	for _, d := range res.Diags.Items() {
		if d.Code == "variadic-forwarding-not-modeled" {
			sawForwarding = true
		}
	}
	if !sawForwarding {
		t.Fatalf("expected a variadic-forwarding-not-modeled warning, diagnostics: %v", res.Diags.Items())
	}
}

// TestBuild_NoMainFunctionFails covers the fatal fast-path: a module
// with no "main" function must fail with CodeNoMainFunction rather than
// lowering whatever functions it does have.
func TestBuild_NoMainFunctionFails(t *testing.T) {
	other := singleBlockFunction("other", []*ir.Instr{{Opcode: ir.OpRet}})
	module := &ir.Module{Functions: []*ir.Function{other}, Layout: testLayout()}

	_, err := Build(module)
	if err == nil {
		t.Fatalf("expected Build to fail for a module with no main function")
	}
	buildErr, ok := err.(*BuildError)
	if !ok {
		t.Fatalf("expected a *BuildError, got %T", err)
	}
	found := false
	for _, d := range buildErr.Bag.Items() {
		if d.Code == "no-main-function" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a no-main-function diagnostic, got %v", buildErr.Bag.Items())
	}
}

// TestBuild_IndirectCallUnresolvedReturnsUnknown covers a call through a
// function pointer whose points-to set resolves to nothing: the return
// value must still end up pointing at UnknownMemoryNode rather than
// being silently dropped by the fixpoint pass.
func TestBuild_IndirectCallUnresolvedReturnsUnknown(t *testing.T) {
	ptrI8 := ir.PointerType(i8Type(), 0)
	fnPtrType := ir.PointerType(&ir.Type{Kind: ir.TypeFunc, Result: ptrI8}, 0)

	slot := &ir.Instr{Opcode: ir.OpAlloca, Type: ir.PointerType(fnPtrType, 0), AllocType: fnPtrType}
	loadFn := &ir.Instr{Opcode: ir.OpLoad, Type: fnPtrType, LoadPtr: slot}
	call := &ir.Instr{Opcode: ir.OpCall, Type: ptrI8, Callee: loadFn}
	ret := &ir.Instr{Opcode: ir.OpRet, RetValue: call}

	main := singleBlockFunction("main", []*ir.Instr{slot, loadFn, call, ret})
	module := &ir.Module{Functions: []*ir.Function{main}, Layout: testLayout()}

	res := mustBuild(t, module)
	callNode := res.Subgraphs["main"].syms.local[call]
	if !pointsToIncludes(callNode.PointsTo, UnknownMemoryNode) {
		t.Fatalf("unresolved indirect call's return should point at UnknownMemoryNode, got %v", callNode.PointsTo)
	}
}
