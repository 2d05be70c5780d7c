package pss

import (
	"testing"

	"pssbuild/internal/ir"
)

func TestDetectRecursion_DirectSelfCall(t *testing.T) {
	f := &ir.Function{Name: "f"}
	call := &ir.Instr{Opcode: ir.OpCall, Callee: f}
	blk := &ir.Block{ID: 0, Instrs: []*ir.Instr{call, {Opcode: ir.OpRet}}}
	f.Blocks = []*ir.Block{blk}
	f.Entry = blk

	module := &ir.Module{Functions: []*ir.Function{f}}
	got := detectRecursion(module)
	if !got["f"] {
		t.Fatalf("expected f to be detected as recursive, got %v", got)
	}
}

func TestDetectRecursion_MutualRecursion(t *testing.T) {
	a := &ir.Function{Name: "a"}
	b := &ir.Function{Name: "b"}
	callB := &ir.Instr{Opcode: ir.OpCall, Callee: b}
	callA := &ir.Instr{Opcode: ir.OpCall, Callee: a}
	blkA := &ir.Block{ID: 0, Instrs: []*ir.Instr{callB, {Opcode: ir.OpRet}}}
	blkB := &ir.Block{ID: 0, Instrs: []*ir.Instr{callA, {Opcode: ir.OpRet}}}
	a.Blocks, a.Entry = []*ir.Block{blkA}, blkA
	b.Blocks, b.Entry = []*ir.Block{blkB}, blkB

	module := &ir.Module{Functions: []*ir.Function{a, b}}
	got := detectRecursion(module)
	if !got["a"] || !got["b"] {
		t.Fatalf("expected both a and b to be detected as mutually recursive, got %v", got)
	}
}

func TestDetectRecursion_NoCycle(t *testing.T) {
	leaf := &ir.Function{Name: "leaf"}
	leafBlk := &ir.Block{ID: 0, Instrs: []*ir.Instr{{Opcode: ir.OpRet}}}
	leaf.Blocks, leaf.Entry = []*ir.Block{leafBlk}, leafBlk

	caller := &ir.Function{Name: "caller"}
	call := &ir.Instr{Opcode: ir.OpCall, Callee: leaf}
	callerBlk := &ir.Block{ID: 0, Instrs: []*ir.Instr{call, {Opcode: ir.OpRet}}}
	caller.Blocks, caller.Entry = []*ir.Block{callerBlk}, callerBlk

	module := &ir.Module{Functions: []*ir.Function{caller, leaf}}
	got := detectRecursion(module)
	if len(got) != 0 {
		t.Fatalf("expected no recursive functions, got %v", got)
	}
}
