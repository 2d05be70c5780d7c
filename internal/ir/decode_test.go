package ir

import (
	"testing"

	"github.com/vmihailenco/msgpack/v5"
)

// TestDecodeModule_HeapStoreLoad round-trips a hand-built msgpack payload
// describing a tiny module (malloc, store, load, ret) and checks the
// decoded graph's shape and cross-references.
func TestDecodeModule_HeapStoreLoad(t *testing.T) {
	i8 := wireType{Kind: "opaque", OpaqueSize: 1, OpaqueAlign: 1}
	ptrI8 := wireType{Kind: "pointer", Elem: &i8}

	wm := wireModule{
		Functions: []wireFunction{
			{
				Name: "main",
				Blocks: []wireBlock{
					{
						ID: 0,
						Instrs: []wireInstr{
							{ID: 0, Opcode: "alloca", Type: &wireType{Kind: "pointer", Elem: &ptrI8}, AllocType: &ptrI8},
							{
								ID: 1, Opcode: "call", Type: &ptrI8, Intrinsic: "malloc",
								Args: []wireValueRef{{Kind: "const", Const: &wireConst{Kind: "int", Type: &i8, IntValue: 8}}},
							},
							{ID: 2, Opcode: "store",
								StorePtr:   &wireValueRef{Kind: "instr", InstrID: 0},
								StoreValue: &wireValueRef{Kind: "instr", InstrID: 1},
							},
							{ID: 3, Opcode: "load", Type: &ptrI8, LoadPtr: &wireValueRef{Kind: "instr", InstrID: 0}},
							{ID: 4, Opcode: "ret", RetValue: &wireValueRef{Kind: "instr", InstrID: 3}},
						},
					},
				},
			},
		},
	}

	data, err := msgpack.Marshal(&wm)
	if err != nil {
		t.Fatalf("marshal fixture: %v", err)
	}

	module, err := DecodeModule(data)
	if err != nil {
		t.Fatalf("DecodeModule: %v", err)
	}

	main := module.FunctionByName("main")
	if main == nil {
		t.Fatalf("decoded module has no main function")
	}
	if len(main.Blocks) != 1 || len(main.Blocks[0].Instrs) != 5 {
		t.Fatalf("unexpected block shape: %+v", main.Blocks)
	}

	store := main.Blocks[0].Instrs[2]
	if store.Opcode != OpStore {
		t.Fatalf("expected instr 2 to be a store, got opcode %d", store.Opcode)
	}
	if store.StorePtr != main.Blocks[0].Instrs[0] {
		t.Fatalf("store's pointer operand did not resolve to the alloca instruction by identity")
	}
	if store.StoreValue != main.Blocks[0].Instrs[1] {
		t.Fatalf("store's value operand did not resolve to the malloc call instruction by identity")
	}

	load := main.Blocks[0].Instrs[3]
	if load.LoadPtr != main.Blocks[0].Instrs[0] {
		t.Fatalf("load's pointer operand did not resolve to the alloca instruction by identity")
	}

	ret := main.Blocks[0].Instrs[4]
	if ret.RetValue != load {
		t.Fatalf("ret's value did not resolve to the load instruction by identity")
	}
}

func TestDecodeModule_GlobalPointerInitializer(t *testing.T) {
	i64 := wireType{Kind: "opaque", OpaqueSize: 8, OpaqueAlign: 8}
	ptrI64 := wireType{Kind: "pointer", Elem: &i64}

	wm := wireModule{
		Globals: []wireGlobal{
			{Name: "target", PointeeType: i64},
			{
				Name:        "holder",
				PointeeType: ptrI64,
				Initializer: &wireAggregateInit{Value: &wireValueRef{Kind: "global", Name: "target"}},
			},
		},
	}

	data, err := msgpack.Marshal(&wm)
	if err != nil {
		t.Fatalf("marshal fixture: %v", err)
	}

	module, err := DecodeModule(data)
	if err != nil {
		t.Fatalf("DecodeModule: %v", err)
	}
	if len(module.Globals) != 2 {
		t.Fatalf("expected 2 globals, got %d", len(module.Globals))
	}

	var target, holder *Global
	for _, g := range module.Globals {
		switch g.Name {
		case "target":
			target = g
		case "holder":
			holder = g
		}
	}
	if target == nil || holder == nil {
		t.Fatalf("missing expected globals: target=%v holder=%v", target, holder)
	}
	if holder.Initializer == nil || holder.Initializer.Value != target {
		t.Fatalf("holder's initializer should resolve to the target global by identity, got %+v", holder.Initializer)
	}
}
