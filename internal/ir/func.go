package ir

// Block is a basic block: a straight-line run of instructions followed
// by explicit control-flow successors. There is no separate terminator
// type; a block's last Instr may itself carry control semantics (Ret) and
// Successors records where control goes when it doesn't return.
type Block struct {
	ID         int
	Label      string
	Instrs     []*Instr
	Successors []*Block
}

func (b *Block) IsEmpty() bool { return len(b.Instrs) == 0 }

// Terminator returns the block's last instruction, or nil for an empty
// block.
func (b *Block) Terminator() *Instr {
	if len(b.Instrs) == 0 {
		return nil
	}
	return b.Instrs[len(b.Instrs)-1]
}

// Function is a compiled function: a fixed parameter list, an optional
// body (IsDeclaration is true for an external function with no blocks),
// and the blocks making up that body in no particular traversal order
// (Entry names the actual entry block).
type Function struct {
	Name          string
	Params        []*Param
	ResultType    *Type // nil for void
	Variadic      bool
	IsDeclaration bool
	Blocks        []*Block
	Entry         *Block
}

func (f *Function) ValueType() *Type {
	return &Type{Kind: TypeFunc, Params: paramTypes(f.Params), Result: f.ResultType, Variadic: f.Variadic}
}

func paramTypes(params []*Param) []*Type {
	out := make([]*Type, len(params))
	for i, p := range params {
		out[i] = p.Type
	}
	return out
}

// AggregateInit is an initializer for a Global: either a constant Value,
// an all-zero/uninitialized marker, or a recursively nested aggregate of
// element initializers (struct fields / array elements).
type AggregateInit struct {
	IsZero   bool
	Value    Value
	Elements []*AggregateInit
}

// Global is a module-scope storage location. A Global is itself a
// pointer-typed Value: its address is the value that flows through the
// program, never the storage it names.
type Global struct {
	Name        string
	PointeeType *Type
	Initializer *AggregateInit // nil for an external/extern global with no initializer
}

func (g *Global) ValueType() *Type {
	return &Type{Kind: TypePointer, Elem: g.PointeeType}
}

// Module is a whole compiled program: its globals, its functions (which
// may include external declarations), and the data layout describing the
// target the IR was lowered for.
type Module struct {
	Globals   []*Global
	Functions []*Function
	Layout    DataLayout
}

func (m *Module) FunctionByName(name string) *Function {
	for _, f := range m.Functions {
		if f.Name == name {
			return f
		}
	}
	return nil
}
