package ir

// Opcode enumerates the subset of low-level instructions the builder
// cares about. Arithmetic, comparisons, and other non-pointer-relevant
// instructions are simply not represented: a compiled function's
// instruction stream here only contains the shapes that move or derive
// pointer values, plus Call and Ret to drive control flow and
// inter-procedural wiring.
type Opcode uint8

const (
	OpAlloca Opcode = iota
	OpStore
	OpLoad
	OpGetElementPtr
	OpBitCast
	OpPtrToInt
	OpIntToPtr
	OpSelect
	OpPhi
	OpCall
	OpRet
	OpIntrinsic
)

// IntrinsicKind names the handful of runtime/compiler intrinsics that get
// special-cased during lowering instead of being treated as ordinary
// calls.
type IntrinsicKind uint8

const (
	IntrinsicNone IntrinsicKind = iota
	IntrinsicMalloc
	IntrinsicCalloc
	IntrinsicRealloc
	IntrinsicFree
	IntrinsicMemcpy
	IntrinsicMemmove
	IntrinsicMemset
	IntrinsicVaStart
	IntrinsicStackSave
	IntrinsicStackRestore
)

// PhiIncoming is one (value, predecessor) pair of a Phi instruction.
type PhiIncoming struct {
	Value Value
	Block *Block
}

// Instr is a tagged-variant instruction: one struct carrying a common
// Opcode field and the payload fields for every opcode it can take. The
// *Instr pointer itself is the instruction's SSA value/result wherever it
// has one (Alloca, Load, GetElementPtr, BitCast, PtrToInt, IntToPtr,
// Select, Phi, Call with a non-void result).
type Instr struct {
	Opcode Opcode
	Type   *Type // result type; nil for Store/Ret/void Call

	// Alloca
	AllocType  *Type
	ArraySize  Value // non-nil for dynamic/array alloca; nil for a single-object alloca

	// Store
	StoreValue Value
	StorePtr   Value

	// Load
	LoadPtr Value

	// GetElementPtr
	GEPBase    Value
	GEPBaseTy  *Type
	GEPIndices []GEPIndex

	// BitCast / PtrToInt / IntToPtr
	CastOperand Value

	// Select
	SelectTrue  Value
	SelectFalse Value

	// Phi
	Incoming []PhiIncoming

	// Call
	Callee      Value // *Function for a direct call, any Value for an indirect/function-pointer call
	Args        []Value
	VariadicArgs []Value
	Intrinsic   IntrinsicKind

	// Ret
	RetValue Value // nil for a void return
}

func (i *Instr) ValueType() *Type { return i.Type }

// IsIndirectCall reports whether Callee is anything other than a
// directly-named *Function constant.
func (i *Instr) IsIndirectCall() bool {
	if i.Opcode != OpCall {
		return false
	}
	if c, ok := i.Callee.(*Const); ok && c.Kind == ConstFunction {
		return false
	}
	_, isFunc := i.Callee.(*Function)
	return !isFunc
}

func (i *Instr) DirectCallee() *Function {
	if c, ok := i.Callee.(*Const); ok && c.Kind == ConstFunction {
		return c.Fn
	}
	if f, ok := i.Callee.(*Function); ok {
		return f
	}
	return nil
}
