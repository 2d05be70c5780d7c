package ir

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// DecodeModule deserializes a Module from the wire format an upstream
// frontend emits: msgpack rather than a text format, since a module can
// carry thousands of instructions and the builder only ever reads it
// once per build. See the wire* types below for the exact shape; they
// exist only on this side of the boundary, never inside internal/pss.
func DecodeModule(data []byte) (*Module, error) {
	var wm wireModule
	if err := msgpack.Unmarshal(data, &wm); err != nil {
		return nil, fmt.Errorf("ir: decode module: %w", err)
	}
	return (&decoder{}).decode(&wm)
}

type wireType struct {
	Kind        string      `msgpack:"kind"`
	OpaqueSize  uint64      `msgpack:"opaque_size,omitempty"`
	OpaqueAlign uint64      `msgpack:"opaque_align,omitempty"`
	AddrSpace   uint32      `msgpack:"addr_space,omitempty"`
	Elem        *wireType   `msgpack:"elem,omitempty"`
	ArrayElem   *wireType   `msgpack:"array_elem,omitempty"`
	ArrayLen    uint64      `msgpack:"array_len,omitempty"`
	Fields      []*wireType `msgpack:"fields,omitempty"`
	Packed      bool        `msgpack:"packed,omitempty"`
	Params      []*wireType `msgpack:"params,omitempty"`
	Result      *wireType   `msgpack:"result,omitempty"`
	Variadic    bool        `msgpack:"variadic,omitempty"`
}

// wireValueRef names any operand: an instruction result within the same
// function (by ID), a parameter (by index), a global or function (by
// name), or an inline constant. Exactly one of the ID/index/name/Const
// fields is meaningful, selected by Kind.
type wireValueRef struct {
	Kind       string     `msgpack:"kind"` // "instr" | "param" | "global" | "func" | "const"
	InstrID    int        `msgpack:"instr_id,omitempty"`
	ParamIndex int        `msgpack:"param_index,omitempty"`
	Name       string     `msgpack:"name,omitempty"`
	Const      *wireConst `msgpack:"const,omitempty"`
}

type wireGEPIndex struct {
	IsConst bool          `msgpack:"is_const"`
	Const   int64         `msgpack:"const,omitempty"`
	Dynamic *wireValueRef `msgpack:"dynamic,omitempty"`
}

type wireConst struct {
	Kind        string         `msgpack:"kind"` // "int" | "nullptr" | "function" | "bitcast" | "ptrtoint" | "inttoptr" | "gep" | "undef"
	Type        *wireType      `msgpack:"type,omitempty"`
	IntValue    uint64         `msgpack:"int_value,omitempty"`
	FuncName    string         `msgpack:"func_name,omitempty"`
	Inner       *wireConst     `msgpack:"inner,omitempty"`
	GEPBase     *wireConst     `msgpack:"gep_base,omitempty"`
	GEPBaseType *wireType      `msgpack:"gep_base_type,omitempty"`
	GEPIndices  []wireGEPIndex `msgpack:"gep_indices,omitempty"`
}

type wirePhiIncoming struct {
	Value wireValueRef `msgpack:"value"`
	Block int          `msgpack:"block"`
}

type wireInstr struct {
	ID     int       `msgpack:"id"`
	Opcode string    `msgpack:"opcode"`
	Type   *wireType `msgpack:"type,omitempty"`

	AllocType *wireType     `msgpack:"alloc_type,omitempty"`
	ArraySize *wireValueRef `msgpack:"array_size,omitempty"`

	StoreValue *wireValueRef `msgpack:"store_value,omitempty"`
	StorePtr   *wireValueRef `msgpack:"store_ptr,omitempty"`

	LoadPtr *wireValueRef `msgpack:"load_ptr,omitempty"`

	GEPBase     *wireValueRef  `msgpack:"gep_base,omitempty"`
	GEPBaseType *wireType      `msgpack:"gep_base_type,omitempty"`
	GEPIndices  []wireGEPIndex `msgpack:"gep_indices,omitempty"`

	CastOperand *wireValueRef `msgpack:"cast_operand,omitempty"`

	SelectTrue  *wireValueRef `msgpack:"select_true,omitempty"`
	SelectFalse *wireValueRef `msgpack:"select_false,omitempty"`

	Incoming []wirePhiIncoming `msgpack:"incoming,omitempty"`

	Callee       *wireValueRef  `msgpack:"callee,omitempty"`
	Args         []wireValueRef `msgpack:"args,omitempty"`
	VariadicArgs []wireValueRef `msgpack:"variadic_args,omitempty"`
	Intrinsic    string         `msgpack:"intrinsic,omitempty"`

	RetValue *wireValueRef `msgpack:"ret_value,omitempty"`
}

type wireBlock struct {
	ID         int         `msgpack:"id"`
	Label      string      `msgpack:"label,omitempty"`
	Instrs     []wireInstr `msgpack:"instrs,omitempty"`
	Successors []int       `msgpack:"successors,omitempty"`
}

type wireParam struct {
	Name  string   `msgpack:"name,omitempty"`
	Type  wireType `msgpack:"type"`
	Index int      `msgpack:"index"`
}

type wireFunction struct {
	Name          string      `msgpack:"name"`
	Params        []wireParam `msgpack:"params,omitempty"`
	ResultType    *wireType   `msgpack:"result_type,omitempty"`
	Variadic      bool        `msgpack:"variadic,omitempty"`
	IsDeclaration bool        `msgpack:"is_declaration,omitempty"`
	EntryBlock    int         `msgpack:"entry_block,omitempty"`
	Blocks        []wireBlock `msgpack:"blocks,omitempty"`
}

type wireAggregateInit struct {
	IsZero   bool                 `msgpack:"is_zero,omitempty"`
	Value    *wireValueRef        `msgpack:"value,omitempty"`
	Elements []*wireAggregateInit `msgpack:"elements,omitempty"`
}

type wireGlobal struct {
	Name        string             `msgpack:"name"`
	PointeeType wireType           `msgpack:"pointee_type"`
	Initializer *wireAggregateInit `msgpack:"initializer,omitempty"`
}

type wireModule struct {
	Globals   []wireGlobal   `msgpack:"globals,omitempty"`
	Functions []wireFunction `msgpack:"functions,omitempty"`
}

// decoder resolves cross-references while converting the wire form into
// the real graph: functions and globals are allocated (with no body/
// initializer yet) in a first pass so a forward reference to a global
// or function defined later in the wire stream, or an instruction
// referencing a block not yet visited, resolves to the same object a
// backward reference would.
type decoder struct {
	funcsByName   map[string]*Function
	globalsByName map[string]*Global
	instrsByID    map[string]*Instr // keyed by funcName + "#" + instrID
	blocksByID    map[string]*Block // keyed by funcName + "#" + blockID
}

func (d *decoder) decode(wm *wireModule) (*Module, error) {
	d.funcsByName = make(map[string]*Function, len(wm.Functions))
	d.globalsByName = make(map[string]*Global, len(wm.Globals))
	d.instrsByID = make(map[string]*Instr, 64)
	d.blocksByID = make(map[string]*Block, 64)

	for i := range wm.Globals {
		d.globalsByName[wm.Globals[i].Name] = &Global{Name: wm.Globals[i].Name}
	}
	for i := range wm.Functions {
		d.funcsByName[wm.Functions[i].Name] = &Function{Name: wm.Functions[i].Name}
	}

	module := &Module{}
	for i := range wm.Globals {
		g, err := d.convertGlobal(&wm.Globals[i])
		if err != nil {
			return nil, err
		}
		module.Globals = append(module.Globals, g)
	}
	for i := range wm.Functions {
		f, err := d.convertFunction(&wm.Functions[i])
		if err != nil {
			return nil, err
		}
		module.Functions = append(module.Functions, f)
	}
	return module, nil
}

func (d *decoder) convertType(wt *wireType) (*Type, error) {
	if wt == nil {
		return nil, nil
	}
	switch wt.Kind {
	case "", "void":
		return &Type{Kind: TypeVoid}, nil
	case "opaque":
		return OpaqueType(wt.OpaqueSize, wt.OpaqueAlign), nil
	case "pointer":
		elem, err := d.convertType(wt.Elem)
		if err != nil {
			return nil, err
		}
		return PointerType(elem, wt.AddrSpace), nil
	case "array":
		elem, err := d.convertType(wt.ArrayElem)
		if err != nil {
			return nil, err
		}
		return ArrayType(elem, wt.ArrayLen), nil
	case "struct":
		fields := make([]*Type, len(wt.Fields))
		for i, wf := range wt.Fields {
			ft, err := d.convertType(wf)
			if err != nil {
				return nil, err
			}
			fields[i] = ft
		}
		return StructType(fields, wt.Packed), nil
	case "func":
		params := make([]*Type, len(wt.Params))
		for i, wp := range wt.Params {
			pt, err := d.convertType(wp)
			if err != nil {
				return nil, err
			}
			params[i] = pt
		}
		result, err := d.convertType(wt.Result)
		if err != nil {
			return nil, err
		}
		return &Type{Kind: TypeFunc, Params: params, Result: result, Variadic: wt.Variadic}, nil
	default:
		return nil, fmt.Errorf("ir: decode: unknown type kind %q", wt.Kind)
	}
}

func (d *decoder) convertGlobal(wg *wireGlobal) (*Global, error) {
	g := d.globalsByName[wg.Name]
	pointee, err := d.convertType(&wg.PointeeType)
	if err != nil {
		return nil, fmt.Errorf("ir: decode global %q: %w", wg.Name, err)
	}
	g.PointeeType = pointee
	if wg.Initializer != nil {
		init, err := d.convertAggregateInit(wg.Initializer, "")
		if err != nil {
			return nil, fmt.Errorf("ir: decode global %q initializer: %w", wg.Name, err)
		}
		g.Initializer = init
	}
	return g, nil
}

func (d *decoder) convertAggregateInit(wa *wireAggregateInit, funcName string) (*AggregateInit, error) {
	if wa == nil {
		return nil, nil
	}
	init := &AggregateInit{IsZero: wa.IsZero}
	if wa.Value != nil {
		v, err := d.resolveValueRef(wa.Value, funcName)
		if err != nil {
			return nil, err
		}
		init.Value = v
	}
	for _, elem := range wa.Elements {
		sub, err := d.convertAggregateInit(elem, funcName)
		if err != nil {
			return nil, err
		}
		init.Elements = append(init.Elements, sub)
	}
	return init, nil
}

func (d *decoder) convertFunction(wf *wireFunction) (*Function, error) {
	f := d.funcsByName[wf.Name]
	f.Variadic = wf.Variadic
	f.IsDeclaration = wf.IsDeclaration

	for _, wp := range wf.Params {
		pt, err := d.convertType(&wp.Type)
		if err != nil {
			return nil, fmt.Errorf("ir: decode function %q param %q: %w", wf.Name, wp.Name, err)
		}
		f.Params = append(f.Params, &Param{Name: wp.Name, Type: pt, Index: wp.Index})
	}
	resultType, err := d.convertType(wf.ResultType)
	if err != nil {
		return nil, fmt.Errorf("ir: decode function %q result type: %w", wf.Name, err)
	}
	f.ResultType = resultType

	if len(wf.Blocks) == 0 {
		return f, nil
	}

	for _, wb := range wf.Blocks {
		blk := &Block{ID: wb.ID, Label: wb.Label}
		f.Blocks = append(f.Blocks, blk)
		d.blocksByID[blockKey(wf.Name, wb.ID)] = blk
		for i := range wb.Instrs {
			d.instrsByID[instrKey(wf.Name, wb.Instrs[i].ID)] = &Instr{}
		}
	}
	if wf.EntryBlock < len(f.Blocks) {
		f.Entry = f.Blocks[wf.EntryBlock]
	} else if len(f.Blocks) > 0 {
		f.Entry = f.Blocks[0]
	}

	for bi, wb := range wf.Blocks {
		blk := f.Blocks[bi]
		for _, bsID := range wb.Successors {
			succ, ok := d.blocksByID[blockKey(wf.Name, bsID)]
			if !ok {
				return nil, fmt.Errorf("ir: decode function %q block %d: unknown successor block %d", wf.Name, wb.ID, bsID)
			}
			blk.Successors = append(blk.Successors, succ)
		}
		for i := range wb.Instrs {
			instr, err := d.convertInstr(&wb.Instrs[i], wf.Name)
			if err != nil {
				return nil, fmt.Errorf("ir: decode function %q block %d instr %d: %w", wf.Name, wb.ID, wb.Instrs[i].ID, err)
			}
			blk.Instrs = append(blk.Instrs, instr)
		}
	}
	return f, nil
}

func (d *decoder) convertInstr(wi *wireInstr, funcName string) (*Instr, error) {
	instr := d.instrsByID[instrKey(funcName, wi.ID)]

	opcode, ok := opcodeByName[wi.Opcode]
	if !ok {
		return nil, fmt.Errorf("unknown opcode %q", wi.Opcode)
	}
	instr.Opcode = opcode

	var err error
	if instr.Type, err = d.convertType(wi.Type); err != nil {
		return nil, err
	}
	if instr.AllocType, err = d.convertType(wi.AllocType); err != nil {
		return nil, err
	}
	if instr.ArraySize, err = d.resolveValueRefOpt(wi.ArraySize, funcName); err != nil {
		return nil, err
	}
	if instr.StoreValue, err = d.resolveValueRefOpt(wi.StoreValue, funcName); err != nil {
		return nil, err
	}
	if instr.StorePtr, err = d.resolveValueRefOpt(wi.StorePtr, funcName); err != nil {
		return nil, err
	}
	if instr.LoadPtr, err = d.resolveValueRefOpt(wi.LoadPtr, funcName); err != nil {
		return nil, err
	}
	if instr.GEPBase, err = d.resolveValueRefOpt(wi.GEPBase, funcName); err != nil {
		return nil, err
	}
	if instr.GEPBaseTy, err = d.convertType(wi.GEPBaseType); err != nil {
		return nil, err
	}
	if instr.GEPIndices, err = d.convertGEPIndices(wi.GEPIndices, funcName); err != nil {
		return nil, err
	}
	if instr.CastOperand, err = d.resolveValueRefOpt(wi.CastOperand, funcName); err != nil {
		return nil, err
	}
	if instr.SelectTrue, err = d.resolveValueRefOpt(wi.SelectTrue, funcName); err != nil {
		return nil, err
	}
	if instr.SelectFalse, err = d.resolveValueRefOpt(wi.SelectFalse, funcName); err != nil {
		return nil, err
	}
	for _, wp := range wi.Incoming {
		val, err := d.resolveValueRef(&wp.Value, funcName)
		if err != nil {
			return nil, err
		}
		blk, ok := d.blocksByID[blockKey(funcName, wp.Block)]
		if !ok {
			return nil, fmt.Errorf("phi incoming: unknown block %d", wp.Block)
		}
		instr.Incoming = append(instr.Incoming, PhiIncoming{Value: val, Block: blk})
	}
	if instr.Callee, err = d.resolveValueRefOpt(wi.Callee, funcName); err != nil {
		return nil, err
	}
	for _, wa := range wi.Args {
		v, err := d.resolveValueRef(&wa, funcName)
		if err != nil {
			return nil, err
		}
		instr.Args = append(instr.Args, v)
	}
	for _, wa := range wi.VariadicArgs {
		v, err := d.resolveValueRef(&wa, funcName)
		if err != nil {
			return nil, err
		}
		instr.VariadicArgs = append(instr.VariadicArgs, v)
	}
	if wi.Intrinsic != "" {
		kind, ok := intrinsicByName[wi.Intrinsic]
		if !ok {
			return nil, fmt.Errorf("unknown intrinsic %q", wi.Intrinsic)
		}
		instr.Intrinsic = kind
	}
	if instr.RetValue, err = d.resolveValueRefOpt(wi.RetValue, funcName); err != nil {
		return nil, err
	}
	return instr, nil
}

func (d *decoder) convertGEPIndices(wgi []wireGEPIndex, funcName string) ([]GEPIndex, error) {
	if len(wgi) == 0 {
		return nil, nil
	}
	out := make([]GEPIndex, len(wgi))
	for i, w := range wgi {
		idx := GEPIndex{IsConst: w.IsConst, Const: w.Const}
		if !w.IsConst {
			dyn, err := d.resolveValueRefOpt(w.Dynamic, funcName)
			if err != nil {
				return nil, err
			}
			idx.Dynamic = dyn
		}
		out[i] = idx
	}
	return out, nil
}

func (d *decoder) resolveValueRefOpt(ref *wireValueRef, funcName string) (Value, error) {
	if ref == nil {
		return nil, nil
	}
	return d.resolveValueRef(ref, funcName)
}

func (d *decoder) resolveValueRef(ref *wireValueRef, funcName string) (Value, error) {
	switch ref.Kind {
	case "instr":
		instr, ok := d.instrsByID[instrKey(funcName, ref.InstrID)]
		if !ok {
			return nil, fmt.Errorf("value ref: unknown instr id %d in function %q", ref.InstrID, funcName)
		}
		return instr, nil
	case "param":
		f, ok := d.funcsByName[funcName]
		if !ok || ref.ParamIndex >= len(f.Params) {
			return nil, fmt.Errorf("value ref: unknown param index %d in function %q", ref.ParamIndex, funcName)
		}
		return f.Params[ref.ParamIndex], nil
	case "global":
		g, ok := d.globalsByName[ref.Name]
		if !ok {
			return nil, fmt.Errorf("value ref: unknown global %q", ref.Name)
		}
		return g, nil
	case "func":
		f, ok := d.funcsByName[ref.Name]
		if !ok {
			return nil, fmt.Errorf("value ref: unknown function %q", ref.Name)
		}
		return f, nil
	case "const":
		return d.convertConst(ref.Const)
	default:
		return nil, fmt.Errorf("value ref: unknown kind %q", ref.Kind)
	}
}

func (d *decoder) convertConst(wc *wireConst) (*Const, error) {
	if wc == nil {
		return nil, fmt.Errorf("value ref: kind \"const\" with no const payload")
	}
	typ, err := d.convertType(wc.Type)
	if err != nil {
		return nil, err
	}
	c := &Const{Type: typ}

	switch wc.Kind {
	case "int":
		c.Kind = ConstInt
		c.IntValue = wc.IntValue
	case "nullptr":
		c.Kind = ConstNullPtr
	case "undef":
		c.Kind = ConstUndef
	case "function":
		f, ok := d.funcsByName[wc.FuncName]
		if !ok {
			return nil, fmt.Errorf("const: unknown function %q", wc.FuncName)
		}
		c.Kind = ConstFunction
		c.Fn = f
	case "bitcast", "ptrtoint":
		inner, err := d.convertConst(wc.Inner)
		if err != nil {
			return nil, err
		}
		if wc.Kind == "bitcast" {
			c.Kind = ConstBitCast
		} else {
			c.Kind = ConstPtrToInt
		}
		c.Inner = inner
	case "inttoptr":
		inner, err := d.convertConst(wc.Inner)
		if err != nil {
			return nil, err
		}
		c.Kind = ConstIntToPtr
		c.Inner = inner
	case "gep":
		base, err := d.convertConst(wc.GEPBase)
		if err != nil {
			return nil, err
		}
		baseTy, err := d.convertType(wc.GEPBaseType)
		if err != nil {
			return nil, err
		}
		indices, err := d.convertGEPIndices(wc.GEPIndices, "")
		if err != nil {
			return nil, err
		}
		c.Kind = ConstGEP
		c.GEPBase = base
		c.GEPBaseTy = baseTy
		c.GEPIndices = indices
	default:
		return nil, fmt.Errorf("const: unknown kind %q", wc.Kind)
	}
	return c, nil
}

var opcodeByName = map[string]Opcode{
	"alloca":        OpAlloca,
	"store":         OpStore,
	"load":          OpLoad,
	"getelementptr": OpGetElementPtr,
	"bitcast":       OpBitCast,
	"ptrtoint":      OpPtrToInt,
	"inttoptr":      OpIntToPtr,
	"select":        OpSelect,
	"phi":           OpPhi,
	"call":          OpCall,
	"ret":           OpRet,
	"intrinsic":     OpIntrinsic,
}

var intrinsicByName = map[string]IntrinsicKind{
	"malloc":         IntrinsicMalloc,
	"calloc":         IntrinsicCalloc,
	"realloc":        IntrinsicRealloc,
	"free":           IntrinsicFree,
	"memcpy":         IntrinsicMemcpy,
	"memmove":        IntrinsicMemmove,
	"memset":         IntrinsicMemset,
	"va_start":       IntrinsicVaStart,
	"stacksave":      IntrinsicStackSave,
	"stackrestore":   IntrinsicStackRestore,
}

func instrKey(funcName string, id int) string {
	return fmt.Sprintf("%s#%d", funcName, id)
}

func blockKey(funcName string, id int) string {
	return fmt.Sprintf("%s#%d", funcName, id)
}
